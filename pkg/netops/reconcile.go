// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package netops

import (
	"context"
	"errors"

	"github.com/telekom/netops/internal/logger"
	"github.com/telekom/netops/pkg/capture"
	"github.com/telekom/netops/pkg/config"
	"github.com/telekom/netops/pkg/probe"
)

// sessions is a component running sessions identified by handles.
type sessions interface {
	Has(handle probe.Handle) bool
	Stop(handle probe.Handle) error
}

// Reconcile applies a runtime profile. Sessions of an earlier profile that
// are missing from p are stopped, new ones are started. Sessions started
// through the api are left alone, except for a capture session on a
// different interface which the profile takes over.
// Failing sessions are skipped and their errors joined.
func (c *Core) Reconcile(ctx context.Context, p config.Profile) error {
	c.profileMu.Lock()
	defer c.profileMu.Unlock()
	log := logger.FromContext(ctx)

	var errs []error
	errs = append(errs, reconcileSessions(ctx, c.profilePing, c.ping, p.Ping,
		func(t config.PingTarget) (probe.Handle, error) {
			h, err := c.ping.Start(ctx, t.Host, t.Options)
			return h, wrapError(ctx, err, "failed to start ping from profile", "target", t.Host)
		})...)
	errs = append(errs, reconcileSessions(ctx, c.profileMTR, c.mtr, p.MTR,
		func(t config.MTRTarget) (probe.Handle, error) {
			h, err := c.mtr.Start(ctx, t.Host, t.Options)
			return h, wrapError(ctx, err, "failed to start mtr from profile", "target", t.Host)
		})...)
	errs = append(errs, c.reconcileCapture(ctx, p.Capture))

	log.InfoContext(ctx, "Profile applied",
		"ping", len(c.profilePing), "mtr", len(c.profileMTR), "capture", c.profileCapture != nil)
	return errors.Join(errs...)
}

// reconcileSessions stops the running sessions whose key is not wanted
// anymore and starts the wanted ones that are not running.
func reconcileSessions[T interface{ Key() string }](
	ctx context.Context,
	running map[string]probe.Handle,
	s sessions,
	targets []T,
	start func(T) (probe.Handle, error),
) []error {
	log := logger.FromContext(ctx)
	want := make(map[string]T, len(targets))
	for _, t := range targets {
		want[t.Key()] = t
	}

	var errs []error
	for key, h := range running {
		if _, ok := want[key]; ok && s.Has(h) {
			continue
		}
		// sessions stopped through the api are already gone
		if err := s.Stop(h); err != nil && !errors.Is(err, probe.ErrUnknownHandle) {
			errs = append(errs, wrapError(ctx, err, "failed to stop session", "handle", h))
		}
		log.DebugContext(ctx, "Session removed from profile", "handle", h)
		delete(running, key)
	}

	for key, t := range want {
		if _, ok := running[key]; ok {
			continue
		}
		h, err := start(t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		running[key] = h
	}
	return errs
}

// reconcileCapture starts, retargets or stops the capture of the profile.
// A filter change on the same interface only swaps the filter.
func (c *Core) reconcileCapture(ctx context.Context, want *config.CaptureProfile) error {
	cur := c.profileCapture
	if want == nil {
		if cur == nil {
			return nil
		}
		c.profileCapture = nil
		if err := c.capture.Stop(); err != nil && !errors.Is(err, capture.ErrNotRunning) {
			return wrapError(ctx, err, "failed to stop capture", "interface", cur.Interface)
		}
		return nil
	}

	if err := c.capture.SetFilter(want.Filter); err != nil {
		return wrapError(ctx, err, "failed to set capture filter", "filter", want.Filter)
	}
	if cur != nil && cur.Interface == want.Interface {
		c.profileCapture = &config.CaptureProfile{Interface: want.Interface, Filter: want.Filter}
		return nil
	}

	c.profileCapture = nil
	if c.capture.Running() {
		if err := c.capture.Stop(); err != nil && !errors.Is(err, capture.ErrNotRunning) {
			return wrapError(ctx, err, "failed to stop capture")
		}
	}
	if err := c.capture.Start(ctx, want.Interface); err != nil {
		return wrapError(ctx, err, "failed to start capture from profile", "interface", want.Interface)
	}
	c.profileCapture = &config.CaptureProfile{Interface: want.Interface, Filter: want.Filter}
	return nil
}
