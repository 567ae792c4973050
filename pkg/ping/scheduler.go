// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package ping schedules ICMP echo requests to many targets over the shared
// ICMP socket and keeps rolling RTT, jitter and loss statistics per target.
package ping

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/telekom/netops/internal/logger"
	"github.com/telekom/netops/pkg/probe"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// inboxSize is the number of replies buffered per target.
const inboxSize = 64

// Scheduler runs one scheduling loop per ping target.
type Scheduler struct {
	router   *probe.Router
	defaults Options
	tracer   trace.Tracer

	mu      sync.Mutex
	targets map[probe.Handle]*pinger
	// outstanding counts the pending probes of all targets.
	outstanding atomic.Int64
}

// NewScheduler creates a scheduler sending through router.
// Zero fields of defaults take the values of [DefaultOptions].
func NewScheduler(router *probe.Router, defaults Options) *Scheduler {
	return &Scheduler{
		router:   router,
		defaults: defaults.withDefaults(DefaultOptions()),
		tracer:   otel.Tracer("ping"),
		targets:  make(map[probe.Handle]*pinger),
	}
}

// Start resolves host and starts pinging it. The scheduling loop outlives ctx;
// it runs until [Scheduler.Stop] or until opts.Count probes finalized.
func (s *Scheduler) Start(ctx context.Context, host string, opts Options) (probe.Handle, error) {
	ctx, span := s.tracer.Start(ctx, "ping.Start", trace.WithAttributes(attribute.String("target", host)))
	defer span.End()
	log := logger.FromContext(ctx)

	opts = opts.withDefaults(s.defaults)
	if err := opts.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid options")
		return "", err
	}

	addr, err := probe.ResolveIPv4(ctx, host)
	if err != nil {
		span.SetStatus(codes.Error, "resolve failed")
		span.RecordError(err)
		return "", err
	}

	stream, err := s.router.Register(ctx, inboxSize)
	if err != nil {
		log.ErrorContext(ctx, "Failed to start ping", "target", host, "error", err)
		span.SetStatus(codes.Error, "transport unavailable")
		span.RecordError(err)
		return "", fmt.Errorf("failed to start ping to %s: %w", host, err)
	}

	handle := probe.NewHandle()
	p := newPinger(handle, host, addr, opts, stream, &s.outstanding)
	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel

	s.mu.Lock()
	s.targets[handle] = p
	s.mu.Unlock()

	span.SetAttributes(attribute.String("handle", handle.String()), attribute.Int("identifier", stream.ID))
	go p.run(lctx)
	return handle, nil
}

// Stop cancels the target's loop, abandons its outstanding probes and
// removes the target. It blocks until the loop exited.
func (s *Scheduler) Stop(handle probe.Handle) error {
	s.mu.Lock()
	p, ok := s.targets[handle]
	delete(s.targets, handle)
	s.mu.Unlock()
	if !ok {
		return probe.ErrUnknownHandle
	}

	p.cancel()
	<-p.done
	return nil
}

// Has reports whether a target with the given handle exists.
func (s *Scheduler) Has(handle probe.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.targets[handle]
	return ok
}

// Target returns the current view of a target.
func (s *Scheduler) Target(handle probe.Handle) (Target, bool) {
	s.mu.Lock()
	p, ok := s.targets[handle]
	s.mu.Unlock()
	if !ok {
		return Target{}, false
	}
	return *p.view.Load(), true
}

// Targets returns the views of all targets ordered by start time.
func (s *Scheduler) Targets() []Target {
	s.mu.Lock()
	views := make([]Target, 0, len(s.targets))
	for _, p := range s.targets {
		views = append(views, *p.view.Load())
	}
	s.mu.Unlock()

	slices.SortFunc(views, func(a, b Target) int {
		if c := a.Started.Compare(b.Started); c != 0 {
			return c
		}
		return cmp.Compare(a.Handle, b.Handle)
	})
	return views
}

// Outstanding returns the number of pending probes across all targets.
func (s *Scheduler) Outstanding() int {
	return int(s.outstanding.Load())
}

// Shutdown stops all targets.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	handles := make([]probe.Handle, 0, len(s.targets))
	for h := range s.targets {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		_ = s.Stop(h)
	}
}
