// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"
	"time"

	"github.com/telekom/netops/internal/logger"
)

//go:generate go tool moq -out loader_moq.go . Loader
type Loader interface {
	// Run starts the loader routine.
	// The loader should be able
	// to handle all errors by itself and retry if necessary.
	// If the context is canceled,
	// the Run method returns an error.
	Run(context.Context) error
	// Shutdown stops the loader routine.
	Shutdown(context.Context)
}

// NewLoader returns the profile loader of the configured type
// or nil if no loader is configured.
func NewLoader(cfg *Config, cProfile chan<- Profile) Loader {
	switch cfg.Loader.Type {
	case "http":
		return NewHttpLoader(cfg, cProfile)
	case "file":
		return NewFileLoader(cfg, cProfile)
	default:
		return nil
	}
}

// poller fetches a profile on every interval and delivers the valid ones.
type poller struct {
	name     string
	interval time.Duration
	fetch    func(context.Context) (Profile, error)
	cProfile chan<- Profile
	done     chan struct{}
}

func newPoller(name string, interval time.Duration, fetch func(context.Context) (Profile, error), cProfile chan<- Profile) poller {
	return poller{
		name:     name,
		interval: interval,
		fetch:    fetch,
		cProfile: cProfile,
		done:     make(chan struct{}, 1),
	}
}

// run delivers the profile once on startup and then periodically.
// If the interval is 0, the profile is only fetched once and the loader is disabled.
func (p *poller) run(ctx context.Context) error {
	ctx, cancel := logger.NewContextWithLogger(ctx)
	defer cancel()
	log := logger.FromContext(ctx).With("loader", p.name)

	err := p.load(ctx)
	if err != nil {
		log.WarnContext(ctx, "Could not get profile", "error", err)
		err = fmt.Errorf("could not get profile: %w", err)
	}

	if p.interval == 0 {
		log.InfoContext(ctx, "Loader disabled after first load")
		return err
	}

	tick := time.NewTicker(p.interval)
	defer tick.Stop()

	for {
		select {
		case <-p.done:
			log.InfoContext(ctx, "Loader terminated")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if err := p.load(ctx); err != nil {
				log.WarnContext(ctx, "Could not get profile", "error", err)
				continue
			}
			log.DebugContext(ctx, "Successfully delivered profile")
		}
	}
}

func (p *poller) load(ctx context.Context) error {
	profile, err := p.fetch(ctx)
	if err != nil {
		return err
	}
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	select {
	case p.cProfile <- profile:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		// keep the shutdown signal for the run loop
		p.shutdown()
		return nil
	}
}

func (p *poller) shutdown() {
	select {
	case p.done <- struct{}{}:
	default:
	}
}
