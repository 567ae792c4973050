// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package telemetry assembles the state of all tools into immutable snapshots
// on a fixed tick and hands them to consumers without blocking the producers.
package telemetry

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telekom/netops/internal/logger"
	"github.com/telekom/netops/internal/transport"
	"github.com/telekom/netops/pkg/capture"
	"github.com/telekom/netops/pkg/mtr"
	"github.com/telekom/netops/pkg/ping"
	"github.com/telekom/netops/pkg/probe"
)

// DefaultPublishInterval is the default time between two snapshots.
const DefaultPublishInterval = 250 * time.Millisecond

type (
	// PingSource provides the ping targets.
	PingSource interface{ Targets() []ping.Target }
	// MTRSource provides the hop tables.
	MTRSource interface{ Tables() []mtr.Table }
	// CaptureSource provides the capture pipeline state.
	CaptureSource interface{ State() capture.State }
	// TransportSource provides the resource accounting of the transport.
	TransportSource interface{ State() transport.State }
	// RouterSource provides the reply demultiplexer counters.
	RouterSource interface{ Stats() probe.RouterStats }
)

// Sources are the producers a snapshot is assembled from. Nil sources are skipped.
type Sources struct {
	Ping      PingSource
	MTR       MTRSource
	Capture   CaptureSource
	Transport TransportSource
	Router    RouterSource
}

// Bus publishes snapshots on a fixed tick.
type Bus struct {
	sources  Sources
	interval time.Duration
	metrics  *Collector

	latest atomic.Pointer[Snapshot]
	// pubMu serializes publishing so generations are strictly increasing.
	pubMu sync.Mutex
	gen   uint64

	mu sync.Mutex
	// notify is closed and replaced on every publish.
	notify   chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

// NewBus creates a bus. A zero interval uses [DefaultPublishInterval].
// metrics may be nil.
func NewBus(sources Sources, interval time.Duration, metrics *Collector) *Bus {
	if interval <= 0 {
		interval = DefaultPublishInterval
	}
	return &Bus{
		sources:  sources,
		interval: interval,
		metrics:  metrics,
		notify:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Interval returns the publish interval.
func (b *Bus) Interval() time.Duration {
	return b.interval
}

// Run publishes a snapshot immediately and then on every tick until ctx is
// done. When Run returns all subscriptions end.
func (b *Bus) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	log.InfoContext(ctx, "Starting telemetry bus", "interval", b.interval.String())
	defer b.close()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.Publish()
	for {
		select {
		case <-ctx.Done():
			log.InfoContext(ctx, "Telemetry bus stopped")
			return nil
		case <-ticker.C:
			b.Publish()
		}
	}
}

func (b *Bus) close() {
	b.doneOnce.Do(func() { close(b.done) })
}

// Publish assembles a snapshot from all sources and makes it the latest one.
func (b *Bus) Publish() *Snapshot {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.gen++
	s := &Snapshot{Generation: b.gen, Timestamp: time.Now()}
	if b.sources.Ping != nil {
		s.Ping = b.sources.Ping.Targets()
	}
	if b.sources.MTR != nil {
		s.MTR = b.sources.MTR.Tables()
	}
	if b.sources.Capture != nil {
		s.Capture = b.sources.Capture.State()
	}
	if b.sources.Transport != nil {
		s.Transport = b.sources.Transport.State()
	}
	if b.sources.Router != nil {
		s.Router = b.sources.Router.Stats()
	}

	b.latest.Store(s)
	if b.metrics != nil {
		b.metrics.Update(s)
	}

	b.mu.Lock()
	close(b.notify)
	b.notify = make(chan struct{})
	b.mu.Unlock()
	return s
}

// Latest returns the most recent snapshot or nil before the first publish.
func (b *Bus) Latest() *Snapshot {
	return b.latest.Load()
}

// Subscribe returns the sequence of published snapshots. Each iteration starts
// with the latest snapshot; a slow consumer skips the snapshots published
// while it was busy. The sequence ends when ctx is done or the bus stops.
func (b *Bus) Subscribe(ctx context.Context) iter.Seq[*Snapshot] {
	return func(yield func(*Snapshot) bool) {
		var seen uint64
		for ctx.Err() == nil {
			b.mu.Lock()
			notify := b.notify
			b.mu.Unlock()

			if s := b.latest.Load(); s != nil && s.Generation > seen {
				seen = s.Generation
				if !yield(s) {
					return
				}
				continue
			}

			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case <-notify:
			}
		}
	}
}
