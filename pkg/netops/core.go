// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package netops wires the probing, capture and telemetry components into
// one instance that is driven by the api, the runtime profile and the CLI.
package netops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"sync"
	"time"

	"github.com/telekom/netops/internal/logger"
	"github.com/telekom/netops/internal/resolve"
	"github.com/telekom/netops/internal/transport"
	"github.com/telekom/netops/pkg/api"
	"github.com/telekom/netops/pkg/capture"
	"github.com/telekom/netops/pkg/config"
	"github.com/telekom/netops/pkg/metrics"
	"github.com/telekom/netops/pkg/mtr"
	"github.com/telekom/netops/pkg/ping"
	"github.com/telekom/netops/pkg/probe"
	"github.com/telekom/netops/pkg/telemetry"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = time.Second * 90

var _ api.Controller = (*Core)(nil)

// Core is a netops instance
type Core struct {
	// config is the startup configuration
	config *config.Config
	// transport owns the shared ICMP socket and the capture handle
	transport *transport.Transport
	// router demultiplexes the replies of the shared socket
	router *probe.Router
	ping   *ping.Scheduler
	mtr    *mtr.Engine
	// capture is the capture pipeline
	capture *capture.Pipeline
	bus     *telemetry.Bus
	// metrics holds the registry and the tracer provider
	metrics metrics.Provider
	// api is nil if the api is disabled
	api *api.API
	// loader is nil if no profile loader is configured
	loader config.Loader
	// cProfile receives the runtime profiles of the loader
	cProfile chan config.Profile

	// profileMu guards the sessions started from a profile
	profileMu      sync.Mutex
	profilePing    map[string]probe.Handle
	profileMTR     map[string]probe.Handle
	profileCapture *config.CaptureProfile

	mu sync.Mutex
	// cancel stops a running [Core.Run]
	cancel   context.CancelFunc
	shutOnce sync.Once
	shutErr  error
}

type options struct {
	open   probe.OpenFunc
	opener capture.Opener
}

// Option changes how the core acquires its network resources.
type Option func(*options)

// withProbeTransport replaces the shared ICMP socket.
func withProbeTransport(open probe.OpenFunc) Option {
	return func(o *options) { o.open = open }
}

// withCaptureOpener replaces the source of capture handles.
func withCaptureOpener(opener capture.Opener) Option {
	return func(o *options) { o.opener = opener }
}

// New creates a core from a validated configuration.
// No network resource is opened before the first session starts.
func New(cfg *config.Config, version string, opts ...Option) (*Core, error) {
	tr := transport.New()
	o := options{
		open:   func(ctx context.Context) (probe.Transport, error) { return tr.ICMP(ctx) },
		opener: tr,
	}
	for _, opt := range opts {
		opt(&o)
	}

	router := probe.NewRouter(o.open)
	router.OnError = tr.RecordError

	var resolver mtr.Resolver
	if cfg.Resolver.Enabled {
		r, err := resolve.New(cfg.Resolver)
		if err != nil {
			return nil, fmt.Errorf("failed to create resolver: %w", err)
		}
		resolver = r
	}

	pipeline, err := capture.New(o.opener, cfg.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture pipeline: %w", err)
	}

	m := metrics.New(cfg.Telemetry.Tracing, metrics.Identity{Instance: instanceName(cfg), Version: version})
	collector := telemetry.NewCollector()
	if err = collector.Register(m.GetRegistry()); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	c := &Core{
		config:      cfg,
		transport:   tr,
		router:      router,
		ping:        ping.NewScheduler(router, cfg.Probe),
		mtr:         mtr.NewEngine(router, resolver, cfg.MTR),
		capture:     pipeline,
		metrics:     m,
		cProfile:    make(chan config.Profile, 1),
		profilePing: make(map[string]probe.Handle),
		profileMTR:  make(map[string]probe.Handle),
	}
	c.bus = telemetry.NewBus(telemetry.Sources{
		Ping:      c.ping,
		MTR:       c.mtr,
		Capture:   c.capture,
		Transport: tr,
		Router:    router,
	}, cfg.Telemetry.PublishInterval, collector)

	if cfg.HasAPI() {
		c.api = api.New(cfg.Api, c, m.GetRegistry(), version)
	}
	if cfg.HasLoader() {
		c.loader = config.NewLoader(cfg, c.cProfile)
	}
	return c, nil
}

func instanceName(cfg *config.Config) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "netops"
}

// Run starts the telemetry bus, the api and the profile loader and blocks
// until ctx is done, [Core.Shutdown] is called or a component fails.
// All sessions are stopped and all resources released before Run returns.
func (c *Core) Run(ctx context.Context) error {
	ctx, cancel := logger.NewContextWithLogger(ctx)
	defer cancel()
	log := logger.FromContext(ctx)

	if err := c.metrics.InitTracing(ctx); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	c.mu.Lock()
	c.cancel = stop
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.bus.Run(gctx)
	})
	if c.api != nil {
		g.Go(func() error {
			return c.api.Run(gctx)
		})
	}
	if c.loader != nil {
		g.Go(func() error {
			// a failed load keeps the running sessions
			if err := c.loader.Run(gctx); err != nil && gctx.Err() == nil {
				log.WarnContext(gctx, "Profile loader stopped", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case p := <-c.cProfile:
				_ = c.Reconcile(gctx, p)
			}
		}
	})

	err := g.Wait()
	if err != nil {
		log.ErrorContext(ctx, "Non-recoverable error in netops component", "error", err)
	}

	sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer scancel()
	return errors.Join(err, c.Shutdown(sctx))
}

// Shutdown stops all sessions and releases the shared socket and the capture handle.
// A running [Core.Run] returns. Calling Shutdown more than once returns the first result.
func (c *Core) Shutdown(ctx context.Context) error {
	c.shutOnce.Do(func() {
		log := logger.FromContext(ctx)
		log.InfoContext(ctx, "Shutting down netops")

		c.mu.Lock()
		if c.cancel != nil {
			c.cancel()
		}
		c.mu.Unlock()

		var sErrs ErrShutdown
		if c.api != nil {
			sErrs.errAPI = c.api.Shutdown(ctx)
		}
		if c.loader != nil {
			c.loader.Shutdown(ctx)
		}
		c.ping.Shutdown()
		c.mtr.Shutdown()
		if err := c.capture.Stop(); err != nil && !errors.Is(err, capture.ErrNotRunning) {
			sErrs.errCapture = err
		}
		c.router.Close()
		sErrs.errTransport = c.transport.Close()
		sErrs.errMetrics = c.metrics.Shutdown(ctx)

		if sErrs.HasError() {
			log.ErrorContext(ctx, "Failed to shutdown gracefully", "errors", sErrs.Unwrap())
			c.shutErr = sErrs
		}
	})
	return c.shutErr
}

// StartPing starts pinging host with the given interval and payload size.
// Zero values take the configured defaults.
func (c *Core) StartPing(ctx context.Context, host string, interval time.Duration, payloadSize int) (probe.Handle, error) {
	return c.StartPingWithOptions(ctx, host, ping.Options{Interval: interval, PayloadSize: &payloadSize})
}

// StartPingWithOptions starts pinging host. Zero fields of opts take the configured defaults.
func (c *Core) StartPingWithOptions(ctx context.Context, host string, opts ping.Options) (probe.Handle, error) {
	return c.ping.Start(ctx, host, opts)
}

// StartMTR starts an MTR session to host.
// Zero values take the configured defaults.
func (c *Core) StartMTR(ctx context.Context, host string, maxTTL int, roundInterval time.Duration) (probe.Handle, error) {
	return c.StartMTRWithOptions(ctx, host, mtr.Options{MaxTTL: maxTTL, RoundInterval: roundInterval})
}

// StartMTRWithOptions starts an MTR session to host. Zero fields of opts take the configured defaults.
func (c *Core) StartMTRWithOptions(ctx context.Context, host string, opts mtr.Options) (probe.Handle, error) {
	return c.mtr.Start(ctx, host, opts)
}

// Stop stops the ping target or MTR session with the given handle.
// It returns [probe.ErrUnknownHandle] if neither exists.
func (c *Core) Stop(handle probe.Handle) error {
	switch {
	case c.ping.Has(handle):
		return c.ping.Stop(handle)
	case c.mtr.Has(handle):
		return c.mtr.Stop(handle)
	default:
		return probe.ErrUnknownHandle
	}
}

// SetCaptureFilter replaces the capture filter for frames arriving from now on.
func (c *Core) SetCaptureFilter(expr string) error {
	return c.capture.SetFilter(expr)
}

// StartCapture starts capturing on iface.
func (c *Core) StartCapture(ctx context.Context, iface string) error {
	return c.capture.Start(ctx, iface)
}

// StopCapture ends the capture session.
func (c *Core) StopCapture() error {
	return c.capture.Stop()
}

// WritePcap writes the buffered frames to w as a pcap stream.
func (c *Core) WritePcap(w io.Writer) error {
	return c.capture.WritePcap(w)
}

// Latest returns the most recent snapshot or nil before the first publish.
func (c *Core) Latest() *telemetry.Snapshot {
	return c.bus.Latest()
}

// Subscribe yields the published snapshots until ctx is done or the core stops.
func (c *Core) Subscribe(ctx context.Context) iter.Seq[*telemetry.Snapshot] {
	return c.bus.Subscribe(ctx)
}
