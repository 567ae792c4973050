// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package api serves the telemetry snapshots and the session controls over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/telekom/netops/internal/logger"
	"github.com/telekom/netops/pkg/mtr"
	"github.com/telekom/netops/pkg/ping"
	"github.com/telekom/netops/pkg/probe"
	"github.com/telekom/netops/pkg/telemetry"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
	writeWait         = 5 * time.Second
)

// Controller is the part of the core the api drives.
type Controller interface {
	StartPingWithOptions(ctx context.Context, host string, opts ping.Options) (probe.Handle, error)
	StartMTRWithOptions(ctx context.Context, host string, opts mtr.Options) (probe.Handle, error)
	Stop(handle probe.Handle) error
	SetCaptureFilter(expr string) error
	StartCapture(ctx context.Context, iface string) error
	StopCapture() error
	WritePcap(w io.Writer) error
	Latest() *telemetry.Snapshot
	Subscribe(ctx context.Context) iter.Seq[*telemetry.Snapshot]
}

// API is the http server of a netops instance.
type API struct {
	cfg      Config
	ctrl     Controller
	registry *prometheus.Registry
	version  string
	upgrader websocket.Upgrader
	server   *http.Server
	done     chan struct{}
}

// New creates the api. The registry is served on /metrics.
func New(cfg Config, ctrl Controller, registry *prometheus.Registry, version string) *API {
	return &API{
		cfg:      cfg,
		ctrl:     ctrl,
		registry: registry,
		version:  version,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		server: &http.Server{
			Addr:              cfg.ListeningAddress,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		done: make(chan struct{}, 1),
	}
}

// Run serves the api until ctx is done or [API.Shutdown] is called.
func (a *API) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)

	a.server.Handler = a.handler(ctx)
	a.server.BaseContext = func(net.Listener) context.Context { return ctx }

	cErr := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "Serving api", "address", a.cfg.ListeningAddress)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorContext(ctx, "Failed to serve api", "error", err)
			cErr <- fmt.Errorf("failed serving api: %w", err)
			return
		}
		cErr <- nil
	}()

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.Shutdown(sctx); err != nil {
			return err
		}
		return <-cErr
	case <-a.done:
		return <-cErr
	case err := <-cErr:
		return err
	}
}

// Shutdown gracefully stops the server. Open snapshot streams end with the bus.
func (a *API) Shutdown(ctx context.Context) error {
	select {
	case a.done <- struct{}{}:
	default:
	}
	if err := a.server.Shutdown(ctx); err != nil {
		logger.FromContext(ctx).ErrorContext(ctx, "Failed to shutdown api server", "error", err)
		return fmt.Errorf("failed shutting down api server: %w", err)
	}
	return nil
}

// handler builds the routes.
func (a *API) handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(logger.Middleware(ctx))
	r.Use(middleware.Recoverer)

	r.Get("/openapi", a.getOpenapi)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/snapshot", a.getSnapshot)
		r.Get("/snapshot/stream", a.streamSnapshots)

		r.Post("/ping", a.startPing)
		r.Post("/mtr", a.startMTR)
		r.Delete("/sessions/{id}", a.stopSession)

		r.Post("/capture", a.startCapture)
		r.Delete("/capture", a.stopCapture)
		r.Put("/capture/filter", a.setFilter)
		r.Get("/capture/pcap", a.getPcap)
	})
	return r
}
