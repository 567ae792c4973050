// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/telekom/netops/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const serviceName = "netops"

// Span batching of the exporting tracer provider.
const (
	batchTimeout = 5 * time.Second
	maxQueueSize = 1000
	maxBatchSize = 100
)

var _ Provider = (*manager)(nil)

type Provider interface {
	// GetRegistry returns the prometheus registry holding the process,
	// instance and session collectors
	GetRegistry() *prometheus.Registry
	// InitTracing installs the global OpenTelemetry tracer provider
	InitTracing(ctx context.Context) error
	// Shutdown flushes and stops the tracer provider
	Shutdown(ctx context.Context) error
}

// Identity names the running instance in exported metrics and spans.
type Identity struct {
	// Instance is the DNS name or host name of the instance
	Instance string
	// Version is the build version
	Version string
}

type manager struct {
	config   Config
	identity Identity
	registry *prometheus.Registry
	tp       *sdktrace.TracerProvider
}

// New creates a registry with the Go and process collectors and the
// netops_instance_info metric of id.
func New(config Config, id Identity) Provider {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	// The registry is fresh, so this cannot collide.
	_ = RegisterInstanceInfo(registry, id.Instance, id.Version)

	return &manager{
		config:   config,
		identity: id,
		registry: registry,
	}
}

func (m *manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// InitTracing creates the configured exporter and installs a tracer provider
// whose spans carry the instance identity as resource.
func (m *manager) InitTracing(ctx context.Context) error {
	log := logger.FromContext(ctx).With("instance", m.identity.Instance)

	res, err := newResource(ctx, m.identity)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create resource", "error", err)
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := m.config.Exporter.Create(ctx, &m.config)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create exporter", "error", err)
		return fmt.Errorf("failed to create exporter: %w", err)
	}

	m.tp = sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(m.config.sampleRatio()))),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(batchTimeout),
			sdktrace.WithMaxQueueSize(maxQueueSize),
			sdktrace.WithMaxExportBatchSize(maxBatchSize),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(m.tp)
	log.DebugContext(ctx, "Tracing initialized", "exporter", m.config.Exporter, "sampleRatio", m.config.sampleRatio())
	return nil
}

// newResource describes the instance: service name and version, the
// instance name as service.instance.id and the detected host and runtime.
func newResource(ctx context.Context, id Identity) (*resource.Resource, error) {
	attrs := []resource.Option{
		resource.WithHost(),
		resource.WithProcessRuntimeName(),
		resource.WithProcessRuntimeVersion(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	}
	if id.Version != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersionKey.String(id.Version)))
	}
	if id.Instance != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceInstanceIDKey.String(id.Instance)))
	}
	return resource.New(ctx, attrs...)
}

// Shutdown flushes pending spans. It is a no-op if tracing was never initialized.
func (m *manager) Shutdown(ctx context.Context) error {
	if m.tp == nil {
		return nil
	}
	log := logger.FromContext(ctx)
	if err := m.tp.Shutdown(ctx); err != nil {
		log.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	log.DebugContext(ctx, "Tracing shutdown")
	return nil
}
