// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"slices"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"
)

// Exporter is the name of a span exporter
type Exporter string

const (
	// NOOP discards all spans
	NOOP Exporter = ""
	// STDOUT writes spans to stdout
	STDOUT Exporter = "stdout"
	// GRPC exports spans over otlp/grpc
	GRPC Exporter = "grpc"
	// HTTP exports spans over otlp/http
	HTTP Exporter = "http"
)

var exporters = []Exporter{NOOP, STDOUT, GRPC, HTTP}

func (e Exporter) String() string {
	if e == NOOP {
		return "noop"
	}
	return string(e)
}

// Validate checks that the exporter is known
func (e Exporter) Validate() error {
	if !slices.Contains(exporters, e) {
		return fmt.Errorf("unsupported exporter %q", string(e))
	}
	return nil
}

// IsExporting reports whether spans leave the process
func (e Exporter) IsExporting() bool {
	return e == GRPC || e == HTTP
}

// Create builds the span exporter
func (e Exporter) Create(ctx context.Context, config *Config) (sdktrace.SpanExporter, error) {
	switch e {
	case NOOP:
		return noopExporter{}, nil
	case STDOUT:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case GRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpointURL(config.Url)}
		if config.Token != "" {
			opts = append(opts, otlptracegrpc.WithHeaders(authHeader(config.Token)))
		}
		if config.TLS.Enabled {
			tlsCfg, err := tlsConfig(config.TLS)
			if err != nil {
				return nil, err
			}
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(tlsCfg)))
		} else {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	case HTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(config.Url)}
		if config.Token != "" {
			opts = append(opts, otlptracehttp.WithHeaders(authHeader(config.Token)))
		}
		if config.TLS.Enabled {
			tlsCfg, err := tlsConfig(config.TLS)
			if err != nil {
				return nil, err
			}
			opts = append(opts, otlptracehttp.WithTLSClientConfig(tlsCfg))
		} else {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	return nil, e.Validate()
}

func authHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func tlsConfig(c TLSConfig) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if c.CertPath == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(c.CertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", c.CertPath)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// noopExporter drops spans.
type noopExporter struct{}

func (noopExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (noopExporter) Shutdown(context.Context) error                             { return nil }
