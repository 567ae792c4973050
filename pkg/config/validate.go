// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/telekom/netops/internal/logger"
)

const (
	minPublishInterval = 10 * time.Millisecond
	maxRetryCount      = 5
)

var dnsName = regexp.MustCompile(`^[a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?)*$`)

// Validate validates the startup config
func (c *Config) Validate(ctx context.Context) (err error) {
	log := logger.FromContext(ctx)
	if c.Name != "" && !isDNSName(c.Name) {
		log.ErrorContext(ctx, "The name of the instance must be DNS compliant", "name", c.Name)
		err = errors.Join(err, ErrInvalidConfig{Field: "name", Reason: "must be DNS compliant"})
	}

	sections := []struct {
		name     string
		validate func() error
	}{
		{"probe", c.Probe.Validate},
		{"mtr", c.MTR.Validate},
		{"capture", c.Capture.Validate},
		{"telemetry", func() error { return c.Telemetry.Validate(ctx) }},
		{"api", c.Api.Validate},
		{"resolver", c.Resolver.Validate},
		{"loader", func() error { return c.Loader.Validate(ctx) }},
	}
	for _, s := range sections {
		if vErr := s.validate(); vErr != nil {
			log.ErrorContext(ctx, "The configuration section is invalid", "section", s.name, "error", vErr)
			err = errors.Join(err, vErr)
		}
	}

	if err != nil {
		return fmt.Errorf("validation of configuration failed: %w", err)
	}
	return nil
}

// Validate validates the telemetry configuration
func (c *TelemetryConfig) Validate(ctx context.Context) error {
	if c.PublishInterval < minPublishInterval {
		return ErrInvalidConfig{Field: "telemetry.publishInterval", Reason: "must be at least " + minPublishInterval.String()}
	}
	return c.Tracing.Validate(ctx)
}

// Validate validates the loader configuration
func (c *LoaderConfig) Validate(ctx context.Context) error {
	log := logger.FromContext(ctx)

	if c.Interval < 0 {
		log.ErrorContext(ctx, "The loader interval should be equal or above 0", "interval", c.Interval)
		return ErrInvalidLoaderInterval
	}

	switch c.Type {
	case "":
	case "http":
		if _, err := url.ParseRequestURI(c.Http.Url); err != nil {
			log.ErrorContext(ctx, "The loader http url is not a valid url", "url", c.Http.Url)
			return ErrInvalidLoaderHttpURL
		}
		if c.Http.RetryCfg.Count < 0 || c.Http.RetryCfg.Count > maxRetryCount {
			log.ErrorContext(ctx, "The amount of loader http retries should be between 0 and 5", "retryCount", c.Http.RetryCfg.Count)
			return ErrInvalidLoaderHttpRetryCount
		}
	case "file":
		if c.File.Path == "" {
			log.ErrorContext(ctx, "The loader file path cannot be empty")
			return ErrInvalidLoaderFilePath
		}
	default:
		log.ErrorContext(ctx, "The loader type is unknown", "type", c.Type)
		return ErrInvalidLoaderType
	}

	return nil
}

// isDNSName checks if the given string is a valid DNS name
func isDNSName(s string) bool {
	return len(s) <= 253 && dnsName.MatchString(s)
}
