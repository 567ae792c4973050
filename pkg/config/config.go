// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"time"

	"github.com/telekom/netops/internal/helper"
	"github.com/telekom/netops/internal/resolve"
	"github.com/telekom/netops/pkg/api"
	"github.com/telekom/netops/pkg/capture"
	"github.com/telekom/netops/pkg/metrics"
	"github.com/telekom/netops/pkg/mtr"
	"github.com/telekom/netops/pkg/ping"
	"github.com/telekom/netops/pkg/telemetry"
)

// Config is the startup configuration of a netops instance.
type Config struct {
	// Name identifies the instance in metrics and traces
	Name string `yaml:"name" mapstructure:"name"`
	// Probe holds the defaults of new ping targets
	Probe ping.Options `yaml:"probe" mapstructure:"probe"`
	// MTR holds the defaults of new MTR sessions
	MTR mtr.Options `yaml:"mtr" mapstructure:"mtr"`
	// Capture configures the capture pipeline
	Capture capture.Options `yaml:"capture" mapstructure:"capture"`
	// Telemetry configures the snapshot bus and tracing
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
	// Api is the configuration for the api server
	Api api.Config `yaml:"api" mapstructure:"api"`
	// Resolver configures the reverse lookups of hop addresses
	Resolver resolve.Config `yaml:"resolver" mapstructure:"resolver"`
	// Loader is the configuration for the profile loader
	Loader LoaderConfig `yaml:"loader" mapstructure:"loader"`
}

// TelemetryConfig configures the telemetry bus.
type TelemetryConfig struct {
	// PublishInterval is the time between two snapshots
	PublishInterval time.Duration `yaml:"publishInterval" mapstructure:"publishInterval"`
	// Tracing configures the span exporter
	Tracing metrics.Config `yaml:"tracing" mapstructure:"tracing"`
}

// LoaderConfig is the configuration for loader
type LoaderConfig struct {
	// Type is either "file" or "http". Empty disables the loader.
	Type     string           `yaml:"type" mapstructure:"type"`
	Interval time.Duration    `yaml:"interval" mapstructure:"interval"`
	Http     HttpLoaderConfig `yaml:"http" mapstructure:"http"`
	File     FileLoaderConfig `yaml:"file" mapstructure:"file"`
}

// HttpLoaderConfig is the configuration for the http loader
type HttpLoaderConfig struct {
	Url      string             `yaml:"url" mapstructure:"url"`
	Token    string             `yaml:"token" mapstructure:"token"`
	Timeout  time.Duration      `yaml:"timeout" mapstructure:"timeout"`
	RetryCfg helper.RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// FileLoaderConfig is the configuration for the file loader
type FileLoaderConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// Default returns the configuration used for every option that is not set.
func Default() *Config {
	return &Config{
		Probe:     ping.DefaultOptions(),
		MTR:       mtr.DefaultOptions(),
		Capture:   capture.DefaultOptions(),
		Telemetry: TelemetryConfig{PublishInterval: telemetry.DefaultPublishInterval},
		Api:       api.Config{ListeningAddress: ":8080"},
	}
}

// HasLoader returns true if a profile loader is configured
func (c *Config) HasLoader() bool {
	return c.Loader.Type != ""
}

// HasAPI returns true if the api server is enabled
func (c *Config) HasAPI() bool {
	return c.Api.ListeningAddress != ""
}
