// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package ping

import (
	"errors"
	"time"

	"github.com/telekom/netops/internal/helper"
	"github.com/telekom/netops/pkg/probe"
)

const (
	// maxPayloadSize keeps echo requests within a single IPv4 datagram.
	maxPayloadSize = 65507
	// defaultPayloadSize matches ping(8).
	defaultPayloadSize = 56
	// minInterval is the lowest supported probe interval.
	minInterval = 10 * time.Millisecond
)

// Options configure a ping target. Zero fields take the scheduler defaults.
type Options struct {
	// Interval is the time between two echo requests.
	Interval time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`
	// PayloadSize is the number of data bytes in each echo request.
	// Nil takes the default, 0 sends echo requests without data.
	PayloadSize *int `json:"payloadSize,omitempty" yaml:"payloadSize,omitempty" mapstructure:"payloadSize"`
	// TimeoutMultiplier times the interval is the time after which a probe counts as lost.
	TimeoutMultiplier int `json:"timeoutMultiplier" yaml:"timeoutMultiplier" mapstructure:"timeoutMultiplier"`
	// Window is the number of samples the statistics are computed over.
	Window int `json:"window" yaml:"window" mapstructure:"window"`
	// Count stops the target after that many probes. 0 pings until stopped.
	Count int `json:"count,omitempty" yaml:"count,omitempty" mapstructure:"count"`
	// TTL is the IP TTL of the echo requests. 0 uses the system default.
	TTL int `json:"ttl,omitempty" yaml:"ttl,omitempty" mapstructure:"ttl"`
}

// DefaultOptions returns the options used when nothing else is configured.
func DefaultOptions() Options {
	return Options{
		Interval:          time.Second,
		PayloadSize:       helper.Ptr(defaultPayloadSize),
		TimeoutMultiplier: 3,
		Window:            probe.DefaultWindow,
	}
}

// Payload returns the payload size in bytes.
func (o Options) Payload() int {
	if o.PayloadSize == nil {
		return 0
	}
	return *o.PayloadSize
}

// Timeout is the time after which an unanswered probe is finalized as lost.
func (o Options) Timeout() time.Duration {
	return time.Duration(o.TimeoutMultiplier) * o.Interval
}

// withDefaults fills zero fields from def.
func (o Options) withDefaults(def Options) Options {
	if o.Interval == 0 {
		o.Interval = def.Interval
	}
	if o.PayloadSize == nil {
		o.PayloadSize = def.PayloadSize
	}
	if o.TimeoutMultiplier == 0 {
		o.TimeoutMultiplier = def.TimeoutMultiplier
	}
	if o.Window == 0 {
		o.Window = def.Window
	}
	return o
}

// Validate checks the options for plausibility.
func (o Options) Validate() error {
	var errs []error
	if o.Interval < minInterval {
		errs = append(errs, ErrInvalidOptions{Field: "interval", Reason: "must be at least " + minInterval.String()})
	}
	if o.Payload() < 0 || o.Payload() > maxPayloadSize {
		errs = append(errs, ErrInvalidOptions{Field: "payloadSize", Reason: "must be between 0 and 65507"})
	}
	if o.TimeoutMultiplier < 1 {
		errs = append(errs, ErrInvalidOptions{Field: "timeoutMultiplier", Reason: "must be at least 1"})
	}
	if o.Window < 1 {
		errs = append(errs, ErrInvalidOptions{Field: "window", Reason: "must be at least 1"})
	}
	if o.Count < 0 {
		errs = append(errs, ErrInvalidOptions{Field: "count", Reason: "must not be negative"})
	}
	if o.TTL < 0 || o.TTL > 255 {
		errs = append(errs, ErrInvalidOptions{Field: "ttl", Reason: "must be between 0 and 255"})
	}
	return errors.Join(errs...)
}

// ErrInvalidOptions is returned for implausible ping options.
type ErrInvalidOptions struct {
	Field  string
	Reason string
}

func (e ErrInvalidOptions) Error() string {
	return "invalid ping option " + e.Field + ": " + e.Reason
}
