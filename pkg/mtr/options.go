// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package mtr

import (
	"errors"
	"fmt"
	"time"

	"github.com/telekom/netops/internal/helper"
	"github.com/telekom/netops/pkg/probe"
)

const (
	// DefaultMaxTTL is the highest TTL probed when nothing else is configured.
	DefaultMaxTTL      = 30
	defaultPayloadSize = 56
	// maxTTLLimit is the highest TTL an IPv4 header can carry.
	maxTTLLimit    = 255
	minRoundPeriod = 10 * time.Millisecond
)

// Options configure an MTR session. Zero fields take the engine defaults.
type Options struct {
	// MaxTTL is the highest TTL probed per round.
	MaxTTL int `json:"maxTTL" yaml:"maxTTL" mapstructure:"maxTTL"`
	// RoundInterval is the time between the starts of two rounds.
	RoundInterval time.Duration `json:"roundInterval" yaml:"roundInterval" mapstructure:"roundInterval"`
	// ProbeGap is the pause between two probes of a round.
	ProbeGap time.Duration `json:"probeGap" yaml:"probeGap" mapstructure:"probeGap"`
	// TimeoutMultiplier times the round interval is the time after which a probe counts as lost.
	TimeoutMultiplier int `json:"timeoutMultiplier" yaml:"timeoutMultiplier" mapstructure:"timeoutMultiplier"`
	// Window is the number of samples kept per hop.
	Window int `json:"window" yaml:"window" mapstructure:"window"`
	// Rounds stops the session after that many rounds. 0 runs until stopped.
	Rounds int `json:"rounds,omitempty" yaml:"rounds,omitempty" mapstructure:"rounds"`
	// PayloadSize is the number of data bytes in each echo request.
	// Nil takes the default, 0 sends echo requests without data.
	PayloadSize *int `json:"payloadSize,omitempty" yaml:"payloadSize,omitempty" mapstructure:"payloadSize"`
}

// DefaultOptions returns the options used when nothing else is configured.
func DefaultOptions() Options {
	return Options{
		MaxTTL:            DefaultMaxTTL,
		RoundInterval:     time.Second,
		ProbeGap:          25 * time.Millisecond,
		TimeoutMultiplier: 3,
		Window:            probe.DefaultWindow,
		PayloadSize:       helper.Ptr(defaultPayloadSize),
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
	return time.Duration(o.TimeoutMultiplier) * o.RoundInterval
}

func (o Options) withDefaults(def Options) Options {
	if o.MaxTTL == 0 {
		o.MaxTTL = def.MaxTTL
	}
	if o.RoundInterval == 0 {
		o.RoundInterval = def.RoundInterval
	}
	if o.ProbeGap == 0 {
		o.ProbeGap = def.ProbeGap
	}
	if o.TimeoutMultiplier == 0 {
		o.TimeoutMultiplier = def.TimeoutMultiplier
	}
	if o.Window == 0 {
		o.Window = def.Window
	}
	if o.PayloadSize == nil {
		o.PayloadSize = def.PayloadSize
	}
	return o
}

// Validate checks the options for plausibility.
func (o Options) Validate() error {
	var errs []error
	if o.MaxTTL < 1 || o.MaxTTL > maxTTLLimit {
		errs = append(errs, ErrInvalidOptions{Field: "maxTTL", Reason: fmt.Sprintf("must be between 1 and %d", maxTTLLimit)})
	}
	if o.RoundInterval < minRoundPeriod {
		errs = append(errs, ErrInvalidOptions{Field: "roundInterval", Reason: "must be at least " + minRoundPeriod.String()})
	}
	if o.ProbeGap < 0 {
		errs = append(errs, ErrInvalidOptions{Field: "probeGap", Reason: "must not be negative"})
	}
	if o.TimeoutMultiplier < 1 {
		errs = append(errs, ErrInvalidOptions{Field: "timeoutMultiplier", Reason: "must be at least 1"})
	}
	if o.Window < 1 {
		errs = append(errs, ErrInvalidOptions{Field: "window", Reason: "must be at least 1"})
	}
	if o.Rounds < 0 {
		errs = append(errs, ErrInvalidOptions{Field: "rounds", Reason: "must not be negative"})
	}
	if o.Payload() < 0 {
		errs = append(errs, ErrInvalidOptions{Field: "payloadSize", Reason: "must not be negative"})
	}
	return errors.Join(errs...)
}

// ErrInvalidOptions is returned for implausible MTR options.
type ErrInvalidOptions struct {
	Field  string
	Reason string
}

func (e ErrInvalidOptions) Error() string {
	return "invalid mtr option " + e.Field + ": " + e.Reason
}
