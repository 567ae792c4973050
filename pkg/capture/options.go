// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"errors"
	"fmt"
)

const (
	// DefaultSnapLen is the number of bytes kept of every frame.
	DefaultSnapLen = 65535
	// DefaultQueue is the number of frames waiting for the decoder.
	DefaultQueue = 256

	minSnapLen = 64
	maxSnapLen = 262144
)

// Options configure the capture pipeline.
type Options struct {
	// Capacity is the number of packets kept in the buffer.
	Capacity int `json:"capacity" yaml:"capacity" mapstructure:"capacity"`
	// SnapLen truncates captured frames to this many bytes.
	SnapLen int `json:"snapLen" yaml:"snapLen" mapstructure:"snapLen"`
	// Queue is the number of frames buffered between reader and decoder.
	// Frames arriving while the queue is full are counted as overruns.
	Queue int `json:"queue" yaml:"queue" mapstructure:"queue"`
	// Promiscuous enables promiscuous mode on the interface.
	Promiscuous bool `json:"promiscuous" yaml:"promiscuous" mapstructure:"promiscuous"`
}

// DefaultOptions returns the options used when nothing else is configured.
func DefaultOptions() Options {
	return Options{
		Capacity: DefaultCapacity,
		SnapLen:  DefaultSnapLen,
		Queue:    DefaultQueue,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Capacity == 0 {
		o.Capacity = def.Capacity
	}
	if o.SnapLen == 0 {
		o.SnapLen = def.SnapLen
	}
	if o.Queue == 0 {
		o.Queue = def.Queue
	}
	return o
}

// Validate checks the options for plausibility.
func (o Options) Validate() error {
	var errs []error
	if o.Capacity < 1 {
		errs = append(errs, ErrInvalidOptions{Field: "capacity", Reason: "must be at least 1"})
	}
	if o.SnapLen < minSnapLen || o.SnapLen > maxSnapLen {
		errs = append(errs, ErrInvalidOptions{Field: "snapLen", Reason: fmt.Sprintf("must be between %d and %d", minSnapLen, maxSnapLen)})
	}
	if o.Queue < 1 {
		errs = append(errs, ErrInvalidOptions{Field: "queue", Reason: "must be at least 1"})
	}
	return errors.Join(errs...)
}

// ErrInvalidOptions is returned for implausible capture options.
type ErrInvalidOptions struct {
	Field  string
	Reason string
}

func (e ErrInvalidOptions) Error() string {
	return "invalid capture option " + e.Field + ": " + e.Reason
}
