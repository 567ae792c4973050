// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/telekom/netops/pkg/capture"
	"github.com/telekom/netops/pkg/mtr"
	"github.com/telekom/netops/pkg/ping"
)

// Profile is the set of sessions a netops instance keeps running.
// Loaders deliver it periodically; sessions missing from a newer
// profile are stopped.
type Profile struct {
	Ping    []PingTarget    `json:"ping,omitempty" yaml:"ping,omitempty"`
	MTR     []MTRTarget     `json:"mtr,omitempty" yaml:"mtr,omitempty"`
	Capture *CaptureProfile `json:"capture,omitempty" yaml:"capture,omitempty"`
}

// PingTarget is a ping target of a profile. Zero options take the startup defaults.
type PingTarget struct {
	Host         string `json:"host" yaml:"host"`
	ping.Options `yaml:",inline"`
}

// Key identifies the target. A changed key restarts the target.
func (t PingTarget) Key() string {
	o := t.Options
	o.PayloadSize = nil
	return fmt.Sprintf("%s %+v payload:%s", t.Host, o, payloadKey(t.PayloadSize))
}

// MTRTarget is an MTR session of a profile.
type MTRTarget struct {
	Host        string `json:"host" yaml:"host"`
	mtr.Options `yaml:",inline"`
}

// Key identifies the session. A changed key restarts the session.
func (t MTRTarget) Key() string {
	o := t.Options
	o.PayloadSize = nil
	return fmt.Sprintf("%s %+v payload:%s", t.Host, o, payloadKey(t.PayloadSize))
}

// payloadKey formats an optional payload size by value.
func payloadKey(size *int) string {
	if size == nil {
		return "default"
	}
	return strconv.Itoa(*size)
}

// CaptureProfile selects the capture interface and filter.
type CaptureProfile struct {
	Interface string `json:"interface" yaml:"interface"`
	Filter    string `json:"filter,omitempty" yaml:"filter,omitempty"`
}

// Empty returns true if the profile requests no session at all.
func (p *Profile) Empty() bool {
	return len(p.Ping) == 0 && len(p.MTR) == 0 && p.Capture == nil
}

// Validate checks the profile before it is applied.
func (p *Profile) Validate() error {
	var errs []error
	for i, t := range p.Ping {
		if t.Host == "" {
			errs = append(errs, ErrInvalidConfig{Field: fmt.Sprintf("ping[%d].host", i), Reason: "must not be empty"})
		}
	}
	for i, t := range p.MTR {
		if t.Host == "" {
			errs = append(errs, ErrInvalidConfig{Field: fmt.Sprintf("mtr[%d].host", i), Reason: "must not be empty"})
		}
	}
	if p.Capture != nil {
		if p.Capture.Interface == "" {
			errs = append(errs, ErrInvalidConfig{Field: "capture.interface", Reason: "must not be empty"})
		}
		if _, err := capture.ParseFilter(p.Capture.Filter); err != nil {
			errs = append(errs, ErrInvalidConfig{Field: "capture.filter", Reason: err.Error()})
		}
	}
	return errors.Join(errs...)
}
