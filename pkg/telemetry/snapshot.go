// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"time"

	"github.com/telekom/netops/internal/transport"
	"github.com/telekom/netops/pkg/capture"
	"github.com/telekom/netops/pkg/mtr"
	"github.com/telekom/netops/pkg/ping"
	"github.com/telekom/netops/pkg/probe"
)

// Snapshot is a consistent, read-only view of all tools at one publish tick.
// A published snapshot is never modified; every tick builds a new one.
type Snapshot struct {
	// Generation increases by one with every published snapshot.
	Generation uint64    `json:"generation" yaml:"generation"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
	// Ping holds the ping targets ordered by start time.
	Ping []ping.Target `json:"ping" yaml:"ping"`
	// MTR holds the hop tables ordered by start time.
	MTR       []mtr.Table       `json:"mtr" yaml:"mtr"`
	Capture   capture.State     `json:"capture" yaml:"capture"`
	Transport transport.State   `json:"transport" yaml:"transport"`
	Router    probe.RouterStats `json:"router" yaml:"router"`
}

// PingTarget returns the ping target with the given handle.
func (s *Snapshot) PingTarget(handle probe.Handle) (ping.Target, bool) {
	for _, t := range s.Ping {
		if t.Handle == handle {
			return t, true
		}
	}
	return ping.Target{}, false
}

// MTRTable returns the hop table with the given handle.
func (s *Snapshot) MTRTable(handle probe.Handle) (mtr.Table, bool) {
	for _, t := range s.MTR {
		if t.Handle == handle {
			return t, true
		}
	}
	return mtr.Table{}, false
}
