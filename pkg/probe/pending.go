// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"slices"
	"time"
)

// Outstanding is a probe that was sent and awaits its outcome.
type Outstanding struct {
	Seq int
	// TTL is the IP TTL the probe was sent with.
	TTL int
	// Round is the MTR round the probe belongs to.
	Round    int
	Sent     time.Time
	Deadline time.Time
}

// Pending is the table of outstanding probes of one stream, keyed by sequence number.
// It is owned by a single goroutine and is not safe for concurrent use.
type Pending struct {
	probes map[int]Outstanding
}

// NewPending returns an empty table.
func NewPending() *Pending {
	return &Pending{probes: make(map[int]Outstanding)}
}

// Add inserts a probe. If a probe with the same sequence number is still
// outstanding after a wraparound, it is removed and returned so the caller
// can finalize it as lost.
func (p *Pending) Add(o Outstanding) (Outstanding, bool) {
	old, ok := p.probes[o.Seq]
	p.probes[o.Seq] = o
	return old, ok
}

// Take removes and returns the probe with the given sequence number.
func (p *Pending) Take(seq int) (Outstanding, bool) {
	o, ok := p.probes[seq]
	if ok {
		delete(p.probes, seq)
	}
	return o, ok
}

// Expired removes and returns all probes whose deadline is not after now,
// ordered by send time.
func (p *Pending) Expired(now time.Time) []Outstanding {
	var out []Outstanding
	for seq, o := range p.probes {
		if !o.Deadline.After(now) {
			out = append(out, o)
			delete(p.probes, seq)
		}
	}
	sortBySent(out)
	return out
}

// Drain removes and returns all probes ordered by send time.
func (p *Pending) Drain() []Outstanding {
	out := make([]Outstanding, 0, len(p.probes))
	for _, o := range p.probes {
		out = append(out, o)
	}
	clear(p.probes)
	sortBySent(out)
	return out
}

// NextDeadline returns the earliest deadline of all outstanding probes.
func (p *Pending) NextDeadline() (time.Time, bool) {
	var next time.Time
	for _, o := range p.probes {
		if next.IsZero() || o.Deadline.Before(next) {
			next = o.Deadline
		}
	}
	return next, !next.IsZero()
}

// Len returns the number of outstanding probes.
func (p *Pending) Len() int {
	return len(p.probes)
}

func sortBySent(probes []Outstanding) {
	slices.SortFunc(probes, func(a, b Outstanding) int {
		if c := a.Sent.Compare(b.Sent); c != 0 {
			return c
		}
		return a.Seq - b.Seq
	})
}

// Sequence generates 16 bit echo sequence numbers starting at 1.
type Sequence struct {
	next uint16
}

// Next returns the next sequence number, wrapping around after 65535.
func (s *Sequence) Next() int {
	s.next++
	return int(s.next)
}
