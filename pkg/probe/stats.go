// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"net/netip"
	"time"
)

// DefaultWindow is the number of samples kept when no window size is configured.
const DefaultWindow = 100

// Outcome is the final state of a single probe.
type Outcome int

const (
	// OutcomeReplied is a probe that was answered.
	OutcomeReplied Outcome = iota + 1
	// OutcomeTimeout is a probe whose deadline passed without an answer.
	OutcomeTimeout
	// OutcomeICMPError is a probe rejected with an ICMP error.
	OutcomeICMPError
	// OutcomeAbandoned is a probe that was outstanding when its stream stopped.
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReplied:
		return "replied"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeICMPError:
		return "icmp-error"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Sample is a finalized probe.
type Sample struct {
	Seq     int
	Outcome Outcome
	Sent    time.Time
	// RTT is only set for [OutcomeReplied].
	RTT time.Duration
	// From is the responder, if any.
	From netip.Addr
	// TTL is the IP TTL of the reply.
	TTL int
	// ICMPType and ICMPCode are set for [OutcomeICMPError].
	ICMPType int
	ICMPCode int
}

// ICMPError describes the most recent ICMP rejection of a stream.
type ICMPError struct {
	Type int        `json:"type" yaml:"type"`
	Code int        `json:"code" yaml:"code"`
	From netip.Addr `json:"from" yaml:"from"`
	At   time.Time  `json:"at" yaml:"at"`
}

// Stats is an immutable summary of a [Window].
// Durations are derived from the samples currently in the window.
type Stats struct {
	// Sent is the number of probes sent over the lifetime of the stream.
	Sent uint64 `json:"sent" yaml:"sent"`
	// Received is the number of replies over the lifetime of the stream.
	Received uint64 `json:"received" yaml:"received"`
	// Timeouts is the number of unanswered probes over the lifetime of the stream.
	Timeouts uint64 `json:"timeouts" yaml:"timeouts"`
	// ICMPErrors is the number of rejected probes over the lifetime of the stream.
	ICMPErrors uint64 `json:"icmpErrors" yaml:"icmpErrors"`
	// Abandoned is the number of probes outstanding when the stream stopped.
	Abandoned uint64 `json:"abandoned" yaml:"abandoned"`
	// Samples is the number of samples in the window.
	Samples int `json:"samples" yaml:"samples"`
	// Loss is the percentage of window samples that timed out or were rejected.
	Loss   float64       `json:"loss" yaml:"loss"`
	Last   time.Duration `json:"last" yaml:"last"`
	Min    time.Duration `json:"min" yaml:"min"`
	Avg    time.Duration `json:"avg" yaml:"avg"`
	Max    time.Duration `json:"max" yaml:"max"`
	Jitter time.Duration `json:"jitter" yaml:"jitter"`
	// ReplyTTL is the IP TTL of the most recent reply.
	ReplyTTL  int        `json:"replyTtl" yaml:"replyTtl"`
	LastError *ICMPError `json:"lastError,omitempty" yaml:"lastError,omitempty"`
	// History holds the RTT of every window sample, oldest first.
	// Lost probes appear as zero.
	History []time.Duration `json:"history" yaml:"history"`
}

// Window keeps the most recent samples of a probe stream.
// It is owned by a single goroutine and is not safe for concurrent use.
type Window struct {
	samples []Sample
	start   int
	size    int

	sent       uint64
	received   uint64
	timeouts   uint64
	icmpErrors uint64
	abandoned  uint64
	last       time.Duration
	replyTTL   int
	lastError  *ICMPError
}

// NewWindow returns a window holding up to capacity samples.
// A non-positive capacity selects [DefaultWindow].
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindow
	}
	return &Window{samples: make([]Sample, capacity)}
}

// MarkSent counts a probe that was handed to the transport.
func (w *Window) MarkSent() {
	w.sent++
}

// Add records a finalized probe, evicting the oldest sample once the window is full.
// Abandoned probes are counted but never enter the window.
func (w *Window) Add(s Sample) {
	switch s.Outcome {
	case OutcomeAbandoned:
		w.abandoned++
		return
	case OutcomeReplied:
		w.received++
		w.last = s.RTT
		w.replyTTL = s.TTL
	case OutcomeTimeout:
		w.timeouts++
	case OutcomeICMPError:
		w.icmpErrors++
		w.lastError = &ICMPError{Type: s.ICMPType, Code: s.ICMPCode, From: s.From, At: s.Sent.Add(s.RTT)}
	default:
		return
	}

	capacity := len(w.samples)
	if w.size < capacity {
		w.samples[(w.start+w.size)%capacity] = s
		w.size++
		return
	}
	w.samples[w.start] = s
	w.start = (w.start + 1) % capacity
}

// Len returns the number of samples in the window.
func (w *Window) Len() int {
	return w.size
}

// Samples returns the window samples, oldest first.
func (w *Window) Samples() []Sample {
	out := make([]Sample, w.size)
	for i := range w.size {
		out[i] = w.samples[(w.start+i)%len(w.samples)]
	}
	return out
}

// Stats computes the summary of the window.
func (w *Window) Stats() Stats {
	st := Stats{
		Sent:       w.sent,
		Received:   w.received,
		Timeouts:   w.timeouts,
		ICMPErrors: w.icmpErrors,
		Abandoned:  w.abandoned,
		Samples:    w.size,
		Last:       w.last,
		ReplyTTL:   w.replyTTL,
		History:    make([]time.Duration, 0, w.size),
	}
	if w.lastError != nil {
		e := *w.lastError
		st.LastError = &e
	}
	if w.size == 0 {
		return st
	}

	var (
		replied   int
		sum       time.Duration
		deltas    int
		deltaSum  time.Duration
		prev      time.Duration
		prevValid bool
	)
	for i := range w.size {
		s := w.samples[(w.start+i)%len(w.samples)]
		if s.Outcome != OutcomeReplied {
			st.History = append(st.History, 0)
			prevValid = false
			continue
		}
		st.History = append(st.History, s.RTT)

		if replied == 0 || s.RTT < st.Min {
			st.Min = s.RTT
		}
		if s.RTT > st.Max {
			st.Max = s.RTT
		}
		sum += s.RTT
		replied++

		if prevValid {
			deltaSum += absDuration(s.RTT - prev)
			deltas++
		}
		prev, prevValid = s.RTT, true
	}

	st.Loss = float64(w.size-replied) / float64(w.size) * 100
	if replied > 0 {
		st.Avg = sum / time.Duration(replied)
	}
	if deltas > 0 {
		st.Jitter = deltaSum / time.Duration(deltas)
	}
	return st
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
