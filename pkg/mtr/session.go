// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package mtr

import (
	"context"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/telekom/netops/internal/logger"
	"github.com/telekom/netops/internal/transport"
	"github.com/telekom/netops/pkg/probe"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// silentAfter is the number of consecutive unanswered rounds after which a hop is reported silent.
const silentAfter = 3

// hop is the mutable state of one TTL, owned by the session loop.
type hop struct {
	ttl     int
	addr    netip.Addr
	name    string
	window  *probe.Window
	noReply int
}

// round tracks the probes of one round.
type round struct {
	n           int
	nextTTL     int
	sending     bool
	outstanding int
	span        trace.Span
}

// nameResult is the outcome of a reverse lookup, delivered to the session loop.
type nameResult struct {
	addr netip.Addr
	name string
}

// session is the round-driving loop of one MTR target. All fields except
// view are owned by the goroutine running [session.run].
type session struct {
	handle   probe.Handle
	host     string
	addr     netip.Addr
	opts     Options
	started  time.Time
	resolver Resolver
	tracer   trace.Tracer

	stream  *probe.Stream
	pending *probe.Pending
	seq     probe.Sequence
	payload []byte

	// hops is indexed by TTL-1; entries are created on the first finalized probe.
	hops []*hop
	// terminal is the lowest TTL at which the destination answered, 0 if unknown.
	terminal  int
	current   *round
	// due is set by a round tick that arrived while the current round was still sending.
	due       bool
	active    map[int]*round
	rounds    int
	completed int

	names     chan nameResult
	requested map[netip.Addr]bool
	resolved  map[netip.Addr]string

	view   atomic.Pointer[Table]
	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(handle probe.Handle, host string, addr netip.Addr, opts Options, stream *probe.Stream, resolver Resolver, tracer trace.Tracer) *session {
	s := &session{
		handle:    handle,
		host:      host,
		addr:      addr,
		opts:      opts,
		started:   time.Now(),
		resolver:  resolver,
		tracer:    tracer,
		stream:    stream,
		pending:   probe.NewPending(),
		payload:   make([]byte, opts.Payload()),
		hops:      make([]*hop, opts.MaxTTL),
		active:    make(map[int]*round),
		names:     make(chan nameResult, opts.MaxTTL),
		requested: make(map[netip.Addr]bool),
		resolved:  make(map[netip.Addr]string),
		cancel:    func() {},
		done:      make(chan struct{}),
	}
	s.publish(probe.StateIdle)
	return s
}

// run drives rounds until ctx is done or the configured number of rounds completed.
func (s *session) run(ctx context.Context) {
	defer close(s.done)
	defer s.stream.Close()
	defer s.cancel()
	log := logger.FromContext(ctx).With("target", s.host, "handle", s.handle.String())

	log.InfoContext(ctx, "Starting mtr",
		"address", s.addr.String(),
		"maxTTL", s.opts.MaxTTL,
		"roundInterval", s.opts.RoundInterval.String(),
	)

	ticker := time.NewTicker(s.opts.RoundInterval)
	defer ticker.Stop()
	tick := ticker.C
	pace := time.NewTimer(s.opts.ProbeGap)
	pace.Stop()
	defer pace.Stop()
	expiry := time.NewTimer(s.opts.Timeout())
	defer expiry.Stop()

	s.startRound(ctx)
	s.sendNext(ctx, pace)
	s.publish(probe.StateRunning)
	for {
		if next, ok := s.pending.NextDeadline(); ok {
			expiry.Reset(time.Until(next))
		} else {
			expiry.Stop()
		}

		select {
		case <-ctx.Done():
			s.abandon()
			s.publish(probe.StateStopped)
			log.InfoContext(ctx, "Mtr stopped", "rounds", s.rounds)
			return
		case now := <-tick:
			s.expire(now)
			if s.opts.Rounds > 0 && s.rounds >= s.opts.Rounds {
				ticker.Stop()
				tick = nil
				break
			}
			s.due = true
		case <-pace.C:
			s.sendNext(ctx, pace)
		case now := <-expiry.C:
			s.expire(now)
		case r := <-s.stream.Replies():
			s.handleReply(ctx, r)
		case n := <-s.names:
			s.applyName(n)
		}

		if s.due && !s.sending() {
			s.due = false
			s.startRound(ctx)
			s.sendNext(ctx, pace)
		}

		if s.finished() {
			s.publish(probe.StateStopped)
			log.InfoContext(ctx, "Mtr finished", "rounds", s.rounds, "terminal", s.terminal)
			return
		}
		s.publish(probe.StateRunning)
	}
}

// finished reports whether all configured rounds completed.
func (s *session) finished() bool {
	return s.opts.Rounds > 0 && s.rounds >= s.opts.Rounds && len(s.active) == 0
}

// sending reports whether the current round still has TTLs to probe.
func (s *session) sending() bool {
	return s.current != nil && s.current.sending
}

// startRound begins the next round. The current round must be done sending.
func (s *session) startRound(ctx context.Context) {
	s.rounds++
	_, span := s.tracer.Start(ctx, "mtr.round", trace.WithAttributes(
		attribute.String("target", s.host),
		attribute.Int("round", s.rounds),
	))
	r := &round{n: s.rounds, nextTTL: 1, sending: true, span: span}
	s.active[r.n] = r
	s.current = r
}

// limit is the highest TTL worth probing.
func (s *session) limit() int {
	if s.terminal > 0 {
		return s.terminal
	}
	return s.opts.MaxTTL
}

// sendNext sends the next probe of the current round and arms the pace timer.
func (s *session) sendNext(ctx context.Context, pace *time.Timer) {
	r := s.current
	if r == nil || !r.sending {
		return
	}
	if r.nextTTL > s.limit() {
		s.stopSending(r)
		return
	}
	ttl := r.nextTTL
	r.nextTTL++
	s.send(ctx, r, ttl)
	pace.Reset(s.opts.ProbeGap)
}

func (s *session) stopSending(r *round) {
	r.sending = false
	s.maybeComplete(r)
}

func (s *session) maybeComplete(r *round) {
	if r.sending || r.outstanding > 0 {
		return
	}
	r.span.SetAttributes(attribute.Int("terminal", s.terminal))
	r.span.End()
	delete(s.active, r.n)
	s.completed++
}

func (s *session) send(ctx context.Context, r *round, ttl int) {
	seq := s.seq.Next()
	if old, ok := s.pending.Take(seq); ok {
		s.finalize(old, probe.Sample{Seq: old.Seq, Outcome: probe.OutcomeTimeout, Sent: old.Sent})
	}

	sent, err := s.stream.Send(ctx, transport.EchoRequest{
		Dst:     s.addr,
		Seq:     seq,
		TTL:     ttl,
		Payload: s.payload,
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.FromContext(ctx).WarnContext(ctx, "Failed to send probe", "ttl", ttl, "error", err)
		s.record(ttl, probe.Sample{Seq: seq, Outcome: probe.OutcomeTimeout, Sent: time.Now()})
		return
	}

	s.pending.Add(probe.Outstanding{
		Seq:      seq,
		TTL:      ttl,
		Round:    r.n,
		Sent:     sent,
		Deadline: sent.Add(s.opts.Timeout()),
	})
	r.outstanding++
}

func (s *session) handleReply(ctx context.Context, r transport.Reply) {
	o, ok := s.pending.Take(r.Seq)
	if !ok {
		s.stream.Unmatched()
		return
	}
	if r.Dst != s.addr {
		s.pending.Add(o)
		s.stream.Unmatched()
		return
	}

	sample := probe.Sample{
		Seq:  o.Seq,
		Sent: o.Sent,
		From: r.From,
		TTL:  r.TTL,
		RTT:  max(r.Received.Sub(o.Sent), 0),
	}
	switch r.Kind {
	case transport.ReplyEcho, transport.ReplyTimeExceeded:
		sample.Outcome = probe.OutcomeReplied
	case transport.ReplyUnreachable:
		sample.Outcome = probe.OutcomeICMPError
		sample.ICMPType = r.Type
		sample.ICMPCode = r.Code
	default:
		s.pending.Add(o)
		s.stream.Unmatched()
		return
	}

	if rd, ok := s.active[o.Round]; ok {
		rd.span.AddEvent("hop", trace.WithAttributes(
			attribute.Int("ttl", o.TTL),
			attribute.String("from", r.From.String()),
			attribute.String("kind", r.Kind.String()),
			attribute.Int64("rttMicros", sample.RTT.Microseconds()),
		))
	}

	if r.From == s.addr {
		s.markTerminal(o.TTL)
		if s.current != nil && s.current.n == o.Round && s.current.sending {
			s.stopSending(s.current)
		}
	}
	s.finalize(o, sample)
	s.requestName(ctx, r.From)
}

// markTerminal records that the destination answered at ttl and
// removes any hop above it.
func (s *session) markTerminal(ttl int) {
	if s.terminal != 0 && ttl >= s.terminal {
		return
	}
	s.terminal = ttl
	for i := ttl; i < len(s.hops); i++ {
		s.hops[i] = nil
	}
}

// finalize accounts a probe to its round and records the sample on its hop.
func (s *session) finalize(o probe.Outstanding, sample probe.Sample) {
	s.record(o.TTL, sample)
	if r, ok := s.active[o.Round]; ok {
		r.outstanding--
		s.maybeComplete(r)
	}
}

// record adds a sample to the hop at ttl. Samples above the terminal hop are discarded.
func (s *session) record(ttl int, sample probe.Sample) {
	if ttl < 1 || ttl > len(s.hops) || (s.terminal > 0 && ttl > s.terminal) {
		return
	}
	h := s.hops[ttl-1]
	if h == nil {
		if sample.Outcome == probe.OutcomeAbandoned {
			return
		}
		h = &hop{ttl: ttl, window: probe.NewWindow(s.opts.Window)}
		s.hops[ttl-1] = h
	}

	h.window.MarkSent()
	h.window.Add(sample)
	switch sample.Outcome {
	case probe.OutcomeReplied, probe.OutcomeICMPError:
		h.noReply = 0
	case probe.OutcomeTimeout:
		h.noReply++
	}
	if sample.From.IsValid() && sample.From != h.addr {
		h.addr = sample.From
		h.name = s.resolved[sample.From]
	}
}

func (s *session) expire(now time.Time) {
	for _, o := range s.pending.Expired(now) {
		s.finalize(o, probe.Sample{Seq: o.Seq, Outcome: probe.OutcomeTimeout, Sent: o.Sent})
	}
}

func (s *session) abandon() {
	for _, o := range s.pending.Drain() {
		s.finalize(o, probe.Sample{Seq: o.Seq, Outcome: probe.OutcomeAbandoned, Sent: o.Sent})
	}
	for _, r := range s.active {
		r.span.End()
	}
	clear(s.active)
}

// requestName starts a reverse lookup of addr unless one was already requested.
func (s *session) requestName(ctx context.Context, addr netip.Addr) {
	if s.resolver == nil || !addr.IsValid() || s.requested[addr] {
		return
	}
	s.requested[addr] = true
	go func() {
		name, err := s.resolver.LookupAddr(ctx, addr)
		if err != nil {
			logger.FromContext(ctx).DebugContext(ctx, "Reverse lookup failed", "address", addr.String(), "error", err)
			return
		}
		select {
		case s.names <- nameResult{addr: addr, name: name}:
		case <-ctx.Done():
		}
	}()
}

func (s *session) applyName(n nameResult) {
	s.resolved[n.addr] = n.name
	for _, h := range s.hops {
		if h != nil && h.addr == n.addr {
			h.name = n.name
		}
	}
}

func (s *session) publish(state probe.State) {
	t := &Table{
		Handle:     s.handle,
		Host:       s.host,
		Addr:       s.addr,
		Identifier: s.stream.ID,
		State:      state,
		Options:    s.opts,
		Started:    s.started,
		Rounds:     s.rounds,
		Completed:  s.completed,
		Reached:    s.terminal > 0,
		Hops:       make([]Hop, 0, s.limit()),
	}
	for _, h := range s.hops[:s.limit()] {
		if h == nil {
			continue
		}
		t.Hops = append(t.Hops, Hop{
			TTL:      h.ttl,
			Addr:     h.addr,
			Name:     h.name,
			Terminal: h.ttl == s.terminal,
			Silent:   h.noReply >= silentAfter,
			NoReply:  h.noReply,
			Stats:    h.window.Stats(),
		})
	}
	s.view.Store(t)
}
