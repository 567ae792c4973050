// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package ping

import (
	"context"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/telekom/netops/internal/logger"
	"github.com/telekom/netops/internal/transport"
	"github.com/telekom/netops/pkg/probe"
)

// Target is an immutable view of a ping target.
type Target struct {
	Handle probe.Handle `json:"handle" yaml:"handle"`
	// Host is the target as requested by the user.
	Host string `json:"host" yaml:"host"`
	// Addr is the resolved IPv4 address.
	Addr netip.Addr `json:"addr" yaml:"addr"`
	// Identifier is the echo identifier demultiplexing the target's replies.
	Identifier int         `json:"identifier" yaml:"identifier"`
	State      probe.State `json:"state" yaml:"state"`
	Options    Options     `json:"options" yaml:"options"`
	Started    time.Time   `json:"started" yaml:"started"`
	// Pending is the number of outstanding probes.
	Pending int         `json:"pending" yaml:"pending"`
	Stats   probe.Stats `json:"stats" yaml:"stats"`
}

// pinger is the scheduling loop of one target. All fields except view
// are owned by the goroutine running [pinger.run].
type pinger struct {
	handle  probe.Handle
	host    string
	addr    netip.Addr
	opts    Options
	started time.Time

	stream  *probe.Stream
	window  *probe.Window
	pending *probe.Pending
	seq     probe.Sequence
	payload []byte
	sent    int

	// outstanding is shared by all targets of a scheduler.
	outstanding *atomic.Int64
	view        atomic.Pointer[Target]
	cancel      context.CancelFunc
	done        chan struct{}
}

func newPinger(handle probe.Handle, host string, addr netip.Addr, opts Options, stream *probe.Stream, outstanding *atomic.Int64) *pinger {
	p := &pinger{
		handle:      handle,
		host:        host,
		addr:        addr,
		opts:        opts,
		started:     time.Now(),
		stream:      stream,
		window:      probe.NewWindow(opts.Window),
		pending:     probe.NewPending(),
		payload:     newPayload(opts.Payload()),
		outstanding: outstanding,
		done:        make(chan struct{}),
	}
	p.publish(probe.StateIdle)
	return p
}

// newPayload returns the echo data, a repeating byte pattern like the one of ping(8).
func newPayload(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

// run sends probes until ctx is done or the configured count is reached.
func (p *pinger) run(ctx context.Context) {
	defer close(p.done)
	defer p.stream.Close()
	log := logger.FromContext(ctx).With("target", p.host, "handle", p.handle.String())

	log.InfoContext(ctx, "Starting ping",
		"address", p.addr.String(),
		"interval", p.opts.Interval.String(),
		"payloadSize", p.opts.Payload(),
	)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	tick := ticker.C
	expiry := time.NewTimer(p.opts.Timeout())
	defer expiry.Stop()

	p.send(ctx)
	p.publish(probe.StateRunning)
	for {
		if next, ok := p.pending.NextDeadline(); ok {
			expiry.Reset(time.Until(next))
		} else {
			expiry.Stop()
		}

		select {
		case <-ctx.Done():
			p.abandon()
			p.publish(probe.StateStopped)
			log.InfoContext(ctx, "Ping stopped", "sent", p.sent)
			return
		case now := <-tick:
			p.expire(now)
			if p.exhausted() {
				ticker.Stop()
				tick = nil
				break
			}
			p.send(ctx)
		case now := <-expiry.C:
			p.expire(now)
		case r := <-p.stream.Replies():
			p.handleReply(ctx, r)
		}

		if p.exhausted() && p.pending.Len() == 0 {
			p.publish(probe.StateStopped)
			log.InfoContext(ctx, "Ping finished", "sent", p.sent)
			return
		}
		p.publish(probe.StateRunning)
	}
}

// exhausted reports whether the configured number of probes was sent.
func (p *pinger) exhausted() bool {
	return p.opts.Count > 0 && p.sent >= p.opts.Count
}

func (p *pinger) send(ctx context.Context) {
	log := logger.FromContext(ctx)
	seq := p.seq.Next()
	if old, ok := p.pending.Take(seq); ok {
		// The sequence number wrapped while the old probe was still outstanding.
		p.finalize(probe.Sample{Seq: old.Seq, Outcome: probe.OutcomeTimeout, Sent: old.Sent})
	}

	sent, err := p.stream.Send(ctx, transport.EchoRequest{
		Dst:     p.addr,
		Seq:     seq,
		TTL:     p.opts.TTL,
		Payload: p.payload,
	})
	p.sent++
	p.window.MarkSent()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.WarnContext(ctx, "Failed to send echo request", "seq", seq, "error", err)
		p.window.Add(probe.Sample{Seq: seq, Outcome: probe.OutcomeTimeout, Sent: time.Now()})
		return
	}

	p.pending.Add(probe.Outstanding{Seq: seq, Sent: sent, Deadline: sent.Add(p.opts.Timeout())})
	p.outstanding.Add(1)
}

func (p *pinger) handleReply(ctx context.Context, r transport.Reply) {
	o, ok := p.pending.Take(r.Seq)
	if !ok {
		p.stream.Unmatched()
		return
	}

	sample := probe.Sample{Seq: o.Seq, Sent: o.Sent, From: r.From, TTL: r.TTL}
	switch r.Kind {
	case transport.ReplyEcho:
		if r.From != p.addr {
			p.pending.Add(o)
			p.stream.Unmatched()
			return
		}
		sample.Outcome = probe.OutcomeReplied
		sample.RTT = max(r.Received.Sub(o.Sent), 0)
	case transport.ReplyTimeExceeded, transport.ReplyUnreachable:
		if r.Dst != p.addr {
			p.pending.Add(o)
			p.stream.Unmatched()
			return
		}
		sample.Outcome = probe.OutcomeICMPError
		sample.RTT = max(r.Received.Sub(o.Sent), 0)
		sample.ICMPType = r.Type
		sample.ICMPCode = r.Code
		logger.FromContext(ctx).DebugContext(ctx, "Echo request rejected",
			"seq", o.Seq, "from", r.From.String(), "kind", r.Kind.String(), "code", r.Code)
	default:
		p.pending.Add(o)
		p.stream.Unmatched()
		return
	}
	p.finalize(sample)
}

// expire finalizes all probes whose deadline passed as lost.
func (p *pinger) expire(now time.Time) {
	for _, o := range p.pending.Expired(now) {
		p.finalize(probe.Sample{Seq: o.Seq, Outcome: probe.OutcomeTimeout, Sent: o.Sent})
	}
}

// abandon finalizes all outstanding probes without counting them as lost.
func (p *pinger) abandon() {
	for _, o := range p.pending.Drain() {
		p.finalize(probe.Sample{Seq: o.Seq, Outcome: probe.OutcomeAbandoned, Sent: o.Sent})
	}
}

func (p *pinger) finalize(s probe.Sample) {
	p.outstanding.Add(-1)
	p.window.Add(s)
}

func (p *pinger) publish(state probe.State) {
	p.view.Store(&Target{
		Handle:     p.handle,
		Host:       p.host,
		Addr:       p.addr,
		Identifier: p.stream.ID,
		State:      state,
		Options:    p.opts,
		Started:    p.started,
		Pending:    p.pending.Len(),
		Stats:      p.window.Stats(),
	})
}
