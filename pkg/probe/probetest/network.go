// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package probetest provides an in-memory network for testing probe streams.
package probetest

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/telekom/netops/internal/transport"
	"github.com/telekom/netops/pkg/probe"
)

var _ probe.Transport = (*Network)(nil)

// Hop is a router or destination on a simulated path.
type Hop struct {
	// Addr is the address the hop answers from.
	Addr netip.Addr
	// Delay is the round-trip time of the hop.
	Delay time.Duration
	// Delays, if set, overrides Delay with Delays[seq%len(Delays)].
	Delays []time.Duration
	// Silent hops never answer.
	Silent bool
	// Unreachable hops answer with ICMP host unreachable.
	Unreachable bool
	// Drop reports whether the probe with the given sequence number is lost.
	Drop func(seq int) bool
}

// Path describes how echo requests to one destination are answered.
// A probe with TTL n <= len(Routers) expires at Routers[n-1];
// any higher TTL reaches the destination.
type Path struct {
	Routers     []Hop
	Destination Hop
}

// Network is a [probe.Transport] that answers echo requests according to the configured paths.
// Destinations without a path never answer.
type Network struct {
	mu      sync.Mutex
	paths   map[netip.Addr]Path
	sent    []transport.EchoRequest
	replies chan transport.Reply
	sendErr error
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{
		paths:   make(map[netip.Addr]Path),
		replies: make(chan transport.Reply, 1024),
	}
}

// SetPath configures the path to dst.
func (n *Network) SetPath(dst netip.Addr, p Path) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !p.Destination.Addr.IsValid() {
		p.Destination.Addr = dst
	}
	n.paths[dst] = p
}

// FailSends makes every following send fail with err. A nil err restores sending.
func (n *Network) FailSends(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sendErr = err
}

// Inject delivers a reply as if it was read from the socket.
func (n *Network) Inject(r transport.Reply) {
	if r.Received.IsZero() {
		r.Received = time.Now()
	}
	n.replies <- r
}

// Sent returns all echo requests sent so far.
func (n *Network) Sent() []transport.EchoRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]transport.EchoRequest(nil), n.sent...)
}

// SendEcho implements [probe.Transport].
func (n *Network) SendEcho(ctx context.Context, req transport.EchoRequest) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return time.Time{}, n.sendErr
	}
	n.sent = append(n.sent, req)
	sent := time.Now()

	path, ok := n.paths[req.Dst]
	if !ok {
		return sent, nil
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = 64
	}

	hop, reply := path.Destination, transport.Reply{Kind: transport.ReplyEcho, Type: 0}
	if ttl <= len(path.Routers) {
		hop, reply = path.Routers[ttl-1], transport.Reply{Kind: transport.ReplyTimeExceeded, Type: 11}
	}
	if hop.Silent || (hop.Drop != nil && hop.Drop(req.Seq)) {
		return sent, nil
	}
	if hop.Unreachable {
		reply = transport.Reply{Kind: transport.ReplyUnreachable, Type: 3, Code: transport.ICMPUnreachableHost}
	}
	reply.From = hop.Addr
	reply.Dst = req.Dst
	reply.ID = req.ID
	reply.Seq = req.Seq
	reply.TTL = 64 - ttl

	delay := hop.Delay
	if len(hop.Delays) > 0 {
		delay = hop.Delays[req.Seq%len(hop.Delays)]
	}
	reply.Received = sent.Add(delay)
	time.AfterFunc(delay, func() { n.replies <- reply })
	return sent, nil
}

// Receive implements [probe.Transport].
func (n *Network) Receive(ctx context.Context) (transport.Reply, error) {
	select {
	case <-ctx.Done():
		return transport.Reply{}, ctx.Err()
	case r := <-n.replies:
		return r, nil
	}
}
