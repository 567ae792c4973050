// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"net"
	"net/netip"
	"os"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

var _ packetConn = (*fakeConn)(nil)

// inbound is a message queued for [fakeConn.ReadFrom].
type inbound struct {
	b   []byte
	ttl int
	src net.Addr
}

// written is a message captured by [fakeConn.WriteTo].
type written struct {
	b   []byte
	ttl int
	dst net.Addr
}

// fakeConn is an in-memory [packetConn].
type fakeConn struct {
	in       chan inbound
	mu       sync.Mutex
	writes   []written
	deadline chan struct{}
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:       make(chan inbound, 16),
		deadline: make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
}

func (f *fakeConn) ReadFrom(b []byte) (n, ttl int, src net.Addr, err error) {
	select {
	case m := <-f.in:
		return copy(b, m.b), m.ttl, m.src, nil
	case <-f.deadline:
		return 0, 0, nil, os.ErrDeadlineExceeded
	case <-f.closed:
		return 0, 0, nil, net.ErrClosed
	}
}

func (f *fakeConn) WriteTo(b []byte, ttl int, dst net.Addr) (int, error) {
	select {
	case <-f.closed:
		return 0, net.ErrClosed
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, written{b: append([]byte(nil), b...), ttl: ttl, dst: dst})
	return len(b), nil
}

func (f *fakeConn) SetReadDeadline(t time.Time) error {
	if t.IsZero() {
		select {
		case <-f.deadline:
		default:
		}
		return nil
	}
	if !t.After(time.Now()) {
		select {
		case f.deadline <- struct{}{}:
		default:
		}
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) sent() []written {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]written(nil), f.writes...)
}

// echoReply builds an ICMP echo reply without IP header.
func echoReply(t *testing.T, id, seq int) []byte {
	t.Helper()
	b, err := (&icmp.Message{
		Type: ipv4.ICMPTypeEchoReply,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: []byte("netops")},
	}).Marshal(nil)
	if err != nil {
		t.Fatalf("failed to marshal echo reply: %v", err)
	}
	return b
}

// quotedEcho builds the original datagram quoted in ICMP errors.
func quotedEcho(t *testing.T, dst netip.Addr, id, seq int) []byte {
	t.Helper()
	echo, err := (&icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{ID: id, Seq: seq},
	}).Marshal(nil)
	if err != nil {
		t.Fatalf("failed to marshal echo request: %v", err)
	}
	hdr := &ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(echo),
		TTL:      1,
		Protocol: protocolICMP,
		Src:      net.IPv4(192, 168, 1, 10),
		Dst:      dst.AsSlice(),
	}
	h, err := hdr.Marshal()
	if err != nil {
		t.Fatalf("failed to marshal IP header: %v", err)
	}
	return append(h, echo...)
}

// timeExceeded builds an ICMP time exceeded message quoting an echo request.
func timeExceeded(t *testing.T, dst netip.Addr, id, seq int) []byte {
	t.Helper()
	b, err := (&icmp.Message{
		Type: ipv4.ICMPTypeTimeExceeded,
		Body: &icmp.TimeExceeded{Data: quotedEcho(t, dst, id, seq)},
	}).Marshal(nil)
	if err != nil {
		t.Fatalf("failed to marshal time exceeded: %v", err)
	}
	return b
}

// unreachable builds an ICMP destination unreachable message quoting an echo request.
func unreachable(t *testing.T, dst netip.Addr, code, id, seq int) []byte {
	t.Helper()
	b, err := (&icmp.Message{
		Type: ipv4.ICMPTypeDestinationUnreachable,
		Code: code,
		Body: &icmp.DstUnreach{Data: quotedEcho(t, dst, id, seq)},
	}).Marshal(nil)
	if err != nil {
		t.Fatalf("failed to marshal destination unreachable: %v", err)
	}
	return b
}
