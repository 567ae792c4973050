// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/telekom/netops/internal/logger"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	// defaultTTL is the TTL used for echo requests without an explicit TTL.
	defaultTTL = 64
	// mtuSize is the read buffer size for incoming ICMP messages.
	mtuSize = 1500
)

// packetConn is the subset of an IPv4 ICMP socket used by [Socket].
type packetConn interface {
	// ReadFrom reads an ICMP message without its IP header
	// and reports the TTL of the received datagram if available.
	ReadFrom(b []byte) (n, ttl int, src net.Addr, err error)
	// WriteTo writes an ICMP message with the given IP TTL.
	WriteTo(b []byte, ttl int, dst net.Addr) (int, error)
	// SetReadDeadline sets the deadline for pending and future reads.
	SetReadDeadline(t time.Time) error
	Close() error
}

// rawConn adapts an [icmp.PacketConn] to [packetConn].
type rawConn struct {
	conn *icmp.PacketConn
	p4   *ipv4.PacketConn
}

// listenRaw opens the raw ICMP socket.
// It returns [ErrPermissionDenied] if the process lacks NET_RAW capabilities.
func listenRaw() (packetConn, error) {
	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		if isPermissionError(err) {
			return nil, ErrPermissionDenied
		}
		return nil, fmt.Errorf("failed to open ICMP socket: %w", err)
	}

	p4 := conn.IPv4PacketConn()
	// Without the control message the reply TTL is reported as 0.
	_ = p4.SetControlMessage(ipv4.FlagTTL, true)
	return &rawConn{conn: conn, p4: p4}, nil
}

func (c *rawConn) ReadFrom(b []byte) (n, ttl int, src net.Addr, err error) {
	n, cm, src, err := c.p4.ReadFrom(b)
	if cm != nil {
		ttl = cm.TTL
	}
	return n, ttl, src, err
}

func (c *rawConn) WriteTo(b []byte, ttl int, dst net.Addr) (int, error) {
	if err := c.p4.SetTTL(ttl); err != nil {
		return 0, fmt.Errorf("failed to set TTL to %d: %w", ttl, err)
	}
	return c.conn.WriteTo(b, dst)
}

func (c *rawConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *rawConn) Close() error {
	return c.conn.Close()
}

// EchoRequest describes a single ICMP echo request.
type EchoRequest struct {
	// Dst is the IPv4 destination.
	Dst netip.Addr
	// ID is the echo identifier of the probe stream.
	ID int
	// Seq is the echo sequence number.
	Seq int
	// TTL is the IP TTL; 0 selects the default.
	TTL int
	// Payload is the echo data.
	Payload []byte
}

// Socket is the raw ICMP socket shared by all probe streams.
// Writes are serialized so the TTL of one request never leaks into another.
// Reads must be performed by a single goroutine.
type Socket struct {
	conn packetConn
	// mu guards the TTL and write pair.
	mu  sync.Mutex
	buf []byte
}

func newSocket(conn packetConn) *Socket {
	return &Socket{conn: conn, buf: make([]byte, mtuSize)}
}

// SendEcho writes an echo request and returns the time it was handed to the kernel.
func (s *Socket) SendEcho(ctx context.Context, req EchoRequest) (time.Time, error) {
	if !req.Dst.Is4() {
		return time.Time{}, ErrUnsupportedFamily
	}
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   req.ID & 0xffff,
			Seq:  req.Seq & 0xffff,
			Data: req.Payload,
		},
	}
	b, err := msg.Marshal(nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to marshal echo request: %w", err)
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sent := time.Now()
	if _, err = s.conn.WriteTo(b, ttl, &net.IPAddr{IP: req.Dst.AsSlice()}); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return time.Time{}, ErrClosed
		}
		return time.Time{}, fmt.Errorf("failed to send echo request to %s: %w", req.Dst, err)
	}
	return sent, nil
}

// Receive blocks until an ICMP message answering an echo request arrives
// or the context is done. Unrelated ICMP traffic is skipped.
// Cancelling the context unblocks the read but keeps the socket open.
func (s *Socket) Receive(ctx context.Context) (Reply, error) {
	log := logger.FromContext(ctx)
	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		return Reply{}, s.readError(ctx, err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return Reply{}, err
		}

		n, ttl, src, err := s.conn.ReadFrom(s.buf)
		received := time.Now()
		if err != nil {
			return Reply{}, s.readError(ctx, err)
		}

		reply, err := parseReply(src, s.buf[:n], ttl, received)
		if err != nil {
			if !errors.Is(err, errNotEchoRelated) {
				log.DebugContext(ctx, "Discarding undecodable ICMP message", "from", src, "error", err)
			}
			continue
		}
		return reply, nil
	}
}

func (s *Socket) readError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("failed to read from ICMP socket: %w", err)
}

func (s *Socket) close() error {
	return s.conn.Close()
}
