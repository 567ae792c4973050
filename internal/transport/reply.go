// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// ReplyKind classifies a received ICMP message that belongs to an echo request.
type ReplyKind int

const (
	// ReplyEcho is an echo reply from the probed destination.
	ReplyEcho ReplyKind = iota + 1
	// ReplyTimeExceeded is a time exceeded message from a router on the path.
	ReplyTimeExceeded
	// ReplyUnreachable is a destination unreachable message.
	ReplyUnreachable
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyEcho:
		return "echo-reply"
	case ReplyTimeExceeded:
		return "time-exceeded"
	case ReplyUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// ICMP codes for Destination Unreachable messages.
// For more information, see:
// https://www.iana.org/assignments/icmp-parameters/icmp-parameters.xhtml#icmp-parameters-codes-3
const (
	// ICMPUnreachableNet is the code for "Net Unreachable".
	ICMPUnreachableNet = 0
	// ICMPUnreachableHost is the code for "Host Unreachable".
	ICMPUnreachableHost = 1
	// ICMPUnreachableProtocol is the code for "Protocol Unreachable".
	ICMPUnreachableProtocol = 2
	// ICMPUnreachablePort is the code for "Port Unreachable".
	ICMPUnreachablePort = 3
)

const (
	// protocolICMP is the IANA protocol number of ICMPv4.
	protocolICMP = 1
	// echoHeaderLen is the length of an ICMP echo header (type, code, checksum, id, seq).
	echoHeaderLen = 8
)

// Reply is an ICMP message correlated to one of our echo requests
// by its identifier and sequence number.
type Reply struct {
	// Kind is the class of the reply.
	Kind ReplyKind
	// Type and Code are the raw ICMP type and code of the message.
	Type int
	Code int
	// From is the address of the host that sent the message.
	From netip.Addr
	// Dst is the destination of the original echo request.
	// For echo replies it is the same as From.
	Dst netip.Addr
	// ID and Seq are the identifier and sequence number of the original echo request.
	ID  int
	Seq int
	// TTL is the IP TTL of the received message, 0 if unknown.
	TTL int
	// Received is the time the message was read from the socket.
	Received time.Time
}

// parseReply decodes an ICMP message without its IP header.
// It returns [errNotEchoRelated] for messages that do not answer an echo request.
func parseReply(src net.Addr, b []byte, ttl int, received time.Time) (Reply, error) {
	msg, err := icmp.ParseMessage(protocolICMP, b)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to parse ICMP message: %w", err)
	}

	from := addrFromNet(src)
	reply := Reply{
		Code:     msg.Code,
		From:     from,
		TTL:      ttl,
		Received: received,
	}
	if t, ok := msg.Type.(ipv4.ICMPType); ok {
		reply.Type = int(t)
	}

	var quoted []byte
	switch msg.Type {
	case ipv4.ICMPTypeEchoReply:
		echo, ok := msg.Body.(*icmp.Echo)
		if !ok {
			return Reply{}, fmt.Errorf("unexpected echo reply body: %T", msg.Body)
		}
		reply.Kind = ReplyEcho
		reply.Dst = from
		reply.ID = echo.ID
		reply.Seq = echo.Seq
		return reply, nil
	case ipv4.ICMPTypeTimeExceeded:
		body, ok := msg.Body.(*icmp.TimeExceeded)
		if !ok {
			return Reply{}, fmt.Errorf("unexpected time exceeded body: %T", msg.Body)
		}
		reply.Kind = ReplyTimeExceeded
		quoted = body.Data
	case ipv4.ICMPTypeDestinationUnreachable:
		body, ok := msg.Body.(*icmp.DstUnreach)
		if !ok {
			return Reply{}, fmt.Errorf("unexpected destination unreachable body: %T", msg.Body)
		}
		reply.Kind = ReplyUnreachable
		quoted = body.Data
	default:
		return Reply{}, errNotEchoRelated
	}

	dst, id, seq, err := parseQuotedEcho(quoted)
	if err != nil {
		return Reply{}, err
	}
	reply.Dst = dst
	reply.ID = id
	reply.Seq = seq
	return reply, nil
}

// parseQuotedEcho extracts the destination, identifier and sequence number
// from the original datagram quoted in an ICMP error message.
func parseQuotedEcho(b []byte) (dst netip.Addr, id, seq int, err error) {
	hdr, err := ipv4.ParseHeader(b)
	if err != nil {
		return netip.Addr{}, 0, 0, fmt.Errorf("failed to parse quoted IP header: %w", err)
	}
	if hdr.Protocol != protocolICMP {
		return netip.Addr{}, 0, 0, errNotEchoRelated
	}
	if hdr.Len > len(b) {
		return netip.Addr{}, 0, 0, fmt.Errorf("quoted IP header too long: %d > %d bytes", hdr.Len, len(b))
	}

	inner := b[hdr.Len:]
	if len(inner) < echoHeaderLen {
		return netip.Addr{}, 0, 0, fmt.Errorf("quoted ICMP header too short: %d bytes", len(inner))
	}
	if inner[0] != byte(ipv4.ICMPTypeEcho) {
		return netip.Addr{}, 0, 0, errNotEchoRelated
	}

	dst, ok := netip.AddrFromSlice(hdr.Dst.To4())
	if !ok {
		return netip.Addr{}, 0, 0, fmt.Errorf("invalid quoted destination: %v", hdr.Dst)
	}
	id = int(binary.BigEndian.Uint16(inner[4:6]))
	seq = int(binary.BigEndian.Uint16(inner[6:8]))
	return dst, id, seq, nil
}

// addrFromNet extracts the IP address from a [net.Addr].
func addrFromNet(addr net.Addr) netip.Addr {
	var ip net.IP
	switch a := addr.(type) {
	case *net.IPAddr:
		ip = a.IP
	case *net.UDPAddr:
		ip = a.IP
	case *net.TCPAddr:
		ip = a.IP
	default:
		return netip.Addr{}
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	a, _ := netip.AddrFromSlice(ip)
	return a
}
