// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Packet is a captured frame with its decoded layer chain.
// Packets are never modified once they were buffered.
type Packet struct {
	// Seq is the arrival number of the frame within the pipeline.
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	// Length is the original length of the frame on the wire.
	Length int `json:"length"`
	// Data holds the captured bytes.
	Data   []byte `json:"-"`
	Layers Layers `json:"layers"`
	// Matched is the result of the filter active when the frame arrived.
	Matched bool `json:"matched"`

	kinds   uint16
	src     netip.Addr
	dst     netip.Addr
	sport   uint16
	dport   uint16
	isPorts bool
}

// newPacket builds a packet and indexes the fields the filter evaluates.
func newPacket(seq uint64, ts time.Time, length int, data []byte, chain Layers) *Packet {
	p := &Packet{Seq: seq, Timestamp: ts, Length: length, Data: data, Layers: chain}
	for _, l := range chain {
		p.kinds |= 1 << l.Kind()
		switch l := l.(type) {
		case *IPv4:
			if !p.src.IsValid() {
				p.src, p.dst = l.Src, l.Dst
			}
		case *IPv6:
			if !p.src.IsValid() {
				p.src, p.dst = l.Src, l.Dst
			}
		case *ARP:
			if !p.src.IsValid() {
				p.src, p.dst = l.SenderIP, l.TargetIP
			}
		case *TCP:
			p.sport, p.dport, p.isPorts = l.SrcPort, l.DstPort, true
		case *UDP:
			p.sport, p.dport, p.isPorts = l.SrcPort, l.DstPort, true
		}
	}
	return p
}

// Has reports whether the packet contains a layer of the given kind.
func (p *Packet) Has(kind LayerKind) bool {
	return p.kinds&(1<<kind) != 0
}

// Src returns the network source address, if any.
func (p *Packet) Src() netip.Addr {
	return p.src
}

// Dst returns the network destination address, if any.
func (p *Packet) Dst() netip.Addr {
	return p.dst
}

// Ports returns the transport ports, if the packet carries TCP or UDP.
func (p *Packet) Ports() (src, dst uint16, ok bool) {
	return p.sport, p.dport, p.isPorts
}

// Protocol returns the innermost interpreted layer kind.
func (p *Packet) Protocol() LayerKind {
	for i := len(p.Layers) - 1; i >= 0; i-- {
		if k := p.Layers[i].Kind(); k != KindPayload {
			return k
		}
	}
	return KindPayload
}

// Info returns a one line summary of the packet.
func (p *Packet) Info() string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(p.Protocol().String()))
	for _, l := range p.Layers {
		switch l := l.(type) {
		case *ARP:
			if l.Operation == 1 {
				fmt.Fprintf(&b, " who has %s? tell %s", l.TargetIP, l.SenderIP)
			} else {
				fmt.Fprintf(&b, " %s is at %s", l.SenderIP, l.SenderMAC)
			}
		case *TCP:
			fmt.Fprintf(&b, " %s -> %s [%s] seq=%d ack=%d win=%d",
				hostPort(p.src, l.SrcPort), hostPort(p.dst, l.DstPort), tcpFlags(l), l.Seq, l.Ack, l.Window)
		case *UDP:
			fmt.Fprintf(&b, " %s -> %s len=%d", hostPort(p.src, l.SrcPort), hostPort(p.dst, l.DstPort), l.Length)
		case *ICMP:
			fmt.Fprintf(&b, " %s -> %s type=%d code=%d", p.src, p.dst, l.Type, l.Code)
		}
	}
	fmt.Fprintf(&b, " (%d bytes)", p.Length)
	return b.String()
}

func hostPort(addr netip.Addr, port uint16) string {
	if !addr.IsValid() {
		return fmt.Sprintf(":%d", port)
	}
	return netip.AddrPortFrom(addr, port).String()
}

func tcpFlags(l *TCP) string {
	var flags []string
	for _, f := range []struct {
		set  bool
		name string
	}{{l.SYN, "SYN"}, {l.ACK, "ACK"}, {l.FIN, "FIN"}, {l.RST, "RST"}, {l.PSH, "PSH"}} {
		if f.set {
			flags = append(flags, f.name)
		}
	}
	return strings.Join(flags, ",")
}
