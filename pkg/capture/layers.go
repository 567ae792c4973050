// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"encoding/json"
	"net"
	"net/netip"

	"github.com/google/gopacket/layers"
)

// LayerKind enumerates the protocol layers the decoder understands.
type LayerKind uint8

const (
	KindEthernet LayerKind = iota + 1
	KindARP
	KindIPv4
	KindIPv6
	KindTCP
	KindUDP
	KindICMPv4
	KindICMPv6
	// KindPayload holds the bytes no decoder interpreted.
	KindPayload
)

var kindNames = map[LayerKind]string{
	KindEthernet: "ethernet",
	KindARP:      "arp",
	KindIPv4:     "ipv4",
	KindIPv6:     "ipv6",
	KindTCP:      "tcp",
	KindUDP:      "udp",
	KindICMPv4:   "icmp",
	KindICMPv6:   "icmpv6",
	KindPayload:  "payload",
}

func (k LayerKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements [encoding.TextMarshaler].
func (k LayerKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Layer is one decoded protocol layer. The set of implementations is closed;
// consumers switch on the concrete type or on [Layer.Kind].
type Layer interface {
	Kind() LayerKind
	layer()
}

// Ethernet is a decoded Ethernet II header.
type Ethernet struct {
	Src       net.HardwareAddr    `json:"src"`
	Dst       net.HardwareAddr    `json:"dst"`
	EtherType layers.EthernetType `json:"etherType"`
}

// ARP is a decoded IPv4 over Ethernet ARP message.
type ARP struct {
	Operation uint16           `json:"operation"`
	SenderMAC net.HardwareAddr `json:"senderMac"`
	SenderIP  netip.Addr       `json:"senderIp"`
	TargetMAC net.HardwareAddr `json:"targetMac"`
	TargetIP  netip.Addr       `json:"targetIp"`
}

// IPv4 is a decoded IPv4 header.
type IPv4 struct {
	Src      netip.Addr        `json:"src"`
	Dst      netip.Addr        `json:"dst"`
	TTL      uint8             `json:"ttl"`
	Protocol layers.IPProtocol `json:"protocol"`
	Length   uint16            `json:"length"`
	ID       uint16            `json:"id"`
	// Fragment is set for every fragment but the first.
	Fragment bool `json:"fragment"`
}

// IPv6 is a decoded IPv6 header.
type IPv6 struct {
	Src        netip.Addr        `json:"src"`
	Dst        netip.Addr        `json:"dst"`
	HopLimit   uint8             `json:"hopLimit"`
	NextHeader layers.IPProtocol `json:"nextHeader"`
	Length     uint16            `json:"length"`
	FlowLabel  uint32            `json:"flowLabel"`
}

// TCP is a decoded TCP header.
type TCP struct {
	SrcPort uint16 `json:"srcPort"`
	DstPort uint16 `json:"dstPort"`
	Seq     uint32 `json:"seq"`
	Ack     uint32 `json:"ack"`
	Window  uint16 `json:"window"`
	SYN     bool   `json:"syn"`
	ACK     bool   `json:"ackFlag"`
	FIN     bool   `json:"fin"`
	RST     bool   `json:"rst"`
	PSH     bool   `json:"psh"`
}

// UDP is a decoded UDP header.
type UDP struct {
	SrcPort uint16 `json:"srcPort"`
	DstPort uint16 `json:"dstPort"`
	Length  uint16 `json:"length"`
}

// ICMP is a decoded ICMPv4 or ICMPv6 header.
type ICMP struct {
	V6   bool  `json:"v6"`
	Type uint8 `json:"type"`
	Code uint8 `json:"code"`
	// ID and Seq are only meaningful for echo messages.
	ID  uint16 `json:"id"`
	Seq uint16 `json:"seq"`
}

// Payload holds the bytes following the last interpreted layer.
type Payload struct {
	Data []byte `json:"data"`
}

func (*Ethernet) Kind() LayerKind { return KindEthernet }
func (*ARP) Kind() LayerKind      { return KindARP }
func (*IPv4) Kind() LayerKind     { return KindIPv4 }
func (*IPv6) Kind() LayerKind     { return KindIPv6 }
func (*TCP) Kind() LayerKind      { return KindTCP }
func (*UDP) Kind() LayerKind      { return KindUDP }
func (*Payload) Kind() LayerKind  { return KindPayload }

func (l *ICMP) Kind() LayerKind {
	if l.V6 {
		return KindICMPv6
	}
	return KindICMPv4
}

func (*Ethernet) layer() {}
func (*ARP) layer()      {}
func (*IPv4) layer()     {}
func (*IPv6) layer()     {}
func (*TCP) layer()      {}
func (*UDP) layer()      {}
func (*ICMP) layer()     {}
func (*Payload) layer()  {}

// Layers is a decoded layer chain in wire order.
type Layers []Layer

// MarshalJSON encodes every layer together with its kind.
func (ls Layers) MarshalJSON() ([]byte, error) {
	type tagged struct {
		Kind   LayerKind `json:"kind"`
		Fields Layer     `json:"fields"`
	}
	out := make([]tagged, len(ls))
	for i, l := range ls {
		out[i] = tagged{Kind: l.Kind(), Fields: l}
	}
	return json.Marshal(out)
}
