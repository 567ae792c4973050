// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrMalformedFrame is returned when a layer announced by its predecessor cannot be decoded.
type ErrMalformedFrame struct {
	Layer LayerKind
	Err   error
}

func (e *ErrMalformedFrame) Error() string {
	return fmt.Sprintf("malformed %s layer: %v", e.Layer, e.Err)
}

func (e *ErrMalformedFrame) Unwrap() error {
	return e.Err
}

// decoder parses one layer and names the kind of the next one.
// A zero next kind ends decoding; the rest is kept as payload.
type decoder func(data []byte) (l Layer, next LayerKind, rest []byte, err error)

// decoders is the transition table of the layer chain.
var decoders = map[LayerKind]decoder{
	KindEthernet: decodeEthernet,
	KindARP:      decodeARP,
	KindIPv4:     decodeIPv4,
	KindIPv6:     decodeIPv6,
	KindTCP:      decodeTCP,
	KindUDP:      decodeUDP,
	KindICMPv4:   decodeICMPv4,
	KindICMPv6:   decodeICMPv6,
}

var (
	etherNext = map[layers.EthernetType]LayerKind{
		layers.EthernetTypeIPv4: KindIPv4,
		layers.EthernetTypeIPv6: KindIPv6,
		layers.EthernetTypeARP:  KindARP,
	}
	ipv4Next = map[layers.IPProtocol]LayerKind{
		layers.IPProtocolTCP:    KindTCP,
		layers.IPProtocolUDP:    KindUDP,
		layers.IPProtocolICMPv4: KindICMPv4,
	}
	ipv6Next = map[layers.IPProtocol]LayerKind{
		layers.IPProtocolTCP:    KindTCP,
		layers.IPProtocolUDP:    KindUDP,
		layers.IPProtocolICMPv6: KindICMPv6,
	}
)

// firstLayer returns the kind of the outermost layer of a frame.
func firstLayer(link layers.LinkType, data []byte) LayerKind {
	switch link {
	case layers.LinkTypeEthernet:
		return KindEthernet
	case layers.LinkTypeRaw, layers.LinkTypeIPv4, layers.LinkTypeIPv6:
		if len(data) == 0 {
			return KindIPv4
		}
		if data[0]>>4 == 6 {
			return KindIPv6
		}
		return KindIPv4
	default:
		return 0
	}
}

// Decode walks the transition table starting at first. Bytes following the
// last interpreted layer are appended as a [Payload] layer.
func Decode(first LayerKind, data []byte) (Layers, error) {
	var (
		chain = make(Layers, 0, 4)
		kind  = first
		rest  = data
	)
	for kind != 0 {
		dec, ok := decoders[kind]
		if !ok {
			break
		}
		l, next, payload, err := dec(rest)
		if err != nil {
			return chain, &ErrMalformedFrame{Layer: kind, Err: err}
		}
		chain = append(chain, l)
		kind, rest = next, payload
	}
	if len(rest) > 0 {
		chain = append(chain, &Payload{Data: rest})
	}
	return chain, nil
}

func decodeEthernet(data []byte) (Layer, LayerKind, []byte, error) {
	var eth layers.Ethernet
	if err := eth.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, 0, nil, err
	}
	l := &Ethernet{Src: eth.SrcMAC, Dst: eth.DstMAC, EtherType: eth.EthernetType}
	return l, etherNext[eth.EthernetType], eth.Payload, nil
}

func decodeARP(data []byte) (Layer, LayerKind, []byte, error) {
	var arp layers.ARP
	if err := arp.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, 0, nil, err
	}
	l := &ARP{
		Operation: arp.Operation,
		SenderMAC: net.HardwareAddr(arp.SourceHwAddress),
		SenderIP:  addrFromSlice(arp.SourceProtAddress),
		TargetMAC: net.HardwareAddr(arp.DstHwAddress),
		TargetIP:  addrFromSlice(arp.DstProtAddress),
	}
	return l, 0, nil, nil
}

func decodeIPv4(data []byte) (Layer, LayerKind, []byte, error) {
	var ip layers.IPv4
	if err := ip.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, 0, nil, err
	}
	l := &IPv4{
		Src:      addrFromSlice(ip.SrcIP),
		Dst:      addrFromSlice(ip.DstIP),
		TTL:      ip.TTL,
		Protocol: ip.Protocol,
		Length:   ip.Length,
		ID:       ip.Id,
		Fragment: ip.FragOffset != 0,
	}
	if l.Fragment {
		return l, 0, ip.Payload, nil
	}
	return l, ipv4Next[ip.Protocol], ip.Payload, nil
}

func decodeIPv6(data []byte) (Layer, LayerKind, []byte, error) {
	var ip layers.IPv6
	if err := ip.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, 0, nil, err
	}
	l := &IPv6{
		Src:        addrFromSlice(ip.SrcIP),
		Dst:        addrFromSlice(ip.DstIP),
		HopLimit:   ip.HopLimit,
		NextHeader: ip.NextHeader,
		Length:     ip.Length,
		FlowLabel:  ip.FlowLabel,
	}
	return l, ipv6Next[ip.NextHeader], ip.Payload, nil
}

func decodeTCP(data []byte) (Layer, LayerKind, []byte, error) {
	var tcp layers.TCP
	if err := tcp.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, 0, nil, err
	}
	l := &TCP{
		SrcPort: uint16(tcp.SrcPort),
		DstPort: uint16(tcp.DstPort),
		Seq:     tcp.Seq,
		Ack:     tcp.Ack,
		Window:  tcp.Window,
		SYN:     tcp.SYN,
		ACK:     tcp.ACK,
		FIN:     tcp.FIN,
		RST:     tcp.RST,
		PSH:     tcp.PSH,
	}
	return l, 0, tcp.Payload, nil
}

func decodeUDP(data []byte) (Layer, LayerKind, []byte, error) {
	var udp layers.UDP
	if err := udp.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, 0, nil, err
	}
	l := &UDP{SrcPort: uint16(udp.SrcPort), DstPort: uint16(udp.DstPort), Length: udp.Length}
	return l, 0, udp.Payload, nil
}

func decodeICMPv4(data []byte) (Layer, LayerKind, []byte, error) {
	var icmp layers.ICMPv4
	if err := icmp.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, 0, nil, err
	}
	l := &ICMP{Type: icmp.TypeCode.Type(), Code: icmp.TypeCode.Code(), ID: icmp.Id, Seq: icmp.Seq}
	return l, 0, icmp.Payload, nil
}

func decodeICMPv6(data []byte) (Layer, LayerKind, []byte, error) {
	var icmp layers.ICMPv6
	if err := icmp.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, 0, nil, err
	}
	l := &ICMP{V6: true, Type: icmp.TypeCode.Type(), Code: icmp.TypeCode.Code()}
	return l, 0, icmp.Payload, nil
}

func addrFromSlice(b []byte) netip.Addr {
	a, _ := netip.AddrFromSlice(b)
	return a.Unmap()
}
