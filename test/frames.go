// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package test

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Hardware addresses used by the frame builders.
var (
	LocalMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	RemoteMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Frame is a raw Ethernet frame with its capture metadata.
type Frame struct {
	Data []byte
	Info gopacket.CaptureInfo
}

// TCPFrame returns an Ethernet/IPv4/TCP frame carrying payload.
func TCPFrame(t testing.TB, src, dst string, sport, dport uint16, payload []byte) Frame {
	t.Helper()
	ip := ipv4(t, src, dst, layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: layers.TCPPort(sport), DstPort: layers.TCPPort(dport), Seq: 1, SYN: true, Window: 64240}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("failed to set network layer: %v", err)
	}
	return serialize(t, ethernet(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload(payload))
}

// UDPFrame returns an Ethernet/IPv4/UDP frame carrying payload.
func UDPFrame(t testing.TB, src, dst string, sport, dport uint16, payload []byte) Frame {
	t.Helper()
	ip := ipv4(t, src, dst, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("failed to set network layer: %v", err)
	}
	return serialize(t, ethernet(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload(payload))
}

// ICMPEchoFrame returns an Ethernet/IPv4/ICMP echo request.
func ICMPEchoFrame(t testing.TB, src, dst string, id, seq uint16) Frame {
	t.Helper()
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: id, Seq: seq}
	return serialize(t, ethernet(layers.EthernetTypeIPv4), ipv4(t, src, dst, layers.IPProtocolICMPv4), icmp, gopacket.Payload("netops"))
}

// TCP6Frame returns an Ethernet/IPv6/TCP frame.
func TCP6Frame(t testing.TB, src, dst string, sport, dport uint16) Frame {
	t.Helper()
	ip := &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: layers.IPProtocolTCP, SrcIP: parseIP(t, src), DstIP: parseIP(t, dst)}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(sport), DstPort: layers.TCPPort(dport), ACK: true, Window: 512}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("failed to set network layer: %v", err)
	}
	return serialize(t, ethernet(layers.EthernetTypeIPv6), ip, tcp)
}

// ARPRequestFrame returns a who-has request for target sent by sender.
func ARPRequestFrame(t testing.TB, sender, target string) Frame {
	t.Helper()
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   LocalMAC,
		SourceProtAddress: parseIP(t, sender).To4(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    parseIP(t, target).To4(),
	}
	eth := &layers.Ethernet{SrcMAC: LocalMAC, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP}
	return serialize(t, eth, arp)
}

// UnknownFrame returns an Ethernet frame with an EtherType no decoder handles.
func UnknownFrame(t testing.TB, payload []byte) Frame {
	t.Helper()
	return serialize(t, ethernet(layers.EthernetType(0x88b5)), gopacket.Payload(payload))
}

// Truncated cuts a frame to its first n bytes.
func Truncated(f Frame, n int) Frame {
	data := append([]byte(nil), f.Data[:n]...)
	return Frame{Data: data, Info: gopacket.CaptureInfo{Timestamp: f.Info.Timestamp, CaptureLength: n, Length: n}}
}

// WritePcap writes frames to a pcap file at path.
func WritePcap(t testing.TB, path string, frames ...Frame) {
	t.Helper()
	w, err := os.Create(path) //#nosec G304 // test fixture path
	if err != nil {
		t.Fatalf("failed to create pcap file: %v", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			t.Errorf("failed to close pcap file: %v", err)
		}
	}()
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("failed to write pcap header: %v", err)
	}
	for _, f := range frames {
		if err := pw.WritePacket(f.Info, f.Data); err != nil {
			t.Fatalf("failed to write packet: %v", err)
		}
	}
}

func ethernet(typ layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: LocalMAC, DstMAC: RemoteMAC, EthernetType: typ}
}

func ipv4(t testing.TB, src, dst string, proto layers.IPProtocol) *layers.IPv4 {
	t.Helper()
	return &layers.IPv4{
		Version:  4,
		TTL:      64,
		Id:       1,
		Protocol: proto,
		SrcIP:    parseIP(t, src).To4(),
		DstIP:    parseIP(t, dst).To4(),
	}
}

func parseIP(t testing.TB, s string) net.IP {
	t.Helper()
	ip := net.ParseIP(s)
	if ip == nil {
		t.Fatalf("invalid address %q", s)
	}
	return ip
}

func serialize(t testing.TB, ls ...gopacket.SerializableLayer) Frame {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("failed to serialize frame: %v", err)
	}
	data := append([]byte(nil), buf.Bytes()...)
	return Frame{
		Data: data,
		Info: gopacket.CaptureInfo{Timestamp: time.Now(), CaptureLength: len(data), Length: len(data)},
	}
}
