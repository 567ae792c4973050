// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telekom/netops/test"
)

func packetOf(t *testing.T, f test.Frame) *Packet {
	t.Helper()
	chain, err := Decode(KindEthernet, f.Data)
	require.NoError(t, err)
	return newPacket(1, time.Now(), len(f.Data), f.Data, chain)
}

func TestFilter_Match(t *testing.T) {
	https := packetOf(t, test.TCPFrame(t, "10.0.0.1", "93.184.216.34", 40000, 443, nil))
	ssh := packetOf(t, test.TCP6Frame(t, "2001:db8::1", "2001:db8::2", 22, 50000))
	dns := packetOf(t, test.UDPFrame(t, "10.0.0.1", "9.9.9.9", 53000, 53, nil))
	ping := packetOf(t, test.ICMPEchoFrame(t, "192.168.1.10", "1.1.1.1", 1, 1))
	arp := packetOf(t, test.ARPRequestFrame(t, "10.0.0.1", "10.0.0.254"))

	tests := []struct {
		expr string
		want map[string]bool
	}{
		{expr: "", want: map[string]bool{"https": true, "ssh": true, "dns": true, "ping": true, "arp": true}},
		{expr: "tcp", want: map[string]bool{"https": true, "ssh": true}},
		{expr: "protocol = TCP AND port = 443", want: map[string]bool{"https": true}},
		{expr: "proto=udp || proto = icmp", want: map[string]bool{"dns": true, "ping": true}},
		{expr: "ip", want: map[string]bool{"https": true, "ssh": true, "dns": true, "ping": true}},
		{expr: "ipv6", want: map[string]bool{"ssh": true}},
		{expr: "not ip", want: map[string]bool{"arp": true}},
		{expr: "!(tcp or udp) && ip4", want: map[string]bool{"ping": true}},
		{expr: "src = 10.0.0.1", want: map[string]bool{"https": true, "dns": true, "arp": true}},
		{expr: "dst 9.9.9.9", want: map[string]bool{"dns": true}},
		{expr: "host 192.168.0.0/16", want: map[string]bool{"ping": true}},
		{expr: "host 2001:db8::/32", want: map[string]bool{"ssh": true}},
		{expr: "port = 1-1024", want: map[string]bool{"https": true, "ssh": true, "dns": true}},
		{expr: "dport >= 1000", want: map[string]bool{"ssh": true, "dns": false}},
		{expr: "sport < 1024", want: map[string]bool{"ssh": true}},
		{expr: "port != 443 and tcp", want: map[string]bool{"ssh": true}},
		{expr: "udp and (dport = 53 or dport = 5353)", want: map[string]bool{"dns": true}},
		{expr: "ARP OR Icmp", want: map[string]bool{"arp": true, "ping": true}},
	}

	packets := map[string]*Packet{"https": https, "ssh": ssh, "dns": dns, "ping": ping, "arp": arp}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := ParseFilter(tt.expr)
			require.NoError(t, err)
			for name, p := range packets {
				assert.Equal(t, tt.want[name], f.Match(p), "packet %s", name)
			}
		})
	}
}

func TestParseFilter_Errors(t *testing.T) {
	tests := []struct {
		expr    string
		wantPos int
	}{
		{expr: "tcp and", wantPos: 7},
		{expr: "(tcp or udp", wantPos: 11},
		{expr: "protocol = gopher", wantPos: 11},
		{expr: "port > 1-10", wantPos: 5},
		{expr: "port = 70000", wantPos: 7},
		{expr: "src < 10.0.0.1", wantPos: 4},
		{expr: "host 10.0.0.300", wantPos: 5},
		{expr: "tcp udp", wantPos: 4},
		{expr: "color = red", wantPos: 0},
		{expr: "tcp $ udp", wantPos: 4},
		{expr: "port = 20-10", wantPos: 7},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := ParseFilter(tt.expr)
			assert.Nil(t, f)
			var syntaxErr ErrFilterSyntax
			require.True(t, errors.As(err, &syntaxErr), "expected ErrFilterSyntax, got %v", err)
			assert.Equal(t, tt.wantPos, syntaxErr.Pos)
		})
	}
}

func TestFilter_String(t *testing.T) {
	f, err := ParseFilter("  tcp and port = 443 ")
	require.NoError(t, err)
	assert.Equal(t, "tcp and port = 443", f.String())

	var none *Filter
	assert.Empty(t, none.String())
	assert.True(t, none.Match(&Packet{}))
}
