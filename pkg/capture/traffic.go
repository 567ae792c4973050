// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"net/netip"

	"github.com/telekom/netops/internal/transport"
)

// Traffic summarizes every decoded frame, independent of the active filter.
type Traffic struct {
	Frames uint64 `json:"frames" yaml:"frames"`
	Bytes  uint64 `json:"bytes" yaml:"bytes"`

	TCP   uint64 `json:"tcp" yaml:"tcp"`
	UDP   uint64 `json:"udp" yaml:"udp"`
	ICMP  uint64 `json:"icmp" yaml:"icmp"`
	Other uint64 `json:"other" yaml:"other"`

	// Inbound and Outbound count frames addressed to and sent from the
	// captured interface.
	Inbound  uint64 `json:"inbound" yaml:"inbound"`
	Outbound uint64 `json:"outbound" yaml:"outbound"`

	// LAN and WAN bytes are split by whether the remote peer is inside one of
	// the interface networks.
	LANIn  uint64 `json:"lanIn" yaml:"lanIn"`
	LANOut uint64 `json:"lanOut" yaml:"lanOut"`
	WANIn  uint64 `json:"wanIn" yaml:"wanIn"`
	WANOut uint64 `json:"wanOut" yaml:"wanOut"`
}

// trafficCounter accumulates [Traffic] for the networks of one interface.
type trafficCounter struct {
	local    map[netip.Addr]struct{}
	prefixes []netip.Prefix
	t        Traffic
}

func newTrafficCounter(networks []transport.Network) *trafficCounter {
	c := &trafficCounter{local: make(map[netip.Addr]struct{}, len(networks))}
	for _, n := range networks {
		c.local[n.Addr] = struct{}{}
		c.prefixes = append(c.prefixes, n.Prefix)
	}
	return c
}

func (c *trafficCounter) count(p *Packet) {
	c.t.Frames++
	c.t.Bytes += uint64(p.Length) //nolint:gosec // lengths are never negative

	switch {
	case p.Has(KindTCP):
		c.t.TCP++
	case p.Has(KindUDP):
		c.t.UDP++
	case p.Has(KindICMPv4), p.Has(KindICMPv6):
		c.t.ICMP++
	default:
		c.t.Other++
	}

	src, dst := p.Src(), p.Dst()
	if !src.IsValid() || len(c.local) == 0 {
		return
	}
	size := uint64(p.Length) //nolint:gosec // lengths are never negative
	switch {
	case c.isLocal(dst):
		c.t.Inbound++
		if c.inLAN(src) {
			c.t.LANIn += size
		} else {
			c.t.WANIn += size
		}
	case c.isLocal(src):
		c.t.Outbound++
		if c.inLAN(dst) {
			c.t.LANOut += size
		} else {
			c.t.WANOut += size
		}
	}
}

func (c *trafficCounter) isLocal(a netip.Addr) bool {
	_, ok := c.local[a]
	return ok
}

func (c *trafficCounter) inLAN(a netip.Addr) bool {
	for _, p := range c.prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
