// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// DefaultCapacity is the number of packets a [Buffer] retains by default.
const DefaultCapacity = 1000

// Buffer is a fixed capacity ring of packets. Inserting into a full buffer
// evicts the oldest packet and counts it as dropped.
type Buffer struct {
	mu      sync.RWMutex
	ring    []*Packet
	start   int
	size    int
	dropped uint64
}

// NewBuffer creates a buffer holding at most capacity packets.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{ring: make([]*Packet, capacity)}
}

// Push appends a packet, evicting the oldest one if the buffer is full.
// It reports whether a packet was evicted.
func (b *Buffer) Push(p *Packet) (evicted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size < len(b.ring) {
		b.ring[(b.start+b.size)%len(b.ring)] = p
		b.size++
		return false
	}
	b.ring[b.start] = p
	b.start = (b.start + 1) % len(b.ring)
	b.dropped++
	return true
}

// Packets returns the buffered packets in arrival order.
func (b *Buffer) Packets() []*Packet {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.packetsLocked()
}

// Contents returns the buffered packets together with the drop counter
// of the same moment.
func (b *Buffer) Contents() ([]*Packet, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.packetsLocked(), b.dropped
}

func (b *Buffer) packetsLocked() []*Packet {
	out := make([]*Packet, b.size)
	for i := range b.size {
		out[i] = b.ring[(b.start+i)%len(b.ring)]
	}
	return out
}

// Len returns the number of buffered packets.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the capacity of the buffer.
func (b *Buffer) Cap() int {
	return len(b.ring)
}

// Dropped returns the number of evicted packets.
func (b *Buffer) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Reset removes all packets and clears the drop counter.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.ring)
	b.start, b.size, b.dropped = 0, 0, 0
}

// WritePcap writes the buffered raw frames to w as a pcap stream.
func (b *Buffer) WritePcap(w io.Writer, snapLen uint32, link layers.LinkType) error {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, link); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}
	for _, p := range b.Packets() {
		data := p.Data
		if uint32(len(data)) > snapLen { //nolint:gosec // len is never negative
			data = data[:snapLen]
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     p.Timestamp,
			CaptureLength: len(data),
			Length:        max(p.Length, len(data)),
		}
		if err := pw.WritePacket(ci, data); err != nil {
			return fmt.Errorf("failed to write packet %d: %w", p.Seq, err)
		}
	}
	return nil
}
