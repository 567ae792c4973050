// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqs(packets []*Packet) []uint64 {
	out := make([]uint64, len(packets))
	for i, p := range packets {
		out[i] = p.Seq
	}
	return out
}

func TestBuffer_Push(t *testing.T) {
	tests := []struct {
		name        string
		capacity    int
		inserts     int
		wantSeqs    []uint64
		wantDropped uint64
	}{
		{name: "empty", capacity: 3, inserts: 0, wantSeqs: []uint64{}},
		{name: "below capacity", capacity: 3, inserts: 2, wantSeqs: []uint64{1, 2}},
		{name: "exactly full", capacity: 3, inserts: 3, wantSeqs: []uint64{1, 2, 3}},
		{name: "evicts oldest first", capacity: 3, inserts: 5, wantSeqs: []uint64{3, 4, 5}, wantDropped: 2},
		{name: "wraps several times", capacity: 4, inserts: 13, wantSeqs: []uint64{10, 11, 12, 13}, wantDropped: 9},
		{name: "capacity of one", capacity: 1, inserts: 3, wantSeqs: []uint64{3}, wantDropped: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(tt.capacity)
			for i := 1; i <= tt.inserts; i++ {
				evicted := b.Push(&Packet{Seq: uint64(i)}) //nolint:gosec // test values
				assert.Equal(t, i > tt.capacity, evicted)
			}
			assert.Equal(t, tt.wantSeqs, seqs(b.Packets()))
			assert.Equal(t, tt.wantDropped, b.Dropped())
			assert.LessOrEqual(t, b.Len(), tt.capacity)
		})
	}
}

func TestBuffer_ContentsConsistentUnderLoad(t *testing.T) {
	const capacity, total = 8, 5000
	b := NewBuffer(capacity)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= total; i++ {
			b.Push(&Packet{Seq: uint64(i)}) //nolint:gosec // test values
		}
	}()

	for reading := true; reading; {
		select {
		case <-done:
			reading = false
		default:
		}
		packets, dropped := b.Contents()
		if len(packets) == 0 {
			continue
		}
		// The oldest buffered packet follows the last evicted one.
		require.Equal(t, dropped+1, packets[0].Seq)
		require.Equal(t, dropped+uint64(len(packets)), packets[len(packets)-1].Seq)
	}

	packets, dropped := b.Contents()
	assert.Len(t, packets, capacity)
	assert.Equal(t, uint64(total-capacity), dropped)
}

func TestBuffer_Reset(t *testing.T) {
	b := NewBuffer(2)
	for i := range 5 {
		b.Push(&Packet{Seq: uint64(i)}) //nolint:gosec // test values
	}
	b.Reset()
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Dropped())
	assert.Equal(t, 2, b.Cap())
	assert.Equal(t, DefaultCapacity, NewBuffer(0).Cap())
}

func TestBuffer_WritePcap(t *testing.T) {
	b := NewBuffer(2)
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	frames := [][]byte{
		bytes.Repeat([]byte{1}, 80),
		bytes.Repeat([]byte{2}, 90),
		bytes.Repeat([]byte{3}, 100),
	}
	for i, f := range frames {
		b.Push(&Packet{Seq: uint64(i + 1), Timestamp: ts.Add(time.Duration(i) * time.Second), Length: len(f), Data: f}) //nolint:gosec // test values
	}

	var out bytes.Buffer
	require.NoError(t, b.WritePcap(&out, 96, layers.LinkTypeEthernet))

	r, err := pcapgo.NewReader(&out)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())

	data, ci, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, frames[1], data)
	assert.True(t, ts.Add(time.Second).Equal(ci.Timestamp))

	data, ci, err = r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, frames[2][:96], data)
	assert.Equal(t, 100, ci.Length)

	_, _, err = r.ReadPacketData()
	assert.ErrorIs(t, err, io.EOF)
}
