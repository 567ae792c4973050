// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package transport

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketSocket_ReadReturnsWithinPoll(t *testing.T) {
	ifi, err := net.InterfaceByName("lo")
	if err != nil {
		t.Skip("no loopback interface")
	}
	src, err := openLive(ifi, CaptureOptions{})
	if isPermissionError(err) {
		t.Skip("live capture requires NET_RAW")
	}
	require.NoError(t, err)

	// Loopback may carry traffic, but no read may block past the poll interval.
	for range 3 {
		start := time.Now()
		data, ci, err := src.ReadPacketData()
		if err != nil {
			require.ErrorIs(t, err, ErrReadTimeout)
		} else {
			assert.Len(t, data, ci.CaptureLength)
			assert.Equal(t, ifi.Index, ci.InterfaceIndex)
		}
		assert.Less(t, time.Since(start), pollInterval+time.Second)
	}
	require.NoError(t, src.Close())
}

func TestHtons(t *testing.T) {
	// In memory the converted value is laid out big endian.
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], htons(0x0806))
	assert.Equal(t, [2]byte{0x08, 0x06}, b)
}
