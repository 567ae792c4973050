// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/sys/unix"
)

const (
	// pollInterval bounds a blocking read so a stopped reader notices its cancellation.
	pollInterval = 200 * time.Millisecond
	frameBufSize = 65535
)

// packetSocket reads frames from an AF_PACKET socket bound to one interface.
type packetSocket struct {
	fd      int
	ifindex int
	buf     []byte
}

func openLive(ifi *net.Interface, opts CaptureOptions) (CaptureSource, error) {
	proto := htons(unix.ETH_P_ALL)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, int(proto))
	if err != nil {
		return nil, fmt.Errorf("failed to open capture on %s: %w", ifi.Name, err)
	}
	s := &packetSocket{fd: fd, ifindex: ifi.Index, buf: make([]byte, frameBufSize)}

	if err = s.setup(proto, opts); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to open capture on %s: %w", ifi.Name, err)
	}
	return s, nil
}

func (s *packetSocket) setup(proto uint16, opts CaptureOptions) error {
	tv := unix.NsecToTimeval(pollInterval.Nanoseconds())
	if err := unix.SetsockoptTimeval(s.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("set receive timeout: %w", err)
	}
	if err := unix.Bind(s.fd, &unix.SockaddrLinklayer{Protocol: proto, Ifindex: s.ifindex}); err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	if opts.Promiscuous {
		mreq := &unix.PacketMreq{Ifindex: int32(s.ifindex), Type: unix.PACKET_MR_PROMISC} //nolint:gosec // kernel interface index
		if err := unix.SetsockoptPacketMreq(s.fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, mreq); err != nil {
			return fmt.Errorf("enable promiscuous mode: %w", err)
		}
	}
	return nil
}

// ReadPacketData blocks for at most one poll interval.
func (s *packetSocket) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	n, _, err := unix.Recvfrom(s.fd, s.buf, unix.MSG_TRUNC)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return nil, gopacket.CaptureInfo{}, ErrReadTimeout
		}
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("failed to read frame: %w", err)
	}

	// MSG_TRUNC reports the length on the wire even if the buffer was too small.
	captured := min(n, len(s.buf))
	data := make([]byte, captured)
	copy(data, s.buf[:captured])
	return data, gopacket.CaptureInfo{
		Timestamp:      time.Now(),
		CaptureLength:  captured,
		Length:         n,
		InterfaceIndex: s.ifindex,
	}, nil
}

func (*packetSocket) LinkType() layers.LinkType {
	return layers.LinkTypeEthernet
}

func (s *packetSocket) Close() error {
	return unix.Close(s.fd)
}

// htons converts v to network byte order.
func htons(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.NativeEndian.Uint16(b[:])
}
