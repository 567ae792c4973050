// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// filePrefix selects pcap file replay instead of a live interface.
const filePrefix = "file:"

// CaptureOptions configure a capture handle.
type CaptureOptions struct {
	// Promiscuous enables promiscuous mode on live interfaces.
	Promiscuous bool
}

// CaptureSource yields raw link-layer frames.
// ReadPacketData returns [io.EOF] once a replayed file is exhausted and
// [ErrReadTimeout] when a live interface stayed idle for a poll interval.
// Close must not be called while a read is in progress.
type CaptureSource interface {
	gopacket.PacketDataSource
	// LinkType is the link-layer type of the returned frames.
	LinkType() layers.LinkType
	Close() error
}

// Network is an address assigned to the captured interface.
type Network struct {
	// Addr is the interface address.
	Addr netip.Addr
	// Prefix is the network the address belongs to.
	Prefix netip.Prefix
}

// Capture is an exclusively owned capture handle.
type Capture struct {
	CaptureSource
	name     string
	networks []Network
	release  func()
	once     sync.Once
	err      error
}

// NewCapture wraps a capture source that is not managed by a [Transport].
func NewCapture(src CaptureSource, name string, networks []Network) *Capture {
	return &Capture{CaptureSource: src, name: name, networks: networks}
}

// Name returns the interface name or file the capture reads from.
func (c *Capture) Name() string {
	return c.name
}

// Offline reports whether the capture replays a file instead of a live interface.
func (c *Capture) Offline() bool {
	return strings.HasPrefix(c.name, filePrefix)
}

// Networks returns the addresses assigned to the captured interface.
func (c *Capture) Networks() []Network {
	return c.networks
}

// Close closes the source and releases ownership of the handle.
// It is safe to call multiple times.
func (c *Capture) Close() error {
	c.once.Do(func() {
		c.err = c.CaptureSource.Close()
		if c.release != nil {
			c.release()
		}
	})
	return c.err
}

// openSource opens a pcap file or a live interface.
func openSource(name string, opts CaptureOptions) (CaptureSource, []Network, error) {
	if path, ok := strings.CutPrefix(name, filePrefix); ok {
		src, err := openFile(path)
		return src, nil, err
	}

	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoSuchInterface, name)
	}
	networks, err := interfaceNetworks(ifi)
	if err != nil {
		return nil, nil, err
	}

	src, err := openLive(ifi, opts)
	if err != nil {
		if isPermissionError(err) {
			return nil, nil, ErrPermissionDenied
		}
		return nil, nil, err
	}
	return src, networks, nil
}

func interfaceNetworks(ifi *net.Interface) ([]Network, error) {
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses of %s: %w", ifi.Name, err)
	}
	networks := make([]Network, 0, len(addrs))
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		prefix, err := netip.ParsePrefix(ipnet.String())
		if err != nil {
			continue
		}
		networks = append(networks, Network{Addr: prefix.Addr().Unmap(), Prefix: prefix.Masked()})
	}
	return networks, nil
}

// fileSource replays frames from a pcap file.
type fileSource struct {
	*pcapgo.Reader
	f *os.File
}

func openFile(path string) (*fileSource, error) {
	f, err := os.Open(path) //#nosec G304 // path is operator supplied
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchInterface, filePrefix+path)
		}
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to read capture file header: %w", err)
	}
	return &fileSource{Reader: r, f: f}, nil
}

func (s *fileSource) Close() error {
	return s.f.Close()
}
