// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/telekom/netops/internal/logger"
)

// State is the resource accounting of a [Transport] at one point in time.
type State struct {
	// OpenSockets is the number of raw ICMP sockets currently open.
	OpenSockets int `json:"openSockets" yaml:"openSockets"`
	// CaptureHeld reports whether the capture handle is owned.
	CaptureHeld bool `json:"captureHeld" yaml:"captureHeld"`
	// LastError is the message of the most recent transport failure.
	LastError string `json:"lastError,omitempty" yaml:"lastError,omitempty"`
	// LastErrorAt is the time of the most recent transport failure.
	LastErrorAt time.Time `json:"lastErrorAt,omitzero" yaml:"lastErrorAt,omitempty"`
}

// Transport hands out the shared ICMP socket and the exclusive capture handle.
// The socket is opened on first use and kept until [Transport.Close].
type Transport struct {
	mu      sync.Mutex
	socket  *Socket
	capture *Capture
	closed  bool
	lastErr error
	errAt   time.Time

	// listen opens the raw socket. Replaced in tests.
	listen func() (packetConn, error)
	// openSource opens a capture source. Replaced in tests.
	openSource func(name string, opts CaptureOptions) (CaptureSource, []Network, error)
}

// New creates a transport without opening any resources.
func New() *Transport {
	return &Transport{
		listen:     listenRaw,
		openSource: openSource,
	}
}

// ICMP returns the shared ICMP socket, opening it on first use.
// It returns [ErrPermissionDenied] if raw sockets are not permitted.
func (t *Transport) ICMP(ctx context.Context) (*Socket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	if t.socket != nil {
		return t.socket, nil
	}

	conn, err := t.listen()
	if err != nil {
		t.recordErrorLocked(err)
		return nil, err
	}
	logger.FromContext(ctx).InfoContext(ctx, "Opened raw ICMP socket")
	t.socket = newSocket(conn)
	return t.socket, nil
}

// OpenCapture acquires the capture handle for the named interface.
// A name of the form "file:<path>" replays a pcap file instead.
// Only one capture can be held at a time; closing the returned [Capture]
// releases ownership.
func (t *Transport) OpenCapture(ctx context.Context, name string, opts CaptureOptions) (*Capture, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	if t.capture != nil {
		return nil, ErrCaptureBusy
	}

	src, networks, err := t.openSource(name, opts)
	if err != nil {
		t.recordErrorLocked(err)
		return nil, err
	}
	logger.FromContext(ctx).InfoContext(ctx, "Opened capture handle", "interface", name)

	c := NewCapture(src, name, networks)
	c.release = func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.capture == c {
			t.capture = nil
		}
	}
	t.capture = c
	return c, nil
}

// RecordError stores err as the most recent transport failure.
func (t *Transport) RecordError(err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordErrorLocked(err)
}

func (t *Transport) recordErrorLocked(err error) {
	t.lastErr = err
	t.errAt = time.Now()
}

// State returns the current resource accounting.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := State{CaptureHeld: t.capture != nil}
	if t.socket != nil {
		s.OpenSockets = 1
	}
	if t.lastErr != nil {
		s.LastError = t.lastErr.Error()
		s.LastErrorAt = t.errAt
	}
	return s
}

// Close releases the ICMP socket and the capture handle.
// Further calls to [Transport.ICMP] and [Transport.OpenCapture] fail with [ErrClosed].
func (t *Transport) Close() error {
	t.mu.Lock()
	socket, capture := t.socket, t.capture
	t.socket, t.capture = nil, nil
	t.closed = true
	t.mu.Unlock()

	var errs []error
	if socket != nil {
		errs = append(errs, socket.close())
	}
	if capture != nil {
		errs = append(errs, capture.CaptureSource.Close())
	}
	return errors.Join(errs...)
}
