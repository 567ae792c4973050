// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

var (
	// ErrPermissionDenied is returned when the process lacks the privileges
	// (NET_RAW or root) to open a raw ICMP socket or a capture handle.
	ErrPermissionDenied = errors.New("permission denied: raw network access requires NET_RAW capabilities")
	// ErrNoSuchInterface is returned when the requested capture interface does not exist.
	ErrNoSuchInterface = errors.New("no such network interface")
	// ErrCaptureBusy is returned when the capture handle is already held by another owner.
	ErrCaptureBusy = errors.New("capture handle is already in use")
	// ErrClosed is returned when the transport was closed.
	ErrClosed = errors.New("transport closed")
	// ErrUnsupportedFamily is returned for destinations that are not IPv4 addresses.
	ErrUnsupportedFamily = errors.New("only IPv4 destinations are supported")
	// ErrReadTimeout is returned by a live capture read that saw no frame
	// within its poll interval. The read can be retried.
	ErrReadTimeout = errors.New("capture read timed out")
)

// errNotEchoRelated is returned by the reply parser for ICMP messages
// that cannot be correlated to an echo request, e.g. echo requests of
// other processes or redirects.
var errNotEchoRelated = errors.New("icmp message is not related to an echo request")

// isPermissionError reports whether err was caused by missing privileges.
// Some capture libraries flatten the errno into the message, so the
// message is checked as well.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) || errors.Is(err, os.ErrPermission) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, unix.EPERM.Error()) || strings.Contains(msg, unix.EACCES.Error())
}
