// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package transport

import (
	"fmt"
	"net"
	"runtime"
)

func openLive(ifi *net.Interface, _ CaptureOptions) (CaptureSource, error) {
	return nil, fmt.Errorf("live capture on %s is not supported on %s, use %s<path> to replay a pcap file", ifi.Name, runtime.GOOS, filePrefix)
}
