// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/telekom/netops/internal/transport"
)

// ErrUnknownHandle is returned when no running stream has the given handle.
var ErrUnknownHandle = errors.New("unknown session handle")

// lookupNetIP resolves host names. Replaced in tests.
var lookupNetIP = net.DefaultResolver.LookupNetIP

// ResolveIPv4 returns the IPv4 address of host. Literal addresses are returned
// as is; names resolve to their first IPv4 address.
func ResolveIPv4(ctx context.Context, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if !addr.Is4() {
			return netip.Addr{}, fmt.Errorf("%w: %s", transport.ErrUnsupportedFamily, host)
		}
		return addr, nil
	}

	addrs, err := lookupNetIP(ctx, "ip4", host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to resolve %q: %w", host, err)
	}
	for _, a := range addrs {
		if a = a.Unmap(); a.Is4() {
			return a, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("%w: %s has no IPv4 address", transport.ErrUnsupportedFamily, host)
}
