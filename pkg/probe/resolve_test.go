// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telekom/netops/internal/transport"
)

func TestResolveIPv4(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		lookup  func(ctx context.Context, network, host string) ([]netip.Addr, error)
		want    netip.Addr
		wantErr error
	}{
		{
			name: "ipv4 literal",
			host: "192.0.2.7",
			want: netip.MustParseAddr("192.0.2.7"),
		},
		{
			name:    "ipv6 literal",
			host:    "2001:db8::1",
			wantErr: transport.ErrUnsupportedFamily,
		},
		{
			name: "host name",
			host: "example.com",
			lookup: func(_ context.Context, network, _ string) ([]netip.Addr, error) {
				assert.Equal(t, "ip4", network)
				return []netip.Addr{netip.MustParseAddr("::ffff:93.184.216.34")}, nil
			},
			want: netip.MustParseAddr("93.184.216.34"),
		},
		{
			name: "lookup failure",
			host: "does-not-resolve.invalid",
			lookup: func(context.Context, string, string) ([]netip.Addr, error) {
				return nil, errors.New("no such host")
			},
			wantErr: errors.New("failed to resolve \"does-not-resolve.invalid\": no such host"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.lookup != nil {
				orig := lookupNetIP
				lookupNetIP = tt.lookup
				t.Cleanup(func() { lookupNetIP = orig })
			}

			got, err := ResolveIPv4(context.Background(), tt.host)
			if tt.wantErr != nil {
				require.Error(t, err)
				if errors.Is(tt.wantErr, transport.ErrUnsupportedFamily) {
					assert.ErrorIs(t, err, tt.wantErr)
				} else {
					assert.EqualError(t, err, tt.wantErr.Error())
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
