// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package ping

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telekom/netops/internal/helper"
	"github.com/telekom/netops/internal/transport"
	"github.com/telekom/netops/pkg/probe"
	"github.com/telekom/netops/pkg/probe/probetest"
)

func newTestScheduler(t *testing.T) (*Scheduler, *probetest.Network, *probe.Router, *atomic.Int32) {
	t.Helper()
	network := probetest.NewNetwork()
	opens := &atomic.Int32{}
	router := probe.NewRouter(func(context.Context) (probe.Transport, error) {
		opens.Add(1)
		return network, nil
	})
	s := NewScheduler(router, Options{Interval: 10 * time.Millisecond})
	t.Cleanup(func() {
		s.Shutdown()
		router.Close()
	})
	return s, network, router, opens
}

func waitStopped(t *testing.T, s *Scheduler, h probe.Handle) Target {
	t.Helper()
	var view Target
	require.Eventually(t, func() bool {
		var ok bool
		view, ok = s.Target(h)
		return ok && view.State == probe.StateStopped
	}, 5*time.Second, 5*time.Millisecond)
	return view
}

func TestScheduler_Count(t *testing.T) {
	dst := netip.MustParseAddr("192.0.2.10")
	tests := []struct {
		name           string
		path           *probetest.Path
		opts           Options
		wantReceived   uint64
		wantTimeouts   uint64
		wantICMPErrors uint64
		wantLoss       float64
	}{
		{
			name:         "all replies",
			path:         &probetest.Path{Destination: probetest.Hop{Delay: time.Millisecond}},
			opts:         Options{Count: 5},
			wantReceived: 5,
		},
		{
			name: "every second probe lost",
			path: &probetest.Path{Destination: probetest.Hop{
				Delay: time.Millisecond,
				Drop:  func(seq int) bool { return seq%2 == 0 },
			}},
			opts:         Options{Count: 4, TimeoutMultiplier: 2},
			wantReceived: 2,
			wantTimeouts: 2,
			wantLoss:     50,
		},
		{
			name:         "unreachable destination",
			opts:         Options{Count: 3, TimeoutMultiplier: 1},
			wantTimeouts: 3,
			wantLoss:     100,
		},
		{
			name:           "rejected by destination",
			path:           &probetest.Path{Destination: probetest.Hop{Unreachable: true}},
			opts:           Options{Count: 2},
			wantICMPErrors: 2,
			wantLoss:       100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, network, _, _ := newTestScheduler(t)
			if tt.path != nil {
				network.SetPath(dst, *tt.path)
			}

			h, err := s.Start(context.Background(), dst.String(), tt.opts)
			require.NoError(t, err)

			view := waitStopped(t, s, h)
			assert.Equal(t, uint64(tt.opts.Count), view.Stats.Sent)
			assert.Equal(t, tt.wantReceived, view.Stats.Received)
			assert.Equal(t, tt.wantTimeouts, view.Stats.Timeouts)
			assert.Equal(t, tt.wantICMPErrors, view.Stats.ICMPErrors)
			assert.InDelta(t, tt.wantLoss, view.Stats.Loss, 0.001)
			assert.Equal(t, 0, view.Pending)
			assert.Equal(t, 0, s.Outstanding())
			if tt.wantICMPErrors > 0 {
				require.NotNil(t, view.Stats.LastError)
				assert.Equal(t, 3, view.Stats.LastError.Type)
				assert.Equal(t, transport.ICMPUnreachableHost, view.Stats.LastError.Code)
			}
			if tt.wantReceived > 0 {
				assert.Positive(t, view.Stats.Avg)
			}
		})
	}
}

func TestScheduler_EchoRequests(t *testing.T) {
	tests := []struct {
		name        string
		payloadSize *int
		wantPayload int
	}{
		{name: "explicit payload", payloadSize: helper.Ptr(16), wantPayload: 16},
		{name: "empty payload", payloadSize: helper.Ptr(0), wantPayload: 0},
		{name: "default payload", payloadSize: nil, wantPayload: 56},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, network, _, _ := newTestScheduler(t)
			dst := netip.MustParseAddr("192.0.2.11")
			network.SetPath(dst, probetest.Path{})

			h, err := s.Start(context.Background(), dst.String(), Options{Count: 3, PayloadSize: tt.payloadSize})
			require.NoError(t, err)
			view := waitStopped(t, s, h)
			assert.Equal(t, tt.wantPayload, view.Options.Payload())

			sent := network.Sent()
			require.Len(t, sent, 3)
			for i, req := range sent {
				assert.Equal(t, dst, req.Dst)
				assert.Equal(t, view.Identifier, req.ID)
				assert.Equal(t, i+1, req.Seq)
				assert.Len(t, req.Payload, tt.wantPayload)
			}
		})
	}
}

func TestScheduler_StopAbandonsOutstanding(t *testing.T) {
	s, _, router, _ := newTestScheduler(t)

	// Nobody answers and the timeout is far away, so probes pile up.
	h, err := s.Start(context.Background(), "192.0.2.12", Options{TimeoutMultiplier: 1000})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Outstanding() >= 3 }, 5*time.Second, 5*time.Millisecond)

	s.mu.Lock()
	p := s.targets[h]
	s.mu.Unlock()

	require.NoError(t, s.Stop(h))
	assert.False(t, s.Has(h))
	assert.Equal(t, 0, s.Outstanding())
	assert.Equal(t, 0, router.Stats().Streams)

	view := p.view.Load()
	assert.Equal(t, probe.StateStopped, view.State)
	assert.Equal(t, 0, view.Pending)
	assert.Positive(t, view.Stats.Abandoned)
	assert.Zero(t, view.Stats.Timeouts)
	assert.Zero(t, view.Stats.Loss)

	assert.ErrorIs(t, s.Stop(h), probe.ErrUnknownHandle)
}

func TestScheduler_ConcurrentStartStop(t *testing.T) {
	const targets = 8
	s, network, router, opens := newTestScheduler(t)

	handles := make([]probe.Handle, targets)
	var wg sync.WaitGroup
	for i := range targets {
		dst := netip.AddrFrom4([4]byte{192, 0, 2, byte(100 + i)})
		if i%2 == 0 {
			network.SetPath(dst, probetest.Path{Destination: probetest.Hop{Delay: time.Millisecond}})
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := s.Start(context.Background(), dst.String(), Options{TimeoutMultiplier: 50})
			assert.NoError(t, err)
			handles[i] = h
		}()
	}
	wg.Wait()
	assert.Len(t, s.Targets(), targets)

	time.Sleep(50 * time.Millisecond)
	for _, i := range rand.Perm(targets) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Stop(handles[i]))
		}()
	}
	wg.Wait()

	assert.Empty(t, s.Targets())
	assert.Equal(t, 0, s.Outstanding())
	assert.Equal(t, 0, router.Stats().Streams)
	assert.Equal(t, int32(1), opens.Load())
}

func TestScheduler_UnmatchedReplies(t *testing.T) {
	s, network, router, _ := newTestScheduler(t)
	dst := netip.MustParseAddr("192.0.2.13")

	h, err := s.Start(context.Background(), dst.String(), Options{TimeoutMultiplier: 1000})
	require.NoError(t, err)
	view, ok := s.Target(h)
	require.True(t, ok)

	// Unknown sequence number, foreign sender and foreign identifier.
	network.Inject(transport.Reply{Kind: transport.ReplyEcho, From: dst, Dst: dst, ID: view.Identifier, Seq: 60000})
	network.Inject(transport.Reply{Kind: transport.ReplyEcho, From: netip.MustParseAddr("198.51.100.1"), ID: view.Identifier, Seq: 1})
	network.Inject(transport.Reply{Kind: transport.ReplyEcho, From: dst, Dst: dst, ID: view.Identifier + 1, Seq: 1})

	assert.Eventually(t, func() bool { return router.Stats().Unmatched == 3 }, 5*time.Second, 5*time.Millisecond)
	view, _ = s.Target(h)
	assert.Zero(t, view.Stats.Received)
}

func TestScheduler_StartErrors(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		opts    Options
		open    func(context.Context) (probe.Transport, error)
		wantErr error
	}{
		{
			name:    "invalid interval",
			host:    "192.0.2.1",
			opts:    Options{Interval: time.Millisecond},
			wantErr: ErrInvalidOptions{Field: "interval", Reason: "must be at least 10ms"},
		},
		{
			name:    "ipv6 target",
			host:    "2001:db8::1",
			wantErr: transport.ErrUnsupportedFamily,
		},
		{
			name: "permission denied",
			host: "192.0.2.1",
			open: func(context.Context) (probe.Transport, error) {
				return nil, transport.ErrPermissionDenied
			},
			wantErr: transport.ErrPermissionDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			open := tt.open
			if open == nil {
				open = func(context.Context) (probe.Transport, error) { return probetest.NewNetwork(), nil }
			}
			router := probe.NewRouter(open)
			defer router.Close()
			s := NewScheduler(router, Options{})

			h, err := s.Start(context.Background(), tt.host, tt.opts)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, h)
			assert.Empty(t, s.Targets())
		})
	}
}

func TestOptions_Validate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())
	assert.Equal(t, 3*time.Second, DefaultOptions().Timeout())

	err := Options{Interval: time.Second, PayloadSize: helper.Ptr(-1), TimeoutMultiplier: 0, Window: 0, Count: -1, TTL: 300}.Validate()
	require.Error(t, err)
	for _, field := range []string{"payloadSize", "timeoutMultiplier", "window", "count", "ttl"} {
		assert.ErrorContains(t, err, fmt.Sprintf("invalid ping option %s", field))
	}
}
