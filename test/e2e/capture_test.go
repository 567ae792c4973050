// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package e2e

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/telekom/netops/pkg/config"
	"github.com/telekom/netops/pkg/telemetry"
	"github.com/telekom/netops/test"
	"github.com/telekom/netops/test/framework"
)

const awaitTimeout = 10 * time.Second

func replay(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replay.pcap")
	test.WritePcap(t, path,
		test.TCPFrame(t, "192.0.2.1", "198.51.100.1", 40000, 443, nil),
		test.UDPFrame(t, "192.0.2.1", "198.51.100.1", 40000, 53, []byte("query")),
		test.TCPFrame(t, "198.51.100.1", "192.0.2.1", 443, 40000, []byte("hello")),
		test.ICMPEchoFrame(t, "192.0.2.1", "198.51.100.1", 1, 1),
	)
	return path
}

func finished(frames uint64) func(s *telemetry.Snapshot) bool {
	return func(s *telemetry.Snapshot) bool {
		return s.Capture.Interface != "" && !s.Capture.Running && s.Capture.Traffic.Frames == frames
	}
}

func TestE2E_CaptureProfile(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping e2e test in short mode")
	}

	tests := []struct {
		name   string
		remote bool
	}{
		{name: "file profile"},
		{name: "remote profile", remote: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := framework.New(t)
			if tt.remote {
				e.WithRemote()
			}
			e.WithProfile(config.Profile{Capture: &config.CaptureProfile{
				Interface: "file:" + replay(t),
				Filter:    "proto = tcp and port = 443",
			}})

			ctx, cancel := context.WithCancel(t.Context())
			done := make(chan struct{})
			go func() {
				defer close(done)
				if err := e.Run(ctx); err != nil {
					t.Errorf("netops failed: %v", err)
				}
			}()
			defer func() {
				cancel()
				<-done
			}()

			e.AwaitStartup(e.URL("/v1/snapshot"), awaitTimeout).
				AwaitSnapshot(finished(4), awaitTimeout)

			e.HttpAssertion(e.URL("/v1/snapshot?packets=false")).
				WithSchema().
				WithSnapshot(func(t *testing.T, s *telemetry.Snapshot) {
					assert.Equal(t, "proto = tcp and port = 443", s.Capture.Filter)
					assert.Equal(t, uint64(2), s.Capture.Filtered)
					assert.Equal(t, uint64(2), s.Capture.Traffic.TCP)
					assert.Equal(t, uint64(1), s.Capture.Traffic.UDP)
					assert.Equal(t, uint64(1), s.Capture.Traffic.ICMP)
					assert.Empty(t, s.Capture.Packets)
					assert.Empty(t, s.Ping)
				}).
				Assert(http.StatusOK)

			e.HttpAssertion(e.URL("/v1/snapshot")).WithSchema().Assert(http.StatusOK)
		})
	}
}

func TestE2E_ProfileUpdate(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping e2e test in short mode")
	}

	path := replay(t)
	e := framework.New(t).WithProfile(config.Profile{Capture: &config.CaptureProfile{Interface: "file:" + path}})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := e.Run(ctx); err != nil {
			t.Errorf("netops failed: %v", err)
		}
	}()
	defer func() {
		cancel()
		<-done
	}()

	e.AwaitStartup(e.URL("/v1/snapshot"), awaitTimeout).
		AwaitSnapshot(finished(4), awaitTimeout)

	e.UpdateProfile(config.Profile{}).
		AwaitLoader().
		AwaitSnapshot(func(s *telemetry.Snapshot) bool { return !s.Capture.Running }, awaitTimeout)

	e.HttpAssertion(e.URL("/v1/snapshot?packets=false")).
		WithSchema().
		WithSnapshot(func(t *testing.T, s *telemetry.Snapshot) {
			assert.False(t, s.Capture.Running)
			assert.Empty(t, s.MTR)
		}).
		Assert(http.StatusOK)
}
