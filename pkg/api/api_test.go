// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telekom/netops/internal/helper"
	"github.com/telekom/netops/internal/transport"
	"github.com/telekom/netops/pkg/capture"
	"github.com/telekom/netops/pkg/mtr"
	"github.com/telekom/netops/pkg/ping"
	"github.com/telekom/netops/pkg/probe"
	"github.com/telekom/netops/pkg/telemetry"
)

// fakeController records the calls of the api and returns the configured errors.
type fakeController struct {
	mu        sync.Mutex
	pingOpts  ping.Options
	mtrOpts   mtr.Options
	host      string
	stopped   []probe.Handle
	filter    string
	iface     string
	err       error
	latest    *telemetry.Snapshot
	snapshots chan *telemetry.Snapshot
}

func (f *fakeController) StartPingWithOptions(_ context.Context, host string, opts ping.Options) (probe.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.host, f.pingOpts = host, opts
	return "ping-1", f.err
}

func (f *fakeController) StartMTRWithOptions(_ context.Context, host string, opts mtr.Options) (probe.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.host, f.mtrOpts = host, opts
	return "mtr-1", f.err
}

func (f *fakeController) Stop(h probe.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h != "ping-1" {
		return probe.ErrUnknownHandle
	}
	f.stopped = append(f.stopped, h)
	return nil
}

func (f *fakeController) SetCaptureFilter(expr string) error {
	if _, err := capture.ParseFilter(expr); err != nil {
		return err
	}
	f.filter = expr
	return nil
}

func (f *fakeController) StartCapture(_ context.Context, iface string) error {
	f.iface = iface
	return f.err
}

func (f *fakeController) StopCapture() error { return f.err }

func (f *fakeController) WritePcap(w io.Writer) error {
	_, err := w.Write([]byte{0xd4, 0xc3, 0xb2, 0xa1})
	return err
}

func (f *fakeController) Latest() *telemetry.Snapshot { return f.latest }

func (f *fakeController) Subscribe(ctx context.Context) iter.Seq[*telemetry.Snapshot] {
	return func(yield func(*telemetry.Snapshot) bool) {
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-f.snapshots:
				if !ok || !yield(s) {
					return
				}
			}
		}
	}
}

func newTestServer(t *testing.T, ctrl *fakeController) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{Name: "netops_test_gauge", Help: "test"}))
	a := New(Config{ListeningAddress: ":0"}, ctrl, reg, "v0.0.1")
	srv := httptest.NewServer(a.handler(t.Context()))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, url, strings.NewReader(body))
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(b)
}

func TestAPI_StartSessions(t *testing.T) {
	ctrl := &fakeController{}
	srv := newTestServer(t, ctrl)

	code, body := do(t, http.MethodPost, srv.URL+"/v1/ping", `{"host":"192.0.2.1","interval":"500ms","payloadSize":16,"count":4}`)
	assert.Equal(t, http.StatusCreated, code)
	assert.JSONEq(t, `{"handle":"ping-1"}`, body)
	assert.Equal(t, ping.Options{Interval: 500 * time.Millisecond, PayloadSize: helper.Ptr(16), Count: 4}, ctrl.pingOpts)

	code, body = do(t, http.MethodPost, srv.URL+"/v1/mtr", `{"host":"example.com","maxTTL":12,"roundInterval":2000000000}`)
	assert.Equal(t, http.StatusCreated, code)
	assert.JSONEq(t, `{"handle":"mtr-1"}`, body)
	assert.Equal(t, "example.com", ctrl.host)
	assert.Equal(t, mtr.Options{MaxTTL: 12, RoundInterval: 2 * time.Second}, ctrl.mtrOpts)
}

func TestAPI_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		method string
		path   string
		body   string
		want   int
	}{
		{name: "unknown field", method: http.MethodPost, path: "/v1/ping", body: `{"target":"x"}`, want: http.StatusBadRequest},
		{name: "bad duration", method: http.MethodPost, path: "/v1/ping", body: `{"host":"x","interval":"soon"}`, want: http.StatusBadRequest},
		{
			name: "invalid options", method: http.MethodPost, path: "/v1/ping", body: `{"host":"x"}`,
			err:  errors.Join(ping.ErrInvalidOptions{Field: "interval", Reason: "too short"}),
			want: http.StatusBadRequest,
		},
		{
			name: "ipv6 target", method: http.MethodPost, path: "/v1/mtr", body: `{"host":"2001:db8::1"}`,
			err:  fmt.Errorf("%w: 2001:db8::1", transport.ErrUnsupportedFamily),
			want: http.StatusBadRequest,
		},
		{
			name: "no privileges", method: http.MethodPost, path: "/v1/ping", body: `{"host":"x"}`,
			err:  fmt.Errorf("failed to start ping to x: %w", transport.ErrPermissionDenied),
			want: http.StatusForbidden,
		},
		{name: "unknown session", method: http.MethodDelete, path: "/v1/sessions/nope", want: http.StatusNotFound},
		{name: "filter syntax", method: http.MethodPut, path: "/v1/capture/filter", body: `{"filter":"port >"}`, want: http.StatusBadRequest},
		{name: "capture without interface", method: http.MethodPost, path: "/v1/capture", body: `{}`, want: http.StatusBadRequest},
		{
			name: "capture busy", method: http.MethodPost, path: "/v1/capture", body: `{"interface":"eth0"}`,
			err:  capture.ErrAlreadyRunning,
			want: http.StatusConflict,
		},
		{
			name: "no such interface", method: http.MethodPost, path: "/v1/capture", body: `{"interface":"eth9"}`,
			err:  fmt.Errorf("failed to start capture on eth9: %w", transport.ErrNoSuchInterface),
			want: http.StatusBadRequest,
		},
		{name: "not capturing", method: http.MethodDelete, path: "/v1/capture", err: capture.ErrNotRunning, want: http.StatusConflict},
		{name: "no snapshot yet", method: http.MethodGet, path: "/v1/snapshot", want: http.StatusServiceUnavailable},
		{name: "internal", method: http.MethodDelete, path: "/v1/capture", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeController{err: tt.err})
			code, body := do(t, tt.method, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.want, code, body)

			var res errorResponse
			require.NoError(t, json.Unmarshal([]byte(body), &res))
			assert.NotEmpty(t, res.Error)
		})
	}
}

func TestAPI_CaptureControls(t *testing.T) {
	ctrl := &fakeController{}
	srv := newTestServer(t, ctrl)

	code, _ := do(t, http.MethodPut, srv.URL+"/v1/capture/filter", `{"filter":"tcp and port = 443"}`)
	assert.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, "tcp and port = 443", ctrl.filter)

	code, _ = do(t, http.MethodPost, srv.URL+"/v1/capture", `{"interface":"eth0"}`)
	assert.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, "eth0", ctrl.iface)

	code, body := do(t, http.MethodGet, srv.URL+"/v1/capture/pcap", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "\xd4\xc3\xb2\xa1", body)

	code, _ = do(t, http.MethodDelete, srv.URL+"/v1/capture", "")
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = do(t, http.MethodDelete, srv.URL+"/v1/sessions/ping-1", "")
	assert.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, []probe.Handle{"ping-1"}, ctrl.stopped)
}

func TestAPI_GetSnapshot(t *testing.T) {
	snap := &telemetry.Snapshot{
		Generation: 7,
		Ping:       []ping.Target{{Handle: "ping-1", Host: "192.0.2.1"}},
		Capture:    capture.State{Packets: []*capture.Packet{{Seq: 1, Length: 60}}},
	}
	srv := newTestServer(t, &fakeController{latest: snap})

	tests := []struct {
		query       string
		wantPackets int
	}{
		{query: "", wantPackets: 1},
		{query: "?packets=true", wantPackets: 1},
		{query: "?packets=false", wantPackets: 0},
	}
	for _, tt := range tests {
		code, body := do(t, http.MethodGet, srv.URL+"/v1/snapshot"+tt.query, "")
		require.Equal(t, http.StatusOK, code)

		var got telemetry.Snapshot
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		assert.Equal(t, uint64(7), got.Generation)
		assert.Len(t, got.Capture.Packets, tt.wantPackets, "query %q", tt.query)
	}
	assert.Len(t, snap.Capture.Packets, 1, "the published snapshot is not modified")
}

func TestAPI_StreamSnapshots(t *testing.T) {
	ctrl := &fakeController{snapshots: make(chan *telemetry.Snapshot, 3)}
	srv := newTestServer(t, ctrl)

	conn, res, err := websocket.DefaultDialer.DialContext(t.Context(), "ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/snapshot/stream", nil)
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()
	defer func() { _ = conn.Close() }()

	for gen := range uint64(3) {
		ctrl.snapshots <- &telemetry.Snapshot{Generation: gen + 1}
	}
	close(ctrl.snapshots)

	for want := range uint64(3) {
		var got telemetry.Snapshot
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, want+1, got.Generation)
	}

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestAPI_OpenapiAndMetrics(t *testing.T) {
	srv := newTestServer(t, &fakeController{})

	code, body := do(t, http.MethodGet, srv.URL+"/openapi", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"/v1/snapshot"`)
	assert.Contains(t, body, `"generation"`)

	code, body = do(t, http.MethodGet, srv.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "netops_test_gauge")
}

func TestAPI_OpenapiDescribesSnapshots(t *testing.T) {
	a := New(Config{}, &fakeController{}, prometheus.NewRegistry(), "test")
	doc, err := a.openapi()
	require.NoError(t, err)
	require.NoError(t, doc.Validate(t.Context()))
	schema := doc.Paths.Find("/v1/snapshot").Get.Responses.Status(http.StatusOK).Value.Content.Get("application/json").Schema.Value

	tests := []struct {
		name string
		s    *telemetry.Snapshot
	}{
		{name: "empty", s: &telemetry.Snapshot{Generation: 1, Timestamp: time.Now()}},
		{name: "ping target", s: &telemetry.Snapshot{
			Generation: 2,
			Timestamp:  time.Now(),
			Ping: []ping.Target{{
				Handle:  "ping-1",
				Host:    "192.0.2.1",
				Addr:    netip.MustParseAddr("192.0.2.1"),
				State:   probe.StateRunning,
				Options: ping.DefaultOptions(),
				Started: time.Now(),
				Stats:   probe.Stats{Sent: 3, Received: 2, Loss: 33.3},
			}},
			MTR: []mtr.Table{{Handle: "mtr-1", Host: "198.51.100.7", Hops: []mtr.Hop{{TTL: 1}}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.s)
			require.NoError(t, err)
			var body map[string]any
			require.NoError(t, json.Unmarshal(b, &body))
			assert.NoError(t, schema.VisitJSON(body))
		})
	}
}

func TestAPI_RunAndShutdown(t *testing.T) {
	a := New(Config{ListeningAddress: "127.0.0.1:0"}, &fakeController{}, prometheus.NewRegistry(), "test")
	ctx, cancel := context.WithCancel(t.Context())

	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("api did not stop")
	}
}

func TestConfig_Validate(t *testing.T) {
	for addr, wantErr := range map[string]bool{"": false, ":8080": false, "127.0.0.1:9090": false, "8080": true} {
		c := Config{ListeningAddress: addr}
		assert.Equal(t, wantErr, c.Validate() != nil, "address %q", addr)
	}
}
