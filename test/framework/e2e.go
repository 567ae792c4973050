// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package framework runs a complete netops instance with its api and
// profile loader for end-to-end tests.
package framework

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/telekom/netops/pkg/config"
	"github.com/telekom/netops/pkg/netops"
	"github.com/telekom/netops/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

const (
	publishInterval = 50 * time.Millisecond
	loaderInterval  = 200 * time.Millisecond
)

// E2E is an end-to-end test.
type E2E struct {
	config *config.Config
	t      *testing.T

	mu      sync.Mutex
	profile bytes.Buffer

	server *http.Server

	running int32
}

// New creates an end-to-end test serving the api on a free local port.
// The profile is read from a file unless [E2E.WithRemote] is used.
func New(t *testing.T) *E2E {
	t.Helper()
	cfg := config.Default()
	cfg.Name = "e2e"
	cfg.Api.ListeningAddress = freeAddress(t)
	cfg.Telemetry.PublishInterval = publishInterval
	cfg.Loader = config.LoaderConfig{
		Type:     "file",
		Interval: loaderInterval,
		File:     config.FileLoaderConfig{Path: filepath.Join(t.TempDir(), "profile.yaml")},
	}
	return &E2E{config: cfg, t: t}
}

// Config returns the startup configuration. Changes must be made before [E2E.Run].
func (e *E2E) Config() *config.Config {
	return e.config
}

// WithProfile sets the runtime profile of the test.
func (e *E2E) WithProfile(p config.Profile) *E2E {
	e.t.Helper()
	b, err := yaml.Marshal(p)
	if err != nil {
		e.t.Fatalf("Failed to marshal profile: %v", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profile.Reset()
	e.profile.Write(b)
	return e
}

// UpdateProfile replaces the runtime profile. The instance picks it up
// with the next loader interval.
func (e *E2E) UpdateProfile(p config.Profile) *E2E {
	e.t.Helper()
	e.WithProfile(p)

	// Write the profile to file only if no remote server is used.
	if e.server == nil {
		if err := e.writeProfile(); err != nil {
			e.t.Fatalf("Failed to write profile: %v", err)
		}
	}
	return e
}

// Run starts the instance and blocks until ctx is done.
// If a remote server is configured it runs it in a goroutine.
func (e *E2E) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&e.running, 0, 1) {
		e.t.Fatal("E2E.Run must be called once")
	}

	if e.server != nil {
		go func() {
			if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.t.Errorf("Failed to start server: %v", err)
			}
		}()
		defer func() {
			if err := e.server.Shutdown(context.WithoutCancel(ctx)); err != nil {
				e.t.Errorf("Failed to shutdown server: %v", err)
			}
		}()
	} else {
		if err := e.writeProfile(); err != nil {
			e.t.Fatalf("Failed to write profile: %v", err)
		}
	}

	core, err := netops.New(e.config, "e2e")
	if err != nil {
		return fmt.Errorf("failed to create netops: %w", err)
	}
	return core.Run(ctx)
}

// URL returns the api url of the given path.
func (e *E2E) URL(path string) string {
	return "http://" + e.config.Api.ListeningAddress + path
}

// AwaitStartup waits for the provided URL to be ready.
//
// Must be called after the e2e test started with [E2E.Run].
func (e *E2E) AwaitStartup(u string, failureTimeout time.Duration) *E2E {
	e.t.Helper()
	const backoff = 50 * time.Millisecond

	// Initial delay to allow the server to start.
	<-time.After(backoff)
	if !e.isRunning() {
		e.t.Fatal("E2E.AwaitStartup must be called after E2E.Run")
	}

	deadline := time.Now().Add(failureTimeout)
	for time.Now().Before(deadline) {
		resp, err := get(u)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return e
			}
		}
		<-time.After(backoff)
	}

	e.t.Fatalf("%s did not become ready within %v", u, failureTimeout)
	return e
}

// AwaitLoader waits for the loader to reload the profile.
//
// Must be called after the e2e test started with [E2E.Run].
func (e *E2E) AwaitLoader() *E2E {
	e.t.Helper()
	if !e.isRunning() {
		e.t.Fatal("E2E.AwaitLoader must be called after E2E.Run")
	}

	e.t.Logf("Waiting %s for loader to reload the profile", e.config.Loader.Interval.String())
	<-time.After(e.config.Loader.Interval)
	return e
}

// AwaitSnapshot polls the snapshot endpoint until cond holds.
//
// Must be called after the e2e test started with [E2E.Run].
func (e *E2E) AwaitSnapshot(cond func(s *telemetry.Snapshot) bool, failureTimeout time.Duration) *E2E {
	e.t.Helper()
	if !e.isRunning() {
		e.t.Fatal("E2E.AwaitSnapshot must be called after E2E.Run")
	}

	deadline := time.Now().Add(failureTimeout)
	for time.Now().Before(deadline) {
		if s, err := e.snapshot(); err == nil && cond(s) {
			return e
		}
		<-time.After(e.config.Telemetry.PublishInterval)
	}

	e.t.Fatalf("Snapshot condition not met within %v", failureTimeout)
	return e
}

// snapshot fetches the latest snapshot without the buffered packets.
func (e *E2E) snapshot() (*telemetry.Snapshot, error) {
	resp, err := get(e.URL("/v1/snapshot?packets=false"))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var s telemetry.Snapshot
	if err = json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &s, nil
}

// writeProfile writes the profile to the path of the file loader.
func (e *E2E) writeProfile() error {
	const fileMode = 0o600
	e.mu.Lock()
	defer e.mu.Unlock()

	path := e.config.Loader.File.Path
	err := os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", filepath.Dir(path), err)
	}

	// write and rename so the loader never reads a partial profile
	tmp := path + ".tmp"
	if err = os.WriteFile(tmp, e.profile.Bytes(), fileMode); err != nil {
		return fmt.Errorf("failed to write %q: %w", tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename %q: %w", tmp, err)
	}
	return nil
}

// isRunning returns true if the test is running.
func (e *E2E) isRunning() bool {
	return atomic.LoadInt32(&e.running) == 1
}

// WithRemote serves the profile over HTTP and switches the loader to it.
func (e *E2E) WithRemote() *E2E {
	e.t.Helper()
	addr := freeAddress(e.t)
	e.server = &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(e.serveProfile),
		ReadHeaderTimeout: 3 * time.Second,
	}
	e.config.Loader = config.LoaderConfig{
		Type:     "http",
		Interval: loaderInterval,
		Http: config.HttpLoaderConfig{
			Url:     "http://" + addr + "/profile.yaml",
			Timeout: time.Second,
		},
	}
	return e
}

// serveProfile serves the profile over HTTP as text/yaml.
func (e *E2E) serveProfile(w http.ResponseWriter, _ *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w.Header().Set("Content-Type", "text/yaml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(e.profile.Bytes()); err != nil {
		e.t.Errorf("Failed to write response: %v", err)
	}
}

// freeAddress returns a local address that was free a moment ago.
func freeAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	addr := l.Addr().String()
	if err = l.Close(); err != nil {
		t.Fatalf("Failed to release port: %v", err)
	}
	return addr
}

func get(u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, err
	}
	return http.DefaultClient.Do(req)
}
