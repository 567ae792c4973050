// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_CustomHandler(t *testing.T) {
	h := slog.NewTextHandler(&bytes.Buffer{}, nil)
	assert.Same(t, h, NewLogger(h).Handler())
}

func TestNewHandler(t *testing.T) {
	tests := []struct {
		name      string
		format    string
		level     string
		wantText  bool
		wantLevel slog.Level
	}{
		{name: "defaults to json on info", wantLevel: slog.LevelInfo},
		{name: "text on debug", format: "text", level: "debug", wantText: true, wantLevel: slog.LevelDebug},
		{name: "json on warn", format: "JSON", level: "WARN", wantLevel: slog.LevelWarn},
		{name: "unknown level falls back to info", format: "TEXT", level: "TRACE", wantText: true, wantLevel: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_FORMAT", tt.format)
			t.Setenv("LOG_LEVEL", tt.level)

			h := newHandler()
			_, isText := h.(*slog.TextHandler)
			assert.Equal(t, tt.wantText, isText)
			assert.True(t, h.Enabled(t.Context(), tt.wantLevel))
			assert.False(t, h.Enabled(t.Context(), tt.wantLevel-1))
		})
	}
}

func TestGetLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"WARNING": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, getLevel(in), "level %q", in)
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(slog.NewJSONHandler(&buf, nil))

	ctx, cancel := NewContextWithLogger(IntoContext(t.Context(), log))
	defer cancel()

	assert.Same(t, log, FromContext(ctx))
	FromContext(ctx).InfoContext(ctx, "hello", "target", "192.0.2.1")
	assert.Contains(t, buf.String(), `"target":"192.0.2.1"`)

	cancel()
	assert.Error(t, ctx.Err(), "the child context is cancelable")
}

func TestFromContext_Fallback(t *testing.T) {
	//nolint:staticcheck // nil context is part of the contract
	for _, ctx := range []context.Context{nil, context.Background()} {
		require.NotNil(t, FromContext(ctx))
	}
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(slog.NewTextHandler(&buf, nil))

	var got *slog.Logger
	handler := Middleware(IntoContext(t.Context(), log))(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/snapshot", http.NoBody))

	assert.Same(t, log, got)
}
