// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package mtr discovers the hops towards a destination by sending rounds of
// echo requests with increasing TTL and keeps rolling statistics per hop.
package mtr

import (
	"cmp"
	"context"
	"fmt"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/telekom/netops/internal/logger"
	"github.com/telekom/netops/pkg/probe"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Resolver looks up the name of a hop address.
type Resolver interface {
	LookupAddr(ctx context.Context, addr netip.Addr) (string, error)
}

// Hop is an immutable view of one TTL of a hop table.
type Hop struct {
	TTL int `json:"ttl" yaml:"ttl"`
	// Addr is the last address that answered at this TTL; invalid until the first reply.
	Addr netip.Addr `json:"addr" yaml:"addr"`
	// Name is the reverse DNS name of Addr, if resolved.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Terminal marks the hop at which the destination answered.
	Terminal bool `json:"terminal" yaml:"terminal"`
	// Silent marks a hop that did not answer for several consecutive rounds.
	Silent bool `json:"silent" yaml:"silent"`
	// NoReply is the number of consecutive unanswered probes.
	NoReply int         `json:"noReply" yaml:"noReply"`
	Stats   probe.Stats `json:"stats" yaml:"stats"`
}

// Table is an immutable view of an MTR session and its hops ordered by TTL.
type Table struct {
	Handle     probe.Handle `json:"handle" yaml:"handle"`
	Host       string       `json:"host" yaml:"host"`
	Addr       netip.Addr   `json:"addr" yaml:"addr"`
	Identifier int          `json:"identifier" yaml:"identifier"`
	State      probe.State  `json:"state" yaml:"state"`
	Options    Options      `json:"options" yaml:"options"`
	Started    time.Time    `json:"started" yaml:"started"`
	// Rounds is the number of rounds started.
	Rounds int `json:"rounds" yaml:"rounds"`
	// Completed is the number of rounds whose probes all finalized.
	Completed int `json:"completed" yaml:"completed"`
	// Reached reports whether the destination answered.
	Reached bool  `json:"reached" yaml:"reached"`
	Hops    []Hop `json:"hops" yaml:"hops"`
}

// inboxSize is the number of replies buffered per session.
const inboxSize = 2 * maxTTLLimit

// Engine runs one round-driving loop per MTR session.
type Engine struct {
	router   *probe.Router
	resolver Resolver
	defaults Options
	tracer   trace.Tracer

	mu       sync.Mutex
	sessions map[probe.Handle]*session
}

// NewEngine creates an engine sending through router. The resolver may be nil.
// Zero fields of defaults take the values of [DefaultOptions].
func NewEngine(router *probe.Router, resolver Resolver, defaults Options) *Engine {
	return &Engine{
		router:   router,
		resolver: resolver,
		defaults: defaults.withDefaults(DefaultOptions()),
		tracer:   otel.Tracer("mtr"),
		sessions: make(map[probe.Handle]*session),
	}
}

// Start resolves host and starts an MTR session. The session outlives ctx;
// it runs until [Engine.Stop] or until opts.Rounds rounds completed.
func (e *Engine) Start(ctx context.Context, host string, opts Options) (probe.Handle, error) {
	ctx, span := e.tracer.Start(ctx, "mtr.Start", trace.WithAttributes(attribute.String("target", host)))
	defer span.End()

	opts = opts.withDefaults(e.defaults)
	if err := opts.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid options")
		return "", err
	}

	addr, err := probe.ResolveIPv4(ctx, host)
	if err != nil {
		span.SetStatus(codes.Error, "resolve failed")
		span.RecordError(err)
		return "", err
	}

	stream, err := e.router.Register(ctx, inboxSize)
	if err != nil {
		logger.FromContext(ctx).ErrorContext(ctx, "Failed to start mtr", "target", host, "error", err)
		span.SetStatus(codes.Error, "transport unavailable")
		span.RecordError(err)
		return "", fmt.Errorf("failed to start mtr to %s: %w", host, err)
	}

	handle := probe.NewHandle()
	s := newSession(handle, host, addr, opts, stream, e.resolver, e.tracer)
	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	e.mu.Lock()
	e.sessions[handle] = s
	e.mu.Unlock()

	span.SetAttributes(attribute.String("handle", handle.String()), attribute.Int("identifier", stream.ID))
	go s.run(lctx)
	return handle, nil
}

// Stop cancels the session, abandons its outstanding probes and removes it.
// It blocks until the loop exited.
func (e *Engine) Stop(handle probe.Handle) error {
	e.mu.Lock()
	s, ok := e.sessions[handle]
	delete(e.sessions, handle)
	e.mu.Unlock()
	if !ok {
		return probe.ErrUnknownHandle
	}

	s.cancel()
	<-s.done
	return nil
}

// Has reports whether a session with the given handle exists.
func (e *Engine) Has(handle probe.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[handle]
	return ok
}

// Table returns the current hop table of a session.
func (e *Engine) Table(handle probe.Handle) (Table, bool) {
	e.mu.Lock()
	s, ok := e.sessions[handle]
	e.mu.Unlock()
	if !ok {
		return Table{}, false
	}
	return *s.view.Load(), true
}

// Tables returns the hop tables of all sessions ordered by start time.
func (e *Engine) Tables() []Table {
	e.mu.Lock()
	tables := make([]Table, 0, len(e.sessions))
	for _, s := range e.sessions {
		tables = append(tables, *s.view.Load())
	}
	e.mu.Unlock()

	slices.SortFunc(tables, func(a, b Table) int {
		if c := a.Started.Compare(b.Started); c != 0 {
			return c
		}
		return cmp.Compare(a.Handle, b.Handle)
	})
	return tables
}

// Shutdown stops all sessions.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	handles := make([]probe.Handle, 0, len(e.sessions))
	for h := range e.sessions {
		handles = append(handles, h)
	}
	e.mu.Unlock()

	for _, h := range handles {
		_ = e.Stop(h)
	}
}
