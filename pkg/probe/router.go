// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telekom/netops/internal/logger"
	"github.com/telekom/netops/internal/transport"
)

const (
	// maxStreams is the number of distinct echo identifiers.
	maxStreams = 1 << 16
	// receiveBackoff is the pause after a failed read before the next attempt.
	receiveBackoff = 100 * time.Millisecond
)

// ErrTooManyStreams is returned when all echo identifiers are in use.
var ErrTooManyStreams = errors.New("all echo identifiers are in use")

//go:generate go tool moq -out transport_moq.go . Transport

// Transport is the shared ICMP socket as seen by the router and the probe streams.
type Transport interface {
	// SendEcho sends an echo request and returns the time it was sent.
	SendEcho(ctx context.Context, req transport.EchoRequest) (time.Time, error)
	// Receive blocks until a reply to an echo request arrives.
	Receive(ctx context.Context) (transport.Reply, error)
}

var _ Transport = (*transport.Socket)(nil)

// OpenFunc opens the shared transport.
type OpenFunc func(ctx context.Context) (Transport, error)

// RouterStats counts the replies the router could not deliver.
type RouterStats struct {
	// Streams is the number of registered probe streams.
	Streams int `json:"streams" yaml:"streams"`
	// Unmatched is the number of replies that matched no outstanding probe.
	Unmatched uint64 `json:"unmatched" yaml:"unmatched"`
	// Overflow is the number of replies dropped because a stream inbox was full.
	Overflow uint64 `json:"overflow" yaml:"overflow"`
}

// Router owns the single reader of the shared ICMP socket and forwards every
// reply to the stream registered for the reply's echo identifier.
// The transport is opened when the first stream registers.
type Router struct {
	open OpenFunc

	mu        sync.RWMutex
	transport Transport
	streams   map[int]chan transport.Reply
	nextID    int
	closed    bool
	cancel    context.CancelFunc
	done      chan struct{}

	unmatched atomic.Uint64
	overflow  atomic.Uint64
	// OnError is called for read failures of the transport. It may be nil.
	OnError func(error)
}

// NewRouter creates a router that opens its transport with open.
func NewRouter(open OpenFunc) *Router {
	return &Router{
		open:    open,
		streams: make(map[int]chan transport.Reply),
		nextID:  rand.IntN(maxStreams), //nolint:gosec // identifiers are not security relevant
	}
}

// Register allocates an echo identifier and an inbox of the given size.
// On the first call the transport is opened and the reader is started; its
// lifetime is bound to the router, not to ctx.
func (r *Router) Register(ctx context.Context, inbox int) (*Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, transport.ErrClosed
	}

	if r.transport == nil {
		t, err := r.open(ctx)
		if err != nil {
			return nil, err
		}
		rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		r.transport, r.cancel, r.done = t, cancel, make(chan struct{})
		go r.run(rctx, t, r.done)
	}

	if len(r.streams) >= maxStreams {
		return nil, ErrTooManyStreams
	}
	for {
		r.nextID = (r.nextID + 1) % maxStreams
		if _, ok := r.streams[r.nextID]; !ok {
			break
		}
	}

	if inbox <= 0 {
		inbox = 1
	}
	ch := make(chan transport.Reply, inbox)
	r.streams[r.nextID] = ch
	return &Stream{ID: r.nextID, replies: ch, router: r, transport: r.transport}, nil
}

// run reads replies until the router is closed.
func (r *Router) run(ctx context.Context, t Transport, done chan struct{}) {
	defer close(done)
	log := logger.FromContext(ctx)

	for {
		reply, err := t.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				log.DebugContext(ctx, "Reply reader stopped", "error", err)
				return
			}
			log.WarnContext(ctx, "Failed to receive ICMP reply", "error", err)
			if r.OnError != nil {
				r.OnError(err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(receiveBackoff):
			}
			continue
		}
		r.route(reply)
	}
}

// route forwards a reply without blocking the reader.
func (r *Router) route(reply transport.Reply) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.streams[reply.ID]
	if !ok {
		r.unmatched.Add(1)
		return
	}
	select {
	case ch <- reply:
	default:
		r.overflow.Add(1)
	}
}

// CountUnmatched records a reply that a stream could not correlate.
func (r *Router) CountUnmatched() {
	r.unmatched.Add(1)
}

// Stats returns the delivery counters.
func (r *Router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RouterStats{
		Streams:   len(r.streams),
		Unmatched: r.unmatched.Load(),
		Overflow:  r.overflow.Load(),
	}
}

// Close stops the reader. Registered streams must be closed by their owners.
func (r *Router) Close() {
	r.mu.Lock()
	r.closed = true
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (r *Router) unregister(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.streams[id]; ok {
		delete(r.streams, id)
		close(ch)
	}
}

// Stream is the view of one probe stream on the shared transport.
type Stream struct {
	// ID is the echo identifier of the stream.
	ID        int
	replies   chan transport.Reply
	router    *Router
	transport Transport
	once      sync.Once
}

// Replies returns the inbox of the stream. It is closed by [Stream.Close].
func (s *Stream) Replies() <-chan transport.Reply {
	return s.replies
}

// Send sends an echo request carrying the stream's identifier.
func (s *Stream) Send(ctx context.Context, req transport.EchoRequest) (time.Time, error) {
	req.ID = s.ID
	return s.transport.SendEcho(ctx, req)
}

// Unmatched records a reply the stream could not correlate.
func (s *Stream) Unmatched() {
	s.router.CountUnmatched()
}

// Close releases the identifier of the stream.
func (s *Stream) Close() {
	s.once.Do(func() { s.router.unregister(s.ID) })
}
