// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package capture reads frames from the capture handle, decodes them into a
// closed set of protocol layers, applies the active filter and keeps the
// matching packets in a bounded ring buffer.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/telekom/netops/internal/logger"
	"github.com/telekom/netops/internal/transport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrAlreadyRunning is returned when a capture is started twice.
	ErrAlreadyRunning = errors.New("capture already running")
	// ErrNotRunning is returned when no capture session exists.
	ErrNotRunning = errors.New("capture not running")
)

//go:generate go tool moq -out opener_moq.go . Opener

// Opener acquires the capture handle.
type Opener interface {
	OpenCapture(ctx context.Context, name string, opts transport.CaptureOptions) (*transport.Capture, error)
}

var _ Opener = (*transport.Transport)(nil)

// State is an immutable view of the pipeline.
type State struct {
	// Interface is the captured interface or file.
	Interface string `json:"interface,omitempty" yaml:"interface,omitempty"`
	Running   bool   `json:"running" yaml:"running"`
	// Started is the start time of the current session.
	Started  time.Time       `json:"started,omitzero" yaml:"started,omitempty"`
	LinkType layers.LinkType `json:"linkType" yaml:"linkType"`
	Filter   string          `json:"filter" yaml:"filter"`
	Capacity int             `json:"capacity" yaml:"capacity"`
	// Packets are the buffered packets in arrival order.
	Packets []*Packet `json:"packets" yaml:"-"`
	// Dropped counts packets evicted from the full buffer.
	Dropped uint64 `json:"dropped" yaml:"dropped"`
	// Malformed counts frames that failed to decode.
	Malformed uint64 `json:"malformed" yaml:"malformed"`
	// Filtered counts decoded frames rejected by the filter.
	Filtered uint64 `json:"filtered" yaml:"filtered"`
	// Overruns counts frames lost because the decoder fell behind.
	Overruns uint64  `json:"overruns" yaml:"overruns"`
	Traffic  Traffic `json:"traffic" yaml:"traffic"`
	// Err is the reason the last session ended on its own.
	Err string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Pipeline owns the capture session and its packet buffer.
type Pipeline struct {
	opener Opener
	opts   Options
	buffer *Buffer
	filter atomic.Pointer[Filter]
	tracer trace.Tracer

	mu      sync.Mutex
	session *session

	malformed atomic.Uint64
	filtered  atomic.Uint64
	overruns  atomic.Uint64
	seq       atomic.Uint64

	trafficMu sync.Mutex
	traffic   *trafficCounter
}

// New creates a pipeline acquiring its handle through opener.
// Zero fields of opts take the values of [DefaultOptions].
func New(opener Opener, opts Options) (*Pipeline, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		opener:  opener,
		opts:    opts,
		buffer:  NewBuffer(opts.Capacity),
		tracer:  otel.Tracer("capture"),
		traffic: newTrafficCounter(nil),
	}, nil
}

// frame is a raw frame handed from the reader to the decoder.
type frame struct {
	data []byte
	ci   gopacket.CaptureInfo
}

// session is one capture run from start until stop or end of input.
type session struct {
	handle  *transport.Capture
	log     *slog.Logger
	link    layers.LinkType
	started time.Time
	queue   chan frame
	cancel  context.CancelFunc
	// read is closed once the reader exited, done once the decoder exited.
	read    chan struct{}
	done    chan struct{}
	running atomic.Bool
	err     atomic.Pointer[error]
}

// SetFilter compiles expr and applies it to frames arriving from now on.
// Buffered packets are not filtered again. An empty expr matches everything.
func (p *Pipeline) SetFilter(expr string) error {
	f, err := ParseFilter(expr)
	if err != nil {
		return err
	}
	p.filter.Store(f)
	return nil
}

// Filter returns the active filter expression.
func (p *Pipeline) Filter() string {
	return p.filter.Load().String()
}

// Start opens the capture handle for iface and starts reading from it.
// The buffer and all counters are reset. The session outlives ctx; it
// runs until [Pipeline.Stop] or the end of a replayed file.
func (p *Pipeline) Start(ctx context.Context, iface string) error {
	ctx, span := p.tracer.Start(ctx, "capture.Start", trace.WithAttributes(attribute.String("interface", iface)))
	defer span.End()
	log := logger.FromContext(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		if p.session.running.Load() {
			span.SetStatus(codes.Error, "already running")
			return ErrAlreadyRunning
		}
		p.closeSession(p.session)
		p.session = nil
	}

	handle, err := p.opener.OpenCapture(ctx, iface, transport.CaptureOptions{Promiscuous: p.opts.Promiscuous})
	if err != nil {
		log.ErrorContext(ctx, "Failed to open capture", "interface", iface, "error", err)
		span.SetStatus(codes.Error, "open failed")
		span.RecordError(err)
		return fmt.Errorf("failed to start capture on %s: %w", iface, err)
	}

	p.reset(handle.Networks())
	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{
		handle:  handle,
		log:     log.With("interface", iface),
		link:    handle.LinkType(),
		started: time.Now(),
		queue:   make(chan frame, p.opts.Queue),
		cancel:  cancel,
		read:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.running.Store(true)
	p.session = s

	s.log.InfoContext(ctx, "Capture started", "linkType", s.link.String(), "offline", handle.Offline())
	go p.read(lctx, s)
	go p.decode(lctx, s)
	return nil
}

// Stop ends the capture session and releases the handle.
// The buffered packets stay available until the next [Pipeline.Start].
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return ErrNotRunning
	}
	p.closeSession(p.session)
	return nil
}

// closeSession cancels s and waits for its reader before the handle is
// released. A live reader notices the cancellation within one poll interval.
func (p *Pipeline) closeSession(s *session) {
	s.cancel()
	<-s.read
	if err := s.handle.Close(); err != nil {
		s.log.Warn("Failed to close capture handle", "error", err)
	}
	<-s.done
}

// Running reports whether a capture session is active.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session != nil && p.session.running.Load()
}

func (p *Pipeline) reset(networks []transport.Network) {
	p.buffer.Reset()
	p.malformed.Store(0)
	p.filtered.Store(0)
	p.overruns.Store(0)
	p.seq.Store(0)
	p.trafficMu.Lock()
	p.traffic = newTrafficCounter(networks)
	p.trafficMu.Unlock()
}

// read drains the handle into the queue. A live capture never blocks on a full
// queue and counts the frame as overrun; a replayed file waits for the decoder.
func (p *Pipeline) read(ctx context.Context, s *session) {
	defer close(s.read)
	defer close(s.queue)
	offline := s.handle.Offline()
	for {
		data, ci, err := s.handle.ReadPacketData()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if errors.Is(err, transport.ErrReadTimeout) {
				continue
			}
			if errors.Is(err, io.EOF) {
				s.log.InfoContext(ctx, "Capture input exhausted")
				return
			}
			s.log.ErrorContext(ctx, "Failed to read frame", "error", err)
			s.err.Store(&err)
			return
		}
		if len(data) > p.opts.SnapLen {
			data = data[:p.opts.SnapLen]
		}

		f := frame{data: data, ci: ci}
		if offline {
			select {
			case s.queue <- f:
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case s.queue <- f:
		default:
			p.overruns.Add(1)
		}
	}
}

// decode is the only writer of the buffer and the traffic counters.
// When the input ends it releases the handle itself.
func (p *Pipeline) decode(ctx context.Context, s *session) {
	defer close(s.done)
	defer s.running.Store(false)
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-s.queue:
			if !ok {
				s.log.InfoContext(ctx, "Capture session ended")
				if err := s.handle.Close(); err != nil {
					s.log.WarnContext(ctx, "Failed to close capture handle", "error", err)
				}
				return
			}
			p.process(ctx, s.log, s.link, f)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, log *slog.Logger, link layers.LinkType, f frame) {
	seq := p.seq.Add(1)
	chain, err := Decode(firstLayer(link, f.data), f.data)
	if err != nil {
		p.malformed.Add(1)
		log.DebugContext(ctx, "Dropped malformed frame", "seq", seq, "error", err)
		return
	}

	length := f.ci.Length
	if length == 0 {
		length = len(f.data)
	}
	pkt := newPacket(seq, f.ci.Timestamp, length, f.data, chain)

	p.trafficMu.Lock()
	p.traffic.count(pkt)
	p.trafficMu.Unlock()

	pkt.Matched = p.filter.Load().Match(pkt)
	if !pkt.Matched {
		p.filtered.Add(1)
		return
	}
	p.buffer.Push(pkt)
}

// State returns the current view of the pipeline.
func (p *Pipeline) State() State {
	packets, dropped := p.buffer.Contents()
	st := State{
		Filter:    p.Filter(),
		Capacity:  p.buffer.Cap(),
		Packets:   packets,
		Dropped:   dropped,
		Malformed: p.malformed.Load(),
		Filtered:  p.filtered.Load(),
		Overruns:  p.overruns.Load(),
	}
	p.trafficMu.Lock()
	st.Traffic = p.traffic.t
	p.trafficMu.Unlock()

	p.mu.Lock()
	s := p.session
	p.mu.Unlock()
	if s != nil {
		st.Interface = s.handle.Name()
		st.Running = s.running.Load()
		st.Started = s.started
		st.LinkType = s.link
		if err := s.err.Load(); err != nil {
			st.Err = (*err).Error()
		}
	}
	return st
}

// WritePcap exports the buffered frames as a pcap stream.
func (p *Pipeline) WritePcap(w io.Writer) error {
	link := layers.LinkTypeEthernet
	p.mu.Lock()
	if p.session != nil {
		link = p.session.link
	}
	p.mu.Unlock()
	return p.buffer.WritePcap(w, uint32(p.opts.SnapLen), link) //nolint:gosec // validated range
}
