// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"strconv"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/telekom/netops/internal/logger"
	"github.com/telekom/netops/internal/transport"
	"github.com/telekom/netops/pkg/capture"
	"github.com/telekom/netops/pkg/mtr"
	"github.com/telekom/netops/pkg/ping"
	"github.com/telekom/netops/pkg/probe"
	"github.com/telekom/netops/pkg/telemetry"
)

const maxBodySize = 1 << 16

type pingRequest struct {
	Host              string   `json:"host"`
	Interval          Duration `json:"interval"`
	PayloadSize       *int     `json:"payloadSize"`
	TimeoutMultiplier int      `json:"timeoutMultiplier"`
	Window            int      `json:"window"`
	Count             int      `json:"count"`
	TTL               int      `json:"ttl"`
}

type mtrRequest struct {
	Host              string   `json:"host"`
	MaxTTL            int      `json:"maxTTL"`
	RoundInterval     Duration `json:"roundInterval"`
	ProbeGap          Duration `json:"probeGap"`
	TimeoutMultiplier int      `json:"timeoutMultiplier"`
	Window            int      `json:"window"`
	Rounds            int      `json:"rounds"`
	PayloadSize       *int     `json:"payloadSize"`
}

type captureRequest struct {
	Interface string `json:"interface"`
}

type filterRequest struct {
	Filter string `json:"filter"`
}

type handleResponse struct {
	Handle probe.Handle `json:"handle"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) getSnapshot(w http.ResponseWriter, r *http.Request) {
	s := a.ctrl.Latest()
	if s == nil {
		a.writeError(w, r, ErrNoSnapshot)
		return
	}
	writeJSON(w, r, http.StatusOK, view(s, withPackets(r)))
}

// streamSnapshots upgrades to a websocket and writes every snapshot the
// subscription yields until the client goes away or the bus stops.
func (a *API) streamSnapshots(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.DebugContext(r.Context(), "Websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// the read pump notices a closed client
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	packets := withPackets(r)
	log.DebugContext(ctx, "Snapshot stream opened", "remote", r.RemoteAddr)
	for s := range a.ctrl.Subscribe(ctx) {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(view(s, packets)); err != nil {
			log.DebugContext(ctx, "Snapshot stream closed", "error", err)
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (a *API) startPing(w http.ResponseWriter, r *http.Request) {
	var req pingRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	h, err := a.ctrl.StartPingWithOptions(r.Context(), req.Host, ping.Options{
		Interval:          time.Duration(req.Interval),
		PayloadSize:       req.PayloadSize,
		TimeoutMultiplier: req.TimeoutMultiplier,
		Window:            req.Window,
		Count:             req.Count,
		TTL:               req.TTL,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, handleResponse{Handle: h})
}

func (a *API) startMTR(w http.ResponseWriter, r *http.Request) {
	var req mtrRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	h, err := a.ctrl.StartMTRWithOptions(r.Context(), req.Host, mtr.Options{
		MaxTTL:            req.MaxTTL,
		RoundInterval:     time.Duration(req.RoundInterval),
		ProbeGap:          time.Duration(req.ProbeGap),
		TimeoutMultiplier: req.TimeoutMultiplier,
		Window:            req.Window,
		Rounds:            req.Rounds,
		PayloadSize:       req.PayloadSize,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, handleResponse{Handle: h})
}

func (a *API) stopSession(w http.ResponseWriter, r *http.Request) {
	if err := a.ctrl.Stop(probe.Handle(chi.URLParam(r, "id"))); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) startCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.Interface == "" {
		a.writeError(w, r, fmt.Errorf("%w: interface is required", errBadRequest))
		return
	}
	if err := a.ctrl.StartCapture(r.Context(), req.Interface); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) stopCapture(w http.ResponseWriter, r *http.Request) {
	if err := a.ctrl.StopCapture(); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.ctrl.SetCaptureFilter(req.Filter); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getPcap streams the buffered packets as a pcap file.
func (a *API) getPcap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.tcpdump.pcap")
	w.Header().Set("Content-Disposition", `attachment; filename="netops.pcap"`)
	if err := a.ctrl.WritePcap(w); err != nil {
		logger.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to write pcap", "error", err)
	}
}

func (a *API) getOpenapi(w http.ResponseWriter, r *http.Request) {
	doc, err := a.openapi()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, doc)
}

// openapi describes the snapshot endpoint with the schema generated from [telemetry.Snapshot].
func (a *API) openapi() (*openapi3.T, error) {
	schema, err := openapi3gen.NewSchemaRefForValue(&telemetry.Snapshot{}, nil, openapi3gen.SchemaCustomizer(encodedSchema))
	if err != nil {
		return nil, &ErrCreateOpenapiSchema{name: "snapshot", err: err}
	}

	response := openapi3.NewResponse().
		WithDescription("The most recent snapshot of all running tools").
		WithJSONSchemaRef(schema)
	return &openapi3.T{
		OpenAPI: "3.0.0",
		Info: &openapi3.Info{
			Title:   "netops",
			Version: a.version,
		},
		Paths: openapi3.NewPaths(
			openapi3.WithPath("/v1/snapshot", &openapi3.PathItem{
				Get: &openapi3.Operation{
					Summary:   "Latest snapshot",
					Responses: openapi3.NewResponses(openapi3.WithStatus(http.StatusOK, &openapi3.ResponseRef{Value: response})),
				},
			}),
		),
	}, nil
}

var textMarshaler = reflect.TypeFor[encoding.TextMarshaler]()

// encodedSchema adjusts the generated schema to the json encoding:
// text marshalers encode as strings and nil slices, maps and structs behind
// pointers encode as null.
func encodedSchema(_ string, t reflect.Type, _ reflect.StructTag, schema *openapi3.Schema) error {
	if t.Implements(textMarshaler) || reflect.PointerTo(t).Implements(textMarshaler) {
		*schema = *openapi3.NewStringSchema()
		return nil
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Map, reflect.Interface, reflect.Struct:
		schema.Nullable = true
	default:
	}
	return nil
}

// view returns s without the buffered packets unless they were requested.
// The published snapshot is shared and stays untouched.
func view(s *telemetry.Snapshot, packets bool) *telemetry.Snapshot {
	if packets || len(s.Capture.Packets) == 0 {
		return s
	}
	c := *s
	c.Capture.Packets = nil
	return &c
}

// withPackets reads the packets query parameter. Packets are included by default.
func withPackets(r *http.Request) bool {
	v := r.URL.Query().Get("packets")
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	return err != nil || b
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

// status maps the errors of the core to http status codes.
func status(err error) int {
	var (
		pingErr   ping.ErrInvalidOptions
		mtrErr    mtr.ErrInvalidOptions
		filterErr capture.ErrFilterSyntax
		dnsErr    *net.DNSError
	)
	switch {
	case errors.Is(err, errBadRequest),
		errors.As(err, &pingErr),
		errors.As(err, &mtrErr),
		errors.As(err, &filterErr),
		errors.As(err, &dnsErr),
		errors.Is(err, transport.ErrUnsupportedFamily),
		errors.Is(err, transport.ErrNoSuchInterface):
		return http.StatusBadRequest
	case errors.Is(err, probe.ErrUnknownHandle):
		return http.StatusNotFound
	case errors.Is(err, transport.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, capture.ErrAlreadyRunning),
		errors.Is(err, capture.ErrNotRunning),
		errors.Is(err, transport.ErrCaptureBusy):
		return http.StatusConflict
	case errors.Is(err, ErrNoSnapshot),
		errors.Is(err, transport.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := status(err)
	if code >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, r, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to encode response", "error", err)
	}
}
