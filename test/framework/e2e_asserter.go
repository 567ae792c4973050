// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package framework

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telekom/netops/pkg/telemetry"
)

// e2eTimeMargin defines the acceptable age of a snapshot.
const e2eTimeMargin = 30 * time.Second

// e2eHttpAsserter is an HTTP asserter for end-to-end tests.
type e2eHttpAsserter struct {
	e2e      *E2E
	url      string
	snapshot func(t *testing.T, s *telemetry.Snapshot)
	schema   *openapi3.T
	router   routers.Router
}

// HttpAssertion creates a new HTTP assertion for the given URL.
func (e *E2E) HttpAssertion(u string) *e2eHttpAsserter {
	return &e2eHttpAsserter{e2e: e, url: u}
}

// Assert asserts the status code and then runs the schema and snapshot validations.
func (a *e2eHttpAsserter) Assert(status int) {
	a.e2e.t.Helper()
	if !a.e2e.isRunning() {
		a.e2e.t.Fatal("e2eHttpAsserter.Assert must be called after E2E.Run")
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, a.url, http.NoBody)
	if err != nil {
		a.e2e.t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		a.e2e.t.Errorf("Failed to get %s: %v", a.url, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(a.e2e.t, status, resp.StatusCode, "Unexpected status code for %s", a.url)
	if resp.StatusCode != http.StatusOK {
		return
	}

	if a.router != nil {
		if err = a.assertSchema(req, resp); err != nil {
			a.e2e.t.Errorf("Response from %q does not match schema: %v", a.url, err)
		}
	}
	if a.snapshot != nil {
		a.assertSnapshot(resp)
	}
}

// WithSchema fetches the OpenAPI schema and creates a router for response validation.
func (a *e2eHttpAsserter) WithSchema() *e2eHttpAsserter {
	a.e2e.t.Helper()
	schema, err := a.fetchSchema()
	if err != nil {
		a.e2e.t.Fatalf("Failed to fetch OpenAPI schema: %v", err)
	}

	router, err := legacy.NewRouter(schema)
	if err != nil {
		a.e2e.t.Fatalf("Failed to create router from OpenAPI schema: %v", err)
	}

	a.schema = schema
	a.router = router
	return a
}

// WithSnapshot decodes the response as snapshot and hands it to assertFn.
// Packets cannot be decoded; the url must request the snapshot without them.
func (a *e2eHttpAsserter) WithSnapshot(assertFn func(t *testing.T, s *telemetry.Snapshot)) *e2eHttpAsserter {
	a.snapshot = assertFn
	return a
}

// fetchSchema retrieves the OpenAPI schema from the server.
// The server of the schema is set to the asserted url.
func (a *e2eHttpAsserter) fetchSchema() (*openapi3.T, error) {
	ctx := context.Background()
	u, err := url.Parse(a.url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	u.Path, u.RawQuery = "/openapi", ""

	resp, err := get(u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to GET OpenAPI schema: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read OpenAPI schema: %w", err)
	}

	schema, err := openapi3.NewLoader().LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI schema: %w", err)
	}
	if err = schema.Validate(ctx); err != nil {
		return nil, fmt.Errorf("OpenAPI schema validation error: %w", err)
	}

	u.Path = ""
	schema.Servers = openapi3.Servers{{URL: u.String()}}
	return schema, nil
}

// assertSchema validates the response against the operation of its route.
func (a *e2eHttpAsserter) assertSchema(req *http.Request, resp *http.Response) error {
	route, params, err := a.router.FindRoute(req)
	if err != nil {
		return fmt.Errorf("failed to find route: %w", err)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: params,
			Route:      route,
		},
		Status:  resp.StatusCode,
		Header:  resp.Header,
		Body:    io.NopCloser(bytes.NewReader(data)),
		Options: &openapi3filter.Options{IncludeResponseStatus: true},
	}
	return openapi3filter.ValidateResponse(req.Context(), input)
}

// assertSnapshot decodes the snapshot, checks that it is recent and runs the custom assertions.
func (a *e2eHttpAsserter) assertSnapshot(resp *http.Response) {
	var s telemetry.Snapshot
	err := json.NewDecoder(resp.Body).Decode(&s)
	require.NoError(a.e2e.t, err, "Failed to decode snapshot")

	assert.NotZero(a.e2e.t, s.Generation, "Snapshot was never published")
	assert.WithinDuration(a.e2e.t, time.Now(), s.Timestamp, e2eTimeMargin, "Snapshot is not recent")
	a.snapshot(a.e2e.t, &s)
}
