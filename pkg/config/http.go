// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/telekom/netops/internal/helper"
	"github.com/telekom/netops/internal/logger"
	"gopkg.in/yaml.v3"
)

var _ Loader = (*HttpLoader)(nil)

// HttpLoader fetches the profile from a remote endpoint.
type HttpLoader struct {
	poller
	cfg    HttpLoaderConfig
	client *http.Client
}

func NewHttpLoader(cfg *Config, cProfile chan<- Profile) *HttpLoader {
	h := &HttpLoader{
		cfg:    cfg.Loader.Http,
		client: &http.Client{Timeout: cfg.Loader.Http.Timeout},
	}
	h.poller = newPoller("http", cfg.Loader.Interval, h.fetch, cProfile)
	return h
}

// Run delivers the remote profile. Failed requests are retried with an
// exponential backoff before the loader waits for the next interval.
func (h *HttpLoader) Run(ctx context.Context) error {
	return h.run(ctx)
}

func (h *HttpLoader) fetch(ctx context.Context) (Profile, error) {
	var profile Profile
	get := helper.Retry(func(ctx context.Context) (err error) {
		profile, err = h.getProfile(ctx)
		return err
	}, h.cfg.RetryCfg)
	if err := get(ctx); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// getProfile requests the profile once.
func (h *HttpLoader) getProfile(ctx context.Context) (profile Profile, err error) {
	log := logger.FromContext(ctx).With("url", h.cfg.Url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.Url, http.NoBody)
	if err != nil {
		log.ErrorContext(ctx, "Could not create http GET request", "error", err)
		return profile, err
	}
	if h.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.Token)
	}

	res, err := h.client.Do(req) //nolint:gosec // url is configured by the operator
	if err != nil {
		log.ErrorContext(ctx, "Http get request failed", "error", err)
		return profile, err
	}
	defer func() {
		if cerr := res.Body.Close(); cerr != nil {
			log.ErrorContext(ctx, "Failed to close response body", "error", cerr)
		}
	}()

	if res.StatusCode != http.StatusOK {
		log.ErrorContext(ctx, "Http get request failed", "status", res.Status)
		return profile, ErrUnexpectedStatus{Code: res.StatusCode}
	}

	b, err := io.ReadAll(res.Body)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read response body", "error", err)
		return profile, fmt.Errorf("failed to read response body: %w", err)
	}
	if err := yaml.Unmarshal(b, &profile); err != nil {
		log.ErrorContext(ctx, "Failed to parse profile", "error", err)
		return profile, fmt.Errorf("failed to parse profile: %w", err)
	}
	return profile, nil
}

// Shutdown stops the loader.
func (h *HttpLoader) Shutdown(ctx context.Context) {
	logger.FromContext(ctx).DebugContext(ctx, "Sending signal to shut down http loader")
	h.shutdown()
}
