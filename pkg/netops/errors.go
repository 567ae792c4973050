// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package netops

import (
	"context"
	"errors"
	"fmt"

	"github.com/telekom/netops/internal/logger"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrShutdown holds any errors that may
// have occurred during shutdown of the core
type ErrShutdown struct {
	errAPI       error
	errCapture   error
	errTransport error
	errMetrics   error
}

// HasError returns true if any of the errors are set
func (e ErrShutdown) HasError() bool {
	return e.errAPI != nil || e.errCapture != nil || e.errTransport != nil || e.errMetrics != nil
}

func (e ErrShutdown) Error() string {
	return fmt.Sprintf("failed to shutdown gracefully: %v", e.Unwrap())
}

// Unwrap returns the joined component errors.
func (e ErrShutdown) Unwrap() error {
	return errors.Join(e.errAPI, e.errCapture, e.errTransport, e.errMetrics)
}

// wrapError logs err with the message and the given attributes,
// records it in the current span and wraps it with the message.
func wrapError(ctx context.Context, err error, msg string, attrs ...any) error {
	if err == nil {
		return nil
	}
	log := logger.FromContext(ctx)
	span := trace.SpanFromContext(ctx)
	caser := cases.Title(language.English)

	log.ErrorContext(ctx, caser.String(msg), append([]any{"error", err}, attrs...)...)
	span.SetStatus(codes.Error, msg)
	span.RecordError(err)
	return fmt.Errorf("%s: %w", msg, err)
}
