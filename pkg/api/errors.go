// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAddress is returned for a listening address that is not host:port
	ErrInvalidAddress = errors.New("invalid api listening address")
	// ErrNoSnapshot is returned before the first snapshot was published
	ErrNoSnapshot = errors.New("no snapshot published yet")
	// errBadRequest marks malformed request bodies
	errBadRequest = errors.New("bad request")
)

type ErrCreateOpenapiSchema struct {
	name string
	err  error
}

func (e ErrCreateOpenapiSchema) Error() string {
	return fmt.Sprintf("failed to get schema for %s: %v", e.name, e.err)
}

func (e ErrCreateOpenapiSchema) Unwrap() error {
	return e.err
}
