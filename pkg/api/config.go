// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"fmt"
	"net"
)

// Config is the configuration of the api server
type Config struct {
	// ListeningAddress is the host:port the server listens on. Empty disables the server.
	ListeningAddress string `yaml:"address" mapstructure:"address"`
}

// Validate checks the listening address.
func (c *Config) Validate() error {
	if c.ListeningAddress == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.ListeningAddress); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return nil
}
