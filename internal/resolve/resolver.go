// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package resolve looks up the reverse DNS names of hop addresses.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	resolvConf     = "/etc/resolv.conf"
	defaultTimeout = 2 * time.Second
)

// ErrNoName is returned when an address has no PTR record.
var ErrNoName = errors.New("no PTR record")

// Config configures the reverse resolver.
type Config struct {
	// Enabled turns reverse lookups of hop addresses on.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	// Server is the DNS server as host:port. Empty uses the first nameserver of /etc/resolv.conf.
	Server string `json:"server" yaml:"server" mapstructure:"server"`
	// Timeout bounds a single lookup.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return errors.New("resolver timeout must not be negative")
	}
	if c.Server != "" {
		if _, _, err := net.SplitHostPort(c.Server); err != nil {
			return fmt.Errorf("resolver server %q must be host:port: %w", c.Server, err)
		}
	}
	return nil
}

// Resolver sends PTR queries to a single DNS server.
type Resolver struct {
	client *dns.Client
	server string
}

// New creates a resolver from the configuration.
func New(cfg Config) (*Resolver, error) {
	server := cfg.Server
	if server == "" {
		cc, err := dns.ClientConfigFromFile(resolvConf)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", resolvConf, err)
		}
		if len(cc.Servers) == 0 {
			return nil, fmt.Errorf("no nameserver in %s", resolvConf)
		}
		server = net.JoinHostPort(cc.Servers[0], cc.Port)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Resolver{
		client: &dns.Client{Timeout: timeout},
		server: server,
	}, nil
}

// LookupAddr returns the first PTR name of addr without the trailing dot.
func (r *Resolver) LookupAddr(ctx context.Context, addr netip.Addr) (string, error) {
	arpa, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return "", fmt.Errorf("failed to build reverse name for %s: %w", addr, err)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return "", fmt.Errorf("failed to query %s: %w", r.server, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("%w for %s: %s", ErrNoName, addr, dns.RcodeToString[resp.Rcode])
	}
	for _, rr := range resp.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", fmt.Errorf("%w for %s", ErrNoName, addr)
}

func (r *Resolver) String() string {
	return fmt.Sprintf("reverse resolver(%s)", r.server)
}
