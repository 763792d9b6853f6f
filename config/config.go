// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config loads the tunables an embedder sets on the peer engine,
// the Unix-domain-socket transport, and the HTTP session layer: nothing
// the wire protocol itself negotiates. Command-line wiring remains an
// external collaborator; this package only loads and validates the
// Options value. A caller copies its fields into peer.Options,
// transport.NewUnixServer's arguments, and the httpmcp handler's With*
// setters; none of those takes a config.Options directly.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"
)

// UnixCleanupPolicy mirrors transport.UnixCleanupPolicy as a config-file
// friendly string so YAML/env sources don't need to know the transport
// package's integer enum.
type UnixCleanupPolicy string

const (
	CleanupRemoveExisting  UnixCleanupPolicy = "remove_existing"
	CleanupFailIfExists    UnixCleanupPolicy = "fail_if_exists"
	CleanupReuseIfPossible UnixCleanupPolicy = "reuse_if_possible"
)

// Options is the top-level configuration for an embedded peer engine. It
// intentionally excludes anything the wire protocol negotiates at
// initialize (protocol version, capabilities): those live on Client/Server
// construction, not here.
type Options struct {
	// Unix configures the Unix-domain-socket transport when the embedder
	// uses it.
	Unix UnixConfig `yaml:"unix" mapstructure:"unix"`

	// HTTP configures the stateful/stateless HTTP+SSE session layer.
	HTTP HTTPConfig `yaml:"http" mapstructure:"http"`

	// EventStore configures the per-session SSE replay ring (C8).
	EventStore EventStoreConfig `yaml:"event_store" mapstructure:"event_store"`

	// RateLimit configures outbound request throttling.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// RequestTimeout is a default deadline for outbound requests, returned
	// parsed by RequestDeadline. The peer engine does not read it; it adds
	// no deadline to a call on its own. Empty means no default deadline.
	RequestTimeout string `yaml:"request_timeout" mapstructure:"request_timeout" validate:"omitempty"`

	// Strict enables capability gating (peer.Options.Strict): outbound
	// calls requiring a capability the remote did not advertise fail
	// locally before any bytes are sent.
	Strict bool `yaml:"strict" mapstructure:"strict"`
}

// UnixConfig configures transport.UnixServer.
type UnixConfig struct {
	// Path is the bind path for the server side. Empty disables the
	// Unix transport.
	Path string `yaml:"path" mapstructure:"path"`

	// Cleanup selects the behavior when Path already exists on disk.
	// Defaults to "remove_existing".
	Cleanup UnixCleanupPolicy `yaml:"cleanup" mapstructure:"cleanup" validate:"omitempty,oneof=remove_existing fail_if_exists reuse_if_possible"`
}

// HTTPConfig configures the httpmcp session layer.
type HTTPConfig struct {
	// MaxBodyBytes bounds a POST body. Defaults to httpmcp.DefaultMaxBodyBytes
	// (4 MiB) when zero.
	MaxBodyBytes int64 `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"omitempty,min=1"`

	// SessionIdleTimeout is an idle period for stateful sessions. Validate
	// checks that it parses as a duration; the httpmcp handlers do not
	// read it and do not tear down idle sessions.
	SessionIdleTimeout string `yaml:"session_idle_timeout" mapstructure:"session_idle_timeout" validate:"omitempty"`
}

// EventStoreConfig configures httpmcp.EventStore's per-stream ring.
type EventStoreConfig struct {
	// MaxEventsPerStream bounds the number of buffered SSE frames kept
	// for resumption, per stream. Defaults to 256 when zero; a negative
	// value means unbounded.
	MaxEventsPerStream int `yaml:"max_events_per_stream" mapstructure:"max_events_per_stream"`
}

// RateLimitConfig configures a token-bucket limiter (golang.org/x/time/rate)
// applied to outbound requests a Client or Server issues.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// RequestsPerSecond is the sustained rate. Defaults to 50 when
	// Enabled and zero.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"omitempty,gt=0"`
	// Burst is the maximum number of requests admitted in a single
	// instant. Defaults to RequestsPerSecond's integer part (at least 1)
	// when zero.
	Burst int `yaml:"burst" mapstructure:"burst" validate:"omitempty,min=1"`
}

// SetDefaults fills zero-valued optional fields with the values the rest
// of this repo's packages use as their own internal defaults, so a
// partially-specified Options behaves identically to omitting it
// entirely.
func (o *Options) SetDefaults() {
	if o.Unix.Cleanup == "" {
		o.Unix.Cleanup = CleanupRemoveExisting
	}
	if o.EventStore.MaxEventsPerStream == 0 {
		o.EventStore.MaxEventsPerStream = 256
	}
	if o.RateLimit.Enabled {
		if o.RateLimit.RequestsPerSecond == 0 {
			o.RateLimit.RequestsPerSecond = 50
		}
		if o.RateLimit.Burst == 0 {
			o.RateLimit.Burst = int(o.RateLimit.RequestsPerSecond)
			if o.RateLimit.Burst < 1 {
				o.RateLimit.Burst = 1
			}
		}
	}
}

// Validate runs struct-tag validation and the cross-field checks that
// tags alone cannot express.
func (o *Options) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(o); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if o.RequestTimeout != "" {
		if _, err := time.ParseDuration(o.RequestTimeout); err != nil {
			return fmt.Errorf("config: request_timeout: %w", err)
		}
	}
	if o.HTTP.SessionIdleTimeout != "" {
		if _, err := time.ParseDuration(o.HTTP.SessionIdleTimeout); err != nil {
			return fmt.Errorf("config: http.session_idle_timeout: %w", err)
		}
	}
	return nil
}

// EventStoreCapacity returns the per-stream ring size to pass to
// httpmcp.NewEventStore, translating the unbounded sentinel (negative)
// into httpmcp's own convention (<=0).
func (o *Options) EventStoreCapacity() int {
	if o.EventStore.MaxEventsPerStream < 0 {
		return 0
	}
	return o.EventStore.MaxEventsPerStream
}

// Limiter builds the token-bucket limiter peer.Options.Limiter expects,
// or nil when rate limiting is disabled.
func (o *Options) Limiter() *rate.Limiter {
	if !o.RateLimit.Enabled {
		return nil
	}
	return rate.NewLimiter(rate.Limit(o.RateLimit.RequestsPerSecond), o.RateLimit.Burst)
}

// RequestDeadline returns the parsed default deadline, or zero if none is
// configured.
func (o *Options) RequestDeadline() time.Duration {
	if o.RequestTimeout == "" {
		return 0
	}
	d, _ := time.ParseDuration(o.RequestTimeout) // validated by Validate
	return d
}
