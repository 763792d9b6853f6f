// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	var o Options
	o.SetDefaults()

	require.Equal(t, CleanupRemoveExisting, o.Unix.Cleanup)
	require.Equal(t, 256, o.EventStore.MaxEventsPerStream)
	require.False(t, o.RateLimit.Enabled)
	require.Zero(t, o.RateLimit.RequestsPerSecond)
}

func TestSetDefaultsRateLimitEnabled(t *testing.T) {
	o := Options{RateLimit: RateLimitConfig{Enabled: true}}
	o.SetDefaults()

	require.Equal(t, 50.0, o.RateLimit.RequestsPerSecond)
	require.Equal(t, 50, o.RateLimit.Burst)
}

func TestValidateRejectsUnknownCleanupPolicy(t *testing.T) {
	o := Options{Unix: UnixConfig{Cleanup: "bogus"}}
	o.SetDefaults()
	require.Error(t, o.Validate())
}

func TestValidateRejectsMalformedDeadline(t *testing.T) {
	o := Options{RequestTimeout: "not-a-duration"}
	o.SetDefaults()
	require.Error(t, o.Validate())
}

func TestEventStoreCapacityUnboundedSentinel(t *testing.T) {
	o := Options{EventStore: EventStoreConfig{MaxEventsPerStream: -1}}
	require.Equal(t, 0, o.EventStoreCapacity())
}

func TestLimiterDisabledByDefault(t *testing.T) {
	var o Options
	o.SetDefaults()
	require.Nil(t, o.Limiter())
}

func TestLimiterConstructedWhenEnabled(t *testing.T) {
	o := Options{RateLimit: RateLimitConfig{Enabled: true, RequestsPerSecond: 10, Burst: 5}}
	o.SetDefaults()
	limiter := o.Limiter()
	require.NotNil(t, limiter)
	require.Equal(t, 5, limiter.Burst())
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peer.yaml")
	yaml := []byte("strict: true\nhttp:\n  max_body_bytes: 1048576\nunix:\n  cleanup: fail_if_exists\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	opts, err := Load(path)
	require.NoError(t, err)
	require.True(t, opts.Strict)
	require.EqualValues(t, 1048576, opts.HTTP.MaxBodyBytes)
	require.Equal(t, CleanupFailIfExists, opts.Unix.Cleanup)
	// Untouched fields still receive SetDefaults' values.
	require.Equal(t, 256, opts.EventStore.MaxEventsPerStream)
}

func TestLoadWithoutFileAppliesDefaults(t *testing.T) {
	opts, err := Load("")
	require.NoError(t, err)
	require.Equal(t, CleanupRemoveExisting, opts.Unix.Cleanup)
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "default.yaml")
	require.NoError(t, WriteDefault(path))

	opts, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, CleanupRemoveExisting, opts.Unix.Cleanup)
	require.Equal(t, 256, opts.EventStore.MaxEventsPerStream)
}
