// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads Options from configFile (YAML) if non-empty, overlays
// environment variables under the MCPCORE_ prefix (e.g.
// MCPCORE_HTTP_MAX_BODY_BYTES overrides http.max_body_bytes), applies
// defaults, and validates the result.
//
// Load uses a private *viper.Viper rather than viper's package-level
// singleton so an embedder can load more than one engine's Options in
// the same process without the two stepping on each other.
func Load(configFile string) (*Options, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix("MCPCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	opts.SetDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// WriteDefault renders a fully-defaulted Options as YAML and writes it to
// path, for an embedder that wants a starting point to edit rather than
// assembling one by hand. Unlike Load, this bypasses viper entirely: a
// round-trip through it would stringify durations and enums in ways that
// don't read back identically, so this uses gopkg.in/yaml.v3 directly on
// the already-defaulted struct.
func WriteDefault(path string) error {
	var opts Options
	opts.SetDefaults()
	out, err := yaml.Marshal(&opts)
	if err != nil {
		return fmt.Errorf("config: marshal defaults: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}

// bindEnvKeys registers every leaf key so AutomaticEnv picks it up even
// when no config file sets it (viper only binds keys it has seen).
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"unix.path",
		"unix.cleanup",
		"http.max_body_bytes",
		"http.session_idle_timeout",
		"event_store.max_events_per_stream",
		"rate_limit.enabled",
		"rate_limit.requests_per_second",
		"rate_limit.burst",
		"request_timeout",
		"strict",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}
