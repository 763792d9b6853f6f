// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package peer

import "context"

// PingParams is the (empty) payload of a ping request.
type PingParams struct{}

// PingResult is the (empty) result of a ping request.
type PingResult struct{}

// pingMethod is usable by either role; ping carries no capability
// requirement, since every peer must answer it regardless of what was
// negotiated at initialize.
var pingMethod = Method[*PingParams, *PingResult]{Name: "ping"}

// registerDefaultPingHandler installs the default ping handler, which
// simply returns an empty result. Callers may override it with
// RegisterHandler(e, pingMethod, ...) before Run to customize behavior
// (for example to observe liveness).
func registerDefaultPingHandler(e *Engine) {
	RegisterHandler(e, pingMethod, func(ctx context.Context, rc *RequestContext, params *PingParams) (*PingResult, error) {
		return &PingResult{}, nil
	})
}

// Ping sends a ping request to the remote peer and waits for its reply.
func Ping(ctx context.Context, e *Engine) error {
	_, err := Call(ctx, e, pingMethod, &PingParams{})
	return err
}
