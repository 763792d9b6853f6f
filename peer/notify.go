// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package peer

import (
	"context"
	"fmt"

	intjson "github.com/mcpcore/go-peer/internal/json"
	"github.com/mcpcore/go-peer/internal/jsonrpc2"
)

// Notify sends a fire-and-forget notification carrying params, which may
// be nil.
func Notify(ctx context.Context, e *Engine, method string, params any) error {
	var raw intjson.RawMessage
	if params != nil {
		encoded, err := intjson.Marshal(params)
		if err != nil {
			return fmt.Errorf("peer: encoding params for %s: %w", method, err)
		}
		raw = encoded
	}
	n := &jsonrpc2.Notification{Method: method, Params: raw}
	e.writeMessage(n)
	if e.metrics != nil {
		e.metrics.NotificationsTotal.WithLabelValues(method, "out").Inc()
	}
	return nil
}
