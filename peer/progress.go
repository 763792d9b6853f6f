// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package peer

import (
	"fmt"

	"github.com/mcpcore/go-peer/internal/jsonrpc2"
)

// ProgressParams is the payload of a notifications/progress notification.
// ProgressToken correlates the notification back to the request that
// carried it in its _meta.progressToken field.
type ProgressParams struct {
	ProgressToken any     `json:"progressToken"`
	Progress      float64 `json:"progress"`
	Total         float64 `json:"total,omitempty"`
	Message       string  `json:"message,omitempty"`
}

// CancelledParams is the payload of a notifications/cancelled notification.
type CancelledParams struct {
	RequestID jsonrpc2.ID `json:"requestId"`
	Reason    string      `json:"reason,omitempty"`
}

// ObserveProgress registers fn to receive notifications/progress
// notifications carrying the given token, until the returned cancel
// function is called. Orphan progress notifications (no registered
// observer for their token) are logged and dropped.
func (e *Engine) ObserveProgress(token any, fn func(progress, total float64, message string)) (cancel func()) {
	key := progressKey(token)
	e.progressMu.Lock()
	e.progress[key] = fn
	e.progressMu.Unlock()
	return func() {
		e.progressMu.Lock()
		delete(e.progress, key)
		e.progressMu.Unlock()
	}
}

func (e *Engine) dispatchProgress(params ProgressParams) {
	key := progressKey(params.ProgressToken)
	e.progressMu.Lock()
	fn, ok := e.progress[key]
	e.progressMu.Unlock()
	if !ok {
		e.logger.Debug("peer: progress notification for unknown token, dropping", "token", key)
		return
	}
	fn(params.Progress, params.Total, params.Message)
}

func progressKey(token any) string {
	return fmt.Sprintf("%v", token)
}
