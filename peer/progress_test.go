// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package peer

import (
	"context"
	"testing"
	"time"
)

type countParams struct {
	Steps int `json:"steps"`
}

type countResult struct {
	Counted int `json:"counted"`
}

var countMethod = Method[*countParams, *countResult]{Name: "test/count"}

// TestCallWithProgressDeliversToken exercises the full progress loop: the
// caller attaches a progressToken, the handler reads it back off its
// request meta and emits one notifications/progress per step, and the
// caller's observer sees every step before the call resolves.
func TestCallWithProgressDeliversToken(t *testing.T) {
	client, server := connectPair(t)

	RegisterHandler(server.Engine, countMethod, func(ctx context.Context, rc *RequestContext, params *countParams) (*countResult, error) {
		if _, ok := rc.Meta().ProgressToken(); !ok {
			t.Error("handler saw no progressToken on request meta")
		}
		for i := 1; i <= params.Steps; i++ {
			if err := rc.SendProgress(ctx, float64(i), float64(params.Steps), "counting"); err != nil {
				return nil, err
			}
		}
		return &countResult{Counted: params.Steps}, nil
	})

	progressCh := make(chan float64, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := CallWithProgress(ctx, client.Engine, countMethod, &countParams{Steps: 3}, "tok-1",
		func(progress, total float64, message string) {
			progressCh <- progress
		})
	if err != nil {
		t.Fatalf("CallWithProgress: %v", err)
	}
	if result.Counted != 3 {
		t.Fatalf("result.Counted = %d, want 3", result.Counted)
	}

	// Notifications travel the same ordered connection as the response, so
	// all three must already be buffered (or arrive promptly).
	for want := 1.0; want <= 3.0; want++ {
		select {
		case got := <-progressCh:
			if got != want {
				t.Errorf("progress = %v, want %v", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for progress step %v", want)
		}
	}
}

// TestOrphanProgressTokenDropped verifies that an inbound progress
// notification carrying a token no observer registered is dropped without
// disturbing the connection.
func TestOrphanProgressTokenDropped(t *testing.T) {
	client, server := connectPair(t)

	if err := Notify(context.Background(), server.Engine, "notifications/progress", &ProgressParams{
		ProgressToken: "nobody-home",
		Progress:      1,
	}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	// The connection must remain healthy afterwards.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := Ping(ctx, client.Engine); err != nil {
		t.Fatalf("Ping after orphan progress: %v", err)
	}
}
