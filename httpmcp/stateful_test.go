// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpmcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	intjson "github.com/mcpcore/go-peer/internal/json"
	"github.com/mcpcore/go-peer/internal/jsonrpc2"
	"github.com/mcpcore/go-peer/peer"
)

type toolsListResult struct {
	Tools []string `json:"tools"`
}

var toolsListMethod = peer.Method[*struct{}, *toolsListResult]{Name: "tools/list"}

func newPostRequest(t *testing.T, url string, body []byte, sessionID string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	return req
}

// TestStatefulInitListDeleteThenNotFound exercises the literal scenario of
// an initialize, a follow-up request against the session it opened, a
// DELETE that tears the session down, and a subsequent request against the
// now-deleted session id failing with 404.
func TestStatefulInitListDeleteThenNotFound(t *testing.T) {
	handler := NewStatefulHandler(newTestServer(t, func(s *peer.Server) {
		peer.RegisterHandler(s.Engine, toolsListMethod, func(ctx context.Context, rc *peer.RequestContext, params *struct{}) (*toolsListResult, error) {
			return &toolsListResult{Tools: []string{"echo"}}, nil
		})
	}))
	ts := httptest.NewServer(handler)
	defer ts.Close()
	defer handler.CloseAll()

	initResp, err := http.DefaultClient.Do(newPostRequest(t, ts.URL, initializeBody(t, jsonrpc2.Int64ID(1)), ""))
	if err != nil {
		t.Fatalf("initialize POST: %v", err)
	}
	defer initResp.Body.Close()
	if initResp.StatusCode != http.StatusOK {
		t.Fatalf("initialize status = %d, want 200", initResp.StatusCode)
	}
	sessionID := initResp.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		t.Fatal("initialize response missing Mcp-Session-Id header")
	}
	frames := readSSEFrames(t, initResp.Body, 1)
	initRPC := decodeResponse(t, frames[0])
	if initRPC.Err != nil {
		t.Fatalf("initialize returned an error: %+v", initRPC.Err)
	}

	listResp, err := http.DefaultClient.Do(newPostRequest(t, ts.URL, encodeRequest(t, jsonrpc2.Int64ID(2), "tools/list", &struct{}{}), sessionID))
	if err != nil {
		t.Fatalf("tools/list POST: %v", err)
	}
	defer listResp.Body.Close()
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("tools/list status = %d, want 200", listResp.StatusCode)
	}
	// A request POST's stream opens with a priming comment frame; the
	// response is the frame after it.
	listFrames := readSSEFrames(t, listResp.Body, 2)
	listRPC := decodeResponse(t, listFrames[1])
	if listRPC.Err != nil {
		t.Fatalf("tools/list returned an error: %+v", listRPC.Err)
	}
	var result toolsListResult
	if err := intjson.Unmarshal(listRPC.Result, &result); err != nil {
		t.Fatalf("unmarshal tools/list result: %v", err)
	}
	if len(result.Tools) != 1 || result.Tools[0] != "echo" {
		t.Fatalf("tools/list result = %+v, want [echo]", result)
	}

	delReq, err := http.NewRequest(http.MethodDelete, ts.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest DELETE: %v", err)
	}
	delReq.Header.Set("Mcp-Session-Id", sessionID)
	delResp, err := http.DefaultClient.Do(delReq)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE status = %d, want 200", delResp.StatusCode)
	}

	afterResp, err := http.DefaultClient.Do(newPostRequest(t, ts.URL, encodeRequest(t, jsonrpc2.Int64ID(3), "tools/list", &struct{}{}), sessionID))
	if err != nil {
		t.Fatalf("post-delete POST: %v", err)
	}
	defer afterResp.Body.Close()
	if afterResp.StatusCode != http.StatusNotFound {
		t.Fatalf("post-delete status = %d, want 404", afterResp.StatusCode)
	}
}

// TestStatefulSecondGetConflicts exercises the one-standalone-stream rule:
// a second GET while the first is still open must fail with 409, not queue
// or replace it.
func TestStatefulSecondGetConflicts(t *testing.T) {
	handler := NewStatefulHandler(newTestServer(t, nil))
	ts := httptest.NewServer(handler)
	defer ts.Close()
	defer handler.CloseAll()

	initResp, err := http.DefaultClient.Do(newPostRequest(t, ts.URL, initializeBody(t, jsonrpc2.Int64ID(1)), ""))
	if err != nil {
		t.Fatalf("initialize POST: %v", err)
	}
	sessionID := initResp.Header.Get("Mcp-Session-Id")
	readSSEFrames(t, initResp.Body, 1)
	initResp.Body.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest GET: %v", err)
	}
	getReq.Header.Set("Accept", "text/event-stream")
	getReq.Header.Set("Mcp-Session-Id", sessionID)
	firstResp, err := http.DefaultClient.Do(getReq)
	if err != nil {
		t.Fatalf("first GET: %v", err)
	}
	defer firstResp.Body.Close()
	if firstResp.StatusCode != http.StatusOK {
		t.Fatalf("first GET status = %d, want 200", firstResp.StatusCode)
	}
	// Consume the priming comment so we know the server has registered the
	// standalone stream as open before issuing the second GET.
	readSSEFrames(t, firstResp.Body, 1)

	secondReq, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest second GET: %v", err)
	}
	secondReq.Header.Set("Accept", "text/event-stream")
	secondReq.Header.Set("Mcp-Session-Id", sessionID)
	secondResp, err := http.DefaultClient.Do(secondReq)
	if err != nil {
		t.Fatalf("second GET: %v", err)
	}
	defer secondResp.Body.Close()
	if secondResp.StatusCode != http.StatusConflict {
		t.Fatalf("second GET status = %d, want 409", secondResp.StatusCode)
	}
}

// TestStatefulLastEventIDResumption exercises replay of buffered
// server-initiated events strictly after a client-supplied Last-Event-Id,
// in order, once the client reconnects its standalone stream.
func TestStatefulLastEventIDResumption(t *testing.T) {
	var server *peer.Server
	handler := NewStatefulHandler(newTestServer(t, func(s *peer.Server) { server = s }))
	ts := httptest.NewServer(handler)
	defer ts.Close()
	defer handler.CloseAll()

	initResp, err := http.DefaultClient.Do(newPostRequest(t, ts.URL, initializeBody(t, jsonrpc2.Int64ID(1)), ""))
	if err != nil {
		t.Fatalf("initialize POST: %v", err)
	}
	sessionID := initResp.Header.Get("Mcp-Session-Id")
	readSSEFrames(t, initResp.Body, 1)
	initResp.Body.Close()

	ctx, cancel := context.WithCancel(context.Background())
	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest GET: %v", err)
	}
	getReq.Header.Set("Accept", "text/event-stream")
	getReq.Header.Set("Mcp-Session-Id", sessionID)
	firstResp, err := http.DefaultClient.Do(getReq)
	if err != nil {
		t.Fatalf("first GET: %v", err)
	}
	readSSEFrames(t, firstResp.Body, 1) // priming comment

	for i := 0; i < 3; i++ {
		if err := peer.Notify(context.Background(), server.Engine, "test/event", &struct {
			N int `json:"n"`
		}{N: i}); err != nil {
			t.Fatalf("Notify %d: %v", i, err)
		}
	}

	first := readSSEFrames(t, firstResp.Body, 1)[0]
	if first.id == "" {
		t.Fatal("first delivered frame is missing an id")
	}
	cancel()
	firstResp.Body.Close()
	// Give the server goroutine a moment to observe the cancelled context
	// and release the standalone stream before reconnecting.
	time.Sleep(50 * time.Millisecond)

	resumeReq, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest resume GET: %v", err)
	}
	resumeReq.Header.Set("Accept", "text/event-stream")
	resumeReq.Header.Set("Mcp-Session-Id", sessionID)
	resumeReq.Header.Set("Last-Event-Id", first.id)
	resumeResp, err := http.DefaultClient.Do(resumeReq)
	if err != nil {
		t.Fatalf("resume GET: %v", err)
	}
	defer resumeResp.Body.Close()
	if resumeResp.StatusCode != http.StatusOK {
		t.Fatalf("resume GET status = %d, want 200", resumeResp.StatusCode)
	}

	_, firstIdx, err := parseEventID(first.id)
	if err != nil {
		t.Fatalf("parseEventID(%q): %v", first.id, err)
	}

	replayed := readSSEFrames(t, resumeResp.Body, 2)
	lastIdx := firstIdx
	for i, f := range replayed {
		if f.data == "" {
			t.Fatalf("replayed frame %d has no payload", i)
		}
		_, idx, err := parseEventID(f.id)
		if err != nil {
			t.Fatalf("parseEventID(%q): %v", f.id, err)
		}
		if idx <= lastIdx {
			t.Fatalf("replayed frame %d has index %d, want strictly greater than %d", i, idx, lastIdx)
		}
		lastIdx = idx
	}
}
