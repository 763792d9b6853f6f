// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpmcp

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mcpcore/go-peer/internal/jsonrpc2"
)

// TestStatelessRoundTrip exercises the stateless endpoint's one-shot
// contract: a single POST request gets back a single application/json
// body carrying exactly the encoded response, with no session created and
// no SSE framing involved.
func TestStatelessRoundTrip(t *testing.T) {
	handler := NewStatelessHandler(newTestServer(t, nil))
	ts := httptest.NewServer(handler)
	defer ts.Close()

	body := encodeRequest(t, jsonrpc2.Int64ID(1), "ping", &struct{}{})
	req, err := http.NewRequest(http.MethodPost, ts.URL, strings.NewReader(string(body)))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	msg, err := jsonrpc2.DecodeMessage(data)
	if err != nil {
		t.Fatalf("decode response body %s: %v", data, err)
	}
	rpcResp, ok := msg.(*jsonrpc2.Response)
	if !ok {
		t.Fatalf("response body decodes as %T, want *jsonrpc2.Response", msg)
	}
	if rpcResp.Err != nil {
		t.Fatalf("ping returned an error: %+v", rpcResp.Err)
	}
	if rpcResp.ID.String() != "1" {
		t.Fatalf("response id = %q, want %q", rpcResp.ID.String(), "1")
	}
}

// TestStatelessRejectsGetAndDelete exercises the stateless handler's 405
// on any method other than POST, since it has no session concept for GET
// streaming or DELETE teardown to act on.
func TestStatelessRejectsGetAndDelete(t *testing.T) {
	handler := NewStatelessHandler(newTestServer(t, nil))
	ts := httptest.NewServer(handler)
	defer ts.Close()

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		req, err := http.NewRequest(method, ts.URL, nil)
		if err != nil {
			t.Fatalf("NewRequest %s: %v", method, err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("%s status = %d, want 405", method, resp.StatusCode)
		}
	}
}
