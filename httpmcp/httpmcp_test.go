// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpmcp

import (
	"io"
	"net/http"
	"strings"
	"testing"

	intjson "github.com/mcpcore/go-peer/internal/json"
	"github.com/mcpcore/go-peer/internal/jsonrpc2"
	"github.com/mcpcore/go-peer/peer"
)

func newTestServer(t *testing.T, register func(*peer.Server)) func(*http.Request) *peer.Server {
	t.Helper()
	return func(req *http.Request) *peer.Server {
		s := peer.NewServer(&peer.Implementation{Name: "test-server", Version: "0.0.1"}, peer.Capabilities{}, "")
		if register != nil {
			register(s)
		}
		return s
	}
}

func encodeRequest(t *testing.T, id jsonrpc2.ID, method string, params any) []byte {
	t.Helper()
	var raw intjson.RawMessage
	if params != nil {
		data, err := intjson.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		raw = data
	}
	data, err := jsonrpc2.EncodeMessage(&jsonrpc2.Request{ID: id, Method: method, Params: raw})
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	return data
}

func initializeBody(t *testing.T, id jsonrpc2.ID) []byte {
	t.Helper()
	return encodeRequest(t, id, "initialize", &peer.InitializeParams{
		ProtocolVersion: peer.SupportedProtocolVersions[0],
		Capabilities:    peer.Capabilities{},
		ClientInfo:      &peer.Implementation{Name: "test-client", Version: "0.0.1"},
	})
}

// sseFrame is one parsed SSE event: either an "id:"/"data:" pair or a bare
// comment line, accumulated until the blank line that terminates it.
type sseFrame struct {
	id      string
	comment string
	data    string
}

// readSSEFrames reads n frames from r line by line using sseScanner. A
// comment-only frame (such as a stream's priming comment) counts as a
// frame.
func readSSEFrames(t *testing.T, r io.Reader, n int) []sseFrame {
	t.Helper()
	sc := sseScanner(r)
	var frames []sseFrame
	var cur sseFrame
	for len(frames) < n && sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			frames = append(frames, cur)
			cur = sseFrame{}
		case strings.HasPrefix(line, "id: "):
			cur.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case strings.HasPrefix(line, ": "):
			cur.comment = strings.TrimPrefix(line, ": ")
		}
	}
	if err := sc.Err(); err != nil && len(frames) < n {
		t.Fatalf("reading SSE frames: %v", err)
	}
	return frames
}

func decodeResponse(t *testing.T, frame sseFrame) *jsonrpc2.Response {
	t.Helper()
	msg, err := jsonrpc2.DecodeMessage([]byte(frame.data))
	if err != nil {
		t.Fatalf("decode SSE data frame %q: %v", frame.data, err)
	}
	resp, ok := msg.(*jsonrpc2.Response)
	if !ok {
		t.Fatalf("SSE data frame %q is not a response", frame.data)
	}
	return resp
}
