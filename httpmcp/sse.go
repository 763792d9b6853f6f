// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpmcp

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
)

// writeSSEFrame renders one Server-Sent Event carrying payload under id,
// and flushes it immediately so the client observes it without buffering
// delay.
func writeSSEFrame(w http.ResponseWriter, flusher http.Flusher, id string, payload []byte) error {
	if _, err := fmt.Fprintf(w, "id: %s\ndata: %s\n\n", id, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// writeSSEComment writes a priming comment line: a no-op event whose only
// purpose is to let the client observe the stream is open (and, on the
// first frame of a POST stream, to give it something to anchor a later
// Last-Event-Id on once real events start arriving).
func writeSSEComment(w http.ResponseWriter, flusher http.Flusher, comment string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", comment); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// prepareSSEResponse sets the headers required for a streaming SSE
// response and returns the response's Flusher. It fails if w does not
// support flushing.
func prepareSSEResponse(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	return flusher, true
}

// sseScanner returns a line-splitting bufio.Scanner (the default split
// function, with a 1 MiB line limit) for reading SSE frames back out of a
// response body, used by test helpers that exercise a handler end-to-end
// over httptest.
func sseScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return sc
}
