// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLoggingTransportLogsReadsAndWrites(t *testing.T) {
	ctx := context.Background()
	clientT, serverT := NewInMemoryPair(4)

	var logBuf bytes.Buffer
	logged := NewLoggingTransport(clientT, &logBuf)

	clientConn, err := logged.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	serverConn, err := serverT.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := clientConn.Write(ctx, []byte(`{"jsonrpc":"2.0","method":"ping"}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := serverConn.Read(ctx); err != nil {
		t.Fatalf("server Read failed: %v", err)
	}

	if err := serverConn.Write(ctx, []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)); err != nil {
		t.Fatalf("server Write failed: %v", err)
	}
	if _, err := clientConn.Read(ctx); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	got := logBuf.String()
	if !strings.Contains(got, `write: {"jsonrpc":"2.0","method":"ping"}`) {
		t.Errorf("log = %q, missing write line", got)
	}
	if !strings.Contains(got, `read: {"jsonrpc":"2.0","id":1,"result":{}}`) {
		t.Errorf("log = %q, missing read line", got)
	}
}
