// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryPairRoundTrip(t *testing.T) {
	ctx := context.Background()
	clientT, serverT := NewInMemoryPair(4)

	clientConn, err := clientT.Connect(ctx)
	if err != nil {
		t.Fatalf("client Connect failed: %v", err)
	}
	serverConn, err := serverT.Connect(ctx)
	if err != nil {
		t.Fatalf("server Connect failed: %v", err)
	}

	if err := clientConn.Write(ctx, []byte(`{"jsonrpc":"2.0","method":"ping"}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := serverConn.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != `{"jsonrpc":"2.0","method":"ping"}` {
		t.Errorf("Read() = %s, want ping frame", got)
	}
}

func TestInMemoryPairCloseClosesBoth(t *testing.T) {
	ctx := context.Background()
	clientT, serverT := NewInMemoryPair(0)
	clientConn, _ := clientT.Connect(ctx)
	serverConn, _ := serverT.Connect(ctx)

	if err := clientConn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if _, err := serverConn.Read(ctx2); err != ErrConnectionClosed {
		t.Errorf("Read() after close = %v, want ErrConnectionClosed", err)
	}
	if err := serverConn.Write(ctx2, []byte("x")); err != ErrConnectionClosed {
		t.Errorf("Write() after close = %v, want ErrConnectionClosed", err)
	}
}
