// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

func TestStdioReadEmitsOneFramePerLine(t *testing.T) {
	ctx := context.Background()
	r := strings.NewReader("{\"a\":1}\n\n{\"b\":2}\n")
	var out bytes.Buffer
	tr := NewStdio(r, &out, nil)
	conn, err := tr.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var got []string
	for {
		frame, err := conn.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		got = append(got, string(frame))
	}

	want := []string{`{"a":1}`, `{"b":2}`}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Read() frames = %v, want %v", got, want)
	}
}

func TestStdioWriteAppendsNewline(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	tr := NewStdio(strings.NewReader(""), &out, nil)
	conn, err := tr.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := conn.Write(ctx, []byte(`{"x":1}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if out.String() != "{\"x\":1}\n" {
		t.Errorf("Write() wrote %q, want %q", out.String(), "{\"x\":1}\n")
	}
}

type closeRecorder struct{ closed bool }

func (c *closeRecorder) Close() error { c.closed = true; return nil }

func TestStdioCloseInvokesCloser(t *testing.T) {
	ctx := context.Background()
	rec := &closeRecorder{}
	tr := NewStdio(strings.NewReader(""), &bytes.Buffer{}, rec)
	conn, err := tr.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !rec.closed {
		t.Error("Close() did not invoke the underlying closer")
	}
	if err := conn.Write(ctx, []byte("x")); err != ErrConnectionClosed {
		t.Errorf("Write() after close = %v, want ErrConnectionClosed", err)
	}
}
