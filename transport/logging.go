// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Logging wraps a Transport so that every frame read from, or written to,
// the underlying connection is also copied to Writer as a "read: <frame>"
// or "write: <frame>" line. Useful for debugging a peer over stdio, where
// the wire itself cannot carry diagnostic text.
type Logging struct {
	Transport Transport
	Writer    io.Writer
}

// NewLoggingTransport returns a Transport that logs every frame exchanged
// over inner to w.
func NewLoggingTransport(inner Transport, w io.Writer) *Logging {
	return &Logging{Transport: inner, Writer: w}
}

func (l *Logging) Connect(ctx context.Context) (Connection, error) {
	inner, err := l.Transport.Connect(ctx)
	if err != nil {
		return Connection{}, err
	}
	return wrap(&loggingConn{inner: inner, w: l.Writer}), nil
}

type loggingConn struct {
	inner Connection
	w     io.Writer
	mu    sync.Mutex
}

func (c *loggingConn) SessionID() string { return c.inner.SessionID() }

func (c *loggingConn) Read(ctx context.Context) ([]byte, error) {
	frame, err := c.inner.Read(ctx)
	if err == nil {
		c.logf("read: %s", frame)
	}
	return frame, err
}

func (c *loggingConn) Write(ctx context.Context, frame []byte) error {
	err := c.inner.Write(ctx, frame)
	if err == nil {
		c.logf("write: %s", frame)
	}
	return err
}

func (c *loggingConn) Close() error { return c.inner.Close() }

func (c *loggingConn) logf(format string, frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format+"\n", frame)
}
