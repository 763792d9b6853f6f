// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transport defines the duplex frame channel consumed by the peer
// engine, and the concrete transports that implement it: stdio, an
// in-memory pair, a Unix-domain socket, and an HTTP client.
//
// A Transport is a factory for a Connection; Connect may be called more
// than once on transports that support multiple logical sessions (for
// example the HTTP server-session layer), but most concrete transports in
// this package produce exactly one Connection for their lifetime.
//
// Frames are opaque byte slices, one per JSON-RPC message or batch array.
// Transports never parse JSON; they only preserve message boundaries.
package transport

import (
	"context"
	"errors"
)

// ErrConnectionClosed is returned by Read and Write after Close, and by any
// in-flight Read/Write that races a Close.
var ErrConnectionClosed = errors.New("transport: connection closed")

// NewConnectionFrame is a sentinel frame value emitted into a server
// transport's receive stream when a new underlying connection (for example
// an accepted Unix-domain socket) arrives. It is not a JSON-RPC message; the
// peer engine filters it out before decoding and uses it only to reset
// per-connection state.
var NewConnectionFrame = []byte("\x00mcp:new-connection\x00")

// Transport is a factory for a Connection. Connect is idempotent in the
// sense that calling it again after a successful connect must either return
// the same logical connection or fail; it must never silently establish a
// second, divergent channel.
type Transport interface {
	Connect(ctx context.Context) (Connection, error)
}

// Connection is a single duplex channel of JSON-RPC frames.
//
// Read and Write may be called concurrently with each other, but each must
// not be called concurrently with itself: the peer engine serializes writes
// and runs exactly one reader per connection.
type Connection struct {
	impl connImpl
}

// connImpl is the interface concrete transports implement; Connection wraps
// it so that all transports share one exported type and doc set.
type connImpl interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, frame []byte) error
	Close() error
	SessionID() string
}

// ConnImpl is connImpl's exported name, for packages outside this one (the
// HTTP server session layer, notably) that need to build a Connection
// around a custom implementation rather than one of this package's
// concrete transports.
type ConnImpl = connImpl

// Wrap adapts impl into a Connection. Use this from a package that
// implements its own connection logic (for example a per-HTTP-session
// connection keyed by Mcp-Session-Id) but wants to hand callers the same
// Connection type as every other transport.
func Wrap(impl ConnImpl) Connection { return wrap(impl) }

// Read blocks until a frame is available, ctx is done, or the connection is
// closed. A nil, nil return never happens; io.EOF (wrapped) signals a
// clean peer-initiated close.
func (c Connection) Read(ctx context.Context) ([]byte, error) { return c.impl.Read(ctx) }

// Write sends frame. It fails with ErrConnectionClosed if called after
// Close, or if the close races the write.
func (c Connection) Write(ctx context.Context, frame []byte) error {
	return c.impl.Write(ctx, frame)
}

// Close terminates the connection. It is idempotent: a second Close
// returns nil.
func (c Connection) Close() error { return c.impl.Close() }

// SessionID returns the transport-assigned session identifier, or "" for
// transports that are not session-addressable (stdio, in-memory, Unix
// socket).
func (c Connection) SessionID() string { return c.impl.SessionID() }

// Unwrap exposes the underlying transport-specific connection value, so
// that a layer above transport (the peer engine) can type-assert it
// against an optional capability interface it defines itself, the same
// pattern as http.Flusher/http.Hijacker against http.ResponseWriter.
func (c Connection) Unwrap() any { return c.impl }

// Streamer is the optional interface a Connection's implementation
// satisfies when it can open a server-push stream alongside its
// request/response channel (the HTTP client's standalone GET stream). A
// peer that wants server-initiated frames calls StartStream once its
// session is established; on connections that don't implement Streamer
// there is nothing to start.
type Streamer interface {
	StartStream(ctx context.Context)
}

// wrap adapts a connImpl into the exported Connection value.
func wrap(impl connImpl) Connection { return Connection{impl: impl} }

// noSessionID is embedded by connections that have no notion of a session
// identifier.
type noSessionID struct{}

func (noSessionID) SessionID() string { return "" }
