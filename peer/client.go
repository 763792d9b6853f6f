// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package peer

import (
	"context"
	"fmt"

	"github.com/mcpcore/go-peer/transport"
)

// Client is the client-role wrapper around an Engine: it drives the
// outbound side of the initialize handshake and exposes Call/Notify as
// plain methods for callers who don't want the free-function form.
type Client struct {
	*Engine
	info *Implementation
	caps Capabilities
}

// NewClient constructs a Client advertising info and caps at initialize.
// Connect must be called before any request is sent.
func NewClient(info *Implementation, caps Capabilities) *Client {
	return &Client{info: info, caps: caps}
}

// Connect establishes the transport connection, starts the receive loop
// in the background, and performs the initialize handshake, blocking
// until it completes.
func (c *Client) Connect(ctx context.Context, t transport.Transport, opts Options) (*InitializeResult, error) {
	conn, err := t.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("peer: connect: %w", err)
	}
	opts.Role = RoleClient
	c.Engine = newEngine(conn, opts)
	registerDefaultPingHandler(c.Engine)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- c.Engine.Run(context.Background()) }()

	result, err := clientInitialize(ctx, c.Engine, c.info, c.caps)
	if err != nil {
		c.Engine.Close()
		return nil, err
	}
	// Now that the handshake has pinned down the session, open the
	// server-push stream on transports that have one (the HTTP client's
	// standalone GET stream).
	if st, ok := conn.Unwrap().(transport.Streamer); ok {
		st.StartStream(c.Engine.ctx)
	}
	return result, nil
}
