// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package peer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mcpcore/go-peer/transport"
)

// Server is the server-role wrapper around an Engine: it answers the
// initialize handshake rather than initiating it, and enforces the
// initialized barrier before dispatching any other request.
type Server struct {
	*Engine
	info         *Implementation
	caps         Capabilities
	instructions string
	initHook     InitializeHook
}

// NewServer constructs a Server advertising info and caps to clients that
// connect to it. Handlers may be registered on its Engine before Connect;
// Connect carries them over to the Engine it binds to the connection.
func NewServer(info *Implementation, caps Capabilities, instructions string) *Server {
	pre := &Engine{handlers: make(map[string]handlerAdapter), notify: make(map[string]notifyAdapter), logger: slog.Default()}
	return &Server{Engine: pre, info: info, caps: caps, instructions: instructions}
}

// OnInitialize registers hook to vet each connecting client during the
// initialize exchange; a hook error becomes the error response. It must be
// called before Connect.
func (s *Server) OnInitialize(hook InitializeHook) { s.initHook = hook }

// Connect establishes the transport connection, registers the initialize
// handler, and starts the receive loop in the background. It returns once
// the connection is accepted; it does not wait for the client to
// initialize.
func (s *Server) Connect(ctx context.Context, t transport.Transport, opts Options) error {
	conn, err := t.Connect(ctx)
	if err != nil {
		return fmt.Errorf("peer: connect: %w", err)
	}
	opts.Role = RoleServer
	pre := s.Engine
	s.Engine = newEngine(conn, opts)
	registerDefaultPingHandler(s.Engine)
	if pre != nil {
		for name, a := range pre.handlers {
			s.Engine.handlers[name] = a
		}
		for name, a := range pre.notify {
			s.Engine.notify[name] = a
		}
	}
	registerServerInitializeHandler(s.Engine, s.info, s.caps, s.instructions, s.initHook)

	go func() { s.Engine.Run(context.Background()) }()
	return nil
}
