// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package peer

import (
	"context"
	"fmt"

	"github.com/mcpcore/go-peer/internal/jsonrpc2"
)

// SupportedProtocolVersions lists the protocol version strings this
// module understands, newest first. The handshake accepts whichever of
// these the remote asks for, and fails with invalidRequest otherwise.
var SupportedProtocolVersions = []string{"2025-06-18", "2025-03-26", "2024-11-05"}

// Implementation names and versions one side of a connection for display
// and diagnostic purposes.
type Implementation struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version"`
}

// InitializeParams is sent by the client to begin the handshake.
type InitializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    Capabilities    `json:"capabilities"`
	ClientInfo      *Implementation `json:"clientInfo"`
}

// InitializeResult is the server's reply to initialize.
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    Capabilities    `json:"capabilities"`
	ServerInfo      *Implementation `json:"serverInfo"`
	Instructions    string          `json:"instructions,omitempty"`
}

// InitializedParams is the (empty) payload of the notifications/initialized
// barrier notification the client sends once it has processed the
// initialize response.
type InitializedParams struct{}

var initializeMethod = Method[*InitializeParams, *InitializeResult]{Name: "initialize"}

// negotiateProtocolVersion returns requested if it appears in
// SupportedProtocolVersions. No overlap fails the handshake with
// invalidRequest regardless of strict/lenient gating; strictness governs
// capability checks, never version agreement, since a connection on a
// version neither side implements cannot be made safe by leniency.
func negotiateProtocolVersion(requested string) (string, error) {
	for _, v := range SupportedProtocolVersions {
		if v == requested {
			return v, nil
		}
	}
	return "", &jsonrpc2.Error{
		Code:    jsonrpc2.CodeInvalidRequest,
		Message: fmt.Sprintf("no mutually supported protocol version: requested %q, supported %v", requested, SupportedProtocolVersions),
	}
}

// requireCapability enforces strict-mode gating on an outbound call: if
// this engine is strict and the remote did not advertise capability at
// initialize, the call fails locally with methodNotFound before any bytes
// are sent. Lenient engines, and methods with no capability requirement,
// always pass.
func (e *Engine) requireCapability(method, capability string) error {
	if capability == "" || !e.strict {
		return nil
	}
	if !e.remoteCapabilities().Has(capability) {
		return &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: fmt.Sprintf("remote peer did not advertise capability %q required by %q", capability, method),
		}
	}
	return nil
}

// InitializeHook runs on the server inside the initialize handler, after
// version negotiation but before the response is produced, with the
// connecting client's identity and capabilities. Returning an error turns
// the initialize exchange into an error response, refusing the client.
type InitializeHook func(ctx context.Context, clientInfo *Implementation, clientCaps Capabilities) error

// clientInitialize performs the client side of the handshake: send
// initialize, then notifications/initialized once the response arrives.
func clientInitialize(ctx context.Context, e *Engine, info *Implementation, caps Capabilities) (*InitializeResult, error) {
	result, err := Call(ctx, e, initializeMethod, &InitializeParams{
		ProtocolVersion: SupportedProtocolVersions[0],
		Capabilities:    caps,
		ClientInfo:      info,
	})
	if err != nil {
		return nil, err
	}
	negotiated, err := negotiateProtocolVersion(result.ProtocolVersion)
	if err != nil {
		return nil, err
	}
	e.setProtocolVersion(negotiated)
	e.setRemoteCapabilities(result.Capabilities)
	e.initializedFlag.Store(true)
	if err := Notify(ctx, e, "notifications/initialized", &InitializedParams{}); err != nil {
		return nil, err
	}
	return result, nil
}

// registerServerInitializeHandler installs the server-side initialize
// handler, which negotiates the protocol version, records the client's
// capabilities, and lifts the barrier once its response is ready; the
// client's notifications/initialized also lifts it.
func registerServerInitializeHandler(e *Engine, info *Implementation, caps Capabilities, instructions string, hook InitializeHook) {
	RegisterHandler(e, initializeMethod, func(ctx context.Context, rc *RequestContext, params *InitializeParams) (*InitializeResult, error) {
		negotiated, err := negotiateProtocolVersion(params.ProtocolVersion)
		if err != nil {
			return nil, err
		}
		if hook != nil {
			if err := hook(ctx, params.ClientInfo, params.Capabilities); err != nil {
				return nil, err
			}
		}
		e.setRemoteCapabilities(params.Capabilities)
		e.setProtocolVersion(negotiated)
		result := &InitializeResult{
			ProtocolVersion: negotiated,
			Capabilities:    caps,
			ServerInfo:      info,
			Instructions:    instructions,
		}
		// Lift the barrier as soon as this response is ready to go out: a
		// non-initialize request is accepted once the initialize response
		// has been returned, even if notifications/initialized has not yet
		// arrived (a client may legally pipeline them).
		e.initializedFlag.Store(true)
		return result, nil
	})
	RegisterNotification(e, "notifications/initialized", func(ctx context.Context, params InitializedParams) {
		e.initializedFlag.Store(true)
	})
}
