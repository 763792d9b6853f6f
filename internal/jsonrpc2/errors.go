// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc2

import (
	"fmt"

	intjson "github.com/mcpcore/go-peer/internal/json"
)

// Code is a JSON-RPC / MCP error code.
type Code int64

// Error codes from -32700 to -32600 are the standard JSON-RPC codes; the
// rest are MCP-specific and sit in JSON-RPC's -32000..-32099
// implementation-defined range.
const (
	CodeParseError     Code = -32700
	CodeInvalidRequest Code = -32600
	CodeMethodNotFound Code = -32601
	CodeInvalidParams  Code = -32602
	CodeInternalError  Code = -32603

	// Connection-closed and transport-error are local conditions, reported
	// through the same Error type so callers have one taxonomy to switch
	// on; urlElicitationRequired is sent by the remote peer like any other
	// error response.
	CodeConnectionClosed       Code = -32000
	CodeTransportError         Code = -32001
	CodeURLElicitationRequired Code = -32002
)

// Elicitation describes one pending out-of-band elicitation, as carried by
// a urlElicitationRequired error.
type Elicitation struct {
	ElicitationID string `json:"elicitationId"`
	URL           string `json:"url"`
	Message       string `json:"message,omitempty"`
}

// Error is the module's single error type. It is used both for values
// embedded in a wire Response (via WireError) and for purely local
// conditions (connection closed, transport failure).
type Error struct {
	Code    Code
	Message string
	Data    intjson.RawMessage

	// Elicitations is populated only when Code == CodeURLElicitationRequired.
	Elicitations []Elicitation
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("jsonrpc2: error %d", e.Code)
	}
	return fmt.Sprintf("jsonrpc2: %s (code %d)", e.Message, e.Code)
}

// WireError is the on-the-wire {code, message, data} shape of a JSON-RPC
// error object.
type WireError struct {
	Code    Code               `json:"code"`
	Message string             `json:"message"`
	Data    intjson.RawMessage `json:"data,omitempty"`
}

// ToWire converts an Error to its wire representation, folding
// Elicitations into Data when present.
func (e *Error) ToWire() *WireError {
	data := e.Data
	if e.Code == CodeURLElicitationRequired && len(e.Elicitations) > 0 {
		if encoded, err := intjson.Marshal(struct {
			Elicitations []Elicitation `json:"elicitations"`
		}{e.Elicitations}); err == nil {
			data = encoded
		}
	}
	return &WireError{Code: e.Code, Message: e.Message, Data: data}
}

// FromWire converts a wire error object back to an *Error.
func FromWire(w *WireError) *Error {
	if w == nil {
		return nil
	}
	e := &Error{Code: w.Code, Message: w.Message, Data: w.Data}
	if w.Code == CodeURLElicitationRequired {
		var payload struct {
			Elicitations []Elicitation `json:"elicitations"`
		}
		if err := intjson.Unmarshal(w.Data, &payload); err == nil {
			e.Elicitations = payload.Elicitations
		}
	}
	return e
}

// NewURLElicitationRequired builds a urlElicitationRequired error carrying
// the structured elicitation list a UI can render.
func NewURLElicitationRequired(message string, elicitations []Elicitation) *Error {
	return &Error{Code: CodeURLElicitationRequired, Message: message, Elicitations: elicitations}
}

// ErrConnectionClosed is returned to callers whose operation raced a
// transport teardown.
var ErrConnectionClosed = &Error{Code: CodeConnectionClosed, Message: "connection closed"}
