// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package peer

import (
	"context"
	"errors"
	"sync"

	intjson "github.com/mcpcore/go-peer/internal/json"
	"github.com/mcpcore/go-peer/internal/jsonrpc2"
)

// ErrNoProgressToken is returned by SendProgress when the inbound request
// carried no _meta.progressToken.
var ErrNoProgressToken = errors.New("peer: no progress token on this request")

// SessionHooks is an optional interface a transport.Connection's
// underlying implementation may satisfy to supply per-request
// authentication info and SSE stream lifecycle control. The HTTP server
// session layer (httpmcp) implements it; stdio, in-memory, and Unix
// transports do not, so RequestContext fields populated from it stay nil.
type SessionHooks interface {
	// AuthInfo returns the value the validation pipeline attached to the
	// request with the given id, or nil.
	AuthInfo(id jsonrpc2.ID) any
	// CloseSSEStream closes the per-request SSE stream serving id, if any.
	CloseSSEStream(id jsonrpc2.ID)
	// CloseStandaloneSSEStream closes the session's standalone SSE stream.
	CloseStandaloneSSEStream()
}

// RequestContext is handed to every inbound request handler. Its
// bidirectional operations (Elicit, ElicitURL, Sample) suspend until the
// peer replies, honoring the handler's own cancellation; SendProgress
// only sends a notification.
type RequestContext struct {
	engine *Engine

	id     jsonrpc2.ID
	method string
	meta   jsonrpc2.Meta

	// AuthInfo is populated by HTTP transports from their validation
	// pipeline; nil otherwise.
	AuthInfo any

	hooks SessionHooks

	closeSSEOnce        sync.Once
	closeStandaloneOnce sync.Once
}

// RequestID returns the inbound request's id.
func (r *RequestContext) RequestID() jsonrpc2.ID { return r.id }

// Method returns the inbound request's method name.
func (r *RequestContext) Method() string { return r.method }

// Meta returns the inbound request's general-fields meta, which may be nil.
func (r *RequestContext) Meta() jsonrpc2.Meta { return r.meta }

// CloseSSEStream closes the per-request SSE stream delivering this
// request's response, if the connection is an HTTP session. Idempotent;
// a no-op on non-HTTP transports.
func (r *RequestContext) CloseSSEStream() {
	if r.hooks == nil {
		return
	}
	r.closeSSEOnce.Do(func() { r.hooks.CloseSSEStream(r.id) })
}

// CloseStandaloneSSEStream closes the session's standalone SSE stream, if
// the connection is an HTTP session. Idempotent; a no-op otherwise.
func (r *RequestContext) CloseStandaloneSSEStream() {
	if r.hooks == nil {
		return
	}
	r.closeStandaloneOnce.Do(r.hooks.CloseStandaloneSSEStream)
}

// SendProgress emits notifications/progress using the progressToken
// attached to this request's _meta. It returns ErrNoProgressToken if the
// caller attached none.
func (r *RequestContext) SendProgress(ctx context.Context, progress, total float64, message string) error {
	token, ok := r.meta.ProgressToken()
	if !ok {
		return ErrNoProgressToken
	}
	return Notify(ctx, r.engine, "notifications/progress", &ProgressParams{
		ProgressToken: token,
		Progress:      progress,
		Total:         total,
		Message:       message,
	})
}

// ElicitParams is the payload of an elicitation/create request.
type ElicitParams struct {
	Message         string `json:"message"`
	RequestedSchema any    `json:"requestedSchema,omitempty"`
}

// ElicitResult is the result of an elicitation/create request.
type ElicitResult struct {
	Action  string             `json:"action"`
	Content intjson.RawMessage `json:"content,omitempty"`
}

// elicitationMode reports whether the remote's elicitation capability
// carries the named sub-flag (form or url). A capability advertised with
// no sub-flags at all is treated as supporting form-mode only, which is
// what peers predating the mode split mean by a bare "elicitation": {}.
func (r *RequestContext) elicitationMode(mode string) error {
	if !r.engine.strict {
		return nil
	}
	if err := r.engine.requireCapability("elicitation/create", "elicitation"); err != nil {
		return err
	}
	var flags struct {
		Form bool `json:"form"`
		URL  bool `json:"url"`
	}
	ok, err := r.engine.remoteCapabilities().SubFlags("elicitation", &flags)
	if !ok || err != nil {
		return err
	}
	if mode == "url" && !flags.URL {
		return &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: "remote peer's elicitation capability does not advertise the url mode",
		}
	}
	if mode == "form" && flags.URL && !flags.Form {
		return &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: "remote peer's elicitation capability does not advertise the form mode",
		}
	}
	return nil
}

// Elicit originates an elicitation/create request to the remote peer,
// asking it to collect structured input matching schema. It fails with
// methodNotFound in strict mode if the peer did not advertise the
// elicitation capability.
func (r *RequestContext) Elicit(ctx context.Context, message string, schema any) (*ElicitResult, error) {
	if err := r.elicitationMode("form"); err != nil {
		return nil, err
	}
	m := Method[*ElicitParams, *ElicitResult]{Name: "elicitation/create", RequiredCapability: "elicitation"}
	return Call(ctx, r.engine, m, &ElicitParams{Message: message, RequestedSchema: schema})
}

// ElicitURLParams is the payload of a URL-mode elicitation/create request.
type ElicitURLParams struct {
	Message       string `json:"message"`
	URL           string `json:"url"`
	ElicitationID string `json:"elicitationId"`
}

// ElicitURL originates an out-of-band, URL-mode elicitation: the remote
// peer is asked to visit url and correlate its eventual response by
// elicitationID. It fails with methodNotFound in strict mode if the peer's
// elicitation capability lacks the url sub-flag.
func (r *RequestContext) ElicitURL(ctx context.Context, message, url, elicitationID string) error {
	if err := r.elicitationMode("url"); err != nil {
		return err
	}
	m := Method[*ElicitURLParams, *ElicitResult]{Name: "elicitation/create", RequiredCapability: "elicitation"}
	_, err := Call(ctx, r.engine, m, &ElicitURLParams{Message: message, URL: url, ElicitationID: elicitationID})
	return err
}

// Sample originates a sampling/createMessage request to the remote peer.
// P and R are supplied by the caller (an external, domain-specific
// collaborator); the core only knows the wire method name and that it
// requires the remote's sampling capability.
func Sample[P, R any](ctx context.Context, r *RequestContext, params P) (R, error) {
	m := Method[P, R]{Name: "sampling/createMessage", RequiredCapability: "sampling"}
	return Call(ctx, r.engine, m, params)
}

// LoggingMessageParams is the payload of a notifications/message
// notification.
type LoggingMessageParams struct {
	Level  string             `json:"level"`
	Logger string             `json:"logger,omitempty"`
	Data   intjson.RawMessage `json:"data"`
}

// Log emits notifications/message with the given level, optional logger
// name, and arbitrary structured data.
func (r *RequestContext) Log(ctx context.Context, level, logger string, data any) error {
	encoded, err := intjson.Marshal(data)
	if err != nil {
		return err
	}
	return Notify(ctx, r.engine, "notifications/message", &LoggingMessageParams{
		Level: level, Logger: logger, Data: encoded,
	})
}
