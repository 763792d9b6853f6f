// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package jsonrpc2 implements the wire-level JSON-RPC 2.0 envelope used by
// the peer engine: request/notification/response framing, request ids,
// batches, general (_meta and extra) fields, and the MCPError taxonomy.
//
// This package knows nothing about MCP methods. It is generic over the
// three JSON-RPC message shapes; callers decode method-specific Params and
// Result values themselves once they have a Message in hand.
package jsonrpc2

import (
	"bytes"
	"fmt"
	"regexp"

	intjson "github.com/mcpcore/go-peer/internal/json"
)

// ProtocolVersion is the JSON-RPC version string carried on every envelope.
const ProtocolVersion = "2.0"

// ID is a JSON-RPC request identifier: an integer or a string. The zero
// value is not a valid ID; use IsValid to distinguish "no id" (a
// notification) from a genuine id.
type ID struct {
	str   string
	num   int64
	isStr bool
	isNum bool
}

// StringID constructs a string-valued request ID.
func StringID(s string) ID { return ID{str: s, isStr: true} }

// Int64ID constructs an integer-valued request ID.
func Int64ID(n int64) ID { return ID{num: n, isNum: true} }

// IsValid reports whether id was actually set (as opposed to the zero ID,
// which denotes "no id" on a notification).
func (id ID) IsValid() bool { return id.isStr || id.isNum }

// String renders the ID for logging and as a map key.
func (id ID) String() string {
	switch {
	case id.isStr:
		return id.str
	case id.isNum:
		return fmt.Sprintf("%d", id.num)
	default:
		return "<invalid>"
	}
}

func (id ID) MarshalJSON() ([]byte, error) {
	switch {
	case id.isStr:
		return intjson.Marshal(id.str)
	case id.isNum:
		return intjson.Marshal(id.num)
	default:
		return []byte("null"), nil
	}
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ID{}
		return nil
	}
	var s string
	if err := intjson.Unmarshal(data, &s); err == nil {
		*id = ID{str: s, isStr: true}
		return nil
	}
	var n int64
	if err := intjson.Unmarshal(data, &n); err == nil {
		*id = ID{num: n, isNum: true}
		return nil
	}
	return fmt.Errorf("jsonrpc2: id must be a string or integer, got %q", data)
}

// Meta carries the reserved "_meta" general field: a namespaced bag of
// vendor-extension values. Standard subfield: progressToken.
type Meta map[string]any

// ProgressToken returns the value of the reserved progressToken subfield,
// and whether one was present.
func (m Meta) ProgressToken() (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m["progressToken"]
	return v, ok
}

var metaKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+(/[A-Za-z0-9._-]+)*$`)

// ValidateMetaKeys checks that every key in m matches the namespaced-key
// grammar ("vendor.example/field"-style segments).
func ValidateMetaKeys(m Meta) error {
	for k := range m {
		if !metaKeyPattern.MatchString(k) {
			return fmt.Errorf("jsonrpc2: invalid _meta key %q", k)
		}
	}
	return nil
}

// reservedTopLevelKeys must never appear as passthrough "extra" fields;
// they are handled explicitly by the envelope.
var reservedTopLevelKeys = map[string]bool{
	"jsonrpc": true, "id": true, "method": true,
	"params": true, "result": true, "error": true,
}

// Extra holds unrecognized top-level fields, preserved across decode/encode.
type Extra map[string]intjson.RawMessage

// Message is implemented by Request, Notification, and Response: the three
// shapes a JSON-RPC 2.0 frame can take.
type Message interface {
	isMessage()
}

// Request is an outbound or inbound call that expects a Response.
type Request struct {
	ID     ID
	Method string
	Params intjson.RawMessage
	Meta   Meta
	Extra  Extra
}

func (*Request) isMessage() {}

// Notification is a fire-and-forget message: no ID, no Response.
type Notification struct {
	Method string
	Params intjson.RawMessage
	Meta   Meta
	Extra  Extra
}

func (*Notification) isMessage() {}

// Response carries exactly one of Result or Err.
type Response struct {
	ID     ID
	Result intjson.RawMessage
	Err    *WireError
	Meta   Meta
	Extra  Extra
}

func (*Response) isMessage() {}

// wireEnvelope is the on-the-wire shape of a single JSON-RPC object.
type wireEnvelope struct {
	JSONRPC string             `json:"jsonrpc"`
	ID      *ID                `json:"id,omitempty"`
	Method  string             `json:"method,omitempty"`
	Params  intjson.RawMessage `json:"params,omitempty"`
	Result  intjson.RawMessage `json:"result,omitempty"`
	Error   *WireError         `json:"error,omitempty"`
	Meta    Meta               `json:"_meta,omitempty"`
}

// EncodeMessage renders a single Message as a JSON-RPC object.
func EncodeMessage(msg Message) ([]byte, error) {
	env, err := toEnvelope(msg)
	if err != nil {
		return nil, err
	}
	return marshalWithExtra(env, extraOf(msg))
}

func toEnvelope(msg Message) (wireEnvelope, error) {
	switch m := msg.(type) {
	case *Request:
		if err := ValidateMetaKeys(m.Meta); err != nil {
			return wireEnvelope{}, err
		}
		id := m.ID
		return wireEnvelope{JSONRPC: ProtocolVersion, ID: &id, Method: m.Method, Params: m.Params, Meta: m.Meta}, nil
	case *Notification:
		if err := ValidateMetaKeys(m.Meta); err != nil {
			return wireEnvelope{}, err
		}
		return wireEnvelope{JSONRPC: ProtocolVersion, Method: m.Method, Params: m.Params, Meta: m.Meta}, nil
	case *Response:
		if err := ValidateMetaKeys(m.Meta); err != nil {
			return wireEnvelope{}, err
		}
		id := m.ID
		env := wireEnvelope{JSONRPC: ProtocolVersion, ID: &id, Meta: m.Meta}
		if m.Err != nil {
			env.Error = m.Err
		} else {
			env.Result = m.Result
			if env.Result == nil {
				env.Result = intjson.RawMessage("{}")
			}
		}
		return env, nil
	default:
		return wireEnvelope{}, fmt.Errorf("jsonrpc2: unknown message type %T", msg)
	}
}

func extraOf(msg Message) Extra {
	switch m := msg.(type) {
	case *Request:
		return m.Extra
	case *Notification:
		return m.Extra
	case *Response:
		return m.Extra
	default:
		return nil
	}
}

// marshalWithExtra marshals env, then splices in any passthrough fields
// from extra that are not among the envelope's own reserved keys.
func marshalWithExtra(env wireEnvelope, extra Extra) ([]byte, error) {
	base, err := intjson.Marshal(env)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return base, nil
	}
	var merged map[string]intjson.RawMessage
	if err := intjson.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if reservedTopLevelKeys[k] {
			continue
		}
		merged[k] = v
	}
	return intjson.Marshal(merged)
}

// DecodeMessage parses a single JSON-RPC object (not a batch) into a
// Message, classifying it by key presence: a frame with both "method" and
// one of "result"/"error" is rejected as malformed.
func DecodeMessage(data []byte) (Message, error) {
	var raw map[string]intjson.RawMessage
	if err := StrictObjectUnmarshal(data, &raw); err != nil {
		return nil, &Error{Code: CodeParseError, Message: err.Error()}
	}

	_, hasMethod := raw["method"]
	_, hasResult := raw["result"]
	_, hasErr := raw["error"]
	_, hasID := raw["id"]

	if hasMethod && (hasResult || hasErr) {
		return nil, &Error{Code: CodeInvalidRequest, Message: "frame has both method and result/error"}
	}

	var env wireEnvelope
	if err := intjson.Unmarshal(data, &env); err != nil {
		return nil, &Error{Code: CodeParseError, Message: err.Error()}
	}
	if env.JSONRPC != ProtocolVersion {
		return nil, &Error{Code: CodeInvalidRequest, Message: fmt.Sprintf("bad jsonrpc version %q", env.JSONRPC)}
	}

	extra := make(Extra)
	for k, v := range raw {
		if !reservedTopLevelKeys[k] {
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		extra = nil
	}

	switch {
	case hasMethod && hasID:
		return &Request{ID: *env.ID, Method: env.Method, Params: normalizeParams(env.Params), Meta: env.Meta, Extra: extra}, nil
	case hasMethod:
		return &Notification{Method: env.Method, Params: normalizeParams(env.Params), Meta: env.Meta, Extra: extra}, nil
	case hasResult || hasErr:
		if !hasID {
			return nil, &Error{Code: CodeInvalidRequest, Message: "response missing id"}
		}
		resp := &Response{ID: *env.ID, Meta: env.Meta, Extra: extra}
		if hasErr {
			resp.Err = env.Error
		} else {
			resp.Result = env.Result
		}
		return resp, nil
	default:
		return nil, &Error{Code: CodeInvalidRequest, Message: "frame is neither request, notification, nor response"}
	}
}

// normalizeParams maps an absent, null, or empty-object params field to a
// canonical empty object, so the three spellings decode identically.
func normalizeParams(p intjson.RawMessage) intjson.RawMessage {
	if len(p) == 0 || bytes.Equal(bytes.TrimSpace(p), []byte("null")) {
		return intjson.RawMessage("{}")
	}
	return p
}

// Batch is a sequence of Messages encoded or decoded together as a JSON
// array. Decoding distinguishes a batch from a single object by the
// leading token; encoding a Batch always produces a JSON array, even of
// length one, so that callers control whether a batch wrapper appears on
// the wire.
type Batch []Message

// EncodeBatch renders msgs as a JSON array of JSON-RPC objects.
func EncodeBatch(msgs Batch) ([]byte, error) {
	parts := make([]intjson.RawMessage, len(msgs))
	for i, m := range msgs {
		data, err := EncodeMessage(m)
		if err != nil {
			return nil, err
		}
		parts[i] = data
	}
	return intjson.Marshal(parts)
}

// ReadBatch decodes data as either a single message or a batch, returning
// the resulting messages and whether the input was wrapped in an array.
// An empty batch ("[]") is rejected.
func ReadBatch(data []byte) (Batch, bool, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, false, &Error{Code: CodeParseError, Message: "empty body"}
	}
	if trimmed[0] != '[' {
		msg, err := DecodeMessage(data)
		if err != nil {
			return nil, false, err
		}
		return Batch{msg}, false, nil
	}

	var rawItems []intjson.RawMessage
	if err := intjson.Unmarshal(data, &rawItems); err != nil {
		return nil, true, &Error{Code: CodeParseError, Message: err.Error()}
	}
	if len(rawItems) == 0 {
		return nil, true, &Error{Code: CodeInvalidRequest, Message: "batch must not be empty"}
	}
	out := make(Batch, len(rawItems))
	for i, item := range rawItems {
		msg, err := DecodeMessage(item)
		if err != nil {
			return nil, true, err
		}
		out[i] = msg
	}
	return out, true, nil
}
