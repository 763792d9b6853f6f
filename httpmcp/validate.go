// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpmcp

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultMaxBodyBytes bounds a POST body absent an explicit override.
const DefaultMaxBodyBytes = 4 << 20 // 4 MiB

// sessionIDPattern is the visible-ASCII grammar a session id must match;
// it mirrors the header-token constraints HTTP itself imposes on
// Mcp-Session-Id.
var sessionIDPattern = regexp.MustCompile(`^[\x21-\x7E]+$`)

// validator inspects req and either lets the chain continue (ok == true)
// or has already written a complete response and short-circuits the rest
// of the pipeline.
type validator func(w http.ResponseWriter, req *http.Request) (ok bool)

// runValidators executes vs in order, stopping at the first that
// short-circuits.
func runValidators(w http.ResponseWriter, req *http.Request, vs ...validator) bool {
	for _, v := range vs {
		if !v(w, req) {
			return false
		}
	}
	return true
}

// validateContentType requires application/json on POST bodies that carry
// one.
func validateContentType(w http.ResponseWriter, req *http.Request) bool {
	if req.Method != http.MethodPost {
		return true
	}
	ct := req.Header.Get("Content-Type")
	if ct == "" {
		return true
	}
	if mediaType(ct) != "application/json" {
		http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return false
	}
	return true
}

func mediaType(ct string) string {
	return strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
}

// validateAccept enforces the Accept-header rules: GET requires
// text/event-stream, POST requires both application/json and
// text/event-stream.
func validateAccept(w http.ResponseWriter, req *http.Request) bool {
	accept := strings.Split(strings.Join(req.Header.Values("Accept"), ","), ",")
	var jsonOK, streamOK bool
	for _, c := range accept {
		switch strings.TrimSpace(c) {
		case "application/json", "*/*":
			jsonOK = true
		case "text/event-stream":
			streamOK = true
		}
	}
	if len(req.Header.Values("Accept")) == 0 {
		jsonOK, streamOK = true, true
	}
	switch req.Method {
	case http.MethodGet:
		if !streamOK {
			http.Error(w, "Accept must contain text/event-stream for GET requests", http.StatusNotAcceptable)
			return false
		}
	case http.MethodPost:
		if !jsonOK || !streamOK {
			http.Error(w, "Accept must contain both application/json and text/event-stream", http.StatusNotAcceptable)
			return false
		}
	}
	return true
}

// maxBodyBytes wraps req.Body in http.MaxBytesReader using limit, or
// DefaultMaxBodyBytes if limit <= 0.
func maxBodyBytes(limit int64) validator {
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	return func(w http.ResponseWriter, req *http.Request) bool {
		req.Body = http.MaxBytesReader(w, req.Body, limit)
		return true
	}
}

// validateSessionIDFormat rejects a syntactically invalid Mcp-Session-Id
// header outright, before any session lookup.
func validateSessionIDFormat(w http.ResponseWriter, req *http.Request) bool {
	id := req.Header.Get("Mcp-Session-Id")
	if id == "" {
		return true
	}
	if !sessionIDPattern.MatchString(id) {
		http.Error(w, "malformed Mcp-Session-Id", http.StatusBadRequest)
		return false
	}
	return true
}

// SupportedProtocolVersions lists the protocol-version header values this
// endpoint accepts; absence of the header is allowed for backwards
// compatibility with clients predating version negotiation over HTTP.
var SupportedProtocolVersions = []string{"2025-06-18", "2025-03-26", "2024-11-05"}

func validateProtocolVersionHeader(w http.ResponseWriter, req *http.Request) bool {
	v := req.Header.Get("MCP-Protocol-Version")
	if v == "" {
		return true
	}
	for _, supported := range SupportedProtocolVersions {
		if v == supported {
			return true
		}
	}
	http.Error(w, "unsupported MCP-Protocol-Version", http.StatusBadRequest)
	return false
}

// AuthValidator verifies a bearer token and returns an opaque AuthInfo
// value to attach to the request, or an error if the token is missing or
// invalid. A nil AuthValidator disables authentication entirely; this
// layer only surfaces AuthInfo to handlers, it implements no token
// issuance or refresh of its own.
type AuthValidator func(token string) (authInfo any, err error)

// BearerJWTValidator returns an AuthValidator that parses the bearer token
// as a JWT signed with keyFunc's key, returning its claims as AuthInfo.
func BearerJWTValidator(keyFunc jwt.Keyfunc) AuthValidator {
	return func(token string) (any, error) {
		parsed, err := jwt.Parse(token, keyFunc)
		if err != nil {
			return nil, err
		}
		return parsed.Claims, nil
	}
}

// authInfoKey is the context key under which an authenticated request's
// AuthInfo is stashed between the validation pipeline and the handler
// that records it against the inbound jsonrpc2 request id.
type authInfoKey struct{}

func contextWithAuthInfo(ctx context.Context, info any) context.Context {
	return context.WithValue(ctx, authInfoKey{}, info)
}

func authInfoFromContext(ctx context.Context) any {
	return ctx.Value(authInfoKey{})
}

func validateAuth(av AuthValidator) validator {
	return func(w http.ResponseWriter, req *http.Request) bool {
		if av == nil {
			return true
		}
		header := req.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return false
		}
		info, err := av(strings.TrimPrefix(header, prefix))
		if err != nil {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return false
		}
		*req = *req.WithContext(contextWithAuthInfo(req.Context(), info))
		return true
	}
}
