// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpmcp

import (
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/mcpcore/go-peer/internal/jsonrpc2"
	"github.com/mcpcore/go-peer/peer"
)

// SessionIDGenerator produces a new session identifier. It must return a
// string matching the Mcp-Session-Id grammar; StatefulHandler treats a
// generator failure (an empty or malformed id) as an internal error.
type SessionIDGenerator func() string

// DefaultSessionIDGenerator returns a random UUID, rendered as its
// canonical hyphenated hex form.
func DefaultSessionIDGenerator() string { return uuid.NewString() }

// StatefulHandler is an http.Handler serving one streamable MCP endpoint,
// maintaining a session table keyed by Mcp-Session-Id with SSE
// resumability.
type StatefulHandler struct {
	newServer       func(*http.Request) *peer.Server
	genSessionID    SessionIDGenerator
	store           *EventStore
	maxBodyBytes    int64
	authValidator   AuthValidator
	onSessionClosed func(sessionID string)

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStatefulHandler constructs a StatefulHandler. newServer is called
// once per new session to obtain the peer.Server that will answer it; it
// may return the same *peer.Server for every session only if that server
// is safe to Connect multiple times concurrently (peer.Server is not, by
// default, so most callers should construct a fresh one per call).
func NewStatefulHandler(newServer func(*http.Request) *peer.Server) *StatefulHandler {
	return &StatefulHandler{
		newServer:    newServer,
		genSessionID: DefaultSessionIDGenerator,
		store:        NewEventStore(256),
		sessions:     make(map[string]*Session),
	}
}

// WithAuthValidator installs av as the bearer-token validator consulted
// on every request. Returns h for chaining.
func (h *StatefulHandler) WithAuthValidator(av AuthValidator) *StatefulHandler {
	h.authValidator = av
	return h
}

// WithMaxBodyBytes overrides the POST body size limit. Returns h for
// chaining.
func (h *StatefulHandler) WithMaxBodyBytes(n int64) *StatefulHandler {
	h.maxBodyBytes = n
	return h
}

// WithSessionIDGenerator overrides session id generation. Returns h for
// chaining.
func (h *StatefulHandler) WithSessionIDGenerator(gen SessionIDGenerator) *StatefulHandler {
	h.genSessionID = gen
	return h
}

// WithSessionClosed registers a callback invoked after a session is
// terminated, either by DELETE or by the handler shutting down.
func (h *StatefulHandler) WithSessionClosed(fn func(sessionID string)) *StatefulHandler {
	h.onSessionClosed = fn
	return h
}

// CloseAll terminates every open session.
func (h *StatefulHandler) CloseAll() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

func (h *StatefulHandler) lookupSession(id string) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[id]
}

func (h *StatefulHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if !runValidators(w, req,
		validateAccept,
		maxBodyBytes(h.maxBodyBytes),
		validateSessionIDFormat,
		validateProtocolVersionHeader,
		validateContentType,
		validateAuth(h.authValidator),
	) {
		return
	}

	sessionID := req.Header.Get("Mcp-Session-Id")
	var session *Session
	if sessionID != "" {
		session = h.lookupSession(sessionID)
		if session == nil || session.isTerminated() {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
	}

	switch req.Method {
	case http.MethodDelete:
		h.handleDelete(w, req, session)
	case http.MethodGet:
		h.handleGet(w, req, session)
	case http.MethodPost:
		h.handlePost(w, req, session)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *StatefulHandler) handleDelete(w http.ResponseWriter, req *http.Request, session *Session) {
	if session == nil {
		http.Error(w, "DELETE requires Mcp-Session-Id", http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	delete(h.sessions, session.id)
	h.mu.Unlock()
	session.Close()
	w.WriteHeader(http.StatusOK)
}

func (h *StatefulHandler) handleGet(w http.ResponseWriter, req *http.Request, session *Session) {
	if session == nil {
		http.Error(w, "GET requires Mcp-Session-Id", http.StatusBadRequest)
		return
	}
	st, ok := session.openStandaloneStream()
	if !ok {
		http.Error(w, "standalone stream already open", http.StatusConflict)
		return
	}
	defer session.closeStandaloneStream()

	flusher, ok := prepareSSEResponse(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)

	if lastEventID := req.Header.Get("Last-Event-Id"); lastEventID != "" {
		events, err := session.store.ReplayAfter(lastEventID)
		if err == nil {
			for _, ev := range events {
				if err := writeSSEFrame(w, flusher, ev.ID, ev.Payload); err != nil {
					return
				}
			}
		}
	} else {
		writeSSEComment(w, flusher, "stream-open")
	}

	for {
		select {
		case ev := <-st.ch:
			if err := writeSSEFrame(w, flusher, ev.id, ev.payload); err != nil {
				return
			}
		case <-st.done:
			drainStream(w, flusher, st)
			return
		case <-req.Context().Done():
			return
		}
	}
}

func (h *StatefulHandler) handlePost(w http.ResponseWriter, req *http.Request, session *Session) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, "body too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}

	batch, isBatch, decodeErr := jsonrpc2.ReadBatch(body)
	if decodeErr != nil {
		http.Error(w, "invalid JSON-RPC body", http.StatusBadRequest)
		return
	}

	var requests []*jsonrpc2.Request
	var hasInitialize bool
	for _, msg := range batch {
		if r, ok := msg.(*jsonrpc2.Request); ok {
			requests = append(requests, r)
			if r.Method == "initialize" {
				hasInitialize = true
			}
		}
	}

	if hasInitialize {
		if isBatch || len(batch) != 1 {
			http.Error(w, "initialize must not be batched", http.StatusBadRequest)
			return
		}
		h.handleInitialize(w, req, requests[0], body)
		return
	}

	if session == nil {
		http.Error(w, "session required", http.StatusBadRequest)
		return
	}

	if len(requests) == 0 {
		for _, msg := range batch {
			session.deliver(mustEncode(msg))
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	h.handleRequestBatch(w, req, session, body, requests)
}

func (h *StatefulHandler) handleInitialize(w http.ResponseWriter, req *http.Request, initReq *jsonrpc2.Request, body []byte) {
	id := h.genSessionID()
	if id == "" || !sessionIDPattern.MatchString(id) {
		http.Error(w, "session id generator produced an invalid id", http.StatusInternalServerError)
		return
	}

	// Each session gets its own ring, sized like h.store: stream ids such
	// as standaloneStreamID repeat across sessions.
	session := newSession(id, NewEventStore(h.store.maxPerStream), h.onSessionClosed)
	h.mu.Lock()
	h.sessions[id] = session
	h.mu.Unlock()

	server := h.newServer(req)
	if err := server.Connect(req.Context(), session.asTransport(), peer.Options{}); err != nil {
		h.mu.Lock()
		delete(h.sessions, id)
		h.mu.Unlock()
		http.Error(w, "failed to start session", http.StatusInternalServerError)
		return
	}

	if info := authInfoFromContext(req.Context()); info != nil {
		session.setAuthInfo(initReq.ID.String(), info)
	}

	streamID := "init-" + id
	st := session.openRequestStream(streamID, []string{initReq.ID.String()})
	defer session.closeRequestStream(streamID)

	flusher, ok := prepareSSEResponse(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Mcp-Session-Id", id)
	w.WriteHeader(http.StatusOK)

	session.deliver(body)

	for {
		select {
		case ev := <-st.ch:
			if err := writeSSEFrame(w, flusher, ev.id, ev.payload); err != nil {
				return
			}
		case <-st.done:
			drainStream(w, flusher, st)
			return
		case <-req.Context().Done():
			return
		}
	}
}

func (h *StatefulHandler) handleRequestBatch(w http.ResponseWriter, req *http.Request, session *Session, body []byte, requests []*jsonrpc2.Request) {
	if info := authInfoFromContext(req.Context()); info != nil {
		for _, r := range requests {
			session.setAuthInfo(r.ID.String(), info)
		}
	}

	ids := make([]string, len(requests))
	for i, r := range requests {
		ids[i] = r.ID.String()
	}

	streamID := uuid.NewString()
	st := session.openRequestStream(streamID, ids)
	defer session.closeRequestStream(streamID)

	flusher, ok := prepareSSEResponse(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	writeSSEComment(w, flusher, "stream-open")

	session.deliver(body)

	for {
		select {
		case ev := <-st.ch:
			if err := writeSSEFrame(w, flusher, ev.id, ev.payload); err != nil {
				return
			}
		case <-st.done:
			drainStream(w, flusher, st)
			return
		case <-req.Context().Done():
			return
		}
	}
}

// drainStream flushes events still buffered on st after it has closed.
// routeResponse enqueues the final response and then closes the stream
// without any ordering between the two becoming visible to the handler's
// select, so a closed stream can still owe buffered frames; returning on
// the done signal alone would drop them from the wire.
func drainStream(w http.ResponseWriter, flusher http.Flusher, st *stream) {
	for {
		select {
		case ev := <-st.ch:
			if err := writeSSEFrame(w, flusher, ev.id, ev.payload); err != nil {
				return
			}
		default:
			return
		}
	}
}

func mustEncode(msg jsonrpc2.Message) []byte {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return nil
	}
	return data
}
