// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpmcp

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mcpcore/go-peer/internal/jsonrpc2"
	"github.com/mcpcore/go-peer/transport"
)

// sseEvent is one frame queued for delivery on a stream, already assigned
// its SSE event id.
type sseEvent struct {
	id      string
	payload []byte
}

// standaloneStreamID names the session's one standalone (GET) stream, as
// distinct from the per-POST streams opened for each request batch.
const standaloneStreamID = "standalone"

// stream is a single SSE sink: either the session's standalone stream, or
// one opened for the lifetime of a POST request.
type stream struct {
	id      string
	ch      chan sseEvent // frames waiting to be written to the HTTP response
	closed  atomic.Bool
	done    chan struct{}
	pending map[string]bool // outstanding request ids this stream owes a response for
}

func newStream(id string) *stream {
	return &stream{id: id, ch: make(chan sseEvent, 16), done: make(chan struct{}), pending: make(map[string]bool)}
}

func (s *stream) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}
}

// Session is one logical MCP connection addressed by an Mcp-Session-Id.
// It implements transport.ConnImpl (so a peer.Server can Run against it)
// and peer.SessionHooks (so the peer engine can populate AuthInfo and
// close SSE streams on the handler's behalf).
type Session struct {
	id    string
	store *EventStore

	incoming  chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu             sync.Mutex
	streams        map[string]*stream
	requestStream  map[string]string // request id -> owning stream id
	standaloneOpen bool
	authInfo       map[string]any // keyed by request id, set by the validation pipeline
	terminated     bool

	onClosed func(sessionID string)
}

// newSession constructs a Session; the caller is responsible for invoking
// a peer.Server's Connect against transport.Wrap(session).
func newSession(id string, store *EventStore, onClosed func(string)) *Session {
	return &Session{
		id:            id,
		store:         store,
		incoming:      make(chan []byte, 16),
		closed:        make(chan struct{}),
		streams:       make(map[string]*stream),
		requestStream: make(map[string]string),
		authInfo:      make(map[string]any),
		onClosed:      onClosed,
	}
}

// --- transport.ConnImpl ---

func (s *Session) Read(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-s.incoming:
		return frame, nil
	case <-s.closed:
		return nil, transport.ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write routes an outbound frame (a response or a server-initiated
// request/notification) to the stream responsible for it: a response goes
// to the stream holding its request id, everything else goes to the
// standalone stream if one is open, and is dropped otherwise: a session
// with no open standalone stream cannot deliver server-initiated traffic
// until the client reconnects via GET.
func (s *Session) Write(ctx context.Context, frame []byte) error {
	msg, err := jsonrpc2.DecodeMessage(frame)
	if err == nil {
		if resp, ok := msg.(*jsonrpc2.Response); ok {
			return s.routeResponse(resp.ID.String(), frame)
		}
	}
	return s.routeToStandalone(frame)
}

func (s *Session) routeResponse(id string, frame []byte) error {
	s.mu.Lock()
	streamID, ok := s.requestStream[id]
	var st *stream
	if ok {
		st = s.streams[streamID]
	}
	s.mu.Unlock()
	if !ok || st == nil {
		return s.routeToStandalone(frame)
	}

	eventID := s.store.Put(streamID, frame)
	select {
	case st.ch <- sseEvent{id: eventID, payload: frame}:
	case <-st.done:
	}

	s.mu.Lock()
	delete(st.pending, id)
	delete(s.requestStream, id)
	done := len(st.pending) == 0
	s.mu.Unlock()
	if done {
		st.close()
	}
	return nil
}

func (s *Session) routeToStandalone(frame []byte) error {
	s.mu.Lock()
	st, ok := s.streams[standaloneStreamID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	eventID := s.store.Put(standaloneStreamID, frame)
	select {
	case st.ch <- sseEvent{id: eventID, payload: frame}:
	case <-st.done:
	}
	return nil
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.terminated = true
		for _, st := range s.streams {
			st.close()
		}
		s.mu.Unlock()
		close(s.closed)
		if s.onClosed != nil {
			s.onClosed(s.id)
		}
	})
	return nil
}

func (s *Session) SessionID() string { return s.id }

// --- peer.SessionHooks ---

func (s *Session) AuthInfo(id jsonrpc2.ID) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authInfo[id.String()]
}

func (s *Session) CloseSSEStream(id jsonrpc2.ID) {
	s.mu.Lock()
	streamID, ok := s.requestStream[id.String()]
	var st *stream
	if ok {
		st = s.streams[streamID]
	}
	s.mu.Unlock()
	if st != nil {
		st.close()
	}
}

func (s *Session) CloseStandaloneSSEStream() {
	s.mu.Lock()
	st, ok := s.streams[standaloneStreamID]
	s.mu.Unlock()
	if ok {
		st.close()
	}
}

// --- session-lifecycle helpers used by the HTTP handlers ---

// deliver enqueues an inbound frame for the peer engine's receive loop.
func (s *Session) deliver(frame []byte) {
	select {
	case s.incoming <- frame:
	case <-s.closed:
	}
}

func (s *Session) isTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// openRequestStream registers a new per-POST stream awaiting responses to
// requestIDs, returning it.
func (s *Session) openRequestStream(streamID string, requestIDs []string) *stream {
	st := newStream(streamID)
	s.mu.Lock()
	s.streams[streamID] = st
	for _, id := range requestIDs {
		st.pending[id] = true
		s.requestStream[id] = streamID
	}
	s.mu.Unlock()
	return st
}

// openStandaloneStream registers the session's single standalone stream.
// ok is false if one is already open, which the GET handler turns into 409.
func (s *Session) openStandaloneStream() (*stream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.standaloneOpen {
		return nil, false
	}
	s.standaloneOpen = true
	st := newStream(standaloneStreamID)
	s.streams[standaloneStreamID] = st
	return st, true
}

func (s *Session) closeStandaloneStream() {
	s.mu.Lock()
	delete(s.streams, standaloneStreamID)
	s.standaloneOpen = false
	s.mu.Unlock()
}

func (s *Session) closeRequestStream(streamID string) {
	s.mu.Lock()
	delete(s.streams, streamID)
	s.mu.Unlock()
}

func (s *Session) setAuthInfo(requestID string, info any) {
	s.mu.Lock()
	s.authInfo[requestID] = info
	s.mu.Unlock()
}

// asTransport adapts s to transport.Transport, so that a peer.Server can
// Connect against it the same way it would any other transport.
func (s *Session) asTransport() transport.Transport { return sessionTransport{s} }

type sessionTransport struct{ session *Session }

func (t sessionTransport) Connect(ctx context.Context) (transport.Connection, error) {
	return transport.Wrap(t.session), nil
}
