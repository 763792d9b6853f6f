// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpmcp

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/mcpcore/go-peer/internal/jsonrpc2"
	"github.com/mcpcore/go-peer/peer"
	"github.com/mcpcore/go-peer/transport"
)

// StatelessHandler serves one MCP endpoint with no session table: each
// POST carrying exactly one request gets a fresh connection to a server
// obtained from newServer, and the handler waits for the single matching
// response before replying as application/json. GET and DELETE are not
// meaningful without a session and return 405.
type StatelessHandler struct {
	newServer     func(*http.Request) *peer.Server
	maxBodyBytes  int64
	authValidator AuthValidator
}

// NewStatelessHandler constructs a StatelessHandler using newServer to
// obtain a fresh peer.Server for every request.
func NewStatelessHandler(newServer func(*http.Request) *peer.Server) *StatelessHandler {
	return &StatelessHandler{newServer: newServer}
}

// WithAuthValidator installs av as the bearer-token validator. Returns h
// for chaining.
func (h *StatelessHandler) WithAuthValidator(av AuthValidator) *StatelessHandler {
	h.authValidator = av
	return h
}

// WithMaxBodyBytes overrides the POST body size limit. Returns h for
// chaining.
func (h *StatelessHandler) WithMaxBodyBytes(n int64) *StatelessHandler {
	h.maxBodyBytes = n
	return h
}

func (h *StatelessHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "stateless endpoint only accepts POST", http.StatusMethodNotAllowed)
		return
	}

	if !runValidators(w, req,
		maxBodyBytes(h.maxBodyBytes),
		validateProtocolVersionHeader,
		validateContentType,
		validateAuth(h.authValidator),
	) {
		return
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, "body too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}

	batch, _, decodeErr := jsonrpc2.ReadBatch(body)
	if decodeErr != nil {
		http.Error(w, "invalid JSON-RPC body", http.StatusBadRequest)
		return
	}

	var requests []*jsonrpc2.Request
	for _, msg := range batch {
		if r, ok := msg.(*jsonrpc2.Request); ok {
			requests = append(requests, r)
		}
	}

	if len(requests) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if len(requests) > 1 {
		http.Error(w, "stateless endpoint accepts exactly one request per call", http.StatusBadRequest)
		return
	}

	conn := newOneShotConn(body)
	server := h.newServer(req)
	if err := server.Connect(req.Context(), conn.asTransport(), peer.Options{}); err != nil {
		http.Error(w, "failed to start connection", http.StatusInternalServerError)
		return
	}
	server.SkipHandshake()
	defer server.Close()

	select {
	case resp := <-conn.response:
		w.Header().Set("Content-Type", "application/json")
		w.Write(resp)
	case <-server.Done():
		http.Error(w, "connection closed before a response was produced", http.StatusInternalServerError)
	case <-req.Context().Done():
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
	}
}

// oneShotConn is a transport.ConnImpl serving exactly one request: it
// hands the request body to the peer engine once, captures the single
// response it writes back, and then reports closed.
type oneShotConn struct {
	body     []byte
	consumed bool

	response  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
}

func newOneShotConn(body []byte) *oneShotConn {
	return &oneShotConn{body: body, response: make(chan []byte, 1), closed: make(chan struct{})}
}

func (c *oneShotConn) Read(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if !c.consumed {
		c.consumed = true
		c.mu.Unlock()
		return c.body, nil
	}
	c.mu.Unlock()
	select {
	case <-c.closed:
		return nil, transport.ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *oneShotConn) Write(ctx context.Context, frame []byte) error {
	select {
	case c.response <- frame:
	default:
	}
	return nil
}

func (c *oneShotConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *oneShotConn) SessionID() string { return "" }

func (c *oneShotConn) asTransport() transport.Transport { return oneShotTransport{c} }

type oneShotTransport struct{ conn *oneShotConn }

func (t oneShotTransport) Connect(ctx context.Context) (transport.Connection, error) {
	return transport.Wrap(t.conn), nil
}
