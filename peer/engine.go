// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package peer implements the shared Client/Server runtime: outbound
// request correlation, inbound dispatch onto concurrent handler tasks,
// cancellation propagation, the initialize handshake, and the
// notification bus. It is generic over the caller-supplied Method{name,
// Params, Result} triples; it knows nothing about any concrete domain
// method.
package peer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	intjson "github.com/mcpcore/go-peer/internal/json"
	"github.com/mcpcore/go-peer/internal/jsonrpc2"
	"github.com/mcpcore/go-peer/transport"
)

// Role distinguishes the two ends of a connection; the engine's dispatch
// logic is otherwise identical for both.
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
)

// Options configures an Engine.
type Options struct {
	Role Role
	// Strict enables capability gating: an outbound call whose Method
	// names a RequiredCapability the remote did not advertise at
	// initialize fails locally with methodNotFound before any bytes are
	// sent.
	Strict bool
	// Logger receives protocol-violation diagnostics (unknown response
	// ids, undecodable frames). Defaults to slog.Default().
	Logger *slog.Logger
	// Tracer produces a span around each inbound request dispatch
	// (including a server's handling of initialize). Defaults to the
	// global otel tracer provider.
	Tracer trace.Tracer
	// Metrics records dispatch counters. Optional.
	Metrics *Metrics
	// Limiter throttles outbound requests this engine sends (see
	// config.RateLimitConfig). Nil disables throttling.
	Limiter *rate.Limiter
}

// pendingRequest is an outbound call awaiting its response.
type pendingRequest struct {
	id     jsonrpc2.ID
	method string
	result chan rawResult
}

type rawResult struct {
	data intjson.RawMessage
	err  error
}

func resultFromResponse(resp *jsonrpc2.Response) rawResult {
	if resp.Err != nil {
		return rawResult{err: jsonrpc2.FromWire(resp.Err)}
	}
	return rawResult{data: resp.Result}
}

// inflightInbound is a request this engine is currently handling.
type inflightInbound struct {
	id     jsonrpc2.ID
	method string
	cancel context.CancelCauseFunc
}

// handlerAdapter is the type-erased glue a generic RegisterHandler call
// installs: it decodes raw params, invokes the typed handler, and
// re-encodes the typed result.
type handlerAdapter struct {
	requiredCapability string
	invoke             func(ctx context.Context, rc *RequestContext, rawParams intjson.RawMessage) (intjson.RawMessage, *jsonrpc2.Error)
}

// notifyAdapter decodes a notification's params and invokes the typed
// observer.
type notifyAdapter func(ctx context.Context, rawParams intjson.RawMessage)

// Engine is the shared runtime underlying both Client and Server. Callers
// do not construct it directly; see NewClient and NewServer.
type Engine struct {
	role    Role
	strict  bool
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *Metrics
	limiter *rate.Limiter

	conn  transport.Connection
	hooks SessionHooks // nil unless conn.Unwrap() satisfies SessionHooks

	nextID atomic.Int64

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest
	// cancelled holds ids of outbound requests withdrawn by Cancel; a
	// response arriving for one of them is discarded without the unknown-id
	// diagnostic.
	cancelled map[string]struct{}

	handlersMu sync.RWMutex
	handlers   map[string]handlerAdapter

	notifyMu sync.RWMutex
	notify   map[string]notifyAdapter

	inflightMu sync.Mutex
	inflight   map[string]*inflightInbound

	progressMu sync.Mutex
	progress   map[string]func(progress, total float64, message string)

	capsMu          sync.RWMutex
	localCaps       Capabilities
	remoteCaps      Capabilities
	protocolVersion string

	writeMu sync.Mutex

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closed    chan struct{}

	// initializedFlag gates the server-side handshake barrier:
	// non-initialize requests are rejected until the initialize response
	// has been sent.
	initializedFlag atomic.Bool
}

// newEngine constructs an Engine bound to conn. It does not start the
// receive loop; call Run for that.
func newEngine(conn transport.Connection, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/mcpcore/go-peer/peer")
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	e := &Engine{
		role:      opts.Role,
		strict:    opts.Strict,
		logger:    opts.Logger,
		tracer:    opts.Tracer,
		metrics:   opts.Metrics,
		limiter:   opts.Limiter,
		conn:      conn,
		pending:   make(map[string]*pendingRequest),
		cancelled: make(map[string]struct{}),
		handlers:  make(map[string]handlerAdapter),
		notify:    make(map[string]notifyAdapter),
		inflight:  make(map[string]*inflightInbound),
		progress:  make(map[string]func(progress, total float64, message string)),
		group:     group,
		ctx:       gctx,
		cancel:    cancel,
		closed:    make(chan struct{}),
	}
	if h, ok := conn.Unwrap().(SessionHooks); ok {
		e.hooks = h
	}
	return e
}

// Run starts the receive loop and blocks until the connection closes or
// ctx is cancelled. It is typically invoked in its own goroutine by
// Client.Connect / Server.Connect.
func (e *Engine) Run(ctx context.Context) error {
	e.group.Go(func() error {
		return e.receiveLoop(ctx)
	})
	err := e.group.Wait()
	e.Close()
	return err
}

func (e *Engine) receiveLoop(ctx context.Context) error {
	for {
		frame, err := e.conn.Read(ctx)
		if err != nil {
			return err
		}
		if string(frame) == string(transport.NewConnectionFrame) {
			continue
		}
		batch, isBatch, err := jsonrpc2.ReadBatch(frame)
		if err != nil {
			if resp := malformedFrameResponse(frame, err); resp != nil {
				e.writeMessage(resp)
			} else {
				e.logger.Warn("peer: dropping malformed frame", "error", err)
			}
			continue
		}
		// A frame holding a request is dispatched off the read loop: a slow
		// handler must never delay reading (and concurrently handling) the
		// next frame. Handlers run under e.ctx so Close cancels them all.
		// Responses and notifications are handled here, in wire order, so
		// progress sent before a response is observed before it resolves.
		hasRequest := false
		for _, msg := range batch {
			if _, ok := msg.(*jsonrpc2.Request); ok {
				hasRequest = true
			}
		}
		if hasRequest {
			go e.dispatchBatch(e.ctx, batch, isBatch)
		} else {
			e.dispatchBatch(e.ctx, batch, isBatch)
		}
	}
}

func (e *Engine) dispatchBatch(ctx context.Context, batch jsonrpc2.Batch, isBatch bool) {
	var wg sync.WaitGroup
	responses := make([]jsonrpc2.Message, len(batch))
	haveResponse := make([]bool, len(batch))

	for i, msg := range batch {
		switch m := msg.(type) {
		case *jsonrpc2.Response:
			e.resolveResponse(m)
		case *jsonrpc2.Notification:
			e.dispatchNotification(ctx, m)
		case *jsonrpc2.Request:
			wg.Add(1)
			idx := i
			req := m
			go func() {
				defer wg.Done()
				resp := e.handleRequest(ctx, req)
				if resp != nil {
					responses[idx] = resp
					haveResponse[idx] = true
				}
			}()
		}
	}
	wg.Wait()

	var out jsonrpc2.Batch
	for i, ok := range haveResponse {
		if ok {
			out = append(out, responses[i])
		}
	}
	if len(out) == 0 {
		return
	}
	if !isBatch && len(out) == 1 {
		e.writeMessage(out[0])
		return
	}
	e.writeBatch(out)
}

func (e *Engine) resolveResponse(resp *jsonrpc2.Response) {
	key := resp.ID.String()
	e.pendingMu.Lock()
	if _, wasCancelled := e.cancelled[key]; wasCancelled {
		// The caller withdrew this request; its late response is discarded
		// silently rather than flagged as a protocol violation.
		delete(e.cancelled, key)
		e.pendingMu.Unlock()
		return
	}
	p, ok := e.pending[key]
	if ok {
		delete(e.pending, key)
	}
	e.pendingMu.Unlock()
	if !ok {
		e.logger.Warn("peer: response for unknown request id, dropping", "id", key)
		return
	}
	if e.metrics != nil {
		e.metrics.PendingRequests.Dec()
	}
	p.result <- resultFromResponse(resp)
}

func (e *Engine) dispatchNotification(ctx context.Context, n *jsonrpc2.Notification) {
	switch n.Method {
	case "notifications/cancelled":
		var params CancelledParams
		if err := intjson.Unmarshal(n.Params, &params); err != nil {
			e.logger.Warn("peer: malformed notifications/cancelled", "error", err)
			return
		}
		e.handleCancelNotification(params)
	case "notifications/progress":
		var params ProgressParams
		if err := intjson.Unmarshal(n.Params, &params); err != nil {
			e.logger.Warn("peer: malformed notifications/progress", "error", err)
			return
		}
		e.dispatchProgress(params)
	default:
		e.notifyMu.RLock()
		handler, ok := e.notify[n.Method]
		e.notifyMu.RUnlock()
		if ok {
			handler(ctx, n.Params)
		} else {
			e.logger.Debug("peer: no handler registered for notification, dropping", "method", n.Method)
		}
	}
	if e.metrics != nil {
		e.metrics.NotificationsTotal.WithLabelValues(n.Method, "in").Inc()
	}
}

// handleRequest decodes and invokes the handler registered for req.Method,
// returning the response message to emit, or nil if the response must not
// be sent (the handler was cancelled before completing).
func (e *Engine) handleRequest(ctx context.Context, req *jsonrpc2.Request) jsonrpc2.Message {
	if req.Method != "initialize" && !e.initialized() && e.role == RoleServer {
		return errorResponse(req.ID, jsonrpc2.CodeInvalidRequest, "server has not received initialize")
	}

	e.handlersMu.RLock()
	adapter, ok := e.handlers[req.Method]
	e.handlersMu.RUnlock()
	if !ok {
		return errorResponse(req.ID, jsonrpc2.CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}

	var meta jsonrpc2.Meta
	if req.Meta != nil {
		meta = req.Meta
	}

	handlerCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	entry := &inflightInbound{id: req.ID, method: req.Method, cancel: cancel}
	e.inflightMu.Lock()
	e.inflight[req.ID.String()] = entry
	e.inflightMu.Unlock()
	defer func() {
		e.inflightMu.Lock()
		delete(e.inflight, req.ID.String())
		e.inflightMu.Unlock()
	}()

	rc := &RequestContext{engine: e, id: req.ID, method: req.Method, meta: meta, hooks: e.hooks}
	if e.hooks != nil {
		rc.AuthInfo = e.hooks.AuthInfo(req.ID)
	}

	spanCtx, span := e.tracer.Start(handlerCtx, "peer.handle "+req.Method)
	start := time.Now()
	result, rpcErr := adapter.invoke(spanCtx, rc, req.Params)
	if e.metrics != nil {
		outcome := "ok"
		if rpcErr != nil {
			outcome = "error"
		}
		e.metrics.RequestsTotal.WithLabelValues(req.Method, outcome).Inc()
		e.metrics.RequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	}
	if rpcErr != nil {
		span.RecordError(rpcErr)
	}
	span.End()

	select {
	case <-handlerCtx.Done():
		if handlerCtx.Err() != nil && context.Cause(handlerCtx) == errCancelledByPeer {
			// Cancellation was observed before the handler result is
			// meaningful: suppress the response entirely.
			return nil
		}
	default:
	}

	if rpcErr != nil {
		return errorResponseValue(req.ID, rpcErr)
	}
	return &jsonrpc2.Response{ID: req.ID, Result: result}
}

var errCancelledByPeer = fmt.Errorf("peer: cancelled by notifications/cancelled")

func (e *Engine) handleCancelNotification(params CancelledParams) {
	e.inflightMu.Lock()
	entry, ok := e.inflight[params.RequestID.String()]
	e.inflightMu.Unlock()
	if !ok {
		return
	}
	if entry.method == "initialize" {
		// The handshake is uncancellable; both sides need its outcome to
		// agree on the session state.
		return
	}
	entry.cancel(errCancelledByPeer)
}

// malformedFrameResponse builds the error response owed to a frame that
// failed decoding but still carries a usable id. Id-less garbage returns
// nil; the caller logs and drops it instead.
func malformedFrameResponse(frame []byte, decodeErr error) *jsonrpc2.Response {
	var probe struct {
		ID jsonrpc2.ID `json:"id"`
	}
	if err := intjson.Unmarshal(frame, &probe); err != nil || !probe.ID.IsValid() {
		return nil
	}
	if rpcErr, ok := decodeErr.(*jsonrpc2.Error); ok {
		return errorResponseValue(probe.ID, rpcErr)
	}
	return errorResponse(probe.ID, jsonrpc2.CodeParseError, decodeErr.Error())
}

func errorResponse(id jsonrpc2.ID, code jsonrpc2.Code, message string) *jsonrpc2.Response {
	return errorResponseValue(id, &jsonrpc2.Error{Code: code, Message: message})
}

func errorResponseValue(id jsonrpc2.ID, e *jsonrpc2.Error) *jsonrpc2.Response {
	return &jsonrpc2.Response{ID: id, Err: e.ToWire()}
}

func (e *Engine) writeMessage(msg jsonrpc2.Message) {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		e.logger.Error("peer: failed to encode outbound message", "error", err)
		return
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.conn.Write(e.ctx, data); err != nil {
		e.logger.Warn("peer: write failed", "error", err)
	}
}

func (e *Engine) writeBatch(batch jsonrpc2.Batch) {
	data, err := jsonrpc2.EncodeBatch(batch)
	if err != nil {
		e.logger.Error("peer: failed to encode outbound batch", "error", err)
		return
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.conn.Write(e.ctx, data); err != nil {
		e.logger.Warn("peer: batch write failed", "error", err)
	}
}

// Close tears down the engine: pending outbound calls are resolved with
// connectionClosed, and the underlying connection is closed. Idempotent.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.cancel()
		e.pendingMu.Lock()
		for id, p := range e.pending {
			p.result <- rawResult{err: jsonrpc2.ErrConnectionClosed}
			delete(e.pending, id)
			if e.metrics != nil {
				e.metrics.PendingRequests.Dec()
			}
		}
		e.pendingMu.Unlock()
		err = e.conn.Close()
		close(e.closed)
	})
	return err
}

// Done returns a channel closed once the engine has shut down.
func (e *Engine) Done() <-chan struct{} { return e.closed }

func (e *Engine) nextRequestID() jsonrpc2.ID {
	return jsonrpc2.Int64ID(e.nextID.Add(1))
}

func (e *Engine) remoteCapabilities() Capabilities {
	e.capsMu.RLock()
	defer e.capsMu.RUnlock()
	return e.remoteCaps
}

func (e *Engine) setRemoteCapabilities(c Capabilities) {
	e.capsMu.Lock()
	e.remoteCaps = c
	e.capsMu.Unlock()
}

func (e *Engine) setLocalCapabilities(c Capabilities) {
	e.capsMu.Lock()
	e.localCaps = c
	e.capsMu.Unlock()
}

func (e *Engine) localCapabilities() Capabilities {
	e.capsMu.RLock()
	defer e.capsMu.RUnlock()
	return e.localCaps
}

// ProtocolVersion returns the version negotiated at initialize, or "" if
// the handshake has not completed.
func (e *Engine) ProtocolVersion() string {
	e.capsMu.RLock()
	defer e.capsMu.RUnlock()
	return e.protocolVersion
}

func (e *Engine) setProtocolVersion(v string) {
	e.capsMu.Lock()
	e.protocolVersion = v
	e.capsMu.Unlock()
}

func (e *Engine) initialized() bool {
	return e.initializedFlag.Load()
}

// SkipHandshake lifts the initialized barrier without an initialize
// exchange having taken place. It exists for transports that have no use
// for the handshake at all (a stateless one-shot HTTP connection serving
// a single domain request): the barrier still protects a long-lived
// session from having its other requests answered before negotiation,
// but a connection with no negotiation to do has nothing to gate.
func (e *Engine) SkipHandshake() {
	e.initializedFlag.Store(true)
}
