// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package peer

import (
	"context"
	"errors"
	"fmt"

	intjson "github.com/mcpcore/go-peer/internal/json"
	"github.com/mcpcore/go-peer/internal/jsonrpc2"
)

// ErrCancelled resolves a PendingCall whose caller withdrew it with Cancel
// before the response arrived.
var ErrCancelled = errors.New("peer: request cancelled")

// Method names one request/response pair by its wire method name and the
// capability the remote must have advertised at initialize for the call
// to be attempted. P and R are supplied by the external collaborator that
// owns the domain method (tools/list, resources/read, and so on); the
// core never refers to a concrete P or R.
//
// RequiredCapability may be empty for methods every peer must support
// regardless of capability negotiation (initialize itself, ping).
type Method[P, R any] struct {
	Name               string
	RequiredCapability string
}

// PendingCall is a handle to an outbound request that has been sent but
// not yet resolved. It lets a caller cancel a specific in-flight call by
// id and reason, independent of the context passed to the call that sent
// it, so an application can implement "cancel request 7" as a distinct
// action from "my own context expired".
type PendingCall[R any] struct {
	id     jsonrpc2.ID
	method string
	engine *Engine
	result chan rawResult
}

// ID returns the outbound request id assigned to this call.
func (p *PendingCall[R]) ID() jsonrpc2.ID { return p.id }

// Wait blocks until the response arrives, ctx is done, or the connection
// closes. If ctx expires first, the request is withdrawn exactly as by
// Cancel, with reason "timeout" when the deadline passed and "cancelled"
// otherwise, before the context error is returned.
func (p *PendingCall[R]) Wait(ctx context.Context) (R, error) {
	var zero R
	select {
	case res := <-p.result:
		if res.err != nil {
			return zero, res.err
		}
		var out R
		if err := jsonrpc2.StrictUnmarshal(res.data, &out); err != nil {
			return zero, fmt.Errorf("peer: decoding result of %s: %w", p.method, err)
		}
		return out, nil
	case <-ctx.Done():
		reason := "cancelled"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = "timeout"
		}
		p.withdraw(reason)
		return zero, ctx.Err()
	case <-p.engine.Done():
		return zero, jsonrpc2.ErrConnectionClosed
	}
}

// Cancel withdraws this call: it sends notifications/cancelled with the
// given reason, drops the pending entry so a late response is silently
// discarded, and resolves Wait with ErrCancelled. It does not wait for the
// remote to acknowledge anything.
func (p *PendingCall[R]) Cancel(reason string) error {
	if !p.withdraw(reason) {
		return nil // already resolved or withdrawn
	}
	select {
	case p.result <- rawResult{err: ErrCancelled}:
	default:
	}
	return nil
}

// withdraw removes the pending entry, marks the id so its eventual
// response is dropped without a diagnostic, and notifies the remote. It
// reports whether this call was still pending.
func (p *PendingCall[R]) withdraw(reason string) bool {
	if !p.engine.forgetPending(p.id) {
		return false
	}
	Notify(context.Background(), p.engine, "notifications/cancelled", &CancelledParams{
		RequestID: p.id,
		Reason:    reason,
	})
	return true
}

// forgetPending reclaims the pending entry for id, recording it as
// cancelled so the receive loop discards a late response silently. It
// reports whether an entry was still present.
func (e *Engine) forgetPending(id jsonrpc2.ID) bool {
	key := id.String()
	e.pendingMu.Lock()
	_, ok := e.pending[key]
	if ok {
		delete(e.pending, key)
		e.cancelled[key] = struct{}{}
	}
	e.pendingMu.Unlock()
	if ok && e.metrics != nil {
		e.metrics.PendingRequests.Dec()
	}
	return ok
}

// CallAsync sends a request for m without blocking for its response.
func CallAsync[P, R any](ctx context.Context, e *Engine, m Method[P, R], params P) (*PendingCall[R], error) {
	return CallAsyncMeta[P, R](ctx, e, m, params, nil)
}

// CallAsyncMeta is CallAsync with a caller-supplied _meta carrier attached
// to the outbound envelope; its standard use is carrying a progressToken
// the remote's handler will echo on notifications/progress.
func CallAsyncMeta[P, R any](ctx context.Context, e *Engine, m Method[P, R], params P, meta jsonrpc2.Meta) (*PendingCall[R], error) {
	if err := e.requireCapability(m.Name, m.RequiredCapability); err != nil {
		return nil, err
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("peer: rate limit: %w", err)
		}
	}

	raw, err := intjson.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("peer: encoding params for %s: %w", m.Name, err)
	}

	id := e.nextRequestID()
	pc := &PendingCall[R]{id: id, method: m.Name, engine: e, result: make(chan rawResult, 1)}

	e.pendingMu.Lock()
	e.pending[id.String()] = &pendingRequest{id: id, method: m.Name, result: pc.result}
	e.pendingMu.Unlock()
	if e.metrics != nil {
		e.metrics.PendingRequests.Inc()
	}

	req := &jsonrpc2.Request{ID: id, Method: m.Name, Params: raw, Meta: meta}
	e.writeMessage(req)
	return pc, nil
}

// Call sends a request for m and blocks for its response, honoring ctx.
func Call[P, R any](ctx context.Context, e *Engine, m Method[P, R], params P) (R, error) {
	var zero R
	pc, err := CallAsync(ctx, e, m, params)
	if err != nil {
		return zero, err
	}
	return pc.Wait(ctx)
}

// CallWithProgress sends a request for m carrying token as its
// _meta.progressToken, delivering every notifications/progress the remote
// emits for that token to observe until the call resolves.
func CallWithProgress[P, R any](ctx context.Context, e *Engine, m Method[P, R], params P, token any, observe func(progress, total float64, message string)) (R, error) {
	var zero R
	stop := e.ObserveProgress(token, observe)
	defer stop()
	pc, err := CallAsyncMeta(ctx, e, m, params, jsonrpc2.Meta{"progressToken": token})
	if err != nil {
		return zero, err
	}
	return pc.Wait(ctx)
}

// HandlerFunc is the signature of a request handler registered for a
// Method[P, R]: it receives the decoded params and the inbound request's
// context, and must return the typed result or an error.
type HandlerFunc[P, R any] func(ctx context.Context, rc *RequestContext, params P) (R, error)

// RegisterHandler installs fn as the handler for inbound requests whose
// method is m.Name, replacing any previously registered handler for that
// method.
func RegisterHandler[P, R any](e *Engine, m Method[P, R], fn HandlerFunc[P, R]) {
	adapter := handlerAdapter{
		requiredCapability: m.RequiredCapability,
		invoke: func(ctx context.Context, rc *RequestContext, rawParams intjson.RawMessage) (intjson.RawMessage, *jsonrpc2.Error) {
			var params P
			if len(rawParams) > 0 {
				if err := jsonrpc2.StrictUnmarshal(rawParams, &params); err != nil {
					return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
				}
			}
			result, err := fn(ctx, rc, params)
			if err != nil {
				if rpcErr, ok := err.(*jsonrpc2.Error); ok {
					return nil, rpcErr
				}
				return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
			}
			encoded, err := intjson.Marshal(result)
			if err != nil {
				return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
			}
			return encoded, nil
		},
	}
	e.handlersMu.Lock()
	e.handlers[m.Name] = adapter
	e.handlersMu.Unlock()
}

// RegisterNotification installs fn as the handler for inbound notifications
// named method, replacing any previously registered handler for that
// method. At most one handler exists per method name at a time; a
// notification whose method has no registered handler is silently dropped.
func RegisterNotification[P any](e *Engine, method string, fn func(ctx context.Context, params P)) {
	e.notifyMu.Lock()
	e.notify[method] = func(ctx context.Context, raw intjson.RawMessage) {
		var params P
		if len(raw) > 0 {
			if err := jsonrpc2.StrictUnmarshal(raw, &params); err != nil {
				e.logger.Warn("peer: malformed notification params, dropping", "method", method, "error", err)
				return
			}
		}
		fn(ctx, params)
	}
	e.notifyMu.Unlock()
}
