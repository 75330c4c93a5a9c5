package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"swap-messenger/message"
	"swap-messenger/protocol"
)

// pendingCall is the single tagged record per in-flight call id: optional
// resolver, optional rejector, and the timeout timer. Removal from the
// pending table is the one atomic cleanup step: after it, any late message
// bearing the same id is a no-op.
type pendingCall struct {
	onResult func(json.RawMessage)
	onError  func(*message.RPCError)
	timer    *time.Timer
}

// Call sends req to receiver and registers the optional callbacks under the
// request's call id. A timeout is always armed, even for fire-and-forget
// calls (both callbacks nil), so the record cannot outlive the timeout
// window: whichever of {response, timeout} comes first removes it, and at
// most one callback ever fires.
func (m *Messenger) Call(receiver string, req *message.RPCRequest, onResult func(json.RawMessage), onError func(*message.RPCError)) error {
	m.mu.Lock()
	conn := m.conn
	authed := m.authenticated
	m.mu.Unlock()
	if conn == nil || !authed {
		return ErrNotConnected
	}

	data, err := protocol.EncodeEnvelope(m.cdc, m.address, strings.ToLower(receiver), req)
	if err != nil {
		return err
	}

	// Register before sending so a fast response can't race the record.
	pc := &pendingCall{onResult: onResult, onError: onError}
	m.mu.Lock()
	m.pending[req.ID] = pc
	pc.timer = time.AfterFunc(m.timeout, func() { m.expire(req.ID) })
	m.mu.Unlock()

	if err := conn.Send(data); err != nil {
		m.remove(req.ID)
		return fmt.Errorf("send call %s: %w", req.Method, err)
	}
	return nil
}

// Reply sends a response to a peer that invoked one of our methods.
// Responses are not correlated locally, so no pending record is created.
func (m *Messenger) Reply(receiver string, resp *message.RPCResponse) error {
	m.mu.Lock()
	conn := m.conn
	authed := m.authenticated
	m.mu.Unlock()
	if conn == nil || !authed {
		return ErrNotConnected
	}

	data, err := protocol.EncodeEnvelope(m.cdc, m.address, strings.ToLower(receiver), resp)
	if err != nil {
		return err
	}
	return conn.Send(data)
}

// CallWait is the synchronous form of Call, running through the configured
// middleware chain. Cancelling the context abandons the call and removes its
// pending record immediately instead of waiting out the timeout.
func (m *Messenger) CallWait(ctx context.Context, receiver string, req *message.RPCRequest) (json.RawMessage, error) {
	return m.call(ctx, receiver, req)
}

// doCall is the innermost CallFunc beneath the middleware chain: a channel
// rendezvous over the callback-based Call primitive.
func (m *Messenger) doCall(ctx context.Context, receiver string, req *message.RPCRequest) (json.RawMessage, error) {
	type outcome struct {
		result json.RawMessage
		err    *message.RPCError
	}
	ch := make(chan outcome, 1)

	err := m.Call(receiver, req,
		func(result json.RawMessage) { ch <- outcome{result: result} },
		func(rpcErr *message.RPCError) { ch <- outcome{err: rpcErr} },
	)
	if err != nil {
		return nil, err
	}

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, out.err
		}
		return out.result, nil
	case <-ctx.Done():
		m.remove(req.ID)
		return nil, ctx.Err()
	}
}

// expire fires when a call's timeout elapses before any response.
func (m *Messenger) expire(id string) {
	m.mu.Lock()
	pc, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	m.logger.Debug("call timed out", zap.String("id", id))
	if pc.onError != nil {
		pc.onError(&message.RPCError{
			Code:    message.CodeTimeout,
			Message: fmt.Sprintf("request %s timed out", id),
		})
	}
}

// remove deletes a pending record and stops its timer without firing any
// callback. Used on send failure and context cancellation.
func (m *Messenger) remove(id string) {
	m.mu.Lock()
	if pc, ok := m.pending[id]; ok {
		delete(m.pending, id)
		pc.timer.Stop()
	}
	m.mu.Unlock()
}

// resolve routes an inbound response to its pending call. A response for an
// unknown id, or one carrying neither result nor error, is dropped without
// touching the table.
func (m *Messenger) resolve(resp *message.RPCResponse) {
	m.mu.Lock()
	pc, ok := m.pending[resp.ID]
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("response for unknown call id dropped", zap.String("id", resp.ID))
		return
	}
	if resp.Error == nil && resp.Result == nil {
		m.mu.Unlock()
		m.logger.Debug("response with neither result nor error dropped", zap.String("id", resp.ID))
		return
	}
	delete(m.pending, resp.ID)
	pc.timer.Stop()
	m.mu.Unlock()

	if resp.Error != nil {
		if pc.onError != nil {
			pc.onError(resp.Error)
		}
		return
	}
	if pc.onResult != nil {
		pc.onResult(resp.Result)
	}
}
