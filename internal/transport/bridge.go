package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/MainListActivity/cuckoox-google-sub012/internal/errors"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/logging"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/observability"
)

// Port is the one-way outbound half of a process-boundary transport.
// Inbound traffic is fed to the bridge by the port's owner via
// HandleMessage.
type Port interface {
	Send(data []byte) error
	Close() error
}

// LiveHandler consumes live-query notifications for one subscription.
type LiveHandler func(action LiveAction, result json.RawMessage)

type callResult struct {
	result json.RawMessage
	err    error
}

// pendingCall keeps the original request so it can be replayed against a
// replacement port after a background-process restart.
type pendingCall struct {
	request *RPCRequest
	done    chan callResult
	sentAt  time.Time
}

// Bridge correlates outbound requests with asynchronous inbound responses
// using opaque per-request ids. Each request resolves exactly once; stale
// responses with unknown ids are dropped with a warning.
type Bridge struct {
	mu      sync.Mutex
	port    Port
	pending map[string]*pendingCall
	live    map[string]LiveHandler
	counter atomic.Uint64
	closed  bool
}

// NewBridge creates a bridge over the given port. The port may be nil until
// AttachPort is called.
func NewBridge(port Port) *Bridge {
	return &Bridge{
		port:    port,
		pending: make(map[string]*pendingCall),
		live:    make(map[string]LiveHandler),
	}
}

// nextID generates a correlation id unique even under clock skew:
// timestamp, random component, and a monotonically increasing counter.
func (b *Bridge) nextID() string {
	return fmt.Sprintf("%d-%04d-%d", time.Now().UnixNano(), rand.Intn(10000), b.counter.Add(1))
}

// Send dispatches a correlated request and blocks until its response
// arrives or the caller's context expires. The pending entry is removed on
// context expiry; a response arriving later is treated as stale.
func (b *Bridge) Send(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode request params", err)
		}
		rawParams = data
	}

	request := &RPCRequest{
		RequestID: b.nextID(),
		Method:    method,
		Params:    rawParams,
	}

	call := &pendingCall{
		request: request,
		done:    make(chan callResult, 1),
		sentAt:  time.Now(),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrTransportClosed, "bridge is closed")
	}
	port := b.port
	b.pending[request.RequestID] = call
	observability.TransportPendingCalls.Set(float64(len(b.pending)))
	b.mu.Unlock()

	if port != nil {
		if err := b.dispatch(port, request); err != nil {
			// Keep the call pending: a port replacement will replay it.
			logging.Warn("Request dispatch failed, awaiting port replacement",
				map[string]interface{}{"request_id": request.RequestID, "method": method})
		}
	}

	select {
	case res := <-call.done:
		return res.result, res.err
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, request.RequestID)
		observability.TransportPendingCalls.Set(float64(len(b.pending)))
		b.mu.Unlock()
		return nil, apperrors.Wrap(apperrors.ErrTimeout, "request abandoned by caller", ctx.Err())
	}
}

// dispatch encodes and sends one request over a port.
func (b *Bridge) dispatch(port Port, request *RPCRequest) error {
	data, err := encodeEnvelope(MessageRPCRequest, request)
	if err != nil {
		return err
	}
	return port.Send(data)
}

// HandleMessage routes one inbound message. Unknown message types and
// unmatched correlation ids are logged and dropped; neither is fatal since
// the far side may be replaying stale traffic after a restart.
func (b *Bridge) HandleMessage(data []byte) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		logging.Warn("Dropping undecodable transport message", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	switch envelope.Type {
	case MessageRPCResponse:
		var response RPCResponse
		if err := json.Unmarshal(envelope.Payload, &response); err != nil {
			logging.Warn("Dropping malformed rpc_response", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
		b.resolve(&response)

	case MessageLiveCallback:
		var callback LiveCallback
		if err := json.Unmarshal(envelope.Payload, &callback); err != nil {
			logging.Warn("Dropping malformed live_query_callback", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
		b.dispatchLive(&callback)

	case MessageReady:
		b.ReplayPending()

	default:
		logging.Warn("Dropping message of unknown type", map[string]interface{}{
			"type": string(envelope.Type),
		})
	}
}

// resolve completes a pending call, exactly once, and removes it.
func (b *Bridge) resolve(response *RPCResponse) {
	b.mu.Lock()
	call, ok := b.pending[response.RequestID]
	if ok {
		delete(b.pending, response.RequestID)
		observability.TransportPendingCalls.Set(float64(len(b.pending)))
	}
	b.mu.Unlock()

	if !ok {
		observability.TransportStaleResponses.Inc()
		logging.Warn("Dropping response with unknown correlation id",
			map[string]interface{}{"request_id": response.RequestID})
		return
	}

	if response.Error != nil {
		err := apperrors.New(apperrors.ErrRemote, response.Error.Description)
		if response.Error.Details != "" {
			err = apperrors.Wrap(apperrors.ErrRemote, response.Error.Description,
				fmt.Errorf("code %d: %s", response.Error.Code, response.Error.Details))
		}
		call.done <- callResult{err: err}
		return
	}
	call.done <- callResult{result: response.Result}
}

// dispatchLive routes a live-query notification to its subscription
// handler.
func (b *Bridge) dispatchLive(callback *LiveCallback) {
	b.mu.Lock()
	handler, ok := b.live[callback.SubscriptionID]
	b.mu.Unlock()

	if !ok {
		logging.Warn("Dropping live callback for unknown subscription",
			map[string]interface{}{"subscription_id": callback.SubscriptionID})
		return
	}
	handler(callback.Action, callback.Result)
}

// RegisterLive attaches a handler for one live subscription id.
func (b *Bridge) RegisterLive(subscriptionID string, handler LiveHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.live[subscriptionID] = handler
}

// UnregisterLive detaches a live subscription handler.
func (b *Bridge) UnregisterLive(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.live, subscriptionID)
}

// AttachPort replaces the bridge's port after the background process has
// been restarted. Pending calls are replayed when the new instance signals
// readiness (MessageReady), or immediately via ReplayPending.
func (b *Bridge) AttachPort(port Port) {
	b.mu.Lock()
	old := b.port
	b.port = port
	b.mu.Unlock()

	if old != nil && old != port {
		old.Close()
	}
}

// DetachPort closes and forgets the current port without touching pending
// calls; they stay correlated awaiting a replacement port.
func (b *Bridge) DetachPort() error {
	b.mu.Lock()
	port := b.port
	b.port = nil
	b.mu.Unlock()

	if port != nil {
		return port.Close()
	}
	return nil
}

// ReplayPending re-dispatches every still-pending call over the current
// port. Called when a replacement background-process instance signals
// readiness.
func (b *Bridge) ReplayPending() {
	b.mu.Lock()
	port := b.port
	requests := make([]*RPCRequest, 0, len(b.pending))
	for _, call := range b.pending {
		requests = append(requests, call.request)
	}
	b.mu.Unlock()

	if port == nil || len(requests) == 0 {
		return
	}

	logging.Info("Replaying pending requests after transport replacement",
		map[string]interface{}{"count": len(requests)})

	for _, request := range requests {
		if err := b.dispatch(port, request); err != nil {
			logging.Warn("Replay dispatch failed", map[string]interface{}{
				"request_id": request.RequestID,
			})
		}
	}
}

// PendingCount returns the number of in-flight correlated calls.
func (b *Bridge) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// RejectAll fails every pending call with the given error. Used as an
// explicit sweep during shutdown; pending calls otherwise survive
// disconnects awaiting replay.
func (b *Bridge) RejectAll(err error) {
	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[string]*pendingCall)
	observability.TransportPendingCalls.Set(0)
	b.mu.Unlock()

	for _, call := range pending {
		call.done <- callResult{err: err}
	}
}

// Close rejects all pending calls and closes the current port.
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.closed = true
	port := b.port
	b.port = nil
	b.mu.Unlock()

	b.RejectAll(apperrors.New(apperrors.ErrTransportClosed, "bridge closed"))
	if port != nil {
		return port.Close()
	}
	return nil
}
