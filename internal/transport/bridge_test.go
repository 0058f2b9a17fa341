// Package transport provides unit tests for request/response correlation.
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	apperrors "github.com/MainListActivity/cuckoox-google-sub012/internal/errors"
)

// fakePort records sent frames and lets tests inject responses.
type fakePort struct {
	mu     sync.Mutex
	sent   [][]byte
	failed bool
	closed bool
}

func (p *fakePort) Send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failed {
		return apperrors.New(apperrors.ErrTransportClosed, "port down")
	}
	p.sent = append(p.sent, data)
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) sentRequests(t *testing.T) []*RPCRequest {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	var requests []*RPCRequest
	for _, data := range p.sent {
		var envelope Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			t.Fatalf("Sent frame is not an envelope: %v", err)
		}
		if envelope.Type != MessageRPCRequest {
			continue
		}
		request := &RPCRequest{}
		if err := json.Unmarshal(envelope.Payload, request); err != nil {
			t.Fatalf("Sent payload is not a request: %v", err)
		}
		requests = append(requests, request)
	}
	return requests
}

func respond(bridge *Bridge, requestID string, result interface{}, rpcErr *RPCError) {
	response := RPCResponse{RequestID: requestID, Error: rpcErr}
	if result != nil {
		data, _ := json.Marshal(result)
		response.Result = data
	}
	data, _ := encodeEnvelope(MessageRPCResponse, response)
	bridge.HandleMessage(data)
}

func TestSendResolvesMatchingResponse(t *testing.T) {
	port := &fakePort{}
	bridge := NewBridge(port)

	done := make(chan struct{})
	var result json.RawMessage
	var err error
	go func() {
		defer close(done)
		result, err = bridge.Send(context.Background(), "query", map[string]string{"sql": "SELECT 1"})
	}()

	request := waitForRequest(t, port)
	respond(bridge, request.RequestID, "ok", nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send did not resolve")
	}

	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	var decoded string
	if json.Unmarshal(result, &decoded) != nil || decoded != "ok" {
		t.Errorf("Unexpected result: %s", result)
	}
	if bridge.PendingCount() != 0 {
		t.Errorf("Expected no pending calls, got %d", bridge.PendingCount())
	}
}

func TestSendSurfacesRemoteError(t *testing.T) {
	port := &fakePort{}
	bridge := NewBridge(port)

	done := make(chan error, 1)
	go func() {
		_, err := bridge.Send(context.Background(), "query", nil)
		done <- err
	}()

	request := waitForRequest(t, port)
	respond(bridge, request.RequestID, nil, &RPCError{
		Code:        -32000,
		Details:     "table missing",
		Description: "query failed",
	})

	err := <-done
	if !apperrors.Is(err, apperrors.ErrRemote) {
		t.Fatalf("Expected REMOTE_ERROR, got %v", err)
	}
}

func TestUnknownCorrelationIDIsDropped(t *testing.T) {
	bridge := NewBridge(&fakePort{})

	// Must not panic and must not affect pending bookkeeping.
	respond(bridge, "stale-id-from-old-instance", "ignored", nil)

	if bridge.PendingCount() != 0 {
		t.Errorf("Expected no pending calls, got %d", bridge.PendingCount())
	}
}

func TestCallerTimeoutRemovesPending(t *testing.T) {
	port := &fakePort{}
	bridge := NewBridge(port)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := bridge.Send(ctx, "query", nil)
	if !apperrors.Is(err, apperrors.ErrTimeout) {
		t.Fatalf("Expected TIMEOUT, got %v", err)
	}
	if bridge.PendingCount() != 0 {
		t.Errorf("Expected pending call removed on timeout, got %d", bridge.PendingCount())
	}
}

func TestReplayPendingAfterPortReplacement(t *testing.T) {
	old := &fakePort{failed: true}
	bridge := NewBridge(old)

	done := make(chan error, 1)
	go func() {
		_, err := bridge.Send(context.Background(), "select", map[string]string{"thing": "creditor"})
		done <- err
	}()

	// Wait until the call is registered despite the failed dispatch.
	waitForPending(t, bridge, 1)

	replacement := &fakePort{}
	bridge.AttachPort(replacement)
	if !old.closed {
		t.Error("Expected old port to be closed on replacement")
	}

	// New instance signals readiness; pending calls are replayed.
	ready, _ := encodeEnvelope(MessageReady, nil)
	bridge.HandleMessage(ready)

	requests := replacement.sentRequests(t)
	if len(requests) != 1 {
		t.Fatalf("Expected 1 replayed request, got %d", len(requests))
	}
	if requests[0].Method != "select" {
		t.Errorf("Unexpected replayed method: %s", requests[0].Method)
	}

	respond(bridge, requests[0].RequestID, "done", nil)
	if err := <-done; err != nil {
		t.Fatalf("Replayed call failed: %v", err)
	}
}

func TestResponseResolvesExactlyOnce(t *testing.T) {
	port := &fakePort{}
	bridge := NewBridge(port)

	done := make(chan error, 1)
	go func() {
		_, err := bridge.Send(context.Background(), "ping", nil)
		done <- err
	}()

	request := waitForRequest(t, port)
	respond(bridge, request.RequestID, "pong", nil)
	// Duplicate response replays are dropped as stale.
	respond(bridge, request.RequestID, "pong", nil)

	if err := <-done; err != nil {
		t.Fatalf("Send failed: %v", err)
	}
}

func TestLiveCallbackRouting(t *testing.T) {
	bridge := NewBridge(&fakePort{})

	var (
		mu      sync.Mutex
		actions []LiveAction
	)
	bridge.RegisterLive("sub-1", func(action LiveAction, result json.RawMessage) {
		mu.Lock()
		actions = append(actions, action)
		mu.Unlock()
	})

	data, _ := encodeEnvelope(MessageLiveCallback, LiveCallback{
		SubscriptionID: "sub-1",
		Action:         LiveUpdate,
	})
	bridge.HandleMessage(data)

	// Unknown subscription must be dropped silently.
	data, _ = encodeEnvelope(MessageLiveCallback, LiveCallback{
		SubscriptionID: "sub-unknown",
		Action:         LiveDelete,
	})
	bridge.HandleMessage(data)

	mu.Lock()
	defer mu.Unlock()
	if len(actions) != 1 || actions[0] != LiveUpdate {
		t.Errorf("Unexpected live actions: %v", actions)
	}

	bridge.UnregisterLive("sub-1")
}

func TestRejectAllSweepsPending(t *testing.T) {
	port := &fakePort{}
	bridge := NewBridge(port)

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := bridge.Send(context.Background(), "query", nil)
			done <- err
		}()
	}
	waitForPending(t, bridge, 2)

	bridge.RejectAll(apperrors.New(apperrors.ErrTransportClosed, "shutting down"))

	for i := 0; i < 2; i++ {
		if err := <-done; !apperrors.Is(err, apperrors.ErrTransportClosed) {
			t.Errorf("Expected TRANSPORT_CLOSED, got %v", err)
		}
	}
}

func TestCorrelationIDsUniqueUnderBurst(t *testing.T) {
	bridge := NewBridge(&fakePort{})

	seen := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		id := bridge.nextID()
		if seen[id] {
			t.Fatalf("Duplicate correlation id: %s", id)
		}
		seen[id] = true
	}
}

func waitForRequest(t *testing.T, port *fakePort) *RPCRequest {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if requests := port.sentRequests(t); len(requests) > 0 {
			return requests[len(requests)-1]
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("Timed out waiting for request dispatch")
	return nil
}

func waitForPending(t *testing.T, bridge *Bridge, count int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if bridge.PendingCount() >= count {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d pending calls", count)
}
