// Package transport correlates outbound requests with asynchronous inbound
// responses across the foreground/background process boundary.
package transport

import "encoding/json"

// MessageType identifies one of the cross-boundary message kinds.
type MessageType string

const (
	MessageRPCRequest   MessageType = "rpc_request"
	MessageRPCResponse  MessageType = "rpc_response"
	MessageLiveCallback MessageType = "live_query_callback"

	// MessageReady is sent by a background-process instance once it can
	// accept traffic; it triggers replay of still-pending calls after a
	// restart.
	MessageReady MessageType = "ready"
)

// Envelope frames every message crossing the boundary.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RPCRequest is an outbound correlated request.
type RPCRequest struct {
	RequestID string          `json:"requestId"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// RPCError carries a remote failure back to the requesting caller.
type RPCError struct {
	Code        int    `json:"code"`
	Details     string `json:"details,omitempty"`
	Description string `json:"description"`
}

// RPCResponse is an inbound response matched to a request by id.
type RPCResponse struct {
	RequestID string          `json:"requestId"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *RPCError       `json:"error,omitempty"`
}

// LiveAction enumerates live-query change notifications.
type LiveAction string

const (
	LiveCreate LiveAction = "CREATE"
	LiveUpdate LiveAction = "UPDATE"
	LiveDelete LiveAction = "DELETE"
)

// LiveCallback is an inbound live-query notification routed by
// subscription id rather than request id.
type LiveCallback struct {
	SubscriptionID string          `json:"subscriptionId"`
	Action         LiveAction      `json:"action"`
	Result         json.RawMessage `json:"result,omitempty"`
}

// encodeEnvelope marshals a payload into a framed message.
func encodeEnvelope(msgType MessageType, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
