// Package message defines the JSON-RPC message and envelope types exchanged
// between peers.
//
// Every call travels as two nested layers:
//
//	Envelope: the addressed outer wrapper {sender, receiver, message, id}
//	RPCRequest/RPCResponse: the JSON-RPC 2.0 payload, JSON-encoded into
//	           the envelope's Message field as a string
//
// On request:  Method is set, Params carries the arguments.
// On response: exactly one of Result / Error is present; the presence of
// the error key is the sole discriminator.
package message

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Version is the JSON-RPC protocol version stamped on every request.
const Version = "2.0"

// CodeTimeout is the synthetic error code delivered when a call sees no
// response within its timeout window.
const CodeTimeout = -1

// RPCRequest is a JSON-RPC 2.0 request. ID is a process-unique string used
// to correlate the eventual response.
type RPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
	ID      string         `json:"id"`
}

// NewRequest builds a request with a freshly generated call id.
// Callers that need a specific id can set the field afterwards.
func NewRequest(method string, params map[string]any) *RPCRequest {
	if params == nil {
		params = map[string]any{}
	}
	return &RPCRequest{
		JSONRPC: Version,
		Method:  method,
		Params:  params,
		ID:      uuid.NewString(),
	}
}

// RPCError is the error object carried by a failed response. Remote errors
// arrive verbatim; timeouts are synthesized locally with CodeTimeout.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RPCResponse is a JSON-RPC 2.0 response.
type RPCResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// NewResponse builds a success response for the given call id.
func NewResponse(id string, result any) (*RPCResponse, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &RPCResponse{ID: id, Result: raw}, nil
}

// NewErrorResponse builds a failure response for the given call id.
func NewErrorResponse(id string, code int, msg string) *RPCResponse {
	return &RPCResponse{ID: id, Error: &RPCError{Code: code, Message: msg}}
}

// Envelope is the addressed wire unit exchanged after authentication.
// Message holds the inner RPC payload as a JSON-encoded string.
//
// The envelope ID is generated per call and is distinct from the RPC call id;
// only the inner id drives correlation. The outer id stays on the wire for
// relay-side bookkeeping.
type Envelope struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Message  string `json:"message"`
	ID       string `json:"id"`
}

// NewEnvelope wraps an RPC message (request or response) for the wire.
func NewEnvelope(sender, receiver string, rpc any) (*Envelope, error) {
	inner, err := json.Marshal(rpc)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Sender:   sender,
		Receiver: receiver,
		Message:  string(inner),
		ID:       uuid.NewString(),
	}, nil
}
