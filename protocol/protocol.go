// Package protocol implements the wire protocol spoken over the WebSocket.
//
// The connection has two phases:
//
//	pre-auth:  plain text: challenge from the relay, signature from us,
//	           then the outcome "ok" or "not authorized"
//	post-auth: JSON envelopes {sender, receiver, message, id} where message
//	           is itself a JSON-encoded RPC request or response
//
// A single envelope decodes in two steps: the outer envelope, then the inner
// RPC message. Classify distinguishes peer-initiated requests (method field
// present) from responses to our own calls (id field present). Anything that
// fails either parse, or carries neither field, is noise the caller drops.
package protocol

import (
	"encoding/json"
	"fmt"

	"swap-messenger/codec"
	"swap-messenger/message"
)

// Auth phase outcomes, sent by the relay as plain text. Any other pre-auth
// text frame is a challenge to be signed.
const (
	OutcomeOK            = "ok"
	OutcomeNotAuthorized = "not authorized"
)

// Kind classifies the inner RPC message of an envelope.
type Kind int

const (
	KindRequest  Kind = iota // peer is invoking one of our methods
	KindResponse             // response to a call of ours
	KindUnknown              // neither method nor id, droppable
)

// EncodeEnvelope wraps an RPC message for the given addresses and serializes
// the full envelope with the codec.
func EncodeEnvelope(cdc codec.Codec, sender, receiver string, rpc any) ([]byte, error) {
	env, err := message.NewEnvelope(sender, receiver, rpc)
	if err != nil {
		return nil, fmt.Errorf("build envelope: %w", err)
	}
	data, err := cdc.Encode(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses the outer envelope layer of a raw frame.
func DecodeEnvelope(cdc codec.Codec, data []byte) (*message.Envelope, error) {
	var env message.Envelope
	if err := cdc.Decode(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

// probe peeks at the discriminating fields of an inner message without
// committing to a shape.
type probe struct {
	Method string `json:"method"`
	ID     string `json:"id"`
}

// Classify parses the inner message of an envelope and returns its kind
// together with the decoded request or response. Classification order
// matters: a message with a method field is a request even if it also
// carries an id (requests always do).
func Classify(inner string) (Kind, *message.RPCRequest, *message.RPCResponse, error) {
	var p probe
	if err := json.Unmarshal([]byte(inner), &p); err != nil {
		return KindUnknown, nil, nil, fmt.Errorf("decode rpc message: %w", err)
	}

	if p.Method != "" {
		var req message.RPCRequest
		if err := json.Unmarshal([]byte(inner), &req); err != nil {
			return KindUnknown, nil, nil, fmt.Errorf("decode rpc request: %w", err)
		}
		return KindRequest, &req, nil, nil
	}

	if p.ID != "" {
		var resp message.RPCResponse
		if err := json.Unmarshal([]byte(inner), &resp); err != nil {
			return KindUnknown, nil, nil, fmt.Errorf("decode rpc response: %w", err)
		}
		return KindResponse, nil, &resp, nil
	}

	return KindUnknown, nil, nil, nil
}
