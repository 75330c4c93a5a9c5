package server

import (
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"

	"swap-messenger/message"
	"swap-messenger/protocol"
)

// intent mirrors the wire shape of a published intent.
type intent struct {
	Address    string `json:"address"`
	MakerToken string `json:"makerToken"`
	TakerToken string `json:"takerToken"`
	Role       string `json:"role,omitempty"`
}

// indexer is the relay's built-in directory service: an in-memory intent
// table addressed like any other peer.
type indexer struct {
	mu      sync.Mutex
	intents map[string][]intent // publisher address → intents
}

func newIndexer() *indexer {
	return &indexer{intents: make(map[string][]intent)}
}

// handle answers one envelope addressed to the indexer. Responses travel
// back to the sender wrapped the same way peer traffic is.
func (ix *indexer) handle(r *Relay, from *peer, env *message.Envelope) {
	kind, req, _, err := protocol.Classify(env.Message)
	if err != nil || kind != protocol.KindRequest {
		r.logger.Debug("indexer dropped non-request envelope", zap.Error(err))
		return
	}

	var resp *message.RPCResponse
	switch req.Method {
	case "setIntents":
		resp = ix.setIntents(req)
	case "getIntents":
		resp = ix.getIntents(req)
	case "findIntents":
		resp = ix.findIntents(req)
	default:
		resp = message.NewErrorResponse(req.ID, -32601, "method not found")
	}

	data, err := protocol.EncodeEnvelope(r.cdc, r.indexerAddress, env.Sender, resp)
	if err != nil {
		r.logger.Debug("indexer response encode failed", zap.Error(err))
		return
	}
	if err := from.send(data); err != nil {
		r.logger.Debug("indexer response send failed", zap.Error(err))
	}
}

func (ix *indexer) setIntents(req *message.RPCRequest) *message.RPCResponse {
	address, _ := req.Params["address"].(string)
	if address == "" {
		return message.NewErrorResponse(req.ID, -32602, "address is required")
	}

	// params 走过一轮 JSON，intents 需要重新解码
	raw, err := json.Marshal(req.Params["intents"])
	if err != nil {
		return message.NewErrorResponse(req.ID, -32602, "invalid intents")
	}
	var intents []intent
	if err := json.Unmarshal(raw, &intents); err != nil {
		return message.NewErrorResponse(req.ID, -32602, "invalid intents")
	}

	ix.mu.Lock()
	ix.intents[strings.ToLower(address)] = intents
	ix.mu.Unlock()

	resp, _ := message.NewResponse(req.ID, "OK")
	return resp
}

func (ix *indexer) getIntents(req *message.RPCRequest) *message.RPCResponse {
	address, _ := req.Params["address"].(string)
	if address == "" {
		return message.NewErrorResponse(req.ID, -32602, "address is required")
	}

	ix.mu.Lock()
	found := append([]intent(nil), ix.intents[strings.ToLower(address)]...)
	ix.mu.Unlock()

	resp, _ := message.NewResponse(req.ID, found)
	return resp
}

func (ix *indexer) findIntents(req *message.RPCRequest) *message.RPCResponse {
	makerTokens := stringSlice(req.Params["makerTokens"])
	takerTokens := stringSlice(req.Params["takerTokens"])
	role, _ := req.Params["role"].(string)

	ix.mu.Lock()
	var matched []intent
	for _, intents := range ix.intents {
		for _, it := range intents {
			if role != "" && it.Role != role {
				continue
			}
			if contains(makerTokens, it.MakerToken) || contains(takerTokens, it.TakerToken) {
				matched = append(matched, it)
			}
		}
	}
	ix.mu.Unlock()

	if matched == nil {
		matched = []intent{}
	}
	resp, _ := message.NewResponse(req.ID, matched)
	return resp
}

func stringSlice(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}

func contains(haystack []string, needle string) bool {
	needle = strings.ToLower(needle)
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
