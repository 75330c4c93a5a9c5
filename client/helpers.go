package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"swap-messenger/message"
)

// Intent is an advertised willingness to trade a token pair, published to
// and discovered through the indexer.
type Intent struct {
	Address    string `json:"address"`
	MakerToken string `json:"makerToken"`
	TakerToken string `json:"takerToken"`
	Role       string `json:"role,omitempty"`
}

// Order is a signed maker order. The signature v component arrives as a JSON
// number from some peers and as a numeric string from others, so it is kept
// as json.Number and decoded through SigV.
type Order struct {
	MakerAddress string `json:"makerAddress"`
	MakerToken   string `json:"makerToken"`
	MakerAmount  string `json:"makerAmount"`
	TakerAddress string `json:"takerAddress"`
	TakerToken   string `json:"takerToken"`
	TakerAmount  string `json:"takerAmount"`
	Expiration   int64  `json:"expiration"`
	Nonce        string `json:"nonce"`

	V json.Number `json:"v"`
	R string      `json:"r"`
	S string      `json:"s"`
}

// SigV decodes the numeric signature recovery byte.
func (o *Order) SigV() (uint8, error) {
	v, err := o.V.Int64()
	if err != nil {
		return 0, fmt.Errorf("decode signature v: %w", err)
	}
	if v < 0 || v > 255 {
		return 0, fmt.Errorf("signature v out of range: %d", v)
	}
	return uint8(v), nil
}

// Quote is an unsigned price indication.
type Quote struct {
	MakerToken  string `json:"makerToken"`
	MakerAmount string `json:"makerAmount"`
	TakerToken  string `json:"takerToken"`
	TakerAmount string `json:"takerAmount"`
}

// OrderParams are the arguments for getOrder/getQuote/getMaxQuote. Exactly
// one of MakerAmount/TakerAmount must be set.
type OrderParams struct {
	MakerToken  string
	TakerToken  string
	MakerAmount string
	TakerAmount string
}

// validate fails fast, before any network interaction.
func (p OrderParams) validate() error {
	if p.MakerToken == "" {
		return fmt.Errorf("order params: makerToken is required")
	}
	if p.TakerToken == "" {
		return fmt.Errorf("order params: takerToken is required")
	}
	if (p.MakerAmount == "") == (p.TakerAmount == "") {
		return fmt.Errorf("order params: exactly one of makerAmount or takerAmount must be set")
	}
	return nil
}

func (p OrderParams) toParams() map[string]any {
	params := map[string]any{
		"makerToken": strings.ToLower(p.MakerToken),
		"takerToken": strings.ToLower(p.TakerToken),
	}
	if p.MakerAmount != "" {
		params["makerAmount"] = p.MakerAmount
	}
	if p.TakerAmount != "" {
		params["takerAmount"] = p.TakerAmount
	}
	return params
}

// FindIntents queries the indexer for intents matching the given token lists
// and role.
func (m *Messenger) FindIntents(ctx context.Context, makerTokens, takerTokens []string, role string) ([]Intent, error) {
	if makerTokens == nil {
		return nil, fmt.Errorf("findIntents: makerTokens is required")
	}
	if takerTokens == nil {
		return nil, fmt.Errorf("findIntents: takerTokens is required")
	}

	req := message.NewRequest("findIntents", map[string]any{
		"makerTokens": lowerAll(makerTokens),
		"takerTokens": lowerAll(takerTokens),
		"role":        role,
	})
	result, err := m.CallWait(ctx, m.indexer, req)
	if err != nil {
		return nil, err
	}

	var intents []Intent
	if err := json.Unmarshal(result, &intents); err != nil {
		return nil, fmt.Errorf("findIntents: decode result: %w", err)
	}
	return intents, nil
}

// GetIntents fetches the intents a given address has published.
func (m *Messenger) GetIntents(ctx context.Context, address string) ([]Intent, error) {
	if address == "" {
		return nil, fmt.Errorf("getIntents: address is required")
	}

	req := message.NewRequest("getIntents", map[string]any{
		"address": strings.ToLower(address),
	})
	result, err := m.CallWait(ctx, m.indexer, req)
	if err != nil {
		return nil, err
	}

	var intents []Intent
	if err := json.Unmarshal(result, &intents); err != nil {
		return nil, fmt.Errorf("getIntents: decode result: %w", err)
	}
	return intents, nil
}

// SetIntents replaces the published intents for an address on the indexer.
func (m *Messenger) SetIntents(ctx context.Context, address string, intents []Intent) (string, error) {
	if address == "" {
		return "", fmt.Errorf("setIntents: address is required")
	}
	if intents == nil {
		intents = []Intent{}
	}
	for i := range intents {
		intents[i].Address = strings.ToLower(intents[i].Address)
		intents[i].MakerToken = strings.ToLower(intents[i].MakerToken)
		intents[i].TakerToken = strings.ToLower(intents[i].TakerToken)
	}

	req := message.NewRequest("setIntents", map[string]any{
		"address": strings.ToLower(address),
		"intents": intents,
	})
	result, err := m.CallWait(ctx, m.indexer, req)
	if err != nil {
		return "", err
	}

	var status string
	if err := json.Unmarshal(result, &status); err != nil {
		return "", fmt.Errorf("setIntents: decode result: %w", err)
	}
	return status, nil
}

// GetOrder requests a signed order from a maker.
func (m *Messenger) GetOrder(ctx context.Context, maker string, p OrderParams) (*Order, error) {
	result, err := m.orderCall(ctx, "getOrder", maker, p)
	if err != nil {
		return nil, err
	}
	var order Order
	if err := json.Unmarshal(result, &order); err != nil {
		return nil, fmt.Errorf("getOrder: decode result: %w", err)
	}
	return &order, nil
}

// GetQuote requests a price quote from a maker.
func (m *Messenger) GetQuote(ctx context.Context, maker string, p OrderParams) (*Quote, error) {
	result, err := m.orderCall(ctx, "getQuote", maker, p)
	if err != nil {
		return nil, err
	}
	var quote Quote
	if err := json.Unmarshal(result, &quote); err != nil {
		return nil, fmt.Errorf("getQuote: decode result: %w", err)
	}
	return &quote, nil
}

// GetMaxQuote requests the maker's maximum available quote.
func (m *Messenger) GetMaxQuote(ctx context.Context, maker string, p OrderParams) (*Quote, error) {
	result, err := m.orderCall(ctx, "getMaxQuote", maker, p)
	if err != nil {
		return nil, err
	}
	var quote Quote
	if err := json.Unmarshal(result, &quote); err != nil {
		return nil, fmt.Errorf("getMaxQuote: decode result: %w", err)
	}
	return &quote, nil
}

func (m *Messenger) orderCall(ctx context.Context, method, maker string, p OrderParams) (json.RawMessage, error) {
	if maker == "" {
		return nil, fmt.Errorf("%s: maker address is required", method)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	req := message.NewRequest(method, p.toParams())
	return m.CallWait(ctx, maker, req)
}

// OrderResult is one entry of a GetOrders fan-out: the intent it targeted
// and either the maker's order or the captured failure.
type OrderResult struct {
	Intent Intent
	Order  *Order
	Err    error
}

// GetOrders fans one getOrder request out to every intent's maker
// concurrently. The returned slice always has len(intents), order-preserving;
// a failing sub-call is captured in place and never fails the aggregate.
func (m *Messenger) GetOrders(ctx context.Context, p OrderParams, intents []Intent) ([]OrderResult, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	results := make([]OrderResult, len(intents))
	var wg sync.WaitGroup
	for i, intent := range intents {
		wg.Add(1)
		go func(i int, intent Intent) {
			defer wg.Done()
			order, err := m.GetOrder(ctx, intent.Address, p)
			results[i] = OrderResult{Intent: intent, Order: order, Err: err}
		}(i, intent)
	}
	wg.Wait()
	return results, nil
}

func lowerAll(tokens []string) []string {
	lowered := make([]string, len(tokens))
	for i, tok := range tokens {
		lowered[i] = strings.ToLower(tok)
	}
	return lowered
}
