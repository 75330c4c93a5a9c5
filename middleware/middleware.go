// Package middleware provides composable wrappers around the messenger's
// outbound call path.
//
// A CallFunc sends one request to one receiver and waits for the outcome.
// Middlewares wrap it onion-style:
//
//	Chain(A, B, C)(call) → A(B(C(call)))
//	execution: A.before → B.before → C.before → call → C.after → B.after → A.after
package middleware

import (
	"context"
	"encoding/json"

	"swap-messenger/message"
)

// CallFunc is the synchronous shape of an outbound RPC call.
type CallFunc func(ctx context.Context, receiver string, req *message.RPCRequest) (json.RawMessage, error)

type Middleware func(next CallFunc) CallFunc

// Chain 将多个中间件组合成一个中间件
func Chain(middlewares ...Middleware) Middleware {
	return func(next CallFunc) CallFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
