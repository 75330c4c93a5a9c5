package middleware

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/time/rate"

	"swap-messenger/message"
)

// RateLimitMiddleware 基于令牌桶算法限制出站调用频率
// Calls rejected here never reach the wire, so no pending record is created.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, receiver string, req *message.RPCRequest) (json.RawMessage, error) {
			if !limiter.Allow() {
				return nil, fmt.Errorf("rate limit exceeded for %s", req.Method)
			}
			return next(ctx, receiver, req)
		}
	}
}
