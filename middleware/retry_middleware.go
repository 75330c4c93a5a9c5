package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"swap-messenger/message"
)

// RetryMiddleware retries calls that failed with the synthetic timeout error.
// Remote RPC errors and validation errors are never retried: the peer
// answered, it just said no. Each retry reuses the request but regenerates
// the call id so a late response to an earlier attempt stays a no-op.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, receiver string, req *message.RPCRequest) (json.RawMessage, error) {
			result, err := next(ctx, receiver, req)
			for i := 0; i < maxRetries && isTimeout(err); i++ {
				logger.Info("retrying timed-out call",
					zap.String("method", req.Method),
					zap.Int("attempt", i+1))
				select {
				case <-time.After(baseDelay * time.Duration(1<<i)): // exponential backoff
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				retry := *req
				retry.ID = message.NewRequest(req.Method, nil).ID
				result, err = next(ctx, receiver, &retry)
			}
			return result, err
		}
	}
}

func isTimeout(err error) bool {
	var rpcErr *message.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == message.CodeTimeout
}
