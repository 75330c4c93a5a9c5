package middleware

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"swap-messenger/message"
)

// LoggingMiddleware logs every outbound call with its duration and outcome.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, receiver string, req *message.RPCRequest) (json.RawMessage, error) {
			start := time.Now()
			result, err := next(ctx, receiver, req)
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("receiver", receiver),
				zap.String("id", req.ID),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("call failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("call completed", fields...)
			}
			return result, err
		}
	}
}
