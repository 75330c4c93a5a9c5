package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"swap-messenger/message"
)

func okCall(result string) CallFunc {
	return func(ctx context.Context, receiver string, req *message.RPCRequest) (json.RawMessage, error) {
		return json.RawMessage(result), nil
	}
}

// Chain(A, B) 必须是 A 在外层、B 在内层
func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next CallFunc) CallFunc {
			return func(ctx context.Context, receiver string, req *message.RPCRequest) (json.RawMessage, error) {
				order = append(order, name+"-before")
				result, err := next(ctx, receiver, req)
				order = append(order, name+"-after")
				return result, err
			}
		}
	}

	wrapped := Chain(mark("A"), mark("B"))(okCall(`"done"`))
	if _, err := wrapped(context.Background(), "0xabc", message.NewRequest("ping", nil)); err != nil {
		t.Fatal(err)
	}

	expect := []string{"A-before", "B-before", "B-after", "A-after"}
	for i, step := range expect {
		if order[i] != step {
			t.Fatalf("step %d: expect %s, got %s", i, step, order[i])
		}
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	wrapped := RateLimitMiddleware(1, 1)(okCall(`"done"`))
	req := message.NewRequest("ping", nil)

	if _, err := wrapped(context.Background(), "0xabc", req); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}
	if _, err := wrapped(context.Background(), "0xabc", req); err == nil {
		t.Fatal("second immediate call should be rejected")
	}
}

func TestRetryMiddlewareRetriesTimeouts(t *testing.T) {
	attempts := 0
	flaky := func(ctx context.Context, receiver string, req *message.RPCRequest) (json.RawMessage, error) {
		attempts++
		if attempts < 3 {
			return nil, &message.RPCError{Code: message.CodeTimeout, Message: "request timed out"}
		}
		return json.RawMessage(`"done"`), nil
	}

	wrapped := RetryMiddleware(3, time.Millisecond, nil)(flaky)
	result, err := wrapped(context.Background(), "0xabc", message.NewRequest("getOrder", nil))
	if err != nil {
		t.Fatalf("expect success after retries: %v", err)
	}
	if string(result) != `"done"` || attempts != 3 {
		t.Fatalf("result=%s attempts=%d", result, attempts)
	}
}

func TestRetryMiddlewareSkipsRemoteErrors(t *testing.T) {
	attempts := 0
	refusing := func(ctx context.Context, receiver string, req *message.RPCRequest) (json.RawMessage, error) {
		attempts++
		return nil, &message.RPCError{Code: -32601, Message: "method not found"}
	}

	wrapped := RetryMiddleware(3, time.Millisecond, nil)(refusing)
	_, err := wrapped(context.Background(), "0xabc", message.NewRequest("nope", nil))

	var rpcErr *message.RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != -32601 {
		t.Fatalf("expect remote error back, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("remote errors must not be retried, attempts=%d", attempts)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCallMetrics(reg)
	wrapped := MetricsMiddleware(metrics)(okCall(`"done"`))

	for i := 0; i < 3; i++ {
		if _, err := wrapped(context.Background(), "0xabc", message.NewRequest("ping", nil)); err != nil {
			t.Fatal(err)
		}
	}

	if got := testutil.ToFloat64(metrics.calls.WithLabelValues("ping", "ok")); got != 3 {
		t.Fatalf("expect 3 ok calls recorded, got %v", got)
	}
}
