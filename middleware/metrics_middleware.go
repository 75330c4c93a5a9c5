package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"swap-messenger/message"
)

// CallMetrics holds the prometheus collectors for the outbound call path.
type CallMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewCallMetrics registers the collectors on the given registerer.
func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "messenger",
			Name:      "calls_total",
			Help:      "Outbound RPC calls by method and outcome.",
		}, []string{"method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "messenger",
			Name:      "call_duration_seconds",
			Help:      "Outbound RPC call latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(m.calls, m.duration)
	return m
}

// MetricsMiddleware records per-call counters and latency.
func MetricsMiddleware(m *CallMetrics) Middleware {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, receiver string, req *message.RPCRequest) (json.RawMessage, error) {
			start := time.Now()
			result, err := next(ctx, receiver, req)
			outcome := "ok"
			if err != nil {
				outcome = "error"
				if isTimeout(err) {
					outcome = "timeout"
				}
			}
			m.calls.WithLabelValues(req.Method, outcome).Inc()
			m.duration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
			return result, err
		}
	}
}
