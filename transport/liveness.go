package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// StartLiveness runs a heartbeat probe cycle on connections that support
// ping/pong and returns a stop function. On transports without heartbeat
// signaling it is a no-op.
//
// Each tick: if no pong was observed since the last probe, the connection is
// considered half-open and closed (the owner's read loop then drives the
// normal close path); otherwise a fresh ping goes out and the flag resets.
func StartLiveness(c Conn, interval time.Duration, logger *zap.Logger) (stop func()) {
	p, ok := c.(Pinger)
	if !ok {
		return func() {}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var alive atomic.Bool
	alive.Store(true) // first tick always probes instead of closing
	p.OnPong(func() { alive.Store(true) })

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if !alive.Load() {
					logger.Warn("no heartbeat ack since last probe, closing connection")
					c.Close()
					return
				}
				alive.Store(false)
				if err := p.Ping(); err != nil {
					logger.Warn("heartbeat probe failed", zap.Error(err))
					c.Close()
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
