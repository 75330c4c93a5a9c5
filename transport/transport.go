// Package transport wraps the WebSocket connection behind a small adapter.
//
// The messenger multiplexes every call over one persistent connection:
//
//	caller-1 ──Call(id=a)──┐
//	caller-2 ──Call(id=b)──┼──→ single WebSocket ──→ relay
//	caller-3 ──Call(id=c)──┘
//
// Reads stay sequential (one reader goroutine owned by the messenger);
// writes are serialized by a mutex so concurrent calls can't interleave
// frames. Liveness probing is a capability: transports that support
// ping/pong implement Pinger and get a probe cycle, others are watched
// only through read errors.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conn is the minimal bidirectional message stream the messenger needs.
type Conn interface {
	// Send writes one text frame. Safe for concurrent use.
	Send(data []byte) error
	// SendText writes a plain text frame (auth phase traffic).
	SendText(s string) error
	// Read blocks for the next inbound frame. Single reader only.
	Read() ([]byte, error)
	Close() error
}

// Pinger is implemented by transports with heartbeat signaling. The liveness
// probe runs only on connections that support it.
type Pinger interface {
	Ping() error
	OnPong(fn func())
}

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 5 * time.Second
)

// WSConn is the gorilla/websocket implementation of Conn and Pinger.
type WSConn struct {
	ws      *websocket.Conn
	sending sync.Mutex // writes must be serialized, one frame at a time
	logger  *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Dial opens a WebSocket connection to the given URL.
func Dial(ctx context.Context, url string, logger *zap.Logger) (*WSConn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	logger.Debug("websocket connected", zap.String("url", url))
	return &WSConn{ws: ws, logger: logger}, nil
}

func (c *WSConn) Send(data []byte) error {
	c.sending.Lock()
	defer c.sending.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *WSConn) SendText(s string) error {
	return c.Send([]byte(s))
}

// Read returns the next frame. Pongs are consumed here too since gorilla
// only runs control handlers while a read is in flight.
func (c *WSConn) Read() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// Ping sends a control ping frame.
func (c *WSConn) Ping() error {
	c.sending.Lock()
	defer c.sending.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// OnPong registers the pong acknowledgment callback.
func (c *WSConn) OnPong(fn func()) {
	c.ws.SetPongHandler(func(string) error {
		fn()
		return nil
	})
}
