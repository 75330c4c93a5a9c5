// Package server implements an in-process messenger relay, used by the
// integration tests and for local development.
//
// Connection pipeline:
//
//	HTTP upgrade → challenge → signature → verify → "ok" / "not authorized"
//	  → per-peer read loop: decode envelope
//	      receiver == indexer address → built-in indexer service
//	      receiver == connected peer  → forward the raw frame
//	      otherwise                   → drop
//
// The relay never inspects the inner RPC message when forwarding; envelopes
// between peers pass through byte-for-byte.
package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"swap-messenger/codec"
	"swap-messenger/message"
	"swap-messenger/protocol"
)

// Verifier checks a signature over a challenge and reports which address it
// authenticates, mirroring signature recovery on the production relay.
type Verifier func(challenge, signature string) (address string, ok bool)

// Relay accepts messenger connections and routes envelopes between them.
type Relay struct {
	verifier       Verifier
	indexerAddress string
	logger         *zap.Logger
	cdc            codec.Codec
	upgrader       websocket.Upgrader

	server   *http.Server
	shutdown atomic.Bool
	wg       sync.WaitGroup

	mu      sync.Mutex
	peers   map[string]*peer
	indexer *indexer
}

// peer is one authenticated connection. Writes share a per-connection lock
// so a forwarded frame and an indexer response can't interleave.
type peer struct {
	address string
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (p *peer) send(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.ws.WriteMessage(websocket.TextMessage, data)
}

func (p *peer) sendText(s string) error {
	return p.send([]byte(s))
}

// NewRelay creates a relay with the given signature verifier. The indexer
// service answers on indexerAddress.
func NewRelay(verifier Verifier, indexerAddress string, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		verifier:       verifier,
		indexerAddress: strings.ToLower(indexerAddress),
		logger:         logger.Named("relay"),
		cdc:            codec.GetCodec(codec.CodecTypeJSON),
		peers:          make(map[string]*peer),
		indexer:        newIndexer(),
	}
}

// Start listens on addr (use "127.0.0.1:0" in tests) and returns the
// WebSocket URL clients should dial.
func (r *Relay) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/websocket", r.handleWS)
	r.server = &http.Server{Handler: mux}

	go func() {
		if err := r.server.Serve(ln); err != nil && !r.shutdown.Load() {
			r.logger.Error("relay serve failed", zap.Error(err))
		}
	}()

	return "ws://" + ln.Addr().String() + "/websocket", nil
}

// Shutdown stops accepting connections and waits for in-flight peer loops.
func (r *Relay) Shutdown(timeout time.Duration) error {
	r.shutdown.Store(true)
	if r.server != nil {
		r.server.Close()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for peer connections to drain")
	}
}

// handleWS runs the full lifecycle of one peer connection.
func (r *Relay) handleWS(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	r.wg.Add(1)
	defer r.wg.Done()
	defer ws.Close()

	p := &peer{ws: ws}

	address, err := r.authenticate(p)
	if err != nil {
		r.logger.Debug("authentication failed", zap.Error(err))
		return
	}
	p.address = address

	r.addPeer(p)
	defer r.removePeer(p)
	r.logger.Debug("peer authenticated", zap.String("address", address))

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		r.route(p, data)
	}
}

// authenticate drives the relay side of the challenge-response handshake.
func (r *Relay) authenticate(p *peer) (string, error) {
	challenge := uuid.NewString()
	if err := p.sendText(challenge); err != nil {
		return "", err
	}

	_, sig, err := p.ws.ReadMessage()
	if err != nil {
		return "", err
	}

	address, ok := r.verifier(challenge, string(sig))
	if !ok {
		p.sendText(protocol.OutcomeNotAuthorized)
		return "", fmt.Errorf("signature rejected")
	}

	if err := p.sendText(protocol.OutcomeOK); err != nil {
		return "", err
	}
	return strings.ToLower(address), nil
}

// route handles one post-auth frame from a peer.
func (r *Relay) route(from *peer, data []byte) {
	var env message.Envelope
	if err := r.cdc.Decode(data, &env); err != nil {
		r.logger.Debug("malformed envelope dropped", zap.Error(err))
		return
	}

	receiver := strings.ToLower(env.Receiver)
	if receiver == r.indexerAddress {
		r.indexer.handle(r, from, &env)
		return
	}

	r.mu.Lock()
	target, ok := r.peers[receiver]
	r.mu.Unlock()
	if !ok {
		r.logger.Debug("receiver not connected, envelope dropped",
			zap.String("receiver", receiver))
		return
	}

	if err := target.send(data); err != nil {
		r.logger.Debug("forward failed", zap.String("receiver", receiver), zap.Error(err))
	}
}

func (r *Relay) addPeer(p *peer) {
	r.mu.Lock()
	// 同地址重连：新连接顶掉旧的
	if old, ok := r.peers[p.address]; ok {
		old.ws.Close()
	}
	r.peers[p.address] = p
	r.mu.Unlock()
}

func (r *Relay) removePeer(p *peer) {
	r.mu.Lock()
	if r.peers[p.address] == p {
		delete(r.peers, p.address)
	}
	r.mu.Unlock()
}
