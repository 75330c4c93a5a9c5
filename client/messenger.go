// Package client implements the peer-to-peer swap messenger.
//
// A Messenger owns one persistent WebSocket connection to a relay and
// multiplexes JSON-RPC calls to other peers (and to the indexer) over it:
//
//	Connect → challenge/sign/outcome handshake → authenticated
//	  → readLoop classifies inbound traffic:
//	      peer request  → method registry handler
//	      response      → pending-call table (resolve/reject, stop timer)
//	      noise         → dropped
//
// Every outbound call registers a pending record keyed by the RPC call id
// and arms a timeout; at most one of {resolve, reject, timeout} ever fires
// per id. When the connection closes, authentication state is cleared and a
// single reconnect is scheduled after a fixed backoff (unless disabled).
package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"swap-messenger/codec"
	"swap-messenger/loadbalance"
	"swap-messenger/message"
	"swap-messenger/middleware"
	"swap-messenger/protocol"
	"swap-messenger/registry"
	"swap-messenger/transport"
)

// DefaultIndexerAddress is the well-known address of the directory service.
const DefaultIndexerAddress = "0x0000000000000000000000000000000000000000"

const (
	// DefaultCallTimeout bounds how long a call waits for its response.
	DefaultCallTimeout = 12 * time.Second
	// DefaultReconnectBackoff is the fixed, non-exponential delay between a
	// close and the single reconnect attempt it triggers.
	DefaultReconnectBackoff = 10 * time.Second
	// DefaultProbeInterval is the liveness probe period.
	DefaultProbeInterval = 30 * time.Second

	// DefaultService is the registry service name relays register under.
	DefaultService = "messenger"
)

// Signer is the injected signing capability: given the relay's challenge
// text, produce the signature text proving control of the address.
type Signer func(ctx context.Context, challenge string) (string, error)

// MethodHandler is invoked when a peer calls one of our registered methods.
// sender is the lowercased address of the calling peer; handlers reply (if
// the method warrants a response) via Messenger.Reply.
type MethodHandler func(sender string, req *message.RPCRequest)

// Config configures a Messenger. Address and Signer are required, plus
// exactly one way to locate a relay: a static URL or a Registry.
type Config struct {
	// URL is the relay endpoint, e.g. wss://relay.example.com/websocket.
	// Leave empty to discover endpoints through Registry instead.
	URL string

	// Registry + Balancer discover a relay endpoint on every (re)connect.
	// Balancer defaults to round-robin.
	Registry registry.Registry
	Balancer loadbalance.Balancer
	// Service is the registry service name; defaults to DefaultService.
	Service string

	// Address identifies this participant; lowercased at construction.
	Address string
	Signer  Signer

	// Keyspace appends the address query parameter that switches the relay
	// to the alternate keyspace mode.
	Keyspace bool

	// IndexerAddress overrides the directory service address.
	IndexerAddress string

	// Methods is the registry of RPC methods peers may invoke on us.
	// Immutable after construction.
	Methods map[string]MethodHandler

	// Middlewares wrap the synchronous call path (CallWait and the helpers).
	Middlewares []middleware.Middleware

	Timeout       time.Duration // per-call timeout, default 12s
	Backoff       time.Duration // reconnect backoff, default 10s
	ProbeInterval time.Duration // liveness probe period, default 30s

	// NoReconnect disables the reconnect-on-close policy (enabled by default).
	NoReconnect bool

	Logger *zap.Logger
}

// Messenger is the public façade composing transport, authentication,
// call correlation and dispatch.
type Messenger struct {
	cfg     Config
	address string // lowercased
	indexer string
	logger  *zap.Logger
	cdc     codec.Codec

	timeout       time.Duration
	backoff       time.Duration
	probeInterval time.Duration

	// call is the middleware-wrapped synchronous call path.
	call middleware.CallFunc

	// dial is swappable in tests.
	dial func(ctx context.Context, url string, logger *zap.Logger) (transport.Conn, error)

	mu            sync.Mutex
	conn          transport.Conn
	connecting    bool // a dial+handshake is in flight
	authenticated bool
	stopProbe     func()
	closed        bool // set by Disconnect, cleared by Connect
	reconnectTmr  *time.Timer
	pending       map[string]*pendingCall
}

// NewMessenger validates the config and builds a messenger. No I/O happens
// until Connect.
func NewMessenger(cfg Config) (*Messenger, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("config: address is required")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("config: signer is required")
	}
	if cfg.URL == "" && cfg.Registry == nil {
		return nil, fmt.Errorf("config: either URL or Registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Messenger{
		cfg:           cfg,
		address:       strings.ToLower(cfg.Address),
		indexer:       strings.ToLower(cfg.IndexerAddress),
		logger:        logger.Named("messenger"),
		cdc:           codec.GetCodec(codec.CodecTypeJSON),
		timeout:       cfg.Timeout,
		backoff:       cfg.Backoff,
		probeInterval: cfg.ProbeInterval,
		dial: func(ctx context.Context, url string, logger *zap.Logger) (transport.Conn, error) {
			return transport.Dial(ctx, url, logger)
		},
		pending: make(map[string]*pendingCall),
	}
	if m.indexer == "" {
		m.indexer = DefaultIndexerAddress
	}
	if m.timeout <= 0 {
		m.timeout = DefaultCallTimeout
	}
	if m.backoff <= 0 {
		m.backoff = DefaultReconnectBackoff
	}
	if m.probeInterval <= 0 {
		m.probeInterval = DefaultProbeInterval
	}

	m.call = middleware.Chain(cfg.Middlewares...)(m.doCall)
	return m, nil
}

// Address returns the messenger's lowercased address.
func (m *Messenger) Address() string {
	return m.address
}

// Connect dials the relay, runs the challenge-response handshake and, on
// success, starts the read loop and liveness probing. It settles exactly
// once per invocation with the outcome of that invocation's authentication
// phase; later auto-reconnects repeat the sequence silently.
func (m *Messenger) Connect(ctx context.Context) error {
	// The connecting flag is held across the whole dial+handshake so a
	// second Connect racing this one (an embedder retrying while the
	// reconnect timer fires, say) can't install a second connection.
	m.mu.Lock()
	if m.conn != nil || m.connecting {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.connecting = true
	m.closed = false
	m.mu.Unlock()

	conn, url, err := m.establish(ctx)

	m.mu.Lock()
	m.connecting = false
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if m.conn != nil {
		// Nothing else can install while connecting is held, but if that
		// ever regresses, prefer the installed connection.
		m.mu.Unlock()
		conn.Close()
		return ErrAlreadyConnected
	}
	m.conn = conn
	m.authenticated = true
	m.stopProbe = transport.StartLiveness(conn, m.probeInterval, m.logger)
	m.mu.Unlock()

	m.logger.Info("authenticated", zap.String("address", m.address), zap.String("url", url))
	go m.readLoop(conn)
	return nil
}

// establish resolves an endpoint, dials it and authenticates. The returned
// connection is not yet installed on the messenger.
func (m *Messenger) establish(ctx context.Context) (transport.Conn, string, error) {
	url, err := m.endpoint()
	if err != nil {
		return nil, "", err
	}

	conn, err := m.dial(ctx, url, m.logger)
	if err != nil {
		return nil, "", fmt.Errorf("dial %s: %w", url, err)
	}

	if err := m.handshake(ctx, conn); err != nil {
		conn.Close()
		return nil, "", err
	}
	return conn, url, nil
}

// Disconnect closes the active connection and cancels any scheduled
// reconnect. Pending calls are left to their timeouts.
func (m *Messenger) Disconnect() error {
	m.mu.Lock()
	m.closed = true
	conn := m.conn
	m.conn = nil
	m.authenticated = false
	stop := m.stopProbe
	m.stopProbe = nil
	if m.reconnectTmr != nil {
		m.reconnectTmr.Stop()
		m.reconnectTmr = nil
	}
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// endpoint resolves the relay URL: static config, or discovery through the
// registry with the balancer picking one live endpoint.
func (m *Messenger) endpoint() (string, error) {
	url := m.cfg.URL
	if url == "" {
		service := m.cfg.Service
		if service == "" {
			service = DefaultService
		}
		eps, err := m.cfg.Registry.Discover(service)
		if err != nil {
			return "", fmt.Errorf("discover relay endpoints: %w", err)
		}
		bal := m.cfg.Balancer
		if bal == nil {
			bal = &loadbalance.RoundRobinBalancer{}
		}
		ep, err := bal.Pick(eps)
		if err != nil {
			return "", fmt.Errorf("pick relay endpoint: %w", err)
		}
		url = ep.URL
	}
	if m.cfg.Keyspace {
		url += "?address=" + m.address
	}
	return url, nil
}

// handshake drives the pre-authentication phase. Inbound text is either the
// final outcome or a challenge to sign; anything may repeat until the relay
// settles on "ok" or "not authorized". Cancelling the context aborts the
// handshake and closes the connection, so a relay that upgrades the socket
// but never settles can't hang Connect forever.
func (m *Messenger) handshake(ctx context.Context, conn transport.Conn) error {
	type frame struct {
		data []byte
		err  error
	}
	for {
		// One read per expected frame; after the final outcome no extra
		// read is in flight to steal post-auth traffic from the read loop.
		frames := make(chan frame, 1)
		go func() {
			data, err := conn.Read()
			frames <- frame{data: data, err: err}
		}()

		var fr frame
		select {
		case fr = <-frames:
		case <-ctx.Done():
			conn.Close()
			return fmt.Errorf("handshake: %w", ctx.Err())
		}
		if fr.err != nil {
			return fmt.Errorf("handshake read: %w", fr.err)
		}

		switch text := string(fr.data); text {
		case protocol.OutcomeOK:
			return nil
		case protocol.OutcomeNotAuthorized:
			return ErrNotAuthorized
		default:
			sig, err := m.cfg.Signer(ctx, text)
			if err != nil {
				return fmt.Errorf("sign challenge: %w", err)
			}
			if err := conn.SendText(sig); err != nil {
				return fmt.Errorf("send signature: %w", err)
			}
		}
	}
}

// readLoop is the single reader for one connection's post-auth traffic.
// It exits when the connection fails or is closed, then drives the close
// path. Transport errors deliberately land here too instead of being fatal:
// they surface as a read error and feed the same close/reconnect cycle.
func (m *Messenger) readLoop(conn transport.Conn) {
	for {
		data, err := conn.Read()
		if err != nil {
			m.handleClose(conn, err)
			return
		}
		m.dispatch(data)
	}
}

// handleClose tears down connection state and schedules exactly one
// reconnect attempt per close, after a fixed backoff.
func (m *Messenger) handleClose(conn transport.Conn, cause error) {
	m.mu.Lock()
	if m.conn != conn {
		// A stale read loop from a connection already replaced, ignore.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.authenticated = false
	stop := m.stopProbe
	m.stopProbe = nil
	closed := m.closed
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
	conn.Close()

	if closed || m.cfg.NoReconnect {
		m.logger.Info("connection closed", zap.Error(cause))
		return
	}

	m.logger.Warn("connection lost, reconnecting",
		zap.Error(cause), zap.Duration("backoff", m.backoff))

	m.mu.Lock()
	m.reconnectTmr = time.AfterFunc(m.backoff, func() {
		m.mu.Lock()
		skip := m.closed
		m.mu.Unlock()
		if skip {
			return
		}
		if err := m.Connect(context.Background()); err != nil {
			m.logger.Error("reconnect failed", zap.Error(err))
		}
	})
	m.mu.Unlock()
}
