package avews

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Connection defaults.
const (
	// DefaultReconnectDelay is the fixed pause between connection attempts.
	DefaultReconnectDelay = 5 * time.Second

	// DefaultPollInterval is the antitheft status poll period.
	DefaultPollInterval = 10 * time.Second

	// defaultHandshakeTimeout bounds the WebSocket upgrade.
	defaultHandshakeTimeout = 10 * time.Second

	// writeTimeout bounds a single outbound frame write.
	writeTimeout = 5 * time.Second
)

// DefaultSubprotocols are offered during the WebSocket handshake.
var DefaultSubprotocols = []string{"binary", "base64"}

// ConnectionState is the supervisor's view of the controller link.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Conn is one open transport to the controller.
type Conn interface {
	// ReadMessage blocks until a transport message arrives or the
	// connection fails.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one transport message.
	WriteMessage(data []byte) error

	// Close releases the connection and unblocks ReadMessage.
	Close() error
}

// Dialer opens transports to the controller.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// MessageHandler consumes decoded messages in arrival order.
type MessageHandler interface {
	Handle(ctx context.Context, msg Message)
}

// WebSocketDialer dials the controller with gorilla/websocket.
type WebSocketDialer struct {
	Subprotocols     []string
	HandshakeTimeout time.Duration
}

// Dial opens a WebSocket connection to url.
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	subprotocols := d.Subprotocols
	if len(subprotocols) == 0 {
		subprotocols = DefaultSubprotocols
	}
	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = defaultHandshakeTimeout
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		Subprotocols:     subprotocols,
	}

	c, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsConn{conn: c}, nil
}

// wsConn adapts *websocket.Conn to Conn.
type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

func (w *wsConn) WriteMessage(data []byte) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Close() error {
	w.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		//nolint:errcheck // Best-effort close frame, the socket is closed regardless
		w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}

// SupervisorConfig holds the settings of a connection supervisor.
type SupervisorConfig struct {
	// URL is the controller endpoint, e.g. "ws://192.168.1.10:14001".
	URL string

	// Dialer opens transports. Default: WebSocketDialer.
	Dialer Dialer

	// ReconnectDelay is the fixed pause between attempts. Default: 5s.
	ReconnectDelay time.Duration

	// PollInterval is the antitheft poll period. Default: 10s.
	PollInterval time.Duration

	// PollAntitheft enables the periodic GSF 12 request.
	PollAntitheft bool

	// SyncLightsOnStartup requests lighting status once per process.
	SyncLightsOnStartup bool

	// SubscribeToEvents sends SU3 and force-refreshes both classes on connect.
	SubscribeToEvents bool

	// Logger is optional.
	Logger Logger
}

// ConnectionStats holds link statistics.
type ConnectionStats struct {
	State          string    `json:"state"`
	Connected      bool      `json:"connected"`
	Connects       uint64    `json:"connects"`
	Disconnects    uint64    `json:"disconnects"`
	FramesRx       uint64    `json:"frames_rx"`
	FramesTx       uint64    `json:"frames_tx"`
	DecodeErrors   uint64    `json:"decode_errors"`
	ActivePollers  int       `json:"active_pollers"`
	LastActivity   time.Time `json:"last_activity,omitempty"`
	ConnectedSince time.Time `json:"connected_since,omitempty"`
}

// Supervisor owns the controller connection: it connects, runs the
// per-connection background work, feeds inbound messages to a handler and
// reconnects forever after a fixed delay.
//
// Thread Safety: Send and Stats are safe for concurrent use. Run must be
// called once.
type Supervisor struct {
	cfg    SupervisorConfig
	dialer Dialer
	logger Logger

	state atomic.Int32

	connMu sync.Mutex
	conn   Conn

	// writeMu serialises frame writes; the transport allows one writer.
	writeMu sync.Mutex

	// lightsSynced is consumed by the first connection and never reset.
	lightsMu     sync.Mutex
	lightsSynced bool

	connects       atomic.Uint64
	disconnects    atomic.Uint64
	framesRx       atomic.Uint64
	framesTx       atomic.Uint64
	decodeErrors   atomic.Uint64
	activePollers  atomic.Int32
	lastActivity   atomic.Int64
	connectedSince atomic.Int64
}

// NewSupervisor creates a supervisor. Call Run to start it.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("controller URL is required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &WebSocketDialer{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	return &Supervisor{
		cfg:    cfg,
		dialer: dialer,
		logger: logger,
	}, nil
}

// Run connects and reconnects until ctx is cancelled. Every decoded message
// is passed to h sequentially in arrival order.
func (s *Supervisor) Run(ctx context.Context, h MessageHandler) {
	defer s.setState(StateDisconnected)

	for ctx.Err() == nil {
		s.setState(StateConnecting)
		s.logger.Debug("connecting to controller", "url", s.cfg.URL)

		conn, err := s.dialer.Dial(ctx, s.cfg.URL)
		if err != nil {
			s.logger.Warn("controller connection failed", "url", s.cfg.URL, "error", err)
		} else {
			s.serve(ctx, conn, h)
		}

		s.setState(StateDisconnected)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectDelay):
		}
		s.logger.Info("reconnecting to controller", "delay", s.cfg.ReconnectDelay.String())
	}
}

// serve runs one connection generation until the transport fails or ctx ends.
// Background work started here is bound to a per-connection context and is
// fully stopped before serve returns.
func (s *Supervisor) serve(ctx context.Context, conn Conn, h MessageHandler) {
	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()

		cancel()
		wg.Wait()
		s.disconnects.Add(1)
	}()

	// Closing the transport is what unblocks ReadMessage on shutdown.
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-connCtx.Done()
		//nolint:errcheck // Nothing useful to do with a close error
		conn.Close()
	}()

	s.connects.Add(1)
	s.connectedSince.Store(time.Now().UnixNano())
	s.setState(StateConnected)
	s.logger.Info("connected to controller", "url", s.cfg.URL)

	s.onConnected(connCtx, &wg)

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if connCtx.Err() != nil {
				s.logger.Debug("controller connection closed")
			} else {
				s.logger.Warn("controller connection lost", "error", err)
			}
			return
		}

		s.lastActivity.Store(time.Now().UnixNano())

		msgs, errs := Decode(data)
		for _, e := range errs {
			s.decodeErrors.Add(1)
			s.logger.Warn("dropping malformed frame", "error", e)
		}
		for _, msg := range msgs {
			s.framesRx.Add(1)
			s.logger.Debug("frame received", "message", msg.String())
			h.Handle(connCtx, msg)
		}
	}
}

// onConnected runs the per-connection startup actions.
func (s *Supervisor) onConnected(ctx context.Context, wg *sync.WaitGroup) {
	if s.cfg.SyncLightsOnStartup && s.claimLightSync() {
		s.logger.Info("requesting initial lighting status")
		//nolint:errcheck // Send logs its own failures
		s.Send(StatusRequestFrame(ClassLighting))
	}

	if s.cfg.PollAntitheft {
		wg.Add(1)
		go s.pollAntitheft(ctx, wg)
	}

	if s.cfg.SubscribeToEvents {
		//nolint:errcheck // Send logs its own failures
		s.Send(SubscribeEventsFrame())
		//nolint:errcheck // Send logs its own failures
		s.Send(ForceRefreshFrame(ClassLighting))
		//nolint:errcheck // Send logs its own failures
		s.Send(ForceRefreshFrame(ClassAntitheftSensor))
	}
}

// claimLightSync returns true exactly once per supervisor.
func (s *Supervisor) claimLightSync() bool {
	s.lightsMu.Lock()
	defer s.lightsMu.Unlock()

	if s.lightsSynced {
		return false
	}
	s.lightsSynced = true
	return true
}

// pollAntitheft requests antitheft status once every poll interval until ctx
// is cancelled. The first request goes out one interval after connecting.
func (s *Supervisor) pollAntitheft(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	s.activePollers.Add(1)
	defer s.activePollers.Add(-1)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		//nolint:errcheck // Send logs its own failures
		s.Send(StatusRequestFrame(ClassAntitheftSensor))
	}
}

// Send writes one frame to the controller. It never queues: when no
// connection is open it logs a warning and returns ErrNotConnected.
func (s *Supervisor) Send(f Frame) error {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()

	if conn == nil {
		s.logger.Warn("cannot send, controller not connected", "command", f.String())
		return ErrNotConnected
	}

	s.writeMu.Lock()
	err := conn.WriteMessage(f.Bytes())
	s.writeMu.Unlock()

	if err != nil {
		s.logger.Warn("frame send failed", "command", f.String(), "error", err)
		return fmt.Errorf("send %s: %w", f.Command, err)
	}

	s.framesTx.Add(1)
	s.logger.Debug("frame sent", "command", f.String())
	return nil
}

// State returns the current connection state.
func (s *Supervisor) State() ConnectionState {
	return ConnectionState(s.state.Load())
}

// IsConnected returns true while a controller connection is open.
func (s *Supervisor) IsConnected() bool {
	return s.State() == StateConnected
}

// Stats returns a snapshot of link statistics.
func (s *Supervisor) Stats() ConnectionStats {
	state := s.State()
	stats := ConnectionStats{
		State:         state.String(),
		Connected:     state == StateConnected,
		Connects:      s.connects.Load(),
		Disconnects:   s.disconnects.Load(),
		FramesRx:      s.framesRx.Load(),
		FramesTx:      s.framesTx.Load(),
		DecodeErrors:  s.decodeErrors.Load(),
		ActivePollers: int(s.activePollers.Load()),
	}
	if ts := s.lastActivity.Load(); ts > 0 {
		stats.LastActivity = time.Unix(0, ts).UTC()
	}
	if ts := s.connectedSince.Load(); ts > 0 && stats.Connected {
		stats.ConnectedSince = time.Unix(0, ts).UTC()
	}
	return stats
}

func (s *Supervisor) setState(state ConnectionState) {
	s.state.Store(int32(state))
}
