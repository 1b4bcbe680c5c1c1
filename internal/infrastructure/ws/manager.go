// Package ws owns the chat socket: dialing, heartbeats, reconnects and the
// set of rooms that must be re-joined whenever a new connection opens.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/quizchat/internal/infrastructure/logging"
	"github.com/hilthontt/quizchat/internal/infrastructure/metrics"
	"github.com/hilthontt/quizchat/internal/infrastructure/wire"
)

var (
	ErrNotConnected       = errors.New("chat socket is not connected")
	ErrClosed             = errors.New("chat socket was closed by the client")
	ErrReconnectExhausted = errors.New("chat socket reconnect attempts exhausted")
)

const maxFrameSize = 1 << 20

type Config struct {
	URL                  string
	HeartbeatInterval    time.Duration
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
	HandshakeTimeout     time.Duration
	WriteTimeout         time.Duration
}

// SocketURL turns the REST base URL into the socket endpoint, carrying the
// bearer token as a query parameter.
func SocketURL(baseURL, path, token string) (string, error) {
	wsURL := baseURL
	if after, ok := strings.CutPrefix(baseURL, "https://"); ok {
		wsURL = "wss://" + after
	} else if after, ok := strings.CutPrefix(baseURL, "http://"); ok {
		wsURL = "ws://" + after
	}

	u, err := url.Parse(strings.TrimRight(wsURL, "/") + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid socket url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid socket url scheme %q", u.Scheme)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

type (
	// Handler receives every decoded event, in arrival order, from a single
	// goroutine.
	Handler func(wire.Event)
	// OpenHandler runs after the joins have been replayed on a new connection.
	OpenHandler func(reconnected bool)
	// CloseHandler runs when a connection drops without Disconnect.
	CloseHandler func(err error)
	// TerminalHandler runs once reconnect attempts are exhausted.
	TerminalHandler func(err error)
)

type Manager struct {
	cfg      Config
	dialer   *websocket.Dialer
	registry *Registry
	logger   logging.Logger
	metrics  *metrics.Metrics

	handlerMu       sync.RWMutex
	handler         Handler
	openHandler     OpenHandler
	closeHandler    CloseHandler
	terminalHandler TerminalHandler

	mu             sync.Mutex
	state          State
	conn           *connWrapper
	gen            uint64
	dialToken      uint64
	manualClose    bool
	everOpened     bool
	attempts       int
	backoff        *backoff.ExponentialBackOff
	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}
}

func NewManager(cfg Config, registry *Registry, logger logging.Logger, m *metrics.Metrics) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.ReconnectBaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = cfg.ReconnectBaseDelay << cfg.MaxReconnectAttempts

	return &Manager{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		registry: registry,
		logger:   logger,
		metrics:  m,
		backoff:  b,
	}
}

func (m *Manager) SetHandler(h Handler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.handler = h
}

func (m *Manager) SetOpenHandler(h OpenHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.openHandler = h
}

func (m *Manager) SetCloseHandler(h CloseHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.closeHandler = h
}

func (m *Manager) SetTerminalHandler(h TerminalHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.terminalHandler = h
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) IsOpen() bool {
	return m.State() == StateOpen
}

// ReconnectScheduled reports whether a reconnect timer is pending.
func (m *Manager) ReconnectScheduled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnectTimer != nil
}

// Connect opens the socket. It is a no-op while a connection is open or
// being established. A failed dial still schedules a reconnect.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateOpen || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	m.manualClose = false
	m.attempts = 0
	m.backoff.Reset()
	m.stopReconnectLocked()
	m.setStateLocked(StateConnecting)
	m.dialToken++
	token := m.dialToken
	m.mu.Unlock()

	return m.dial(ctx, token)
}

// Disconnect closes the socket and suppresses any reconnect.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	m.manualClose = true
	m.dialToken++
	m.stopHeartbeatLocked()
	m.stopReconnectLocked()
	conn := m.conn
	m.conn = nil
	m.gen++
	m.setStateLocked(StateClosing)
	m.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}

	m.mu.Lock()
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	m.logger.Info(logging.Socket, logging.Connect, "disconnected by client", nil)
	return err
}

// Send encodes req and writes it. Encoding errors are returned before the
// connection state is looked at, so a malformed request never reaches the
// wire.
func (m *Manager) Send(req wire.Request) error {
	b, err := wire.EncodeRequest(req)
	if err != nil {
		m.logger.Warn(logging.Codec, logging.Encode, "refusing to send request", map[logging.ExtraKey]any{
			logging.FrameType:    string(req.Type),
			logging.ErrorMessage: err.Error(),
		})
		return err
	}

	m.mu.Lock()
	conn := m.conn
	open := m.state == StateOpen
	m.mu.Unlock()

	if !open || conn == nil {
		return ErrNotConnected
	}

	if err := conn.WriteBinary(b, m.cfg.WriteTimeout); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", req.Type, err)
	}

	m.metrics.FramesSent.WithLabelValues(string(req.Type)).Inc()
	return nil
}

// JoinRoom registers roomID and joins it now if the socket is open.
// Joining a registered room is a no-op.
func (m *Manager) JoinRoom(roomID string) error {
	if !m.registry.Add(roomID) {
		return nil
	}
	return m.sendIfOpen(wire.NewJoinRoom(roomID))
}

func (m *Manager) JoinPresence() error {
	if !m.registry.SetPresence(true) {
		return nil
	}
	return m.sendIfOpen(wire.NewJoinPresence())
}

func (m *Manager) sendIfOpen(req wire.Request) error {
	err := m.Send(req)
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// dial opens a connection on behalf of the Connect or reconnect that issued
// token. A dial overtaken by Disconnect or a later Connect discards its
// connection and leaves the manager state alone.
func (m *Manager) dial(ctx context.Context, token uint64) error {
	conn, _, err := m.dialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		err = fmt.Errorf("failed to connect to chat socket: %w", err)
		m.logger.Warn(logging.Socket, logging.Connect, "dial failed", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})

		m.mu.Lock()
		if token != m.dialToken {
			m.mu.Unlock()
			return err
		}
		m.setStateLocked(StateDisconnected)
		var terminal error
		if !m.manualClose {
			terminal = m.scheduleReconnectLocked()
		}
		m.mu.Unlock()

		m.notifyTerminal(terminal)
		return err
	}
	conn.SetReadLimit(maxFrameSize)

	m.mu.Lock()
	if token != m.dialToken || m.manualClose {
		m.mu.Unlock()
		_ = conn.Close()
		m.logger.Debug(logging.Socket, logging.Connect, "discarding superseded connection", nil)
		return ErrClosed
	}

	m.gen++
	gen := m.gen
	wrapper := newConnWrapper(conn)
	m.conn = wrapper
	m.setStateLocked(StateOpen)
	reconnected := m.everOpened
	m.everOpened = true
	m.attempts = 0
	m.backoff.Reset()
	m.startHeartbeatLocked()
	m.mu.Unlock()

	m.logger.Info(logging.Socket, logging.Connect, "chat socket open", map[logging.ExtraKey]any{
		logging.Endpoint: redactToken(m.cfg.URL),
	})
	if reconnected {
		m.metrics.Reconnects.Inc()
	}

	go m.readLoop(gen, wrapper)

	m.replay()

	m.handlerMu.RLock()
	onOpen := m.openHandler
	m.handlerMu.RUnlock()
	if onOpen != nil {
		onOpen(reconnected)
	}

	return nil
}

// replay re-asserts presence and every registered room on a fresh
// connection.
func (m *Manager) replay() {
	if m.registry.Presence() {
		if err := m.Send(wire.NewJoinPresence()); err != nil {
			m.logger.Warn(logging.Socket, logging.Reconnect, "failed to rejoin presence", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}
	}

	for _, roomID := range m.registry.Rooms() {
		if err := m.Send(wire.NewJoinRoom(roomID)); err != nil {
			m.logger.Warn(logging.Socket, logging.Reconnect, "failed to rejoin room", map[logging.ExtraKey]any{
				logging.RoomID:       roomID,
				logging.ErrorMessage: err.Error(),
			})
		}
	}
}

func (m *Manager) readLoop(gen uint64, conn *connWrapper) {
	for {
		_, raw, err := conn.conn.ReadMessage()
		if err != nil {
			m.handleDrop(gen, err)
			return
		}

		ev, err := wire.DecodeEvent(raw)
		if err != nil {
			m.metrics.DecodeFailures.Inc()
			m.logger.Warn(logging.Codec, logging.Decode, "dropping undecodable frame", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
			continue
		}
		m.metrics.FramesReceived.WithLabelValues(string(ev.Type)).Inc()

		m.handlerMu.RLock()
		handler := m.handler
		m.handlerMu.RUnlock()

		if handler != nil {
			handler(ev)
		} else {
			m.logger.Debug(logging.Socket, logging.Dispatch, "no handler set, dropping event", map[logging.ExtraKey]any{
				logging.FrameType: string(ev.Type),
			})
		}
	}
}

func (m *Manager) handleDrop(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen {
		// A newer connection or Disconnect already took over.
		m.mu.Unlock()
		return
	}
	m.stopHeartbeatLocked()
	if m.conn != nil {
		_ = m.conn.conn.Close()
		m.conn = nil
	}
	m.setStateLocked(StateDisconnected)
	var terminal error
	if !m.manualClose {
		terminal = m.scheduleReconnectLocked()
	}
	m.mu.Unlock()

	if websocket.IsUnexpectedCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		m.logger.Warn(logging.Socket, logging.Connect, "chat socket dropped", map[logging.ExtraKey]any{
			logging.ErrorMessage: cause.Error(),
		})
	}

	m.handlerMu.RLock()
	onClose := m.closeHandler
	m.handlerMu.RUnlock()
	if onClose != nil {
		onClose(cause)
	}

	m.notifyTerminal(terminal)
}

// scheduleReconnectLocked arms the reconnect timer, or returns
// ErrReconnectExhausted once the attempt budget is spent.
func (m *Manager) scheduleReconnectLocked() error {
	if m.reconnectTimer != nil {
		return nil
	}
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		return fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, m.attempts)
	}

	delay := m.backoff.NextBackOff()
	m.attempts++
	m.logger.Info(logging.Socket, logging.Reconnect, "reconnect scheduled", map[logging.ExtraKey]any{
		logging.Attempt: m.attempts,
		logging.Delay:   delay.String(),
	})
	m.reconnectTimer = time.AfterFunc(delay, m.reconnect)
	return nil
}

func (m *Manager) reconnect() {
	m.mu.Lock()
	m.reconnectTimer = nil
	if m.manualClose || m.state == StateOpen || m.state == StateConnecting {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateConnecting)
	m.dialToken++
	token := m.dialToken
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	defer cancel()
	_ = m.dial(ctx, token)
}

func (m *Manager) notifyTerminal(err error) {
	if err == nil {
		return
	}
	m.logger.Error(logging.Socket, logging.Reconnect, "giving up on chat socket", map[logging.ExtraKey]any{
		logging.ErrorMessage: err.Error(),
	})

	m.handlerMu.RLock()
	onTerminal := m.terminalHandler
	m.handlerMu.RUnlock()
	if onTerminal != nil {
		onTerminal(err)
	}
}

func (m *Manager) stopReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) startHeartbeatLocked() {
	m.stopHeartbeatLocked()
	stop := make(chan struct{})
	m.heartbeatStop = stop

	go func() {
		ticker := time.NewTicker(m.cfg.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := m.Send(wire.NewPing()); err != nil {
					m.logger.Debug(logging.Socket, logging.Heartbeat, "ping failed", map[logging.ExtraKey]any{
						logging.ErrorMessage: err.Error(),
					})
				}
			case <-stop:
				return
			}
		}
	}()
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	m.metrics.ConnectionState.Set(float64(s))
}

func redactToken(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
