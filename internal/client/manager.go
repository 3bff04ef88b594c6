// Package client is a participant or host connection to the session server.
// It keeps one websocket open, reconnects with exponential backoff after involuntary drops
// and measures latency with ping/pong heartbeats.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// EventConnectionStatus is delivered to subscribers on every status change.
const EventConnectionStatus = "connection:status"

var (
	ErrConnectionLost     = errors.New("connection lost")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrNotConnected       = errors.New("not connected")
)

// Conn is the subset of *websocket.Conn the manager uses.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type Options struct {
	URL                  string
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	HeartbeatInterval    time.Duration
	PongTimeout          time.Duration
	Logger               *zap.Logger

	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
}

type Stats struct {
	Status            Status    `json:"status"`
	LatencyMs         int64     `json:"latencyMs"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
	LastHeartbeatAt   time.Time `json:"lastHeartbeatAt"`
	MessagesSent      int64     `json:"messagesSent"`
	MessagesReceived  int64     `json:"messagesReceived"`
	LastError         string    `json:"lastError,omitempty"`
}

// StatusPayload is the payload of EventConnectionStatus.
type StatusPayload struct {
	Status  Status `json:"status"`
	Attempt int    `json:"attempt,omitempty"`
	DelayMs int64  `json:"delayMs,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Handler func(payload json.RawMessage)

type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type outbound struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

type pingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

type Manager struct {
	opts   Options
	dialer Dialer
	logger *zap.Logger

	mu       sync.Mutex
	conn     Conn
	stats    Stats
	cancel   context.CancelFunc
	done     chan struct{}
	handlers map[string]map[int]Handler
	nextID   int
	pingTS   int64
	pong     chan struct{}

	writeMu sync.Mutex
}

func New(opts Options, dialer Dialer) *Manager {
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 5
	}
	if opts.ReconnectBaseDelay <= 0 {
		opts.ReconnectBaseDelay = time.Second
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.After == nil {
		opts.After = time.After
	}
	if dialer == nil {
		dialer = WebsocketDialer{}
	}
	return &Manager{
		opts:     opts,
		dialer:   dialer,
		logger:   opts.Logger,
		stats:    Stats{Status: StatusDisconnected, LatencyMs: -1},
		handlers: make(map[string]map[int]Handler),
		pong:     make(chan struct{}, 1),
	}
}

// Connect dials the server. ctx bounds the whole connection, reconnects included.
// Calling Connect after a terminal error starts over with a fresh attempt budget.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.stats.Status == StatusConnected || m.stats.Status == StatusConnecting {
		m.mu.Unlock()
		return nil
	}
	m.stats.Status = StatusConnecting
	m.stats.ReconnectAttempts = 0
	m.mu.Unlock()
	m.emitStatus(StatusPayload{Status: StatusConnecting})

	conn, err := m.dialer.Dial(ctx, m.opts.URL)
	if err != nil {
		m.fail(StatusError, err)
		return fmt.Errorf("dial %s: %w", m.opts.URL, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.conn = conn
	m.cancel = cancel
	m.done = done
	m.stats.Status = StatusConnected
	m.stats.LastError = ""
	m.mu.Unlock()
	m.emitStatus(StatusPayload{Status: StatusConnected})

	go m.run(runCtx, conn, done)
	return nil
}

// Disconnect closes the connection and stops any reconnect in progress.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel, done, conn := m.cancel, m.done, m.conn
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-done
}

// Send writes one event. It fails with ErrNotConnected unless the socket is up.
func (m *Manager) Send(event string, payload any) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.stats.Status == StatusConnected
	m.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}
	if err := m.write(conn, event, payload); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

// Subscribe registers handler for event and returns a func that removes it.
// Handlers run on the read goroutine and must not block.
func (m *Manager) Subscribe(event string, handler Handler) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	if m.handlers[event] == nil {
		m.handlers[event] = make(map[int]Handler)
	}
	m.handlers[event][id] = handler
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers[event], id)
	}
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Manager) run(ctx context.Context, conn Conn, done chan struct{}) {
	defer close(done)
	for {
		err := m.serve(ctx, conn)
		if ctx.Err() != nil {
			m.fail(StatusDisconnected, nil)
			return
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			m.logger.Info("server closed connection", zap.Error(err))
			m.fail(StatusDisconnected, nil)
			return
		}
		m.logger.Warn("connection lost", zap.Error(err))
		m.recordError(fmt.Errorf("%w: %v", ErrConnectionLost, err))

		conn, err = m.reconnect(ctx)
		if err != nil {
			if errors.Is(err, ErrReconnectExhausted) {
				m.fail(StatusError, err)
			} else {
				m.fail(StatusDisconnected, nil)
			}
			return
		}
	}
}

// serve reads until the connection fails. It owns the heartbeat for conn.
func (m *Manager) serve(ctx context.Context, conn Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()
	go m.heartbeat(connCtx, conn)

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		m.mu.Lock()
		m.stats.MessagesReceived++
		m.mu.Unlock()
		if env.Event == "pong" {
			m.handlePong(env.Payload)
		}
		m.dispatch(env.Event, env.Payload)
	}
}

func (m *Manager) heartbeat(ctx context.Context, conn Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.opts.After(m.opts.HeartbeatInterval):
		}

		ts := m.opts.Now().UnixMilli()
		m.mu.Lock()
		m.pingTS = ts
		m.mu.Unlock()
		select {
		case <-m.pong:
		default:
		}
		if err := m.write(conn, "ping", pingPayload{Timestamp: ts}); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-m.pong:
		case <-m.opts.After(m.opts.PongTimeout):
			// A missed pong only makes latency unknown; the read loop decides about loss.
			m.mu.Lock()
			m.stats.LatencyMs = -1
			m.mu.Unlock()
		}
	}
}

func (m *Manager) handlePong(raw json.RawMessage) {
	var p pingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	now := m.opts.Now()
	m.mu.Lock()
	if p.Timestamp != m.pingTS {
		m.mu.Unlock()
		return
	}
	m.stats.LatencyMs = now.UnixMilli() - p.Timestamp
	m.stats.LastHeartbeatAt = now
	m.mu.Unlock()
	select {
	case m.pong <- struct{}{}:
	default:
	}
}

// reconnect dials with delays base, 2*base, 4*base ... until the attempt budget runs out.
func (m *Manager) reconnect(ctx context.Context) (Conn, error) {
	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()

	expo := &backoff.ExponentialBackOff{
		InitialInterval:     m.opts.ReconnectBaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         m.opts.ReconnectBaseDelay << uint(m.opts.MaxReconnectAttempts),
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	expo.Reset()
	policy := backoff.WithMaxRetries(expo, uint64(m.opts.MaxReconnectAttempts))

	for attempt := 1; ; attempt++ {
		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			return nil, ErrReconnectExhausted
		}
		m.mu.Lock()
		m.stats.Status = StatusConnecting
		m.stats.ReconnectAttempts = attempt
		m.mu.Unlock()
		m.emitStatus(StatusPayload{Status: StatusConnecting, Attempt: attempt, DelayMs: delay.Milliseconds()})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.opts.After(delay):
		}

		conn, err := m.dialer.Dial(ctx, m.opts.URL)
		if err != nil {
			m.logger.Debug("reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
			m.recordError(err)
			continue
		}
		m.mu.Lock()
		m.conn = conn
		m.stats.Status = StatusConnected
		m.stats.LastError = ""
		m.mu.Unlock()
		m.emitStatus(StatusPayload{Status: StatusConnected, Attempt: attempt})
		return conn, nil
	}
}

func (m *Manager) write(conn Conn, event string, payload any) error {
	m.writeMu.Lock()
	err := conn.WriteJSON(outbound{Event: event, Payload: payload})
	m.writeMu.Unlock()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.stats.MessagesSent++
	m.mu.Unlock()
	return nil
}

func (m *Manager) dispatch(event string, payload json.RawMessage) {
	m.mu.Lock()
	handlers := make([]Handler, 0, len(m.handlers[event]))
	for _, h := range m.handlers[event] {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}

func (m *Manager) emitStatus(p StatusPayload) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	m.dispatch(EventConnectionStatus, data)
}

func (m *Manager) recordError(err error) {
	m.mu.Lock()
	m.stats.LastError = err.Error()
	m.mu.Unlock()
}

func (m *Manager) fail(status Status, err error) {
	m.mu.Lock()
	m.conn = nil
	m.stats.Status = status
	if err != nil {
		m.stats.LastError = err.Error()
	}
	m.mu.Unlock()
	p := StatusPayload{Status: status}
	if err != nil {
		p.Error = err.Error()
	}
	m.emitStatus(p)
}
