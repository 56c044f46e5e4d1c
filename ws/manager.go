package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/putto11262002/chatsync/core"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed between inbound frames before the transport is
	// considered dead. Must be larger than the heartbeat period.
	defaultPongWait = 30 * time.Second

	// Period between heartbeat ping frames.
	defaultHeartbeat = 7500 * time.Millisecond

	defaultDialTimeout          = 10 * time.Second
	defaultMaxReconnectInterval = 30 * time.Second

	outBuffer   = 64
	inBuffer    = 64
	stateBuffer = 8
)

// Manager owns the single websocket connection for a session. It dials,
// pumps frames in both directions, emits heartbeat pings, and redials with
// capped exponential backoff whenever the transport dies. The in/out/state
// channels outlive any individual transport, so consumers register exactly
// once and see traffic from every connection.
type Manager struct {
	url         string
	dialer      *websocket.Dialer
	heartbeat   time.Duration
	pongWait    time.Duration
	maxRedial   time.Duration
	out         chan []byte
	in          chan *Frame
	stateStream chan core.ConnState
	state       atomic.Int32
	logger      *slog.Logger
}

type ManagerOption func(*Manager)

func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

func WithHeartbeat(d time.Duration) ManagerOption {
	return func(m *Manager) { m.heartbeat = d }
}

func WithPongWait(d time.Duration) ManagerOption {
	return func(m *Manager) { m.pongWait = d }
}

func WithDialTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.dialer.HandshakeTimeout = d }
}

func WithMaxReconnectInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.maxRedial = d }
}

// NewManager builds a manager for the given endpoint. The bearer token is
// carried as a query parameter, which is how the server authenticates
// websocket upgrades.
func NewManager(rawURL, token string, opts ...ManagerOption) (*Manager, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	m := &Manager{
		url:         u.String(),
		dialer:      &websocket.Dialer{HandshakeTimeout: defaultDialTimeout},
		heartbeat:   defaultHeartbeat,
		pongWait:    defaultPongWait,
		maxRedial:   defaultMaxReconnectInterval,
		out:         make(chan []byte, outBuffer),
		in:          make(chan *Frame, inBuffer),
		stateStream: make(chan core.ConnState, stateBuffer),
		logger:      slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
	m.state.Store(int32(core.StateClosed))

	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// State returns the current connection state.
func (m *Manager) State() core.ConnState {
	return core.ConnState(m.state.Load())
}

// Receive returns the inbound frame stream. The channel is never closed
// while Run is alive; it survives reconnection.
func (m *Manager) Receive() <-chan *Frame {
	return m.in
}

// States returns state-transition notifications. Slow consumers miss
// transitions rather than blocking the manager.
func (m *Manager) States() <-chan core.ConnState {
	return m.stateStream
}

// Send serializes v and queues it for transmission. When the connection is
// not open, or the outbound buffer is full, the frame is silently dropped:
// callers rely on retransmission, not on Send, for delivery.
func (m *Manager) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if m.State() != core.StateOpen {
		m.logger.Debug("dropping frame: connection not open")
		return nil
	}
	select {
	case m.out <- data:
	default:
		m.logger.Warn("dropping frame: outbound buffer full")
	}
	return nil
}

func (m *Manager) setState(s core.ConnState) {
	if core.ConnState(m.state.Swap(int32(s))) == s {
		return
	}
	m.logger.Info("connection state changed", slog.String("state", s.String()))
	select {
	case m.stateStream <- s:
	default:
	}
}

// Run dials and keeps the connection alive until ctx is done. Dial failures
// back off exponentially up to the configured cap; once a connection opens
// the backoff resets, and a dropped transport is redialed immediately.
func (m *Manager) Run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = m.maxRedial
	bo.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			m.setState(core.StateClosed)
			return
		}
		m.setState(core.StateConnecting)
		conn, _, err := m.dialer.DialContext(ctx, m.url, nil)
		if err != nil {
			m.setState(core.StateClosed)
			wait := bo.NextBackOff()
			m.logger.Error(fmt.Sprintf("dial: %v", err), slog.Duration("retry_in", wait))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		bo.Reset()
		m.setState(core.StateOpen)
		m.serve(ctx, conn)
		m.setState(core.StateClosed)
	}
}

// serve pumps one transport until it dies. Pending room/outbox state is not
// touched here: reconnection must be invisible to everything above the wire.
func (m *Manager) serve(ctx context.Context, conn *websocket.Conn) {
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.writePump(ctx, conn, stop)
	}()

	m.readPump(ctx, conn)
	close(stop)
	conn.Close()
	wg.Wait()
}

func (m *Manager) readPump(ctx context.Context, conn *websocket.Conn) {
	defer m.logger.Info("exited read pump")

	conn.SetReadDeadline(time.Now().Add(m.pongWait))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Info(fmt.Sprintf("expected close: %v", err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				m.logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			m.logger.Error(fmt.Sprintf("ReadMessage: %v", err))
			return
		}
		// Any inbound traffic proves liveness, not just pong frames.
		conn.SetReadDeadline(time.Now().Add(m.pongWait))

		frame, err := DecodeFrame(data)
		if err != nil {
			m.logger.Error(fmt.Sprintf("DecodeFrame: %v", err))
			continue
		}
		select {
		case m.in <- frame:
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) writePump(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(m.heartbeat)
	ping, _ := json.Marshal(NewPing())
	var err error
	defer func() {
		ticker.Stop()
		if err != nil {
			conn.Close()
		}
		m.logger.Info("exited write pump")
	}()

	for {
		select {
		case data := <-m.out:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = conn.WriteMessage(websocket.TextMessage, data); err != nil {
				m.logger.Error(fmt.Sprintf("WriteMessage: %v", err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				m.logger.Error(fmt.Sprintf("WritePing: %v", err))
				return
			}
		case <-stop:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			// Unblocks the read pump as well.
			err = ctx.Err()
			return
		}
	}
}
