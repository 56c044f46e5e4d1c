package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/putto11262002/chatsync/core"
)

// serverConn is one accepted websocket connection, with a write lock so
// tests can script responses while the read loop answers pings.
type serverConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *serverConn) send(t *testing.T, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteJSON(v); err != nil {
		t.Logf("server send: %v", err)
	}
}

func (c *serverConn) close() {
	c.ws.Close()
}

type inboundFrame struct {
	conn *serverConn
	data map[string]any
}

// chatServer fakes the chat backend: it upgrades websockets on /ws/chat,
// pushes the room roster on connect, answers pings, and records every other
// frame the client sends for the test to assert on and respond to.
type chatServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	rooms []core.Room

	frames   chan inboundFrame
	acks     chan int64
	accepted chan *serverConn

	reject atomic.Bool
}

func newChatServer(t *testing.T, rooms ...core.Room) *chatServer {
	s := &chatServer{
		t:        t,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		rooms:    rooms,
		frames:   make(chan inboundFrame, 64),
		acks:     make(chan int64, 64),
		accepted: make(chan *serverConn, 8),
	}

	r := chi.NewRouter()
	r.Get("/ws/chat", s.handleWS)
	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *chatServer) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.reject.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := &serverConn{ws: ws}

	roster := map[string]any{"type": "room_infos", "rooms": s.rooms}
	conn.send(s.t, roster)
	s.accepted <- conn

	for {
		var v map[string]any
		if err := ws.ReadJSON(&v); err != nil {
			return
		}
		switch v["type"] {
		case "ping":
			conn.send(s.t, map[string]any{"type": "pong"})
		case "receiver_ack":
			s.acks <- int64(v["ack_id"].(float64))
		default:
			s.frames <- inboundFrame{conn: conn, data: v}
		}
	}
}

func (s *chatServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws/chat"
}

// waitFrame returns the next frame of the given type, failing the test if it
// does not arrive in time. Frames of other types are skipped.
func (s *chatServer) waitFrame(frameType string) inboundFrame {
	s.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case f := <-s.frames:
			if f.data["type"] == frameType {
				return f
			}
		case <-deadline:
			s.t.Fatalf("timed out waiting for %s frame", frameType)
		}
	}
}

// waitAck waits for a receiver_ack echo carrying the given delivery id.
func (s *chatServer) waitAck(ackID int64) {
	s.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case id := <-s.acks:
			if id == ackID {
				return
			}
		case <-deadline:
			s.t.Fatalf("timed out waiting for receiver_ack %d", ackID)
		}
	}
}

// noFrame asserts that no frame of the given type arrives within d.
func (s *chatServer) noFrame(frameType string, d time.Duration) {
	s.t.Helper()
	deadline := time.After(d)
	for {
		select {
		case f := <-s.frames:
			if f.data["type"] == frameType {
				s.t.Fatalf("unexpected %s frame: %v", frameType, f.data)
			}
		case <-deadline:
			return
		}
	}
}

func testToken(t *testing.T) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256,
		jwt.MapClaims{"username": "me"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

const testUserID int64 = 42

func testConfig(t *testing.T, s *chatServer) *Config {
	return &Config{
		WSURL:                s.wsURL(),
		Token:                testToken(t),
		UserID:               testUserID,
		Name:                 "me",
		Heartbeat:            50 * time.Millisecond,
		PongWait:             2 * time.Second,
		ResendInterval:       50 * time.Millisecond,
		ResendMaxInterval:    200 * time.Millisecond,
		ResendMaxRetries:     50,
		ReconnectMaxInterval: time.Second,
		DialTimeout:          2 * time.Second,
	}
}

func newTestClient(t *testing.T, s *chatServer, mutate func(*Config)) (*Client, *eventRecorder) {
	cfg := testConfig(t, s)
	if mutate != nil {
		mutate(cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := New(cfg, WithLogger(logger))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)

	return c, recordEvents(ctx, c)
}

// eventRecorder drains the client's event stream so tests can assert on what
// was emitted without racing the loop.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func recordEvents(ctx context.Context, c *Client) *eventRecorder {
	r := &eventRecorder{}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-c.Events():
				r.mu.Lock()
				r.events = append(r.events, e)
				r.mu.Unlock()
			}
		}
	}()
	return r
}

func (r *eventRecorder) count(pred func(Event) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if pred(e) {
			n++
		}
	}
	return n
}

func highlights(roomID, messageID int64) func(Event) bool {
	return func(e Event) bool {
		h, ok := e.(Highlight)
		return ok && h.RoomID == roomID && h.MessageID == messageID
	}
}

// Wire payload builders, newest-first ordering is the caller's concern.

func wireUnreadValue(roomID, id int64, content string, senderID int64) map[string]any {
	return map[string]any{
		"message_id":      id,
		"message_content": content,
		"room_id":         roomID,
		"sender_id":       senderID,
		"sender_name":     "alice",
		"sender_avatar":   "",
		"send_time":       "2026-08-30 10:00:00",
		"reply_id":        -1,
	}
}

func wireHistoryMessage(id int64, content string, senderID int64) map[string]any {
	return map[string]any{
		"message_id":    id,
		"content":       content,
		"sender_id":     senderID,
		"sender_name":   "alice",
		"sender_avatar": "",
		"send_time":     "2026-08-30 09:00:00",
		"reply_id":      -1,
	}
}

func wireReplyContextMessage(id int64, content string, senderID int64) map[string]any {
	return map[string]any{
		"msg_id":          id,
		"message_content": content,
		"sender_id":       senderID,
		"sender_name":     "alice",
		"sender_avatar":   "",
		"send_time":       "2026-08-30 08:00:00",
		"reply_id":        -1,
	}
}

func wireChatMessage(ackID, roomID, id int64, content string, senderID int64) map[string]any {
	return map[string]any{
		"type":            "chat_message",
		"ack_id":          ackID,
		"message_id":      id,
		"room_id":         roomID,
		"message_content": content,
		"sender_id":       senderID,
		"sender_name":     "alice",
		"sender_avatar":   "",
		"send_time":       "2026-08-30 10:05:00",
		"reply_id":        -1,
	}
}

func wireUnreadSnapshot(ackID int64, rooms ...map[string]any) map[string]any {
	return map[string]any{
		"type":            "unread_messages",
		"ack_id":          ackID,
		"unread_messages": rooms,
	}
}

func wireUnreadRoom(roomID int64, unread int, values ...map[string]any) map[string]any {
	if values == nil {
		values = []map[string]any{}
	}
	return map[string]any{
		"room_id":      roomID,
		"unread_count": unread,
		"values":       values,
	}
}
