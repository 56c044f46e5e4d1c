// Package client is the chat synchronization engine: it owns the connection
// manager, the outbound delivery queue, the room store, and the resolver, and
// runs every mutation on a single event loop.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/putto11262002/chatsync/core"
	"github.com/putto11262002/chatsync/outbox"
	"github.com/putto11262002/chatsync/rest"
	"github.com/putto11262002/chatsync/store"
	"github.com/putto11262002/chatsync/ws"
)

const eventBuffer = 256

// historyRequest is the single in-flight older-page request. The response
// frame carries no room id, so the engine applies it to the request it
// remembers issuing.
type historyRequest struct {
	roomID int64
	endID  int64
}

// Client is the engine facade. All state (store, outbox, resolver, in-flight
// requests) is mutated exclusively from the Run loop: inbound frames, timer
// ticks, and public API calls each execute as one non-preemptible turn.
// Public methods must be called from outside the loop and block until their
// turn has run.
type Client struct {
	cfg     *Config
	session *Session
	log     *slog.Logger

	conn   *ws.Manager
	store  *store.Store
	outbox *outbox.Outbox
	router *router
	rest   *rest.Client

	pendingHistory *historyRequest
	pendingDetail  int64
	resolver       resolver

	events chan Event
	cmds   chan func()
	closed chan struct{}
}

type ClientOption func(*Client)

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.log = logger }
}

func New(cfg *Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	session, err := NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	c := &Client{
		cfg:           cfg,
		session:       session,
		log:           slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})),
		pendingDetail: -1,
		events:        make(chan Event, eventBuffer),
		cmds:          make(chan func()),
		closed:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(slog.String("session.id", session.ID))

	conn, err := ws.NewManager(cfg.WSURL, cfg.Token,
		ws.WithLogger(c.log),
		ws.WithHeartbeat(cfg.Heartbeat),
		ws.WithPongWait(cfg.PongWait),
		ws.WithDialTimeout(cfg.DialTimeout),
		ws.WithMaxReconnectInterval(cfg.ReconnectMaxInterval),
	)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.store = store.New(store.WithLogger(c.log))
	c.outbox = outbox.New(conn,
		outbox.WithLogger(c.log),
		outbox.WithResendInterval(cfg.ResendInterval),
		outbox.WithMaxInterval(cfg.ResendMaxInterval),
		outbox.WithMaxRetries(cfg.ResendMaxRetries),
	)
	if cfg.APIURL != "" {
		c.rest, err = rest.New(cfg.APIURL, cfg.Token, rest.WithLogger(c.log))
		if err != nil {
			return nil, err
		}
	}

	c.router = newRouter(c.log)
	c.router.on(ws.TypeRoomInfos, c.handleRoomInfos)
	c.router.on(ws.TypeUnreadMessages, c.handleUnreadMessages)
	c.router.on(ws.TypeChatMessage, c.handleChatMessage)
	c.router.on(ws.TypeAcknowledge, c.handleAcknowledge)
	c.router.on(ws.TypeHistory, c.handleHistoryMessages)
	c.router.on(ws.TypeReplyContext, c.handleReplyContext)
	c.router.on(ws.TypeMessageDetail, c.handleMessageDetail)
	c.router.on(ws.TypePong, c.handlePong)

	return c, nil
}

// Run starts the connection manager and processes turns until ctx is done.
// Once Run returns, public methods stop running turns and return zero values.
func (c *Client) Run(ctx context.Context) {
	defer close(c.closed)
	go c.conn.Run(ctx)

	ticker := time.NewTicker(c.cfg.ResendInterval)
	defer ticker.Stop()

	c.log.Info("engine started")
	defer c.log.Info("engine stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.conn.Receive():
			c.router.dispatch(frame)
		case st := <-c.conn.States():
			if st == core.StateClosed {
				// Any response still outstanding died with the
				// transport; release the slots so pagination and
				// resolution can be retried after reconnect.
				c.pendingHistory = nil
				c.resolver = resolver{}
			}
			c.emit(ConnStateChanged{State: st})
		case cmd := <-c.cmds:
			cmd()
		case <-ticker.C:
			for _, f := range c.outbox.Tick() {
				c.emit(SendFailed{RoomID: f.RoomID, ProvisionalID: f.AckID})
			}
		}
	}
}

// Events returns the UI notification stream.
func (c *Client) Events() <-chan Event {
	return c.events
}

// REST returns the REST collaborator client, or nil when no API URL is
// configured.
func (c *Client) REST() *rest.Client {
	return c.rest
}

// State returns the transport connection state.
func (c *Client) State() core.ConnState {
	return c.conn.State()
}

func (c *Client) emit(e Event) {
	select {
	case c.events <- e:
	default:
		c.log.Warn(fmt.Sprintf("dropping event %T: consumer too slow", e))
	}
}

// do runs f as one turn on the event loop and waits for it to finish. After
// the loop has shut down, f is not run and the caller gets zero values.
func (c *Client) do(f func()) {
	done := make(chan struct{})
	select {
	case c.cmds <- func() {
		defer close(done)
		f()
	}:
		<-done
	case <-c.closed:
	}
}

// Submit sends a message to a room. The returned message is the optimistic
// log entry carrying the provisional id; it is rewritten in place once the
// server acknowledges.
func (c *Client) Submit(roomID int64, content string, replyID int64) (core.Message, error) {
	var (
		msg core.Message
		err error
	)
	c.do(func() {
		if _, ok := c.store.Room(roomID); !ok {
			err = core.ErrUnknownRoom
			return
		}
		frame := c.outbox.Submit(roomID, content, replyID)
		msg = core.Message{
			ID:           frame.AckID,
			RoomID:       roomID,
			SenderID:     c.session.UserID,
			SenderName:   c.session.Username,
			SenderAvatar: c.session.Avatar,
			Content:      content,
			ReplyID:      replyID,
			SentAt:       time.Now(),
		}
		if replyID != core.NoReply {
			if target, ok := c.store.Get(roomID, replyID); ok {
				msg.Reply = &core.ReplyPreview{SenderName: target.SenderName, Content: target.Content}
			}
		}
		c.store.AppendLocal(msg)
		c.emit(MessageAdded{RoomID: roomID, Message: msg})
	})
	return msg, err
}

// OpenRoom focuses a room: its unread counter resets and the server is told
// the new read index.
func (c *Client) OpenRoom(roomID int64) error {
	var err error
	c.do(func() {
		if _, ok := c.store.Room(roomID); !ok {
			err = core.ErrUnknownRoom
			return
		}
		c.store.Focus(roomID)
		if readIndex, ok := c.store.MarkRead(roomID); ok {
			c.conn.Send(ws.NewSetReadIndex(roomID, readIndex))
		}
		c.emit(UnreadChanged{RoomID: roomID, Unread: 0})
	})
	return err
}

// LoadOlder requests the page of history older than the room's oldest loaded
// message. At most one request may be outstanding, rooms whose history is
// exhausted never re-issue it, and an empty log has nothing to anchor on.
func (c *Client) LoadOlder(roomID int64) error {
	var err error
	c.do(func() {
		if _, ok := c.store.Room(roomID); !ok {
			err = core.ErrUnknownRoom
			return
		}
		if c.store.ReachedEnd(roomID) {
			err = core.ErrReachedEnd
			return
		}
		endID, ok := c.store.OldestID(roomID)
		if !ok {
			err = core.ErrEmptyLog
			return
		}
		if c.pendingHistory != nil {
			err = core.ErrHistoryInFlight
			return
		}
		c.pendingHistory = &historyRequest{roomID: roomID, endID: endID}
		c.conn.Send(ws.NewGetHistory(roomID, endID))
	})
	return err
}

// ResolveReply resolves a reply pointer to its target message, fetching
// additional history on demand. The outcome arrives as a Highlight or
// ResolveFailed event.
func (c *Client) ResolveReply(roomID, targetID int64) error {
	var err error
	c.do(func() {
		err = c.resolveReply(roomID, targetID)
	})
	return err
}

// RequestDetail asks for read receipts and reply count of one message; the
// response surfaces as a DetailReady event.
func (c *Client) RequestDetail(roomID, messageID int64) error {
	var err error
	c.do(func() {
		room, ok := c.store.Room(roomID)
		if !ok {
			err = core.ErrUnknownRoom
			return
		}
		c.pendingDetail = roomID
		c.conn.Send(ws.NewGetMessageDetail(messageID, roomID, room.Type))
	})
	return err
}

// DeleteMessage deletes a message through the REST collaborator and, on
// success, removes it from the local log. REST failures surface to the
// caller and are never retried.
func (c *Client) DeleteMessage(ctx context.Context, roomID, messageID int64) error {
	if c.rest == nil {
		return fmt.Errorf("no api url configured")
	}
	if err := c.rest.DeleteMessage(ctx, roomID, messageID); err != nil {
		return err
	}
	c.do(func() {
		c.store.Remove(roomID, messageID)
	})
	return nil
}

// Rooms returns the current roster.
func (c *Client) Rooms() []core.Room {
	var rooms []core.Room
	c.do(func() { rooms = c.store.Rooms() })
	return rooms
}

// Messages returns a copy of a room's log in display order.
func (c *Client) Messages(roomID int64) []core.Message {
	var msgs []core.Message
	c.do(func() { msgs = c.store.Messages(roomID) })
	return msgs
}

// Unread returns a room's unread count.
func (c *Client) Unread(roomID int64) int {
	var n int
	c.do(func() { n = c.store.Unread(roomID) })
	return n
}

// PendingSends returns the set of unacknowledged outbound messages.
func (c *Client) PendingSends() []core.PendingSend {
	var pending []core.PendingSend
	c.do(func() { pending = c.outbox.Pending() })
	return pending
}
