package client

import (
	"github.com/putto11262002/chatsync/core"
	"github.com/putto11262002/chatsync/ws"
)

// Event is a notification emitted by the engine for the UI layer to render.
// Consumers that fall behind miss events rather than blocking the loop.
type Event interface {
	isEvent()
}

// RoomListUpdated fires after a roster or bulk-unread snapshot.
type RoomListUpdated struct {
	Rooms []core.Room
}

// MessageAdded fires when a live arrival or an optimistic send appends to a
// room's log; history merges announce themselves through HistoryLoaded.
type MessageAdded struct {
	RoomID  int64
	Message core.Message
}

// MessageAcked fires when a pending send resolves; the log entry now carries
// MessageID in place of ProvisionalID.
type MessageAcked struct {
	RoomID        int64
	ProvisionalID int64
	MessageID     int64
}

// SendFailed fires when a pending send exhausts its retries. The optimistic
// log entry keeps its provisional id.
type SendFailed struct {
	RoomID        int64
	ProvisionalID int64
}

// UnreadChanged fires when a room's unread counter moves.
type UnreadChanged struct {
	RoomID int64
	Unread int
}

// HistoryLoaded fires after an older page merges into a room's log.
type HistoryLoaded struct {
	RoomID     int64
	Added      int
	ReachedEnd bool
}

// Highlight asks the UI to scroll to and flash one message; emitted exactly
// once per successful reply resolution.
type Highlight struct {
	RoomID    int64
	MessageID int64
}

// ResolveFailed fires when the server reports a reply target as deleted.
type ResolveFailed struct {
	RoomID   int64
	TargetID int64
}

// DetailReady carries the read-receipt/reply-count response for the message
// detail view.
type DetailReady struct {
	RoomID  int64
	Readers []ws.UserDetail
	IsRead  bool
	Count   int
	SentAt  string
}

// ConnStateChanged mirrors the connection manager's state transitions.
type ConnStateChanged struct {
	State core.ConnState
}

func (RoomListUpdated) isEvent()  {}
func (MessageAdded) isEvent()     {}
func (MessageAcked) isEvent()     {}
func (SendFailed) isEvent()       {}
func (UnreadChanged) isEvent()    {}
func (HistoryLoaded) isEvent()    {}
func (Highlight) isEvent()        {}
func (ResolveFailed) isEvent()    {}
func (DetailReady) isEvent()      {}
func (ConnStateChanged) isEvent() {}
