package core

import (
	"errors"
	"time"
)

const (
	// PrivateRoom is a conversation between exactly two users.
	PrivateRoom RoomType = "private"
	// GroupRoom is a conversation with two or more users.
	GroupRoom RoomType = "group"
)

// RoomType represents the kind of a chat room.
type RoomType = string

// NoReply is the wire sentinel for a message that replies to nothing.
const NoReply int64 = -1

// Room represents a conversation as announced by the server roster.
// Read state and the message log live in the store, keyed by Room.ID.
type Room struct {
	ID     int64    `json:"id"`
	Name   string   `json:"name"`
	Avatar string   `json:"avatar"`
	Type   RoomType `json:"room_type"`
}

// Message represents a chat message in a room's log.
//
// ID is assigned by the server and is monotonically ordered within a room.
// A message created locally carries a negative provisional id until the
// server acknowledges it, at which point the id is rewritten in place.
type Message struct {
	ID           int64         `json:"id"`
	RoomID       int64         `json:"room_id"`
	SenderID     int64         `json:"sender_id"`
	SenderName   string        `json:"sender_name"`
	SenderAvatar string        `json:"sender_avatar"`
	Content      string        `json:"content"`
	ReplyID      int64         `json:"reply_id"`
	Reply        *ReplyPreview `json:"reply,omitempty"`
	SentAt       time.Time     `json:"sent_at"`
}

// Provisional reports whether the message still carries a client-assigned id.
func (m Message) Provisional() bool {
	return m.ID < 0
}

// ReplyPreview is the denormalized snapshot of a replied-to message that the
// server attaches to messages, so rendering a reply needs no extra lookup.
type ReplyPreview struct {
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
}

// PendingSend is an outbound message awaiting the server's acknowledgment.
// AckID is the provisional id; it is strictly decreasing per session and is
// never reused, not even across reconnects.
type PendingSend struct {
	AckID   int64  `json:"ack_id"`
	RoomID  int64  `json:"room_id"`
	Content string `json:"message"`
	ReplyID int64  `json:"reply_id"`
	Retries int    `json:"-"`
}

var (
	// ErrUnknownRoom is returned when a room id is not in the roster.
	ErrUnknownRoom = errors.New("unknown room")
	// ErrReachedEnd is returned when older history is requested for a room
	// that has no older messages left on the server.
	ErrReachedEnd = errors.New("no older messages")
	// ErrEmptyLog is returned when an operation needs at least one loaded
	// message in the room's log.
	ErrEmptyLog = errors.New("empty message log")
	// ErrResolveInFlight is returned when a reply resolution is requested
	// while another one is still waiting for its context page.
	ErrResolveInFlight = errors.New("reply resolution already in flight")
	// ErrHistoryInFlight is returned when an older-page request is issued
	// while another is outstanding. History responses carry no room id, so
	// only one request may be in flight at a time.
	ErrHistoryInFlight = errors.New("history request already in flight")
)
