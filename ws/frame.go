package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/putto11262002/chatsync/core"
)

// Frame types sent by the client.
const (
	TypeSendMessage      = "send_message"
	TypePing             = "ping"
	TypeReceiverAck      = "receiver_ack"
	TypeGetHistory       = "get_history_messages"
	TypeGetReplyMessage  = "get_reply_message"
	TypeSetReadIndex     = "set_read_index"
	TypeGetMessageDetail = "get_message_detail"
)

// Frame types sent by the server.
const (
	TypeRoomInfos      = "room_infos"
	TypeUnreadMessages = "unread_messages"
	TypeChatMessage    = "chat_message"
	TypeAcknowledge    = "acknowledge"
	TypeHistory        = "history_messages"
	TypeReplyContext   = "reply_message_context"
	TypeMessageDetail  = "message_detail"
	TypePong           = "pong"
)

// Frame is a partially decoded inbound frame. Only the type tag is decoded
// up front; the handler for that type decodes Raw into the concrete shape.
type Frame struct {
	Type string
	Raw  json.RawMessage
}

func DecodeFrame(data []byte) (*Frame, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if probe.Type == "" {
		return nil, fmt.Errorf("decode frame: missing type tag")
	}
	return &Frame{Type: probe.Type, Raw: json.RawMessage(data)}, nil
}

// Decode unmarshals the full frame into v.
func (f *Frame) Decode(v any) error {
	if err := json.Unmarshal(f.Raw, v); err != nil {
		return fmt.Errorf("decode %s frame: %w", f.Type, err)
	}
	return nil
}

// Outbound frame shapes. The Type field must carry the matching constant;
// the constructors below fill it in.

type SendMessageFrame struct {
	Type    string `json:"type"`
	RoomID  int64  `json:"room_id"`
	Message string `json:"message"`
	AckID   int64  `json:"ack_id"`
	ReplyID int64  `json:"reply_id"`
}

func NewSendMessage(roomID int64, message string, ackID, replyID int64) SendMessageFrame {
	return SendMessageFrame{Type: TypeSendMessage, RoomID: roomID, Message: message, AckID: ackID, ReplyID: replyID}
}

type PingFrame struct {
	Type string `json:"type"`
}

func NewPing() PingFrame { return PingFrame{Type: TypePing} }

type ReceiverAckFrame struct {
	Type  string `json:"type"`
	AckID int64  `json:"ack_id"`
}

func NewReceiverAck(ackID int64) ReceiverAckFrame {
	return ReceiverAckFrame{Type: TypeReceiverAck, AckID: ackID}
}

type GetHistoryFrame struct {
	Type   string `json:"type"`
	RoomID int64  `json:"room_id"`
	EndID  int64  `json:"end_id"`
}

func NewGetHistory(roomID, endID int64) GetHistoryFrame {
	return GetHistoryFrame{Type: TypeGetHistory, RoomID: roomID, EndID: endID}
}

type GetReplyMessageFrame struct {
	Type           string `json:"type"`
	ReplyMessageID int64  `json:"reply_message_id"`
	RoomID         int64  `json:"room_id"`
	EndID          int64  `json:"end_id"`
}

func NewGetReplyMessage(replyID, roomID, endID int64) GetReplyMessageFrame {
	return GetReplyMessageFrame{Type: TypeGetReplyMessage, ReplyMessageID: replyID, RoomID: roomID, EndID: endID}
}

type SetReadIndexFrame struct {
	Type      string `json:"type"`
	RoomID    int64  `json:"room_id"`
	ReadIndex int64  `json:"read_index"`
}

func NewSetReadIndex(roomID, readIndex int64) SetReadIndexFrame {
	return SetReadIndexFrame{Type: TypeSetReadIndex, RoomID: roomID, ReadIndex: readIndex}
}

type GetMessageDetailFrame struct {
	Type           string        `json:"type"`
	QueryMessageID int64         `json:"query_message_id"`
	RoomID         int64         `json:"room_id"`
	RoomType       core.RoomType `json:"room_type"`
}

func NewGetMessageDetail(messageID, roomID int64, roomType core.RoomType) GetMessageDetailFrame {
	return GetMessageDetailFrame{Type: TypeGetMessageDetail, QueryMessageID: messageID, RoomID: roomID, RoomType: roomType}
}

// Inbound frame shapes. Message payloads are not uniform across frame types:
// each variant keeps the server's field names and normalizes through Message().

// wireTimeLayout is the timestamp format the server uses on every frame.
const wireTimeLayout = "2006-01-02 15:04:05"

func parseWireTime(s string) time.Time {
	t, err := time.Parse(wireTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

type RepliedMessage struct {
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
}

func (r *RepliedMessage) preview() *core.ReplyPreview {
	if r == nil {
		return nil
	}
	return &core.ReplyPreview{SenderName: r.SenderName, Content: r.Content}
}

type RoomInfosFrame struct {
	Type  string      `json:"type"`
	Rooms []core.Room `json:"rooms"`
}

type UnreadMessagesFrame struct {
	Type           string       `json:"type"`
	AckID          int64        `json:"ack_id"`
	UnreadMessages []UnreadRoom `json:"unread_messages"`
}

type UnreadRoom struct {
	RoomID      int64           `json:"room_id"`
	UnreadCount int             `json:"unread_count"`
	Values      []UnreadMessage `json:"values"`
}

type UnreadMessage struct {
	MessageID      int64           `json:"message_id"`
	Content        string          `json:"message_content"`
	RoomID         int64           `json:"room_id"`
	SenderID       int64           `json:"sender_id"`
	SenderName     string          `json:"sender_name"`
	SenderAvatar   string          `json:"sender_avatar"`
	SendTime       string          `json:"send_time"`
	ReplyID        int64           `json:"reply_id"`
	RepliedMessage *RepliedMessage `json:"replied_message"`
}

func (m UnreadMessage) Message() core.Message {
	return core.Message{
		ID:           m.MessageID,
		RoomID:       m.RoomID,
		SenderID:     m.SenderID,
		SenderName:   m.SenderName,
		SenderAvatar: m.SenderAvatar,
		Content:      m.Content,
		ReplyID:      m.ReplyID,
		Reply:        m.RepliedMessage.preview(),
		SentAt:       parseWireTime(m.SendTime),
	}
}

type ChatMessageFrame struct {
	Type           string          `json:"type"`
	AckID          int64           `json:"ack_id"`
	MessageID      int64           `json:"message_id"`
	RoomID         int64           `json:"room_id"`
	Content        string          `json:"message_content"`
	SenderID       int64           `json:"sender_id"`
	SenderName     string          `json:"sender_name"`
	SenderAvatar   string          `json:"sender_avatar"`
	ReplyID        int64           `json:"reply_id"`
	SendTime       string          `json:"send_time"`
	RepliedMessage *RepliedMessage `json:"replied_message"`
}

func (f ChatMessageFrame) Message() core.Message {
	return core.Message{
		ID:           f.MessageID,
		RoomID:       f.RoomID,
		SenderID:     f.SenderID,
		SenderName:   f.SenderName,
		SenderAvatar: f.SenderAvatar,
		Content:      f.Content,
		ReplyID:      f.ReplyID,
		Reply:        f.RepliedMessage.preview(),
		SentAt:       parseWireTime(f.SendTime),
	}
}

type AcknowledgeFrame struct {
	Type      string `json:"type"`
	AckID     int64  `json:"ack_id"`
	MessageID int64  `json:"message_id"`
}

// HistoryMessagesFrame carries an older page, newest message first and with
// no room id; the client matches it to the request it has in flight.
type HistoryMessagesFrame struct {
	Type     string           `json:"type"`
	AckID    int64            `json:"ack_id"`
	Messages []HistoryMessage `json:"messages"`
}

type HistoryMessage struct {
	MessageID      int64           `json:"message_id"`
	Content        string          `json:"content"`
	SenderID       int64           `json:"sender_id"`
	SenderName     string          `json:"sender_name"`
	SenderAvatar   string          `json:"sender_avatar"`
	SendTime       string          `json:"send_time"`
	ReplyID        int64           `json:"reply_id"`
	RepliedMessage *RepliedMessage `json:"replied_message"`
}

func (m HistoryMessage) Message(roomID int64) core.Message {
	return core.Message{
		ID:           m.MessageID,
		RoomID:       roomID,
		SenderID:     m.SenderID,
		SenderName:   m.SenderName,
		SenderAvatar: m.SenderAvatar,
		Content:      m.Content,
		ReplyID:      m.ReplyID,
		Reply:        m.RepliedMessage.preview(),
		SentAt:       parseWireTime(m.SendTime),
	}
}

// ReplyContextFrame is the page returned for a get_reply_message request.
// Error is the literal string "true" when the target message was deleted.
type ReplyContextFrame struct {
	Type     string                `json:"type"`
	AckID    int64                 `json:"ack_id"`
	Error    string                `json:"error"`
	Messages []ReplyContextMessage `json:"messages"`
}

func (f ReplyContextFrame) Unavailable() bool { return f.Error == "true" }

type ReplyContextMessage struct {
	MessageID      int64           `json:"msg_id"`
	Content        string          `json:"message_content"`
	SenderID       int64           `json:"sender_id"`
	SenderName     string          `json:"sender_name"`
	SenderAvatar   string          `json:"sender_avatar"`
	SendTime       string          `json:"send_time"`
	ReplyID        int64           `json:"reply_id"`
	RepliedMessage *RepliedMessage `json:"replied_message"`
}

func (m ReplyContextMessage) Message(roomID int64) core.Message {
	return core.Message{
		ID:           m.MessageID,
		RoomID:       roomID,
		SenderID:     m.SenderID,
		SenderName:   m.SenderName,
		SenderAvatar: m.SenderAvatar,
		Content:      m.Content,
		ReplyID:      m.ReplyID,
		Reply:        m.RepliedMessage.preview(),
		SentAt:       parseWireTime(m.SendTime),
	}
}

// MessageDetailFrame carries read receipts and reply count for one message.
// Group rooms get the reader list, private rooms a single is_read flag.
type MessageDetailFrame struct {
	Type       string       `json:"type"`
	AckID      int64        `json:"ack_id"`
	Count      int          `json:"count"`
	IsRead     bool         `json:"is_read"`
	UsersInfo  []UserDetail `json:"users_info"`
	SendTime   string       `json:"send_time"`
	ErrorField string       `json:"error"`
}

type UserDetail struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type PongFrame struct {
	Type string `json:"type"`
}
