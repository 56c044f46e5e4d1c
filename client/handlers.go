package client

import (
	"errors"
	"log/slog"

	"github.com/putto11262002/chatsync/core"
	"github.com/putto11262002/chatsync/ws"
)

// echoAck acknowledges receipt of a server frame by its delivery id. This is
// distinct from the send-acknowledgment flow: the server retransmits frames
// until the client echoes them, mirroring what the outbox does outbound.
func (c *Client) echoAck(ackID int64) {
	c.conn.Send(ws.NewReceiverAck(ackID))
}

func (c *Client) handleRoomInfos(frame *ws.Frame) error {
	var f ws.RoomInfosFrame
	if err := frame.Decode(&f); err != nil {
		return err
	}
	c.store.InitRooms(f.Rooms)
	c.emit(RoomListUpdated{Rooms: c.store.Rooms()})
	c.log.Info("room roster installed", slog.Int("rooms", len(f.Rooms)))
	return nil
}

func (c *Client) handleUnreadMessages(frame *ws.Frame) error {
	var f ws.UnreadMessagesFrame
	if err := frame.Decode(&f); err != nil {
		return err
	}
	c.echoAck(f.AckID)

	for _, room := range f.UnreadMessages {
		// Pages arrive newest first; the log is chronological.
		page := make([]core.Message, 0, len(room.Values))
		for i := len(room.Values) - 1; i >= 0; i-- {
			page = append(page, room.Values[i].Message())
		}
		if err := c.store.InitUnread(room.RoomID, room.UnreadCount, page); err != nil {
			c.log.Warn("dropping unread snapshot for unknown room",
				slog.Int64("room_id", room.RoomID))
			continue
		}
		c.emit(UnreadChanged{RoomID: room.RoomID, Unread: room.UnreadCount})
	}
	c.emit(RoomListUpdated{Rooms: c.store.Rooms()})
	return nil
}

func (c *Client) handleChatMessage(frame *ws.Frame) error {
	var f ws.ChatMessageFrame
	if err := frame.Decode(&f); err != nil {
		return err
	}
	// Ack first: redelivery is dedup'd below, losing the frame is not.
	c.echoAck(f.AckID)

	if f.SenderID == c.session.UserID {
		// Own send, already materialized optimistically by Submit.
		return nil
	}

	msg := f.Message()
	if err := c.store.AppendLive(msg); err != nil {
		if errors.Is(err, core.ErrUnknownRoom) {
			c.log.Warn("dropping live message for unknown room",
				slog.Int64("room_id", msg.RoomID), slog.Int64("message_id", msg.ID))
			return nil
		}
		return err
	}
	c.emit(MessageAdded{RoomID: msg.RoomID, Message: msg})

	if msg.RoomID == c.store.Focused() {
		// Reading along: advance the server-side read cursor immediately.
		c.conn.Send(ws.NewSetReadIndex(msg.RoomID, msg.ID))
	} else {
		c.emit(UnreadChanged{RoomID: msg.RoomID, Unread: c.store.Unread(msg.RoomID)})
	}
	return nil
}

func (c *Client) handleAcknowledge(frame *ws.Frame) error {
	var f ws.AcknowledgeFrame
	if err := frame.Decode(&f); err != nil {
		return err
	}
	sent, ok := c.outbox.Ack(f.AckID)
	if !ok {
		// Already resolved or stale; at-least-once delivery makes
		// duplicate acknowledgments normal.
		c.log.Debug("ignoring unknown acknowledgment", slog.Int64("ack_id", f.AckID))
		return nil
	}
	c.store.ResolveProvisional(sent.RoomID, f.AckID, f.MessageID)
	c.emit(MessageAcked{RoomID: sent.RoomID, ProvisionalID: f.AckID, MessageID: f.MessageID})
	return nil
}

func (c *Client) handleHistoryMessages(frame *ws.Frame) error {
	var f ws.HistoryMessagesFrame
	if err := frame.Decode(&f); err != nil {
		return err
	}
	c.echoAck(f.AckID)

	req := c.pendingHistory
	if req == nil {
		c.log.Warn("dropping history page with no request in flight")
		return nil
	}
	c.pendingHistory = nil

	page := make([]core.Message, 0, len(f.Messages))
	for i := len(f.Messages) - 1; i >= 0; i-- {
		page = append(page, f.Messages[i].Message(req.roomID))
	}
	added, err := c.store.PrependHistory(req.roomID, page)
	if err != nil {
		return err
	}
	c.emit(HistoryLoaded{RoomID: req.roomID, Added: added, ReachedEnd: c.store.ReachedEnd(req.roomID)})
	return nil
}

func (c *Client) handleReplyContext(frame *ws.Frame) error {
	var f ws.ReplyContextFrame
	if err := frame.Decode(&f); err != nil {
		return err
	}
	c.echoAck(f.AckID)

	if !c.resolver.active {
		c.log.Warn("dropping reply context with no resolution in flight")
		return nil
	}
	if f.Unavailable() {
		c.failResolve()
		return nil
	}

	roomID := c.resolver.roomID
	page := make([]core.Message, 0, len(f.Messages))
	for i := len(f.Messages) - 1; i >= 0; i-- {
		page = append(page, f.Messages[i].Message(roomID))
	}
	// An empty context page must not flip reachedEnd: it bounds the reply
	// window, not the room's history.
	if len(page) > 0 {
		added, err := c.store.PrependHistory(roomID, page)
		if err != nil {
			return err
		}
		c.emit(HistoryLoaded{RoomID: roomID, Added: added, ReachedEnd: c.store.ReachedEnd(roomID)})
	}
	c.retryResolve()
	return nil
}

func (c *Client) handleMessageDetail(frame *ws.Frame) error {
	var f ws.MessageDetailFrame
	if err := frame.Decode(&f); err != nil {
		return err
	}
	c.echoAck(f.AckID)

	roomID := c.pendingDetail
	c.pendingDetail = -1
	c.emit(DetailReady{
		RoomID:  roomID,
		Readers: f.UsersInfo,
		IsRead:  f.IsRead,
		Count:   f.Count,
		SentAt:  f.SendTime,
	})
	return nil
}

func (c *Client) handlePong(frame *ws.Frame) error {
	// Informational: liveness is enforced by the read deadline.
	c.log.Debug("pong")
	return nil
}
