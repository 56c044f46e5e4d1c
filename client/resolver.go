package client

import (
	"log/slog"

	"github.com/putto11262002/chatsync/core"
	"github.com/putto11262002/chatsync/ws"
)

// resolver tracks at most one in-flight reply-context fetch. Resolution that
// hits the loaded log is purely local; a miss records the target and asks the
// server for the page around it, re-running resolution once the page merges.
type resolver struct {
	active   bool
	roomID   int64
	targetID int64
}

// Resolve locates the target of a reply pointer. If the message is already
// loaded a Highlight event fires immediately; otherwise a reply-context fetch
// is issued, anchored at the room's current oldest loaded id so pages that
// are already loaded are not fetched again.
func (c *Client) resolveReply(roomID, targetID int64) error {
	if c.store.Contains(roomID, targetID) {
		c.emit(Highlight{RoomID: roomID, MessageID: targetID})
		return nil
	}
	if c.resolver.active {
		return core.ErrResolveInFlight
	}
	endID, ok := c.store.OldestID(roomID)
	if !ok {
		return core.ErrEmptyLog
	}
	c.resolver = resolver{active: true, roomID: roomID, targetID: targetID}
	c.conn.Send(ws.NewGetReplyMessage(targetID, roomID, endID))
	c.log.Debug("reply target not loaded, fetching context",
		slog.Int64("room_id", roomID), slog.Int64("target_id", targetID))
	return nil
}

// retryResolve re-runs resolution after a context page merged. A target that
// is still missing stays pending: the server may return the page in chunks
// bounded by end_id, and the next page retriggers this.
func (c *Client) retryResolve() {
	if !c.resolver.active {
		return
	}
	if !c.store.Contains(c.resolver.roomID, c.resolver.targetID) {
		return
	}
	c.emit(Highlight{RoomID: c.resolver.roomID, MessageID: c.resolver.targetID})
	c.resolver = resolver{}
}

// failResolve terminates resolution after the server flagged the target as
// deleted. No retry: the failure is surfaced once and the pending target is
// dropped.
func (c *Client) failResolve() {
	if !c.resolver.active {
		return
	}
	c.emit(ResolveFailed{RoomID: c.resolver.roomID, TargetID: c.resolver.targetID})
	c.resolver = resolver{}
}
