package store

import (
	"log/slog"
	"os"
	"slices"

	"github.com/putto11262002/chatsync/core"
)

// roomLog is the per-room message log. Messages live in an arena keyed by id
// with a separate ordered index, so dedup and the provisional-id swap on
// acknowledgment are map operations instead of linear search-and-splice.
type roomLog struct {
	info       core.Room
	unread     int
	reachedEnd bool
	arena      map[int64]*core.Message
	order      []int64
}

func newRoomLog(info core.Room) *roomLog {
	return &roomLog{
		info:  info,
		arena: make(map[int64]*core.Message),
	}
}

func (r *roomLog) append(msg core.Message) bool {
	if _, ok := r.arena[msg.ID]; ok {
		return false
	}
	m := msg
	r.arena[m.ID] = &m
	r.order = append(r.order, m.ID)
	return true
}

// Store holds every room's log, unread counter, pagination state, and the
// focused-room cursor. It is owned by the engine's event loop: all mutation
// happens from loop turns, so the store carries no lock.
type Store struct {
	rooms   map[int64]*roomLog
	roster  []int64
	focused int64
	logger  *slog.Logger
}

type StoreOption func(*Store)

func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

func New(opts ...StoreOption) *Store {
	s := &Store{
		rooms:   make(map[int64]*roomLog),
		focused: -1,
		logger:  slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitRooms installs the room roster from the server's connection-start
// snapshot. Existing logs for rooms still in the roster are preserved, so a
// reconnect's fresh snapshot does not wipe loaded history.
func (s *Store) InitRooms(rooms []core.Room) {
	roster := make([]int64, 0, len(rooms))
	for _, info := range rooms {
		roster = append(roster, info.ID)
		if r, ok := s.rooms[info.ID]; ok {
			r.info = info
			continue
		}
		s.rooms[info.ID] = newRoomLog(info)
	}
	s.roster = roster
}

// InitUnread installs the unread count and first history page for one room
// from the bulk-unread snapshot. The page must be in chronological order.
func (s *Store) InitUnread(roomID int64, unread int, page []core.Message) error {
	r, ok := s.rooms[roomID]
	if !ok {
		return core.ErrUnknownRoom
	}
	r.unread = unread
	for _, msg := range page {
		r.append(msg)
	}
	return nil
}

// AppendLive appends a live or optimistic message at the tail of its room's
// log. If the room is not focused the unread counter is bumped; the message
// is stored either way. Redelivered messages (same id) are dropped.
func (s *Store) AppendLive(msg core.Message) error {
	r, ok := s.rooms[msg.RoomID]
	if !ok {
		return core.ErrUnknownRoom
	}
	if !r.append(msg) {
		s.logger.Debug("dropping duplicate live message",
			slog.Int64("room_id", msg.RoomID), slog.Int64("message_id", msg.ID))
		return nil
	}
	if msg.RoomID != s.focused {
		r.unread++
	}
	return nil
}

// AppendLocal appends an optimistic own message at the tail. Own sends never
// bump the unread counter, focused or not.
func (s *Store) AppendLocal(msg core.Message) error {
	r, ok := s.rooms[msg.RoomID]
	if !ok {
		return core.ErrUnknownRoom
	}
	r.append(msg)
	return nil
}

// PrependHistory merges an older page at the head of the room's log, keeping
// chronological order and skipping ids that are already loaded. The page must
// be in chronological order. An empty page marks the room's history as fully
// loaded; reachedEnd never reverts within a session.
func (s *Store) PrependHistory(roomID int64, page []core.Message) (int, error) {
	r, ok := s.rooms[roomID]
	if !ok {
		return 0, core.ErrUnknownRoom
	}
	if len(page) == 0 {
		r.reachedEnd = true
		return 0, nil
	}
	head := make([]int64, 0, len(page))
	for _, msg := range page {
		if _, exists := r.arena[msg.ID]; exists {
			continue
		}
		m := msg
		r.arena[m.ID] = &m
		head = append(head, m.ID)
	}
	if len(head) > 0 {
		r.order = append(head, r.order...)
	}
	return len(head), nil
}

// ResolveProvisional rewrites a provisional message id to the server-assigned
// one, preserving the message's position in the log.
func (s *Store) ResolveProvisional(roomID, provisionalID, messageID int64) bool {
	r, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	m, ok := r.arena[provisionalID]
	if !ok {
		return false
	}
	delete(r.arena, provisionalID)
	m.ID = messageID
	r.arena[messageID] = m
	if i := slices.Index(r.order, provisionalID); i >= 0 {
		r.order[i] = messageID
	}
	return true
}

// MarkRead zeroes the unread counter and reports the newest loaded id, which
// the caller forwards to the server as the new read index. ok is false when
// the room is unknown or has no loaded messages.
func (s *Store) MarkRead(roomID int64) (readIndex int64, ok bool) {
	r, exists := s.rooms[roomID]
	if !exists {
		return 0, false
	}
	r.unread = 0
	if len(r.order) == 0 {
		return 0, false
	}
	return r.order[len(r.order)-1], true
}

// Remove deletes one message from a room's log, mirroring a server-side
// deletion done through the REST collaborator.
func (s *Store) Remove(roomID, messageID int64) bool {
	r, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := r.arena[messageID]; !ok {
		return false
	}
	delete(r.arena, messageID)
	if i := slices.Index(r.order, messageID); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return true
}

// Focus marks a room as the one currently on screen. Live arrivals for other
// rooms bump their unread counters instead.
func (s *Store) Focus(roomID int64) {
	s.focused = roomID
}

func (s *Store) Focused() int64 {
	return s.focused
}

// CanRequestHistory reports whether an older-page request may be issued for
// the room: never once reachedEnd is set, and never against an empty log.
func (s *Store) CanRequestHistory(roomID int64) bool {
	r, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	return !r.reachedEnd && len(r.order) > 0
}

// OldestID returns the pagination cursor: the oldest loaded message id.
func (s *Store) OldestID(roomID int64) (int64, bool) {
	r, ok := s.rooms[roomID]
	if !ok || len(r.order) == 0 {
		return 0, false
	}
	return r.order[0], true
}

func (s *Store) ReachedEnd(roomID int64) bool {
	r, ok := s.rooms[roomID]
	return ok && r.reachedEnd
}

func (s *Store) Unread(roomID int64) int {
	r, ok := s.rooms[roomID]
	if !ok {
		return 0
	}
	return r.unread
}

// Room returns the roster record for a room.
func (s *Store) Room(roomID int64) (core.Room, bool) {
	r, ok := s.rooms[roomID]
	if !ok {
		return core.Room{}, false
	}
	return r.info, true
}

// Rooms returns the roster in server order.
func (s *Store) Rooms() []core.Room {
	rooms := make([]core.Room, 0, len(s.roster))
	for _, id := range s.roster {
		if r, ok := s.rooms[id]; ok {
			rooms = append(rooms, r.info)
		}
	}
	return rooms
}

// Contains reports whether a message id is loaded in the room's log.
func (s *Store) Contains(roomID, messageID int64) bool {
	r, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	_, ok = r.arena[messageID]
	return ok
}

// Get returns a copy of one loaded message.
func (s *Store) Get(roomID, messageID int64) (core.Message, bool) {
	r, ok := s.rooms[roomID]
	if !ok {
		return core.Message{}, false
	}
	m, ok := r.arena[messageID]
	if !ok {
		return core.Message{}, false
	}
	return *m, true
}

// Messages returns a copy of the room's log in display order.
func (s *Store) Messages(roomID int64) []core.Message {
	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	msgs := make([]core.Message, 0, len(r.order))
	for _, id := range r.order {
		if m, ok := r.arena[id]; ok {
			msgs = append(msgs, *m)
		}
	}
	return msgs
}

func (s *Store) Len(roomID int64) int {
	r, ok := s.rooms[roomID]
	if !ok {
		return 0
	}
	return len(r.order)
}
