package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/putto11262002/chatsync/core"
)

func newTestStore(roomIDs ...int64) *Store {
	s := New()
	rooms := make([]core.Room, 0, len(roomIDs))
	for _, id := range roomIDs {
		rooms = append(rooms, core.Room{ID: id, Name: fmt.Sprintf("room-%d", id), Type: core.GroupRoom})
	}
	s.InitRooms(rooms)
	return s
}

func msg(roomID, id int64) core.Message {
	return core.Message{
		ID:      id,
		RoomID:  roomID,
		Content: fmt.Sprintf("message %d", id),
		ReplyID: core.NoReply,
	}
}

func ids(msgs []core.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestAppendLive(t *testing.T) {
	t.Run("appends at tail in arrival order", func(t *testing.T) {
		s := newTestStore(1)
		require.NoError(t, s.AppendLive(msg(1, 10)))
		require.NoError(t, s.AppendLive(msg(1, 11)))
		require.NoError(t, s.AppendLive(msg(1, 12)))
		assert.Equal(t, []int64{10, 11, 12}, ids(s.Messages(1)))
	})

	t.Run("unknown room", func(t *testing.T) {
		s := newTestStore(1)
		assert.ErrorIs(t, s.AppendLive(msg(2, 10)), core.ErrUnknownRoom)
	})

	t.Run("bumps unread only for unfocused rooms", func(t *testing.T) {
		s := newTestStore(1, 2)
		s.Focus(1)

		require.NoError(t, s.AppendLive(msg(1, 10)))
		require.NoError(t, s.AppendLive(msg(2, 20)))

		assert.Equal(t, 0, s.Unread(1))
		assert.Equal(t, 1, s.Unread(2))
		// Message for the unfocused room is still stored.
		assert.Equal(t, []int64{20}, ids(s.Messages(2)))
	})

	t.Run("redelivered message is dropped", func(t *testing.T) {
		s := newTestStore(1)
		require.NoError(t, s.AppendLive(msg(1, 10)))
		require.NoError(t, s.AppendLive(msg(1, 10)))
		assert.Equal(t, []int64{10}, ids(s.Messages(1)))
		assert.Equal(t, 1, s.Unread(1))
	})

	t.Run("own optimistic send never bumps unread", func(t *testing.T) {
		s := newTestStore(1)
		require.NoError(t, s.AppendLocal(msg(1, -1)))
		assert.Equal(t, 0, s.Unread(1))
		assert.Equal(t, []int64{-1}, ids(s.Messages(1)))
	})
}

func TestPrependHistory(t *testing.T) {
	t.Run("merges page at head in chronological order", func(t *testing.T) {
		s := newTestStore(3)
		require.NoError(t, s.AppendLive(msg(3, 50)))
		require.NoError(t, s.AppendLive(msg(3, 51)))

		added, err := s.PrependHistory(3, []core.Message{msg(3, 47), msg(3, 48), msg(3, 49)})
		require.NoError(t, err)
		assert.Equal(t, 3, added)
		assert.Equal(t, []int64{47, 48, 49, 50, 51}, ids(s.Messages(3)))

		cursor, ok := s.OldestID(3)
		require.True(t, ok)
		assert.Equal(t, int64(47), cursor)
	})

	t.Run("never introduces a duplicate id", func(t *testing.T) {
		s := newTestStore(3)
		require.NoError(t, s.AppendLive(msg(3, 50)))

		added, err := s.PrependHistory(3, []core.Message{msg(3, 49), msg(3, 50)})
		require.NoError(t, err)
		assert.Equal(t, 1, added)
		assert.Equal(t, []int64{49, 50}, ids(s.Messages(3)))
	})

	t.Run("empty page sets reachedEnd", func(t *testing.T) {
		s := newTestStore(3)
		require.NoError(t, s.AppendLive(msg(3, 50)))

		added, err := s.PrependHistory(3, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, added)
		assert.True(t, s.ReachedEnd(3))
		assert.False(t, s.CanRequestHistory(3))
	})

	t.Run("reachedEnd is monotonic", func(t *testing.T) {
		s := newTestStore(3)
		require.NoError(t, s.AppendLive(msg(3, 50)))
		_, err := s.PrependHistory(3, nil)
		require.NoError(t, err)

		// A late page does not reopen history.
		_, err = s.PrependHistory(3, []core.Message{msg(3, 49)})
		require.NoError(t, err)
		assert.True(t, s.ReachedEnd(3))
	})

	t.Run("unknown room", func(t *testing.T) {
		s := newTestStore(3)
		_, err := s.PrependHistory(4, []core.Message{msg(4, 1)})
		assert.ErrorIs(t, err, core.ErrUnknownRoom)
	})
}

func TestResolveProvisional(t *testing.T) {
	t.Run("rewrites id in place", func(t *testing.T) {
		s := newTestStore(7)
		require.NoError(t, s.AppendLive(msg(7, 10)))
		require.NoError(t, s.AppendLocal(msg(7, -1)))
		require.NoError(t, s.AppendLive(msg(7, 11)))

		require.True(t, s.ResolveProvisional(7, -1, 12))

		assert.Equal(t, []int64{10, 12, 11}, ids(s.Messages(7)),
			"acknowledged message keeps its position in the log")
		assert.False(t, s.Contains(7, -1))
		assert.True(t, s.Contains(7, 12))
	})

	t.Run("unknown provisional id is a no-op", func(t *testing.T) {
		s := newTestStore(7)
		assert.False(t, s.ResolveProvisional(7, -5, 12))
	})
}

func TestMarkRead(t *testing.T) {
	s := newTestStore(1)
	require.NoError(t, s.AppendLive(msg(1, 10)))
	require.NoError(t, s.AppendLive(msg(1, 11)))
	assert.Equal(t, 2, s.Unread(1))

	readIndex, ok := s.MarkRead(1)
	require.True(t, ok)
	assert.Equal(t, int64(11), readIndex)
	assert.Equal(t, 0, s.Unread(1))

	_, ok = s.MarkRead(99)
	assert.False(t, ok)
}

func TestCanRequestHistory(t *testing.T) {
	s := newTestStore(1)
	// Empty log: nothing to anchor the request on.
	assert.False(t, s.CanRequestHistory(1))

	require.NoError(t, s.AppendLive(msg(1, 10)))
	assert.True(t, s.CanRequestHistory(1))

	_, err := s.PrependHistory(1, nil)
	require.NoError(t, err)
	assert.False(t, s.CanRequestHistory(1))
}

func TestRemove(t *testing.T) {
	s := newTestStore(1)
	require.NoError(t, s.AppendLive(msg(1, 10)))
	require.NoError(t, s.AppendLive(msg(1, 11)))

	require.True(t, s.Remove(1, 10))
	assert.Equal(t, []int64{11}, ids(s.Messages(1)))
	assert.False(t, s.Remove(1, 10))
}

func TestInitRooms(t *testing.T) {
	t.Run("fresh roster", func(t *testing.T) {
		s := New()
		s.InitRooms([]core.Room{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}})
		assert.Len(t, s.Rooms(), 2)
	})

	t.Run("reconnect snapshot preserves loaded logs", func(t *testing.T) {
		s := newTestStore(1)
		require.NoError(t, s.AppendLive(msg(1, 10)))

		s.InitRooms([]core.Room{{ID: 1, Name: "renamed"}})

		assert.Equal(t, []int64{10}, ids(s.Messages(1)))
		room, ok := s.Room(1)
		require.True(t, ok)
		assert.Equal(t, "renamed", room.Name)
	})
}

func TestInitUnread(t *testing.T) {
	s := newTestStore(1)
	page := []core.Message{msg(1, 5), msg(1, 6), msg(1, 7)}
	require.NoError(t, s.InitUnread(1, 2, page))

	assert.Equal(t, 2, s.Unread(1))
	assert.Equal(t, []int64{5, 6, 7}, ids(s.Messages(1)))

	assert.ErrorIs(t, s.InitUnread(9, 1, nil), core.ErrUnknownRoom)
}
