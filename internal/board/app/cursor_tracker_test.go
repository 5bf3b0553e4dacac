package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"collab_board_service/internal/board/domain"

	"github.com/stretchr/testify/assert"
)

func TestCursorTracker_SyncReplacesState(t *testing.T) {
	ch := newFakeRoomChannel("me")
	tr := NewCursorTracker(ch, "alice", "#e57373")

	ch.deliverSync(map[string]any{
		"me":     domain.Cursor{X: 1, Y: 1, Name: "alice"},
		"peer-1": domain.Cursor{X: 10, Y: 20, Name: "bob", Color: "#ff0000"},
		"peer-2": domain.Cursor{X: 30, Y: 40, Name: "carol"},
	})

	cursors := tr.Cursors()
	assert.Len(t, cursors, 2)
	assert.NotContains(t, cursors, "me")
	assert.Equal(t, "bob", cursors["peer-1"].Name)
}

func TestCursorTracker_JoinAndLeave(t *testing.T) {
	ch := newFakeRoomChannel("me")
	tr := NewCursorTracker(ch, "alice", "#e57373")

	ch.deliverJoin("peer-1", domain.Cursor{X: 5, Y: 5, Name: "bob"})
	assert.Len(t, tr.Cursors(), 1)

	// a join for a known key is a move
	ch.deliverJoin("peer-1", domain.Cursor{X: 7, Y: 9, Name: "bob"})
	cursors := tr.Cursors()
	assert.Len(t, cursors, 1)
	assert.Equal(t, 7.0, cursors["peer-1"].X)

	ch.deliverLeave("peer-1")
	assert.Empty(t, tr.Cursors())
}

func TestCursorTracker_MalformedStateDropped(t *testing.T) {
	ch := newFakeRoomChannel("me")
	tr := NewCursorTracker(ch, "alice", "#e57373")

	ch.deliverJoin("peer-1", "not a cursor")
	assert.Empty(t, tr.Cursors())
}

func TestCursorTracker_AnnouncePublishesInitialPresence(t *testing.T) {
	ctx := context.Background()
	ch := newFakeRoomChannel("me")
	tr := NewCursorTracker(ch, "alice", "#e57373")

	assert.NoError(t, tr.Announce(ctx))
	assert.Len(t, ch.tracked, 1)

	var c domain.Cursor
	assert.NoError(t, json.Unmarshal(ch.tracked[0], &c))
	assert.Equal(t, 0.0, c.X)
	assert.Equal(t, 0.0, c.Y)
	assert.Equal(t, "alice", c.Name)
	assert.Equal(t, "#e57373", c.Color)
}

func TestCursorTracker_FirstUpdateAfterAnnounceNotThrottled(t *testing.T) {
	ctx := context.Background()
	ch := newFakeRoomChannel("me")
	tr := NewCursorTracker(ch, "alice", "#e57373")

	assert.NoError(t, tr.Announce(ctx))
	assert.NoError(t, tr.UpdateCursor(ctx, 5, 5))
	assert.Len(t, ch.tracked, 2)
}

func TestCursorTracker_UpdateStampsSessionIdentity(t *testing.T) {
	ctx := context.Background()
	ch := newFakeRoomChannel("me")
	tr := NewCursorTracker(ch, "alice", "#e57373")

	assert.NoError(t, tr.UpdateCursor(ctx, 12, 34))
	assert.Len(t, ch.tracked, 1)

	var c domain.Cursor
	assert.NoError(t, json.Unmarshal(ch.tracked[0], &c))
	assert.Equal(t, 12.0, c.X)
	assert.Equal(t, 34.0, c.Y)
	assert.Equal(t, "alice", c.Name)
	assert.Equal(t, "#e57373", c.Color)
}

func TestCursorTracker_UpdateCursorThrottled(t *testing.T) {
	ctx := context.Background()
	ch := newFakeRoomChannel("me")
	tr := NewCursorTracker(ch, "alice", "#e57373")

	assert.NoError(t, tr.UpdateCursor(ctx, 1, 1))
	assert.NoError(t, tr.UpdateCursor(ctx, 2, 2))
	assert.Len(t, ch.tracked, 1)

	time.Sleep(cursorThrottle + 5*time.Millisecond)
	assert.NoError(t, tr.UpdateCursor(ctx, 3, 3))
	assert.Len(t, ch.tracked, 2)
}

func TestCursorTracker_UpdateRequiresConnection(t *testing.T) {
	ctx := context.Background()
	ch := newFakeRoomChannel("me")
	tr := NewCursorTracker(ch, "alice", "#e57373")
	ch.subscribed = false

	assert.ErrorIs(t, tr.Announce(ctx), domain.ErrNotConnected)
	assert.ErrorIs(t, tr.UpdateCursor(ctx, 1, 1), domain.ErrNotConnected)
}
