package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"collab_board_service/internal/board/channel"
	"collab_board_service/internal/board/domain"
	"collab_board_service/pkg/logger"

	"go.uber.org/zap"
)

// cursorThrottle caps presence updates to roughly one per display frame.
const cursorThrottle = 16 * time.Millisecond

// CursorTracker mirrors the live cursor of every other session in the room
// through channel presence and pushes this session's cursor at a bounded
// rate. The session's display name and color are fixed at construction and
// stamped onto every tracked state, so peers never see client-supplied
// identity.
type CursorTracker struct {
	ch    channel.RoomChannel
	name  string
	color string

	mu       sync.Mutex
	cursors  map[string]domain.Cursor
	lastPush time.Time
}

// NewCursorTracker wires presence handlers onto ch. Handlers must be
// registered before the channel subscribes.
func NewCursorTracker(ch channel.RoomChannel, name, color string) *CursorTracker {
	t := &CursorTracker{
		ch:      ch,
		name:    name,
		color:   color,
		cursors: make(map[string]domain.Cursor),
	}
	ch.OnPresenceSync(t.onSync)
	ch.OnPresenceJoin(t.onJoin)
	ch.OnPresenceLeave(t.onLeave)
	return t
}

func (t *CursorTracker) onSync(states map[string]json.RawMessage) {
	next := make(map[string]domain.Cursor, len(states))
	for key, raw := range states {
		var c domain.Cursor
		if err := json.Unmarshal(raw, &c); err != nil {
			logger.Log.Warn("drop malformed cursor state", zap.String("session", key), zap.Error(err))
			continue
		}
		next[key] = c
	}
	t.mu.Lock()
	t.cursors = next
	t.mu.Unlock()
}

func (t *CursorTracker) onJoin(key string, state json.RawMessage) {
	var c domain.Cursor
	if err := json.Unmarshal(state, &c); err != nil {
		logger.Log.Warn("drop malformed cursor state", zap.String("session", key), zap.Error(err))
		return
	}
	t.mu.Lock()
	t.cursors[key] = c
	t.mu.Unlock()
}

func (t *CursorTracker) onLeave(key string) {
	t.mu.Lock()
	delete(t.cursors, key)
	t.mu.Unlock()
}

// Announce tracks this session's initial presence at the origin. Called
// once right after the channel subscribes so the session is visible to
// peers before the pointer ever moves. Does not consume the throttle
// window; the first real cursor update always goes out.
func (t *CursorTracker) Announce(ctx context.Context) error {
	return t.ch.Track(ctx, domain.Cursor{Name: t.name, Color: t.color})
}

// UpdateCursor tracks this session's cursor position. Calls arriving faster
// than the throttle window are silently dropped; the next update outside
// the window carries the latest position anyway.
func (t *CursorTracker) UpdateCursor(ctx context.Context, x, y float64) error {
	t.mu.Lock()
	now := time.Now()
	if now.Sub(t.lastPush) < cursorThrottle {
		t.mu.Unlock()
		return nil
	}
	t.lastPush = now
	t.mu.Unlock()

	return t.ch.Track(ctx, domain.Cursor{X: x, Y: y, Name: t.name, Color: t.color})
}

// Cursors returns every other session's cursor keyed by session. The own
// session is excluded so a client never renders its own remote ghost.
func (t *CursorTracker) Cursors() map[string]domain.Cursor {
	own := t.ch.SessionKey()
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]domain.Cursor, len(t.cursors))
	for key, c := range t.cursors {
		if key == own {
			continue
		}
		out[key] = c
	}
	return out
}
