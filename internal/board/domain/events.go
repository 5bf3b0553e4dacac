package domain

import (
	"encoding/json"
	"fmt"
)

// Broadcast event names on the drawing topic
const (
	// EventDraw broadcast of one sealed stroke
	EventDraw = "draw"
	// EventClear broadcast of a full-room clear
	EventClear = "clear"
)

// Tables whose committed rows are replayed through the change feed
const (
	// TableDrawingData persisted strokes
	TableDrawingData = "drawing_data"
	// TableChatMessages persisted chat messages
	TableChatMessages = "chat_messages"
	// TableChatReactions persisted message reactions
	TableChatReactions = "chat_message_reactions"
)

// DrawEventKind discriminates the DrawEvent union
type DrawEventKind string

const (
	// DrawEventDraw a peer sealed a stroke
	DrawEventDraw DrawEventKind = EventDraw
	// DrawEventClear a peer cleared the room
	DrawEventClear DrawEventKind = EventClear
)

// DrawEvent tagged union of drawing broadcasts, validated at the channel
// boundary before reaching the drawing engine.
type DrawEvent struct {
	Kind      DrawEventKind
	Stroke    Stroke // set when Kind == DrawEventDraw
	ClearedBy string // set when Kind == DrawEventClear
}

type drawPayload struct {
	Points []DrawPoint `json:"points"`
}

type clearPayload struct {
	ClearedBy string `json:"cleared_by"`
}

// ParseDrawEvent decodes and validates a raw drawing broadcast. Unknown
// event names and malformed payloads are rejected here so the engine only
// ever sees well-formed events.
func ParseDrawEvent(event string, payload json.RawMessage) (DrawEvent, error) {
	switch event {
	case EventDraw:
		var p drawPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return DrawEvent{}, fmt.Errorf("decode draw payload: %w", err)
		}
		stroke := Stroke{Points: p.Points}
		if err := stroke.Validate(); err != nil {
			return DrawEvent{}, fmt.Errorf("invalid draw payload: %w", err)
		}
		return DrawEvent{Kind: DrawEventDraw, Stroke: stroke}, nil

	case EventClear:
		var p clearPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return DrawEvent{}, fmt.Errorf("decode clear payload: %w", err)
		}
		return DrawEvent{Kind: DrawEventClear, ClearedBy: p.ClearedBy}, nil

	default:
		return DrawEvent{}, fmt.Errorf("unknown drawing event %q", event)
	}
}

// DrawBroadcastPayload builds the wire payload for a sealed stroke.
func DrawBroadcastPayload(stroke Stroke) any {
	return drawPayload{Points: stroke.Points}
}

// ClearBroadcastPayload builds the wire payload for a room clear.
func ClearBroadcastPayload(clearedBy string) any {
	return clearPayload{ClearedBy: clearedBy}
}

// MessageChange committed chat_messages row replayed on the change feed
type MessageChange struct {
	ID          string `json:"id"`
	RoomName    string `json:"room_name"`
	Content     string `json:"content"`
	DisplayName string `json:"display_name"`
	UserID      string `json:"user_id"`
	CreatedAt   string `json:"created_at"` // RFC3339Nano
}

// ReactionChange committed chat_message_reactions insert or delete
type ReactionChange struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Reaction  string `json:"reaction"`
	Removed   bool   `json:"removed"`
}

// StrokeChange committed drawing_data row replayed on the change feed
type StrokeChange struct {
	RoomName  string      `json:"room_name"`
	Points    []DrawPoint `json:"points"`
	CreatedBy string      `json:"created_by"`
}
