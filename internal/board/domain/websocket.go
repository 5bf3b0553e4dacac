package domain

// WSAction websocket request action names
type WSAction string

const (
	// DrawStart pointer-down, begins a stroke
	DrawStart WSAction = "draw_start"
	// DrawMove pointer-move while drawing
	DrawMove WSAction = "draw_move"
	// DrawEnd pointer-up, seals and shares the stroke
	DrawEnd WSAction = "draw_end"
	// DrawText place text locally
	DrawText WSAction = "draw_text"
	// ClearBoard wipe the room for everyone
	ClearBoard WSAction = "clear_board"
	// ResizeBoard resize the session surface and replay history
	ResizeBoard WSAction = "resize_board"
	// CursorMove update this session's presence cursor
	CursorMove WSAction = "cursor_move"
	// GetCursors snapshot of other sessions' cursors
	GetCursors WSAction = "get_cursors"
	// GetStrokes snapshot of the sealed stroke history
	GetStrokes WSAction = "get_strokes"
	// SendMessage persist and share one chat message
	SendMessage WSAction = "send_message"
	// FetchMessages page older chat history
	FetchMessages WSAction = "fetch_messages"
	// GetMessages snapshot of the chat timeline
	GetMessages WSAction = "get_messages"
	// ToggleReaction flip the like on one message
	ToggleReaction WSAction = "toggle_reaction"
	// SetPinned record whether the session follows new messages
	SetPinned WSAction = "set_pinned"
)

// WSRequest inbound websocket frame, fields used per action
type WSRequest struct {
	Action string `json:"action"`

	// draw_* / cursor_move
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	Color     string  `json:"color,omitempty"`
	Size      float64 `json:"size,omitempty"`
	Opacity   float64 `json:"opacity,omitempty"`
	Tool      string  `json:"tool,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`

	// draw_text
	Text string `json:"text,omitempty"`

	// resize_board
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Scale  float64 `json:"scale,omitempty"`

	// chat
	Content   string `json:"content,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Pinned    bool   `json:"pinned,omitempty"`
}

// WSResponse outbound websocket frame, also used for server pushes
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload"`
	Error   string                 `json:"error,omitempty"`
}

// push action names for server initiated frames
const (
	// PushDraw a peer sealed a stroke
	PushDraw = "push_draw"
	// PushClear a peer cleared the board
	PushClear = "push_clear"
	// PushMessage a new chat message landed
	PushMessage = "push_message"
	// PushCursor a peer cursor joined or moved
	PushCursor = "push_cursor"
	// PushCursorLeave a peer session departed
	PushCursorLeave = "push_cursor_leave"
)
