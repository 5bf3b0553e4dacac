package app

import (
	"context"
	"encoding/json"
	"sync"

	"collab_board_service/internal/board/canvas"
	"collab_board_service/internal/board/channel"
	"collab_board_service/internal/board/domain"
	"collab_board_service/internal/board/repository"
	"collab_board_service/pkg/logger"

	"go.uber.org/zap"
)

// DrawingEngine owns one session's view of a room's shared canvas. It
// renders local pointer input immediately, seals finished strokes into the
// room history and applies remote strokes from the broadcast stream.
//
// The engine is idle until Hydrate replays the persisted history; remote
// frames arriving before that are dropped, the history load includes them.
type DrawingEngine struct {
	room    string
	repo    repository.StrokeRepository
	ch      channel.RoomChannel
	surface *canvas.Surface

	mu       sync.Mutex
	hydrated bool
	drawing  bool
	current  domain.Stroke
	strokes  []domain.Stroke
}

// NewDrawingEngine wires the draw and clear broadcast handlers onto ch.
// Handlers must be registered before the channel subscribes.
func NewDrawingEngine(room string, repo repository.StrokeRepository, ch channel.RoomChannel, surface *canvas.Surface) *DrawingEngine {
	e := &DrawingEngine{
		room:    room,
		repo:    repo,
		ch:      ch,
		surface: surface,
	}
	ch.OnBroadcast(domain.EventDraw, e.onRemoteFrame)
	ch.OnBroadcast(domain.EventClear, e.onRemoteFrame)
	return e
}

// Hydrate replays the persisted stroke history onto the surface and arms
// remote frame handling. Safe to call once per session.
func (e *DrawingEngine) Hydrate(ctx context.Context) error {
	strokes, err := e.repo.LoadStrokes(ctx, e.room)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.surface.Clear()
	for _, s := range strokes {
		if err := e.surface.DrawStroke(s); err != nil {
			logger.Log.Warn("skip unrenderable stroke", zap.String("room", e.room), zap.Error(err))
			continue
		}
		e.strokes = append(e.strokes, s)
	}
	e.hydrated = true
	return nil
}

// StartStroke begins a stroke at the first pointer position. The dot is
// rendered immediately so a click leaves a mark before any movement.
func (e *DrawingEngine) StartStroke(p domain.DrawPoint) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.Tool == domain.ToolText {
		// text is placed through DrawText, never as a stroke
		return nil
	}

	e.drawing = true
	e.current = domain.Stroke{Points: []domain.DrawPoint{p}}

	if p.Tool == domain.ToolSpray {
		e.surface.SprayAt(p.X, p.Y, p)
		return nil
	}
	return e.surface.DrawDot(p)
}

// MovePointer extends the in-progress stroke and renders the new segment.
// Ignored while idle so stray move frames cannot fabricate strokes.
func (e *DrawingEngine) MovePointer(p domain.DrawPoint) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.drawing {
		return nil
	}

	last := e.current.Points[len(e.current.Points)-1]
	e.current.Points = append(e.current.Points, p)

	if p.Tool == domain.ToolSpray {
		e.surface.SprayAt(p.X, p.Y, p)
		return nil
	}
	return e.surface.DrawSegment(last, p, p)
}

// EndStroke seals the in-progress stroke: it joins the local history, is
// persisted, then broadcast. A persistence failure is logged and the stroke
// still broadcasts, so peers stay current even when history diverges.
func (e *DrawingEngine) EndStroke(ctx context.Context) error {
	e.mu.Lock()
	if !e.drawing {
		e.mu.Unlock()
		return nil
	}
	e.drawing = false
	stroke := e.current
	e.current = domain.Stroke{}

	style, _ := stroke.Style()
	if style.Tool != domain.ToolSpray && len(stroke.Points) < 2 {
		// a click without movement never seals
		e.mu.Unlock()
		return nil
	}
	e.strokes = append(e.strokes, stroke)
	e.mu.Unlock()

	if err := e.repo.AppendStroke(ctx, e.room, stroke, e.ch.SessionKey()); err != nil {
		logger.Log.Error("stroke persist failed", zap.String("room", e.room), zap.Error(err))
	}

	return e.ch.Broadcast(ctx, domain.EventDraw, domain.DrawBroadcastPayload(stroke))
}

// Clear wipes the room for everyone: local surface, persisted history and a
// clear broadcast to peers.
func (e *DrawingEngine) Clear(ctx context.Context) error {
	e.mu.Lock()
	e.drawing = false
	e.current = domain.Stroke{}
	e.strokes = nil
	e.surface.Clear()
	e.mu.Unlock()

	if err := e.repo.ClearRoom(ctx, e.room); err != nil {
		return err
	}
	return e.ch.Broadcast(ctx, domain.EventClear, domain.ClearBroadcastPayload(e.ch.SessionKey()))
}

// DrawText renders text onto this session's surface only. Text never joins
// the stroke history and never reaches peers, so it does not survive a
// replay.
func (e *DrawingEngine) DrawText(text string, x, y float64, colorHex string, opacity float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.surface.DrawText(text, x, y, colorHex, opacity)
}

// Resize resizes the surface and replays the cached history so nothing is
// lost when the viewport changes.
func (e *DrawingEngine) Resize(width, height, scale float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.surface.Resize(width, height, scale)
	for _, s := range e.strokes {
		if err := e.surface.DrawStroke(s); err != nil {
			logger.Log.Warn("skip unrenderable stroke", zap.String("room", e.room), zap.Error(err))
		}
	}
}

// Strokes returns a copy of the sealed stroke history this session holds.
func (e *DrawingEngine) Strokes() []domain.Stroke {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Stroke(nil), e.strokes...)
}

// Surface exposes the rendered raster for snapshots.
func (e *DrawingEngine) Surface() *canvas.Surface { return e.surface }

// onRemoteFrame applies a peer's draw or clear broadcast. Frames from this
// session are skipped, the local render already happened point by point.
func (e *DrawingEngine) onRemoteFrame(sender, event string, payload json.RawMessage) {
	if sender == e.ch.SessionKey() {
		return
	}

	ev, err := domain.ParseDrawEvent(event, payload)
	if err != nil {
		logger.Log.Warn("drop malformed drawing frame", zap.String("room", e.room), zap.Error(err))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.hydrated {
		return
	}

	switch ev.Kind {
	case domain.DrawEventDraw:
		if err := e.surface.DrawStroke(ev.Stroke); err != nil {
			logger.Log.Warn("skip unrenderable stroke", zap.String("room", e.room), zap.Error(err))
			return
		}
		e.strokes = append(e.strokes, ev.Stroke)

	case domain.DrawEventClear:
		e.drawing = false
		e.current = domain.Stroke{}
		e.strokes = nil
		e.surface.Clear()
	}
}
