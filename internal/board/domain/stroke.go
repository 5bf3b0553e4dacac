package domain

import "errors"

// Tool drawing tool carried by each point of a stroke
type Tool string

const (
	// ToolBrush solid freehand line
	ToolBrush Tool = "brush"
	// ToolEraser paints the canvas background color over existing pixels
	ToolEraser Tool = "eraser"
	// ToolSpray scattered-dot texture around each recorded point
	ToolSpray Tool = "spray"
	// ToolText immediate local text draw, never persisted or broadcast
	ToolText Tool = "text"
)

// DrawPoint one sampled pointer position with the stroke style attached
type DrawPoint struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Color     string  `json:"color"`
	Size      float64 `json:"size"`
	Opacity   float64 `json:"opacity"`
	Tool      Tool    `json:"tool"`
	Timestamp int64   `json:"timestamp"` // unix ms
}

// Stroke one sealed freehand drawing action. All points share the style
// fixed at stroke start; a stroke is immutable once sealed.
type Stroke struct {
	Points []DrawPoint `json:"points"`
}

// Cursor ephemeral per-session presence state
type Cursor struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Name  string  `json:"name"`
	Color string  `json:"color"`
}

// Style returns the stroke-level style, taken from the first point.
func (s Stroke) Style() (DrawPoint, bool) {
	if len(s.Points) == 0 {
		return DrawPoint{}, false
	}
	return s.Points[0], true
}

// Validate checks the stroke invariants: at least one point (spray) or two
// (brush/eraser), uniform style across points, sane size/opacity, and no
// text tool (text actions are not strokes).
func (s Stroke) Validate() error {
	if len(s.Points) == 0 {
		return errors.New("stroke has no points")
	}

	style := s.Points[0]
	switch style.Tool {
	case ToolSpray:
		// single point is enough
	case ToolBrush, ToolEraser:
		if len(s.Points) < 2 {
			return errors.New("line stroke needs at least 2 points")
		}
	case ToolText:
		return errors.New("text actions are not persistable strokes")
	default:
		return errors.New("unknown tool: " + string(style.Tool))
	}

	if style.Size <= 0 {
		return errors.New("stroke size must be positive")
	}
	if style.Opacity < 0 || style.Opacity > 1 {
		return errors.New("stroke opacity out of range")
	}

	for _, p := range s.Points[1:] {
		if p.Color != style.Color || p.Size != style.Size ||
			p.Opacity != style.Opacity || p.Tool != style.Tool {
			return errors.New("stroke style must be uniform")
		}
	}

	return nil
}
