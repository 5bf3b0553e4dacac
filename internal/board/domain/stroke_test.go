package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validPoints(tool Tool, n int) []DrawPoint {
	pts := make([]DrawPoint, n)
	for i := range pts {
		pts[i] = DrawPoint{
			X: float64(i), Y: float64(i),
			Color:   "#112233",
			Size:    4,
			Opacity: 0.8,
			Tool:    tool,
		}
	}
	return pts
}

func TestStrokeValidate(t *testing.T) {
	assert.NoError(t, Stroke{Points: validPoints(ToolBrush, 2)}.Validate())
	assert.NoError(t, Stroke{Points: validPoints(ToolEraser, 5)}.Validate())
	assert.NoError(t, Stroke{Points: validPoints(ToolSpray, 1)}.Validate())

	assert.Error(t, Stroke{}.Validate())
	assert.Error(t, Stroke{Points: validPoints(ToolBrush, 1)}.Validate())
	assert.Error(t, Stroke{Points: validPoints(ToolText, 2)}.Validate())
	assert.Error(t, Stroke{Points: validPoints("crayon", 2)}.Validate())
}

func TestStrokeValidate_StyleBounds(t *testing.T) {
	pts := validPoints(ToolBrush, 2)
	pts[0].Size = 0
	pts[1].Size = 0
	assert.Error(t, Stroke{Points: pts}.Validate())

	pts = validPoints(ToolBrush, 2)
	pts[0].Opacity = 1.5
	pts[1].Opacity = 1.5
	assert.Error(t, Stroke{Points: pts}.Validate())
}

func TestStrokeValidate_UniformStyle(t *testing.T) {
	pts := validPoints(ToolBrush, 3)
	pts[2].Color = "#ff0000"
	assert.Error(t, Stroke{Points: pts}.Validate())

	pts = validPoints(ToolBrush, 3)
	pts[1].Size = 9
	assert.Error(t, Stroke{Points: pts}.Validate())

	// timestamps may differ, they are sample times not style
	pts = validPoints(ToolBrush, 3)
	pts[0].Timestamp = 100
	pts[2].Timestamp = 250
	assert.NoError(t, Stroke{Points: pts}.Validate())
}

func TestStrokeStyle(t *testing.T) {
	s := Stroke{Points: validPoints(ToolBrush, 2)}
	style, ok := s.Style()
	assert.True(t, ok)
	assert.Equal(t, ToolBrush, style.Tool)

	_, ok = Stroke{}.Style()
	assert.False(t, ok)
}

func TestParseDrawEvent(t *testing.T) {
	raw, _ := json.Marshal(DrawBroadcastPayload(Stroke{Points: validPoints(ToolBrush, 2)}))
	ev, err := ParseDrawEvent(EventDraw, raw)
	assert.NoError(t, err)
	assert.Equal(t, DrawEventDraw, ev.Kind)
	assert.Len(t, ev.Stroke.Points, 2)

	raw, _ = json.Marshal(ClearBroadcastPayload("session-9"))
	ev, err = ParseDrawEvent(EventClear, raw)
	assert.NoError(t, err)
	assert.Equal(t, DrawEventClear, ev.Kind)
	assert.Equal(t, "session-9", ev.ClearedBy)

	_, err = ParseDrawEvent("resize", raw)
	assert.Error(t, err)
	_, err = ParseDrawEvent(EventDraw, json.RawMessage(`{"points":`))
	assert.Error(t, err)
	_, err = ParseDrawEvent(EventDraw, json.RawMessage(`{"points":[]}`))
	assert.Error(t, err)
}
