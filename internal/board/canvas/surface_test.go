package canvas

import (
	"testing"

	"collab_board_service/internal/board/domain"

	"github.com/stretchr/testify/assert"
)

func stroke(tool domain.Tool, color string, pts ...[2]float64) domain.Stroke {
	points := make([]domain.DrawPoint, len(pts))
	for i, p := range pts {
		points[i] = domain.DrawPoint{
			X: p[0], Y: p[1],
			Color:   color,
			Size:    6,
			Opacity: 1,
			Tool:    tool,
		}
	}
	return domain.Stroke{Points: points}
}

func TestSurface_StartsAsBackground(t *testing.T) {
	s := NewSurface(50, 50, 1)
	px := s.Image().RGBAAt(25, 25)
	assert.EqualValues(t, 0xe8, px.R)
	assert.EqualValues(t, 0xf5, px.G)
	assert.EqualValues(t, 0xe9, px.B)
}

func TestSurface_BrushReplayIsDeterministic(t *testing.T) {
	line := stroke(domain.ToolBrush, "#123456", [2]float64{5, 25}, [2]float64{45, 25})

	a := NewSurface(50, 50, 1)
	b := NewSurface(50, 50, 1)
	assert.NoError(t, a.DrawStroke(line))
	assert.NoError(t, b.DrawStroke(line))

	assert.Equal(t, a.Image().Pix, b.Image().Pix)
}

func TestSurface_EraserPaintsBackground(t *testing.T) {
	s := NewSurface(50, 50, 1)
	assert.NoError(t, s.DrawStroke(stroke(domain.ToolBrush, "#000000", [2]float64{5, 25}, [2]float64{45, 25})))

	px := s.Image().RGBAAt(25, 25)
	assert.EqualValues(t, 0, px.R)

	// eraser color field is ignored, it always paints the background
	assert.NoError(t, s.DrawStroke(stroke(domain.ToolEraser, "#ff00ff", [2]float64{5, 25}, [2]float64{45, 25})))

	px = s.Image().RGBAAt(25, 25)
	assert.EqualValues(t, 0xe8, px.R)
	assert.EqualValues(t, 0xf5, px.G)
	assert.EqualValues(t, 0xe9, px.B)
}

func TestSurface_SprayStaysInsideRadius(t *testing.T) {
	s := NewSurface(100, 100, 1)
	style := domain.DrawPoint{Color: "#000000", Size: 10, Opacity: 1, Tool: domain.ToolSpray}

	for i := 0; i < 50; i++ {
		s.SprayAt(50, 50, style)
	}

	// size is the scatter radius, plus the dot radius at the rim
	img := s.Image()
	bg := mustParseHex(Background)
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			px := img.RGBAAt(x, y)
			if px == bg {
				continue
			}
			dx := float64(x) + 0.5 - 50
			dy := float64(y) + 0.5 - 50
			assert.LessOrEqual(t, dx*dx+dy*dy, (10.0+1.5)*(10.0+1.5),
				"spray pixel outside radius at (%d,%d)", x, y)
		}
	}
}

func TestSurface_ClearRestoresBackground(t *testing.T) {
	s := NewSurface(50, 50, 1)
	assert.NoError(t, s.DrawStroke(stroke(domain.ToolBrush, "#000000", [2]float64{5, 25}, [2]float64{45, 25})))

	s.Clear()

	px := s.Image().RGBAAt(25, 25)
	assert.EqualValues(t, 0xe8, px.R)
}

func TestSurface_ResizeScalesBuffer(t *testing.T) {
	s := NewSurface(50, 50, 1)
	s.Resize(100, 80, 2)

	w, h := s.Size()
	assert.Equal(t, 100.0, w)
	assert.Equal(t, 80.0, h)
	assert.Equal(t, 200, s.Image().Bounds().Dx())
	assert.Equal(t, 160, s.Image().Bounds().Dy())
}

func TestSurface_ScaleMapsLogicalCoordinates(t *testing.T) {
	s := NewSurface(50, 50, 2)
	assert.NoError(t, s.DrawStroke(stroke(domain.ToolBrush, "#000000", [2]float64{10, 10}, [2]float64{40, 10})))

	// logical (25,10) lands at device (50,20)
	px := s.Image().RGBAAt(50, 20)
	assert.EqualValues(t, 0, px.R)
}

func TestSurface_OpacityBlends(t *testing.T) {
	s := NewSurface(50, 50, 1)
	half := domain.Stroke{Points: []domain.DrawPoint{
		{X: 5, Y: 25, Color: "#000000", Size: 6, Opacity: 0.5, Tool: domain.ToolBrush},
		{X: 45, Y: 25, Color: "#000000", Size: 6, Opacity: 0.5, Tool: domain.ToolBrush},
	}}
	assert.NoError(t, s.DrawStroke(half))

	// half black over the light background is visibly darker than both
	px := s.Image().RGBAAt(25, 25)
	assert.Less(t, px.R, uint8(0xe8))
	assert.Greater(t, px.R, uint8(0))
}

func TestSurface_DrawTextMarksPixels(t *testing.T) {
	s := NewSurface(100, 100, 1)
	assert.NoError(t, s.DrawText("hi", 20, 50, "#000000", 1))

	bg := mustParseHex(Background)
	marked := false
	img := s.Image()
	for y := 30; y < 60 && !marked; y++ {
		for x := 15; x < 45; x++ {
			if img.RGBAAt(x, y) != bg {
				marked = true
				break
			}
		}
	}
	assert.True(t, marked, "text left no pixels")
}

func TestSurface_BadColorRejected(t *testing.T) {
	s := NewSurface(50, 50, 1)
	err := s.DrawStroke(stroke(domain.ToolBrush, "not-a-color", [2]float64{5, 25}, [2]float64{45, 25}))
	assert.Error(t, err)
}

func TestParseHex(t *testing.T) {
	col, err := parseHex("#e8f5e9")
	assert.NoError(t, err)
	assert.EqualValues(t, 0xe8, col.R)
	assert.EqualValues(t, 0xf5, col.G)
	assert.EqualValues(t, 0xe9, col.B)

	_, err = parseHex("e8f5e9")
	assert.Error(t, err)
	_, err = parseHex("#xyzxyz")
	assert.Error(t, err)
	_, err = parseHex("#fff")
	assert.Error(t, err)
}
