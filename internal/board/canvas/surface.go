package canvas

import (
	"errors"
	"image"
	"image/color"
	"math"
	"math/rand"
	"time"

	"collab_board_service/internal/board/domain"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Background the board's canvas fill color. Eraser strokes paint this color
// over existing pixels instead of truly clearing them.
const Background = "#e8f5e9"

// spray tuning: density scales with brush size, dots are rejection-sampled
// inside the brush radius, opacity is reduced so overlapping passes build
// up gradually.
const (
	sprayDensityFactor = 2
	sprayDotRadius     = 0.5
	sprayOpacityFactor = 0.4
)

// Surface is a raster canvas addressed in logical coordinates and backed by
// a device-pixel buffer scaled by the device pixel ratio. All drawing is
// synchronous; the surface carries no locking and is owned by one session.
type Surface struct {
	img    *image.RGBA
	width  float64 // logical
	height float64 // logical
	scale  float64 // device pixel ratio
	bg     color.RGBA
	rng    *rand.Rand
}

// NewSurface allocates a surface of the given logical size, filled with the
// board background.
func NewSurface(width, height, scale float64) *Surface {
	s := &Surface{
		width:  width,
		height: height,
		scale:  scale,
		bg:     mustParseHex(Background),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.img = image.NewRGBA(image.Rect(0, 0, int(math.Ceil(width*scale)), int(math.Ceil(height*scale))))
	s.Clear()
	return s
}

// Size returns the logical dimensions.
func (s *Surface) Size() (float64, float64) { return s.width, s.height }

// Image exposes the backing pixels, used by tests and snapshot encoding.
func (s *Surface) Image() *image.RGBA { return s.img }

// Clear fills the whole surface with the background color.
func (s *Surface) Clear() {
	b := s.img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			s.img.SetRGBA(x, y, s.bg)
		}
	}
}

// Resize reallocates the buffer for a new logical size and scale and resets
// it to the background. The caller replays its stroke cache afterwards;
// stroke coordinates are logical so they land proportionally.
func (s *Surface) Resize(width, height, scale float64) {
	s.width = width
	s.height = height
	s.scale = scale
	s.img = image.NewRGBA(image.Rect(0, 0, int(math.Ceil(width*scale)), int(math.Ceil(height*scale))))
	s.Clear()
}

// DrawStroke renders one sealed stroke: style applied once from the first
// point, then point-to-point segments. Eraser strokes paint the background
// color; spray scatters dots around every recorded point.
func (s *Surface) DrawStroke(stroke domain.Stroke) error {
	style, ok := stroke.Style()
	if !ok {
		return errors.New("empty stroke")
	}

	if style.Tool == domain.ToolSpray {
		for _, p := range stroke.Points {
			s.SprayAt(p.X, p.Y, style)
		}
		return nil
	}

	col, err := s.strokeColor(style)
	if err != nil {
		return err
	}

	first := stroke.Points[0]
	s.fillCircle(first.X, first.Y, style.Size/2, col, style.Opacity)

	for i := 1; i < len(stroke.Points); i++ {
		s.strokeSegment(stroke.Points[i-1], stroke.Points[i], style.Size, col, style.Opacity)
	}
	return nil
}

// DrawSegment renders the live segment between the previous and current
// pointer positions while a stroke is in progress.
func (s *Surface) DrawSegment(from, to domain.DrawPoint, style domain.DrawPoint) error {
	if style.Tool == domain.ToolSpray {
		s.SprayAt(to.X, to.Y, style)
		return nil
	}
	col, err := s.strokeColor(style)
	if err != nil {
		return err
	}
	s.strokeSegment(from, to, style.Size, col, style.Opacity)
	return nil
}

// DrawDot renders the initial mark of a new stroke at pointer-down.
func (s *Surface) DrawDot(p domain.DrawPoint) error {
	if p.Tool == domain.ToolSpray {
		s.SprayAt(p.X, p.Y, p)
		return nil
	}
	col, err := s.strokeColor(p)
	if err != nil {
		return err
	}
	s.fillCircle(p.X, p.Y, p.Size/2, col, p.Opacity)
	return nil
}

// SprayAt scatters density dots inside the brush radius around (x, y) using
// rejection sampling. Replays are intentionally nondeterministic: the same
// points yield the same path, not the same pixels.
func (s *Surface) SprayAt(x, y float64, style domain.DrawPoint) {
	col, err := s.strokeColor(style)
	if err != nil {
		return
	}
	radius := style.Size
	density := int(style.Size * sprayDensityFactor)
	opacity := style.Opacity * sprayOpacityFactor

	for i := 0; i < density; i++ {
		offsetX := (s.rng.Float64()*2 - 1) * radius
		offsetY := (s.rng.Float64()*2 - 1) * radius
		if math.Sqrt(offsetX*offsetX+offsetY*offsetY) > radius {
			continue
		}
		s.fillCircle(x+offsetX, y+offsetY, sprayDotRadius, col, opacity)
	}
}

// DrawText paints a one-off text label at a clicked position. Text is
// local-only decoration: never persisted, never broadcast.
func (s *Surface) DrawText(text string, x, y float64, colorHex string, opacity float64) error {
	col, err := parseHex(colorHex)
	if err != nil {
		return err
	}
	col.A = uint8(clamp01(opacity) * 255)

	d := font.Drawer{
		Dst:  s.img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot: fixed.Point26_6{
			X: fixed.Int26_6(x * s.scale * 64),
			Y: fixed.Int26_6(y * s.scale * 64),
		},
	}
	d.DrawString(text)
	return nil
}

func (s *Surface) strokeColor(style domain.DrawPoint) (color.RGBA, error) {
	if style.Tool == domain.ToolEraser {
		return s.bg, nil
	}
	return parseHex(style.Color)
}

// strokeSegment stamps round brush marks along the segment, close enough
// together to read as a continuous round-capped line.
func (s *Surface) strokeSegment(from, to domain.DrawPoint, size float64, col color.RGBA, opacity float64) {
	dx := to.X - from.X
	dy := to.Y - from.Y
	dist := math.Hypot(dx, dy)

	step := 0.5 / s.scale
	if step <= 0 {
		step = 0.5
	}
	steps := int(dist/step) + 1

	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		s.fillCircle(from.X+dx*t, from.Y+dy*t, size/2, col, opacity)
	}
}

// fillCircle paints a filled disc at a logical center with a logical radius.
func (s *Surface) fillCircle(cx, cy, r float64, col color.RGBA, opacity float64) {
	if r <= 0 {
		r = 0.5
	}
	dcx := cx * s.scale
	dcy := cy * s.scale
	dr := r * s.scale

	minX := int(math.Floor(dcx - dr))
	maxX := int(math.Ceil(dcx + dr))
	minY := int(math.Floor(dcy - dr))
	maxY := int(math.Ceil(dcy + dr))

	b := s.img.Bounds()
	for y := minY; y <= maxY; y++ {
		if y < b.Min.Y || y >= b.Max.Y {
			continue
		}
		for x := minX; x <= maxX; x++ {
			if x < b.Min.X || x >= b.Max.X {
				continue
			}
			fx := float64(x) + 0.5 - dcx
			fy := float64(y) + 0.5 - dcy
			if fx*fx+fy*fy > dr*dr {
				continue
			}
			s.blendPixel(x, y, col, opacity)
		}
	}
}

// blendPixel alpha-composites col over the existing pixel.
func (s *Surface) blendPixel(x, y int, col color.RGBA, opacity float64) {
	a := clamp01(opacity)
	if a >= 1 {
		s.img.SetRGBA(x, y, color.RGBA{R: col.R, G: col.G, B: col.B, A: 255})
		return
	}
	dst := s.img.RGBAAt(x, y)
	blend := func(src, d uint8) uint8 {
		return uint8(float64(src)*a + float64(d)*(1-a) + 0.5)
	}
	s.img.SetRGBA(x, y, color.RGBA{
		R: blend(col.R, dst.R),
		G: blend(col.G, dst.G),
		B: blend(col.B, dst.B),
		A: 255,
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func parseHex(hex string) (color.RGBA, error) {
	if len(hex) != 7 || hex[0] != '#' {
		return color.RGBA{}, errors.New("invalid color " + hex)
	}
	var out [3]uint8
	for i := 0; i < 3; i++ {
		hi, ok1 := hexDigit(hex[1+i*2])
		lo, ok2 := hexDigit(hex[2+i*2])
		if !ok1 || !ok2 {
			return color.RGBA{}, errors.New("invalid color " + hex)
		}
		out[i] = hi<<4 | lo
	}
	return color.RGBA{R: out[0], G: out[1], B: out[2], A: 255}, nil
}

func hexDigit(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func mustParseHex(hex string) color.RGBA {
	col, err := parseHex(hex)
	if err != nil {
		panic(err)
	}
	return col
}
