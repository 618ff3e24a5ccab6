// Package overlay provides an in-memory drawing surface for detection
// boxes and labels, plus a snapshot writer that persists the annotated
// layer when a person is detected.
package overlay

import (
	"image"
	"image/color"
	"strconv"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/sentinelvision/sentinel-go/internal/videocore"
)

const labelFontSize = 13

var labelFont *truetype.Font

func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Surface draws prediction overlays onto an RGBA canvas. It mirrors the
// transparent annotation layer the predictions are composited on: the
// camera frame itself is never painted, only boxes and labels.
type Surface struct {
	mu   sync.Mutex
	dc   *gg.Context
	face font.Face
}

// NewSurface returns a transparent surface of the given pixel dimensions.
func NewSurface(width, height int) *Surface {
	dc := gg.NewContext(width, height)
	face := truetype.NewFace(labelFont, &truetype.Options{Size: labelFontSize})
	dc.SetFontFace(face)
	s := &Surface{dc: dc, face: face}
	s.Clear()
	return s
}

// Clear erases the surface back to full transparency.
func (s *Surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dc.SetRGBA(0, 0, 0, 0)
	s.dc.Clear()
}

// StrokeRect draws a box outline in the given hex color.
func (s *Surface) StrokeRect(box videocore.BoundingBox, hexColor string, lineWidth float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dc.SetColor(parseHexColor(hexColor))
	s.dc.SetLineWidth(lineWidth)
	s.dc.DrawRectangle(box.X, box.Y, box.Width, box.Height)
	s.dc.Stroke()
}

// FillRect draws a filled rectangle. Alpha scales the color's opacity,
// 1 is fully opaque.
func (s *Surface) FillRect(x, y, width, height float64, hexColor string, alpha float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := parseHexColor(hexColor)
	c.A = clampAlpha(alpha)
	s.dc.SetColor(c)
	s.dc.DrawRectangle(x, y, width, height)
	s.dc.Fill()
}

// FillText draws label text with its top-left corner at the given position.
func (s *Surface) FillText(text string, x, y float64, hexColor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dc.SetColor(parseHexColor(hexColor))
	s.dc.DrawString(text, x+2, y+labelFontSize)
}

// MeasureText returns the painted size of the given text.
func (s *Surface) MeasureText(text string) (width, height float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, _ := s.dc.MeasureString(text)
	return w, labelFontSize
}

// Image returns a copy-free view of the current canvas.
func (s *Surface) Image() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dc.Image()
}

// SavePNG writes the current canvas to the given path.
func (s *Surface) SavePNG(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gg.SavePNG(path, s.dc.Image())
}

// parseHexColor parses a #RRGGBB string. Unparseable colors come out
// opaque white rather than failing the draw call.
func parseHexColor(hex string) color.NRGBA {
	if len(hex) != 7 || hex[0] != '#' {
		return color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	}
	return color.NRGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 0xFF,
	}
}

func clampAlpha(alpha float64) uint8 {
	if alpha < 0 {
		return 0
	}
	if alpha > 1 {
		return 0xFF
	}
	return uint8(alpha * 0xFF)
}
