package flowtest

import (
	"github.com/go-drift/flow/pkg/flow"
	"github.com/go-drift/flow/pkg/graphics"
)

// MockTexture fills its bounds with Color and records each paint.
type MockTexture struct {
	TextureID int64
	Color     graphics.Color

	paintCount  int
	lastBounds  graphics.Rect
	lastFreeze  bool
	lastOpacity float64
}

// NewMockTexture returns a gray texture with id.
func NewMockTexture(id int64) *MockTexture {
	return &MockTexture{TextureID: id, Color: graphics.RGB(128, 128, 128)}
}

func (t *MockTexture) ID() int64 { return t.TextureID }

func (t *MockTexture) Paint(canvas graphics.Canvas, bounds graphics.Rect, freeze bool, opacity float64) {
	t.paintCount++
	t.lastBounds = bounds
	t.lastFreeze = freeze
	t.lastOpacity = opacity
	canvas.DrawRect(bounds, graphics.FillPaint(t.Color.Modulate(opacity)))
}

// PaintCount returns how many times Paint ran.
func (t *MockTexture) PaintCount() int { return t.paintCount }

// LastBounds returns the bounds of the last Paint.
func (t *MockTexture) LastBounds() graphics.Rect { return t.lastBounds }

// LastFreeze returns the freeze flag of the last Paint.
func (t *MockTexture) LastFreeze() bool { return t.lastFreeze }

// LastOpacity returns the opacity of the last Paint.
func (t *MockTexture) LastOpacity() float64 { return t.lastOpacity }

// MockViewEmbedder records platform view calls.
type MockViewEmbedder struct {
	Prerolled  []int64
	Composited []int64
	Params     map[int64]flow.EmbeddedViewParams
}

// NewMockViewEmbedder returns an empty embedder.
func NewMockViewEmbedder() *MockViewEmbedder {
	return &MockViewEmbedder{Params: make(map[int64]flow.EmbeddedViewParams)}
}

func (e *MockViewEmbedder) PrerollPlatformView(viewID int64, params flow.EmbeddedViewParams) {
	e.Prerolled = append(e.Prerolled, viewID)
	e.Params[viewID] = params
}

func (e *MockViewEmbedder) CompositePlatformView(viewID int64, params flow.EmbeddedViewParams) {
	e.Composited = append(e.Composited, viewID)
	e.Params[viewID] = params
}
