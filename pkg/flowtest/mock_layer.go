package flowtest

import (
	"github.com/go-drift/flow/pkg/flow"
	"github.com/go-drift/flow/pkg/graphics"
)

// MockLayer paints a filled rect and records the inputs of each pass.
// The flag fields control what Preroll reports; set them before the first
// Preroll.
type MockLayer struct {
	flow.LayerBase

	// Rect is the painted area in the layer's coordinates.
	Rect graphics.Rect
	// Color is the fill color. It also tags content: mocks with equal Rect
	// and Color replace each other.
	Color graphics.Color

	HasPlatformView   bool
	HasTexture        bool
	ReadsSurface      bool
	OpacityCompatible bool

	prerollCount int
	diffCount    int
	paintCount   int
	parentMatrix graphics.Matrix
	cullRect     graphics.Rect
	paintOpacity float64
}

// NewMockLayer returns a black mock painting rect.
func NewMockLayer(rect graphics.Rect) *MockLayer {
	return &MockLayer{Rect: rect, Color: graphics.ColorBlack}
}

// NewMockLayerColor returns a mock painting rect with color.
func NewMockLayerColor(rect graphics.Rect, color graphics.Color) *MockLayer {
	return &MockLayer{Rect: rect, Color: color}
}

// IsReplacing reports whether old is a mock with the same rect and color.
func (m *MockLayer) IsReplacing(_ *flow.DiffContext, old flow.Layer) bool {
	prev, ok := old.(*MockLayer)
	return ok && prev.Rect == m.Rect && prev.Color == m.Color
}

// Diff records the rect. A clean subtree whose old mock differs is
// dirtied.
func (m *MockLayer) Diff(ctx *flow.DiffContext, old flow.Layer) {
	m.diffCount++
	ctx.BeginSubtree()
	defer ctx.EndSubtree()
	if !ctx.IsSubtreeDirty() && !m.IsReplacing(ctx, old) {
		ctx.MarkSubtreeDirty(ctx.OldLayerPaintRegion(old))
	}
	ctx.AddLayerBounds(m.Rect)
	ctx.SetLayerPaintRegion(m, ctx.CurrentSubtreeRegion())
}

// Preroll sets the paint bounds and reports the configured flags.
func (m *MockLayer) Preroll(ctx *flow.PrerollContext, matrix graphics.Matrix) {
	m.prerollCount++
	m.parentMatrix = matrix
	m.cullRect = ctx.CullRect
	m.SetPaintBounds(m.Rect)
	if m.HasPlatformView {
		ctx.HasPlatformView = true
		m.SetSubtreeHasPlatformView(true)
	}
	if m.HasTexture {
		ctx.HasTextureLayer = true
	}
	if m.ReadsSurface {
		ctx.SurfaceNeedsReadback = true
	}
	if m.OpacityCompatible {
		ctx.SubtreeCanInheritOpacity = true
	}
}

// Paint fills the rect, modulated by the inherited opacity.
func (m *MockLayer) Paint(ctx *flow.PaintContext) {
	m.paintCount++
	m.paintOpacity = ctx.InheritedOpacity
	ctx.Canvas.DrawRect(m.Rect, graphics.FillPaint(m.Color.Modulate(ctx.InheritedOpacity)))
}

// PrerollCount returns how many times Preroll ran.
func (m *MockLayer) PrerollCount() int { return m.prerollCount }

// DiffCount returns how many times Diff ran.
func (m *MockLayer) DiffCount() int { return m.diffCount }

// PaintCount returns how many times Paint ran.
func (m *MockLayer) PaintCount() int { return m.paintCount }

// ParentMatrix returns the matrix passed to the last Preroll.
func (m *MockLayer) ParentMatrix() graphics.Matrix { return m.parentMatrix }

// CullRect returns the cull rect seen by the last Preroll.
func (m *MockLayer) CullRect() graphics.Rect { return m.cullRect }

// PaintOpacity returns the inherited opacity seen by the last Paint.
func (m *MockLayer) PaintOpacity() float64 { return m.paintOpacity }
