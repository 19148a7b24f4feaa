package flow

import (
	"math"

	"github.com/go-drift/flow/pkg/errors"
	"github.com/go-drift/flow/pkg/graphics"
)

// BackdropFilterLayer filters everything painted behind it, within its clip,
// before painting its children on top. It reads back pixels, so damage near
// it grows to cover the pixels the filter samples.
type BackdropFilterLayer struct {
	ContainerLayer
	filter *graphics.ImageFilter
}

// NewBackdropFilterLayer returns a backdrop layer applying filter.
func NewBackdropFilterLayer(filter *graphics.ImageFilter, children ...Layer) *BackdropFilterLayer {
	l := &BackdropFilterLayer{filter: filter}
	for _, child := range children {
		l.Add(child)
	}
	return l
}

// Filter returns the backdrop filter.
func (l *BackdropFilterLayer) Filter() *graphics.ImageFilter {
	return l.filter
}

// Diff paints the whole cull rect and registers the filter's input area as a
// readback region.
func (l *BackdropFilterLayer) Diff(ctx *DiffContext, old Layer) {
	ctx.BeginSubtree()
	defer ctx.EndSubtree()
	if !ctx.IsSubtreeDirty() {
		prev, ok := old.(*BackdropFilterLayer)
		errors.Assert(ok, "flow.BackdropFilterLayer.Diff", "old layer %T is not a backdrop filter layer", old)
		if !l.filter.Equal(prev.filter) {
			ctx.MarkSubtreeDirty(ctx.OldLayerPaintRegion(old))
		}
	}

	paintBounds := ctx.CullRect()
	ctx.AddLayerBounds(paintBounds)

	if l.filter != nil {
		m := ctx.Transform()
		input := graphics.RectFromImage(m.MapRect(paintBounds).RoundOut())
		sx := math.Hypot(m.ScaleX, m.SkewY)
		sy := math.Hypot(m.SkewX, m.ScaleY)
		deviceFilter := graphics.BlurFilter(l.filter.SigmaX*sx, l.filter.SigmaY*sy)
		ctx.AddReadbackRegion(deviceFilter.FilterBounds(input).RoundOut())
	}

	l.DiffChildren(ctx, old)
	ctx.SetLayerPaintRegion(l, ctx.CurrentSubtreeRegion())
}

// Preroll prerolls the children. The layer paints at least the whole cull
// rect since the filter touches every pixel behind it.
func (l *BackdropFilterLayer) Preroll(ctx *PrerollContext, matrix graphics.Matrix) {
	restore := ctx.saveLayerState(true, l.filter != nil)
	defer restore()
	bounds := l.PrerollChildren(ctx, matrix)
	l.SetPaintBounds(bounds.Join(ctx.CullRect))
}

// Paint filters the backdrop and paints the children over it.
func (l *BackdropFilterLayer) Paint(ctx *PaintContext) {
	canvas := ctx.Canvas
	count := canvas.SaveCount()
	canvas.SaveLayerBackdrop(l.PaintBounds(), l.filter)
	l.PaintChildren(ctx)
	canvas.RestoreToCount(count)
}
