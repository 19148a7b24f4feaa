package flow

import (
	"github.com/go-drift/flow/pkg/errors"
	"github.com/go-drift/flow/pkg/graphics"
)

// Clip selects how a clip layer clips its children.
type Clip int

const (
	// ClipHardEdge clips without isolating the children.
	ClipHardEdge Clip = iota
	// ClipAntiAliasWithSaveLayer clips and composites the children through
	// a save layer.
	ClipAntiAliasWithSaveLayer
)

// ClipRectLayer clips its children to a rect.
type ClipRectLayer struct {
	ContainerLayer
	clipRect     graphics.Rect
	clipBehavior Clip
}

// NewClipRectLayer returns a layer clipping children to clip.
func NewClipRectLayer(clip graphics.Rect, behavior Clip, children ...Layer) *ClipRectLayer {
	l := &ClipRectLayer{clipRect: clip, clipBehavior: behavior}
	l.SetCanInheritOpacity(true)
	for _, child := range children {
		l.Add(child)
	}
	return l
}

// ClipRect returns the clip.
func (l *ClipRectLayer) ClipRect() graphics.Rect {
	return l.clipRect
}

func (l *ClipRectLayer) usesSaveLayer() bool {
	return l.clipBehavior == ClipAntiAliasWithSaveLayer
}

// Diff dirties the subtree when the clip changed. Children entirely clipped
// away are not diffed.
func (l *ClipRectLayer) Diff(ctx *DiffContext, old Layer) {
	ctx.BeginSubtree()
	defer ctx.EndSubtree()
	if !ctx.IsSubtreeDirty() {
		prev, ok := old.(*ClipRectLayer)
		errors.Assert(ok, "flow.ClipRectLayer.Diff", "old layer %T is not a clip rect layer", old)
		if l.clipBehavior != prev.clipBehavior || l.clipRect != prev.clipRect {
			ctx.MarkSubtreeDirty(ctx.OldLayerPaintRegion(old))
		}
	}
	if ctx.PushCullRect(l.clipRect) {
		l.DiffChildren(ctx, old)
	}
	ctx.SetLayerPaintRegion(l, ctx.CurrentSubtreeRegion())
}

// Preroll prerolls the children against the clipped cull rect and clips
// their bounds.
func (l *ClipRectLayer) Preroll(ctx *PrerollContext, matrix graphics.Matrix) {
	previousCull := ctx.CullRect
	ctx.CullRect = ctx.CullRect.Intersect(l.clipRect)
	restore := ctx.saveLayerState(l.usesSaveLayer(), false)

	bounds := l.PrerollChildren(ctx, matrix).Intersect(l.clipRect)
	l.SetPaintBounds(bounds)

	restore()
	ctx.CullRect = previousCull
}

// Paint clips and paints the children.
func (l *ClipRectLayer) Paint(ctx *PaintContext) {
	canvas := ctx.Canvas
	count := canvas.SaveCount()
	defer canvas.RestoreToCount(count)

	canvas.Save()
	canvas.ClipRect(l.clipRect)
	if l.usesSaveLayer() {
		opacity, restore := ctx.takeOpacity()
		defer restore()
		canvas.SaveLayerAlpha(l.PaintBounds(), opacity)
	}
	l.PaintChildren(ctx)
}
