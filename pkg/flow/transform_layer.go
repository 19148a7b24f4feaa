package flow

import (
	"github.com/go-drift/flow/pkg/errors"
	"github.com/go-drift/flow/pkg/graphics"
)

// TransformLayer applies a transform to its children.
type TransformLayer struct {
	ContainerLayer
	transform graphics.Matrix
}

// NewTransformLayer returns a layer transforming children by m.
func NewTransformLayer(m graphics.Matrix, children ...Layer) *TransformLayer {
	l := &TransformLayer{transform: m}
	l.SetCanInheritOpacity(true)
	for _, child := range children {
		l.Add(child)
	}
	return l
}

// Transform returns the transform.
func (l *TransformLayer) Transform() graphics.Matrix {
	return l.transform
}

// Diff dirties the subtree when the transform changed.
func (l *TransformLayer) Diff(ctx *DiffContext, old Layer) {
	ctx.BeginSubtree()
	defer ctx.EndSubtree()
	if !ctx.IsSubtreeDirty() {
		prev, ok := old.(*TransformLayer)
		errors.Assert(ok, "flow.TransformLayer.Diff", "old layer %T is not a transform layer", old)
		if l.transform != prev.transform {
			ctx.MarkSubtreeDirty(ctx.OldLayerPaintRegion(old))
		}
	}
	ctx.PushTransform(l.transform)
	l.DiffChildren(ctx, old)
	ctx.SetLayerPaintRegion(l, ctx.CurrentSubtreeRegion())
}

// Preroll prerolls the children in transformed space and maps their bounds
// back.
func (l *TransformLayer) Preroll(ctx *PrerollContext, matrix graphics.Matrix) {
	previousCull := ctx.CullRect
	if inv, ok := l.transform.Invert(); ok {
		ctx.CullRect = inv.MapRect(ctx.CullRect)
	} else {
		ctx.CullRect = graphics.GiantRect
	}

	bounds := l.PrerollChildren(ctx, matrix.Concat(l.transform))
	l.SetPaintBounds(l.transform.MapRect(bounds))

	ctx.CullRect = previousCull
}

// Paint paints the children under the transform.
func (l *TransformLayer) Paint(ctx *PaintContext) {
	canvas := ctx.Canvas
	count := canvas.SaveCount()
	canvas.Save()
	canvas.Concat(l.transform)
	l.PaintChildren(ctx)
	canvas.RestoreToCount(count)
}
