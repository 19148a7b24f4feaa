package flow

import (
	"github.com/go-drift/flow/pkg/errors"
	"github.com/go-drift/flow/pkg/graphics"
)

// OpacityLayer paints its children with an alpha at an offset.
//
// When every child can inherit opacity the alpha is folded into their
// drawing. Otherwise the children are composited through a raster cache
// entry or a save layer.
type OpacityLayer struct {
	MergedContainerLayer
	alpha                    float64
	offset                   graphics.Offset
	childrenCanAcceptOpacity bool
}

// NewOpacityLayer returns a layer painting children with alpha (0-1).
func NewOpacityLayer(alpha float64, offset graphics.Offset, children ...Layer) *OpacityLayer {
	l := &OpacityLayer{alpha: alpha, offset: offset}
	l.init()
	l.SetCanInheritOpacity(true)
	for _, child := range children {
		l.Add(child)
	}
	return l
}

// Alpha returns the layer opacity.
func (l *OpacityLayer) Alpha() float64 {
	return l.alpha
}

// Offset returns the layer offset.
func (l *OpacityLayer) Offset() graphics.Offset {
	return l.offset
}

// ChildrenCanAcceptOpacity reports the Preroll result used by Paint.
func (l *OpacityLayer) ChildrenCanAcceptOpacity() bool {
	return l.childrenCanAcceptOpacity
}

// Diff dirties the subtree when the alpha or offset changed.
func (l *OpacityLayer) Diff(ctx *DiffContext, old Layer) {
	ctx.BeginSubtree()
	defer ctx.EndSubtree()
	if !ctx.IsSubtreeDirty() {
		prev, ok := old.(*OpacityLayer)
		errors.Assert(ok, "flow.OpacityLayer.Diff", "old layer %T is not an opacity layer", old)
		if l.alpha != prev.alpha || l.offset != prev.offset {
			ctx.MarkSubtreeDirty(ctx.OldLayerPaintRegion(old))
		}
	}
	ctx.PushTransform(graphics.TranslateMatrix(l.offset.X, l.offset.Y))
	ctx.SetTransform(ctx.Transform().WithIntegralTranslation())
	l.DiffChildren(ctx, old)
	ctx.SetLayerPaintRegion(l, ctx.CurrentSubtreeRegion())
}

// Preroll prerolls the children at the offset. When the children cannot
// take the alpha, the cacheable child is offered to the raster cache.
func (l *OpacityLayer) Preroll(ctx *PrerollContext, matrix graphics.Matrix) {
	errors.Assert(len(l.ChildContainer().Layers()) > 0, "flow.OpacityLayer.Preroll", "opacity layer has no children")

	childMatrix := matrix.Concat(graphics.TranslateMatrix(l.offset.X, l.offset.Y))
	previousCull := ctx.CullRect
	ctx.CullRect = ctx.CullRect.Translate(-l.offset.X, -l.offset.Y)

	restore := ctx.saveLayerState(true, false)
	l.ContainerLayer.Preroll(ctx, childMatrix)
	restore()

	l.childrenCanAcceptOpacity = ctx.SubtreeCanInheritOpacity
	// The alpha can always be folded into this layer's own save layer.
	ctx.SubtreeCanInheritOpacity = true

	l.SetPaintBounds(l.PaintBounds().Shift(l.offset))

	if !l.childrenCanAcceptOpacity {
		TryToPrepareRasterCache(ctx, l.CacheableChild(), childMatrix.WithIntegralTranslation())
	}
	ctx.CullRect = previousCull
}

// Paint paints the children with the combined opacity.
func (l *OpacityLayer) Paint(ctx *PaintContext) {
	canvas := ctx.Canvas
	count := canvas.SaveCount()
	canvas.Save()
	defer canvas.RestoreToCount(count)

	canvas.Translate(l.offset.X, l.offset.Y)
	canvas.SetMatrix(canvas.TotalMatrix().WithIntegralTranslation())

	inherited := ctx.InheritedOpacity
	subtreeOpacity := l.alpha * inherited
	defer func() { ctx.InheritedOpacity = inherited }()

	if l.childrenCanAcceptOpacity {
		ctx.InheritedOpacity = subtreeOpacity
		l.PaintChildren(ctx)
		return
	}

	if ctx.RasterCache != nil && ctx.RasterCache.Draw(l.CacheableChild(), canvas, subtreeOpacity) {
		return
	}

	saveBounds := graphics.RectFromImage(l.PaintBounds().Translate(-l.offset.X, -l.offset.Y).RoundOut())
	canvas.SaveLayerAlpha(saveBounds, subtreeOpacity)
	ctx.InheritedOpacity = 1
	l.PaintChildren(ctx)
}
