package flow

import (
	"github.com/go-drift/flow/pkg/errors"
	"github.com/go-drift/flow/pkg/graphics"
)

// maxBytesToCompare bounds the display list size compared op by op during
// diffing. Larger lists that are not the same instance count as changed.
const maxBytesToCompare = 10000

// DisplayListLayer draws a recorded display list at an offset.
type DisplayListLayer struct {
	LayerBase
	offset      graphics.Offset
	displayList *graphics.DisplayList
	isComplex   bool
	willChange  bool
}

// NewDisplayListLayer returns a layer drawing dl at offset. isComplex hints
// that the content is worth caching even when short; willChange hints that
// it is not.
func NewDisplayListLayer(offset graphics.Offset, dl *graphics.DisplayList, isComplex, willChange bool) *DisplayListLayer {
	l := &DisplayListLayer{
		offset:      offset,
		displayList: dl,
		isComplex:   isComplex,
		willChange:  willChange,
	}
	if dl != nil {
		l.SetCanInheritOpacity(dl.CanApplyGroupOpacity())
	}
	return l
}

// Offset returns the drawing offset.
func (l *DisplayListLayer) Offset() graphics.Offset {
	return l.offset
}

// DisplayList returns the content.
func (l *DisplayListLayer) DisplayList() *graphics.DisplayList {
	return l.displayList
}

// IsReplacing reports whether old is a display list layer at the same offset
// with equal content.
func (l *DisplayListLayer) IsReplacing(ctx *DiffContext, old Layer) bool {
	prev, ok := old.(*DisplayListLayer)
	return ok && l.offset == prev.offset && compareDisplayLists(ctx.Statistics(), l.displayList, prev.displayList)
}

func compareDisplayLists(stats *Statistics, a, b *graphics.DisplayList) bool {
	if a == b {
		stats.AddSameInstancePicture()
		return true
	}
	if a == nil || b == nil {
		stats.AddNewPicture()
		return false
	}
	if a.OpCount() != b.OpCount() || a.ByteSize() != b.ByteSize() || a.Bounds() != b.Bounds() {
		stats.AddNewPicture()
		return false
	}
	if a.ByteSize() > maxBytesToCompare {
		stats.AddPictureTooComplexToCompare()
		return false
	}
	stats.AddDeepComparePicture()
	if a.Equals(b) {
		stats.AddDifferentInstanceButEqualPicture()
		return true
	}
	stats.AddNewPicture()
	return false
}

// Diff records the display list bounds. Paint snaps the translation to whole
// pixels, so the recorded rect is snapped the same way.
func (l *DisplayListLayer) Diff(ctx *DiffContext, old Layer) {
	ctx.BeginSubtree()
	defer ctx.EndSubtree()
	if !ctx.IsSubtreeDirty() {
		errors.Assert(old != nil, "flow.DisplayListLayer.Diff", "old layer is nil in a clean subtree")
		prev, ok := old.(*DisplayListLayer)
		if !ok || l.offset != prev.offset || !compareDisplayLists(&Statistics{}, l.displayList, prev.displayList) {
			ctx.MarkSubtreeDirty(ctx.OldLayerPaintRegion(old))
		}
	}
	ctx.PushTransform(graphics.TranslateMatrix(l.offset.X, l.offset.Y))
	ctx.SetTransform(ctx.Transform().WithIntegralTranslation())
	if l.displayList != nil {
		ctx.AddLayerBounds(l.displayList.Bounds())
	}
	ctx.SetLayerPaintRegion(l, ctx.CurrentSubtreeRegion())
}

// Preroll sets the paint bounds and lets the raster cache consider the
// display list. A cached image can take any opacity.
func (l *DisplayListLayer) Preroll(ctx *PrerollContext, matrix graphics.Matrix) {
	if l.displayList == nil {
		l.SetPaintBounds(graphics.Rect{})
		return
	}
	bounds := l.displayList.Bounds().Shift(l.offset)
	if ctx.RasterCache != nil {
		if ctx.CullRect.Intersects(bounds) {
			if ctx.RasterCache.PrepareDisplayList(ctx, l.displayList, l.isComplex, l.willChange, matrix, l.offset) {
				ctx.SubtreeCanInheritOpacity = true
			}
		} else {
			ctx.RasterCache.TouchDisplayList(l.displayList, matrix.Concat(graphics.TranslateMatrix(l.offset.X, l.offset.Y)).WithIntegralTranslation())
		}
	}
	l.SetPaintBounds(bounds)
}

// Paint draws from the raster cache when possible and replays the display
// list otherwise.
func (l *DisplayListLayer) Paint(ctx *PaintContext) {
	canvas := ctx.Canvas
	count := canvas.SaveCount()
	canvas.Save()
	defer canvas.RestoreToCount(count)

	canvas.Translate(l.offset.X, l.offset.Y)
	canvas.SetMatrix(canvas.TotalMatrix().WithIntegralTranslation())

	if ctx.RasterCache != nil && ctx.RasterCache.DrawDisplayList(l.displayList, canvas, ctx.InheritedOpacity) {
		return
	}
	l.displayList.RenderTo(canvas, ctx.InheritedOpacity)
}
