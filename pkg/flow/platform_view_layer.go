package flow

import (
	"github.com/go-drift/flow/internal/logging"
	"github.com/go-drift/flow/pkg/errors"
	"github.com/go-drift/flow/pkg/graphics"
)

// PlatformViewLayer reserves space for a view drawn by the platform. The
// view's pixels are outside the tree's control, so its area is damaged
// every frame like a texture.
type PlatformViewLayer struct {
	LayerBase
	offset graphics.Offset
	size   graphics.Size
	viewID int64
}

// NewPlatformViewLayer returns a layer for platform view viewID.
func NewPlatformViewLayer(offset graphics.Offset, size graphics.Size, viewID int64) *PlatformViewLayer {
	return &PlatformViewLayer{offset: offset, size: size, viewID: viewID}
}

// ViewID returns the platform view id.
func (l *PlatformViewLayer) ViewID() int64 {
	return l.viewID
}

func (l *PlatformViewLayer) rect() graphics.Rect {
	return graphics.RectFromLTWH(l.offset.X, l.offset.Y, l.size.Width, l.size.Height)
}

// Diff damages the old and new rect unconditionally.
func (l *PlatformViewLayer) Diff(ctx *DiffContext, old Layer) {
	ctx.BeginSubtree()
	defer ctx.EndSubtree()
	if !ctx.IsSubtreeDirty() {
		errors.Assert(old != nil, "flow.PlatformViewLayer.Diff", "old layer is nil in a clean subtree")
		ctx.MarkSubtreeDirty(ctx.OldLayerPaintRegion(old))
	}
	ctx.MarkSubtreeHasTextureLayer()
	ctx.AddLayerBounds(l.rect())
	ctx.SetLayerPaintRegion(l, ctx.CurrentSubtreeRegion())
}

// Preroll sets the paint bounds and announces the view to the embedder.
func (l *PlatformViewLayer) Preroll(ctx *PrerollContext, matrix graphics.Matrix) {
	l.SetPaintBounds(l.rect())
	if ctx.ViewEmbedder == nil {
		logging.Logger().Warn("platform view without view embedder", "viewID", l.viewID)
		return
	}
	ctx.HasPlatformView = true
	l.SetSubtreeHasPlatformView(true)
	ctx.ViewEmbedder.PrerollPlatformView(l.viewID, EmbeddedViewParams{Matrix: matrix, Offset: l.offset, Size: l.size})
}

// Paint hands the view's final placement to the embedder.
func (l *PlatformViewLayer) Paint(ctx *PaintContext) {
	if ctx.ViewEmbedder == nil {
		return
	}
	ctx.ViewEmbedder.CompositePlatformView(l.viewID, EmbeddedViewParams{
		Matrix: ctx.Canvas.TotalMatrix(),
		Offset: l.offset,
		Size:   l.size,
	})
}
