package flow

import (
	"image"
	"log/slog"

	"github.com/go-drift/flow/internal/logging"
	"github.com/go-drift/flow/pkg/graphics"
)

// FrameContext bundles the collaborators used to preroll and paint a tree.
type FrameContext struct {
	RasterCache      RasterCache
	ViewEmbedder     ViewEmbedder
	TextureRegistry  *TextureRegistry
	DevicePixelRatio float64

	// CheckerboardOffscreenLayers tints save layers for debugging.
	CheckerboardOffscreenLayers bool
}

// LayerTree is the root of one frame's layers together with the paint
// regions its diff recorded.
type LayerTree struct {
	root         Layer
	frameSize    image.Point
	paintRegions PaintRegionMap
	statistics   Statistics
}

// NewLayerTree returns a tree for a frame of frameSize pixels.
func NewLayerTree(root Layer, frameSize image.Point) *LayerTree {
	return &LayerTree{root: root, frameSize: frameSize}
}

// Root returns the root layer.
func (t *LayerTree) Root() Layer {
	return t.root
}

// FrameSize returns the frame size in pixels.
func (t *LayerTree) FrameSize() image.Point {
	return t.frameSize
}

// PaintRegions returns the regions recorded by Diff, or nil before Diff ran.
func (t *LayerTree) PaintRegions() PaintRegionMap {
	return t.paintRegions
}

// DiffStatistics returns the counters of the last Diff.
func (t *LayerTree) DiffStatistics() Statistics {
	return t.statistics
}

// Preroll runs the preroll pass with the whole frame visible. It reports
// whether the surface must support reading back pixels.
func (t *LayerTree) Preroll(frame FrameContext) bool {
	if t.root == nil {
		return false
	}
	ctx := &PrerollContext{
		RasterCache:                 frame.RasterCache,
		ViewEmbedder:                frame.ViewEmbedder,
		TextureRegistry:             frame.TextureRegistry,
		DevicePixelRatio:            frame.DevicePixelRatio,
		CullRect:                    graphics.RectFromImage(image.Rectangle{Max: t.frameSize}),
		CheckerboardOffscreenLayers: frame.CheckerboardOffscreenLayers,
	}
	t.root.Preroll(ctx, graphics.Identity())
	return ctx.SurfaceNeedsReadback
}

// Diff compares the tree with prev, the tree presented last frame, and
// returns the damage. accumulated is the damage the target buffer missed in
// frames presented from other buffers. A nil prev, a prev of a different
// size, or a root that does not replace prev's root damages the whole frame.
// The recorded regions are kept for the next frame's Diff.
func (t *LayerTree) Diff(prev *LayerTree, accumulated image.Rectangle, devicePixelRatio float64) Damage {
	var last PaintRegionMap
	if prev != nil {
		last = prev.paintRegions
	}
	ctx := NewDiffContext(t.frameSize, devicePixelRatio, last)
	ctx.PushCullRect(graphics.RectFromImage(image.Rectangle{Max: t.frameSize}))
	t.diffRoot(ctx, prev)

	damage := ctx.ComputeDamage(accumulated)
	t.paintRegions = ctx.PaintRegions()
	t.statistics = *ctx.Statistics()
	ctx.Statistics().Log()
	logging.Logger().Debug("diff complete",
		slog.String("frameDamage", damage.FrameDamage.String()),
		slog.String("bufferDamage", damage.BufferDamage.String()),
	)
	return damage
}

func (t *LayerTree) diffRoot(ctx *DiffContext, prev *LayerTree) {
	ctx.BeginSubtree()
	defer ctx.EndSubtree()
	if t.root == nil {
		ctx.MarkSubtreeDirty(PaintRegion{})
		ctx.AddDamage(graphics.RectFromImage(image.Rectangle{Max: t.frameSize}))
		return
	}
	var prevRoot Layer
	switch {
	case prev == nil || prev.root == nil || prev.frameSize != t.frameSize:
		ctx.MarkSubtreeDirty(PaintRegion{})
		ctx.AddDamage(graphics.RectFromImage(image.Rectangle{Max: t.frameSize}))
	case !t.root.IsReplacing(ctx, prev.root):
		ctx.MarkSubtreeDirty(ctx.OldLayerPaintRegion(prev.root))
	default:
		prevRoot = prev.root
	}
	t.root.Diff(ctx, prevRoot)
}

// Paint paints the tree onto frame's canvas. Callers clip the canvas to the
// damage first to repaint only what changed.
func (t *LayerTree) Paint(canvas graphics.Canvas, frame FrameContext) {
	if t.root == nil {
		return
	}
	ctx := &PaintContext{
		Canvas:                      canvas,
		RasterCache:                 frame.RasterCache,
		ViewEmbedder:                frame.ViewEmbedder,
		TextureRegistry:             frame.TextureRegistry,
		DevicePixelRatio:            frame.DevicePixelRatio,
		CheckerboardOffscreenLayers: frame.CheckerboardOffscreenLayers,
		InheritedOpacity:            1,
	}
	if t.root.Base().NeedsPainting(ctx) {
		t.root.Paint(ctx)
	}
}
