package flow

import (
	"sync/atomic"

	"github.com/go-drift/flow/pkg/graphics"
)

// Layer is a node in a layer tree.
//
// A frame runs three passes over the tree: Preroll computes paint bounds and
// capability flags bottom-up, Diff compares the tree against the previous
// frame's tree to find damage, and Paint emits drawing commands. Layers are
// built fresh each frame, but a producer may reuse a layer object across
// frames to mark it as unchanged; Diff then skips the whole subtree.
//
// Implementations embed LayerBase, which supplies identity, paint bounds and
// the default behavior of every method except Preroll and Paint.
type Layer interface {
	// Preroll computes paint bounds and reports flags through ctx.
	// matrix is the transform from this layer's space to device space.
	Preroll(ctx *PrerollContext, matrix graphics.Matrix)

	// Paint draws the layer. Callers check NeedsPainting first.
	Paint(ctx *PaintContext)

	// Diff records this layer's paint region in ctx and adds damage for
	// anything that changed relative to old. old is nil when the enclosing
	// subtree is dirty.
	Diff(ctx *DiffContext, old Layer)

	// PreservePaintRegion carries the previous frame's paint region forward
	// for a retained layer that was not diffed.
	PreservePaintRegion(ctx *DiffContext)

	// IsReplacing reports whether this layer is a new version of old, so
	// that diffing the two is meaningful.
	IsReplacing(ctx *DiffContext, old Layer) bool

	// Base returns the embedded LayerBase.
	Base() *LayerBase
}

var lastLayerID atomic.Uint64

func nextLayerID() uint64 {
	return lastLayerID.Add(1)
}

// LayerBase holds the state shared by all layers. The zero value is ready to
// use; identifiers are assigned on first access.
type LayerBase struct {
	paintBounds            graphics.Rect
	uniqueID               uint64
	originalID             uint64
	subtreeHasPlatformView bool
	canInheritOpacity      bool
}

// Base returns b.
func (b *LayerBase) Base() *LayerBase {
	return b
}

func (b *LayerBase) ensureIDs() {
	if b.uniqueID == 0 {
		b.uniqueID = nextLayerID()
	}
	if b.originalID == 0 {
		b.originalID = b.uniqueID
	}
}

// UniqueID identifies this layer object. Paint regions are keyed by it.
func (b *LayerBase) UniqueID() uint64 {
	b.ensureIDs()
	return b.uniqueID
}

// OriginalLayerID identifies the logical node this layer represents. It
// equals UniqueID unless AssignOldLayer linked the layer to an older one.
func (b *LayerBase) OriginalLayerID() uint64 {
	b.ensureIDs()
	return b.originalID
}

// AssignOldLayer marks this layer as the replacement of old.
func (b *LayerBase) AssignOldLayer(old Layer) {
	b.ensureIDs()
	b.originalID = old.Base().OriginalLayerID()
}

// IsReplacing reports whether old descends from the same logical node.
func (b *LayerBase) IsReplacing(_ *DiffContext, old Layer) bool {
	return old != nil && b.OriginalLayerID() == old.Base().OriginalLayerID()
}

// Diff is a no-op by default.
func (b *LayerBase) Diff(*DiffContext, Layer) {}

// PreservePaintRegion copies the previous frame's region for this layer.
func (b *LayerBase) PreservePaintRegion(ctx *DiffContext) {
	ctx.preserve(b.UniqueID())
}

// PaintBounds returns the bounds computed during Preroll, in the parent's
// coordinate space.
func (b *LayerBase) PaintBounds() graphics.Rect {
	return b.paintBounds
}

// SetPaintBounds sets the paint bounds.
func (b *LayerBase) SetPaintBounds(r graphics.Rect) {
	b.paintBounds = r
}

// IsEmpty reports whether the layer paints nothing.
func (b *LayerBase) IsEmpty() bool {
	return b.paintBounds.IsEmpty()
}

// SubtreeHasPlatformView reports whether Preroll found a platform view below
// this layer.
func (b *LayerBase) SubtreeHasPlatformView() bool {
	return b.subtreeHasPlatformView
}

// SetSubtreeHasPlatformView records the platform view flag.
func (b *LayerBase) SetSubtreeHasPlatformView(v bool) {
	b.subtreeHasPlatformView = v
}

// CanInheritOpacity reports whether the layer itself can apply an opacity
// passed down from an ancestor instead of requiring a save layer.
func (b *LayerBase) CanInheritOpacity() bool {
	return b.canInheritOpacity
}

// SetCanInheritOpacity declares whether the layer can inherit opacity.
func (b *LayerBase) SetCanInheritOpacity(v bool) {
	b.canInheritOpacity = v
}

// NeedsPainting reports whether the layer can touch any pixel given ctx.
// Layers hosting platform views always paint so the embedder sees them.
func (b *LayerBase) NeedsPainting(ctx *PaintContext) bool {
	if b.subtreeHasPlatformView {
		return true
	}
	if ctx.InheritedOpacity == 0 {
		return false
	}
	if b.paintBounds.IsEmpty() {
		return false
	}
	return !ctx.Canvas.QuickReject(b.paintBounds)
}
