package flow

import (
	"github.com/go-drift/flow/pkg/errors"
	"github.com/go-drift/flow/pkg/graphics"
)

// ContainerLayer paints an ordered list of children, later children on top.
// It owns child diffing, bounds aggregation, flag propagation and raster
// cache coordination for its children.
type ContainerLayer struct {
	LayerBase
	layers []Layer
}

// NewContainerLayer returns a container with the given children.
func NewContainerLayer(children ...Layer) *ContainerLayer {
	c := &ContainerLayer{}
	for _, child := range children {
		c.Add(child)
	}
	return c
}

// Add appends a child.
func (c *ContainerLayer) Add(layer Layer) {
	c.layers = append(c.layers, layer)
}

// Layers returns the children. The slice must not be modified.
func (c *ContainerLayer) Layers() []Layer {
	return c.layers
}

// Diff diffs the children inside a new subtree and records the subtree's
// region for this layer.
func (c *ContainerLayer) Diff(ctx *DiffContext, old Layer) {
	ctx.BeginSubtree()
	defer ctx.EndSubtree()
	c.DiffChildren(ctx, old)
	ctx.SetLayerPaintRegion(c, ctx.CurrentSubtreeRegion())
}

// PreservePaintRegion carries forward this layer's region and those of all
// descendants, so a later frame can still diff against any of them.
func (c *ContainerLayer) PreservePaintRegion(ctx *DiffContext) {
	c.LayerBase.PreservePaintRegion(ctx)
	for _, layer := range c.layers {
		layer.PreservePaintRegion(ctx)
	}
}

// childrenOf returns the children of a container layer, including any
// layer type that embeds ContainerLayer.
func childrenOf(layer Layer) []Layer {
	if c, ok := layer.(interface{ Layers() []Layer }); ok {
		return c.Layers()
	}
	return nil
}

// DiffChildren matches the children against those of old and diffs them.
//
// Children matching from the front and from the back are paired with their
// old counterparts. A paired child that is the very same object as before,
// whose old region neither reads back nor holds textures, keeps its old
// region without being visited. Other paired children are diffed against
// their counterpart. Unpaired old children are damaged; unpaired new
// children are diffed as new, dirty subtrees.
func (c *ContainerLayer) DiffChildren(ctx *DiffContext, old Layer) {
	if ctx.IsSubtreeDirty() {
		for _, layer := range c.layers {
			layer.Diff(ctx, nil)
		}
		return
	}
	errors.Assert(old != nil, "flow.ContainerLayer.DiffChildren", "old layer is nil in a clean subtree")

	prevLayers := childrenOf(old)

	// First mismatched element from the front.
	newTop, oldTop := 0, 0
	// Last mismatched element from the back.
	newBottom, oldBottom := len(c.layers)-1, len(prevLayers)-1

	for oldTop <= oldBottom && newTop <= newBottom {
		if !c.layers[newTop].IsReplacing(ctx, prevLayers[oldTop]) {
			break
		}
		newTop++
		oldTop++
	}
	for oldTop <= oldBottom && newTop <= newBottom {
		if !c.layers[newBottom].IsReplacing(ctx, prevLayers[oldBottom]) {
			break
		}
		newBottom--
		oldBottom--
	}

	for i := oldTop; i <= oldBottom; i++ {
		if region := ctx.OldLayerPaintRegion(prevLayers[i]); region.IsValid() {
			ctx.AddDamageRegion(region)
		}
	}

	for i, layer := range c.layers {
		if i >= newTop && i <= newBottom {
			diffInsertedChild(ctx, layer)
			continue
		}
		prevIndex := i
		if i > newBottom {
			prevIndex = len(prevLayers) - (len(c.layers) - i)
		}
		prevLayer := prevLayers[prevIndex]
		region := ctx.OldLayerPaintRegion(prevLayer)
		if layer == prevLayer && !region.HasReadback() && !region.HasTexture() {
			// The ancestors all matched, so the retained subtree renders
			// exactly as last frame.
			ctx.AddExistingPaintRegion(region)
			layer.PreservePaintRegion(ctx)
			ctx.Statistics().AddRetainedSubtree()
		} else {
			layer.Diff(ctx, prevLayer)
		}
	}
}

func diffInsertedChild(ctx *DiffContext, layer Layer) {
	ctx.BeginSubtree()
	defer ctx.EndSubtree()
	ctx.MarkSubtreeDirty(PaintRegion{})
	layer.Diff(ctx, nil)
}

// Preroll prerolls the children and sets the paint bounds to their union.
func (c *ContainerLayer) Preroll(ctx *PrerollContext, matrix graphics.Matrix) {
	c.SetPaintBounds(c.PrerollChildren(ctx, matrix))
}

// PrerollChildren prerolls every child and returns the union of their paint
// bounds. It reports through ctx whether any child holds a platform view or
// texture, and whether the children together can inherit opacity: they can
// when this layer can, every child can, and no two children overlap.
func (c *ContainerLayer) PrerollChildren(ctx *PrerollContext, matrix graphics.Matrix) graphics.Rect {
	errors.Assert(!ctx.HasPlatformView, "flow.ContainerLayer.PrerollChildren", "platform view flag leaked into container")

	var childBounds graphics.Rect
	childHasPlatformView := false
	childHasTexture := false
	canInheritOpacity := c.CanInheritOpacity()

	for _, layer := range c.layers {
		// Reset per child so a sibling's result does not leak.
		ctx.HasPlatformView = false
		ctx.SubtreeCanInheritOpacity = layer.Base().CanInheritOpacity()

		layer.Preroll(ctx, matrix)

		bounds := layer.Base().PaintBounds()
		canInheritOpacity = canInheritOpacity && ctx.SubtreeCanInheritOpacity
		// Catches overlap in a linear run of children only; a 2D arrangement
		// of disjoint children can still be rejected here.
		if canInheritOpacity && childBounds.Intersects(bounds) {
			canInheritOpacity = false
		}
		childBounds = childBounds.Join(bounds)

		childHasPlatformView = childHasPlatformView || ctx.HasPlatformView
		childHasTexture = childHasTexture || ctx.HasTextureLayer
	}

	ctx.HasPlatformView = childHasPlatformView
	ctx.HasTextureLayer = childHasTexture
	ctx.SubtreeCanInheritOpacity = canInheritOpacity
	c.SetSubtreeHasPlatformView(childHasPlatformView)
	return childBounds
}

// Paint paints the children.
func (c *ContainerLayer) Paint(ctx *PaintContext) {
	c.PaintChildren(ctx)
}

// PaintChildren paints, back to front, every child that can touch a pixel.
func (c *ContainerLayer) PaintChildren(ctx *PaintContext) {
	for _, layer := range c.layers {
		if layer.Base().NeedsPainting(ctx) {
			layer.Paint(ctx)
		}
	}
}

// TryToPrepareRasterCache asks the cache to rasterize layer when that is
// safe and useful. Otherwise the existing entry is only touched, so a layer
// skipped by a partial repaint keeps its cached image.
func TryToPrepareRasterCache(ctx *PrerollContext, layer Layer, matrix graphics.Matrix) {
	if ctx.RasterCache == nil {
		return
	}
	if !ctx.HasPlatformView && !ctx.HasTextureLayer && ctx.CullRect.Intersects(layer.Base().PaintBounds()) {
		ctx.RasterCache.Prepare(ctx, layer, matrix)
		return
	}
	ctx.RasterCache.Touch(layer, matrix)
}
