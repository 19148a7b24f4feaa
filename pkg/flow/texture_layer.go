package flow

import (
	"github.com/go-drift/flow/pkg/errors"
	"github.com/go-drift/flow/pkg/graphics"
)

// TextureLayer draws an externally produced texture. Its content can change
// without the layer changing, so it is damaged every frame and its
// ancestors are never retained without diffing.
type TextureLayer struct {
	LayerBase
	offset    graphics.Offset
	size      graphics.Size
	textureID int64
	freeze    bool
}

// NewTextureLayer returns a layer drawing texture id into the given rect.
// A frozen texture keeps showing its last frame.
func NewTextureLayer(offset graphics.Offset, size graphics.Size, textureID int64, freeze bool) *TextureLayer {
	l := &TextureLayer{offset: offset, size: size, textureID: textureID, freeze: freeze}
	l.SetCanInheritOpacity(true)
	return l
}

// TextureID returns the texture id.
func (l *TextureLayer) TextureID() int64 {
	return l.textureID
}

func (l *TextureLayer) rect() graphics.Rect {
	return graphics.RectFromLTWH(l.offset.X, l.offset.Y, l.size.Width, l.size.Height)
}

// Diff damages the old and new rect unconditionally.
func (l *TextureLayer) Diff(ctx *DiffContext, old Layer) {
	ctx.BeginSubtree()
	defer ctx.EndSubtree()
	if !ctx.IsSubtreeDirty() {
		errors.Assert(old != nil, "flow.TextureLayer.Diff", "old layer is nil in a clean subtree")
		ctx.MarkSubtreeDirty(ctx.OldLayerPaintRegion(old))
	}
	ctx.MarkSubtreeHasTextureLayer()
	ctx.AddLayerBounds(l.rect())
	ctx.SetLayerPaintRegion(l, ctx.CurrentSubtreeRegion())
}

// Preroll sets the paint bounds and reports the texture.
func (l *TextureLayer) Preroll(ctx *PrerollContext, _ graphics.Matrix) {
	l.SetPaintBounds(l.rect())
	ctx.HasTextureLayer = true
}

// Paint draws the texture. A texture missing from the registry paints
// nothing.
func (l *TextureLayer) Paint(ctx *PaintContext) {
	texture := ctx.TextureRegistry.Texture(l.textureID)
	if texture == nil {
		return
	}
	texture.Paint(ctx.Canvas, l.PaintBounds(), l.freeze, ctx.InheritedOpacity)
}
