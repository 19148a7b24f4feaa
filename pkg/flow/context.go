package flow

import (
	"sync"

	"github.com/go-drift/flow/pkg/graphics"
)

// RasterCache stores rasterized layers and display lists for reuse across
// frames. Entries are keyed by identity and transform.
type RasterCache interface {
	// Prepare records a use of layer under matrix and may rasterize it.
	Prepare(ctx *PrerollContext, layer Layer, matrix graphics.Matrix)
	// Touch keeps an existing entry for layer alive this frame without
	// rasterizing anything.
	Touch(layer Layer, matrix graphics.Matrix)
	// Draw blits the cached image for layer, keyed by the canvas transform.
	// It reports false when there is no image.
	Draw(layer Layer, canvas graphics.Canvas, opacity float64) bool

	// PrepareDisplayList is Prepare for a display list drawn at offset. It
	// reports whether an image is available for Paint.
	PrepareDisplayList(ctx *PrerollContext, dl *graphics.DisplayList, isComplex, willChange bool, matrix graphics.Matrix, offset graphics.Offset) bool
	// TouchDisplayList is Touch for a display list.
	TouchDisplayList(dl *graphics.DisplayList, matrix graphics.Matrix)
	// DrawDisplayList is Draw for a display list.
	DrawDisplayList(dl *graphics.DisplayList, canvas graphics.Canvas, opacity float64) bool
}

// EmbeddedViewParams describes where a platform view is composited.
type EmbeddedViewParams struct {
	Matrix graphics.Matrix
	Offset graphics.Offset
	Size   graphics.Size
}

// ViewEmbedder composites platform views that are drawn outside the layer
// tree.
type ViewEmbedder interface {
	// PrerollPlatformView announces a platform view for this frame.
	PrerollPlatformView(viewID int64, params EmbeddedViewParams)
	// CompositePlatformView places the view at paint time.
	CompositePlatformView(viewID int64, params EmbeddedViewParams)
}

// Texture is externally produced content such as video frames.
type Texture interface {
	ID() int64
	// Paint draws the current content into bounds.
	Paint(canvas graphics.Canvas, bounds graphics.Rect, freeze bool, opacity float64)
}

// TextureRegistry looks up textures by id. Safe for concurrent use; a
// producer may register textures while frames are rasterized.
type TextureRegistry struct {
	mu       sync.RWMutex
	textures map[int64]Texture
}

// NewTextureRegistry returns an empty registry.
func NewTextureRegistry() *TextureRegistry {
	return &TextureRegistry{textures: make(map[int64]Texture)}
}

// Register adds or replaces a texture.
func (r *TextureRegistry) Register(t Texture) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.textures[t.ID()] = t
}

// Unregister removes a texture.
func (r *TextureRegistry) Unregister(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.textures, id)
}

// Texture returns the texture with id, or nil. A nil registry has no
// textures.
func (r *TextureRegistry) Texture(id int64) Texture {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textures[id]
}

// PrerollContext is threaded through Preroll. Layers read the inputs and
// report results through the flags.
type PrerollContext struct {
	RasterCache      RasterCache
	ViewEmbedder     ViewEmbedder
	TextureRegistry  *TextureRegistry
	DevicePixelRatio float64

	// CullRect is the visible area in the current layer's coordinates.
	CullRect graphics.Rect

	// CheckerboardOffscreenLayers tints save layers for debugging.
	CheckerboardOffscreenLayers bool

	// SurfaceNeedsReadback is set when some layer reads back pixels that are
	// not isolated by a save layer.
	SurfaceNeedsReadback bool

	HasPlatformView bool
	HasTextureLayer bool

	// SubtreeCanInheritOpacity is set by each layer's Preroll to report
	// whether an ancestor may fold its opacity into the layer's drawing.
	SubtreeCanInheritOpacity bool
}

// saveLayerState isolates SurfaceNeedsReadback inside a save layer. The
// returned function restores it; a layer that itself reads back forces the
// flag on for its parent.
func (c *PrerollContext) saveLayerState(saveLayerActive, layerReadsBack bool) func() {
	prev := c.SurfaceNeedsReadback
	if saveLayerActive {
		c.SurfaceNeedsReadback = false
	}
	return func() {
		if saveLayerActive {
			c.SurfaceNeedsReadback = prev || layerReadsBack
		}
	}
}

// PaintContext is threaded through Paint.
type PaintContext struct {
	Canvas           graphics.Canvas
	RasterCache      RasterCache
	ViewEmbedder     ViewEmbedder
	TextureRegistry  *TextureRegistry
	DevicePixelRatio float64

	CheckerboardOffscreenLayers bool

	// InheritedOpacity is an opacity ancestors could not apply themselves.
	// 1 means opaque; NewPaintContext sets it.
	InheritedOpacity float64
}

// NewPaintContext returns a paint context for canvas with full opacity.
func NewPaintContext(canvas graphics.Canvas) *PaintContext {
	return &PaintContext{Canvas: canvas, InheritedOpacity: 1}
}

// takeOpacity returns the inherited opacity and resets the context to
// opaque, for layers that apply the opacity through a paint.
func (c *PaintContext) takeOpacity() (opacity float64, restore func()) {
	opacity = c.InheritedOpacity
	c.InheritedOpacity = 1
	return opacity, func() { c.InheritedOpacity = opacity }
}
