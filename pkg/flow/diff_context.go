package flow

import (
	"image"
	"log/slog"

	"github.com/go-drift/flow/internal/logging"
	"github.com/go-drift/flow/pkg/errors"
	"github.com/go-drift/flow/pkg/graphics"
)

// FilterBoundsAdjustment maps a device-space rect to the area an image
// filter can affect.
type FilterBoundsAdjustment func(graphics.Rect) graphics.Rect

// Damage is the result of a diff pass.
type Damage struct {
	// FrameDamage is the area that differs from the previous frame.
	FrameDamage image.Rectangle
	// BufferDamage is the area that must be repainted in the target buffer,
	// which may be several frames behind.
	BufferDamage image.Rectangle
}

type diffState struct {
	dirty             bool
	cullRect          graphics.Rect
	transform         graphics.Matrix
	transformOverride *graphics.Matrix
	rectIndex         int
	hasFilterBounds   bool
	hasTexture        bool
}

type readback struct {
	rect     image.Rectangle
	position int
}

// DiffContext carries the state of one diff pass. It reads the previous
// frame's paint regions and builds the regions for the next frame.
//
// Subtree state is scoped with BeginSubtree and EndSubtree, which layers
// pair with defer:
//
//	ctx.BeginSubtree()
//	defer ctx.EndSubtree()
type DiffContext struct {
	rects            *rectList
	frameSize        image.Point
	devicePixelRatio float64
	thisFrame        PaintRegionMap
	lastFrame        PaintRegionMap

	state        diffState
	stateStack   []diffState
	filterBounds []FilterBoundsAdjustment
	damage       graphics.Rect
	readbacks    []readback
	statistics   Statistics
}

// NewDiffContext creates a context for a frame of the given pixel size.
// lastFrame is only read; it may be nil for the first frame.
func NewDiffContext(frameSize image.Point, devicePixelRatio float64, lastFrame PaintRegionMap) *DiffContext {
	return &DiffContext{
		rects:            &rectList{},
		frameSize:        frameSize,
		devicePixelRatio: devicePixelRatio,
		thisFrame:        make(PaintRegionMap),
		lastFrame:        lastFrame,
		state: diffState{
			cullRect:  graphics.GiantRect,
			transform: graphics.Identity(),
		},
	}
}

// BeginSubtree saves the current state. Rects recorded until the matching
// EndSubtree belong to the subtree.
func (c *DiffContext) BeginSubtree() {
	c.stateStack = append(c.stateStack, c.state)
	c.state.rectIndex = len(c.rects.rects)
	c.state.hasFilterBounds = false
	c.state.hasTexture = false
	if c.state.transformOverride != nil {
		c.state.transform = *c.state.transformOverride
		c.state.transformOverride = nil
	}
}

// EndSubtree restores the state saved by BeginSubtree.
func (c *DiffContext) EndSubtree() {
	errors.Assert(len(c.stateStack) > 0, "flow.DiffContext.EndSubtree", "unbalanced EndSubtree")
	if c.state.hasFilterBounds {
		c.filterBounds = c.filterBounds[:len(c.filterBounds)-1]
	}
	c.state = c.stateStack[len(c.stateStack)-1]
	c.stateStack = c.stateStack[:len(c.stateStack)-1]
}

// PushTransform pre-concatenates m onto the current transform.
func (c *DiffContext) PushTransform(m graphics.Matrix) {
	c.state.transform = c.state.transform.Concat(m)
}

// SetTransform overrides the transform used for painting. The override
// becomes the subtree transform at the next BeginSubtree.
func (c *DiffContext) SetTransform(m graphics.Matrix) {
	c.state.transformOverride = &m
}

// Transform returns the current transform.
func (c *DiffContext) Transform() graphics.Matrix {
	return c.state.transform
}

// PushFilterBoundsAdjustment registers a filter whose output grows the
// bounds of every layer added in the current subtree. At most one may be
// pushed per subtree.
func (c *DiffContext) PushFilterBoundsAdjustment(adjust FilterBoundsAdjustment) {
	errors.Assert(!c.state.hasFilterBounds, "flow.DiffContext.PushFilterBoundsAdjustment",
		"filter bounds adjustment already pushed for this subtree")
	c.state.hasFilterBounds = true
	c.filterBounds = append(c.filterBounds, adjust)
}

func (c *DiffContext) applyFilterBounds(r graphics.Rect) graphics.Rect {
	for i := len(c.filterBounds) - 1; i >= 0; i-- {
		r = c.filterBounds[i](r)
	}
	return r
}

// PushCullRect intersects the cull rect with clip mapped to device space.
// It reports false when nothing remains visible.
func (c *DiffContext) PushCullRect(clip graphics.Rect) bool {
	c.state.cullRect = c.state.cullRect.Intersect(c.state.transform.MapRect(clip))
	return !c.state.cullRect.IsEmpty()
}

// CullRect returns the cull rect in the current local coordinates.
func (c *DiffContext) CullRect() graphics.Rect {
	inv, ok := c.state.transform.Invert()
	if !ok {
		return graphics.GiantRect
	}
	return inv.MapRect(c.state.cullRect)
}

// IsSubtreeDirty reports whether the current subtree is treated as new.
func (c *DiffContext) IsSubtreeDirty() bool {
	return c.state.dirty
}

// MarkSubtreeDirty damages previous, if valid, and forces everything in the
// current subtree to be treated as new.
func (c *DiffContext) MarkSubtreeDirty(previous PaintRegion) {
	errors.Assert(!c.state.dirty, "flow.DiffContext.MarkSubtreeDirty", "subtree is already dirty")
	if previous.IsValid() {
		c.AddDamageRegion(previous)
	}
	c.state.dirty = true
}

// AddLayerBounds records rect, in local coordinates, as painted by the
// current subtree. Rects outside the cull rect are dropped.
func (c *DiffContext) AddLayerBounds(rect graphics.Rect) {
	transformed := c.applyFilterBounds(c.state.transform.MapRect(rect))
	if !transformed.Intersects(c.state.cullRect) {
		return
	}
	paintRect := transformed
	if c.state.transformOverride != nil {
		paintRect = c.applyFilterBounds(c.state.transformOverride.MapRect(rect))
	}
	c.rects.rects = append(c.rects.rects, paintRect)
	if c.state.dirty {
		c.AddDamage(paintRect)
	}
}

// MarkSubtreeHasTextureLayer flags the current subtree and every enclosing
// subtree as containing texture content.
func (c *DiffContext) MarkSubtreeHasTextureLayer() {
	for i := range c.stateStack {
		c.stateStack[i].hasTexture = true
	}
	c.state.hasTexture = true
}

// AddExistingPaintRegion records the rects of a retained layer's previous
// region. Only valid in a clean subtree.
func (c *DiffContext) AddExistingPaintRegion(region PaintRegion) {
	errors.Assert(!c.state.dirty, "flow.DiffContext.AddExistingPaintRegion", "subtree is dirty")
	if region.IsValid() {
		c.rects.rects = append(c.rects.rects, region.Rects()...)
	}
}

// AddReadbackRegion registers a device-space area whose pixels the current
// subtree reads back. Damage touching it grows to cover it.
func (c *DiffContext) AddReadbackRegion(rect image.Rectangle) {
	c.readbacks = append(c.readbacks, readback{rect: rect, position: len(c.rects.rects)})
	// Placeholder so the readback belongs to the current subtree's span.
	c.rects.rects = append(c.rects.rects, graphics.Rect{})
}

// CurrentSubtreeRegion returns the region recorded since the last
// BeginSubtree.
func (c *DiffContext) CurrentSubtreeRegion() PaintRegion {
	hasReadback := false
	for _, r := range c.readbacks {
		if r.position >= c.state.rectIndex {
			hasReadback = true
			break
		}
	}
	return PaintRegion{
		list:        c.rects,
		from:        c.state.rectIndex,
		to:          len(c.rects.rects),
		hasReadback: hasReadback,
		hasTexture:  c.state.hasTexture,
	}
}

// AddDamage adds rect, in device space, to the frame damage.
func (c *DiffContext) AddDamage(rect graphics.Rect) {
	c.damage = c.damage.Join(rect)
}

// AddDamageRegion adds every rect of region to the frame damage.
func (c *DiffContext) AddDamageRegion(region PaintRegion) {
	errors.Assert(region.IsValid(), "flow.DiffContext.AddDamageRegion", "invalid paint region")
	for _, r := range region.Rects() {
		c.damage = c.damage.Join(r)
	}
}

// SetLayerPaintRegion records the region layer painted this frame.
func (c *DiffContext) SetLayerPaintRegion(layer Layer, region PaintRegion) {
	c.thisFrame[layer.Base().UniqueID()] = region
}

// OldLayerPaintRegion returns the region layer painted last frame, or an
// invalid region when it was not recorded. That happens for retained
// layers that sat under an empty clip and were never diffed.
func (c *DiffContext) OldLayerPaintRegion(layer Layer) PaintRegion {
	return c.lastFrame[layer.Base().UniqueID()]
}

func (c *DiffContext) preserve(id uint64) {
	c.thisFrame[id] = c.lastFrame[id]
}

// PaintRegions returns the regions recorded this frame. Once the pass is
// over the map belongs to the caller and becomes the next frame's input.
func (c *DiffContext) PaintRegions() PaintRegionMap {
	return c.thisFrame
}

// FrameSize returns the frame size in pixels.
func (c *DiffContext) FrameSize() image.Point {
	return c.frameSize
}

// DevicePixelRatio returns the frame's device pixel ratio.
func (c *DiffContext) DevicePixelRatio() float64 {
	return c.devicePixelRatio
}

// Statistics returns the picture comparison counters for this pass.
func (c *DiffContext) Statistics() *Statistics {
	return &c.statistics
}

// ComputeDamage returns the frame and buffer damage. accumulated is the
// damage the target buffer missed while other buffers were presented.
// Readback regions touching either result are added to it, and both are
// rounded out to whole pixels and clipped to the frame.
func (c *DiffContext) ComputeDamage(accumulated image.Rectangle) Damage {
	bufferDamage := graphics.RectFromImage(accumulated).Join(c.damage)
	frameDamage := c.damage

	for _, r := range c.readbacks {
		rect := graphics.RectFromImage(r.rect)
		if rect.Intersects(frameDamage) {
			frameDamage = frameDamage.Join(rect)
		}
		if rect.Intersects(bufferDamage) {
			bufferDamage = bufferDamage.Join(rect)
		}
	}

	clip := image.Rectangle{Max: c.frameSize}
	return Damage{
		FrameDamage:  frameDamage.RoundOut().Intersect(clip),
		BufferDamage: bufferDamage.RoundOut().Intersect(clip),
	}
}

// Statistics counts how display lists were compared during a diff pass.
type Statistics struct {
	NewPictures                      int
	PicturesTooComplexToCompare      int
	DeepComparePictures              int
	SameInstancePictures             int
	DifferentInstanceButEqualPicture int
	RetainedSubtrees                 int
}

// AddNewPicture counts a display list that differs from its predecessor.
func (s *Statistics) AddNewPicture() { s.NewPictures++ }

// AddPictureTooComplexToCompare counts a comparison skipped for size.
func (s *Statistics) AddPictureTooComplexToCompare() { s.PicturesTooComplexToCompare++ }

// AddDeepComparePicture counts an op-by-op comparison.
func (s *Statistics) AddDeepComparePicture() { s.DeepComparePictures++ }

// AddSameInstancePicture counts a display list reused by reference.
func (s *Statistics) AddSameInstancePicture() { s.SameInstancePictures++ }

// AddDifferentInstanceButEqualPicture counts an equal but rebuilt list.
func (s *Statistics) AddDifferentInstanceButEqualPicture() { s.DifferentInstanceButEqualPicture++ }

// AddRetainedSubtree counts a child kept without diffing.
func (s *Statistics) AddRetainedSubtree() { s.RetainedSubtrees++ }

// Log writes the counters at debug level.
func (s *Statistics) Log() {
	logging.Logger().Debug("diff statistics",
		slog.Int("newPictures", s.NewPictures),
		slog.Int("tooComplex", s.PicturesTooComplexToCompare),
		slog.Int("deepCompare", s.DeepComparePictures),
		slog.Int("sameInstance", s.SameInstancePictures),
		slog.Int("equalPictures", s.DifferentInstanceButEqualPicture),
		slog.Int("retained", s.RetainedSubtrees),
	)
}
