package graphics

import "image"

// Canvas records or renders drawing commands.
type Canvas interface {
	// Save pushes the current transform and clip state.
	Save()

	// SaveLayerAlpha saves a new layer with the given opacity (0.0 to 1.0).
	// All drawing until the matching Restore() call will be composited with this opacity.
	SaveLayerAlpha(bounds Rect, alpha float64)

	// SaveLayerBackdrop saves a layer whose backdrop (content already drawn
	// inside bounds) is processed by filter before drawing continues.
	// This reads back pixels from the target.
	SaveLayerBackdrop(bounds Rect, filter *ImageFilter)

	// Restore pops the most recent save or layer.
	Restore()

	// SaveCount returns the depth of the save stack, starting at 1.
	SaveCount() int

	// RestoreToCount pops saves until SaveCount equals count.
	RestoreToCount(count int)

	// Translate moves the origin by the given offset.
	Translate(dx, dy float64)

	// Scale scales the coordinate system by the given factors.
	Scale(sx, sy float64)

	// Concat pre-multiplies the current transform by m.
	Concat(m Matrix)

	// SetMatrix replaces the current transform.
	SetMatrix(m Matrix)

	// TotalMatrix returns the current transform.
	TotalMatrix() Matrix

	// ClipRect restricts future drawing to the given rectangle.
	ClipRect(rect Rect)

	// Clear fills the current clip with the given color, ignoring blending.
	Clear(color Color)

	// DrawRect draws a rectangle with the provided paint.
	DrawRect(rect Rect, paint Paint)

	// DrawImage draws an image with its top-left corner at the given position,
	// modulated by opacity.
	DrawImage(img image.Image, position Offset, opacity float64)

	// QuickReject reports whether rect, in local coordinates, is certainly
	// outside the current clip.
	QuickReject(rect Rect) bool

	// LocalClipBounds returns the clip in local coordinates.
	LocalClipBounds() Rect

	// DeviceClipBounds returns the clip in device coordinates.
	DeviceClipBounds() Rect

	// Size returns the size of the canvas in pixels.
	Size() Size
}
