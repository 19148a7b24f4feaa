package flow

import "github.com/go-drift/flow/pkg/graphics"

// rectList is the append-only rect storage shared by all paint regions
// recorded during one diff pass.
type rectList struct {
	rects []graphics.Rect
}

// PaintRegion is the set of rects a layer subtree painted in a frame, plus
// flags that make the subtree unsafe to retain without diffing.
// The zero value is invalid: no region was recorded.
type PaintRegion struct {
	list        *rectList
	from, to    int
	hasReadback bool
	hasTexture  bool
}

// IsValid reports whether the region was recorded.
func (r PaintRegion) IsValid() bool {
	return r.list != nil
}

// Rects returns the rects of the region. The slice must not be modified.
func (r PaintRegion) Rects() []graphics.Rect {
	if r.list == nil {
		return nil
	}
	return r.list.rects[r.from:r.to:r.to]
}

// Bounds returns the union of the region's rects.
func (r PaintRegion) Bounds() graphics.Rect {
	var out graphics.Rect
	for _, rect := range r.Rects() {
		out = out.Join(rect)
	}
	return out
}

// HasReadback reports whether the subtree samples already painted pixels.
func (r PaintRegion) HasReadback() bool {
	return r.hasReadback
}

// HasTexture reports whether the subtree contains externally produced
// content.
func (r PaintRegion) HasTexture() bool {
	return r.hasTexture
}

// PaintRegionMap maps layer unique ids to the region they painted.
type PaintRegionMap map[uint64]PaintRegion
