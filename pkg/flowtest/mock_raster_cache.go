package flowtest

import (
	"github.com/go-drift/flow/pkg/flow"
	"github.com/go-drift/flow/pkg/graphics"
)

// CacheCall records one call made on a MockRasterCache.
type CacheCall struct {
	Method string
	// Layer is set for layer calls, DisplayList for display list calls.
	Layer       flow.Layer
	DisplayList *graphics.DisplayList
	Matrix      graphics.Matrix
	Opacity     float64
}

// MockRasterCache implements flow.RasterCache. Prepare marks an entry as
// rasterized when Rasterize is set; Draw succeeds for rasterized entries
// and draws a placeholder rect.
type MockRasterCache struct {
	// Rasterize makes Prepare and PrepareDisplayList produce images.
	Rasterize bool

	calls      []CacheCall
	rasterized map[uint64]bool
	displayed  map[uint64]bool
}

// NewMockRasterCache returns a cache that rasterizes on prepare.
func NewMockRasterCache() *MockRasterCache {
	return &MockRasterCache{
		Rasterize:  true,
		rasterized: make(map[uint64]bool),
		displayed:  make(map[uint64]bool),
	}
}

func (c *MockRasterCache) Prepare(_ *flow.PrerollContext, layer flow.Layer, matrix graphics.Matrix) {
	c.calls = append(c.calls, CacheCall{Method: "Prepare", Layer: layer, Matrix: matrix})
	if c.Rasterize {
		c.rasterized[layer.Base().UniqueID()] = true
	}
}

func (c *MockRasterCache) Touch(layer flow.Layer, matrix graphics.Matrix) {
	c.calls = append(c.calls, CacheCall{Method: "Touch", Layer: layer, Matrix: matrix})
}

func (c *MockRasterCache) Draw(layer flow.Layer, canvas graphics.Canvas, opacity float64) bool {
	c.calls = append(c.calls, CacheCall{Method: "Draw", Layer: layer, Matrix: canvas.TotalMatrix(), Opacity: opacity})
	if !c.rasterized[layer.Base().UniqueID()] {
		return false
	}
	canvas.DrawImage(nil, graphics.Offset{}, opacity)
	return true
}

func (c *MockRasterCache) PrepareDisplayList(_ *flow.PrerollContext, dl *graphics.DisplayList, _, willChange bool, matrix graphics.Matrix, _ graphics.Offset) bool {
	c.calls = append(c.calls, CacheCall{Method: "PrepareDisplayList", DisplayList: dl, Matrix: matrix})
	if !c.Rasterize || willChange || dl == nil {
		return false
	}
	c.displayed[dl.ID()] = true
	return true
}

func (c *MockRasterCache) TouchDisplayList(dl *graphics.DisplayList, matrix graphics.Matrix) {
	c.calls = append(c.calls, CacheCall{Method: "TouchDisplayList", DisplayList: dl, Matrix: matrix})
}

func (c *MockRasterCache) DrawDisplayList(dl *graphics.DisplayList, canvas graphics.Canvas, opacity float64) bool {
	c.calls = append(c.calls, CacheCall{Method: "DrawDisplayList", DisplayList: dl, Matrix: canvas.TotalMatrix(), Opacity: opacity})
	if dl == nil || !c.displayed[dl.ID()] {
		return false
	}
	canvas.DrawImage(nil, graphics.Offset{}, opacity)
	return true
}

// Calls returns every recorded call in order.
func (c *MockRasterCache) Calls() []CacheCall {
	return c.calls
}

// CallsTo returns the recorded calls to method.
func (c *MockRasterCache) CallsTo(method string) []CacheCall {
	var out []CacheCall
	for _, call := range c.calls {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

// Reset forgets recorded calls but keeps rasterized entries.
func (c *MockRasterCache) Reset() {
	c.calls = nil
}
