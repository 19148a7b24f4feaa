// Package rastercache keeps rasterized images of layers and display lists
// that are drawn unchanged across frames.
//
// An entry is created the first time a layer or display list is prepared
// under a given transform, and rasterized once it has been seen often
// enough. Entries not used during a frame are evicted when the frame ends.
package rastercache

import (
	"image"
	"log/slog"
	"sync"

	"github.com/go-drift/flow/internal/logging"
	"github.com/go-drift/flow/pkg/flow"
	"github.com/go-drift/flow/pkg/graphics"
)

const (
	// DefaultAccessThreshold is how many frames an item must be seen
	// before it is rasterized.
	DefaultAccessThreshold = 3
	// DefaultPerFrameLimit caps display list rasterizations per frame.
	DefaultPerFrameLimit = 3
	// minDisplayListOps is the op count above which a display list that is
	// not marked complex is worth caching.
	minDisplayListOps = 5
)

// Options configures a Cache.
type Options struct {
	// AccessThreshold is the number of accesses before rasterizing.
	// Zero disables the cache.
	AccessThreshold int
	// PerFrameLimit caps new display list images per frame.
	PerFrameLimit int
	// MaxEntries caps the number of entries holding images. Zero means
	// unlimited.
	MaxEntries int
	// Checkerboard tints cached images so they stand out on screen.
	Checkerboard bool
}

// DefaultOptions returns the default thresholds.
func DefaultOptions() Options {
	return Options{AccessThreshold: DefaultAccessThreshold, PerFrameLimit: DefaultPerFrameLimit}
}

type kind uint8

const (
	kindLayer kind = iota
	kindDisplayList
)

func (k kind) String() string {
	if k == kindDisplayList {
		return "displayList"
	}
	return "layer"
}

type key struct {
	id     uint64
	kind   kind
	matrix graphics.Matrix
}

func makeKey(id uint64, k kind, matrix graphics.Matrix) key {
	return key{id: id, kind: k, matrix: matrix.WithIntegralTranslation()}
}

// Image is a rasterized item together with the local rect it covers.
type Image struct {
	pixels  *image.RGBA
	logical graphics.Rect
}

// Bounds returns the image's pixel bounds.
func (i *Image) Bounds() image.Rectangle {
	return i.pixels.Bounds()
}

// ByteSize returns the memory held by the pixels.
func (i *Image) ByteSize() int {
	return len(i.pixels.Pix)
}

// draw blits the image at the device position of its logical rect under
// the canvas transform.
func (i *Image) draw(canvas graphics.Canvas, opacity float64) {
	count := canvas.SaveCount()
	canvas.Save()
	defer canvas.RestoreToCount(count)
	device := canvas.TotalMatrix().MapRect(i.logical).RoundOut()
	canvas.SetMatrix(graphics.Identity())
	canvas.DrawImage(i.pixels, graphics.Offset{X: float64(device.Min.X), Y: float64(device.Min.Y)}, opacity)
}

type entry struct {
	usedThisFrame bool
	accessCount   int
	image         *Image
}

// Metrics describes the entries of one kind after a frame.
type Metrics struct {
	EvictionCount int `json:"evictionCount"`
	EvictionBytes int `json:"evictionBytes"`
	InUseCount    int `json:"inUseCount"`
	InUseBytes    int `json:"inUseBytes"`
}

// TotalCount returns evicted plus in-use entries.
func (m Metrics) TotalCount() int {
	return m.EvictionCount + m.InUseCount
}

// Stats is a snapshot of the cache state.
type Stats struct {
	Entries            int     `json:"entries"`
	Images             int     `json:"images"`
	ImageBytes         int     `json:"imageBytes"`
	Layers             Metrics `json:"layers"`
	DisplayLists       Metrics `json:"displayLists"`
	CachedThisFrame    int     `json:"cachedThisFrame"`
	RasterizedTotal    int     `json:"rasterizedTotal"`
	RasterizeSkipped   int     `json:"rasterizeSkipped"`
	CheckerboardImages bool    `json:"checkerboard"`
}

// Cache implements flow.RasterCache. Methods are safe for concurrent use so
// a debug endpoint can read Stats while frames are rendered, but a frame's
// Prepare, Draw and CleanupAfterFrame calls must come from one goroutine.
type Cache struct {
	opts Options

	mu                 sync.Mutex
	entries            map[key]*entry
	displayListsCached int
	layerMetrics       Metrics
	displayListMetrics Metrics
	rasterizedTotal    int
	rasterizeSkipped   int
}

var _ flow.RasterCache = (*Cache)(nil)

// New returns an empty cache.
func New(opts Options) *Cache {
	if opts.PerFrameLimit < 0 {
		opts.PerFrameLimit = 0
	}
	return &Cache{opts: opts, entries: make(map[key]*entry)}
}

// Options returns the cache configuration.
func (c *Cache) Options() Options {
	return c.opts
}

// generateNewCacheInThisFrame reports whether a new display list image may
// be created this frame. Callers hold mu.
func (c *Cache) generateNewCacheInThisFrame() bool {
	return c.opts.AccessThreshold != 0 && c.displayListsCached < c.opts.PerFrameLimit
}

// hasRoom reports whether another image may be stored. Callers hold mu.
func (c *Cache) hasRoom() bool {
	if c.opts.MaxEntries <= 0 {
		return true
	}
	n := 0
	for _, e := range c.entries {
		if e.image != nil {
			n++
		}
	}
	return n < c.opts.MaxEntries
}

// Prepare counts an access to layer under matrix and rasterizes it once the
// access threshold is reached.
func (c *Cache) Prepare(ctx *flow.PrerollContext, layer flow.Layer, matrix graphics.Matrix) {
	if c.opts.AccessThreshold == 0 {
		return
	}
	if _, ok := matrix.Invert(); !ok {
		return
	}
	k := makeKey(layer.Base().UniqueID(), kindLayer, matrix)

	c.mu.Lock()
	e := c.entry(k)
	e.accessCount++
	e.usedThisFrame = true
	needed := e.image == nil && e.accessCount >= c.opts.AccessThreshold
	if needed && !c.hasRoom() {
		c.rasterizeSkipped++
		needed = false
	}
	c.mu.Unlock()
	if !needed {
		return
	}

	img := c.rasterizeLayer(ctx, layer, k.matrix)
	c.store(k, img)
}

// Touch marks an existing entry as used this frame.
func (c *Cache) Touch(layer flow.Layer, matrix graphics.Matrix) {
	c.touch(makeKey(layer.Base().UniqueID(), kindLayer, matrix))
}

// Draw blits the image cached for layer under the canvas transform.
func (c *Cache) Draw(layer flow.Layer, canvas graphics.Canvas, opacity float64) bool {
	return c.draw(makeKey(layer.Base().UniqueID(), kindLayer, canvas.TotalMatrix()), canvas, opacity)
}

// PrepareDisplayList counts an access to dl drawn at offset under matrix.
// It reports whether an image is available for this frame.
func (c *Cache) PrepareDisplayList(ctx *flow.PrerollContext, dl *graphics.DisplayList, isComplex, willChange bool, matrix graphics.Matrix, offset graphics.Offset) bool {
	c.mu.Lock()
	allowed := c.generateNewCacheInThisFrame()
	c.mu.Unlock()
	if !allowed || !worthRasterizing(dl, isComplex, willChange) {
		return false
	}
	m := matrix.Concat(graphics.TranslateMatrix(offset.X, offset.Y))
	if _, ok := m.Invert(); !ok {
		return false
	}
	k := makeKey(dl.ID(), kindDisplayList, m)

	c.mu.Lock()
	e := c.entry(k)
	e.accessCount++
	e.usedThisFrame = true
	if e.accessCount < c.opts.AccessThreshold {
		c.mu.Unlock()
		return false
	}
	if e.image != nil {
		c.mu.Unlock()
		return true
	}
	if !c.hasRoom() {
		c.rasterizeSkipped++
		c.mu.Unlock()
		return false
	}
	c.displayListsCached++
	c.mu.Unlock()

	img := c.rasterizeDisplayList(dl, k.matrix)
	c.store(k, img)
	return img != nil
}

// TouchDisplayList marks an existing display list entry as used.
func (c *Cache) TouchDisplayList(dl *graphics.DisplayList, matrix graphics.Matrix) {
	if dl == nil {
		return
	}
	c.touch(makeKey(dl.ID(), kindDisplayList, matrix))
}

// DrawDisplayList blits the image cached for dl under the canvas transform.
func (c *Cache) DrawDisplayList(dl *graphics.DisplayList, canvas graphics.Canvas, opacity float64) bool {
	if dl == nil {
		return false
	}
	return c.draw(makeKey(dl.ID(), kindDisplayList, canvas.TotalMatrix()), canvas, opacity)
}

func worthRasterizing(dl *graphics.DisplayList, isComplex, willChange bool) bool {
	if dl == nil || willChange {
		return false
	}
	if dl.Bounds().IsEmpty() {
		return false
	}
	if isComplex {
		return true
	}
	return dl.OpCount() > minDisplayListOps
}

// entry returns the entry for k, creating it. Callers hold mu.
func (c *Cache) entry(k key) *entry {
	e := c.entries[k]
	if e == nil {
		e = &entry{}
		c.entries[k] = e
	}
	return e
}

func (c *Cache) store(k key, img *Image) {
	if img == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.entries[k]; e != nil && e.image == nil {
		e.image = img
		c.rasterizedTotal++
	}
}

func (c *Cache) touch(k key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.entries[k]; e != nil {
		e.usedThisFrame = true
		e.accessCount++
	}
}

func (c *Cache) draw(k key, canvas graphics.Canvas, opacity float64) bool {
	c.mu.Lock()
	e := c.entries[k]
	if e == nil {
		c.mu.Unlock()
		return false
	}
	e.accessCount++
	e.usedThisFrame = true
	img := e.image
	c.mu.Unlock()

	if img == nil {
		return false
	}
	img.draw(canvas, opacity)
	return true
}

// PrepareNewFrame resets the per-frame rasterization budget.
func (c *Cache) PrepareNewFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.displayListsCached = 0
}

// CleanupAfterFrame evicts entries not used this frame and records the
// metrics of the frame.
func (c *Cache) CleanupAfterFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layerMetrics = Metrics{}
	c.displayListMetrics = Metrics{}
	for k, e := range c.entries {
		metrics := &c.layerMetrics
		if k.kind == kindDisplayList {
			metrics = &c.displayListMetrics
		}
		bytes := 0
		if e.image != nil {
			bytes = e.image.ByteSize()
		}
		if !e.usedThisFrame {
			metrics.EvictionCount++
			metrics.EvictionBytes += bytes
			delete(c.entries, k)
			continue
		}
		metrics.InUseCount++
		metrics.InUseBytes += bytes
		e.usedThisFrame = false
	}
	logging.Logger().Debug("raster cache swept",
		slog.Int("layersInUse", c.layerMetrics.InUseCount),
		slog.Int("layersEvicted", c.layerMetrics.EvictionCount),
		slog.Int("displayListsInUse", c.displayListMetrics.InUseCount),
		slog.Int("displayListsEvicted", c.displayListMetrics.EvictionCount),
	)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[key]*entry)
	c.displayListsCached = 0
}

// EntryCount returns the number of entries, with or without images.
func (c *Cache) EntryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// ImageCount returns the number of entries holding images.
func (c *Cache) ImageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.image != nil {
			n++
		}
	}
	return n
}

// Stats returns a snapshot of the cache.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Entries:            len(c.entries),
		Layers:             c.layerMetrics,
		DisplayLists:       c.displayListMetrics,
		CachedThisFrame:    c.displayListsCached,
		RasterizedTotal:    c.rasterizedTotal,
		RasterizeSkipped:   c.rasterizeSkipped,
		CheckerboardImages: c.opts.Checkerboard,
	}
	for _, e := range c.entries {
		if e.image != nil {
			s.Images++
			s.ImageBytes += e.image.ByteSize()
		}
	}
	return s
}
