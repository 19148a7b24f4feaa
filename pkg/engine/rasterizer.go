// Package engine drives layer trees through the per-frame pipeline: preroll,
// diff against the previous frame, paint the damaged region, and submit the
// frame to a surface.
package engine

import (
	stderrors "errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/go-drift/flow/internal/logging"
	"github.com/go-drift/flow/pkg/errors"
	"github.com/go-drift/flow/pkg/flow"
	"github.com/go-drift/flow/pkg/graphics"
	"github.com/go-drift/flow/pkg/surface"
)

// ErrNoLayerTree is returned by Draw for a nil tree.
var ErrNoLayerTree = stderrors.New("engine: no layer tree")

// Surface hands out frames to draw into.
type Surface interface {
	AcquireFrame() *surface.Frame
}

// resizableSurface is implemented by surfaces that can follow the layer
// tree's frame size.
type resizableSurface interface {
	Size() image.Point
	Resize(size image.Point)
}

// RasterCache is a flow.RasterCache with a frame lifecycle.
type RasterCache interface {
	flow.RasterCache
	PrepareNewFrame()
	CleanupAfterFrame()
}

// Options configures a Rasterizer.
type Options struct {
	// PartialRepaint limits painting to the buffer damage. When false every
	// frame is redrawn in full.
	PartialRepaint bool
	// DevicePixelRatio scales logical pixels to device pixels. Defaults to 1.
	DevicePixelRatio float64
	// Background fills damaged pixels before the tree paints.
	Background graphics.Color

	CheckerboardOffscreenLayers bool

	// RasterCache, TextureRegistry and ViewEmbedder are optional.
	RasterCache     RasterCache
	TextureRegistry *flow.TextureRegistry
	ViewEmbedder    flow.ViewEmbedder

	// Trace receives one sample per frame when set.
	Trace *FrameTraceBuffer
}

// FrameResult describes one drawn frame.
type FrameResult struct {
	// Frame numbers frames from 1.
	Frame uint64
	// Damage is the diff result. BufferDamage is the area actually painted.
	Damage flow.Damage
	// FullRedraw is set when the whole buffer was repainted.
	FullRedraw bool
	// Retained counts subtrees reused without diffing.
	Retained int
	// Submitted reports whether the surface accepted the frame.
	Submitted bool
}

// TreeSnapshot is a copy of a drawn tree's structure. It shares nothing
// with the layers, so it can be read while later frames are drawn.
type TreeSnapshot struct {
	Frame      uint64
	FrameSize  image.Point
	Statistics flow.Statistics
	// Root is nil for an empty tree.
	Root *flow.LayerInfo
}

// Rasterizer draws successive layer trees onto a surface, repainting only
// what changed. Draw calls must not overlap. Layer trees share retained
// layers with the frame being drawn, so other goroutines only see frames
// through LastResult and LastSnapshot.
type Rasterizer struct {
	surface Surface
	opts    Options

	prev   *flow.LayerTree
	frames uint64

	mu       sync.Mutex
	snapshot *TreeSnapshot
	last     FrameResult
}

// NewRasterizer returns a rasterizer presenting to s.
func NewRasterizer(s Surface, opts Options) *Rasterizer {
	if opts.DevicePixelRatio <= 0 {
		opts.DevicePixelRatio = 1
	}
	return &Rasterizer{surface: s, opts: opts}
}

func (r *Rasterizer) frameContext() flow.FrameContext {
	fc := flow.FrameContext{
		TextureRegistry:             r.opts.TextureRegistry,
		ViewEmbedder:                r.opts.ViewEmbedder,
		DevicePixelRatio:            r.opts.DevicePixelRatio,
		CheckerboardOffscreenLayers: r.opts.CheckerboardOffscreenLayers,
	}
	if r.opts.RasterCache != nil {
		fc.RasterCache = r.opts.RasterCache
	}
	return fc
}

// Draw runs one frame for tree. A frame the surface rejects is reported
// and returned as an error; the pipeline stays usable for the next frame.
// Broken tree invariants panic.
func (r *Rasterizer) Draw(tree *flow.LayerTree) (FrameResult, error) {
	if tree == nil {
		return FrameResult{}, ErrNoLayerTree
	}
	r.frames++
	result := FrameResult{Frame: r.frames}

	frameStart := time.Now()
	var sample FrameSample
	sample.Frame = r.frames
	sample.Timestamp = frameStart.UnixMilli()

	if rs, ok := r.surface.(resizableSurface); ok && rs.Size() != tree.FrameSize() {
		rs.Resize(tree.FrameSize())
	}

	fc := r.frameContext()
	if r.opts.RasterCache != nil {
		r.opts.RasterCache.PrepareNewFrame()
	}

	phaseStart := time.Now()
	needsReadback := tree.Preroll(fc)
	sample.Phases.PrerollMs = durationToMillis(time.Since(phaseStart))
	sample.Flags.NeedsReadback = needsReadback

	frame := r.surface.AcquireFrame()
	info := frame.FramebufferInfo()
	if needsReadback && !info.SupportsReadback {
		logging.Logger().Warn("surface cannot read back pixels", slog.Uint64("frame", r.frames))
	}
	if !surface.Drawable(info.Format) {
		frame.Discard()
		err := &errors.FlowError{
			Op:    "engine.Rasterizer.Draw",
			Kind:  errors.KindPaint,
			Err:   fmt.Errorf("%w: %s", surface.ErrUnsupportedFormat, info.Format),
			Frame: r.frames,
		}
		errors.Report(err)
		return result, err
	}
	if frame.Size() != tree.FrameSize() {
		frame.Discard()
		err := &errors.FlowError{
			Op:    "engine.Rasterizer.Draw",
			Kind:  errors.KindPaint,
			Err:   fmt.Errorf("surface frame %v does not match tree %v", frame.Size(), tree.FrameSize()),
			Frame: r.frames,
		}
		errors.Report(err)
		return result, err
	}

	var accumulated image.Rectangle
	if info.ExistingDamage != nil {
		accumulated = *info.ExistingDamage
	}
	phaseStart = time.Now()
	damage := tree.Diff(r.prev, accumulated, r.opts.DevicePixelRatio)
	sample.Phases.DiffMs = durationToMillis(time.Since(phaseStart))

	full := image.Rectangle{Max: tree.FrameSize()}
	result.FullRedraw = !r.opts.PartialRepaint || info.NeedsFullRedraw() || r.prev == nil
	if result.FullRedraw {
		damage.BufferDamage = full
	}
	result.Damage = damage
	stats := tree.DiffStatistics()
	result.Retained = stats.RetainedSubtrees
	snapshot := &TreeSnapshot{Frame: r.frames, FrameSize: tree.FrameSize(), Statistics: stats}
	if root := tree.Root(); root != nil {
		info := flow.Describe(root)
		snapshot.Root = &info
	}

	phaseStart = time.Now()
	if !damage.BufferDamage.Empty() {
		r.paint(frame.Canvas(), tree, fc, damage.BufferDamage)
	}
	sample.Phases.PaintMs = durationToMillis(time.Since(phaseStart))

	frameDamage, bufferDamage := damage.FrameDamage, damage.BufferDamage
	frame.SetSubmitInfo(surface.SubmitInfo{FrameDamage: &frameDamage, BufferDamage: &bufferDamage})

	phaseStart = time.Now()
	var submitErr error
	if err := frame.Submit(); err != nil {
		fe := &errors.FlowError{Op: "engine.Rasterizer.Draw", Kind: errors.KindSubmit, Err: err, Frame: r.frames}
		errors.Report(fe)
		submitErr = fe
	} else {
		result.Submitted = true
	}
	sample.Phases.SubmitMs = durationToMillis(time.Since(phaseStart))

	if r.opts.RasterCache != nil {
		r.opts.RasterCache.CleanupAfterFrame()
	}
	r.prev = tree

	r.mu.Lock()
	r.snapshot = snapshot
	r.last = result
	r.mu.Unlock()

	logging.Logger().Debug("frame drawn",
		slog.Uint64("frame", result.Frame),
		slog.String("damage", damage.BufferDamage.String()),
		slog.Bool("fullRedraw", result.FullRedraw),
		slog.Int("retained", result.Retained),
	)

	if r.opts.Trace != nil {
		sample.Counts = FrameCounts{
			Layers:           snapshot.LayerCount(),
			RetainedSubtrees: stats.RetainedSubtrees,
			NewPictures:      stats.NewPictures,
			DamageArea:       damage.BufferDamage.Dx() * damage.BufferDamage.Dy(),
		}
		if c, ok := r.opts.RasterCache.(interface{ ImageCount() int }); ok {
			sample.Counts.RasterCacheImages = c.ImageCount()
		}
		sample.Flags.FullRedraw = result.FullRedraw
		sample.Flags.Submitted = result.Submitted
		b := damage.BufferDamage
		sample.Damage = [4]int{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y}
		frameDuration := time.Since(frameStart)
		sample.FrameMs = durationToMillis(frameDuration)
		r.opts.Trace.Add(sample, frameDuration)
	}
	return result, submitErr
}

// paint repaints tree inside region.
func (r *Rasterizer) paint(canvas graphics.Canvas, tree *flow.LayerTree, fc flow.FrameContext, region image.Rectangle) {
	count := canvas.SaveCount()
	canvas.Save()
	defer canvas.RestoreToCount(count)
	canvas.ClipRect(graphics.RectFromImage(region))
	canvas.Clear(r.opts.Background)
	tree.Paint(canvas, fc)
}

// LastSnapshot returns the structure of the most recent frame's tree, or
// nil before the first frame. The snapshot is taken after Diff.
func (r *Rasterizer) LastSnapshot() *TreeSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

// LastResult returns the result of the most recent frame.
func (r *Rasterizer) LastResult() FrameResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Options returns the rasterizer configuration.
func (r *Rasterizer) Options() Options {
	return r.opts
}

// LayerCount returns the number of layers in the snapshot.
func (s *TreeSnapshot) LayerCount() int {
	if s.Root == nil {
		return 0
	}
	return countInfo(*s.Root)
}

func countInfo(info flow.LayerInfo) int {
	n := 1
	for _, child := range info.Children {
		n += countInfo(child)
	}
	return n
}
