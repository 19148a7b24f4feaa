package engine

import (
	stderrors "errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/go-drift/flow/pkg/errors"
	"github.com/go-drift/flow/pkg/flow"
	"github.com/go-drift/flow/pkg/flowtest"
	"github.com/go-drift/flow/pkg/graphics"
	"github.com/go-drift/flow/pkg/rastercache"
	"github.com/go-drift/flow/pkg/surface"
)

var frameSize = image.Pt(40, 20)

func square(x float64, c graphics.Color) *flowtest.MockLayer {
	return flowtest.NewMockLayerColor(graphics.RectFromLTWH(x, 0, 10, 10), c)
}

type recordingHandler struct {
	errs []*errors.FlowError
}

func (h *recordingHandler) HandleError(err *errors.FlowError)      { h.errs = append(h.errs, err) }
func (h *recordingHandler) HandlePanic(*errors.PanicError)         {}
func (h *recordingHandler) HandleInvariant(*errors.InvariantError) {}

func draw(t *testing.T, r *Rasterizer, root flow.Layer) FrameResult {
	t.Helper()
	result, err := r.Draw(flow.NewLayerTree(root, frameSize))
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	return result
}

func TestRasterizer_FirstFrameIsFullRedraw(t *testing.T) {
	s := surface.NewImageSurface(frameSize, 1)
	r := NewRasterizer(s, Options{PartialRepaint: true})

	result := draw(t, r, flow.NewContainerLayer(square(0, graphics.ColorRed)))
	if !result.FullRedraw || !result.Submitted {
		t.Errorf("result = %+v, want full redraw and submitted", result)
	}
	if got, want := result.Damage.BufferDamage, (image.Rectangle{Max: frameSize}); got != want {
		t.Errorf("buffer damage = %v, want %v", got, want)
	}
	if got, want := s.Snapshot().RGBAAt(5, 5), (color.RGBA{R: 255, A: 255}); got != want {
		t.Errorf("pixel = %v, want %v", got, want)
	}
	if result.Frame != 1 {
		t.Errorf("Frame = %d, want 1", result.Frame)
	}
}

func TestRasterizer_UnchangedFrameHasNoDamage(t *testing.T) {
	s := surface.NewImageSurface(frameSize, 1)
	r := NewRasterizer(s, Options{PartialRepaint: true})
	root := flow.NewContainerLayer(square(0, graphics.ColorRed), square(20, graphics.ColorBlue))

	draw(t, r, root)
	result := draw(t, r, root)
	if result.FullRedraw {
		t.Error("unchanged frame redrawn in full")
	}
	if !result.Damage.BufferDamage.Empty() {
		t.Errorf("buffer damage = %v, want empty", result.Damage.BufferDamage)
	}
	if result.Retained != 2 {
		t.Errorf("Retained = %d, want 2", result.Retained)
	}
	if !result.Submitted {
		t.Error("frame with no damage should still be submitted")
	}
}

func TestRasterizer_PartialRepaint(t *testing.T) {
	s := surface.NewImageSurface(frameSize, 1)
	r := NewRasterizer(s, Options{PartialRepaint: true})
	a := square(0, graphics.ColorRed)
	root1 := flow.NewContainerLayer(a, square(20, graphics.ColorBlue))
	draw(t, r, root1)

	root2 := flow.NewContainerLayer(a, square(20, graphics.ColorGreen))
	root2.AssignOldLayer(root1)
	result := draw(t, r, root2)

	if result.FullRedraw {
		t.Fatal("changed child caused a full redraw")
	}
	if got, want := result.Damage.BufferDamage, image.Rect(20, 0, 30, 10); got != want {
		t.Errorf("buffer damage = %v, want %v", got, want)
	}
	front := s.Snapshot()
	if got, want := front.RGBAAt(25, 5), (color.RGBA{G: 255, A: 255}); got != want {
		t.Errorf("repainted pixel = %v, want %v", got, want)
	}
	if got, want := front.RGBAAt(5, 5), (color.RGBA{R: 255, A: 255}); got != want {
		t.Errorf("kept pixel = %v, want %v", got, want)
	}
	if got := a.PaintCount(); got != 1 {
		t.Errorf("undamaged layer painted %d times, want 1", got)
	}
}

func TestRasterizer_DoubleBufferCarriesDamage(t *testing.T) {
	s := surface.NewImageSurface(frameSize, 2)
	r := NewRasterizer(s, Options{PartialRepaint: true})
	a := square(0, graphics.ColorRed)
	root1 := flow.NewContainerLayer(a, square(20, graphics.ColorBlue))

	if !draw(t, r, root1).FullRedraw {
		t.Error("frame 1 should redraw in full")
	}
	if !draw(t, r, root1).FullRedraw {
		t.Error("frame 2 uses a fresh buffer and should redraw in full")
	}
	if got := draw(t, r, root1); got.FullRedraw || !got.Damage.BufferDamage.Empty() {
		t.Errorf("frame 3 = %+v, want no damage", got)
	}

	root2 := flow.NewContainerLayer(a, square(20, graphics.ColorGreen))
	root2.AssignOldLayer(root1)
	changed := draw(t, r, root2)
	if got, want := changed.Damage.BufferDamage, image.Rect(20, 0, 30, 10); got != want {
		t.Errorf("frame 4 buffer damage = %v, want %v", got, want)
	}

	result := draw(t, r, root2)
	if !result.Damage.FrameDamage.Empty() {
		t.Errorf("frame 5 frame damage = %v, want empty", result.Damage.FrameDamage)
	}
	if got, want := result.Damage.BufferDamage, image.Rect(20, 0, 30, 10); got != want {
		t.Errorf("frame 5 buffer damage = %v, want %v", got, want)
	}
	if got, want := s.Snapshot().RGBAAt(25, 5), (color.RGBA{G: 255, A: 255}); got != want {
		t.Errorf("pixel = %v, want %v", got, want)
	}
}

func TestRasterizer_PartialRepaintDisabled(t *testing.T) {
	s := surface.NewImageSurface(frameSize, 1)
	r := NewRasterizer(s, Options{})
	root := flow.NewContainerLayer(square(0, graphics.ColorRed))
	draw(t, r, root)
	result := draw(t, r, root)
	if !result.FullRedraw {
		t.Error("FullRedraw = false with partial repaint disabled")
	}
	if !result.Damage.FrameDamage.Empty() {
		t.Errorf("frame damage = %v, want empty", result.Damage.FrameDamage)
	}
}

func TestRasterizer_ResizesSurface(t *testing.T) {
	s := surface.NewImageSurface(image.Pt(10, 10), 1)
	r := NewRasterizer(s, Options{PartialRepaint: true})
	result := draw(t, r, flow.NewContainerLayer(square(0, graphics.ColorRed)))
	if got := s.Size(); got != frameSize {
		t.Errorf("surface size = %v, want %v", got, frameSize)
	}
	if !result.FullRedraw {
		t.Error("resized frame should redraw in full")
	}
}

func TestRasterizer_NilTree(t *testing.T) {
	r := NewRasterizer(surface.NewImageSurface(frameSize, 1), Options{})
	if _, err := r.Draw(nil); !stderrors.Is(err, ErrNoLayerTree) {
		t.Errorf("Draw(nil) = %v, want ErrNoLayerTree", err)
	}
}

type failingSurface struct {
	err error
}

func (s failingSurface) AcquireFrame() *surface.Frame {
	canvas := graphics.NewRasterCanvas(image.NewRGBA(image.Rectangle{Max: frameSize}))
	return surface.NewFrame(canvas, frameSize, surface.FramebufferInfo{}, func(*surface.Frame, graphics.Canvas) error {
		return s.err
	})
}

func TestRasterizer_SubmitFailureIsReported(t *testing.T) {
	handler := &recordingHandler{}
	errors.SetHandler(handler)
	defer errors.SetHandler(nil)

	boom := stderrors.New("swap failed")
	r := NewRasterizer(failingSurface{err: boom}, Options{PartialRepaint: true})
	root := flow.NewContainerLayer(square(0, graphics.ColorRed))

	result, err := r.Draw(flow.NewLayerTree(root, frameSize))
	if !stderrors.Is(err, boom) {
		t.Fatalf("Draw = %v, want wrapped %v", err, boom)
	}
	var fe *errors.FlowError
	if !stderrors.As(err, &fe) || fe.Kind != errors.KindSubmit || fe.Frame != 1 {
		t.Errorf("error = %#v, want submit FlowError for frame 1", err)
	}
	if result.Submitted {
		t.Error("Submitted = true for a failed present")
	}
	if len(handler.errs) != 1 {
		t.Errorf("reported %d errors, want 1", len(handler.errs))
	}

	if _, err := r.Draw(flow.NewLayerTree(root, frameSize)); !stderrors.Is(err, boom) {
		t.Errorf("second Draw = %v, want the pipeline to keep running", err)
	}
	if got := r.LastResult().Frame; got != 2 {
		t.Errorf("LastResult().Frame = %d, want 2", got)
	}
}

func TestRasterizer_RasterCacheLifecycle(t *testing.T) {
	cache := rastercache.New(rastercache.Options{AccessThreshold: 2, PerFrameLimit: 3})
	r := NewRasterizer(surface.NewImageSurface(frameSize, 1), Options{PartialRepaint: true, RasterCache: cache})
	opacity := flow.NewOpacityLayer(0.5, graphics.Offset{},
		square(0, graphics.ColorRed), square(5, graphics.ColorBlue))

	draw(t, r, opacity)
	if got := cache.ImageCount(); got != 0 {
		t.Fatalf("ImageCount after one frame = %d, want 0", got)
	}
	draw(t, r, opacity)
	if got := cache.ImageCount(); got != 1 {
		t.Errorf("ImageCount after two frames = %d, want 1", got)
	}

	draw(t, r, flow.NewContainerLayer(square(0, graphics.ColorRed)))
	if got := cache.EntryCount(); got != 0 {
		t.Errorf("EntryCount after the layer went away = %d, want 0", got)
	}
	if got := cache.Stats().Layers.EvictionCount; got != 1 {
		t.Errorf("EvictionCount = %d, want 1", got)
	}
}

func TestRasterizer_Trace(t *testing.T) {
	trace := NewFrameTraceBuffer(4, 0)
	r := NewRasterizer(surface.NewImageSurface(frameSize, 1), Options{PartialRepaint: true, Trace: trace})
	root := flow.NewContainerLayer(square(0, graphics.ColorRed), square(20, graphics.ColorBlue))
	for range 6 {
		draw(t, r, root)
	}

	timeline := trace.Snapshot()
	if len(timeline.Samples) != 4 {
		t.Fatalf("samples = %d, want 4", len(timeline.Samples))
	}
	last := timeline.Samples[3]
	if last.Frame != 6 {
		t.Errorf("last sample frame = %d, want 6", last.Frame)
	}
	if last.Counts.Layers != 3 {
		t.Errorf("Layers = %d, want 3", last.Counts.Layers)
	}
	if last.Counts.RetainedSubtrees != 2 || last.Counts.DamageArea != 0 {
		t.Errorf("counts = %+v, want 2 retained and no damage", last.Counts)
	}
	if !last.Flags.Submitted || last.Flags.FullRedraw {
		t.Errorf("flags = %+v", last.Flags)
	}
	if first := timeline.Samples[0]; first.Frame != 3 {
		t.Errorf("oldest sample frame = %d, want 3", first.Frame)
	}
}

func TestRasterizer_SnapshotWhileDrawing(t *testing.T) {
	r := NewRasterizer(surface.NewImageSurface(frameSize, 2), Options{PartialRepaint: true})
	shared := square(0, graphics.ColorRed)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if snap := r.LastSnapshot(); snap != nil && snap.Root != nil {
				for _, child := range snap.Root.Children {
					_ = child.Bounds
				}
			}
			_ = r.LastResult()
		}
	}()

	const frames = 200
	for range frames {
		draw(t, r, flow.NewContainerLayer(shared, square(20, graphics.ColorBlue)))
	}
	close(done)
	wg.Wait()

	snap := r.LastSnapshot()
	if snap == nil || snap.Frame != frames {
		t.Fatalf("snapshot = %+v, want frame %d", snap, frames)
	}
	if n := snap.LayerCount(); n != 3 {
		t.Errorf("LayerCount() = %d, want 3", n)
	}
	if got := snap.Root.Children[0].Bounds; got != graphics.RectFromLTWH(0, 0, 10, 10) {
		t.Errorf("shared layer bounds = %v", got)
	}
}

func TestRasterizer_NoSnapshotBeforeFirstFrame(t *testing.T) {
	r := NewRasterizer(surface.NewImageSurface(frameSize, 2), Options{})
	if r.LastSnapshot() != nil {
		t.Error("expected no snapshot before the first frame")
	}
	draw(t, r, nil)
	if snap := r.LastSnapshot(); snap == nil || snap.Root != nil || snap.LayerCount() != 0 {
		t.Errorf("expected an empty snapshot for a nil root, got %+v", snap)
	}
}

type formatSurface struct {
	format gputypes.TextureFormat
	last   *surface.Frame
}

func (s *formatSurface) AcquireFrame() *surface.Frame {
	canvas := graphics.NewRasterCanvas(image.NewRGBA(image.Rectangle{Max: frameSize}))
	info := surface.FramebufferInfo{SupportsPartialRepaint: true, Format: s.format}
	s.last = surface.NewFrame(canvas, frameSize, info, func(*surface.Frame, graphics.Canvas) error { return nil })
	return s.last
}

func TestRasterizer_RejectsUndrawableFormat(t *testing.T) {
	handler := &recordingHandler{}
	errors.SetHandler(handler)
	defer errors.SetHandler(nil)

	s := &formatSurface{format: gputypes.TextureFormatRGBA16Float}
	r := NewRasterizer(s, Options{PartialRepaint: true})
	result, err := r.Draw(flow.NewLayerTree(flow.NewContainerLayer(square(0, graphics.ColorRed)), frameSize))

	if !stderrors.Is(err, surface.ErrUnsupportedFormat) {
		t.Fatalf("Draw = %v, want ErrUnsupportedFormat", err)
	}
	var fe *errors.FlowError
	if !stderrors.As(err, &fe) || fe.Kind != errors.KindPaint {
		t.Errorf("error = %#v, want paint FlowError", err)
	}
	if s.last.State() != surface.FrameAbandoned {
		t.Errorf("frame state = %v, want abandoned", s.last.State())
	}
	if result.Submitted || len(handler.errs) != 1 {
		t.Errorf("submitted = %v, reported = %d", result.Submitted, len(handler.errs))
	}
}

func TestRasterizer_DrawsBGRAFormat(t *testing.T) {
	s := &formatSurface{format: gputypes.TextureFormatBGRA8Unorm}
	r := NewRasterizer(s, Options{PartialRepaint: true})
	draw(t, r, flow.NewContainerLayer(square(0, graphics.ColorRed)))
	if s.last.State() != surface.FrameSubmitted {
		t.Errorf("frame state = %v, want submitted", s.last.State())
	}
}
