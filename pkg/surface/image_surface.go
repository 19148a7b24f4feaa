package surface

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"
	xdraw "golang.org/x/image/draw"

	"github.com/go-drift/flow/internal/logging"
	"github.com/go-drift/flow/pkg/graphics"
)

// MaxBufferCount is the deepest swapchain ImageSurface supports.
const MaxBufferCount = 3

// ImageSurface is a software swapchain of RGBA back buffers. Presenting a
// frame copies its damaged region into the front image, which holds pixels
// in the surface format.
//
// Each back buffer remembers the damage of every frame presented from other
// buffers since it was last drawn, which becomes the existing damage of the
// next frame acquired on it.
type ImageSurface struct {
	mu       sync.Mutex
	size     image.Point
	format   gputypes.TextureFormat
	buffers  []*backBuffer
	next     int
	front    *image.RGBA
	presents int
	last     SubmitInfo
}

type backBuffer struct {
	img *image.RGBA
	// damage is what the buffer missed since it was last presented. Nil
	// means unknown: never drawn, drawn but not presented, or a frame with
	// unknown damage was presented elsewhere.
	damage *image.Rectangle
}

// NewImageSurface returns an RGBA8Unorm surface of size with bufferCount
// back buffers, clamped to [1, MaxBufferCount].
func NewImageSurface(size image.Point, bufferCount int) *ImageSurface {
	s, _ := NewImageSurfaceWithFormat(size, bufferCount, gputypes.TextureFormatRGBA8Unorm)
	return s
}

// NewImageSurfaceWithFormat is like NewImageSurface but presents in format.
// Formats that are not Drawable return ErrUnsupportedFormat.
func NewImageSurfaceWithFormat(size image.Point, bufferCount int, format gputypes.TextureFormat) (*ImageSurface, error) {
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatRGBA8Unorm
	}
	if !Drawable(format) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	bufferCount = min(max(bufferCount, 1), MaxBufferCount)
	s := &ImageSurface{format: format, buffers: make([]*backBuffer, bufferCount)}
	s.allocate(size)
	return s, nil
}

func (s *ImageSurface) allocate(size image.Point) {
	size.X, size.Y = max(size.X, 1), max(size.Y, 1)
	s.size = size
	bounds := image.Rectangle{Max: size}
	for i := range s.buffers {
		s.buffers[i] = &backBuffer{img: image.NewRGBA(bounds)}
	}
	s.front = image.NewRGBA(bounds)
	s.next = 0
}

// Size returns the surface size in pixels.
func (s *ImageSurface) Size() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Format returns the pixel format of the front image.
func (s *ImageSurface) Format() gputypes.TextureFormat {
	return s.format
}

// BufferCount returns the number of back buffers.
func (s *ImageSurface) BufferCount() int {
	return len(s.buffers)
}

// Resize reallocates every buffer. Damage history is discarded, so the next
// frame on each buffer is a full redraw. Resizing to the current size does
// nothing.
func (s *ImageSurface) Resize(size image.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if size == s.size {
		return
	}
	s.allocate(size)
	logging.Logger().Info("surface resized", slog.Int("width", s.size.X), slog.Int("height", s.size.Y))
}

// AcquireFrame returns a frame drawing into the next back buffer.
func (s *ImageSurface) AcquireFrame() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.buffers[s.next]
	s.next = (s.next + 1) % len(s.buffers)

	info := FramebufferInfo{
		SupportsReadback:       true,
		SupportsPartialRepaint: true,
		Format:                 s.format,
	}
	if buf.damage != nil {
		existing := *buf.damage
		info.ExistingDamage = &existing
	}
	// Until the frame is presented the buffer content is unknown.
	buf.damage = nil

	canvas := graphics.NewRasterCanvas(buf.img)
	return NewFrame(canvas, s.size, info, func(f *Frame, _ graphics.Canvas) error {
		s.present(buf, f.SubmitInfo())
		return nil
	})
}

func (s *ImageSurface) present(buf *backBuffer, info SubmitInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if buf.img.Bounds() != s.front.Bounds() {
		// Acquired before a resize.
		return
	}
	region := s.front.Bounds()
	if info.BufferDamage != nil {
		region = info.BufferDamage.Intersect(region)
	}
	if !region.Empty() {
		if swizzled(s.format) {
			for y := region.Min.Y; y < region.Max.Y; y++ {
				n := 4 * region.Dx()
				src := buf.img.Pix[buf.img.PixOffset(region.Min.X, y):][:n]
				dst := s.front.Pix[s.front.PixOffset(region.Min.X, y):][:n]
				copy(dst, src)
				swizzleRB(dst)
			}
		} else {
			xdraw.Draw(s.front, region, buf.img, region.Min, xdraw.Src)
		}
	}

	for _, other := range s.buffers {
		if other == buf || other.damage == nil {
			continue
		}
		if info.FrameDamage == nil {
			other.damage = nil
			continue
		}
		merged := other.damage.Union(*info.FrameDamage)
		other.damage = &merged
	}
	buf.damage = &image.Rectangle{}
	s.presents++
	s.last = info
}

// PresentCount returns the number of presented frames.
func (s *ImageSurface) PresentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presents
}

// LastSubmitInfo returns the damage of the last presented frame.
func (s *ImageSurface) LastSubmitInfo() SubmitInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Snapshot returns a copy of the front image in RGBA order.
func (s *ImageSurface) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := image.NewRGBA(s.front.Bounds())
	copy(img.Pix, s.front.Pix)
	if swizzled(s.format) {
		swizzleRB(img.Pix)
	}
	return img
}

// FrontBuffer returns a copy of the front pixels in the surface format and
// the row stride in bytes.
func (s *ImageSurface) FrontBuffer() ([]byte, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.front.Pix...), s.front.Stride
}
