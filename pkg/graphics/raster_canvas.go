package graphics

import (
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// RasterCanvas renders drawing commands into an *image.RGBA.
// Shapes are rasterized by gg; images and layers are composited with
// golang.org/x/image/draw. The gg context always runs with an identity
// transform and geometry is mapped through the canvas state first.
type RasterCanvas struct {
	StateStack

	size   Size
	base   *rasterTarget
	layers []rasterLayer
}

type rasterTarget struct {
	img     *image.RGBA
	ctx     *gg.Context
	clip    Rect
	clipped bool
}

type rasterLayer struct {
	target    *rasterTarget // nil when the layer draws straight into its parent
	saveCount int
	alpha     float64
	bounds    image.Rectangle
}

// NewRasterCanvas wraps dst. The image must be anchored at the origin.
func NewRasterCanvas(dst *image.RGBA) *RasterCanvas {
	b := dst.Bounds()
	size := Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
	return &RasterCanvas{
		StateStack: NewStateStack(size),
		size:       size,
		base:       newRasterTarget(dst),
	}
}

func newRasterTarget(img *image.RGBA) *rasterTarget {
	return &rasterTarget{img: img, ctx: gg.NewContextForRGBA(img)}
}

// Image returns the image the canvas draws into.
func (c *RasterCanvas) Image() *image.RGBA {
	return c.base.img
}

// Size returns the canvas size in pixels.
func (c *RasterCanvas) Size() Size {
	return c.size
}

func (c *RasterCanvas) target() *rasterTarget {
	for i := len(c.layers) - 1; i >= 0; i-- {
		if c.layers[i].target != nil {
			return c.layers[i].target
		}
	}
	return c.base
}

// SaveLayerAlpha redirects drawing into an offscreen image that is blended
// back with alpha on the matching Restore.
func (c *RasterCanvas) SaveLayerAlpha(bounds Rect, alpha float64) {
	deviceBounds := c.layerBounds(bounds)
	c.StateStack.Save()
	layer := rasterLayer{saveCount: c.SaveCount(), alpha: clamp01(alpha), bounds: deviceBounds}
	if !deviceBounds.Empty() {
		layer.target = newRasterTarget(image.NewRGBA(c.base.img.Bounds()))
	}
	c.layers = append(c.layers, layer)
}

// SaveLayerBackdrop filters the pixels already drawn inside bounds. Drawing
// until the matching Restore continues on top of the filtered backdrop.
func (c *RasterCanvas) SaveLayerBackdrop(bounds Rect, filter *ImageFilter) {
	deviceBounds := c.layerBounds(bounds)
	if filter != nil && !deviceBounds.Empty() {
		blurRegion(c.target().img, deviceBounds, filter.SigmaX, filter.SigmaY)
	}
	c.StateStack.Save()
	c.layers = append(c.layers, rasterLayer{saveCount: c.SaveCount(), alpha: 1, bounds: deviceBounds})
}

func (c *RasterCanvas) layerBounds(bounds Rect) image.Rectangle {
	device := c.DeviceClipBounds()
	if !bounds.IsEmpty() {
		device = device.Intersect(c.TotalMatrix().MapRect(bounds))
	}
	return device.RoundOut().Intersect(c.base.img.Bounds())
}

// Restore pops the most recent save, compositing a layer if one was pushed.
func (c *RasterCanvas) Restore() {
	if n := len(c.layers); n > 0 && c.layers[n-1].saveCount == c.SaveCount() {
		layer := c.layers[n-1]
		c.layers = c.layers[:n-1]
		if layer.target != nil && layer.alpha > 0 {
			dst := c.target().img
			mask := image.NewUniform(color.Alpha{A: alpha01ToByte(layer.alpha)})
			xdraw.DrawMask(dst, layer.bounds, layer.target.img, layer.bounds.Min, mask, image.Point{}, xdraw.Over)
		}
	}
	c.StateStack.Restore()
}

// RestoreToCount pops saves until SaveCount equals count.
func (c *RasterCanvas) RestoreToCount(count int) {
	if count < 1 {
		count = 1
	}
	for c.SaveCount() > count {
		c.Restore()
	}
}

// Clear replaces the pixels inside the clip with color.
func (c *RasterCanvas) Clear(col Color) {
	t := c.target()
	r := c.DeviceClipBounds().RoundOut().Intersect(t.img.Bounds())
	if r.Empty() {
		return
	}
	xdraw.Draw(t.img, r, image.NewUniform(col.NRGBA()), image.Point{}, xdraw.Src)
}

// DrawRect fills or strokes rect.
func (c *RasterCanvas) DrawRect(rect Rect, paint Paint) {
	if paint.Color.Alpha() == 0 || c.QuickReject(rect.Outset(paint.outset(), paint.outset())) {
		return
	}
	t := c.target()
	c.applyClip(t)
	ctx := t.ctx
	ctx.SetColor(paint.Color.NRGBA())
	m := c.TotalMatrix()
	if m.IsScaleTranslate() {
		d := m.MapRect(rect)
		ctx.DrawRectangle(d.Left, d.Top, d.Width(), d.Height())
	} else {
		quad := m.MapQuad(rect)
		ctx.MoveTo(quad[0].X, quad[0].Y)
		for _, p := range quad[1:] {
			ctx.LineTo(p.X, p.Y)
		}
		ctx.ClosePath()
	}
	if paint.Style == PaintStyleStroke {
		ctx.SetLineWidth(paint.StrokeWidth * math.Sqrt(math.Abs(m.Determinant())))
		ctx.Stroke()
		return
	}
	ctx.Fill()
}

// DrawImage draws img at position through the current transform.
func (c *RasterCanvas) DrawImage(img image.Image, position Offset, opacity float64) {
	if img == nil || opacity <= 0 {
		return
	}
	src := img.Bounds()
	local := RectFromLTWH(position.X, position.Y, float64(src.Dx()), float64(src.Dy()))
	if c.QuickReject(local) {
		return
	}
	t := c.target()
	clip := c.DeviceClipBounds().RoundOut().Intersect(t.img.Bounds())
	if clip.Empty() {
		return
	}
	dst := t.img.SubImage(clip).(*image.RGBA)
	var mask image.Image
	if opacity < 1 {
		mask = image.NewUniform(color.Alpha{A: alpha01ToByte(opacity)})
	}

	m := c.TotalMatrix().Concat(TranslateMatrix(position.X, position.Y))
	if m.ScaleX == 1 && m.ScaleY == 1 && m.SkewX == 0 && m.SkewY == 0 &&
		m.TransX == math.Trunc(m.TransX) && m.TransY == math.Trunc(m.TransY) {
		at := image.Pt(int(m.TransX), int(m.TransY))
		r := image.Rectangle{Min: at, Max: at.Add(src.Size())}.Intersect(clip)
		if r.Empty() {
			return
		}
		sp := src.Min.Add(r.Min.Sub(at))
		xdraw.DrawMask(t.img, r, img, sp, mask, image.Point{}, xdraw.Over)
		return
	}

	m = m.Concat(TranslateMatrix(-float64(src.Min.X), -float64(src.Min.Y)))
	s2d := f64.Aff3{m.ScaleX, m.SkewX, m.TransX, m.SkewY, m.ScaleY, m.TransY}
	xdraw.ApproxBiLinear.Transform(dst, s2d, img, src, xdraw.Over, &xdraw.Options{SrcMask: mask})
}

// applyClip syncs the gg clip mask with the device clip of the canvas.
func (c *RasterCanvas) applyClip(t *rasterTarget) {
	clip := c.DeviceClipBounds()
	full := RectFromImage(t.img.Bounds())
	needed := !clip.Contains(full)
	if needed == t.clipped && (!needed || clip == t.clip) {
		return
	}
	t.ctx.ResetClip()
	t.clipped = needed
	t.clip = clip
	if needed {
		r := clip.Intersect(full)
		t.ctx.DrawRectangle(r.Left, r.Top, r.Width(), r.Height())
		t.ctx.Clip()
	}
}

// blurRegion approximates a Gaussian blur of the pixels in r with three box
// blur passes per axis. Pixels within the kernel reach outside r are read
// but only r is written.
func blurRegion(img *image.RGBA, r image.Rectangle, sigmaX, sigmaY float64) {
	radiusX, radiusY := boxRadius(sigmaX), boxRadius(sigmaY)
	if radiusX == 0 && radiusY == 0 {
		return
	}
	src := r.Inset(-3 * max(radiusX, radiusY)).Intersect(img.Bounds())
	work := image.NewRGBA(src)
	xdraw.Draw(work, src, img, src.Min, xdraw.Src)
	scratch := image.NewRGBA(src)
	for range 3 {
		if radiusX > 0 {
			boxBlur(scratch, work, radiusX, true)
			work, scratch = scratch, work
		}
		if radiusY > 0 {
			boxBlur(scratch, work, radiusY, false)
			work, scratch = scratch, work
		}
	}
	xdraw.Draw(img, r, work, r.Min, xdraw.Src)
}

// boxRadius returns the radius of a box filter that, applied three times,
// has the variance of a Gaussian with the given sigma.
func boxRadius(sigma float64) int {
	if sigma <= 0 {
		return 0
	}
	w := math.Sqrt(4*sigma*sigma + 1)
	return int(math.Round((w - 1) / 2))
}

func boxBlur(dst, src *image.RGBA, radius int, horizontal bool) {
	b := src.Bounds()
	outer, inner := b.Dy(), b.Dx()
	if !horizontal {
		outer, inner = inner, outer
	}
	at := func(o, i int) int {
		if horizontal {
			return src.PixOffset(b.Min.X+i, b.Min.Y+o)
		}
		return src.PixOffset(b.Min.X+o, b.Min.Y+i)
	}
	window := 2*radius + 1
	for o := 0; o < outer; o++ {
		var sum [4]int
		for k := -radius; k <= radius; k++ {
			p := at(o, clampIndex(k, inner))
			for ch := 0; ch < 4; ch++ {
				sum[ch] += int(src.Pix[p+ch])
			}
		}
		for i := 0; i < inner; i++ {
			p := at(o, i)
			for ch := 0; ch < 4; ch++ {
				dst.Pix[p+ch] = uint8(sum[ch] / window)
			}
			out := at(o, clampIndex(i-radius, inner))
			in := at(o, clampIndex(i+radius+1, inner))
			for ch := 0; ch < 4; ch++ {
				sum[ch] += int(src.Pix[in+ch]) - int(src.Pix[out+ch])
			}
		}
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
