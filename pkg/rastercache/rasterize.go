package rastercache

import (
	"image"

	"github.com/go-drift/flow/pkg/flow"
	"github.com/go-drift/flow/pkg/graphics"
)

// checkerboardTint is drawn over cached images when Options.Checkerboard
// is set.
var checkerboardTint = graphics.Color(0x3000FF00)

// rasterizeLayer paints layer into a new image under matrix. It returns nil
// when the layer covers no pixels.
func (c *Cache) rasterizeLayer(ctx *flow.PrerollContext, layer flow.Layer, matrix graphics.Matrix) *Image {
	base := layer.Base()
	logical := base.PaintBounds()
	return c.rasterize(logical, matrix, func(canvas graphics.Canvas) {
		pc := flow.NewPaintContext(canvas)
		if !base.SubtreeHasPlatformView() {
			pc.RasterCache = c
		}
		pc.TextureRegistry = ctx.TextureRegistry
		pc.DevicePixelRatio = ctx.DevicePixelRatio
		if base.NeedsPainting(pc) {
			layer.Paint(pc)
		}
	})
}

// rasterizeDisplayList replays dl into a new image under matrix.
func (c *Cache) rasterizeDisplayList(dl *graphics.DisplayList, matrix graphics.Matrix) *Image {
	return c.rasterize(dl.Bounds(), matrix, dl.Paint)
}

func (c *Cache) rasterize(logical graphics.Rect, matrix graphics.Matrix, draw func(graphics.Canvas)) *Image {
	device := matrix.MapRect(logical).RoundOut()
	if device.Empty() {
		return nil
	}
	pixels := image.NewRGBA(image.Rect(0, 0, device.Dx(), device.Dy()))
	canvas := graphics.NewRasterCanvas(pixels)
	canvas.Translate(-float64(device.Min.X), -float64(device.Min.Y))
	canvas.Concat(matrix)
	draw(canvas)
	if c.opts.Checkerboard {
		canvas.SetMatrix(graphics.Identity())
		canvas.DrawRect(graphics.RectFromImage(pixels.Bounds()), graphics.FillPaint(checkerboardTint))
	}
	return &Image{pixels: pixels, logical: logical}
}
