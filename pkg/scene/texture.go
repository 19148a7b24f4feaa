package scene

import (
	"github.com/go-drift/flow/pkg/flow"
	"github.com/go-drift/flow/pkg/graphics"
)

// SolidTexture is a texture that fills its bounds with one color.
type SolidTexture struct {
	id    int64
	color graphics.Color
}

// NewSolidTexture returns a texture with the given id and color.
func NewSolidTexture(id int64, color graphics.Color) *SolidTexture {
	return &SolidTexture{id: id, color: color}
}

// ID returns the texture id.
func (t *SolidTexture) ID() int64 { return t.id }

// Color returns the fill color.
func (t *SolidTexture) Color() graphics.Color { return t.color }

// Paint fills bounds. Solid textures have no frames, so freeze is ignored.
func (t *SolidTexture) Paint(canvas graphics.Canvas, bounds graphics.Rect, _ bool, opacity float64) {
	canvas.DrawRect(bounds, graphics.FillPaint(t.color.Modulate(opacity)))
}

var _ flow.Texture = (*SolidTexture)(nil)

// RegisterTextures adds the file's textures to registry.
func (f *File) RegisterTextures(registry *flow.TextureRegistry) error {
	for _, spec := range f.Textures {
		c, err := ParseColor(spec.Color)
		if err != nil {
			return err
		}
		registry.Register(NewSolidTexture(spec.ID, c))
	}
	return nil
}
