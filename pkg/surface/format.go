package surface

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// ErrUnsupportedFormat is returned for pixel formats a raster canvas cannot
// produce.
var ErrUnsupportedFormat = errors.New("surface: unsupported pixel format")

// drawableFormats are the 8-bit four-channel formats. Raster canvases draw
// RGBA; BGRA targets are swizzled on present.
var drawableFormats = []gputypes.TextureFormat{
	gputypes.TextureFormatRGBA8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb,
	gputypes.TextureFormatBGRA8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb,
}

// Drawable reports whether frames of format can be rasterized. The zero
// format counts as RGBA8Unorm.
func Drawable(format gputypes.TextureFormat) bool {
	if format == gputypes.TextureFormatUndefined {
		return true
	}
	for _, f := range drawableFormats {
		if f == format {
			return true
		}
	}
	return false
}

// swizzled reports whether format stores blue before red.
func swizzled(format gputypes.TextureFormat) bool {
	return format == gputypes.TextureFormatBGRA8Unorm || format == gputypes.TextureFormatBGRA8UnormSrgb
}

// ParseFormat maps a format name such as "bgra8unorm" to its texture
// format. Names are matched case-insensitively and an empty name selects
// RGBA8Unorm.
func ParseFormat(name string) (gputypes.TextureFormat, error) {
	if name == "" {
		return gputypes.TextureFormatRGBA8Unorm, nil
	}
	for _, f := range drawableFormats {
		if strings.EqualFold(name, f.String()) {
			return f, nil
		}
	}
	return gputypes.TextureFormatUndefined, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// swizzleRB swaps the red and blue channel of every pixel in pix.
func swizzleRB(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}
