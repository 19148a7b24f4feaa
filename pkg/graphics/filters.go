package graphics

// ImageFilterType identifies the filter algorithm.
type ImageFilterType int

const (
	// ImageFilterBlur applies a Gaussian blur.
	ImageFilterBlur ImageFilterType = iota
)

// blurSigmaExtent is how many sigmas a Gaussian kernel is considered to reach.
const blurSigmaExtent = 3

// ImageFilter operates on rendered pixels rather than individual colors.
// A nil *ImageFilter means "no filter".
type ImageFilter struct {
	// Type specifies the filter algorithm.
	Type ImageFilterType

	// SigmaX is the horizontal blur radius.
	SigmaX float64

	// SigmaY is the vertical blur radius.
	SigmaY float64
}

// BlurFilter returns a Gaussian blur filter.
func BlurFilter(sigmaX, sigmaY float64) *ImageFilter {
	return &ImageFilter{Type: ImageFilterBlur, SigmaX: sigmaX, SigmaY: sigmaY}
}

// Equal reports whether two filters produce the same output.
// Two nil filters are equal.
func (f *ImageFilter) Equal(other *ImageFilter) bool {
	if f == nil || other == nil {
		return f == other
	}
	return *f == *other
}

// FilterBounds returns the region of input pixels that can affect output
// pixels inside r. For a blur this is r outset by the kernel extent.
func (f *ImageFilter) FilterBounds(r Rect) Rect {
	if f == nil || r.IsEmpty() {
		return r
	}
	return r.Outset(f.SigmaX*blurSigmaExtent, f.SigmaY*blurSigmaExtent)
}
