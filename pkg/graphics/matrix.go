package graphics

import "math"

// Matrix is a 2D affine transform:
//
//	x' = ScaleX*x + SkewX*y + TransX
//	y' = SkewY*x  + ScaleY*y + TransY
//
// The zero Matrix is degenerate; use Identity.
type Matrix struct {
	ScaleX, SkewX, TransX float64
	SkewY, ScaleY, TransY float64
}

// Identity returns the identity transform.
func Identity() Matrix {
	return Matrix{ScaleX: 1, ScaleY: 1}
}

// TranslateMatrix returns a pure translation.
func TranslateMatrix(dx, dy float64) Matrix {
	return Matrix{ScaleX: 1, ScaleY: 1, TransX: dx, TransY: dy}
}

// ScaleMatrix returns a pure scale.
func ScaleMatrix(sx, sy float64) Matrix {
	return Matrix{ScaleX: sx, ScaleY: sy}
}

// RotateMatrix returns a rotation by radians around the origin.
func RotateMatrix(radians float64) Matrix {
	sin, cos := math.Sincos(radians)
	return Matrix{ScaleX: cos, SkewX: -sin, SkewY: sin, ScaleY: cos}
}

// Concat returns m * other: other is applied first, then m.
func (m Matrix) Concat(other Matrix) Matrix {
	return Matrix{
		ScaleX: m.ScaleX*other.ScaleX + m.SkewX*other.SkewY,
		SkewX:  m.ScaleX*other.SkewX + m.SkewX*other.ScaleY,
		TransX: m.ScaleX*other.TransX + m.SkewX*other.TransY + m.TransX,
		SkewY:  m.SkewY*other.ScaleX + m.ScaleY*other.SkewY,
		ScaleY: m.SkewY*other.SkewX + m.ScaleY*other.ScaleY,
		TransY: m.SkewY*other.TransX + m.ScaleY*other.TransY + m.TransY,
	}
}

// IsIdentity reports whether m is the identity transform.
func (m Matrix) IsIdentity() bool {
	return m == Identity()
}

// IsScaleTranslate reports whether m has no skew or rotation component.
func (m Matrix) IsScaleTranslate() bool {
	return m.SkewX == 0 && m.SkewY == 0
}

// Determinant returns the determinant of the linear part.
func (m Matrix) Determinant() float64 {
	return m.ScaleX*m.ScaleY - m.SkewX*m.SkewY
}

// Invert returns the inverse transform. ok is false for singular matrices.
func (m Matrix) Invert() (inv Matrix, ok bool) {
	det := m.Determinant()
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return Matrix{}, false
	}
	invDet := 1 / det
	inv = Matrix{
		ScaleX: m.ScaleY * invDet,
		SkewX:  -m.SkewX * invDet,
		SkewY:  -m.SkewY * invDet,
		ScaleY: m.ScaleX * invDet,
	}
	inv.TransX = -(inv.ScaleX*m.TransX + inv.SkewX*m.TransY)
	inv.TransY = -(inv.SkewY*m.TransX + inv.ScaleY*m.TransY)
	return inv, true
}

// MapPoint transforms a point.
func (m Matrix) MapPoint(p Offset) Offset {
	return Offset{
		X: m.ScaleX*p.X + m.SkewX*p.Y + m.TransX,
		Y: m.SkewY*p.X + m.ScaleY*p.Y + m.TransY,
	}
}

// MapRect returns the axis-aligned bounds of r after transformation.
func (m Matrix) MapRect(r Rect) Rect {
	if r.IsEmpty() {
		return Rect{}
	}
	if m.IsScaleTranslate() {
		x0 := m.ScaleX*r.Left + m.TransX
		x1 := m.ScaleX*r.Right + m.TransX
		y0 := m.ScaleY*r.Top + m.TransY
		y1 := m.ScaleY*r.Bottom + m.TransY
		return Rect{
			Left:   math.Min(x0, x1),
			Top:    math.Min(y0, y1),
			Right:  math.Max(x0, x1),
			Bottom: math.Max(y0, y1),
		}
	}
	pts := m.MapQuad(r)
	out := Rect{Left: pts[0].X, Top: pts[0].Y, Right: pts[0].X, Bottom: pts[0].Y}
	for _, p := range pts[1:] {
		out.Left = math.Min(out.Left, p.X)
		out.Top = math.Min(out.Top, p.Y)
		out.Right = math.Max(out.Right, p.X)
		out.Bottom = math.Max(out.Bottom, p.Y)
	}
	return out
}

// MapQuad returns the four transformed corners of r in clockwise order
// starting at the top-left.
func (m Matrix) MapQuad(r Rect) [4]Offset {
	return [4]Offset{
		m.MapPoint(Offset{X: r.Left, Y: r.Top}),
		m.MapPoint(Offset{X: r.Right, Y: r.Top}),
		m.MapPoint(Offset{X: r.Right, Y: r.Bottom}),
		m.MapPoint(Offset{X: r.Left, Y: r.Bottom}),
	}
}

// WithIntegralTranslation snaps the translation to whole pixels when the
// matrix only scales and translates. Other matrices are returned unchanged
// since snapping them shifts content visibly.
func (m Matrix) WithIntegralTranslation() Matrix {
	if !m.IsScaleTranslate() {
		return m
	}
	m.TransX = math.Round(m.TransX)
	m.TransY = math.Round(m.TransY)
	return m
}
