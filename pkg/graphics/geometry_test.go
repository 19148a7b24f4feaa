package graphics

import (
	"image"
	"math"
	"testing"
)

func TestRect_IntersectDisjoint(t *testing.T) {
	a := RectFromLTWH(0, 0, 10, 10)
	b := RectFromLTWH(20, 20, 5, 5)
	if got := a.Intersect(b); !got.IsEmpty() {
		t.Errorf("expected empty intersection, got %+v", got)
	}
	if a.Intersects(b) {
		t.Error("expected disjoint rects not to intersect")
	}
}

func TestRect_IntersectsIgnoresEmpty(t *testing.T) {
	a := RectFromLTWH(0, 0, 10, 10)
	empty := RectFromLTWH(5, 5, 0, 0)
	if a.Intersects(empty) {
		t.Error("expected empty rect not to intersect")
	}
}

func TestRect_JoinIgnoresEmpty(t *testing.T) {
	a := RectFromLTWH(10, 10, 10, 10)
	if got := a.Join(Rect{}); got != a {
		t.Errorf("expected %+v, got %+v", a, got)
	}
	if got := (Rect{}).Join(a); got != a {
		t.Errorf("expected %+v, got %+v", a, got)
	}
	b := RectFromLTWH(30, 0, 5, 5)
	want := RectFromLTRB(10, 0, 35, 20)
	if got := a.Join(b); got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestRect_RoundOut(t *testing.T) {
	r := RectFromLTRB(0.5, 1.2, 10.1, 19.9)
	want := image.Rect(0, 1, 11, 20)
	if got := r.RoundOut(); got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
	if got := (Rect{}).RoundOut(); !got.Empty() {
		t.Errorf("expected empty rectangle, got %v", got)
	}
}

func TestRect_Contains(t *testing.T) {
	outer := RectFromLTWH(0, 0, 100, 100)
	if !outer.Contains(RectFromLTWH(10, 10, 5, 5)) {
		t.Error("expected inner rect to be contained")
	}
	if outer.Contains(RectFromLTWH(90, 90, 20, 20)) {
		t.Error("expected overlapping rect not to be contained")
	}
}

func TestMatrix_ConcatAppliesOtherFirst(t *testing.T) {
	m := TranslateMatrix(10, 0).Concat(ScaleMatrix(2, 2))
	got := m.MapPoint(Offset{X: 1, Y: 1})
	if got != (Offset{X: 12, Y: 2}) {
		t.Errorf("expected (12, 2), got %+v", got)
	}
}

func TestMatrix_Invert(t *testing.T) {
	m := TranslateMatrix(5, -3).Concat(ScaleMatrix(2, 4))
	inv, ok := m.Invert()
	if !ok {
		t.Fatal("expected matrix to be invertible")
	}
	p := Offset{X: 7, Y: 11}
	back := inv.MapPoint(m.MapPoint(p))
	if !floatEqual(back.X, p.X) || !floatEqual(back.Y, p.Y) {
		t.Errorf("expected %+v, got %+v", p, back)
	}
	if _, ok := ScaleMatrix(0, 1).Invert(); ok {
		t.Error("expected singular matrix not to invert")
	}
}

func TestMatrix_MapRectRotation(t *testing.T) {
	r := RectFromLTWH(0, 0, 10, 10)
	got := RotateMatrix(math.Pi / 4).MapRect(r)
	half := 10 * math.Sqrt2 / 2
	want := RectFromLTRB(-half, 0, half, 2*half)
	if !got.Equal(want) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestMatrix_WithIntegralTranslation(t *testing.T) {
	m := TranslateMatrix(10.4, 3.6).WithIntegralTranslation()
	if m.TransX != 10 || m.TransY != 4 {
		t.Errorf("expected (10, 4), got (%v, %v)", m.TransX, m.TransY)
	}
	rot := RotateMatrix(0.3).Concat(TranslateMatrix(0.5, 0.5))
	if rot.WithIntegralTranslation() != rot {
		t.Error("expected rotation to be left unchanged")
	}
}

func TestStateStack_ClipAndRestore(t *testing.T) {
	s := NewStateStack(Size{Width: 100, Height: 100})
	s.Save()
	s.Translate(10, 10)
	s.ClipRect(RectFromLTWH(0, 0, 20, 20))
	want := RectFromLTWH(10, 10, 20, 20)
	if got := s.DeviceClipBounds(); got != want {
		t.Errorf("expected device clip %+v, got %+v", want, got)
	}
	if got := s.LocalClipBounds(); !got.Equal(RectFromLTWH(0, 0, 20, 20)) {
		t.Errorf("expected local clip at origin, got %+v", got)
	}
	if !s.QuickReject(RectFromLTWH(50, 50, 5, 5)) {
		t.Error("expected rect outside clip to be rejected")
	}
	if !s.Restore() {
		t.Fatal("expected restore to succeed")
	}
	if s.Restore() {
		t.Error("expected restore past the base state to fail")
	}
	if got := s.DeviceClipBounds(); got != RectFromLTWH(0, 0, 100, 100) {
		t.Errorf("expected full clip after restore, got %+v", got)
	}
}

func TestImageFilter_FilterBounds(t *testing.T) {
	r := RectFromLTWH(10, 10, 10, 10)
	var none *ImageFilter
	if got := none.FilterBounds(r); got != r {
		t.Errorf("expected nil filter to keep bounds, got %+v", got)
	}
	got := BlurFilter(2, 1).FilterBounds(r)
	want := RectFromLTRB(4, 7, 26, 23)
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
	if !BlurFilter(2, 1).Equal(BlurFilter(2, 1)) || none.Equal(BlurFilter(1, 1)) {
		t.Error("unexpected filter equality result")
	}
}
