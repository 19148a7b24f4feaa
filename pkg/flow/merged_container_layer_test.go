package flow_test

import (
	"image"
	"testing"

	"github.com/go-drift/flow/pkg/flow"
	"github.com/go-drift/flow/pkg/graphics"
)

func TestMergedContainerLayer_CacheableChildSingle(t *testing.T) {
	l := mock(0, 0, 10, 10)
	m := flow.NewMergedContainerLayer(l)

	if got := m.CacheableChild(); got != l {
		t.Errorf("expected the only child, got %T", got)
	}
}

func TestMergedContainerLayer_CacheableChildMultiple(t *testing.T) {
	m := flow.NewMergedContainerLayer(mock(0, 0, 10, 10), mock(20, 20, 30, 30))

	got := m.CacheableChild()
	if got != flow.Layer(m.ChildContainer()) {
		t.Errorf("expected the interposed container, got %T", got)
	}
	if n := len(m.ChildContainer().Layers()); n != 2 {
		t.Errorf("expected 2 children in the interposed container, got %d", n)
	}
}

func TestMergedContainerLayer_InterposedContainerInheritsOpacity(t *testing.T) {
	m := flow.NewMergedContainerLayer()
	if !m.ChildContainer().CanInheritOpacity() {
		t.Error("expected interposed container to inherit opacity")
	}
	if n := len(m.Layers()); n != 1 {
		t.Errorf("expected exactly one direct child, got %d", n)
	}
}

func TestMergedContainerLayer_ChildContainerAssertsSingleChild(t *testing.T) {
	m := flow.NewMergedContainerLayer()
	m.ContainerLayer.Add(mock(0, 0, 1, 1))
	expectInvariant(t, func() {
		m.ChildContainer()
	})
}

func TestMergedContainerLayer_DiffMatchesChildrenAcrossFrames(t *testing.T) {
	a, b := mock(0, 0, 10, 10), mock(20, 20, 30, 30)
	m1 := flow.NewMergedContainerLayer(a, b)
	c1 := flow.NewContainerLayer(m1)
	t1 := firstFrame(t, c1)

	m2 := flow.NewMergedContainerLayer(a, b)
	m2.AssignOldLayer(m1)
	c2 := flow.NewContainerLayer(m2)
	c2.AssignOldLayer(c1)
	_, damage := nextFrame(t1, c2)

	if !damage.FrameDamage.Empty() {
		t.Errorf("expected no damage, got %v", damage.FrameDamage)
	}
	if a.DiffCount() != 1 || b.DiffCount() != 1 {
		t.Errorf("expected children to be retained, got diff counts %d and %d", a.DiffCount(), b.DiffCount())
	}
}

func TestMergedContainerLayer_DiffRemovedChild(t *testing.T) {
	a, b := mock(0, 0, 10, 10), mock(20, 20, 30, 30)
	m1 := flow.NewMergedContainerLayer(a, b)
	c1 := flow.NewContainerLayer(m1)
	t1 := firstFrame(t, c1)

	m2 := flow.NewMergedContainerLayer(a)
	m2.AssignOldLayer(m1)
	c2 := flow.NewContainerLayer(m2)
	c2.AssignOldLayer(c1)
	_, damage := nextFrame(t1, c2)

	if want := image.Rect(20, 20, 30, 30); damage.FrameDamage != want {
		t.Errorf("expected %v, got %v", want, damage.FrameDamage)
	}
}

func TestMergedContainerLayer_PaintsChildren(t *testing.T) {
	a := mock(0, 0, 10, 10)
	m := flow.NewMergedContainerLayer(a)
	tree := flow.NewLayerTree(m, frameSize)
	tree.Preroll(flow.FrameContext{})

	if got := m.PaintBounds(); got != rect(0, 0, 10, 10) {
		t.Errorf("expected bounds of the child, got %v", got)
	}
	tree.Paint(newCanvas(), flow.FrameContext{})
	if a.PaintCount() != 1 {
		t.Errorf("expected child to paint once, got %d", a.PaintCount())
	}
}

func newCanvas() graphics.Canvas {
	return graphics.NewRasterCanvas(image.NewRGBA(image.Rectangle{Max: frameSize}))
}
