package flow_test

import (
	stderrors "errors"
	"image"
	"testing"

	"github.com/go-drift/flow/pkg/errors"
	"github.com/go-drift/flow/pkg/flow"
	"github.com/go-drift/flow/pkg/flowtest"
	"github.com/go-drift/flow/pkg/graphics"
)

var frameSize = image.Pt(100, 100)

func rect(l, t, r, b float64) graphics.Rect {
	return graphics.RectFromLTRB(l, t, r, b)
}

func mock(l, t, r, b float64) *flowtest.MockLayer {
	return flowtest.NewMockLayer(rect(l, t, r, b))
}

// firstFrame diffs root as the first frame and returns its tree.
func firstFrame(t *testing.T, root flow.Layer) *flow.LayerTree {
	t.Helper()
	tree := flow.NewLayerTree(root, frameSize)
	tree.Preroll(flow.FrameContext{DevicePixelRatio: 1})
	damage := tree.Diff(nil, image.Rectangle{}, 1)
	if damage.FrameDamage != (image.Rectangle{Max: frameSize}) {
		t.Fatalf("expected full first frame damage, got %v", damage.FrameDamage)
	}
	return tree
}

// nextFrame diffs root against prev and returns the new tree and its damage.
func nextFrame(prev *flow.LayerTree, root flow.Layer) (*flow.LayerTree, flow.Damage) {
	tree := flow.NewLayerTree(root, frameSize)
	tree.Preroll(flow.FrameContext{DevicePixelRatio: 1})
	return tree, tree.Diff(prev, image.Rectangle{}, 1)
}

// expectInvariant runs fn and fails unless it panics with an InvariantError.
func expectInvariant(t *testing.T, fn func()) {
	t.Helper()
	errors.SetHandler(quietHandler{})
	defer errors.SetHandler(nil)
	defer func() {
		t.Helper()
		r := recover()
		err, ok := r.(error)
		var inv *errors.InvariantError
		if !ok || !stderrors.As(err, &inv) {
			t.Errorf("expected invariant panic, got %v", r)
		}
	}()
	fn()
}

type quietHandler struct{}

func (quietHandler) HandleError(*errors.FlowError)          {}
func (quietHandler) HandlePanic(*errors.PanicError)         {}
func (quietHandler) HandleInvariant(*errors.InvariantError) {}
