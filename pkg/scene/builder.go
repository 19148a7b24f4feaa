package scene

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/go-drift/flow/pkg/flow"
	"github.com/go-drift/flow/pkg/graphics"
)

// rootKey identifies an unkeyed root so consecutive roots replace each
// other.
const rootKey = "\x00root"

// Builder turns frame descriptions into layer trees, carrying identity
// across frames through node keys:
//
//   - a retained keyed node whose description did not change reuses the
//     previous frame's layer object, so the diff skips it entirely;
//   - any other keyed node gets a new layer that replaces the previous one
//     and is diffed against it;
//   - unkeyed nodes get fresh layers, except the root, which is always
//     treated as keyed.
//
// Not safe for concurrent use.
type Builder struct {
	prev map[string]builtLayer
	next map[string]builtLayer
}

type builtLayer struct {
	layer       flow.Layer
	fingerprint string
	node        *Node
}

// NewBuilder returns a builder with no history.
func NewBuilder() *Builder {
	return &Builder{prev: make(map[string]builtLayer)}
}

// Reset forgets the previous frame.
func (b *Builder) Reset() {
	b.prev = make(map[string]builtLayer)
}

// Build returns the layer tree for root. On error the builder's history is
// left unchanged.
func (b *Builder) Build(root *Node) (flow.Layer, error) {
	if root == nil {
		return nil, fmt.Errorf("scene: nil root")
	}
	b.next = make(map[string]builtLayer)
	layer, err := b.build(root, true)
	if err != nil {
		b.next = nil
		return nil, err
	}
	b.prev, b.next = b.next, nil
	return layer, nil
}

func (b *Builder) build(n *Node, isRoot bool) (flow.Layer, error) {
	key := n.Key
	if key == "" && isRoot {
		key = rootKey
	}
	var fingerprint string
	if key != "" {
		data, err := yaml.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("scene: fingerprint %q: %w", key, err)
		}
		fingerprint = string(data)
		if prev, ok := b.prev[key]; ok && n.Retain && prev.fingerprint == fingerprint {
			b.carry(prev.node, key)
			return prev.layer, nil
		}
	}

	layer, err := b.newLayer(n)
	if err != nil {
		return nil, err
	}
	if key != "" {
		if prev, ok := b.prev[key]; ok {
			layer.Base().AssignOldLayer(prev.layer)
		}
		b.next[key] = builtLayer{layer: layer, fingerprint: fingerprint, node: n}
	}
	return layer, nil
}

// carry moves the keyed entries of a reused subtree into the next frame.
func (b *Builder) carry(n *Node, key string) {
	b.next[key] = b.prev[key]
	for _, child := range n.Children {
		b.carryChildren(child)
	}
}

func (b *Builder) carryChildren(n *Node) {
	if n.Key != "" {
		if prev, ok := b.prev[n.Key]; ok {
			b.next[n.Key] = prev
		}
	}
	for _, child := range n.Children {
		b.carryChildren(child)
	}
}

func (b *Builder) children(n *Node) ([]flow.Layer, error) {
	layers := make([]flow.Layer, 0, len(n.Children))
	for _, child := range n.Children {
		l, err := b.build(child, false)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, nil
}

func (b *Builder) newLayer(n *Node) (flow.Layer, error) {
	children, err := b.children(n)
	if err != nil {
		return nil, err
	}
	offset := offsetOf(n.Offset)

	switch n.Type {
	case TypeContainer:
		return flow.NewContainerLayer(children...), nil
	case TypeMerged:
		return flow.NewMergedContainerLayer(children...), nil
	case TypePicture:
		dl, err := n.displayList()
		if err != nil {
			return nil, err
		}
		return flow.NewDisplayListLayer(offset, dl, n.Complex, n.WillChange), nil
	case TypeOpacity:
		if n.Alpha == nil {
			return nil, fmt.Errorf("scene: opacity node without alpha")
		}
		return flow.NewOpacityLayer(*n.Alpha, offset, children...), nil
	case TypeClip:
		if len(n.Clip) != 4 {
			return nil, fmt.Errorf("scene: clip node needs 4 values")
		}
		behavior := flow.ClipHardEdge
		if n.AntiAlias {
			behavior = flow.ClipAntiAliasWithSaveLayer
		}
		clip := graphics.RectFromLTRB(n.Clip[0], n.Clip[1], n.Clip[2], n.Clip[3])
		return flow.NewClipRectLayer(clip, behavior, children...), nil
	case TypeTransform:
		if len(n.Transform) != 6 {
			return nil, fmt.Errorf("scene: transform node needs 6 values")
		}
		t := n.Transform
		m := graphics.Matrix{ScaleX: t[0], SkewY: t[1], SkewX: t[2], ScaleY: t[3], TransX: t[4], TransY: t[5]}
		return flow.NewTransformLayer(m, children...), nil
	case TypeBackdrop:
		if len(n.Sigma) == 0 {
			return nil, fmt.Errorf("scene: backdrop node without sigma")
		}
		sx, sy := n.Sigma[0], n.Sigma[0]
		if len(n.Sigma) > 1 {
			sy = n.Sigma[1]
		}
		return flow.NewBackdropFilterLayer(graphics.BlurFilter(sx, sy), children...), nil
	case TypeTexture:
		return flow.NewTextureLayer(offset, sizeOf(n.Size), n.TextureID, n.Freeze), nil
	case TypePlatformView:
		return flow.NewPlatformViewLayer(offset, sizeOf(n.Size), n.ViewID), nil
	default:
		return nil, fmt.Errorf("scene: unknown node type %q", n.Type)
	}
}

// displayList records the node's rects.
func (n *Node) displayList() (*graphics.DisplayList, error) {
	var rec graphics.PictureRecorder
	canvas := rec.BeginRecording(graphics.Size{})
	for _, r := range n.Rects {
		c, err := ParseColor(r.Color)
		if err != nil {
			return nil, err
		}
		paint := graphics.FillPaint(c)
		if r.Stroke > 0 {
			paint.Style = graphics.PaintStyleStroke
			paint.StrokeWidth = r.Stroke
		}
		canvas.DrawRect(graphics.RectFromLTRB(r.Rect[0], r.Rect[1], r.Rect[2], r.Rect[3]), paint)
	}
	return rec.EndRecording(), nil
}

func offsetOf(v []float64) graphics.Offset {
	if len(v) != 2 {
		return graphics.Offset{}
	}
	return graphics.Offset{X: v[0], Y: v[1]}
}

func sizeOf(v []float64) graphics.Size {
	if len(v) != 2 {
		return graphics.Size{}
	}
	return graphics.Size{Width: v[0], Height: v[1]}
}
