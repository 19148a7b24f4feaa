package flow

import "github.com/go-drift/flow/pkg/errors"

// MergedContainerLayer is a container whose children all live inside one
// interposed ContainerLayer. Layers that raster cache their content, such as
// OpacityLayer, use it so the cache has a single target: the sole child when
// exactly one was added, the interposed container otherwise.
type MergedContainerLayer struct {
	ContainerLayer
}

// NewMergedContainerLayer returns a merged container with the given
// children.
func NewMergedContainerLayer(children ...Layer) *MergedContainerLayer {
	m := &MergedContainerLayer{}
	m.init()
	for _, child := range children {
		m.Add(child)
	}
	return m
}

func (m *MergedContainerLayer) init() {
	child := &ContainerLayer{}
	// The interposed container only forwards to its children.
	child.SetCanInheritOpacity(true)
	m.ContainerLayer.Add(child)
}

// Add appends a child to the interposed container.
func (m *MergedContainerLayer) Add(layer Layer) {
	m.ChildContainer().Add(layer)
}

// ChildContainer returns the interposed container.
func (m *MergedContainerLayer) ChildContainer() *ContainerLayer {
	errors.Assert(len(m.layers) == 1, "flow.MergedContainerLayer.ChildContainer",
		"expected exactly one direct child, got %d", len(m.layers))
	return m.layers[0].(*ContainerLayer)
}

// CacheableChild returns the layer the raster cache should target.
func (m *MergedContainerLayer) CacheableChild() Layer {
	child := m.ChildContainer()
	if len(child.layers) == 1 {
		return child.layers[0]
	}
	return child
}

// Diff diffs the children inside a new subtree and records the subtree's
// region for this layer.
func (m *MergedContainerLayer) Diff(ctx *DiffContext, old Layer) {
	ctx.BeginSubtree()
	defer ctx.EndSubtree()
	m.DiffChildren(ctx, old)
	ctx.SetLayerPaintRegion(m, ctx.CurrentSubtreeRegion())
}

// DiffChildren diffs the interposed container's children against those of
// old's interposed container. The interposed container is rebuilt every
// frame, so diffing it as a layer would never match.
func (m *MergedContainerLayer) DiffChildren(ctx *DiffContext, old Layer) {
	if ctx.IsSubtreeDirty() {
		m.ChildContainer().Diff(ctx, nil)
		return
	}
	errors.Assert(old != nil, "flow.MergedContainerLayer.DiffChildren", "old layer is nil in a clean subtree")
	prev, ok := old.(interface{ ChildContainer() *ContainerLayer })
	errors.Assert(ok, "flow.MergedContainerLayer.DiffChildren", "old layer %T is not a merged container", old)
	m.ChildContainer().DiffChildren(ctx, prev.ChildContainer())
}
