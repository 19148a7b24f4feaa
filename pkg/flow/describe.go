package flow

import (
	"fmt"
	"strings"

	"github.com/go-drift/flow/pkg/graphics"
)

// LayerInfo is a serializable snapshot of a layer subtree.
type LayerInfo struct {
	Kind       string        `json:"kind"`
	ID         uint64        `json:"id"`
	OriginalID uint64        `json:"originalId"`
	Bounds     graphics.Rect `json:"bounds"`
	Children   []LayerInfo   `json:"children,omitempty"`
}

// Describe snapshots layer and its descendants. Interposed containers of
// merged layers are flattened away.
func Describe(layer Layer) LayerInfo {
	info := LayerInfo{
		Kind:       kindName(layer),
		ID:         layer.Base().UniqueID(),
		OriginalID: layer.Base().OriginalLayerID(),
		Bounds:     layer.Base().PaintBounds(),
	}
	children := childrenOf(layer)
	if merged, ok := layer.(interface{ ChildContainer() *ContainerLayer }); ok {
		children = merged.ChildContainer().Layers()
	}
	for _, child := range children {
		info.Children = append(info.Children, Describe(child))
	}
	return info
}

func kindName(layer Layer) string {
	name := fmt.Sprintf("%T", layer)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}
