package flowtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-drift/flow/pkg/flow"
	"github.com/go-drift/flow/pkg/graphics"
)

// TestingT is the subset of *testing.T used by MatchesFile, allowing
// test doubles to intercept failures.
type TestingT interface {
	Helper()
	Fatalf(format string, args ...any)
	Errorf(format string, args ...any)
	Name() string
}

// Snapshot captures the layer tree structure and the paint operations.
type Snapshot struct {
	LayerTree  *LayerNode  `json:"layerTree"`
	DisplayOps []DisplayOp `json:"displayOps,omitempty"`
}

// LayerNode represents a layer in the serialized tree. IDs are stable
// across runs, unlike layer unique ids.
type LayerNode struct {
	ID       string       `json:"id"`
	Kind     string       `json:"kind"`
	Bounds   [4]float64   `json:"bounds"`
	Children []*LayerNode `json:"children,omitempty"`
}

// CaptureSnapshot prerolls and paints tree onto a recording canvas of the
// tree's frame size.
func CaptureSnapshot(tree *flow.LayerTree, frame flow.FrameContext) *Snapshot {
	snap := &Snapshot{}
	if tree.Root() == nil {
		return snap
	}
	tree.Preroll(frame)
	size := tree.FrameSize()
	canvas := NewRecordingCanvas(graphics.Size{Width: float64(size.X), Height: float64(size.Y)})
	tree.Paint(canvas, frame)
	snap.LayerTree = captureLayerNode(flow.Describe(tree.Root()), &typeCounter{})
	snap.DisplayOps = canvas.Ops()
	return snap
}

// CaptureFrameSnapshot is CaptureSnapshot for a root layer and frame size.
func CaptureFrameSnapshot(root flow.Layer, frameSize image.Point) *Snapshot {
	return CaptureSnapshot(flow.NewLayerTree(root, frameSize), flow.FrameContext{DevicePixelRatio: 1})
}

// MatchesFile compares this snapshot against a golden file. On mismatch it
// reports a diff and instructions for updating. When FLOW_UPDATE_SNAPSHOTS=1
// is set, the file is silently updated instead.
func (s *Snapshot) MatchesFile(t TestingT, path string) {
	t.Helper()

	if os.Getenv("FLOW_UPDATE_SNAPSHOTS") == "1" {
		if err := s.UpdateFile(path); err != nil {
			t.Fatalf("failed to update snapshot: %v", err)
		}
		return
	}

	expected, err := loadSnapshot(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.Fatalf("snapshot file missing: %s\n\nTo create: FLOW_UPDATE_SNAPSHOTS=1 go test -run %s", path, t.Name())
			return
		}
		t.Fatalf("failed to load snapshot: %v", err)
		return
	}

	if diff := s.Diff(expected); diff != "" {
		t.Errorf("snapshot mismatch: %s\n%s\n\nTo update: FLOW_UPDATE_SNAPSHOTS=1 go test -run %s", path, diff, t.Name())
	}
}

// UpdateFile writes this snapshot to the given path, creating directories
// as needed.
func (s *Snapshot) UpdateFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := marshalSnapshot(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Diff returns a line diff between this snapshot and other. Returns
// empty string if equal.
func (s *Snapshot) Diff(other *Snapshot) string {
	a, _ := marshalSnapshot(s)
	b, _ := marshalSnapshot(other)
	if bytes.Equal(a, b) {
		return ""
	}
	return unifiedDiff(string(b), string(a))
}

// --- Internal ---

// typeCounter assigns stable IDs like "ContainerLayer#0".
type typeCounter struct {
	counts map[string]int
}

func (c *typeCounter) next(kind string) string {
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	n := c.counts[kind]
	c.counts[kind] = n + 1
	return fmt.Sprintf("%s#%d", kind, n)
}

func captureLayerNode(info flow.LayerInfo, counter *typeCounter) *LayerNode {
	node := &LayerNode{
		ID:   counter.next(info.Kind),
		Kind: info.Kind,
		Bounds: [4]float64{
			round2(info.Bounds.Left), round2(info.Bounds.Top),
			round2(info.Bounds.Right), round2(info.Bounds.Bottom),
		},
	}
	for _, child := range info.Children {
		node.Children = append(node.Children, captureLayerNode(child, counter))
	}
	return node
}

func loadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("invalid snapshot JSON: %w", err)
	}
	return &snap, nil
}

func marshalSnapshot(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// unifiedDiff produces a simple line-oriented diff.
func unifiedDiff(expected, actual string) string {
	expectedLines := strings.Split(expected, "\n")
	actualLines := strings.Split(actual, "\n")

	var buf strings.Builder
	buf.WriteString("--- expected\n+++ actual\n")

	for i := 0; i < max(len(expectedLines), len(actualLines)); i++ {
		var e, a string
		if i < len(expectedLines) {
			e = expectedLines[i]
		}
		if i < len(actualLines) {
			a = actualLines[i]
		}
		if e != a {
			if i < len(expectedLines) {
				fmt.Fprintf(&buf, "-%s\n", e)
			}
			if i < len(actualLines) {
				fmt.Fprintf(&buf, "+%s\n", a)
			}
		}
	}

	return buf.String()
}
