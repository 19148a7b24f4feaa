// Package flowtest provides test doubles and snapshot helpers for layer
// trees.
//
// # Mock Layers
//
// MockLayer paints a fixed rect and records what the passes saw:
//
//	a := flowtest.NewMockLayer(graphics.RectFromLTWH(0, 0, 10, 10))
//	root := flow.NewContainerLayer(a)
//	tree := flow.NewLayerTree(root, image.Pt(100, 100))
//	tree.Preroll(flow.FrameContext{})
//	if a.PrerollCount() != 1 {
//	    t.Error("expected one preroll")
//	}
//
// Two mock layers replace each other when their bounds and content tag are
// equal, so a rebuilt tree of equal mocks diffs to no damage.
//
// # Recording Canvas
//
// RecordingCanvas implements graphics.Canvas and records every call as a
// DisplayOp, which tests compare directly or through snapshots.
//
// # Snapshot Testing
//
// Capture and compare a painted tree against a golden file:
//
//	snap := flowtest.CaptureSnapshot(tree, flow.FrameContext{})
//	snap.MatchesFile(t, "testdata/opacity.snapshot.json")
//
// Update snapshots with:
//
//	FLOW_UPDATE_SNAPSHOTS=1 go test ./...
package flowtest
