package flowtest

import (
	"fmt"
	"image"
	"math"
	"sort"
	"strings"

	"github.com/go-drift/flow/pkg/graphics"
)

// DisplayOp represents a recorded canvas drawing operation.
type DisplayOp struct {
	Op     string         `json:"op"`
	Params map[string]any `json:"params,omitempty"`
}

// String formats the op with its params in key order, for test failures.
func (op DisplayOp) String() string {
	var b strings.Builder
	b.WriteString(op.Op)
	for _, k := range sortedKeys(op.Params) {
		fmt.Fprintf(&b, " %s=%v", k, op.Params[k])
	}
	return b.String()
}

// RecordingCanvas implements graphics.Canvas and records every call as a
// DisplayOp. Transform and clip are tracked so layers that query them behave
// as on a real canvas.
type RecordingCanvas struct {
	graphics.StateStack
	ops  []DisplayOp
	size graphics.Size
}

// NewRecordingCanvas returns a canvas of the given size.
func NewRecordingCanvas(size graphics.Size) *RecordingCanvas {
	return &RecordingCanvas{StateStack: graphics.NewStateStack(size), size: size}
}

// Ops returns the recorded operations.
func (c *RecordingCanvas) Ops() []DisplayOp {
	return c.ops
}

// OpNames returns the name of each recorded operation in order.
func (c *RecordingCanvas) OpNames() []string {
	names := make([]string, len(c.ops))
	for i, op := range c.ops {
		names[i] = op.Op
	}
	return names
}

// Count returns how many operations named op were recorded.
func (c *RecordingCanvas) Count(op string) int {
	n := 0
	for _, o := range c.ops {
		if o.Op == op {
			n++
		}
	}
	return n
}

// Reset drops the recorded operations and restores the initial state.
func (c *RecordingCanvas) Reset() {
	c.ops = nil
	c.StateStack = graphics.NewStateStack(c.size)
}

func (c *RecordingCanvas) Save() {
	c.StateStack.Save()
	c.ops = append(c.ops, DisplayOp{Op: "save"})
}

func (c *RecordingCanvas) SaveLayerAlpha(bounds graphics.Rect, alpha float64) {
	c.StateStack.Save()
	c.ops = append(c.ops, DisplayOp{
		Op:     "saveLayerAlpha",
		Params: sortedMap("bounds", serializeRect(bounds), "alpha", round2(alpha)),
	})
}

func (c *RecordingCanvas) SaveLayerBackdrop(bounds graphics.Rect, filter *graphics.ImageFilter) {
	c.StateStack.Save()
	params := sortedMap("bounds", serializeRect(bounds))
	if filter != nil {
		params["sigmaX"] = round2(filter.SigmaX)
		params["sigmaY"] = round2(filter.SigmaY)
	}
	c.ops = append(c.ops, DisplayOp{Op: "saveLayerBackdrop", Params: params})
}

func (c *RecordingCanvas) Restore() {
	if c.StateStack.Restore() {
		c.ops = append(c.ops, DisplayOp{Op: "restore"})
	}
}

func (c *RecordingCanvas) RestoreToCount(count int) {
	for c.SaveCount() > count && count >= 1 {
		c.Restore()
	}
}

func (c *RecordingCanvas) Translate(dx, dy float64) {
	c.StateStack.Translate(dx, dy)
	c.ops = append(c.ops, DisplayOp{
		Op:     "translate",
		Params: sortedMap("dx", round2(dx), "dy", round2(dy)),
	})
}

func (c *RecordingCanvas) Scale(sx, sy float64) {
	c.StateStack.Scale(sx, sy)
	c.ops = append(c.ops, DisplayOp{
		Op:     "scale",
		Params: sortedMap("sx", round2(sx), "sy", round2(sy)),
	})
}

func (c *RecordingCanvas) Concat(m graphics.Matrix) {
	c.StateStack.Concat(m)
	c.ops = append(c.ops, DisplayOp{Op: "concat", Params: serializeMatrix(m)})
}

func (c *RecordingCanvas) SetMatrix(m graphics.Matrix) {
	c.StateStack.SetMatrix(m)
	c.ops = append(c.ops, DisplayOp{Op: "setMatrix", Params: serializeMatrix(m)})
}

func (c *RecordingCanvas) ClipRect(rect graphics.Rect) {
	c.StateStack.ClipRect(rect)
	c.ops = append(c.ops, DisplayOp{
		Op:     "clipRect",
		Params: sortedMap("rect", serializeRect(rect)),
	})
}

func (c *RecordingCanvas) Clear(color graphics.Color) {
	c.ops = append(c.ops, DisplayOp{
		Op:     "clear",
		Params: sortedMap("color", serializeColor(color)),
	})
}

func (c *RecordingCanvas) DrawRect(rect graphics.Rect, paint graphics.Paint) {
	params := sortedMap(
		"rect", serializeRect(rect),
		"color", serializeColor(paint.Color),
	)
	if paint.Style == graphics.PaintStyleStroke {
		params["strokeWidth"] = round2(paint.StrokeWidth)
	}
	c.ops = append(c.ops, DisplayOp{Op: "drawRect", Params: params})
}

func (c *RecordingCanvas) DrawImage(img image.Image, position graphics.Offset, opacity float64) {
	params := sortedMap(
		"x", round2(position.X),
		"y", round2(position.Y),
		"opacity", round2(opacity),
	)
	if img != nil {
		b := img.Bounds()
		params["width"] = b.Dx()
		params["height"] = b.Dy()
	}
	c.ops = append(c.ops, DisplayOp{Op: "drawImage", Params: params})
}

func (c *RecordingCanvas) Size() graphics.Size {
	return c.size
}

// --- Serialization helpers ---

func serializeRect(r graphics.Rect) map[string]any {
	return sortedMap(
		"left", round2(r.Left),
		"top", round2(r.Top),
		"right", round2(r.Right),
		"bottom", round2(r.Bottom),
	)
}

func serializeMatrix(m graphics.Matrix) map[string]any {
	return sortedMap(
		"scaleX", round2(m.ScaleX),
		"skewX", round2(m.SkewX),
		"transX", round2(m.TransX),
		"skewY", round2(m.SkewY),
		"scaleY", round2(m.ScaleY),
		"transY", round2(m.TransY),
	)
}

func serializeColor(c graphics.Color) string {
	return fmt.Sprintf("0x%08X", uint32(c))
}

// round2 rounds a float64 to 2 decimal places.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// sortedMap creates a map from alternating key-value pairs. JSON encoding
// sorts the keys.
func sortedMap(kvs ...any) map[string]any {
	m := make(map[string]any, len(kvs)/2)
	for i := 0; i+1 < len(kvs); i += 2 {
		m[kvs[i].(string)] = kvs[i+1]
	}
	return m
}

// sortedKeys returns the keys of a map in sorted order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
