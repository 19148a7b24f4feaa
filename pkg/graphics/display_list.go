package graphics

import (
	"image"
	"reflect"
	"sync/atomic"
	"unsafe"
)

var displayListIDs atomic.Uint64

// DisplayList is an immutable list of drawing operations.
// It can be replayed onto any Canvas implementation.
type DisplayList struct {
	id           uint64
	ops          []displayOp
	size         Size
	bounds       Rect
	byteSize     int
	groupOpacity bool
}

// Paint replays the recorded operations onto the provided canvas.
func (d *DisplayList) Paint(canvas Canvas) {
	d.RenderTo(canvas, 1)
}

// RenderTo replays the operations modulated by opacity. When the list can
// apply group opacity the alpha is folded into each draw; otherwise the
// content is composited through a save layer.
func (d *DisplayList) RenderTo(canvas Canvas, opacity float64) {
	if opacity <= 0 {
		return
	}
	useLayer := opacity < 1 && !d.groupOpacity
	if useLayer {
		canvas.SaveLayerAlpha(d.bounds, opacity)
		opacity = 1
	}
	base := canvas.TotalMatrix()
	count := canvas.SaveCount()
	for _, op := range d.ops {
		op.execute(canvas, base, opacity)
	}
	canvas.RestoreToCount(count)
	if useLayer {
		canvas.Restore()
	}
}

// ID returns an identifier unique to this display list within the process.
func (d *DisplayList) ID() uint64 {
	return d.id
}

// Size returns the size recorded when the display list was created.
func (d *DisplayList) Size() Size {
	return d.size
}

// Bounds returns the area touched by the recorded draws, in the list's
// local coordinates.
func (d *DisplayList) Bounds() Rect {
	return d.bounds
}

// OpCount returns the number of recorded operations.
func (d *DisplayList) OpCount() int {
	return len(d.ops)
}

// ByteSize estimates the memory held by the recorded operations.
func (d *DisplayList) ByteSize() int {
	return d.byteSize
}

// CanApplyGroupOpacity reports whether an opacity applied to every draw
// individually renders the same as applying it to the composited group.
// That holds when no two draws overlap and no layer or clear is recorded.
func (d *DisplayList) CanApplyGroupOpacity() bool {
	return d.groupOpacity
}

// Equals reports whether two display lists render identically.
func (d *DisplayList) Equals(other *DisplayList) bool {
	if d == other {
		return true
	}
	if d == nil || other == nil {
		return false
	}
	if len(d.ops) != len(other.ops) || d.byteSize != other.byteSize || d.bounds != other.bounds {
		return false
	}
	for i, op := range d.ops {
		if !op.equal(other.ops[i]) {
			return false
		}
	}
	return true
}

// PictureRecorder records drawing commands into a display list.
type PictureRecorder struct {
	ops          []displayOp
	recording    bool
	size         Size
	state        StateStack
	bounds       Rect
	byteSize     int
	groupOpacity bool
}

// BeginRecording starts a new recording session.
func (r *PictureRecorder) BeginRecording(size Size) Canvas {
	r.ops = r.ops[:0]
	r.recording = true
	r.size = size
	r.state = StateStack{current: canvasState{matrix: Identity(), clip: GiantRect}}
	r.bounds = Rect{}
	r.byteSize = 0
	r.groupOpacity = true
	return &recordingCanvas{recorder: r}
}

// EndRecording finishes the recording and returns a display list.
func (r *PictureRecorder) EndRecording() *DisplayList {
	if !r.recording {
		return &DisplayList{id: displayListIDs.Add(1), size: r.size, groupOpacity: true}
	}
	r.recording = false
	ops := make([]displayOp, len(r.ops))
	copy(ops, r.ops)
	return &DisplayList{
		id:           displayListIDs.Add(1),
		ops:          ops,
		size:         r.size,
		bounds:       r.bounds,
		byteSize:     r.byteSize,
		groupOpacity: r.groupOpacity,
	}
}

func (r *PictureRecorder) append(op displayOp, size uintptr) {
	if !r.recording {
		return
	}
	r.ops = append(r.ops, op)
	r.byteSize += int(size)
}

// accumulate records the device-space footprint of a draw.
func (r *PictureRecorder) accumulate(local Rect, canInheritOpacity bool) {
	footprint := r.state.current.matrix.MapRect(local).Intersect(r.state.current.clip)
	if footprint.IsEmpty() {
		return
	}
	if !canInheritOpacity || footprint.Intersects(r.bounds) {
		r.groupOpacity = false
	}
	r.bounds = r.bounds.Join(footprint)
}

type displayOp interface {
	execute(canvas Canvas, base Matrix, opacity float64)
	equal(other displayOp) bool
}

type recordingCanvas struct {
	recorder *PictureRecorder
}

func (c *recordingCanvas) Save() {
	c.recorder.state.Save()
	c.recorder.append(opSave{}, unsafe.Sizeof(opSave{}))
}

func (c *recordingCanvas) SaveLayerAlpha(bounds Rect, alpha float64) {
	c.recorder.state.Save()
	c.recorder.groupOpacity = false
	op := opSaveLayerAlpha{bounds: bounds, alpha: alpha}
	c.recorder.append(op, unsafe.Sizeof(op))
}

func (c *recordingCanvas) SaveLayerBackdrop(bounds Rect, filter *ImageFilter) {
	c.recorder.state.Save()
	c.recorder.accumulate(bounds, false)
	op := opSaveLayerBackdrop{bounds: bounds}
	if filter != nil {
		op.filter = *filter
		op.hasFilter = true
	}
	c.recorder.append(op, unsafe.Sizeof(op))
}

func (c *recordingCanvas) Restore() {
	if c.recorder.state.Restore() {
		c.recorder.append(opRestore{}, unsafe.Sizeof(opRestore{}))
	}
}

func (c *recordingCanvas) SaveCount() int {
	return c.recorder.state.SaveCount()
}

func (c *recordingCanvas) RestoreToCount(count int) {
	for c.SaveCount() > count && count >= 1 {
		c.Restore()
	}
}

func (c *recordingCanvas) Translate(dx, dy float64) {
	c.recorder.state.Translate(dx, dy)
	op := opConcat{m: TranslateMatrix(dx, dy)}
	c.recorder.append(op, unsafe.Sizeof(op))
}

func (c *recordingCanvas) Scale(sx, sy float64) {
	c.recorder.state.Scale(sx, sy)
	op := opConcat{m: ScaleMatrix(sx, sy)}
	c.recorder.append(op, unsafe.Sizeof(op))
}

func (c *recordingCanvas) Concat(m Matrix) {
	c.recorder.state.Concat(m)
	op := opConcat{m: m}
	c.recorder.append(op, unsafe.Sizeof(op))
}

func (c *recordingCanvas) SetMatrix(m Matrix) {
	c.recorder.state.SetMatrix(m)
	op := opSetMatrix{m: m}
	c.recorder.append(op, unsafe.Sizeof(op))
}

func (c *recordingCanvas) TotalMatrix() Matrix {
	return c.recorder.state.TotalMatrix()
}

func (c *recordingCanvas) ClipRect(rect Rect) {
	c.recorder.state.ClipRect(rect)
	op := opClipRect{rect: rect}
	c.recorder.append(op, unsafe.Sizeof(op))
}

func (c *recordingCanvas) Clear(color Color) {
	inv, ok := c.recorder.state.current.matrix.Invert()
	if ok {
		c.recorder.accumulate(inv.MapRect(RectFromSize(c.recorder.size)), false)
	}
	op := opClear{color: color}
	c.recorder.append(op, unsafe.Sizeof(op))
}

func (c *recordingCanvas) DrawRect(rect Rect, paint Paint) {
	c.recorder.accumulate(rect.Outset(paint.outset(), paint.outset()), true)
	op := opDrawRect{rect: rect, paint: paint}
	c.recorder.append(op, unsafe.Sizeof(op))
}

func (c *recordingCanvas) DrawImage(img image.Image, position Offset, opacity float64) {
	if img == nil {
		return
	}
	b := img.Bounds()
	c.recorder.accumulate(RectFromLTWH(position.X, position.Y, float64(b.Dx()), float64(b.Dy())), true)
	op := opDrawImage{img: img, position: position, opacity: opacity}
	c.recorder.append(op, unsafe.Sizeof(op))
}

func (c *recordingCanvas) QuickReject(rect Rect) bool {
	return c.recorder.state.QuickReject(rect)
}

func (c *recordingCanvas) LocalClipBounds() Rect {
	return c.recorder.state.LocalClipBounds()
}

func (c *recordingCanvas) DeviceClipBounds() Rect {
	return c.recorder.state.DeviceClipBounds()
}

func (c *recordingCanvas) Size() Size {
	return c.recorder.size
}

type opSave struct{}

func (opSave) execute(canvas Canvas, _ Matrix, _ float64) {
	canvas.Save()
}

func (op opSave) equal(other displayOp) bool { return sameOp(op, other) }

type opSaveLayerAlpha struct {
	bounds Rect
	alpha  float64
}

func (op opSaveLayerAlpha) execute(canvas Canvas, _ Matrix, _ float64) {
	canvas.SaveLayerAlpha(op.bounds, op.alpha)
}

func (op opSaveLayerAlpha) equal(other displayOp) bool { return sameOp(op, other) }

type opSaveLayerBackdrop struct {
	bounds    Rect
	filter    ImageFilter
	hasFilter bool
}

func (op opSaveLayerBackdrop) execute(canvas Canvas, _ Matrix, _ float64) {
	if op.hasFilter {
		filter := op.filter
		canvas.SaveLayerBackdrop(op.bounds, &filter)
		return
	}
	canvas.SaveLayerBackdrop(op.bounds, nil)
}

func (op opSaveLayerBackdrop) equal(other displayOp) bool { return sameOp(op, other) }

type opRestore struct{}

func (opRestore) execute(canvas Canvas, _ Matrix, _ float64) {
	canvas.Restore()
}

func (op opRestore) equal(other displayOp) bool { return sameOp(op, other) }

type opConcat struct {
	m Matrix
}

func (op opConcat) execute(canvas Canvas, _ Matrix, _ float64) {
	canvas.Concat(op.m)
}

func (op opConcat) equal(other displayOp) bool { return sameOp(op, other) }

// opSetMatrix is replayed relative to the canvas transform at replay start.
type opSetMatrix struct {
	m Matrix
}

func (op opSetMatrix) execute(canvas Canvas, base Matrix, _ float64) {
	canvas.SetMatrix(base.Concat(op.m))
}

func (op opSetMatrix) equal(other displayOp) bool { return sameOp(op, other) }

type opClipRect struct {
	rect Rect
}

func (op opClipRect) execute(canvas Canvas, _ Matrix, _ float64) {
	canvas.ClipRect(op.rect)
}

func (op opClipRect) equal(other displayOp) bool { return sameOp(op, other) }

type opClear struct {
	color Color
}

func (op opClear) execute(canvas Canvas, _ Matrix, opacity float64) {
	canvas.Clear(op.color.Modulate(opacity))
}

func (op opClear) equal(other displayOp) bool { return sameOp(op, other) }

type opDrawRect struct {
	rect  Rect
	paint Paint
}

func (op opDrawRect) execute(canvas Canvas, _ Matrix, opacity float64) {
	paint := op.paint
	paint.Color = paint.Color.Modulate(opacity)
	canvas.DrawRect(op.rect, paint)
}

func (op opDrawRect) equal(other displayOp) bool { return sameOp(op, other) }

type opDrawImage struct {
	img      image.Image
	position Offset
	opacity  float64
}

func (op opDrawImage) execute(canvas Canvas, _ Matrix, opacity float64) {
	canvas.DrawImage(op.img, op.position, op.opacity*opacity)
}

func (op opDrawImage) equal(other displayOp) bool {
	o, ok := other.(opDrawImage)
	return ok && op.position == o.position && op.opacity == o.opacity && sameImage(op.img, o.img)
}

// sameOp compares ops whose fields are all comparable values.
func sameOp[T comparable](op T, other displayOp) bool {
	o, ok := other.(T)
	return ok && op == o
}

// sameImage compares images by identity when they are pointers and by
// content otherwise.
func sameImage(a, b image.Image) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.Pointer && vb.Kind() == reflect.Pointer {
		return va.Type() == vb.Type() && va.Pointer() == vb.Pointer()
	}
	return reflect.DeepEqual(a, b)
}
