package graphics

// StateStack maintains transform and device clip state for canvas
// implementations. Embedded by RasterCanvas and the recording canvases so the
// save/restore/transform/clip bookkeeping lives in one place.
type StateStack struct {
	current canvasState
	saved   []canvasState
}

type canvasState struct {
	matrix Matrix
	clip   Rect // device space
}

// NewStateStack returns a stack whose clip covers a canvas of the given size.
func NewStateStack(size Size) StateStack {
	return StateStack{
		current: canvasState{matrix: Identity(), clip: RectFromSize(size)},
	}
}

// Save pushes the current state.
func (s *StateStack) Save() {
	s.saved = append(s.saved, s.current)
}

// Restore pops the most recent state. It reports false when nothing was saved.
func (s *StateStack) Restore() bool {
	if len(s.saved) == 0 {
		return false
	}
	s.current = s.saved[len(s.saved)-1]
	s.saved = s.saved[:len(s.saved)-1]
	return true
}

// SaveCount returns the depth of the save stack, starting at 1.
func (s *StateStack) SaveCount() int {
	return len(s.saved) + 1
}

// Translate pre-translates the transform.
func (s *StateStack) Translate(dx, dy float64) {
	s.current.matrix = s.current.matrix.Concat(TranslateMatrix(dx, dy))
}

// Scale pre-scales the transform.
func (s *StateStack) Scale(sx, sy float64) {
	s.current.matrix = s.current.matrix.Concat(ScaleMatrix(sx, sy))
}

// Concat pre-multiplies the transform by m.
func (s *StateStack) Concat(m Matrix) {
	s.current.matrix = s.current.matrix.Concat(m)
}

// SetMatrix replaces the transform.
func (s *StateStack) SetMatrix(m Matrix) {
	s.current.matrix = m
}

// TotalMatrix returns the current transform.
func (s *StateStack) TotalMatrix() Matrix {
	return s.current.matrix
}

// ClipRect intersects the clip with rect mapped to device space. Rotated
// clips are approximated by their bounding box.
func (s *StateStack) ClipRect(rect Rect) {
	s.current.clip = s.current.clip.Intersect(s.current.matrix.MapRect(rect))
}

// QuickReject reports whether rect cannot touch any pixel inside the clip.
func (s *StateStack) QuickReject(rect Rect) bool {
	if rect.IsEmpty() {
		return true
	}
	return !s.current.matrix.MapRect(rect).Intersects(s.current.clip)
}

// DeviceClipBounds returns the clip in device coordinates.
func (s *StateStack) DeviceClipBounds() Rect {
	return s.current.clip
}

// LocalClipBounds returns the clip mapped back into local coordinates.
func (s *StateStack) LocalClipBounds() Rect {
	inv, ok := s.current.matrix.Invert()
	if !ok {
		return Rect{}
	}
	return inv.MapRect(s.current.clip)
}
