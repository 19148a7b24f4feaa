package surface

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/go-drift/flow/internal/logging"
	"github.com/go-drift/flow/pkg/graphics"
)

var (
	// ErrFrameAlreadySubmitted is returned by a second Submit.
	ErrFrameAlreadySubmitted = errors.New("surface: frame already submitted")
	// ErrFrameAbandoned is returned by Submit after Discard.
	ErrFrameAbandoned = errors.New("surface: frame was discarded")
)

// FrameState is the lifecycle state of a Frame.
type FrameState int

const (
	// FrameUnsubmitted frames accept drawing and one Submit.
	FrameUnsubmitted FrameState = iota
	// FrameSubmitted frames have been handed to the present callback.
	FrameSubmitted
	// FrameAbandoned frames were discarded without presenting.
	FrameAbandoned
)

func (s FrameState) String() string {
	switch s {
	case FrameSubmitted:
		return "submitted"
	case FrameAbandoned:
		return "abandoned"
	default:
		return "unsubmitted"
	}
}

// FramebufferInfo describes the buffer a frame draws into.
type FramebufferInfo struct {
	// SupportsReadback reports whether layers may read back pixels, as
	// backdrop filters do.
	SupportsReadback bool

	// SupportsPartialRepaint reports whether the target keeps its previous
	// content, so that only damaged pixels need to be redrawn.
	SupportsPartialRepaint bool

	// ExistingDamage is the region of the buffer that is out of date
	// relative to the last presented frame. Nil means unknown: the whole
	// frame must be redrawn. An empty rectangle means the buffer is current.
	ExistingDamage *image.Rectangle

	// Format is the pixel format the frame is presented in. The zero value
	// means RGBA8Unorm.
	Format gputypes.TextureFormat
}

// NeedsFullRedraw reports whether partial repaint is impossible this frame.
func (f FramebufferInfo) NeedsFullRedraw() bool {
	return !f.SupportsPartialRepaint || f.ExistingDamage == nil
}

// SubmitInfo carries the damage of a frame to the present callback.
type SubmitInfo struct {
	// FrameDamage is the region that changed since the previous frame.
	// Nil means unknown.
	FrameDamage *image.Rectangle
	// BufferDamage is the region of the target buffer that was redrawn.
	// Nil means the whole buffer.
	BufferDamage *image.Rectangle
}

// SubmitFunc presents a frame. It is called at most once per frame.
type SubmitFunc func(frame *Frame, canvas graphics.Canvas) error

// Frame is one drawable frame. Not safe for concurrent use.
type Frame struct {
	canvas     graphics.Canvas
	size       image.Point
	info       FramebufferInfo
	submitInfo SubmitInfo
	submit     SubmitFunc
	state      FrameState
}

// NewFrame returns an unsubmitted frame. submit may be nil for frames that
// have no presentation target.
func NewFrame(canvas graphics.Canvas, size image.Point, info FramebufferInfo, submit SubmitFunc) *Frame {
	return &Frame{canvas: canvas, size: size, info: info, submit: submit}
}

// Canvas returns the canvas to draw into.
func (f *Frame) Canvas() graphics.Canvas {
	return f.canvas
}

// Size returns the frame size in pixels.
func (f *Frame) Size() image.Point {
	return f.size
}

// FramebufferInfo returns the target buffer's capabilities.
func (f *Frame) FramebufferInfo() FramebufferInfo {
	return f.info
}

// SubmitInfo returns the damage recorded with SetSubmitInfo.
func (f *Frame) SubmitInfo() SubmitInfo {
	return f.submitInfo
}

// SetSubmitInfo records the damage to present with.
func (f *Frame) SetSubmitInfo(info SubmitInfo) {
	f.submitInfo = info
}

// State returns the lifecycle state.
func (f *Frame) State() FrameState {
	return f.state
}

// Submit presents the frame. Only the first call presents; later calls
// return ErrFrameAlreadySubmitted and do nothing else. A frame whose present
// callback fails still counts as submitted.
func (f *Frame) Submit() error {
	switch f.state {
	case FrameSubmitted:
		logging.Logger().Warn("frame submitted twice")
		return ErrFrameAlreadySubmitted
	case FrameAbandoned:
		return ErrFrameAbandoned
	}
	f.state = FrameSubmitted
	if f.submit == nil {
		return nil
	}
	if err := f.submit(f, f.canvas); err != nil {
		logging.Logger().Warn("frame present failed", slog.Any("error", err))
		return fmt.Errorf("surface: present: %w", err)
	}
	return nil
}

// Discard abandons an unsubmitted frame. It does nothing for frames that
// were already submitted or discarded.
func (f *Frame) Discard() {
	if f.state == FrameUnsubmitted {
		f.state = FrameAbandoned
	}
}
