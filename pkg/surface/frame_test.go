package surface

import (
	"errors"
	"image"
	"testing"

	"github.com/go-drift/flow/pkg/graphics"
)

func TestFrame_SubmitOnce(t *testing.T) {
	calls := 0
	f := NewFrame(nil, image.Pt(10, 10), FramebufferInfo{}, func(*Frame, graphics.Canvas) error {
		calls++
		return nil
	})
	if got := f.State(); got != FrameUnsubmitted {
		t.Fatalf("State = %v, want unsubmitted", got)
	}
	if err := f.Submit(); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if err := f.Submit(); !errors.Is(err, ErrFrameAlreadySubmitted) {
		t.Errorf("second Submit = %v, want ErrFrameAlreadySubmitted", err)
	}
	if calls != 1 {
		t.Errorf("present calls = %d, want 1", calls)
	}
	if got := f.State(); got != FrameSubmitted {
		t.Errorf("State = %v, want submitted", got)
	}
}

func TestFrame_FailedPresentStillSubmitted(t *testing.T) {
	boom := errors.New("swap failed")
	calls := 0
	f := NewFrame(nil, image.Pt(10, 10), FramebufferInfo{}, func(*Frame, graphics.Canvas) error {
		calls++
		return boom
	})
	if err := f.Submit(); !errors.Is(err, boom) {
		t.Errorf("Submit = %v, want wrapped %v", err, boom)
	}
	if err := f.Submit(); !errors.Is(err, ErrFrameAlreadySubmitted) {
		t.Errorf("retry = %v, want ErrFrameAlreadySubmitted", err)
	}
	if calls != 1 {
		t.Errorf("present calls = %d, want 1", calls)
	}
}

func TestFrame_Discard(t *testing.T) {
	called := false
	f := NewFrame(nil, image.Pt(10, 10), FramebufferInfo{}, func(*Frame, graphics.Canvas) error {
		called = true
		return nil
	})
	f.Discard()
	if got := f.State(); got != FrameAbandoned {
		t.Errorf("State = %v, want abandoned", got)
	}
	if err := f.Submit(); !errors.Is(err, ErrFrameAbandoned) {
		t.Errorf("Submit after Discard = %v, want ErrFrameAbandoned", err)
	}
	if called {
		t.Error("discarded frame was presented")
	}
}

func TestFrame_DiscardAfterSubmitIsNoop(t *testing.T) {
	f := NewFrame(nil, image.Pt(10, 10), FramebufferInfo{}, nil)
	if err := f.Submit(); err != nil {
		t.Fatal(err)
	}
	f.Discard()
	if got := f.State(); got != FrameSubmitted {
		t.Errorf("State = %v, want submitted", got)
	}
}

func TestFrame_SubmitInfoReachesCallback(t *testing.T) {
	damage := image.Rect(1, 2, 3, 4)
	var seen SubmitInfo
	f := NewFrame(nil, image.Pt(10, 10), FramebufferInfo{}, func(f *Frame, _ graphics.Canvas) error {
		seen = f.SubmitInfo()
		return nil
	})
	f.SetSubmitInfo(SubmitInfo{FrameDamage: &damage, BufferDamage: &damage})
	if err := f.Submit(); err != nil {
		t.Fatal(err)
	}
	if seen.FrameDamage == nil || *seen.FrameDamage != damage {
		t.Errorf("FrameDamage = %v, want %v", seen.FrameDamage, damage)
	}
}

func TestFramebufferInfo_NeedsFullRedraw(t *testing.T) {
	empty := image.Rectangle{}
	some := image.Rect(0, 0, 5, 5)
	tests := []struct {
		name string
		info FramebufferInfo
		want bool
	}{
		{"unknown damage", FramebufferInfo{SupportsPartialRepaint: true}, true},
		{"no partial repaint", FramebufferInfo{ExistingDamage: &some}, true},
		{"nothing changed", FramebufferInfo{SupportsPartialRepaint: true, ExistingDamage: &empty}, false},
		{"known damage", FramebufferInfo{SupportsPartialRepaint: true, ExistingDamage: &some}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.NeedsFullRedraw(); got != tt.want {
				t.Errorf("NeedsFullRedraw() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFrameState_String(t *testing.T) {
	for state, want := range map[FrameState]string{
		FrameUnsubmitted: "unsubmitted",
		FrameSubmitted:   "submitted",
		FrameAbandoned:   "abandoned",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
