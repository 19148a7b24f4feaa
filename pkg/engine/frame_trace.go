package engine

import (
	"sync"
	"time"
)

const (
	frameTraceSamplesDefault   = 240
	defaultFrameTraceThreshold = 16667 * time.Microsecond
)

// FramePhaseTimings captures time spent in each frame phase (ms).
type FramePhaseTimings struct {
	PrerollMs float64 `json:"prerollMs"`
	DiffMs    float64 `json:"diffMs"`
	PaintMs   float64 `json:"paintMs"`
	SubmitMs  float64 `json:"submitMs"`
}

// FrameCounts captures per-frame workload indicators.
type FrameCounts struct {
	Layers            int `json:"layers"`
	RetainedSubtrees  int `json:"retainedSubtrees"`
	NewPictures       int `json:"newPictures"`
	DamageArea        int `json:"damageArea"`
	RasterCacheImages int `json:"rasterCacheImages"`
}

// FrameFlags captures contextual flags for a frame.
type FrameFlags struct {
	FullRedraw    bool `json:"fullRedraw"`
	Submitted     bool `json:"submitted"`
	NeedsReadback bool `json:"needsReadback,omitempty"`
}

// FrameSample is a single frame trace sample.
type FrameSample struct {
	Frame     uint64            `json:"frame"`
	Timestamp int64             `json:"ts"`
	FrameMs   float64           `json:"frameMs"`
	Phases    FramePhaseTimings `json:"phases"`
	Counts    FrameCounts       `json:"counts"`
	Flags     FrameFlags        `json:"flags"`
	Damage    [4]int            `json:"damage"`
}

// FrameTimeline is the debug server response shape.
type FrameTimeline struct {
	Samples       []FrameSample `json:"samples"`
	DroppedFrames int           `json:"droppedFrames"`
	ThresholdMs   float64       `json:"thresholdMs"`
}

// FrameTraceBuffer keeps the most recent frame samples and counts frames
// that ran over budget since it was created.
type FrameTraceBuffer struct {
	mu      sync.RWMutex
	samples ring[FrameSample]
	over    int
	budget  time.Duration
}

// NewFrameTraceBuffer returns a buffer holding capacity samples. Frames
// slower than budget count as dropped. Non-positive values select the
// defaults.
func NewFrameTraceBuffer(capacity int, budget time.Duration) *FrameTraceBuffer {
	if capacity <= 0 {
		capacity = frameTraceSamplesDefault
	}
	if budget <= 0 {
		budget = defaultFrameTraceThreshold
	}
	return &FrameTraceBuffer{samples: newRing[FrameSample](capacity), budget: budget}
}

// Budget returns the dropped frame threshold.
func (b *FrameTraceBuffer) Budget() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.budget
}

// Add records a sample. frameDuration is compared against the budget.
func (b *FrameTraceBuffer) Add(sample FrameSample, frameDuration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples.push(sample)
	if frameDuration > b.budget {
		b.over++
	}
}

// Snapshot returns the samples oldest first along with the dropped count.
func (b *FrameTraceBuffer) Snapshot() FrameTimeline {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return FrameTimeline{
		Samples:       b.samples.ordered(),
		DroppedFrames: b.over,
		ThresholdMs:   durationToMillis(b.budget),
	}
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
