package engine

import (
	"testing"
	"time"

	"github.com/go-drift/flow/pkg/rastercache"
)

type fixedStats rastercache.Stats

func (f fixedStats) Stats() rastercache.Stats { return rastercache.Stats(f) }

func TestRuntimeSampleBuffer_Sizing(t *testing.T) {
	tests := []struct {
		name          string
		window, every time.Duration
		wantInterval  time.Duration
		wantWindow    time.Duration
	}{
		{"defaults", 0, 0, 5 * time.Second, time.Minute},
		{"minimum interval", time.Minute, time.Millisecond, time.Second, time.Minute},
		{"capped samples", time.Hour, time.Second, time.Second, 120 * time.Second},
		{"window below interval", time.Second, 10 * time.Second, 10 * time.Second, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewRuntimeSampleBuffer(tt.window, tt.every)
			if b.Interval() != tt.wantInterval {
				t.Errorf("interval = %v, want %v", b.Interval(), tt.wantInterval)
			}
			if b.Window() != tt.wantWindow {
				t.Errorf("window = %v, want %v", b.Window(), tt.wantWindow)
			}
		})
	}
}

func TestRuntimeSampler_Sample(t *testing.T) {
	buffer := NewRuntimeSampleBuffer(time.Minute, time.Second)
	sampler := NewRuntimeSampler(buffer, fixedStats{Images: 2, ImageBytes: 800})

	sample := sampler.Sample()
	if sample.HeapAlloc == 0 || sample.Timestamp == 0 {
		t.Errorf("expected heap figures, got %+v", sample)
	}
	if sample.CacheImages != 2 || sample.CacheBytes != 800 {
		t.Errorf("expected cache figures 2/800, got %d/%d", sample.CacheImages, sample.CacheBytes)
	}
	if got := len(buffer.Snapshot()); got != 1 {
		t.Errorf("expected 1 buffered sample, got %d", got)
	}
}

func TestRuntimeSampler_StartStop(t *testing.T) {
	buffer := NewRuntimeSampleBuffer(time.Minute, time.Second)
	sampler := NewRuntimeSampler(buffer, nil)
	sampler.Start()
	sampler.Start()
	sampler.Stop()
	sampler.Stop()

	if got := len(buffer.Snapshot()); got < 2 {
		t.Errorf("expected an immediate sample per start, got %d", got)
	}
}
