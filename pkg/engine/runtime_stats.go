package engine

import (
	"runtime"
	"sync"
	"time"

	"github.com/go-drift/flow/pkg/rastercache"
)

const (
	runtimeSampleIntervalDefault = 5 * time.Second
	runtimeSampleWindowDefault   = 60 * time.Second
	runtimeSampleMinInterval     = 1 * time.Second
	runtimeSampleMaxSamples      = 120
)

// RuntimeSample is one reading of heap, GC and raster cache memory.
type RuntimeSample struct {
	Timestamp    int64  `json:"ts"`
	HeapAlloc    uint64 `json:"heapAlloc"`
	HeapInuse    uint64 `json:"heapInuse"`
	NumGC        uint32 `json:"numGC"`
	PauseTotalNs uint64 `json:"pauseTotalNs"`
	LastPauseNs  uint64 `json:"lastPauseNs"`

	// Raster cache figures are zero when the sampler has no cache.
	CacheImages int `json:"cacheImages"`
	CacheBytes  int `json:"cacheBytes"`
}

// RuntimeSampleBuffer holds the samples of the last window.
type RuntimeSampleBuffer struct {
	mu       sync.RWMutex
	samples  ring[RuntimeSample]
	interval time.Duration
}

// NewRuntimeSampleBuffer sizes a buffer for window at one sample per
// interval. The interval is at least a second and the buffer holds at most
// 120 samples.
func NewRuntimeSampleBuffer(window, interval time.Duration) *RuntimeSampleBuffer {
	if interval <= 0 {
		interval = runtimeSampleIntervalDefault
	}
	interval = max(interval, runtimeSampleMinInterval)
	if window <= 0 {
		window = runtimeSampleWindowDefault
	}
	capacity := min(max(int(window/interval), 1), runtimeSampleMaxSamples)
	return &RuntimeSampleBuffer{samples: newRing[RuntimeSample](capacity), interval: interval}
}

// Interval returns the sampling interval.
func (b *RuntimeSampleBuffer) Interval() time.Duration {
	return b.interval
}

// Window returns the span of history the buffer can hold.
func (b *RuntimeSampleBuffer) Window() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return time.Duration(len(b.samples.items)) * b.interval
}

// Add stores a sample, dropping the oldest when full.
func (b *RuntimeSampleBuffer) Add(sample RuntimeSample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples.push(sample)
}

// Snapshot returns the samples oldest first.
func (b *RuntimeSampleBuffer) Snapshot() []RuntimeSample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.samples.ordered()
}

// CacheStatser reports raster cache statistics. *rastercache.Cache
// implements it.
type CacheStatser interface {
	Stats() rastercache.Stats
}

func readRuntimeSample(cache CacheStatser) RuntimeSample {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	sample := RuntimeSample{
		Timestamp:    time.Now().UnixMilli(),
		HeapAlloc:    stats.HeapAlloc,
		HeapInuse:    stats.HeapInuse,
		NumGC:        stats.NumGC,
		PauseTotalNs: stats.PauseTotalNs,
	}
	if stats.NumGC > 0 {
		sample.LastPauseNs = stats.PauseNs[(stats.NumGC+255)%256]
	}
	if cache != nil {
		cs := cache.Stats()
		sample.CacheImages = cs.Images
		sample.CacheBytes = cs.ImageBytes
	}
	return sample
}

// RuntimeSampler periodically adds runtime samples to a buffer.
type RuntimeSampler struct {
	buffer *RuntimeSampleBuffer
	cache  CacheStatser

	mu   sync.Mutex
	stop chan struct{}
}

// NewRuntimeSampler returns a stopped sampler feeding buffer. cache may be
// nil.
func NewRuntimeSampler(buffer *RuntimeSampleBuffer, cache CacheStatser) *RuntimeSampler {
	return &RuntimeSampler{buffer: buffer, cache: cache}
}

// Buffer returns the buffer samples are added to.
func (s *RuntimeSampler) Buffer() *RuntimeSampleBuffer {
	return s.buffer
}

// Sample takes one reading now and stores it.
func (s *RuntimeSampler) Sample() RuntimeSample {
	sample := readRuntimeSample(s.cache)
	s.buffer.Add(sample)
	return sample
}

// Start takes a sample immediately and then one per buffer interval.
// Starting a running sampler restarts it.
func (s *RuntimeSampler) Start() {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
	}
	stopCh := make(chan struct{})
	s.stop = stopCh
	s.mu.Unlock()

	s.Sample()
	go func() {
		ticker := time.NewTicker(s.buffer.Interval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sample()
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop ends sampling. Stopping a stopped sampler does nothing.
func (s *RuntimeSampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}
