package engine

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-drift/flow/pkg/errors"
	"github.com/go-drift/flow/pkg/flow"
	"github.com/go-drift/flow/pkg/graphics"
	"github.com/go-drift/flow/pkg/rastercache"
	"github.com/go-drift/flow/pkg/surface"
)

// waitForServer polls the health endpoint until ready or timeout.
func waitForServer(port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := fmt.Sprintf("http://localhost:%d/health", port)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	return fmt.Errorf("server not ready after %v", timeout)
}

// waitForServerDown polls until the server stops responding or timeout.
func waitForServerDown(port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := fmt.Sprintf("http://localhost:%d/health", port)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err != nil {
			return nil // Connection refused = server is down
		}
		resp.Body.Close()
		time.Sleep(5 * time.Millisecond)
	}
	return fmt.Errorf("server still running after %v", timeout)
}

func newTestServer() *DebugServer {
	r := NewRasterizer(surface.NewImageSurface(frameSize, 1), Options{})
	return NewDebugServer(r, nil)
}

func TestDebugServer_StartStop(t *testing.T) {
	srv := newTestServer()
	// Use ephemeral port (0)
	port, err := srv.Start(0)
	if err != nil {
		t.Fatalf("failed to start debug server: %v", err)
	}
	defer srv.Stop()

	if err := waitForServer(port, 2*time.Second); err != nil {
		t.Fatalf("server not ready: %v", err)
	}

	// Test health endpoint
	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/health", port))
	if err != nil {
		t.Fatalf("failed to reach health endpoint: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	var health map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", health["status"])
	}

	// Stop server
	srv.Stop()

	// Verify server is stopped
	if err := waitForServerDown(port, 2*time.Second); err != nil {
		t.Errorf("server did not stop: %v", err)
	}
}

func TestDebugServer_LayerTreeEndpoint_NoTree(t *testing.T) {
	srv := newTestServer()
	port, err := srv.Start(0)
	if err != nil {
		t.Fatalf("failed to start debug server: %v", err)
	}
	defer srv.Stop()

	if err := waitForServer(port, 2*time.Second); err != nil {
		t.Fatalf("server not ready: %v", err)
	}

	// Before the first frame there is no tree
	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/layer-tree", port))
	if err != nil {
		t.Fatalf("failed to reach tree endpoint: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 with no root, got %d", resp.StatusCode)
	}
}

func TestDebugServer_MethodNotAllowed(t *testing.T) {
	srv := newTestServer()
	port, err := srv.Start(0)
	if err != nil {
		t.Fatalf("failed to start debug server: %v", err)
	}
	defer srv.Stop()

	if err := waitForServer(port, 2*time.Second); err != nil {
		t.Fatalf("server not ready: %v", err)
	}

	// POST to health should fail
	resp, err := http.Post(fmt.Sprintf("http://localhost:%d/health", port), "application/json", nil)
	if err != nil {
		t.Fatalf("failed to reach health endpoint: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405 for POST, got %d", resp.StatusCode)
	}
}

func TestDebugServer_FailFastOnPortConflict(t *testing.T) {
	srv := newTestServer()
	// Occupy a port with a plain listener
	blocker, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to create blocker listener: %v", err)
	}
	defer blocker.Close()

	blockedPort := blocker.Addr().(*net.TCPAddr).Port

	// Try to start debug server on the occupied port - should fail immediately
	_, err = srv.Start(blockedPort)
	if err == nil {
		srv.Stop()
		t.Error("expected error when binding to occupied port, got nil")
	}
}

func TestDebugServer_AlreadyRunningReturnsPort(t *testing.T) {
	srv := newTestServer()
	// Start server
	port1, err := srv.Start(0)
	if err != nil {
		t.Fatalf("failed to start debug server: %v", err)
	}
	defer srv.Stop()

	// Calling start again should return the same port (no error)
	port2, err := srv.Start(0)
	if err != nil {
		t.Fatalf("second start returned error: %v", err)
	}

	if port1 != port2 {
		t.Errorf("expected same port %d, got %d", port1, port2)
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestDebugServer_LayerTree(t *testing.T) {
	r := NewRasterizer(surface.NewImageSurface(frameSize, 1), Options{PartialRepaint: true})
	root := flow.NewContainerLayer(square(0, graphics.ColorRed), square(20, graphics.ColorBlue))
	draw(t, r, root)
	draw(t, r, root)

	rec := get(t, NewDebugServer(r, nil).Handler(), "/layer-tree")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp LayerTreeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Frame != 2 || resp.FullRedraw {
		t.Errorf("frame = %d fullRedraw = %v, want frame 2 without full redraw", resp.Frame, resp.FullRedraw)
	}
	if resp.FrameSize != [2]int{40, 20} {
		t.Errorf("frameSize = %v", resp.FrameSize)
	}
	if resp.Statistics.RetainedSubtrees != 2 {
		t.Errorf("retained = %d, want 2", resp.Statistics.RetainedSubtrees)
	}
	if resp.Root == nil || resp.Root.Kind != "ContainerLayer" || len(resp.Root.Children) != 2 {
		t.Errorf("root = %+v", resp.Root)
	}
}

func TestDebugServer_RasterCache(t *testing.T) {
	r := NewRasterizer(surface.NewImageSurface(frameSize, 1), Options{})
	rec := get(t, NewDebugServer(r, nil).Handler(), "/raster-cache")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status without cache = %d, want 503", rec.Code)
	}

	cache := rastercache.New(rastercache.Options{AccessThreshold: 1, PerFrameLimit: 3})
	r = NewRasterizer(surface.NewImageSurface(frameSize, 1), Options{RasterCache: cache})
	draw(t, r, flow.NewOpacityLayer(0.5, graphics.Offset{}, square(0, graphics.ColorRed), square(5, graphics.ColorBlue)))

	rec = get(t, NewDebugServer(r, nil).Handler(), "/raster-cache")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var stats rastercache.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Entries != 1 || stats.Images != 1 || stats.Layers.InUseCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDebugServer_Frames(t *testing.T) {
	trace := NewFrameTraceBuffer(16, 0)
	r := NewRasterizer(surface.NewImageSurface(frameSize, 1), Options{PartialRepaint: true, Trace: trace})
	root := flow.NewContainerLayer(square(0, graphics.ColorRed))
	for range 5 {
		draw(t, r, root)
	}
	h := NewDebugServer(r, nil).Handler()

	var timeline FrameTimeline
	rec := get(t, h, "/frames?limit=2")
	if err := json.Unmarshal(rec.Body.Bytes(), &timeline); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(timeline.Samples) != 2 || timeline.Samples[1].Frame != 5 {
		t.Errorf("limit=2 samples = %+v", timeline.Samples)
	}

	rec = get(t, h, "/frames?full_redraw=true")
	timeline = FrameTimeline{}
	if err := json.Unmarshal(rec.Body.Bytes(), &timeline); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(timeline.Samples) != 1 || timeline.Samples[0].Frame != 1 {
		t.Errorf("full_redraw samples = %+v, want frame 1 only", timeline.Samples)
	}

	noTrace := NewRasterizer(surface.NewImageSurface(frameSize, 1), Options{})
	if rec := get(t, NewDebugServer(noTrace, nil).Handler(), "/frames"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status without trace = %d, want 503", rec.Code)
	}
}

func TestDebugServer_Runtime(t *testing.T) {
	r := NewRasterizer(surface.NewImageSurface(frameSize, 1), Options{})
	if rec := get(t, NewDebugServer(r, nil).Handler(), "/runtime"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status without sampler = %d, want 503", rec.Code)
	}

	buffer := NewRuntimeSampleBuffer(time.Minute, time.Second)
	buffer.Add(RuntimeSample{Timestamp: time.Now().UnixMilli(), HeapAlloc: 42})
	rec := get(t, NewDebugServer(r, buffer).Handler(), "/runtime")
	var resp struct {
		Samples []RuntimeSample `json:"samples"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Samples) != 1 || resp.Samples[0].HeapAlloc != 42 {
		t.Errorf("samples = %+v", resp.Samples)
	}
}

type panicRecorder struct {
	recordingHandler
	panics []*errors.PanicError
}

func (h *panicRecorder) HandlePanic(err *errors.PanicError) { h.panics = append(h.panics, err) }

func TestDebugServer_HandlerPanicIsReported(t *testing.T) {
	h := &panicRecorder{}
	errors.SetHandler(h)
	defer errors.SetHandler(nil)

	handler := guard("engine.DebugServer.test", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if len(h.panics) != 1 {
		t.Fatalf("panics = %d, want 1", len(h.panics))
	}
	if h.panics[0].Op != "engine.DebugServer.test" || h.panics[0].Value != "boom" {
		t.Errorf("panic = %+v", h.panics[0])
	}
}

func TestTruncateDepth_LeavesSnapshotIntact(t *testing.T) {
	var layer flow.Layer = square(0, graphics.ColorRed)
	for range maxTreeDepth + 2 {
		layer = flow.NewContainerLayer(layer)
	}
	r := NewRasterizer(surface.NewImageSurface(frameSize, 1), Options{})
	draw(t, r, layer)

	depth := func(info flow.LayerInfo) int {
		n := 0
		for len(info.Children) > 0 {
			info = info.Children[0]
			n++
		}
		return n
	}
	snap := r.LastSnapshot()
	before := depth(*snap.Root)
	if got := depth(truncateDepth(*snap.Root, 0)); got != maxTreeDepth {
		t.Errorf("truncated depth = %d, want %d", got, maxTreeDepth)
	}
	if got := depth(*r.LastSnapshot().Root); got != before || before != maxTreeDepth+2 {
		t.Errorf("snapshot depth = %d after truncation, want %d", got, maxTreeDepth+2)
	}
}
