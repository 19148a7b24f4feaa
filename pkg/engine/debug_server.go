package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-drift/flow/internal/logging"
	"github.com/go-drift/flow/pkg/errors"
	"github.com/go-drift/flow/pkg/flow"
)

// DebugServer serves pipeline state over HTTP:
//
//	/health        liveness
//	/frames        recent frame trace samples
//	/layer-tree    the last drawn layer tree
//	/raster-cache  raster cache statistics
//	/runtime       recent runtime memory samples
type DebugServer struct {
	rasterizer *Rasterizer
	runtime    *RuntimeSampleBuffer

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewDebugServer returns a stopped server inspecting r. runtime may be nil.
func NewDebugServer(r *Rasterizer, runtime *RuntimeSampleBuffer) *DebugServer {
	return &DebugServer{rasterizer: r, runtime: runtime}
}

// Handler returns the server's routes.
func (d *DebugServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", guard("engine.DebugServer.health", handleHealth))
	mux.HandleFunc("/frames", guard("engine.DebugServer.frames", d.handleFrameTimeline))
	mux.HandleFunc("/layer-tree", guard("engine.DebugServer.layerTree", d.handleLayerTree))
	mux.HandleFunc("/raster-cache", guard("engine.DebugServer.rasterCache", d.handleRasterCache))
	mux.HandleFunc("/runtime", guard("engine.DebugServer.runtime", d.handleRuntime))
	return mux
}

// guard reports a panicking handler and answers 500 instead of dropping the
// connection.
func guard(op string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer errors.RecoverWithCallback(op, func(rec any) {
			http.Error(w, fmt.Sprintf("panic: %v", rec), http.StatusInternalServerError)
		})
		h(w, r)
	}
}

// Start listens on port and serves in the background. It returns the
// actual port (useful when port=0 for ephemeral allocation).
func (d *DebugServer) Start(port int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.server != nil {
		return d.listener.Addr().(*net.TCPAddr).Port, nil
	}

	// Bind listener first to fail fast on port conflicts
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return 0, fmt.Errorf("debug server listen: %w", err)
	}
	actualPort := listener.Addr().(*net.TCPAddr).Port

	server := &http.Server{Handler: d.Handler(), ReadHeaderTimeout: 5 * time.Second}
	d.server = server
	d.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			d.mu.Lock()
			d.server = nil
			d.listener = nil
			d.mu.Unlock()
			logging.Logger().Warn("debug server stopped", slog.Any("error", err))
		}
	}()

	logging.Logger().Info("debug server listening", slog.Int("port", actualPort))
	return actualPort, nil
}

// Stop gracefully shuts the server down.
func (d *DebugServer) Stop() {
	d.mu.Lock()
	server := d.server
	d.server = nil
	d.listener = nil
	d.mu.Unlock()

	if server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	server.Shutdown(ctx)
}

// maxTreeDepth limits recursion depth to prevent stack overflow from malformed trees.
const maxTreeDepth = 500

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// LayerTreeResponse is the /layer-tree response shape.
type LayerTreeResponse struct {
	Frame      uint64          `json:"frame"`
	FrameSize  [2]int          `json:"frameSize"`
	FullRedraw bool            `json:"fullRedraw"`
	Damage     [4]int          `json:"damage"`
	Statistics flow.Statistics `json:"statistics"`
	Root       *flow.LayerInfo `json:"root,omitempty"`
}

// handleLayerTree returns the snapshot of the last drawn tree.
func (d *DebugServer) handleLayerTree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := d.rasterizer.LastSnapshot()
	if snap == nil {
		http.Error(w, "no layer tree", http.StatusServiceUnavailable)
		return
	}
	result := d.rasterizer.LastResult()
	b := result.Damage.BufferDamage
	resp := LayerTreeResponse{
		Frame:      snap.Frame,
		FrameSize:  [2]int{snap.FrameSize.X, snap.FrameSize.Y},
		FullRedraw: result.FullRedraw,
		Damage:     [4]int{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y},
		Statistics: snap.Statistics,
	}
	if snap.Root != nil {
		info := truncateDepth(*snap.Root, 0)
		resp.Root = &info
	}
	writeJSON(w, resp)
}

// truncateDepth returns a copy of info cut at maxTreeDepth. Snapshots are
// shared between requests and are never modified.
func truncateDepth(info flow.LayerInfo, depth int) flow.LayerInfo {
	if depth >= maxTreeDepth {
		info.Children = nil
		return info
	}
	children := info.Children
	info.Children = make([]flow.LayerInfo, len(children))
	for i, child := range children {
		info.Children[i] = truncateDepth(child, depth+1)
	}
	return info
}

func (d *DebugServer) handleRasterCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cache, ok := d.rasterizer.Options().RasterCache.(CacheStatser)
	if !ok {
		http.Error(w, "raster cache disabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, cache.Stats())
}

// handleFrameTimeline returns recent frame timing samples as JSON.
func (d *DebugServer) handleFrameTimeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	trace := d.rasterizer.Options().Trace
	if trace == nil {
		http.Error(w, "frame tracing disabled", http.StatusServiceUnavailable)
		return
	}

	resp := trace.Snapshot()
	applyFrameFilters(r, &resp)
	writeJSON(w, resp)
}

// handleRuntime returns recent runtime/GC samples as JSON.
func (d *DebugServer) handleRuntime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if d.runtime == nil {
		http.Error(w, "runtime sampling disabled", http.StatusServiceUnavailable)
		return
	}

	resp := struct {
		Samples []RuntimeSample `json:"samples"`
	}{
		Samples: applyRuntimeFilters(r, d.runtime.Snapshot()),
	}
	writeJSON(w, resp)
}

// writeJSON encodes to a buffer first so encoding errors become a 500.
func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, fmt.Sprintf("json encode error: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func applyFrameFilters(r *http.Request, resp *FrameTimeline) {
	limit := 0
	if value := r.URL.Query().Get("limit"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var filters []func(FrameSample) bool

	if v := parseFloatQuery(r, "min_ms"); v > 0 {
		filters = append(filters, func(s FrameSample) bool { return s.FrameMs >= v })
	}
	if v := parseFloatQuery(r, "preroll_ms"); v > 0 {
		filters = append(filters, func(s FrameSample) bool { return s.Phases.PrerollMs >= v })
	}
	if v := parseFloatQuery(r, "diff_ms"); v > 0 {
		filters = append(filters, func(s FrameSample) bool { return s.Phases.DiffMs >= v })
	}
	if v := parseFloatQuery(r, "paint_ms"); v > 0 {
		filters = append(filters, func(s FrameSample) bool { return s.Phases.PaintMs >= v })
	}
	if v := parseFloatQuery(r, "submit_ms"); v > 0 {
		filters = append(filters, func(s FrameSample) bool { return s.Phases.SubmitMs >= v })
	}
	if value := r.URL.Query().Get("full_redraw"); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil && parsed {
			filters = append(filters, func(s FrameSample) bool { return s.Flags.FullRedraw })
		}
	}

	if len(filters) > 0 {
		filtered := make([]FrameSample, 0, len(resp.Samples))
	outer:
		for _, sample := range resp.Samples {
			for _, f := range filters {
				if !f(sample) {
					continue outer
				}
			}
			filtered = append(filtered, sample)
		}
		resp.Samples = filtered
	}

	if limit > 0 && len(resp.Samples) > limit {
		resp.Samples = resp.Samples[len(resp.Samples)-limit:]
	}
}

func applyRuntimeFilters(r *http.Request, samples []RuntimeSample) []RuntimeSample {
	windowSeconds := parseFloatQuery(r, "window")
	if windowSeconds > 0 {
		cutoff := time.Now().Add(-time.Duration(windowSeconds * float64(time.Second))).UnixMilli()
		filtered := make([]RuntimeSample, 0, len(samples))
		for _, sample := range samples {
			if sample.Timestamp >= cutoff {
				filtered = append(filtered, sample)
			}
		}
		samples = filtered
	}

	limit := 0
	if value := r.URL.Query().Get("limit"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 0 && len(samples) > limit {
		samples = samples[len(samples)-limit:]
	}
	return samples
}

func parseFloatQuery(r *http.Request, key string) float64 {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return 0
	}
	return parsed
}
