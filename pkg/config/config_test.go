package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-drift/flow/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadOptional_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	want := Default()
	if *cfg != *want {
		t.Errorf("config = %+v, want %+v", cfg, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestLoadOptional_OverridesDefaults(t *testing.T) {
	dir := writeConfig(t, `
version: "1.2"
pipeline:
  partialRepaint: false
  devicePixelRatio: 2
rasterCache:
  accessThreshold: 5
  checkerboard: true
surface:
  width: 320
  height: 240
  bufferCount: 3
debug:
  serverPort: 9999
  frameBudget: 8ms
log:
  level: debug
`)
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.Pipeline.PartialRepaint || cfg.Pipeline.DevicePixelRatio != 2 {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.RasterCache.AccessThreshold != 5 || cfg.RasterCache.PerFrameLimit != 3 || !cfg.RasterCache.Checkerboard {
		t.Errorf("rasterCache = %+v", cfg.RasterCache)
	}
	if cfg.Surface != (SurfaceConfig{Width: 320, Height: 240, BufferCount: 3}) {
		t.Errorf("surface = %+v", cfg.Surface)
	}
	if cfg.Debug.ServerPort != 9999 || cfg.Debug.FrameBudget != 8*time.Millisecond || cfg.Debug.FrameTraceSamples != 240 {
		t.Errorf("debug = %+v", cfg.Debug)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoadOptional_ParseError(t *testing.T) {
	dir := writeConfig(t, "pipeline: [unclosed")
	_, err := LoadOptional(dir)
	if err == nil {
		t.Fatal("expected parse error")
	}
	var fe *errors.FlowError
	if !stderrors.As(err, &fe) || fe.Kind != errors.KindConfig {
		t.Errorf("error = %v, want a config FlowError", err)
	}
	if !strings.Contains(err.Error(), "failed to parse config") {
		t.Errorf("error = %q", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !stderrors.Is(err, os.ErrNotExist) {
		t.Errorf("Load = %v, want ErrNotExist", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"future major", func(c *Config) { c.Version = "v2.0.0" }, "not supported"},
		{"garbage version", func(c *Config) { c.Version = "latest" }, "not a semantic version"},
		{"version without v", func(c *Config) { c.Version = "1.4.2" }, ""},
		{"zero pixel ratio", func(c *Config) { c.Pipeline.DevicePixelRatio = 0 }, "devicePixelRatio"},
		{"negative threshold", func(c *Config) { c.RasterCache.AccessThreshold = -1 }, "accessThreshold"},
		{"disabled cache", func(c *Config) { c.RasterCache.AccessThreshold = 0 }, ""},
		{"negative limit", func(c *Config) { c.RasterCache.PerFrameLimit = -1 }, "perFrameLimit"},
		{"negative max entries", func(c *Config) { c.RasterCache.MaxEntries = -4 }, "maxEntries"},
		{"single buffer", func(c *Config) { c.Surface.BufferCount = 1 }, "bufferCount"},
		{"negative size", func(c *Config) { c.Surface.Width = -1 }, "surface size"},
		{"bgra format", func(c *Config) { c.Surface.Format = "BGRA8Unorm" }, ""},
		{"float format", func(c *Config) { c.Surface.Format = "rgba16float" }, "surface.format"},
		{"port out of range", func(c *Config) { c.Debug.ServerPort = 70000 }, "serverPort"},
		{"no trace samples", func(c *Config) { c.Debug.FrameTraceSamples = 0 }, "frameTraceSamples"},
		{"no frame budget", func(c *Config) { c.Debug.FrameBudget = 0 }, "frameBudget"},
		{"unknown log level", func(c *Config) { c.Log.Level = "chatty" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestCanonicalVersion(t *testing.T) {
	tests := map[string]string{
		"1":       "v1.0.0",
		"v1.2":    "v1.2.0",
		" 1.2.3 ": "v1.2.3",
		"latest":  "",
		"":        "",
	}
	for in, want := range tests {
		if got := CanonicalVersion(in); got != want {
			t.Errorf("CanonicalVersion(%q) = %q, want %q", in, got, want)
		}
	}
}
