// Package config loads the optional flow.yaml pipeline configuration.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/go-drift/flow/pkg/errors"
	"github.com/go-drift/flow/pkg/surface"
)

// FileName is the configuration file looked up by LoadOptional.
const FileName = "flow.yaml"

// SupportedMajor is the configuration format major version this build reads.
const SupportedMajor = "v1"

// Config represents flow.yaml.
type Config struct {
	Version     string            `yaml:"version,omitempty"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	RasterCache RasterCacheConfig `yaml:"rasterCache"`
	Surface     SurfaceConfig     `yaml:"surface"`
	Debug       DebugConfig       `yaml:"debug"`
	Log         LogConfig         `yaml:"log"`
}

// PipelineConfig controls the rasterizer.
type PipelineConfig struct {
	PartialRepaint   bool    `yaml:"partialRepaint"`
	DevicePixelRatio float64 `yaml:"devicePixelRatio"`
	Background       string  `yaml:"background,omitempty"`
}

// RasterCacheConfig controls the raster cache. An access threshold of zero
// disables caching.
type RasterCacheConfig struct {
	AccessThreshold int  `yaml:"accessThreshold"`
	PerFrameLimit   int  `yaml:"perFrameLimit"`
	MaxEntries      int  `yaml:"maxEntries"`
	Checkerboard    bool `yaml:"checkerboard"`
}

// SurfaceConfig sizes the presentation surface. A zero size follows the
// scene.
type SurfaceConfig struct {
	Width       int `yaml:"width"`
	Height      int `yaml:"height"`
	BufferCount int `yaml:"bufferCount"`
	// Format names the front buffer pixel format, e.g. "bgra8unorm".
	Format string `yaml:"format,omitempty"`
}

// DebugConfig controls diagnostics.
type DebugConfig struct {
	// ServerPort enables the HTTP debug server. 0 disables it.
	ServerPort        int           `yaml:"serverPort"`
	FrameTraceSamples int           `yaml:"frameTraceSamples"`
	FrameBudget       time.Duration `yaml:"frameBudget"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
}

// Default returns the configuration used when flow.yaml is absent.
func Default() *Config {
	return &Config{
		Version: SupportedMajor + ".0.0",
		Pipeline: PipelineConfig{
			PartialRepaint:   true,
			DevicePixelRatio: 1,
		},
		RasterCache: RasterCacheConfig{
			AccessThreshold: 3,
			PerFrameLimit:   3,
		},
		Surface: SurfaceConfig{BufferCount: 2},
		Debug: DebugConfig{
			FrameTraceSamples: 240,
			FrameBudget:       16667 * time.Microsecond,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadOptional reads flow.yaml from dir if present. A missing file yields
// the defaults.
func LoadOptional(dir string) (*Config, error) {
	cfg, err := Load(filepath.Join(dir, FileName))
	if stderrors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Load reads and validates the file at path. Fields the file omits keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, configError(fmt.Errorf("failed to read %s: %w", path, err))
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, configError(fmt.Errorf("%s: %w", path, err))
	}
	return cfg, nil
}

// Parse decodes and validates YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configError(err error) error {
	return &errors.FlowError{Op: "config.Load", Kind: errors.KindConfig, Err: err}
}

// CanonicalVersion returns v with a leading "v", so "1.2" reads as "v1.2".
func CanonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

// Validate rejects out-of-range values.
func (c *Config) Validate() error {
	version := CanonicalVersion(c.Version)
	if version == "" {
		return fmt.Errorf("version %q is not a semantic version", c.Version)
	}
	if semver.Major(version) != SupportedMajor {
		return fmt.Errorf("version %s is not supported (want %s.x)", version, SupportedMajor)
	}
	if c.Pipeline.DevicePixelRatio <= 0 {
		return fmt.Errorf("pipeline.devicePixelRatio must be positive (got %g)", c.Pipeline.DevicePixelRatio)
	}
	if c.RasterCache.AccessThreshold < 0 {
		return fmt.Errorf("rasterCache.accessThreshold cannot be negative (got %d)", c.RasterCache.AccessThreshold)
	}
	if c.RasterCache.PerFrameLimit < 0 {
		return fmt.Errorf("rasterCache.perFrameLimit cannot be negative (got %d)", c.RasterCache.PerFrameLimit)
	}
	if c.RasterCache.MaxEntries < 0 {
		return fmt.Errorf("rasterCache.maxEntries cannot be negative (got %d)", c.RasterCache.MaxEntries)
	}
	if c.Surface.Width < 0 || c.Surface.Height < 0 {
		return fmt.Errorf("surface size cannot be negative (got %dx%d)", c.Surface.Width, c.Surface.Height)
	}
	if c.Surface.BufferCount != 2 && c.Surface.BufferCount != 3 {
		return fmt.Errorf("surface.bufferCount must be 2 or 3 (got %d)", c.Surface.BufferCount)
	}
	if _, err := surface.ParseFormat(c.Surface.Format); err != nil {
		return fmt.Errorf("surface.format: %w", err)
	}
	if c.Debug.ServerPort < 0 || c.Debug.ServerPort > 65535 {
		return fmt.Errorf("debug.serverPort out of range (got %d)", c.Debug.ServerPort)
	}
	if c.Debug.FrameTraceSamples <= 0 {
		return fmt.Errorf("debug.frameTraceSamples must be positive (got %d)", c.Debug.FrameTraceSamples)
	}
	if c.Debug.FrameBudget <= 0 {
		return fmt.Errorf("debug.frameBudget must be positive (got %s)", c.Debug.FrameBudget)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}
