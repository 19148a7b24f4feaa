// Command flowdiff replays scene files through the layer pipeline and
// reports the damage of every frame.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli"
	xdraw "golang.org/x/image/draw"
	"gopkg.in/yaml.v3"

	"github.com/go-drift/flow/internal/logging"
	"github.com/go-drift/flow/pkg/config"
	"github.com/go-drift/flow/pkg/engine"
	"github.com/go-drift/flow/pkg/errors"
	"github.com/go-drift/flow/pkg/flow"
	"github.com/go-drift/flow/pkg/graphics"
	"github.com/go-drift/flow/pkg/rastercache"
	"github.com/go-drift/flow/pkg/scene"
	"github.com/go-drift/flow/pkg/surface"
)

func main() {
	app := cli.NewApp()
	app.Name = "flowdiff"
	app.Usage = "replay layer tree scenes and report per-frame damage"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "Directory containing " + config.FileName + " (default: current directory)",
			Value: ".",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log at debug level and include stack traces in error reports",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:      "replay",
			Usage:     "Draw every frame of a scene",
			ArgsUsage: "<scene.yaml>",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "out",
					Usage: "Write each presented frame as a PNG into this directory",
				},
				cli.IntFlag{
					Name:  "scale",
					Usage: "Upscale written PNGs by this integer factor",
					Value: 1,
				},
				cli.IntFlag{
					Name:  "debug-port",
					Usage: "Serve diagnostics on this port and wait for an interrupt (overrides the config)",
					Value: -1,
				},
			},
			Action: runReplay,
		},
		{
			Name:      "validate",
			Usage:     "Check a scene file",
			ArgsUsage: "<scene.yaml>",
			Action:    runValidate,
		},
		{
			Name:   "config",
			Usage:  "Print the effective configuration",
			Action: runConfig,
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("flowdiff failed", "error", err)
		os.Exit(1)
	}
}

// setup loads the configuration and installs the logger and error handler.
func setup(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadOptional(c.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	level := logging.ParseLevel(cfg.Log.Level)
	verbose := c.GlobalBool("verbose")
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	flow.SetLogger(logger)
	errors.SetHandler(&errors.LogHandler{Verbose: verbose})
	return cfg, nil
}

func sceneArg(c *cli.Context) (*scene.File, string, error) {
	path := c.Args().First()
	if path == "" {
		cli.ShowCommandHelp(c, c.Command.Name)
		return nil, "", stderrors.New("no scene file provided")
	}
	f, err := scene.Load(path)
	return f, path, err
}

func runValidate(c *cli.Context) error {
	if _, err := setup(c); err != nil {
		return err
	}
	f, path, err := sceneArg(c)
	if err != nil {
		return err
	}
	fmt.Printf("%s: ok (%d frames, %dx%d)\n", path, len(f.Frames), f.Size[0], f.Size[1])
	return nil
}

func runConfig(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func runReplay(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	f, _, err := sceneArg(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return replay(ctx, os.Stdout, f, cfg, replayOptions{
		OutDir:    c.String("out"),
		Scale:     c.Int("scale"),
		DebugPort: c.Int("debug-port"),
	})
}

type replayOptions struct {
	// OutDir receives frame-NNN.png files when set.
	OutDir string
	Scale  int
	// DebugPort overrides the configured server port unless negative.
	DebugPort int
}

// surfaceSize is the configured surface size, or the scene size in device
// pixels when either dimension is unset.
func surfaceSize(f *scene.File, cfg *config.Config) image.Point {
	if cfg.Surface.Width > 0 && cfg.Surface.Height > 0 {
		return image.Pt(cfg.Surface.Width, cfg.Surface.Height)
	}
	dpr := cfg.Pipeline.DevicePixelRatio
	return image.Pt(
		int(math.Ceil(float64(f.Size[0])*dpr)),
		int(math.Ceil(float64(f.Size[1])*dpr)),
	)
}

// replay draws every frame of f and writes one report line per frame to w.
// With a debug server running it blocks until ctx is done.
func replay(ctx context.Context, w io.Writer, f *scene.File, cfg *config.Config, opts replayOptions) error {
	dpr := cfg.Pipeline.DevicePixelRatio
	size := surfaceSize(f, cfg)

	background := graphics.ColorTransparent
	if cfg.Pipeline.Background != "" {
		var err error
		if background, err = scene.ParseColor(cfg.Pipeline.Background); err != nil {
			return fmt.Errorf("pipeline.background: %w", err)
		}
	}

	textures := flow.NewTextureRegistry()
	if err := f.RegisterTextures(textures); err != nil {
		return err
	}

	format, err := surface.ParseFormat(cfg.Surface.Format)
	if err != nil {
		return fmt.Errorf("surface.format: %w", err)
	}
	surf, err := surface.NewImageSurfaceWithFormat(size, cfg.Surface.BufferCount, format)
	if err != nil {
		return err
	}
	cache := rastercache.New(rastercache.Options{
		AccessThreshold: cfg.RasterCache.AccessThreshold,
		PerFrameLimit:   cfg.RasterCache.PerFrameLimit,
		MaxEntries:      cfg.RasterCache.MaxEntries,
		Checkerboard:    cfg.RasterCache.Checkerboard,
	})
	trace := engine.NewFrameTraceBuffer(cfg.Debug.FrameTraceSamples, cfg.Debug.FrameBudget)
	r := engine.NewRasterizer(surf, engine.Options{
		PartialRepaint:   cfg.Pipeline.PartialRepaint,
		DevicePixelRatio: dpr,
		Background:       background,
		RasterCache:      cache,
		TextureRegistry:  textures,
		Trace:            trace,
	})

	port := cfg.Debug.ServerPort
	if opts.DebugPort >= 0 {
		port = opts.DebugPort
	}
	var server *engine.DebugServer
	if port > 0 {
		runtime := engine.NewRuntimeSampleBuffer(0, 0)
		sampler := engine.NewRuntimeSampler(runtime, cache)
		sampler.Start()
		defer sampler.Stop()

		server = engine.NewDebugServer(r, runtime)
		bound, err := server.Start(port)
		if err != nil {
			return err
		}
		defer server.Stop()
		logging.Logger().Info("debug server listening", slog.Int("port", bound))
	}

	if opts.OutDir != "" {
		if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	builder := scene.NewBuilder()
	var scaled flow.Layer
	for i, frame := range f.Frames {
		root, err := builder.Build(frame.Root)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if dpr != 1 {
			t := flow.NewTransformLayer(graphics.ScaleMatrix(dpr, dpr), root)
			if scaled != nil {
				t.AssignOldLayer(scaled)
			}
			root, scaled = t, t
		}
		res, err := r.Draw(flow.NewLayerTree(root, size))
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		fmt.Fprintf(w, "frame %d: damage=%v buffer=%v retained=%d fullRedraw=%t\n",
			res.Frame, res.Damage.FrameDamage, res.Damage.BufferDamage, res.Retained, res.FullRedraw)

		if opts.OutDir != "" {
			name := filepath.Join(opts.OutDir, fmt.Sprintf("frame-%03d.png", res.Frame))
			if err := writePNG(name, surf.Snapshot(), opts.Scale); err != nil {
				return err
			}
		}
	}

	stats := cache.Stats()
	logging.Logger().Info("replay complete",
		slog.Int("frames", len(f.Frames)),
		slog.Int("cacheImages", stats.Images),
		slog.Int("rasterized", stats.RasterizedTotal),
	)

	if server != nil {
		logging.Logger().Info("waiting for interrupt")
		<-ctx.Done()
	}
	return nil
}

func writePNG(path string, img *image.RGBA, scale int) error {
	var out image.Image = img
	if scale > 1 {
		b := img.Bounds()
		scaled := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
		xdraw.NearestNeighbor.Scale(scaled, scaled.Bounds(), img, b, xdraw.Src, nil)
		out = scaled
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(file, out); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return file.Close()
}
