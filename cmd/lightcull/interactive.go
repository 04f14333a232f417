package main

import (
	"context"
	"fmt"

	"github.com/Carmen-Shannon/oxy-lightcull/engine"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/camera"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/config"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/diag"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/eval"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/gpu"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/pass"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/statsserver"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/window"
	"github.com/go-gl/mathgl/mgl32"
)

// runInteractive opens a window and renders the demo scene until the window
// closes or ctx is cancelled.
func runInteractive(ctx context.Context, o options, cfg config.Config, log logging.Logger) error {
	win, err := window.NewWindow(
		window.WithTitle(fmt.Sprintf("oxy-lightcull: %d lights", o.lights)),
		window.WithSize(o.width, o.height),
	)
	if err != nil {
		return err
	}
	defer win.Close()

	dev, err := gpu.NewWGPUDevice(win.SurfaceDescriptor(), win.Width(), win.Height(),
		gpu.WithVSync(false),
		gpu.WithDeviceLogger(log.Named("gpu")),
	)
	if err != nil {
		return fmt.Errorf("create device: %w", err)
	}
	defer dev.Release()

	s, cam, err := eval.DemoScene(dev, eval.DemoOptions{Lights: o.lights, Seed: o.seed, Bounds: o.bounds})
	if err != nil {
		return err
	}
	ctrl := camera.NewOrbitController(
		camera.WithTarget(mgl32.Vec3{0, 1, 0}),
		camera.WithRadius(16),
		camera.WithElevation(0.25),
	)
	cam.SetController(ctrl)

	var sinks []diag.Sink
	var stats statsserver.Server
	if o.statsAddr != "" {
		stats = statsserver.NewServer(statsserver.WithLogger(log.Named("stats")), statsserver.WithFrameInterval(30))
		sinks = append(sinks, stats)
	}

	c, err := engine.NewContext(
		engine.WithDevice(dev),
		engine.WithWindow(win),
		engine.WithScene(s),
		engine.WithConfig(cfg),
		engine.WithLogger(log),
		engine.WithDiagnostics(sinks...),
		engine.WithProfiling(true),
	)
	if err != nil {
		return err
	}
	defer c.Close()

	if stats != nil {
		stats.SetController(c)
		c.SetFrameCallback(func(fs pass.FrameStats) { stats.PublishFrame(fs) })
		serveCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := stats.ListenAndServe(serveCtx, o.statsAddr); err != nil {
				log.Errorf("[Viewer] %v", err)
			}
		}()
	}

	input := &inputHandler{target: c, ctrl: ctrl, log: log}
	win.SetKeyDownCallback(input.onKey)
	win.SetScrollCallback(input.onScroll)

	log.Infof("[Viewer] %s, %d lights; keys 1-8 switch pipelines, WASD pans, Q/E/R/F orbits, scroll zooms",
		c.Config().Name(), o.lights)
	return c.Run(ctx)
}
