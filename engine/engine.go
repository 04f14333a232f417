package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/config"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/diag"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/gpu"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/pass"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/profiler"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/scene"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/window"
	"github.com/google/uuid"
)

// engineContext implements the Context interface.
type engineContext struct {
	id  uuid.UUID
	log logging.Logger

	device    gpu.Device
	ownDevice bool
	window    window.Window
	scene     scene.Scene
	orch      pass.Orchestrator

	cfg   config.Config
	sinks []diag.Sink
	sink  diag.Sink
	frame atomic.Uint64

	mu            *sync.Mutex
	pendingResize *[2]int
	pendingConfig *config.Config

	profiler         *profiler.Profiler
	profilingEnabled bool
	frameLimit       time.Duration
	frameCallback    func(stats pass.FrameStats)
	reportCallback   func(r profiler.Report)
}

// Context owns everything one renderer instance needs: the device, the scene,
// the pass orchestrator with its light buffers, the diagnostics fan-out and
// the frame counter. Contexts share nothing, so several can run in parallel.
type Context interface {
	// ID returns the unique id of this context.
	ID() uuid.UUID

	// Device returns the GPU device the context renders on.
	Device() gpu.Device

	// Scene returns the scene rendered each frame.
	Scene() scene.Scene

	// SetScene replaces the rendered scene. Must be called from the frame goroutine.
	SetScene(s scene.Scene)

	// Orchestrator returns the render pass orchestrator.
	Orchestrator() pass.Orchestrator

	// Config returns the active configuration, or the queued one if a switch is pending.
	Config() config.Config

	// Apply queues a configuration switch for the next frame start. Safe for
	// concurrent use.
	//
	// Parameters:
	//   - cfg: the new configuration
	//
	// Returns:
	//   - error: a validation error; nothing is queued in that case
	Apply(cfg config.Config) error

	// Resize queues a viewport resize for the next frame start. Safe for
	// concurrent use; the latest size wins.
	//
	// Parameters:
	//   - width, height: the new size in pixels
	Resize(width, height int)

	// Frame renders one frame synchronously.
	//
	// Returns:
	//   - pass.FrameStats: the statistics of the frame
	Frame() pass.FrameStats

	// Frames returns the number of frames rendered so far.
	Frames() uint64

	// Run renders frames until ctx is cancelled or the window closes. A panic
	// inside a frame stops the loop and is returned as an error.
	//
	// Parameters:
	//   - ctx: cancels the loop
	//
	// Returns:
	//   - error: the recovered panic, or nil
	Run(ctx context.Context) error

	// SetFrameCallback registers a function called after every frame.
	SetFrameCallback(callback func(stats pass.FrameStats))

	// Close releases the light buffers and, if the context created it, the device.
	Close()
}

// NewContext creates a Context. Without WithDevice a HeadlessDevice is used.
//
// Parameters:
//   - options: functional options (device, scene, configuration, logger, sinks, window)
//
// Returns:
//   - Context: the context
//   - error: if the configuration does not validate
func NewContext(options ...ContextBuilderOption) (Context, error) {
	c := &engineContext{
		id:  uuid.New(),
		log: logging.NewNopLogger(),
		cfg: config.NewConfig(),
		mu:  &sync.Mutex{},
	}
	for _, opt := range options {
		opt(c)
	}

	if c.device == nil {
		c.device = gpu.NewHeadlessDevice()
		c.ownDevice = true
	}
	if c.scene == nil {
		c.scene = scene.NewScene()
	}
	if c.window != nil {
		c.cfg.ViewportWidth = c.window.Width()
		c.cfg.ViewportHeight = c.window.Height()
		c.window.SetResizeCallback(c.Resize)
	}

	c.sink = diag.FrameStamper{
		Next:  append(diag.Fanout{diag.LogSink{Log: c.log}}, c.sinks...),
		Frame: &c.frame,
	}
	orch, err := pass.NewOrchestrator(c.device, c.cfg,
		pass.WithLogger(c.log),
		pass.WithDiagnostics(c.sink),
		pass.WithFrameCounter(&c.frame),
	)
	if err != nil {
		return nil, fmt.Errorf("context %s: %w", c.id, err)
	}
	c.orch = orch
	c.profiler = profiler.NewProfiler(profiler.WithLogger(c.log))
	c.syncCameraAspect(c.cfg.ViewportWidth, c.cfg.ViewportHeight)

	c.log.Debugf("[Context] %s created: %s, grid %s, viewport %dx%d",
		c.id, c.cfg.Name(), c.cfg.Grid, c.cfg.ViewportWidth, c.cfg.ViewportHeight)
	return c, nil
}

func (c *engineContext) ID() uuid.UUID {
	return c.id
}

func (c *engineContext) Device() gpu.Device {
	return c.device
}

func (c *engineContext) Scene() scene.Scene {
	return c.scene
}

func (c *engineContext) SetScene(s scene.Scene) {
	c.scene = s
	if c.scene != nil {
		cfg := c.orch.Config()
		c.syncCameraAspect(cfg.ViewportWidth, cfg.ViewportHeight)
	}
}

func (c *engineContext) Orchestrator() pass.Orchestrator {
	return c.orch
}

func (c *engineContext) Config() config.Config {
	c.mu.Lock()
	pending := c.pendingConfig
	c.mu.Unlock()

	current := c.orch.Config()
	if pending == nil {
		return current
	}
	cfg := *pending
	cfg.ViewportWidth = current.ViewportWidth
	cfg.ViewportHeight = current.ViewportHeight
	return cfg
}

func (c *engineContext) Apply(cfg config.Config) error {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("apply %s: %w", cfg.Name(), err)
	}
	c.mu.Lock()
	c.pendingConfig = &cfg
	c.mu.Unlock()
	return nil
}

func (c *engineContext) Resize(width, height int) {
	c.mu.Lock()
	c.pendingResize = &[2]int{width, height}
	c.mu.Unlock()
}

func (c *engineContext) Frame() pass.FrameStats {
	c.mu.Lock()
	resize, pending := c.pendingResize, c.pendingConfig
	c.pendingResize, c.pendingConfig = nil, nil
	c.mu.Unlock()

	if resize != nil {
		if err := c.orch.Resize(resize[0], resize[1]); err != nil {
			c.log.Warnf("[Context] resize to %dx%d: %v", resize[0], resize[1], err)
		}
		c.syncCameraAspect(resize[0], resize[1])
	}
	// The viewport is taken after the resize so a switch never restores a stale size.
	if pending != nil {
		cfg := *pending
		current := c.orch.Config()
		cfg.ViewportWidth = current.ViewportWidth
		cfg.ViewportHeight = current.ViewportHeight
		if err := c.orch.Apply(cfg); err != nil {
			c.log.Errorf("[Context] apply %s: %v", cfg.Name(), err)
		}
	}

	if c.scene != nil {
		if cam := c.scene.ActiveCamera(); cam != nil {
			cam.Update()
		}
	}

	stats := c.orch.Frame(c.scene)

	if c.profilingEnabled {
		r, ok := c.profiler.Tick(profiler.Sample{
			Frame:      stats.Elapsed,
			Assign:     stats.Culling.Elapsed,
			Lights:     stats.Lights,
			ListLength: stats.Culling.ListLength,
			NonEmpty:   stats.Culling.NonEmpty,
			Partitions: stats.Culling.Partitions,
		})
		if ok && c.reportCallback != nil {
			c.reportCallback(r)
		}
	}
	if c.frameCallback != nil {
		c.frameCallback(stats)
	}
	return stats
}

// syncCameraAspect keeps the active camera's aspect ratio on the viewport.
func (c *engineContext) syncCameraAspect(width, height int) {
	if c.scene == nil || width <= 0 || height <= 0 {
		return
	}
	if cam := c.scene.ActiveCamera(); cam != nil {
		cam.SetAspect(float32(width) / float32(height))
	}
}

func (c *engineContext) Frames() uint64 {
	return c.frame.Load()
}

func (c *engineContext) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("[Context] %s frame loop recovered from panic: %v", c.id, r)
			err = fmt.Errorf("frame loop panic: %v", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if c.window != nil && !c.window.PollEvents() {
			return nil
		}

		start := time.Now()
		c.Frame()

		if c.frameLimit > 0 {
			if remaining := c.frameLimit - time.Since(start); remaining > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(remaining):
				}
			}
		}
	}
}

func (c *engineContext) SetFrameCallback(callback func(stats pass.FrameStats)) {
	c.frameCallback = callback
}

func (c *engineContext) Close() {
	c.orch.Release()
	if c.ownDevice {
		c.device.Release()
	}
}
