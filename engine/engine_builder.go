package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/config"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/diag"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/gpu"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/pass"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/profiler"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/scene"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/window"
)

// ContextBuilderOption is a functional option for configuring a Context.
// Use the With* functions to create options that are applied directly to the context instance.
type ContextBuilderOption func(*engineContext)

// WithDevice sets the GPU device. The caller keeps ownership and releases it.
//
// Parameters:
//   - dev: the device
//
// Returns:
//   - ContextBuilderOption: option function to apply
func WithDevice(dev gpu.Device) ContextBuilderOption {
	return func(c *engineContext) {
		c.device = dev
	}
}

// WithScene sets the scene rendered each frame.
//
// Parameters:
//   - s: the scene
//
// Returns:
//   - ContextBuilderOption: option function to apply
func WithScene(s scene.Scene) ContextBuilderOption {
	return func(c *engineContext) {
		c.scene = s
	}
}

// WithConfig sets the initial configuration.
//
// Parameters:
//   - cfg: the configuration
//
// Returns:
//   - ContextBuilderOption: option function to apply
func WithConfig(cfg config.Config) ContextBuilderOption {
	return func(c *engineContext) {
		c.cfg = cfg
	}
}

// WithLogger sets the logger shared by every component of the context.
func WithLogger(log logging.Logger) ContextBuilderOption {
	return func(c *engineContext) {
		c.log = logging.OrNop(log)
	}
}

// WithDiagnostics adds sinks that receive every diagnostic, stamped with the
// frame it happened in, in addition to the log.
//
// Parameters:
//   - sinks: the extra sinks
//
// Returns:
//   - ContextBuilderOption: option function to apply
func WithDiagnostics(sinks ...diag.Sink) ContextBuilderOption {
	return func(c *engineContext) {
		c.sinks = append(c.sinks, sinks...)
	}
}

// WithWindow attaches an interactive window. Its framebuffer size becomes the
// viewport, resizes are forwarded to Resize, and Run stops when it closes.
func WithWindow(w window.Window) ContextBuilderOption {
	return func(c *engineContext) {
		c.window = w
	}
}

// WithProfiling enables or disables the periodic profiler report.
//
// Parameters:
//   - enabled: if true, a report is logged every second
//
// Returns:
//   - ContextBuilderOption: option function to apply
func WithProfiling(enabled bool) ContextBuilderOption {
	return func(c *engineContext) {
		c.profilingEnabled = enabled
	}
}

// WithReportCallback registers a function receiving every profiler report.
// Only called when profiling is enabled.
func WithReportCallback(callback func(r profiler.Report)) ContextBuilderOption {
	return func(c *engineContext) {
		c.reportCallback = callback
	}
}

// WithFrameLimit sets an optional frame rate cap for Run. Pass 0 to uncap (default).
//
// Parameters:
//   - fps: maximum frames per second (0 = uncapped)
//
// Returns:
//   - ContextBuilderOption: option function to apply
func WithFrameLimit(fps float64) ContextBuilderOption {
	return func(c *engineContext) {
		if fps <= 0 {
			c.frameLimit = 0
			return
		}
		c.frameLimit = time.Duration(float64(time.Second) / fps)
	}
}

// WithFrameCallback registers a function called after every frame.
func WithFrameCallback(callback func(stats pass.FrameStats)) ContextBuilderOption {
	return func(c *engineContext) {
		c.frameCallback = callback
	}
}
