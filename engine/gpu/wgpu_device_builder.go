package gpu

import (
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
	"github.com/cogentcore/webgpu/wgpu"
)

// WGPUDeviceOption is a function that configures a WGPUDevice during construction.
type WGPUDeviceOption func(*WGPUDevice)

// WithVSync selects FIFO presentation (true) or immediate presentation (false).
//
// Parameters:
//   - enabled: whether to wait for vertical blank
//
// Returns:
//   - WGPUDeviceOption: a function that sets the present mode
func WithVSync(enabled bool) WGPUDeviceOption {
	return func(d *WGPUDevice) {
		if enabled {
			d.presentMode = wgpu.PresentModeFifo
		} else {
			d.presentMode = wgpu.PresentModeImmediate
		}
	}
}

// WithFallbackAdapter forces the software adapter.
func WithFallbackAdapter(force bool) WGPUDeviceOption {
	return func(d *WGPUDevice) {
		d.forceFallback = force
	}
}

// WithDeviceLogger sets the logger for pipeline creation and frame errors.
func WithDeviceLogger(log logging.Logger) WGPUDeviceOption {
	return func(d *WGPUDevice) {
		d.log = logging.OrNop(log)
	}
}
