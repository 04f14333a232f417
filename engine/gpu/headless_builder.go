package gpu

// HeadlessDeviceOption is a function that configures a HeadlessDevice during construction.
type HeadlessDeviceOption func(*HeadlessDevice)

// WithDrawRecording keeps a DrawRecord with a parameter snapshot for every draw.
func WithDrawRecording(enabled bool) HeadlessDeviceOption {
	return func(d *HeadlessDevice) {
		d.record = enabled
	}
}

// WithAllocationFailure makes CreateBuffer fail whenever fn returns an error.
//
// Parameters:
//   - fn: called with the label and size of each allocation
//
// Returns:
//   - HeadlessDeviceOption: a function that installs the failure hook
func WithAllocationFailure(fn func(label string, size uint64) error) HeadlessDeviceOption {
	return func(d *HeadlessDevice) {
		d.failAlloc = fn
	}
}

// WithResizeFailure makes ResizeTarget fail whenever fn returns an error.
func WithResizeFailure(fn func(t Target, width, height int) error) HeadlessDeviceOption {
	return func(d *HeadlessDevice) {
		d.failResize = fn
	}
}
