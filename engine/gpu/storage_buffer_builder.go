package gpu

import (
	"github.com/Carmen-Shannon/oxy-lightcull/engine/diag"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
)

// StorageBufferOption is a function that configures a StorageBuffer during construction.
type StorageBufferOption func(*StorageBuffer)

// WithLabel sets the debug label passed to CreateBuffer.
//
// Parameters:
//   - label: the label
//
// Returns:
//   - StorageBufferOption: a function that applies the label
func WithLabel(label string) StorageBufferOption {
	return func(b *StorageBuffer) {
		b.label = label
	}
}

// WithLogger sets the logger used for reallocation messages.
func WithLogger(log logging.Logger) StorageBufferOption {
	return func(b *StorageBuffer) {
		b.log = logging.OrNop(log)
	}
}

// WithDiagnostics sets the sink that receives ResourceAllocation diagnostics.
func WithDiagnostics(sink diag.Sink) StorageBufferOption {
	return func(b *StorageBuffer) {
		b.sink = sink
	}
}
