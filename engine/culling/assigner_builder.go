package culling

import (
	"github.com/Carmen-Shannon/oxy-lightcull/engine/diag"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
)

// AssignerBuilderOption is a function that configures an Assigner during construction.
type AssignerBuilderOption func(*assigner)

// WithLogger sets the logger used for grid changes and buffer reallocation.
//
// Parameters:
//   - log: the logger (nil selects a nop logger)
//
// Returns:
//   - AssignerBuilderOption: a function that applies the logger option
func WithLogger(log logging.Logger) AssignerBuilderOption {
	return func(a *assigner) {
		a.log = logging.OrNop(log)
	}
}

// WithDiagnostics sets the sink for MissingCamera, CapacityMismatch,
// UnimplementedStrategy and ResourceAllocation diagnostics.
func WithDiagnostics(sink diag.Sink) AssignerBuilderOption {
	return func(a *assigner) {
		a.sink = sink
	}
}
