package pass

import (
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/diag"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
)

// OrchestratorBuilderOption is a function that configures an Orchestrator during construction.
type OrchestratorBuilderOption func(*orchestrator)

// WithLogger sets the logger shared by the orchestrator, the packer and the assigner.
//
// Parameters:
//   - log: the logger (nil selects a nop logger)
//
// Returns:
//   - OrchestratorBuilderOption: a function that applies the logger option
func WithLogger(log logging.Logger) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.log = logging.OrNop(log)
	}
}

// WithDiagnostics sets the sink every frame-path failure is reported to.
//
// Parameters:
//   - sink: the diagnostics sink
//
// Returns:
//   - OrchestratorBuilderOption: a function that applies the sink option
func WithDiagnostics(sink diag.Sink) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.sink = sink
	}
}

// WithFrameCounter makes the orchestrator advance an external frame counter,
// so a diag.FrameStamper built on the same counter stamps diagnostics with
// the frame they happened in.
func WithFrameCounter(counter *atomic.Uint64) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		if counter != nil {
			o.frame = counter
		}
	}
}
