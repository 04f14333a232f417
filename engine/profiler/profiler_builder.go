package profiler

import (
	"time"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
)

// ProfilerBuilderOption is a functional option for configuring a Profiler.
type ProfilerBuilderOption func(*Profiler)

// WithLogger sets the logger reports are written to.
//
// Parameters:
//   - log: the logger (nil selects a nop logger)
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithLogger(log logging.Logger) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.log = logging.OrNop(log)
	}
}

// WithInterval sets how often a report is produced. Values <= 0 keep the default.
func WithInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ProfilerBuilderOption {
	return func(p *Profiler) {
		if now != nil {
			p.now = now
		}
	}
}
