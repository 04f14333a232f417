package eval

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
)

// ErrNoRuns is returned by Sweep when it is given no runs.
var ErrNoRuns = errors.New("no configurations to evaluate")

// Sweep evaluates several runs in parallel, each on its own headless context.
// Contexts share no device or buffers, so runs are independent and their
// statistics match a sequential evaluation.
//
// Parameters:
//   - ctx: cancels runs between frames
//   - specs: the runs to evaluate
//   - workers: the maximum number of concurrent runs (0 uses GOMAXPROCS)
//   - log: shared logger (nil discards)
//
// Returns:
//   - []Report: one report per spec, in the order of specs
//   - error: the failures of individual runs, joined
func Sweep(ctx context.Context, specs []RunSpec, workers int, log logging.Logger) ([]Report, error) {
	if len(specs) == 0 {
		return nil, ErrNoRuns
	}
	log = logging.OrNop(log)
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, len(specs))

	// The pool's own Wait blocks until workers idle out, so completion is
	// tracked with a WaitGroup.
	pool := worker.NewDynamicWorkerPool(workers, 256, 1*time.Second)
	reports := make([]Report, len(specs))
	errs := make([]error, len(specs))

	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		idx := i
		runSpec := spec
		pool.SubmitTask(worker.Task{
			ID: idx,
			Do: func() (any, error) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						errs[idx] = fmt.Errorf("run %d (%s) panicked: %v", idx, runSpec.Config.Name(), r)
					}
				}()
				rep, err := Run(ctx, runSpec, log)
				reports[idx] = rep
				if err != nil {
					errs[idx] = fmt.Errorf("run %d (%s): %w", idx, runSpec.Config.Name(), err)
				}
				return nil, err
			},
		})
	}
	wg.Wait()

	log.Infof("[Eval] sweep of %d runs on %d workers finished", len(specs), workers)
	return reports, errors.Join(errs...)
}

// SweepSpecs expands pipeline names into run specs that share everything
// else with base.
//
// Parameters:
//   - base: the template run (its Config supplies grid, cap and viewport)
//   - names: pipeline names such as "forward-clustered-cpu"
//
// Returns:
//   - []RunSpec: one spec per name
//   - error: config.ErrUnknownPipeline or a validation error
func SweepSpecs(base RunSpec, names []string) ([]RunSpec, error) {
	specs := make([]RunSpec, 0, len(names))
	for _, name := range names {
		cfg, err := base.Config.Switch(name)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("sweep %s: %w", name, err)
		}
		spec := base
		spec.Config = cfg
		specs = append(specs, spec)
	}
	return specs, nil
}
