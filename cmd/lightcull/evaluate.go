package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/config"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/eval"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
)

// runEval renders the demo scene headless along the trajectory, once per
// configuration, and writes the requested report and heatmaps.
func runEval(ctx context.Context, o options, cfg config.Config, log logging.Logger) ([]eval.Report, error) {
	base := eval.RunSpec{Config: cfg, Lights: o.lights, Seed: o.seed, Frames: o.frames}
	if o.trajectory != "" {
		views, err := eval.LoadTrajectoryFile(o.trajectory)
		if err != nil {
			return nil, err
		}
		base.Trajectory = views
	}

	specs := []eval.RunSpec{base}
	if o.sweep != "" {
		var err error
		if specs, err = eval.SweepSpecs(base, sweepNames(o.sweep)); err != nil {
			return nil, err
		}
	}

	reports, err := eval.Sweep(ctx, specs, o.workers, log)
	if err != nil {
		return reports, err
	}
	for _, r := range reports {
		log.Infof("[Eval] %-24s frames %d, avg list %.1f, max count %d, occupancy %.2f, avg assign %s, reallocations %d",
			r.Pipeline, r.Summary.Frames, r.Summary.AvgListLength, r.Summary.MaxCount,
			r.Summary.AvgOccupancy, r.Summary.AvgAssign, r.Summary.Reallocations)
	}

	if o.logFile != "" {
		if err := eval.WriteReportsFile(o.logFile, reports); err != nil {
			return reports, err
		}
		log.Infof("[Eval] report written to %s", o.logFile)
	}
	if o.heatmap != "" {
		if err := writeHeatmaps(o.heatmap, reports, log); err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// writeHeatmaps writes one PNG per report that has tile counts. With several
// reports the pipeline name is inserted before the extension.
func writeHeatmaps(path string, reports []eval.Report, log logging.Logger) error {
	for _, r := range reports {
		if len(r.TileCounts) == 0 {
			log.Debugf("[Eval] %s has no tile counts, heatmap skipped", r.Pipeline)
			continue
		}
		out := heatmapPath(path, r.Pipeline, len(reports) > 1)
		if err := eval.WriteHeatmapFile(out, r, eval.HeatmapCellSize); err != nil {
			return fmt.Errorf("heatmap %s: %w", r.Pipeline, err)
		}
		log.Infof("[Eval] heatmap written to %s", out)
	}
	return nil
}

func heatmapPath(path, pipeline string, several bool) string {
	if !several {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + pipeline + ext
}
