package eval

import (
	"context"
	"fmt"
	"time"

	"github.com/Carmen-Shannon/oxy-lightcull/common"
	"github.com/Carmen-Shannon/oxy-lightcull/engine"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/config"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/culling"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/diag"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/gpu"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/pass"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// DefaultFrames is the length of the generated orbit when a run has no trajectory.
const DefaultFrames = 120

// RunSpec describes one evaluation run.
type RunSpec struct {
	Config config.Config
	Lights int
	Seed   int64

	// Trajectory holds one view matrix per frame. When empty, an orbit of
	// Frames matrices (DefaultFrames if zero) is generated.
	Trajectory []mgl32.Mat4
	Frames     int
}

// FrameRecord is the per-frame entry of a Report.
type FrameRecord struct {
	Frame            uint64        `json:"frame"`
	Lights           int           `json:"lights"`
	FrustumLights    int           `json:"frustumLights"`
	Partitions       int           `json:"partitions"`
	NonEmpty         int           `json:"nonEmpty"`
	ListLength       int           `json:"listLength"`
	MaxCount         int           `json:"maxCount"`
	Truncated        int           `json:"truncated"`
	TableReallocated bool          `json:"tableReallocated"`
	ListReallocated  bool          `json:"listReallocated"`
	MeshDraws        int           `json:"meshDraws"`
	LightDraws       int           `json:"lightDraws"`
	Assign           time.Duration `json:"assignNs"`
	Elapsed          time.Duration `json:"elapsedNs"`
}

// Summary aggregates the frames of a Report.
type Summary struct {
	Frames        int           `json:"frames"`
	AvgListLength float64       `json:"avgListLength"`
	MaxListLength int           `json:"maxListLength"`
	AvgOccupancy  float64       `json:"avgOccupancy"`
	MaxCount      int           `json:"maxCount"`
	Truncated     int           `json:"truncated"`
	Reallocations int           `json:"reallocations"`
	AvgAssign     time.Duration `json:"avgAssignNs"`
	MaxAssign     time.Duration `json:"maxAssignNs"`
	AvgFrame      time.Duration `json:"avgFrameNs"`
}

// Report is the outcome of one evaluation run.
type Report struct {
	RunID    uuid.UUID     `json:"runId"`
	Pipeline string        `json:"pipeline"`
	Config   config.Config `json:"config"`
	Lights   int           `json:"lights"`
	Seed     int64         `json:"seed"`
	Started  time.Time     `json:"started"`

	Frames      []FrameRecord     `json:"frames"`
	Summary     Summary           `json:"summary"`
	Diagnostics []diag.Diagnostic `json:"diagnostics"`

	// TileCounts holds the light count of every screen tile after the last
	// frame, summed over depth slices, row-major with Grid.X columns. Empty
	// when the method does not partition.
	TileCounts []int32 `json:"tileCounts,omitempty"`
}

// Run renders the demo scene along a camera trajectory on its own headless
// context and collects per-frame culling statistics.
//
// Parameters:
//   - ctx: cancels the run between frames
//   - spec: the configuration, scene and trajectory
//   - log: receives context and diagnostic logs (nil discards)
//
// Returns:
//   - Report: the statistics gathered so far, complete unless ctx was cancelled
//   - error: a configuration or scene error, or ctx.Err()
func Run(ctx context.Context, spec RunSpec, log logging.Logger) (Report, error) {
	log = logging.OrNop(log)
	rep := Report{
		RunID:    uuid.New(),
		Pipeline: spec.Config.Name(),
		Config:   spec.Config,
		Lights:   spec.Lights,
		Seed:     spec.Seed,
		Started:  time.Now(),
	}

	views := spec.Trajectory
	if len(views) == 0 {
		views = OrbitTrajectory(common.Coalesce(spec.Frames, DefaultFrames), 16, 4)
	}

	dev := gpu.NewHeadlessDevice()
	defer dev.Release()

	s, cam, err := DemoScene(dev, DemoOptions{Lights: spec.Lights, Seed: spec.Seed})
	if err != nil {
		return rep, fmt.Errorf("run %s: %w", rep.RunID, err)
	}

	rec := &diag.Recorder{}
	c, err := engine.NewContext(
		engine.WithDevice(dev),
		engine.WithScene(s),
		engine.WithConfig(spec.Config),
		engine.WithLogger(log.Named(rep.RunID.String()[:8])),
		engine.WithDiagnostics(rec),
	)
	if err != nil {
		return rep, fmt.Errorf("run %s: %w", rep.RunID, err)
	}
	defer c.Close()
	rep.Config = c.Config()

	log.Debugf("[Eval] run %s: %s, %d lights, %d frames", rep.RunID, rep.Pipeline, spec.Lights, len(views))
	rep.Frames = make([]FrameRecord, 0, len(views))
	for _, view := range views {
		if err := ctx.Err(); err != nil {
			rep.Summary = summarize(rep.Frames)
			rep.Diagnostics = rec.Diagnostics()
			return rep, err
		}
		cam.SetViewMatrix(view)
		rep.Frames = append(rep.Frames, record(c.Frame()))
	}

	rep.Summary = summarize(rep.Frames)
	rep.Diagnostics = rec.Diagnostics()
	rep.TileCounts = TileCounts(c.Orchestrator().Assigner().Table(), rep.Config.Grid)
	log.Infof("[Eval] run %s: %s avg list %.1f, occupancy %.2f, avg assign %s",
		rep.RunID, rep.Pipeline, rep.Summary.AvgListLength, rep.Summary.AvgOccupancy, rep.Summary.AvgAssign)
	return rep, nil
}

func record(stats pass.FrameStats) FrameRecord {
	return FrameRecord{
		Frame:            stats.Frame,
		Lights:           stats.Lights,
		FrustumLights:    stats.FrustumLights,
		Partitions:       stats.Culling.Partitions,
		NonEmpty:         stats.Culling.NonEmpty,
		ListLength:       stats.Culling.ListLength,
		MaxCount:         stats.Culling.MaxCount,
		Truncated:        stats.Culling.Truncated,
		TableReallocated: stats.Culling.TableReallocated,
		ListReallocated:  stats.Culling.ListReallocated,
		MeshDraws:        stats.MeshDraws,
		LightDraws:       stats.LightDraws,
		Assign:           stats.Culling.Elapsed,
		Elapsed:          stats.Elapsed,
	}
}

func summarize(frames []FrameRecord) Summary {
	sum := Summary{Frames: len(frames)}
	if len(frames) == 0 {
		return sum
	}
	var list, occ float64
	var assign, elapsed time.Duration
	for _, f := range frames {
		list += float64(f.ListLength)
		if f.Partitions > 0 {
			occ += float64(f.NonEmpty) / float64(f.Partitions)
		}
		sum.MaxListLength = max(sum.MaxListLength, f.ListLength)
		sum.MaxCount = max(sum.MaxCount, f.MaxCount)
		sum.Truncated += f.Truncated
		if f.TableReallocated {
			sum.Reallocations++
		}
		if f.ListReallocated {
			sum.Reallocations++
		}
		assign += f.Assign
		elapsed += f.Elapsed
		sum.MaxAssign = max(sum.MaxAssign, f.Assign)
	}
	n := float64(len(frames))
	sum.AvgListLength = list / n
	sum.AvgOccupancy = occ / n
	sum.AvgAssign = assign / time.Duration(len(frames))
	sum.AvgFrame = elapsed / time.Duration(len(frames))
	return sum
}

// TileCounts folds a partition table into per-tile light counts, summing
// the depth slices of each screen tile.
//
// Parameters:
//   - t: the table (nil or empty yields nil)
//   - grid: the grid the table was built for
//
// Returns:
//   - []int32: Grid.X*Grid.Y counts, row-major
func TileCounts(t *culling.PartitionTable, grid config.Grid) []int32 {
	if t == nil || t.Partitions() == 0 || t.Partitions() != grid.Partitions() {
		return nil
	}
	out := make([]int32, grid.X*grid.Y)
	for z := range grid.Z {
		for y := range grid.Y {
			for x := range grid.X {
				out[y*grid.X+x] += t.Count(t.Index(x, y, z))
			}
		}
	}
	return out
}
