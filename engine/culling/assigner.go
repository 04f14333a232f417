package culling

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Carmen-Shannon/oxy-lightcull/common"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/camera"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/config"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/diag"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/gpu"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/light"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
)

// Frame is the input of one assignment: the frozen camera, the frame's
// lights and the active configuration.
type Frame struct {
	// Camera is nil when the scene has no active camera.
	Camera *camera.Snapshot
	Lights []light.Instance

	Grid                  config.Grid
	Method                config.CullingMethod
	MaxLightsPerPartition int
	CapPolicy             config.CapPolicy
}

// Result summarizes one assignment.
type Result struct {
	Method     config.CullingMethod `json:"method"`
	Grid       config.Grid          `json:"grid"`
	Lights     int                  `json:"lights"`
	Partitions int                  `json:"partitions"`
	ListLength int                  `json:"listLength"`
	NonEmpty   int                  `json:"nonEmpty"`
	MaxCount   int                  `json:"maxCount"`

	// Truncated counts light references dropped by CapNearest.
	Truncated int `json:"truncated"`

	TableReallocated bool `json:"tableReallocated"`
	ListReallocated  bool `json:"listReallocated"`

	// Skipped is set when no assignment ran (missing camera or a method
	// that does not partition).
	Skipped bool          `json:"skipped"`
	Elapsed time.Duration `json:"elapsedNs"`
}

// Assigner fills the partition table and flattened light-index list for the
// tiled and clustered methods and uploads both to their storage slots.
type Assigner interface {
	// Assign runs one frame of assignment. A missing camera is not an error:
	// nothing is touched and a MissingCamera diagnostic is reported.
	//
	// Parameters:
	//   - f: the frame input
	//
	// Returns:
	//   - Result: partition statistics
	//   - error: upload failures, joined
	Assign(f Frame) (Result, error)

	// Table returns the CPU mirror of the last assignment.
	//
	// Returns:
	//   - *PartitionTable: the table and list
	Table() *PartitionTable

	// TableBuffer returns the storage buffer at gpu.SlotPartitionTable.
	TableBuffer() *gpu.StorageBuffer

	// ListBuffer returns the storage buffer at gpu.SlotLightIndex.
	ListBuffer() *gpu.StorageBuffer

	// Release frees both GPU buffers.
	Release()
}

type assigner struct {
	log  logging.Logger
	sink diag.Sink

	tableBuf *gpu.StorageBuffer
	listBuf  *gpu.StorageBuffer

	table   PartitionTable
	volumes VolumeCache

	// per-frame scratch
	sliceLights []int32
	rowLights   []int32
	scratch     []int32

	lastMethod config.CullingMethod
	lastGrid   config.Grid
}

var _ Assigner = &assigner{}

// NewAssigner creates an Assigner whose buffers live on dev.
//
// Parameters:
//   - dev: the device (panics if nil)
//   - options: functional options (logger, diagnostics sink)
//
// Returns:
//   - Assigner: the assigner
func NewAssigner(dev gpu.Device, options ...AssignerBuilderOption) Assigner {
	a := &assigner{
		log:        logging.NewNopLogger(),
		lastMethod: -1,
	}
	for _, option := range options {
		option(a)
	}
	a.tableBuf = gpu.NewStorageBuffer(dev, gpu.SlotPartitionTable,
		gpu.WithLabel("partition-table"), gpu.WithLogger(a.log), gpu.WithDiagnostics(a.sink))
	a.listBuf = gpu.NewStorageBuffer(dev, gpu.SlotLightIndex,
		gpu.WithLabel("light-index"), gpu.WithLogger(a.log), gpu.WithDiagnostics(a.sink))
	return a
}

func (a *assigner) Assign(f Frame) (Result, error) {
	start := time.Now()
	res := Result{Method: f.Method, Lights: len(f.Lights)}

	if !f.Method.Partitioned() {
		res.Skipped = true
		return res, nil
	}
	if f.Camera == nil {
		diag.Reportf(a.sink, diag.KindMissingCamera, "Assigner", nil, "no active camera; %s assignment skipped", f.Method)
		res.Skipped = true
		return res, nil
	}

	grid := config.Grid{X: max(f.Grid.X, 1), Y: max(f.Grid.Y, 1), Z: max(f.Grid.Z, 1)}
	if f.Method.Tiled() {
		grid.Z = 1
	}
	if grid != a.lastGrid {
		a.log.Debugf("[Assigner] grid %s -> %s", a.lastGrid, grid)
		a.lastGrid = grid
	}
	res.Grid = grid

	a.table.Reset(grid)
	if f.Method.Implemented() {
		res.Truncated = a.assign(f, grid)
	} else if f.Method != a.lastMethod {
		diag.Reportf(a.sink, diag.KindUnimplementedStrategy, "Assigner", nil,
			"%s has no implementation; every partition is empty", f.Method)
	}
	a.lastMethod = f.Method

	res.Partitions = a.table.Partitions()
	res.ListLength = len(a.table.List)
	for i := range res.Partitions {
		n := int(a.table.Count(i))
		if n > 0 {
			res.NonEmpty++
		}
		res.MaxCount = max(res.MaxCount, n)
	}

	err := a.upload(grid, &res)
	res.Elapsed = time.Since(start)
	return res, err
}

// assign enumerates partitions z outer, then y, then x, and returns the
// number of light references dropped by the cap.
func (a *assigner) assign(f Frame, grid config.Grid) int {
	params := f.Camera.Params
	a.volumes.Build(f.Lights, f.Camera.ViewProjection(), params)
	n := a.volumes.Len()

	truncated := 0
	for z := range grid.Z {
		depth := SliceDepth(z, grid.Z, params.Near, params.Far)
		a.sliceLights = a.sliceLights[:0]
		for i := range n {
			if a.volumes.At(i).TestDepth(depth) {
				a.sliceLights = append(a.sliceLights, int32(i))
			}
		}

		for y := range grid.Y {
			row := TileRect(0, y, 1, grid.Y)
			a.rowLights = a.rowLights[:0]
			for _, i := range a.sliceLights {
				if a.volumes.At(int(i)).TestRows(row) {
					a.rowLights = append(a.rowLights, i)
				}
			}

			for x := range grid.X {
				tile := TileRect(x, y, grid.X, grid.Y)
				a.scratch = a.scratch[:0]
				for _, i := range a.rowLights {
					if a.volumes.At(int(i)).TestColumns(tile) {
						a.scratch = append(a.scratch, i)
					}
				}
				var dropped int
				a.scratch, dropped = a.applyCap(a.scratch, f)
				truncated += dropped
				a.table.Append(a.table.Index(x, y, z), a.scratch)
			}
		}
	}
	return truncated
}

// applyCap enforces the per-partition maximum under CapNearest: lights are
// ranked by view depth with non-point lights first and ties broken by index,
// and the kept indices are returned in ascending order. Non-point lights are
// never dropped, even when they alone exceed the maximum.
func (a *assigner) applyCap(idx []int32, f Frame) ([]int32, int) {
	limit := max(f.MaxLightsPerPartition, 0)
	if f.CapPolicy != config.CapNearest || len(idx) <= limit {
		return idx, 0
	}
	passThrough := 0
	for _, i := range idx {
		if a.volumes.At(int(i)).PassThrough {
			passThrough++
		}
	}
	limit = max(limit, passThrough)
	if len(idx) <= limit {
		return idx, 0
	}
	slices.SortFunc(idx, func(i, j int32) int {
		if c := cmp.Compare(a.volumes.At(int(i)).rank(), a.volumes.At(int(j)).rank()); c != 0 {
			return c
		}
		return cmp.Compare(i, j)
	})
	dropped := len(idx) - limit
	idx = idx[:limit]
	slices.Sort(idx)
	return idx, dropped
}

// upload sizes both buffers for grid and writes the mirrors. A table mirror
// that does not match the allocation is not uploaded.
func (a *assigner) upload(grid config.Grid, res *Result) error {
	dim := gpu.Dim{grid.X, grid.Y, grid.Z}
	res.TableReallocated = a.tableBuf.EnsureExact(dim, TableSize(grid))
	res.ListReallocated = a.listBuf.EnsureAtLeast(dim, ListSize(len(a.table.List)))

	var errs []error
	if a.tableBuf.Handle() != nil {
		d := a.tableBuf.Dim()
		want := 2 * d[0] * d[1] * d[2]
		if len(a.table.Entries) != want {
			diag.Reportf(a.sink, diag.KindCapacityMismatch, "Assigner", nil,
				"partition table mirror has %d entries, buffer sized for %d; upload skipped", len(a.table.Entries), want)
		} else if err := a.tableBuf.Upload(common.SliceToBytes(a.table.Entries)); err != nil {
			errs = append(errs, fmt.Errorf("partition table: %w", err))
		}
	}
	if a.listBuf.Handle() != nil {
		if err := a.listBuf.Upload(common.SliceToBytes(a.table.List)); err != nil {
			errs = append(errs, fmt.Errorf("light index list: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *assigner) Table() *PartitionTable {
	return &a.table
}

func (a *assigner) TableBuffer() *gpu.StorageBuffer {
	return a.tableBuf
}

func (a *assigner) ListBuffer() *gpu.StorageBuffer {
	return a.listBuf
}

func (a *assigner) Release() {
	a.tableBuf.Release()
	a.listBuf.Release()
	a.lastGrid = config.Grid{}
}
