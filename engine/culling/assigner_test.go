package culling

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/camera"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/config"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/diag"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/gpu"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/light"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *camera.Snapshot {
	return &camera.Snapshot{
		View:       mgl32.LookAtV(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}),
		Projection: testProjection(),
		Params:     testParams,
	}
}

func pointLight(pos mgl32.Vec3) light.Instance {
	return light.Instance{
		Light: light.NewLight(light.TypePoint, light.WithAttenuation(1, 0, 30)),
		World: mgl32.Translate3D(pos.X(), pos.Y(), pos.Z()),
	}
}

func directionalLight() light.Instance {
	return light.Instance{Light: light.NewLight(light.TypeDirectional), World: mgl32.Ident4()}
}

func randomLights(rng *rand.Rand, n int) []light.Instance {
	out := make([]light.Instance, 0, n)
	for i := range n {
		if i%17 == 0 {
			out = append(out, directionalLight())
			continue
		}
		p := pointLight(mgl32.Vec3{rng.Float32()*40 - 20, rng.Float32()*20 - 10, -rng.Float32() * 60})
		p.Light.Attenuation = mgl32.Vec3{1, 0, rng.Float32()*50 + 1}
		out = append(out, p)
	}
	return out
}

func frame(method config.CullingMethod, grid config.Grid, lights []light.Instance) Frame {
	return Frame{
		Camera:                testSnapshot(),
		Lights:                lights,
		Grid:                  grid,
		Method:                method,
		MaxLightsPerPartition: 64,
	}
}

func decodeInt32s(b []byte, n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// checkInvariants asserts the partition table properties that must hold
// after every assignment.
func checkInvariants(t *testing.T, tbl *PartitionTable, lightCount int) {
	t.Helper()
	require.Len(t, tbl.Entries, 2*tbl.Grid.Partitions())

	sum := 0
	var prevOffset int32
	for i := range tbl.Partitions() {
		off, n := tbl.Offset(i), tbl.Count(i)
		assert.GreaterOrEqual(t, off, prevOffset, "offsets must be non-decreasing")
		assert.Equal(t, int32(sum), off, "partition-major concatenation")
		prevOffset = off
		sum += int(n)

		seen := map[int32]bool{}
		for _, idx := range tbl.Lights(i) {
			assert.True(t, idx >= 0 && int(idx) < lightCount, "index %d out of range", idx)
			assert.False(t, seen[idx], "duplicate index %d in partition %d", idx, i)
			seen[idx] = true
		}
	}
	assert.Equal(t, sum, len(tbl.List))
}

func TestAssignSingleTileFocalLight(t *testing.T) {
	dev := gpu.NewHeadlessDevice()
	a := NewAssigner(dev)

	res, err := a.Assign(frame(config.CullingTiledCPU, config.Grid{X: 1, Y: 1, Z: 1}, []light.Instance{
		pointLight(mgl32.Vec3{0, 0, -5}),
	}))
	require.NoError(t, err)

	tbl := a.Table()
	assert.Equal(t, []int32{0, 1}, tbl.Entries)
	assert.Equal(t, []int32{0}, tbl.List)
	assert.Equal(t, 1, res.Partitions)
	assert.Equal(t, 1, res.NonEmpty)

	assert.Equal(t, []int32{0, 1}, decodeInt32s(dev.BufferData(dev.Bound(gpu.SlotPartitionTable)), 2))
	assert.Equal(t, []int32{0}, decodeInt32s(dev.BufferData(dev.Bound(gpu.SlotLightIndex)), 1))
}

func TestAssignZeroLights(t *testing.T) {
	for _, method := range []config.CullingMethod{config.CullingTiledCPU, config.CullingClusteredCPU} {
		t.Run(method.String(), func(t *testing.T) {
			dev := gpu.NewHeadlessDevice()
			a := NewAssigner(dev)
			res, err := a.Assign(frame(method, config.Grid{X: 4, Y: 3, Z: 2}, nil))
			require.NoError(t, err)

			checkInvariants(t, a.Table(), 0)
			assert.Empty(t, a.Table().List)
			assert.Zero(t, res.NonEmpty)

			list := dev.Bound(gpu.SlotLightIndex)
			require.NotNil(t, list, "an empty list is still bound")
			assert.Equal(t, uint64(gpu.MinBufferSize), list.Size())
		})
	}
}

func TestAssignDirectionalLightEverywhere(t *testing.T) {
	tests := []struct {
		method config.CullingMethod
		grid   config.Grid
		parts  int
	}{
		{config.CullingTiledCPU, config.Grid{X: 4, Y: 3, Z: 8}, 12},
		{config.CullingClusteredCPU, config.Grid{X: 4, Y: 3, Z: 4}, 48},
	}
	for _, tt := range tests {
		t.Run(tt.method.String(), func(t *testing.T) {
			a := NewAssigner(gpu.NewHeadlessDevice())
			lights := []light.Instance{
				pointLight(mgl32.Vec3{0, 0, 50}), // behind the camera
				directionalLight(),
			}
			res, err := a.Assign(frame(tt.method, tt.grid, lights))
			require.NoError(t, err)

			tbl := a.Table()
			require.Equal(t, tt.parts, tbl.Partitions())
			for i := range tbl.Partitions() {
				assert.Equal(t, []int32{1}, tbl.Lights(i), "partition %d", i)
			}
			assert.Equal(t, tt.parts, res.NonEmpty)
			checkInvariants(t, tbl, len(lights))
		})
	}
}

func TestAssignGridChangeReallocatesOnce(t *testing.T) {
	dev := gpu.NewHeadlessDevice()
	a := NewAssigner(dev)
	lights := randomLights(rand.New(rand.NewSource(1)), 40)

	grid := config.Grid{X: 8, Y: 4, Z: 4}
	for range 5 {
		_, err := a.Assign(frame(config.CullingClusteredCPU, grid, lights))
		require.NoError(t, err)
	}
	tableAllocs, listAllocs := a.TableBuffer().Allocations(), a.ListBuffer().Allocations()
	assert.Equal(t, 1, tableAllocs)
	assert.Equal(t, 1, listAllocs)

	grid = config.Grid{X: 16, Y: 9, Z: 4}
	res, err := a.Assign(frame(config.CullingClusteredCPU, grid, lights))
	require.NoError(t, err)
	assert.True(t, res.TableReallocated)
	assert.True(t, res.ListReallocated)
	assert.Equal(t, tableAllocs+1, a.TableBuffer().Allocations())
	assert.Equal(t, listAllocs+1, a.ListBuffer().Allocations())
	assert.Equal(t, gpu.Dim{16, 9, 4}, a.TableBuffer().Dim())

	for range 3 {
		_, err = a.Assign(frame(config.CullingClusteredCPU, grid, lights))
		require.NoError(t, err)
	}
	assert.Equal(t, tableAllocs+1, a.TableBuffer().Allocations())
	assert.Equal(t, listAllocs+1, a.ListBuffer().Allocations())
}

func TestAssignInvariantsOnRandomScenes(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := range 20 {
		method := config.CullingTiledCPU
		if trial%2 == 1 {
			method = config.CullingClusteredCPU
		}
		grid := config.Grid{X: rng.Intn(20) + 1, Y: rng.Intn(12) + 1, Z: rng.Intn(8) + 1}
		lights := randomLights(rng, rng.Intn(120))

		a := NewAssigner(gpu.NewHeadlessDevice())
		res, err := a.Assign(frame(method, grid, lights))
		require.NoError(t, err)
		checkInvariants(t, a.Table(), len(lights))
		assert.Equal(t, len(a.Table().List), res.ListLength)
		if method.Tiled() {
			assert.Equal(t, 1, res.Grid.Z)
		}
	}
}

func TestAssignIsDeterministic(t *testing.T) {
	lights := randomLights(rand.New(rand.NewSource(9)), 80)
	a := NewAssigner(gpu.NewHeadlessDevice())
	f := frame(config.CullingClusteredCPU, config.Grid{X: 12, Y: 8, Z: 6}, lights)

	_, err := a.Assign(f)
	require.NoError(t, err)
	entries := append([]int32(nil), a.Table().Entries...)
	list := append([]int32(nil), a.Table().List...)

	_, err = a.Assign(f)
	require.NoError(t, err)
	assert.Equal(t, entries, a.Table().Entries)
	assert.Equal(t, list, a.Table().List)
}

func TestAssignMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	lights := randomLights(rng, 60)
	grid := config.Grid{X: 10, Y: 6, Z: 5}
	snap := testSnapshot()

	a := NewAssigner(gpu.NewHeadlessDevice())
	_, err := a.Assign(frame(config.CullingClusteredCPU, grid, lights))
	require.NoError(t, err)
	tbl := a.Table()

	vp := snap.ViewProjection()
	for z := range grid.Z {
		depth := SliceDepth(z, grid.Z, testParams.Near, testParams.Far)
		for y := range grid.Y {
			for x := range grid.X {
				var want []int32
				for i, l := range lights {
					if l.Light.Type != light.TypePoint {
						want = append(want, int32(i))
						continue
					}
					c, r := l.BoundingSphere()
					clip := vp.Mul4x1(c.Vec4(1))
					if Intersects(testParams, Sphere{Center: clip.Vec3(), Radius: r}, clip.W(), TileRect(x, y, grid.X, grid.Y), depth) {
						want = append(want, int32(i))
					}
				}
				got := tbl.Lights(tbl.Index(x, y, z))
				if len(want) == 0 {
					assert.Empty(t, got)
				} else {
					assert.Equal(t, want, got, "cluster (%d,%d,%d)", x, y, z)
				}
			}
		}
	}
}

func TestAssignMissingCamera(t *testing.T) {
	dev := gpu.NewHeadlessDevice()
	var rec diag.Recorder
	a := NewAssigner(dev, WithDiagnostics(&rec))

	f := frame(config.CullingTiledCPU, config.Grid{X: 4, Y: 4, Z: 1}, []light.Instance{pointLight(mgl32.Vec3{0, 0, -5})})
	f.Camera = nil
	res, err := a.Assign(f)
	require.NoError(t, err)

	assert.True(t, res.Skipped)
	assert.Equal(t, 1, rec.Count(diag.KindMissingCamera))
	assert.Zero(t, dev.Stats().BufferAllocations)
	assert.Zero(t, dev.Stats().BufferWrites)
}

func TestAssignUnimplementedStrategy(t *testing.T) {
	dev := gpu.NewHeadlessDevice()
	var rec diag.Recorder
	a := NewAssigner(dev, WithDiagnostics(&rec))
	lights := []light.Instance{pointLight(mgl32.Vec3{0, 0, -5}), directionalLight()}
	grid := config.Grid{X: 4, Y: 2, Z: 3}

	for range 3 {
		res, err := a.Assign(frame(config.CullingClusteredGPU, grid, lights))
		require.NoError(t, err)
		assert.Zero(t, res.NonEmpty)
		assert.Equal(t, 24, res.Partitions)
	}
	assert.Equal(t, 1, rec.Count(diag.KindUnimplementedStrategy), "reported once per switch")
	checkInvariants(t, a.Table(), len(lights))
	assert.Empty(t, a.Table().List)
	require.NotNil(t, dev.Bound(gpu.SlotPartitionTable))

	_, _ = a.Assign(frame(config.CullingClusteredCPU, grid, lights))
	_, _ = a.Assign(frame(config.CullingClusteredGPU, grid, lights))
	assert.Equal(t, 2, rec.Count(diag.KindUnimplementedStrategy))
}

func TestAssignNonPartitionedMethodIsSkipped(t *testing.T) {
	dev := gpu.NewHeadlessDevice()
	a := NewAssigner(dev)
	res, err := a.Assign(frame(config.CullingBoundingSphere, config.Grid{X: 2, Y: 2, Z: 1}, nil))
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, dev.Stats().BufferAllocations)
}

func TestAssignCapNearest(t *testing.T) {
	lights := []light.Instance{
		pointLight(mgl32.Vec3{0, 0, -9}),
		pointLight(mgl32.Vec3{0, 0, -3}),
		directionalLight(),
		pointLight(mgl32.Vec3{0, 0, -6}),
		pointLight(mgl32.Vec3{0, 0, -3}),
	}
	grid := config.Grid{X: 1, Y: 1, Z: 1}

	tests := []struct {
		name      string
		policy    config.CapPolicy
		max       int
		want      []int32
		truncated int
	}{
		{"none keeps every light", config.CapNone, 1, []int32{0, 1, 2, 3, 4}, 0},
		{"nearest keeps directional then nearest, ties by index", config.CapNearest, 3, []int32{1, 2, 4}, 2},
		{"nearest under limit keeps all", config.CapNearest, 8, []int32{0, 1, 2, 3, 4}, 0},
		{"nearest zero keeps only directional", config.CapNearest, 0, []int32{2}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssigner(gpu.NewHeadlessDevice())
			f := frame(config.CullingTiledCPU, grid, lights)
			f.CapPolicy = tt.policy
			f.MaxLightsPerPartition = tt.max
			res, err := a.Assign(f)
			require.NoError(t, err)

			if tt.want == nil {
				assert.Empty(t, a.Table().Lights(0))
			} else {
				assert.Equal(t, tt.want, a.Table().Lights(0))
			}
			assert.Equal(t, tt.truncated, res.Truncated)
			checkInvariants(t, a.Table(), len(lights))
		})
	}
}

func TestAssignAllocationFailure(t *testing.T) {
	fail := true
	dev := gpu.NewHeadlessDevice(gpu.WithAllocationFailure(func(label string, _ uint64) error {
		if fail && label == "partition-table" {
			return errors.New("out of memory")
		}
		return nil
	}))
	var rec diag.Recorder
	a := NewAssigner(dev, WithDiagnostics(&rec))
	f := frame(config.CullingTiledCPU, config.Grid{X: 2, Y: 2, Z: 1}, []light.Instance{pointLight(mgl32.Vec3{0, 0, -5})})

	_, err := a.Assign(f)
	assert.NoError(t, err)
	assert.Equal(t, 1, rec.Count(diag.KindResourceAllocation))
	assert.Nil(t, dev.Bound(gpu.SlotPartitionTable))
	assert.NotNil(t, dev.Bound(gpu.SlotLightIndex))

	fail = false
	res, err := a.Assign(f)
	require.NoError(t, err)
	assert.True(t, res.TableReallocated, "the next frame retries")
	assert.NotNil(t, dev.Bound(gpu.SlotPartitionTable))
}

func TestUploadCapacityMismatch(t *testing.T) {
	dev := gpu.NewHeadlessDevice()
	var rec diag.Recorder
	a := NewAssigner(dev, WithDiagnostics(&rec)).(*assigner)
	grid := config.Grid{X: 2, Y: 2, Z: 1}
	_, err := a.Assign(frame(config.CullingTiledCPU, grid, nil))
	require.NoError(t, err)
	writes := dev.Stats().BufferWrites

	a.table.Entries = a.table.Entries[:4]
	var res Result
	require.NoError(t, a.upload(grid, &res))
	assert.Equal(t, 1, rec.Count(diag.KindCapacityMismatch))
	assert.Equal(t, writes, dev.Stats().BufferWrites, "mismatched table is not uploaded")
}
