package culling

import (
	"unsafe"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/config"
)

// PartitionTable is the CPU mirror of the partition table and the flattened
// light-index list. Entry 2i is the offset of partition i in List and entry
// 2i+1 its count, where i = (z*Y + y)*X + x.
type PartitionTable struct {
	Grid    config.Grid
	Entries []int32
	List    []int32
}

// Reset sizes Entries to 2*X*Y*Z zeros for grid and empties List.
//
// Parameters:
//   - grid: the partition grid
func (t *PartitionTable) Reset(grid config.Grid) {
	n := 2 * grid.Partitions()
	if cap(t.Entries) < n {
		t.Entries = make([]int32, n)
	} else {
		t.Entries = t.Entries[:n]
		clear(t.Entries)
	}
	t.List = t.List[:0]
	t.Grid = grid
}

// Index returns the partition index of (x, y, z).
func (t *PartitionTable) Index(x, y, z int) int {
	return (z*t.Grid.Y+y)*t.Grid.X + x
}

// Append records lights as the next partition i. Partitions must be appended
// in enumeration order.
//
// Parameters:
//   - i: the partition index
//   - lights: the light indices affecting it
func (t *PartitionTable) Append(i int, lights []int32) {
	t.Entries[2*i] = int32(len(t.List))
	t.Entries[2*i+1] = int32(len(lights))
	t.List = append(t.List, lights...)
}

// Offset returns the offset of partition i in List.
func (t *PartitionTable) Offset(i int) int32 { return t.Entries[2*i] }

// Count returns the number of lights in partition i.
func (t *PartitionTable) Count(i int) int32 { return t.Entries[2*i+1] }

// Lights returns the light indices of partition i, a view into List.
func (t *PartitionTable) Lights(i int) []int32 {
	off, n := t.Offset(i), t.Count(i)
	return t.List[off : off+n]
}

// Partitions returns the number of partitions in the table.
func (t *PartitionTable) Partitions() int {
	return len(t.Entries) / 2
}

// TableSize returns the byte size of the table for grid.
func TableSize(grid config.Grid) uint64 {
	return uint64(2*grid.Partitions()) * uint64(unsafe.Sizeof(int32(0)))
}

// ListSize returns the byte size of a flattened list of n indices.
func ListSize(n int) uint64 {
	return uint64(n) * uint64(unsafe.Sizeof(int32(0)))
}
