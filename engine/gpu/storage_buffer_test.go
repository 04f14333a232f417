package gpu

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/diag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStorageBufferPanicsWithoutDevice(t *testing.T) {
	assert.Panics(t, func() { NewStorageBuffer(nil, SlotLights) })
}

func TestEnsureExactReallocatesOnlyOnDimChange(t *testing.T) {
	dev := NewHeadlessDevice()
	b := NewStorageBuffer(dev, SlotLights)

	assert.True(t, b.EnsureExact(Dim{3}, 96))
	assert.False(t, b.EnsureExact(Dim{3}, 96))
	assert.False(t, b.EnsureExact(Dim{3}, 4096), "same dim never reallocates")
	assert.True(t, b.EnsureExact(Dim{2}, 64))

	assert.Equal(t, 2, b.Allocations())
	assert.Equal(t, uint64(64), b.Capacity())
	assert.Equal(t, 1, dev.Stats().BufferReleases)
	assert.Same(t, b.Handle(), dev.Bound(SlotLights))
}

func TestEnsureAtLeastGrowsButNeverShrinks(t *testing.T) {
	dev := NewHeadlessDevice()
	b := NewStorageBuffer(dev, SlotLightIndex)
	grid := Dim{4, 4, 1}

	tests := []struct {
		name    string
		dim     Dim
		size    uint64
		realloc bool
		want    uint64
	}{
		{"first allocation", grid, 100, true, 100},
		{"smaller fits", grid, 40, false, 100},
		{"equal fits", grid, 100, false, 100},
		{"larger grows", grid, 101, true, 101},
		{"grid change reallocates smaller", Dim{2, 2, 1}, 32, true, 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.realloc, b.EnsureAtLeast(tt.dim, tt.size))
			assert.Equal(t, tt.want, b.Capacity())
			assert.Equal(t, tt.dim, b.Dim())
		})
	}
}

func TestStorageBufferMinimumSize(t *testing.T) {
	dev := NewHeadlessDevice()
	b := NewStorageBuffer(dev, SlotLightIndex)
	b.EnsureAtLeast(Dim{1, 1, 1}, 0)
	assert.Equal(t, uint64(MinBufferSize), b.Capacity())
	assert.Equal(t, uint64(MinBufferSize), b.Handle().Size())
}

func TestStorageBufferAllocationFailure(t *testing.T) {
	fail := true
	dev := NewHeadlessDevice(WithAllocationFailure(func(string, uint64) error {
		if fail {
			return errors.New("out of memory")
		}
		return nil
	}))
	var rec diag.Recorder
	b := NewStorageBuffer(dev, SlotPartitionTable, WithDiagnostics(&rec))

	assert.True(t, b.EnsureExact(Dim{2, 2, 1}, 32))
	assert.Nil(t, b.Handle())
	assert.Nil(t, dev.Bound(SlotPartitionTable))
	assert.Equal(t, 1, rec.Count(diag.KindResourceAllocation))

	err := b.Upload(make([]byte, 8))
	assert.ErrorIs(t, err, ErrNoHandle)

	// The same dim retries on the next frame.
	fail = false
	assert.True(t, b.EnsureExact(Dim{2, 2, 1}, 32))
	require.NotNil(t, b.Handle())
	assert.NoError(t, b.Upload(make([]byte, 8)))
}

func TestStorageBufferUpload(t *testing.T) {
	dev := NewHeadlessDevice()
	b := NewStorageBuffer(dev, SlotLights)

	assert.NoError(t, b.Upload(nil), "zero-length upload is a no-op even without a handle")

	b.EnsureExact(Dim{1}, 16)
	require.NoError(t, b.Upload([]byte{1, 2, 3, 4}))
	assert.Equal(t, []byte{1, 2, 3, 4}, dev.BufferData(b.Handle())[:4])

	assert.Error(t, b.Upload(make([]byte, 17)))
	assert.Equal(t, 1, dev.Stats().BufferWrites)
}

func TestStorageBufferRelease(t *testing.T) {
	dev := NewHeadlessDevice()
	b := NewStorageBuffer(dev, SlotLights)
	b.EnsureExact(Dim{1}, 16)
	b.Release()

	assert.Nil(t, b.Handle())
	assert.Equal(t, Dim{}, b.Dim())
	assert.True(t, b.EnsureExact(Dim{1}, 16))
}
