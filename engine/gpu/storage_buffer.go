package gpu

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/diag"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
)

// MinBufferSize is the smallest allocation, so an empty list is still bindable.
const MinBufferSize = 16

// Dim is the logical dimension a buffer was sized for: a light count, or the
// partition grid. A change in Dim triggers an exact reallocation.
type Dim [3]int

// StorageBuffer owns one GPU buffer bound to a fixed slot, together with the
// dimension it was sized for. Reallocation and upload are separate steps.
type StorageBuffer struct {
	device Device
	slot   Slot
	label  string
	log    logging.Logger
	sink   diag.Sink

	handle   Buffer
	dim      Dim
	capacity uint64

	allocations int
}

// NewStorageBuffer creates an empty StorageBuffer for a slot. Nothing is
// allocated until the first Ensure call.
//
// Parameters:
//   - device: the device that allocates the buffer (panics if nil)
//   - slot: the fixed binding slot
//   - options: functional options (label, logger, diagnostics sink)
//
// Returns:
//   - *StorageBuffer: the buffer
func NewStorageBuffer(device Device, slot Slot, options ...StorageBufferOption) *StorageBuffer {
	if device == nil {
		panic("gpu: NewStorageBuffer requires a device")
	}
	b := &StorageBuffer{
		device: device,
		slot:   slot,
		label:  slot.String(),
		log:    logging.NewNopLogger(),
	}
	for _, option := range options {
		option(b)
	}
	return b
}

// EnsureExact reallocates when there is no handle or dim differs from the
// dimension of the current allocation.
//
// Parameters:
//   - dim: the logical dimension
//   - size: required size in bytes
//
// Returns:
//   - bool: true if a reallocation was attempted
func (b *StorageBuffer) EnsureExact(dim Dim, size uint64) bool {
	if b.handle != nil && b.dim == dim {
		return false
	}
	b.reallocate(dim, size)
	return true
}

// EnsureAtLeast reallocates when there is no handle, dim differs from the
// dimension of the current allocation, or the current capacity is smaller
// than size. Within one dimension the buffer never shrinks.
//
// Parameters:
//   - dim: the logical dimension (the partition grid for the light-index list)
//   - size: required size in bytes
//
// Returns:
//   - bool: true if a reallocation was attempted
func (b *StorageBuffer) EnsureAtLeast(dim Dim, size uint64) bool {
	if b.handle != nil && b.dim == dim && b.capacity >= size {
		return false
	}
	b.reallocate(dim, size)
	return true
}

// reallocate releases the old handle, creates a new one and binds it to the
// slot. On failure the buffer is left without a handle so the next Ensure
// call retries, and a ResourceAllocation diagnostic is reported.
func (b *StorageBuffer) reallocate(dim Dim, size uint64) {
	if b.handle != nil {
		b.device.ReleaseBuffer(b.handle)
		b.handle = nil
		b.capacity = 0
	}
	size = max(size, MinBufferSize)

	h, err := b.device.CreateBuffer(b.label, size)
	if err != nil {
		b.dim = Dim{}
		b.device.BindStorage(b.slot, nil)
		diag.Reportf(b.sink, diag.KindResourceAllocation, "StorageBuffer", err,
			"%s: failed to allocate %d bytes", b.label, size)
		return
	}
	b.handle = h
	b.dim = dim
	b.capacity = size
	b.allocations++
	b.device.BindStorage(b.slot, h)
	b.log.Debugf("[StorageBuffer] %s reallocated: %d bytes, dim %v", b.label, size, dim)
}

// Upload writes data from offset 0. Zero-length data is a no-op.
//
// Parameters:
//   - data: the bytes to write
//
// Returns:
//   - error: ErrNoHandle if no allocation exists, or a write error
func (b *StorageBuffer) Upload(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if b.handle == nil {
		return fmt.Errorf("%s: %w", b.label, ErrNoHandle)
	}
	if uint64(len(data)) > b.capacity {
		return fmt.Errorf("%s: upload of %d bytes exceeds capacity %d", b.label, len(data), b.capacity)
	}
	if err := b.device.WriteBuffer(b.handle, 0, data); err != nil {
		return fmt.Errorf("%s: write failed: %w", b.label, err)
	}
	return nil
}

// Bind rebinds the current handle to the slot.
func (b *StorageBuffer) Bind() {
	b.device.BindStorage(b.slot, b.handle)
}

// Release frees the handle and forgets the tracked dimension.
func (b *StorageBuffer) Release() {
	if b.handle != nil {
		b.device.ReleaseBuffer(b.handle)
	}
	b.handle = nil
	b.dim = Dim{}
	b.capacity = 0
}

// Handle returns the current GPU handle, or nil.
func (b *StorageBuffer) Handle() Buffer { return b.handle }

// Dim returns the dimension of the current allocation.
func (b *StorageBuffer) Dim() Dim { return b.dim }

// Capacity returns the allocated size in bytes.
func (b *StorageBuffer) Capacity() uint64 { return b.capacity }

// Slot returns the fixed binding slot.
func (b *StorageBuffer) Slot() Slot { return b.slot }

// Allocations returns the number of successful allocations so far.
func (b *StorageBuffer) Allocations() int { return b.allocations }
