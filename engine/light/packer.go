package light

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

// Packer converts the frame's light instances into the view-space light
// buffer bound to gpu.SlotLights.
type Packer interface {
	// Pack writes a header and one GPULight per instance in a single upload.
	// The buffer is reallocated only when the count differs from the last
	// upload (or no buffer exists yet).
	//
	// Parameters:
	//   - lights: the light instances in scene order
	//   - view: the camera view matrix of this frame
	//
	// Returns:
	//   - error: wraps gpu.ErrNoHandle if the buffer could not be allocated
	Pack(lights []Instance, view mgl32.Mat4) error

	// LastCount returns the light count of the last successful upload, or -1.
	LastCount() int

	// Buffer returns the underlying storage buffer.
	Buffer() *gpu.StorageBuffer

	// Release frees the GPU buffer.
	Release()
}

type packer struct {
	buffer    *gpu.StorageBuffer
	scratch   []byte
	lastCount int
}

var _ Packer = &packer{}

// NewPacker creates a Packer whose buffer lives on dev at gpu.SlotLights.
//
// Parameters:
//   - dev: the device (panics if nil)
//   - options: storage buffer options (label, logger, diagnostics sink)
//
// Returns:
//   - Packer: the packer
func NewPacker(dev gpu.Device, options ...gpu.StorageBufferOption) Packer {
	options = append([]gpu.StorageBufferOption{gpu.WithLabel("lights")}, options...)
	return &packer{
		buffer:    gpu.NewStorageBuffer(dev, gpu.SlotLights, options...),
		lastCount: -1,
	}
}

func (p *packer) Pack(lights []Instance, view mgl32.Mat4) error {
	n := len(lights)
	size := lightBufferSize(n)
	p.buffer.EnsureExact(gpu.Dim{n}, size)

	if uint64(cap(p.scratch)) < size {
		p.scratch = make([]byte, size)
	}
	buf := p.scratch[:size]

	header := GPULightHeader{Count: int32(n)}
	header.MarshalTo(buf)
	off := header.Size()
	for _, inst := range lights {
		g := ToGPULight(inst, view)
		g.MarshalTo(buf[off:])
		off += g.Size()
	}

	if err := p.buffer.Upload(buf); err != nil {
		return fmt.Errorf("pack %d lights: %w", n, err)
	}
	p.lastCount = n
	return nil
}

func (p *packer) LastCount() int {
	return p.lastCount
}

func (p *packer) Buffer() *gpu.StorageBuffer {
	return p.buffer
}

func (p *packer) Release() {
	p.buffer.Release()
	p.lastCount = -1
}
