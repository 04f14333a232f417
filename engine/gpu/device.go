package gpu

import (
	"errors"
	"fmt"
	"image"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrNoHandle is returned when writing to a StorageBuffer whose allocation failed.
var ErrNoHandle = errors.New("storage buffer has no GPU handle")

// Slot is a fixed storage-buffer binding point shared by every lit program.
type Slot int

const (
	// SlotLights holds the light header and records.
	SlotLights Slot = 0
	// SlotPartitionTable holds (offset, count) pairs per partition.
	SlotPartitionTable Slot = 1
	// SlotLightIndex holds the flattened light-index list.
	SlotLightIndex Slot = 2

	// NumSlots is the number of storage slots.
	NumSlots = 3
)

func (s Slot) String() string {
	switch s {
	case SlotLights:
		return "lights"
	case SlotPartitionTable:
		return "partition-table"
	case SlotLightIndex:
		return "light-index"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// Target is a render target the orchestrator draws into.
type Target int

const (
	// TargetScreen is the presentable surface.
	TargetScreen Target = iota
	// TargetLit is the HDR colour target plus the shared depth buffer.
	TargetLit
	// TargetGBuffer is the deferred G-buffer (position, normal, albedo) plus the shared depth buffer.
	TargetGBuffer
)

func (t Target) String() string {
	switch t {
	case TargetScreen:
		return "screen"
	case TargetLit:
		return "lit"
	case TargetGBuffer:
		return "gbuffer"
	default:
		return fmt.Sprintf("target(%d)", int(t))
	}
}

// Program is a shader program the orchestrator binds.
type Program int

const (
	ProgramZPrepass Program = iota
	ProgramForward
	ProgramGBuffer
	ProgramDeferredLight
	ProgramPost

	numPrograms
)

func (p Program) String() string {
	switch p {
	case ProgramZPrepass:
		return "zprepass"
	case ProgramForward:
		return "forward"
	case ProgramGBuffer:
		return "gbuffer"
	case ProgramDeferredLight:
		return "deferred_light"
	case ProgramPost:
		return "post"
	default:
		return fmt.Sprintf("program(%d)", int(p))
	}
}

// Primitive is a built-in mesh the device owns.
type Primitive int

const (
	// PrimitiveQuad is the unit quad [0,1]² at z=0, used with FullscreenQuadMatrix.
	PrimitiveQuad Primitive = iota
	// PrimitiveSphere is the unit sphere centred at the origin.
	PrimitiveSphere
)

func (p Primitive) String() string {
	if p == PrimitiveSphere {
		return "sphere"
	}
	return "quad"
}

// CompareFunc is the depth comparison function.
type CompareFunc int

const (
	CompareLess CompareFunc = iota
	CompareLessEqual
	CompareGreaterEqual
	CompareAlways
)

// BlendMode is the colour blend applied to the lit target.
type BlendMode int

const (
	BlendNone BlendMode = iota
	// BlendAdditive is src*alpha + dst.
	BlendAdditive
)

// CullMode selects which triangle faces are discarded.
type CullMode int

const (
	CullNone CullMode = iota
	CullBack
	CullFront
)

// RasterState is the fixed-function state for subsequent draws.
type RasterState struct {
	DepthTest    bool
	DepthWrite   bool
	DepthCompare CompareFunc
	Blend        BlendMode
	Cull         CullMode
	Wireframe    bool
	// ColorMask disables colour writes when true (depth pre-pass).
	ColorMask bool
}

// DefaultRasterState is depth test and write on with less-than compare, no
// blending and back-face culling.
func DefaultRasterState() RasterState {
	return RasterState{
		DepthTest:    true,
		DepthWrite:   true,
		DepthCompare: CompareLess,
		Cull:         CullBack,
	}
}

// ClearState describes how a pass initializes its target.
type ClearState struct {
	Color      mgl32.Vec4
	ClearColor bool
	ClearDepth bool
}

// Buffer is an opaque GPU buffer handle.
type Buffer interface {
	Label() string
	Size() uint64
}

// Mesh is an opaque drawable handle produced by UploadMesh.
type Mesh interface {
	Label() string
	IndexCount() uint32
}

// Texture is an opaque sampled texture handle produced by UploadTexture.
type Texture interface {
	Label() string
}

// Device is the narrow GPU surface the culling engine and the pass
// orchestrator need: buffer lifecycle, fixed binding slots, targets and the
// bind-program / set-named-parameter / draw model.
//
// Parameter values accepted by SetParam: int32, [2]int32, [4]int32, float32,
// mgl32.Vec2, mgl32.Vec3, mgl32.Vec4, mgl32.Mat4, bool, Texture and Target
// (sample the target's colour attachment).
type Device interface {
	// CreateBuffer allocates a storage buffer of the given size.
	//
	// Parameters:
	//   - label: debug label
	//   - size: size in bytes
	//
	// Returns:
	//   - Buffer: the new buffer
	//   - error: allocation failure
	CreateBuffer(label string, size uint64) (Buffer, error)

	// ReleaseBuffer frees a buffer created by CreateBuffer. Nil is ignored.
	ReleaseBuffer(b Buffer)

	// WriteBuffer copies data into b starting at offset.
	//
	// Parameters:
	//   - b: destination buffer
	//   - offset: byte offset
	//   - data: bytes to write
	//
	// Returns:
	//   - error: if the write does not fit or b is not a buffer of this device
	WriteBuffer(b Buffer, offset uint64, data []byte) error

	// BindStorage binds b to a fixed slot for all subsequent draws. Nil unbinds.
	BindStorage(slot Slot, b Buffer)

	// UploadMesh creates a drawable from interleaved vertex data.
	UploadMesh(label string, data MeshData) (Mesh, error)

	// UploadTexture creates a sampled texture from an image.
	UploadTexture(label string, img image.Image) (Texture, error)

	// ResizeTarget (re)creates the attachments of an offscreen target.
	//
	// Parameters:
	//   - t: TargetLit or TargetGBuffer
	//   - width, height: size in pixels
	//
	// Returns:
	//   - error: allocation failure
	ResizeTarget(t Target, width, height int) error

	// BeginPass starts recording into t, closing any open pass.
	BeginPass(t Target, clear ClearState)

	// EndPass closes the open pass.
	EndPass()

	// BindProgram selects the program for subsequent draws.
	BindProgram(p Program)

	// SetParam sets a named program parameter for subsequent draws.
	SetParam(name string, value any)

	// SetRaster sets the fixed-function state for subsequent draws.
	SetRaster(s RasterState)

	// Draw draws a mesh with the current program, parameters and state.
	Draw(m Mesh)

	// DrawPrimitive draws a built-in primitive.
	DrawPrimitive(p Primitive)

	// Present submits the frame and presents the screen target.
	Present()

	// Release frees every resource the device owns.
	Release()
}
