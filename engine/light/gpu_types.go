package light

import (
	"unsafe"

	"github.com/Carmen-Shannon/oxy-lightcull/common"
	"github.com/go-gl/mathgl/mgl32"
)

// GPULightHeader is the header at the start of the light storage buffer.
// Size: 16 bytes (ivec4, only x used).
type GPULightHeader struct {
	Count int32
	_pad  [3]int32
}

// Size returns the size of the GPULightHeader struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (16)
func (h *GPULightHeader) Size() int {
	return int(unsafe.Sizeof(*h))
}

// MarshalTo writes the header into buf, which must hold at least 16 bytes.
func (h *GPULightHeader) MarshalTo(buf []byte) {
	common.PutInt32s(buf, h.Count, 0, 0, 0)
}

// GPULight is the GPU layout of one light: five vec4 fields.
// Size: 80 bytes.
//
// Layout:
//
//	vec4 positionType      (xyz view-space position, w type)
//	vec4 direction         (xyz view-space direction)
//	vec4 innerOuterAngles  (xy)
//	vec4 color             (xyz)
//	vec4 attenuation       (xyz constant, linear, quadratic)
type GPULight struct {
	PositionType     mgl32.Vec4
	Direction        mgl32.Vec4
	InnerOuterAngles mgl32.Vec4
	Color            mgl32.Vec4
	Attenuation      mgl32.Vec4
}

// Size returns the size of the GPULight struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (80)
func (g *GPULight) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPULight into an 80-byte little-endian buffer.
//
// Returns:
//   - []byte: 80-byte buffer ready for GPU upload
func (g *GPULight) Marshal() []byte {
	buf := make([]byte, 80)
	g.MarshalTo(buf)
	return buf
}

// MarshalTo writes the record into buf, which must hold at least 80 bytes.
func (g *GPULight) MarshalTo(buf []byte) {
	for i, v := range [5]mgl32.Vec4{g.PositionType, g.Direction, g.InnerOuterAngles, g.Color, g.Attenuation} {
		common.PutFloat32s(buf[i*16:], v[0], v[1], v[2], v[3])
	}
}

// ToGPULight converts a light instance into its view-space GPU record.
//
// Parameters:
//   - inst: the light and its world transform
//   - view: the camera view matrix
//
// Returns:
//   - GPULight: the GPU-aligned representation
func ToGPULight(inst Instance, view mgl32.Mat4) GPULight {
	pos := view.Mul4x1(inst.Position().Vec4(1))
	dir := safeNormalize(view.Mul4x1(inst.WorldDirection().Vec4(0)).Vec3())
	l := inst.Light
	return GPULight{
		PositionType:     mgl32.Vec4{pos.X(), pos.Y(), pos.Z(), float32(l.Type)},
		Direction:        dir.Vec4(0),
		InnerOuterAngles: mgl32.Vec4{l.InnerOuter.X(), l.InnerOuter.Y(), 0, 0},
		Color:            l.Color.Vec4(0),
		Attenuation:      l.Attenuation.Vec4(0),
	}
}

// lightBufferSize returns the byte size of a light buffer holding count records.
func lightBufferSize(count int) uint64 {
	return uint64((&GPULightHeader{}).Size() + count*(&GPULight{}).Size())
}
