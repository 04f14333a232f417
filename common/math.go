package common

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// PutFloat32s writes the given floats into buf as consecutive little-endian
// 32-bit values starting at offset 0.
//
// Parameters:
//   - buf: destination buffer (must hold at least 4*len(values) bytes)
//   - values: the floats to write
func PutFloat32s(buf []byte, values ...float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
}

// PutInt32s writes the given ints into buf as consecutive little-endian
// 32-bit values starting at offset 0.
//
// Parameters:
//   - buf: destination buffer (must hold at least 4*len(values) bytes)
//   - values: the ints to write
func PutInt32s(buf []byte, values ...int32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], uint32(v))
	}
}

// NormalMatrix returns inverse(transpose(mv)), the matrix used to bring
// normals into view space.
//
// Parameters:
//   - mv: the model-view matrix
//
// Returns:
//   - mgl32.Mat4: the normal matrix
func NormalMatrix(mv mgl32.Mat4) mgl32.Mat4 {
	return mv.Transpose().Inv()
}

// FullscreenQuadMatrix maps the unit quad [0,1]² onto clip space [-1,1]².
// Column-major: (2,0,0,0), (0,2,0,0), (0,0,0,0), (-1,-1,0,1).
//
// Returns:
//   - mgl32.Mat4: the fixed quad mapping matrix
func FullscreenQuadMatrix() mgl32.Mat4 {
	return mgl32.Mat4{
		2, 0, 0, 0,
		0, 2, 0, 0,
		0, 0, 0, 0,
		-1, -1, 0, 1,
	}
}

// SphereMatrix returns the model matrix that places a unit sphere at center
// with the given radius.
//
// Parameters:
//   - center: world-space centre
//   - radius: uniform scale
//
// Returns:
//   - mgl32.Mat4: scale-then-translate matrix
func SphereMatrix(center mgl32.Vec3, radius float32) mgl32.Mat4 {
	return mgl32.Mat4{
		radius, 0, 0, 0,
		0, radius, 0, 0,
		0, 0, radius, 0,
		center.X(), center.Y(), center.Z(), 1,
	}
}

// ProjectionScale returns cot(fovY/2), the vertical focal scale of a
// symmetric perspective projection.
//
// Parameters:
//   - fovY: vertical field of view in radians
//
// Returns:
//   - float32: the focal scale
func ProjectionScale(fovY float32) float32 {
	return float32(1.0 / math.Tan(float64(fovY)/2.0))
}

// GammaPreCorrect inverts the post pass tone curve y = (x/(x+1))^(1/2.2) so a
// colour cleared into the lit target comes out of the post pass unchanged.
// Applied per channel: c' = c^2.2 / (1.0001 - c^2.2).
//
// Parameters:
//   - c: sRGB colour
//
// Returns:
//   - mgl32.Vec3: the pre-corrected linear colour
func GammaPreCorrect(c mgl32.Vec3) mgl32.Vec3 {
	var out mgl32.Vec3
	for i := range 3 {
		p := float32(math.Pow(float64(c[i]), 2.2))
		out[i] = p / (1.0001 - p)
	}
	return out
}
