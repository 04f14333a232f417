package gpu

import (
	"math"
)

// VertexStride is the size of one interleaved vertex: position, normal, uv.
const VertexStride = 8 * 4

// MeshData is interleaved vertex data (px py pz nx ny nz u v) plus triangle indices.
type MeshData struct {
	Vertices []float32
	Indices  []uint32
}

// VertexCount returns the number of vertices.
func (m MeshData) VertexCount() int {
	return len(m.Vertices) / 8
}

// QuadMesh returns the unit quad [0,1]² at z=0 facing +Z.
func QuadMesh() MeshData {
	return MeshData{
		Vertices: []float32{
			0, 0, 0, 0, 0, 1, 0, 1,
			1, 0, 0, 0, 0, 1, 1, 1,
			1, 1, 0, 0, 0, 1, 1, 0,
			0, 1, 0, 0, 0, 1, 0, 0,
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

// SphereMesh returns a UV sphere of radius 1 centred at the origin with
// counter-clockwise outward-facing triangles.
//
// Parameters:
//   - stacks: latitude bands (minimum 2)
//   - slices: longitude segments (minimum 3)
//
// Returns:
//   - MeshData: the sphere geometry
func SphereMesh(stacks, slices int) MeshData {
	stacks = max(stacks, 2)
	slices = max(slices, 3)

	var m MeshData
	for i := 0; i <= stacks; i++ {
		v := float64(i) / float64(stacks)
		phi := v * math.Pi
		for j := 0; j <= slices; j++ {
			u := float64(j) / float64(slices)
			theta := u * 2 * math.Pi
			x := float32(math.Sin(phi) * math.Sin(theta))
			y := float32(math.Cos(phi))
			z := float32(math.Sin(phi) * math.Cos(theta))
			m.Vertices = append(m.Vertices, x, y, z, x, y, z, float32(u), float32(v))
		}
	}

	row := uint32(slices + 1)
	for i := 0; i < stacks; i++ {
		for j := 0; j < slices; j++ {
			a := uint32(i)*row + uint32(j)
			b := a + row
			m.Indices = append(m.Indices, a, b, a+1, a+1, b, b+1)
		}
	}
	return m
}
