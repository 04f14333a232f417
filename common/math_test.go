package common

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestFullscreenQuadMatrix(t *testing.T) {
	m := FullscreenQuadMatrix()

	corners := []struct {
		in, want mgl32.Vec2
	}{
		{mgl32.Vec2{0, 0}, mgl32.Vec2{-1, -1}},
		{mgl32.Vec2{1, 0}, mgl32.Vec2{1, -1}},
		{mgl32.Vec2{0, 1}, mgl32.Vec2{-1, 1}},
		{mgl32.Vec2{1, 1}, mgl32.Vec2{1, 1}},
	}
	for _, c := range corners {
		got := m.Mul4x1(mgl32.Vec4{c.in.X(), c.in.Y(), 0, 1})
		assert.InDelta(t, c.want.X(), got.X(), 1e-6)
		assert.InDelta(t, c.want.Y(), got.Y(), 1e-6)
		assert.Equal(t, float32(0), got.Z())
		assert.Equal(t, float32(1), got.W())
	}
}

func TestNormalMatrixMatchesModelViewForRigidTransforms(t *testing.T) {
	mv := mgl32.Translate3D(1, 2, 3).Mul4(mgl32.HomogRotate3DY(0.7))
	n := NormalMatrix(mv)

	// For rotations the normal matrix equals the rotation part.
	for r := range 3 {
		for c := range 3 {
			assert.InDelta(t, mv.At(r, c), n.At(r, c), 1e-5, "element (%d,%d)", r, c)
		}
	}
}

func TestGammaPreCorrect(t *testing.T) {
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, GammaPreCorrect(mgl32.Vec3{0, 0, 0}))

	// Tone curve y = (x/(x+1))^(1/2.2) must return the input colour.
	in := mgl32.Vec3{0.1, 0.12, 0.2}
	out := GammaPreCorrect(in)
	for i := range 3 {
		x := float64(out[i])
		y := math.Pow(x/(x+1), 1/2.2)
		assert.InDelta(t, float64(in[i]), y, 1e-3)
	}
}

func TestPutFloat32sLittleEndian(t *testing.T) {
	buf := make([]byte, 8)
	PutFloat32s(buf, 1, -2)
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0xc0}, buf)

	PutInt32s(buf, 7, -1)
	assert.Equal(t, []byte{7, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}, buf)
}

func TestSphereMatrix(t *testing.T) {
	m := SphereMatrix(mgl32.Vec3{1, 2, 3}, 2)
	p := m.Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.Equal(t, mgl32.Vec4{3, 2, 3, 1}, p)
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(0), AlignUp(0, 256))
	assert.Equal(t, uint64(256), AlignUp(1, 256))
	assert.Equal(t, uint64(512), AlignUp(257, 256))
	assert.Equal(t, uint64(16), AlignUp(16, 4))
}
