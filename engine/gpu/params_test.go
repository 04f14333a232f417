package gpu

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readF32(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

func readI32(b []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(b[off:]))
}

func TestEncodeParamOffsets(t *testing.T) {
	block := make([]byte, paramsSize)

	require.NoError(t, encodeParam(block, "mvpMat", mgl32.Translate3D(1, 2, 3)))
	assert.Equal(t, float32(1), readF32(block, 128+12*4))
	assert.Equal(t, float32(3), readF32(block, 128+14*4))

	require.NoError(t, encodeParam(block, "cullingMethod", [2]int32{4, 0}))
	assert.Equal(t, int32(4), readI32(block, 288))

	require.NoError(t, encodeParam(block, "numTiles", [3]int32{80, 45, 32}))
	assert.Equal(t, int32(45), readI32(block, 308))
	assert.Equal(t, int32(32), readI32(block, 312))
	assert.Equal(t, int32(0), readI32(block, 316))

	require.NoError(t, encodeParam(block, "colorDiffuse", mgl32.Vec3{0.5, 0.25, 1}))
	assert.Equal(t, float32(1), readF32(block, 256+12), "vec3 is widened with w = 1")

	require.NoError(t, encodeParam(block, "useDiffuseTex", true))
	assert.Equal(t, int32(1), readI32(block, 332))

	require.NoError(t, encodeParam(block, "nearFar", mgl32.Vec2{0.1, 100}))
	assert.Equal(t, float32(100), readF32(block, 324))
}

func TestEncodeParamErrors(t *testing.T) {
	block := make([]byte, paramsSize)
	assert.Error(t, encodeParam(block, "nope", 1))
	assert.Error(t, encodeParam(block, "mat", mgl32.Vec4{}))
	assert.Error(t, encodeParam(block, "cullingMethod", 3))
}

func TestParamLayoutFitsBlock(t *testing.T) {
	sizes := map[paramKind]int{kindMat4: 64, kindVec4: 16, kindVec2: 8, kindIVec2: 8, kindIVec4: 16, kindInt: 4}
	for name, f := range paramLayout {
		assert.LessOrEqual(t, f.offset+sizes[f.kind], paramsSize, name)
	}
}
