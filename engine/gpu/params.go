package gpu

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-lightcull/common"
	"github.com/go-gl/mathgl/mgl32"
)

type paramKind int

const (
	kindMat4 paramKind = iota
	kindVec4
	kindVec2
	kindIVec2
	kindIVec4
	kindInt
)

type paramField struct {
	offset int
	kind   paramKind
}

// paramsSize is the byte size of the Params uniform block in prelude.wgsl.
const paramsSize = 336

// paramLayout maps parameter names to their offset in the Params uniform block.
var paramLayout = map[string]paramField{
	"mat":           {0, kindMat4},
	"mvMat":         {64, kindMat4},
	"mvpMat":        {128, kindMat4},
	"normalMat":     {192, kindMat4},
	"colorDiffuse":  {256, kindVec4},
	"metalnessFac":  {272, kindVec2},
	"roughnessFac":  {280, kindVec2},
	"cullingMethod": {288, kindIVec2},
	"viewportSize":  {296, kindVec2},
	"numTiles":      {304, kindIVec4},
	"nearFar":       {320, kindVec2},
	"useNormalTex":  {328, kindInt},
	"useDiffuseTex": {332, kindInt},
}

// textureParams maps sampled-texture parameter names to their group 2 binding.
var textureParams = map[string]int{
	"textureMain":      0,
	"textureDiffuse":   0,
	"textureNormal":    1,
	"textureMetalness": 2,
	"textureRoughness": 3,
}

const numTextureBindings = 4

// encodeParam writes value into the uniform block according to the layout of name.
//
// Parameters:
//   - block: the uniform block, at least paramsSize bytes
//   - name: the parameter name
//   - value: the value to encode
//
// Returns:
//   - error: if name is unknown or value has the wrong type
func encodeParam(block []byte, name string, value any) error {
	f, ok := paramLayout[name]
	if !ok {
		return fmt.Errorf("unknown parameter %q", name)
	}
	buf := block[f.offset:]

	switch f.kind {
	case kindMat4:
		switch v := value.(type) {
		case mgl32.Mat4:
			common.PutFloat32s(buf, v[:]...)
			return nil
		case mgl32.Mat3:
			m := v.Mat4()
			common.PutFloat32s(buf, m[:]...)
			return nil
		}
	case kindVec4:
		switch v := value.(type) {
		case mgl32.Vec4:
			common.PutFloat32s(buf, v[:]...)
			return nil
		case mgl32.Vec3:
			common.PutFloat32s(buf, v[0], v[1], v[2], 1)
			return nil
		case float32:
			common.PutFloat32s(buf, v, v, v, v)
			return nil
		}
	case kindVec2:
		switch v := value.(type) {
		case mgl32.Vec2:
			common.PutFloat32s(buf, v[:]...)
			return nil
		case [2]float32:
			common.PutFloat32s(buf, v[:]...)
			return nil
		}
	case kindIVec2:
		if v, ok := value.([2]int32); ok {
			common.PutInt32s(buf, v[:]...)
			return nil
		}
	case kindIVec4:
		switch v := value.(type) {
		case [4]int32:
			common.PutInt32s(buf, v[:]...)
			return nil
		case [3]int32:
			common.PutInt32s(buf, v[0], v[1], v[2], 0)
			return nil
		}
	case kindInt:
		switch v := value.(type) {
		case int32:
			common.PutInt32s(buf, v)
			return nil
		case int:
			common.PutInt32s(buf, int32(v))
			return nil
		case bool:
			var i int32
			if v {
				i = 1
			}
			common.PutInt32s(buf, i)
			return nil
		}
	}
	return fmt.Errorf("parameter %q: unsupported value type %T", name, value)
}
