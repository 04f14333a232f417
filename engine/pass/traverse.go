package pass

import (
	"github.com/Carmen-Shannon/oxy-lightcull/common"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/game_object"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/gpu"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/material"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// traverse emits one draw per enabled node with a mesh, parents before
// children, using the camera frozen in f. With materials set, each draw
// binds its material and switches to wireframe when the material asks.
func (o *orchestrator) traverse(f *frameState, base gpu.RasterState, materials bool) {
	if f.scene == nil {
		return
	}
	view, proj := f.cam.View, f.cam.Projection
	current := base

	f.scene.Walk(func(_ scene.Handle, obj game_object.GameObject, world mgl32.Mat4) bool {
		mesh := obj.Mesh()
		if mesh == nil {
			return true
		}
		mv := view.Mul4(world)
		o.dev.SetParam("mvMat", mv)
		o.dev.SetParam("normalMat", common.NormalMatrix(mv))
		o.dev.SetParam("mvpMat", proj.Mul4(mv))

		if materials {
			wireframe := o.bindMaterial(obj.Material())
			if wireframe != current.Wireframe {
				current.Wireframe = wireframe
				o.dev.SetRaster(current)
			}
		}
		o.dev.Draw(mesh)
		f.stats.MeshDraws++
		return true
	})

	if current != base {
		o.dev.SetRaster(base)
	}
}

// bindMaterial sets the surface parameters of m and reports whether it draws
// as wireframe. A nil material binds plain white.
func (o *orchestrator) bindMaterial(m material.Material) bool {
	if m == nil {
		o.dev.SetParam("colorDiffuse", mgl32.Vec4{1, 1, 1, 1})
		o.dev.SetParam("metalnessFac", mgl32.Vec2{0, 1})
		o.dev.SetParam("roughnessFac", mgl32.Vec2{1, 1})
		o.dev.SetParam("useDiffuseTex", false)
		o.dev.SetParam("useNormalTex", false)
		o.dev.SetParam("textureDiffuse", nil)
		o.dev.SetParam("textureNormal", nil)
		o.dev.SetParam("textureMetalness", nil)
		o.dev.SetParam("textureRoughness", nil)
		return false
	}

	o.dev.SetParam("colorDiffuse", m.BaseColor())
	o.dev.SetParam("metalnessFac", mgl32.Vec2{m.Metalness(), missing(m.MetalnessTexture())})
	o.dev.SetParam("roughnessFac", mgl32.Vec2{m.Roughness(), missing(m.RoughnessTexture())})
	o.dev.SetParam("useDiffuseTex", m.DiffuseTexture() != nil)
	o.dev.SetParam("useNormalTex", m.NormalTexture() != nil)
	o.dev.SetParam("textureDiffuse", m.DiffuseTexture())
	o.dev.SetParam("textureNormal", m.NormalTexture())
	o.dev.SetParam("textureMetalness", m.MetalnessTexture())
	o.dev.SetParam("textureRoughness", m.RoughnessTexture())
	return m.Wireframe()
}

// missing is 1 without a texture and 0 with one; shaders mix the sampled
// value toward 1 by this amount.
func missing(t gpu.Texture) float32 {
	if t == nil {
		return 1
	}
	return 0
}
