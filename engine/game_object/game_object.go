package game_object

import (
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/gpu"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/light"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/material"
	"github.com/go-gl/mathgl/mgl32"
)

type gameObject struct {
	name          string
	enabled       atomic.Bool
	mesh          gpu.Mesh
	mat           material.Material
	attachedLight *light.Light

	position mgl32.Vec3
	rotation mgl32.Vec3
	scale    mgl32.Vec3

	// local overrides position/rotation/scale when set.
	local    mgl32.Mat4
	hasLocal bool
}

// GameObject is the payload of a scene node: a local transform plus an
// optional drawable, material and light. Disabled objects are skipped along
// with their whole subtree.
type GameObject interface {
	// Name returns the debug name.
	//
	// Returns:
	//   - string: the name
	Name() string

	// Enabled returns whether this object and its children are rendered.
	//
	// Returns:
	//   - bool: true if enabled
	Enabled() bool

	// Mesh returns the drawable, or nil for transform-only nodes.
	//
	// Returns:
	//   - gpu.Mesh: the mesh or nil
	Mesh() gpu.Mesh

	// Material returns the material, or nil.
	//
	// Returns:
	//   - material.Material: the material or nil
	Material() material.Material

	// Light returns the attached light, or nil.
	//
	// Returns:
	//   - *light.Light: the attached light or nil
	Light() *light.Light

	// Position returns the local translation.
	Position() mgl32.Vec3

	// Rotation returns the local Euler rotation (radians, applied X then Y then Z).
	Rotation() mgl32.Vec3

	// Scale returns the local scale.
	Scale() mgl32.Vec3

	// LocalTransform returns the matrix relative to the parent node:
	// translate * rotateZ * rotateY * rotateX * scale, or the explicit matrix
	// set through SetLocalTransform.
	//
	// Returns:
	//   - mgl32.Mat4: the local matrix
	LocalTransform() mgl32.Mat4

	SetName(name string)
	SetEnabled(enabled bool)
	SetMesh(m gpu.Mesh)
	SetMaterial(m material.Material)

	// SetLight attaches a light. The light's position is taken from the
	// node's world transform every frame. Pass nil to detach.
	//
	// Parameters:
	//   - l: the light, or nil
	SetLight(l *light.Light)

	SetPosition(p mgl32.Vec3)
	SetRotation(r mgl32.Vec3)
	SetScale(s mgl32.Vec3)

	// SetLocalTransform replaces the composed transform with m until one of
	// SetPosition, SetRotation or SetScale is called.
	//
	// Parameters:
	//   - m: the local matrix
	SetLocalTransform(m mgl32.Mat4)
}

var _ GameObject = &gameObject{}

// NewGameObject creates a new enabled GameObject at the origin with unit
// scale, configured with the given options.
//
// Parameters:
//   - options: functional options to configure the object
//
// Returns:
//   - GameObject: the newly created object
func NewGameObject(options ...GameObjectBuilderOption) GameObject {
	obj := &gameObject{
		scale: mgl32.Vec3{1, 1, 1},
	}
	obj.enabled.Store(true)
	for _, option := range options {
		option(obj)
	}
	return obj
}

func (g *gameObject) Name() string {
	return g.name
}

func (g *gameObject) Enabled() bool {
	return g.enabled.Load()
}

func (g *gameObject) Mesh() gpu.Mesh {
	return g.mesh
}

func (g *gameObject) Material() material.Material {
	return g.mat
}

func (g *gameObject) Light() *light.Light {
	return g.attachedLight
}

func (g *gameObject) Position() mgl32.Vec3 {
	return g.position
}

func (g *gameObject) Rotation() mgl32.Vec3 {
	return g.rotation
}

func (g *gameObject) Scale() mgl32.Vec3 {
	return g.scale
}

func (g *gameObject) LocalTransform() mgl32.Mat4 {
	if g.hasLocal {
		return g.local
	}
	t := mgl32.Translate3D(g.position.X(), g.position.Y(), g.position.Z())
	r := mgl32.HomogRotate3DZ(g.rotation.Z()).
		Mul4(mgl32.HomogRotate3DY(g.rotation.Y())).
		Mul4(mgl32.HomogRotate3DX(g.rotation.X()))
	s := mgl32.Scale3D(g.scale.X(), g.scale.Y(), g.scale.Z())
	return t.Mul4(r).Mul4(s)
}

func (g *gameObject) SetName(name string) {
	g.name = name
}

func (g *gameObject) SetEnabled(enabled bool) {
	g.enabled.Store(enabled)
}

func (g *gameObject) SetMesh(m gpu.Mesh) {
	g.mesh = m
}

func (g *gameObject) SetMaterial(m material.Material) {
	g.mat = m
}

func (g *gameObject) SetLight(l *light.Light) {
	g.attachedLight = l
}

func (g *gameObject) SetPosition(p mgl32.Vec3) {
	g.position = p
	g.hasLocal = false
}

func (g *gameObject) SetRotation(r mgl32.Vec3) {
	g.rotation = r
	g.hasLocal = false
}

func (g *gameObject) SetScale(s mgl32.Vec3) {
	g.scale = s
	g.hasLocal = false
}

func (g *gameObject) SetLocalTransform(m mgl32.Mat4) {
	g.local = m
	g.hasLocal = true
}
