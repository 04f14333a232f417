package material

import (
	"github.com/Carmen-Shannon/oxy-lightcull/engine/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

type material struct {
	name             string
	baseColor        mgl32.Vec4
	metalness        float32
	roughness        float32
	diffuseTexture   gpu.Texture
	normalTexture    gpu.Texture
	metalnessTexture gpu.Texture
	roughnessTexture gpu.Texture
	wireframe        bool
}

// Material defines the surface properties bound before each draw: a base
// colour, metalness and roughness factors, optional textures and a wireframe
// toggle. Textures are device handles uploaded ahead of time.
type Material interface {
	// Name retrieves the material identifier.
	//
	// Returns:
	//   - string: the name of the material
	Name() string

	// BaseColor retrieves the albedo RGBA colour.
	//
	// Returns:
	//   - mgl32.Vec4: the base colour
	BaseColor() mgl32.Vec4

	// Metalness retrieves the metalness factor (0 dielectric, 1 metal).
	//
	// Returns:
	//   - float32: the metalness factor
	Metalness() float32

	// Roughness retrieves the roughness factor (0 smooth, 1 rough).
	//
	// Returns:
	//   - float32: the roughness factor
	Roughness() float32

	// DiffuseTexture retrieves the albedo texture, or nil.
	DiffuseTexture() gpu.Texture

	// NormalTexture retrieves the tangent-space normal map, or nil.
	NormalTexture() gpu.Texture

	// MetalnessTexture retrieves the metalness map, or nil.
	MetalnessTexture() gpu.Texture

	// RoughnessTexture retrieves the roughness map, or nil.
	RoughnessTexture() gpu.Texture

	// Wireframe reports whether geometry using this material draws as lines.
	Wireframe() bool

	// SetBaseColor replaces the base colour.
	//
	// Parameters:
	//   - c: the new RGBA colour
	SetBaseColor(c mgl32.Vec4)

	// SetWireframe toggles line rendering.
	//
	// Parameters:
	//   - enabled: true to draw edges only
	SetWireframe(enabled bool)
}

var _ Material = &material{}

// NewMaterial creates a new Material configured with the provided options.
// Defaults are white, metalness 0 and roughness 1.
//
// Parameters:
//   - options: variadic list of MaterialBuilderOption functions
//
// Returns:
//   - Material: a new Material instance
func NewMaterial(options ...MaterialBuilderOption) Material {
	m := &material{
		baseColor: mgl32.Vec4{1, 1, 1, 1},
		metalness: 0.0,
		roughness: 1.0,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *material) Name() string {
	return m.name
}

func (m *material) BaseColor() mgl32.Vec4 {
	return m.baseColor
}

func (m *material) Metalness() float32 {
	return m.metalness
}

func (m *material) Roughness() float32 {
	return m.roughness
}

func (m *material) DiffuseTexture() gpu.Texture {
	return m.diffuseTexture
}

func (m *material) NormalTexture() gpu.Texture {
	return m.normalTexture
}

func (m *material) MetalnessTexture() gpu.Texture {
	return m.metalnessTexture
}

func (m *material) RoughnessTexture() gpu.Texture {
	return m.roughnessTexture
}

func (m *material) Wireframe() bool {
	return m.wireframe
}

func (m *material) SetBaseColor(c mgl32.Vec4) {
	m.baseColor = c
}

func (m *material) SetWireframe(enabled bool) {
	m.wireframe = enabled
}
