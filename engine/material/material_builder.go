package material

import (
	"github.com/Carmen-Shannon/oxy-lightcull/engine/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

// MaterialBuilderOption is a functional option for configuring a Material during construction.
type MaterialBuilderOption func(*material)

// WithName sets the material identifier.
//
// Parameters:
//   - name: the name of the material
//
// Returns:
//   - MaterialBuilderOption: a function that applies the name option
func WithName(name string) MaterialBuilderOption {
	return func(m *material) {
		m.name = name
	}
}

// WithBaseColor sets the albedo RGBA colour.
//
// Parameters:
//   - c: the base colour
//
// Returns:
//   - MaterialBuilderOption: a function that applies the colour option
func WithBaseColor(c mgl32.Vec4) MaterialBuilderOption {
	return func(m *material) {
		m.baseColor = c
	}
}

// WithMetalness sets the metalness factor, clamped to [0, 1].
func WithMetalness(v float32) MaterialBuilderOption {
	return func(m *material) {
		m.metalness = mgl32.Clamp(v, 0, 1)
	}
}

// WithRoughness sets the roughness factor, clamped to [0, 1].
func WithRoughness(v float32) MaterialBuilderOption {
	return func(m *material) {
		m.roughness = mgl32.Clamp(v, 0, 1)
	}
}

// WithDiffuseTexture sets the albedo texture.
func WithDiffuseTexture(t gpu.Texture) MaterialBuilderOption {
	return func(m *material) {
		m.diffuseTexture = t
	}
}

// WithNormalTexture sets the normal map.
func WithNormalTexture(t gpu.Texture) MaterialBuilderOption {
	return func(m *material) {
		m.normalTexture = t
	}
}

// WithMetalnessTexture sets the metalness map.
func WithMetalnessTexture(t gpu.Texture) MaterialBuilderOption {
	return func(m *material) {
		m.metalnessTexture = t
	}
}

// WithRoughnessTexture sets the roughness map.
func WithRoughnessTexture(t gpu.Texture) MaterialBuilderOption {
	return func(m *material) {
		m.roughnessTexture = t
	}
}

// WithWireframe draws geometry using the material as lines.
func WithWireframe(enabled bool) MaterialBuilderOption {
	return func(m *material) {
		m.wireframe = enabled
	}
}
