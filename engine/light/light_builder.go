package light

import "github.com/go-gl/mathgl/mgl32"

// LightBuilderOption is a function that configures a Light during construction.
type LightBuilderOption func(*Light)

// WithDirection sets the local direction of the light. The direction is
// normalized before storing; a zero vector is kept as zero.
//
// Parameters:
//   - dir: the direction
//
// Returns:
//   - LightBuilderOption: a function that applies the direction option
func WithDirection(dir mgl32.Vec3) LightBuilderOption {
	return func(l *Light) {
		l.Direction = safeNormalize(dir)
	}
}

// WithColor sets the linear RGB color of the light.
//
// Parameters:
//   - color: the color
//
// Returns:
//   - LightBuilderOption: a function that applies the color option
func WithColor(color mgl32.Vec3) LightBuilderOption {
	return func(l *Light) {
		l.Color = color
	}
}

// WithAttenuation sets the constant, linear and quadratic attenuation coefficients.
//
// Parameters:
//   - constant: the constant term
//   - linear: the linear term
//   - quadratic: the quadratic term
//
// Returns:
//   - LightBuilderOption: a function that applies the attenuation option
func WithAttenuation(constant, linear, quadratic float32) LightBuilderOption {
	return func(l *Light) {
		l.Attenuation = mgl32.Vec3{constant, linear, quadratic}
	}
}

// WithConeAngles sets the spot cone inner and outer angles in radians.
func WithConeAngles(inner, outer float32) LightBuilderOption {
	return func(l *Light) {
		l.InnerOuter = mgl32.Vec2{inner, outer}
	}
}
