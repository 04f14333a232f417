package light

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Type identifies the kind of light source. The values are written to the GPU
// light record and must match the shader constants.
type Type int32

const (
	// TypeNone is a disabled light. It is uploaded but contributes nothing.
	TypeNone Type = iota

	// TypeDirectional has no position, only a direction. It affects every
	// fragment and every partition.
	TypeDirectional

	// TypePoint emits in all directions from its position and is the only type
	// the partition tests cull.
	TypePoint

	// TypeSpot emits in a cone along its direction. It is treated like a
	// directional light by the partition tests.
	TypeSpot
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeDirectional:
		return "directional"
	case TypePoint:
		return "point"
	case TypeSpot:
		return "spot"
	default:
		return fmt.Sprintf("type(%d)", int32(t))
	}
}

const (
	// CutoffLuminance is the brightness at which a light's bounding sphere ends.
	CutoffLuminance float32 = 1.0 / 256.0

	// MaxBoundingRadius bounds the sphere of a light whose attenuation never
	// reaches CutoffLuminance.
	MaxBoundingRadius float32 = 1e4
)

// Light is the tagged light record attached to a scene node. Position is not
// stored; it comes from the node's world transform every frame.
type Light struct {
	Type Type

	// Direction is the local-space direction for directional and spot lights.
	Direction mgl32.Vec3

	// InnerOuter holds the spot cone inner and outer angles in radians.
	InnerOuter mgl32.Vec2

	// Color is linear RGB and may exceed 1.
	Color mgl32.Vec3

	// Attenuation holds the constant, linear and quadratic coefficients.
	Attenuation mgl32.Vec3
}

// NewLight creates a light of the given type. Defaults are white, pointing
// down -Y, with attenuation (1, 0, 1).
//
// Parameters:
//   - t: the light type
//   - options: functional options applied after the defaults
//
// Returns:
//   - Light: the light record
func NewLight(t Type, options ...LightBuilderOption) Light {
	l := Light{
		Type:        t,
		Direction:   mgl32.Vec3{0, -1, 0},
		Color:       mgl32.Vec3{1, 1, 1},
		Attenuation: mgl32.Vec3{1, 0, 1},
	}
	for _, option := range options {
		option(&l)
	}
	return l
}

// BoundingRadius returns the distance at which the attenuated brightness
// max(Color) / (c + l*d + q*d^2) drops to CutoffLuminance.
//
// A light already below the cutoff at distance zero gets radius 0. A light
// whose attenuation never grows gets MaxBoundingRadius.
//
// Returns:
//   - float32: the bounding sphere radius in world units
func (l Light) BoundingRadius() float32 {
	brightness := max(l.Color.X(), l.Color.Y(), l.Color.Z())
	if brightness <= 0 {
		return 0
	}
	c, lin, q := l.Attenuation.X(), l.Attenuation.Y(), l.Attenuation.Z()
	target := brightness / CutoffLuminance
	if c >= target {
		return 0
	}

	var d float64
	switch {
	case q > 0:
		disc := float64(lin)*float64(lin) - 4*float64(q)*float64(c-target)
		d = (-float64(lin) + math.Sqrt(disc)) / (2 * float64(q))
	case lin > 0:
		d = float64(target-c) / float64(lin)
	default:
		return MaxBoundingRadius
	}
	return min(float32(d), MaxBoundingRadius)
}

// Instance is a light placed in the world for one frame.
type Instance struct {
	Light Light
	World mgl32.Mat4
}

// Position returns the world-space position, the translation of World.
func (i Instance) Position() mgl32.Vec3 {
	return i.World.Col(3).Vec3()
}

// WorldDirection returns the normalized world-space direction. A zero local
// direction stays zero.
func (i Instance) WorldDirection() mgl32.Vec3 {
	return safeNormalize(i.World.Mul4x1(i.Light.Direction.Vec4(0)).Vec3())
}

// BoundingSphere returns the world-space centre and radius.
func (i Instance) BoundingSphere() (mgl32.Vec3, float32) {
	return i.Position(), i.Light.BoundingRadius()
}

func safeNormalize(v mgl32.Vec3) mgl32.Vec3 {
	if v.Len() < 1e-12 {
		return mgl32.Vec3{}
	}
	return v.Normalize()
}
