package culling

import (
	"math"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/light"
	"github.com/go-gl/mathgl/mgl32"
)

// Volume is the per-frame culling state of one light.
type Volume struct {
	Sphere Sphere
	W      float32

	// PassThrough is set for non-point lights. They pass every test.
	PassThrough bool

	// Bounds is the conservative screen rectangle of the sphere, valid
	// unless Unbounded is set.
	Bounds    Rect
	Unbounded bool
}

// rank orders lights for the nearest-first cap: non-point lights first,
// then by view depth.
func (v Volume) rank() float32 {
	if v.PassThrough {
		return float32(math.Inf(-1))
	}
	return v.W
}

// TestDepth reports whether the volume may reach the depth range.
func (v Volume) TestDepth(depth DepthRange) bool {
	return v.PassThrough || depthOverlaps(v.Sphere.Radius, v.W, depth)
}

// TestRows reports whether the volume may reach the rows spanned by tile.
func (v Volume) TestRows(tile Rect) bool {
	return v.PassThrough || v.Unbounded || (v.Bounds.Top >= tile.Bottom && v.Bounds.Bottom <= tile.Top)
}

// TestColumns reports whether the volume may reach the columns spanned by tile.
func (v Volume) TestColumns(tile Rect) bool {
	return v.PassThrough || v.Unbounded || (v.Bounds.Right >= tile.Left && v.Bounds.Left <= tile.Right)
}

// Test is equivalent to Intersects on the cached volume, with non-point
// lights always passing.
func (v Volume) Test(tile Rect, depth DepthRange) bool {
	return v.TestDepth(depth) && v.TestRows(tile) && v.TestColumns(tile)
}

// VolumeCache holds the volume of every light for the current frame. It is
// rebuilt every frame and reuses its storage.
type VolumeCache struct {
	volumes []Volume
}

// Build computes the clip-space volume and screen bounds of each light.
//
// Parameters:
//   - lights: the frame's light instances
//   - viewProj: projection * view
//   - proj: the camera's perspective parameters
func (c *VolumeCache) Build(lights []light.Instance, viewProj mgl32.Mat4, proj ProjectionParams) {
	c.volumes = c.volumes[:0]
	for _, inst := range lights {
		if inst.Light.Type != light.TypePoint {
			c.volumes = append(c.volumes, Volume{PassThrough: true})
			continue
		}
		center, radius := inst.BoundingSphere()
		clip := viewProj.Mul4x1(center.Vec4(1))
		v := Volume{
			Sphere: Sphere{Center: clip.Vec3(), Radius: radius},
			W:      clip.W(),
		}
		v.Bounds, v.Unbounded = ScreenBounds(proj, v.Sphere, v.W)
		c.volumes = append(c.volumes, v)
	}
}

// Len returns the number of cached volumes.
func (c *VolumeCache) Len() int {
	return len(c.volumes)
}

// At returns the volume of light i.
func (c *VolumeCache) At(i int) Volume {
	return c.volumes[i]
}
