package culling

import (
	"math"

	"github.com/Carmen-Shannon/oxy-lightcull/common"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/camera"
	"github.com/go-gl/mathgl/mgl32"
)

// eyePlaneEpsilon is the depth at which a sphere is considered to reach the
// eye plane. Its screen footprint is then unbounded.
const eyePlaneEpsilon = 1e-4

// ProjectionParams are the perspective parameters of the frame's camera.
type ProjectionParams = camera.Params

// Sphere is a light volume with its centre in clip space (before the
// perspective divide).
type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

// Rect is a screen region in normalized coordinates, [0,1]² with the origin
// at the bottom left.
type Rect struct {
	Left, Bottom, Right, Top float32
}

// DepthRange is a range of view-space depth (distance along the view axis).
type DepthRange struct {
	Near, Far float32
}

// TileRect returns the normalized rectangle of tile (x, y) in a grid of
// tilesX by tilesY tiles.
func TileRect(x, y, tilesX, tilesY int) Rect {
	return Rect{
		Left:   float32(x) / float32(tilesX),
		Bottom: float32(y) / float32(tilesY),
		Right:  float32(x+1) / float32(tilesX),
		Top:    float32(y+1) / float32(tilesY),
	}
}

// SliceDepth returns the view-space depth range of slice k out of n, with
// slices spaced exponentially between near and far:
// [near*(far/near)^(k/n), near*(far/near)^((k+1)/n)].
func SliceDepth(k, n int, near, far float32) DepthRange {
	if n <= 1 || near <= 0 || far <= near {
		return DepthRange{Near: near, Far: far}
	}
	ratio := float64(far) / float64(near)
	return DepthRange{
		Near: near * float32(math.Pow(ratio, float64(k)/float64(n))),
		Far:  near * float32(math.Pow(ratio, float64(k+1)/float64(n))),
	}
}

// Intersects reports whether a light sphere may touch a screen tile within a
// depth range. The test is conservative: it never rejects a sphere that
// overlaps the region, and touching edges count as overlap.
//
// Parameters:
//   - proj: the camera's perspective parameters
//   - s: the sphere with a clip-space centre
//   - w: the clip w of the centre (view-space depth)
//   - tile: the screen region
//   - depth: the view-space depth range
//
// Returns:
//   - bool: false only if the sphere is certainly outside the region
func Intersects(proj ProjectionParams, s Sphere, w float32, tile Rect, depth DepthRange) bool {
	if !depthOverlaps(s.Radius, w, depth) {
		return false
	}
	bounds, unbounded := ScreenBounds(proj, s, w)
	return unbounded || bounds.Overlaps(tile)
}

// depthOverlaps reports whether [w-r, w+r] touches the depth range.
func depthOverlaps(r, w float32, depth DepthRange) bool {
	return w+r >= depth.Near && w-r <= depth.Far
}

// ScreenBounds returns a conservative normalized screen rectangle enclosing
// the projection of a sphere. For each axis it takes the extremes of
// coordinate/depth over the sphere's view-space bounding box with depth in
// [w-r, w+r], which stays conservative at any field of view.
//
// Parameters:
//   - proj: the camera's perspective parameters
//   - s: the sphere with a clip-space centre
//   - w: the clip w of the centre
//
// Returns:
//   - Rect: the enclosing rectangle (may extend past [0,1])
//   - bool: true if the sphere reaches the eye plane and covers the whole screen
func ScreenBounds(proj ProjectionParams, s Sphere, w float32) (Rect, bool) {
	r := s.Radius
	if w-r <= eyePlaneEpsilon {
		return Rect{}, true
	}
	sy := common.ProjectionScale(proj.FovY)
	sx := sy / proj.Aspect
	if !finitePositive(sx) || !finitePositive(sy) {
		return Rect{}, true
	}

	// Back to view space, then the extremes of x/depth over the sphere's box.
	near, far := w-r, w+r
	minX, maxX := projectedRange(s.Center.X()/sx, r, near, far)
	minY, maxY := projectedRange(s.Center.Y()/sy, r, near, far)
	return Rect{
		Left:   (minX*sx + 1) / 2,
		Bottom: (minY*sy + 1) / 2,
		Right:  (maxX*sx + 1) / 2,
		Top:    (maxY*sy + 1) / 2,
	}, false
}

// Overlaps reports whether two rectangles overlap. Touching edges overlap.
func (r Rect) Overlaps(o Rect) bool {
	return r.Right >= o.Left && r.Left <= o.Right && r.Top >= o.Bottom && r.Bottom <= o.Top
}

// projectedRange returns the smallest and largest value of v/d for v in
// [c-r, c+r] and d in [near, far], near > 0.
func projectedRange(c, r, near, far float32) (lo, hi float32) {
	if c+r >= 0 {
		hi = (c + r) / near
	} else {
		hi = (c + r) / far
	}
	if c-r >= 0 {
		lo = (c - r) / far
	} else {
		lo = (c - r) / near
	}
	return lo, hi
}

func finitePositive(v float32) bool {
	return v > 0 && !math.IsInf(float64(v), 0) && !math.IsNaN(float64(v))
}
