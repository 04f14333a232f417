package culling

import (
	"math/rand"
	"testing"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/camera"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

var testParams = camera.Params{Aspect: 16.0 / 9.0, FovY: mgl32.DegToRad(70), Near: 0.1, Far: 100}

func testProjection() mgl32.Mat4 {
	return mgl32.Perspective(testParams.FovY, testParams.Aspect, testParams.Near, testParams.Far)
}

// viewSphere converts a view-space sphere into the clip-space form Intersects takes.
func viewSphere(center mgl32.Vec3, radius float32) (Sphere, float32) {
	clip := testProjection().Mul4x1(center.Vec4(1))
	return Sphere{Center: clip.Vec3(), Radius: radius}, clip.W()
}

// screenPoint projects a view-space point to normalized screen space.
func screenPoint(p mgl32.Vec3) (mgl32.Vec2, float32) {
	clip := testProjection().Mul4x1(p.Vec4(1))
	return mgl32.Vec2{(clip.X()/clip.W() + 1) / 2, (clip.Y()/clip.W() + 1) / 2}, clip.W()
}

func TestIntersects(t *testing.T) {
	full := DepthRange{Near: testParams.Near, Far: testParams.Far}
	center := Rect{Left: 0.45, Bottom: 0.45, Right: 0.55, Top: 0.55}
	corner := Rect{Left: 0, Bottom: 0, Right: 0.1, Top: 0.1}

	tests := []struct {
		name   string
		center mgl32.Vec3
		radius float32
		tile   Rect
		depth  DepthRange
		want   bool
	}{
		{"ahead in centre tile", mgl32.Vec3{0, 0, -10}, 1, center, full, true},
		{"ahead misses corner tile", mgl32.Vec3{0, 0, -10}, 1, corner, full, false},
		{"behind camera", mgl32.Vec3{0, 0, 10}, 1, center, full, false},
		{"beyond far", mgl32.Vec3{0, 0, -150}, 1, center, full, false},
		{"straddles far", mgl32.Vec3{0, 0, -100.5}, 1, center, full, true},
		{"reaches eye plane", mgl32.Vec3{50, 0, -0.5}, 1, corner, full, true},
		{"depth slice before sphere", mgl32.Vec3{0, 0, -10}, 1, center, DepthRange{Near: 1, Far: 8.9}, false},
		{"depth slice touches sphere", mgl32.Vec3{0, 0, -10}, 1, center, DepthRange{Near: 1, Far: 9}, true},
		{"far right misses left tile", mgl32.Vec3{12, 0, -10}, 1, Rect{Left: 0, Bottom: 0, Right: 0.2, Top: 1}, full, false},
		{"large sphere covers corner", mgl32.Vec3{0, 0, -10}, 9, corner, full, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, w := viewSphere(tt.center, tt.radius)
			assert.Equal(t, tt.want, Intersects(testParams, s, w, tt.tile, tt.depth))
		})
	}
}

func TestIntersectsTouchingEdgeOverlaps(t *testing.T) {
	s, w := viewSphere(mgl32.Vec3{1, 0.5, -10}, 1)
	bounds, unbounded := ScreenBounds(testParams, s, w)
	assert.False(t, unbounded)

	full := DepthRange{Near: testParams.Near, Far: testParams.Far}
	touching := Rect{Left: bounds.Right, Bottom: 0, Right: 1, Top: 1}
	assert.True(t, Intersects(testParams, s, w, touching, full))

	beyond := Rect{Left: bounds.Right + 1e-3, Bottom: 0, Right: 1, Top: 1}
	assert.False(t, Intersects(testParams, s, w, beyond, full))
}

func TestIntersectsIsConservative(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const tilesX, tilesY, slices = 16, 9, 8

	for range 200 {
		c := mgl32.Vec3{rng.Float32()*40 - 20, rng.Float32()*20 - 10, -(rng.Float32()*60 + 0.5)}
		r := rng.Float32()*4 + 0.01
		s, w := viewSphere(c, r)

		// Every sampled point of the sphere must land in a region the sphere
		// is reported to intersect.
		for range 20 {
			dir := mgl32.Vec3{rng.Float32()*2 - 1, rng.Float32()*2 - 1, rng.Float32()*2 - 1}
			if dir.Len() > 1 || dir.Len() == 0 {
				continue
			}
			p := c.Add(dir.Mul(r))
			uv, depth := screenPoint(p)
			if depth <= testParams.Near || depth >= testParams.Far || uv.X() < 0 || uv.X() >= 1 || uv.Y() < 0 || uv.Y() >= 1 {
				continue
			}
			x, y := int(uv.X()*tilesX), int(uv.Y()*tilesY)
			for k := range slices {
				d := SliceDepth(k, slices, testParams.Near, testParams.Far)
				if depth < d.Near || depth > d.Far {
					continue
				}
				assert.True(t, Intersects(testParams, s, w, TileRect(x, y, tilesX, tilesY), d),
					"sphere %v r=%v point %v tile (%d,%d) slice %d", c, r, p, x, y, k)
			}
		}
	}
}

func TestVolumeTestMatchesIntersects(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for range 500 {
		c := mgl32.Vec3{rng.Float32()*40 - 20, rng.Float32()*20 - 10, rng.Float32()*120 - 110}
		s, w := viewSphere(c, rng.Float32()*5)
		v := Volume{Sphere: s, W: w}
		v.Bounds, v.Unbounded = ScreenBounds(testParams, s, w)

		tile := TileRect(rng.Intn(8), rng.Intn(8), 8, 8)
		depth := SliceDepth(rng.Intn(4), 4, testParams.Near, testParams.Far)
		assert.Equal(t, Intersects(testParams, s, w, tile, depth), v.Test(tile, depth))
	}
}

func TestSliceDepthIsExponentialAndContiguous(t *testing.T) {
	const n = 4
	prev := float32(1)
	for k := range n {
		d := SliceDepth(k, n, 1, 10000)
		assert.Equal(t, prev, d.Near)
		assert.InDelta(t, d.Near*10, d.Far, float64(1e-2*d.Far))
		prev = d.Far
	}
	assert.InDelta(t, 10000, prev, 1e-1)
	assert.Equal(t, DepthRange{Near: 0.1, Far: 100}, SliceDepth(0, 1, 0.1, 100))
}

func TestTileRect(t *testing.T) {
	assert.Equal(t, Rect{Left: 0.25, Bottom: 0.5, Right: 0.5, Top: 1}, TileRect(1, 1, 4, 2))
}
