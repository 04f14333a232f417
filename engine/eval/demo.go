package eval

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/camera"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/game_object"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/gpu"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/light"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/material"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// DemoOptions describes the generated evaluation scene.
type DemoOptions struct {
	Lights int
	Seed   int64
	// Bounds draws each light's bounding sphere as a wireframe child.
	Bounds bool
}

// Demo attenuation gives each light a bounding radius of about 3 units.
var demoAttenuation = mgl32.Vec3{1, 0, 30}

// DemoScene builds the evaluation scene: a ground plane, a ring of pillars
// and opt.Lights random point lights in [-10,10]x[0,5]x[-10,10], each with a
// small sphere marking its position. The same seed always produces the same
// scene.
//
// Parameters:
//   - dev: the device meshes are uploaded to
//   - opt: light count, seed and debug options
//
// Returns:
//   - scene.Scene: the scene with an active camera
//   - camera.Camera: the active camera
//   - error: if a mesh upload fails
func DemoScene(dev gpu.Device, opt DemoOptions) (scene.Scene, camera.Camera, error) {
	quad, err := dev.UploadMesh("ground", gpu.QuadMesh())
	if err != nil {
		return nil, nil, fmt.Errorf("demo scene: %w", err)
	}
	sphere, err := dev.UploadMesh("sphere", gpu.SphereMesh(8, 12))
	if err != nil {
		return nil, nil, fmt.Errorf("demo scene: %w", err)
	}

	cam := camera.NewCamera(
		camera.WithFov(mgl32.DegToRad(70)),
		camera.WithAspect(1280.0/720.0),
		camera.WithClip(0.1, 100),
		camera.WithLookAt(mgl32.Vec3{0, 4, 16}, mgl32.Vec3{0, 1, 0}),
	)
	s := scene.NewScene(
		scene.WithCamera(cam),
		scene.WithBackground(mgl32.Vec3{0.5, 0.6, 1.0}.Mul(0.2)),
	)

	// The unit quad spans [0,1]^2 in xy; lay it flat and centre it.
	ground := game_object.NewGameObject(
		game_object.WithName("ground"),
		game_object.WithMesh(quad),
		game_object.WithMaterial(material.NewMaterial(
			material.WithName("ground"),
			material.WithBaseColor(mgl32.Vec4{0.6, 0.6, 0.6, 1}),
			material.WithRoughness(0.8),
		)),
		game_object.WithLocalTransform(
			mgl32.Translate3D(-12, 0, 12).
				Mul4(mgl32.HomogRotate3DX(-mgl32.DegToRad(90))).
				Mul4(mgl32.Scale3D(24, 24, 1)),
		),
	)
	s.Add(s.Root(), ground)

	stone := material.NewMaterial(
		material.WithName("stone"),
		material.WithBaseColor(mgl32.Vec4{0.8, 0.75, 0.7, 1}),
		material.WithMetalness(0.1),
		material.WithRoughness(0.6),
	)
	for i := range 8 {
		a := float64(i) * 2 * math.Pi / 8
		pillar := game_object.NewGameObject(
			game_object.WithName(fmt.Sprintf("pillar-%d", i)),
			game_object.WithMesh(sphere),
			game_object.WithMaterial(stone),
			game_object.WithPosition(mgl32.Vec3{7 * float32(math.Cos(a)), 1.5, 7 * float32(math.Sin(a))}),
			game_object.WithScale(mgl32.Vec3{0.6, 1.5, 0.6}),
		)
		s.Add(s.Root(), pillar)
	}

	marker := material.NewMaterial(material.WithName("light-marker"))
	rng := rand.New(rand.NewSource(opt.Seed))
	for i := range max(opt.Lights, 0) {
		pos := mgl32.Vec3{
			10 * (2*rng.Float32() - 1),
			5 * rng.Float32(),
			10 * (2*rng.Float32() - 1),
		}
		color := mgl32.Vec3{rng.Float32(), rng.Float32(), rng.Float32()}
		if color.Len() > 0 {
			color = color.Normalize()
		}
		l := light.NewLight(light.TypePoint,
			light.WithColor(color.Mul(3)),
			light.WithAttenuation(demoAttenuation.X(), demoAttenuation.Y(), demoAttenuation.Z()),
		)

		node, _ := s.Add(s.Root(), game_object.NewGameObject(
			game_object.WithName(fmt.Sprintf("light-%d", i)),
			game_object.WithLight(l),
			game_object.WithPosition(pos),
		))
		s.Add(node, game_object.NewGameObject(
			game_object.WithName(fmt.Sprintf("light-%d-marker", i)),
			game_object.WithMesh(sphere),
			game_object.WithMaterial(marker),
			game_object.WithUniformScale(0.1),
		))
		if opt.Bounds {
			s.Add(node, game_object.NewGameObject(
				game_object.WithName(fmt.Sprintf("light-%d-bounds", i)),
				game_object.WithMesh(sphere),
				game_object.WithMaterial(material.NewMaterial(
					material.WithBaseColor(color.Mul(0.1).Vec4(1)),
					material.WithWireframe(true),
				)),
				game_object.WithUniformScale(l.BoundingRadius()),
			))
		}
	}
	return s, cam, nil
}
