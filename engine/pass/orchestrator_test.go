package pass

import (
	"errors"
	"image"
	"sync/atomic"
	"testing"

	"github.com/Carmen-Shannon/oxy-lightcull/common"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/camera"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/config"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/diag"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/game_object"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/gpu"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/light"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/material"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var background = mgl32.Vec3{0.1, 0.12, 0.2}

type fixture struct {
	dev   *gpu.HeadlessDevice
	rec   *diag.Recorder
	cam   camera.Camera
	scene scene.Scene
	orch  Orchestrator
}

func newFixture(t *testing.T, cfg config.Config, opts ...game_object.GameObjectBuilderOption) *fixture {
	t.Helper()
	dev := gpu.NewHeadlessDevice(gpu.WithDrawRecording(true))
	box, err := dev.UploadMesh("box", gpu.QuadMesh())
	require.NoError(t, err)

	cam := camera.NewCamera(camera.WithLookAt(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, 0}))
	s := scene.NewScene(
		scene.WithCamera(cam),
		scene.WithBackground(background),
		scene.WithObjects(
			game_object.NewGameObject(append([]game_object.GameObjectBuilderOption{
				game_object.WithName("box"), game_object.WithMesh(box),
			}, opts...)...),
			game_object.NewGameObject(
				game_object.WithName("bulb"),
				game_object.WithLight(light.NewLight(light.TypePoint, light.WithAttenuation(1, 0, 30))),
			),
		),
	)

	rec := &diag.Recorder{}
	orch, err := NewOrchestrator(dev, cfg, WithDiagnostics(rec))
	require.NoError(t, err)
	return &fixture{dev: dev, rec: rec, cam: cam, scene: s, orch: orch}
}

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 2, 2))
}

func drawsOf(dev *gpu.HeadlessDevice, p gpu.Program) []gpu.DrawRecord {
	var out []gpu.DrawRecord
	for _, d := range dev.Draws() {
		if d.Program == p {
			out = append(out, d)
		}
	}
	return out
}

func assertMat(t *testing.T, want mgl32.Mat4, got any) {
	t.Helper()
	m, ok := got.(mgl32.Mat4)
	require.True(t, ok, "expected mgl32.Mat4, got %T", got)
	assert.True(t, want.ApproxEqualThreshold(m, 1e-5), "want %v, got %v", want, m)
}

func TestNewOrchestratorRejectsInvalidConfig(t *testing.T) {
	dev := gpu.NewHeadlessDevice()
	_, err := NewOrchestrator(dev, config.NewConfig(config.WithPipelineName("forward-none"), config.WithCulling(config.CullingRasterSphere)))
	assert.ErrorIs(t, err, config.ErrUnsupportedCombination)

	assert.Panics(t, func() { _, _ = NewOrchestrator(nil, config.NewConfig()) })
}

func TestForwardFrameSequence(t *testing.T) {
	fx := newFixture(t, config.NewConfig(config.WithPipelineName("forward-tiled-cpu")))
	stats := fx.orch.Frame(fx.scene)

	assert.Equal(t, []string{
		"BeginPass lit",
		"BindProgram zprepass",
		"Draw box",
		"BindProgram forward",
		"Draw box",
		"EndPass",
		"BeginPass screen",
		"BindProgram post",
		"DrawPrimitive quad",
		"EndPass",
		"Present",
	}, fx.dev.Events())

	clear := fx.dev.LastClear(gpu.TargetLit)
	assert.True(t, clear.ClearColor)
	assert.True(t, clear.ClearDepth)
	assert.Equal(t, common.GammaPreCorrect(background).Vec4(1), clear.Color)

	prepass := drawsOf(fx.dev, gpu.ProgramZPrepass)
	require.Len(t, prepass, 1)
	assert.True(t, prepass[0].Raster.ColorMask)
	assert.True(t, prepass[0].Raster.DepthWrite)

	lit := drawsOf(fx.dev, gpu.ProgramForward)
	require.Len(t, lit, 1)
	assert.False(t, lit[0].Raster.DepthWrite)
	assert.True(t, lit[0].Raster.DepthTest)
	assert.Equal(t, gpu.CompareLessEqual, lit[0].Raster.DepthCompare)
	assert.Equal(t, [2]int32{int32(config.CullingTiledCPU), 0}, lit[0].Params["cullingMethod"])
	assert.Equal(t, [4]int32{80, 45, 1, 0}, lit[0].Params["numTiles"])
	assert.Equal(t, mgl32.Vec2{1280, 720}, lit[0].Params["viewportSize"])

	snap := fx.cam.Snapshot()
	assertMat(t, snap.View, lit[0].Params["mvMat"])
	assertMat(t, snap.Projection.Mul4(snap.View), lit[0].Params["mvpMat"])
	assertMat(t, common.NormalMatrix(snap.View), lit[0].Params["normalMat"])

	post := drawsOf(fx.dev, gpu.ProgramPost)
	require.Len(t, post, 1)
	assert.Equal(t, gpu.TargetScreen, post[0].Target)
	assert.Equal(t, gpu.TargetLit, post[0].Params["textureMain"])
	assertMat(t, common.FullscreenQuadMatrix(), post[0].Params["mat"])
	assert.Equal(t, mgl32.Vec4{0, 0, 0, 1}, fx.dev.LastClear(gpu.TargetScreen).Color)

	for _, slot := range []gpu.Slot{gpu.SlotLights, gpu.SlotPartitionTable, gpu.SlotLightIndex} {
		assert.NotNil(t, fx.dev.Bound(slot), slot.String())
	}

	assert.Equal(t, uint64(1), stats.Frame)
	assert.Equal(t, "forward-tiled-cpu", stats.Pipeline)
	assert.Equal(t, 1, stats.Lights)
	assert.Equal(t, 2, stats.MeshDraws)
	assert.Equal(t, 0, stats.LightDraws)
	assert.Equal(t, 80*45, stats.Culling.Partitions)
	assert.Equal(t, -1, stats.FrustumLights)
	assert.False(t, stats.CameraMissing)
}

func TestDeferredFrameSequence(t *testing.T) {
	fx := newFixture(t, config.NewConfig(config.WithPipelineName("deferred-clustered-cpu")))
	stats := fx.orch.Frame(fx.scene)

	assert.Equal(t, []string{
		"BeginPass gbuffer",
		"BindProgram gbuffer",
		"Draw box",
		"EndPass",
		"BeginPass lit",
		"BindProgram deferred_light",
		"DrawPrimitive quad",
		"EndPass",
		"BeginPass screen",
		"BindProgram post",
		"DrawPrimitive quad",
		"EndPass",
		"Present",
	}, fx.dev.Events())

	gb := fx.dev.LastClear(gpu.TargetGBuffer)
	assert.Equal(t, mgl32.Vec4{}, gb.Color)
	assert.True(t, gb.ClearDepth)
	assert.False(t, fx.dev.LastClear(gpu.TargetLit).ClearDepth)

	geometry := drawsOf(fx.dev, gpu.ProgramGBuffer)
	require.Len(t, geometry, 1)
	assert.True(t, geometry[0].Raster.DepthWrite)

	lighting := drawsOf(fx.dev, gpu.ProgramDeferredLight)
	require.Len(t, lighting, 1)
	assert.Equal(t, gpu.PrimitiveQuad, lighting[0].Primitive)
	assert.Equal(t, gpu.BlendAdditive, lighting[0].Raster.Blend)
	assert.False(t, lighting[0].Raster.DepthWrite)
	assert.Equal(t, [2]int32{int32(config.CullingClusteredCPU), 0}, lighting[0].Params["cullingMethod"])
	assert.Equal(t, [4]int32{80, 45, 32, 0}, lighting[0].Params["numTiles"])

	w, h := fx.dev.TargetSize(gpu.TargetGBuffer)
	assert.Equal(t, [2]int{1280, 720}, [2]int{w, h})
	assert.Equal(t, 1, stats.LightDraws)
	assert.Equal(t, 80*45*32, stats.Culling.Partitions)
}

func TestDeferredRasterSphereDrawsPerLight(t *testing.T) {
	fx := newFixture(t, config.NewConfig(config.WithPipelineName("deferred-rastersphere")))
	sun := game_object.NewGameObject(game_object.WithLight(light.NewLight(light.TypeDirectional)))
	_, ok := fx.scene.Add(fx.scene.Root(), sun)
	require.True(t, ok)

	stats := fx.orch.Frame(fx.scene)
	lighting := drawsOf(fx.dev, gpu.ProgramDeferredLight)
	require.Len(t, lighting, 2)

	bulb := lighting[0]
	assert.Equal(t, gpu.PrimitiveSphere, bulb.Primitive)
	assert.Equal(t, [2]int32{int32(config.CullingRasterSphere), 0}, bulb.Params["cullingMethod"])
	assert.Equal(t, gpu.CompareGreaterEqual, bulb.Raster.DepthCompare)
	assert.Equal(t, gpu.CullFront, bulb.Raster.Cull)
	assert.True(t, bulb.Raster.DepthTest)

	snap := fx.cam.Snapshot()
	radius := light.NewLight(light.TypePoint, light.WithAttenuation(1, 0, 30)).BoundingRadius()
	assertMat(t, snap.ViewProjection().Mul4(common.SphereMatrix(mgl32.Vec3{}, radius)), bulb.Params["mat"])

	other := lighting[1]
	assert.Equal(t, gpu.PrimitiveQuad, other.Primitive)
	assert.Equal(t, [2]int32{int32(config.CullingRasterSphere), 1}, other.Params["cullingMethod"])
	assert.False(t, other.Raster.DepthTest)
	assertMat(t, common.FullscreenQuadMatrix(), other.Params["mat"])

	assert.Equal(t, 2, stats.LightDraws)
	assert.True(t, stats.Culling.Skipped)
}

func TestMaterialBinding(t *testing.T) {
	dev := gpu.NewHeadlessDevice()
	tex, err := dev.UploadTexture("metal", testImage())
	require.NoError(t, err)

	tests := []struct {
		name      string
		mat       material.Material
		color     mgl32.Vec4
		metalness mgl32.Vec2
		roughness mgl32.Vec2
		wireframe bool
	}{
		{
			name:      "no material",
			color:     mgl32.Vec4{1, 1, 1, 1},
			metalness: mgl32.Vec2{0, 1},
			roughness: mgl32.Vec2{1, 1},
		},
		{
			name: "factors only",
			mat: material.NewMaterial(
				material.WithBaseColor(mgl32.Vec4{0.5, 0.2, 0.1, 1}),
				material.WithMetalness(0.7),
				material.WithRoughness(0.3),
			),
			color:     mgl32.Vec4{0.5, 0.2, 0.1, 1},
			metalness: mgl32.Vec2{0.7, 1},
			roughness: mgl32.Vec2{0.3, 1},
		},
		{
			name: "metalness texture and wireframe",
			mat: material.NewMaterial(
				material.WithMetalness(1),
				material.WithMetalnessTexture(tex),
				material.WithWireframe(true),
			),
			color:     mgl32.Vec4{1, 1, 1, 1},
			metalness: mgl32.Vec2{1, 0},
			roughness: mgl32.Vec2{1, 1},
			wireframe: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fx *fixture
			if tt.mat != nil {
				fx = newFixture(t, config.NewConfig(config.WithPipelineName("forward-none")), game_object.WithMaterial(tt.mat))
			} else {
				fx = newFixture(t, config.NewConfig(config.WithPipelineName("forward-none")))
			}
			fx.orch.Frame(fx.scene)

			lit := drawsOf(fx.dev, gpu.ProgramForward)
			require.Len(t, lit, 1)
			assert.Equal(t, tt.color, lit[0].Params["colorDiffuse"])
			assert.Equal(t, tt.metalness, lit[0].Params["metalnessFac"])
			assert.Equal(t, tt.roughness, lit[0].Params["roughnessFac"])
			assert.Equal(t, false, lit[0].Params["useNormalTex"])
			assert.Equal(t, tt.wireframe, lit[0].Raster.Wireframe)

			// The pre-pass never binds materials.
			prepass := drawsOf(fx.dev, gpu.ProgramZPrepass)
			require.Len(t, prepass, 1)
			assert.False(t, prepass[0].Raster.Wireframe)
		})
	}
}

func TestApplyTakesEffectAtNextFrame(t *testing.T) {
	fx := newFixture(t, config.NewConfig())
	fx.orch.Frame(fx.scene)

	require.NoError(t, fx.orch.Apply(config.NewConfig(config.WithPipelineName("forward-clustered-cpu"), config.WithGrid(4, 4, 8))))
	assert.Equal(t, "forward-clustered-cpu", fx.orch.Config().Name())

	stats := fx.orch.Frame(fx.scene)
	assert.Equal(t, "forward-clustered-cpu", stats.Pipeline)
	assert.Equal(t, config.Grid{X: 4, Y: 4, Z: 8}, stats.Culling.Grid)

	err := fx.orch.Apply(config.NewConfig(config.WithPipeline(config.PipelineForward), config.WithCulling(config.CullingBoundingSphere)))
	assert.ErrorIs(t, err, config.ErrUnsupportedCombination)
	assert.Equal(t, "forward-clustered-cpu", fx.orch.Config().Name())
}

func TestMissingCameraSkipsCullingAndLighting(t *testing.T) {
	fx := newFixture(t, config.NewConfig())
	fx.scene.SetActiveCamera(nil)

	for range 2 {
		stats := fx.orch.Frame(fx.scene)
		assert.True(t, stats.CameraMissing)
		assert.True(t, stats.Culling.Skipped)
	}

	assert.Equal(t, 2, fx.rec.Count(diag.KindMissingCamera))
	assert.Equal(t, 0, fx.dev.Stats().BufferAllocations)
	assert.Empty(t, drawsOf(fx.dev, gpu.ProgramDeferredLight))
	assert.Equal(t, 2, fx.dev.Stats().Presents)

	// Geometry still draws with identity camera matrices.
	geometry := drawsOf(fx.dev, gpu.ProgramGBuffer)
	require.Len(t, geometry, 2)
	assertMat(t, mgl32.Ident4(), geometry[0].Params["mvpMat"])
}

func TestResizeFailureIsReportedAndFrameContinues(t *testing.T) {
	dev := gpu.NewHeadlessDevice(gpu.WithResizeFailure(func(target gpu.Target, w, h int) error {
		if target == gpu.TargetLit && w > 2000 {
			return errors.New("out of video memory")
		}
		return nil
	}))
	rec := &diag.Recorder{}
	orch, err := NewOrchestrator(dev, config.NewConfig(), WithDiagnostics(rec))
	require.NoError(t, err)

	err = orch.Resize(4096, 2160)
	assert.Error(t, err)

	got := rec.Diagnostics()
	require.Len(t, got, 1)
	assert.Equal(t, diag.KindResourceAllocation, got[0].Kind)
	assert.Contains(t, got[0].Message, "failed to initialize lit target")

	orch.Frame(scene.NewScene(scene.WithCamera(camera.NewCamera())))
	assert.Equal(t, 1, dev.Stats().Presents)
	assert.Equal(t, 1, rec.Count(diag.KindResourceAllocation), "a failed target is not retried every frame")

	w, h := dev.TargetSize(gpu.TargetGBuffer)
	assert.Equal(t, [2]int{4096, 2160}, [2]int{w, h})
	require.NoError(t, orch.Resize(800, 600))
	w, h = dev.TargetSize(gpu.TargetLit)
	assert.Equal(t, [2]int{800, 600}, [2]int{w, h})
}

func TestTargetFailuresAreLoggedOnce(t *testing.T) {
	dev := gpu.NewHeadlessDevice(gpu.WithResizeFailure(func(target gpu.Target, w, h int) error {
		if w > 2000 {
			return errors.New("out of video memory")
		}
		return nil
	}))
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	core, logs := observer.New(level)
	cfg := config.NewConfig(config.WithPipelineName("forward-tiled-cpu"), config.WithViewport(4096, 2160))
	orch, err := NewOrchestrator(dev, cfg, WithLogger(logging.NewFromZap(zap.New(core), level)))
	require.NoError(t, err)

	warnings := func() []observer.LoggedEntry {
		return logs.FilterLevelExact(zapcore.WarnLevel).All()
	}
	require.Len(t, warnings(), 1)
	assert.Contains(t, warnings()[0].Message, "initial targets")
	assert.Contains(t, warnings()[0].Message, "lit target")

	// The g-buffer is first needed when switching to deferred.
	require.NoError(t, orch.Apply(config.NewConfig(config.WithPipelineName("deferred-tiled-cpu"), config.WithViewport(4096, 2160))))
	s := scene.NewScene(scene.WithCamera(camera.NewCamera()))
	orch.Frame(s)
	orch.Frame(s)

	require.Len(t, warnings(), 2)
	assert.Contains(t, warnings()[1].Message, "frame targets")
	assert.Contains(t, warnings()[1].Message, "g-buffer")
	assert.Equal(t, 2, dev.Stats().Presents)
}

func TestStaticSceneDoesNotReallocate(t *testing.T) {
	fx := newFixture(t, config.NewConfig(config.WithPipelineName("deferred-tiled-cpu")))
	fx.orch.Frame(fx.scene)
	after := fx.dev.Stats().BufferAllocations
	assert.Equal(t, 3, after)

	for range 5 {
		fx.orch.Frame(fx.scene)
	}
	assert.Equal(t, after, fx.dev.Stats().BufferAllocations)
}

func TestBoundingSphereCountsFrustumLights(t *testing.T) {
	fx := newFixture(t, config.NewConfig(config.WithPipelineName("deferred-boundingsphere")))
	behind := game_object.NewGameObject(
		game_object.WithPosition(mgl32.Vec3{0, 0, 40}),
		game_object.WithLight(light.NewLight(light.TypePoint, light.WithAttenuation(1, 0, 30))),
	)
	sun := game_object.NewGameObject(game_object.WithLight(light.NewLight(light.TypeDirectional)))
	fx.scene.Add(fx.scene.Root(), behind)
	fx.scene.Add(fx.scene.Root(), sun)

	stats := fx.orch.Frame(fx.scene)
	assert.Equal(t, 3, stats.Lights)
	assert.Equal(t, 2, stats.FrustumLights)
	assert.True(t, stats.Culling.Skipped)
}

func TestFrameCounterStampsDiagnostics(t *testing.T) {
	var counter atomic.Uint64
	rec := &diag.Recorder{}
	dev := gpu.NewHeadlessDevice()
	orch, err := NewOrchestrator(dev, config.NewConfig(),
		WithFrameCounter(&counter),
		WithDiagnostics(diag.FrameStamper{Next: rec, Frame: &counter}),
	)
	require.NoError(t, err)

	s := scene.NewScene()
	orch.Frame(s)
	orch.Frame(s)

	got := rec.Diagnostics()
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].Frame)
	assert.Equal(t, uint64(2), got[1].Frame)
	assert.Equal(t, uint64(2), counter.Load())
}

func TestNilSceneRendersEmptyFrame(t *testing.T) {
	dev := gpu.NewHeadlessDevice()
	orch, err := NewOrchestrator(dev, config.NewConfig(config.WithPipelineName("forward-none")))
	require.NoError(t, err)

	stats := orch.Frame(nil)
	assert.True(t, stats.CameraMissing)
	assert.Equal(t, 0, stats.MeshDraws)
	assert.Equal(t, 1, dev.Stats().Presents)
}
