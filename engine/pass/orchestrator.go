package pass

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-lightcull/common"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/camera"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/config"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/culling"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/diag"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/gpu"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/light"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// FrameStats summarizes one rendered frame.
type FrameStats struct {
	Frame    uint64 `json:"frame"`
	Pipeline string `json:"pipeline"`
	Lights   int    `json:"lights"`

	// FrustumLights counts lights whose bounding sphere touches the view
	// frustum. Only computed under BoundingSphere culling, -1 otherwise.
	FrustumLights int `json:"frustumLights"`

	MeshDraws  int `json:"meshDraws"`
	LightDraws int `json:"lightDraws"`

	Culling       culling.Result `json:"culling"`
	CameraMissing bool           `json:"cameraMissing"`
	Elapsed       time.Duration  `json:"elapsedNs"`
}

// Orchestrator drives one frame: depth pre-pass (forward) or G-buffer pass
// (deferred), the lit pass with light packing and partition assignment, and
// the post pass to the screen.
type Orchestrator interface {
	// Frame renders s with the configuration active at frame start. Failures
	// are reported as diagnostics; the frame always completes.
	//
	// Parameters:
	//   - s: the scene (nil renders an empty frame)
	//
	// Returns:
	//   - FrameStats: statistics for the frame
	Frame(s scene.Scene) FrameStats

	// Apply queues a configuration. It takes effect at the start of the next
	// frame and never interrupts a frame in progress. Safe for concurrent use.
	//
	// Parameters:
	//   - cfg: the new configuration (normalized before validation)
	//
	// Returns:
	//   - error: a validation error; nothing is queued in that case
	Apply(cfg config.Config) error

	// Config returns the configuration of the most recent frame, or the
	// pending one if it has been queued since.
	Config() config.Config

	// Resize recreates the lit target (and the G-buffer under the deferred
	// pipeline) at the new size. Must be called from the frame goroutine.
	//
	// Parameters:
	//   - width, height: the viewport size in pixels
	//
	// Returns:
	//   - error: the allocation failures, also reported as diagnostics
	Resize(width, height int) error

	// Packer returns the light data packer.
	Packer() light.Packer

	// Assigner returns the partition assigner.
	Assigner() culling.Assigner

	// Release frees the storage buffers. The device is not released.
	Release()
}

type orchestrator struct {
	dev  gpu.Device
	log  logging.Logger
	sink diag.Sink

	packer   light.Packer
	assigner culling.Assigner

	mu      *sync.Mutex
	cfg     config.Config
	pending *config.Config

	frame    *atomic.Uint64
	litSize  [2]int
	gbufSize [2]int
}

var _ Orchestrator = &orchestrator{}

// frameState is everything frozen at frame start.
type frameState struct {
	cfg     config.Config
	scene   scene.Scene
	cam     camera.Snapshot
	hasCam  bool
	lights  []light.Instance
	clear   mgl32.Vec4
	stats   FrameStats
	baseRas gpu.RasterState
}

// NewOrchestrator creates an Orchestrator that renders on dev with cfg.
//
// Parameters:
//   - dev: the device (panics if nil)
//   - cfg: the initial configuration
//   - options: functional options (logger, diagnostics sink, frame counter)
//
// Returns:
//   - Orchestrator: the orchestrator
//   - error: if cfg does not validate
func NewOrchestrator(dev gpu.Device, cfg config.Config, options ...OrchestratorBuilderOption) (Orchestrator, error) {
	if dev == nil {
		panic("pass: NewOrchestrator requires a device")
	}
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator config: %w", err)
	}

	o := &orchestrator{
		dev:   dev,
		log:   logging.NewNopLogger(),
		mu:    &sync.Mutex{},
		cfg:   cfg,
		frame: &atomic.Uint64{},
	}
	for _, option := range options {
		option(o)
	}

	o.packer = light.NewPacker(dev, gpu.WithLogger(o.log), gpu.WithDiagnostics(o.sink))
	o.assigner = culling.NewAssigner(dev, culling.WithLogger(o.log), culling.WithDiagnostics(o.sink))
	if err := o.ensureTargets(cfg); err != nil {
		o.log.Warnf("[Orchestrator] initial targets: %v", err)
	}
	return o, nil
}

func (o *orchestrator) Apply(cfg config.Config) error {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	o.pending = &cfg
	o.mu.Unlock()
	return nil
}

func (o *orchestrator) Config() config.Config {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending != nil {
		return *o.pending
	}
	return o.cfg
}

func (o *orchestrator) Resize(width, height int) error {
	o.mu.Lock()
	o.cfg.ViewportWidth = max(width, 1)
	o.cfg.ViewportHeight = max(height, 1)
	if o.pending != nil {
		o.pending.ViewportWidth = o.cfg.ViewportWidth
		o.pending.ViewportHeight = o.cfg.ViewportHeight
	}
	cfg := o.cfg
	o.mu.Unlock()

	o.litSize = [2]int{}
	o.gbufSize = [2]int{}
	return o.ensureTargets(cfg)
}

// ensureTargets recreates offscreen targets whose size no longer matches the
// viewport. A failed target keeps the requested size recorded so the failure
// is reported once per resize rather than every frame.
func (o *orchestrator) ensureTargets(cfg config.Config) error {
	size := [2]int{cfg.ViewportWidth, cfg.ViewportHeight}
	var errs []error
	if o.litSize != size {
		o.litSize = size
		if err := o.dev.ResizeTarget(gpu.TargetLit, size[0], size[1]); err != nil {
			diag.Reportf(o.sink, diag.KindResourceAllocation, "Orchestrator", err,
				"failed to initialize lit target (%dx%d)", size[0], size[1])
			errs = append(errs, fmt.Errorf("lit target: %w", err))
		}
	}
	if cfg.Pipeline == config.PipelineDeferred && o.gbufSize != size {
		o.gbufSize = size
		if err := o.dev.ResizeTarget(gpu.TargetGBuffer, size[0], size[1]); err != nil {
			diag.Reportf(o.sink, diag.KindResourceAllocation, "Orchestrator", err,
				"failed to initialize g-buffer (%dx%d)", size[0], size[1])
			errs = append(errs, fmt.Errorf("g-buffer: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (o *orchestrator) Frame(s scene.Scene) FrameStats {
	start := time.Now()
	f := o.begin(s)

	switch f.cfg.Pipeline {
	case config.PipelineForward:
		o.forward(f)
	default:
		o.deferred(f)
	}
	o.post()

	f.stats.Elapsed = time.Since(start)
	return f.stats
}

// begin applies the pending configuration and freezes the camera, lights and
// clear colour for the rest of the frame.
func (o *orchestrator) begin(s scene.Scene) *frameState {
	o.mu.Lock()
	if o.pending != nil {
		prev := o.cfg
		o.cfg = *o.pending
		o.pending = nil
		if prev.Name() != o.cfg.Name() || prev.Grid != o.cfg.Grid {
			o.log.Infof("[Orchestrator] switched to %s, grid %s", o.cfg.Name(), o.cfg.Grid)
		}
	}
	cfg := o.cfg
	o.mu.Unlock()
	if err := o.ensureTargets(cfg); err != nil {
		o.log.Warnf("[Orchestrator] frame targets: %v", err)
	}

	f := &frameState{
		cfg:     cfg,
		scene:   s,
		cam:     camera.IdentitySnapshot(),
		baseRas: gpu.DefaultRasterState(),
	}
	f.stats = FrameStats{
		Frame:         o.frame.Add(1),
		Pipeline:      cfg.Name(),
		FrustumLights: -1,
	}

	var background mgl32.Vec3
	if s != nil {
		background = s.Background()
		if cam := s.ActiveCamera(); cam != nil {
			f.cam = cam.Snapshot()
			f.hasCam = true
		}
		f.lights = s.Lights()
	}
	f.clear = common.GammaPreCorrect(background).Vec4(1)
	f.stats.Lights = len(f.lights)
	f.stats.CameraMissing = !f.hasCam
	return f
}

// forward draws the depth pre-pass and the forward lit pass into the lit target.
func (o *orchestrator) forward(f *frameState) {
	o.dev.BeginPass(gpu.TargetLit, gpu.ClearState{Color: f.clear, ClearColor: true, ClearDepth: true})

	o.dev.BindProgram(gpu.ProgramZPrepass)
	prepass := f.baseRas
	prepass.ColorMask = true
	o.dev.SetRaster(prepass)
	o.traverse(f, prepass, false)

	o.dev.BindProgram(gpu.ProgramForward)
	o.dev.SetParam("cullingMethod", [2]int32{int32(f.cfg.Culling), 0})
	o.setFrameParams(f)
	o.prepareLights(f)

	lit := f.baseRas
	lit.DepthWrite = false
	lit.DepthCompare = gpu.CompareLessEqual
	o.dev.SetRaster(lit)
	o.traverse(f, lit, true)

	o.dev.SetRaster(f.baseRas)
	o.dev.EndPass()
}

// deferred fills the G-buffer, then accumulates lighting into the lit target.
func (o *orchestrator) deferred(f *frameState) {
	o.dev.BeginPass(gpu.TargetGBuffer, gpu.ClearState{ClearColor: true, ClearDepth: true})
	o.dev.BindProgram(gpu.ProgramGBuffer)
	o.dev.SetRaster(f.baseRas)
	o.traverse(f, f.baseRas, true)

	// The lit target shares the G-buffer depth, so only colour is cleared.
	o.dev.BeginPass(gpu.TargetLit, gpu.ClearState{Color: f.clear, ClearColor: true})
	o.dev.BindProgram(gpu.ProgramDeferredLight)
	o.setFrameParams(f)
	o.prepareLights(f)

	accum := gpu.RasterState{
		DepthCompare: gpu.CompareAlways,
		Blend:        gpu.BlendAdditive,
		Cull:         gpu.CullNone,
	}
	if !f.hasCam {
		o.dev.EndPass()
		return
	}

	if f.cfg.Culling != config.CullingRasterSphere {
		o.dev.SetParam("cullingMethod", [2]int32{int32(f.cfg.Culling), 0})
		o.dev.SetParam("mat", common.FullscreenQuadMatrix())
		o.dev.SetRaster(accum)
		o.dev.DrawPrimitive(gpu.PrimitiveQuad)
		f.stats.LightDraws++
		o.dev.EndPass()
		return
	}

	viewProj := f.cam.ViewProjection()
	sphere := accum
	sphere.DepthTest = true
	sphere.DepthCompare = gpu.CompareGreaterEqual
	sphere.Cull = gpu.CullFront
	for i, inst := range f.lights {
		o.dev.SetParam("cullingMethod", [2]int32{int32(config.CullingRasterSphere), int32(i)})
		if inst.Light.Type == light.TypePoint {
			center, radius := inst.BoundingSphere()
			o.dev.SetParam("mat", viewProj.Mul4(common.SphereMatrix(center, radius)))
			o.dev.SetRaster(sphere)
			o.dev.DrawPrimitive(gpu.PrimitiveSphere)
		} else {
			o.dev.SetParam("mat", common.FullscreenQuadMatrix())
			o.dev.SetRaster(accum)
			o.dev.DrawPrimitive(gpu.PrimitiveQuad)
		}
		f.stats.LightDraws++
	}
	o.dev.EndPass()
}

// post resolves the lit target onto the screen and presents.
func (o *orchestrator) post() {
	o.dev.BeginPass(gpu.TargetScreen, gpu.ClearState{Color: mgl32.Vec4{0, 0, 0, 1}, ClearColor: true})
	o.dev.SetRaster(gpu.RasterState{DepthCompare: gpu.CompareAlways, Cull: gpu.CullNone})
	o.dev.BindProgram(gpu.ProgramPost)
	o.dev.SetParam("textureMain", gpu.TargetLit)
	o.dev.SetParam("mat", common.FullscreenQuadMatrix())
	o.dev.DrawPrimitive(gpu.PrimitiveQuad)
	o.dev.Present()
}

// setFrameParams sets the parameters that stay constant for the whole lit pass.
func (o *orchestrator) setFrameParams(f *frameState) {
	g := f.cfg.Grid
	o.dev.SetParam("viewportSize", mgl32.Vec2{float32(f.cfg.ViewportWidth), float32(f.cfg.ViewportHeight)})
	o.dev.SetParam("numTiles", [4]int32{int32(g.X), int32(g.Y), int32(g.Z), 0})
	o.dev.SetParam("nearFar", mgl32.Vec2{f.cam.Params.Near, f.cam.Params.Far})
}

// prepareLights packs the lights and fills the partition buffers, then binds
// all three storage slots. Without a camera nothing is packed or assigned.
func (o *orchestrator) prepareLights(f *frameState) {
	if !f.hasCam {
		diag.Reportf(o.sink, diag.KindMissingCamera, "Orchestrator", nil,
			"no active camera; culling and lighting skipped")
		f.stats.Culling = culling.Result{Method: f.cfg.Culling, Lights: len(f.lights), Skipped: true}
		return
	}

	if err := o.packer.Pack(f.lights, f.cam.View); err != nil {
		o.log.Warnf("[Orchestrator] %v", err)
	}

	snap := f.cam
	res, err := o.assigner.Assign(culling.Frame{
		Camera:                &snap,
		Lights:                f.lights,
		Grid:                  f.cfg.Grid,
		Method:                f.cfg.Culling,
		MaxLightsPerPartition: f.cfg.MaxLightsPerPartition,
		CapPolicy:             f.cfg.CapPolicy,
	})
	if err != nil {
		o.log.Warnf("[Orchestrator] assignment upload: %v", err)
	}
	f.stats.Culling = res

	if f.cfg.Culling == config.CullingBoundingSphere {
		f.stats.FrustumLights = frustumLights(f.lights, f.cam.ViewProjection())
	}

	o.packer.Buffer().Bind()
	o.assigner.TableBuffer().Bind()
	o.assigner.ListBuffer().Bind()
}

// frustumLights counts the lights the per-fragment bounding sphere test can
// possibly accept. Non-point lights always count.
func frustumLights(lights []light.Instance, viewProj mgl32.Mat4) int {
	fr := common.ExtractFrustum(viewProj)
	n := 0
	for _, inst := range lights {
		if inst.Light.Type != light.TypePoint {
			n++
			continue
		}
		center, radius := inst.BoundingSphere()
		if fr.SphereVisible(center, radius) {
			n++
		}
	}
	return n
}

func (o *orchestrator) Packer() light.Packer {
	return o.packer
}

func (o *orchestrator) Assigner() culling.Assigner {
	return o.assigner
}

func (o *orchestrator) Release() {
	o.packer.Release()
	o.assigner.Release()
}
