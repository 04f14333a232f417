package camera

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Params are the perspective parameters the culling geometry needs.
type Params struct {
	Aspect float32
	FovY   float32
	Near   float32
	Far    float32
}

// Snapshot is a frozen copy of the camera state taken once at frame start.
type Snapshot struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
	Params     Params
}

// ViewProjection returns Projection * View.
func (s Snapshot) ViewProjection() mgl32.Mat4 {
	return s.Projection.Mul4(s.View)
}

// IdentitySnapshot is used by the orchestrator when the scene has no camera.
func IdentitySnapshot() Snapshot {
	return Snapshot{
		View:       mgl32.Ident4(),
		Projection: mgl32.Ident4(),
		Params:     Params{Aspect: 1, FovY: math.Pi / 2, Near: 0.1, Far: 100},
	}
}

// cameraImpl is the implementation of the Camera interface.
type cameraImpl struct {
	mu *sync.Mutex

	up     mgl32.Vec3
	fov    float32
	aspect float32
	near   float32
	far    float32

	view       mgl32.Mat4
	projection mgl32.Mat4

	// viewLocked is set by SetViewMatrix; Update then leaves the view alone.
	viewLocked bool
	controller CameraController
}

// Camera provides view and projection matrices for rendering. Position and
// target come either from an attached CameraController, from LookAt, or from
// an explicit view matrix (camera trajectories).
type Camera interface {
	// Params returns the current perspective parameters.
	//
	// Returns:
	//   - Params: aspect, vertical field of view (radians), near and far
	Params() Params

	// ViewMatrix returns the current view matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the view matrix
	ViewMatrix() mgl32.Mat4

	// ProjectionMatrix returns the current perspective projection matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the projection matrix
	ProjectionMatrix() mgl32.Mat4

	// Snapshot returns view, projection and params under a single lock so a
	// frame sees one consistent camera.
	//
	// Returns:
	//   - Snapshot: the frozen camera state
	Snapshot() Snapshot

	// Position returns the eye position in world space, derived from the view matrix.
	//
	// Returns:
	//   - mgl32.Vec3: the eye position
	Position() mgl32.Vec3

	// Controller returns the attached CameraController, or nil.
	//
	// Returns:
	//   - CameraController: the attached controller or nil
	Controller() CameraController

	// Update reads position/target from the controller and recomputes the view.
	// Does nothing without a controller or after SetViewMatrix.
	Update()

	// LookAt points the camera from eye toward target and releases any view
	// set by SetViewMatrix.
	//
	// Parameters:
	//   - eye: camera position
	//   - target: look-at point
	LookAt(eye, target mgl32.Vec3)

	// SetViewMatrix replaces the view matrix verbatim. Used to replay camera
	// trajectories; the controller is ignored until LookAt is called.
	//
	// Parameters:
	//   - view: the view matrix
	SetViewMatrix(view mgl32.Mat4)

	// SetUp sets the up vector used by LookAt and Update.
	SetUp(up mgl32.Vec3)

	// SetFov sets the vertical field of view in radians.
	SetFov(fov float32)

	// SetAspect sets the aspect ratio (width / height).
	SetAspect(aspect float32)

	// SetNear sets the near clipping plane distance.
	SetNear(near float32)

	// SetFar sets the far clipping plane distance.
	SetFar(far float32)

	// SetController attaches a CameraController and applies its pose.
	SetController(ctrl CameraController)
}

var _ Camera = &cameraImpl{}

// NewCamera creates a Camera with a 70 degree field of view, 16:9 aspect,
// near 0.1 and far 100, looking down -Z from the origin.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:     &sync.Mutex{},
		up:     mgl32.Vec3{0, 1, 0},
		fov:    mgl32.DegToRad(70),
		aspect: 1280.0 / 720.0,
		near:   0.1,
		far:    100.0,
		view:   mgl32.Ident4(),
	}
	for _, option := range options {
		option(c)
	}
	c.projection = mgl32.Perspective(c.fov, c.aspect, c.near, c.far)
	if c.controller != nil && !c.viewLocked {
		c.view = mgl32.LookAtV(c.controller.Position(), c.controller.Target(), c.up)
	}
	return c
}

func (c *cameraImpl) Params() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Params{Aspect: c.aspect, FovY: c.fov, Near: c.near, Far: c.far}
}

func (c *cameraImpl) ViewMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *cameraImpl) ProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection
}

func (c *cameraImpl) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		View:       c.view,
		Projection: c.projection,
		Params:     Params{Aspect: c.aspect, FovY: c.fov, Near: c.near, Far: c.far},
	}
}

func (c *cameraImpl) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.Inv().Col(3).Vec3()
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	ctrl := c.controller
	locked := c.viewLocked
	c.mu.Unlock()
	if ctrl == nil || locked {
		return
	}
	eye, target := ctrl.Position(), ctrl.Target()

	c.mu.Lock()
	c.view = mgl32.LookAtV(eye, target, c.up)
	c.mu.Unlock()
}

func (c *cameraImpl) LookAt(eye, target mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewLocked = false
	c.view = mgl32.LookAtV(eye, target, c.up)
}

func (c *cameraImpl) SetViewMatrix(view mgl32.Mat4) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewLocked = true
	c.view = view
}

func (c *cameraImpl) SetUp(up mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.up = up
}

func (c *cameraImpl) SetFov(fov float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fov = fov
	c.updateProjection()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	c.updateProjection()
}

func (c *cameraImpl) SetNear(near float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.near = near
	c.updateProjection()
}

func (c *cameraImpl) SetFar(far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.far = far
	c.updateProjection()
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	c.controller = ctrl
	c.mu.Unlock()
	c.Update()
}

// updateProjection recomputes the projection matrix. Caller must hold the mutex.
func (c *cameraImpl) updateProjection() {
	c.projection = mgl32.Perspective(c.fov, c.aspect, c.near, c.far)
}
