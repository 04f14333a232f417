package scene

import (
	"github.com/Carmen-Shannon/oxy-lightcull/engine/camera"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/game_object"
	"github.com/go-gl/mathgl/mgl32"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithCamera sets the active camera.
//
// Parameters:
//   - c: the camera
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithCamera(c camera.Camera) SceneBuilderOption {
	return func(s *scene) {
		s.cam = c
	}
}

// WithBackground sets the linear background colour.
//
// Parameters:
//   - c: the colour
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithBackground(c mgl32.Vec3) SceneBuilderOption {
	return func(s *scene) {
		s.background = c
	}
}

// WithObjects adds initial objects as top-level children of the root, in order.
//
// Parameters:
//   - objects: the objects to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithObjects(objects ...game_object.GameObject) SceneBuilderOption {
	return func(s *scene) {
		for _, obj := range objects {
			s.add(s.Root(), obj)
		}
	}
}
