package eval

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrBadTrajectory is returned when a camera trajectory cannot be used.
var ErrBadTrajectory = errors.New("bad camera trajectory")

// LoadTrajectory decodes a camera trajectory: a JSON array of view matrices,
// each an array of 16 numbers in column-major order.
//
// Parameters:
//   - r: the JSON source
//
// Returns:
//   - []mgl32.Mat4: one view matrix per frame
//   - error: wraps ErrBadTrajectory for malformed input
func LoadTrajectory(r io.Reader) ([]mgl32.Mat4, error) {
	var raw [][]float32
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadTrajectory, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no matrices", ErrBadTrajectory)
	}

	out := make([]mgl32.Mat4, len(raw))
	for i, m := range raw {
		if len(m) != 16 {
			return nil, fmt.Errorf("%w: matrix %d has %d values, want 16", ErrBadTrajectory, i, len(m))
		}
		copy(out[i][:], m)
	}
	return out, nil
}

// LoadTrajectoryFile reads a trajectory from a file.
//
// Parameters:
//   - path: the JSON file
//
// Returns:
//   - []mgl32.Mat4: one view matrix per frame
//   - error: an open error or a decode error wrapping ErrBadTrajectory
func LoadTrajectoryFile(path string) ([]mgl32.Mat4, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trajectory: %w", err)
	}
	defer f.Close()
	return LoadTrajectory(f)
}

// OrbitTrajectory generates a circular fly-around of the demo scene: the eye
// circles the origin at the given radius and height, looking at the centre.
//
// Parameters:
//   - frames: the number of matrices (minimum 1)
//   - radius: the orbit radius
//   - height: the eye height
//
// Returns:
//   - []mgl32.Mat4: one view matrix per frame
func OrbitTrajectory(frames int, radius, height float32) []mgl32.Mat4 {
	frames = max(frames, 1)
	out := make([]mgl32.Mat4, frames)
	for i := range out {
		a := 2 * math.Pi * float64(i) / float64(frames)
		eye := mgl32.Vec3{radius * float32(math.Cos(a)), height, radius * float32(math.Sin(a))}
		out[i] = mgl32.LookAtV(eye, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 1, 0})
	}
	return out
}

// EncodeTrajectory writes matrices in the format LoadTrajectory reads.
func EncodeTrajectory(w io.Writer, views []mgl32.Mat4) error {
	raw := make([][16]float32, len(views))
	for i, m := range views {
		raw[i] = m
	}
	return json.NewEncoder(w).Encode(raw)
}
