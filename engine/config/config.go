package config

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownPipeline is returned when a pipeline name is not one of the known names.
	ErrUnknownPipeline = errors.New("unknown pipeline name")
	// ErrInvalidGrid is returned when a grid dimension is not positive.
	ErrInvalidGrid = errors.New("grid dimensions must be positive")
	// ErrUnsupportedCombination is returned when a culling method cannot run under a pipeline type.
	ErrUnsupportedCombination = errors.New("culling method not supported by pipeline")
	// ErrInvalidCap is returned when CapNearest is set with a maximum below one light.
	ErrInvalidCap = errors.New("nearest cap needs a maximum of at least one light")
)

// PipelineType selects the shading strategy.
type PipelineType int

const (
	// PipelineForward shades in the geometry pass after a depth pre-pass.
	PipelineForward PipelineType = iota
	// PipelineDeferred writes a G-buffer first and shades in a screen-space lighting pass.
	PipelineDeferred
)

func (p PipelineType) String() string {
	switch p {
	case PipelineForward:
		return "forward"
	case PipelineDeferred:
		return "deferred"
	default:
		return fmt.Sprintf("pipeline(%d)", int(p))
	}
}

// CullingMethod selects how lights are matched to screen regions. The integer
// values are uploaded to shaders as the first component of cullingMethod.
type CullingMethod int

const (
	// CullingNone evaluates every light at every fragment.
	CullingNone CullingMethod = iota
	// CullingBoundingSphere tests each light's bounding sphere per fragment.
	CullingBoundingSphere
	// CullingRasterSphere rasterizes each point light's bounding sphere (deferred only).
	CullingRasterSphere
	// CullingTiledCPU assigns lights to 2D screen tiles on the CPU.
	CullingTiledCPU
	// CullingClusteredCPU assigns lights to 3D clusters (tile x depth slice) on the CPU.
	CullingClusteredCPU
	// CullingTiledGPU is selectable but has no implementation.
	CullingTiledGPU
	// CullingClusteredGPU is selectable but has no implementation.
	CullingClusteredGPU
)

func (c CullingMethod) String() string {
	switch c {
	case CullingNone:
		return "none"
	case CullingBoundingSphere:
		return "boundingsphere"
	case CullingRasterSphere:
		return "rastersphere"
	case CullingTiledCPU:
		return "tiled-cpu"
	case CullingClusteredCPU:
		return "clustered-cpu"
	case CullingTiledGPU:
		return "tiled-gpu"
	case CullingClusteredGPU:
		return "clustered-gpu"
	default:
		return fmt.Sprintf("culling(%d)", int(c))
	}
}

// Partitioned reports whether the method fills the partition table and light index list.
func (c CullingMethod) Partitioned() bool {
	switch c {
	case CullingTiledCPU, CullingClusteredCPU, CullingTiledGPU, CullingClusteredGPU:
		return true
	}
	return false
}

// Implemented reports whether the method has a working implementation.
func (c CullingMethod) Implemented() bool {
	return c >= CullingNone && c <= CullingClusteredCPU
}

// Tiled reports whether the method partitions screen space only (Z forced to 1).
func (c CullingMethod) Tiled() bool {
	return c == CullingTiledCPU || c == CullingTiledGPU
}

// CapPolicy decides what happens when more lights overlap a partition than
// MaxLightsPerPartition.
type CapPolicy int

const (
	// CapNone keeps every overlapping light; the maximum only sizes scratch storage.
	CapNone CapPolicy = iota
	// CapNearest keeps the MaxLightsPerPartition lights nearest the camera.
	CapNearest
)

func (c CapPolicy) String() string {
	switch c {
	case CapNone:
		return "none"
	case CapNearest:
		return "nearest"
	default:
		return fmt.Sprintf("cap(%d)", int(c))
	}
}

// ParseCapPolicy maps "none" or "nearest" to a CapPolicy.
func ParseCapPolicy(s string) (CapPolicy, error) {
	switch s {
	case "", "none":
		return CapNone, nil
	case "nearest":
		return CapNearest, nil
	}
	return CapNone, fmt.Errorf("unknown cap policy %q", s)
}

// Grid holds the partition counts along screen x, screen y and view depth.
type Grid struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Partitions returns X*Y*Z.
func (g Grid) Partitions() int {
	return g.X * g.Y * g.Z
}

// Validate returns ErrInvalidGrid if any dimension is not positive.
func (g Grid) Validate() error {
	if g.X <= 0 || g.Y <= 0 || g.Z <= 0 {
		return fmt.Errorf("%w: %d x %d x %d", ErrInvalidGrid, g.X, g.Y, g.Z)
	}
	return nil
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%dx%d", g.X, g.Y, g.Z)
}

// Config is the runtime configuration surface of the light culling engine.
type Config struct {
	Pipeline              PipelineType  `json:"pipeline"`
	Culling               CullingMethod `json:"culling"`
	Grid                  Grid          `json:"grid"`
	MaxLightsPerPartition int           `json:"maxLightsPerPartition"`
	CapPolicy             CapPolicy     `json:"capPolicy"`
	ViewportWidth         int           `json:"viewportWidth"`
	ViewportHeight        int           `json:"viewportHeight"`
}

// Default values used by NewConfig.
const (
	DefaultTilesX                = 80
	DefaultTilesY                = 45
	DefaultClustersZ             = 32
	DefaultMaxLightsPerPartition = 64
	DefaultViewportWidth         = 1280
	DefaultViewportHeight        = 720
)

// NewConfig returns the default configuration (deferred, tiled CPU culling,
// 80x45 tiles, 32 depth slices, 64 lights per partition) with options applied
// and the result normalized.
//
// Parameters:
//   - opts: functional options applied after the defaults
//
// Returns:
//   - Config: the configuration
func NewConfig(opts ...ConfigBuilderOption) Config {
	c := Config{
		Pipeline:              PipelineDeferred,
		Culling:               CullingTiledCPU,
		Grid:                  Grid{X: DefaultTilesX, Y: DefaultTilesY, Z: DefaultClustersZ},
		MaxLightsPerPartition: DefaultMaxLightsPerPartition,
		CapPolicy:             CapNone,
		ViewportWidth:         DefaultViewportWidth,
		ViewportHeight:        DefaultViewportHeight,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c.Normalize()
}

// Normalize clamps dimensions to at least 1, clamps the light maximum to be
// non-negative, and forces Grid.Z to 1 for tiled methods.
func (c Config) Normalize() Config {
	c.Grid.X = max(c.Grid.X, 1)
	c.Grid.Y = max(c.Grid.Y, 1)
	c.Grid.Z = max(c.Grid.Z, 1)
	if c.Culling.Tiled() {
		c.Grid.Z = 1
	}
	c.MaxLightsPerPartition = max(c.MaxLightsPerPartition, 0)
	c.ViewportWidth = max(c.ViewportWidth, 1)
	c.ViewportHeight = max(c.ViewportHeight, 1)
	return c
}

// Validate checks the grid, the cap and the pipeline/culling combination.
func (c Config) Validate() error {
	if err := c.Grid.Validate(); err != nil {
		return err
	}
	if c.CapPolicy == CapNearest && c.MaxLightsPerPartition < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidCap, c.MaxLightsPerPartition)
	}
	if c.Pipeline == PipelineForward && (c.Culling == CullingBoundingSphere || c.Culling == CullingRasterSphere) {
		return fmt.Errorf("%w: %s under %s", ErrUnsupportedCombination, c.Culling, c.Pipeline)
	}
	return nil
}

// Name returns the pipeline name for the configuration, e.g. "forward-tiled-cpu".
func (c Config) Name() string {
	return c.Pipeline.String() + "-" + c.Culling.String()
}

// Switch returns c with the pipeline and culling method of the named
// pipeline. Leaving a tiled method for a clustered one restores
// DefaultClustersZ depth slices, since tiled configurations carry Z = 1.
//
// Parameters:
//   - name: one of PipelineNames()
//
// Returns:
//   - Config: the normalized configuration, not yet validated
//   - error: ErrUnknownPipeline for unrecognized names
func (c Config) Switch(name string) (Config, error) {
	p, m, err := ParsePipeline(name)
	if err != nil {
		return c, err
	}
	if m.Partitioned() && !m.Tiled() && c.Culling.Tiled() {
		c.Grid.Z = DefaultClustersZ
	}
	c.Pipeline, c.Culling = p, m
	return c.Normalize(), nil
}

type pipelineEntry struct {
	pipeline PipelineType
	culling  CullingMethod
}

var pipelineNames = map[string]pipelineEntry{
	"deferred-none":           {PipelineDeferred, CullingNone},
	"deferred-boundingsphere": {PipelineDeferred, CullingBoundingSphere},
	"deferred-rastersphere":   {PipelineDeferred, CullingRasterSphere},
	"deferred-tiled-cpu":      {PipelineDeferred, CullingTiledCPU},
	"deferred-clustered-cpu":  {PipelineDeferred, CullingClusteredCPU},
	"deferred-tiled-gpu":      {PipelineDeferred, CullingTiledGPU},
	"deferred-clustered-gpu":  {PipelineDeferred, CullingClusteredGPU},
	"forward-none":            {PipelineForward, CullingNone},
	"forward-tiled-cpu":       {PipelineForward, CullingTiledCPU},
	"forward-clustered-cpu":   {PipelineForward, CullingClusteredCPU},
	"forward-tiled-gpu":       {PipelineForward, CullingTiledGPU},
	"forward-clustered-gpu":   {PipelineForward, CullingClusteredGPU},
}

// ParsePipeline maps a pipeline name to its pipeline type and culling method.
//
// Parameters:
//   - name: one of PipelineNames()
//
// Returns:
//   - PipelineType: the shading strategy
//   - CullingMethod: the culling method
//   - error: ErrUnknownPipeline for unrecognized names
func ParsePipeline(name string) (PipelineType, CullingMethod, error) {
	e, ok := pipelineNames[name]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnknownPipeline, name)
	}
	return e.pipeline, e.culling, nil
}

// PipelineNames returns every accepted pipeline name in sorted order.
func PipelineNames() []string {
	names := make([]string, 0, len(pipelineNames))
	for n := range pipelineNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
