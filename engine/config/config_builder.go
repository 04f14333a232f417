package config

// ConfigBuilderOption is a function that configures a Config during construction.
type ConfigBuilderOption func(*Config)

// WithPipeline sets the shading strategy.
//
// Parameters:
//   - p: the pipeline type
//
// Returns:
//   - ConfigBuilderOption: a function that applies the pipeline option
func WithPipeline(p PipelineType) ConfigBuilderOption {
	return func(c *Config) {
		c.Pipeline = p
	}
}

// WithCulling sets the culling method.
//
// Parameters:
//   - m: the culling method
//
// Returns:
//   - ConfigBuilderOption: a function that applies the culling option
func WithCulling(m CullingMethod) ConfigBuilderOption {
	return func(c *Config) {
		c.Culling = m
	}
}

// WithPipelineName sets both pipeline type and culling method from a
// pipeline name. Unknown names leave the configuration unchanged; use
// ParsePipeline first when the error matters.
//
// Parameters:
//   - name: a pipeline name such as "deferred-tiled-cpu"
//
// Returns:
//   - ConfigBuilderOption: a function that applies the pipeline name option
func WithPipelineName(name string) ConfigBuilderOption {
	return func(c *Config) {
		if p, m, err := ParsePipeline(name); err == nil {
			c.Pipeline = p
			c.Culling = m
		}
	}
}

// WithGrid sets the partition grid dimensions.
//
// Parameters:
//   - x: tiles across
//   - y: tiles down
//   - z: depth slices (ignored by tiled methods)
//
// Returns:
//   - ConfigBuilderOption: a function that applies the grid option
func WithGrid(x, y, z int) ConfigBuilderOption {
	return func(c *Config) {
		c.Grid = Grid{X: x, Y: y, Z: z}
	}
}

// WithMaxLightsPerPartition sets the per-partition light maximum.
//
// Parameters:
//   - n: the maximum (scratch sizing hint under CapNone)
//
// Returns:
//   - ConfigBuilderOption: a function that applies the option
func WithMaxLightsPerPartition(n int) ConfigBuilderOption {
	return func(c *Config) {
		c.MaxLightsPerPartition = n
	}
}

// WithCapPolicy sets the per-partition truncation policy.
func WithCapPolicy(p CapPolicy) ConfigBuilderOption {
	return func(c *Config) {
		c.CapPolicy = p
	}
}

// WithViewport sets the viewport size in pixels.
func WithViewport(width, height int) ConfigBuilderOption {
	return func(c *Config) {
		c.ViewportWidth = width
		c.ViewportHeight = height
	}
}
