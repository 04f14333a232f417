package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/config"
)

// options holds the parsed command line.
type options struct {
	lights      int
	seed        int64
	pipeline    string
	tiles       tilesValue
	clustersZ   int
	maxLights   int
	capPolicy   string
	logFile     string
	eval        bool
	interactive bool
	trajectory  string
	frames      int
	sweep       string
	workers     int
	heatmap     string
	statsAddr   string
	bounds      bool
	debug       bool
	validate    bool
	width       int
	height      int
}

// tilesValue parses "X,Y" or "XxY".
type tilesValue struct {
	x, y int
}

func (t *tilesValue) String() string {
	return fmt.Sprintf("%d,%d", t.x, t.y)
}

func (t *tilesValue) Set(s string) error {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == 'x' || r == ' ' })
	if len(parts) != 2 {
		return fmt.Errorf("want X,Y, got %q", s)
	}
	x, errX := strconv.Atoi(parts[0])
	y, errY := strconv.Atoi(parts[1])
	if err := errors.Join(errX, errY); err != nil {
		return err
	}
	t.x, t.y = x, y
	return nil
}

// joinTileArgs rewrites "--numTiles X Y" into "--numTiles X,Y" so the two
// counts can be given as separate arguments.
func joinTileArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if (a == "--numTiles" || a == "-numTiles") && i+2 < len(args) {
			_, errX := strconv.Atoi(args[i+1])
			_, errY := strconv.Atoi(args[i+2])
			if errX == nil && errY == nil {
				out = append(out, a, args[i+1]+","+args[i+2])
				i += 2
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

// parseFlags parses args (without the program name).
//
// Parameters:
//   - args: the command line arguments
//   - output: where usage and errors are printed
//
// Returns:
//   - options: the parsed options
//   - error: flag.ErrHelp or a parse error
func parseFlags(args []string, output io.Writer) (options, error) {
	o := options{tiles: tilesValue{config.DefaultTilesX, config.DefaultTilesY}}

	fs := flag.NewFlagSet("lightcull", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.IntVar(&o.lights, "lights", 1, "number of random point lights in the demo scene")
	fs.Int64Var(&o.seed, "seed", 1, "random seed for the demo scene")
	fs.StringVar(&o.pipeline, "pipeline", "deferred-tiled-cpu", "pipeline name: "+strings.Join(config.PipelineNames(), ", "))
	fs.Var(&o.tiles, "numTiles", "tile counts across and down, as X Y or X,Y")
	fs.IntVar(&o.clustersZ, "numClustersZ", config.DefaultClustersZ, "depth slices for clustered culling")
	fs.IntVar(&o.maxLights, "maxLightsPerTile", config.DefaultMaxLightsPerPartition, "maximum lights per partition")
	fs.StringVar(&o.capPolicy, "cap", "none", "cap policy when a partition exceeds the maximum: none or nearest")
	fs.StringVar(&o.logFile, "log-file", "", "write the evaluation report as JSON to this file")
	fs.BoolVar(&o.eval, "eval", false, "run headless along a camera trajectory")
	fs.BoolVar(&o.interactive, "interactive", false, "open a window (default unless --eval)")
	fs.BoolVar(&o.interactive, "I", false, "shorthand for --interactive")
	fs.StringVar(&o.trajectory, "trajectory", "", "JSON camera trajectory for --eval (default: generated orbit)")
	fs.IntVar(&o.frames, "frames", 120, "frames of the generated orbit when no trajectory is given")
	fs.StringVar(&o.sweep, "sweep", "", "comma-separated pipeline names to evaluate in parallel, or \"all\"")
	fs.IntVar(&o.workers, "workers", 0, "parallel evaluation runs for --sweep (0 = GOMAXPROCS)")
	fs.StringVar(&o.heatmap, "heatmap", "", "write the final per-tile light counts as PNG (one file per run)")
	fs.StringVar(&o.statsAddr, "stats-addr", "", "serve frame statistics over WebSocket at this address, e.g. :8080")
	fs.BoolVar(&o.bounds, "bounds", false, "draw each light's bounding sphere")
	fs.BoolVar(&o.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&o.validate, "validate-shaders", false, "compile every shader program and exit")
	fs.IntVar(&o.width, "width", config.DefaultViewportWidth, "viewport width")
	fs.IntVar(&o.height, "height", config.DefaultViewportHeight, "viewport height")

	if err := fs.Parse(joinTileArgs(args)); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if o.interactive {
		o.eval = false
	}
	return o, nil
}

// buildConfig turns the options into a validated configuration.
func buildConfig(o options) (config.Config, error) {
	capPolicy, err := config.ParseCapPolicy(o.capPolicy)
	if err != nil {
		return config.Config{}, err
	}
	if _, _, err := config.ParsePipeline(o.pipeline); err != nil {
		return config.Config{}, err
	}
	cfg := config.NewConfig(
		config.WithPipelineName(o.pipeline),
		config.WithGrid(o.tiles.x, o.tiles.y, o.clustersZ),
		config.WithMaxLightsPerPartition(o.maxLights),
		config.WithCapPolicy(capPolicy),
		config.WithViewport(o.width, o.height),
	)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// sweepNames expands the --sweep value.
func sweepNames(s string) []string {
	if s == "all" {
		return config.PipelineNames()
	}
	var names []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}
