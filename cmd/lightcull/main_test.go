package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-lightcull/common"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/camera"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/config"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/eval"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, o options)
	}{
		{
			name: "defaults",
			check: func(t *testing.T, o options) {
				assert.Equal(t, 1, o.lights)
				assert.Equal(t, "deferred-tiled-cpu", o.pipeline)
				assert.Equal(t, tilesValue{80, 45}, o.tiles)
				assert.False(t, o.eval)
			},
		},
		{
			name: "separate tile counts",
			args: []string{"--numTiles", "16", "9", "--lights", "200"},
			check: func(t *testing.T, o options) {
				assert.Equal(t, tilesValue{16, 9}, o.tiles)
				assert.Equal(t, 200, o.lights)
			},
		},
		{
			name: "joined tile counts",
			args: []string{"--numTiles=32x18", "--numClustersZ", "16"},
			check: func(t *testing.T, o options) {
				assert.Equal(t, tilesValue{32, 18}, o.tiles)
				assert.Equal(t, 16, o.clustersZ)
			},
		},
		{
			name: "interactive wins over eval",
			args: []string{"--eval", "-I"},
			check: func(t *testing.T, o options) {
				assert.False(t, o.eval)
				assert.True(t, o.interactive)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseFlags(tt.args, io.Discard)
			require.NoError(t, err)
			tt.check(t, o)
		})
	}

	_, err := parseFlags([]string{"--numTiles", "16"}, io.Discard)
	assert.Error(t, err)
	_, err = parseFlags([]string{"stray"}, io.Discard)
	assert.Error(t, err)
	_, err = parseFlags([]string{"-h"}, io.Discard)
	assert.True(t, errors.Is(err, flag.ErrHelp))
}

func TestBuildConfig(t *testing.T) {
	o, err := parseFlags([]string{"--pipeline", "forward-clustered-cpu", "--numTiles", "16", "9", "--numClustersZ", "24", "--cap", "nearest"}, io.Discard)
	require.NoError(t, err)
	cfg, err := buildConfig(o)
	require.NoError(t, err)
	assert.Equal(t, "forward-clustered-cpu", cfg.Name())
	assert.Equal(t, config.Grid{X: 16, Y: 9, Z: 24}, cfg.Grid)
	assert.Equal(t, config.CapNearest, cfg.CapPolicy)

	o.pipeline = "forward-everything"
	_, err = buildConfig(o)
	assert.ErrorIs(t, err, config.ErrUnknownPipeline)

	o.pipeline = "deferred-none"
	o.capPolicy = "sometimes"
	_, err = buildConfig(o)
	assert.Error(t, err)
}

func TestSweepNames(t *testing.T) {
	assert.Equal(t, config.PipelineNames(), sweepNames("all"))
	assert.Equal(t, []string{"forward-none", "deferred-none"}, sweepNames(" forward-none,,deferred-none "))
}

type fakeSwitcher struct {
	cfg     config.Config
	applied []config.Config
	err     error
}

func (f *fakeSwitcher) Config() config.Config { return f.cfg }

func (f *fakeSwitcher) Apply(cfg config.Config) error {
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, cfg)
	f.cfg = cfg
	return nil
}

func TestInputSwitchesPipelines(t *testing.T) {
	target := &fakeSwitcher{cfg: config.NewConfig()}
	h := &inputHandler{target: target, log: logging.NewNopLogger()}

	h.onKey(common.Key8)
	h.onKey(common.Key1)
	require.Len(t, target.applied, 2)
	assert.Equal(t, "forward-clustered-cpu", target.applied[0].Name())
	assert.Equal(t, config.DefaultClustersZ, target.applied[0].Grid.Z)
	assert.Equal(t, "deferred-none", target.applied[1].Name())

	target.err = errors.New("queue closed")
	h.onKey(common.Key4)
	assert.Len(t, target.applied, 2)
}

func TestInputMovesCamera(t *testing.T) {
	ctrl := camera.NewOrbitController()
	h := &inputHandler{target: &fakeSwitcher{cfg: config.NewConfig()}, ctrl: ctrl, log: logging.NewNopLogger()}

	start := ctrl.Position()
	h.onKey(common.KeyQ)
	assert.NotEqual(t, start, ctrl.Position())

	radius := ctrl.Radius()
	h.onScroll(2)
	assert.Less(t, ctrl.Radius(), radius)

	target := ctrl.Target()
	h.onKey(common.KeyD)
	assert.NotEqual(t, target, ctrl.Target())
}

func TestRunEvalWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	trajectory := filepath.Join(dir, "trajectory.json")
	f, err := os.Create(trajectory)
	require.NoError(t, err)
	require.NoError(t, eval.EncodeTrajectory(f, eval.OrbitTrajectory(3, 12, 3)))
	require.NoError(t, f.Close())

	o, err := parseFlags([]string{
		"--eval", "--lights", "8", "--numTiles", "8", "4", "--numClustersZ", "4",
		"--trajectory", trajectory,
		"--sweep", "forward-tiled-cpu,deferred-clustered-cpu,deferred-none",
		"--log-file", filepath.Join(dir, "report.json"),
		"--heatmap", filepath.Join(dir, "tiles.png"),
	}, io.Discard)
	require.NoError(t, err)
	cfg, err := buildConfig(o)
	require.NoError(t, err)

	reports, err := runEval(context.Background(), o, cfg, logging.NewNopLogger())
	require.NoError(t, err)
	require.Len(t, reports, 3)
	for _, r := range reports {
		assert.Len(t, r.Frames, 3)
	}

	rf, err := os.Open(filepath.Join(dir, "report.json"))
	require.NoError(t, err)
	defer rf.Close()
	saved, err := eval.ReadReports(rf)
	require.NoError(t, err)
	assert.Len(t, saved, 3)

	assert.FileExists(t, filepath.Join(dir, "tiles-forward-tiled-cpu.png"))
	assert.FileExists(t, filepath.Join(dir, "tiles-deferred-clustered-cpu.png"))
	assert.NoFileExists(t, filepath.Join(dir, "tiles-deferred-none.png"))
}
