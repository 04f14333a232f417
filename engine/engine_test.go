package engine

import (
	"context"
	"testing"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/camera"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/config"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/diag"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/gpu"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/pass"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContextDefaults(t *testing.T) {
	a, err := NewContext()
	require.NoError(t, err)
	b, err := NewContext()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	assert.NotEqual(t, a.ID(), b.ID())
	assert.IsType(t, &gpu.HeadlessDevice{}, a.Device())
	assert.NotNil(t, a.Scene())
	assert.Equal(t, "deferred-tiled-cpu", a.Config().Name())
}

func TestNewContextRejectsInvalidConfig(t *testing.T) {
	cfg := config.NewConfig(config.WithPipeline(config.PipelineForward), config.WithCulling(config.CullingRasterSphere))
	_, err := NewContext(WithConfig(cfg))
	assert.ErrorIs(t, err, config.ErrUnsupportedCombination)
}

func TestApplyAndResizeAreQueued(t *testing.T) {
	cam := camera.NewCamera()
	dev := gpu.NewHeadlessDevice()
	c, err := NewContext(WithDevice(dev), WithScene(scene.NewScene(scene.WithCamera(cam))))
	require.NoError(t, err)

	require.NoError(t, c.Apply(config.NewConfig(config.WithPipelineName("forward-clustered-cpu"))))
	c.Resize(640, 480)

	w, h := dev.TargetSize(gpu.TargetLit)
	assert.Equal(t, [2]int{1280, 720}, [2]int{w, h}, "nothing changes before the next frame")

	stats := c.Frame()
	assert.Equal(t, "forward-clustered-cpu", stats.Pipeline)
	w, h = dev.TargetSize(gpu.TargetLit)
	assert.Equal(t, [2]int{640, 480}, [2]int{w, h})
	assert.InDelta(t, 640.0/480.0, cam.Params().Aspect, 1e-6)

	cfg := c.Config()
	assert.Equal(t, 640, cfg.ViewportWidth)
	assert.Equal(t, 480, cfg.ViewportHeight)

	// A later switch keeps the resized viewport.
	require.NoError(t, c.Apply(config.NewConfig(config.WithPipelineName("deferred-none"))))
	assert.Equal(t, 640, c.Config().ViewportWidth)
}

func TestApplyRacingResizeKeepsLatestViewport(t *testing.T) {
	dev := gpu.NewHeadlessDevice()
	c, err := NewContext(WithDevice(dev))
	require.NoError(t, err)
	defer c.Close()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		names := []string{"forward-tiled-cpu", "deferred-clustered-cpu"}
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			assert.NoError(t, c.Apply(config.NewConfig(config.WithPipelineName(names[i%2]))))
		}
	}()

	for i := range 50 {
		c.Resize(640+i, 480+i)
		c.Frame()
	}
	close(stop)
	<-done
	c.Frame()

	cfg := c.Config()
	assert.Equal(t, 640+49, cfg.ViewportWidth)
	assert.Equal(t, 480+49, cfg.ViewportHeight)
	w, h := dev.TargetSize(gpu.TargetLit)
	assert.Equal(t, [2]int{640 + 49, 480 + 49}, [2]int{w, h})
}

func TestApplyRejectsInvalidConfig(t *testing.T) {
	c, err := NewContext()
	require.NoError(t, err)
	defer c.Close()

	err = c.Apply(config.NewConfig(config.WithCapPolicy(config.CapNearest), config.WithMaxLightsPerPartition(0)))
	assert.ErrorIs(t, err, config.ErrInvalidCap)
	assert.Equal(t, "deferred-tiled-cpu", c.Config().Name())
}

func TestDiagnosticsAreStampedWithFrame(t *testing.T) {
	rec := &diag.Recorder{}
	c, err := NewContext(WithDiagnostics(rec))
	require.NoError(t, err)

	c.Frame()
	c.Frame()
	c.Frame()

	got := rec.Diagnostics()
	require.Len(t, got, 3)
	for i, d := range got {
		assert.Equal(t, diag.KindMissingCamera, d.Kind)
		assert.Equal(t, uint64(i+1), d.Frame)
	}
	assert.Equal(t, uint64(3), c.Frames())
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := NewContext(WithScene(scene.NewScene(scene.WithCamera(camera.NewCamera()))))
	require.NoError(t, err)
	c.SetFrameCallback(func(stats pass.FrameStats) {
		if stats.Frame == 5 {
			cancel()
		}
	})

	require.NoError(t, c.Run(ctx))
	assert.Equal(t, uint64(5), c.Frames())
}

func TestRunRecoversFromPanic(t *testing.T) {
	c, err := NewContext(WithFrameCallback(func(stats pass.FrameStats) {
		if stats.Frame == 2 {
			panic("boom")
		}
	}))
	require.NoError(t, err)

	err = c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, uint64(2), c.Frames())
}
