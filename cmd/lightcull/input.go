package main

import (
	"github.com/Carmen-Shannon/oxy-lightcull/common"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/camera"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/config"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
)

// keyPipelines maps the number keys to the pipelines of the interactive viewer.
var keyPipelines = map[uint32]string{
	common.Key1: "deferred-none",
	common.Key2: "deferred-boundingsphere",
	common.Key3: "deferred-rastersphere",
	common.Key4: "deferred-tiled-cpu",
	common.Key5: "deferred-clustered-cpu",
	common.Key6: "forward-none",
	common.Key7: "forward-tiled-cpu",
	common.Key8: "forward-clustered-cpu",
}

// switcher is the part of the engine context the input handler drives.
type switcher interface {
	Config() config.Config
	Apply(cfg config.Config) error
}

// inputHandler turns key and scroll events into camera moves and pipeline switches.
type inputHandler struct {
	target switcher
	ctrl   camera.CameraController
	log    logging.Logger
}

// onKey handles one key press or repeat.
//
// Parameters:
//   - key: the GLFW key code
func (h *inputHandler) onKey(key uint32) {
	if name, ok := keyPipelines[key]; ok {
		h.switchTo(name)
		return
	}
	if h.ctrl == nil {
		return
	}
	switch key {
	case common.KeyW:
		h.ctrl.PanForward(1)
	case common.KeyS:
		h.ctrl.PanForward(-1)
	case common.KeyD:
		h.ctrl.PanRight(1)
	case common.KeyA:
		h.ctrl.PanRight(-1)
	case common.KeyQ:
		h.ctrl.OrbitLeft()
	case common.KeyE:
		h.ctrl.OrbitRight()
	case common.KeyR:
		h.ctrl.OrbitUp()
	case common.KeyF:
		h.ctrl.OrbitDown()
	}
}

func (h *inputHandler) onScroll(delta float32) {
	if h.ctrl != nil {
		h.ctrl.Zoom(delta)
	}
}

func (h *inputHandler) switchTo(name string) {
	cfg, err := h.target.Config().Switch(name)
	if err == nil {
		err = h.target.Apply(cfg)
	}
	if err != nil {
		h.log.Warnf("[Viewer] cannot switch to %s: %v", name, err)
		return
	}
	h.log.Infof("[Viewer] switching to %s", name)
}
