// Command lightcull renders the light culling demo scene, either in a window
// or headless along a camera trajectory for evaluation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/gpu"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	o, err := parseFlags(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	log, err := logging.NewLogger("lightcull", o.debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer log.Sync()

	if o.validate {
		if err := gpu.ValidateShaders(); err != nil {
			log.Errorf("[Shaders] %v", err)
			return 1
		}
		log.Infof("[Shaders] %d programs compiled", len(gpu.Programs()))
		return 0
	}

	cfg, err := buildConfig(o)
	if err != nil {
		log.Errorf("%v", err)
		return 2
	}
	log.Infof("lights: %d, pipeline: %s, grid %s", o.lights, cfg.Name(), cfg.Grid)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if o.eval {
		_, err = runEval(ctx, o, cfg, log)
	} else {
		err = runInteractive(ctx, o, cfg, log)
	}
	if err != nil {
		log.Errorf("%v", err)
		return 1
	}
	return 0
}
