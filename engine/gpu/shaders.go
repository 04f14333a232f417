package gpu

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/gogpu/naga"
)

//go:embed assets/prelude.wgsl
var preludeSource string

//go:embed assets/zprepass.wgsl
var zprepassSource string

//go:embed assets/forward.wgsl
var forwardSource string

//go:embed assets/gbuffer.wgsl
var gbufferSource string

//go:embed assets/deferred_light.wgsl
var deferredLightSource string

//go:embed assets/post.wgsl
var postSource string

// ProgramSource returns the complete WGSL source of a program: the shared
// prelude (uniform block, light records, storage slots, shading) followed by
// the program's entry points.
//
// Parameters:
//   - p: the program
//
// Returns:
//   - string: WGSL source with vs_main and fs_main entry points
func ProgramSource(p Program) string {
	var body string
	switch p {
	case ProgramZPrepass:
		body = zprepassSource
	case ProgramForward:
		body = forwardSource
	case ProgramGBuffer:
		body = gbufferSource
	case ProgramDeferredLight:
		body = deferredLightSource
	case ProgramPost:
		body = postSource
	default:
		return ""
	}
	return preludeSource + "\n" + body
}

// Programs returns every program in declaration order.
func Programs() []Program {
	out := make([]Program, 0, numPrograms)
	for p := range numPrograms {
		out = append(out, p)
	}
	return out
}

// ValidateShaders compiles every program with naga and returns all failures joined.
//
// Returns:
//   - error: nil if every program compiles
func ValidateShaders() error {
	var errs []error
	for _, p := range Programs() {
		if _, err := naga.Compile(ProgramSource(p)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}
