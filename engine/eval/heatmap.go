package eval

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/config"
	xdraw "golang.org/x/image/draw"
)

// HeatmapCellSize is the default edge length of one tile in a heatmap, in pixels.
const HeatmapCellSize = 8

// Heatmap renders per-tile light counts as an image: black for an empty tile,
// blue through red up to the largest count. Row 0 of the counts is the
// bottom row of the screen, so it is drawn last.
//
// Parameters:
//   - counts: Grid.X*Grid.Y counts as returned by TileCounts
//   - grid: the grid the counts were taken from
//   - cell: edge length of one tile in the output (minimum 1)
//
// Returns:
//   - *image.RGBA: the scaled heatmap
//   - error: if len(counts) does not match the grid
func Heatmap(counts []int32, grid config.Grid, cell int) (*image.RGBA, error) {
	if grid.X <= 0 || grid.Y <= 0 || len(counts) != grid.X*grid.Y {
		return nil, fmt.Errorf("heatmap: %d counts for a %dx%d grid", len(counts), grid.X, grid.Y)
	}
	cell = max(cell, 1)

	var peak int32
	for _, c := range counts {
		peak = max(peak, c)
	}

	src := image.NewRGBA(image.Rect(0, 0, grid.X, grid.Y))
	for y := range grid.Y {
		for x := range grid.X {
			src.SetRGBA(x, grid.Y-1-y, heat(counts[y*grid.X+x], peak))
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, grid.X*cell, grid.Y*cell))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst, nil
}

// heat maps a count onto a blue-to-red ramp.
func heat(c, peak int32) color.RGBA {
	if c <= 0 || peak <= 0 {
		return color.RGBA{A: 255}
	}
	t := float32(c) / float32(peak)
	return color.RGBA{
		R: uint8(255 * t),
		G: uint8(64 * (1 - t)),
		B: uint8(255 * (1 - t)),
		A: 255,
	}
}

// WriteHeatmap encodes the heatmap of counts as PNG.
//
// Parameters:
//   - w: the destination
//   - counts, grid, cell: as for Heatmap
//
// Returns:
//   - error: a size mismatch or an encoding error
func WriteHeatmap(w io.Writer, counts []int32, grid config.Grid, cell int) error {
	img, err := Heatmap(counts, grid, cell)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("heatmap: %w", err)
	}
	return nil
}

// WriteHeatmapFile writes the PNG heatmap of a report's final tile counts.
func WriteHeatmapFile(path string, rep Report, cell int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create heatmap: %w", err)
	}
	defer f.Close()
	return WriteHeatmap(f, rep.TileCounts, rep.Config.Grid, cell)
}
