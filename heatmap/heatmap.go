// heatmap plots the best known action-value of every grid cell as a PNG.
package heatmap

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"mazeview/render"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrGridTooSmall is returned for grids narrower or shorter than two cells, which
// the heatmap cannot lay out.
var ErrGridTooSmall error = errors.New("heatmap needs at least a 2x2 grid")

// Size is the width and height of the rendered image.
const Size = 4 * vg.Inch

// Grid adapts a frame's best known values to plotter.GridXYZ. Row 0 of the maze is
// drawn at the top, so grid rows are flipped. Cells with no known value are NaN
// and left unpainted.
type Grid struct {
	frame    render.Frame
	min, max float64
}

var _ plotter.GridXYZ = &Grid{}

func NewGrid(frame render.Frame) *Grid {
	var known []float64
	for _, row := range frame.Cells {
		for _, cell := range row {
			if cell.HasBest {
				known = append(known, cell.Max)
			}
		}
	}

	g := &Grid{frame: frame, min: 0, max: 1}
	if len(known) > 0 {
		g.min, g.max = floats.Min(known), floats.Max(known)
	}
	// The palette needs a non-empty range.
	if g.min == g.max {
		g.min, g.max = g.min-1, g.max+1
	}
	return g
}

func (g *Grid) Dims() (c, r int) {
	return g.frame.Size.Cols, g.frame.Size.Rows
}

func (g *Grid) Z(c, r int) float64 {
	cell := g.frame.Cells[g.frame.Size.Rows-1-r][c]
	if !cell.HasBest {
		return math.NaN()
	}
	return cell.Max
}

func (g *Grid) X(c int) float64 {
	return float64(c)
}

func (g *Grid) Y(r int) float64 {
	return float64(r)
}

func (g *Grid) Min() float64 {
	return g.min
}

func (g *Grid) Max() float64 {
	return g.max
}

// Plot builds the heatmap plot of frame.
func Plot(frame render.Frame) (*plot.Plot, error) {
	if frame.Size.Rows < 2 || frame.Size.Cols < 2 {
		return nil, fmt.Errorf("%w, got %dx%d", ErrGridTooSmall, frame.Size.Rows, frame.Size.Cols)
	}

	grid := NewGrid(frame)
	hm := plotter.NewHeatMap(grid, palette.Heat(12, 1))
	hm.Min, hm.Max = grid.Min(), grid.Max()

	p := plot.New()
	p.Title.Text = "Best known value per cell"
	p.X.Label.Text = "col"
	p.Y.Label.Text = "row"
	p.Add(hm)

	colTicks := make([]plot.Tick, 0, frame.Size.Cols)
	for c := 0; c < frame.Size.Cols; c++ {
		colTicks = append(colTicks, plot.Tick{Value: float64(c), Label: strconv.Itoa(c)})
	}
	rowTicks := make([]plot.Tick, 0, frame.Size.Rows)
	for r := 0; r < frame.Size.Rows; r++ {
		rowTicks = append(rowTicks, plot.Tick{Value: float64(frame.Size.Rows - 1 - r), Label: strconv.Itoa(r)})
	}
	p.X.Tick.Marker = plot.ConstantTicks(colTicks)
	p.Y.Tick.Marker = plot.ConstantTicks(rowTicks)
	return p, nil
}

// WritePNG writes the heatmap of frame to w.
func WritePNG(w io.Writer, frame render.Frame) error {
	p, err := Plot(frame)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(Size, Size, "png")
	if err != nil {
		return fmt.Errorf("heatmap: %w", err)
	}
	if _, err = wt.WriteTo(w); err != nil {
		return fmt.Errorf("heatmap: %w", err)
	}
	return nil
}
