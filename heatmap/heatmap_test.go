package heatmap

import (
	"bytes"
	"errors"
	"image/png"
	"math"
	"testing"

	"mazeview/models"
	"mazeview/render"

	. "github.com/smartystreets/goconvey/convey"
)

func frameWith(size models.GridSize, values map[models.Position]float64) render.Frame {
	table := models.ValueTable{}
	for p, v := range values {
		table[p] = models.ValueRow{
			State:  p,
			Values: models.Values{models.Float(v), nil, nil, nil},
		}
	}
	snap := models.Snapshot{
		Loaded: true,
		Maze:   models.MazeState{Goal: models.Position{Row: size.Rows - 1, Col: size.Cols - 1}},
		Table:  table,
	}
	return render.Render(snap, size)
}

func TestGrid(t *testing.T) {
	size := models.GridSize{Rows: 2, Cols: 3}

	Convey("Given a partially known table", t, func() {
		grid := NewGrid(frameWith(size, map[models.Position]float64{
			{Row: 0, Col: 0}: 4,
			{Row: 1, Col: 2}: -2,
		}))

		Convey("Dimensions are columns by rows", func() {
			c, r := grid.Dims()
			So(c, ShouldEqual, 3)
			So(r, ShouldEqual, 2)
		})

		Convey("Row 0 is at the top and unknown cells are NaN", func() {
			So(grid.Z(0, 1), ShouldEqual, 4)
			So(grid.Z(2, 0), ShouldEqual, -2)
			So(math.IsNaN(grid.Z(1, 1)), ShouldBeTrue)
		})

		Convey("The range spans the known values", func() {
			So(grid.Min(), ShouldEqual, -2)
			So(grid.Max(), ShouldEqual, 4)
		})
	})

	Convey("A flat or empty table still has a range", t, func() {
		flat := NewGrid(frameWith(size, map[models.Position]float64{{Row: 0, Col: 0}: 3}))
		So(flat.Min(), ShouldEqual, 2)
		So(flat.Max(), ShouldEqual, 4)

		empty := NewGrid(frameWith(size, nil))
		So(empty.Min(), ShouldEqual, 0)
		So(empty.Max(), ShouldEqual, 1)
	})
}

func TestWritePNG(t *testing.T) {
	Convey("The heatmap encodes as a png", t, func() {
		size := models.GridSize{Rows: 3, Cols: 3}
		frame := frameWith(size, map[models.Position]float64{
			{Row: 0, Col: 0}: 1,
			{Row: 1, Col: 1}: 5,
		})

		var buf bytes.Buffer
		So(WritePNG(&buf, frame), ShouldBeNil)
		cfg, err := png.DecodeConfig(&buf)
		So(err, ShouldBeNil)
		So(cfg.Width, ShouldBeGreaterThan, 0)
		So(cfg.Height, ShouldEqual, cfg.Width)
	})

	Convey("Single row grids are refused", t, func() {
		var buf bytes.Buffer
		err := WritePNG(&buf, frameWith(models.GridSize{Rows: 1, Cols: 4}, nil))
		So(errors.Is(err, ErrGridTooSmall), ShouldBeTrue)
		So(buf.Len(), ShouldEqual, 0)
	})
}
