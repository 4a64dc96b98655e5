package cell_views

import (
	"bytes"
	"context"
	"html/template"
	"strings"
	"testing"

	"mazeview/models"
	"mazeview/render"
	"mazeview/server/fastview"

	. "github.com/smartystreets/goconvey/convey"
)

var size = models.GridSize{Rows: 2, Cols: 3}

func testFrame() render.Frame {
	snap := models.Snapshot{
		Loaded: true,
		Maze: models.MazeState{
			Agent:     models.Position{Row: 0, Col: 0},
			Goal:      models.Position{Row: 1, Col: 2},
			Obstacles: []models.Position{{Row: 0, Col: 1}},
			Path:      []models.Position{{Row: 1, Col: 0}},
		},
		Table: models.ValueTable{
			{Row: 0, Col: 0}: {
				State:  models.Position{Row: 0, Col: 0},
				Values: models.Values{nil, models.Float(1), nil, models.Float(2.5)},
			},
			{Row: 1, Col: 1}: {
				State:  models.Position{Row: 1, Col: 1},
				Values: models.Values{models.Float(-1), nil, nil, nil},
			},
		},
		Status: "Ready",
	}
	return render.Render(snap, size)
}

// opsByID indexes updates by element, failing on duplicate ids.
func opsByID(updates []fastview.EleUpdate) map[string]map[string]string {
	byID := map[string]map[string]string{}
	for _, update := range updates {
		So(byID, ShouldNotContainKey, update.EleId)
		ops := map[string]string{}
		for _, op := range update.Ops {
			ops[op.Key] = op.Value
		}
		byID[update.EleId] = ops
	}
	return byID
}

func execute(view fastview.ViewComponent, frame render.Frame) string {
	t := template.New("page").Funcs(fastview.TemplateFuncs)
	name, err := view.Parse(t)
	So(err, ShouldBeNil)
	_, err = t.Parse(`{{ template "` + name + `" . }}`)
	So(err, ShouldBeNil)

	var buf bytes.Buffer
	So(t.Execute(&buf, frame), ShouldBeNil)
	return buf.String()
}

func firstUpdate(view fastview.ViewComponent, frames chan<- render.Frame, frame render.Frame) []fastview.EleUpdate {
	frames <- frame
	return <-view.Updates()
}

func TestMazeGrid(t *testing.T) {
	Convey("Given a maze grid view", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		frames := make(chan render.Frame)
		view := NewMazeGrid(ctx.Done(), size, frames)

		Convey("Every cell gets its fill, class, value and arrow", func() {
			byID := opsByID(firstUpdate(view, frames, testFrame()))
			So(len(byID), ShouldEqual, 3*size.Rows*size.Cols)

			So(byID["cell-0-0"], ShouldResemble, map[string]string{"fill": "steelblue", "class": "agent"})
			So(byID["cell-0-1"]["class"], ShouldEqual, "obstacle")
			So(byID["cell-1-2"]["class"], ShouldEqual, "goal")
			So(byID["cell-1-0"], ShouldResemble, map[string]string{"fill": "lightyellow", "class": "empty trail"})

			So(byID["val-0-0"]["textContent"], ShouldEqual, "2.50")
			So(byID["arrow-0-0"], ShouldResemble, map[string]string{"transform": "rotate(90)", "visibility": "visible"})
			So(byID["val-1-1"]["textContent"], ShouldEqual, "-1.00")
			So(byID["arrow-1-1"]["transform"], ShouldEqual, "rotate(0)")

			So(byID["val-0-2"]["textContent"], ShouldEqual, "")
			So(byID["arrow-0-2"]["visibility"], ShouldEqual, "hidden")
		})

		Convey("The template renders the same cells", func() {
			html := execute(view, testFrame())
			So(html, ShouldContainSubstring, `id="cell-0-0" class="agent"`)
			So(html, ShouldContainSubstring, `id="arrow-0-0"`)
			So(html, ShouldContainSubstring, `rotate(90)`)
			So(strings.Count(html, "<rect"), ShouldEqual, size.Rows*size.Cols)
		})
	})
}

func TestValueTable(t *testing.T) {
	Convey("Given a value table view", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		frames := make(chan render.Frame)
		view := NewValueTable(ctx.Done(), size, frames)

		Convey("Known rows show their values, the agent's row is current, the rest hidden", func() {
			byID := opsByID(firstUpdate(view, frames, testFrame()))
			So(len(byID), ShouldEqual, (1+models.NumActions)*size.Rows*size.Cols)

			So(byID["qrow-0-0"]["class"], ShouldEqual, "current")
			So(byID["qrow-1-1"]["class"], ShouldEqual, "")
			So(byID["qrow-0-2"]["class"], ShouldEqual, "hidden")

			So(byID["q-0-0-0"]["textContent"], ShouldEqual, render.NotAvailable)
			So(byID["q-0-0-1"]["textContent"], ShouldEqual, "1.00")
			So(byID["q-0-0-3"]["textContent"], ShouldEqual, "2.50")
			So(byID["q-1-1-0"]["textContent"], ShouldEqual, "-1.00")
		})

		Convey("The template has a header and a row per cell in row-major order", func() {
			html := execute(view, testFrame())
			for _, header := range render.Headers() {
				So(html, ShouldContainSubstring, "<th>"+header+"</th>")
			}
			So(strings.Count(html, `id="qrow-`), ShouldEqual, size.Rows*size.Cols)
			So(strings.Index(html, "qrow-0-2"), ShouldBeLessThan, strings.Index(html, "qrow-1-0"))
			So(html, ShouldContainSubstring, `id="qrow-0-0" class="current"`)
		})
	})
}

func TestControls(t *testing.T) {
	Convey("Given the controls view", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		frames := make(chan render.Frame)
		view := NewControls(ctx.Done(), frames)

		Convey("A loaded frame enables everything but stop", func() {
			byID := opsByID(firstUpdate(view, frames, testFrame()))
			So(byID[StatusID]["textContent"], ShouldEqual, "Ready")
			So(byID["btn-step"]["disabled"], ShouldEqual, "false")
			So(byID["btn-reset"]["disabled"], ShouldEqual, "false")
			So(byID["btn-simulate"]["disabled"], ShouldEqual, "false")
			So(byID["btn-stop"]["disabled"], ShouldEqual, "true")
		})

		Convey("An unloaded frame only allows reset", func() {
			frame := render.Render(models.Snapshot{Status: "Loading"}, size)
			byID := opsByID(firstUpdate(view, frames, frame))
			So(byID["btn-step"]["disabled"], ShouldEqual, "true")
			So(byID["btn-reset"]["disabled"], ShouldEqual, "false")
			So(byID["btn-simulate"]["disabled"], ShouldEqual, "true")

			html := execute(view, frame)
			So(html, ShouldContainSubstring, "Loading")
			So(strings.Count(html, "disabled"), ShouldEqual, 3)
		})
	})
}

func TestValueFunction(t *testing.T) {
	Convey("Given the value function view", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		frames := make(chan render.Frame)
		view := NewValueFunction(ctx.Done(), size, frames)

		Convey("There is a polygon per inner corner plus the group transform", func() {
			byID := opsByID(firstUpdate(view, frames, testFrame()))
			So(len(byID), ShouldEqual, (size.Rows-1)*(size.Cols-1)+1)
			So(byID, ShouldContainKey, "0-0-value-polygon")
			So(byID, ShouldContainKey, "0-1-value-polygon")
			So(byID["valuefunction-group"]["transform"], ShouldStartWith, "scale(")
			So(strings.Count(byID["0-0-value-polygon"]["points"], ","), ShouldEqual, 4)
		})

		Convey("Fills run from blue at the minimum to red at the maximum", func() {
			So(getRGBFill(0, 0, 10), ShouldEqual, "rgb(0%,0%,100%)")
			So(getRGBFill(10, 0, 10), ShouldEqual, "rgb(100%,0%,0%)")
			So(getRGBFill(3, 3, 3), ShouldEqual, "rgb(50%,0%,50%)")
		})

		Convey("The template draws the same polygons", func() {
			html := execute(view, testFrame())
			So(strings.Count(html, "<polygon"), ShouldEqual, (size.Rows-1)*(size.Cols-1))
		})

		Convey("A single row has no surface", func() {
			flat := models.GridSize{Rows: 1, Cols: 3}
			surface := view.surface(render.Render(models.Snapshot{}, flat))
			So(surface.Polygons, ShouldBeEmpty)
		})
	})

	Convey("Arrows point along the action", t, func() {
		So(ArrowDegrees(models.Up), ShouldEqual, 0)
		So(ArrowDegrees(models.Right), ShouldEqual, 90)
		So(ArrowDegrees(models.Down), ShouldEqual, 180)
		So(ArrowDegrees(models.Left), ShouldEqual, 270)
	})
}
