package cell_views

import (
	"fmt"
	"html/template"
	"math"

	"mazeview/models"
	"mazeview/render"
	"mazeview/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// ValueFunction provides a view of the best known action-value per cell as a 2d
// isometric projection of the 3d surface (col, row, value). Cells without a known
// value sit at zero.
type ValueFunction struct {
	id      string
	width   float64 // canvas size in pixels
	height  float64
	xyscale float64 // pixels per x or y unit
	zscale  float64 // pixels per z unit
	updates <-chan []fastview.EleUpdate
}

// angle of x, y axes (e.g. =30°)
const ang = math.Pi / 6

var sinAng, cosAng = math.Sin(ang), math.Cos(ang)

func NewValueFunction(
	done <-chan struct{},
	size models.GridSize,
	frames <-chan render.Frame,
) (vf *ValueFunction) {
	vf = &ValueFunction{
		id:      "valuefunction",
		width:   float64(size.Cols * cellDim),
		height:  float64(size.Rows * cellDim),
		xyscale: cellDim,
		zscale:  cellDim * 0.3,
	}
	vf.updates = channerics.Convert(done, frames, vf.onUpdate)
	return
}

func (vf *ValueFunction) Updates() <-chan []fastview.EleUpdate {
	return vf.updates
}

// project applies an isometric projection to the passed point.
func (vf *ValueFunction) project(x, y, z float64) (float64, float64) {
	sx := (x - y) * cosAng * vf.xyscale
	sy := (x+y)*sinAng*vf.xyscale - z*vf.zscale
	return sx, sy
}

func surfaceHeight(cell render.Cell) float64 {
	if !cell.HasBest {
		return 0
	}
	return cell.Max
}

type funcPolygon struct {
	Id     string
	Fill   string
	avg    float64
	ax, ay float64
	bx, by float64
	cx, cy float64
	dx, dy float64
}

// Returns an svg polygon describing these four, adjacent cells.
// Cell-A is bottom left, Cell-B is top left, Cell-C is top right, and Cell-D is bottom right.
func (vf *ValueFunction) makeFuncPolygon(a, b, c, d render.Cell) (fp *funcPolygon) {
	fp = &funcPolygon{
		Id:  fmt.Sprintf("%d-%d-value-polygon", b.Pos.Row, b.Pos.Col),
		avg: (surfaceHeight(a) + surfaceHeight(b) + surfaceHeight(c) + surfaceHeight(d)) / 4,
	}
	fp.ax, fp.ay = vf.project(float64(a.Pos.Col), float64(a.Pos.Row), surfaceHeight(a))
	fp.bx, fp.by = vf.project(float64(b.Pos.Col), float64(b.Pos.Row), surfaceHeight(b))
	fp.cx, fp.cy = vf.project(float64(c.Pos.Col), float64(c.Pos.Row), surfaceHeight(c))
	fp.dx, fp.dy = vf.project(float64(d.Pos.Col), float64(d.Pos.Row), surfaceHeight(d))
	return
}

// Points returns a string suitable for the svg-polygon 'points' attribute.
// The values are truncated to ints, which is a bit of premature svg-optimization.
func (fp *funcPolygon) Points() string {
	return fmt.Sprintf("%d,%d %d,%d %d,%d %d,%d",
		int(fp.ax), int(fp.ay),
		int(fp.bx), int(fp.by),
		int(fp.cx), int(fp.cy),
		int(fp.dx), int(fp.dy),
	)
}

func (fp *funcPolygon) MinX() float64 { return min(fp.ax, fp.bx, fp.cx, fp.dx) }
func (fp *funcPolygon) MinY() float64 { return min(fp.ay, fp.by, fp.cy, fp.dy) }
func (fp *funcPolygon) MaxX() float64 { return max(fp.ax, fp.bx, fp.cx, fp.dx) }
func (fp *funcPolygon) MaxY() float64 { return max(fp.ay, fp.by, fp.cy, fp.dy) }

type surface struct {
	Polygons  []*funcPolygon
	Transform string
}

// surface builds the polygons in drawing order, each row back to front, so that
// nearer polygons obscure prior ones.
func (vf *ValueFunction) surface(frame render.Frame) (sf surface) {
	cells := frame.Cells
	if len(cells) < 2 || len(cells[0]) < 2 {
		sf.Transform = "translate(0 0)"
		return
	}

	minVal, maxVal := math.MaxFloat64, -math.MaxFloat64
	for _, row := range cells {
		for _, cell := range row {
			minVal = math.Min(minVal, surfaceHeight(cell))
			maxVal = math.Max(maxVal, surfaceHeight(cell))
		}
	}

	xmin, ymin := math.MaxFloat64, math.MaxFloat64
	xmax, ymax := -math.MaxFloat64, -math.MaxFloat64
	for ri := 0; ri < len(cells)-1; ri++ {
		for ci := len(cells[ri]) - 2; ci >= 0; ci-- {
			polygon := vf.makeFuncPolygon(
				cells[ri+1][ci],
				cells[ri][ci],
				cells[ri][ci+1],
				cells[ri+1][ci+1],
			)
			polygon.Fill = getRGBFill(polygon.avg, minVal, maxVal)
			sf.Polygons = append(sf.Polygons, polygon)

			xmin = math.Min(xmin, polygon.MinX())
			xmax = math.Max(xmax, polygon.MaxX())
			ymin = math.Min(ymin, polygon.MinY())
			ymax = math.Max(ymax, polygon.MaxY())
		}
	}

	// Scale down by the maximum required to fit the full plot in view, but only if needed.
	scaler := math.Min(
		math.Min(
			math.Abs(vf.width/(xmax-xmin)),
			math.Abs(vf.height/(ymax-ymin)),
		),
		1.0,
	)
	sf.Transform = fmt.Sprintf("scale(%f) translate(%d %d)", scaler, int(-xmin), int(-ymin))
	return
}

// Returns an RGB value defined by where avgVal lies along the number line between minVal and maxVal,
// from blue at the minimum to red at the maximum.
func getRGBFill(avgVal, minVal, maxVal float64) string {
	redPct := 50
	if maxVal > minVal {
		redPct = int(100.0 * (avgVal - minVal) / (maxVal - minVal))
	}
	redPct = max(0, min(100, redPct))
	return fmt.Sprintf("rgb(%d%%,0%%,%d%%)", redPct, 100-redPct)
}

// Returns the set of view updates needed for the view to reflect current values.
func (vf *ValueFunction) onUpdate(frame render.Frame) (ops []fastview.EleUpdate) {
	sf := vf.surface(frame)
	for _, polygon := range sf.Polygons {
		ops = append(ops, fastview.EleUpdate{
			EleId: polygon.Id,
			Ops: []fastview.Op{
				{Key: "points", Value: polygon.Points()},
				{Key: "fill", Value: polygon.Fill},
			},
		})
	}
	ops = append(ops, fastview.EleUpdate{
		EleId: vf.id + "-group",
		Ops:   []fastview.Op{{Key: "transform", Value: sf.Transform}},
	})
	return
}

// Parse returns an svg of polygons plotting the value surface as a 2D projection.
func (vf *ValueFunction) Parse(t *template.Template) (name string, err error) {
	name = vf.id
	_, err = t.Funcs(template.FuncMap{"valueSurface": vf.surface}).Parse(
		`{{ define "` + name + `" }}
		<div style="padding:40px;">
			{{ $surface := valueSurface . }}
			<svg id="` + vf.id + `" xmlns='http://www.w3.org/2000/svg'
				width="` + fmt.Sprint(int(vf.width)*2) + `px"
				height="` + fmt.Sprint(int(vf.height)*2) + `px"
				style="shape-rendering: crispEdges; stroke: lightgrey; stroke-opacity: 1.0; stroke-width: 3;">
				<g id="` + vf.id + `-group" transform="{{ $surface.Transform }}">
				{{ range $polygon := $surface.Polygons }}
					<polygon id="{{ $polygon.Id }}"
						fill="{{ $polygon.Fill }}" fill-opacity="1.0"
						points="{{ $polygon.Points }}" />
				{{ end }}
				</g>
			</svg>
		</div>
		{{ end }}`)
	return
}
