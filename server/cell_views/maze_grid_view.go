package cell_views

import (
	"fmt"
	"html/template"

	"mazeview/models"
	"mazeview/render"
	"mazeview/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// MazeGrid draws the maze as an svg grid: one rect per cell filled by its kind,
// the best known value, and an arrow in the direction of the best action.
type MazeGrid struct {
	id      string
	size    models.GridSize
	updates <-chan []fastview.EleUpdate
}

func NewMazeGrid(
	done <-chan struct{},
	size models.GridSize,
	frames <-chan render.Frame,
) *MazeGrid {
	mg := &MazeGrid{
		id:   "mazegrid",
		size: size,
	}
	mg.updates = channerics.Convert(done, frames, mg.onUpdate)
	return mg
}

func (mg *MazeGrid) Updates() <-chan []fastview.EleUpdate {
	return mg.updates
}

type gridCell struct {
	Row, Col        int
	CellID          string
	ValueID         string
	ArrowID         string
	Fill            string
	Class           string
	Value           string
	Arrow           int
	ArrowVisibility string
}

func toGridCell(cell render.Cell) gridCell {
	value := ""
	if cell.HasBest {
		value = render.FormatValue(&cell.Max)
	}
	return gridCell{
		Row:             cell.Pos.Row,
		Col:             cell.Pos.Col,
		CellID:          cellID(cell.Pos),
		ValueID:         valueID(cell.Pos),
		ArrowID:         arrowID(cell.Pos),
		Fill:            Fill(cell),
		Class:           Class(cell),
		Value:           value,
		Arrow:           ArrowDegrees(cell.Best),
		ArrowVisibility: visibility(cell.HasBest && cell.Kind != render.Obstacle),
	}
}

func gridCells(frame render.Frame) (cells []gridCell) {
	for _, row := range frame.Cells {
		for _, cell := range row {
			cells = append(cells, toGridCell(cell))
		}
	}
	return
}

func (mg *MazeGrid) onUpdate(frame render.Frame) (ops []fastview.EleUpdate) {
	for _, cell := range gridCells(frame) {
		ops = append(ops,
			fastview.EleUpdate{
				EleId: cell.CellID,
				Ops: []fastview.Op{
					{Key: "fill", Value: cell.Fill},
					{Key: "class", Value: cell.Class},
				},
			},
			fastview.EleUpdate{
				EleId: cell.ValueID,
				Ops: []fastview.Op{
					{Key: "textContent", Value: cell.Value},
				},
			},
			fastview.EleUpdate{
				EleId: cell.ArrowID,
				Ops: []fastview.Op{
					{Key: "transform", Value: fmt.Sprintf("rotate(%d)", cell.Arrow)},
					{Key: "visibility", Value: cell.ArrowVisibility},
				},
			})
	}
	return
}

// Parse defines the grid's template. The template expects a render.Frame.
func (mg *MazeGrid) Parse(t *template.Template) (name string, err error) {
	name = mg.id
	_, err = t.Funcs(template.FuncMap{"gridCells": gridCells}).Parse(
		`{{ define "` + name + `" }}
		{{ $cell_width := ` + fmt.Sprint(cellDim) + ` }}
		{{ $half_width := div $cell_width 2 }}
		<div id="maze">
			<svg id="` + mg.id + `" xmlns='http://www.w3.org/2000/svg'
				width="` + fmt.Sprint(mg.size.Cols*cellDim+1) + `px"
				height="` + fmt.Sprint(mg.size.Rows*cellDim+1) + `px"
				style="shape-rendering: crispEdges;">
				{{ range $cell := gridCells . }}
				<g>
					<rect id="{{ $cell.CellID }}" class="{{ $cell.Class }}"
						x="{{ mult $cell.Col $cell_width }}"
						y="{{ mult $cell.Row $cell_width }}"
						width="{{ $cell_width }}"
						height="{{ $cell_width }}"
						fill="{{ $cell.Fill }}"
						stroke="black"
						stroke-width="1"/>
					<text id="{{ $cell.ValueID }}"
						x="{{ add (mult $cell.Col $cell_width) $half_width }}"
						y="{{ add (mult $cell.Row $cell_width) (sub $half_width 15) }}"
						dominant-baseline="text-top" text-anchor="middle"
						>{{ $cell.Value }}</text>
					<g transform="translate({{ add (mult $cell.Col $cell_width) $half_width }}, {{ add (mult $cell.Row $cell_width) (add $half_width 15) }})">
						<text id="{{ $cell.ArrowID }}"
							stroke="blue" stroke-width="1"
							dominant-baseline="central" text-anchor="middle"
							visibility="{{ $cell.ArrowVisibility }}"
							transform="rotate({{ $cell.Arrow }})"
							>&uarr;</text>
					</g>
				</g>
				{{ end }}
			</svg>
		</div>
		{{ end }}`)
	return
}
