package cell_views

import (
	"html/template"

	"mazeview/models"
	"mazeview/render"
	"mazeview/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// ValueTable is the action-value table: a row per grid cell, in row-major order.
// Rows for states absent from the table are hidden; the agent's row is highlighted.
type ValueTable struct {
	id      string
	size    models.GridSize
	updates <-chan []fastview.EleUpdate
}

func NewValueTable(
	done <-chan struct{},
	size models.GridSize,
	frames <-chan render.Frame,
) *ValueTable {
	vt := &ValueTable{
		id:   "valuetable",
		size: size,
	}
	vt.updates = channerics.Convert(done, frames, vt.onUpdate)
	return vt
}

func (vt *ValueTable) Updates() <-chan []fastview.EleUpdate {
	return vt.updates
}

type tableCell struct {
	ID    string
	Value string
}

type tableRow struct {
	ID     string
	Label  string
	Class  string
	Values [models.NumActions]tableCell
}

// rows lays out every grid position, whether or not the table knows it, so that
// rows appearing later only need an update.
func (vt *ValueTable) rows(frame render.Frame) (rows []tableRow) {
	known := make(map[models.Position]render.Row, len(frame.Rows))
	for _, row := range frame.Rows {
		known[row.State] = row
	}

	vt.size.Visit(func(p models.Position) {
		row := tableRow{
			ID:    rowID(p),
			Label: p.String(),
			Class: "hidden",
		}
		frameRow, ok := known[p]
		if ok {
			row.Class = ""
			if frameRow.Current {
				row.Class = "current"
			}
		}
		for _, a := range models.Actions {
			row.Values[a] = tableCell{ID: qID(p, a), Value: render.NotAvailable}
			if ok {
				row.Values[a].Value = frameRow.Values[a]
			}
		}
		rows = append(rows, row)
	})
	return
}

func (vt *ValueTable) onUpdate(frame render.Frame) (ops []fastview.EleUpdate) {
	for _, row := range vt.rows(frame) {
		ops = append(ops, fastview.EleUpdate{
			EleId: row.ID,
			Ops:   []fastview.Op{{Key: "class", Value: row.Class}},
		})
		for _, cell := range row.Values {
			ops = append(ops, fastview.EleUpdate{
				EleId: cell.ID,
				Ops:   []fastview.Op{{Key: "textContent", Value: cell.Value}},
			})
		}
	}
	return
}

// Parse defines the table's template. The template expects a render.Frame.
func (vt *ValueTable) Parse(t *template.Template) (name string, err error) {
	name = vt.id
	_, err = t.Funcs(template.FuncMap{
		"tableRows":    vt.rows,
		"tableHeaders": render.Headers,
	}).Parse(
		`{{ define "` + name + `" }}
		<table id="` + vt.id + `">
			<thead>
				<tr>{{ range tableHeaders }}<th>{{ . }}</th>{{ end }}</tr>
			</thead>
			<tbody>
			{{ range $row := tableRows . }}
				<tr id="{{ $row.ID }}" class="{{ $row.Class }}">
					<td>{{ $row.Label }}</td>
					{{ range $cell := $row.Values }}<td id="{{ $cell.ID }}">{{ $cell.Value }}</td>{{ end }}
				</tr>
			{{ end }}
			</tbody>
		</table>
		{{ end }}`)
	return
}
