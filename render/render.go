// render projects a store snapshot into a Frame: everything a surface needs to
// draw the maze grid, the value table, and the controls, already decided.
package render

import (
	"fmt"
	"strings"

	"mazeview/models"
)

// CellKind classifies a grid cell. Each cell has exactly one kind.
type CellKind int

const (
	Empty CellKind = iota
	Goal
	Obstacle
	Agent
)

func (kind CellKind) String() string {
	switch kind {
	case Agent:
		return "agent"
	case Obstacle:
		return "obstacle"
	case Goal:
		return "goal"
	}
	return "empty"
}

// Glyph is the single character used for the kind in text output.
func (kind CellKind) Glyph() byte {
	switch kind {
	case Agent:
		return 'A'
	case Obstacle:
		return 'O'
	case Goal:
		return 'G'
	}
	return '.'
}

// NotAvailable is shown in place of an unknown action-value.
const NotAvailable = "n/a"

// Precision is the number of decimals values are displayed with.
const Precision = 2

// FormatValue formats an optional value for display.
func FormatValue(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return fmt.Sprintf("%.*f", Precision, *v)
}

// Cell is one grid cell of a frame.
type Cell struct {
	Pos  models.Position
	Kind CellKind
	// Trail marks cells the agent visited since the last reset.
	Trail bool
	// HasBest is set when the table holds at least one known value for this cell.
	HasBest bool
	Best    models.Action
	Max     float64
}

// Row is one line of the value table.
type Row struct {
	State   models.Position
	Label   string
	Values  [models.NumActions]string
	Current bool
}

// Controls are the interaction affordances and their enabled state.
type Controls struct {
	Step     bool
	Reset    bool
	Simulate bool
	Stop     bool
}

// Frame is the full projection of a snapshot. Frames hold no pointers into the
// snapshot, so they can be handed to any number of readers.
type Frame struct {
	Size     models.GridSize
	Cells    [][]Cell
	Rows     []Row
	Current  models.Position
	Loaded   bool
	GameOver bool
	Status   string
	Controls Controls
}

// Headers are the value table's column titles, in column order.
func Headers() []string {
	headers := []string{"State"}
	for _, a := range models.Actions {
		headers = append(headers, a.String())
	}
	return headers
}

// Classify returns the kind of p, with precedence agent > obstacle > goal > empty.
func Classify(maze models.MazeState, p models.Position) CellKind {
	switch {
	case maze.Agent == p:
		return Agent
	case maze.IsObstacle(p):
		return Obstacle
	case maze.Goal == p:
		return Goal
	}
	return Empty
}

// Render projects snap onto a grid of the given size. Same input, same frame.
func Render(snap models.Snapshot, size models.GridSize) Frame {
	frame := Frame{
		Size:     size,
		Cells:    make([][]Cell, size.Rows),
		Rows:     make([]Row, 0, len(snap.Table)),
		Current:  snap.Maze.Agent,
		Loaded:   snap.Loaded,
		GameOver: snap.GameOver,
		Status:   snap.Status,
		Controls: Controls{
			Step:     snap.Loaded && !snap.GameOver,
			Reset:    true,
			Simulate: snap.Loaded && !snap.GameOver && !snap.Streaming,
			Stop:     snap.Streaming,
		},
	}
	if snap.GameOver {
		frame.Status = "Game over"
	}

	for r := range frame.Cells {
		frame.Cells[r] = make([]Cell, size.Cols)
	}
	size.Visit(func(p models.Position) {
		cell := Cell{Pos: p}
		if snap.Loaded {
			cell.Kind = Classify(snap.Maze, p)
			cell.Trail = snap.Maze.OnPath(p)
		}
		if row, ok := snap.Table[p]; ok {
			cell.Best, cell.Max, cell.HasBest = row.Values.Best()
		}
		frame.Cells[p.Row][p.Col] = cell
	})

	for _, valueRow := range snap.Table.Rows() {
		row := Row{
			State:   valueRow.State,
			Label:   valueRow.State.String(),
			Current: snap.Loaded && valueRow.State == snap.Maze.Agent,
		}
		for i, v := range valueRow.Values {
			row.Values[i] = FormatValue(v)
		}
		frame.Rows = append(frame.Rows, row)
	}
	return frame
}

// CurrentRow returns the index of the highlighted row, or -1.
func (frame Frame) CurrentRow() int {
	for i, row := range frame.Rows {
		if row.Current {
			return i
		}
	}
	return -1
}

// Text draws the frame as plain text: status, grid, then the value table with
// the current state's row marked by '>'.
func (frame Frame) Text() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Status: %s\n", frame.Status)
	fmt.Fprintf(&sb, "Controls: step=%s reset=%s simulate=%s stop=%s\n\n",
		onOff(frame.Controls.Step), onOff(frame.Controls.Reset),
		onOff(frame.Controls.Simulate), onOff(frame.Controls.Stop))

	for _, cells := range frame.Cells {
		for c, cell := range cells {
			if c > 0 {
				sb.WriteByte(' ')
			}
			glyph := cell.Kind.Glyph()
			if glyph == '.' && cell.Trail {
				glyph = '*'
			}
			sb.WriteByte(glyph)
		}
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')

	for i, header := range Headers() {
		if i == 0 {
			fmt.Fprintf(&sb, "  %-8s", header)
		} else {
			fmt.Fprintf(&sb, " %8s", header)
		}
	}
	sb.WriteByte('\n')
	for _, row := range frame.Rows {
		marker := ' '
		if row.Current {
			marker = '>'
		}
		fmt.Fprintf(&sb, "%c %-8s", marker, row.Label)
		for _, v := range row.Values {
			fmt.Fprintf(&sb, " %8s", v)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
