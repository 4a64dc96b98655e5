// cell_views contains views derived from the render.Frame view-model. Each view
// flattens the frame into the handful of fields its template and its element
// updates need, so both are generated from the same data.
package cell_views

import (
	"fmt"

	"mazeview/models"
	"mazeview/render"
)

// Cell size in pixels for the svg views.
const cellDim = 80

func cellID(p models.Position) string {
	return fmt.Sprintf("cell-%d-%d", p.Row, p.Col)
}

func arrowID(p models.Position) string {
	return fmt.Sprintf("arrow-%d-%d", p.Row, p.Col)
}

func valueID(p models.Position) string {
	return fmt.Sprintf("val-%d-%d", p.Row, p.Col)
}

func rowID(p models.Position) string {
	return fmt.Sprintf("qrow-%d-%d", p.Row, p.Col)
}

func qID(p models.Position, a models.Action) string {
	return fmt.Sprintf("q-%d-%d-%d", p.Row, p.Col, int(a))
}

// ArrowDegrees is the rotate() argument that points an upward arrow rune in the
// direction of a.
func ArrowDegrees(a models.Action) int {
	switch a {
	case models.Right:
		return 90
	case models.Down:
		return 180
	case models.Left:
		return 270
	}
	return 0
}

// Fill is the svg fill of a grid cell.
func Fill(cell render.Cell) string {
	switch cell.Kind {
	case render.Agent:
		return "steelblue"
	case render.Obstacle:
		return "dimgray"
	case render.Goal:
		return "gold"
	}
	if cell.Trail {
		return "lightyellow"
	}
	return "white"
}

// Class is the css class of a grid cell: its kind, plus "trail" when visited.
func Class(cell render.Cell) string {
	if cell.Trail {
		return cell.Kind.String() + " trail"
	}
	return cell.Kind.String()
}

func visibility(visible bool) string {
	if visible {
		return "visible"
	}
	return "hidden"
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
