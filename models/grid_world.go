package models

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Position is a (row, col) cell of the maze. Row 0 is the top row, as printed.
type Position struct {
	Row, Col int
}

func (p Position) String() string {
	return fmt.Sprintf("(%d, %d)", p.Row, p.Col)
}

// Less orders positions row-major, which is the display order of the value table.
func (p Position) Less(other Position) bool {
	if p.Row != other.Row {
		return p.Row < other.Row
	}
	return p.Col < other.Col
}

func comparePositions(a, b Position) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}

// GridSize is the configured dimension of the maze. The observed deployment is 5x5,
// but nothing here assumes it.
type GridSize struct {
	Rows int `yaml:"rows"`
	Cols int `yaml:"cols"`
}

func (size GridSize) Contains(p Position) bool {
	return p.Row >= 0 && p.Row < size.Rows && p.Col >= 0 && p.Col < size.Cols
}

// Visit calls fn for every cell in row-major order.
func (size GridSize) Visit(fn func(p Position)) {
	for row := 0; row < size.Rows; row++ {
		for col := 0; col < size.Cols; col++ {
			fn(Position{Row: row, Col: col})
		}
	}
}

// MazeState is the geometry of the maze plus the agent's location.
// Path is the trail of cells visited since the last reset; it is informational only.
type MazeState struct {
	Agent     Position
	Goal      Position
	Obstacles []Position
	Path      []Position
}

// IsObstacle reports whether p is one of the maze's obstacles.
func (maze MazeState) IsObstacle(p Position) bool {
	return slices.Contains(maze.Obstacles, p)
}

// OnPath reports whether p was visited by the agent since the last reset.
func (maze MazeState) OnPath(p Position) bool {
	return slices.Contains(maze.Path, p)
}

// Validate checks that the agent, goal, and obstacles occupy distinct cells
// and that all of them lie within the grid.
func (maze MazeState) Validate(size GridSize) error {
	occupied := map[Position]string{}
	claim := func(p Position, what string) error {
		if !size.Contains(p) {
			return fmt.Errorf("%w: %s %v outside %dx%d grid", ErrInvariantViolation, what, p, size.Rows, size.Cols)
		}
		if prev, ok := occupied[p]; ok {
			return fmt.Errorf("%w: %s %v overlaps %s", ErrInvariantViolation, what, p, prev)
		}
		occupied[p] = what
		return nil
	}

	if err := claim(maze.Agent, "agent"); err != nil {
		return err
	}
	if err := claim(maze.Goal, "goal"); err != nil {
		return err
	}
	for _, obstacle := range maze.Obstacles {
		if err := claim(obstacle, "obstacle"); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a copy that shares no slices with maze.
func (maze MazeState) Clone() MazeState {
	maze.Obstacles = slices.Clone(maze.Obstacles)
	maze.Path = slices.Clone(maze.Path)
	return maze
}

// Action is one of the four moves available to the agent. The numeric value
// is the index used by sparse value-table keys and by ValueRow.Values.
type Action int

const (
	Up Action = iota
	Down
	Left
	Right
)

// NumActions is the number of value slots per state.
const NumActions = 4

// Actions lists the actions in their fixed column order.
var Actions = [NumActions]Action{Up, Down, Left, Right}

func (a Action) String() string {
	switch a {
	case Up:
		return "Up"
	case Down:
		return "Down"
	case Left:
		return "Left"
	case Right:
		return "Right"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

func (a Action) Valid() bool {
	return a >= Up && a <= Right
}

// Values holds one optional value per action. A nil entry is unknown, which
// is not the same as zero.
type Values [NumActions]*float64

// Known returns the value for a, if one is known.
func (vals Values) Known(a Action) (float64, bool) {
	if !a.Valid() || vals[a] == nil {
		return 0, false
	}
	return *vals[a], true
}

// Best returns the action with the highest known value. Ties go to the action
// listed first.
func (vals Values) Best() (best Action, value float64, ok bool) {
	for _, a := range Actions {
		if v, known := vals.Known(a); known && (!ok || v > value) {
			best, value, ok = a, v, true
		}
	}
	return
}

// ValueRow is the action-values of a single state.
type ValueRow struct {
	State  Position
	Values Values
}

// ValueTable maps each state to its row. Iteration order is irrelevant;
// Positions gives the stable display order.
type ValueTable map[Position]ValueRow

// Positions returns the table's keys in row-major order.
func (table ValueTable) Positions() []Position {
	keys := maps.Keys(table)
	slices.SortFunc(keys, comparePositions)
	return keys
}

// Rows returns the table's rows in row-major order.
func (table ValueTable) Rows() []ValueRow {
	rows := make([]ValueRow, 0, len(table))
	for _, p := range table.Positions() {
		rows = append(rows, table[p])
	}
	return rows
}

// Equal compares values, not pointers.
func (table ValueTable) Equal(other ValueTable) bool {
	if len(table) != len(other) {
		return false
	}
	for p, row := range table {
		otherRow, ok := other[p]
		if !ok || otherRow.State != row.State {
			return false
		}
		for _, a := range Actions {
			v1, ok1 := row.Values.Known(a)
			v2, ok2 := otherRow.Values.Known(a)
			if ok1 != ok2 || v1 != v2 {
				return false
			}
		}
	}
	return true
}

// Validate checks that every row lies within the grid and is keyed by its own state.
func (table ValueTable) Validate(size GridSize) error {
	for p, row := range table {
		if p != row.State {
			return fmt.Errorf("%w: row %v keyed as %v", ErrInvariantViolation, row.State, p)
		}
		if !size.Contains(p) {
			return fmt.Errorf("%w: value row %v outside %dx%d grid", ErrInvariantViolation, p, size.Rows, size.Cols)
		}
	}
	return nil
}

// Snapshot is the client's entire reconciled view of the remote simulation.
// Snapshots are never mutated once published.
type Snapshot struct {
	Maze     MazeState
	Table    ValueTable
	GameOver bool
	// Loaded is set by the first full state; nothing is interactive before it.
	Loaded bool
	// Streaming is set while a simulation stream is open.
	Streaming bool
	// Generation increases on every reset; updates from older generations are dropped.
	Generation uint64
	// Status is the free-text message shown to the user.
	Status string
}

// Float is a helper for building optional values.
func Float(v float64) *float64 {
	return &v
}
