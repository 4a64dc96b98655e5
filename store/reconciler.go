// store owns the client's single mutable snapshot of the remote simulation.
package store

import (
	"fmt"

	"mazeview/models"
)

// Options tune how updates are reconciled.
type Options struct {
	// Size is the grid every maze and table must fit.
	Size models.GridSize
	// ClearTableOnReset drops the value table when a reset is applied, instead of keeping it on display.
	ClearTableOnReset bool
	// LenientStreamKeys applies a stream frame's table even when some of its keys were rejected.
	LenientStreamKeys bool
}

// Reconciler applies updates to a snapshot. It is not safe for concurrent use;
// Store serializes access to it. Each successful apply produces a new snapshot
// value; a failed apply leaves the current one untouched.
type Reconciler struct {
	opts    Options
	current models.Snapshot
}

func NewReconciler(opts Options) *Reconciler {
	return &Reconciler{
		opts: opts,
		current: models.Snapshot{
			Table:  models.ValueTable{},
			Status: "Loading",
		},
	}
}

// Snapshot returns the current snapshot.
func (rec *Reconciler) Snapshot() models.Snapshot {
	return rec.current
}

func (rec *Reconciler) validate(maze models.MazeState, table models.ValueTable) error {
	if err := maze.Validate(rec.opts.Size); err != nil {
		return err
	}
	return table.Validate(rec.opts.Size)
}

// ApplyFullState replaces maze and table wholesale and clears game over.
// Used by the initial load.
func (rec *Reconciler) ApplyFullState(maze models.MazeState, table models.ValueTable) error {
	if table == nil {
		table = models.ValueTable{}
	}
	if err := rec.validate(maze, table); err != nil {
		return err
	}

	next := rec.current
	next.Maze = maze.Clone()
	next.Table = table
	next.GameOver = false
	next.Loaded = true
	next.Status = "Ready"
	rec.current = next
	return nil
}

// ApplyReset applies a reset reply: the maze is replaced, game over cleared, and the
// table kept on display unless configured to clear it.
func (rec *Reconciler) ApplyReset(maze models.MazeState) error {
	table := rec.current.Table
	if rec.opts.ClearTableOnReset {
		table = models.ValueTable{}
	}
	if err := rec.ApplyFullState(maze, table); err != nil {
		return err
	}
	rec.current.Status = "Maze reset"
	return nil
}

// ApplyStepResult replaces the maze. A nil table keeps the current one; a step
// reply's table is always complete, so a non-nil one replaces it. The reply's
// game over flag can only set game over, never clear it; only a reset or a full
// load clears it.
func (rec *Reconciler) ApplyStepResult(maze models.MazeState, gameOver bool, table models.ValueTable) error {
	if table == nil {
		table = rec.current.Table
	}
	if err := rec.validate(maze, table); err != nil {
		return err
	}

	next := rec.current
	next.Maze = maze.Clone()
	next.Table = table
	next.GameOver = rec.current.GameOver || gameOver
	next.Status = stepStatus(next.GameOver)
	rec.current = next
	return nil
}

func stepStatus(gameOver bool) string {
	if gameOver {
		return "Game over"
	}
	return "Stepped"
}

// ApplyStreamFrame normalizes the frame's table and replaces both maze and table.
// Returns the keys that were rejected; unless lenient, any reject discards the frame.
func (rec *Reconciler) ApplyStreamFrame(maze models.MazeState, raw models.RawTable, gameOver bool) ([]models.KeyError, error) {
	table, rejects, err := models.Normalize(raw)
	if err != nil {
		return rejects, err
	}
	if len(rejects) > 0 && !rec.opts.LenientStreamKeys {
		return rejects, fmt.Errorf("frame skipped, %d rejected keys: %w", len(rejects), rejects[0])
	}
	if err = rec.validate(maze, table); err != nil {
		return rejects, err
	}

	next := rec.current
	next.Maze = maze.Clone()
	next.Table = table
	next.GameOver = rec.current.GameOver || gameOver
	if gameOver {
		next.Status = "Game over"
	} else {
		next.Status = "Simulating"
	}
	rec.current = next
	return rejects, nil
}

// SetStreaming records whether a simulation stream is open.
func (rec *Reconciler) SetStreaming(open bool) {
	rec.current.Streaming = open
	if !open && !rec.current.GameOver && rec.current.Status == "Simulating" {
		rec.current.Status = "Simulation stopped"
	}
}

// Fence raises the generation; updates issued under an older generation will be refused.
func (rec *Reconciler) Fence(generation uint64) {
	if generation > rec.current.Generation {
		rec.current.Generation = generation
	}
}

// Admit reports whether an update issued under generation may still be applied.
func (rec *Reconciler) Admit(generation uint64) error {
	if generation < rec.current.Generation {
		return fmt.Errorf("%w: update from generation %d, current %d", models.ErrStaleGeneration, generation, rec.current.Generation)
	}
	return nil
}

// SetStatus replaces the status message only.
func (rec *Reconciler) SetStatus(status string) {
	rec.current.Status = status
}
