package reinforcement

/*
Tabular Q-learning on a small grid maze. This is the agent behind the reference simulator:
the viewer never learns anything itself, it only watches these values change. Training
workers share one Q table of atomic floats and race on it without locks; a rejected
compare-and-swap just drops that update, which tabular Q-learning shrugs off.
*/

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"mazeview/atomic_float"
	"mazeview/models"

	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

const (
	GoalReward     = 100.0
	ObstacleReward = -50.0
	StepReward     = -1.0
)

// HyperParameter is a named training constant, e.g. alpha, gamma, or epsilon.
type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

// MazeConfig describes the maze and how its agent learns.
type MazeConfig struct {
	Size        models.GridSize
	Start       models.Position
	Goal        models.Position
	Obstacles   []models.Position
	HyperParams []HyperParameter
	// Seed fixes the exploration sequence; zero seeds from the clock.
	Seed uint64
}

func (cfg *MazeConfig) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val
		}
	}
	return defaultVal
}

// DefaultMazeConfig is the 5x5 maze with a diagonal of obstacles and the goal in the far corner.
func DefaultMazeConfig() MazeConfig {
	return MazeConfig{
		Size:      models.GridSize{Rows: 5, Cols: 5},
		Start:     models.Position{Row: 0, Col: 0},
		Goal:      models.Position{Row: 4, Col: 4},
		Obstacles: []models.Position{{Row: 1, Col: 1}, {Row: 2, Col: 2}, {Row: 3, Col: 3}},
		HyperParams: []HyperParameter{
			{Key: "alpha", Val: 0.1},
			{Key: "gamma", Val: 0.9},
			{Key: "epsilon", Val: 0.1},
		},
	}
}

// Maze is the environment plus the agent's Q table. The agent walked by Step and
// Reset is guarded by a mutex; Q values are atomic and may be read at any time.
type Maze struct {
	size      models.GridSize
	start     models.Position
	goal      models.Position
	obstacles []models.Position
	seed      uint64

	// alpha: the learning rate
	alpha float64
	// gamma: how much to value the successor state
	gamma float64
	// epsilon: exploration probability of the agent's policy
	epsilon float64
	// horizon bounds the length of a training episode
	horizon int

	q [][][models.NumActions]*atomic_float.AtomicFloat64

	mu    sync.Mutex
	rng   *rand.Rand
	agent models.Position
	path  []models.Position
	done  bool
}

func NewMaze(cfg MazeConfig) (*Maze, error) {
	layout := models.MazeState{
		Agent:     cfg.Start,
		Goal:      cfg.Goal,
		Obstacles: cfg.Obstacles,
	}
	if err := layout.Validate(cfg.Size); err != nil {
		return nil, fmt.Errorf("maze layout: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	maze := &Maze{
		size:      cfg.Size,
		start:     cfg.Start,
		goal:      cfg.Goal,
		obstacles: append([]models.Position(nil), cfg.Obstacles...),
		seed:      seed,
		alpha:     cfg.GetHyperParamOrDefault("alpha", 0.1),
		gamma:     cfg.GetHyperParamOrDefault("gamma", 0.9),
		epsilon:   cfg.GetHyperParamOrDefault("epsilon", 0.1),
		horizon:   int(cfg.GetHyperParamOrDefault("horizon", 1000)),
		rng:       rand.New(rand.NewSource(seed)),
		agent:     cfg.Start,
	}

	maze.q = make([][][models.NumActions]*atomic_float.AtomicFloat64, cfg.Size.Rows)
	for r := range maze.q {
		maze.q[r] = make([][models.NumActions]*atomic_float.AtomicFloat64, cfg.Size.Cols)
		for c := range maze.q[r] {
			for _, a := range models.Actions {
				maze.q[r][c][a] = atomic_float.NewAtomicFloat64(0)
			}
		}
	}
	return maze, nil
}

func (maze *Maze) Size() models.GridSize {
	return maze.size
}

func (maze *Maze) isObstacle(p models.Position) bool {
	for _, obstacle := range maze.obstacles {
		if obstacle == p {
			return true
		}
	}
	return false
}

// successor applies action a at p. Moves off the grid are clamped. The agent never
// enters an obstacle, it bounces and is penalized; reaching the goal ends the
// episode with the agent left on the cell it moved from.
func (maze *Maze) successor(p models.Position, a models.Action) (next models.Position, reward float64, terminal bool) {
	next = p
	switch a {
	case models.Up:
		next.Row = max(next.Row-1, 0)
	case models.Down:
		next.Row = min(next.Row+1, maze.size.Rows-1)
	case models.Left:
		next.Col = max(next.Col-1, 0)
	case models.Right:
		next.Col = min(next.Col+1, maze.size.Cols-1)
	}

	switch {
	case next == maze.goal:
		return p, GoalReward, true
	case maze.isObstacle(next):
		return p, ObstacleReward, false
	}
	return next, StepReward, false
}

func (maze *Maze) value(p models.Position, a models.Action) float64 {
	return maze.q[p.Row][p.Col][a].AtomicRead()
}

// greedy returns the max-valued action at p, the first in action order on ties.
func (maze *Maze) greedy(p models.Position) (best models.Action, bestVal float64) {
	bestVal = -math.MaxFloat64
	for _, a := range models.Actions {
		if v := maze.value(p, a); v > bestVal {
			best, bestVal = a, v
		}
	}
	return
}

func (maze *Maze) choose(rng *rand.Rand, p models.Position) models.Action {
	if rng.Float64() < maze.epsilon {
		// Exploration: do something random
		return models.Actions[rng.Intn(models.NumActions)]
	}
	action, _ := maze.greedy(p)
	return action
}

// learn moves Q(p, a) toward the one-step target. Updates rejected under contention
// are dropped.
func (maze *Maze) learn(p models.Position, a models.Action, reward float64, next models.Position, terminal bool) {
	target := reward
	if !terminal {
		_, nextMax := maze.greedy(next)
		target += maze.gamma * nextMax
	}
	delta := maze.alpha * (target - maze.value(p, a))
	_, _ = maze.q[p.Row][p.Col][a].AtomicAdd(delta)
}

// act takes one epsilon-greedy, learning step from p.
func (maze *Maze) act(rng *rand.Rand, p models.Position) (next models.Position, terminal bool) {
	action := maze.choose(rng, p)
	next, reward, terminal := maze.successor(p, action)
	maze.learn(p, action, reward, next, terminal)
	return
}

func (maze *Maze) state() models.MazeState {
	return models.MazeState{
		Agent:     maze.agent,
		Goal:      maze.goal,
		Obstacles: append([]models.Position(nil), maze.obstacles...),
		Path:      append([]models.Position(nil), maze.path...),
	}
}

// State returns the current maze.
func (maze *Maze) State() models.MazeState {
	maze.mu.Lock()
	defer maze.mu.Unlock()
	return maze.state()
}

// Done reports whether the agent has reached the goal since the last reset.
func (maze *Maze) Done() bool {
	maze.mu.Lock()
	defer maze.mu.Unlock()
	return maze.done
}

// Step moves the agent once, learning from the move, and reports game over.
// Once the goal is reached Step does nothing until Reset.
func (maze *Maze) Step() (models.MazeState, bool) {
	maze.mu.Lock()
	defer maze.mu.Unlock()

	if maze.done {
		return maze.state(), true
	}

	next, terminal := maze.act(maze.rng, maze.agent)
	if terminal {
		maze.done = true
		maze.path = append(maze.path, maze.goal)
	} else {
		maze.agent = next
		maze.path = append(maze.path, next)
	}
	return maze.state(), maze.done
}

// Reset returns the agent to the start and clears its path. Learned values are kept.
func (maze *Maze) Reset() models.MazeState {
	maze.mu.Lock()
	defer maze.mu.Unlock()

	maze.agent = maze.start
	maze.path = nil
	maze.done = false
	return maze.state()
}

// Table returns the Q values of every cell, goal and obstacles included.
func (maze *Maze) Table() models.ValueTable {
	table := make(models.ValueTable, maze.size.Rows*maze.size.Cols)
	maze.size.Visit(func(p models.Position) {
		row := models.ValueRow{State: p}
		for _, a := range models.Actions {
			row.Values[a] = models.Float(maze.value(p, a))
		}
		table[p] = row
	})
	return table
}

// episode runs one training episode from the start and returns its length.
func (maze *Maze) episode(ctx context.Context, rng *rand.Rand) int {
	p := maze.start
	for steps := 1; steps <= maze.horizon; steps++ {
		if ctx.Err() != nil {
			return steps
		}
		next, terminal := maze.act(rng, p)
		if terminal {
			return steps
		}
		p = next
	}
	return maze.horizon
}

// Train runs episodes on nworkers concurrent agents until the given number of
// episodes completed or ctx is cancelled. The walking agent is not moved.
// Returns the number of episodes completed.
func (maze *Maze) Train(ctx context.Context, episodes, nworkers int) (int, error) {
	if nworkers < 1 {
		nworkers = 1
	}

	trainCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, groupCtx := errgroup.WithContext(trainCtx)

	agentWorker := func(id int) <-chan int {
		lengths := make(chan int)
		rng := rand.New(rand.NewSource(maze.seed + uint64(id) + 1))
		group.Go(func() error {
			defer close(lengths)
			for groupCtx.Err() == nil {
				length := maze.episode(groupCtx, rng)
				select {
				case lengths <- length:
				case <-groupCtx.Done():
					return nil
				}
			}
			return nil
		})
		return lengths
	}

	workers := make([]<-chan int, nworkers)
	for i := range workers {
		workers[i] = agentWorker(i)
	}

	completed := 0
	for range channerics.Merge(groupCtx.Done(), workers...) {
		completed++
		if completed >= episodes {
			cancel()
			break
		}
	}
	cancel()

	if err := group.Wait(); err != nil {
		return completed, err
	}
	return completed, ctx.Err()
}
