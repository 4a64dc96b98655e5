package reinforcement

import (
	"context"
	"errors"
	"testing"

	"mazeview/models"

	. "github.com/smartystreets/goconvey/convey"
)

func greedyConfig() MazeConfig {
	cfg := DefaultMazeConfig()
	cfg.Seed = 7
	for i := range cfg.HyperParams {
		if cfg.HyperParams[i].Key == "epsilon" {
			cfg.HyperParams[i].Val = 0
		}
	}
	return cfg
}

func TestMaze(t *testing.T) {
	Convey("Given the default maze", t, func() {
		maze, err := NewMaze(greedyConfig())
		So(err, ShouldBeNil)

		Convey("Hyper parameters fall back to defaults, first match wins", func() {
			cfg := DefaultMazeConfig()
			cfg.HyperParams = append(cfg.HyperParams, HyperParameter{Key: "epsilon", Val: 0.5})
			So(cfg.GetHyperParamOrDefault("epsilon", 1), ShouldEqual, 0.1)
			So(cfg.GetHyperParamOrDefault("lambda", 0.5), ShouldEqual, 0.5)
		})

		Convey("Moves are clamped to the grid", func() {
			next, reward, terminal := maze.successor(models.Position{}, models.Up)
			So(next, ShouldResemble, models.Position{})
			So(reward, ShouldEqual, StepReward)
			So(terminal, ShouldBeFalse)

			next, _, _ = maze.successor(models.Position{Row: 4, Col: 0}, models.Down)
			So(next, ShouldResemble, models.Position{Row: 4, Col: 0})
		})

		Convey("Obstacles bounce the agent with a penalty", func() {
			next, reward, terminal := maze.successor(models.Position{Row: 0, Col: 1}, models.Down)
			So(next, ShouldResemble, models.Position{Row: 0, Col: 1})
			So(reward, ShouldEqual, ObstacleReward)
			So(terminal, ShouldBeFalse)
		})

		Convey("Reaching the goal is terminal and leaves the agent off the goal", func() {
			next, reward, terminal := maze.successor(models.Position{Row: 4, Col: 3}, models.Right)
			So(next, ShouldResemble, models.Position{Row: 4, Col: 3})
			So(reward, ShouldEqual, GoalReward)
			So(terminal, ShouldBeTrue)
		})

		Convey("The initial state is valid and the table complete", func() {
			state := maze.State()
			So(state.Validate(maze.Size()), ShouldBeNil)
			So(state.Agent, ShouldResemble, models.Position{})

			table := maze.Table()
			So(len(table), ShouldEqual, 25)
			So(table.Validate(maze.Size()), ShouldBeNil)
			v, ok := table[models.Position{Row: 2, Col: 3}].Values.Known(models.Left)
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 0)
		})

		Convey("A step learns from the move", func() {
			state, over := maze.Step()
			So(over, ShouldBeFalse)
			So(state.Validate(maze.Size()), ShouldBeNil)
			So(len(state.Path), ShouldEqual, 1)

			learned := false
			for _, row := range maze.Table() {
				for _, a := range models.Actions {
					if v, _ := row.Values.Known(a); v != 0 {
						learned = true
					}
				}
			}
			So(learned, ShouldBeTrue)
		})

		Convey("After training the agent walks to the goal, then stays done until reset", func() {
			completed, err := maze.Train(context.Background(), 200, 4)
			So(err, ShouldBeNil)
			So(completed, ShouldEqual, 200)

			over := false
			var state models.MazeState
			for i := 0; i < 100 && !over; i++ {
				state, over = maze.Step()
				So(state.Validate(maze.Size()), ShouldBeNil)
			}
			So(over, ShouldBeTrue)
			So(maze.Done(), ShouldBeTrue)
			So(state.Path[len(state.Path)-1], ShouldResemble, state.Goal)

			again, stillOver := maze.Step()
			So(stillOver, ShouldBeTrue)
			So(again, ShouldResemble, state)

			reset := maze.Reset()
			So(reset.Agent, ShouldResemble, models.Position{})
			So(reset.Path, ShouldBeEmpty)
			So(maze.Done(), ShouldBeFalse)
		})

		Convey("Training stops when cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := maze.Train(ctx, 1_000_000, 2)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})

	Convey("An overlapping layout is refused", t, func() {
		cfg := DefaultMazeConfig()
		cfg.Goal = cfg.Obstacles[0]
		_, err := NewMaze(cfg)
		So(errors.Is(err, models.ErrInvariantViolation), ShouldBeTrue)
	})
}
