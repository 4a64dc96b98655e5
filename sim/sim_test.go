package sim

import (
	"context"
	"io"
	"log"
	"net/http/httptest"
	"testing"
	"time"

	"mazeview/client"
	"mazeview/models"
	"mazeview/store"
	"mazeview/transport"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

var quiet = log.New(io.Discard, "", 0)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Maze.Seed = 11
	for i := range opts.Maze.HyperParams {
		if opts.Maze.HyperParams[i].Key == "epsilon" {
			opts.Maze.HyperParams[i].Val = 0
		}
	}
	opts.Pretrain = 300
	opts.FrameInterval = time.Millisecond
	opts.Horizon = 500
	return opts
}

func startSim(opts Options) (*Simulator, *httptest.Server, *transport.Client) {
	sim, err := New(opts, quiet)
	So(err, ShouldBeNil)
	So(sim.Pretrain(context.Background()), ShouldBeNil)

	srv := httptest.NewServer(sim.Handler())
	cli, err := transport.NewClient(srv.URL, time.Second)
	So(err, ShouldBeNil)
	return sim, srv, cli
}

func drain(stream *transport.Stream) (frames []transport.Frame) {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case frame, ok := <-stream.Frames():
			if !ok {
				return
			}
			frames = append(frames, frame)
		case <-timeout:
			return
		}
	}
}

func TestSimulator(t *testing.T) {
	Convey("Given a pretrained simulator", t, func() {
		sim, srv, cli := startSim(testOptions())
		defer srv.Close()
		ctx := context.Background()
		size := sim.Maze().Size()

		Convey("The state is the maze and a complete table", func() {
			maze, table, err := cli.FetchState(ctx)
			So(err, ShouldBeNil)
			So(maze.Validate(size), ShouldBeNil)
			So(maze.Agent, ShouldResemble, models.Position{})
			So(len(maze.Obstacles), ShouldEqual, 3)
			So(len(table), ShouldEqual, 25)
		})

		Convey("Steps move the agent until the game is over, and reset restarts it", func() {
			var reply transport.StepReply
			var err error
			for i := 0; i < 200 && !reply.GameOver; i++ {
				reply, err = cli.Step(ctx)
				So(err, ShouldBeNil)
				So(reply.TableErr, ShouldBeNil)
				So(reply.Maze.Validate(size), ShouldBeNil)
			}
			So(reply.GameOver, ShouldBeTrue)
			So(len(reply.Table), ShouldEqual, 25)

			maze, err := cli.Reset(ctx)
			So(err, ShouldBeNil)
			So(maze.Agent, ShouldResemble, models.Position{})
			So(maze.Path, ShouldBeEmpty)
		})

		Convey("The simulate stream starts on the handshake and ends on the terminal frame", func() {
			stream, err := transport.Dial(ctx, transport.StreamURL(cli.BaseURL(), "/maze/simulate"), true, quiet)
			So(err, ShouldBeNil)
			defer stream.Close()

			frames := drain(stream)
			So(len(frames), ShouldBeGreaterThan, 0)
			for _, frame := range frames {
				So(frame.Err, ShouldBeNil)
				So(frame.Table.Shape, ShouldEqual, models.ShapeSparse)
				So(frame.Maze.Validate(size), ShouldBeNil)
			}
			So(frames[len(frames)-1].GameOver, ShouldBeTrue)

			table, rejects, err := models.Normalize(frames[0].Table)
			So(err, ShouldBeNil)
			So(rejects, ShouldBeEmpty)
			So(len(table), ShouldEqual, 25)
		})

		Convey("The plain stream needs no handshake", func() {
			stream, err := transport.Dial(ctx, transport.StreamURL(cli.BaseURL(), "/ws"), false, quiet)
			So(err, ShouldBeNil)
			defer stream.Close()

			frame := <-stream.Frames()
			So(frame.Err, ShouldBeNil)
			So(frame.Maze.Validate(size), ShouldBeNil)
		})

		Convey("A wrong handshake closes the simulate stream", func() {
			ws, _, err := websocket.DefaultDialer.Dial(transport.StreamURL(cli.BaseURL(), "/maze/simulate"), nil)
			So(err, ShouldBeNil)
			defer ws.Close()

			So(ws.WriteJSON(transport.Handshake{Action: "stopSimulation"}), ShouldBeNil)
			So(ws.SetReadDeadline(time.Now().Add(2*time.Second)), ShouldBeNil)
			_, _, err = ws.ReadMessage()
			So(websocket.IsCloseError(err, websocket.CloseNormalClosure), ShouldBeTrue)
		})
	})

	Convey("A zero frame interval is refused", t, func() {
		opts := DefaultOptions()
		opts.FrameInterval = 0
		_, err := New(opts, quiet)
		So(err, ShouldNotBeNil)
	})
}

func TestViewerAgainstSimulator(t *testing.T) {
	Convey("Given a viewer controller driving the simulator", t, func() {
		sim, srv, cli := startSim(testOptions())
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		st := store.NewStore(store.Options{Size: sim.Maze().Size()}, quiet)
		go st.Run(ctx)
		ctl := client.NewController(cli, client.TransportDialer(cli, "/maze/simulate", true, quiet), st, quiet)
		go func() { _ = ctl.Run(ctx) }()

		wait := func(pred func(models.Snapshot) bool) models.Snapshot {
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				if snap := st.Current(); pred(snap) {
					return snap
				}
				time.Sleep(5 * time.Millisecond)
			}
			return st.Current()
		}

		snap := wait(func(s models.Snapshot) bool { return s.Loaded })
		So(snap.Status, ShouldEqual, "Ready")
		So(len(snap.Table), ShouldEqual, 25)

		Convey("A step moves the agent", func() {
			So(ctl.Handle(ctx, client.CmdStep), ShouldBeNil)
			snap := wait(func(s models.Snapshot) bool { return s.Status == "Stepped" || s.GameOver })
			So(len(snap.Maze.Path), ShouldEqual, 1)
		})

		Convey("A simulation runs to game over, and reset recovers", func() {
			So(ctl.Handle(ctx, client.CmdSimulate), ShouldBeNil)
			snap := wait(func(s models.Snapshot) bool { return s.GameOver && !s.Streaming })
			So(snap.GameOver, ShouldBeTrue)
			So(snap.Status, ShouldEqual, "Game over")

			So(ctl.Handle(ctx, client.CmdStep), ShouldNotBeNil)

			So(ctl.Handle(ctx, client.CmdReset), ShouldBeNil)
			snap = wait(func(s models.Snapshot) bool { return s.Status == "Maze reset" })
			So(snap.GameOver, ShouldBeFalse)
			So(snap.Maze.Agent, ShouldResemble, models.Position{})
			So(len(snap.Table), ShouldEqual, 25)
		})
	})
}
