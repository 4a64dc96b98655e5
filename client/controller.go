// client drives the remote simulation on the user's behalf. Commands become
// transport calls, and every reply, frame, or failure becomes a store message.
package client

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"mazeview/models"
	"mazeview/store"
	"mazeview/transport"

	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

// Command is a user action.
type Command int

const (
	CmdStep Command = iota + 1
	CmdReset
	CmdSimulate
	CmdStop
)

var commandNames = map[Command]string{
	CmdStep:     "step",
	CmdReset:    "reset",
	CmdSimulate: "simulate",
	CmdStop:     "stop",
}

func (cmd Command) String() string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return fmt.Sprintf("Command(%d)", int(cmd))
}

// ParseCommand maps an action name, as sent by the page, to its Command.
func ParseCommand(name string) (Command, error) {
	for cmd, cmdName := range commandNames {
		if strings.EqualFold(name, cmdName) {
			return cmd, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", name)
}

// Remote is the request/response side of the simulation.
type Remote interface {
	FetchState(ctx context.Context) (models.MazeState, models.ValueTable, error)
	Step(ctx context.Context) (transport.StepReply, error)
	Reset(ctx context.Context) (models.MazeState, error)
}

// Stream is an open simulation stream.
type Stream interface {
	Frames() <-chan transport.Frame
	Close()
}

// Dialer opens a simulation stream.
type Dialer func(ctx context.Context) (Stream, error)

// TransportDialer dials the stream at path of cli's simulation, sending the
// simulate handshake when asked to.
func TransportDialer(cli *transport.Client, path string, handshake bool, logger *log.Logger) Dialer {
	endpoint := transport.StreamURL(cli.BaseURL(), path)
	return func(ctx context.Context) (Stream, error) {
		stream, err := transport.Dial(ctx, endpoint, handshake, logger)
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
}

const queueSize = 8

// Controller issues commands against the simulation and feeds the results to the
// store. Steps, resets, and streams each have their own worker, so requests of
// one kind are sent and applied one at a time, in order.
type Controller struct {
	remote Remote
	dial   Dialer
	st     *store.Store
	logger *log.Logger

	// generation is raised by every reset; requests carry the value current when issued.
	generation atomic.Uint64

	steps    chan uint64
	resets   chan uint64
	simulate chan uint64

	mu        sync.Mutex
	streaming bool
	stopping  bool
	stream    Stream
}

// NewController returns a controller. Run must be called for commands to take effect.
func NewController(remote Remote, dial Dialer, st *store.Store, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		remote:   remote,
		dial:     dial,
		st:       st,
		logger:   logger,
		steps:    make(chan uint64, queueSize),
		resets:   make(chan uint64, queueSize),
		simulate: make(chan uint64, 1),
	}
}

func violation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", models.ErrProtocolViolation, fmt.Sprintf(format, args...))
}

func enqueue(ctx context.Context, queue chan<- uint64, generation uint64) error {
	select {
	case queue <- generation:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle queues cmd. Commands the current state does not allow fail with
// ErrProtocolViolation before anything is sent.
func (ctl *Controller) Handle(ctx context.Context, cmd Command) error {
	snap := ctl.st.Current()

	switch cmd {
	case CmdStep:
		if !snap.Loaded {
			return violation("step before the maze is loaded")
		}
		if snap.GameOver {
			return violation("step after game over, reset first")
		}
		return enqueue(ctx, ctl.steps, ctl.generation.Load())

	case CmdReset:
		generation := ctl.generation.Add(1)
		if err := ctl.st.Submit(ctx, store.Fence{Generation: generation}); err != nil {
			return err
		}
		ctl.closeStream()
		return enqueue(ctx, ctl.resets, generation)

	case CmdSimulate:
		if !snap.Loaded {
			return violation("simulate before the maze is loaded")
		}
		if snap.GameOver {
			return violation("simulate after game over, reset first")
		}
		ctl.mu.Lock()
		defer ctl.mu.Unlock()
		if ctl.streaming {
			return violation("simulation already running")
		}
		select {
		case ctl.simulate <- ctl.generation.Load():
			ctl.streaming = true
			return nil
		default:
			return violation("simulation already starting")
		}

	case CmdStop:
		ctl.mu.Lock()
		defer ctl.mu.Unlock()
		if !ctl.streaming {
			return violation("no simulation running")
		}
		if ctl.stream != nil {
			ctl.stream.Close()
		} else {
			// Still dialing; the pump closes the stream once it opens.
			ctl.stopping = true
		}
		return nil
	}
	return fmt.Errorf("unknown command %v", cmd)
}

// closeStream closes the open stream, if any; its pump reports the closure.
func (ctl *Controller) closeStream() {
	ctl.mu.Lock()
	stream := ctl.stream
	ctl.mu.Unlock()
	if stream != nil {
		stream.Close()
	}
}

func (ctl *Controller) submit(ctx context.Context, msg store.Message) {
	if err := ctl.st.Submit(ctx, msg); err != nil && ctx.Err() == nil {
		ctl.logger.Printf("controller: submit %T: %v", msg, err)
	}
}

func (ctl *Controller) fail(ctx context.Context, generation uint64, op string, err error) {
	ctl.logger.Printf("controller: %s: %v", op, err)
	ctl.submit(ctx, store.Failure{Generation: generation, Op: op, Err: err})
}

// Load fetches the full state and applies it.
func (ctl *Controller) Load(ctx context.Context) error {
	generation := ctl.generation.Load()
	maze, table, err := ctl.remote.FetchState(ctx)
	if err != nil {
		ctl.fail(ctx, generation, "load", err)
		return err
	}
	ctl.submit(ctx, store.FullState{Generation: generation, Maze: maze, Table: table})
	return nil
}

// Run loads the initial state, then serves commands until ctx is cancelled. A
// failed load is reported in the status; reset retries it.
func (ctl *Controller) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		_ = ctl.Load(groupCtx)
		return nil
	})
	group.Go(func() error {
		ctl.stepWorker(groupCtx)
		return nil
	})
	group.Go(func() error {
		ctl.resetWorker(groupCtx)
		return nil
	})
	group.Go(func() error {
		ctl.streamWorker(groupCtx)
		return nil
	})

	return group.Wait()
}

// stale reports whether a request queued under generation was overtaken by a reset.
func (ctl *Controller) stale(generation uint64) bool {
	return generation < ctl.generation.Load()
}

// stepWorker sends queued steps one at a time. Steps queued before a reset, or
// after a reply of their generation ended the game, are dropped unsent.
func (ctl *Controller) stepWorker(ctx context.Context) {
	over := false
	var overAt uint64

	for generation := range channerics.OrDone[uint64](ctx.Done(), ctl.steps) {
		if ctl.stale(generation) {
			ctl.logger.Printf("controller: step of generation %d dropped after reset", generation)
			continue
		}
		if (over && overAt == generation) || ctl.st.Current().GameOver {
			ctl.logger.Printf("controller: step of generation %d dropped after game over", generation)
			continue
		}

		reply, err := ctl.remote.Step(ctx)
		if err != nil {
			ctl.fail(ctx, generation, "step", err)
			continue
		}
		if reply.GameOver {
			over, overAt = true, generation
		}
		ctl.submit(ctx, store.StepResult{
			Generation: generation,
			Maze:       reply.Maze,
			GameOver:   reply.GameOver,
			Table:      reply.Table,
		})
		if reply.TableErr != nil {
			ctl.fail(ctx, generation, "step", reply.TableErr)
		}
	}
}

// resetWorker sends queued resets; only the latest of several queued ones is sent.
func (ctl *Controller) resetWorker(ctx context.Context) {
	for generation := range channerics.OrDone[uint64](ctx.Done(), ctl.resets) {
		if ctl.stale(generation) {
			continue
		}
		maze, err := ctl.remote.Reset(ctx)
		if err != nil {
			ctl.fail(ctx, generation, "reset", err)
			continue
		}
		ctl.submit(ctx, store.ResetResult{Generation: generation, Maze: maze})
	}
}

func (ctl *Controller) streamWorker(ctx context.Context) {
	for generation := range channerics.OrDone[uint64](ctx.Done(), ctl.simulate) {
		ctl.pump(ctx, generation)

		ctl.mu.Lock()
		ctl.streaming = false
		ctl.stopping = false
		ctl.stream = nil
		ctl.mu.Unlock()
	}
}

// pump opens a stream and submits its frames in arrival order until it ends.
func (ctl *Controller) pump(ctx context.Context, generation uint64) {
	stream, err := ctl.dial(ctx)
	if err != nil {
		ctl.fail(ctx, generation, "simulate", err)
		return
	}
	defer stream.Close()

	ctl.mu.Lock()
	ctl.stream = stream
	stopping := ctl.stopping
	ctl.mu.Unlock()
	// A stop or reset issued while dialing has already missed this stream.
	if stopping || ctl.generation.Load() != generation {
		return
	}

	ctl.submit(ctx, store.StreamState{Generation: generation, Open: true})
	defer ctl.submit(ctx, store.StreamState{Generation: generation, Open: false})

	for frame := range channerics.OrDone(ctx.Done(), stream.Frames()) {
		if frame.Err != nil {
			ctl.fail(ctx, generation, "stream", frame.Err)
			continue
		}
		ctl.submit(ctx, store.StreamFrame{
			Generation: generation,
			Maze:       frame.Maze,
			Table:      frame.Table,
			GameOver:   frame.GameOver,
		})
		if frame.GameOver {
			stream.Close()
		}
	}
}
