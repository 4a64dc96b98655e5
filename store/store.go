package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"mazeview/models"
)

// Message is a single update delivered to the store. Every transport event becomes
// one Message; they are applied one at a time, in the order submitted.
type Message interface {
	// apply mutates the reconciler and returns an error if the update was refused.
	apply(rec *Reconciler, logger *log.Logger) error
}

// FullState is the reply of the initial load.
type FullState struct {
	Generation uint64
	Maze       models.MazeState
	Table      models.ValueTable
}

func (msg FullState) apply(rec *Reconciler, _ *log.Logger) error {
	if err := rec.Admit(msg.Generation); err != nil {
		return err
	}
	return rec.ApplyFullState(msg.Maze, msg.Table)
}

// ResetResult is the reply of a reset request.
type ResetResult struct {
	Generation uint64
	Maze       models.MazeState
}

func (msg ResetResult) apply(rec *Reconciler, _ *log.Logger) error {
	if err := rec.Admit(msg.Generation); err != nil {
		return err
	}
	return rec.ApplyReset(msg.Maze)
}

// StepResult is the reply of a step request. A nil Table means the reply carried none.
type StepResult struct {
	Generation uint64
	Maze       models.MazeState
	GameOver   bool
	Table      models.ValueTable
}

func (msg StepResult) apply(rec *Reconciler, _ *log.Logger) error {
	if err := rec.Admit(msg.Generation); err != nil {
		return err
	}
	return rec.ApplyStepResult(msg.Maze, msg.GameOver, msg.Table)
}

// StreamFrame is one frame of the simulation stream, table not yet normalized.
type StreamFrame struct {
	Generation uint64
	Maze       models.MazeState
	Table      models.RawTable
	GameOver   bool
}

func (msg StreamFrame) apply(rec *Reconciler, logger *log.Logger) error {
	if err := rec.Admit(msg.Generation); err != nil {
		return err
	}
	rejects, err := rec.ApplyStreamFrame(msg.Maze, msg.Table, msg.GameOver)
	for _, reject := range rejects {
		logger.Println("stream frame:", reject)
	}
	return err
}

// StreamState reports a simulation stream opening or closing.
type StreamState struct {
	Generation uint64
	Open       bool
}

func (msg StreamState) apply(rec *Reconciler, _ *log.Logger) error {
	// A close is always honored so a stale stream can't stay marked open.
	if msg.Open {
		if err := rec.Admit(msg.Generation); err != nil {
			return err
		}
	}
	rec.SetStreaming(msg.Open)
	return nil
}

// Fence is sent when a reset is issued, before its request goes out.
type Fence struct {
	Generation uint64
}

func (msg Fence) apply(rec *Reconciler, _ *log.Logger) error {
	rec.Fence(msg.Generation)
	return nil
}

// Failure surfaces a transport or protocol error. It changes only the status.
type Failure struct {
	Generation uint64
	Op         string
	Err        error
}

func (msg Failure) apply(rec *Reconciler, _ *log.Logger) error {
	if err := rec.Admit(msg.Generation); err != nil {
		return err
	}
	return fmt.Errorf("%s: %w", msg.Op, msg.Err)
}

// Store runs a Reconciler on a single goroutine. Updates arrive as messages via
// Submit; each processed message publishes the resulting snapshot.
type Store struct {
	rec      *Reconciler
	inbox    chan Message
	out      chan models.Snapshot
	current  atomic.Pointer[models.Snapshot]
	logger   *log.Logger
	finished chan struct{}
}

// NewStore returns a store holding an empty snapshot. Run must be called to process messages.
func NewStore(opts Options, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	st := &Store{
		rec:      NewReconciler(opts),
		inbox:    make(chan Message, 64),
		out:      make(chan models.Snapshot, 1),
		logger:   logger,
		finished: make(chan struct{}),
	}
	initial := st.rec.Snapshot()
	st.current.Store(&initial)
	return st
}

// ErrStoreClosed is returned by Submit once the store has stopped running.
var ErrStoreClosed error = errors.New("store is closed")

// Submit queues msg for application. It blocks while the inbox is full.
func (st *Store) Submit(ctx context.Context, msg Message) error {
	select {
	case <-st.finished:
		return ErrStoreClosed
	default:
	}

	select {
	case st.inbox <- msg:
		return nil
	case <-st.finished:
		return ErrStoreClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Current returns the latest snapshot. Safe for concurrent use.
func (st *Store) Current() models.Snapshot {
	return *st.current.Load()
}

// Snapshots returns a channel holding the latest snapshot. A slow reader skips
// intermediate snapshots but always sees the most recent one. The channel is
// closed when Run returns.
func (st *Store) Snapshots() <-chan models.Snapshot {
	return st.out
}

// Run applies submitted messages until ctx is cancelled.
func (st *Store) Run(ctx context.Context) {
	defer close(st.out)
	defer close(st.finished)

	st.publish(st.rec.Snapshot())
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-st.inbox:
			st.process(msg)
		}
	}
}

func (st *Store) process(msg Message) {
	if err := msg.apply(st.rec, st.logger); err != nil {
		if errors.Is(err, models.ErrStaleGeneration) {
			// Stale replies are expected after a reset; nothing to show the user.
			st.logger.Printf("store: dropped %T: %v", msg, err)
			return
		}
		st.logger.Printf("store: rejected %T: %v", msg, err)
		st.rec.SetStatus("Error: " + err.Error())
	}
	st.publish(st.rec.Snapshot())
}

// publish replaces whatever unread snapshot is in the out channel with snap.
// Run is the only sender, so the second send cannot block.
func (st *Store) publish(snap models.Snapshot) {
	st.current.Store(&snap)
	select {
	case st.out <- snap:
	default:
		select {
		case <-st.out:
		default:
		}
		st.out <- snap
	}
}
