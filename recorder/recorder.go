// recorder appends the snapshots it observes to a Redis stream, so a session can be
// inspected or replayed later.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"mazeview/models"

	"github.com/redis/go-redis/v9"
)

type Options struct {
	Addr   string
	Stream string
	// MaxLen caps the stream length; zero leaves it unbounded.
	MaxLen int64
}

type Recorder struct {
	rdb    *redis.Client
	opts   Options
	logger *log.Logger
}

// entry is the recorded form of a snapshot.
type entry struct {
	Generation uint64            `json:"generation"`
	Loaded     bool              `json:"loaded"`
	GameOver   bool              `json:"gameOver"`
	Streaming  bool              `json:"streaming"`
	Status     string            `json:"status"`
	Maze       models.MazeState  `json:"maze"`
	Table      models.ValueTable `json:"table"`
}

func New(opts Options, logger *log.Logger) (*Recorder, error) {
	if logger == nil {
		logger = log.Default()
	}
	if opts.Addr == "" || opts.Stream == "" {
		return nil, errors.New("recorder needs a redis address and a stream name")
	}
	return &Recorder{
		rdb: redis.NewClient(&redis.Options{
			Addr:        opts.Addr,
			DialTimeout: time.Second,
		}),
		opts:   opts,
		logger: logger,
	}, nil
}

// Ping checks that redis is reachable.
func (rec *Recorder) Ping(ctx context.Context) error {
	if err := rec.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("recorder: %w", err)
	}
	return nil
}

// Record appends snap to the stream and returns the entry id.
func (rec *Recorder) Record(ctx context.Context, snap models.Snapshot) (string, error) {
	data, err := json.Marshal(entry{
		Generation: snap.Generation,
		Loaded:     snap.Loaded,
		GameOver:   snap.GameOver,
		Streaming:  snap.Streaming,
		Status:     snap.Status,
		Maze:       snap.Maze,
		Table:      snap.Table,
	})
	if err != nil {
		return "", fmt.Errorf("recorder: %w", err)
	}

	id, err := rec.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: rec.opts.Stream,
		MaxLen: rec.opts.MaxLen,
		Values: map[string]interface{}{
			"generation": snap.Generation,
			"status":     snap.Status,
			"snapshot":   string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("recorder: %w", err)
	}
	return id, nil
}

// Run records snapshots until ctx is cancelled or snapshots is closed. Failed
// writes are logged and skipped.
func (rec *Recorder) Run(ctx context.Context, snapshots <-chan models.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if _, err := rec.Record(ctx, snap); err != nil && ctx.Err() == nil {
				rec.logger.Println(err)
			}
		}
	}
}

func (rec *Recorder) Close() error {
	return rec.rdb.Close()
}
