// sim is a reference simulation: a Q-learning maze served over the same HTTP and
// websocket interfaces the viewer consumes. It exists to drive the viewer during
// development and in end-to-end tests.
package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"mazeview/models"
	"mazeview/reinforcement"
	"mazeview/transport"
	"mazeview/websock"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed for the simulate handshake to arrive.
	handshakeWait = 5 * time.Second
	// Time allowed for the viewer to acknowledge a close.
	closeGracePeriod = time.Second
	// Maximum message size allowed from the viewer.
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{}

// Options configure the simulation.
type Options struct {
	Addr string
	Maze reinforcement.MazeConfig
	// Pretrain is the number of training episodes run before serving.
	Pretrain int
	// Workers is the number of concurrent training agents.
	Workers int
	// FrameInterval is the pause between streamed frames.
	FrameInterval time.Duration
	// Horizon bounds the number of frames per stream.
	Horizon int
}

// DefaultOptions serves the default maze on :3030.
func DefaultOptions() Options {
	return Options{
		Addr:          ":3030",
		Maze:          reinforcement.DefaultMazeConfig(),
		Pretrain:      500,
		Workers:       4,
		FrameInterval: 200 * time.Millisecond,
		Horizon:       200,
	}
}

// Simulator owns one maze and serves it.
type Simulator struct {
	opts   Options
	maze   *reinforcement.Maze
	router *gin.Engine
	logger *log.Logger
}

type frame struct {
	CurrentState models.MazeState    `json:"current_state"`
	QTable       map[string]*float64 `json:"q_table"`
	GameOver     bool                `json:"game_over,omitempty"`
}

func New(opts Options, logger *log.Logger) (*Simulator, error) {
	if logger == nil {
		logger = log.Default()
	}
	if opts.FrameInterval <= 0 {
		return nil, fmt.Errorf("frame interval must be positive, got %v", opts.FrameInterval)
	}

	maze, err := reinforcement.NewMaze(opts.Maze)
	if err != nil {
		return nil, err
	}

	sim := &Simulator{
		opts:   opts,
		maze:   maze,
		logger: logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())
	router.GET("/state", sim.handleState)
	router.POST("/maze/step", sim.handleStep)
	router.POST("/maze/reset", sim.handleReset)
	router.GET("/ws", sim.handleStream(false))
	router.GET("/maze/simulate", sim.handleStream(true))
	sim.router = router

	return sim, nil
}

// Handler returns the simulation's routes.
func (sim *Simulator) Handler() http.Handler {
	return sim.router
}

// Maze returns the simulated maze.
func (sim *Simulator) Maze() *reinforcement.Maze {
	return sim.maze
}

// Pretrain runs the configured number of training episodes.
func (sim *Simulator) Pretrain(ctx context.Context) error {
	if sim.opts.Pretrain <= 0 {
		return nil
	}
	start := time.Now()
	completed, err := sim.maze.Train(ctx, sim.opts.Pretrain, sim.opts.Workers)
	sim.logger.Printf("sim: pretrained %d episodes in %v", completed, time.Since(start))
	return err
}

// Serve listens on the configured address until ctx is cancelled.
func (sim *Simulator) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:    sim.opts.Addr,
		Handler: sim.router,
		// Streams are hijacked, so shutdown reaches them through their request context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func (sim *Simulator) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, []interface{}{sim.maze.State(), sim.maze.Table()})
}

func (sim *Simulator) handleStep(c *gin.Context) {
	state, over := sim.maze.Step()
	status := ""
	if over {
		status = transport.GameOverStatus
	}
	c.JSON(http.StatusOK, []interface{}{state, status, sim.maze.Table()})
}

func (sim *Simulator) handleReset(c *gin.Context) {
	c.JSON(http.StatusOK, sim.maze.Reset())
}

func (sim *Simulator) handleStream(handshake bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			sim.logger.Println("sim: upgrade:", err)
			return
		}
		ws.SetReadLimit(maxMessageSize)
		sock := websock.New(ws, closeGracePeriod)
		defer sock.Close()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		if handshake {
			if err := awaitHandshake(ctx, sock); err != nil {
				sim.logger.Println("sim: handshake:", err)
				return
			}
		}

		go readPump(ctx, cancel, sock)
		if err := sim.stream(ctx, sock); err != nil {
			sim.logger.Println("sim: stream:", err)
		}
	}
}

func awaitHandshake(ctx context.Context, sock *websock.Conn) error {
	var data []byte
	err := sock.Read(ctx, func(ws *websocket.Conn) (readErr error) {
		if readErr = ws.SetReadDeadline(time.Now().Add(handshakeWait)); readErr != nil {
			return
		}
		_, data, readErr = ws.ReadMessage()
		return
	})
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var hs transport.Handshake
	if err = json.Unmarshal(data, &hs); err != nil {
		return fmt.Errorf("%w: %v", models.ErrMalformedPayload, err)
	}
	if hs != transport.StartSimulation {
		return fmt.Errorf("%w: unexpected action %q", models.ErrProtocolViolation, hs.Action)
	}
	return sock.Conn().SetReadDeadline(time.Time{})
}

// readPump drains the viewer's messages so that control frames are processed, and
// cancels the stream once the viewer goes away.
func readPump(ctx context.Context, cancel context.CancelFunc, sock *websock.Conn) {
	defer cancel()
	for ctx.Err() == nil {
		err := sock.Read(ctx, func(ws *websocket.Conn) error {
			_, _, err := ws.ReadMessage()
			return err
		})
		if err != nil {
			return
		}
	}
}

// stream steps the maze once per frame interval and sends each resulting frame,
// ending after the terminal frame or the horizon.
func (sim *Simulator) stream(ctx context.Context, sock *websock.Conn) error {
	ticker := channerics.NewTicker(ctx.Done(), sim.opts.FrameInterval)
	for sent := 0; sim.opts.Horizon <= 0 || sent < sim.opts.Horizon; sent++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker:
		}

		state, over := sim.maze.Step()
		msg := frame{
			CurrentState: state,
			QTable:       sim.maze.Table().Sparse(),
			GameOver:     over,
		}
		if err := sock.WriteJSON(ctx, msg); err != nil {
			return err
		}
		if over {
			return nil
		}
	}
	return nil
}
