package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"mazeview/models"
	"mazeview/websock"

	"github.com/gorilla/websocket"
)

const (
	// Maximum frame size accepted from the simulation.
	maxFrameSize = 1 << 20
	// How long Close waits for the simulation to acknowledge the close frame.
	closeGracePeriod = 500 * time.Millisecond
)

// Frame is one message of the simulation stream.
type Frame struct {
	Maze     models.MazeState
	Table    models.RawTable
	GameOver bool
	// Err is set, and the other fields meaningless, when the frame could not be decoded.
	Err error
}

type wireFrame struct {
	CurrentState json.RawMessage `json:"current_state"`
	QTable       json.RawMessage `json:"q_table"`
	GameOver     bool            `json:"game_over,omitempty"`
}

// Handshake is sent on the simulate endpoint right after the channel opens.
type Handshake struct {
	Action string `json:"action"`
}

// StartSimulation is the simulate endpoint's handshake.
var StartSimulation = Handshake{Action: "startSimulation"}

// DecodeFrame decodes {current_state, q_table, game_over?}. The table is decoded
// into its tagged shape but not normalized.
func DecodeFrame(data []byte) (frame Frame, err error) {
	var wire wireFrame
	if err = json.Unmarshal(data, &wire); err != nil {
		err = fmt.Errorf("%w: frame: %v", models.ErrMalformedPayload, err)
		return
	}
	if len(wire.CurrentState) == 0 {
		err = fmt.Errorf("%w: frame without current_state", models.ErrMalformedPayload)
		return
	}
	if err = json.Unmarshal(wire.CurrentState, &frame.Maze); err != nil {
		err = fmt.Errorf("frame: %w", err)
		return
	}
	if frame.Table, err = models.DecodeRawTable(wire.QTable); err != nil {
		err = fmt.Errorf("frame: %w", err)
		return
	}
	frame.GameOver = wire.GameOver
	return
}

// StreamURL derives the websocket url of path from the simulation's http base url.
func StreamURL(base *url.URL, path string) string {
	u := *base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.JoinPath(path).String()
}

// Stream is an open simulation stream. Frames are delivered in arrival order.
type Stream struct {
	sock      *websock.Conn
	frames    chan Frame
	cancel    context.CancelFunc
	closeOnce sync.Once
	logger    *log.Logger
}

// Dial opens the stream at endpoint. With handshake set, the simulate handshake is
// sent before any frame is read.
func Dial(ctx context.Context, endpoint string, handshake bool, logger *log.Logger) (*Stream, error) {
	if logger == nil {
		logger = log.Default()
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", models.ErrTransportFailure, endpoint, err)
	}
	ws.SetReadLimit(maxFrameSize)

	streamCtx, cancel := context.WithCancel(context.Background())
	stream := &Stream{
		sock:   websock.New(ws, closeGracePeriod),
		frames: make(chan Frame),
		cancel: cancel,
		logger: logger,
	}

	if handshake {
		if err = stream.sock.WriteJSON(ctx, StartSimulation); err != nil {
			stream.Close()
			return nil, fmt.Errorf("%w: handshake: %v", models.ErrTransportFailure, err)
		}
	}

	go stream.readFrames(streamCtx)
	return stream, nil
}

// Frames returns the frame channel, closed when the stream ends for any reason.
func (stream *Stream) Frames() <-chan Frame {
	return stream.frames
}

// Close closes the stream. Safe to call more than once, from any goroutine.
func (stream *Stream) Close() {
	stream.closeOnce.Do(func() {
		stream.cancel()
		stream.sock.Close()
	})
}

func (stream *Stream) deliver(ctx context.Context, frame Frame) bool {
	select {
	case stream.frames <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

// readFrames reads until error, closure, or a terminal frame. Errors returned by
// websocket read methods are permanent, so any error ends the stream.
func (stream *Stream) readFrames(ctx context.Context) {
	defer close(stream.frames)

	for {
		var data []byte
		err := stream.sock.Read(ctx, func(ws *websocket.Conn) (readErr error) {
			_, data, readErr = ws.ReadMessage()
			return
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if !websock.IsClosure(err) {
				stream.deliver(ctx, Frame{Err: fmt.Errorf("%w: stream read: %v", models.ErrTransportFailure, err)})
			}
			return
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			stream.logger.Println("stream: skipping frame:", err)
			frame = Frame{Err: err}
		}
		if !stream.deliver(ctx, frame) {
			return
		}
		if frame.Err == nil && frame.GameOver {
			return
		}
	}
}
