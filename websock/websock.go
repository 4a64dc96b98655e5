// websock serializes access to a gorilla websocket connection, which allows at most
// one concurrent reader and one concurrent writer.
package websock

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// ErrSockCongestion indicates there are too many waiters on the socket for a given op.
var ErrSockCongestion = errors.New("sock op failed due to congestion")

const (
	// Time allowed to write a message to the peer.
	WriteWait = 1 * time.Second
	// How long an op may wait for its turn on the socket.
	opDeadline = time.Second
)

// Conn wraps a websocket. The semaphores are merely mutexes, but channel semantics
// let waiters also watch their context.
type Conn struct {
	readSem    chan struct{}
	writeSem   chan struct{}
	ws         *websocket.Conn
	closeGrace time.Duration
}

// New wraps ws. closeGrace is how long Close waits for the peer to acknowledge the
// close frame before tearing down the connection.
func New(ws *websocket.Conn, closeGrace time.Duration) *Conn {
	return &Conn{
		readSem:    make(chan struct{}, 1),
		writeSem:   make(chan struct{}, 1),
		ws:         ws,
		closeGrace: closeGrace,
	}
}

// Conn returns the underlying websocket.
// This should only be used non-concurrently for setup, e.g. adding handlers.
func (sock *Conn) Conn() *websocket.Conn {
	return sock.ws
}

// Close sends a normal closure and closes the connection. Pending readers unblock
// with an error once the peer acknowledges or the grace period expires.
func (sock *Conn) Close() {
	sock.writeSem <- struct{}{}
	_ = sock.ws.SetWriteDeadline(time.Now().Add(WriteWait))
	_ = sock.ws.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	<-sock.writeSem

	// Give a concurrent reader the chance to see the peer's close frame.
	_ = sock.ws.SetReadDeadline(time.Now().Add(sock.closeGrace))
	select {
	case sock.readSem <- struct{}{}:
		<-sock.readSem
	case <-time.After(sock.closeGrace):
	}
	sock.ws.Close()
}

// Read serializes read operations on the internal web socket.
// Returns nil without reading if ctx is done first.
func (sock *Conn) Read(
	ctx context.Context,
	readFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.readSem <- struct{}{}:
		defer func() { <-sock.readSem }()
		return readFn(sock.ws)
	case <-time.After(opDeadline):
		return ErrSockCongestion
	}
}

// Write serializes write operations to the websocket.
func (sock *Conn) Write(
	ctx context.Context,
	writeFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.writeSem <- struct{}{}:
		defer func() { <-sock.writeSem }()
		return writeFn(sock.ws)
	case <-time.After(opDeadline):
		return ErrSockCongestion
	}
}

// WriteJSON writes v under the write semaphore with a write deadline.
func (sock *Conn) WriteJSON(ctx context.Context, v interface{}) error {
	return sock.Write(ctx, func(ws *websocket.Conn) error {
		if err := ws.SetWriteDeadline(time.Now().Add(WriteWait)); err != nil {
			return err
		}
		return ws.WriteJSON(v)
	})
}

// IsUnexpected reports errors other than a normal or going-away closure.
func IsUnexpected(err error) bool {
	return err != nil && websocket.IsUnexpectedCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

// IsClosure reports a normal or going-away closure.
func IsClosure(err error) bool {
	return err != nil && websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}
