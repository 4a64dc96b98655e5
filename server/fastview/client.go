package fastview

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"mazeview/websock"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Maximum message size allowed from peer.
	maxMessageSize = 8192
	// Time allowed for the peer to acknowledge a close.
	closeGracePeriod = time.Second

	pingResolution = time.Millisecond * 200
	// By definition, it encompasses the number of pings to tolerate losing before
	// concluding the peer is gone.
	pongWait = pingResolution * 4
)

var upgrader = websocket.Upgrader{}

// MessageHandler receives each message sent by the web client.
type MessageHandler func(ctx context.Context, msg []byte) error

// A Client publishes a subscription's updates to one web client via websocket, and
// passes the web client's messages to a handler. Updates are published at most once
// per resolution; whatever accumulated in between is sent as one coalesced batch.
type Client struct {
	sub        *Subscription
	ws         *websock.Conn
	onMessage  MessageHandler
	resolution time.Duration
	lastPong   atomic.Int64
	rootCtx    context.Context
	logger     *log.Logger
}

// NewClient upgrades the request to a websocket. onMessage may be nil, in which case
// client messages are read and discarded.
func NewClient(
	sub *Subscription,
	onMessage MessageHandler,
	resolution time.Duration,
	logger *log.Logger,
	w http.ResponseWriter,
	r *http.Request,
) (*Client, error) {
	if logger == nil {
		logger = log.Default()
	}
	if resolution <= 0 {
		return nil, fmt.Errorf("publish resolution must be positive, got %v", resolution)
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		return nil, err
	}
	ws.SetReadLimit(maxMessageSize)

	return &Client{
		sub:        sub,
		ws:         websock.New(ws, closeGracePeriod),
		onMessage:  onMessage,
		resolution: resolution,
		rootCtx:    r.Context(),
		logger:     logger,
	}, nil
}

// Sync runs the client until the web client disconnects, the request context is
// cancelled, or an unexpected error occurs. The websocket is closed on return.
// Sync returns nil upon client disconnect or an error if an unexpected error occurred.
func (cli *Client) Sync() error {
	ctx, cancel := context.WithCancel(cli.rootCtx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer cancel()
		return cli.readMessages(groupCtx)
	})
	group.Go(func() error {
		defer cancel()
		return cli.pingPong(groupCtx)
	})
	group.Go(func() error {
		defer cancel()
		return cli.publish(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		cli.ws.Close()
		return nil
	})

	return group.Wait()
}

var ErrPongDeadlineExceeded error = errors.New("client disconnect, pong deadline exceeded")

// Runs the ping-pong for the client liveness check.
// NOTE: This function requires that readMessages is running to ensure the pong handler is called.
func (cli *Client) pingPong(ctx context.Context) error {
	cli.lastPong.Store(time.Now().UnixNano())
	cli.ws.Conn().SetPongHandler(func(_ string) error {
		cli.lastPong.Store(time.Now().UnixNano())
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(time.Unix(0, cli.lastPong.Load())) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := cli.ping(ctx); err != nil {
				return err
			}
		}
	}
}

func (cli *Client) ping(ctx context.Context) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (err error) {
			err = ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(websock.WriteWait))
			if websock.IsUnexpected(err) {
				return fmt.Errorf("ping failed: %T %v", err, err)
			}
			// Anything else is left to the pong deadline.
			return nil
		})
}

// readMessages passes the client's messages to the handler. Errors returned by
// websocket Read methods are permanent, hence any error must trigger full teardown.
// Handler errors are only logged.
func (cli *Client) readMessages(ctx context.Context) error {
	for ctx.Err() == nil {
		var msg []byte
		err := cli.ws.Read(
			ctx,
			func(ws *websocket.Conn) (readErr error) {
				_, msg, readErr = ws.ReadMessage()
				return
			})
		if err != nil {
			if websock.IsUnexpected(err) && ctx.Err() == nil {
				return fmt.Errorf("read failed: %w", err)
			}
			return nil
		}
		if msg == nil || cli.onMessage == nil {
			continue
		}
		if err = cli.onMessage(ctx, msg); err != nil {
			cli.logger.Println("fastview: client message:", err)
		}
	}
	return nil
}

func (cli *Client) publish(ctx context.Context) error {
	ticker := channerics.NewTicker(ctx.Done(), cli.resolution)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker:
			updates := cli.sub.Take()
			if len(updates) == 0 {
				break
			}
			if err := cli.ws.WriteJSON(ctx, updates); err != nil {
				if websock.IsUnexpected(err) {
					return fmt.Errorf("publish failed: %T %w", err, err)
				}
				return nil
			}
		}
	}
}
