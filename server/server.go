// server serves the viewer's page: the views' initial html, a websocket pushing
// their element updates and accepting commands, command routes, and a heatmap.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"mazeview/client"
	"mazeview/heatmap"
	"mazeview/models"
	"mazeview/server/fastview"
	"mazeview/server/root_view"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

// Commander executes user commands.
type Commander interface {
	Handle(ctx context.Context, cmd client.Command) error
}

// Options configure the server.
type Options struct {
	Addr string
	Size models.GridSize
	// PublishResolution is the minimum interval between pushes to a page.
	PublishResolution time.Duration
}

// Server serves any number of pages. Each page's websocket subscribes to the same
// register, so every page converges on the latest state.
type Server struct {
	opts     Options
	ctl      Commander
	current  func() models.Snapshot
	rootView *root_view.RootView
	register *fastview.Register
	router   *mux.Router
	logger   *log.Logger
}

// action is a command sent by the page.
type action struct {
	Action string `json:"action"`
}

// NewServer initializes all of the views. current returns the latest snapshot, used
// to render the page; snapshots drives the views until ctx is cancelled.
func NewServer(
	ctx context.Context,
	opts Options,
	ctl Commander,
	current func() models.Snapshot,
	snapshots <-chan models.Snapshot,
	logger *log.Logger,
) (*Server, error) {
	if logger == nil {
		logger = log.Default()
	}
	if opts.PublishResolution <= 0 {
		return nil, fmt.Errorf("publish resolution must be positive, got %v", opts.PublishResolution)
	}

	rootView, err := root_view.NewRootView(ctx, opts.Size, snapshots)
	if err != nil {
		return nil, err
	}

	server := &Server{
		opts:     opts,
		ctl:      ctl,
		current:  current,
		rootView: rootView,
		register: fastview.NewRegister(ctx.Done(), rootView.Updates()),
		logger:   logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/", server.serveIndex).Methods(http.MethodGet)
	router.HandleFunc("/ws", server.serveWebsocket).Methods(http.MethodGet)
	router.HandleFunc("/heatmap.png", server.serveHeatmap).Methods(http.MethodGet)
	router.HandleFunc("/{command:step|reset|simulate|stop}", server.serveCommand).Methods(http.MethodPost)
	server.router = router

	return server, nil
}

// Handler returns the server's routes.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Serve listens on the configured address until ctx is cancelled.
func (server *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.opts.Addr,
		Handler: server.router,
		// Websockets are hijacked, so shutdown reaches them through their request context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

// serveWebsocket publishes view updates to the page and executes the commands it sends.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	sub := server.register.Subscribe()
	defer server.register.Unsubscribe(sub)

	cli, err := fastview.NewClient(sub, server.onMessage, server.opts.PublishResolution, server.logger, w, r)
	if err != nil {
		server.logger.Println("upgrade:", err)
		return
	}
	if err = cli.Sync(); err != nil {
		server.logger.Println("websocket:", err)
	}
}

func (server *Server) onMessage(ctx context.Context, msg []byte) error {
	var act action
	if err := json.Unmarshal(msg, &act); err != nil {
		return fmt.Errorf("%w: %v", models.ErrMalformedPayload, err)
	}
	cmd, err := client.ParseCommand(act.Action)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrMalformedPayload, err)
	}
	return server.ctl.Handle(ctx, cmd)
}

// serveCommand executes the command named by the route: 204 when accepted, 409 when
// the current state does not allow it.
func (server *Server) serveCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := client.ParseCommand(mux.Vars(r)["command"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	err = server.ctl.Handle(r.Context(), cmd)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, models.ErrProtocolViolation):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	}
}

// Serve the index.html main page, rendered from the latest snapshot.
func (server *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := renderTemplate(&buf, server.rootView, server.rootView.Frame(server.current())); err != nil {
		server.logger.Println("index:", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (server *Server) serveHeatmap(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := heatmap.WritePNG(&buf, server.rootView.Frame(server.current()))
	if errors.Is(err, heatmap.ErrGridTooSmall) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		server.logger.Println("heatmap:", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = buf.WriteTo(w)
}

func renderTemplate(
	w io.Writer,
	vc fastview.ViewComponent,
	data interface{},
) (err error) {
	t := template.New("index.html")
	var tname string
	if tname, err = vc.Parse(t); err != nil {
		return
	}
	if _, err = t.Parse(`{{ template "` + tname + `" . }}`); err != nil {
		return
	}

	err = t.Execute(w, data)
	return
}
