package root_view

import (
	"context"
	"html/template"
	"time"

	"mazeview/models"
	"mazeview/render"
	"mazeview/server/cell_views"
	"mazeview/server/fastview"
)

// BatchResolution is how often the fanned-in view updates are flushed.
const BatchResolution = 20 * time.Millisecond

// RootView is the main page's index.html, which is the container for all the
// view components, the wiring for their channels, etc.
type RootView struct {
	size    models.GridSize
	views   []fastview.ViewComponent
	updates <-chan []fastview.EleUpdate
}

// NewRootView creates the main page and the views it contains. Every snapshot is
// rendered once and the frame is broadcast to the views.
func NewRootView(
	ctx context.Context,
	size models.GridSize,
	snapshots <-chan models.Snapshot,
) (*RootView, error) {
	page, err := fastview.NewPage[models.Snapshot, render.Frame](
		ctx.Done(),
		snapshots,
		func(snap models.Snapshot) render.Frame {
			return render.Render(snap, size)
		},
		BatchResolution,
		func(done <-chan struct{}, frames <-chan render.Frame) fastview.ViewComponent {
			return cell_views.NewControls(done, frames)
		},
		func(done <-chan struct{}, frames <-chan render.Frame) fastview.ViewComponent {
			return cell_views.NewMazeGrid(done, size, frames)
		},
		func(done <-chan struct{}, frames <-chan render.Frame) fastview.ViewComponent {
			return cell_views.NewValueTable(done, size, frames)
		},
		func(done <-chan struct{}, frames <-chan render.Frame) fastview.ViewComponent {
			return cell_views.NewValueFunction(done, size, frames)
		})
	if err != nil {
		return nil, err
	}

	return &RootView{
		size:    size,
		views:   page.Views(),
		updates: page.Updates(),
	}, nil
}

// Updates returns the main ele-update channel for all the views.
func (rv *RootView) Updates() <-chan []fastview.EleUpdate {
	return rv.updates
}

// Frame renders snap the way the views do, for executing the page template.
func (rv *RootView) Frame(snap models.Snapshot) render.Frame {
	return render.Render(snap, rv.size)
}

// Parse builds the main page's template, with websocket bootstrap code, and returns its name.
// The parent receives the func-map the child components depend on.
func (rv *RootView) Parse(
	parent *template.Template,
) (name string, err error) {
	rt := parent.Funcs(fastview.TemplateFuncs)

	viewTemplates := []string{}
	for _, vc := range rv.views {
		tname, parseErr := vc.Parse(rt)
		if parseErr != nil {
			return "", parseErr
		}
		viewTemplates = append(viewTemplates, tname)
	}

	// Specify the nested templates
	var bodySpec string
	for _, tname := range viewTemplates {
		bodySpec += (`{{ template "` + tname + `" . }}`)
	}

	// The main template bootstraps the rest: sets up client websocket and updates, aggregates views.
	name = "mainpage"
	indexTemplate := `
	{{ define "` + name + `" }}
	<!DOCTYPE html>
	<html>
		<head>
			<link rel="icon" href="data:,">
			<title>mazeview</title>
			<style>
				.hidden { display: none; }
				.current { background-color: lightblue; font-weight: bold; }
				td, th { padding: 2px 8px; text-align: right; }
			</style>
			<!--This is the client bootstrap code by which the server pushes new data to the view via websocket.-->
			<script>
				const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
				ws.onopen = function (event) {
					console.log("Web socket opened")
				};

				// Listen for errors
				ws.onerror = function (event) {
					console.log('WebSocket error: ', event);
				};

				function sendAction(action) {
					ws.send(JSON.stringify({action: action}));
				}

				// When the server pushes view updates, find these eles and update them.
				ws.onmessage = function (event) {
					const items = JSON.parse(event.data)
					for (const update of items) {
						const ele = document.getElementById(update.EleId)
						if (ele === null) {
							continue
						}
						for (const op of update.Ops) {
							if (op.Key === "textContent") {
								ele.textContent = op.Value;
							} else if (op.Key === "disabled") {
								ele.disabled = op.Value === "true";
							} else {
								ele.setAttribute(op.Key, op.Value)
							}
						}
					}
				}
			</script>
		</head>
		<body>
		` + bodySpec + `
		</body></html>
	{{ end }}
	`

	_, err = rt.Parse(indexTemplate)
	return
}
