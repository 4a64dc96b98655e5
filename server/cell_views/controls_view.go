package cell_views

import (
	"html/template"

	"mazeview/render"
	"mazeview/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// Controls shows the status message and the command buttons, enabling only the
// commands the frame allows.
type Controls struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

// StatusID is the id of the status message element.
const StatusID = "status-message"

func NewControls(
	done <-chan struct{},
	frames <-chan render.Frame,
) *Controls {
	ctl := &Controls{id: "controls"}
	ctl.updates = channerics.Convert(done, frames, ctl.onUpdate)
	return ctl
}

func (ctl *Controls) Updates() <-chan []fastview.EleUpdate {
	return ctl.updates
}

type button struct {
	ID       string
	Action   string
	Label    string
	Disabled bool
}

func buttons(frame render.Frame) []button {
	return []button{
		{ID: "btn-step", Action: "step", Label: "Step", Disabled: !frame.Controls.Step},
		{ID: "btn-reset", Action: "reset", Label: "Reset", Disabled: !frame.Controls.Reset},
		{ID: "btn-simulate", Action: "simulate", Label: "Simulate", Disabled: !frame.Controls.Simulate},
		{ID: "btn-stop", Action: "stop", Label: "Stop", Disabled: !frame.Controls.Stop},
	}
}

func (ctl *Controls) onUpdate(frame render.Frame) (ops []fastview.EleUpdate) {
	ops = append(ops, fastview.EleUpdate{
		EleId: StatusID,
		Ops:   []fastview.Op{{Key: "textContent", Value: frame.Status}},
	})
	for _, btn := range buttons(frame) {
		ops = append(ops, fastview.EleUpdate{
			EleId: btn.ID,
			Ops:   []fastview.Op{{Key: "disabled", Value: boolString(btn.Disabled)}},
		})
	}
	return
}

// Parse defines the controls' template. Buttons post their action over the page's
// websocket via the sendAction function defined by the root view.
func (ctl *Controls) Parse(t *template.Template) (name string, err error) {
	name = ctl.id
	_, err = t.Funcs(template.FuncMap{"buttons": buttons}).Parse(
		`{{ define "` + name + `" }}
		<div id="` + ctl.id + `">
			{{ range $btn := buttons . }}
			<button id="{{ $btn.ID }}" data-action="{{ $btn.Action }}" onclick="sendAction(this.dataset.action)" {{ if $btn.Disabled }}disabled{{ end }}>{{ $btn.Label }}</button>
			{{ end }}
			<p id="` + StatusID + `">{{ .Status }}</p>
		</div>
		{{ end }}`)
	return
}
