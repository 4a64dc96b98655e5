package fastview

import (
	"context"
	"encoding/json"
	"html/template"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	. "github.com/smartystreets/goconvey/convey"
)

type echoView struct {
	id      string
	updates <-chan []EleUpdate
}

func (ev *echoView) Updates() <-chan []EleUpdate {
	return ev.updates
}

func (ev *echoView) Parse(t *template.Template) (string, error) {
	_, err := t.Parse(`{{ define "` + ev.id + `" }}<p id="` + ev.id + `">{{ . }}</p>{{ end }}`)
	return ev.id, err
}

func newEchoView(id string) ViewFunc[string] {
	return func(done <-chan struct{}, input <-chan string) ViewComponent {
		ev := &echoView{id: id}
		ev.updates = channerics.Convert(done, input, func(s string) []EleUpdate {
			return []EleUpdate{{EleId: id, Ops: []Op{{Key: "textContent", Value: s}}}}
		})
		return ev
	}
}

func update(id, value string) EleUpdate {
	return EleUpdate{EleId: id, Ops: []Op{{Key: "textContent", Value: value}}}
}

func waitFor(pred func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pred() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return pred()
}

func receive(updates <-chan []EleUpdate) []EleUpdate {
	select {
	case batch := <-updates:
		return batch
	case <-time.After(2 * time.Second):
		return nil
	}
}

func TestPage(t *testing.T) {
	Convey("Page errors", t, func() {
		input := make(chan int)
		repeat := func(i int) string { return strings.Repeat("x", i) }

		_, err := NewPage[int, string](nil, input, repeat, time.Millisecond)
		So(err, ShouldEqual, ErrNoViews)

		_, err = NewPage[int, string](nil, nil, repeat, time.Millisecond, newEchoView("a"))
		So(err, ShouldEqual, ErrNoSource)

		_, err = NewPage[int, string](nil, input, repeat, 0, newEchoView("a"))
		So(err, ShouldNotBeNil)
	})

	Convey("Given a page of two views", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		input := make(chan int)
		page, err := NewPage[int, string](
			ctx.Done(),
			input,
			func(i int) string { return strings.Repeat("x", i) },
			10*time.Millisecond,
			newEchoView("a"),
			newEchoView("b"))
		So(err, ShouldBeNil)
		So(len(page.Views()), ShouldEqual, 2)

		Convey("Every view sees every rendered model on the one update channel", func() {
			go func() { input <- 3 }()

			byID := map[string]EleUpdate{}
			for len(byID) < 2 {
				batch := receive(page.Updates())
				So(batch, ShouldNotBeNil)
				for _, u := range batch {
					byID[u.EleId] = u
				}
			}
			So(byID["a"], ShouldResemble, update("a", "xxx"))
			So(byID["b"], ShouldResemble, update("b", "xxx"))
		})

		Convey("Views parse into the parent template", func() {
			t := template.New("page")
			name, err := page.Views()[1].Parse(t)
			So(err, ShouldBeNil)
			So(name, ShouldEqual, "b")
			So(t.Lookup("b"), ShouldNotBeNil)
		})
	})
}

func TestBatchify(t *testing.T) {
	Convey("Given a batcher", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		source := make(chan []EleUpdate)
		batches := batchify(ctx.Done(), source, 10*time.Millisecond)

		Convey("Updates for the same element collapse to the latest", func() {
			source <- []EleUpdate{update("a", "1"), update("b", "1"), update("a", "2")}
			So(receive(batches), ShouldResemble, []EleUpdate{update("a", "2"), update("b", "1")})
		})

		Convey("Later batches carry the latest values", func() {
			source <- []EleUpdate{update("a", "1"), update("b", "1")}
			source <- []EleUpdate{update("a", "2")}

			byID := map[string]string{}
			for byID["a"] != "2" {
				batch := receive(batches)
				So(batch, ShouldNotBeNil)
				for _, u := range batch {
					byID[u.EleId] = u.Ops[0].Value
				}
			}
			So(byID["b"], ShouldEqual, "1")
		})

		Convey("A lone update is flushed without further input", func() {
			source <- []EleUpdate{update("a", "1")}
			So(receive(batches), ShouldResemble, []EleUpdate{update("a", "1")})
		})

		Convey("Pending updates are flushed when the source closes", func() {
			source <- []EleUpdate{update("a", "1")}
			close(source)
			So(receive(batches), ShouldResemble, []EleUpdate{update("a", "1")})
			_, open := <-batches
			So(open, ShouldBeFalse)
		})
	})
}

func TestRegister(t *testing.T) {
	Convey("Given a register", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		updates := make(chan []EleUpdate)
		reg := NewRegister(ctx.Done(), updates)

		Convey("A subscriber gets only the latest value per element", func() {
			sub := reg.Subscribe()
			watcher := reg.Subscribe()
			updates <- []EleUpdate{update("b", "1"), update("a", "1")}
			updates <- []EleUpdate{update("b", "2")}

			// Batches are posted to every subscriber at once.
			seen := map[string]string{}
			So(waitFor(func() bool {
				for _, u := range watcher.Take() {
					seen[u.EleId] = u.Ops[0].Value
				}
				return seen["b"] == "2"
			}), ShouldBeTrue)
			So(sub.Take(), ShouldResemble, []EleUpdate{update("a", "1"), update("b", "2")})

			Convey("Taking clears the pending updates", func() {
				So(sub.Take(), ShouldBeEmpty)
			})
		})

		Convey("A late subscriber starts from the latest state", func() {
			updates <- []EleUpdate{update("a", "1")}
			updates <- []EleUpdate{update("a", "2")}
			updates <- []EleUpdate{update("c", "1")}
			So(waitFor(func() bool {
				return len(reg.Subscribe().Take()) == 2
			}), ShouldBeTrue)

			sub := reg.Subscribe()
			So(sub.Take(), ShouldResemble, []EleUpdate{update("a", "2"), update("c", "1")})
		})

		Convey("Unsubscribed subscribers receive nothing", func() {
			sub := reg.Subscribe()
			reg.Unsubscribe(sub)
			watcher := reg.Subscribe()
			updates <- []EleUpdate{update("a", "1")}
			So(waitFor(func() bool { return len(watcher.Take()) == 1 }), ShouldBeTrue)
			So(sub.Take(), ShouldBeEmpty)
		})
	})
}

func TestClient(t *testing.T) {
	Convey("Given a client serving a subscription", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		updates := make(chan []EleUpdate, 1)
		reg := NewRegister(ctx.Done(), updates)
		received := make(chan string, 4)
		onMessage := func(_ context.Context, msg []byte) error {
			received <- string(msg)
			return nil
		}

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub := reg.Subscribe()
			defer reg.Unsubscribe(sub)
			cli, err := NewClient(sub, onMessage, 10*time.Millisecond, log.New(io.Discard, "", 0), w, r)
			if err != nil {
				return
			}
			_ = cli.Sync()
		}))
		defer srv.Close()

		ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
		So(err, ShouldBeNil)
		defer ws.Close()
		So(waitFor(func() bool { return reg.Subscribers() == 1 }), ShouldBeTrue)

		Convey("Updates are pushed as json", func() {
			updates <- []EleUpdate{update("a", "hello")}

			So(ws.SetReadDeadline(time.Now().Add(2*time.Second)), ShouldBeNil)
			_, data, err := ws.ReadMessage()
			So(err, ShouldBeNil)

			var got []EleUpdate
			So(json.Unmarshal(data, &got), ShouldBeNil)
			So(got, ShouldResemble, []EleUpdate{update("a", "hello")})
		})

		Convey("Client messages reach the handler", func() {
			So(ws.WriteMessage(websocket.TextMessage, []byte(`{"action":"step"}`)), ShouldBeNil)
			select {
			case msg := <-received:
				So(msg, ShouldEqual, `{"action":"step"}`)
			case <-time.After(2 * time.Second):
				So("no message", ShouldBeEmpty)
			}
		})

		Convey("Closing the web client ends the subscription", func() {
			So(ws.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")), ShouldBeNil)
			So(waitFor(func() bool { return reg.Subscribers() == 0 }), ShouldBeTrue)
		})
	})
}
