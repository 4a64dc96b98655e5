package fastview

import (
	"errors"
	"fmt"
	"time"

	channerics "github.com/niceyeti/channerics/channels"
)

// ViewFunc builds a view that reads frames until done is closed.
type ViewFunc[Frame any] func(done <-chan struct{}, frames <-chan Frame) ViewComponent

var (
	// ErrNoViews is returned by NewPage when no view funcs are given.
	ErrNoViews error = errors.New("page has no views")
	// ErrNoSource is returned by NewPage without a source or render func.
	ErrNoSource error = errors.New("page has no source")
)

// Page is a set of views sharing one frame source. Their updates come out of a
// single channel, batched per element.
type Page struct {
	views   []ViewComponent
	updates <-chan []EleUpdate
}

// NewPage renders every model read from source once, hands the frame to each view,
// and merges the views' updates into batches flushed every resolution.
// Views must drain their frames until done, since Broadcast delivers to every view in turn.
func NewPage[Model any, Frame any](
	done <-chan struct{},
	source <-chan Model,
	render func(Model) Frame,
	resolution time.Duration,
	builds ...ViewFunc[Frame],
) (*Page, error) {
	if len(builds) == 0 {
		return nil, ErrNoViews
	}
	if source == nil || render == nil {
		return nil, ErrNoSource
	}
	if resolution <= 0 {
		return nil, fmt.Errorf("batch resolution must be positive, got %v", resolution)
	}

	frames := channerics.Broadcast(done, channerics.Convert(done, source, render), len(builds))
	page := &Page{}
	inputs := make([]<-chan []EleUpdate, len(builds))
	for i, build := range builds {
		view := build(done, frames[i])
		page.views = append(page.views, view)
		inputs[i] = view.Updates()
	}
	page.updates = batchify(done, channerics.Merge(done, inputs...), resolution)
	return page, nil
}

// Views returns the views in the order their funcs were given.
func (page *Page) Views() []ViewComponent {
	return page.views
}

// Updates returns the batched updates of every view.
func (page *Page) Updates() <-chan []EleUpdate {
	return page.updates
}

// batchify collects updates and sends them once per rate, over-writing previously
// received values for the same ele-id. Redundant updates for the same ele-id are
// not sent, and the latest values are always flushed on the next tick, even when
// nothing else arrives.
func batchify(
	done <-chan struct{},
	source <-chan []EleUpdate,
	rate time.Duration,
) <-chan []EleUpdate {
	output := make(chan []EleUpdate)

	go func() {
		defer close(output)

		data := map[string]EleUpdate{}
		order := []string{}
		ticker := channerics.NewTicker(done, rate)
		for {
			select {
			case <-done:
				return
			case updates, ok := <-source:
				if !ok {
					if len(data) > 0 {
						select {
						case output <- sliced(order, data):
						case <-done:
						}
					}
					return
				}
				// Intentionally overwrites pre-exisiting values for an ele-id within this batch's time frame.
				for _, update := range updates {
					if _, seen := data[update.EleId]; !seen {
						order = append(order, update.EleId)
					}
					data[update.EleId] = update
				}
			case <-ticker:
				if len(data) == 0 {
					break
				}
				select {
				case output <- sliced(order, data):
					data = map[string]EleUpdate{}
					order = []string{}
				case <-done:
					return
				}
			}
		}
	}()

	return output
}

// sliced returns the map's values in first-seen order.
func sliced(order []string, data map[string]EleUpdate) []EleUpdate {
	batch := make([]EleUpdate, 0, len(order))
	for _, id := range order {
		batch = append(batch, data[id])
	}
	return batch
}
