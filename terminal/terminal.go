// terminal redraws the latest frame in place on a terminal.
package terminal

import (
	"context"
	"fmt"
	"io"
	"time"

	"mazeview/models"
	"mazeview/render"

	"github.com/gosuri/uilive"
	channerics "github.com/niceyeti/channerics/channels"
)

// Printer renders snapshots as text, redrawing at most once per refresh and only
// when the text changed.
type Printer struct {
	size    models.GridSize
	refresh time.Duration
	writer  *uilive.Writer
	last    string
}

// NewPrinter writes to out, typically os.Stdout.
func NewPrinter(out io.Writer, size models.GridSize, refresh time.Duration) (*Printer, error) {
	if refresh <= 0 {
		return nil, fmt.Errorf("terminal refresh must be positive, got %v", refresh)
	}
	writer := uilive.New()
	writer.Out = out
	return &Printer{
		size:    size,
		refresh: refresh,
		writer:  writer,
	}, nil
}

// Run prints snapshots until ctx is cancelled or snapshots is closed. The latest
// snapshot received is always printed before returning.
func (p *Printer) Run(ctx context.Context, snapshots <-chan models.Snapshot) {
	ticker := channerics.NewTicker(ctx.Done(), p.refresh)
	var latest *models.Snapshot
	for {
		select {
		case <-ctx.Done():
			p.flush(latest)
			return
		case snap, ok := <-snapshots:
			if !ok {
				p.flush(latest)
				return
			}
			latest = &snap
		case <-ticker:
			p.flush(latest)
		}
	}
}

func (p *Printer) flush(snap *models.Snapshot) {
	if snap == nil {
		return
	}
	text := render.Render(*snap, p.size).Text()
	if text == p.last {
		return
	}
	p.last = text
	fmt.Fprint(p.writer, text)
	_ = p.writer.Flush()
}
