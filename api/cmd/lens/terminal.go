package main

import (
	"fmt"
	"io"
	"log/slog"

	"lens-capture/api/internal/present"
	"lens-capture/api/internal/products"
	"lens-capture/api/internal/selection"
)

// terminal is a selection.Presenter that prints results instead of drawing
// an overlay.
type terminal struct {
	out, errOut io.Writer
	order       products.Direction
	width       int
	log         *slog.Logger
}

func newTerminal(out, errOut io.Writer, order products.Direction, width int, log *slog.Logger) *terminal {
	return &terminal{out: out, errOut: errOut, order: order, width: width, log: log}
}

func (t *terminal) Draw(r selection.Rect)        { t.log.Debug("selection", "rect", r) }
func (t *terminal) Clear()                       { t.log.Debug("selection cleared") }
func (t *terminal) ShowHandles(r selection.Rect) { t.log.Debug("selection committed", "rect", r) }
func (t *terminal) Teardown()                    {}

func (t *terminal) SetBusy(busy bool) {
	if busy {
		fmt.Fprintln(t.errOut, "Analyzing…")
	}
}

func (t *terminal) ShowResults(v present.View) {
	if v.Direction != t.order {
		v.Sort(t.order)
	}
	fmt.Fprintln(t.out, present.Render(v, t.width))
}

func (t *terminal) Notify(n present.Notice) {
	fmt.Fprintln(t.errOut, present.RenderNotice(n))
}
