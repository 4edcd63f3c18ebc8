// Package selection is the page-side drag-select state machine. A Session
// draws a rectangle, lets the user adjust it, then runs one capture, crop and
// analyze round trip through the messaging client.
package selection

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"lens-capture/api/internal/imagecodec"
	"lens-capture/api/internal/messaging"
	"lens-capture/api/internal/present"
)

type State int

const (
	Idle State = iota
	Selecting
	Editing
	Loading
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	case Editing:
		return "editing"
	case Loading:
		return "loading"
	default:
		return "closed"
	}
}

var (
	ErrNotEditing   = errors.New("no committed selection to confirm")
	ErrSessionBusy  = errors.New("a selection is already in progress")
	ErrNoScreenshot = errors.New("Screenshot failed")
)

// Presenter draws the overlay. Calls arrive from the event goroutine, except
// the final Teardown/ShowResults/Notify which come from the run goroutine.
type Presenter interface {
	Draw(r Rect)
	Clear()
	ShowHandles(r Rect)
	SetBusy(busy bool)
	Teardown()
	ShowResults(v present.View)
	Notify(n present.Notice)
}

type Options struct {
	// Format of the cropped selection sent for analysis. Defaults to PNG.
	Format imagecodec.Format
	Intent string
	Log    *slog.Logger
}

type dragMode int

const (
	dragNone dragMode = iota
	dragResize
	dragMove
)

type Session struct {
	client *messaging.Client
	ui     Presenter
	vp     Viewport
	opts   Options

	mu     sync.Mutex
	state  State
	rect   Rect
	anchor Point
	drag   dragMode
	handle Handle
	grab   Point

	done   chan struct{}
	result messaging.AnalyzeResult
	err    error
}

func NewSession(client *messaging.Client, ui Presenter, vp Viewport, opts Options) *Session {
	if opts.Format == "" {
		opts.Format = imagecodec.PNG
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if vp.DPR <= 0 {
		vp.DPR = 1
	}
	return &Session{client: client, ui: ui, vp: vp, opts: opts, done: make(chan struct{})}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Rect() Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rect
}

// Done is closed once the session reaches Closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result is valid after Done is closed. A cancelled session has neither a
// result nor an error.
func (s *Session) Result() (messaging.AnalyzeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

func (s *Session) PointerDown(p Point) {
	s.mu.Lock()
	switch s.state {
	case Idle:
		s.state = Selecting
		s.anchor = p
		s.rect = Rect{X: p.X, Y: p.Y}
		r := s.rect
		s.mu.Unlock()
		s.ui.Draw(r)
		return
	case Editing:
		if h := HitHandle(s.rect, p); h != NoHandle {
			s.drag, s.handle = dragResize, h
		} else if Contains(s.rect, p) {
			s.drag = dragMove
			s.grab = Point{X: p.X - s.rect.X, Y: p.Y - s.rect.Y}
		}
	}
	s.mu.Unlock()
}

func (s *Session) PointerMove(p Point) {
	s.mu.Lock()
	var r Rect
	switch {
	case s.state == Selecting:
		s.rect = Span(s.anchor, p)
		r = s.rect
		s.mu.Unlock()
		s.ui.Draw(r)
		return
	case s.state == Editing && s.drag == dragResize:
		s.rect = Resize(s.rect, s.handle, p, s.vp)
	case s.state == Editing && s.drag == dragMove:
		s.rect = Move(s.rect, p, s.grab, s.vp)
	default:
		s.mu.Unlock()
		return
	}
	r = s.rect
	s.mu.Unlock()
	s.ui.Draw(r)
	s.ui.ShowHandles(r)
}

func (s *Session) PointerUp(p Point) {
	s.mu.Lock()
	switch s.state {
	case Selecting:
		r := Clip(Span(s.anchor, p), s.vp)
		if r.W < MinCommit || r.H < MinCommit {
			s.state = Idle
			s.rect = Rect{}
			s.mu.Unlock()
			s.ui.Clear()
			return
		}
		s.state = Editing
		s.rect = r
		s.mu.Unlock()
		s.ui.Draw(r)
		s.ui.ShowHandles(r)
		return
	case Editing:
		s.drag, s.handle = dragNone, NoHandle
	}
	s.mu.Unlock()
}

// Key handles keyboard input. Escape cancels outside of Loading.
func (s *Session) Key(key string) {
	if key == "Escape" {
		s.Cancel()
	}
}

// Cancel closes the session without any network call. It reports false when
// a run is in flight or the session is already closed.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if s.state == Loading || s.state == Closed {
		s.mu.Unlock()
		return false
	}
	s.state = Closed
	s.rect = Rect{}
	s.mu.Unlock()
	s.ui.Teardown()
	close(s.done)
	return true
}

// Confirm starts the capture and analyze chain for the committed rect and
// returns immediately. Completion is signalled on Done.
func (s *Session) Confirm(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Editing || s.drag != dragNone {
		s.mu.Unlock()
		return ErrNotEditing
	}
	s.state = Loading
	r := s.rect
	s.mu.Unlock()

	s.ui.SetBusy(true)
	go s.run(ctx, r)
	return nil
}

func (s *Session) run(ctx context.Context, r Rect) {
	res, err := s.analyze(ctx, r)
	if err != nil {
		s.opts.Log.Warn("selection run failed", "err", err)
	}

	s.mu.Lock()
	s.state = Closed
	s.result, s.err = res, err
	s.mu.Unlock()

	s.ui.SetBusy(false)
	s.ui.Teardown()
	if err != nil {
		s.ui.Notify(present.Failure(err))
	} else {
		s.ui.ShowResults(present.Build(res))
		s.ui.Notify(present.Outcome(res))
	}
	close(s.done)
}

func (s *Session) analyze(ctx context.Context, r Rect) (messaging.AnalyzeResult, error) {
	dataURL, err := s.client.CaptureTab(ctx)
	if err != nil {
		return messaging.AnalyzeResult{}, err
	}
	if dataURL == "" {
		return messaging.AnalyzeResult{}, ErrNoScreenshot
	}
	b64, mime, err := imagecodec.CropDataURL(dataURL, r, s.vp.DPR, s.opts.Format)
	if err != nil {
		return messaging.AnalyzeResult{}, err
	}
	s.opts.Log.Debug("selection cropped", "rect", r, "dpr", s.vp.DPR, "mime", mime)
	return s.client.AnalyzeAndSend(ctx, messaging.AnalyzeRequest{
		CroppedBase64: b64,
		MIMEType:      mime,
		Intent:        s.opts.Intent,
	})
}
