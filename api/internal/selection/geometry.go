package selection

import (
	"math"

	"lens-capture/api/internal/imagecodec"
)

const (
	// MinCommit is the smallest width and height a drawn rect must have to
	// be kept.
	MinCommit = 5.0
	// MinEdit is the smallest width and height while resizing.
	MinEdit = 20.0
	// HandleRadius is the hit distance around each corner handle.
	HandleRadius = 8.0
)

type Point struct{ X, Y float64 }

type Rect = imagecodec.Rect

// Viewport is the visible page area in CSS pixels. A zero dimension means
// unbounded.
type Viewport struct {
	Width  float64
	Height float64
	DPR    float64
}

func (v Viewport) maxX() float64 {
	if v.Width <= 0 {
		return math.Inf(1)
	}
	return v.Width
}

func (v Viewport) maxY() float64 {
	if v.Height <= 0 {
		return math.Inf(1)
	}
	return v.Height
}

type Handle int

const (
	NoHandle Handle = iota
	TopLeft
	TopRight
	BottomLeft
	BottomRight
)

func (h Handle) String() string {
	switch h {
	case TopLeft:
		return "nw"
	case TopRight:
		return "ne"
	case BottomLeft:
		return "sw"
	case BottomRight:
		return "se"
	default:
		return "none"
	}
}

func (h Handle) left() bool { return h == TopLeft || h == BottomLeft }
func (h Handle) top() bool  { return h == TopLeft || h == TopRight }

// Corners returns the handle positions in TopLeft, TopRight, BottomLeft,
// BottomRight order.
func Corners(r Rect) [4]Point {
	return [4]Point{
		{r.X, r.Y},
		{r.X + r.W, r.Y},
		{r.X, r.Y + r.H},
		{r.X + r.W, r.Y + r.H},
	}
}

// HitHandle reports which corner handle p is on, if any.
func HitHandle(r Rect, p Point) Handle {
	for i, c := range Corners(r) {
		if math.Abs(p.X-c.X) <= HandleRadius && math.Abs(p.Y-c.Y) <= HandleRadius {
			return Handle(i + 1)
		}
	}
	return NoHandle
}

func Contains(r Rect, p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Span is the bounding box of two points.
func Span(a, b Point) Rect {
	return Rect{
		X: math.Min(a.X, b.X),
		Y: math.Min(a.Y, b.Y),
		W: math.Abs(b.X - a.X),
		H: math.Abs(b.Y - a.Y),
	}
}

// Clip intersects r with the viewport.
func Clip(r Rect, vp Viewport) Rect {
	x0, y0 := math.Max(r.X, 0), math.Max(r.Y, 0)
	x1, y1 := math.Min(r.X+r.W, vp.maxX()), math.Min(r.Y+r.H, vp.maxY())
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Resize drags handle h to p with the opposite corner fixed. Each dimension
// stays at least MinEdit; when a viewport edge stops the dragged corner, the
// fixed edge gives way instead. Only a viewport narrower than MinEdit yields
// a smaller rect.
func Resize(r Rect, h Handle, p Point, vp Viewport) Rect {
	if h == NoHandle {
		return r
	}
	x0, x1 := resizeAxis(r.X, r.X+r.W, p.X, h.left(), vp.maxX())
	y0, y1 := resizeAxis(r.Y, r.Y+r.H, p.Y, h.top(), vp.maxY())
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

func resizeAxis(lo, hi, v float64, moveLow bool, limit float64) (float64, float64) {
	if moveLow {
		lo = math.Max(math.Min(v, hi-MinEdit), 0)
		hi = math.Max(hi, math.Min(lo+MinEdit, limit))
		return lo, hi
	}
	hi = math.Min(math.Max(v, lo+MinEdit), limit)
	lo = math.Min(lo, math.Max(hi-MinEdit, 0))
	return lo, hi
}

// Move translates r so its origin is p minus grab, kept inside the viewport.
// A rect committed under MinEdit is grown to MinEdit first.
func Move(r Rect, p, grab Point, vp Viewport) Rect {
	r.W = growAxis(r.W, vp.maxX())
	r.H = growAxis(r.H, vp.maxY())
	r.X = moveAxis(p.X-grab.X, r.W, vp.maxX())
	r.Y = moveAxis(p.Y-grab.Y, r.H, vp.maxY())
	return r
}

func growAxis(size, limit float64) float64 {
	return math.Max(size, math.Min(MinEdit, limit))
}

func moveAxis(v, size, limit float64) float64 {
	return math.Max(0, math.Min(v, limit-size))
}
