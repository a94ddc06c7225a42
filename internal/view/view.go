// Package view holds the pan/zoom interaction state applied on top of a
// rendered scene.
package view

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkh-dashboard/peta/internal/projection"
)

// Zoom bounds and the step applied by ZoomIn and ZoomOut.
const (
	MinZoom  = 1.0
	MaxZoom  = 3.0
	ZoomStep = 0.2
)

// Cursor values reported to clients.
const (
	CursorGrab     = "grab"
	CursorGrabbing = "grabbing"
)

// Point is a pointer position in display space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Options changes interaction behaviour.
type Options struct {
	// ResetCancelsDrag ends an active drag when Reset is called. When false a
	// pointer move after Reset keeps panning relative to the old anchor.
	ResetCancelsDrag bool
}

// State is the zoom, pan and drag state of one map view. The zero value is
// not ready; use New.
type State struct {
	zoom     float64
	pan      Point
	dragging bool
	anchor   Point
	opts     Options
}

// New returns an idle state at zoom 1 with no pan.
func New(opts Options) *State {
	return &State{zoom: MinZoom, opts: opts}
}

// Zoom returns the current zoom factor.
func (s *State) Zoom() float64 { return s.zoom }

// Pan returns the current pan offset.
func (s *State) Pan() Point { return s.pan }

// Dragging reports whether a drag is active.
func (s *State) Dragging() bool { return s.dragging }

// PointerDown starts a drag anchored so that the current pan is preserved.
// It is ignored while a drag is already active.
func (s *State) PointerDown(p Point) {
	if s.dragging {
		return
	}
	s.dragging = true
	s.anchor = p.Sub(s.pan)
}

// PointerMove pans while dragging and is ignored otherwise.
func (s *State) PointerMove(p Point) {
	if !s.dragging {
		return
	}
	s.pan = p.Sub(s.anchor)
}

// PointerUp ends a drag.
func (s *State) PointerUp() {
	s.dragging = false
}

// PointerLeave ends a drag when the pointer leaves the map.
func (s *State) PointerLeave() {
	s.dragging = false
}

// ZoomIn increases zoom by one step up to MaxZoom.
func (s *State) ZoomIn() {
	s.zoom = round2(math.Min(MaxZoom, s.zoom+ZoomStep))
}

// ZoomOut decreases zoom by one step down to MinZoom.
func (s *State) ZoomOut() {
	s.zoom = round2(math.Max(MinZoom, s.zoom-ZoomStep))
}

// Reset restores zoom 1 and zero pan.
func (s *State) Reset() {
	s.zoom = MinZoom
	s.pan = Point{}
	if s.opts.ResetCancelsDrag {
		s.dragging = false
	}
}

// Cursor returns the pointer cursor for the current state.
func (s *State) Cursor() string {
	if s.dragging {
		return CursorGrabbing
	}
	return CursorGrab
}

// Matrix is an affine transform in SVG order: x' = A*x + C*y + E,
// y' = B*x + D*y + F.
type Matrix struct {
	A, B, C, D, E, F float64
}

// Apply maps p through m.
func (m Matrix) Apply(p Point) Point {
	return Point{
		X: m.A*p.X + m.C*p.Y + m.E,
		Y: m.B*p.X + m.D*p.Y + m.F,
	}
}

// Matrix composes translate(center), translate(pan), scale(zoom) and
// translate(-center) into one matrix.
func (s *State) Matrix(viewport projection.Size) Matrix {
	cx, cy := viewport.Center()
	z := s.zoom
	return Matrix{
		A: z,
		D: z,
		E: cx + s.pan.X - z*cx,
		F: cy + s.pan.Y - z*cy,
	}
}

// Apply maps a scene point into display space.
func (s *State) Apply(viewport projection.Size, p Point) Point {
	return s.Matrix(viewport).Apply(p)
}

// Transform returns the SVG transform attribute for the view.
func (s *State) Transform(viewport projection.Size) string {
	cx, cy := viewport.Center()
	var b strings.Builder
	b.WriteString("translate(")
	b.WriteString(num(cx) + " " + num(cy))
	b.WriteString(") translate(")
	b.WriteString(num(s.pan.X) + " " + num(s.pan.Y))
	b.WriteString(") scale(")
	b.WriteString(num(s.zoom))
	b.WriteString(") translate(")
	b.WriteString(num(-cx) + " " + num(-cy))
	b.WriteString(")")
	return b.String()
}

// Snapshot is the serialisable form of a State.
type Snapshot struct {
	Zoom     float64 `json:"zoom"`
	Pan      Point   `json:"pan"`
	Dragging bool    `json:"dragging"`
	Cursor   string  `json:"cursor"`
}

// Snapshot returns the current state as a value.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Zoom:     s.zoom,
		Pan:      s.pan,
		Dragging: s.dragging,
		Cursor:   s.Cursor(),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func num(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
