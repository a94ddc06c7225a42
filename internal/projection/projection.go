// Package projection fits a cartographic projection to a set of regions so
// their combined extent fills a fixed logical viewport.
package projection

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Names of the supported projections.
const (
	NameMercator        = "mercator"
	NameEquirectangular = "equirectangular"
)

var (
	// ErrNoRegions is returned when there is nothing to fit.
	ErrNoRegions = errors.New("projection: no regions to fit")

	// ErrProjectionUnavailable is returned when neither the primary nor the
	// fallback projection yields a finite transform.
	ErrProjectionUnavailable = errors.New("projection: no projection available")
)

// Size is a logical viewport in display units.
type Size struct {
	Width  float64
	Height float64
}

// Center returns the viewport center.
func (s Size) Center() (float64, float64) {
	return s.Width / 2, s.Height / 2
}

// Projector maps a geographic coordinate to viewport space.
type Projector interface {
	Project(lon, lat float64) (x, y float64)
	Name() string
}

// rawFunc is an unscaled projection with y pointing north. Both supported
// raw projections are axis-separable and monotonic in each axis.
type rawFunc func(lon, lat float64) (x, y float64)

func mercatorRaw(lon, lat float64) (float64, float64) {
	p := project.WGS84.ToMercator(orb.Point{lon, lat})
	return p[0], p[1]
}

func equirectangularRaw(lon, lat float64) (float64, float64) {
	return lon * math.Pi / 180, lat * math.Pi / 180
}

// Projection is a raw projection with the scale and translation chosen by Fit.
// It is a pure function of its input and safe to share across goroutines.
type Projection struct {
	name string
	raw  rawFunc
	k    float64
	tx   float64
	ty   float64
}

// Project maps lon/lat into viewport coordinates (y grows downward).
func (p *Projection) Project(lon, lat float64) (float64, float64) {
	x, y := p.raw(lon, lat)
	return p.tx + p.k*x, p.ty - p.k*y
}

// Name reports which raw projection is in use.
func (p *Projection) Name() string {
	return p.name
}

// Scale returns the fitted scale factor.
func (p *Projection) Scale() float64 {
	return p.k
}

// Translate returns the fitted translation.
func (p *Projection) Translate() (float64, float64) {
	return p.tx, p.ty
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
