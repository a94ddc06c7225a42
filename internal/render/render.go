// Package render converts fitted regions into drawable outlines and label
// anchors in viewport space.
package render

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/pkh-dashboard/peta/internal/projection"
	"github.com/pkh-dashboard/peta/internal/region"
)

// Point is a location in viewport space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ProjectedRegion is a region drawn under one fitted projection. It is only
// valid together with the projection and region set that produced it.
type ProjectedRegion struct {
	Code     int    `json:"code"`
	Name     string `json:"name"`
	Label    string `json:"label"`
	Path     string `json:"path"`
	Centroid Point  `json:"centroid"`

	shape *geom.MultiPolygon
}

// Shape returns the projected outline geometry.
func (p ProjectedRegion) Shape() *geom.MultiPolygon {
	return p.shape
}

// Options tunes outline output.
type Options struct {
	// Precision is the number of decimals written for path coordinates.
	Precision int
	// SimplifyTolerance enables Douglas-Peucker simplification of projected
	// rings, in viewport units. Zero disables it.
	SimplifyTolerance float64
}

// DefaultOptions returns the options used by the map page.
func DefaultOptions() Options {
	return Options{Precision: 3}
}

// Render projects every region with proj and returns outlines plus label
// anchors. The centroid is taken from the projected shape. Regions whose
// outline is empty or degenerate are dropped.
func Render(regions region.Collection, proj projection.Projector, opts Options) []ProjectedRegion {
	out := make([]ProjectedRegion, 0, len(regions))
	if proj == nil {
		return out
	}

	var dropped int
	for _, r := range regions {
		shape := projectShape(r.Geometry, proj, opts.SimplifyTolerance)
		if shape == nil {
			dropped++
			continue
		}
		path := PathData(shape, opts.Precision)
		if path == "" {
			dropped++
			continue
		}
		out = append(out, ProjectedRegion{
			Code:     r.Code,
			Name:     r.Name,
			Label:    region.Label(r.Name),
			Path:     path,
			Centroid: centroid(shape),
			shape:    shape,
		})
	}

	if dropped > 0 {
		zap.L().Debug("render: dropped degenerate regions",
			zap.String("projection", proj.Name()),
			zap.Int("dropped", dropped),
		)
	}
	return out
}

// polygons flattens a region geometry into its polygons.
func polygons(g geom.T) []*geom.Polygon {
	switch t := g.(type) {
	case *geom.Polygon:
		return []*geom.Polygon{t}
	case *geom.MultiPolygon:
		out := make([]*geom.Polygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			out = append(out, t.Polygon(i))
		}
		return out
	default:
		return nil
	}
}

// projectShape projects every ring. A polygon whose exterior ring is
// degenerate is skipped; degenerate holes are dropped. Returns nil when no
// polygon survives.
func projectShape(g geom.T, proj projection.Projector, tolerance float64) *geom.MultiPolygon {
	mp := geom.NewMultiPolygon(geom.XY)
	for _, poly := range polygons(g) {
		var flat []float64
		var ends []int
		for i := 0; i < poly.NumLinearRings(); i++ {
			ring := projectRing(poly.LinearRing(i), proj)
			if tolerance > 0 {
				ring = simplifyRing(ring, tolerance)
			}
			if !validRing(ring) {
				if i == 0 {
					break
				}
				continue
			}
			flat = append(flat, ring...)
			flat = append(flat, ring[0], ring[1])
			ends = append(ends, len(flat))
		}
		if len(ends) == 0 {
			continue
		}
		if err := mp.Push(geom.NewPolygonFlat(geom.XY, flat, ends)); err != nil {
			zap.L().Debug("render: skipping malformed polygon", zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// projectRing returns open flat XY coordinates in viewport space: non-finite
// points, consecutive duplicates and the closing point are removed.
func projectRing(ring *geom.LinearRing, proj projection.Projector) []float64 {
	src := ring.FlatCoords()
	stride := ring.Stride()
	out := make([]float64, 0, len(src)/stride*2)
	for i := 0; i+1 < len(src); i += stride {
		x, y := proj.Project(src[i], src[i+1])
		if !isFinite(x) || !isFinite(y) {
			continue
		}
		if n := len(out); n >= 2 && out[n-2] == x && out[n-1] == y {
			continue
		}
		out = append(out, x, y)
	}
	if n := len(out); n >= 4 && out[0] == out[n-2] && out[1] == out[n-1] {
		out = out[:n-2]
	}
	return out
}

// validRing requires at least three distinct vertices.
func validRing(flat []float64) bool {
	return len(flat) >= 6
}

// centroid returns the area centroid of the projected shape. Ring winding
// does not matter: the screen y flip reverses GeoJSON orientation, and
// xy.Centroid weights shells and holes by orientation itself. Shapes with no
// area get a line centroid from xy, or the vertex mean when even that is not
// finite.
func centroid(mp *geom.MultiPolygon) Point {
	c, err := xy.Centroid(mp)
	if err == nil && len(c) >= 2 && isFinite(c[0]) && isFinite(c[1]) {
		return Point{X: c[0], Y: c[1]}
	}
	return vertexMean(mp)
}

// vertexMean averages ring vertices, counting each closed ring's repeated
// closing point once.
func vertexMean(mp *geom.MultiPolygon) Point {
	var sx, sy float64
	var n int
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		for j := 0; j < poly.NumLinearRings(); j++ {
			flat := poly.LinearRing(j).FlatCoords()
			end := len(flat)
			if end >= 4 && flat[0] == flat[end-2] && flat[1] == flat[end-1] {
				end -= 2
			}
			for k := 0; k+1 < end; k += 2 {
				sx += flat[k]
				sy += flat[k+1]
				n++
			}
		}
	}
	if n == 0 {
		return Point{}
	}
	return Point{X: sx / float64(n), Y: sy / float64(n)}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
