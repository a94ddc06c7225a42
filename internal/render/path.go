package render

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"github.com/twpayne/go-geom"
)

// PathData writes SVG path data for a projected shape: one "M…L…Z"
// subpath per ring, closing point omitted.
func PathData(mp *geom.MultiPolygon, precision int) string {
	if mp == nil {
		return ""
	}
	var b strings.Builder
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		for j := 0; j < poly.NumLinearRings(); j++ {
			writeRing(&b, poly.LinearRing(j).FlatCoords(), precision)
		}
	}
	return b.String()
}

func writeRing(b *strings.Builder, flat []float64, precision int) {
	n := len(flat)
	if n >= 4 && flat[0] == flat[n-2] && flat[1] == flat[n-1] {
		n -= 2
	}
	if n < 6 {
		return
	}
	for i := 0; i+1 < n; i += 2 {
		if i == 0 {
			b.WriteByte('M')
		} else {
			b.WriteByte('L')
		}
		b.WriteString(formatCoord(flat[i], precision))
		b.WriteByte(',')
		b.WriteString(formatCoord(flat[i+1], precision))
	}
	b.WriteByte('Z')
}

// formatCoord writes v with at most precision decimals and no trailing zeros.
func formatCoord(v float64, precision int) string {
	s := strconv.FormatFloat(v, 'f', precision, 64)
	if strings.IndexByte(s, '.') >= 0 {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}

// simplifyRing applies Douglas-Peucker to an open ring. Results with fewer
// than three vertices are discarded in favour of the input.
func simplifyRing(flat []float64, tolerance float64) []float64 {
	if len(flat) < 8 {
		return flat
	}
	ls := make(orb.LineString, 0, len(flat)/2+1)
	for i := 0; i+1 < len(flat); i += 2 {
		ls = append(ls, orb.Point{flat[i], flat[i+1]})
	}
	// Close the ring so the edge back to the start is considered.
	ls = append(ls, ls[0])

	simplified, ok := simplify.DouglasPeucker(tolerance).Simplify(ls.Clone()).(orb.LineString)
	if !ok || len(simplified) < 4 {
		return flat
	}

	out := make([]float64, 0, len(simplified)*2)
	for _, p := range simplified[:len(simplified)-1] {
		out = append(out, p[0], p[1])
	}
	return out
}
