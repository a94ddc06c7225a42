package source

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/pkh-dashboard/peta/internal/region"
)

// dbfNameLen is the maximum DBF field name length.
const dbfNameLen = 10

// LoadShapefile reads polygon records from a shapefile. The code and name
// attributes are looked up in the .dbf by property name, also matching the
// name truncated to the DBF limit. Null shapes are skipped.
func LoadShapefile(path string, props region.Properties) (region.Collection, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	// go-shp reports a missing attribute table as an empty field list.
	dbfPath := path[:len(path)-len(filepath.Ext(path))] + ".dbf"
	if _, err := os.Stat(dbfPath); err != nil {
		return nil, eris.Wrapf(err, "source: shapefile %s has no .dbf attribute table", path)
	}

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}
	codeIdx := dbfField(names, props.Code)
	if codeIdx < 0 {
		return nil, eris.Errorf("source: shapefile %s has no %q field", path, props.Code)
	}
	nameIdx := dbfField(names, props.Name)

	var out region.Collection
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()

		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}
		g := polygonGeometry(poly)
		if g == nil {
			skipped++
			continue
		}

		raw := strings.TrimSpace(strings.TrimRight(reader.Attribute(codeIdx), "\x00"))
		code, err := parseDBFCode(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "source: shapefile record %d code", n)
		}
		var name string
		if nameIdx >= 0 {
			name = strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
		}

		r, err := region.New(code, name, g)
		if err != nil {
			return nil, eris.Wrapf(err, "source: shapefile record %d", n)
		}
		out = append(out, r)
	}
	if skipped > 0 {
		zap.L().Debug("source: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	if out == nil {
		out = region.Collection{}
	}
	return out, nil
}

func dbfField(names []string, prop string) int {
	prop = strings.ToLower(prop)
	short := prop
	if len(short) > dbfNameLen {
		short = short[:dbfNameLen]
	}
	for i, n := range names {
		if n == prop || n == short {
			return i
		}
		if len(n) >= dbfNameLen && strings.HasPrefix(prop, n) {
			return i
		}
	}
	return -1
}

// parseDBFCode accepts integers and numeric fields written with decimals.
func parseDBFCode(raw string) (int, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "parse %q", raw)
	}
	if f != float64(int(f)) {
		return 0, eris.Errorf("non-integer code %q", raw)
	}
	return int(f), nil
}

// polygonGeometry groups shapefile rings into polygons. Clockwise rings are
// exteriors; counter-clockwise rings are holes of the preceding exterior.
func polygonGeometry(p *shp.Polygon) geom.T {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var flat []float64
	var ends []int
	flush := func() {
		if len(ends) == 0 {
			return
		}
		if err := mp.Push(geom.NewPolygonFlat(geom.XY, flat, ends)); err != nil {
			zap.L().Debug("source: skipping malformed polygon", zap.Error(err))
		}
		flat, ends = nil, nil
	}

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || end-start < 4 {
			continue
		}

		ring := make([]float64, 0, (end-start)*2)
		for _, pt := range p.Points[start:end] {
			ring = append(ring, pt.X, pt.Y)
		}

		if signedArea(ring) <= 0 {
			// Clockwise: a new exterior.
			flush()
			flat = append(flat, ring...)
			ends = append(ends, len(flat))
			continue
		}
		if len(ends) == 0 {
			// A hole with no exterior yet; treat it as an exterior.
			flat = append(flat, ring...)
			ends = append(ends, len(flat))
			flush()
			continue
		}
		flat = append(flat, ring...)
		ends = append(ends, len(flat))
	}
	flush()

	switch mp.NumPolygons() {
	case 0:
		return nil
	case 1:
		return mp.Polygon(0)
	default:
		return mp
	}
}

// signedArea is positive for counter-clockwise rings.
func signedArea(flat []float64) float64 {
	var sum float64
	n := len(flat) / 2
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return sum / 2
}
