package region

import (
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Properties names the feature properties holding the region code and name.
type Properties struct {
	Code string
	Name string
}

// DefaultProperties matches the Jawa Barat kabupaten/kota dataset.
func DefaultProperties() Properties {
	return Properties{Code: "kode_kabupaten_kota", Name: "nama_kabupaten_kota"}
}

// DecodeGeoJSON reads a FeatureCollection and converts every feature into a
// Region. Features without geometry are skipped; a feature whose code is
// missing or whose geometry is not polygonal is a decoding error.
func DecodeGeoJSON(r io.Reader, props Properties) (Collection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "region: read geojson")
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "region: decode geojson")
	}

	out := make(Collection, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		code, err := codeProperty(f.Properties[props.Code])
		if err != nil {
			return nil, eris.Wrapf(err, "region: feature %d property %q", i, props.Code)
		}
		name, _ := f.Properties[props.Name].(string)

		reg, err := New(code, strings.TrimSpace(name), f.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "region: feature %d", i)
		}
		out = append(out, reg)
	}
	return out, nil
}

// codeProperty accepts JSON numbers and numeric strings.
func codeProperty(v any) (int, error) {
	switch c := v.(type) {
	case float64:
		if c != math.Trunc(c) || math.IsInf(c, 0) {
			return 0, eris.Errorf("non-integer code %v", c)
		}
		return int(c), nil
	case int:
		return c, nil
	case json.Number:
		n, err := c.Int64()
		if err != nil {
			return 0, eris.Wrap(err, "parse code")
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(c))
		if err != nil {
			return 0, eris.Wrap(err, "parse code")
		}
		return n, nil
	case nil:
		return 0, eris.New("missing code")
	default:
		return 0, eris.Errorf("unsupported code type %T", v)
	}
}
