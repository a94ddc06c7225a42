// Package region models administrative regions (kabupaten/kota) and the
// filters applied to them before projection.
package region

import (
	"errors"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Category groups regions by administrative type.
type Category string

// Region categories. CategoryAll is only meaningful as a filter.
const (
	CategoryAll          Category = "all"
	CategoryKota         Category = "kota"
	CategoryKabupaten    Category = "kabupaten"
	CategoryUnclassified Category = "unclassified"
)

// Name markers used by the source datasets.
const (
	kotaMarker      = "KOTA "
	kabupatenMarker = "KABUPATEN "
)

// ErrInvalidCategory is returned when a filter token is not all, kota or kabupaten.
var ErrInvalidCategory = errors.New("region: category must be kota, kabupaten, or all")

// ErrInvalidCode is returned when a selected region code is not numeric.
var ErrInvalidCode = errors.New("region: code must be numeric")

// Region is one administrative area. Geometry is a *geom.Polygon or
// *geom.MultiPolygon in lon/lat order.
type Region struct {
	Code     int
	Name     string
	Category Category
	Geometry geom.T
}

// Collection is an ordered, immutable-by-convention sequence of regions
// loaded from one dataset fetch.
type Collection []Region

// New builds a Region, deriving its category from the name.
func New(code int, name string, g geom.T) (Region, error) {
	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
	default:
		return Region{}, eris.Errorf("region: %d has unsupported geometry %T", code, g)
	}
	return Region{
		Code:     code,
		Name:     name,
		Category: CategoryOf(name),
		Geometry: g,
	}, nil
}

// CategoryOf classifies a region by its display name marker.
func CategoryOf(name string) Category {
	switch {
	case strings.HasPrefix(name, kotaMarker):
		return CategoryKota
	case strings.HasPrefix(name, kabupatenMarker):
		return CategoryKabupaten
	default:
		return CategoryUnclassified
	}
}

// ParseCategory normalizes a filter token. Empty means all.
func ParseCategory(token string) (Category, error) {
	token = strings.ToLower(strings.TrimSpace(token))
	switch Category(token) {
	case "", CategoryAll:
		return CategoryAll, nil
	case CategoryKota, CategoryKabupaten:
		return Category(token), nil
	}
	return "", eris.Wrapf(ErrInvalidCategory, "got %q", token)
}

// ParseCode parses an optional selected region code. Empty input yields
// (0, false, nil).
func ParseCode(raw string) (int, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	code, err := strconv.Atoi(raw)
	if err != nil || code < 0 {
		return 0, false, eris.Wrapf(ErrInvalidCode, "got %q", raw)
	}
	return code, true, nil
}

// Codes returns the region codes in collection order.
func (c Collection) Codes() []int {
	codes := make([]int, len(c))
	for i, r := range c {
		codes[i] = r.Code
	}
	return codes
}
