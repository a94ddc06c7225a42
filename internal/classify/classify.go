// Package classify assigns choropleth color buckets from value quantiles.
package classify

import (
	"encoding/json"
	"math"
	"sort"
)

// Palette is the fixed low-to-high fill sequence.
var Palette = [5]string{"#f6e6c9", "#f0cf9e", "#e6a869", "#d67c3d", "#b4511f"}

// MissingFill is used for regions without a finite value.
const MissingFill = "#efe6db"

// Quantile probabilities for the four thresholds.
var quantiles = [4]float64{0.2, 0.4, 0.6, 0.8}

// ValueRow is one indicator value for a region.
type ValueRow struct {
	Code  int     `json:"kode_kabupaten_kota"`
	Name  string  `json:"nama_kabupaten_kota"`
	Value float64 `json:"value"`
}

// valueRowJSON is the wire form of ValueRow; the backend sends missing
// values as null.
type valueRowJSON struct {
	Code  int      `json:"kode_kabupaten_kota"`
	Name  string   `json:"nama_kabupaten_kota"`
	Value *float64 `json:"value"`
}

// MarshalJSON writes non-finite values as null.
func (r ValueRow) MarshalJSON() ([]byte, error) {
	w := valueRowJSON{Code: r.Code, Name: r.Name}
	if finite(r.Value) {
		v := r.Value
		w.Value = &v
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads a null or absent value as NaN.
func (r *ValueRow) UnmarshalJSON(b []byte) error {
	var w valueRowJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = ValueRow{Code: w.Code, Name: w.Name, Value: math.NaN()}
	if w.Value != nil {
		r.Value = *w.Value
	}
	return nil
}

// ValueIndex maps region code to value. Later rows overwrite earlier ones.
type ValueIndex map[int]float64

// NewIndex builds a ValueIndex from rows.
func NewIndex(rows []ValueRow) ValueIndex {
	idx := make(ValueIndex, len(rows))
	for _, r := range rows {
		idx[r.Code] = r.Value
	}
	return idx
}

// Lookup returns the value for code and whether it is present and finite.
func (idx ValueIndex) Lookup(code int) (float64, bool) {
	v, ok := idx[code]
	if !ok || !finite(v) {
		return 0, false
	}
	return v, true
}

// Scale holds the quantile thresholds derived from one ValueIndex.
// Thresholds is empty when there are no finite values.
type Scale struct {
	Thresholds []float64
	Count      int
}

// NewScale computes nearest-rank quantile thresholds over the finite values
// in idx: q(p) = sorted[floor((n-1)*p)].
func NewScale(idx ValueIndex) Scale {
	values := make([]float64, 0, len(idx))
	for _, v := range idx {
		if finite(v) {
			values = append(values, v)
		}
	}
	return scaleOf(values)
}

func scaleOf(values []float64) Scale {
	if len(values) == 0 {
		return Scale{}
	}
	sort.Float64s(values)

	n := len(values)
	thresholds := make([]float64, len(quantiles))
	for i, p := range quantiles {
		thresholds[i] = values[int(math.Floor(float64(n-1)*p))]
	}
	return Scale{Thresholds: thresholds, Count: n}
}

// Empty reports whether the scale has no thresholds.
func (s Scale) Empty() bool {
	return len(s.Thresholds) == 0
}

// Bucket returns the 0-4 bucket for a value. ok is false for absent or
// non-finite values, or when the scale is empty.
func (s Scale) Bucket(v float64, present bool) (int, bool) {
	if !present || !finite(v) || s.Empty() {
		return 0, false
	}
	for i, t := range s.Thresholds {
		if v <= t {
			return i, true
		}
	}
	return len(s.Thresholds), true
}

// Fill returns the palette color for a value, or MissingFill.
func (s Scale) Fill(v float64, present bool) string {
	b, ok := s.Bucket(v, present)
	if !ok {
		return MissingFill
	}
	return Palette[b]
}

// FillFor looks up code in idx and returns its fill and bucket (-1 when missing).
func (s Scale) FillFor(idx ValueIndex, code int) (string, int) {
	v, ok := idx.Lookup(code)
	b, ok := s.Bucket(v, ok)
	if !ok {
		return MissingFill, -1
	}
	return Palette[b], b
}

// Legend describes the color ramp shown beside the map.
type Legend struct {
	Colors     []string  `json:"colors"`
	LowLabel   string    `json:"low_label"`
	HighLabel  string    `json:"high_label"`
	Thresholds []float64 `json:"thresholds"`
	Missing    string    `json:"missing"`
}

// Legend returns the legend for this scale. The returned slices are copies.
func (s Scale) Legend() Legend {
	thresholds := make([]float64, len(s.Thresholds))
	copy(thresholds, s.Thresholds)
	return Legend{
		Colors:     append([]string(nil), Palette[:]...),
		LowLabel:   "Low",
		HighLabel:  "High",
		Thresholds: thresholds,
		Missing:    MissingFill,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
