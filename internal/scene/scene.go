// Package scene joins filtered geometry and classified values into a
// renderable choropleth.
package scene

import (
	"github.com/pkh-dashboard/peta/internal/classify"
	"github.com/pkh-dashboard/peta/internal/projection"
	"github.com/pkh-dashboard/peta/internal/render"
)

// DefaultFallbackMessage is shown when no projection can be fitted.
const DefaultFallbackMessage = "Peta belum tersedia. Pastikan data geojson tersedia."

// Region is one drawable region with its classification.
type Region struct {
	render.ProjectedRegion
	// Value is nil when the region has no finite value.
	Value  *float64 `json:"value"`
	Fill   string   `json:"fill"`
	Bucket int      `json:"bucket"`
}

// Scene is the output of one pipeline pass.
type Scene struct {
	Width          float64         `json:"width"`
	Height         float64         `json:"height"`
	Projection     string          `json:"projection,omitempty"`
	Fallback       bool            `json:"fallback"`
	Message        string          `json:"message,omitempty"`
	Regions        []Region        `json:"regions"`
	Legend         classify.Legend `json:"legend"`
	RegionsVersion int64           `json:"regions_version"`
	ValuesVersion  int64           `json:"values_version"`
}

// Size returns the viewport the scene was fitted to.
func (s Scene) Size() projection.Size {
	return projection.Size{Width: s.Width, Height: s.Height}
}

// join attaches fills to projected regions by code. Neither input is mutated.
func join(projected []render.ProjectedRegion, idx classify.ValueIndex, scale classify.Scale) []Region {
	out := make([]Region, 0, len(projected))
	for _, pr := range projected {
		r := Region{ProjectedRegion: pr}
		if v, ok := idx.Lookup(pr.Code); ok {
			v := v
			r.Value = &v
		}
		r.Fill, r.Bucket = scale.FillFor(idx, pr.Code)
		out = append(out, r)
	}
	return out
}
