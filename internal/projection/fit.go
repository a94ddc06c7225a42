package projection

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/pkh-dashboard/peta/internal/region"
)

// Fit computes a projection whose scale and translation place the bounding
// extent of regions inside size, centered. Mercator is tried first; if it
// cannot produce a finite transform the equirectangular projection is fitted
// with the same contract. The returned error is ErrNoRegions for an empty
// input and ErrProjectionUnavailable when both projections fail.
func Fit(regions region.Collection, size Size) (*Projection, error) {
	if len(regions) == 0 {
		return nil, ErrNoRegions
	}

	bounds := geom.NewBounds(geom.XY)
	for _, r := range regions {
		if r.Geometry != nil {
			bounds.Extend(r.Geometry)
		}
	}

	p, err := fitBounds(NameMercator, mercatorRaw, bounds, size)
	if err == nil {
		return p, nil
	}
	zap.L().Debug("projection: primary fit failed, using fallback",
		zap.String("primary", NameMercator),
		zap.Int("regions", len(regions)),
		zap.Error(err),
	)

	p, fbErr := fitBounds(NameEquirectangular, equirectangularRaw, bounds, size)
	if fbErr == nil {
		return p, nil
	}
	zap.L().Debug("projection: fallback fit failed",
		zap.String("fallback", NameEquirectangular),
		zap.Error(fbErr),
	)
	return nil, ErrProjectionUnavailable
}

// fitBounds mirrors a fit-to-size: the raw extent is scaled by
// k = min(w/dx, h/dy) and translated so its center lands on the viewport
// center. Because raw projections are monotonic per axis, the corners of the
// geographic bounds determine the projected extent.
func fitBounds(name string, raw rawFunc, b *geom.Bounds, size Size) (*Projection, error) {
	if b == nil || b.IsEmpty() {
		return nil, eris.New("projection: empty bounds")
	}
	if !(size.Width > 0) || !(size.Height > 0) {
		return nil, eris.Errorf("projection: invalid viewport %vx%v", size.Width, size.Height)
	}

	x0, yMin := raw(b.Min(0), b.Min(1))
	x1, yMax := raw(b.Max(0), b.Max(1))
	if !finite(x0, x1, yMin, yMax) {
		return nil, eris.Errorf("projection: %s yields non-finite extent", name)
	}
	// Screen space has y flipped.
	y0, y1 := -yMax, -yMin

	dx, dy := x1-x0, y1-y0
	k := math.Min(size.Width/dx, size.Height/dy)
	if !finite(k) || k <= 0 {
		return nil, eris.Errorf("projection: %s degenerate extent %gx%g", name, dx, dy)
	}

	tx := (size.Width - k*(x0+x1)) / 2
	ty := (size.Height - k*(y0+y1)) / 2
	if !finite(tx, ty) {
		return nil, eris.Errorf("projection: %s non-finite translation", name)
	}

	return &Projection{name: name, raw: raw, k: k, tx: tx, ty: ty}, nil
}
