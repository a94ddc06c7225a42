package source

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pkh-dashboard/peta/internal/classify"
	"github.com/pkh-dashboard/peta/internal/region"
	"github.com/pkh-dashboard/peta/internal/scene"
)

// GeometrySource supplies the province region collection.
type GeometrySource interface {
	Regions(ctx context.Context) (region.Collection, error)
}

// ValueSource supplies one indicator snapshot.
type ValueSource interface {
	Values(ctx context.Context, q ValuesQuery) ([]classify.ValueRow, error)
}

// LoadResult reports what one Load applied.
type LoadResult struct {
	Version        int64 `json:"version"`
	Regions        int   `json:"regions"`
	Rows           int   `json:"rows"`
	RegionsApplied bool  `json:"regions_applied"`
	ValuesApplied  bool  `json:"values_applied"`
}

// Loader fetches sources into a scene pipeline. Every fetch takes a version
// when it starts, so a slow response never replaces one from a fetch that
// started later.
type Loader struct {
	geo      GeometrySource
	values   ValueSource
	pipeline *scene.Pipeline

	seq   atomic.Int64
	group singleflight.Group

	mu    sync.Mutex
	query ValuesQuery
}

// NewLoader creates a Loader. q is the query used by Reload.
func NewLoader(geo GeometrySource, values ValueSource, p *scene.Pipeline, q ValuesQuery) *Loader {
	return &Loader{geo: geo, values: values, pipeline: p, query: q}
}

// Query returns the default values query.
func (l *Loader) Query() ValuesQuery {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.query
}

// Load fetches regions and values concurrently and applies both.
func (l *Loader) Load(ctx context.Context, q ValuesQuery) (LoadResult, error) {
	version := l.seq.Add(1)
	res := LoadResult{Version: version}

	var (
		regions region.Collection
		rows    []classify.ValueRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		regions, err = l.fetchRegions(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = l.values.Values(gctx, q)
		if err != nil {
			return eris.Wrap(err, "source: load values")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return res, err
	}

	res.Regions = len(regions)
	res.Rows = len(rows)
	res.RegionsApplied = l.pipeline.SetRegions(version, regions)
	res.ValuesApplied = l.pipeline.SetValues(version, rows)

	l.mu.Lock()
	l.query = q
	l.mu.Unlock()

	zap.L().Info("source: loaded",
		zap.Int64("version", version),
		zap.Int("regions", res.Regions),
		zap.Int("rows", res.Rows),
		zap.Int("year", q.Year),
		zap.String("metric", q.Metric),
	)
	return res, nil
}

// LoadValues fetches and applies only a values snapshot, keeping the
// applied regions.
func (l *Loader) LoadValues(ctx context.Context, q ValuesQuery) (LoadResult, error) {
	version := l.seq.Add(1)
	res := LoadResult{Version: version}

	rows, err := l.values.Values(ctx, q)
	if err != nil {
		return res, eris.Wrap(err, "source: load values")
	}
	res.Rows = len(rows)
	res.ValuesApplied = l.pipeline.SetValues(version, rows)

	l.mu.Lock()
	l.query = q
	l.mu.Unlock()
	return res, nil
}

// Reload repeats Load with the last used query.
func (l *Loader) Reload(ctx context.Context) (LoadResult, error) {
	return l.Load(ctx, l.Query())
}

// fetchRegions collapses concurrent geometry fetches into one request.
func (l *Loader) fetchRegions(ctx context.Context) (region.Collection, error) {
	v, err, shared := l.group.Do("regions", func() (any, error) {
		return l.geo.Regions(ctx)
	})
	if err != nil {
		return nil, eris.Wrap(err, "source: load regions")
	}
	if shared {
		zap.L().Debug("source: shared geometry fetch")
	}
	return v.(region.Collection), nil
}
