package scene

import (
	"sync"

	"go.uber.org/zap"

	"github.com/pkh-dashboard/peta/internal/classify"
	"github.com/pkh-dashboard/peta/internal/projection"
	"github.com/pkh-dashboard/peta/internal/region"
	"github.com/pkh-dashboard/peta/internal/render"
)

// Pipeline stage names reported to the Recorder.
const (
	StageGeometry = "geometry"
	StageClassify = "classify"
)

// Input names reported for stale updates.
const (
	InputRegions = "regions"
	InputValues  = "values"
)

// Recorder receives pipeline events. internal/metrics provides the
// Prometheus implementation.
type Recorder interface {
	Recompute(stage string)
	Fallback()
	Stale(input string)
	Rendered(n int)
}

type nopRecorder struct{}

func (nopRecorder) Recompute(string) {}
func (nopRecorder) Fallback()        {}
func (nopRecorder) Stale(string)     {}
func (nopRecorder) Rendered(int)     {}

// Options configures a Pipeline.
type Options struct {
	Size            projection.Size
	Render          render.Options
	FallbackMessage string
	Recorder        Recorder
}

// DefaultOptions returns the 600x360 map page configuration.
func DefaultOptions() Options {
	return Options{
		Size:            projection.Size{Width: 600, Height: 360},
		Render:          render.DefaultOptions(),
		FallbackMessage: DefaultFallbackMessage,
	}
}

// geometryKey identifies a memoized geometry pass. Codes absent from the
// current regions share one key per category so the memo stays bounded by
// the dataset size.
type geometryKey struct {
	category region.Category
	code     int
	hasCode  bool
	unknown  bool
}

type geometryResult struct {
	projection string
	regions    []render.ProjectedRegion
	fallback   bool
}

type classification struct {
	index classify.ValueIndex
	scale classify.Scale
}

// Pipeline memoizes the geometry stages per (regions version, selection) and
// the classifier per values version. Inputs carry versions; an input older
// than the one already applied is dropped. Safe for concurrent use.
type Pipeline struct {
	opts Options
	rec  Recorder
	log  *zap.Logger

	mu             sync.Mutex
	regions        region.Collection
	regionsVersion int64
	hasRegions     bool
	rows           []classify.ValueRow
	valuesVersion  int64
	hasValues      bool

	geometry map[geometryKey]*geometryResult
	codes    map[int]struct{}
	classes  *classification
}

// NewPipeline creates an empty pipeline. Until regions are set every Compute
// returns a fallback scene.
func NewPipeline(opts Options) *Pipeline {
	if opts.FallbackMessage == "" {
		opts.FallbackMessage = DefaultFallbackMessage
	}
	rec := opts.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Pipeline{
		opts:     opts,
		rec:      rec,
		log:      zap.L().With(zap.String("component", "scene")),
		geometry: make(map[geometryKey]*geometryResult),
	}
}

// SetRegions applies a region snapshot. It returns false and leaves the
// pipeline untouched when version is older than the applied one.
func (p *Pipeline) SetRegions(version int64, regions region.Collection) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hasRegions && version < p.regionsVersion {
		p.log.Warn("scene: dropping stale regions",
			zap.Int64("version", version),
			zap.Int64("current", p.regionsVersion),
		)
		p.rec.Stale(InputRegions)
		return false
	}

	p.regions = regions
	p.regionsVersion = version
	p.hasRegions = true
	p.geometry = make(map[geometryKey]*geometryResult)
	p.codes = make(map[int]struct{}, len(regions))
	for _, r := range regions {
		p.codes[r.Code] = struct{}{}
	}
	return true
}

// SetValues applies a value snapshot with the same version rule as SetRegions.
func (p *Pipeline) SetValues(version int64, rows []classify.ValueRow) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hasValues && version < p.valuesVersion {
		p.log.Warn("scene: dropping stale values",
			zap.Int64("version", version),
			zap.Int64("current", p.valuesVersion),
		)
		p.rec.Stale(InputValues)
		return false
	}

	p.rows = rows
	p.valuesVersion = version
	p.hasValues = true
	p.classes = nil
	return true
}

// Size returns the viewport scenes are fitted to.
func (p *Pipeline) Size() projection.Size {
	return p.opts.Size
}

// Versions returns the applied regions and values versions.
func (p *Pipeline) Versions() (regions, values int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regionsVersion, p.valuesVersion
}

// Regions returns the applied region collection.
func (p *Pipeline) Regions() region.Collection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regions
}

// Rows returns a copy of the applied value rows.
func (p *Pipeline) Rows() []classify.ValueRow {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]classify.ValueRow, len(p.rows))
	copy(out, p.rows)
	return out
}

// Legend returns the legend for the applied values.
func (p *Pipeline) Legend() classify.Legend {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.classification().scale.Legend()
}

// Compute builds the scene for sel. Missing regions, a failed projection or
// an empty render yield a fallback scene with no regions.
func (p *Pipeline) Compute(sel region.Selection) Scene {
	p.mu.Lock()
	geo := p.geometryFor(sel)
	cls := p.classification()
	regionsVersion, valuesVersion := p.regionsVersion, p.valuesVersion
	p.mu.Unlock()

	s := Scene{
		Width:          p.opts.Size.Width,
		Height:         p.opts.Size.Height,
		Legend:         cls.scale.Legend(),
		RegionsVersion: regionsVersion,
		ValuesVersion:  valuesVersion,
	}
	if geo.fallback {
		p.rec.Fallback()
		s.Fallback = true
		s.Message = p.opts.FallbackMessage
		s.Regions = []Region{}
		return s
	}

	s.Projection = geo.projection
	s.Regions = join(geo.regions, cls.index, cls.scale)
	p.rec.Rendered(len(s.Regions))
	return s
}

// geometryFor runs filter, fit and render, memoized per selection. Caller
// holds p.mu.
func (p *Pipeline) geometryFor(sel region.Selection) *geometryResult {
	if !p.hasRegions {
		return &geometryResult{fallback: true}
	}

	key := geometryKey{category: sel.Category, code: sel.Code, hasCode: sel.HasCode}
	if key.category == "" {
		key.category = region.CategoryAll
	}
	if !sel.HasCode {
		key.code = 0
	} else if _, ok := p.codes[sel.Code]; !ok {
		key.code = 0
		key.unknown = true
	}
	if res, ok := p.geometry[key]; ok {
		return res
	}

	p.rec.Recompute(StageGeometry)
	filtered := region.Filter(p.regions, sel)
	proj, err := projection.Fit(filtered, p.opts.Size)
	if err != nil {
		p.log.Debug("scene: no projection",
			zap.Int64("regions_version", p.regionsVersion),
			zap.Int("regions", len(filtered)),
			zap.Error(err),
		)
		res := &geometryResult{fallback: true}
		p.geometry[key] = res
		return res
	}

	rendered := render.Render(filtered, proj, p.opts.Render)
	res := &geometryResult{
		projection: proj.Name(),
		regions:    rendered,
		fallback:   len(rendered) == 0,
	}
	p.geometry[key] = res
	return res
}

// classification returns the memoized index and scale. Caller holds p.mu.
func (p *Pipeline) classification() *classification {
	if p.classes != nil {
		return p.classes
	}
	p.rec.Recompute(StageClassify)
	idx := classify.NewIndex(p.rows)
	p.classes = &classification{index: idx, scale: classify.NewScale(idx)}
	return p.classes
}
