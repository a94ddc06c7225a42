package main

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pkh-dashboard/peta/internal/config"
	"github.com/pkh-dashboard/peta/internal/projection"
	"github.com/pkh-dashboard/peta/internal/region"
	"github.com/pkh-dashboard/peta/internal/render"
	"github.com/pkh-dashboard/peta/internal/resilience"
	"github.com/pkh-dashboard/peta/internal/scene"
	"github.com/pkh-dashboard/peta/internal/source"
)

// dataFlags select where a command reads geometry and values from. Empty
// paths fall back to the backend API.
type dataFlags struct {
	geojson  string
	values   string
	sheet    string
	year     int
	metric   string
	forecast bool
	horizon  int
	method   string
}

func (f *dataFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.geojson, "geojson", "", "GeoJSON or .shp file with region outlines (default: backend API)")
	fl.StringVar(&f.values, "values", "", "CSV or XLSX file with kode_kabupaten_kota,value columns (default: backend API)")
	fl.StringVar(&f.sheet, "sheet", "", "XLSX sheet name (default: first sheet)")
	fl.IntVar(&f.year, "year", 0, "indicator year (default from config)")
	fl.StringVar(&f.metric, "metric", "", "indicator metric: kemiskinan, pkh, kemiskinan_abs (default from config)")
	fl.BoolVar(&f.forecast, "forecast", false, "map backend forecast values instead of observed ones")
	fl.IntVar(&f.horizon, "horizon", 0, "forecast horizon in years (with --forecast)")
	fl.StringVar(&f.method, "method", "", "forecast method (with --forecast)")
}

func (f dataFlags) query(c *config.Config) (source.ValuesQuery, error) {
	metric := f.metric
	if metric == "" {
		metric = c.Data.Metric
	}
	m, err := source.ParseMetric(metric)
	if err != nil {
		return source.ValuesQuery{}, err
	}
	year := f.year
	if year == 0 {
		year = c.Data.Year
	}
	return source.ValuesQuery{Year: year, Metric: m, Category: region.CategoryAll}, nil
}

// sources resolves the geometry and value sources for f. The API client is
// only built when one of them needs it.
func (f dataFlags) sources(c *config.Config) (source.GeometrySource, source.ValueSource, error) {
	var client *source.APIClient
	api := func() (*source.APIClient, error) {
		if client != nil {
			return client, nil
		}
		var err error
		client, err = newAPIClient(c)
		return client, err
	}

	geo, err := f.geometrySource(c, api)
	if err != nil {
		return nil, nil, err
	}
	values, err := f.valueSource(api)
	if err != nil {
		return nil, nil, err
	}
	return geo, values, nil
}

func (f dataFlags) geometrySource(c *config.Config, api func() (*source.APIClient, error)) (source.GeometrySource, error) {
	props := regionProperties(c)
	switch {
	case f.geojson == "":
		return api()
	case hasExt(f.geojson, ".shp"):
		return source.ShapefileSource{Path: f.geojson, Properties: props}, nil
	default:
		return source.GeoJSONFile{Path: f.geojson, Properties: props}, nil
	}
}

func (f dataFlags) valueSource(api func() (*source.APIClient, error)) (source.ValueSource, error) {
	switch {
	case f.values != "":
		return source.TableFile{Path: f.values, Sheet: f.sheet}, nil
	case f.forecast:
		cl, err := api()
		if err != nil {
			return nil, err
		}
		return source.ForecastSource{Client: cl, Horizon: f.horizon, Method: f.method, Year: f.year}, nil
	default:
		return api()
	}
}

// loadPipeline builds a pipeline and fills it once from f's sources.
func loadPipeline(ctx context.Context, c *config.Config, f dataFlags, rec scene.Recorder) (*scene.Pipeline, error) {
	q, err := f.query(c)
	if err != nil {
		return nil, err
	}
	geo, values, err := f.sources(c)
	if err != nil {
		return nil, err
	}

	p := scene.NewPipeline(pipelineOptions(c, rec))
	if _, err := source.NewLoader(geo, values, p, q).Load(ctx, q); err != nil {
		return nil, err
	}
	return p, nil
}

func regionProperties(c *config.Config) region.Properties {
	props := region.DefaultProperties()
	if c.Map.CodeProperty != "" {
		props.Code = c.Map.CodeProperty
	}
	if c.Map.NameProperty != "" {
		props.Name = c.Map.NameProperty
	}
	return props
}

func pipelineOptions(c *config.Config, rec scene.Recorder) scene.Options {
	opts := scene.DefaultOptions()
	if c.Map.Width > 0 && c.Map.Height > 0 {
		opts.Size = projection.Size{Width: c.Map.Width, Height: c.Map.Height}
	}
	opts.Render = render.Options{
		Precision:         c.Map.Precision,
		SimplifyTolerance: c.Map.SimplifyTolerance,
	}
	if c.Map.FallbackMessage != "" {
		opts.FallbackMessage = c.Map.FallbackMessage
	}
	opts.Recorder = rec
	return opts
}

func newAPIClient(c *config.Config) (*source.APIClient, error) {
	client, err := source.NewAPIClient(source.APIOptions{
		BaseURL:    c.API.BaseURL,
		Timeout:    time.Duration(c.API.TimeoutSecs) * time.Second,
		RatePerSec: c.API.RatePerSec,
		Backoff:    resilience.DefaultBackoff().WithAttempts(c.API.MaxAttempts),
		Properties: regionProperties(c),
	})
	if err != nil {
		return nil, eris.Wrap(err, "create api client")
	}
	return client, nil
}

func hasExt(path, ext string) bool {
	return strings.EqualFold(filepath.Ext(path), ext)
}
