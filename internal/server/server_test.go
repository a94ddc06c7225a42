package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/pkh-dashboard/peta/internal/classify"
	"github.com/pkh-dashboard/peta/internal/metrics"
	"github.com/pkh-dashboard/peta/internal/region"
	"github.com/pkh-dashboard/peta/internal/scene"
	"github.com/pkh-dashboard/peta/internal/source"
	"github.com/pkh-dashboard/peta/internal/svg"
	"github.com/pkh-dashboard/peta/internal/view"
)

const identityTransform = "translate(300 180) translate(0 0) scale(1) translate(-300 -180)"

type fakeReloader struct {
	calls int
	err   error
}

func (f *fakeReloader) Reload(context.Context) (source.LoadResult, error) {
	f.calls++
	if f.err != nil {
		return source.LoadResult{}, f.err
	}
	return source.LoadResult{Version: 2, Regions: 4, Rows: 3, RegionsApplied: true, ValuesApplied: true}, nil
}

func square(t *testing.T, code int, name string, lon, lat float64) region.Region {
	t.Helper()
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{lon, lat}, {lon + 0.5, lat}, {lon + 0.5, lat + 0.5}, {lon, lat + 0.5}, {lon, lat},
	}})
	r, err := region.New(code, name, poly)
	require.NoError(t, err)
	return r
}

type fixture struct {
	srv      *Server
	pipeline *scene.Pipeline
	metrics  *metrics.Collector
	cache    *scene.Cache
	loader   *fakeReloader
}

func newFixture(t *testing.T, loaded bool) *fixture {
	t.Helper()
	mc, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	opts := scene.DefaultOptions()
	opts.Recorder = mc
	p := scene.NewPipeline(opts)
	if loaded {
		p.SetRegions(1, region.Collection{
			square(t, 3201, "KABUPATEN BOGOR", 106.5, -6.8),
			square(t, 3273, "KOTA BANDUNG", 107.5, -7.0),
			square(t, 3204, "KABUPATEN BANDUNG", 107.4, -7.2),
			square(t, 3271, "KOTA BOGOR", 106.7, -6.6),
		})
		p.SetValues(1, []classify.ValueRow{
			{Code: 3201, Name: "KABUPATEN BOGOR", Value: 7.1},
			{Code: 3273, Name: "KOTA BANDUNG", Value: 3.9},
			{Code: 3204, Name: "KABUPATEN BANDUNG", Value: 6.2},
		})
	}

	cache := scene.NewCache(16, time.Minute)
	loader := &fakeReloader{}
	srv := New(p, loader, Options{
		Style:   svg.DefaultStyle(),
		Cache:   cache,
		Metrics: mc,
	})
	return &fixture{srv: srv, pipeline: p, metrics: mc, cache: cache, loader: loader}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

type sceneBody struct {
	Fallback  bool   `json:"fallback"`
	Message   string `json:"message"`
	Transform string `json:"transform"`
	Regions   []struct {
		Code   int      `json:"code"`
		Label  string   `json:"label"`
		Path   string   `json:"path"`
		Fill   string   `json:"fill"`
		Bucket int      `json:"bucket"`
		Value  *float64 `json:"value"`
	} `json:"regions"`
	View view.Snapshot `json:"view"`
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestScene(t *testing.T) {
	f := newFixture(t, true)

	tests := []struct {
		name      string
		target    string
		wantCodes []int
	}{
		{"all", "/api/scene", []int{3201, 3273, 3204, 3271}},
		{"kota", "/api/scene?tipe=kota", []int{3273, 3271}},
		{"kabupaten", "/api/scene?tipe=KABUPATEN", []int{3201, 3204}},
		{"single code", "/api/scene?kabkota=3204", []int{3204}},
		{"code outside category", "/api/scene?tipe=kota&kabkota=3204", []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, tt.target, "")
			require.Equal(t, http.StatusOK, w.Code)

			body := decode[sceneBody](t, w)
			codes := []int{}
			for _, r := range body.Regions {
				codes = append(codes, r.Code)
				assert.NotEmpty(t, r.Path)
			}
			assert.Equal(t, tt.wantCodes, codes)
			assert.Equal(t, identityTransform, body.Transform)
			assert.Equal(t, view.CursorGrab, body.View.Cursor)
		})
	}
}

func TestScene_MissingValueIsNull(t *testing.T) {
	f := newFixture(t, true)
	body := decode[sceneBody](t, f.do(t, http.MethodGet, "/api/scene?kabkota=3271", ""))
	require.Len(t, body.Regions, 1)
	assert.Nil(t, body.Regions[0].Value)
	assert.Equal(t, classify.MissingFill, body.Regions[0].Fill)
	assert.Equal(t, -1, body.Regions[0].Bucket)
}

func TestScene_Fallback(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(t, http.MethodGet, "/api/scene", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[sceneBody](t, w)
	assert.True(t, body.Fallback)
	assert.Equal(t, scene.DefaultFallbackMessage, body.Message)
	assert.Empty(t, body.Regions)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Fallbacks), 0)
}

func TestScene_BadInput(t *testing.T) {
	f := newFixture(t, true)
	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"bad tipe", "/api/scene?tipe=desa", http.StatusBadRequest},
		{"bad code", "/api/scene?kabkota=abc", http.StatusBadRequest},
		{"unknown session", "/api/scene?session=nope", http.StatusNotFound},
		{"svg bad tipe", "/api/scene.svg?tipe=desa", http.StatusBadRequest},
		{"svg unknown session", "/api/scene.svg?session=nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestSceneSVG_Cache(t *testing.T) {
	f := newFixture(t, true)

	first := f.do(t, http.MethodGet, "/api/scene.svg?tipe=kota", "")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "image/svg+xml", first.Header().Get("Content-Type"))
	assert.Equal(t, "miss", first.Header().Get("X-Cache"))
	assert.True(t, strings.HasPrefix(first.Body.String(), "<svg"))

	second := f.do(t, http.MethodGet, "/api/scene.svg?tipe=kota", "")
	assert.Equal(t, "hit", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())

	other := f.do(t, http.MethodGet, "/api/scene.svg?tipe=kabupaten", "")
	assert.Equal(t, "miss", other.Header().Get("X-Cache"))

	// New values invalidate by version.
	f.pipeline.SetValues(2, []classify.ValueRow{{Code: 3273, Value: 1}})
	third := f.do(t, http.MethodGet, "/api/scene.svg?tipe=kota", "")
	assert.Equal(t, "miss", third.Header().Get("X-Cache"))

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.CacheRequests.WithLabelValues(metrics.CacheHit)), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(f.metrics.CacheRequests.WithLabelValues(metrics.CacheMiss)), 0)
}

func TestSceneSVG_FallbackText(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(t, http.MethodGet, "/api/scene.svg", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Peta belum tersedia")
}

func TestLegend(t *testing.T) {
	f := newFixture(t, true)
	w := f.do(t, http.MethodGet, "/api/legend", "")
	require.Equal(t, http.StatusOK, w.Code)

	legend := decode[classify.Legend](t, w)
	assert.Equal(t, classify.Palette[:], legend.Colors)
	assert.Equal(t, "Low", legend.LowLabel)
	assert.Equal(t, "High", legend.HighLabel)
	assert.Len(t, legend.Thresholds, 4)
}

func TestRank(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(t, http.MethodGet, "/api/rank?n=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Top    []classify.ValueRow `json:"top"`
		Bottom []classify.ValueRow `json:"bottom"`
	}](t, w)

	require.Len(t, body.Top, 2)
	require.Len(t, body.Bottom, 2)
	assert.Equal(t, 3201, body.Top[0].Code)
	assert.Equal(t, 3204, body.Top[1].Code)
	assert.Equal(t, 3204, body.Bottom[0].Code)
	assert.Equal(t, 3273, body.Bottom[1].Code)

	for _, bad := range []string{"0", "101", "x"} {
		w := f.do(t, http.MethodGet, "/api/rank?n="+bad, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestViewSession(t *testing.T) {
	f := newFixture(t, true)

	created := f.do(t, http.MethodPost, "/api/view", "")
	require.Equal(t, http.StatusCreated, created.Code)
	v := decode[viewResponse](t, created)
	require.NotEmpty(t, v.ID)
	assert.InDelta(t, 1, v.View.Zoom, 0)
	assert.Equal(t, identityTransform, v.Transform)

	base := "/api/view/" + v.ID + "/"
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, base+ActionZoomIn, "").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, base+ActionPointerDown, `{"x":100,"y":100}`).Code)

	moved := f.do(t, http.MethodPost, base+ActionPointerMove, `{"x":120,"y":130}`)
	require.Equal(t, http.StatusOK, moved.Code)
	mv := decode[viewResponse](t, moved)
	assert.True(t, mv.View.Dragging)
	assert.Equal(t, view.CursorGrabbing, mv.View.Cursor)
	assert.Equal(t, view.Point{X: 20, Y: 30}, mv.View.Pan)

	up := decode[viewResponse](t, f.do(t, http.MethodPost, base+ActionPointerUp, ""))
	assert.False(t, up.View.Dragging)

	got := f.do(t, http.MethodGet, "/api/view/"+v.ID, "")
	require.Equal(t, http.StatusOK, got.Code)
	gv := decode[viewResponse](t, got)
	assert.InDelta(t, 1.2, gv.View.Zoom, 1e-9)

	body := decode[sceneBody](t, f.do(t, http.MethodGet, "/api/scene?session="+v.ID, ""))
	assert.Equal(t, "translate(300 180) translate(20 30) scale(1.2) translate(-300 -180)", body.Transform)

	reset := decode[viewResponse](t, f.do(t, http.MethodPost, base+ActionReset, ""))
	assert.Equal(t, identityTransform, reset.Transform)
}

func TestViewSession_Errors(t *testing.T) {
	f := newFixture(t, true)
	v := decode[viewResponse](t, f.do(t, http.MethodPost, "/api/view", ""))
	base := "/api/view/" + v.ID + "/"

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"unknown action", base + "spin", "", http.StatusBadRequest},
		{"pointer without body", base + ActionPointerDown, "", http.StatusBadRequest},
		{"pointer missing y", base + ActionPointerMove, `{"x":1}`, http.StatusBadRequest},
		{"unknown session", "/api/view/missing/" + ActionZoomIn, "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/view/missing", "").Code)
}

func TestSessionStore_TTL(t *testing.T) {
	st := newSessionStore(view.Options{}, time.Minute)
	id, sess := st.create()
	sess.lastSeen = time.Now().Add(-2 * time.Minute)

	_, ok := st.get(id)
	assert.False(t, ok)
	assert.Equal(t, 0, st.count())

	id2, _ := st.create()
	_, ok = st.get(id2)
	assert.True(t, ok)
}

func TestReload(t *testing.T) {
	f := newFixture(t, true)
	f.do(t, http.MethodGet, "/api/scene.svg", "")
	require.Equal(t, 1, f.cache.Stats().Entries)

	w := f.do(t, http.MethodPost, "/api/reload", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[source.LoadResult](t, w)
	assert.Equal(t, int64(2), res.Version)
	assert.Equal(t, 1, f.loader.calls)
	assert.Equal(t, 0, f.cache.Stats().Entries)

	f.loader.err = errors.New("upstream down")
	w = f.do(t, http.MethodPost, "/api/reload", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "upstream down")
}

func TestReload_NotConfigured(t *testing.T) {
	srv := New(scene.NewPipeline(scene.DefaultOptions()), nil, Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/reload", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, true)
	f.do(t, http.MethodGet, "/api/scene", "")

	w := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `peta_http_requests_total{code="200",route="/api/scene"} 1`)
	assert.Contains(t, w.Body.String(), "peta_rendered_regions 4")
}

func TestCORS(t *testing.T) {
	f := newFixture(t, true)
	req := httptest.NewRequest(http.MethodGet, "/api/legend", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
