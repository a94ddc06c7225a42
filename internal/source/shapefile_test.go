package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/pkh-dashboard/peta/internal/region"
)

// Clockwise exterior and counter-clockwise hole, in shapefile convention.
var (
	outerRing = []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}}
	holeRing  = []shp.Point{{X: 2, Y: 2}, {X: 8, Y: 2}, {X: 8, Y: 8}, {X: 2, Y: 8}, {X: 2, Y: 2}}
	farRing   = []shp.Point{{X: 20, Y: 0}, {X: 20, Y: 5}, {X: 25, Y: 5}, {X: 25, Y: 0}, {X: 20, Y: 0}}
)

func shpPolygon(rings ...[]shp.Point) *shp.Polygon {
	p := &shp.Polygon{NumParts: int32(len(rings))}
	for _, r := range rings {
		p.Parts = append(p.Parts, int32(len(p.Points)))
		p.Points = append(p.Points, r...)
	}
	p.NumPoints = int32(len(p.Points))
	p.Box = shp.BBoxFromPoints(p.Points)
	return p
}

func TestPolygonGeometry(t *testing.T) {
	t.Run("single ring", func(t *testing.T) {
		g := polygonGeometry(shpPolygon(outerRing))
		poly, ok := g.(*geom.Polygon)
		require.True(t, ok)
		assert.Equal(t, 1, poly.NumLinearRings())
	})

	t.Run("hole joins exterior", func(t *testing.T) {
		g := polygonGeometry(shpPolygon(outerRing, holeRing))
		poly, ok := g.(*geom.Polygon)
		require.True(t, ok)
		assert.Equal(t, 2, poly.NumLinearRings())
	})

	t.Run("two exteriors", func(t *testing.T) {
		g := polygonGeometry(shpPolygon(outerRing, holeRing, farRing))
		mp, ok := g.(*geom.MultiPolygon)
		require.True(t, ok)
		assert.Equal(t, 2, mp.NumPolygons())
		assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())
		assert.Equal(t, 1, mp.Polygon(1).NumLinearRings())
	})

	t.Run("leading hole becomes exterior", func(t *testing.T) {
		g := polygonGeometry(shpPolygon(holeRing))
		require.NotNil(t, g)
	})

	t.Run("degenerate rings", func(t *testing.T) {
		short := []shp.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 0}}
		assert.Nil(t, polygonGeometry(shpPolygon(short)))
		assert.Nil(t, polygonGeometry(&shp.Polygon{}))
	})
}

func TestSignedArea(t *testing.T) {
	flat := func(pts []shp.Point) []float64 {
		out := make([]float64, 0, len(pts)*2)
		for _, p := range pts {
			out = append(out, p.X, p.Y)
		}
		return out
	}
	assert.InDelta(t, -100, signedArea(flat(outerRing)), 1e-9)
	assert.InDelta(t, 36, signedArea(flat(holeRing)), 1e-9)
}

func TestParseDBFCode(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"3201", 3201, false},
		{"3273.000", 3273, false},
		{"3273.5", 0, true},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDBFCode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDBFField(t *testing.T) {
	names := []string{"kode_kabup", "nama_kabupa", "luas"}
	assert.Equal(t, 0, dbfField(names, "kode_kabupaten_kota"))
	assert.Equal(t, 1, dbfField(names, "NAMA_KABUPATEN_KOTA"))
	assert.Equal(t, 2, dbfField(names, "luas"))
	assert.Equal(t, -1, dbfField(names, "tipe"))
}

type shpRecord struct {
	code int
	name string
	poly *shp.Polygon
}

// writeShapefile writes a polygon shapefile with kode_kabup and nama_kabup
// attributes. go-shp v0.1.1 names the attribute table "<base>dbf" while its
// reader opens "<base>.dbf", so the table is moved into place after Close.
func writeShapefile(t *testing.T, path string, records []shpRecord) {
	t.Helper()
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.NumberField("kode_kabup", 10),
		shp.StringField("nama_kabup", 50),
	}))
	for i, r := range records {
		w.Write(r.poly)
		require.NoError(t, w.WriteAttribute(i, 0, r.code))
		require.NoError(t, w.WriteAttribute(i, 1, r.name))
	}
	w.Close()

	base := strings.TrimSuffix(path, ".shp")
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
}

func TestLoadShapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jabar.shp")
	writeShapefile(t, path, []shpRecord{
		{3201, "KABUPATEN BOGOR", shpPolygon(outerRing, holeRing)},
		{3273, "KOTA BANDUNG", shpPolygon(farRing)},
	})

	regions, err := LoadShapefile(path, region.DefaultProperties())
	require.NoError(t, err)
	require.Len(t, regions, 2)

	assert.Equal(t, []int{3201, 3273}, regions.Codes())
	assert.Equal(t, "KABUPATEN BOGOR", regions[0].Name)
	assert.Equal(t, "KOTA BANDUNG", regions[1].Name)
	assert.Equal(t, region.CategoryKabupaten, regions[0].Category)
	assert.Equal(t, region.CategoryKota, regions[1].Category)

	poly, ok := regions[0].Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, 2, poly.NumLinearRings())

	_, ok = regions[1].Geometry.(*geom.Polygon)
	assert.True(t, ok)

	_, err = LoadShapefile(path, region.Properties{Code: "kd", Name: "nm"})
	assert.Error(t, err)
}

func TestLoadShapefile_MissingAttributeTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jabar.shp")
	writeShapefile(t, path, []shpRecord{{3201, "KABUPATEN BOGOR", shpPolygon(outerRing)}})
	require.NoError(t, os.Remove(filepath.Join(filepath.Dir(path), "jabar.dbf")))

	_, err := LoadShapefile(path, region.DefaultProperties())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".dbf")
}

func TestLoadShapefile_Missing(t *testing.T) {
	_, err := LoadShapefile(filepath.Join(t.TempDir(), "missing.shp"), region.DefaultProperties())
	assert.Error(t, err)
}
