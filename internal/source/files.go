package source

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/pkh-dashboard/peta/internal/classify"
	"github.com/pkh-dashboard/peta/internal/region"
)

// Column names accepted for value tables. The first of each list is what
// the backend emits.
var (
	codeColumns  = []string{"kode_kabupaten_kota", "code", "kode"}
	nameColumns  = []string{"nama_kabupaten_kota", "name", "nama"}
	valueColumns = []string{"value", "nilai"}
)

// LoadGeoJSONFile reads regions from a GeoJSON FeatureCollection file.
func LoadGeoJSONFile(path string, props region.Properties) (region.Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open geojson %s", path)
	}
	defer f.Close() //nolint:errcheck

	regions, err := region.DecodeGeoJSON(f, props)
	if err != nil {
		return nil, eris.Wrapf(err, "source: load geojson %s", path)
	}
	return regions, nil
}

// LoadValuesCSV reads value rows from a CSV file with a header row.
func LoadValuesCSV(path string) ([]classify.ValueRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open csv %s", path)
	}
	defer f.Close() //nolint:errcheck

	rows, err := DecodeValuesCSV(f)
	if err != nil {
		return nil, eris.Wrapf(err, "source: load csv %s", path)
	}
	return rows, nil
}

// DecodeValuesCSV reads value rows from CSV. Blank values become NaN.
func DecodeValuesCSV(r io.Reader) ([]classify.ValueRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "csv: read rows")
	}
	return valueTable(records)
}

// LoadValuesXLSX reads value rows from a sheet of an XLSX workbook. An
// empty sheet name selects the first sheet.
func LoadValuesXLSX(path, sheetName string) ([]classify.ValueRow, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open file %s", path)
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", sheetName)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.Errorf("xlsx: %s has no sheets", path)
		}
		sheet = f.Sheets[0]
	}

	records := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.String()
		}
		records = append(records, cells)
	}

	rows, err := valueTable(records)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: sheet %q", sheet.Name)
	}
	return rows, nil
}

// valueTable maps a header row plus records to value rows. Fully blank
// records are skipped.
func valueTable(records [][]string) ([]classify.ValueRow, error) {
	if len(records) == 0 {
		return nil, eris.New("source: value table is empty")
	}

	header := records[0]
	codeIdx := column(header, codeColumns)
	nameIdx := column(header, nameColumns)
	valueIdx := column(header, valueColumns)
	if codeIdx < 0 || valueIdx < 0 {
		return nil, eris.Errorf("source: value table needs %s and %s columns, got %v",
			codeColumns[0], valueColumns[0], header)
	}

	out := make([]classify.ValueRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		line := i + 2

		code, err := strconv.Atoi(strings.TrimSpace(cell(rec, codeIdx)))
		if err != nil {
			return nil, eris.Wrapf(err, "source: row %d code", line)
		}

		value := math.NaN()
		if raw := strings.TrimSpace(cell(rec, valueIdx)); raw != "" {
			value, err = strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "source: row %d value", line)
			}
		}

		out = append(out, classify.ValueRow{
			Code:  code,
			Name:  strings.TrimSpace(cell(rec, nameIdx)),
			Value: value,
		})
	}
	return out, nil
}

func column(header []string, names []string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), name) {
				return i
			}
		}
	}
	return -1
}

func cell(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return rec[idx]
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// GeoJSONFile is a GeometrySource backed by a file.
type GeoJSONFile struct {
	Path       string
	Properties region.Properties
}

// Regions implements GeometrySource.
func (g GeoJSONFile) Regions(context.Context) (region.Collection, error) {
	return LoadGeoJSONFile(g.Path, g.Properties)
}

// ShapefileSource is a GeometrySource backed by a .shp/.dbf pair.
type ShapefileSource struct {
	Path       string
	Properties region.Properties
}

// Regions implements GeometrySource.
func (s ShapefileSource) Regions(context.Context) (region.Collection, error) {
	return LoadShapefile(s.Path, s.Properties)
}

// TableFile is a ValueSource backed by a CSV or XLSX file, chosen by
// extension. The query is ignored; the file is one snapshot.
type TableFile struct {
	Path  string
	Sheet string
}

// Values implements ValueSource.
func (t TableFile) Values(context.Context, ValuesQuery) ([]classify.ValueRow, error) {
	return LoadValues(t.Path, t.Sheet)
}

// LoadValues reads a CSV or XLSX value table by extension.
func LoadValues(path, sheet string) ([]classify.ValueRow, error) {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return LoadValuesXLSX(path, sheet)
	}
	return LoadValuesCSV(path)
}

// LoadRegions reads a GeoJSON or shapefile by extension.
func LoadRegions(path string, props region.Properties) (region.Collection, error) {
	if strings.HasSuffix(strings.ToLower(path), ".shp") {
		return LoadShapefile(path, props)
	}
	return LoadGeoJSONFile(path, props)
}
