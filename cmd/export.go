package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/pkh-dashboard/peta/internal/scene"
)

var (
	exportData    dataFlags
	exportTipe    string
	exportKabkota string
	exportOut     string
)

var exportHeader = []string{"kode_kabupaten_kota", "nama_kabupaten_kota", "label", "value", "bucket", "fill"}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the classified regions of a scene to XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if exportOut == "" {
			return eris.New("export: --out is required")
		}
		sel, err := parseSelection(exportTipe, exportKabkota)
		if err != nil {
			return err
		}
		p, err := loadPipeline(cmd.Context(), cfg, exportData, nil)
		if err != nil {
			return err
		}

		sc := p.Compute(sel)
		if err := writeSceneXLSX(exportOut, sc); err != nil {
			return err
		}
		zap.L().Info("exported scene", zap.Int("regions", len(sc.Regions)), zap.String("out", exportOut))
		return nil
	},
}

// writeSceneXLSX writes one row per scene region plus a legend sheet.
func writeSceneXLSX(path string, sc scene.Scene) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("peta")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}
	addStringRow(sheet, exportHeader)
	for _, r := range sc.Regions {
		row := sheet.AddRow()
		row.AddCell().SetInt(r.Code)
		row.AddCell().SetString(r.Name)
		row.AddCell().SetString(r.Label)
		if r.Value != nil {
			row.AddCell().SetFloat(*r.Value)
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetInt(r.Bucket)
		row.AddCell().SetString(r.Fill)
	}

	legend, err := f.AddSheet("legend")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}
	addStringRow(legend, []string{"bucket", "fill", "upper_bound"})
	for i, color := range sc.Legend.Colors {
		row := legend.AddRow()
		row.AddCell().SetInt(i)
		row.AddCell().SetString(color)
		if i < len(sc.Legend.Thresholds) {
			row.AddCell().SetFloat(sc.Legend.Thresholds[i])
		} else {
			row.AddCell().SetString("")
		}
	}
	missing := legend.AddRow()
	missing.AddCell().SetInt(-1)
	missing.AddCell().SetString(sc.Legend.Missing)

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func addStringRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func init() {
	exportData.register(exportCmd)
	exportCmd.Flags().StringVar(&exportTipe, "tipe", "all", "region category: all, kota, kabupaten")
	exportCmd.Flags().StringVar(&exportKabkota, "kabkota", "", "single region code")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output .xlsx file")
	rootCmd.AddCommand(exportCmd)
}
