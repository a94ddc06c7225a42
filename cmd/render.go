package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pkh-dashboard/peta/internal/region"
	"github.com/pkh-dashboard/peta/internal/svg"
	"github.com/pkh-dashboard/peta/internal/view"
)

var (
	renderData    dataFlags
	renderTipe    string
	renderKabkota string
	renderZoom    float64
	renderPanX    float64
	renderPanY    float64
	renderStyle   string
	renderOut     string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Write the choropleth as an SVG document",
	Example: `  peta render --geojson jabar.geojson --values kemiskinan_2024.csv --out peta.svg
  peta render --tipe kota --zoom 1.6 --out kota.svg`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("render"); err != nil {
			return err
		}
		sel, err := parseSelection(renderTipe, renderKabkota)
		if err != nil {
			return err
		}
		style, err := loadStyle(renderStyle)
		if err != nil {
			return err
		}

		p, err := loadPipeline(cmd.Context(), cfg, renderData, nil)
		if err != nil {
			return err
		}

		st := view.New(view.Options{ResetCancelsDrag: cfg.View.ResetCancelsDrag})
		applyView(st, renderZoom, renderPanX, renderPanY)
		sc := p.Compute(sel)

		out, closeOut, err := openOutput(renderOut)
		if err != nil {
			return err
		}
		defer closeOut()

		if err := svg.Write(out, sc, st.Transform(sc.Size()), style); err != nil {
			return err
		}
		zap.L().Info("rendered map",
			zap.Int("regions", len(sc.Regions)),
			zap.Bool("fallback", sc.Fallback),
			zap.String("out", renderOut),
		)
		return nil
	},
}

func parseSelection(tipe, kabkota string) (region.Selection, error) {
	category, err := region.ParseCategory(tipe)
	if err != nil {
		return region.Selection{}, err
	}
	code, hasCode, err := region.ParseCode(kabkota)
	if err != nil {
		return region.Selection{}, err
	}
	return region.Selection{Category: category, Code: code, HasCode: hasCode}, nil
}

func loadStyle(path string) (svg.Style, error) {
	if path == "" {
		return svg.DefaultStyle(), nil
	}
	return svg.LoadStyle(path)
}

// applyView drives st the way a user would: zoom-in clicks until zoom is
// reached, then one drag by (panX, panY).
func applyView(st *view.State, zoom, panX, panY float64) {
	for st.Zoom() < zoom-1e-9 && st.Zoom() < view.MaxZoom {
		st.ZoomIn()
	}
	if panX != 0 || panY != 0 {
		st.PointerDown(view.Point{})
		st.PointerMove(view.Point{X: panX, Y: panY})
		st.PointerUp()
	}
}

// openOutput returns stdout for "" or "-", else a created file.
func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "create %s", path)
	}
	return f, func() { _ = f.Close() }, nil
}

func init() {
	renderData.register(renderCmd)
	renderCmd.Flags().StringVar(&renderTipe, "tipe", "all", "region category: all, kota, kabupaten")
	renderCmd.Flags().StringVar(&renderKabkota, "kabkota", "", "single region code to draw")
	renderCmd.Flags().Float64Var(&renderZoom, "zoom", 1, "zoom level, reached in 0.2 steps up to 3")
	renderCmd.Flags().Float64Var(&renderPanX, "pan-x", 0, "horizontal pan in viewport units")
	renderCmd.Flags().Float64Var(&renderPanY, "pan-y", 0, "vertical pan in viewport units")
	renderCmd.Flags().StringVar(&renderStyle, "style", "", "YAML style overrides")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "-", "output file, - for stdout")
	rootCmd.AddCommand(renderCmd)
}
