package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pkh-dashboard/peta/internal/region"
	"github.com/pkh-dashboard/peta/internal/source"
)

var (
	regionsData dataFlags
	regionsTipe string
)

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List the kabupaten/kota in the geometry source",
	RunE: func(cmd *cobra.Command, _ []string) error {
		category, err := region.ParseCategory(regionsTipe)
		if err != nil {
			return err
		}

		api := func() (*source.APIClient, error) { return newAPIClient(cfg) }
		geo, err := regionsData.geometrySource(cfg, api)
		if err != nil {
			return err
		}
		regions, err := geo.Regions(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "regions")
		}

		regions = region.Filter(regions, region.Selection{Category: category})
		if len(regions) == 0 {
			fmt.Fprintln(os.Stderr, "No regions found.")
			return nil
		}
		formatRegions(os.Stdout, regions)
		return nil
	},
}

func formatRegions(out io.Writer, regions region.Collection) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tNAME\tCATEGORY\tLABEL")
	for _, r := range regions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.Code, r.Name, r.Category, region.Label(r.Name))
	}
	_ = w.Flush()
}

func init() {
	regionsCmd.Flags().StringVar(&regionsData.geojson, "geojson", "", "GeoJSON or .shp file with region outlines (default: backend API)")
	regionsCmd.Flags().StringVar(&regionsTipe, "tipe", "all", "region category: all, kota, kabupaten")
	rootCmd.AddCommand(regionsCmd)
}
