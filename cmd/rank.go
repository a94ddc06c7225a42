package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pkh-dashboard/peta/internal/classify"
	"github.com/pkh-dashboard/peta/internal/scene"
	"github.com/pkh-dashboard/peta/internal/source"
)

var (
	rankData dataFlags
	rankN    int
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Show the highest and lowest regions for an indicator",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if rankN < 1 {
			return eris.New("rank: -n must be at least 1")
		}
		q, err := rankData.query(cfg)
		if err != nil {
			return err
		}
		values, err := rankData.valueSource(func() (*source.APIClient, error) { return newAPIClient(cfg) })
		if err != nil {
			return err
		}
		rows, err := values.Values(cmd.Context(), q)
		if err != nil {
			return eris.Wrap(err, "rank")
		}
		if len(rows) == 0 {
			fmt.Fprintln(os.Stderr, "No values found.")
			return nil
		}

		formatRank(os.Stdout, "TOP", scene.TopN(rows, rankN))
		fmt.Fprintln(os.Stdout)
		formatRank(os.Stdout, "BOTTOM", scene.BottomN(rows, rankN))
		return nil
	},
}

func formatRank(out io.Writer, title string, rows []classify.ValueRow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tCODE\tNAME\tVALUE\n", title)
	for i, r := range rows {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", i+1, r.Code, r.Name, formatValue(r.Value))
	}
	_ = w.Flush()
}

// formatValue prints finite values without trailing zeros and others as "-".
func formatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func init() {
	rankCmd.Flags().StringVar(&rankData.values, "values", "", "CSV or XLSX file with kode_kabupaten_kota,value columns (default: backend API)")
	rankCmd.Flags().StringVar(&rankData.sheet, "sheet", "", "XLSX sheet name (default: first sheet)")
	rankCmd.Flags().IntVar(&rankData.year, "year", 0, "indicator year (default from config)")
	rankCmd.Flags().StringVar(&rankData.metric, "metric", "", "indicator metric (default from config)")
	rankCmd.Flags().IntVarP(&rankN, "count", "n", 10, "rows in each list")
	rootCmd.AddCommand(rankCmd)
}
