package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pkh-dashboard/peta/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "peta",
	Short: "Choropleth maps of Jawa Barat kabupaten/kota indicators",
	Long:  "Fits a projection to kabupaten/kota outlines, colours them by indicator quantile, and serves or writes the map as JSON, SVG or XLSX.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
