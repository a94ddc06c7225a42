package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pkh-dashboard/peta/internal/metrics"
	"github.com/pkh-dashboard/peta/internal/scene"
	"github.com/pkh-dashboard/peta/internal/server"
	"github.com/pkh-dashboard/peta/internal/source"
	"github.com/pkh-dashboard/peta/internal/view"
)

var (
	servePort      int
	serveData      dataFlags
	serveStyle     string
	serveSessionTT time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve map scenes, SVG and view sessions over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		style, err := loadStyle(serveStyle)
		if err != nil {
			return err
		}

		mc, err := metrics.New(prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}

		q, err := serveData.query(cfg)
		if err != nil {
			return err
		}
		geo, values, err := serveData.sources(cfg)
		if err != nil {
			return err
		}
		pipeline := scene.NewPipeline(pipelineOptions(cfg, mc))
		loader := source.NewLoader(geo, values, pipeline, q)

		// A failed first load still serves the fallback scene; /api/reload
		// can recover once the backend is up.
		if _, err := loader.Load(ctx, q); err != nil {
			zap.L().Error("initial load failed", zap.Error(err))
		}

		srv := server.New(pipeline, loader, server.Options{
			Style:       style,
			View:        view.Options{ResetCancelsDrag: cfg.View.ResetCancelsDrag},
			CORSOrigins: cfg.Server.CORSOrigins,
			Cache:       scene.NewCache(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTLSecs)*time.Second),
			Metrics:     mc,
			SessionTTL:  serveSessionTT,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveData.register(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveStyle, "style", "", "YAML style overrides for SVG output")
	serveCmd.Flags().DurationVar(&serveSessionTT, "session-ttl", 30*time.Minute, "drop view sessions idle for longer")
	rootCmd.AddCommand(serveCmd)
}
