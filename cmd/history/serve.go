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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/xraph/history"
	"github.com/xraph/history/api"
	"github.com/xraph/history/observability"
)

var serveFlags overrides

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the History HTTP server",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Load configuration.
		cfg, err := loadConfig(serveFlags)
		if err != nil {
			return err
		}
		logger := newLogger(cfg.LogLevel)

		// Connect to the store.
		connectCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		st, err := openStore(connectCtx, cfg)
		cancel()
		if err != nil {
			return err
		}

		// Metrics.
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics := observability.NewMetrics(observability.NewPrometheusFactory(reg))

		hcfg := history.DefaultConfig()
		hcfg.PublicURL = cfg.PublicURL
		hcfg.ValidateSignatures = cfg.ValidateSignatures
		hcfg.RelayTimeout = cfg.RelayTimeout
		hcfg.RelayProjectID = cfg.RelayProjectID
		hcfg.DefaultRelayURL = cfg.RelayURL
		hcfg.Cache = cfg.CacheConfig()

		h, err := history.New(
			history.WithStore(st),
			history.WithConfig(hcfg),
			history.WithLogger(logger),
			history.WithMetrics(metrics),
		)
		if err != nil {
			st.Close()
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		h.Start(ctx)

		handler, err := api.NewHandler(h, api.Config{
			Version:          version,
			HistoryRateLimit: cfg.HistoryRateLimit,
		}, logger)
		if err != nil {
			st.Close()
			return err
		}

		httpServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "error", err)
				stop()
			}
		}()

		// Private metrics server.
		var metricsServer *http.Server
		if cfg.PrometheusPort != 0 {
			mux := http.NewServeMux()
			mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
			metricsServer = &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.PrometheusPort),
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				logger.Info("metrics server listening", "addr", metricsServer.Addr)
				if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server error", "error", err)
				}
			}()
		}

		logger.Info("history server started",
			"version", version,
			"store", cfg.StoreBackend,
			"public_url", cfg.PublicURL,
			"validate_signatures", cfg.ValidateSignatures,
		)

		// Wait for SIGINT or SIGTERM.
		<-ctx.Done()
		logger.Info("shutting down")

		// Graceful shutdown.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", "error", err)
			}
		}

		h.Stop(shutdownCtx)
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "error", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&serveFlags.port, "port", 0, "HTTP port (overrides PORT)")
	serveCmd.Flags().StringVar(&serveFlags.backend, "store", "", "store backend (overrides STORE_BACKEND)")
}
