// Command screener-server serves the gRPC inspection API and Prometheus
// metrics over the screener database.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"screener/internal/api"
	"screener/internal/config"
	"screener/internal/metrics"
	"screener/internal/pipeline"
	"screener/internal/store"
	"screener/internal/util"
)

func main() {
	cfgPath := config.Path()
	if _, err := os.Stat(cfgPath); errors.Is(err, fs.ErrNotExist) && os.Getenv("SCREENER_CONFIG") == "" {
		cfgPath = ""
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := store.Open(ctx, pipeline.StoreOptions(cfg, true))
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer s.Close()

	metricsServer := metrics.Serve(cfg.MetricsAddr())
	logger.Info("metrics listening", "addr", cfg.MetricsAddr())

	srv := api.NewServer(cfg.GRPCAddr(), api.NewService(s, logger), logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("grpc server error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown error", "err", err)
	}
}
