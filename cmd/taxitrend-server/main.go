// Server: triggers the pipeline over HTTP (GET /analysis), serves the
// summaries as JSON, and reports pipeline health over gRPC.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"taxitrend/internal/api"
	"taxitrend/internal/config"
	"taxitrend/internal/httpapi"
	"taxitrend/internal/metrics"
	"taxitrend/internal/pipeline"
	"taxitrend/internal/store"
	"taxitrend/internal/util"
)

func main() {
	// Optional .env in the working directory.
	_ = godotenv.Load()

	cfgPath := "config/taxitrend.yaml"
	if p := os.Getenv("TAXITREND_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ledger, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening run ledger: %v", err)
	}
	defer ledger.Close()

	m := metrics.New()
	p := pipeline.New(cfg, ledger, logger)
	p.Metrics = m
	health := api.NewHealth()

	httpSrv := httpapi.NewServer(p, ledger, pipeline.LayoutFor(cfg.Storage), cfg.Aggregation, logger)
	httpSrv.MetricsHandler = m.Handler()
	httpSrv.OnRunState = func(running bool) {
		health.SetRunning(running)
		m.SetRunning(running)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := api.NewServer(cfg.Server, httpSrv.Handler(), health, logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
