// One-shot tool: fill missing monthly trip files, clean them, and rebuild
// stale summaries.
//
// Usage:
//
//	go build -o bin/taxitrend ./cmd/taxitrend/
//	bin/taxitrend [-stage all|acquire|clean|aggregate] [-type monthly_average|rolling_average]
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"taxitrend/internal/config"
	"taxitrend/internal/domain"
	"taxitrend/internal/pipeline"
	"taxitrend/internal/store"
	"taxitrend/internal/util"
)

func main() {
	stage := flag.String("stage", "all", "stage to run: all, acquire, clean or aggregate")
	analysis := flag.String("type", "", "analysis type for -stage aggregate (default: both)")
	flag.Parse()

	// Optional .env in the working directory.
	_ = godotenv.Load()

	cfgPath := "config/taxitrend.yaml"
	if p := os.Getenv("TAXITREND_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ledger, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening run ledger: %v", err)
	}
	defer ledger.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p := pipeline.New(cfg, ledger, logger)
	if err := pipeline.LayoutFor(cfg.Storage).EnsureDirs(); err != nil {
		log.Fatalf("creating data directories: %v", err)
	}

	switch *stage {
	case "all":
		sum, err := p.Run(ctx)
		if err != nil {
			log.Fatalf("pipeline failed: %v", err)
		}
		for _, a := range sum.Aggregated {
			slog.Info("summary ready", "type", a.AnalysisType, "file", a.SummaryFile, "recomputed", a.Recomputed)
		}
	case "acquire":
		if err := p.Gatherer.Run(ctx); err != nil {
			log.Fatalf("acquisition failed: %v", err)
		}
	case "clean":
		results, err := p.Cleaner.Run(ctx)
		if err != nil {
			log.Fatalf("cleaning failed: %v", err)
		}
		slog.Info("cleaning complete", "files", len(results))
	case "aggregate":
		types := domain.AnalysisTypes()
		if *analysis != "" {
			t, err := domain.ParseAnalysisType(*analysis)
			if err != nil {
				log.Fatal(err)
			}
			types = []domain.AnalysisType{t}
		}
		for _, t := range types {
			res, err := p.Aggregator.Run(ctx, t)
			if err != nil {
				log.Fatalf("%s failed: %v", t.Title(), err)
			}
			slog.Info("summary ready", "type", t, "file", res.SummaryFile, "recomputed", res.Recomputed)
		}
	default:
		log.Fatalf("unknown stage %q", *stage)
	}
}
