// Package pipeline runs acquisition, cleaning and aggregation in order.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"taxitrend/internal/aggregate"
	"taxitrend/internal/clean"
	"taxitrend/internal/config"
	"taxitrend/internal/domain"
	"taxitrend/internal/gather"
	"taxitrend/internal/gather/tlc"
	"taxitrend/internal/metrics"
	"taxitrend/internal/store"
)

// Stage names as recorded in the run ledger.
const (
	StageAcquire   = "acquire"
	StageClean     = "clean"
	StageAggregate = "aggregate"
)

// Summary is the outcome of one full run.
type Summary struct {
	RunID      string
	Acquired   gather.Report // empty unless the gatherer reports per period
	Cleaned    []clean.Result
	Aggregated []aggregate.Result
}

// Pipeline wires the three stages together. The stages run sequentially;
// a Pipeline must not be run concurrently with itself.
type Pipeline struct {
	Gatherer   gather.Gatherer
	Cleaner    *clean.Cleaner
	Aggregator *aggregate.Aggregator
	Metrics    *metrics.Metrics // may be nil

	layout store.Layout
	ledger store.RunLog // may be nil
	log    *slog.Logger
}

// LayoutFor returns the storage layout described by cfg.
func LayoutFor(cfg config.Storage) store.Layout {
	return store.Layout{
		RawDir:     cfg.RawDir,
		PrunedDir:  cfg.PrunedDir,
		SummaryDir: cfg.SummaryDir,
	}
}

// New builds a pipeline from cfg. ledger may be nil.
func New(cfg *config.Config, ledger store.RunLog, log *slog.Logger) *Pipeline {
	layout := LayoutFor(cfg.Storage)
	return &Pipeline{
		Gatherer:   tlc.NewAcquirer(cfg.Ingestion, layout, ledger, log),
		Cleaner:    clean.NewCleaner(cfg.Cleaning, layout, log),
		Aggregator: aggregate.NewAggregator(cfg.Aggregation, layout, log),
		layout:     layout,
		ledger:     ledger,
		log:        log,
	}
}

// Run executes acquisition, cleaning and every aggregation. Per-period
// download failures are absorbed by the acquisition stage; any other stage
// failure stops the run and is returned as a *domain.StageError.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	log := p.log.With("run", sum.RunID)

	if err := p.layout.EnsureDirs(); err != nil {
		return sum, &domain.StageError{Stage: StageAcquire, Err: err}
	}

	err := p.stage(ctx, log, sum.RunID, StageAcquire, func(ctx context.Context) error {
		if r, ok := p.Gatherer.(reporter); ok {
			var err error
			sum.Acquired, err = r.FillGaps(ctx)
			p.Metrics.ObserveFetches(len(sum.Acquired.Fetched), len(sum.Acquired.Failed))
			return err
		}
		return p.Gatherer.Run(ctx)
	})
	if err != nil {
		return sum, err
	}

	err = p.stage(ctx, log, sum.RunID, StageClean, func(ctx context.Context) error {
		var err error
		sum.Cleaned, err = p.Cleaner.Run(ctx)
		for _, r := range sum.Cleaned {
			p.Metrics.ObserveFile(r.Skipped, r.Kept)
		}
		return err
	})
	if err != nil {
		return sum, err
	}

	err = p.stage(ctx, log, sum.RunID, StageAggregate, func(ctx context.Context) error {
		for _, t := range domain.AnalysisTypes() {
			res, err := p.Aggregator.Run(ctx, t)
			if err != nil {
				return err
			}
			sum.Aggregated = append(sum.Aggregated, res)
			p.Metrics.ObserveSummary(string(t), res.Recomputed)
		}
		return nil
	})
	return sum, err
}

// reporter is implemented by gatherers that report per-period outcomes.
type reporter interface {
	FillGaps(ctx context.Context) (gather.Report, error)
}

func (p *Pipeline) stage(ctx context.Context, log *slog.Logger, runID, name string, fn func(context.Context) error) error {
	log.Info(">>> stage "+name+" started", "stage", name)
	started := time.Now()

	err := fn(ctx)

	rec := store.StageRecord{
		RunID:      runID,
		Stage:      name,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if err != nil {
		rec.Err = err.Error()
	}
	p.Metrics.ObserveStage(name, rec.FinishedAt.Sub(started), err)
	if p.ledger != nil {
		if lerr := p.ledger.RecordStage(ctx, rec); lerr != nil {
			log.Warn("recording stage", "stage", name, "err", lerr)
		}
	}

	if err != nil {
		log.Error(">>> stage "+name+" failed", "stage", name, "err", err)
		return &domain.StageError{Stage: name, Err: err}
	}
	log.Info(">>> stage "+name+" completed", "stage", name, "elapsed", rec.FinishedAt.Sub(started).String())
	return nil
}
