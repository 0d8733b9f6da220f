// Package aggregate builds the summary views from pruned trip files and
// caches them until the set of pruned files grows.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"taxitrend/internal/config"
	"taxitrend/internal/domain"
	"taxitrend/internal/export"
	"taxitrend/internal/store"
)

// Result describes one aggregation run.
type Result struct {
	AnalysisType domain.AnalysisType
	SummaryFile  string
	FileCount    int  // pruned files seen by this run
	Recomputed   bool // false when the cached summary was reused
	Rows         int  // rows written; zero when not recomputed
}

// Aggregator computes summary views. Each analysis type maps to exactly one
// Strategy.
type Aggregator struct {
	cfg        config.Aggregation
	layout     store.Layout
	strategies map[domain.AnalysisType]Strategy
	log        *slog.Logger
}

// NewAggregator creates an Aggregator with the monthly and rolling
// strategies registered.
func NewAggregator(cfg config.Aggregation, layout store.Layout, log *slog.Logger) *Aggregator {
	return &Aggregator{
		cfg:    cfg,
		layout: layout,
		strategies: map[domain.AnalysisType]Strategy{
			domain.MonthlyAverage: Monthly{},
			domain.RollingAverage: Rolling{Days: cfg.RollingDays},
		},
		log: log.With("stage", "aggregate"),
	}
}

// Run produces the summary for t. The cached summary is reused when it
// exists and the number of pruned files has not grown past the count
// recorded at the last computation; otherwise every pruned file is read,
// the summary is rewritten and the recorded count is updated.
func (a *Aggregator) Run(ctx context.Context, t domain.AnalysisType) (Result, error) {
	strategy, ok := a.strategies[t]
	if !ok {
		return Result{}, fmt.Errorf("unknown analysis type %q", t)
	}

	res := Result{
		AnalysisType: t,
		SummaryFile:  a.layout.SummaryPath(a.cfg.SummaryFileName(t)),
	}

	names, err := a.layout.ListPrunedFiles()
	if err != nil {
		return res, fmt.Errorf("listing pruned files: %w", err)
	}
	res.FileCount = len(names)

	sentinelPath := a.layout.SentinelPath(t)
	sentinel, err := store.LoadSentinel(sentinelPath)
	if err != nil {
		a.log.Warn("ignoring unreadable sentinel", "path", sentinelPath, "err", err)
	}

	if !a.stale(res.SummaryFile, len(names), sentinel.FileCount) {
		a.log.Info("summary is fresh",
			"type", t,
			"file", res.SummaryFile,
			"files", len(names),
		)
		return res, nil
	}

	a.log.Info("computing summary", "type", t, "files", len(names), "recorded", sentinel.FileCount)

	files, err := a.load(ctx, names)
	if err != nil {
		return res, err
	}

	rows := strategy.Summarize(files)
	if err := store.WriteSummary(res.SummaryFile, rows); err != nil {
		return res, fmt.Errorf("writing %s: %w", res.SummaryFile, err)
	}
	res.Recomputed = true
	res.Rows = len(rows)

	if a.cfg.ExportCSV {
		csvPath := a.csvPath(res.SummaryFile)
		if err := export.WriteSummaryFile(csvPath, rows); err != nil {
			return res, fmt.Errorf("exporting %s: %w", csvPath, err)
		}
	}
	if a.cfg.ExportXLSX {
		xlsxPath := a.xlsxPath(res.SummaryFile)
		if err := export.WriteSummaryXLSX(xlsxPath, t.Title(), rows); err != nil {
			return res, fmt.Errorf("exporting %s: %w", xlsxPath, err)
		}
	}

	if err := store.SaveSentinel(sentinelPath, store.Sentinel{FileCount: len(names)}); err != nil {
		return res, fmt.Errorf("saving sentinel %s: %w", sentinelPath, err)
	}

	a.log.Info("summary saved", "type", t, "file", res.SummaryFile, "rows", len(rows))
	return res, nil
}

// stale reports whether the summary at path must be recomputed. A missing
// summary or enabled export counts as stale.
func (a *Aggregator) stale(path string, live, recorded int) bool {
	if !store.Exists(path) || live > recorded {
		return true
	}
	if a.cfg.ExportCSV && !store.Exists(a.csvPath(path)) {
		return true
	}
	return a.cfg.ExportXLSX && !store.Exists(a.xlsxPath(path))
}

func (a *Aggregator) csvPath(summaryFile string) string {
	return filepath.Join(a.layout.SummaryDir, export.CSVName(filepath.Base(summaryFile)))
}

func (a *Aggregator) xlsxPath(summaryFile string) string {
	return filepath.Join(a.layout.SummaryDir, export.XLSXName(filepath.Base(summaryFile)))
}

// load reads the named pruned files in chronological order.
func (a *Aggregator) load(ctx context.Context, names []string) ([]PrunedFile, error) {
	files := make([]PrunedFile, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		period, err := domain.PeriodFromFilename(name)
		if err != nil {
			return nil, &domain.ValidationError{File: name, Reason: err.Error()}
		}
		records, err := store.ReadPruned(filepath.Join(a.layout.PrunedDir, name))
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			a.log.Warn("pruned file has no trips", "file", name)
		}
		files = append(files, PrunedFile{Name: name, Period: period, Records: records})
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Period.Before(files[j].Period)
	})
	return files, nil
}
