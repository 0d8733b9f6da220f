// Package clean turns raw monthly trip files into pruned files holding only
// the trips that pass the configured quality thresholds.
package clean

import (
	"context"
	"fmt"
	"log/slog"

	"taxitrend/internal/config"
	"taxitrend/internal/domain"
	"taxitrend/internal/store"
)

// Result describes the outcome of cleaning one raw file.
type Result struct {
	RawFile    string
	PrunedFile string
	Period     domain.Period
	Skipped    bool // pruned file already existed
	Read       int  // rows with every required value
	Dropped    int  // rows missing a required value
	Kept       int  // rows passing every filter
}

// Cleaner normalizes, derives and filters raw trip files. Cleaning is
// idempotent per file: an existing pruned file is never regenerated.
type Cleaner struct {
	layout     store.Layout
	thresholds domain.Thresholds
	keywords   store.ColumnKeywords
	log        *slog.Logger
}

// NewCleaner creates a Cleaner reading from layout.RawDir and writing to
// layout.PrunedDir.
func NewCleaner(cfg config.Cleaning, layout store.Layout, log *slog.Logger) *Cleaner {
	return &Cleaner{
		layout:     layout,
		thresholds: cfg.Thresholds(),
		keywords: store.ColumnKeywords{
			Pickup:   cfg.PickupKeyword,
			Dropoff:  cfg.DropoffKeyword,
			Total:    cfg.TotalKeyword,
			Distance: cfg.DistanceKeyword,
		},
		log: log.With("stage", "clean"),
	}
}

// Run cleans every raw file in name order. The first failure aborts the
// batch: a partially cleaned dataset would corrupt the aggregation.
func (c *Cleaner) Run(ctx context.Context) ([]Result, error) {
	names, err := c.layout.ListRawFiles()
	if err != nil {
		return nil, fmt.Errorf("listing raw files: %w", err)
	}

	results := make([]Result, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := c.CleanFile(name)
		if err != nil {
			c.log.Error("cleaning failed", "file", name, "err", err)
			return results, fmt.Errorf("cleaning %s: %w", name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// CleanFile cleans one raw file by name. If the pruned file already exists
// the raw file is not read and the result is marked Skipped.
func (c *Cleaner) CleanFile(name string) (Result, error) {
	res := Result{
		RawFile:    name,
		PrunedFile: c.layout.PrunedPath(name),
	}

	period, err := domain.PeriodFromFilename(name)
	if err != nil {
		return res, &domain.ValidationError{File: name, Reason: err.Error()}
	}
	res.Period = period

	if store.Exists(res.PrunedFile) {
		c.log.Info("skipping existing file", "file", res.PrunedFile)
		res.Skipped = true
		return res, nil
	}

	c.log.Info("processing file", "file", name)

	table, err := store.ReadRawTrips(c.layout.RawPath(name), c.keywords)
	if err != nil {
		return res, err
	}
	res.Read = len(table.Records)
	res.Dropped = table.Dropped

	pruned := Prune(table.Records, c.thresholds, period)
	res.Kept = len(pruned)

	if err := store.WritePruned(res.PrunedFile, pruned); err != nil {
		return res, fmt.Errorf("writing %s: %w", res.PrunedFile, err)
	}

	c.log.Info("pruned data saved",
		"file", res.PrunedFile,
		"read", res.Read,
		"dropped", res.Dropped,
		"kept", res.Kept,
	)
	return res, nil
}

// Prune derives duration and speed for each record and keeps those that
// pass every threshold with a pickup inside period.
func Prune(records []domain.TripRecord, th domain.Thresholds, period domain.Period) []store.PrunedRecord {
	out := make([]store.PrunedRecord, 0, len(records))
	for _, r := range records {
		r.Derive()
		if !th.Accept(r, period) {
			continue
		}
		out = append(out, store.NewPrunedRecord(r))
	}
	return out
}
