// Package store owns the on-disk layout of the pipeline: raw monthly files,
// pruned files, summary files, staleness sentinels, and the SQLite run
// ledger.
package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"taxitrend/internal/domain"
)

// PrunedPrefix is prepended to a raw file name to form its pruned file name.
const PrunedPrefix = "pruned-"

// RunLog records the outcome of fetches and pipeline stages.
type RunLog interface {
	// RecordFetch persists the outcome of one period download.
	RecordFetch(ctx context.Context, rec FetchRecord) error

	// RecordStage persists the outcome of one pipeline stage.
	RecordStage(ctx context.Context, rec StageRecord) error
}

// FetchRecord is the ledger row for one period download.
type FetchRecord struct {
	Period     string
	URL        string
	StatusCode int
	Attempts   int
	Err        string
	FetchedAt  time.Time
}

// StageRecord is the ledger row for one pipeline stage run.
type StageRecord struct {
	RunID      string
	Stage      string
	StartedAt  time.Time
	FinishedAt time.Time
	Err        string
}

// ---------------------------------------------------------------------------
// Layout
// ---------------------------------------------------------------------------

// Layout resolves file paths for each pipeline stage.
type Layout struct {
	RawDir     string
	PrunedDir  string
	SummaryDir string
}

// RawPath returns the path of a raw file.
func (l Layout) RawPath(name string) string {
	return filepath.Join(l.RawDir, name)
}

// PrunedPath returns the path of the pruned file derived from a raw file.
func (l Layout) PrunedPath(rawName string) string {
	return filepath.Join(l.PrunedDir, PrunedPrefix+rawName)
}

// SummaryPath returns the path of a summary file.
func (l Layout) SummaryPath(fileName string) string {
	return filepath.Join(l.SummaryDir, fileName)
}

// SentinelPath returns the path of the staleness sentinel for an analysis
// type.
func (l Layout) SentinelPath(t domain.AnalysisType) string {
	return filepath.Join(l.SummaryDir, string(t)+"_file_count.yaml")
}

// EnsureDirs creates every configured stage directory.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{l.RawDir, l.PrunedDir, l.SummaryDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// ListRawFiles returns the sorted names of the raw files.
func (l Layout) ListRawFiles() ([]string, error) {
	return listFiles(l.RawDir, "")
}

// ListPrunedFiles returns the sorted names of the pruned files.
func (l Layout) ListPrunedFiles() ([]string, error) {
	return listFiles(l.PrunedDir, PrunedPrefix)
}

// listFiles returns sorted names of the regular, non-hidden files in dir
// that start with prefix. A missing directory yields no files.
func listFiles(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasPrefix(name, prefix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
