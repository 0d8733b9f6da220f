// Package tlc downloads monthly trip record files from the TLC trip record
// distribution and fills gaps in the local raw archive.
package tlc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"taxitrend/internal/config"
	"taxitrend/internal/domain"
	"taxitrend/internal/gather"
	"taxitrend/internal/store"
	"taxitrend/internal/util"
)

// Compile-time interface check.
var _ gather.Gatherer = (*Acquirer)(nil)

// statusError is a non-200 answer from the source. It is never retried.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status code %d", e.code)
}

// Acquirer fetches one raw file per period and detects which periods are
// missing on disk.
type Acquirer struct {
	cfg     config.Ingestion
	layout  store.Layout
	ledger  store.RunLog // may be nil
	client  *http.Client
	limiter *rate.Limiter
	policy  util.RetryPolicy
	now     func() time.Time
	log     *slog.Logger
}

// NewAcquirer creates an Acquirer writing raw files under layout.RawDir.
// ledger may be nil.
func NewAcquirer(cfg config.Ingestion, layout store.Layout, ledger store.RunLog, log *slog.Logger) *Acquirer {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Acquirer{
		cfg:     cfg,
		layout:  layout,
		ledger:  ledger,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		policy: util.RetryPolicy{
			MaxAttempts:   cfg.MaxRetries,
			BackoffFactor: cfg.BackoffFactor,
		},
		now: time.Now,
		log: log.With("gatherer", "tlc"),
	}
}

// SetHTTPClient replaces the HTTP client.
func (a *Acquirer) SetHTTPClient(c *http.Client) { a.client = c }

// SetClock replaces the clock used to compute the expected periods.
func (a *Acquirer) SetClock(now func() time.Time) { a.now = now }

// SetSleep replaces the wait between retry attempts.
func (a *Acquirer) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	a.policy.Sleep = sleep
}

// Name returns the gatherer identifier.
func (a *Acquirer) Name() string { return "tlc" }

// URL returns the source URL of a period.
func (a *Acquirer) URL(p domain.Period) string {
	return util.FormatPeriod(a.cfg.SourceURL, p.Year, int(p.Month))
}

// FileName returns the raw file name of a period.
func (a *Acquirer) FileName(p domain.Period) string {
	return util.FormatPeriod(a.cfg.LocalDataName, p.Year, int(p.Month))
}

// Run fills every missing period.
func (a *Acquirer) Run(ctx context.Context) error {
	_, err := a.FillGaps(ctx)
	return err
}

// FillGaps fetches every missing period in chronological order. A failed
// period is logged and recorded in the report; it does not stop the loop.
func (a *Acquirer) FillGaps(ctx context.Context) (gather.Report, error) {
	var report gather.Report

	missing, err := a.MissingPeriods()
	if err != nil {
		return report, err
	}
	report.Missing = missing

	a.log.Info("starting gap fill", "missing", len(missing))

	for _, p := range missing {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if _, err := a.Fetch(ctx, p); err != nil {
			a.log.Error("fetch failed", "period", p.String(), "err", err)
			report.Failed = append(report.Failed, p)
			continue
		}
		report.Fetched = append(report.Fetched, p)
	}

	a.log.Info("gap fill complete",
		"fetched", len(report.Fetched),
		"failed", len(report.Failed),
	)
	return report, nil
}

// MissingPeriods returns the expected periods, from January of the start
// year through the month before now, that have no raw file. The result is
// sorted.
func (a *Acquirer) MissingPeriods() ([]domain.Period, error) {
	existing, err := a.ExistingPeriods()
	if err != nil {
		return nil, err
	}

	var missing []domain.Period
	for _, p := range domain.ExpectedPeriods(a.cfg.StartYear, a.now()) {
		if _, ok := existing[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing, nil
}

// ExistingPeriods returns the periods that have a raw file. Files whose
// names do not carry a valid period are ignored.
func (a *Acquirer) ExistingPeriods() (map[domain.Period]struct{}, error) {
	names, err := a.layout.ListRawFiles()
	if err != nil {
		return nil, fmt.Errorf("listing raw files: %w", err)
	}

	existing := make(map[domain.Period]struct{}, len(names))
	for _, name := range names {
		p, err := domain.PeriodFromFilename(name)
		if err != nil {
			a.log.Debug("ignoring raw file", "file", name, "err", err)
			continue
		}
		existing[p] = struct{}{}
	}
	return existing, nil
}

// Fetch downloads one period and returns the path of the written raw file.
// Transport failures are retried with exponential backoff; a non-200 status
// ends the fetch immediately. Failures are returned as *domain.NetworkError.
func (a *Acquirer) Fetch(ctx context.Context, p domain.Period) (string, error) {
	url := a.URL(p)
	dest := a.layout.RawPath(a.FileName(p))

	var status int
	attempts, err := a.policy.Do(ctx, func(attempt int) error {
		code, err := a.download(ctx, url, dest)
		status = code
		if err == nil {
			return nil
		}
		var se *statusError
		if errors.As(err, &se) {
			return util.Permanent(err)
		}
		a.log.Warn("connection error",
			"period", p.String(),
			"attempt", attempt+1,
			"err", err,
		)
		return err
	})

	rec := store.FetchRecord{
		Period:     p.String(),
		URL:        url,
		StatusCode: status,
		Attempts:   attempts,
		FetchedAt:  a.now(),
	}
	if err != nil {
		rec.Err = err.Error()
	}
	a.record(ctx, rec)

	if err != nil {
		ne := &domain.NetworkError{Period: p, URL: url, Attempts: attempts, Err: err}
		var se *statusError
		if errors.As(err, &se) {
			ne.StatusCode = se.code
		}
		return "", ne
	}

	a.log.Info("file downloaded", "file", filepath.Base(dest), "dir", a.layout.RawDir)
	return dest, nil
}

// download performs one GET and, on HTTP 200, streams the body to dest via a
// temporary file. It returns the status code received, or 0 when no response
// arrived.
func (a *Acquirer) download(ctx context.Context, url, dest string) (int, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return 0, util.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, util.Permanent(err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, &statusError{code: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return resp.StatusCode, util.Permanent(err)
	}

	tmp := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+".part")
	out, err := os.Create(tmp)
	if err != nil {
		return resp.StatusCode, util.Permanent(err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return resp.StatusCode, fmt.Errorf("reading body: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return resp.StatusCode, util.Permanent(err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return resp.StatusCode, util.Permanent(err)
	}
	return resp.StatusCode, nil
}

func (a *Acquirer) record(ctx context.Context, rec store.FetchRecord) {
	if a.ledger == nil {
		return
	}
	if err := a.ledger.RecordFetch(ctx, rec); err != nil {
		a.log.Warn("recording fetch", "period", rec.Period, "err", err)
	}
}
