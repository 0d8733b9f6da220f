package tlc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"taxitrend/internal/config"
	"taxitrend/internal/domain"
	"taxitrend/internal/store"
	"taxitrend/internal/util"
)

type fakeLedger struct {
	mu      sync.Mutex
	fetches []store.FetchRecord
}

func (f *fakeLedger) RecordFetch(_ context.Context, rec store.FetchRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, rec)
	return nil
}

func (f *fakeLedger) RecordStage(context.Context, store.StageRecord) error { return nil }

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestAcquirer(t *testing.T, sourceURL string, ledger store.RunLog) (*Acquirer, *[]time.Duration) {
	t.Helper()
	cfg := config.Ingestion{
		SourceURL:     sourceURL,
		LocalDataName: "yellow_tripdata_{:04d}-{:02d}.parquet",
		StartYear:     2009,
		MaxRetries:    3,
		BackoffFactor: 300 * time.Millisecond,
		Timeout:       5 * time.Second,
	}
	layout := store.Layout{RawDir: t.TempDir()}
	a := NewAcquirer(cfg, layout, ledger, util.Discard())

	var slept []time.Duration
	a.SetSleep(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})
	a.SetClock(func() time.Time { return time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC) })
	return a, &slept
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestURLConstruction(t *testing.T) {
	a, _ := newTestAcquirer(t, "http://api.example.com/{:04d}-{:02d}.parquet", nil)
	p := domain.Period{Year: 2018, Month: time.February}

	if got := a.URL(p); got != "http://api.example.com/2018-02.parquet" {
		t.Errorf("URL = %q", got)
	}
	if got := a.FileName(p); got != "yellow_tripdata_2018-02.parquet" {
		t.Errorf("FileName = %q", got)
	}
}

func TestFetchSuccess(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("PAR1 body"))
	}))
	defer srv.Close()

	ledger := &fakeLedger{}
	a, slept := newTestAcquirer(t, srv.URL+"/{:04d}-{:02d}.parquet", ledger)

	path, err := a.Fetch(context.Background(), domain.Period{Year: 2018, Month: time.February})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotPath != "/2018-02.parquet" {
		t.Errorf("requested path = %q", gotPath)
	}
	if filepath.Base(path) != "yellow_tripdata_2018-02.parquet" {
		t.Errorf("written path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "PAR1 body" {
		t.Errorf("file contents = %q, %v", data, err)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v on success", *slept)
	}
	if len(ledger.fetches) != 1 || ledger.fetches[0].StatusCode != 200 || ledger.fetches[0].Attempts != 1 {
		t.Errorf("ledger = %+v", ledger.fetches)
	}
}

func TestFetchNon200IsTerminal(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.NotFound(w, r)
	}))
	defer srv.Close()

	a, slept := newTestAcquirer(t, srv.URL+"/{:04d}-{:02d}.parquet", nil)
	_, err := a.Fetch(context.Background(), domain.Period{Year: 2018, Month: time.February})

	var ne *domain.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want NetworkError", err)
	}
	if ne.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", ne.StatusCode)
	}
	if calls != 1 {
		t.Errorf("server called %d times, want 1 (no retry on status)", calls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v, want none", *slept)
	}
	names, _ := a.layout.ListRawFiles()
	if len(names) != 0 {
		t.Errorf("raw files = %v, want none", names)
	}
}

func TestFetchRetriesConnectionErrors(t *testing.T) {
	calls := 0
	a, slept := newTestAcquirer(t, "http://source.invalid/{:04d}-{:02d}.parquet", nil)
	a.SetHTTPClient(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection reset by peer")
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       http.NoBody,
			Request:    r,
		}, nil
	})})

	if _, err := a.Fetch(context.Background(), domain.Period{Year: 2020, Month: time.March}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if calls != 3 {
		t.Errorf("transport called %d times, want 3", calls)
	}
	want := []time.Duration{300 * time.Millisecond, 600 * time.Millisecond}
	if len(*slept) != 2 || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Errorf("slept = %v, want %v", *slept, want)
	}
}

func TestFetchNoResponse(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	a, slept := newTestAcquirer(t, url+"/{:04d}-{:02d}.parquet", nil)
	_, err := a.Fetch(context.Background(), domain.Period{Year: 2020, Month: time.March})

	var ne *domain.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want NetworkError", err)
	}
	if ne.StatusCode != 0 || ne.Attempts != 3 {
		t.Errorf("NetworkError = %+v, want status 0 after 3 attempts", ne)
	}
	if len(*slept) != 2 {
		t.Errorf("slept %d times, want 2", len(*slept))
	}
}

func TestMissingPeriods(t *testing.T) {
	a, _ := newTestAcquirer(t, "http://x/{:04d}-{:02d}", nil)
	touch(t, a.layout.RawDir, "example_data_2007-01.parquet", "README.md", "broken_2010-13.parquet")

	missing, err := a.MissingPeriods()
	if err != nil {
		t.Fatalf("MissingPeriods: %v", err)
	}
	if len(missing) != 180 {
		t.Errorf("len(missing) = %d, want 180", len(missing))
	}

	touch(t, a.layout.RawDir, "yellow_tripdata_2010-03.parquet")
	missing, err = a.MissingPeriods()
	if err != nil {
		t.Fatalf("MissingPeriods: %v", err)
	}
	if len(missing) != 179 {
		t.Errorf("len(missing) = %d, want 179", len(missing))
	}
	for _, p := range missing {
		if p == (domain.Period{Year: 2010, Month: time.March}) {
			t.Error("2010-03 exists on disk and must not be missing")
		}
	}
}

func TestFillGapsContinuesPastFailures(t *testing.T) {
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Path)
		if strings.Contains(r.URL.Path, "2023-01") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	ledger := &fakeLedger{}
	a, _ := newTestAcquirer(t, srv.URL+"/{:04d}-{:02d}.parquet", ledger)
	a.cfg.StartYear = 2023
	a.SetClock(func() time.Time { return time.Date(2023, 4, 10, 0, 0, 0, 0, time.UTC) })
	touch(t, a.layout.RawDir, "yellow_tripdata_2023-02.parquet")

	report, err := a.FillGaps(context.Background())
	if err != nil {
		t.Fatalf("FillGaps: %v", err)
	}
	if len(report.Missing) != 2 {
		t.Errorf("Missing = %v, want [2023-01 2023-03]", report.Missing)
	}
	if len(report.Failed) != 1 || report.Failed[0].String() != "2023-01" {
		t.Errorf("Failed = %v", report.Failed)
	}
	if len(report.Fetched) != 1 || report.Fetched[0].String() != "2023-03" {
		t.Errorf("Fetched = %v", report.Fetched)
	}
	if len(requested) != 2 {
		t.Errorf("requested = %v", requested)
	}
	if len(ledger.fetches) != 2 || ledger.fetches[0].Err == "" {
		t.Errorf("ledger = %+v", ledger.fetches)
	}

	// A second pass finds only the failed period.
	missing, _ := a.MissingPeriods()
	if len(missing) != 1 || missing[0].String() != "2023-01" {
		t.Errorf("missing after fill = %v", missing)
	}
}

func TestFillGapsCancelled(t *testing.T) {
	a, _ := newTestAcquirer(t, "http://x/{:04d}-{:02d}", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.FillGaps(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRequestRateLimit(t *testing.T) {
	cfg := config.Ingestion{MaxRetries: 1}
	a := NewAcquirer(cfg, store.Layout{RawDir: t.TempDir()}, nil, util.Discard())
	if a.limiter.Limit() != rate.Inf {
		t.Errorf("limit = %v, want unlimited", a.limiter.Limit())
	}

	cfg.RequestsPerSecond = 2
	a = NewAcquirer(cfg, store.Layout{RawDir: t.TempDir()}, nil, util.Discard())
	if a.limiter.Limit() != 2 {
		t.Errorf("limit = %v, want 2", a.limiter.Limit())
	}

	// A cancelled context fails before any request is sent.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.SetHTTPClient(&http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		t.Error("request sent with a cancelled context")
		return nil, errors.New("unreachable")
	})})
	if _, err := a.Fetch(ctx, domain.Period{Year: 2018, Month: time.February}); err == nil {
		t.Fatal("Fetch should fail")
	}
}
