package taxitrend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080/")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("expected trailing slash trimmed, got %q", c.baseURL)
	}
}

func TestSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/summary/monthly_average" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"type":"monthly_average","title":"Monthly Average","rows":[` +
			`{"date":"2009-04-01","average_trip_distance":6.5,"average_trip_duration":150},` +
			`{"date":"2009-05-01","average_trip_distance":null,"average_trip_duration":null}]}`))
	}))
	defer srv.Close()

	s, err := NewClient(srv.URL).Summary(context.Background(), "monthly_average")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(s.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(s.Rows))
	}
	if s.Rows[0].AverageTripDistance == nil || *s.Rows[0].AverageTripDistance != 6.5 {
		t.Errorf("unexpected first row %+v", s.Rows[0])
	}
	if s.Rows[1].AverageTripDuration != nil {
		t.Errorf("expected null duration, got %v", *s.Rows[1].AverageTripDuration)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusConflict)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
		w.Write([]byte(`{"error":"stage clean failed: boom"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Analyze(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}

	status.Store(http.StatusInternalServerError)
	_, err := c.Analyze(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != 500 || apiErr.Message != "stage clean failed: boom" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}
