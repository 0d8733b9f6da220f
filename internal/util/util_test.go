package util

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	busy := errors.New("database is locked")
	tests := []struct {
		name         string
		failures     int
		permanent    bool
		wantAttempts int
		wantErr      bool
	}{
		{"succeeds after transient errors", 2, false, 3, false},
		{"gives up after max attempts", 10, false, 3, true},
		{"stops on permanent error", 10, true, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Retry(context.Background(), 3, 0, func() error {
				attempts++
				if attempts > tt.failures {
					return nil
				}
				if tt.permanent {
					return Permanent(busy)
				}
				return busy
			})

			if (err != nil) != tt.wantErr {
				t.Fatalf("Retry error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, busy) {
				t.Errorf("Retry error = %v, want %v", err, busy)
			}
			if attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", attempts, tt.wantAttempts)
			}
		})
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, BackoffFactor: 300 * time.Millisecond}
	want := []time.Duration{300 * time.Millisecond, 600 * time.Millisecond, 1200 * time.Millisecond}
	for i, w := range want {
		if got := p.Backoff(i); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i, got, w)
		}
	}
}

func TestRetryPolicySleepsBetweenAttempts(t *testing.T) {
	var slept []time.Duration
	p := RetryPolicy{
		MaxAttempts:   3,
		BackoffFactor: 100 * time.Millisecond,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}

	n, err := p.Do(context.Background(), func(int) error { return errors.New("refused") })
	if err == nil {
		t.Fatal("Do should fail")
	}
	if n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
	if len(slept) != 2 || slept[0] != 100*time.Millisecond || slept[1] != 200*time.Millisecond {
		t.Errorf("slept = %v, want [100ms 200ms]", slept)
	}
}

func TestRetryPolicyPermanent(t *testing.T) {
	cause := errors.New("status 404")
	calls := 0
	p := RetryPolicy{MaxAttempts: 5}

	n, err := p.Do(context.Background(), func(int) error {
		calls++
		return Permanent(cause)
	})
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want %v", err, cause)
	}
	if n != 1 || calls != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1/1", n, calls)
	}
}

func TestRetryPolicyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := RetryPolicy{MaxAttempts: 3, BackoffFactor: time.Hour}
	_, err := p.Do(ctx, func(int) error { return errors.New("refused") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFormatPeriod(t *testing.T) {
	got := FormatPeriod("http://api.example.com/{:04d}-{:02d}.parquet", 2018, 2)
	if got != "http://api.example.com/2018-02.parquet" {
		t.Errorf("FormatPeriod = %q", got)
	}
	if got := FormatPeriod("yellow_tripdata_{:04d}-{:02d}.parquet", 2009, 11); got != "yellow_tripdata_2009-11.parquet" {
		t.Errorf("FormatPeriod = %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")
	logger.Info("dropped")
	logger.Warn("kept", "stage", "acquire")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, `"stage":"acquire"`) {
		t.Errorf("json output missing attribute: %s", out)
	}

	buf.Reset()
	newLogger(&buf, "bogus", "text").Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text handler output = %q", buf.String())
	}
}
