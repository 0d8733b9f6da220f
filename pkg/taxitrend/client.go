// Package taxitrend is a Go client for the taxitrend-server HTTP API.
package taxitrend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrRunInProgress is returned by Analyze when the server is already running
// the pipeline.
var ErrRunInProgress = errors.New("analysis already running")

// SummaryRow is one row of a summary view. Averages of empty rolling
// windows are nil.
type SummaryRow struct {
	Date                string   `json:"date"`
	AverageTripDistance *float64 `json:"average_trip_distance"`
	AverageTripDuration *float64 `json:"average_trip_duration"`
}

// Summary is a summary view.
type Summary struct {
	Type  string       `json:"type"`
	Title string       `json:"title"`
	Rows  []SummaryRow `json:"rows"`
}

// Analysis is the outcome of a triggered pipeline run.
type Analysis struct {
	RunID     string `json:"runId"`
	Message   string `json:"message"`
	Cleaned   int    `json:"cleaned"`
	Skipped   int    `json:"skipped"`
	Summaries []struct {
		Type       string `json:"type"`
		File       string `json:"file"`
		FileCount  int    `json:"fileCount"`
		Recomputed bool   `json:"recomputed"`
		Rows       int    `json:"rows"`
	} `json:"summaries"`
}

// APIError is a non-200 answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("taxitrend: status %d: %s", e.StatusCode, e.Message)
}

// Client provides a Go SDK for interacting with the taxitrend-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new taxitrend API client. Analyses run synchronously
// on the server, so the client timeout is generous.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 6 * time.Hour},
	}
}

// Analyze triggers a full pipeline run and waits for it to finish.
func (c *Client) Analyze(ctx context.Context) (*Analysis, error) {
	var out Analysis
	if err := c.get(ctx, "/analysis", &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			return nil, ErrRunInProgress
		}
		return nil, err
	}
	return &out, nil
}

// Summary retrieves a summary view by analysis type, e.g. "monthly_average".
func (c *Client) Summary(ctx context.Context, analysisType string) (*Summary, error) {
	var out Summary
	if err := c.get(ctx, "/api/summary/"+url.PathEscape(analysisType), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
