// Package httpapi serves the pipeline trigger and the summary views over
// HTTP.
package httpapi

import (
	"math"

	"taxitrend/internal/aggregate"
	"taxitrend/internal/domain"
	"taxitrend/internal/pipeline"
	"taxitrend/internal/store"
)

// SummaryRowJSON is one summary row. Averages of empty rolling windows are
// null.
type SummaryRowJSON struct {
	Date                string   `json:"date"`
	AverageTripDistance *float64 `json:"average_trip_distance"`
	AverageTripDuration *float64 `json:"average_trip_duration"`
}

// SummaryJSON is the response of GET /api/summary/{type}.
type SummaryJSON struct {
	Type  string           `json:"type"`
	Title string           `json:"title"`
	Rows  []SummaryRowJSON `json:"rows"`
}

// AggregateJSON reports one aggregation of a run.
type AggregateJSON struct {
	Type       string `json:"type"`
	File       string `json:"file"`
	FileCount  int    `json:"fileCount"`
	Recomputed bool   `json:"recomputed"`
	Rows       int    `json:"rows"`
}

// AnalysisJSON is the response of a successful GET /analysis.
type AnalysisJSON struct {
	RunID     string          `json:"runId"`
	Message   string          `json:"message"`
	Cleaned   int             `json:"cleaned"`
	Skipped   int             `json:"skipped"`
	Summaries []AggregateJSON `json:"summaries"`
}

// StageJSON is one ledger row of GET /api/runs.
type StageJSON struct {
	RunID      string `json:"runId"`
	Stage      string `json:"stage"`
	StartedAt  string `json:"startedAt"`
	FinishedAt string `json:"finishedAt"`
	Error      string `json:"error,omitempty"`
}

// FetchJSON is one recorded download attempt of a period.
type FetchJSON struct {
	Period     string `json:"period"`
	URL        string `json:"url"`
	StatusCode int    `json:"statusCode"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error,omitempty"`
	FetchedAt  string `json:"fetchedAt"`
}

func toSummaryJSON(t domain.AnalysisType, rows []domain.SummaryRecord) SummaryJSON {
	out := SummaryJSON{
		Type:  string(t),
		Title: t.Title(),
		Rows:  make([]SummaryRowJSON, len(rows)),
	}
	for i, r := range rows {
		out.Rows[i] = SummaryRowJSON{
			Date:                r.Date.Format("2006-01-02"),
			AverageTripDistance: finite(r.AverageTripDistance),
			AverageTripDuration: finite(r.AverageTripDuration),
		}
	}
	return out
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func toAnalysisJSON(sum pipeline.Summary) AnalysisJSON {
	out := AnalysisJSON{
		RunID:     sum.RunID,
		Message:   "analysis completed",
		Summaries: make([]AggregateJSON, 0, len(sum.Aggregated)),
	}
	for _, c := range sum.Cleaned {
		if c.Skipped {
			out.Skipped++
		} else {
			out.Cleaned++
		}
	}
	for _, a := range sum.Aggregated {
		out.Summaries = append(out.Summaries, toAggregateJSON(a))
	}
	return out
}

func toAggregateJSON(a aggregate.Result) AggregateJSON {
	return AggregateJSON{
		Type:       string(a.AnalysisType),
		File:       a.SummaryFile,
		FileCount:  a.FileCount,
		Recomputed: a.Recomputed,
		Rows:       a.Rows,
	}
}

func toStageJSON(rec store.StageRecord) StageJSON {
	return StageJSON{
		RunID:      rec.RunID,
		Stage:      rec.Stage,
		StartedAt:  rec.StartedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		FinishedAt: rec.FinishedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		Error:      rec.Err,
	}
}

func toFetchJSON(rec store.FetchRecord) FetchJSON {
	return FetchJSON{
		Period:     rec.Period,
		URL:        rec.URL,
		StatusCode: rec.StatusCode,
		Attempts:   rec.Attempts,
		Error:      rec.Err,
		FetchedAt:  rec.FetchedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}
