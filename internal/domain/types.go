// Package domain defines the core types shared across the taxitrend
// pipeline: acquisition periods, trip records, summary rows, and the error
// taxonomy of the pipeline stages.
package domain

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Period
// ---------------------------------------------------------------------------

// Period is a single year-month unit of data acquisition. Periods are
// totally ordered chronologically.
type Period struct {
	Year  int
	Month time.Month
}

// NewPeriod returns the period containing t.
func NewPeriod(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod parses a "YYYY-MM" token.
func ParsePeriod(s string) (Period, error) {
	year, month, ok := strings.Cut(s, "-")
	if !ok || len(year) != 4 || len(month) != 2 {
		return Period{}, fmt.Errorf("period %q: want YYYY-MM", s)
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return Period{}, fmt.Errorf("period %q: %w", s, err)
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return Period{}, fmt.Errorf("period %q: %w", s, err)
	}
	if m < 1 || m > 12 {
		return Period{}, fmt.Errorf("period %q: month out of range", s)
	}
	return Period{Year: y, Month: time.Month(m)}, nil
}

// PeriodFromFilename extracts the period from a name of the form
// <prefix>_<YYYY>-<MM>.<ext>. The token after the last underscore, with the
// extension removed, must parse as YYYY-MM.
func PeriodFromFilename(name string) (Period, error) {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	idx := strings.LastIndex(base, "_")
	if idx < 0 {
		return Period{}, fmt.Errorf("file %q: no period token", name)
	}
	return ParsePeriod(base[idx+1:])
}

// String formats the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Start returns midnight UTC on the first day of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the exclusive upper bound of the period, the start of the next
// month.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Contains reports whether t falls in [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start()) && t.Before(p.End())
}

// Before reports whether p is chronologically earlier than o.
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// Next returns the following period.
func (p Period) Next() Period {
	return NewPeriod(p.Start().AddDate(0, 1, 0))
}

// ExpectedPeriods returns every period from January of startYear up to, but
// excluding, the calendar month containing now. The result is sorted.
func ExpectedPeriods(startYear int, now time.Time) []Period {
	current := NewPeriod(now)
	var periods []Period
	for p := (Period{Year: startYear, Month: time.January}); p.Before(current); p = p.Next() {
		periods = append(periods, p)
	}
	return periods
}

// ---------------------------------------------------------------------------
// Trip records
// ---------------------------------------------------------------------------

// TripRecord is one normalized trip row. TripDuration (seconds) and Speed
// (miles per hour) are derived by Derive.
type TripRecord struct {
	PickupDatetime  time.Time
	DropoffDatetime time.Time
	TripDistance    float64
	TotalAmount     float64
	TripDuration    float64
	Speed           float64
}

// Derive computes TripDuration and Speed. A zero duration yields an infinite
// (or NaN, for a zero distance) speed, which the speed filter then rejects.
func (r *TripRecord) Derive() {
	r.TripDuration = r.DropoffDatetime.Sub(r.PickupDatetime).Seconds()
	r.Speed = r.TripDistance / (r.TripDuration / 3600)
}

// Date returns the calendar day of the pickup as midnight UTC.
func (r *TripRecord) Date() time.Time {
	return Day(r.PickupDatetime)
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Thresholds are the five numeric quality bounds applied by the cleaner.
// All comparisons are strict.
type Thresholds struct {
	LowestSpeed          float64
	HighestSpeed         float64
	ShortestTripDistance float64
	ShortestTripDuration float64
	LeastCost            float64
}

// Accept reports whether a derived record passes every threshold and its
// pickup falls inside period. NaN values never pass.
func (th Thresholds) Accept(r TripRecord, period Period) bool {
	if math.IsNaN(r.Speed) || math.IsNaN(r.TripDuration) {
		return false
	}
	return th.LowestSpeed < r.Speed && r.Speed < th.HighestSpeed &&
		r.TripDistance > th.ShortestTripDistance &&
		r.TripDuration > th.ShortestTripDuration &&
		r.TotalAmount > th.LeastCost &&
		period.Contains(r.PickupDatetime)
}

// ---------------------------------------------------------------------------
// Summaries
// ---------------------------------------------------------------------------

// AnalysisType names one of the two summary views.
type AnalysisType string

const (
	MonthlyAverage AnalysisType = "monthly_average"
	RollingAverage AnalysisType = "rolling_average"
)

// AnalysisTypes returns the supported analysis types in pipeline order.
func AnalysisTypes() []AnalysisType {
	return []AnalysisType{RollingAverage, MonthlyAverage}
}

// ParseAnalysisType validates s against the closed set of analysis types.
func ParseAnalysisType(s string) (AnalysisType, error) {
	switch AnalysisType(s) {
	case MonthlyAverage, RollingAverage:
		return AnalysisType(s), nil
	}
	return "", fmt.Errorf("unknown analysis type %q", s)
}

// Title renders the type for log lines, e.g. "Rolling Average".
func (a AnalysisType) Title() string {
	words := strings.Split(string(a), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// SummaryRecord is one row of either summary view. For the monthly view Date
// is the first day of the source period, for the rolling view it is the
// calendar day.
type SummaryRecord struct {
	Date                time.Time
	AverageTripDistance float64
	AverageTripDuration float64
}
