package aggregate

import (
	"math"
	"sort"
	"time"

	"taxitrend/internal/domain"
	"taxitrend/internal/store"
)

// PrunedFile is the content of one pruned file together with its period.
type PrunedFile struct {
	Name    string
	Period  domain.Period
	Records []store.PrunedRecord
}

// Strategy computes one summary view from the pruned files of every period.
// Files are passed in chronological order.
type Strategy interface {
	Summarize(files []PrunedFile) []domain.SummaryRecord
}

// Monthly averages distance and duration per source period. Each row is
// labelled with the first day of its period. A file without records yields
// NaN averages.
type Monthly struct{}

func (Monthly) Summarize(files []PrunedFile) []domain.SummaryRecord {
	rows := make([]domain.SummaryRecord, 0, len(files))
	for _, f := range files {
		row := domain.SummaryRecord{
			Date:                f.Period.Start(),
			AverageTripDistance: math.NaN(),
			AverageTripDuration: math.NaN(),
		}
		if len(f.Records) == 0 {
			rows = append(rows, row)
			continue
		}
		var dist, dur float64
		for _, r := range f.Records {
			dist += r.TripDistance
			dur += r.TripDuration
		}
		n := float64(len(f.Records))
		row.AverageTripDistance = dist / n
		row.AverageTripDuration = dur / n
		rows = append(rows, row)
	}
	sortByDate(rows)
	return rows
}

// Rolling computes a trailing moving average over Days daily rows.
//
// Each file is resampled to one row per calendar day between its first and
// last pickup day; days without trips are kept as empty rows. The daily
// series of all files are concatenated in date order and every row is
// averaged with the Days-1 rows before it, ignoring empty rows. A window
// with no observations yields NaN.
type Rolling struct {
	Days int
}

// daily is one resampled day; ok is false for a day without trips.
type daily struct {
	date     time.Time
	distance float64
	duration float64
	ok       bool
}

func (s Rolling) Summarize(files []PrunedFile) []domain.SummaryRecord {
	var series []daily
	for _, f := range files {
		series = append(series, resample(f.Records)...)
	}
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].date.Before(series[j].date)
	})

	window := s.Days
	if window < 1 {
		window = 1
	}

	rows := make([]domain.SummaryRecord, len(series))
	var (
		sumDist, sumDur float64
		count           int
	)
	for i, d := range series {
		if d.ok {
			sumDist += d.distance
			sumDur += d.duration
			count++
		}
		if j := i - window; j >= 0 && series[j].ok {
			sumDist -= series[j].distance
			sumDur -= series[j].duration
			count--
		}

		row := domain.SummaryRecord{
			Date:                d.date,
			AverageTripDistance: math.NaN(),
			AverageTripDuration: math.NaN(),
		}
		if count > 0 {
			row.AverageTripDistance = sumDist / float64(count)
			row.AverageTripDuration = sumDur / float64(count)
		}
		rows[i] = row
	}
	return rows
}

// resample returns the mean distance and duration of each calendar day from
// the first to the last pickup day of records.
func resample(records []store.PrunedRecord) []daily {
	if len(records) == 0 {
		return nil
	}

	type acc struct {
		dist, dur float64
		n         int
	}
	byDay := make(map[int64]*acc)
	first, last := records[0].Day(), records[0].Day()
	for _, r := range records {
		day := r.Day()
		a, ok := byDay[day.UnixMilli()]
		if !ok {
			a = &acc{}
			byDay[day.UnixMilli()] = a
		}
		a.dist += r.TripDistance
		a.dur += r.TripDuration
		a.n++
		if day.Before(first) {
			first = day
		}
		if day.After(last) {
			last = day
		}
	}

	var out []daily
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		d := daily{date: day}
		if a, ok := byDay[day.UnixMilli()]; ok {
			d.distance = a.dist / float64(a.n)
			d.duration = a.dur / float64(a.n)
			d.ok = true
		}
		out = append(out, d)
	}
	return out
}

func sortByDate(rows []domain.SummaryRecord) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Date.Before(rows[j].Date)
	})
}
