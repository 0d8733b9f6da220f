package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"taxitrend/internal/domain"
)

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// PrunedRecord is the Parquet schema for a cleaned trip.
type PrunedRecord struct {
	PickupDatetime  int64   `parquet:"pickup_datetime,timestamp(millisecond)"` // Unix ms
	DropoffDatetime int64   `parquet:"dropoff_datetime,timestamp(millisecond)"`
	TripDistance    float64 `parquet:"trip_distance"`
	TotalAmount     float64 `parquet:"total_amount"`
	TripDuration    float64 `parquet:"trip_duration"`
	Speed           float64 `parquet:"speed"`
	Date            int64   `parquet:"date,timestamp(millisecond)"` // pickup day, midnight UTC
}

// SummaryRecord is the Parquet schema shared by both summary views.
type SummaryRecord struct {
	Date                int64   `parquet:"date,timestamp(millisecond)"`
	AverageTripDistance float64 `parquet:"average_trip_distance"`
	AverageTripDuration float64 `parquet:"average_trip_duration"`
}

// NewPrunedRecord converts a derived trip to its on-disk form.
func NewPrunedRecord(r domain.TripRecord) PrunedRecord {
	return PrunedRecord{
		PickupDatetime:  r.PickupDatetime.UnixMilli(),
		DropoffDatetime: r.DropoffDatetime.UnixMilli(),
		TripDistance:    r.TripDistance,
		TotalAmount:     r.TotalAmount,
		TripDuration:    r.TripDuration,
		Speed:           r.Speed,
		Date:            r.Date().UnixMilli(),
	}
}

// Day returns the pickup day of the record.
func (r PrunedRecord) Day() time.Time {
	return time.UnixMilli(r.Date).UTC()
}

// ---------------------------------------------------------------------------
// Pruned and summary files
// ---------------------------------------------------------------------------

// WritePruned writes a pruned file.
func WritePruned(path string, records []PrunedRecord) error {
	return writeParquetFile(path, records)
}

// ReadPruned reads a pruned file.
func ReadPruned(path string) ([]PrunedRecord, error) {
	records, err := readParquetFile[PrunedRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return records, nil
}

// WriteSummary writes a summary file.
func WriteSummary(path string, rows []domain.SummaryRecord) error {
	records := make([]SummaryRecord, len(rows))
	for i, r := range rows {
		records[i] = SummaryRecord{
			Date:                r.Date.UnixMilli(),
			AverageTripDistance: r.AverageTripDistance,
			AverageTripDuration: r.AverageTripDuration,
		}
	}
	return writeParquetFile(path, records)
}

// ReadSummary reads a summary file.
func ReadSummary(path string) ([]domain.SummaryRecord, error) {
	records, err := readParquetFile[SummaryRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	rows := make([]domain.SummaryRecord, len(records))
	for i, r := range records {
		rows[i] = domain.SummaryRecord{
			Date:                time.UnixMilli(r.Date).UTC(),
			AverageTripDistance: r.AverageTripDistance,
			AverageTripDuration: r.AverageTripDuration,
		}
	}
	return rows, nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

// writeParquetFile writes records to a hidden temporary file next to path
// and renames it into place, so a crashed write never leaves a file that
// looks complete.
func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := tempPath(path)
	if err := parquet.WriteFile(tmp, records); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func tempPath(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
}
