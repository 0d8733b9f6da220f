// Package export writes summary views as CSV for charting tools.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"

	"taxitrend/internal/domain"
)

const dateLayout = "2006-01-02"

// Row is the CSV form of a summary record.
type Row struct {
	Date                string  `csv:"date"`
	AverageTripDistance float64 `csv:"average_trip_distance"`
	AverageTripDuration float64 `csv:"average_trip_duration"`
}

// CSVName returns the CSV file name matching a parquet summary file name.
func CSVName(summaryFile string) string {
	return strings.TrimSuffix(summaryFile, filepath.Ext(summaryFile)) + ".csv"
}

// WriteSummary encodes rows to w with a header line.
func WriteSummary(w io.Writer, rows []domain.SummaryRecord) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(rows) == 0 {
		if err := enc.EncodeHeader(Row{}); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := enc.Encode(Row{
			Date:                r.Date.Format(dateLayout),
			AverageTripDistance: r.AverageTripDistance,
			AverageTripDuration: r.AverageTripDuration,
		}); err != nil {
			return fmt.Errorf("encoding %s: %w", r.Date.Format(dateLayout), err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryFile writes rows to path, replacing any existing file.
func WriteSummaryFile(path string, rows []domain.SummaryRecord) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	err = WriteSummary(bw, rows)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
