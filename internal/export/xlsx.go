package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"taxitrend/internal/domain"
)

// XLSXName returns the workbook file name matching a parquet summary file
// name.
func XLSXName(summaryFile string) string {
	return strings.TrimSuffix(summaryFile, filepath.Ext(summaryFile)) + ".xlsx"
}

// WriteSummaryXLSX writes rows to a single-sheet workbook at path. The sheet
// is named after sheet; undefined averages are left blank.
func WriteSummaryXLSX(path, sheet string, rows []domain.SummaryRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	header := []any{"date", "average_trip_distance", "average_trip_duration"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{r.Date.Format(dateLayout), cellValue(r.AverageTripDistance), cellValue(r.AverageTripDuration)}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	// SaveAs picks the format from the extension, so the temp name keeps it.
	tmp := filepath.Join(filepath.Dir(path), ".tmp-"+filepath.Base(path))
	if err := f.SaveAs(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func cellValue(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
