package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"taxitrend/internal/domain"
)

// ColumnKeywords are matched as substrings against lowercased column names
// to find the columns of each role. The first matching column wins.
type ColumnKeywords struct {
	Pickup   string
	Dropoff  string
	Total    string
	Distance string
}

// RawTable is the result of reading one raw file.
type RawTable struct {
	// Columns maps each role ("pickup_datetime", ...) to the source column.
	Columns map[string]string
	// Records holds the rows that had every required value.
	Records []domain.TripRecord
	// Dropped counts rows missing at least one required value.
	Dropped int
}

// rawColumn is a resolved source column.
type rawColumn struct {
	role  string
	name  string
	index int
	node  parquet.Node
}

const readBatch = 1024

// julianUnixEpoch is the Julian day number of 1970-01-01.
const julianUnixEpoch = 2440588

// ReadRawTrips reads a raw trip file with an arbitrary flat schema. Column
// names are lowercased, then the pickup, dropoff, total-amount and distance
// columns are resolved through kw. A missing column yields a
// *domain.SchemaResolutionError.
func ReadRawTrips(path string, kw ColumnKeywords) (*RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("opening parquet %s: %w", path, err)
	}

	cols, err := resolveColumns(filepath.Base(path), pf.Schema(), kw)
	if err != nil {
		return nil, err
	}

	table := &RawTable{Columns: make(map[string]string, len(cols))}
	for _, c := range cols {
		table.Columns[c.role] = c.name
	}

	byIndex := make(map[int]rawColumn, len(cols))
	for _, c := range cols {
		byIndex[c.index] = c
	}

	buf := make([]parquet.Row, readBatch)
	for _, rg := range pf.RowGroups() {
		if err := readRowGroup(rg, buf, byIndex, table); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	return table, nil
}

func readRowGroup(rg parquet.RowGroup, buf []parquet.Row, byIndex map[int]rawColumn, table *RawTable) error {
	rows := rg.Rows()
	defer rows.Close()

	for {
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			if rec, ok := decodeRow(row, byIndex); ok {
				table.Records = append(table.Records, rec)
			} else {
				table.Dropped++
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// decodeRow extracts the required values of a row. It reports false when
// any of them is null or cannot be decoded.
func decodeRow(row parquet.Row, byIndex map[int]rawColumn) (domain.TripRecord, bool) {
	var (
		rec  domain.TripRecord
		seen int
	)
	for _, v := range row {
		col, ok := byIndex[v.Column()]
		if !ok {
			continue
		}
		if v.IsNull() {
			return rec, false
		}
		switch col.role {
		case "pickup_datetime":
			t, ok := decodeTime(v, col.node)
			if !ok {
				return rec, false
			}
			rec.PickupDatetime = t
		case "dropoff_datetime":
			t, ok := decodeTime(v, col.node)
			if !ok {
				return rec, false
			}
			rec.DropoffDatetime = t
		case "total_amount":
			f, ok := decodeFloat(v)
			if !ok {
				return rec, false
			}
			rec.TotalAmount = f
		case "trip_distance":
			f, ok := decodeFloat(v)
			if !ok {
				return rec, false
			}
			rec.TripDistance = f
		}
		seen++
	}
	return rec, seen == len(byIndex)
}

// resolveColumns maps each role to the first lowercased column name
// containing its keyword. Two roles may not share a column.
func resolveColumns(file string, schema *parquet.Schema, kw ColumnKeywords) ([]rawColumn, error) {
	fields := schema.Fields()
	roles := []struct{ role, keyword string }{
		{"pickup_datetime", kw.Pickup},
		{"dropoff_datetime", kw.Dropoff},
		{"total_amount", kw.Total},
		{"trip_distance", kw.Distance},
	}

	cols := make([]rawColumn, 0, len(roles))
	used := make(map[int]bool, len(roles))
	for _, r := range roles {
		keyword := strings.ToLower(r.keyword)
		found := false
		for _, field := range fields {
			if !strings.Contains(strings.ToLower(field.Name()), keyword) {
				continue
			}
			leaf, ok := schema.Lookup(field.Name())
			if !ok {
				continue
			}
			if used[leaf.ColumnIndex] {
				return nil, &domain.SchemaResolutionError{File: file, Keyword: r.keyword, Column: field.Name()}
			}
			used[leaf.ColumnIndex] = true
			cols = append(cols, rawColumn{
				role:  r.role,
				name:  field.Name(),
				index: leaf.ColumnIndex,
				node:  leaf.Node,
			})
			found = true
			break
		}
		if !found {
			return nil, &domain.SchemaResolutionError{File: file, Keyword: r.keyword}
		}
	}
	return cols, nil
}

// decodeTime interprets a value as a wall-clock timestamp in UTC. INT64
// values use the column's timestamp unit (microseconds when unannotated),
// INT96 values use the legacy Impala encoding, and byte arrays are parsed as
// text.
func decodeTime(v parquet.Value, node parquet.Node) (time.Time, bool) {
	switch v.Kind() {
	case parquet.Int64:
		return fromUnit(v.Int64(), node), true
	case parquet.Int96:
		i96 := v.Int96()
		nanos := int64(uint64(i96[1])<<32 | uint64(i96[0]))
		days := int64(i96[2]) - julianUnixEpoch
		return time.Unix(days*86400, nanos).UTC(), true
	case parquet.ByteArray:
		return parseTimeString(string(v.ByteArray()))
	}
	return time.Time{}, false
}

func fromUnit(x int64, node parquet.Node) time.Time {
	if lt := node.Type().LogicalType(); lt != nil && lt.Timestamp != nil {
		switch {
		case lt.Timestamp.Unit.Millis != nil:
			return time.UnixMilli(x).UTC()
		case lt.Timestamp.Unit.Nanos != nil:
			return time.Unix(0, x).UTC()
		}
	}
	return time.UnixMicro(x).UTC()
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func decodeFloat(v parquet.Value) (float64, bool) {
	switch v.Kind() {
	case parquet.Double:
		return v.Double(), true
	case parquet.Float:
		return float64(v.Float()), true
	case parquet.Int32:
		return float64(v.Int32()), true
	case parquet.Int64:
		return float64(v.Int64()), true
	case parquet.ByteArray:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v.ByteArray())), 64)
		return f, err == nil
	}
	return 0, false
}
