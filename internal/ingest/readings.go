// Package ingest parses sensor reading files into domain records. Plants
// export telemetry as CSV from historians and as spreadsheets from everything
// else, so both arrive here.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/yobou/internal/models"
	"github.com/xuri/excelize/v2"
)

// Expected column order: machine_id, sensor, timestamp, value. A header row
// is detected and skipped.
const expectedColumns = 4

// ReadCSV parses readings from CSV.
func ReadCSV(r io.Reader) ([]models.Reading, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	var out []models.Reading
	line := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line+1, err)
		}
		line++
		if line == 1 && isHeader(record) {
			continue
		}
		reading, err := parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		out = append(out, reading)
	}
	return out, nil
}

// ReadXLSX parses readings from the first sheet of an xlsx workbook.
func ReadXLSX(r io.Reader) ([]models.Reading, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	var out []models.Reading
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if i == 0 && isHeader(row) {
			continue
		}
		reading, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("sheet %q row %d: %w", sheets[0], i+1, err)
		}
		out = append(out, reading)
	}
	return out, nil
}

func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(record[0]))
	return first == "machine_id" || first == "machine"
}

func parseRow(record []string) (models.Reading, error) {
	if len(record) < expectedColumns {
		return models.Reading{}, fmt.Errorf("expected %d columns, got %d", expectedColumns, len(record))
	}
	ts, err := parseTimestamp(strings.TrimSpace(record[2]))
	if err != nil {
		return models.Reading{}, fmt.Errorf("timestamp %q: %w", record[2], err)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
	if err != nil {
		return models.Reading{}, fmt.Errorf("value %q: %w", record[3], err)
	}
	reading := models.Reading{
		MachineID: strings.TrimSpace(record[0]),
		Sensor:    strings.ToLower(strings.TrimSpace(record[1])),
		Timestamp: ts,
		Value:     value,
	}
	if err := reading.Validate(); err != nil {
		return models.Reading{}, err
	}
	return reading, nil
}

// parseTimestamp accepts RFC 3339 and the dateless formats spreadsheets
// produce, plus unix seconds.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"01-02-06 15:04",
	}
	for _, f := range formats {
		if ts, err := time.Parse(f, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized format")
}
