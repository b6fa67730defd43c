package source

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// buildTable turns a header row and string records into a TableItem.
// Blank cells and cells past the end of a short record become nil.
func buildTable(name string, header []string, records [][]string) TableItem {
	fields := uniqueHeaders(header)

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		if isBlankRecord(rec) {
			continue
		}
		row := make(Row, len(fields))
		for i, f := range fields {
			var cell string
			if i < len(rec) {
				cell = rec[i]
			}
			row[f] = inferValue(cell)
		}
		rows = append(rows, row)
	}

	return newTable(name, fields, rows)
}

func newTable(name string, fields []string, rows []Row) TableItem {
	if fields == nil {
		fields = []string{}
	}
	if rows == nil {
		rows = []Row{}
	}
	sample := rows
	if len(sample) > SampleSize {
		sample = sample[:SampleSize]
	}
	return TableItem{
		Name:       name,
		Fields:     fields,
		SampleRows: sample,
		Rows:       rows,
	}
}

// uniqueHeaders names blank columns "Unnamed: i" and suffixes repeated
// names with ".1", ".2" and so on.
func uniqueHeaders(header []string) []string {
	fields := make([]string, len(header))
	used := make(map[string]bool, len(header))
	counts := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		name := h
		for used[name] {
			counts[h]++
			name = fmt.Sprintf("%s.%d", h, counts[h])
		}
		used[name] = true
		fields[i] = name
	}
	return fields
}

func isBlankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// missingMarkers are cell texts read as null.
var missingMarkers = map[string]bool{
	"": true, "NA": true, "N/A": true, "n/a": true, "#N/A": true,
	"NaN": true, "nan": true, "null": true, "NULL": true, "None": true, "<NA>": true,
}

// inferValue converts a cell to int64, float64 or bool when the whole cell
// parses as one; blank and missing-marker cells become nil.
func inferValue(cell string) any {
	s := strings.TrimSpace(cell)
	if missingMarkers[s] {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	switch s {
	case "True", "TRUE", "true":
		return true
	case "False", "FALSE", "false":
		return false
	}
	return cell
}

// normalizeValue converts driver values into JSON-friendly ones.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return v
	}
}
