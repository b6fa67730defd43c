package source

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// CSVParser reads a CSV file into one table named by the file stem.
type CSVParser struct{}

// NewCSVParser creates a CSV parser.
func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

// Extensions implements Parser.
func (p *CSVParser) Extensions() []string {
	return []string{".csv"}
}

// Parse implements Parser. The first record is the header.
func (p *CSVParser) Parse(filename string, content []byte) ([]TableItem, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("no columns to parse")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}

	return []TableItem{buildTable(TableNameFromFile(filename), header, records)}, nil
}
