package source

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExcelParser reads each worksheet of a workbook as a table named
// "stem::sheet".
type ExcelParser struct{}

// NewExcelParser creates an Excel parser.
func NewExcelParser() *ExcelParser {
	return &ExcelParser{}
}

// Extensions implements Parser.
func (p *ExcelParser) Extensions() []string {
	return []string{".xlsx", ".xlsm"}
}

// Parse implements Parser. Empty sheets yield tables with no fields.
func (p *ExcelParser) Parse(filename string, content []byte) ([]TableItem, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	stem := TableNameFromFile(filename)
	sheets := f.GetSheetList()
	tables := make([]TableItem, 0, len(sheets))
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}

		name := stem + "::" + sheet
		if len(rows) == 0 {
			tables = append(tables, newTable(name, nil, nil))
			continue
		}
		tables = append(tables, buildTable(name, rows[0], rows[1:]))
	}
	return tables, nil
}
