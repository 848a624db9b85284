// Package xlsx reads and writes the spreadsheets users upload, and checks
// that an upload is a workbook the rest of the pipeline can handle.
package xlsx

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Sheet represents a single worksheet's data.
type Sheet struct {
	Name string     `json:"name"`
	Rows [][]string `json:"rows"`
}

// Workbook represents a parsed Excel file with all its sheets.
type Workbook struct {
	Sheets []Sheet `json:"sheets"`
}

// Table is the grid view of a workbook's first sheet, as the viewer and the
// assistant see it. Rows includes the header row.
type Table struct {
	SheetName   string     `json:"sheetName"`
	Headers     []string   `json:"headers"`
	Rows        [][]string `json:"data"`
	RowCount    int        `json:"rowCount"`
	ColumnCount int        `json:"columnCount"`
	Truncated   bool       `json:"truncated,omitempty"`
}

// ReadBytes reads an .xlsx file from a byte slice and returns its structured data.
func ReadBytes(data []byte) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("could not read Excel data: %w", err)
	}
	defer f.Close()

	wb := &Workbook{}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("could not read sheet %q: %w", name, err)
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: name, Rows: rows})
	}
	return wb, nil
}

// GetSheet returns a specific sheet by name. Returns an error if the sheet is not found.
func (wb *Workbook) GetSheet(name string) (*Sheet, error) {
	for i := range wb.Sheets {
		if wb.Sheets[i].Name == name {
			return &wb.Sheets[i], nil
		}
	}

	available := make([]string, len(wb.Sheets))
	for i, s := range wb.Sheets {
		available[i] = s.Name
	}
	return nil, fmt.Errorf("sheet %q not found, available sheets: %v", name, available)
}

// Preview parses data and returns the first sheet as a Table. Short rows are
// padded to the header width. maxRows limits the data rows returned; zero
// returns all of them.
func Preview(data []byte, maxRows int) (*Table, error) {
	wb, err := ReadBytes(data)
	if err != nil {
		return nil, err
	}
	if len(wb.Sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return wb.Sheets[0].Table(maxRows), nil
}

// Table converts the sheet into a Table.
func (s *Sheet) Table(maxRows int) *Table {
	t := &Table{SheetName: s.Name, Headers: []string{}, Rows: [][]string{}}
	if len(s.Rows) == 0 {
		return t
	}

	width := 0
	for _, row := range s.Rows {
		if len(row) > width {
			width = len(row)
		}
	}

	rows := s.Rows
	if maxRows > 0 && len(rows)-1 > maxRows {
		rows = rows[:maxRows+1]
		t.Truncated = true
	}
	for _, row := range rows {
		padded := make([]string, width)
		copy(padded, row)
		t.Rows = append(t.Rows, padded)
	}

	t.Headers = t.Rows[0]
	t.RowCount = len(s.Rows)
	t.ColumnCount = width
	return t
}

// RowCount returns the total number of data rows (excluding empty rows).
func (s *Sheet) RowCount() int {
	count := 0
	for _, row := range s.Rows {
		for _, cell := range row {
			if cell != "" {
				count++
				break
			}
		}
	}
	return count
}
