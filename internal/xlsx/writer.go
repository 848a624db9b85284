package xlsx

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// WriteBytes renders rows as a single-sheet workbook. Cells that parse as
// numbers are stored as numbers so formulas over them keep working.
func WriteBytes(sheetName string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if sheetName == "" {
		sheetName = "Sheet1"
	}
	if def := f.GetSheetName(0); def != sheetName {
		if err := f.SetSheetName(def, sheetName); err != nil {
			return nil, fmt.Errorf("could not rename sheet: %w", err)
		}
	}

	for rowIdx, row := range rows {
		for colIdx, cell := range row {
			if cell == "" {
				continue
			}
			cellName, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
			if err != nil {
				return nil, fmt.Errorf("invalid cell coordinates: %w", err)
			}

			var value any = cell
			if n, err := strconv.ParseFloat(cell, 64); err == nil && rowIdx > 0 {
				value = n
			}
			if err := f.SetCellValue(sheetName, cellName, value); err != nil {
				return nil, fmt.Errorf("could not set cell %s: %w", cellName, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("could not render workbook: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}
