package parser

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"reconagent/internal/models"
)

// parseExcel parses an .xlsx/.xls workbook using the active sheet, or the
// first sheet when no active sheet is set.
func parseExcel(content []byte, filename string) (*models.Dataset, *models.FileMetadata, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: could not open workbook: %v", ErrUnparsable, err)
	}
	defer f.Close()

	sheetNames := f.GetSheetList()
	if len(sheetNames) == 0 {
		return nil, nil, fmt.Errorf("%w: no sheets found in workbook", ErrUnparsable)
	}

	targetSheet := f.GetSheetName(f.GetActiveSheetIndex())
	if targetSheet == "" {
		targetSheet = sheetNames[0]
	}

	rows, err := f.GetRows(targetSheet)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: could not read sheet %q: %v", ErrUnparsable, targetSheet, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: sheet %q is empty", ErrUnparsable, targetSheet)
	}

	ds := buildDataset(rows[0], rows[1:])
	ds.SourceType = "excel"

	meta := &models.FileMetadata{
		Filename: filename,
		FileType: "excel",
		Sheets:   sheetNames,
	}
	return ds, meta, nil
}
