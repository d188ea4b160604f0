package parser

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"reconagent/internal/models"
)

// ErrUnparsable is returned when a file cannot be turned into a tabular
// dataset. Handlers map it to a 422 with the UNPARSABLE_FILE kind.
var ErrUnparsable = errors.New("unparsable file")

// SupportedExtensions lists the file types the upload endpoint accepts.
var SupportedExtensions = map[string]bool{
	".csv":  true,
	".xlsx": true,
	".xls":  true,
	".pdf":  true,
}

// Parse converts raw file bytes into a Dataset plus upload metadata.
// The dataset name ("A" or "B") labels the side of the reconciliation.
func Parse(content []byte, filename, datasetName string) (*models.Dataset, *models.FileMetadata, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	var (
		ds   *models.Dataset
		meta *models.FileMetadata
		err  error
	)

	switch ext {
	case ".csv":
		ds, meta, err = parseCSV(content, filename)
	case ".xlsx", ".xls":
		ds, meta, err = parseExcel(content, filename)
	case ".pdf":
		ds, meta, err = parsePDF(content, filename)
	default:
		return nil, nil, fmt.Errorf("%w: unsupported file type %q", ErrUnparsable, ext)
	}
	if err != nil {
		log.Printf("❌ [PARSER] Failed to parse %s: %v", filename, err)
		return nil, nil, err
	}

	ds.Name = datasetName
	ds.SourceFile = filename
	inferColumnTypes(ds)

	meta.Rows = ds.RowCount()
	meta.Columns = ds.ColumnNames()
	meta.SizeBytes = len(content)

	log.Printf("✅ [PARSER] Parsed %s: %d columns, %d rows", filename, len(ds.Columns), ds.RowCount())
	return ds, meta, nil
}

// buildDataset assembles a Dataset from string cells. Headers are trimmed and
// empty ones replaced with Column_N, matching how rows shorter or longer than
// the header row are padded or trimmed.
func buildDataset(headers []string, records [][]string) *models.Dataset {
	cols := make([]models.Column, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Column_%d", i+1)
		}
		cols[i] = models.Column{Name: h, Type: models.ColumnString}
	}

	rows := make([]models.Row, 0, len(records))
	for _, rec := range records {
		if isEmptyRecord(rec) {
			continue
		}
		for len(rec) < len(cols) {
			rec = append(rec, "")
		}
		if len(rec) > len(cols) {
			rec = rec[:len(cols)]
		}
		row := make(models.Row, len(cols))
		for i, c := range cols {
			row[c.Name] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, row)
	}

	return &models.Dataset{Columns: cols, Rows: rows}
}

func isEmptyRecord(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

var dateLayouts = []string{
	"2006-01-02",
	"02-Jan-06",
	"02-Jan-2006",
	"01/02/2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
}

// inferColumnTypes scans every column, picks the narrowest type that all
// non-empty cells satisfy, and converts the cell values in place. Empty
// cells become nil. Dates stay as strings; only the declared type changes.
func inferColumnTypes(ds *models.Dataset) {
	for ci := range ds.Columns {
		name := ds.Columns[ci].Name
		inferred := inferType(ds.Rows, name)
		ds.Columns[ci].Type = inferred

		for _, row := range ds.Rows {
			s, ok := row[name].(string)
			if !ok {
				continue
			}
			if s == "" {
				row[name] = nil
				continue
			}
			switch inferred {
			case models.ColumnInteger:
				if v, err := strconv.ParseInt(s, 10, 64); err == nil {
					row[name] = v
				}
			case models.ColumnFloat:
				if v, err := strconv.ParseFloat(normalizeNumber(s), 64); err == nil {
					row[name] = v
				}
			case models.ColumnBool:
				if v, err := strconv.ParseBool(strings.ToLower(s)); err == nil {
					row[name] = v
				}
			}
		}
	}
}

func inferType(rows []models.Row, name string) models.ColumnType {
	sawValue := false
	isInt, isFloat, isBool, isDate := true, true, true, true

	for _, row := range rows {
		s, ok := row[name].(string)
		if !ok || s == "" {
			continue
		}
		sawValue = true

		if isInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(normalizeNumber(s), 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			if _, err := strconv.ParseBool(strings.ToLower(s)); err != nil {
				isBool = false
			}
		}
		if isDate {
			if !parsesAsDate(s) {
				isDate = false
			}
		}
	}

	if !sawValue {
		return models.ColumnString
	}
	switch {
	case isInt:
		return models.ColumnInteger
	case isFloat:
		return models.ColumnFloat
	case isBool:
		return models.ColumnBool
	case isDate:
		return models.ColumnDate
	default:
		return models.ColumnString
	}
}

func parsesAsDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// normalizeNumber strips thousands separators so "1,234.50" parses.
func normalizeNumber(s string) string {
	if strings.Count(s, ",") > 0 && strings.Count(s, ".") <= 1 {
		return strings.ReplaceAll(s, ",", "")
	}
	return s
}
