package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"reconagent/internal/models"
)

const maxPDFPages = 100

// parsePDF extracts tabular data from a PDF. Text is pulled per page, then
// each line is split on the first delimiter that yields more than one cell.
// PDFs without any delimited lines are rejected with a hint to convert the
// file to CSV or Excel.
func parsePDF(content []byte, filename string) (*models.Dataset, *models.FileMetadata, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid PDF: %v", ErrUnparsable, err)
	}

	totalPages := reader.NumPage()
	if totalPages == 0 {
		return nil, nil, fmt.Errorf("%w: PDF has no pages", ErrUnparsable)
	}
	if totalPages > maxPDFPages {
		return nil, nil, fmt.Errorf("%w: PDF has too many pages (%d), max allowed is %d",
			ErrUnparsable, totalPages, maxPDFPages)
	}

	var lines []string
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages with extraction errors, don't fail completely
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(strings.ReplaceAll(line, "\x00", ""))
			if line != "" {
				lines = append(lines, line)
			}
		}
	}

	records := splitTabularLines(lines)
	if len(records) < 2 {
		return nil, nil, fmt.Errorf(
			"%w: could not extract tables from PDF, please convert to CSV or Excel", ErrUnparsable)
	}

	ds := buildDataset(records[0], records[1:])
	ds.SourceType = "pdf"

	meta := &models.FileMetadata{
		Filename: filename,
		FileType: "pdf",
	}
	return ds, meta, nil
}

// splitTabularLines splits text lines on the first delimiter producing
// multiple cells. Lines that never split are dropped: they are usually
// titles or page furniture, not table rows.
func splitTabularLines(lines []string) [][]string {
	delimiters := []string{"\t", "|", ",", "  "}

	var records [][]string
	for _, line := range lines {
		for _, delim := range delimiters {
			parts := splitNonEmpty(line, delim)
			if len(parts) > 1 {
				records = append(records, parts)
				break
			}
		}
	}

	if len(records) == 0 {
		return nil
	}

	// Pad every record to the widest row so buildDataset sees a rectangle.
	maxCols := 0
	for _, rec := range records {
		if len(rec) > maxCols {
			maxCols = len(rec)
		}
	}
	for i, rec := range records {
		for len(rec) < maxCols {
			rec = append(rec, "")
		}
		records[i] = rec
	}
	return records
}

func splitNonEmpty(line, delim string) []string {
	var parts []string
	for _, p := range strings.Split(line, delim) {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
