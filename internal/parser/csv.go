package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"unicode/utf8"

	"reconagent/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// parseCSV parses CSV content with basic encoding detection: UTF-8 (with or
// without BOM) first, then a Latin-1 fallback for legacy exports.
func parseCSV(content []byte, filename string) (*models.Dataset, *models.FileMetadata, error) {
	encoding := "utf-8"
	data := content

	if bytes.HasPrefix(data, utf8BOM) {
		data = data[len(utf8BOM):]
		encoding = "utf-8-sig"
	} else if !utf8.Valid(data) {
		data = latin1ToUTF8(data)
		encoding = "latin-1"
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: could not parse CSV: %v", ErrUnparsable, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%w: CSV file is empty", ErrUnparsable)
	}

	ds := buildDataset(records[0], records[1:])
	ds.SourceType = "csv"

	meta := &models.FileMetadata{
		Filename: filename,
		FileType: "csv",
		Encoding: encoding,
	}
	return ds, meta, nil
}

// latin1ToUTF8 re-encodes ISO-8859-1 bytes, which map 1:1 onto the first 256
// Unicode code points.
func latin1ToUTF8(data []byte) []byte {
	buf := make([]byte, 0, len(data)*2)
	for _, b := range data {
		buf = utf8.AppendRune(buf, rune(b))
	}
	return buf
}
