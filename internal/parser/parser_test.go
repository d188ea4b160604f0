package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"reconagent/internal/models"
)

func TestParseCSV(t *testing.T) {
	csvData := strings.Join([]string{
		"id,amount,date,active,description",
		"1,\"1,234.50\",2026-01-15,true,Invoice payment",
		"2,99.90,2026-02-01,false,Refund",
		",,,,",
		"3,,2026-03-10,true,",
	}, "\n")

	ds, meta, err := Parse([]byte(csvData), "transactions.csv", "A")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if ds.Name != "A" || ds.SourceType != "csv" || ds.SourceFile != "transactions.csv" {
		t.Errorf("dataset identity = %s/%s/%s", ds.Name, ds.SourceType, ds.SourceFile)
	}
	// The all-empty line is skipped.
	if ds.RowCount() != 3 {
		t.Fatalf("RowCount() = %d, want 3", ds.RowCount())
	}

	wantTypes := map[string]models.ColumnType{
		"id":          models.ColumnInteger,
		"amount":      models.ColumnFloat,
		"date":        models.ColumnDate,
		"active":      models.ColumnBool,
		"description": models.ColumnString,
	}
	for _, col := range ds.Columns {
		if got := wantTypes[col.Name]; col.Type != got {
			t.Errorf("column %s type = %s, want %s", col.Name, col.Type, got)
		}
	}

	// Typed conversion happens in place; empty cells become nil.
	if ds.Rows[0]["id"] != int64(1) {
		t.Errorf("id = %#v, want int64(1)", ds.Rows[0]["id"])
	}
	if ds.Rows[0]["amount"] != 1234.5 {
		t.Errorf("amount = %#v, want 1234.5 (thousands separator stripped)", ds.Rows[0]["amount"])
	}
	if ds.Rows[0]["active"] != true {
		t.Errorf("active = %#v, want true", ds.Rows[0]["active"])
	}
	if ds.Rows[0]["date"] != "2026-01-15" {
		t.Errorf("date = %#v, dates must stay strings", ds.Rows[0]["date"])
	}
	if ds.Rows[2]["amount"] != nil {
		t.Errorf("empty amount = %#v, want nil", ds.Rows[2]["amount"])
	}

	if meta.Rows != 3 || meta.Encoding != "utf-8" || meta.FileType != "csv" {
		t.Errorf("metadata = %+v", meta)
	}
	if len(meta.Columns) != 5 {
		t.Errorf("metadata columns = %v", meta.Columns)
	}
}

func TestParseCSVWithBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("name,value\nfoo,1\n")...)

	ds, meta, err := Parse(data, "export.csv", "A")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if meta.Encoding != "utf-8-sig" {
		t.Errorf("Encoding = %s, want utf-8-sig", meta.Encoding)
	}
	if ds.Columns[0].Name != "name" {
		t.Errorf("first column = %q, BOM must not leak into the header", ds.Columns[0].Name)
	}
}

func TestParseCSVLatin1Fallback(t *testing.T) {
	// "café" with a raw Latin-1 é byte, invalid as UTF-8.
	data := []byte("name,city\ncaf\xe9,Z\xfcrich\n")

	ds, meta, err := Parse(data, "legacy.csv", "B")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if meta.Encoding != "latin-1" {
		t.Errorf("Encoding = %s, want latin-1", meta.Encoding)
	}
	if ds.Rows[0]["name"] != "café" {
		t.Errorf("name = %#v, want café", ds.Rows[0]["name"])
	}
	if ds.Rows[0]["city"] != "Zürich" {
		t.Errorf("city = %#v, want Zürich", ds.Rows[0]["city"])
	}
}

func TestParseCSVRaggedRows(t *testing.T) {
	csvData := "a,b,c\n1,2\n1,2,3,4\n"

	ds, _, err := Parse([]byte(csvData), "ragged.csv", "A")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ds.RowCount() != 2 {
		t.Fatalf("RowCount() = %d, want 2", ds.RowCount())
	}
	// Short rows are padded with nil, long rows trimmed to the header width.
	if ds.Rows[0]["c"] != nil {
		t.Errorf("padded cell = %#v, want nil", ds.Rows[0]["c"])
	}
	if _, ok := ds.Rows[1]["d"]; ok {
		t.Error("extra cell beyond the header width should be dropped")
	}
}

func TestParseCSVBlankHeaders(t *testing.T) {
	ds, _, err := Parse([]byte("id,,name\n1,x,foo\n"), "headers.csv", "A")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ds.Columns[1].Name != "Column_2" {
		t.Errorf("blank header = %q, want Column_2", ds.Columns[1].Name)
	}
}

func TestParseUnsupportedExtension(t *testing.T) {
	_, _, err := Parse([]byte("whatever"), "notes.txt", "A")
	if !errors.Is(err, ErrUnparsable) {
		t.Fatalf("Parse() error = %v, want ErrUnparsable", err)
	}
}

func TestParseEmptyCSV(t *testing.T) {
	_, _, err := Parse([]byte(""), "empty.csv", "A")
	if !errors.Is(err, ErrUnparsable) {
		t.Fatalf("Parse() error = %v, want ErrUnparsable", err)
	}
}

func TestParseExcel(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"invoice", "total"},
		{"INV-1", 150.0},
		{"INV-2", 200.5},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	ds, meta, err := Parse(buf.Bytes(), "invoices.xlsx", "B")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ds.SourceType != "excel" {
		t.Errorf("SourceType = %s, want excel", ds.SourceType)
	}
	if ds.RowCount() != 2 {
		t.Fatalf("RowCount() = %d, want 2", ds.RowCount())
	}
	if ds.Rows[0]["invoice"] != "INV-1" {
		t.Errorf("invoice = %#v", ds.Rows[0]["invoice"])
	}
	if ds.Rows[0]["total"] != 150.0 {
		t.Errorf("total = %#v, want 150.0", ds.Rows[0]["total"])
	}
	if len(meta.Sheets) == 0 {
		t.Error("metadata should list sheet names")
	}
}

func TestParseInvalidPDF(t *testing.T) {
	_, _, err := Parse([]byte("this is not a pdf"), "scan.pdf", "A")
	if !errors.Is(err, ErrUnparsable) {
		t.Fatalf("Parse() error = %v, want ErrUnparsable", err)
	}
}

func TestSplitTabularLines(t *testing.T) {
	lines := []string{
		"Bank Statement March 2026", // title line, never splits
		"date | narration | amount",
		"01-Mar-26 | RFX123 transfer | 1500.00",
		"02-Mar-26 | utility bill | 75.20 | extra",
	}

	records := splitTabularLines(lines)
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3 (title dropped)", len(records))
	}
	// Every record is padded to the widest row.
	for i, rec := range records {
		if len(rec) != 4 {
			t.Errorf("record %d width = %d, want 4", i, len(rec))
		}
	}
	if records[1][1] != "RFX123 transfer" {
		t.Errorf("cell = %q", records[1][1])
	}
}

func TestNormalizeNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1,234.50", "1234.50"},
		{"12,345", "12345"},
		{"99.90", "99.90"},
		{"1,2,3.4.5", "1,2,3.4.5"}, // ambiguous, left alone
	}
	for _, tt := range tests {
		if got := normalizeNumber(tt.in); got != tt.want {
			t.Errorf("normalizeNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
