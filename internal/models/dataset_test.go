package models

import (
	"strings"
	"testing"
)

func sampleDataset() *Dataset {
	return &Dataset{
		Name:       "A",
		SourceFile: "bank.csv",
		SourceType: "csv",
		Columns: []Column{
			{Name: "id", Type: ColumnInteger},
			{Name: "amount", Type: ColumnFloat},
		},
		Rows: []Row{
			{"id": int64(1), "amount": 100.5},
			{"id": int64(2), "amount": nil},
		},
	}
}

func TestTagRowIDs(t *testing.T) {
	ds := sampleDataset()
	tagged := ds.TagRowIDs(RowIDKeyA, "a")

	if tagged.Rows[0][RowIDKeyA] != "a-0" || tagged.Rows[1][RowIDKeyA] != "a-1" {
		t.Errorf("row ids = %v, %v", tagged.Rows[0][RowIDKeyA], tagged.Rows[1][RowIDKeyA])
	}
	// The original dataset must be untouched.
	if _, ok := ds.Rows[0][RowIDKeyA]; ok {
		t.Error("TagRowIDs mutated the original dataset")
	}
	tagged.Rows[0]["id"] = int64(99)
	if ds.Rows[0]["id"] != int64(1) {
		t.Error("tagged rows share storage with the original")
	}
}

func TestStripRowIDs(t *testing.T) {
	row := Row{"id": int64(1), RowIDKeyA: "a-0", RowIDKeyB: "b-3"}
	stripped := StripRowIDs(row)

	if len(stripped) != 1 || stripped["id"] != int64(1) {
		t.Errorf("stripped = %v", stripped)
	}
	// The input row keeps its keys.
	if row[RowIDKeyA] != "a-0" {
		t.Error("StripRowIDs mutated its input")
	}
}

func TestSchemaSummary(t *testing.T) {
	got := sampleDataset().SchemaSummary()
	if got != "id (integer), amount (float)" {
		t.Errorf("SchemaSummary() = %q", got)
	}
}

func TestMarkdownPreview(t *testing.T) {
	preview := sampleDataset().MarkdownPreview(10)

	lines := strings.Split(strings.TrimSpace(preview), "\n")
	if len(lines) != 4 {
		t.Fatalf("preview lines = %d, want header + separator + 2 rows", len(lines))
	}
	if !strings.Contains(lines[0], "id") || !strings.Contains(lines[0], "amount") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[2], "100.5") {
		t.Errorf("first row = %q", lines[2])
	}
	// nil cells render empty, not "<nil>".
	if strings.Contains(lines[3], "nil") {
		t.Errorf("nil cell leaked into preview: %q", lines[3])
	}
}

func TestSampleRowsStripsIDs(t *testing.T) {
	ds := sampleDataset().TagRowIDs(RowIDKeyA, "a")
	rows := ds.SampleRows(1)

	if len(rows) != 1 {
		t.Fatalf("SampleRows(1) = %d rows", len(rows))
	}
	if _, ok := rows[0][RowIDKeyA]; ok {
		t.Error("sample rows must not expose row ids")
	}
}

func TestSandboxResultDiagnostic(t *testing.T) {
	ok := OkResult(&ReconcileOutput{
		Matched:    []Row{{"id": int64(1)}},
		UnmatchedA: []Row{},
		UnmatchedB: []Row{},
	}, "", 0)
	if !ok.OK() {
		t.Error("OkResult should report OK")
	}
	if !strings.Contains(ok.Diagnostic(), "1 matched") {
		t.Errorf("Diagnostic() = %q", ok.Diagnostic())
	}

	failed := ErrResult(ErrTimeout, "", "execution timed out after %s", "30s")
	if failed.OK() {
		t.Error("ErrResult should not report OK")
	}
	if !strings.Contains(failed.Diagnostic(), "TIMEOUT") {
		t.Errorf("Diagnostic() = %q", failed.Diagnostic())
	}

	var nilResult *SandboxResult
	if nilResult.OK() {
		t.Error("nil result should not report OK")
	}
	if nilResult.Diagnostic() == "" {
		t.Error("nil result should still produce a diagnostic")
	}
}
