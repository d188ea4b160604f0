package models

import (
	"fmt"
	"strings"
)

// ColumnType is the inferred scalar type of a dataset column.
type ColumnType string

const (
	ColumnString  ColumnType = "string"
	ColumnInteger ColumnType = "integer"
	ColumnFloat   ColumnType = "float"
	ColumnBool    ColumnType = "bool"
	ColumnDate    ColumnType = "date"
)

// Row is a single dataset record, keyed by column name.
type Row = map[string]interface{}

// Reserved row-id keys injected into dataset rows when a reconciliation run
// is created. Evaluation heuristics use them to verify that the matched /
// unmatched partitions cover every input row exactly once. They are stripped
// from previews and exports.
const (
	RowIDKeyA = "_rid_a"
	RowIDKeyB = "_rid_b"
)

// Column describes one dataset column.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Dataset is an immutable logical table parsed from an uploaded file.
// It is created once at upload time and never mutated afterwards;
// re-uploading creates a new Dataset.
type Dataset struct {
	Name       string   `json:"name"`
	SourceFile string   `json:"source_file"`
	SourceType string   `json:"source_type"` // csv, excel, pdf
	Columns    []Column `json:"columns"`
	Rows       []Row    `json:"rows"`
}

// ColumnNames returns the ordered column names.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// RowCount returns the number of rows.
func (d *Dataset) RowCount() int { return len(d.Rows) }

// SchemaSummary renders "name (type), name (type), ..." for prompt context.
func (d *Dataset) SchemaSummary() string {
	parts := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		parts[i] = fmt.Sprintf("%s (%s)", c.Name, c.Type)
	}
	return strings.Join(parts, ", ")
}

// MarkdownPreview renders the first n rows as a markdown table for LLM context.
// Reserved row-id keys are excluded.
func (d *Dataset) MarkdownPreview(n int) string {
	if len(d.Columns) == 0 {
		return "(no columns)"
	}
	if n > len(d.Rows) {
		n = len(d.Rows)
	}

	var b strings.Builder
	names := d.ColumnNames()
	b.WriteString("| " + strings.Join(names, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(names)) + "\n")
	for _, row := range d.Rows[:n] {
		cells := make([]string, len(names))
		for i, name := range names {
			cells[i] = formatCell(row[name])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return b.String()
}

// SampleRows returns up to n rows with reserved row-id keys stripped.
func (d *Dataset) SampleRows(n int) []Row {
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	out := make([]Row, 0, n)
	for _, row := range d.Rows[:n] {
		out = append(out, StripRowIDs(row))
	}
	return out
}

// TagRowIDs returns a deep copy of the dataset whose rows carry the given
// row-id key ("a-0", "a-1", ... for prefix "a"). The original dataset is
// left untouched.
func (d *Dataset) TagRowIDs(key, prefix string) *Dataset {
	tagged := &Dataset{
		Name:       d.Name,
		SourceFile: d.SourceFile,
		SourceType: d.SourceType,
		Columns:    append([]Column(nil), d.Columns...),
		Rows:       make([]Row, len(d.Rows)),
	}
	for i, row := range d.Rows {
		copied := make(Row, len(row)+1)
		for k, v := range row {
			copied[k] = v
		}
		copied[key] = fmt.Sprintf("%s-%d", prefix, i)
		tagged.Rows[i] = copied
	}
	return tagged
}

// StripRowIDs returns a copy of row without the reserved row-id keys.
func StripRowIDs(row Row) Row {
	out := make(Row, len(row))
	for k, v := range row {
		if k == RowIDKeyA || k == RowIDKeyB {
			continue
		}
		out[k] = v
	}
	return out
}

// StripRowIDsAll applies StripRowIDs to every row.
func StripRowIDsAll(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = StripRowIDs(r)
	}
	return out
}

func formatCell(v interface{}) string {
	if v == nil {
		return ""
	}
	s := fmt.Sprintf("%v", v)
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
