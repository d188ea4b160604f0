package exporter

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"reconagent/internal/models"
)

func TestResultCSV(t *testing.T) {
	rows := []models.Row{
		{"id": int64(1), "amount": 100.5},
		{"id": int64(2), "note": "partial refund"},
	}

	payload, err := ResultCSV(rows)
	if err != nil {
		t.Fatalf("ResultCSV() error = %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(payload)).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header + 2 rows", len(records))
	}

	// Header is the sorted union of row keys.
	wantHeader := []string{"amount", "id", "note"}
	for i, col := range wantHeader {
		if records[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, records[0][i], col)
		}
	}
	// Missing cells render empty.
	if records[2][0] != "" {
		t.Errorf("missing amount = %q, want empty", records[2][0])
	}
	if records[2][2] != "partial refund" {
		t.Errorf("note = %q", records[2][2])
	}
}

func TestResultCSVEmpty(t *testing.T) {
	payload, err := ResultCSV(nil)
	if err != nil {
		t.Fatalf("ResultCSV() error = %v", err)
	}
	if strings.TrimSpace(string(payload)) != "" {
		t.Errorf("empty input should render an empty document, got %q", payload)
	}
}

func TestResultXLSX(t *testing.T) {
	matched := []models.Row{{"id": int64(1), "total": 9.99}}
	unmatchedA := []models.Row{{"id": int64(2)}}
	unmatchedB := []models.Row{{"id": int64(3)}, {"id": int64(4)}}

	payload, err := ResultXLSX(matched, unmatchedA, unmatchedB)
	if err != nil {
		t.Fatalf("ResultXLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("output is not a valid workbook: %v", err)
	}
	defer f.Close()

	wantRows := map[string]int{
		"Matched":     2, // header + 1
		"Unmatched A": 2,
		"Unmatched B": 3,
	}
	for sheet, want := range wantRows {
		rows, err := f.GetRows(sheet)
		if err != nil {
			t.Fatalf("missing sheet %q: %v", sheet, err)
		}
		if len(rows) != want {
			t.Errorf("sheet %q rows = %d, want %d", sheet, len(rows), want)
		}
	}
}

func TestN8NWorkflow(t *testing.T) {
	const code = "func Reconcile(rowsA, rowsB []map[string]interface{}) { /* match on id */ }"
	workflow := N8NWorkflow(code, "")

	if workflow["name"] != WorkflowName {
		t.Errorf("name = %v, want default %q", workflow["name"], WorkflowName)
	}

	nodes, ok := workflow["nodes"].([]map[string]interface{})
	if !ok || len(nodes) != 4 {
		t.Fatalf("nodes = %v, want 4 nodes", workflow["nodes"])
	}

	wantNames := []string{"Upload Files", "Parse Uploaded Files", "Reconciliation Logic", "Reconciliation Results"}
	for i, want := range wantNames {
		if nodes[i]["name"] != want {
			t.Errorf("node[%d] = %v, want %q", i, nodes[i]["name"], want)
		}
	}

	// The generated fragment must be embedded in the logic node.
	logicParams := nodes[2]["parameters"].(map[string]interface{})
	jsCode, _ := logicParams["jsCode"].(string)
	if !strings.Contains(jsCode, code) {
		t.Error("reconciliation node should embed the generated fragment")
	}

	// Nodes are chained: every node except the last has a main connection to
	// its successor.
	connections := workflow["connections"].(map[string]interface{})
	if len(connections) != 3 {
		t.Fatalf("connections = %d, want 3", len(connections))
	}
	for i := 0; i < 3; i++ {
		conn, ok := connections[wantNames[i]].(map[string]interface{})
		if !ok {
			t.Fatalf("node %q has no outgoing connection", wantNames[i])
		}
		main := conn["main"].([][]map[string]interface{})
		if main[0][0]["node"] != wantNames[i+1] {
			t.Errorf("node %q connects to %v, want %q", wantNames[i], main[0][0]["node"], wantNames[i+1])
		}
	}
}

func TestN8NWorkflowCustomName(t *testing.T) {
	workflow := N8NWorkflow("", "Bank vs Ledger")
	if workflow["name"] != "Bank vs Ledger" {
		t.Errorf("name = %v, want custom name", workflow["name"])
	}
}
