package exporter

import (
	"fmt"

	"github.com/google/uuid"
)

// WorkflowName is the default name for exported n8n workflows.
const WorkflowName = "Reconciliation Workflow"

// N8NWorkflow builds an importable n8n workflow JSON structure that mirrors
// the discovered reconciliation logic: a form trigger for the two files, a
// CSV parsing code node, a reconciliation code node carrying the generated
// Go fragment as a reference comment, and a results set node.
func N8NWorkflow(generatedCode, workflowName string) map[string]interface{} {
	if workflowName == "" {
		workflowName = WorkflowName
	}

	trigger := triggerNode()
	parse := parseFilesNode()
	logic := reconciliationNode(generatedCode)
	output := outputNode()
	nodes := []map[string]interface{}{trigger, parse, logic, output}

	connections := map[string]interface{}{}
	for i := 0; i < len(nodes)-1; i++ {
		connections[nodes[i]["name"].(string)] = map[string]interface{}{
			"main": [][]map[string]interface{}{{{
				"node":  nodes[i+1]["name"],
				"type":  "main",
				"index": 0,
			}}},
		}
	}

	return map[string]interface{}{
		"name":        workflowName,
		"nodes":       nodes,
		"connections": connections,
		"active":      false,
		"settings": map[string]interface{}{
			"executionOrder": "v1",
		},
		"versionId": uuid.NewString(),
		"meta": map[string]interface{}{
			"instanceId":                 "reconagent-generated",
			"templateCredsSetupCompleted": true,
		},
		"id": uuid.NewString(),
		"tags": []map[string]interface{}{
			{"name": "reconciliation"},
			{"name": "auto-generated"},
		},
		"pinData": map[string]interface{}{},
	}
}

func triggerNode() map[string]interface{} {
	return map[string]interface{}{
		"id":          uuid.NewString(),
		"name":        "Upload Files",
		"type":        "n8n-nodes-base.formTrigger",
		"typeVersion": 2.2,
		"position":    []int{0, 300},
		"webhookId":   uuid.NewString(),
		"parameters": map[string]interface{}{
			"formTitle":       "Reconciliation Data Upload",
			"formDescription": "Upload your two datasets (CSV or PDF) for reconciliation",
			"formFields": map[string]interface{}{
				"values": []map[string]interface{}{
					{
						"fieldLabel":      "Dataset A (Source)",
						"fieldType":       "file",
						"requiredField":   true,
						"acceptFileTypes": ".csv,.pdf,.xlsx,.xls",
						"multipleFiles":   false,
					},
					{
						"fieldLabel":      "Dataset B (Target)",
						"fieldType":       "file",
						"requiredField":   true,
						"acceptFileTypes": ".csv,.pdf,.xlsx,.xls",
						"multipleFiles":   false,
					},
					{
						"fieldLabel":    "Matching Hint (Optional)",
						"fieldType":     "textarea",
						"requiredField": false,
						"placeholder":   "e.g., Match by reference numbers embedded in the narration",
					},
				},
			},
			"options": map[string]interface{}{
				"respondWithOptions": map[string]interface{}{
					"values": map[string]interface{}{
						"formSubmittedText": "Files uploaded successfully! Processing reconciliation...",
					},
				},
			},
		},
	}
}

func parseFilesNode() map[string]interface{} {
	return map[string]interface{}{
		"id":          uuid.NewString(),
		"name":        "Parse Uploaded Files",
		"type":        "n8n-nodes-base.code",
		"typeVersion": 2,
		"position":    []int{220, 300},
		"parameters": map[string]interface{}{
			"jsCode": fileParserJS,
			"mode":   "runOnceForAllItems",
		},
		"notesInFlow": true,
		"notes":       "Parses uploaded CSV files from the form. For PDF files, add an Extract from PDF node before this.",
	}
}

func reconciliationNode(generatedCode string) map[string]interface{} {
	return map[string]interface{}{
		"id":          uuid.NewString(),
		"name":        "Reconciliation Logic",
		"type":        "n8n-nodes-base.code",
		"typeVersion": 2,
		"position":    []int{440, 300},
		"parameters": map[string]interface{}{
			"jsCode": reconciliationJS(generatedCode),
			"mode":   "runOnceForAllItems",
		},
		"notesInFlow": true,
		"notes":       "JavaScript reconciliation logic. Modify this code to match your specific data structure and matching requirements.",
	}
}

func outputNode() map[string]interface{} {
	assignment := func(name, value, typ string) map[string]interface{} {
		return map[string]interface{}{
			"id":    uuid.NewString(),
			"name":  name,
			"value": value,
			"type":  typ,
		}
	}
	return map[string]interface{}{
		"id":          uuid.NewString(),
		"name":        "Reconciliation Results",
		"type":        "n8n-nodes-base.set",
		"typeVersion": 3.4,
		"position":    []int{660, 300},
		"parameters": map[string]interface{}{
			"mode":          "manual",
			"duplicateItem": false,
			"assignments": map[string]interface{}{
				"assignments": []map[string]interface{}{
					assignment("matched_count", "={{ $json.matched?.length || $json.matched_count || 0 }}", "number"),
					assignment("unmatched_a_count", "={{ $json.unmatched_a?.length || 0 }}", "number"),
					assignment("unmatched_b_count", "={{ $json.unmatched_b?.length || 0 }}", "number"),
					assignment("matched", "={{ $json.matched }}", "array"),
					assignment("unmatched_a", "={{ $json.unmatched_a }}", "array"),
					assignment("unmatched_b", "={{ $json.unmatched_b }}", "array"),
				},
			},
			"options": map[string]interface{}{},
		},
	}
}

// reconciliationJS renders the code node body: a generic JS reconciliation
// skeleton with the discovered Go fragment embedded as a reference comment so
// the workflow author can port the exact matching rules.
func reconciliationJS(generatedCode string) string {
	return fmt.Sprintf(`// ============================================
// Reconciliation Workflow (Auto-generated)
// ============================================
//
// Discovered Go reconciliation logic for reference:
/*
%s
*/

// Get input data from previous node (parsed from form uploads)
const items = $input.all();
const inputData = items[0]?.json || {};

const datasetA = inputData.dataset_a || [];
const datasetB = inputData.dataset_b || [];
const userHint = inputData.hint || '';

console.log('Dataset A: ' + datasetA.length + ' records');
console.log('Dataset B: ' + datasetB.length + ' records');
if (userHint) console.log('User hint: ' + userHint);

// ============================================
// RECONCILIATION LOGIC
// Port the matching rules from the Go fragment above.
// ============================================

const matched = [];
const unmatchedA = [];
const unmatchedB = [...datasetB];

function normalize(text) {
  if (!text) return '';
  return String(text).trim().toUpperCase().replace(/\s+/g, ' ');
}

datasetA.forEach((recordA) => {
  const keyA = normalize(Object.values(recordA)[0]);

  const matchIndex = unmatchedB.findIndex(recordB =>
    normalize(Object.values(recordB)[0]) === keyA
  );

  if (matchIndex !== -1) {
    matched.push({
      ...recordA,
      matched_from_b: unmatchedB[matchIndex],
      match_key: keyA,
    });
    unmatchedB.splice(matchIndex, 1);
  } else {
    unmatchedA.push(recordA);
  }
});

const totalA = datasetA.length;
const matchRate = totalA > 0 ? (matched.length / totalA) : 0;

return [{
  json: {
    matched: matched,
    unmatched_a: unmatchedA,
    unmatched_b: unmatchedB,
    statistics: {
      matched_count: matched.length,
      unmatched_a_count: unmatchedA.length,
      unmatched_b_count: unmatchedB.length,
      total_a: totalA,
      total_b: datasetB.length,
      match_rate: (matchRate * 100).toFixed(2) + '%%'
    }
  }
}];
`, generatedCode)
}

const fileParserJS = `// ============================================
// Parse Uploaded Files from Form
// ============================================

const items = $input.all();
const formData = items[0]?.json || {};
const binaryData = items[0]?.binary || {};

function parseCSV(csvContent) {
  const lines = csvContent.trim().split('\n');
  if (lines.length === 0) return [];

  const header = parseCSVLine(lines[0]);

  const data = [];
  for (let i = 1; i < lines.length; i++) {
    if (lines[i].trim()) {
      const values = parseCSVLine(lines[i]);
      const row = {};
      header.forEach((col, idx) => {
        row[col.trim()] = values[idx]?.trim() || '';
      });
      data.push(row);
    }
  }
  return data;
}

function parseCSVLine(line) {
  const result = [];
  let current = '';
  let inQuotes = false;

  for (let i = 0; i < line.length; i++) {
    const char = line[i];
    if (char === '"') {
      inQuotes = !inQuotes;
    } else if (char === ',' && !inQuotes) {
      result.push(current);
      current = '';
    } else {
      current += char;
    }
  }
  result.push(current);
  return result;
}

let datasetA = [];
const fileAKey = Object.keys(binaryData).find(k => k.includes('Dataset_A') || k.includes('file') || k === 'data');
if (fileAKey && binaryData[fileAKey]) {
  const fileA = binaryData[fileAKey];
  if (fileA.mimeType?.includes('csv') || fileA.fileName?.endsWith('.csv')) {
    const content = Buffer.from(fileA.data, 'base64').toString('utf-8');
    datasetA = parseCSV(content);
  }
}

let datasetB = [];
const fileBKey = Object.keys(binaryData).find(k => k.includes('Dataset_B') || k.includes('file1') || k === 'data1');
if (fileBKey && binaryData[fileBKey]) {
  const fileB = binaryData[fileBKey];
  if (fileB.mimeType?.includes('csv') || fileB.fileName?.endsWith('.csv')) {
    const content = Buffer.from(fileB.data, 'base64').toString('utf-8');
    datasetB = parseCSV(content);
  }
}

const hint = formData['Matching Hint (Optional)'] || formData.hint || '';

return [{
  json: {
    dataset_a: datasetA,
    dataset_b: datasetB,
    hint: hint,
    file_a_rows: datasetA.length,
    file_b_rows: datasetB.length
  }
}];
`
