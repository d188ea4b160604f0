package models

import "time"

// FileMetadata describes an uploaded, parsed file.
type FileMetadata struct {
	Filename  string   `json:"filename"`
	FileType  string   `json:"file_type"`
	Rows      int      `json:"rows"`
	Columns   []string `json:"columns"`
	SizeBytes int      `json:"size_bytes"`
	Sheets    []string `json:"sheets,omitempty"`
	Encoding  string   `json:"encoding,omitempty"`
}

// DataPreview is the API-facing preview of a dataset.
type DataPreview struct {
	Columns    []string          `json:"columns"`
	Types      map[string]string `json:"types"`
	SampleRows []Row             `json:"sample_rows"`
	TotalRows  int               `json:"total_rows"`
}

// CreateSessionResponse is returned by POST /api/sessions.
type CreateSessionResponse struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// UploadResponse is returned after both datasets were parsed.
type UploadResponse struct {
	SessionID string        `json:"session_id"`
	Status    string        `json:"status"`
	DatasetA  *FileMetadata `json:"dataset_a"`
	DatasetB  *FileMetadata `json:"dataset_b"`
	PreviewA  *DataPreview  `json:"preview_a"`
	PreviewB  *DataPreview  `json:"preview_b"`
}

// ReconcileRequest starts a reconciliation run.
type ReconcileRequest struct {
	Hint string `json:"hint"`
}

// StatusResponse is the polling payload for an ongoing run.
type StatusResponse struct {
	SessionID     string  `json:"session_id"`
	Status        string  `json:"status"`
	Iteration     int     `json:"iteration"`
	MaxIterations int     `json:"max_iterations"`
	MatchRate     float64 `json:"match_rate"`
	Message       string  `json:"message,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// ResultResponse is the full artifact payload of a finished run.
type ResultResponse struct {
	SessionID       string   `json:"session_id"`
	Status          string   `json:"status"`
	MatchRate       float64  `json:"match_rate"`
	MatchedCount    int      `json:"matched_count"`
	UnmatchedACount int      `json:"unmatched_a_count"`
	UnmatchedBCount int      `json:"unmatched_b_count"`
	TotalACount     int      `json:"total_a_count"`
	TotalBCount     int      `json:"total_b_count"`
	GeneratedCode   string   `json:"generated_code"`
	ReasoningTrace  []string `json:"reasoning_trace"`
	Matched         []Row    `json:"matched_records"`
	UnmatchedA      []Row    `json:"unmatched_a"`
	UnmatchedB      []Row    `json:"unmatched_b"`
}

// FeedbackRequest submits user feedback on a terminal run.
type FeedbackRequest struct {
	Feedback string `json:"feedback"`
}

// FeedbackResponse acknowledges a feedback submission.
type FeedbackResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// WorkflowResponse wraps an exported n8n workflow definition.
type WorkflowResponse struct {
	Workflow map[string]interface{} `json:"workflow"`
	Filename string                 `json:"filename"`
}
