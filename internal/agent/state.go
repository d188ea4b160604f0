package agent

import (
	"time"

	"reconagent/internal/models"
)

// State carries everything a reconciliation run accumulates: the tagged
// datasets, the analysis and strategy, every generated fragment, the latest
// execution result, and the full reasoning trace. It is JSON-serializable so
// it can be snapshotted to the database between steps.
type State struct {
	SessionID string `json:"session_id"`

	DatasetA *models.Dataset `json:"dataset_a"`
	DatasetB *models.Dataset `json:"dataset_b"`

	UserHint        string   `json:"user_hint,omitempty"`
	FeedbackHistory []string `json:"feedback_history,omitempty"`

	Analysis         string `json:"analysis,omitempty"`
	MatchingStrategy string `json:"matching_strategy,omitempty"`

	GeneratedCode string   `json:"generated_code,omitempty"`
	CodeHistory   []string `json:"code_history,omitempty"`

	LastResult     *models.SandboxResult `json:"last_result,omitempty"`
	LastEvaluation *models.Evaluation    `json:"last_evaluation,omitempty"`

	Matched    []models.Row `json:"matched_records,omitempty"`
	UnmatchedA []models.Row `json:"unmatched_a,omitempty"`
	UnmatchedB []models.Row `json:"unmatched_b,omitempty"`
	MatchRate  float64      `json:"match_rate"`
	MatchCount int          `json:"match_count"`

	IterationCount int    `json:"iteration_count"`
	MaxIterations  int    `json:"max_iterations"`
	Status         Status `json:"status"`
	FailureReason  string `json:"failure_reason,omitempty"`

	ReasoningTrace []string `json:"reasoning_trace,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState creates the initial state for a reconciliation run. The datasets
// are copied and tagged with row ids so evaluation can verify that the
// output partitions cover every input row.
func NewState(sessionID string, datasetA, datasetB *models.Dataset, hint string, maxIterations int) *State {
	now := time.Now().UTC()
	return &State{
		SessionID:      sessionID,
		DatasetA:       datasetA.TagRowIDs(models.RowIDKeyA, "a"),
		DatasetB:       datasetB.TagRowIDs(models.RowIDKeyB, "b"),
		UserHint:       hint,
		MaxIterations:  maxIterations,
		Status:         StatusAnalyzing,
		ReasoningTrace: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a copy that is safe to hand to another goroutine while this
// state keeps being mutated. Slices are duplicated; the datasets and result
// pointers are shared because they are never mutated after being set.
func (s *State) Clone() *State {
	c := *s
	c.FeedbackHistory = append([]string(nil), s.FeedbackHistory...)
	c.CodeHistory = append([]string(nil), s.CodeHistory...)
	c.ReasoningTrace = append([]string(nil), s.ReasoningTrace...)
	c.Matched = append([]models.Row(nil), s.Matched...)
	c.UnmatchedA = append([]models.Row(nil), s.UnmatchedA...)
	c.UnmatchedB = append([]models.Row(nil), s.UnmatchedB...)
	return &c
}

// Trace appends one entry to the reasoning trace.
func (s *State) Trace(entry string) {
	s.ReasoningTrace = append(s.ReasoningTrace, entry)
	s.UpdatedAt = time.Now().UTC()
}

// SetStatus performs a validated status transition.
func (s *State) SetStatus(desired Status) {
	s.Status = Transition(s.Status, desired)
	s.UpdatedAt = time.Now().UTC()
}

// LastError returns the diagnostic of the most recent failed execution, or
// an empty string if the last execution succeeded.
func (s *State) LastError() string {
	if s.LastResult == nil || s.LastResult.OK() {
		if s.LastEvaluation != nil && !s.LastEvaluation.Pass {
			return s.LastEvaluation.Diagnostic
		}
		return ""
	}
	return s.LastResult.Diagnostic()
}

// LatestFeedback returns the most recent user feedback, if any.
func (s *State) LatestFeedback() string {
	if len(s.FeedbackHistory) == 0 {
		return ""
	}
	return s.FeedbackHistory[len(s.FeedbackHistory)-1]
}
