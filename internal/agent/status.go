package agent

import "log"

// Status represents valid reconciliation run states.
type Status string

const (
	StatusAnalyzing        Status = "ANALYZING"
	StatusGenerating       Status = "GENERATING"
	StatusExecuting        Status = "EXECUTING"
	StatusEvaluating       Status = "EVALUATING"
	StatusSelfCorrecting   Status = "SELF_CORRECTING"
	StatusAwaitingFeedback Status = "AWAITING_FEEDBACK"
	StatusSucceeded        Status = "SUCCEEDED"
	StatusFailed           Status = "FAILED"
)

// validTransitions defines the allowed state transitions for a run.
// Any transition not listed here is invalid and will be rejected.
var validTransitions = map[Status]map[Status]bool{
	StatusAnalyzing: {
		StatusGenerating: true,
		StatusFailed:     true,
	},
	StatusGenerating: {
		StatusExecuting: true,
		// Malformed code skips execution and goes straight to evaluation.
		StatusEvaluating: true,
		// Hard provider errors end the run.
		StatusFailed: true,
	},
	StatusExecuting: {
		StatusEvaluating: true,
	},
	StatusEvaluating: {
		StatusSucceeded:      true,
		StatusSelfCorrecting: true,
		StatusFailed:         true,
	},
	StatusSelfCorrecting: {
		StatusGenerating: true,
	},
	// Terminal states accept feedback, which re-arms the loop.
	StatusSucceeded: {
		StatusAwaitingFeedback: true,
	},
	StatusFailed: {
		StatusAwaitingFeedback: true,
	},
	StatusAwaitingFeedback: {
		StatusGenerating: true,
	},
}

// Transition validates and performs a run status transition.
// Returns the new status if valid, or the current status if the transition is invalid.
func Transition(current, desired Status) Status {
	allowed, exists := validTransitions[current]
	if !exists || !allowed[desired] {
		log.Printf("⚠️ [STATE] Invalid run transition: %s → %s (rejected)", current, desired)
		return current
	}
	return desired
}

// IsTerminal returns true if the status is a final state.
// AWAITING_FEEDBACK is not terminal: a feedback submission resumes the run.
func IsTerminal(status Status) bool {
	return status == StatusSucceeded || status == StatusFailed
}
