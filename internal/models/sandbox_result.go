package models

import (
	"fmt"
	"time"
)

// ErrKind classifies why a sandbox execution (or the generation step feeding
// it) failed. All kinds except UNPARSABLE_FILE are recoverable: the agent
// routes them into the self-correction loop.
type ErrKind string

const (
	ErrNone                ErrKind = ""
	ErrGenerationMalformed ErrKind = "GENERATION_MALFORMED"
	ErrRuntime             ErrKind = "RUNTIME_ERROR"
	ErrTimeout             ErrKind = "TIMEOUT"
	ErrMemoryLimit         ErrKind = "MEMORY_LIMIT"
	ErrHeuristicViolation  ErrKind = "HEURISTIC_VIOLATION"
	ErrUnparsableFile      ErrKind = "UNPARSABLE_FILE"
)

// ReconcileOutput is the labeled partition produced by an accepted fragment.
type ReconcileOutput struct {
	Matched    []Row `json:"matched"`
	UnmatchedA []Row `json:"unmatched_a"`
	UnmatchedB []Row `json:"unmatched_b"`
}

// SandboxResult is the outcome of executing one candidate fragment.
// It is owned by the execution step that produced it and replaced wholesale
// on every retry — results are never shared across iterations.
type SandboxResult struct {
	Output     *ReconcileOutput `json:"output,omitempty"`
	ErrKind    ErrKind          `json:"err_kind,omitempty"`
	ErrMessage string           `json:"err_message,omitempty"`
	Stdout     string           `json:"stdout"`
	Duration   time.Duration    `json:"duration_ns"`
}

// OK reports whether the execution succeeded.
func (r *SandboxResult) OK() bool {
	return r != nil && r.ErrKind == ErrNone && r.Output != nil
}

// Diagnostic returns a one-line description suitable for prompt context.
func (r *SandboxResult) Diagnostic() string {
	if r == nil {
		return "no execution result"
	}
	if r.OK() {
		return fmt.Sprintf("success: %d matched, %d unmatched in A, %d unmatched in B",
			len(r.Output.Matched), len(r.Output.UnmatchedA), len(r.Output.UnmatchedB))
	}
	return fmt.Sprintf("%s: %s", r.ErrKind, r.ErrMessage)
}

// OkResult builds a successful SandboxResult.
func OkResult(out *ReconcileOutput, stdout string, elapsed time.Duration) *SandboxResult {
	return &SandboxResult{Output: out, Stdout: stdout, Duration: elapsed}
}

// ErrResult builds a failed SandboxResult with a formatted message.
func ErrResult(kind ErrKind, stdout string, format string, args ...interface{}) *SandboxResult {
	return &SandboxResult{
		ErrKind:    kind,
		ErrMessage: fmt.Sprintf(format, args...),
		Stdout:     stdout,
	}
}

// Evaluation is the verdict the agent derives from a SandboxResult plus the
// correctness heuristics.
type Evaluation struct {
	Pass       bool    `json:"pass"`
	Diagnostic string  `json:"diagnostic"`
	MatchRate  float64 `json:"match_rate"`
	MatchCount int     `json:"match_count"`
}
