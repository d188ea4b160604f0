package agent

import (
	"strings"
	"testing"
	"time"

	"reconagent/internal/models"
)

func okResult(out *models.ReconcileOutput) *models.SandboxResult {
	return models.OkResult(out, "", 10*time.Millisecond)
}

// Two A rows matched against two of three B rows, one A row unmatched.
func cleanOutput() *models.ReconcileOutput {
	return &models.ReconcileOutput{
		Matched: []models.Row{
			{"_rid_a": "a-0", "_rid_b": "b-0", "id": int64(1)},
			{"_rid_a": "a-1", "_rid_b": "b-2", "id": int64(2)},
		},
		UnmatchedA: []models.Row{
			{"_rid_a": "a-2", "id": int64(3)},
		},
		UnmatchedB: []models.Row{
			{"_rid_b": "b-1", "id": int64(9)},
		},
	}
}

func TestEvaluatePassesCleanPartition(t *testing.T) {
	verdict := Evaluate(DefaultPolicy(), okResult(cleanOutput()), 3, 3)

	if !verdict.Pass {
		t.Fatalf("expected pass, got diagnostic: %s", verdict.Diagnostic)
	}
	if verdict.MatchCount != 2 {
		t.Errorf("MatchCount = %d, want 2", verdict.MatchCount)
	}
	if want := 2.0 / 3.0; verdict.MatchRate != want {
		t.Errorf("MatchRate = %f, want %f", verdict.MatchRate, want)
	}
}

func TestEvaluateFailedExecution(t *testing.T) {
	result := models.ErrResult(models.ErrTimeout, "", "execution timed out after 30s")
	verdict := Evaluate(DefaultPolicy(), result, 3, 3)

	if verdict.Pass {
		t.Fatal("expected failing verdict for a failed execution")
	}
	if !strings.Contains(verdict.Diagnostic, "TIMEOUT") {
		t.Errorf("diagnostic %q should carry the error kind", verdict.Diagnostic)
	}
}

func TestEvaluateRejectsEmptyResult(t *testing.T) {
	empty := &models.ReconcileOutput{
		Matched:    []models.Row{},
		UnmatchedA: []models.Row{},
		UnmatchedB: []models.Row{},
	}
	verdict := Evaluate(DefaultPolicy(), okResult(empty), 3, 3)

	if verdict.Pass {
		t.Fatal("expected empty result to be rejected")
	}
	if !strings.Contains(verdict.Diagnostic, string(models.ErrHeuristicViolation)) {
		t.Errorf("diagnostic %q should name the heuristic violation", verdict.Diagnostic)
	}
}

func TestEvaluatePartitionViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(out *models.ReconcileOutput)
		want   string
	}{
		{
			name: "duplicated A row",
			mutate: func(out *models.ReconcileOutput) {
				out.UnmatchedA = append(out.UnmatchedA, models.Row{"_rid_a": "a-0", "id": int64(1)})
			},
			want: "appears 2 times",
		},
		{
			name: "dropped A row",
			mutate: func(out *models.ReconcileOutput) {
				out.UnmatchedA = nil
			},
			want: "covers 2 of 3 A rows",
		},
		{
			name: "matched row missing B id",
			mutate: func(out *models.ReconcileOutput) {
				delete(out.Matched[0], "_rid_b")
			},
			want: "missing",
		},
		{
			name: "dropped B row",
			mutate: func(out *models.ReconcileOutput) {
				out.UnmatchedB = nil
			},
			want: "covers 2 of 3 B rows",
		},
		{
			name: "fabricated A row id",
			mutate: func(out *models.ReconcileOutput) {
				// Right cardinality, but a-2 is replaced by an id that
				// never existed in the input.
				out.UnmatchedA = []models.Row{{"_rid_a": "a-99", "id": int64(3)}}
			},
			want: `"a-99" does not correspond to any input row`,
		},
		{
			name: "non-canonical A row id",
			mutate: func(out *models.ReconcileOutput) {
				out.UnmatchedA = []models.Row{{"_rid_a": "a-02", "id": int64(3)}}
			},
			want: "does not correspond to any input row",
		},
		{
			name: "foreign id shape",
			mutate: func(out *models.ReconcileOutput) {
				out.UnmatchedA = []models.Row{{"_rid_a": "row-2", "id": int64(3)}}
			},
			want: "does not correspond to any input row",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := cleanOutput()
			tt.mutate(out)
			verdict := Evaluate(DefaultPolicy(), okResult(out), 3, 3)

			if verdict.Pass {
				t.Fatal("expected partition violation to fail evaluation")
			}
			if !strings.Contains(verdict.Diagnostic, tt.want) {
				t.Errorf("diagnostic %q should contain %q", verdict.Diagnostic, tt.want)
			}
		})
	}
}

func TestEvaluateMinMatchRate(t *testing.T) {
	policy := DefaultPolicy()
	policy.MinMatchRate = 0.9

	verdict := Evaluate(policy, okResult(cleanOutput()), 3, 3)
	if verdict.Pass {
		t.Fatal("expected 66% match rate to fail a 90% threshold")
	}
	if !strings.Contains(verdict.Diagnostic, "below the required") {
		t.Errorf("unexpected diagnostic: %s", verdict.Diagnostic)
	}

	policy.MinMatchRate = 0.5
	verdict = Evaluate(policy, okResult(cleanOutput()), 3, 3)
	if !verdict.Pass {
		t.Fatalf("expected 66%% match rate to pass a 50%% threshold, got: %s", verdict.Diagnostic)
	}
}

func TestEvaluatePartitionCheckDisabled(t *testing.T) {
	policy := DefaultPolicy()
	policy.RequirePartition = false

	out := cleanOutput()
	out.UnmatchedA = nil // would violate the partition check
	verdict := Evaluate(policy, okResult(out), 3, 3)

	if !verdict.Pass {
		t.Fatalf("expected pass with partition check disabled, got: %s", verdict.Diagnostic)
	}
}
