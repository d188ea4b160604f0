package agent

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"reconagent/internal/models"
)

// Policy tunes the correctness heuristics applied to an execution result.
type Policy struct {
	// RequireNonEmpty rejects results where every slice is empty although
	// both inputs had rows.
	RequireNonEmpty bool `yaml:"require_non_empty"`
	// RequirePartition verifies via row ids that every input row appears
	// exactly once across the output.
	RequirePartition bool `yaml:"require_partition"`
	// MinMatchRate rejects results whose matched/total(A) ratio is below
	// the threshold. Zero disables the check.
	MinMatchRate float64 `yaml:"min_match_rate"`
}

// DefaultPolicy returns the built-in evaluation policy.
func DefaultPolicy() Policy {
	return Policy{
		RequireNonEmpty:  true,
		RequirePartition: true,
		MinMatchRate:     0,
	}
}

// LoadPolicy reads a policy YAML file, falling back to defaults when the
// path is empty.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("failed to read evaluation policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, fmt.Errorf("failed to parse evaluation policy: %w", err)
	}
	return policy, nil
}

// Evaluate applies the policy heuristics to one execution result. A failed
// execution always evaluates to a failing verdict carrying the sandbox
// diagnostic, so the refinement prompt sees one consistent shape.
func Evaluate(policy Policy, result *models.SandboxResult, totalA, totalB int) *models.Evaluation {
	if !result.OK() {
		return &models.Evaluation{Pass: false, Diagnostic: result.Diagnostic()}
	}

	out := result.Output
	matchCount := len(out.Matched)
	matchRate := 0.0
	if totalA > 0 {
		matchRate = float64(matchCount) / float64(totalA)
	}

	verdict := &models.Evaluation{
		Pass:       true,
		MatchRate:  matchRate,
		MatchCount: matchCount,
	}

	if policy.RequireNonEmpty && totalA > 0 && totalB > 0 &&
		matchCount == 0 && len(out.UnmatchedA) == 0 && len(out.UnmatchedB) == 0 {
		verdict.Pass = false
		verdict.Diagnostic = fmt.Sprintf("%s: result is empty although inputs have %d and %d rows",
			models.ErrHeuristicViolation, totalA, totalB)
		return verdict
	}

	if policy.RequirePartition {
		if diag := checkPartition(out, models.RowIDKeyA, "A", totalA, true); diag != "" {
			verdict.Pass = false
			verdict.Diagnostic = diag
			return verdict
		}
		if diag := checkPartition(out, models.RowIDKeyB, "B", totalB, false); diag != "" {
			verdict.Pass = false
			verdict.Diagnostic = diag
			return verdict
		}
	}

	if policy.MinMatchRate > 0 && matchRate < policy.MinMatchRate {
		verdict.Pass = false
		verdict.Diagnostic = fmt.Sprintf("%s: match rate %.2f%% is below the required %.2f%%",
			models.ErrHeuristicViolation, matchRate*100, policy.MinMatchRate*100)
		return verdict
	}

	verdict.Diagnostic = fmt.Sprintf("success: %d of %d rows matched (%.2f%%)",
		matchCount, totalA, matchRate*100)
	return verdict
}

// checkPartition verifies that every row id of one side appears exactly once
// across matched plus that side's unmatched slice, and that every id names a
// tagged input row. Uniqueness, membership and cardinality together mean the
// output is an exact partition; a fabricated id cannot stand in for a
// dropped row.
func checkPartition(out *models.ReconcileOutput, key, side string, total int, sideA bool) string {
	seen := make(map[string]int, total)

	unmatched := out.UnmatchedB
	if sideA {
		unmatched = out.UnmatchedA
	}

	for _, row := range out.Matched {
		id, ok := row[key].(string)
		if !ok || id == "" {
			return fmt.Sprintf("%s: a matched row is missing its %q key; matched rows must carry the ids of both source rows",
				models.ErrHeuristicViolation, key)
		}
		seen[id]++
	}
	for _, row := range unmatched {
		id, ok := row[key].(string)
		if !ok || id == "" {
			return fmt.Sprintf("%s: an unmatched %s row is missing its %q key",
				models.ErrHeuristicViolation, side, key)
		}
		seen[id]++
	}

	prefix := lower(side) + "-"
	for id, count := range seen {
		if count > 1 {
			return fmt.Sprintf("%s: %s row %q appears %d times in the output; each input row must appear exactly once",
				models.ErrHeuristicViolation, side, id, count)
		}
		if !validRowID(id, prefix, total) {
			return fmt.Sprintf("%s: %s row id %q does not correspond to any input row; row ids must be carried through unchanged",
				models.ErrHeuristicViolation, side, id)
		}
	}
	if len(seen) != total {
		return fmt.Sprintf("%s: output covers %d of %d %s rows; every input row must land in matched or unmatched_%s",
			models.ErrHeuristicViolation, len(seen), total, side, lower(side))
	}
	return ""
}

// validRowID reports whether id is one of the ids injected at tagging time:
// the side prefix followed by a canonical row index below total.
func validRowID(id, prefix string, total int) bool {
	raw, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return false
	}
	idx, err := strconv.Atoi(raw)
	return err == nil && strconv.Itoa(idx) == raw && idx >= 0 && idx < total
}

func lower(side string) string {
	if side == "A" {
		return "a"
	}
	return "b"
}
