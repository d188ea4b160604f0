package agent

import (
	"fmt"
	"strings"
)

const previewRows = 10
const samplePreviewRows = 5

const analysisSystemPrompt = `You are an expert Data Reconciliation Analyst specializing in financial data matching.

Your task is to analyze two datasets and identify the best strategy for reconciling them.

When analyzing datasets, consider:
1. Column names and their likely meanings
2. Data types (dates, amounts, IDs, descriptions)
3. Potential matching keys (transaction IDs, reference numbers, amounts, dates)
4. Data format differences (date formats, number formats, string variations)
5. Possible matching patterns:
   - Direct key matching (same ID in both datasets)
   - Reference number extraction (codes embedded in free text)
   - Fuzzy name matching (company name variations)
   - Amount matching with tolerance (for fees/adjustments)
   - Date matching with tolerance (for processing delays)
   - One-to-many aggregation (one payment for multiple invoices)

Be specific about:
- Which columns to use for matching
- What transformations are needed
- Expected match rate
- Potential challenges

Output your analysis in a clear, structured format.`

const strategySystemPrompt = `You are a data reconciliation strategist. Provide clear, actionable matching strategies.`

const codeGenerationSystemPrompt = `You are an expert Go developer specializing in data reconciliation.

Your task is to write a Go code fragment that reconciles two row sets.

CRITICAL REQUIREMENTS:
1. Your code MUST define exactly this function:
   func Reconcile(rowsA, rowsB []map[string]interface{}) (matched, unmatchedA, unmatchedB []map[string]interface{}, err error)
2. Every input row carries opaque bookkeeping keys starting with "_rid". Preserve them:
   each matched row must contain the "_rid_a" of its A row and the "_rid_b" of its B row,
   each unmatched row must keep its own "_rid" key.
3. Each input row must appear exactly once in the output: either in matched or in the
   corresponding unmatched slice. Never drop or duplicate rows.
4. You may ONLY import: strings, strconv, fmt, math, sort, regexp, time, errors, unicode, encoding/json
5. Do NOT import any other packages. No file, network, or OS access.
6. Handle missing values (nil) and data type mismatches gracefully. Cell values are
   string, int64, float64, bool, or nil.
7. Include comments explaining the matching logic.

COMMON PATTERNS:
- Extract reference numbers: regexp.MustCompile(` + "`" + `RFX[A-Z0-9]+` + "`" + `).FindString(asString(row["narration"]))
- Parse dates: time.Parse("02-Jan-06", s)
- Fuzzy matching: normalize strings (strings.ToUpper, strings.TrimSpace, strip punctuation) before comparing
- Amount tolerance: math.Abs(a-b) < tolerance

OUTPUT FORMAT:
Return only the Go code, wrapped in a single ` + "```go" + ` code block.
The fragment must be complete: all helper functions defined, no placeholders.`

const refinementSystemPrompt = `You are an expert Go developer debugging and improving reconciliation code.

Your task is to analyze the previous execution result and improve the code based on:
1. Error messages (fix bugs)
2. Low match rate (improve matching logic)
3. User feedback (incorporate specific requirements)

When refining code:
- Keep what works, fix what doesn't
- Add additional matching strategies if needed
- Handle edge cases mentioned in feedback

CRITICAL REQUIREMENTS:
1. Your code MUST define exactly this function:
   func Reconcile(rowsA, rowsB []map[string]interface{}) (matched, unmatchedA, unmatchedB []map[string]interface{}, err error)
2. Preserve the "_rid_a"/"_rid_b" bookkeeping keys: matched rows carry both, unmatched rows keep their own.
3. Each input row must appear exactly once in the output.
4. You may ONLY import: strings, strconv, fmt, math, sort, regexp, time, errors, unicode, encoding/json

OUTPUT FORMAT:
Return only the improved Go code, wrapped in a single ` + "```go" + ` code block.`

// buildAnalysisPrompt formats the dataset analysis request.
func buildAnalysisPrompt(s *State) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze these two datasets for reconciliation:\n\n")
	fmt.Fprintf(&b, "## Dataset A (Source): %d rows\n", s.DatasetA.RowCount())
	fmt.Fprintf(&b, "Columns: %s\n\nPreview:\n%s\n\n",
		s.DatasetA.SchemaSummary(), s.DatasetA.MarkdownPreview(previewRows))
	fmt.Fprintf(&b, "## Dataset B (Target): %d rows\n", s.DatasetB.RowCount())
	fmt.Fprintf(&b, "Columns: %s\n\nPreview:\n%s\n",
		s.DatasetB.SchemaSummary(), s.DatasetB.MarkdownPreview(previewRows))

	if s.UserHint != "" {
		fmt.Fprintf(&b, "\n## User Hint\n%s\n", s.UserHint)
	}

	b.WriteString(`
Analyze these datasets and provide:
1. Key observations about each dataset
2. Identified matching columns/keys
3. Required transformations
4. Recommended matching strategy
5. Expected challenges and how to handle them`)

	return b.String()
}

// buildStrategyPrompt asks the model to turn the analysis into actionable rules.
func buildStrategyPrompt(s *State) string {
	return fmt.Sprintf(`Based on this analysis of the two datasets:

%s

Provide a specific, step-by-step matching strategy that includes:
1. Primary matching key(s) and how to extract/transform them
2. Secondary matching criteria if primary fails
3. How to handle unmatched records
4. Any data cleaning steps needed

Be specific about column names and transformations.`, s.Analysis)
}

// buildGenerationPrompt formats the first code generation request.
func buildGenerationPrompt(s *State) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate Go reconciliation code based on this analysis:\n\n")
	fmt.Fprintf(&b, "## Analysis\n%s\n\n", orDefault(s.Analysis, "No analysis available"))
	fmt.Fprintf(&b, "## Matching Strategy\n%s\n\n", orDefault(s.MatchingStrategy, "No strategy available"))
	writeSchemas(&b, s)

	if diag := s.LastError(); diag != "" {
		fmt.Fprintf(&b, "\n## Previous Error\n%s\nFix this error in the new code.\n", diag)
	}
	if fb := s.LatestFeedback(); fb != "" {
		fmt.Fprintf(&b, "\n## User Feedback\n%s\nIncorporate this feedback in the code.\n", fb)
	}

	b.WriteString(`
Write the reconciliation code. Remember:
- Define func Reconcile(rowsA, rowsB []map[string]interface{}) (matched, unmatchedA, unmatchedB []map[string]interface{}, err error)
- Preserve the "_rid_a"/"_rid_b" keys on every output row
- Every input row must land in exactly one output slice`)

	return b.String()
}

// buildRefinementPrompt formats a self-correction request carrying the
// previous fragment and its diagnostic.
func buildRefinementPrompt(s *State) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Improve the reconciliation code based on this feedback:\n\n")
	fmt.Fprintf(&b, "## Previous Code\n```go\n%s\n```\n\n", s.GeneratedCode)

	diag := "no result"
	if s.LastResult != nil {
		diag = s.LastResult.Diagnostic()
	}
	fmt.Fprintf(&b, "## Execution Result\n%s\n\n", diag)
	if s.LastEvaluation != nil {
		fmt.Fprintf(&b, "## Evaluation\n%s\n\n", s.LastEvaluation.Diagnostic)
	}
	fmt.Fprintf(&b, "## Current Match Rate\n%.2f%% (%d matched out of %d records)\n\n",
		s.MatchRate*100, s.MatchCount, s.DatasetA.RowCount())

	if fb := s.LatestFeedback(); fb != "" {
		fmt.Fprintf(&b, "## User Feedback\n%s\n\n", fb)
	}

	writeSchemas(&b, s)
	b.WriteString("\nPlease fix the issues and improve the matching logic. Return the complete updated code.")

	return b.String()
}

func writeSchemas(b *strings.Builder, s *State) {
	fmt.Fprintf(b, "## Dataset A Schema\nColumns: %s\nSample (first %d rows):\n%s\n\n",
		s.DatasetA.SchemaSummary(), samplePreviewRows, s.DatasetA.MarkdownPreview(samplePreviewRows))
	fmt.Fprintf(b, "## Dataset B Schema\nColumns: %s\nSample (first %d rows):\n%s\n",
		s.DatasetB.SchemaSummary(), samplePreviewRows, s.DatasetB.MarkdownPreview(samplePreviewRows))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
