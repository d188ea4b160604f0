package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reconagent/internal/llm"
	"reconagent/internal/logging"
	"reconagent/internal/models"
)

// LLM is the completion interface the agent drives. Satisfied by llm.Client.
type LLM interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Sandbox executes one candidate fragment. Satisfied by sandbox.Executor.
type Sandbox interface {
	Execute(ctx context.Context, code string, rowsA, rowsB []models.Row) *models.SandboxResult
}

// CheckpointFunc persists the state snapshot after each step. A nil
// checkpoint disables persistence.
type CheckpointFunc func(*State)

// TransientError wraps provider failures that left the run state untouched.
// The caller can retry the run without losing an iteration.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Agent drives one reconciliation run through the
// analyze → generate → execute → evaluate loop, self-correcting on failures
// until the evaluation passes or the iteration budget is spent.
type Agent struct {
	llm        LLM
	sandbox    Sandbox
	policy     Policy
	checkpoint CheckpointFunc
	metrics    *Metrics
}

// New creates an Agent.
func New(llmClient LLM, sb Sandbox, policy Policy, checkpoint CheckpointFunc) *Agent {
	return &Agent{
		llm:        llmClient,
		sandbox:    sb,
		policy:     policy,
		checkpoint: checkpoint,
		metrics:    GetMetrics(),
	}
}

// Run advances the state machine until it reaches a terminal status. The
// loop is resumable: it switches on the current status, so a state restored
// from a snapshot or re-armed by feedback picks up where it left off.
func (a *Agent) Run(ctx context.Context, s *State) error {
	logger := logging.WithSession(s.SessionID)
	start := time.Now()
	a.metrics.RunsStarted.Inc()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		switch s.Status {
		case StatusAnalyzing:
			err = a.stepAnalyze(ctx, s, logger)
		case StatusGenerating:
			err = a.stepGenerate(ctx, s, logger)
		case StatusExecuting:
			a.stepExecute(ctx, s, logger)
		case StatusEvaluating:
			a.stepEvaluate(s, logger)
		case StatusSelfCorrecting:
			s.SetStatus(StatusGenerating)
		case StatusAwaitingFeedback:
			s.SetStatus(StatusGenerating)
		case StatusSucceeded, StatusFailed:
			a.finishRun(s, logger, time.Since(start))
			a.save(s)
			return nil
		default:
			return fmt.Errorf("unknown run status %q", s.Status)
		}

		if err != nil {
			return err
		}
		a.save(s)
	}
}

// SubmitFeedback records user feedback on a terminal run and re-arms the
// loop. The iteration budget is reset so the refinement gets a full set of
// attempts.
func (a *Agent) SubmitFeedback(s *State, feedback string) error {
	if !IsTerminal(s.Status) {
		return fmt.Errorf("feedback requires a finished run, current status is %s", s.Status)
	}
	s.FeedbackHistory = append(s.FeedbackHistory, feedback)
	s.IterationCount = 0
	s.SetStatus(StatusAwaitingFeedback)
	s.Trace(fmt.Sprintf("User Feedback Received:\n%s", feedback))
	a.save(s)
	return nil
}

func (a *Agent) stepAnalyze(ctx context.Context, s *State, logger *slog.Logger) error {
	logger.Info("Analyzing schemas")

	// The only fatal analysis failure: nothing to match on.
	if len(s.DatasetA.Columns) == 0 || len(s.DatasetB.Columns) == 0 {
		s.FailureReason = "a dataset has no usable columns"
		s.Trace("Analysis failed: a dataset has no usable columns")
		logger.Error("Analysis failed", "error", s.FailureReason)
		s.SetStatus(StatusFailed)
		return nil
	}

	analysis, err := a.complete(ctx, analysisSystemPrompt, buildAnalysisPrompt(s))
	if err != nil {
		return a.handleLLMError(s, logger, err)
	}
	s.Analysis = analysis
	s.Trace(fmt.Sprintf("Schema Analysis:\n%s", analysis))

	strategy, err := a.complete(ctx, strategySystemPrompt, buildStrategyPrompt(s))
	if err != nil {
		return a.handleLLMError(s, logger, err)
	}
	s.MatchingStrategy = strategy
	s.Trace(fmt.Sprintf("Matching Strategy:\n%s", strategy))

	logger.Info("Schema analysis complete")
	s.SetStatus(StatusGenerating)
	return nil
}

func (a *Agent) stepGenerate(ctx context.Context, s *State, logger *slog.Logger) error {
	attempt := s.IterationCount + 1
	logging.WithIteration(logger, attempt, s.MaxIterations).Info("Generating reconciliation code")

	systemPrompt := codeGenerationSystemPrompt
	userPrompt := buildGenerationPrompt(s)
	if s.GeneratedCode != "" {
		systemPrompt = refinementSystemPrompt
		userPrompt = buildRefinementPrompt(s)
	}

	response, err := a.complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return a.handleLLMError(s, logger, err)
	}

	if s.GeneratedCode != "" {
		s.CodeHistory = append(s.CodeHistory, s.GeneratedCode)
	}
	s.IterationCount++
	a.metrics.Iterations.Inc()

	code := ExtractCode(response)
	s.GeneratedCode = code
	s.Trace(fmt.Sprintf("Generated Code (iteration %d):\n```go\n%s\n```", s.IterationCount, code))

	if extra := ExtraFenceCount(response); extra > 0 {
		s.Trace(fmt.Sprintf("Response contained %d additional code block(s); only the first is executed", extra))
		logger.Warn("Response contained additional code blocks", "extra", extra)
	}

	if code == "" {
		s.LastResult = models.ErrResult(models.ErrGenerationMalformed, "",
			"model response contained no code")
		s.SetStatus(StatusEvaluating)
		return nil
	}

	s.SetStatus(StatusExecuting)
	return nil
}

func (a *Agent) stepExecute(ctx context.Context, s *State, logger *slog.Logger) {
	logger.Info("Executing code in sandbox")

	result := a.sandbox.Execute(ctx, s.GeneratedCode, s.DatasetA.Rows, s.DatasetB.Rows)
	s.LastResult = result
	s.Trace(fmt.Sprintf("Execution Result: %s", result.Diagnostic()))

	a.metrics.SandboxExecutions.WithLabelValues(string(result.ErrKind)).Inc()
	a.metrics.SandboxDuration.Observe(result.Duration.Seconds())

	if result.OK() {
		logger.Info("Code execution successful",
			"matched", len(result.Output.Matched),
			"duration", result.Duration.Round(time.Millisecond).String())
	} else {
		logger.Warn("Code execution failed",
			"kind", string(result.ErrKind), "error", result.ErrMessage)
	}

	s.SetStatus(StatusEvaluating)
}

func (a *Agent) stepEvaluate(s *State, logger *slog.Logger) {
	logger.Info("Evaluating results")

	eval := Evaluate(a.policy, s.LastResult, s.DatasetA.RowCount(), s.DatasetB.RowCount())
	s.LastEvaluation = eval
	s.MatchRate = eval.MatchRate
	s.MatchCount = eval.MatchCount
	s.Trace(fmt.Sprintf("Evaluation: %s", eval.Diagnostic))

	switch {
	case eval.Pass:
		out := s.LastResult.Output
		s.Matched = out.Matched
		s.UnmatchedA = out.UnmatchedA
		s.UnmatchedB = out.UnmatchedB
		logger.Info("Reconciliation succeeded",
			"match_rate", eval.MatchRate, "matched", eval.MatchCount)
		s.SetStatus(StatusSucceeded)

	case s.IterationCount >= s.MaxIterations:
		s.FailureReason = eval.Diagnostic
		logger.Warn("Iteration budget exhausted",
			"iterations", s.IterationCount, "max_iterations", s.MaxIterations,
			"reason", eval.Diagnostic)
		s.SetStatus(StatusFailed)

	default:
		logging.WithIteration(logger, s.IterationCount, s.MaxIterations).
			Info("Evaluation failed, retrying", "reason", eval.Diagnostic)
		s.SetStatus(StatusSelfCorrecting)
	}
}

func (a *Agent) finishRun(s *State, logger *slog.Logger, elapsed time.Duration) {
	outcome := "failed"
	if s.Status == StatusSucceeded {
		outcome = "succeeded"
	}
	a.metrics.RunsCompleted.WithLabelValues(outcome).Inc()
	a.metrics.RunDuration.Observe(elapsed.Seconds())
	a.metrics.IterationsPerRun.Observe(float64(s.IterationCount))

	logger.Info("Run finished",
		"status", string(s.Status),
		"iterations", s.IterationCount,
		"match_rate", s.MatchRate,
		"duration", elapsed.Round(time.Millisecond).String())
}

func (a *Agent) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	response, err := a.llm.Complete(ctx, systemPrompt, userPrompt)
	switch {
	case err == nil:
		a.metrics.LLMRequests.WithLabelValues("ok").Inc()
	case errors.Is(err, llm.ErrRateLimited):
		a.metrics.LLMRequests.WithLabelValues("rate_limited").Inc()
	case errors.Is(err, llm.ErrUnavailable):
		a.metrics.LLMRequests.WithLabelValues("unavailable").Inc()
	default:
		a.metrics.LLMRequests.WithLabelValues("error").Inc()
	}
	return response, err
}

// handleLLMError classifies a provider failure. Transient failures leave the
// state untouched so the run can be retried; hard failures end the run.
func (a *Agent) handleLLMError(s *State, logger *slog.Logger, err error) error {
	if errors.Is(err, llm.ErrUnavailable) || errors.Is(err, llm.ErrRateLimited) {
		logger.Warn("Transient provider failure, run can be retried", "error", err.Error())
		return &TransientError{Err: err}
	}

	s.FailureReason = err.Error()
	s.Trace(fmt.Sprintf("Provider Error: %v", err))
	logger.Error("Provider failure ended the run", "error", err.Error())
	s.SetStatus(StatusFailed)
	a.save(s)
	return nil
}

func (a *Agent) save(s *State) {
	if a.checkpoint != nil {
		a.checkpoint(s)
	}
}
