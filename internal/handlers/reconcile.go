package handlers

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"

	"reconagent/internal/agent"
	"reconagent/internal/database"
	"reconagent/internal/models"
	"reconagent/internal/session"
)

// ReconcileHandler drives reconciliation runs over sessions
type ReconcileHandler struct {
	store         *session.Store
	db            *database.DB
	llm           agent.LLM
	sandbox       agent.Sandbox
	policy        agent.Policy
	maxIterations int
}

// NewReconcileHandler creates a new reconcile handler
func NewReconcileHandler(store *session.Store, db *database.DB, llm agent.LLM,
	sandbox agent.Sandbox, policy agent.Policy, maxIterations int) *ReconcileHandler {
	return &ReconcileHandler{
		store:         store,
		db:            db,
		llm:           llm,
		sandbox:       sandbox,
		policy:        policy,
		maxIterations: maxIterations,
	}
}

// Start handles POST /api/sessions/:id/reconcile. The run executes in the
// background; clients poll GET .../status. Re-posting after a transient
// provider failure resumes the run from where it stopped.
func (h *ReconcileHandler) Start(c *fiber.Ctx) error {
	sess, err := h.store.Get(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Session not found")
	}

	datasetA, datasetB, err := sess.Datasets()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Please upload datasets first")
	}

	var req models.ReconcileRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}

	state := sess.CurrentState()
	if state == nil || agent.IsTerminal(state.Status) {
		// A fresh run; a terminal state without feedback starts over too.
		state = agent.NewState(sess.ID, datasetA, datasetB, req.Hint, h.maxIterations)
		sess.SetState(state)
	}

	if err := h.launch(sess, state); err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"session_id": sess.ID,
		"status":     "started",
		"message":    "Reconciliation started. Poll /status for progress.",
	})
}

// Status handles GET /api/sessions/:id/status
func (h *ReconcileHandler) Status(c *fiber.Ctx) error {
	sess, err := h.store.Get(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Session not found")
	}

	state := sess.CurrentState()
	if state == nil {
		return c.JSON(models.StatusResponse{
			SessionID:     sess.ID,
			Status:        "created",
			MaxIterations: h.maxIterations,
		})
	}

	resp := models.StatusResponse{
		SessionID:     sess.ID,
		Status:        string(state.Status),
		Iteration:     state.IterationCount,
		MaxIterations: state.MaxIterations,
		MatchRate:     state.MatchRate,
		Error:         sess.LastRunError(),
	}
	if state.LastResult != nil {
		resp.Message = state.LastResult.Diagnostic()
	}
	if state.Status == agent.StatusFailed {
		resp.Error = state.FailureReason
	}
	return c.JSON(resp)
}

// Results handles GET /api/sessions/:id/results
func (h *ReconcileHandler) Results(c *fiber.Ctx) error {
	sess, err := h.store.Get(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Session not found")
	}

	state := sess.CurrentState()
	if state == nil || !agent.IsTerminal(state.Status) {
		return fiber.NewError(fiber.StatusBadRequest, "Reconciliation not complete")
	}

	matched := models.StripRowIDsAll(state.Matched)
	unmatchedA := models.StripRowIDsAll(state.UnmatchedA)
	unmatchedB := models.StripRowIDsAll(state.UnmatchedB)

	return c.JSON(models.ResultResponse{
		SessionID:       sess.ID,
		Status:          string(state.Status),
		MatchRate:       state.MatchRate,
		MatchedCount:    state.MatchCount,
		UnmatchedACount: len(unmatchedA),
		UnmatchedBCount: len(unmatchedB),
		TotalACount:     state.DatasetA.RowCount(),
		TotalBCount:     state.DatasetB.RowCount(),
		GeneratedCode:   state.GeneratedCode,
		ReasoningTrace:  state.ReasoningTrace,
		Matched:         matched,
		UnmatchedA:      unmatchedA,
		UnmatchedB:      unmatchedB,
	})
}

// Feedback handles POST /api/sessions/:id/feedback. It re-arms a finished
// run with a fresh iteration budget and resumes it in the background.
func (h *ReconcileHandler) Feedback(c *fiber.Ctx) error {
	sess, err := h.store.Get(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Session not found")
	}

	var req models.FeedbackRequest
	if err := c.BodyParser(&req); err != nil || req.Feedback == "" {
		return fiber.NewError(fiber.StatusBadRequest, "feedback is required")
	}

	state := sess.CurrentState()
	if state == nil {
		return fiber.NewError(fiber.StatusBadRequest, "No reconciliation to refine")
	}
	if sess.Running() {
		return fiber.NewError(fiber.StatusConflict, "A reconciliation run is already in progress")
	}

	// Work on a private copy; the session keeps serving the last published
	// snapshot to concurrent status polls.
	live := state.Clone()
	runner := h.newAgent(sess)
	if err := runner.SubmitFeedback(live, req.Feedback); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := h.launch(sess, live); err != nil {
		return err
	}

	return c.JSON(models.FeedbackResponse{
		SessionID: sess.ID,
		Status:    string(live.Status),
		Message:   "Feedback received. Processing refinement...",
	})
}

// launch starts the agent loop in the background, guarding against
// concurrent runs on the same session. The goroutine owns a private copy of
// the state; readers only ever see the immutable snapshots the checkpoint
// publishes to the session after each step.
func (h *ReconcileHandler) launch(sess *session.Session, state *agent.State) error {
	ctx, cancel := context.WithCancel(context.Background())
	if err := sess.BeginRun(cancel); err != nil {
		cancel()
		return fiber.NewError(fiber.StatusConflict, "A reconciliation run is already in progress")
	}
	sess.SetLastRunError("")

	runner := h.newAgent(sess)
	live := state.Clone()

	go func() {
		defer cancel()
		defer sess.EndRun()

		if err := runner.Run(ctx, live); err != nil {
			sess.SetLastRunError(err.Error())
			if agent.IsTransient(err) {
				log.Printf("⚠️ [RECONCILE] Session %s: transient failure, run can be resumed: %v", sess.ID, err)
			} else {
				log.Printf("❌ [RECONCILE] Session %s: run stopped: %v", sess.ID, err)
			}
		}
	}()

	return nil
}

// newAgent builds an agent whose checkpoint publishes a state snapshot to the
// session (for status polls) and persists it when a database is configured.
func (h *ReconcileHandler) newAgent(sess *session.Session) *agent.Agent {
	checkpoint := func(s *agent.State) {
		snap := s.Clone()
		sess.SetState(snap)
		if h.db == nil {
			return
		}
		if err := h.db.SaveState(snap); err != nil {
			log.Printf("⚠️ [RECONCILE] Failed to checkpoint state for %s: %v", s.SessionID, err)
		}
	}
	return agent.New(h.llm, h.sandbox, h.policy, checkpoint)
}
