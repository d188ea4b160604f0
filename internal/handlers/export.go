package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"reconagent/internal/agent"
	"reconagent/internal/exporter"
	"reconagent/internal/models"
	"reconagent/internal/session"
)

// ExportHandler serves reconciliation artifacts in downloadable forms
type ExportHandler struct {
	store *session.Store
}

// NewExportHandler creates a new export handler
func NewExportHandler(store *session.Store) *ExportHandler {
	return &ExportHandler{store: store}
}

// Data handles GET /api/sessions/:id/export/data?format=csv|xlsx
func (h *ExportHandler) Data(c *fiber.Ctx) error {
	state, err := h.finishedState(c)
	if err != nil {
		return err
	}

	matched := models.StripRowIDsAll(state.Matched)
	shortID := state.SessionID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	switch c.Query("format", "csv") {
	case "csv":
		payload, err := exporter.ResultCSV(matched)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		c.Set("Content-Type", "text/csv")
		c.Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=reconciled_data_%s.csv", shortID))
		return c.Send(payload)

	case "xlsx":
		payload, err := exporter.ResultXLSX(matched,
			models.StripRowIDsAll(state.UnmatchedA),
			models.StripRowIDsAll(state.UnmatchedB))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=reconciled_data_%s.xlsx", shortID))
		return c.Send(payload)

	default:
		return fiber.NewError(fiber.StatusBadRequest, "format must be csv or xlsx")
	}
}

// Code handles GET /api/sessions/:id/export/code
func (h *ExportHandler) Code(c *fiber.Ctx) error {
	state, err := h.finishedState(c)
	if err != nil {
		return err
	}

	code := state.GeneratedCode
	if code == "" {
		code = "// No code generated"
	}
	shortID := state.SessionID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	c.Set("Content-Type", "text/x-go")
	c.Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=reconciliation_code_%s.go", shortID))
	return c.SendString(code)
}

// N8N handles GET /api/sessions/:id/export/n8n
func (h *ExportHandler) N8N(c *fiber.Ctx) error {
	state, err := h.finishedState(c)
	if err != nil {
		return err
	}

	workflow := exporter.N8NWorkflow(state.GeneratedCode, c.Query("name"))
	shortID := state.SessionID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	return c.JSON(models.WorkflowResponse{
		Workflow: workflow,
		Filename: fmt.Sprintf("reconciliation_workflow_%s.json", shortID),
	})
}

// N8NDownload handles GET /api/sessions/:id/export/n8n/download. Same payload
// as N8N but served as a file attachment ready for n8n's import dialog.
func (h *ExportHandler) N8NDownload(c *fiber.Ctx) error {
	state, err := h.finishedState(c)
	if err != nil {
		return err
	}

	workflow := exporter.N8NWorkflow(state.GeneratedCode, c.Query("name"))
	shortID := state.SessionID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	c.Set("Content-Type", "application/json")
	c.Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=reconciliation_workflow_%s.json", shortID))
	return c.JSON(workflow)
}

// finishedState loads the session state and requires an accepted run:
// exports are artifacts of SUCCEEDED only.
func (h *ExportHandler) finishedState(c *fiber.Ctx) (*agent.State, error) {
	sess, err := h.store.Get(c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Session not found")
	}
	state := sess.CurrentState()
	if state == nil || state.Status != agent.StatusSucceeded {
		return nil, fiber.NewError(fiber.StatusBadRequest, "No accepted reconciliation to export")
	}
	return state, nil
}
