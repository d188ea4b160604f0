package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"reconagent/internal/database"
	"reconagent/internal/models"
	"reconagent/internal/parser"
	"reconagent/internal/session"
)

// SessionHandler handles session lifecycle and dataset uploads
type SessionHandler struct {
	store       *session.Store
	db          *database.DB
	maxFileSize int64
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(store *session.Store, db *database.DB, maxFileSize int64) *SessionHandler {
	return &SessionHandler{
		store:       store,
		db:          db,
		maxFileSize: maxFileSize,
	}
}

// Create handles POST /api/sessions
func (h *SessionHandler) Create(c *fiber.Ctx) error {
	sess := h.store.Create(uuid.NewString())

	return c.Status(fiber.StatusCreated).JSON(models.CreateSessionResponse{
		SessionID: sess.ID,
		Status:    "created",
		CreatedAt: sess.CreatedAt,
	})
}

// Upload handles POST /api/sessions/:id/upload with multipart fields
// file_a and file_b.
func (h *SessionHandler) Upload(c *fiber.Ctx) error {
	sess, err := h.store.Get(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Session not found")
	}

	fileA, err := c.FormFile("file_a")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "file_a is required")
	}
	fileB, err := c.FormFile("file_b")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "file_b is required")
	}

	datasetA, metaA, err := h.parseUpload(fileA, "A")
	if err != nil {
		return uploadError(err, fileA.Filename)
	}
	datasetB, metaB, err := h.parseUpload(fileB, "B")
	if err != nil {
		return uploadError(err, fileB.Filename)
	}

	sess.SetDatasets(datasetA, datasetB, metaA, metaB)

	log.Printf("✅ [UPLOAD] Session %s: %s (%d rows) and %s (%d rows)",
		sess.ID, fileA.Filename, datasetA.RowCount(), fileB.Filename, datasetB.RowCount())

	return c.JSON(models.UploadResponse{
		SessionID: sess.ID,
		Status:    "uploaded",
		DatasetA:  metaA,
		DatasetB:  metaB,
		PreviewA:  preview(datasetA),
		PreviewB:  preview(datasetB),
	})
}

// Preview handles GET /api/sessions/:id/preview and
// GET /api/sessions/:id/preview/:dataset (a|b).
func (h *SessionHandler) Preview(c *fiber.Ctx) error {
	sess, err := h.store.Get(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Session not found")
	}

	datasetA, datasetB, err := sess.Datasets()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Please upload datasets first")
	}

	switch strings.ToLower(c.Params("dataset")) {
	case "":
		return c.JSON(fiber.Map{
			"session_id": sess.ID,
			"preview_a":  preview(datasetA),
			"preview_b":  preview(datasetB),
		})
	case "a":
		return c.JSON(fiber.Map{"session_id": sess.ID, "preview": preview(datasetA)})
	case "b":
		return c.JSON(fiber.Map{"session_id": sess.ID, "preview": preview(datasetB)})
	default:
		return fiber.NewError(fiber.StatusBadRequest, "dataset must be a or b")
	}
}

// Delete handles DELETE /api/sessions/:id. It cancels any in-flight run and
// removes the persisted snapshot.
func (h *SessionHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.store.Delete(id); err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Session not found")
	}
	if h.db != nil {
		if err := h.db.DeleteState(id); err != nil {
			log.Printf("⚠️ [SESSION] Failed to delete snapshot for %s: %v", id, err)
		}
	}
	return c.JSON(fiber.Map{
		"session_id": id,
		"status":     "deleted",
	})
}

func (h *SessionHandler) parseUpload(file *multipart.FileHeader, datasetName string) (*models.Dataset, *models.FileMetadata, error) {
	if file.Size > h.maxFileSize {
		return nil, nil, fmt.Errorf("%w: file exceeds the %d MB limit",
			parser.ErrUnparsable, h.maxFileSize/(1024*1024))
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !parser.SupportedExtensions[ext] {
		return nil, nil, fmt.Errorf("%w: unsupported file type %q", parser.ErrUnparsable, ext)
	}

	f, err := file.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read upload: %w", err)
	}

	return parser.Parse(content, file.Filename, datasetName)
}

func uploadError(err error, filename string) error {
	if errors.Is(err, parser.ErrUnparsable) {
		return fiber.NewError(fiber.StatusUnprocessableEntity,
			fmt.Sprintf("%s: %v", string(models.ErrUnparsableFile), err))
	}
	return fiber.NewError(fiber.StatusBadRequest,
		fmt.Sprintf("Failed to process %s: %v", filename, err))
}

func preview(ds *models.Dataset) *models.DataPreview {
	types := make(map[string]string, len(ds.Columns))
	for _, col := range ds.Columns {
		types[col.Name] = string(col.Type)
	}
	return &models.DataPreview{
		Columns:    ds.ColumnNames(),
		Types:      types,
		SampleRows: ds.SampleRows(10),
		TotalRows:  ds.RowCount(),
	}
}
