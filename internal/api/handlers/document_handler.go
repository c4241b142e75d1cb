package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/extract"
	"github.com/docqa/backend/internal/ingestion"
	"github.com/docqa/backend/internal/intake"
	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/internal/middleware"
	"github.com/docqa/backend/internal/storage/models"
	"github.com/docqa/backend/internal/summary"
	"github.com/docqa/backend/pkg/logger"
)

type DocLister interface {
	ListDocuments() ([]models.Document, error)
}

// AnswerInvalidator drops cached answers after the document set
// changes.
type AnswerInvalidator interface {
	InvalidateAnswers(ctx context.Context) error
}

type DocumentHandler struct {
	saver      *intake.Saver
	processor  *ingestion.Processor
	summarizer *summary.Summarizer
	docs       DocLister
	cache      AnswerInvalidator
}

func NewDocumentHandler(saver *intake.Saver, processor *ingestion.Processor, summarizer *summary.Summarizer, docs DocLister, cache AnswerInvalidator) *DocumentHandler {
	return &DocumentHandler{
		saver:      saver,
		processor:  processor,
		summarizer: summarizer,
		docs:       docs,
		cache:      cache,
	}
}

// Upload saves the file, appends it to its index, ensures a summary
// and returns a content preview.
func (h *DocumentHandler) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "multipart field \"file\" is required",
		})
	}

	path, err := h.saver.Save(fh)
	if err != nil {
		return respondError(c, err)
	}

	result, err := h.processor.Ingest(c.Context(), path, middleware.Username(c))
	if err != nil {
		return respondError(c, err)
	}

	metrics.DocumentsIngested.Inc()
	metrics.ChunksAppended.Add(float64(result.Chunks))

	summaryText, created, err := h.summarizer.Ensure(c.Context(), path)
	if err != nil {
		// the document is ingested; a missing summary only degrades
		// global QA, so report it but keep the upload successful
		logger.Warn("Summary generation failed",
			zap.String("stem", result.Stem),
			zap.Error(err),
		)
	}
	if created {
		metrics.SummariesGenerated.Inc()
	}

	preview, err := extract.Preview(path)
	if err != nil {
		logger.Warn("Preview generation failed", zap.String("stem", result.Stem), zap.Error(err))
		preview = ""
	}

	if h.cache != nil {
		if err := h.cache.InvalidateAnswers(c.Context()); err != nil {
			logger.Warn("Answer cache invalidation failed", zap.Error(err))
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"stem":         result.Stem,
		"filename":     result.Filename,
		"chunks":       result.Chunks,
		"total_chunks": result.TotalChunks,
		"indexed":      result.Indexed,
		"summary":      summaryText,
		"preview":      preview,
		"elapsed_ms":   result.ElapsedMS,
	})
}

func (h *DocumentHandler) List(c *fiber.Ctx) error {
	docs, err := h.docs.ListDocuments()
	if err != nil {
		return respondError(c, err)
	}

	type docView struct {
		Stem       string `json:"stem"`
		Filename   string `json:"filename"`
		Extension  string `json:"extension"`
		ChunkCount int    `json:"chunk_count"`
		Summary    string `json:"summary,omitempty"`
		UploadedBy string `json:"uploaded_by,omitempty"`
	}

	views := make([]docView, len(docs))
	for i, d := range docs {
		views[i] = docView{
			Stem:       d.Stem,
			Filename:   d.Filename,
			Extension:  d.Extension,
			ChunkCount: d.ChunkCount,
			Summary:    d.Summary,
			UploadedBy: d.UploadedBy,
		}
	}

	return c.JSON(fiber.Map{"documents": views, "count": len(views)})
}
