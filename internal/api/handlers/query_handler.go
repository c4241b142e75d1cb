package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/docqa/backend/internal/middleware"
	"github.com/docqa/backend/internal/query"
)

type QueryHandler struct {
	query *query.Service
}

func NewQueryHandler(svc *query.Service) *QueryHandler {
	return &QueryHandler{query: svc}
}

type askRequest struct {
	Stem      string `json:"stem"`
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

// Ask answers a question against one named document.
func (h *QueryHandler) Ask(c *fiber.Ctx) error {
	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.Stem == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "stem is required",
		})
	}

	resp, err := h.query.Ask(c.Context(), middleware.Username(c), req.SessionID, req.Stem, req.Question)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

// AskGlobal picks the most relevant document and answers against it.
func (h *QueryHandler) AskGlobal(c *fiber.Ctx) error {
	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	resp, err := h.query.AskGlobal(c.Context(), middleware.Username(c), req.SessionID, req.Question)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *QueryHandler) History(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	records, err := h.query.History(middleware.Username(c), limit)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"history": records, "count": len(records)})
}
