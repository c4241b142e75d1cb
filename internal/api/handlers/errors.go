// Package handlers implements the HTTP surface of the service.
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/docqa/backend/pkg/apperr"
)

// respondError maps the error taxonomy onto HTTP statuses.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	kindLabel := "internal"

	if kind, ok := apperr.KindOf(err); ok {
		kindLabel = kind.String()
		switch kind {
		case apperr.KindNotFound:
			status = fiber.StatusNotFound
		case apperr.KindValidation:
			status = fiber.StatusBadRequest
		case apperr.KindAuthorization:
			status = fiber.StatusForbidden
		case apperr.KindTransient:
			status = fiber.StatusBadGateway
		case apperr.KindConfiguration:
			status = fiber.StatusInternalServerError
		}
	}

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"kind":  kindLabel,
	})
}
