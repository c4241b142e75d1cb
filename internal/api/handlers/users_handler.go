package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/docqa/backend/internal/auth"
	"github.com/docqa/backend/internal/middleware"
)

type UsersHandler struct {
	auth *auth.Service
}

func NewUsersHandler(svc *auth.Service) *UsersHandler {
	return &UsersHandler{auth: svc}
}

type userView struct {
	Username  string     `json:"username"`
	Role      string     `json:"role"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	users, err := h.auth.ListUsers()
	if err != nil {
		return respondError(c, err)
	}

	views := make([]userView, len(users))
	for i, u := range users {
		views[i] = userView{
			Username:  u.Username,
			Role:      u.Role,
			Active:    u.Active,
			CreatedAt: u.CreatedAt,
			LastLogin: u.LastLogin,
		}
	}

	return c.JSON(fiber.Map{"users": views, "count": len(views)})
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

// SetActive toggles an account's active flag. Deactivating the last
// active admin is refused by the auth service.
func (h *UsersHandler) SetActive(c *fiber.Ctx) error {
	var req setActiveRequest
	if err := c.BodyParser(&req); err != nil || req.Active == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "request body must set the active field",
		})
	}

	target := c.Params("username")
	if err := h.auth.SetActive(middleware.Username(c), target, *req.Active); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"username": target, "active": *req.Active})
}

func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	target := c.Params("username")
	if err := h.auth.Delete(middleware.Username(c), target); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"username": target, "deleted": true})
}
