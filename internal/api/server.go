// Package api assembles the fiber application: middleware, routes and
// the websocket upgrade path.
package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/docqa/backend/internal/api/handlers"
	"github.com/docqa/backend/internal/auth"
	"github.com/docqa/backend/internal/ingestion"
	"github.com/docqa/backend/internal/intake"
	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/internal/middleware"
	"github.com/docqa/backend/internal/query"
	"github.com/docqa/backend/internal/summary"
	"github.com/docqa/backend/pkg/config"
)

type Deps struct {
	Config     *config.Config
	Auth       *auth.Service
	Tokens     *auth.TokenIssuer
	Query      *query.Service
	Saver      *intake.Saver
	Processor  *ingestion.Processor
	Summarizer *summary.Summarizer
	Docs       handlers.DocLister
	Cache      handlers.AnswerInvalidator
}

func NewApp(deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "docqa-backend",
		BodyLimit: deps.Config.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.NewRateLimiter(300, 50).Handler())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())

	authHandler := handlers.NewAuthHandler(deps.Auth)
	usersHandler := handlers.NewUsersHandler(deps.Auth)
	documentHandler := handlers.NewDocumentHandler(
		deps.Saver, deps.Processor, deps.Summarizer, deps.Docs, deps.Cache)
	queryHandler := handlers.NewQueryHandler(deps.Query)
	wsHandler := handlers.NewWebSocketHandler(deps.Query)

	v1 := app.Group("/api/v1")

	v1.Post("/auth/register", authHandler.Register)
	v1.Post("/auth/login", authHandler.Login)

	authed := v1.Group("", middleware.Auth(deps.Tokens))

	authed.Post("/query", queryHandler.Ask)
	authed.Post("/query/global", queryHandler.AskGlobal)
	authed.Get("/query/history", queryHandler.History)
	authed.Get("/documents", documentHandler.List)

	admin := authed.Group("", middleware.AdminOnly())
	admin.Post("/documents", documentHandler.Upload)
	admin.Get("/users", usersHandler.List)
	admin.Patch("/users/:username/active", usersHandler.SetActive)
	admin.Delete("/users/:username", usersHandler.Delete)

	app.Use("/ws", middleware.Auth(deps.Tokens), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/query", websocket.New(wsHandler.Handle))

	return app
}
