// Package server assembles the fiber application.
package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"md2pdf/internal/config"
	"md2pdf/internal/http/handlers"
	"md2pdf/internal/http/middleware"
	"md2pdf/internal/infra/logging"
	"md2pdf/internal/tokens"
)

// Engine is the part of the engine manager the HTTP layer sees.
type Engine interface {
	handlers.StatsSource
	Ready() bool
}

// Deps holds everything the routes need.
type Deps struct {
	Config    config.Config
	Converter handlers.Converter
	Engine    Engine
	// Tokens enables API-key auth when non-nil.
	Tokens *tokens.Cache
}

// New creates the fiber app with middleware and routes.
func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             d.Config.Limits.MaxBodyBytes,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Internal Server Error"

			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
				msg = fe.Message
			}

			logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)
			return c.Status(code).JSON(fiber.Map{"error": msg})
		},

		// The normalizer walks multipart parts in wire order; a pre-parsed
		// form would hand it a body rebuilt from a map.
		DisablePreParseMultipartForm: true,
	})

	var ready func() bool
	if d.Engine != nil {
		ready = d.Engine.Ready
	}
	middleware.Register(app, middleware.Options{
		Config: d.Config,
		Tokens: d.Tokens,
		Ready:  ready,
	})

	RegisterRoutes(app, d)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts the route handlers.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Post("/convert", handlers.NewConvertHandler(d.Config.Limits.MaxFileBytes, d.Converter).Handle)
	app.Get("/health", handlers.Health)
	if d.Engine != nil {
		app.Get("/engine/stats", handlers.EngineStats(d.Engine))
	}
	app.Get("/monitor", monitor.New())

	if dir := d.Config.Server.PublicDir; dir != "" {
		app.Static("/", dir)
	}
}
