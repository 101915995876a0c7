// Package middleware registers the cross-cutting fiber middleware.
package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/xid"

	"md2pdf/internal/config"
	"md2pdf/internal/infra/logging"
	"md2pdf/internal/tokens"
)

// apiKeyLocal is the fiber local holding an authenticated API key.
const apiKeyLocal = "api_key"

// Options carries what the middleware needs besides the configuration.
type Options struct {
	Config config.Config
	// Tokens enables API-key auth when non-nil.
	Tokens *tokens.Cache
	// Ready backs the readiness probe. Nil means always ready.
	Ready func() bool
}

// Register attaches global middleware to app.
func Register(app *fiber.App, opts Options) {
	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(healthcheck.New(healthcheck.Config{
		LivenessEndpoint:  "/livez",
		ReadinessEndpoint: "/readyz",
		ReadinessProbe: func(c *fiber.Ctx) bool {
			return opts.Ready == nil || opts.Ready()
		},
	}))

	app.Use(requestLogger())

	if opts.Tokens != nil {
		app.Use(apiKeyAuth(opts.Tokens))
	}

	store := newLimiterStorage(opts.Config)
	if opts.Tokens != nil {
		app.Use(tokenRateLimit(opts.Tokens, store, opts.Config.RateLimiter.Interval))
	}
	if opts.Config.RateLimiter.UserLimit > 0 {
		app.Use(userRateLimit(opts.Config, store))
	}
}

func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = c.GetRespHeader(fiber.HeaderXRequestID)
		}
		logging.Info("Incoming request", "method", c.Method(), "path", c.Path(), "request_id", requestID)
		return c.Next()
	}
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
