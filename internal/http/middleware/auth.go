package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"

	"md2pdf/internal/tokens"
)

// protectedPaths require an API key when auth is enabled.
var protectedPaths = map[string]bool{
	"/convert":      true,
	"/engine/stats": true,
	"/monitor":      true,
}

func apiKeyAuth(cache *tokens.Cache) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:X-API-Key",
		ContextKey: apiKeyLocal,
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if err := cache.Validate(key); err != nil {
				return false, err
			}
			return true, nil
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || !protectedPaths[c.Path()]
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// keyauth may call the handler with a nil error.
			if err == nil {
				err = fiber.ErrUnauthorized
			}
			if errors.Is(err, tokens.ErrStoreNotReady) {
				return errorJSON(c, fiber.StatusServiceUnavailable, err.Error())
			}
			return errorJSON(c, fiber.StatusUnauthorized, err.Error())
		},
	})
}
