package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	redisStorage "github.com/gofiber/storage/redis/v2"

	"md2pdf/internal/config"
	"md2pdf/internal/infra/logging"
	"md2pdf/internal/tokens"
)

// newLimiterStorage returns Redis storage when configured and reachable,
// memory storage otherwise.
func newLimiterStorage(cfg config.Config) (store fiber.Storage) {
	store = memoryStorage.New()
	if !cfg.RateLimiter.UseRedis {
		return store
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Error("Redis limiter store init panicked, falling back to memory", "panic", r)
		}
	}()
	store = redisStorage.New(redisStorage.Config{
		Addrs:    []string{cfg.Cache.RedisHost},
		Database: cfg.Cache.RateLimitDB,
	})
	logging.Info("Using Redis for rate limiting", "addr", cfg.Cache.RedisHost, "db", cfg.Cache.RateLimitDB)
	return store
}

func tooManyRequests(c *fiber.Ctx) error {
	return errorJSON(c, fiber.StatusTooManyRequests, "Too Many Requests")
}

// tokenLimiters caches one limiter per distinct token limit.
type tokenLimiters struct {
	mu       sync.RWMutex
	handlers map[int]fiber.Handler
	store    fiber.Storage
	interval time.Duration
}

func (t *tokenLimiters) get(limit int) fiber.Handler {
	t.mu.RLock()
	h, ok := t.handlers[limit]
	t.mu.RUnlock()
	if ok {
		return h
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.handlers[limit]; ok {
		return h
	}
	h = limiter.New(limiter.Config{
		Max:               limit,
		Expiration:        t.interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           t.store,
		KeyGenerator: func(c *fiber.Ctx) string {
			token, _ := c.Locals(apiKeyLocal).(string)
			return "token:" + token
		},
		LimitReached: func(c *fiber.Ctx) error {
			logging.Warn("Rate limit exceeded", "path", c.Path())
			return tooManyRequests(c)
		},
	})
	t.handlers[limit] = h
	return h
}

// tokenRateLimit applies the per-token limit of authenticated requests.
func tokenRateLimit(cache *tokens.Cache, store fiber.Storage, interval time.Duration) fiber.Handler {
	limiters := &tokenLimiters{handlers: make(map[int]fiber.Handler), store: store, interval: interval}
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals(apiKeyLocal).(string)
		if !ok || token == "" {
			return c.Next()
		}
		limit := cache.RateLimit(token)
		if limit <= 0 {
			return c.Next()
		}
		return limiters.get(limit)(c)
	}
}

func clientKey(c *fiber.Ctx) string {
	sum := sha256.Sum256([]byte(c.IP() + c.Get(fiber.HeaderUserAgent)))
	return "user:" + hex.EncodeToString(sum[:])
}

// userRateLimit limits anonymous clients by IP and user agent.
func userRateLimit(cfg config.Config, store fiber.Storage) fiber.Handler {
	userLimiter := limiter.New(limiter.Config{
		Max:               cfg.RateLimiter.UserLimit,
		Expiration:        cfg.RateLimiter.Interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           store,
		KeyGenerator:      clientKey,
		LimitReached: func(c *fiber.Ctx) error {
			logging.Warn("Rate limit exceeded", "user", clientKey(c), "path", c.Path())
			return tooManyRequests(c)
		},
	})
	return func(c *fiber.Ctx) error {
		// Authenticated requests are covered by their token limit.
		if token, ok := c.Locals(apiKeyLocal).(string); ok && token != "" {
			return c.Next()
		}
		return userLimiter(c)
	}
}
