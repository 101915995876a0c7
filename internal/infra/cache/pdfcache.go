// Package cache stores rendered PDFs in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"md2pdf/internal/infra/logging"
)

const (
	keyPrefix  = "md2pdf:pdf:"
	opTimeout  = time.Second
	defaultTTL = time.Minute
)

// PDFCache is a Redis-backed store of rendered PDFs.
type PDFCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a cache writing entries that expire after ttl.
func New(rdb *redis.Client, ttl time.Duration) *PDFCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &PDFCache{rdb: rdb, ttl: ttl}
}

// Key derives the cache key from everything that shapes the output.
func Key(markdown, format, title string, marginMM float64) string {
	h := sha256.New()
	for _, part := range []string{markdown, format, title, strconv.FormatFloat(marginMM, 'f', 2, 64)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached PDF for key. A miss returns nil data and no error.
func (c *PDFCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		logging.Warn("Redis read failed", "error", err)
		return nil, err
	}
	logging.Debug("PDF cache hit", "key", key)
	return data, nil
}

// Set stores data under key. Failures are logged and otherwise ignored.
func (c *PDFCache) Set(ctx context.Context, key string, data []byte) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logging.Warn("Redis write failed", "error", err)
	}
}
