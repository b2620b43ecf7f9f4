package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"todoagent/internal/config"
	"todoagent/internal/handler"
)

const rateLimitPrefix = "todoagent:ratelimit:"

// NewRateLimiter builds the chat limiter from config. rdb is required only
// for store=redis. Returns nil when rate limiting is disabled.
func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client) (*limiter.Limiter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		return nil, fmt.Errorf("ratelimit.rate %q: %w", cfg.Rate, err)
	}

	var store limiter.Store
	switch cfg.Store {
	case "", "memory":
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          rateLimitPrefix,
			CleanUpInterval: time.Minute,
		})
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("ratelimit.store=redis needs a redis client")
		}
		store, err = sredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
			Prefix:   rateLimitPrefix,
			MaxRetry: 3,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis limiter store: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown ratelimit.store %q", cfg.Store)
	}
	return limiter.New(store, rate), nil
}

// RateLimitMiddleware limits per authenticated user, falling back to the
// client IP. Store errors let the request through.
func RateLimitMiddleware(l *limiter.Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if v, ok := c.Get(handler.UserIDKey); ok {
			if id, ok := v.(string); ok && id != "" {
				key = "user:" + id
			}
		}

		lctx, err := l.Get(c.Request.Context(), key)
		if err != nil {
			logger.Error("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			logger.Warn("Rate limit reached", zap.String("key", key), zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
