package middleware

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/dualpanel/internal/pkg/response"
	"go.uber.org/zap"
)

// Counter counts hits of a key within a window.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// ttlCounter is a Counter that can report how long a key has left.
type ttlCounter interface {
	Counter
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// RateLimit allows max anonymous requests per client IP and window.
// Authenticated requests pass untouched. Counter failures let the request
// through.
func RateLimit(counter Counter, max int64, window time.Duration, log *zap.Logger) gin.HandlerFunc {
	if window <= 0 {
		window = time.Second
	}
	return func(c *gin.Context) {
		if CurrentUserID(c) != "" {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		bucket := time.Now().UnixNano() / int64(window)
		key := fmt.Sprintf("rate_limit:%s:%d", ip, bucket)
		count, err := counter.Incr(c.Request.Context(), key, window+time.Second)
		if err != nil {
			log.Warn("rate limit counter failed", zap.Error(err))
			c.Next()
			return
		}
		if count > max {
			c.Header("Retry-After", strconv.Itoa(retryAfter(c.Request.Context(), counter, key, window)))
			response.TooManyRequests(c)
			return
		}
		c.Next()
	}
}

// retryAfter returns the seconds until the bucket expires, falling back to a
// full window when the counter cannot tell.
func retryAfter(ctx context.Context, counter Counter, key string, window time.Duration) int {
	if tc, ok := counter.(ttlCounter); ok {
		if ttl, err := tc.TTL(ctx, key); err == nil && ttl > 0 {
			return int(math.Ceil(ttl.Seconds()))
		}
	}
	return int(window.Seconds()) + 1
}
