package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Limiter is satisfied by cache.RedisCache.
type Limiter interface {
	AllowRequest(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit allows each authenticated user limit requests per window for
// action. It must run after Auth. A nil limiter disables the check, and a
// limiter error lets the request through.
func RateLimit(limiter Limiter, action string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}

		userID, ok := UserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "authentication required",
				"type":    "unauthorized",
			})
			return
		}
		key := fmt.Sprintf("rate:limit:%s:%s", userID, action)

		allowed, err := limiter.AllowRequest(c.Request.Context(), key, limit, window)
		if err != nil {
			zap.L().Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "too many requests, try again later",
				"type":    "rate_limited",
			})
			return
		}

		c.Next()
	}
}
