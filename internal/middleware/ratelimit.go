package middleware

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/streamsense/recengine/internal/config"
)

// UserRateLimiter keeps one token bucket per authenticated user.
type UserRateLimiter struct {
	mu       sync.Mutex
	limiters map[uuid.UUID]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewUserRateLimiter(cfg config.RateLimitConfig) *UserRateLimiter {
	return &UserRateLimiter{
		limiters: make(map[uuid.UUID]*rate.Limiter),
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.Burst,
	}
}

func (l *UserRateLimiter) limiter(userID uuid.UUID) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = lim
	}
	return lim
}

// RateLimit must run after Auth.
func RateLimit(limiter *UserRateLimiter, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserFromContext(c)
		if !ok {
			logger.Error("Rate limit middleware called without user context")
			c.Next()
			return
		}

		lim := limiter.limiter(userID)
		allowed := lim.Allow()
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(0, int(lim.Tokens()))))

		if !allowed {
			logger.WithFields(logrus.Fields{
				"user_id": userID,
				"path":    c.Request.URL.Path,
			}).Warn("Rate limit exceeded")
			abort(c, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded. Please try again later.")
			return
		}

		c.Next()
	}
}
