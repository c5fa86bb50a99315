package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/streamsense/recengine/pkg/models"
)

const userIDKey = "user_id"

// TokenValidator resolves a bearer token to its claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.JWTClaims, error)
}

func Auth(validator TokenValidator, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "MISSING_AUTHORIZATION", "Authorization header is required")
			return
		}

		tokenParts := strings.SplitN(authHeader, " ", 2)
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "Bearer") || tokenParts[1] == "" {
			abort(c, http.StatusUnauthorized, "INVALID_AUTHORIZATION_FORMAT", "Authorization header must be in format 'Bearer <token>'")
			return
		}

		claims, err := validator.ValidateToken(c.Request.Context(), tokenParts[1])
		if err != nil {
			logger.WithError(err).WithField("path", c.Request.URL.Path).Warn("Invalid JWT token")
			abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// GetUserFromContext returns the authenticated user id set by Auth.
func GetUserFromContext(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// SetUser is used by tests and trusted internal callers.
func SetUser(c *gin.Context, userID uuid.UUID) {
	c.Set(userIDKey, userID)
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
