package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/streamsense/recengine/internal/middleware"
	"github.com/streamsense/recengine/internal/services"
)

type Handlers struct {
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	TasteProfile   *TasteProfileHandler
	DNA            *DNAHandler
}

// Dependencies are the services the HTTP surface is built on.
type Dependencies struct {
	Preferences     services.PreferenceServiceInterface
	Recommendations services.SmartRecommendationServiceInterface
	Cache           services.RecommendationCacheInterface
	TasteProfiles   services.TasteProfileServiceInterface
	DNAQueue        services.DNAQueueInterface
	Health          HealthChecker
}

func New(logger *logrus.Logger, deps Dependencies) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, deps.Health),
		Recommendation: NewRecommendationHandler(deps.Recommendations, deps.Cache, deps.Preferences, logger),
		TasteProfile:   NewTasteProfileHandler(deps.TasteProfiles, logger),
		DNA:            NewDNAHandler(deps.DNAQueue, logger),
	}
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondBindError renders validator failures field by field.
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	fields := make(map[string]string, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		fields[field] = fe.Tag()
		msgs = append(msgs, field+" failed "+fe.Tag())
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": strings.Join(msgs, ", "),
			"fields":  fields,
		},
	})
}

// currentUser reads the authenticated user, writing a 401 when absent.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserFromContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
		return uuid.Nil, false
	}
	return userID, true
}
