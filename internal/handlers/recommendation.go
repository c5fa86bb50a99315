package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/streamsense/recengine/internal/services"
	"github.com/streamsense/recengine/pkg/models"
)

type RecommendationHandler struct {
	recommendations services.SmartRecommendationServiceInterface
	cache           services.RecommendationCacheInterface
	preferences     services.PreferenceServiceInterface
	logger          *logrus.Logger
}

func NewRecommendationHandler(
	recommendations services.SmartRecommendationServiceInterface,
	cache services.RecommendationCacheInterface,
	preferences services.PreferenceServiceInterface,
	logger *logrus.Logger,
) *RecommendationHandler {
	return &RecommendationHandler{
		recommendations: recommendations,
		cache:           cache,
		preferences:     preferences,
		logger:          logger,
	}
}

type recommendationQuery struct {
	MediaType        string `form:"media_type" binding:"omitempty,oneof=movie tv"`
	Limit            int    `form:"limit" binding:"omitempty,min=1,max=100"`
	IncludeDiscovery *bool  `form:"include_discovery"`
	ForceRefresh     bool   `form:"force_refresh"`
}

type cacheQuery struct {
	MediaType string `form:"media_type" binding:"omitempty,oneof=movie tv"`
	Genre     string `form:"genre" binding:"omitempty,max=64"`
}

// Get never fails once the request is valid; failed sub-queries only shrink
// the result.
func (h *RecommendationHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var q recommendationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	opts := services.SmartOptions{
		MediaType:        models.MediaType(q.MediaType),
		Limit:            q.Limit,
		IncludeDiscovery: true,
		ForceRefresh:     q.ForceRefresh,
	}
	if q.IncludeDiscovery != nil {
		opts.IncludeDiscovery = *q.IncludeDiscovery
	}

	c.JSON(http.StatusOK, h.recommendations.GetSmartRecommendations(c.Request.Context(), userID, opts))
}

func (h *RecommendationHandler) ClearSession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	h.recommendations.ClearSession(userID)
	c.Status(http.StatusNoContent)
}

func (h *RecommendationHandler) GetCached(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var q cacheQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.cache.GetFiltered(c.Request.Context(), userID, models.MediaType(q.MediaType), q.Genre)
	switch {
	case errors.Is(err, services.ErrUnknownGenre):
		respondError(c, http.StatusBadRequest, "UNKNOWN_GENRE", err.Error())
		return
	case err != nil:
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to read recommendation cache")
		respondError(c, http.StatusBadGateway, "CACHE_PREFETCH_FAILED", "Content provider unavailable")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RecommendationHandler) CacheStats(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	stats, ok := h.cache.Stats(userID)
	if !ok {
		respondError(c, http.StatusNotFound, "CACHE_EMPTY", "No cached recommendations for user")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *RecommendationHandler) InvalidateCache(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	h.cache.Invalidate(userID)
	c.Status(http.StatusNoContent)
}

func (h *RecommendationHandler) Preferences(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	prefs, err := h.preferences.GetUserPreferences(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to aggregate preferences")
		respondError(c, http.StatusInternalServerError, "PREFERENCES_FAILED", "Failed to load preferences")
		return
	}
	c.JSON(http.StatusOK, prefs)
}
