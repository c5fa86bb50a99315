package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/streamsense/recengine/internal/services"
	"github.com/streamsense/recengine/pkg/models"
)

type TasteProfileHandler struct {
	profiles services.TasteProfileServiceInterface
	logger   *logrus.Logger
}

func NewTasteProfileHandler(profiles services.TasteProfileServiceInterface, logger *logrus.Logger) *TasteProfileHandler {
	return &TasteProfileHandler{profiles: profiles, logger: logger}
}

type interactionRequest struct {
	TMDbID    int    `json:"tmdb_id" binding:"required,min=1"`
	MediaType string `json:"media_type" binding:"required,oneof=movie tv"`
	Rating    *int   `json:"rating" binding:"omitempty,min=1,max=5"`
}

func (h *TasteProfileHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	state, err := h.profiles.Load(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to load taste profile")
		respondError(c, http.StatusServiceUnavailable, "TASTE_PROFILE_UNAVAILABLE", "Taste profile is unavailable")
		return
	}
	c.JSON(http.StatusOK, state)
}

// Refresh rebuilds synchronously; 202 means a rebuild was already running.
func (h *TasteProfileHandler) Refresh(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	state, err := h.profiles.Refresh(c.Request.Context(), userID)
	switch {
	case errors.Is(err, services.ErrRebuildInProgress):
		c.JSON(http.StatusAccepted, gin.H{"status": services.TasteProfileLoading, "is_refreshing": true})
		return
	case err != nil:
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to rebuild taste profile")
		respondError(c, http.StatusServiceUnavailable, "TASTE_PROFILE_REBUILD_FAILED", "Failed to rebuild taste profile")
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *TasteProfileHandler) RecordInteraction(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req interactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ref := models.ContentRef{TMDbID: req.TMDbID, MediaType: models.MediaType(req.MediaType)}
	state, err := h.profiles.ApplyInteraction(c.Request.Context(), userID, ref, req.Rating)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"content": ref.Key(),
		}).Error("Failed to apply interaction")
		respondError(c, http.StatusServiceUnavailable, "INTERACTION_FAILED", "Failed to update taste profile")
		return
	}
	c.JSON(http.StatusOK, state)
}
