package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/streamsense/recengine/internal/services"
	"github.com/streamsense/recengine/pkg/models"
)

type DNAHandler struct {
	queue  services.DNAQueueInterface
	logger *logrus.Logger
}

func NewDNAHandler(queue services.DNAQueueInterface, logger *logrus.Logger) *DNAHandler {
	return &DNAHandler{queue: queue, logger: logger}
}

type enqueueRequest struct {
	TMDbID    int    `json:"tmdb_id" binding:"required,min=1"`
	MediaType string `json:"media_type" binding:"required,oneof=movie tv"`
}

func (h *DNAHandler) Enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	queued := h.queue.Enqueue(c.Request.Context(), req.TMDbID, models.MediaType(req.MediaType))
	status := http.StatusOK
	if queued {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{
		"queued": queued,
		"status": h.queue.Status(),
	})
}

func (h *DNAHandler) Scan(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	added, err := h.queue.ScanWatchlistForMissingDNA(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to scan watchlist for missing DNA")
		respondError(c, http.StatusServiceUnavailable, "SCAN_FAILED", "Failed to scan watchlist")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"queued": added,
		"status": h.queue.Status(),
	})
}

func (h *DNAHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.queue.Status())
}
