package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the authenticated API on group.
func RegisterRoutes(api *gin.RouterGroup, h *Handlers) {
	recommendations := api.Group("/recommendations")
	{
		recommendations.GET("", h.Recommendation.Get)
		recommendations.POST("/session/clear", h.Recommendation.ClearSession)
		recommendations.GET("/cache", h.Recommendation.GetCached)
		recommendations.GET("/cache/stats", h.Recommendation.CacheStats)
		recommendations.DELETE("/cache", h.Recommendation.InvalidateCache)
	}

	api.GET("/preferences", h.Recommendation.Preferences)

	taste := api.Group("/taste-profile")
	{
		taste.GET("", h.TasteProfile.Get)
		taste.POST("/refresh", h.TasteProfile.Refresh)
		taste.POST("/interactions", h.TasteProfile.RecordInteraction)
	}

	dna := api.Group("/dna")
	{
		dna.POST("/enqueue", h.DNA.Enqueue)
		dna.POST("/scan", h.DNA.Scan)
		dna.GET("/status", h.DNA.Status)
	}
}
