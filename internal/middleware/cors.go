package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/streamsense/recengine/internal/config"
)

func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowOrigins:  cfg.AllowedOrigins,
		AllowMethods:  cfg.AllowedMethods,
		AllowHeaders:  cfg.AllowedHeaders,
		ExposeHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining"},
	}
	// gin-contrib/cors rejects a wildcard origin combined with credentials
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowAllOrigins = true
			return cors.New(corsConfig)
		}
	}
	corsConfig.AllowCredentials = true
	return cors.New(corsConfig)
}
