// Package api implements the ingress & status surface (§4.G, §6): file
// upload, job status polling, result retrieval in negotiated formats, and
// job revocation. Grounded on the teacher's internal/api/router.go
// grouping/middleware-stacking style, trimmed of the auth/chat/notes/
// csvbatch/profile route groups that have no SPEC_FULL component.
package api

import (
	"scriberr/pkg/logger"
	"scriberr/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// SetupRoutes wires the transcription ingress contract onto a fresh gin
// engine, matching the teacher's middleware stack (recovery, structured
// request logging, permissive CORS) minus the auth gate spec.md declares
// out of scope.
func SetupRoutes(handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	logger.SetGinOutput()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.GinLogger())
	router.Use(middleware.CompressionMiddleware())

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept, Accept-Encoding")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	router.GET("/healthcheck", handler.HealthCheck)

	router.POST("/transcribe", handler.Transcribe)
	router.POST("/transcribe-multi", handler.TranscribeMulti)
	router.GET("/job/:id", handler.JobStatus)
	router.GET("/job/:id/events", middleware.NoCompressionMiddleware(), handler.JobEvents)
	router.GET("/results/:id", handler.Results)
	router.GET("/revoke/:id", handler.Revoke)
	router.DELETE("/job/:id", handler.Revoke)

	return router
}
