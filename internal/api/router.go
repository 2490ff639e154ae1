package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"camera-alert-service/internal/auth"
	"camera-alert-service/internal/logging"
)

func NewRouter(h *Handler, verifier auth.Verifier, logger *logging.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	authed := r.Group("/", auth.Middleware(verifier))
	{
		authed.POST("/events", h.CreateEvent)
		authed.GET("/alerts", h.GetAlerts)
	}

	// The websocket handshake authenticates via query parameter instead of
	// the bearer header, so it sits outside the authed group.
	r.GET("/ws/alerts", h.Subscribe)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
