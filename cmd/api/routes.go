package main

import (
	"github.com/gin-gonic/gin"

	"voicemail-gateway/internal/voicemail"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic.
func registerRoutes(r *gin.Engine, h voicemail.Handlers) {
	r.GET("/health", h.Health)

	// Provider webhooks (public).
	// NOTE: Twilio request-signature validation is not performed here.
	r.GET("/incoming", h.Incoming)
	r.GET("/menu", h.Record)
	r.GET("/record", h.Record)
	r.GET("/hangup", h.Hangup)
	r.POST("/store", h.Store)
}
