package voicemail

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voicemail-gateway/internal/config"
	"voicemail-gateway/internal/provider"
	"voicemail-gateway/internal/storage"
	"voicemail-gateway/pkg/logger"
)

// StoreResponse is the JSON body of the ingestion endpoint.
type StoreResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

// Handlers owns the webhook endpoints. The provider instance is built
// per request from the immutable config; storage is the only shared
// state across requests.
type Handlers struct {
	Cfg         config.VoicemailConfig
	ObjectStore storage.ObjectStore
	Index       *storage.Index
	Validator   *PayloadValidator

	// NewProvider overrides the provider factory; nil means provider.New.
	NewProvider func(config.VoicemailConfig) (provider.VoiceProvider, error)

	Now func() time.Time
}

func (h Handlers) voiceProvider() (provider.VoiceProvider, error) {
	if h.NewProvider != nil {
		return h.NewProvider(h.Cfg)
	}
	return provider.New(h.Cfg)
}

// Health reports liveness.
func (h Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Incoming answers the inbound-call webhook. The caller number arrives
// as the From query parameter.
func (h Handlers) Incoming(c *gin.Context) {
	log := logger.FromGin(c)

	p, err := h.voiceProvider()
	if err != nil {
		internalError(c, log, err)
		return
	}

	markup, err := p.IncomingCallResponse(c.Query("From"))
	if err != nil {
		internalError(c, log, err)
		return
	}
	respondXML(c, markup)
}

// Record serves the greeting-and-record document.
func (h Handlers) Record(c *gin.Context) {
	log := logger.FromGin(c)

	p, err := h.voiceProvider()
	if err != nil {
		internalError(c, log, err)
		return
	}

	markup, err := p.RecordingResponse()
	if err != nil {
		internalError(c, log, err)
		return
	}
	respondXML(c, markup)
}

// Hangup answers the post-recording redirect with a hangup document.
func (h Handlers) Hangup(c *gin.Context) {
	log := logger.FromGin(c)

	p, err := h.voiceProvider()
	if err != nil {
		internalError(c, log, err)
		return
	}

	markup, err := p.HangupResponse()
	if err != nil {
		internalError(c, log, err)
		return
	}
	respondXML(c, markup)
}

// Store is the recording-completed callback: validate the payload, then
// run the ingestion pipeline. 400 with a structured body on validation
// failure, 500 with a structured body on any downstream failure.
func (h Handlers) Store(c *gin.Context) {
	log := logger.FromGin(c)

	var payload CallbackPayload
	if err := c.ShouldBind(&payload); err != nil {
		c.JSON(http.StatusBadRequest, StoreResponse{
			Status:  false,
			Message: "Invalid request data: " + err.Error(),
		})
		return
	}
	if err := h.Validator.Validate(payload); err != nil {
		log.Warn("recording callback rejected", "err", err)
		c.JSON(http.StatusBadRequest, StoreResponse{
			Status:  false,
			Message: "Invalid request data: " + err.Error(),
		})
		return
	}

	p, err := h.voiceProvider()
	if err != nil {
		storeError(c, log, err)
		return
	}

	pipe := &Pipeline{
		Provider: p,
		Store:    h.ObjectStore,
		Index:    h.Index,
		Now:      h.Now,
	}

	if _, err := pipe.Ingest(c.Request.Context(), payload); err != nil {
		storeError(c, log, err)
		return
	}

	c.JSON(http.StatusOK, StoreResponse{
		Status:  true,
		Message: "Recording stored successfully",
	})
}

func respondXML(c *gin.Context, markup string) {
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, markup)
}

// internalError is the plain-text failure path of the call-control
// endpoints.
func internalError(c *gin.Context, log *slog.Logger, err error) {
	log.Error("request failed", "err", err)
	c.String(http.StatusInternalServerError, "Internal Server Error: %s", err.Error())
	c.Abort()
}

// storeError is the structured failure path of the ingestion endpoint.
func storeError(c *gin.Context, log *slog.Logger, err error) {
	log.Error("recording ingestion failed", "err", err)
	c.JSON(http.StatusInternalServerError, StoreResponse{
		Status:  false,
		Message: "Internal Server Error: " + err.Error(),
	})
}
