package config

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIHandler serves the effective configuration over HTTP.
type APIHandler struct {
	cfg *Config
}

// NewAPIHandler creates a handler for cfg.
func NewAPIHandler(cfg *Config) *APIHandler {
	return &APIHandler{cfg: cfg}
}

// RegisterRoutes mounts GET /config on rg.
func (h *APIHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/config", h.HandleGetConfig)
}

// HandleGetConfig returns the configuration with secrets masked.
func (h *APIHandler) HandleGetConfig(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.cfg.Redacted())
}
