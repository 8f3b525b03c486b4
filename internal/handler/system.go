package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"archpipe/internal/model"
	"archpipe/internal/service"
)

// BuildInfo identifies the running binary
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// SystemHandler serves health, version, provider and cache diagnostics
type SystemHandler struct {
	pipeline *service.Pipeline
	build    BuildInfo
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(pipeline *service.Pipeline, build BuildInfo) *SystemHandler {
	return &SystemHandler{pipeline: pipeline, build: build}
}

// Health handles GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	available := 0
	for _, p := range h.pipeline.Providers() {
		if p.Available {
			available++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":              "healthy",
		"service":             "archpipe",
		"version":             h.build.Version,
		"available_providers": available,
		"cache_enabled":       h.pipeline.Cache().Enabled(),
	})
}

// Version handles GET /version
func (h *SystemHandler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, h.build)
}

// Providers handles GET /api/v1/providers
func (h *SystemHandler) Providers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.pipeline.Providers()})
}

// CacheStats handles GET /api/v1/cache/stats
func (h *SystemHandler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"enabled": h.pipeline.Cache().Enabled(),
		"stats":   h.pipeline.Cache().Stats(),
	})
}

// CacheEntry handles GET /api/v1/cache/:hash
func (h *SystemHandler) CacheEntry(c *gin.Context) {
	hash := c.Param("hash")
	if len(hash) != 64 {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid cache hash"})
		return
	}

	entry, err := h.pipeline.Cache().Entry(c.Request.Context(), hash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to read cache: " + err.Error()})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, model.ErrorResponse{Error: "Cache entry not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}
