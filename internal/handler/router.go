package handler

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"archpipe/internal/config"
	"archpipe/internal/service"
)

// NewRouter wires every endpoint onto a gin engine
func NewRouter(pipeline *service.Pipeline, cfg config.ServerConfig, build BuildInfo, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = splitList(cfg.AllowedOrigins)
	if len(corsConfig.AllowOrigins) == 0 || corsConfig.AllowOrigins[0] == "*" {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	}
	if methods := splitList(cfg.AllowedMethods); len(methods) > 0 {
		corsConfig.AllowMethods = methods
	}
	if headers := splitList(cfg.AllowedHeaders); len(headers) > 0 {
		corsConfig.AllowHeaders = headers
	}
	router.Use(cors.New(corsConfig))

	design := NewDesignHandler(pipeline)
	system := NewSystemHandler(pipeline, build)

	router.GET("/health", system.Health)
	router.GET("/version", system.Version)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/parameters/extract", design.Extract)
		apiV1.POST("/parameters/validate", design.Validate)
		apiV1.POST("/parameters/optimize", design.Optimize)
		apiV1.POST("/analysis", design.Analyze)
		apiV1.POST("/analysis/stream", design.AnalyzeStream)
		apiV1.POST("/chat", design.Chat)

		apiV1.GET("/providers", system.Providers)
		apiV1.GET("/cache/stats", system.CacheStats)
		apiV1.GET("/cache/:hash", system.CacheEntry)
	}

	return router
}

// requestLogger logs one line per request
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := logger.Info()
		if c.Writer.Status() >= 500 {
			ev = logger.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
