package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"archpipe/internal/model"
	"archpipe/internal/service"
)

// DesignHandler handles the design pipeline endpoints
type DesignHandler struct {
	pipeline *service.Pipeline
}

// NewDesignHandler creates a new design handler
func NewDesignHandler(pipeline *service.Pipeline) *DesignHandler {
	return &DesignHandler{pipeline: pipeline}
}

// Extract handles POST /api/v1/parameters/extract
func (h *DesignHandler) Extract(c *gin.Context) {
	var req model.ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	ext, err := h.pipeline.Extract(c.Request.Context(), req.DesignRequest())
	if err != nil {
		respondError(c, "Extraction failed", err)
		return
	}
	c.JSON(http.StatusOK, ext)
}

// Validate handles POST /api/v1/parameters/validate
func (h *DesignHandler) Validate(c *gin.Context) {
	var req model.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	report, err := h.pipeline.ValidateParameters(c.Request.Context(), req.Parameters, req.Locale)
	if err != nil {
		respondError(c, "Validation failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Optimize handles POST /api/v1/parameters/optimize
func (h *DesignHandler) Optimize(c *gin.Context) {
	var req model.OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	params, err := h.pipeline.OptimizeParameters(c.Request.Context(), req.Parameters, req.Goals, req.Locale)
	if err != nil {
		respondError(c, "Optimization failed", err)
		return
	}
	c.JSON(http.StatusOK, params)
}

// Analyze handles POST /api/v1/analysis
func (h *DesignHandler) Analyze(c *gin.Context) {
	req, specs, ok := h.bindAnalysis(c)
	if !ok {
		return
	}

	composite, err := h.pipeline.RunComprehensiveAnalysis(c.Request.Context(), req, specs)
	if err != nil {
		respondError(c, "Analysis failed", err)
		return
	}
	c.JSON(http.StatusOK, composite)
}

// AnalyzeStream handles POST /api/v1/analysis/stream - SSE progress per agent
func (h *DesignHandler) AnalyzeStream(c *gin.Context) {
	req, specs, ok := h.bindAnalysis(c)
	if !ok {
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream; charset=utf-8")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Streaming not supported"})
		return
	}

	ids := make([]string, 0, len(specs))
	for _, s := range specs {
		ids = append(ids, s.ID)
	}
	sendSSE(c, "start", map[string]any{"agents": ids, "locale": req.Locale})
	flusher.Flush()

	// callbacks are serialized by the dispatcher
	composite, err := h.pipeline.RunComprehensiveAnalysisStream(c.Request.Context(), req, specs, func(res model.AgentAnalysisResult) {
		sendSSE(c, "agent", res)
		flusher.Flush()
	})
	if err != nil {
		sendSSE(c, "error", model.ErrorResponse{Error: err.Error()})
		flusher.Flush()
		return
	}

	sendSSE(c, "result", composite)
	flusher.Flush()

	sendSSE(c, "done", nil)
	flusher.Flush()
}

// Chat handles POST /api/v1/chat
func (h *DesignHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	reply, err := h.pipeline.Chat(c.Request.Context(), req.Message, req.Context, req.Locale)
	if err != nil {
		respondError(c, "Chat failed", err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (h *DesignHandler) bindAnalysis(c *gin.Context) (model.DesignRequest, []model.AgentSpec, bool) {
	var body model.AnalysisRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request: " + err.Error()})
		return model.DesignRequest{}, nil, false
	}
	specs, err := service.SelectAgents(h.pipeline.Agents(), body.Agents)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: err.Error()})
		return model.DesignRequest{}, nil, false
	}
	return body.DesignRequest(), specs, true
}

// respondError maps pipeline errors to status codes. Only configuration
// failures and invalid agent selections can reach here.
func respondError(c *gin.Context, prefix string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, service.ErrInvalidAgents) || errors.Is(err, service.ErrUnknownSchema) {
		status = http.StatusBadRequest
	}
	c.JSON(status, model.ErrorResponse{Error: prefix + ": " + err.Error()})
}

// sendSSE sends a Server-Sent Event
func sendSSE(c *gin.Context, event string, data any) {
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"error\": \"JSON marshal failed\"}\n\n")
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, string(jsonData))
	} else {
		fmt.Fprintf(c.Writer, "event: %s\ndata: {}\n\n", event)
	}
}
