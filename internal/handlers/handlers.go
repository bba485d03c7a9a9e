// Package handlers exposes the analysis pipeline over HTTP. Handlers stay
// thin: bind, delegate, translate the outcome to a status code.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/plchld/news-copilot/internal/article"
	"github.com/plchld/news-copilot/internal/cache"
	"github.com/plchld/news-copilot/internal/coordinator"
	"github.com/plchld/news-copilot/internal/llm"
	"github.com/plchld/news-copilot/internal/models"
	"github.com/plchld/news-copilot/internal/pkg/logger"
)

type Handler struct {
	coordinator *coordinator.Coordinator
	optimized   *coordinator.Optimized
	fetcher     *article.Fetcher
	store       cache.Store
	client      llm.Client
	logger      *logger.Logger
}

func New(c *coordinator.Coordinator, o *coordinator.Optimized, f *article.Fetcher, store cache.Store, client llm.Client, log *logger.Logger) *Handler {
	return &Handler{
		coordinator: c,
		optimized:   o,
		fetcher:     f,
		store:       store,
		client:      client,
		logger:      log,
	}
}

func (h *Handler) Register(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/stats", h.Stats)

	api := router.Group("/api")
	{
		api.POST("/analyze", h.Analyze)
		api.POST("/analyze/core", h.AnalyzeCore)
		api.POST("/analyze/:session_id/:type", h.AnalyzeOnDemand)
	}
}

type analyzeRequest struct {
	ArticleText string   `json:"article_text"`
	ArticleURL  string   `json:"article_url"`
	UserTier    string   `json:"user_tier"`
	Types       []string `json:"types"`
}

// Analyze runs the requested analyses (all of them when none are named)
// with priority grouping and returns the full result set.
func (h *Handler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_code": models.CodeBadRequest})
		return
	}

	ec, ok := h.buildContext(c, &req)
	if !ok {
		return
	}

	types := parseTypes(req.Types)
	results := h.coordinator.Analyze(c.Request.Context(), ec, types)

	c.JSON(http.StatusOK, gin.H{
		"session_id": ec.SessionID,
		"results":    results,
	})
}

// AnalyzeCore runs the eager core set and returns the session ID the
// on-demand endpoints need.
func (h *Handler) AnalyzeCore(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_code": models.CodeBadRequest})
		return
	}

	ec, ok := h.buildContext(c, &req)
	if !ok {
		return
	}

	result := h.optimized.AnalyzeCore(c.Request.Context(), ec)

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}

type onDemandRequest struct {
	UserTier string                 `json:"user_tier"`
	Extras   map[string]interface{} `json:"extras"`
}

// AnalyzeOnDemand runs one gated analysis against a cached session. The body
// is optional; when present it carries the requesting caller's tier and
// hints, which take precedence over the cached session's.
func (h *Handler) AnalyzeOnDemand(c *gin.Context) {
	sessionID := c.Param("session_id")
	analysisType := c.Param("type")

	var req onDemandRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_code": models.CodeBadRequest})
		return
	}

	var userCtx *models.ExecutionContext
	if req.UserTier != "" || len(req.Extras) > 0 {
		userCtx = &models.ExecutionContext{Extras: req.Extras}
		if req.UserTier == string(models.UserTierPremium) {
			userCtx.UserTier = models.UserTierPremium
		} else if req.UserTier != "" {
			userCtx.UserTier = models.UserTierFree
		}
	}

	result := h.optimized.AnalyzeOnDemand(c.Request.Context(), sessionID, analysisType, userCtx)

	switch result.ErrorCode {
	case models.CodeInvalidAnalysisType:
		c.JSON(http.StatusBadRequest, result)
	case models.CodeCacheMiss:
		c.JSON(http.StatusNotFound, result)
	default:
		if !result.Success {
			c.JSON(http.StatusBadGateway, result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if err := h.client.HealthCheck(ctx); err != nil {
		checks["llm"] = err.Error()
		healthy = false
	} else {
		checks["llm"] = "ok"
	}

	if _, err := h.store.Len(ctx); err != nil {
		checks["cache"] = err.Error()
		healthy = false
	} else {
		checks["cache"] = "ok"
	}

	if err := h.fetcher.HealthCheck(); err != nil {
		checks["article"] = err.Error()
	} else {
		checks["article"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"healthy": healthy, "checks": checks})
}

func (h *Handler) Stats(c *gin.Context) {
	sessions, _ := h.store.Len(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"agents":          h.coordinator.Stats(),
		"capabilities":    h.coordinator.Capabilities(),
		"cached_sessions": sessions,
	})
}

// buildContext resolves the article: inline text wins, otherwise the URL is
// fetched. Responds with the error itself when neither yields text.
func (h *Handler) buildContext(c *gin.Context, req *analyzeRequest) (*models.ExecutionContext, bool) {
	ec := &models.ExecutionContext{
		ArticleText: req.ArticleText,
		ArticleURL:  req.ArticleURL,
		SessionID:   models.GenerateSessionID(),
		UserTier:    models.UserTierFree,
	}
	if req.UserTier == string(models.UserTierPremium) {
		ec.UserTier = models.UserTierPremium
	}

	if ec.ArticleText != "" {
		return ec, true
	}

	if req.ArticleURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "either article_text or article_url is required",
			"error_code": models.CodeBadRequest,
		})
		return nil, false
	}

	extract, err := h.fetcher.FetchText(c.Request.Context(), req.ArticleURL)
	if err != nil {
		h.logger.WithError(err).Warn("article fetch failed", "url", req.ArticleURL)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":      err.Error(),
			"error_code": models.ErrorCode(err),
		})
		return nil, false
	}

	ec.ArticleText = extract.Text
	return ec, true
}

func parseTypes(raw []string) []models.AnalysisType {
	if len(raw) == 0 {
		return models.AllAnalysisTypes
	}

	types := make([]models.AnalysisType, 0, len(raw))
	for _, r := range raw {
		// Unknown names pass through; the coordinator logs and drops them.
		types = append(types, models.AnalysisType(r))
	}
	return types
}
