package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/plchld/news-copilot/internal/config"
	"github.com/plchld/news-copilot/internal/models"
	"github.com/plchld/news-copilot/internal/pkg/logger"
)

// GrokClient talks to the x.ai chat completions API. It performs no retries
// of its own; retry policy belongs to the coordinator.
type GrokClient struct {
	httpClient *http.Client
	config     config.GrokConfig
	logger     *logger.Logger
}

func NewGrokClient(cfg config.GrokConfig, log *logger.Logger) (*GrokClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("grok API key required")
	}

	client := &GrokClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     log,
	}

	log.Info("Grok client initialized",
		"base_url", cfg.BaseURL,
		"standard_model", cfg.StandardModel,
		"advanced_model", cfg.AdvancedModel,
		"timeout", cfg.Timeout.String())

	return client, nil
}

func (c *GrokClient) Name() string {
	return "grok"
}

func (c *GrokClient) ModelFor(tier models.ModelTier) string {
	if tier == models.TierAdvanced {
		return c.config.AdvancedModel
	}
	return c.config.StandardModel
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string                 `json:"model"`
	Messages         []chatMessage          `json:"messages"`
	Temperature      float64                `json:"temperature"`
	MaxTokens        int                    `json:"max_tokens,omitempty"`
	ResponseFormat   map[string]interface{} `json:"response_format,omitempty"`
	SearchParameters map[string]interface{} `json:"search_parameters,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *GrokClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	startTime := time.Now()

	body := chatRequest{
		Model:       c.ModelFor(req.Tier),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = c.config.MaxTokens
	}

	for _, msg := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}

	if req.Schema != nil {
		body.ResponseFormat = map[string]interface{}{
			"type": "json_schema",
			"json_schema": map[string]interface{}{
				"name":   req.Schema.Name,
				"schema": req.Schema.Schema,
				"strict": true,
			},
		}
	}

	if req.Search != nil {
		body.SearchParameters = buildSearchParameters(req.Search)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, models.NewInternalError("REQUEST_ENCODE_FAILED", "failed to encode completion request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, models.NewInternalError("REQUEST_BUILD_FAILED", "failed to build completion request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil || isTimeoutErr(err) {
			return nil, models.NewTimeoutError(models.CodeAgentTimeout, "completion request timed out").WithCause(err)
		}
		return nil, models.WrapExternalError("GROK_REQUEST_FAILED", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, models.WrapExternalError("GROK_READ_FAILED", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.statusError(httpResp.StatusCode, raw)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, models.WrapExternalError("GROK_DECODE_FAILED", err)
	}

	if len(parsed.Choices) == 0 {
		return nil, models.NewExternalError("GROK_EMPTY_RESPONSE", "no completion choices returned")
	}

	choice := parsed.Choices[0]
	resp := &CompletionResponse{
		Content:      choice.Message.Content,
		TokensUsed:   parsed.Usage.TotalTokens,
		FinishReason: choice.FinishReason,
	}

	if req.Schema != nil {
		var structured map[string]interface{}
		if err := json.Unmarshal([]byte(choice.Message.Content), &structured); err != nil {
			return nil, models.NewExternalError("GROK_SCHEMA_VIOLATION", "structured response did not parse").WithCause(err)
		}
		resp.Structured = structured
	}

	c.logger.LogService("grok", "complete", time.Since(startTime), map[string]interface{}{
		"model":          body.Model,
		"messages":       len(body.Messages),
		"tokens_used":    resp.TokensUsed,
		"finish_reason":  resp.FinishReason,
		"structured":     req.Schema != nil,
		"search_enabled": req.Search != nil,
	}, nil)

	return resp, nil
}

func buildSearchParameters(p *SearchParameters) map[string]interface{} {
	params := map[string]interface{}{"mode": string(p.Mode)}

	if len(p.SourceTypes) > 0 {
		sources := make([]map[string]interface{}, 0, len(p.SourceTypes))
		for _, sourceType := range p.SourceTypes {
			source := map[string]interface{}{"type": sourceType}
			if len(p.ExcludedWebsites) > 0 && (sourceType == "web" || sourceType == "news") {
				source["excluded_websites"] = p.ExcludedWebsites
			}
			sources = append(sources, source)
		}
		params["sources"] = sources
	}

	if p.MaxResults > 0 {
		params["max_search_results"] = p.MaxResults
	}
	if p.FromDate != "" {
		params["from_date"] = p.FromDate
	}
	if p.ToDate != "" {
		params["to_date"] = p.ToDate
	}

	return params
}

func (c *GrokClient) statusError(status int, raw []byte) *models.AppError {
	message := strings.TrimSpace(string(raw))
	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}

	switch {
	case status == http.StatusTooManyRequests:
		return models.NewExternalError(models.CodeRateLimited, message).WithMetadata("status", status)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return models.NewTimeoutError(models.CodeAgentTimeout, message).WithMetadata("status", status)
	case status >= 400 && status < 500:
		return models.NewValidationError(models.CodeBadRequest, message).WithMetadata("status", status)
	default:
		return models.NewExternalError("GROK_SERVER_ERROR", message).WithMetadata("status", status)
	}
}

func isTimeoutErr(err error) bool {
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}

func (c *GrokClient) HealthCheck(ctx context.Context) error {
	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := c.Complete(testCtx, &CompletionRequest{
		Tier:      models.TierStandard,
		Messages:  []Message{{Role: RoleUser, Content: "Respond with 'OK' if you can process this request"}},
		MaxTokens: 10,
	})
	if err != nil {
		return fmt.Errorf("grok health check failed: %w", err)
	}

	if resp.Content == "" {
		return fmt.Errorf("grok health check returned empty response")
	}

	return nil
}
