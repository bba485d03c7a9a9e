// Package llm wraps the remote text-generation collaborator. The core treats
// it as opaque request/response generation with optional schema-guided output
// and optional live-search augmentation.
package llm

import (
	"context"

	"github.com/plchld/news-copilot/internal/models"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SearchMode controls live retrieval augmentation for a completion call.
type SearchMode string

const (
	SearchModeOn   SearchMode = "on"
	SearchModeAuto SearchMode = "auto"
	SearchModeOff  SearchMode = "off"
)

// SearchParameters describe the live-search side channel. A nil value on the
// request means no retrieval augmentation.
type SearchParameters struct {
	Mode             SearchMode `json:"mode"`
	SourceTypes      []string   `json:"source_types,omitempty"` // web, news, x
	MaxResults       int        `json:"max_results,omitempty"`
	FromDate         string     `json:"from_date,omitempty"` // YYYY-MM-DD
	ToDate           string     `json:"to_date,omitempty"`
	ExcludedWebsites []string   `json:"excluded_websites,omitempty"`
}

// ResponseSchema asks the service to return a value conforming to the given
// JSON schema (the structured calling convention).
type ResponseSchema struct {
	Name   string
	Schema map[string]interface{}
}

type CompletionRequest struct {
	Tier        models.ModelTier
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Schema      *ResponseSchema
	Search      *SearchParameters
}

type CompletionResponse struct {
	Content      string
	Structured   map[string]interface{}
	TokensUsed   int
	FinishReason string
}

// Client is the remote completion boundary. Implementations must return a
// typed *models.AppError for rate-limit, bad-request and timeout conditions.
type Client interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	ModelFor(tier models.ModelTier) string
	Name() string
	HealthCheck(ctx context.Context) error
}
