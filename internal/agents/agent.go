// Package agents implements the analysis agents that turn an execution
// context into one structured analysis result via the remote completion
// client.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/plchld/news-copilot/internal/llm"
	"github.com/plchld/news-copilot/internal/models"
	"github.com/plchld/news-copilot/internal/pkg/logger"
)

// Agent executes exactly one analysis. Execute never panics or errors past
// its boundary; every failure is captured in the returned result.
type Agent interface {
	Type() models.AnalysisType
	Config() models.AgentConfig
	Execute(ctx context.Context, ec *models.ExecutionContext) *models.AgentResult
}

// Articles longer than this upgrade the model tier.
const longArticleRunes = 8000

// promptBuilder is a sealed capability: an agent either supplies a task
// prompt that gets the standard system/article wrapper, or builds the full
// message list itself.
type promptBuilder interface {
	messages(ec *models.ExecutionContext) []llm.Message
	sealedPromptBuilder()
}

type standardPrompt struct {
	system string
	task   func(ec *models.ExecutionContext) string
}

func (p standardPrompt) sealedPromptBuilder() {}

func (p standardPrompt) messages(ec *models.ExecutionContext) []llm.Message {
	var sb strings.Builder
	sb.WriteString(p.task(ec))
	sb.WriteString("\n\nARTICLE:\n")
	sb.WriteString(ec.ArticleText)
	if ec.CoreSummary != "" {
		sb.WriteString("\n\nPRIOR ANALYSIS CONTEXT:\n")
		sb.WriteString(ec.CoreSummary)
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: p.system},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

type fullPrompt struct {
	build func(ec *models.ExecutionContext) []llm.Message
}

func (p fullPrompt) sealedPromptBuilder() {}

func (p fullPrompt) messages(ec *models.ExecutionContext) []llm.Message {
	return p.build(ec)
}

// BaseAgent runs the five-phase execution pipeline: model selection, prompt
// construction, remote call, validation, result assembly. It performs no
// retries; retry policy belongs to the coordinator.
type BaseAgent struct {
	cfg          models.AgentConfig
	client       llm.Client
	logger       *logger.Logger
	prompt       promptBuilder
	schema       *llm.ResponseSchema
	search       func(ec *models.ExecutionContext) *llm.SearchParameters
	fallback     func(ec *models.ExecutionContext) map[string]interface{}
	requiredKeys []string
	temperature  float64
	maxTokens    int
}

func (a *BaseAgent) Type() models.AnalysisType {
	return a.cfg.Type
}

func (a *BaseAgent) Config() models.AgentConfig {
	return a.cfg
}

func (a *BaseAgent) Execute(ctx context.Context, ec *models.ExecutionContext) (result *models.AgentResult) {
	startTime := time.Now()
	phaseTimes := map[string]time.Duration{}

	defer func() {
		if r := recover(); r != nil {
			result = models.NewFailedResult(a.cfg.Type, models.CodeAgentException, fmt.Sprintf("agent panic: %v", r))
			result.Duration = time.Since(startTime)
			a.logger.LogAgent(ec.SessionID, a.cfg.Name, "execute", result.Duration, map[string]interface{}{"panic": r}, fmt.Errorf("%v", r))
		}
	}()

	// Phase 1: model selection
	phaseStart := time.Now()
	tier := selectTier(a.cfg, ec)
	model := a.client.ModelFor(tier)
	phaseTimes["model_selection"] = time.Since(phaseStart)

	// Phase 2: prompt and search-parameter construction
	phaseStart = time.Now()
	messages := a.prompt.messages(ec)
	for _, turn := range ec.Conversation {
		messages = append(messages, llm.Message{Role: llm.Role(turn.Role), Content: turn.Content})
	}
	var searchParams *llm.SearchParameters
	if a.search != nil {
		searchParams = a.search(ec)
	}
	phaseTimes["prompt_build"] = time.Since(phaseStart)

	// Phase 3: remote call under the agent's own timeout
	phaseStart = time.Now()
	callCtx := ctx
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	resp, err := a.client.Complete(callCtx, &llm.CompletionRequest{
		Tier:        tier,
		Messages:    messages,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
		Schema:      a.schema,
		Search:      searchParams,
	})
	phaseTimes["remote_call"] = time.Since(phaseStart)

	if err != nil {
		code := models.ErrorCode(err)
		if callCtx.Err() == context.DeadlineExceeded || models.IsTimeout(err) {
			code = models.CodeAgentTimeout
		}
		result = models.NewFailedResult(a.cfg.Type, code, err.Error())
		result.ModelUsed = model
		result.APICalls = 1
		result.Duration = time.Since(startTime)
		a.logger.LogAgent(ec.SessionID, a.cfg.Name, "execute", result.Duration, map[string]interface{}{
			"model":       model,
			"retry_count": ec.RetryCount,
			"error_code":  code,
		}, err)
		return result
	}

	// Phase 4: payload shaping + diagnostic validation
	phaseStart = time.Now()
	var payload map[string]interface{}
	if a.schema != nil {
		payload = resp.Structured
	} else {
		payload = parseLegacyPayload(resp.Content, a.fallbackFor(ec))
	}
	validation := classifyPayload(payload, a.requiredKeys)
	phaseTimes["validation"] = time.Since(phaseStart)

	// Phase 5: result assembly
	result = &models.AgentResult{
		Type:       a.cfg.Type,
		Success:    true,
		Payload:    payload,
		ModelUsed:  model,
		TokensUsed: resp.TokensUsed,
		APICalls:   1,
		Duration:   time.Since(startTime),
		Validation: validation,
	}

	a.logger.LogAgent(ec.SessionID, a.cfg.Name, "execute", result.Duration, map[string]interface{}{
		"model":           model,
		"tokens_used":     resp.TokensUsed,
		"validation":      string(validation),
		"retry_count":     ec.RetryCount,
		"phase_times_ms":  phaseMillis(phaseTimes),
		"search_enabled":  searchParams != nil,
		"structured_call": a.schema != nil,
	}, nil)

	return result
}

func (a *BaseAgent) fallbackFor(ec *models.ExecutionContext) map[string]interface{} {
	if a.fallback != nil {
		return a.fallback(ec)
	}

	// Deterministic shape so a parse failure never yields an empty result.
	fallback := make(map[string]interface{}, len(a.requiredKeys))
	for _, key := range a.requiredKeys {
		fallback[key] = []interface{}{}
	}
	fallback["parse_fallback"] = true
	return fallback
}

func phaseMillis(phases map[string]time.Duration) map[string]int64 {
	millis := make(map[string]int64, len(phases))
	for name, d := range phases {
		millis[name] = d.Milliseconds()
	}
	return millis
}

// selectTier is deterministic and total: the same context always yields the
// same tier.
func selectTier(cfg models.AgentConfig, ec *models.ExecutionContext) models.ModelTier {
	if cfg.DefaultTier == models.TierAdvanced {
		return models.TierAdvanced
	}

	if ec.UserTier == models.UserTierPremium && cfg.Complexity >= models.ComplexityHigh {
		return models.TierAdvanced
	}

	if utf8.RuneCountInString(ec.ArticleText) > longArticleRunes {
		return models.TierAdvanced
	}

	if ec.RetryCount > 1 {
		return models.TierAdvanced
	}

	return cfg.DefaultTier
}

// parseLegacyPayload extracts a JSON object from a free-text reply. Parse
// failure yields the fallback payload, never an empty result.
func parseLegacyPayload(content string, fallback map[string]interface{}) map[string]interface{} {
	trimmed := strings.TrimSpace(content)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			trimmed = trimmed[start : end+1]
		}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return fallback
	}
	return payload
}

// classifyPayload tags the payload shape for diagnostics only; it never
// aborts execution.
func classifyPayload(payload map[string]interface{}, requiredKeys []string) models.PayloadValidation {
	if len(payload) == 0 {
		return models.ValidationEmpty
	}

	if len(requiredKeys) == 0 {
		return models.ValidationValid
	}

	present := 0
	filled := 0
	for _, key := range requiredKeys {
		value, ok := payload[key]
		if !ok {
			continue
		}
		present++
		if !isEmptyValue(value) {
			filled++
		}
	}

	switch {
	case present == 0:
		return models.ValidationWrongType
	case filled < len(requiredKeys):
		return models.ValidationPartiallyEmpty
	default:
		return models.ValidationValid
	}
}

func isEmptyValue(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []interface{}:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	default:
		return false
	}
}
