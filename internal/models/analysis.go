package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisType identifies one analysis an agent can produce for an article.
type AnalysisType string

const (
	AnalysisJargon     AnalysisType = "jargon"
	AnalysisViewpoints AnalysisType = "viewpoints"
	AnalysisFactCheck  AnalysisType = "fact_check"
	AnalysisBias       AnalysisType = "bias"
	AnalysisTimeline   AnalysisType = "timeline"
	AnalysisExpert     AnalysisType = "expert_opinion"
	AnalysisSocial     AnalysisType = "social_pulse"
)

// AllAnalysisTypes lists every registered type in its canonical order.
var AllAnalysisTypes = []AnalysisType{
	AnalysisJargon,
	AnalysisViewpoints,
	AnalysisFactCheck,
	AnalysisBias,
	AnalysisTimeline,
	AnalysisExpert,
	AnalysisSocial,
}

func ParseAnalysisType(raw string) (AnalysisType, bool) {
	candidate := AnalysisType(raw)
	for _, known := range AllAnalysisTypes {
		if candidate == known {
			return known, true
		}
	}
	return "", false
}

// ComplexityTier is an ordinal cost/latency heuristic for an agent's task.
type ComplexityTier int

const (
	ComplexityLow ComplexityTier = iota
	ComplexityMedium
	ComplexityHigh
	ComplexityVeryHigh
)

func (c ComplexityTier) String() string {
	switch c {
	case ComplexityLow:
		return "low"
	case ComplexityMedium:
		return "medium"
	case ComplexityHigh:
		return "high"
	case ComplexityVeryHigh:
		return "very_high"
	default:
		return "unknown"
	}
}

// ModelTier selects the remote model family, not a concrete model name;
// the completion client maps tiers to model identifiers.
type ModelTier string

const (
	TierStandard ModelTier = "standard"
	TierAdvanced ModelTier = "advanced"
)

// AgentConfig is the immutable description of one agent. Built once at agent
// construction.
type AgentConfig struct {
	Name              string
	Type              AnalysisType
	DefaultTier       ModelTier
	Complexity        ComplexityTier
	SupportsStreaming bool
	MaxRetries        int
	Timeout           time.Duration
}

// UserTier is the caller's subscription level, used by model selection.
type UserTier string

const (
	UserTierFree    UserTier = "free"
	UserTierPremium UserTier = "premium"
)

type ConversationRole string

const (
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

type ConversationTurn struct {
	Role    ConversationRole `json:"role"`
	Content string           `json:"content"`
}

// ExecutionContext carries one analysis request through an agent pipeline.
// Owned by the caller of Execute; agents treat it as read-only except for
// the retry/refinement bookkeeping the coordinator injects via Clone.
type ExecutionContext struct {
	ArticleText  string             `json:"article_text"`
	ArticleURL   string             `json:"article_url"`
	SessionID    string             `json:"session_id"`
	UserTier     UserTier           `json:"user_tier"`
	RetryCount   int                `json:"retry_count"`
	Conversation []ConversationTurn `json:"conversation,omitempty"`

	// Filled from the session cache for on-demand runs.
	RequestType    string                        `json:"request_type,omitempty"`
	HasCoreResults bool                          `json:"has_core_results"`
	CacheHit       bool                          `json:"cache_hit"`
	CoreSummary    string                        `json:"core_summary,omitempty"`
	CoreResults    map[AnalysisType]*AgentResult `json:"core_results,omitempty"`

	// Extras is the escape hatch for agent-specific values that do not
	// warrant a named field (e.g. extracted keywords passed between nested
	// sub-agents).
	Extras map[string]interface{} `json:"extras,omitempty"`
}

// Clone returns a copy safe to mutate for the next retry or refinement
// attempt without disturbing the caller's context.
func (ec *ExecutionContext) Clone() *ExecutionContext {
	clone := *ec

	if ec.Conversation != nil {
		clone.Conversation = make([]ConversationTurn, len(ec.Conversation))
		copy(clone.Conversation, ec.Conversation)
	}

	if ec.Extras != nil {
		clone.Extras = make(map[string]interface{}, len(ec.Extras))
		for k, v := range ec.Extras {
			clone.Extras[k] = v
		}
	}

	// CoreResults are immutable after a core run; shared reference is fine.
	return &clone
}

func (ec *ExecutionContext) AppendTurn(role ConversationRole, content string) {
	ec.Conversation = append(ec.Conversation, ConversationTurn{Role: role, Content: content})
}

// PayloadValidation is the diagnostic classification of a parsed payload.
// It never aborts execution.
type PayloadValidation string

const (
	ValidationEmpty          PayloadValidation = "empty"
	ValidationWrongType      PayloadValidation = "wrong_type"
	ValidationPartiallyEmpty PayloadValidation = "partially_empty"
	ValidationValid          PayloadValidation = "valid"
)

// AgentResult is the outcome of exactly one Execute invocation. Never
// mutated after return.
type AgentResult struct {
	Type            AnalysisType           `json:"type"`
	Success         bool                   `json:"success"`
	Payload         map[string]interface{} `json:"payload,omitempty"`
	Error           string                 `json:"error,omitempty"`
	ErrorCode       string                 `json:"error_code,omitempty"`
	ModelUsed       string                 `json:"model_used,omitempty"`
	TokensUsed      int                    `json:"tokens_used"`
	Duration        time.Duration          `json:"duration_ns"`
	APICalls        int                    `json:"api_calls"`
	RefinementCalls int                    `json:"refinement_calls"`
	Validation      PayloadValidation      `json:"validation,omitempty"`
	Attempts        int                    `json:"attempts,omitempty"`
}

// NewFailedResult builds the failure shape; a failed result always carries a
// non-empty error and never a payload.
func NewFailedResult(analysisType AnalysisType, code, message string) *AgentResult {
	if message == "" {
		message = "agent execution failed"
	}
	return &AgentResult{
		Type:      analysisType,
		Success:   false,
		Error:     message,
		ErrorCode: code,
	}
}

// QualityCheckResult is produced by a per-type validator and consumed
// immediately by the refinement loop.
type QualityCheckResult struct {
	Passed                bool     `json:"passed"`
	Issues                []string `json:"issues,omitempty"`
	RefinementInstruction string   `json:"refinement_instruction,omitempty"`
	Severity              string   `json:"severity,omitempty"`
}

// CoreResult is the envelope returned by AnalyzeCore.
type CoreResult struct {
	SessionID         string                        `json:"session_id"`
	Success           bool                          `json:"success"`
	Results           map[AnalysisType]*AgentResult `json:"results"`
	Errors            map[AnalysisType]string       `json:"errors,omitempty"`
	TimeoutOccurred   bool                          `json:"timeout_occurred"`
	ExceptionOccurred bool                          `json:"exception_occurred"`
	Metadata          map[string]interface{}        `json:"metadata,omitempty"`
}

// OnDemandResult is the envelope returned by AnalyzeOnDemand.
type OnDemandResult struct {
	Success              bool                   `json:"success"`
	Type                 AnalysisType           `json:"type"`
	Result               *AgentResult           `json:"result,omitempty"`
	Error                string                 `json:"error,omitempty"`
	ErrorCode            string                 `json:"error_code,omitempty"`
	RequiresCoreAnalysis bool                   `json:"requires_core_analysis"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
}

func GenerateSessionID() string {
	return uuid.New().String()
}
