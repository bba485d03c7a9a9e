// Package cache stores completed core analyses per session so on-demand
// requests can reuse the article and its core context without re-running
// anything.
package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/plchld/news-copilot/internal/models"
)

// ErrNotFound is returned by Get for a missing or expired session. Callers
// translate it into a requires-core-analysis response; it is not a failure.
var ErrNotFound = fmt.Errorf("session not found")

// Entry is everything cached per session after a core run.
type Entry struct {
	SessionID   string                                      `json:"session_id"`
	ArticleText string                                      `json:"article_text"`
	ArticleURL  string                                      `json:"article_url"`
	UserTier    models.UserTier                             `json:"user_tier"`
	CoreResults map[models.AnalysisType]*models.AgentResult `json:"core_results"`
	Summary     string                                      `json:"summary"`
	CreatedAt   time.Time                                   `json:"created_at"`
}

// Store is the session cache contract. Put overwrites an existing session;
// Get returns ErrNotFound for a missing or expired session.
type Store interface {
	Put(ctx context.Context, entry *Entry) error
	Get(ctx context.Context, sessionID string) (*Entry, error)
	Evict(ctx context.Context, sessionID string) error
	Len(ctx context.Context) (int, error)
	Close() error
}

// NewEntry captures a finished core run into its cacheable form.
func NewEntry(ec *models.ExecutionContext, coreResults map[models.AnalysisType]*models.AgentResult) *Entry {
	return &Entry{
		SessionID:   ec.SessionID,
		ArticleText: ec.ArticleText,
		ArticleURL:  ec.ArticleURL,
		UserTier:    ec.UserTier,
		CoreResults: coreResults,
		Summary:     buildSummary(coreResults),
		CreatedAt:   time.Now(),
	}
}

// Context rebuilds the execution context an on-demand agent runs under:
// the cached article plus the core results as prior context.
func (e *Entry) Context() *models.ExecutionContext {
	return &models.ExecutionContext{
		ArticleText:    e.ArticleText,
		ArticleURL:     e.ArticleURL,
		SessionID:      e.SessionID,
		UserTier:       e.UserTier,
		RequestType:    "on-demand",
		HasCoreResults: len(e.CoreResults) > 0,
		CacheHit:       true,
		CoreSummary:    e.Summary,
		CoreResults:    e.CoreResults,
	}
}

// buildSummary renders the successful core payloads into a compact text
// block for downstream prompts. Order follows the canonical type order so
// the summary is stable across runs.
func buildSummary(coreResults map[models.AnalysisType]*models.AgentResult) string {
	var sb strings.Builder

	for _, t := range models.AllAnalysisTypes {
		result, ok := coreResults[t]
		if !ok || !result.Success {
			continue
		}

		sb.WriteString(strings.ToUpper(string(t)))
		sb.WriteString(":\n")
		writePayloadDigest(&sb, result.Payload)
		sb.WriteString("\n")
	}

	return strings.TrimSpace(sb.String())
}

const maxDigestItems = 5

func writePayloadDigest(sb *strings.Builder, payload map[string]interface{}) {
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		items, ok := payload[key].([]interface{})
		if !ok {
			continue
		}
		for i, item := range items {
			if i >= maxDigestItems {
				break
			}
			switch v := item.(type) {
			case string:
				fmt.Fprintf(sb, "- %s\n", v)
			case map[string]interface{}:
				fmt.Fprintf(sb, "- %s\n", firstStringValue(v))
			}
		}
	}
}

func firstStringValue(m map[string]interface{}) string {
	// Prefer the keys agents actually emit as the item's headline.
	for _, key := range []string{"term", "position", "claim", "headline", "name"} {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	for _, v := range m {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "(item)"
}
