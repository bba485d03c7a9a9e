package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/plchld/news-copilot/internal/llm"
	"github.com/plchld/news-copilot/internal/models"
	"github.com/plchld/news-copilot/internal/pkg/logger"
)

// Extras keys passed between social sub-agents.
const (
	extraSocialKeywords  = "social_keywords"
	extraSocialDiscourse = "social_discourse"
)

// NewSocialPulseAgent builds the nested social-discourse agent. Its children
// form a small dependency graph rather than an independent set:
//
//	keywords -> discourse -> { themes, sentiment }
//
// so it supplies a custom orchestration instead of the default fan-out.
func NewSocialPulseAgent(client llm.Client, log *logger.Logger) *NestedAgent {
	keywords := newSocialKeywordsAgent(client, log)
	discourse := newSocialDiscourseAgent(client, log)
	themes := newSocialThemesAgent(client, log)
	sentiment := newSocialSentimentAgent(client, log)

	return &NestedAgent{
		cfg: models.AgentConfig{
			Name:              "social_pulse",
			Type:              models.AnalysisSocial,
			DefaultTier:       models.TierStandard,
			Complexity:        models.ComplexityVeryHigh,
			SupportsStreaming: false,
			MaxRetries:        3,
			Timeout:           150 * time.Second,
		},
		logger:   log,
		children: []Agent{keywords, discourse, themes, sentiment},
		orchestrate: func(ctx context.Context, ec *models.ExecutionContext, children []Agent) map[string]*models.AgentResult {
			return runSocialGraph(ctx, ec, keywords, discourse, themes, sentiment)
		},
		postProcess: assembleSocialPulse,
	}
}

// runSocialGraph executes the social dependency graph. A failed upstream
// stage short-circuits its dependents but every attempted stage still
// records a result.
func runSocialGraph(ctx context.Context, ec *models.ExecutionContext, keywords, discourse, themes, sentiment Agent) map[string]*models.AgentResult {
	results := make(map[string]*models.AgentResult, 4)

	// Stage 1: extract search keywords from the article.
	kwResult := keywords.Execute(ctx, ec)
	results[keywords.Config().Name] = kwResult
	if !kwResult.Success {
		return results
	}

	// Stage 2: search social discourse using the extracted keywords.
	stage2 := ec.Clone()
	if stage2.Extras == nil {
		stage2.Extras = map[string]interface{}{}
	}
	stage2.Extras[extraSocialKeywords] = kwResult.Payload["keywords"]

	discourseResult := discourse.Execute(ctx, stage2)
	results[discourse.Config().Name] = discourseResult
	if !discourseResult.Success {
		return results
	}

	// Stage 3: themes and sentiment run concurrently over the discourse.
	stage3 := stage2.Clone()
	stage3.Extras[extraSocialDiscourse] = discourseResult.Payload["posts"]

	var themesResult, sentimentResult *models.AgentResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		themesResult = themes.Execute(gctx, stage3)
		return nil
	})
	g.Go(func() error {
		sentimentResult = sentiment.Execute(gctx, stage3)
		return nil
	})
	_ = g.Wait()

	results[themes.Config().Name] = themesResult
	results[sentiment.Config().Name] = sentimentResult

	return results
}

// assembleSocialPulse flattens the staged child payloads into the final
// social analysis shape.
func assembleSocialPulse(ec *models.ExecutionContext, childResults map[string]*models.AgentResult) (map[string]interface{}, error) {
	discourse, ok := childResults["social_discourse"]
	if !ok || !discourse.Success {
		return nil, fmt.Errorf("discourse stage did not complete")
	}

	payload := map[string]interface{}{
		"posts": discourse.Payload["posts"],
	}

	if kw, ok := childResults["social_keywords"]; ok && kw.Success {
		payload["keywords"] = kw.Payload["keywords"]
	}
	if th, ok := childResults["social_themes"]; ok && th.Success {
		payload["themes"] = th.Payload["themes"]
	}
	if se, ok := childResults["social_sentiment"]; ok && se.Success {
		payload["sentiment"] = se.Payload["sentiment"]
		payload["sentiment_summary"] = se.Payload["summary"]
	}

	return payload, nil
}

func newSocialKeywordsAgent(client llm.Client, log *logger.Logger) *BaseAgent {
	return &BaseAgent{
		cfg: models.AgentConfig{
			Name:        "social_keywords",
			Type:        models.AnalysisSocial,
			DefaultTier: models.TierStandard,
			Complexity:  models.ComplexityLow,
			MaxRetries:  2,
			Timeout:     30 * time.Second,
		},
		client: client,
		logger: log,
		prompt: standardPrompt{
			system: "You extract search keywords that would surface social media discussion of a news story.",
			task: func(ec *models.ExecutionContext) string {
				return `Extract 3-6 short search keywords or phrases that people discussing this story on social media would actually use.
Prefer names, hashtag-like phrases and distinctive terms over generic topic words.`
			},
		},
		schema: &llm.ResponseSchema{
			Name: "social_keywords",
			Schema: objectSchema(map[string]interface{}{
				"keywords": arrayOf(stringProp("one search keyword or phrase")),
			}, "keywords"),
		},
		requiredKeys: []string{"keywords"},
		temperature:  0.3,
		maxTokens:    1024,
	}
}

func newSocialDiscourseAgent(client llm.Client, log *logger.Logger) *BaseAgent {
	return &BaseAgent{
		cfg: models.AgentConfig{
			Name:        "social_discourse",
			Type:        models.AnalysisSocial,
			DefaultTier: models.TierStandard,
			Complexity:  models.ComplexityHigh,
			MaxRetries:  2,
			Timeout:     60 * time.Second,
		},
		client: client,
		logger: log,
		prompt: fullPrompt{
			build: func(ec *models.ExecutionContext) []llm.Message {
				keywords := extrasStrings(ec, extraSocialKeywords)
				task := fmt.Sprintf(`Search X for current discussion matching these keywords: %s.
Collect representative posts across the range of reactions, not just the loudest. For each post capture a short paraphrase, the author's rough stance, and approximate engagement level.

ARTICLE HEADLINE CONTEXT:
%s`, strings.Join(keywords, ", "), firstRunes(ec.ArticleText, 500))
				return []llm.Message{
					{Role: llm.RoleSystem, Content: "You are a social media researcher who samples public discussion of news stories."},
					{Role: llm.RoleUser, Content: task},
				}
			},
		},
		schema: &llm.ResponseSchema{
			Name: "social_discourse",
			Schema: objectSchema(map[string]interface{}{
				"posts": arrayOf(objectSchema(map[string]interface{}{
					"paraphrase": stringProp("what the post says, paraphrased"),
					"stance":     stringProp("supportive | critical | neutral | joking | other"),
					"engagement": stringProp("low | medium | high"),
				}, "paraphrase", "stance")),
			}, "posts"),
		},
		search: func(ec *models.ExecutionContext) *llm.SearchParameters {
			return &llm.SearchParameters{
				Mode:        llm.SearchModeOn,
				SourceTypes: []string{"x"},
				MaxResults:  20,
			}
		},
		requiredKeys: []string{"posts"},
		temperature:  0.4,
		maxTokens:    4096,
	}
}

func newSocialThemesAgent(client llm.Client, log *logger.Logger) *BaseAgent {
	return &BaseAgent{
		cfg: models.AgentConfig{
			Name:        "social_themes",
			Type:        models.AnalysisSocial,
			DefaultTier: models.TierStandard,
			Complexity:  models.ComplexityMedium,
			MaxRetries:  2,
			Timeout:     30 * time.Second,
		},
		client: client,
		logger: log,
		prompt: fullPrompt{
			build: func(ec *models.ExecutionContext) []llm.Message {
				return []llm.Message{
					{Role: llm.RoleSystem, Content: "You cluster social media discussion into its recurring themes."},
					{Role: llm.RoleUser, Content: fmt.Sprintf(`Group the following posts into 3-6 recurring themes. Name each theme, describe it in a sentence, and note roughly how prevalent it is.

POSTS:
%s`, discourseDigest(ec))},
				}
			},
		},
		schema: &llm.ResponseSchema{
			Name: "social_themes",
			Schema: objectSchema(map[string]interface{}{
				"themes": arrayOf(objectSchema(map[string]interface{}{
					"name":       stringProp("short theme name"),
					"summary":    stringProp("one-sentence description"),
					"prevalence": stringProp("rare | common | dominant"),
				}, "name", "summary")),
			}, "themes"),
		},
		requiredKeys: []string{"themes"},
		temperature:  0.3,
		maxTokens:    2048,
	}
}

func newSocialSentimentAgent(client llm.Client, log *logger.Logger) *BaseAgent {
	return &BaseAgent{
		cfg: models.AgentConfig{
			Name:        "social_sentiment",
			Type:        models.AnalysisSocial,
			DefaultTier: models.TierStandard,
			Complexity:  models.ComplexityMedium,
			MaxRetries:  2,
			Timeout:     30 * time.Second,
		},
		client: client,
		logger: log,
		prompt: fullPrompt{
			build: func(ec *models.ExecutionContext) []llm.Message {
				return []llm.Message{
					{Role: llm.RoleSystem, Content: "You measure the overall sentiment of social media discussion."},
					{Role: llm.RoleUser, Content: fmt.Sprintf(`Estimate the sentiment distribution of the following posts as fractions of positive, negative and neutral that sum to roughly 1.0, and summarize the overall mood in two sentences.

POSTS:
%s`, discourseDigest(ec))},
				}
			},
		},
		schema: &llm.ResponseSchema{
			Name: "social_sentiment",
			Schema: objectSchema(map[string]interface{}{
				"sentiment": objectSchema(map[string]interface{}{
					"positive": map[string]interface{}{"type": "number"},
					"negative": map[string]interface{}{"type": "number"},
					"neutral":  map[string]interface{}{"type": "number"},
				}, "positive", "negative", "neutral"),
				"summary": stringProp("two-sentence mood summary"),
			}, "sentiment", "summary"),
		},
		requiredKeys: []string{"sentiment", "summary"},
		temperature:  0.3,
		maxTokens:    1024,
	}
}

func extrasStrings(ec *models.ExecutionContext, key string) []string {
	raw, ok := ec.Extras[key]
	if !ok {
		return nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// discourseDigest renders the upstream discourse posts into prompt text.
func discourseDigest(ec *models.ExecutionContext) string {
	raw, ok := ec.Extras[extraSocialDiscourse]
	if !ok {
		return "(no posts collected)"
	}
	posts, ok := raw.([]interface{})
	if !ok || len(posts) == 0 {
		return "(no posts collected)"
	}

	var sb strings.Builder
	for i, p := range posts {
		post, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		paraphrase, _ := post["paraphrase"].(string)
		stance, _ := post["stance"].(string)
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, stance, paraphrase)
	}
	if sb.Len() == 0 {
		return "(no posts collected)"
	}
	return sb.String()
}

func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
