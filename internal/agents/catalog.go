package agents

import (
	"fmt"
	"time"

	"github.com/plchld/news-copilot/internal/llm"
	"github.com/plchld/news-copilot/internal/models"
	"github.com/plchld/news-copilot/internal/pkg/logger"
)

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

func arrayOf(items map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": items}
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

// NewJargonAgent explains technical terms and jargon found in the article.
func NewJargonAgent(client llm.Client, log *logger.Logger) *BaseAgent {
	return &BaseAgent{
		cfg: models.AgentConfig{
			Name:              "jargon",
			Type:              models.AnalysisJargon,
			DefaultTier:       models.TierStandard,
			Complexity:        models.ComplexityLow,
			SupportsStreaming: true,
			MaxRetries:        3,
			Timeout:           45 * time.Second,
		},
		client: client,
		logger: log,
		prompt: standardPrompt{
			system: "You are an expert editor who explains specialized terminology for general readers.",
			task: func(ec *models.ExecutionContext) string {
				return `Identify technical terms, jargon, acronyms and named entities in the article that a general reader may not know.
For each, give a short plain-language explanation grounded in the article's context.
Skip everyday words. Aim for the 5-15 most important terms.`
			},
		},
		schema: &llm.ResponseSchema{
			Name: "jargon_analysis",
			Schema: objectSchema(map[string]interface{}{
				"terms": arrayOf(objectSchema(map[string]interface{}{
					"term":        stringProp("the term as it appears in the article"),
					"explanation": stringProp("plain-language explanation"),
					"category":    stringProp("e.g. technology, finance, politics, science"),
				}, "term", "explanation")),
			}, "terms"),
		},
		requiredKeys: []string{"terms"},
		temperature:  0.3,
		maxTokens:    4096,
	}
}

// NewViewpointsAgent surfaces alternative perspectives on the article's topic.
func NewViewpointsAgent(client llm.Client, log *logger.Logger) *BaseAgent {
	return &BaseAgent{
		cfg: models.AgentConfig{
			Name:              "viewpoints",
			Type:              models.AnalysisViewpoints,
			DefaultTier:       models.TierStandard,
			Complexity:        models.ComplexityMedium,
			SupportsStreaming: true,
			MaxRetries:        3,
			Timeout:           45 * time.Second,
		},
		client: client,
		logger: log,
		prompt: standardPrompt{
			system: "You are a balanced news analyst who presents perspectives the article itself does not.",
			task: func(ec *models.ExecutionContext) string {
				return `Present 3-5 substantive alternative viewpoints on the article's central claims.
For each viewpoint name who typically holds it, summarize the strongest version of the argument, and note what evidence would support or undercut it.
Do not strawman; represent each position as its proponents would.`
			},
		},
		schema: &llm.ResponseSchema{
			Name: "viewpoints_analysis",
			Schema: objectSchema(map[string]interface{}{
				"viewpoints": arrayOf(objectSchema(map[string]interface{}{
					"position": stringProp("one-line statement of the viewpoint"),
					"held_by":  stringProp("who typically holds this view"),
					"argument": stringProp("the strongest version of the argument"),
					"evidence": stringProp("what evidence bears on it"),
				}, "position", "argument")),
			}, "viewpoints"),
		},
		requiredKeys: []string{"viewpoints"},
		temperature:  0.5,
		maxTokens:    4096,
	}
}

// NewFactCheckAgent verifies the article's checkable claims with live search.
func NewFactCheckAgent(client llm.Client, log *logger.Logger) *BaseAgent {
	return &BaseAgent{
		cfg: models.AgentConfig{
			Name:              "fact_check",
			Type:              models.AnalysisFactCheck,
			DefaultTier:       models.TierStandard,
			Complexity:        models.ComplexityHigh,
			SupportsStreaming: false,
			MaxRetries:        3,
			Timeout:           90 * time.Second,
		},
		client: client,
		logger: log,
		prompt: standardPrompt{
			system: "You are a rigorous fact checker. Verify claims against current sources and cite them.",
			task: func(ec *models.ExecutionContext) string {
				return `Extract the article's most significant checkable factual claims (up to 8).
For each claim, verify it against current sources and assign a verdict: accurate, mostly_accurate, disputed, unverifiable, or false.
Cite the sources you used. Flag claims where the article omits important context.`
			},
		},
		schema: &llm.ResponseSchema{
			Name: "fact_check_analysis",
			Schema: objectSchema(map[string]interface{}{
				"claims": arrayOf(objectSchema(map[string]interface{}{
					"claim":       stringProp("the claim as stated in the article"),
					"verdict":     stringProp("accurate | mostly_accurate | disputed | unverifiable | false"),
					"explanation": stringProp("the reasoning behind the verdict"),
					"sources":     arrayOf(stringProp("supporting source URL or name")),
				}, "claim", "verdict", "explanation")),
				"overall_assessment": stringProp("one-paragraph assessment of the article's factual reliability"),
			}, "claims", "overall_assessment"),
		},
		search: func(ec *models.ExecutionContext) *llm.SearchParameters {
			return &llm.SearchParameters{
				Mode:        llm.SearchModeOn,
				SourceTypes: []string{"web", "news"},
				MaxResults:  10,
			}
		},
		requiredKeys: []string{"claims", "overall_assessment"},
		temperature:  0.2,
		maxTokens:    6144,
	}
}

// NewBiasAgent analyzes framing, loaded language and omission bias.
func NewBiasAgent(client llm.Client, log *logger.Logger) *BaseAgent {
	return &BaseAgent{
		cfg: models.AgentConfig{
			Name:              "bias",
			Type:              models.AnalysisBias,
			DefaultTier:       models.TierStandard,
			Complexity:        models.ComplexityMedium,
			SupportsStreaming: true,
			MaxRetries:        3,
			Timeout:           45 * time.Second,
		},
		client: client,
		logger: log,
		prompt: standardPrompt{
			system: "You are a media-literacy analyst who evaluates framing and language without taking sides.",
			task: func(ec *models.ExecutionContext) string {
				return `Analyze the article for bias: framing choices, loaded or emotive language, source selection, and notable omissions.
Rate the overall lean on a -1.0 (strongly one-sided left/critical) to 1.0 (strongly one-sided right/supportive) scale with 0 balanced.
Quote concrete phrases as evidence for each finding.`
			},
		},
		schema: &llm.ResponseSchema{
			Name: "bias_analysis",
			Schema: objectSchema(map[string]interface{}{
				"lean_score": map[string]interface{}{"type": "number", "description": "-1.0 to 1.0"},
				"findings": arrayOf(objectSchema(map[string]interface{}{
					"kind":     stringProp("framing | loaded_language | source_selection | omission"),
					"evidence": stringProp("quoted phrase or concrete observation"),
					"note":     stringProp("why this indicates bias"),
				}, "kind", "evidence")),
				"summary": stringProp("short overall assessment"),
			}, "lean_score", "findings", "summary"),
		},
		requiredKeys: []string{"findings", "summary"},
		temperature:  0.3,
		maxTokens:    4096,
	}
}

// NewTimelineAgent reconstructs the story's chronology with live search.
func NewTimelineAgent(client llm.Client, log *logger.Logger) *BaseAgent {
	return &BaseAgent{
		cfg: models.AgentConfig{
			Name:              "timeline",
			Type:              models.AnalysisTimeline,
			DefaultTier:       models.TierStandard,
			Complexity:        models.ComplexityHigh,
			SupportsStreaming: false,
			MaxRetries:        3,
			Timeout:           90 * time.Second,
		},
		client: client,
		logger: log,
		prompt: standardPrompt{
			system: "You are a news researcher who reconstructs how stories developed over time.",
			task: func(ec *models.ExecutionContext) string {
				return `Build a chronological timeline of the events behind this article, including relevant developments before and after the events it describes.
Use live search to fill gaps the article leaves out. Order entries oldest first with dates where known.`
			},
		},
		schema: &llm.ResponseSchema{
			Name: "timeline_analysis",
			Schema: objectSchema(map[string]interface{}{
				"events": arrayOf(objectSchema(map[string]interface{}{
					"date":        stringProp("date or approximate period"),
					"headline":    stringProp("what happened, one line"),
					"detail":      stringProp("short elaboration"),
					"from_search": map[string]interface{}{"type": "boolean", "description": "true when sourced from live search rather than the article"},
				}, "date", "headline")),
			}, "events"),
		},
		search: func(ec *models.ExecutionContext) *llm.SearchParameters {
			return &llm.SearchParameters{
				Mode:        llm.SearchModeOn,
				SourceTypes: []string{"news", "web"},
				MaxResults:  15,
			}
		},
		requiredKeys: []string{"events"},
		temperature:  0.2,
		maxTokens:    6144,
	}
}

// NewExpertAgent gathers published expert commentary on the article's topic.
func NewExpertAgent(client llm.Client, log *logger.Logger) *BaseAgent {
	return &BaseAgent{
		cfg: models.AgentConfig{
			Name:              "expert_opinion",
			Type:              models.AnalysisExpert,
			DefaultTier:       models.TierStandard,
			Complexity:        models.ComplexityHigh,
			SupportsStreaming: false,
			MaxRetries:        3,
			Timeout:           90 * time.Second,
		},
		client: client,
		logger: log,
		prompt: standardPrompt{
			system: "You are a research assistant who finds what credentialed experts have said on a topic.",
			task: func(ec *models.ExecutionContext) string {
				return fmt.Sprintf(`Find published commentary from credentialed experts on the topic of this article%s.
For each expert include their name, credentials, what they said, and where it was published. Prefer primary statements over second-hand summaries.`, urlHint(ec))
			},
		},
		schema: &llm.ResponseSchema{
			Name: "expert_opinion_analysis",
			Schema: objectSchema(map[string]interface{}{
				"experts": arrayOf(objectSchema(map[string]interface{}{
					"name":        stringProp("expert's name"),
					"credentials": stringProp("why they are credible on this topic"),
					"opinion":     stringProp("summary of their stated view"),
					"source":      stringProp("where it was published"),
				}, "name", "opinion")),
				"consensus": stringProp("where experts agree and disagree"),
			}, "experts", "consensus"),
		},
		search: func(ec *models.ExecutionContext) *llm.SearchParameters {
			return &llm.SearchParameters{
				Mode:        llm.SearchModeOn,
				SourceTypes: []string{"web", "news", "x"},
				MaxResults:  12,
			}
		},
		requiredKeys: []string{"experts", "consensus"},
		temperature:  0.3,
		maxTokens:    6144,
	}
}

func urlHint(ec *models.ExecutionContext) string {
	if ec.ArticleURL == "" {
		return ""
	}
	return fmt.Sprintf(" (published at %s)", ec.ArticleURL)
}
