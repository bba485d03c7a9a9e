package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/plchld/news-copilot/internal/agents"
	"github.com/plchld/news-copilot/internal/models"
	"github.com/plchld/news-copilot/internal/pkg/logger"
)

// validator inspects a successful payload and reports whether it meets the
// bar for its analysis type, with a concrete refinement instruction when it
// does not.
type validator func(payload map[string]interface{}) models.QualityCheckResult

// QualityController runs the bounded refinement loop: a successful result
// that fails its type's validator is sent back to the agent with the
// previous answer and a refinement instruction in the conversation. The
// loop never trades an answer for no answer; exhaustion keeps the best
// payload seen.
type QualityController struct {
	maxAttempts int
	validators  map[models.AnalysisType]validator
	logger      *logger.Logger
}

func NewQualityController(maxAttempts int, log *logger.Logger) *QualityController {
	if maxAttempts < 1 {
		maxAttempts = 2
	}
	return &QualityController{
		maxAttempts: maxAttempts,
		validators:  defaultValidators(),
		logger:      log,
	}
}

// Refine validates the result and, when it falls short, drives up to
// maxAttempts refinement calls. The returned result is always at least as
// good as the input: a failed refinement call never replaces a payload that
// exists.
func (q *QualityController) Refine(ctx context.Context, agent agents.Agent, ec *models.ExecutionContext, result *models.AgentResult) *models.AgentResult {
	if !result.Success {
		return result
	}

	validate, ok := q.validators[result.Type]
	if !ok {
		return result
	}

	best := result
	refinements := 0
	refEC := refinementContext(ec)

	for refinements < q.maxAttempts {
		check := validate(best.Payload)
		if check.Passed {
			best.RefinementCalls = refinements
			return best
		}

		refinements++
		q.logger.Info("quality check failed, refining",
			"session_id", ec.SessionID,
			"type", string(best.Type),
			"attempt", refinements,
			"issues", strings.Join(check.Issues, "; "),
		)

		// The rejected answer joins the conversation, so later attempts see
		// the full chain of prior answers and objections.
		appendRefinementTurns(refEC, best, check)
		refined := agent.Execute(ctx, refEC)
		if refined.Success && len(refined.Payload) > 0 {
			best = refined
		}
	}

	best.RefinementCalls = refinements
	if check := validate(best.Payload); !check.Passed {
		// Keep the answer; flag that refinement ran out.
		best.ErrorCode = models.CodeRefinementExhausted
		q.logger.Warn("refinement exhausted",
			"session_id", ec.SessionID,
			"type", string(best.Type),
			"attempts", refinements,
			"issues", strings.Join(check.Issues, "; "),
		)
	}
	return best
}

// refinementContext clones the caller's context for the whole refinement
// loop; the turns accumulate on it across attempts.
func refinementContext(ec *models.ExecutionContext) *models.ExecutionContext {
	refEC := ec.Clone()

	// Refinement runs on the advanced model tier.
	if refEC.RetryCount < 2 {
		refEC.RetryCount = 2
	}
	return refEC
}

// appendRefinementTurns adds the rejected answer and the refinement
// instruction as conversation turns.
func appendRefinementTurns(refEC *models.ExecutionContext, previous *models.AgentResult, check models.QualityCheckResult) {
	previousJSON, err := json.Marshal(previous.Payload)
	if err != nil {
		previousJSON = []byte("{}")
	}

	refEC.AppendTurn(models.RoleAssistant, string(previousJSON))
	refEC.AppendTurn(models.RoleUser, fmt.Sprintf(
		"Your previous answer fell short: %s. %s Return the complete corrected answer in the same format, not a diff.",
		strings.Join(check.Issues, "; "),
		check.RefinementInstruction,
	))
}

func defaultValidators() map[models.AnalysisType]validator {
	return map[models.AnalysisType]validator{
		models.AnalysisJargon: listValidator("terms", 3,
			"explain more of the article's specialized terms"),
		models.AnalysisViewpoints: listValidator("viewpoints", 2,
			"add substantive alternative viewpoints with their strongest arguments"),
		models.AnalysisFactCheck: claimsValidator(),
		models.AnalysisBias: listValidator("findings", 1,
			"cite concrete phrases from the article as evidence"),
		models.AnalysisTimeline: listValidator("events", 3,
			"add the developments before and after the article's events"),
		models.AnalysisExpert: listValidator("experts", 2,
			"find more credentialed experts with published statements"),
	}
}

// listValidator passes when the payload carries at least min items under key.
func listValidator(key string, min int, instruction string) validator {
	return func(payload map[string]interface{}) models.QualityCheckResult {
		items, ok := payload[key].([]interface{})
		if !ok {
			return models.QualityCheckResult{
				Issues:                []string{fmt.Sprintf("missing %q list", key)},
				RefinementInstruction: instruction,
				Severity:              "high",
			}
		}
		if len(items) < min {
			return models.QualityCheckResult{
				Issues:                []string{fmt.Sprintf("only %d %s, expected at least %d", len(items), key, min)},
				RefinementInstruction: instruction,
				Severity:              "medium",
			}
		}
		return models.QualityCheckResult{Passed: true}
	}
}

// claimsValidator additionally requires verdicts on fact-check claims.
func claimsValidator() validator {
	base := listValidator("claims", 2, "verify more of the article's significant claims against current sources")
	return func(payload map[string]interface{}) models.QualityCheckResult {
		if result := base(payload); !result.Passed {
			return result
		}

		claims := payload["claims"].([]interface{})
		missing := 0
		for _, c := range claims {
			claim, ok := c.(map[string]interface{})
			if !ok {
				missing++
				continue
			}
			if verdict, _ := claim["verdict"].(string); strings.TrimSpace(verdict) == "" {
				missing++
			}
		}
		if missing > 0 {
			return models.QualityCheckResult{
				Issues:                []string{fmt.Sprintf("%d claims lack a verdict", missing)},
				RefinementInstruction: "assign every claim a verdict with cited sources",
				Severity:              "high",
			}
		}
		return models.QualityCheckResult{Passed: true}
	}
}
