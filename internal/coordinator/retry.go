package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/plchld/news-copilot/internal/agents"
	"github.com/plchld/news-copilot/internal/models"
)

// retryPolicy is the coordinator-owned retry envelope around a single
// agent. Agents never retry themselves.
type retryPolicy struct {
	enabled     bool
	maxAttempts int
	base        time.Duration
	multiplier  float64
}

func newRetryPolicy(enabled bool, maxRetries int, base time.Duration) retryPolicy {
	if base <= 0 {
		base = 2 * time.Second
	}
	return retryPolicy{
		enabled:     enabled,
		maxAttempts: maxRetries,
		base:        base,
		multiplier:  2,
	}
}

// attempts resolves the budget for one agent: the coordinator maximum,
// tightened by the agent's own MaxRetries when that is stricter.
func (p retryPolicy) attempts(agent agents.Agent) int {
	if !p.enabled || p.maxAttempts < 1 {
		return 1
	}
	max := p.maxAttempts
	if agentMax := agent.Config().MaxRetries; agentMax > 0 && agentMax < max {
		max = agentMax
	}
	return max
}

// run executes the agent under the retry policy. Each attempt sees a fresh
// context clone with its attempt number in RetryCount, so late attempts can
// upgrade the model tier. The returned result always records how many
// attempts were spent.
func (p retryPolicy) run(ctx context.Context, agent agents.Agent, ec *models.ExecutionContext) *models.AgentResult {
	maxTries := p.attempts(agent)
	attempt := 0
	totalCalls := 0
	var lastFailure *models.AgentResult

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.base
	bo.Multiplier = p.multiplier
	bo.RandomizationFactor = 0

	operation := func() (*models.AgentResult, error) {
		attempt++

		attemptEC := ec.Clone()
		attemptEC.RetryCount = attempt - 1

		result := agent.Execute(ctx, attemptEC)
		totalCalls += result.APICalls
		if result.Success {
			return result, nil
		}

		lastFailure = result

		// Validation failures are terminal; retrying a malformed request
		// burns attempts for the same answer.
		if result.ErrorCode == models.CodeBadRequest || result.ErrorCode == models.CodeInvalidAnalysisType {
			return nil, backoff.Permanent(fmt.Errorf("%s: %s", result.ErrorCode, result.Error))
		}

		return nil, fmt.Errorf("%s: %s", result.ErrorCode, result.Error)
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(maxTries)),
	)
	if err == nil {
		result.Attempts = attempt
		result.APICalls = totalCalls
		return result
	}

	if lastFailure == nil {
		lastFailure = models.NewFailedResult(agent.Type(), models.CodeAgentException, err.Error())
	}

	if attempt >= maxTries && maxTries > 1 {
		exhausted := models.NewFailedResult(agent.Type(), models.CodeExhaustedRetries,
			fmt.Sprintf("failed after %d attempts: %s", attempt, lastFailure.Error))
		exhausted.Attempts = attempt
		exhausted.ModelUsed = lastFailure.ModelUsed
		exhausted.APICalls = totalCalls
		exhausted.Duration = lastFailure.Duration
		return exhausted
	}

	lastFailure.Attempts = attempt
	lastFailure.APICalls = totalCalls
	return lastFailure
}
