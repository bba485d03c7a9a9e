// Package coordinator schedules analysis agents over an article: priority
// grouping, retry with exponential backoff, optional quality-controlled
// refinement, and the core/on-demand split backed by the session cache.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/plchld/news-copilot/internal/agents"
	"github.com/plchld/news-copilot/internal/config"
	"github.com/plchld/news-copilot/internal/llm"
	"github.com/plchld/news-copilot/internal/models"
	"github.com/plchld/news-copilot/internal/pkg/logger"
)

// priorityGroups orders analyses by how soon readers want them. Groups run
// sequentially; agents inside a group run concurrently.
var priorityGroups = [][]models.AnalysisType{
	{models.AnalysisJargon, models.AnalysisViewpoints, models.AnalysisBias},
	{models.AnalysisFactCheck, models.AnalysisTimeline, models.AnalysisExpert},
	{models.AnalysisSocial},
}

// Coordinator owns the agent registry and all scheduling policy. Agents
// stay policy-free: one Execute, one result.
type Coordinator struct {
	agents  map[models.AnalysisType]agents.Agent
	retry   retryPolicy
	quality *QualityController
	logger  *logger.Logger

	statsMu sync.Mutex
	stats   map[models.AnalysisType]*AgentStats
}

// AgentStats accumulates per-type counters since process start.
type AgentStats struct {
	Executions  int64         `json:"executions"`
	Failures    int64         `json:"failures"`
	Retries     int64         `json:"retries"`
	Refinements int64         `json:"refinements"`
	TotalTime   time.Duration `json:"total_time_ns"`
}

func New(client llm.Client, cfg config.CoordinatorConfig, log *logger.Logger) *Coordinator {
	registry := map[models.AnalysisType]agents.Agent{
		models.AnalysisJargon:     agents.NewJargonAgent(client, log),
		models.AnalysisViewpoints: agents.NewViewpointsAgent(client, log),
		models.AnalysisFactCheck:  agents.NewFactCheckAgent(client, log),
		models.AnalysisBias:       agents.NewBiasAgent(client, log),
		models.AnalysisTimeline:   agents.NewTimelineAgent(client, log),
		models.AnalysisExpert:     agents.NewExpertAgent(client, log),
		models.AnalysisSocial:     agents.NewSocialPulseAgent(client, log),
	}

	c := &Coordinator{
		agents: registry,
		retry:  newRetryPolicy(cfg.RetryFailedAgents, cfg.MaxRetries, cfg.RetryBackoffBase),
		logger: log,
		stats:  make(map[models.AnalysisType]*AgentStats, len(registry)),
	}

	if cfg.QualityControl {
		c.quality = NewQualityController(cfg.MaxRefinementAttempts, log)
	}

	for t := range registry {
		c.stats[t] = &AgentStats{}
	}

	return c
}

// Agent returns the registered agent for a type.
func (c *Coordinator) Agent(t models.AnalysisType) (agents.Agent, bool) {
	agent, ok := c.agents[t]
	return agent, ok
}

// Analyze runs the requested analyses grouped by priority: each group
// completes before the next starts, and every requested type gets a result
// entry, failed or not. Unknown types are dropped with a warning rather
// than failing the batch.
func (c *Coordinator) Analyze(ctx context.Context, ec *models.ExecutionContext, types []models.AnalysisType) map[models.AnalysisType]*models.AgentResult {
	startTime := time.Now()
	requested := c.filterKnown(ec.SessionID, types)

	results := make(map[models.AnalysisType]*models.AgentResult, len(requested))
	var mu sync.Mutex

	for _, group := range priorityGroups {
		var wg sync.WaitGroup
		for _, t := range group {
			if !requested[t] {
				continue
			}
			wg.Add(1)
			go func(t models.AnalysisType) {
				defer wg.Done()
				result := c.runOne(ctx, c.agents[t], ec)
				mu.Lock()
				results[t] = result
				mu.Unlock()
			}(t)
		}
		wg.Wait()

		if ctx.Err() != nil {
			break
		}
	}

	// Types the batch never reached (context expired mid-groups) still get
	// a result entry.
	for t := range requested {
		if _, ok := results[t]; !ok {
			results[t] = models.NewFailedResult(t, models.CodeBatchTimeout, "batch deadline exceeded before this analysis started")
		}
	}

	c.logger.LogAnalysis(ec.SessionID, "batch_complete", time.Since(startTime), ctx.Err())
	return results
}

// Stream runs the requested analyses without priority grouping and invokes
// onResult as each analysis finishes. Callback invocations are serialized,
// and the full result set comes back in the same shape Analyze returns.
func (c *Coordinator) Stream(ctx context.Context, ec *models.ExecutionContext, types []models.AnalysisType, onResult func(*models.AgentResult)) map[models.AnalysisType]*models.AgentResult {
	startTime := time.Now()
	requested := c.filterKnown(ec.SessionID, types)

	results := make(map[models.AnalysisType]*models.AgentResult, len(requested))
	var wg sync.WaitGroup
	var mu sync.Mutex
	for t := range requested {
		wg.Add(1)
		go func(t models.AnalysisType) {
			defer wg.Done()
			result := c.runOne(ctx, c.agents[t], ec)
			mu.Lock()
			results[t] = result
			onResult(result)
			mu.Unlock()
		}(t)
	}
	wg.Wait()

	c.logger.LogAnalysis(ec.SessionID, "stream_complete", time.Since(startTime), ctx.Err())
	return results
}

// runOne applies the full per-agent policy stack: retry, then optional
// quality-controlled refinement, then stats accounting.
func (c *Coordinator) runOne(ctx context.Context, agent agents.Agent, ec *models.ExecutionContext) *models.AgentResult {
	result := c.retry.run(ctx, agent, ec)

	if c.quality != nil {
		result = c.quality.Refine(ctx, agent, ec, result)
	}

	c.record(agent.Type(), result)
	return result
}

func (c *Coordinator) record(t models.AnalysisType, result *models.AgentResult) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	stats, ok := c.stats[t]
	if !ok {
		return
	}
	stats.Executions++
	stats.TotalTime += result.Duration
	if !result.Success {
		stats.Failures++
	}
	if result.Attempts > 1 {
		stats.Retries += int64(result.Attempts - 1)
	}
	stats.Refinements += int64(result.RefinementCalls)
}

// AgentCapability is the externally visible slice of an agent's static
// configuration, so clients can tell which analyses support incremental
// delivery before picking Stream over a grouped batch.
type AgentCapability struct {
	Name              string           `json:"name"`
	DefaultTier       models.ModelTier `json:"default_tier"`
	Complexity        string           `json:"complexity"`
	SupportsStreaming bool             `json:"supports_streaming"`
	MaxRetries        int              `json:"max_retries"`
	TimeoutSeconds    float64          `json:"timeout_seconds"`
}

// Capabilities reports the static configuration of every registered agent.
func (c *Coordinator) Capabilities() map[models.AnalysisType]AgentCapability {
	capabilities := make(map[models.AnalysisType]AgentCapability, len(c.agents))
	for t, agent := range c.agents {
		cfg := agent.Config()
		capabilities[t] = AgentCapability{
			Name:              cfg.Name,
			DefaultTier:       cfg.DefaultTier,
			Complexity:        cfg.Complexity.String(),
			SupportsStreaming: cfg.SupportsStreaming,
			MaxRetries:        cfg.MaxRetries,
			TimeoutSeconds:    cfg.Timeout.Seconds(),
		}
	}
	return capabilities
}

// Stats returns a snapshot of the per-type counters.
func (c *Coordinator) Stats() map[models.AnalysisType]AgentStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	snapshot := make(map[models.AnalysisType]AgentStats, len(c.stats))
	for t, s := range c.stats {
		snapshot[t] = *s
	}
	return snapshot
}

func (c *Coordinator) filterKnown(sessionID string, types []models.AnalysisType) map[models.AnalysisType]bool {
	known := make(map[models.AnalysisType]bool, len(types))
	for _, t := range types {
		if _, ok := c.agents[t]; !ok {
			c.logger.Warn("unknown analysis type requested",
				"session_id", sessionID,
				"type", string(t),
			)
			continue
		}
		known[t] = true
	}
	return known
}
