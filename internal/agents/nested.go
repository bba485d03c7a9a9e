package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/plchld/news-copilot/internal/models"
	"github.com/plchld/news-copilot/internal/pkg/logger"
)

// NestedAgent composes child agents into one analysis. From the outside it
// is an ordinary Agent: one Execute, one result, failures contained. Inside
// it fans the execution context out to its children and aggregates their
// payloads keyed by child name.
//
// A custom orchestrate func replaces the default concurrent fan-out when the
// children form a dependency graph rather than an independent set.
type NestedAgent struct {
	cfg         models.AgentConfig
	logger      *logger.Logger
	children    []Agent
	orchestrate func(ctx context.Context, ec *models.ExecutionContext, children []Agent) map[string]*models.AgentResult
	postProcess func(ec *models.ExecutionContext, childResults map[string]*models.AgentResult) (map[string]interface{}, error)
}

func (a *NestedAgent) Type() models.AnalysisType {
	return a.cfg.Type
}

func (a *NestedAgent) Config() models.AgentConfig {
	return a.cfg
}

func (a *NestedAgent) Execute(ctx context.Context, ec *models.ExecutionContext) (result *models.AgentResult) {
	startTime := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = models.NewFailedResult(a.cfg.Type, models.CodeAgentException, fmt.Sprintf("nested agent panic: %v", r))
			result.Duration = time.Since(startTime)
			a.logger.LogAgent(ec.SessionID, a.cfg.Name, "execute", result.Duration, map[string]interface{}{"panic": r}, fmt.Errorf("%v", r))
		}
	}()

	runCtx := ctx
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	var childResults map[string]*models.AgentResult
	if a.orchestrate != nil {
		childResults = a.orchestrate(runCtx, ec, a.children)
	} else {
		childResults = fanOut(runCtx, ec, a.children)
	}

	succeeded := 0
	totalTokens := 0
	totalCalls := 0
	for _, cr := range childResults {
		totalTokens += cr.TokensUsed
		totalCalls += cr.APICalls
		if cr.Success {
			succeeded++
		}
	}

	if succeeded == 0 {
		result = models.NewFailedResult(a.cfg.Type, models.CodeAgentException, "all sub-agents failed")
		result.APICalls = totalCalls
		result.TokensUsed = totalTokens
		result.Duration = time.Since(startTime)
		a.logger.LogAgent(ec.SessionID, a.cfg.Name, "execute", result.Duration, map[string]interface{}{
			"children": len(a.children),
		}, fmt.Errorf("all sub-agents failed"))
		return result
	}

	payload := aggregate(childResults)
	if a.postProcess != nil {
		processed, err := a.postProcess(ec, childResults)
		if err != nil {
			// Keep the raw aggregate rather than discarding sub-agent work.
			a.logger.Warn("nested post-process failed, keeping raw aggregate",
				"agent", a.cfg.Name,
				"session_id", ec.SessionID,
				"error", err.Error(),
			)
		} else {
			payload = processed
		}
	}

	result = &models.AgentResult{
		Type:       a.cfg.Type,
		Success:    true,
		Payload:    payload,
		TokensUsed: totalTokens,
		APICalls:   totalCalls,
		Duration:   time.Since(startTime),
		Validation: models.ValidationValid,
	}

	a.logger.LogAgent(ec.SessionID, a.cfg.Name, "execute", result.Duration, map[string]interface{}{
		"children":  len(a.children),
		"succeeded": succeeded,
		"api_calls": totalCalls,
	}, nil)

	return result
}

// fanOut runs every child concurrently against the same context. A child
// failure never cancels its siblings; each child's result is recorded under
// its configured name.
func fanOut(ctx context.Context, ec *models.ExecutionContext, children []Agent) map[string]*models.AgentResult {
	results := make(map[string]*models.AgentResult, len(children))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, child := range children {
		child := child
		g.Go(func() error {
			cr := child.Execute(gctx, ec)
			mu.Lock()
			results[child.Config().Name] = cr
			mu.Unlock()
			return nil
		})
	}
	// Goroutines never return errors; failures live in the results map.
	_ = g.Wait()

	return results
}

// aggregate merges child payloads under their child names, alongside a
// per-child success map.
func aggregate(childResults map[string]*models.AgentResult) map[string]interface{} {
	payload := make(map[string]interface{}, len(childResults)+1)
	status := make(map[string]interface{}, len(childResults))

	for name, cr := range childResults {
		if cr.Success {
			payload[name] = cr.Payload
			status[name] = "ok"
		} else {
			status[name] = cr.Error
		}
	}
	payload["sub_agents"] = status

	return payload
}
