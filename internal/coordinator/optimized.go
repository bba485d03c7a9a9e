package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/plchld/news-copilot/internal/cache"
	"github.com/plchld/news-copilot/internal/config"
	"github.com/plchld/news-copilot/internal/models"
	"github.com/plchld/news-copilot/internal/pkg/logger"
)

// CoreTypes run up front for every article; everything else is produced on
// demand against the cached session.
var CoreTypes = []models.AnalysisType{
	models.AnalysisJargon,
	models.AnalysisViewpoints,
}

// OnDemandTypes are the analyses gated behind a completed core run.
var OnDemandTypes = []models.AnalysisType{
	models.AnalysisFactCheck,
	models.AnalysisBias,
	models.AnalysisTimeline,
	models.AnalysisExpert,
	models.AnalysisSocial,
}

// Optimized layers the core/on-demand split over the coordinator: core
// analyses run eagerly and seed the session cache; on-demand analyses only
// run against a cached session, so a cold session costs zero remote calls.
type Optimized struct {
	coordinator  *Coordinator
	store        cache.Store
	batchTimeout time.Duration
	logger       *logger.Logger
}

func NewOptimized(coordinator *Coordinator, store cache.Store, cfg config.CoordinatorConfig, log *logger.Logger) *Optimized {
	return &Optimized{
		coordinator:  coordinator,
		store:        store,
		batchTimeout: cfg.BatchTimeout,
		logger:       log,
	}
}

// AnalyzeCore runs the core analyses under the batch timeout and caches the
// session. Partial success is success: whatever completed is cached and
// returned, with the failures itemized alongside.
func (o *Optimized) AnalyzeCore(ctx context.Context, ec *models.ExecutionContext) *models.CoreResult {
	startTime := time.Now()

	if ec.SessionID == "" {
		ec.SessionID = models.GenerateSessionID()
	}

	batchCtx := ctx
	if o.batchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, o.batchTimeout)
		defer cancel()
	}

	results := o.coordinator.Analyze(batchCtx, ec, CoreTypes)

	core := &models.CoreResult{
		SessionID: ec.SessionID,
		Results:   results,
		Errors:    map[models.AnalysisType]string{},
	}

	succeeded := map[models.AnalysisType]*models.AgentResult{}
	for t, result := range results {
		if result.Success {
			succeeded[t] = result
			continue
		}
		core.Errors[t] = result.Error
		switch result.ErrorCode {
		case models.CodeAgentTimeout, models.CodeBatchTimeout:
			core.TimeoutOccurred = true
		default:
			core.ExceptionOccurred = true
		}
	}
	core.Success = len(succeeded) > 0

	// Cache whatever succeeded; a later on-demand call should not lose the
	// analyses that did complete.
	if core.Success {
		if err := o.store.Put(ctx, cache.NewEntry(ec, succeeded)); err != nil {
			o.logger.WithError(err).Error("failed to cache core session", "session_id", ec.SessionID)
		}
	}

	core.Metadata = map[string]interface{}{
		"duration_ms": time.Since(startTime).Milliseconds(),
		"core_types":  len(CoreTypes),
		"succeeded":   len(succeeded),
		"cached":      core.Success,
	}

	o.logger.LogAnalysis(ec.SessionID, "core_complete", time.Since(startTime), batchCtx.Err())
	return core
}

// AnalyzeOnDemand runs one on-demand analysis against a cached session.
// Validation precedes everything: an unknown or non-on-demand type, or a
// cache miss, returns without a single remote call. A non-nil userCtx is
// merged over the cached context before the agent runs, so the requesting
// caller's tier and hints win over whatever was captured at core time.
func (o *Optimized) AnalyzeOnDemand(ctx context.Context, sessionID string, rawType string, userCtx *models.ExecutionContext) *models.OnDemandResult {
	startTime := time.Now()

	analysisType, ok := models.ParseAnalysisType(rawType)
	if !ok || !isOnDemand(analysisType) {
		return &models.OnDemandResult{
			Type:      analysisType,
			Error:     fmt.Sprintf("%q is not an on-demand analysis type", rawType),
			ErrorCode: models.CodeInvalidAnalysisType,
		}
	}

	entry, err := o.store.Get(ctx, sessionID)
	if errors.Is(err, cache.ErrNotFound) {
		return &models.OnDemandResult{
			Type:                 analysisType,
			Error:                "session not found or expired, run core analysis first",
			ErrorCode:            models.CodeCacheMiss,
			RequiresCoreAnalysis: true,
		}
	}
	if err != nil {
		return &models.OnDemandResult{
			Type:      analysisType,
			Error:     err.Error(),
			ErrorCode: models.ErrorCode(err),
		}
	}

	agent, _ := o.coordinator.Agent(analysisType)
	ec := entry.Context()
	mergeCallerContext(ec, userCtx)

	result := o.coordinator.runOne(ctx, agent, ec)

	o.logger.LogAnalysis(sessionID, "on_demand_complete", time.Since(startTime), nil)

	return &models.OnDemandResult{
		Success:   result.Success,
		Type:      analysisType,
		Result:    result,
		Error:     result.Error,
		ErrorCode: result.ErrorCode,
		Metadata: map[string]interface{}{
			"duration_ms": time.Since(startTime).Milliseconds(),
			"cache_hit":   true,
			"model_used":  result.ModelUsed,
		},
	}
}

// mergeCallerContext layers the requesting caller's fields over the cached
// context. The cached article text and core results stay authoritative; the
// caller contributes identity and per-request hints.
func mergeCallerContext(ec, userCtx *models.ExecutionContext) {
	if userCtx == nil {
		return
	}
	if userCtx.UserTier != "" {
		ec.UserTier = userCtx.UserTier
	}
	if len(userCtx.Conversation) > 0 {
		ec.Conversation = append(ec.Conversation, userCtx.Conversation...)
	}
	if len(userCtx.Extras) > 0 && ec.Extras == nil {
		ec.Extras = make(map[string]interface{}, len(userCtx.Extras))
	}
	for k, v := range userCtx.Extras {
		ec.Extras[k] = v
	}
}

func isOnDemand(t models.AnalysisType) bool {
	for _, candidate := range OnDemandTypes {
		if t == candidate {
			return true
		}
	}
	return false
}
