package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/plchld/news-copilot/internal/agents"
	"github.com/plchld/news-copilot/internal/models"
)

// orderRecorder timestamps agent starts so tests can assert group ordering.
type orderRecorder struct {
	mu     sync.Mutex
	starts map[models.AnalysisType]time.Time
}

func newOrderRecorder() *orderRecorder {
	return &orderRecorder{starts: make(map[models.AnalysisType]time.Time)}
}

func (r *orderRecorder) record(t models.AnalysisType) {
	r.mu.Lock()
	r.starts[t] = time.Now()
	r.mu.Unlock()
}

func newTestCoordinator(agentList ...agents.Agent) *Coordinator {
	registry := make(map[models.AnalysisType]agents.Agent, len(agentList))
	stats := make(map[models.AnalysisType]*AgentStats, len(agentList))
	for _, a := range agentList {
		registry[a.Type()] = a
		stats[a.Type()] = &AgentStats{}
	}
	return &Coordinator{
		agents: registry,
		retry:  fastRetry(false, 1),
		logger: testLog(),
		stats:  stats,
	}
}

func recordingAgent(t models.AnalysisType, rec *orderRecorder, delay time.Duration) *scriptedAgent {
	return &scriptedAgent{
		name: string(t),
		t:    t,
		execute: func(call int, ec *models.ExecutionContext) *models.AgentResult {
			rec.record(t)
			time.Sleep(delay)
			return &models.AgentResult{Type: t, Success: true, Payload: map[string]interface{}{"ok": true}, APICalls: 1}
		},
	}
}

func TestAnalyzeReturnsEveryRequestedType(t *testing.T) {
	rec := newOrderRecorder()
	c := newTestCoordinator(
		recordingAgent(models.AnalysisJargon, rec, 0),
		recordingAgent(models.AnalysisViewpoints, rec, 0),
		recordingAgent(models.AnalysisBias, rec, 0),
		recordingAgent(models.AnalysisFactCheck, rec, 0),
		recordingAgent(models.AnalysisTimeline, rec, 0),
		recordingAgent(models.AnalysisExpert, rec, 0),
		recordingAgent(models.AnalysisSocial, rec, 0),
	)

	results := c.Analyze(context.Background(), &models.ExecutionContext{SessionID: "s"}, models.AllAnalysisTypes)

	if len(results) != len(models.AllAnalysisTypes) {
		t.Fatalf("expected %d results, got %d", len(models.AllAnalysisTypes), len(results))
	}
	for _, at := range models.AllAnalysisTypes {
		result, ok := results[at]
		if !ok {
			t.Errorf("missing result for %q", at)
			continue
		}
		if !result.Success {
			t.Errorf("%q unexpectedly failed: %s", at, result.Error)
		}
	}
}

func TestAnalyzePriorityGroupsRunInOrder(t *testing.T) {
	rec := newOrderRecorder()
	c := newTestCoordinator(
		recordingAgent(models.AnalysisJargon, rec, 30*time.Millisecond),
		recordingAgent(models.AnalysisFactCheck, rec, 30*time.Millisecond),
		recordingAgent(models.AnalysisSocial, rec, 0),
	)

	c.Analyze(context.Background(), &models.ExecutionContext{SessionID: "s"}, []models.AnalysisType{
		models.AnalysisSocial, models.AnalysisFactCheck, models.AnalysisJargon,
	})

	jargonStart := rec.starts[models.AnalysisJargon]
	factCheckStart := rec.starts[models.AnalysisFactCheck]
	socialStart := rec.starts[models.AnalysisSocial]

	if !factCheckStart.After(jargonStart) {
		t.Error("group 2 started before group 1 finished")
	}
	if !socialStart.After(factCheckStart) {
		t.Error("group 3 started before group 2 finished")
	}
}

func TestAnalyzeDropsUnknownTypes(t *testing.T) {
	c := newTestCoordinator(recordingAgent(models.AnalysisJargon, newOrderRecorder(), 0))

	results := c.Analyze(context.Background(), &models.ExecutionContext{SessionID: "s"}, []models.AnalysisType{
		models.AnalysisJargon, models.AnalysisType("palm_reading"),
	})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if _, ok := results[models.AnalysisJargon]; !ok {
		t.Error("known type missing from results")
	}
}

func TestAnalyzeFailureDoesNotBlockSiblings(t *testing.T) {
	rec := newOrderRecorder()
	failing := &scriptedAgent{
		name: "viewpoints",
		t:    models.AnalysisViewpoints,
		execute: func(int, *models.ExecutionContext) *models.AgentResult {
			return models.NewFailedResult(models.AnalysisViewpoints, models.CodeAgentException, "boom")
		},
	}
	c := newTestCoordinator(recordingAgent(models.AnalysisJargon, rec, 0), failing)

	results := c.Analyze(context.Background(), &models.ExecutionContext{SessionID: "s"}, []models.AnalysisType{
		models.AnalysisJargon, models.AnalysisViewpoints,
	})

	if !results[models.AnalysisJargon].Success {
		t.Error("sibling failure leaked into a healthy agent")
	}
	if results[models.AnalysisViewpoints].Success {
		t.Error("expected the failing agent to report failure")
	}
}

func TestAnalyzeExpiredContextStillYieldsEntries(t *testing.T) {
	rec := newOrderRecorder()
	c := newTestCoordinator(
		recordingAgent(models.AnalysisJargon, rec, 50*time.Millisecond),
		recordingAgent(models.AnalysisFactCheck, rec, 0),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	results := c.Analyze(ctx, &models.ExecutionContext{SessionID: "s"}, []models.AnalysisType{
		models.AnalysisJargon, models.AnalysisFactCheck,
	})

	if len(results) != 2 {
		t.Fatalf("every requested type needs a result entry, got %d", len(results))
	}
	fc := results[models.AnalysisFactCheck]
	if fc.Success {
		t.Error("expected the unreached group to fail")
	}
	if fc.ErrorCode != models.CodeBatchTimeout {
		t.Errorf("expected %q, got %q", models.CodeBatchTimeout, fc.ErrorCode)
	}
}

func TestStreamInvokesCallbackPerResult(t *testing.T) {
	rec := newOrderRecorder()
	c := newTestCoordinator(
		recordingAgent(models.AnalysisJargon, rec, 0),
		recordingAgent(models.AnalysisSocial, rec, 0),
	)

	var mu sync.Mutex
	var seen []models.AnalysisType
	results := c.Stream(context.Background(), &models.ExecutionContext{SessionID: "s"}, []models.AnalysisType{
		models.AnalysisJargon, models.AnalysisSocial,
	}, func(result *models.AgentResult) {
		mu.Lock()
		seen = append(seen, result.Type)
		mu.Unlock()
	})

	if len(seen) != 2 {
		t.Fatalf("expected 2 callback invocations, got %d", len(seen))
	}

	// The return value matches the grouped mode's shape.
	if len(results) != 2 {
		t.Fatalf("expected 2 results returned, got %d", len(results))
	}
	for _, at := range []models.AnalysisType{models.AnalysisJargon, models.AnalysisSocial} {
		result, ok := results[at]
		if !ok {
			t.Errorf("missing returned result for %q", at)
			continue
		}
		if !result.Success {
			t.Errorf("%q unexpectedly failed: %s", at, result.Error)
		}
	}
}

func TestCapabilitiesReflectAgentConfig(t *testing.T) {
	jargon := recordingAgent(models.AnalysisJargon, newOrderRecorder(), 0)
	jargon.streaming = true
	jargon.maxRetries = 3
	social := recordingAgent(models.AnalysisSocial, newOrderRecorder(), 0)
	c := newTestCoordinator(jargon, social)

	capabilities := c.Capabilities()

	if len(capabilities) != 2 {
		t.Fatalf("expected 2 capability entries, got %d", len(capabilities))
	}
	if !capabilities[models.AnalysisJargon].SupportsStreaming {
		t.Error("jargon agent should report streaming support")
	}
	if capabilities[models.AnalysisJargon].MaxRetries != 3 {
		t.Errorf("expected max retries 3, got %d", capabilities[models.AnalysisJargon].MaxRetries)
	}
	if capabilities[models.AnalysisSocial].SupportsStreaming {
		t.Error("social agent should not report streaming support")
	}
}

func TestStatsAccumulate(t *testing.T) {
	agent := &scriptedAgent{name: "jargon", t: models.AnalysisJargon}
	agent.execute = failUntil(2, models.AnalysisJargon)

	c := newTestCoordinator(agent)
	c.retry = fastRetry(true, 3)

	c.Analyze(context.Background(), &models.ExecutionContext{SessionID: "s"}, []models.AnalysisType{models.AnalysisJargon})

	stats := c.Stats()[models.AnalysisJargon]
	if stats.Executions != 1 {
		t.Errorf("expected 1 execution, got %d", stats.Executions)
	}
	if stats.Retries != 1 {
		t.Errorf("expected 1 retry recorded, got %d", stats.Retries)
	}
	if stats.Failures != 0 {
		t.Errorf("recovered run should not count as failure, got %d", stats.Failures)
	}
}
