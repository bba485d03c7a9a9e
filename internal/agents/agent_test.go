package agents

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/plchld/news-copilot/internal/llm"
	"github.com/plchld/news-copilot/internal/models"
	"github.com/plchld/news-copilot/internal/pkg/logger"
)

type mockClient struct {
	mu      sync.Mutex
	calls   int
	lastReq *llm.CompletionRequest
	respond func(req *llm.CompletionRequest) (*llm.CompletionResponse, error)
}

func (m *mockClient) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	m.calls++
	m.lastReq = req
	m.mu.Unlock()

	if m.respond != nil {
		return m.respond(req)
	}
	return &llm.CompletionResponse{
		Content:    `{"terms": [{"term": "inflation", "explanation": "rising prices"}]}`,
		Structured: map[string]interface{}{"terms": []interface{}{map[string]interface{}{"term": "inflation"}}},
		TokensUsed: 100,
	}, nil
}

func (m *mockClient) ModelFor(tier models.ModelTier) string {
	if tier == models.TierAdvanced {
		return "advanced-model"
	}
	return "standard-model"
}

func (m *mockClient) Name() string { return "mock" }

func (m *mockClient) HealthCheck(ctx context.Context) error { return nil }

func (m *mockClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testLogger() *logger.Logger {
	log, _ := logger.New(logger.Config{Level: "error", Format: "json", Output: "stdout"})
	return log
}

func testContext() *models.ExecutionContext {
	return &models.ExecutionContext{
		ArticleText: "The central bank raised interest rates to combat inflation.",
		SessionID:   "test-session",
		UserTier:    models.UserTierFree,
	}
}

func TestExecuteSuccess(t *testing.T) {
	client := &mockClient{}
	agent := NewJargonAgent(client, testLogger())

	result := agent.Execute(context.Background(), testContext())

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Type != models.AnalysisJargon {
		t.Errorf("expected type %q, got %q", models.AnalysisJargon, result.Type)
	}
	if result.APICalls != 1 {
		t.Errorf("expected 1 API call, got %d", result.APICalls)
	}
	if result.TokensUsed != 100 {
		t.Errorf("expected 100 tokens, got %d", result.TokensUsed)
	}
	if result.ModelUsed != "standard-model" {
		t.Errorf("expected standard model, got %q", result.ModelUsed)
	}
	if result.Validation != models.ValidationValid {
		t.Errorf("expected valid payload, got %q", result.Validation)
	}
}

func TestExecuteContainsFailure(t *testing.T) {
	client := &mockClient{
		respond: func(req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, models.NewExternalError(models.CodeRateLimited, "too many requests")
		},
	}
	agent := NewViewpointsAgent(client, testLogger())

	result := agent.Execute(context.Background(), testContext())

	if result.Success {
		t.Fatal("expected failure result")
	}
	if result.ErrorCode != models.CodeRateLimited {
		t.Errorf("expected error code %q, got %q", models.CodeRateLimited, result.ErrorCode)
	}
	if result.Payload != nil {
		t.Error("failed result should not carry a payload")
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	client := &mockClient{
		respond: func(req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
			panic("remote client blew up")
		},
	}
	agent := NewBiasAgent(client, testLogger())

	result := agent.Execute(context.Background(), testContext())

	if result.Success {
		t.Fatal("expected failure result after panic")
	}
	if result.ErrorCode != models.CodeAgentException {
		t.Errorf("expected error code %q, got %q", models.CodeAgentException, result.ErrorCode)
	}
	if !strings.Contains(result.Error, "panic") {
		t.Errorf("expected panic message in error, got %q", result.Error)
	}
}

func TestExecuteTimeoutCode(t *testing.T) {
	client := &mockClient{
		respond: func(req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, context.DeadlineExceeded
		},
	}
	agent := &BaseAgent{
		cfg: models.AgentConfig{
			Name:    "timeout-test",
			Type:    models.AnalysisJargon,
			Timeout: time.Nanosecond,
		},
		client: client,
		logger: testLogger(),
		prompt: standardPrompt{system: "s", task: func(*models.ExecutionContext) string { return "t" }},
	}

	result := agent.Execute(context.Background(), testContext())

	if result.Success {
		t.Fatal("expected timeout failure")
	}
	if result.ErrorCode != models.CodeAgentTimeout {
		t.Errorf("expected %q, got %q", models.CodeAgentTimeout, result.ErrorCode)
	}
}

func TestSelectTier(t *testing.T) {
	longArticle := strings.Repeat("a", longArticleRunes+1)

	cases := []struct {
		name string
		cfg  models.AgentConfig
		ec   models.ExecutionContext
		want models.ModelTier
	}{
		{
			name: "default standard",
			cfg:  models.AgentConfig{DefaultTier: models.TierStandard, Complexity: models.ComplexityLow},
			ec:   models.ExecutionContext{ArticleText: "short"},
			want: models.TierStandard,
		},
		{
			name: "advanced default stays advanced",
			cfg:  models.AgentConfig{DefaultTier: models.TierAdvanced},
			ec:   models.ExecutionContext{ArticleText: "short"},
			want: models.TierAdvanced,
		},
		{
			name: "premium user with high complexity upgrades",
			cfg:  models.AgentConfig{DefaultTier: models.TierStandard, Complexity: models.ComplexityHigh},
			ec:   models.ExecutionContext{ArticleText: "short", UserTier: models.UserTierPremium},
			want: models.TierAdvanced,
		},
		{
			name: "premium user with low complexity stays standard",
			cfg:  models.AgentConfig{DefaultTier: models.TierStandard, Complexity: models.ComplexityLow},
			ec:   models.ExecutionContext{ArticleText: "short", UserTier: models.UserTierPremium},
			want: models.TierStandard,
		},
		{
			name: "long article upgrades",
			cfg:  models.AgentConfig{DefaultTier: models.TierStandard, Complexity: models.ComplexityLow},
			ec:   models.ExecutionContext{ArticleText: longArticle},
			want: models.TierAdvanced,
		},
		{
			name: "second retry upgrades",
			cfg:  models.AgentConfig{DefaultTier: models.TierStandard, Complexity: models.ComplexityLow},
			ec:   models.ExecutionContext{ArticleText: "short", RetryCount: 2},
			want: models.TierAdvanced,
		},
		{
			name: "first retry stays standard",
			cfg:  models.AgentConfig{DefaultTier: models.TierStandard, Complexity: models.ComplexityLow},
			ec:   models.ExecutionContext{ArticleText: "short", RetryCount: 1},
			want: models.TierStandard,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := selectTier(tc.cfg, &tc.ec)
			if got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestParseLegacyPayload(t *testing.T) {
	fallback := map[string]interface{}{"parse_fallback": true}

	cases := []struct {
		name     string
		content  string
		wantKey  string
		fellBack bool
	}{
		{name: "plain json", content: `{"terms": []}`, wantKey: "terms"},
		{name: "fenced json", content: "```json\n{\"terms\": []}\n```", wantKey: "terms"},
		{name: "bare fence", content: "```\n{\"terms\": []}\n```", wantKey: "terms"},
		{name: "json with prose around it", content: "Here you go:\n{\"terms\": []}\nHope that helps!", wantKey: "terms"},
		{name: "no json at all", content: "I could not produce the analysis.", fellBack: true},
		{name: "broken json", content: `{"terms": [`, fellBack: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseLegacyPayload(tc.content, fallback)
			if tc.fellBack {
				if _, ok := got["parse_fallback"]; !ok {
					t.Errorf("expected fallback payload, got %v", got)
				}
				return
			}
			if _, ok := got[tc.wantKey]; !ok {
				t.Errorf("expected key %q in payload, got %v", tc.wantKey, got)
			}
		})
	}
}

func TestClassifyPayload(t *testing.T) {
	required := []string{"terms", "summary"}

	cases := []struct {
		name    string
		payload map[string]interface{}
		want    models.PayloadValidation
	}{
		{name: "nil payload", payload: nil, want: models.ValidationEmpty},
		{name: "empty payload", payload: map[string]interface{}{}, want: models.ValidationEmpty},
		{
			name:    "no required keys present",
			payload: map[string]interface{}{"other": "x"},
			want:    models.ValidationWrongType,
		},
		{
			name:    "required keys empty",
			payload: map[string]interface{}{"terms": []interface{}{}, "summary": ""},
			want:    models.ValidationPartiallyEmpty,
		},
		{
			name:    "one key missing",
			payload: map[string]interface{}{"terms": []interface{}{"a"}},
			want:    models.ValidationPartiallyEmpty,
		},
		{
			name:    "all filled",
			payload: map[string]interface{}{"terms": []interface{}{"a"}, "summary": "s"},
			want:    models.ValidationValid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyPayload(tc.payload, required)
			if got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestConversationTurnsReachClient(t *testing.T) {
	client := &mockClient{}
	agent := NewJargonAgent(client, testLogger())

	ec := testContext()
	ec.AppendTurn(models.RoleAssistant, `{"terms": []}`)
	ec.AppendTurn(models.RoleUser, "explain more terms")

	agent.Execute(context.Background(), ec)

	if client.lastReq == nil {
		t.Fatal("client never called")
	}
	// system + user wrapper + 2 conversation turns
	if len(client.lastReq.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(client.lastReq.Messages))
	}
	last := client.lastReq.Messages[3]
	if last.Role != llm.RoleUser || last.Content != "explain more terms" {
		t.Errorf("unexpected final message: %+v", last)
	}
}

func TestRetrievalAgentsRequestSearch(t *testing.T) {
	client := &mockClient{}

	for _, agent := range []Agent{
		NewFactCheckAgent(client, testLogger()),
		NewTimelineAgent(client, testLogger()),
		NewExpertAgent(client, testLogger()),
	} {
		agent.Execute(context.Background(), testContext())
		if client.lastReq.Search == nil {
			t.Errorf("%s: expected search parameters", agent.Config().Name)
			continue
		}
		if client.lastReq.Search.Mode != llm.SearchModeOn {
			t.Errorf("%s: expected search mode on, got %q", agent.Config().Name, client.lastReq.Search.Mode)
		}
	}
}

func TestFallbackShapeMatchesRequiredKeys(t *testing.T) {
	agent := &BaseAgent{requiredKeys: []string{"terms", "summary"}}

	fallback := agent.fallbackFor(testContext())

	for _, key := range []string{"terms", "summary"} {
		if _, ok := fallback[key]; !ok {
			t.Errorf("fallback missing key %q", key)
		}
	}
	if flagged, ok := fallback["parse_fallback"].(bool); !ok || !flagged {
		t.Error("fallback should be flagged")
	}
}
