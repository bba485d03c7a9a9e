package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/plchld/news-copilot/internal/models"
	"github.com/plchld/news-copilot/internal/pkg/logger"
)

func testLogger() *logger.Logger {
	log, _ := logger.New(logger.Config{Level: "error", Format: "json", Output: "stdout"})
	return log
}

func testEntry(sessionID string) *Entry {
	return NewEntry(
		&models.ExecutionContext{
			ArticleText: "the article",
			ArticleURL:  "https://example.com/story",
			SessionID:   sessionID,
			UserTier:    models.UserTierPremium,
		},
		map[models.AnalysisType]*models.AgentResult{
			models.AnalysisJargon: {
				Type:    models.AnalysisJargon,
				Success: true,
				Payload: map[string]interface{}{
					"terms": []interface{}{
						map[string]interface{}{"term": "quantitative easing", "explanation": "..."},
					},
				},
			},
		},
	)
}

func TestMemoryStorePutGet(t *testing.T) {
	store := NewMemoryStore(time.Minute, 0, testLogger())
	defer store.Close()

	ctx := context.Background()
	if err := store.Put(ctx, testEntry("s1")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	entry, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if entry.ArticleText != "the article" {
		t.Errorf("article text lost, got %q", entry.ArticleText)
	}
	if _, ok := entry.CoreResults[models.AnalysisJargon]; !ok {
		t.Error("core results lost")
	}
}

func TestMemoryStoreMiss(t *testing.T) {
	store := NewMemoryStore(time.Minute, 0, testLogger())
	defer store.Close()

	if _, err := store.Get(context.Background(), "nope"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(20*time.Millisecond, 0, testLogger())
	defer store.Close()

	ctx := context.Background()
	store.Put(ctx, testEntry("s1"))

	if _, err := store.Get(ctx, "s1"); err != nil {
		t.Fatalf("entry should still be live: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	if _, err := store.Get(ctx, "s1"); err != ErrNotFound {
		t.Errorf("expected expiry, got %v", err)
	}
	// Lazy delete removed it.
	if n, _ := store.Len(ctx); n != 0 {
		t.Errorf("expected empty store after lazy delete, got %d", n)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	store := NewMemoryStore(time.Nanosecond, 0, testLogger())
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		store.Put(ctx, testEntry(fmt.Sprintf("s%d", i)))
	}

	removed := store.sweepOnce(time.Now().Add(time.Second))
	if removed != 5 {
		t.Errorf("expected 5 swept entries, got %d", removed)
	}
	if n, _ := store.Len(ctx); n != 0 {
		t.Errorf("expected empty store, got %d", n)
	}
}

func TestMemoryStoreEvict(t *testing.T) {
	store := NewMemoryStore(time.Minute, 0, testLogger())
	defer store.Close()

	ctx := context.Background()
	store.Put(ctx, testEntry("s1"))
	store.Evict(ctx, "s1")

	if _, err := store.Get(ctx, "s1"); err != ErrNotFound {
		t.Errorf("expected eviction, got %v", err)
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(time.Minute, 0, testLogger())
	defer store.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("s%d", i)
			store.Put(ctx, testEntry(sessionID))
			if _, err := store.Get(ctx, sessionID); err != nil {
				t.Errorf("concurrent get %s failed: %v", sessionID, err)
			}
		}(i)
	}
	wg.Wait()

	if n, _ := store.Len(ctx); n != 20 {
		t.Errorf("expected 20 entries, got %d", n)
	}
}

func TestEntryContext(t *testing.T) {
	entry := testEntry("s1")
	ec := entry.Context()

	if !ec.CacheHit {
		t.Error("expected cache hit flag")
	}
	if !ec.HasCoreResults {
		t.Error("expected core results flag")
	}
	if ec.RequestType != "on-demand" {
		t.Errorf("expected on-demand request type, got %q", ec.RequestType)
	}
	if ec.UserTier != models.UserTierPremium {
		t.Errorf("user tier lost, got %q", ec.UserTier)
	}
	if ec.CoreSummary == "" {
		t.Error("expected a rendered core summary")
	}
}

func TestBuildSummary(t *testing.T) {
	entry := testEntry("s1")

	if !strings.Contains(entry.Summary, "JARGON") {
		t.Errorf("summary missing section header: %q", entry.Summary)
	}
	if !strings.Contains(entry.Summary, "quantitative easing") {
		t.Errorf("summary missing item headline: %q", entry.Summary)
	}
}

func TestBuildSummarySkipsFailures(t *testing.T) {
	summary := buildSummary(map[models.AnalysisType]*models.AgentResult{
		models.AnalysisJargon: {
			Type:    models.AnalysisJargon,
			Success: false,
			Error:   "failed",
		},
	})
	if summary != "" {
		t.Errorf("failed results should not appear in the summary, got %q", summary)
	}
}
