// Package article fetches a news article's text from its URL so callers
// can analyze articles they only have a link to.
package article

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/sony/gobreaker"

	"github.com/plchld/news-copilot/internal/config"
	"github.com/plchld/news-copilot/internal/models"
	"github.com/plchld/news-copilot/internal/pkg/logger"
)

// Extract is the fetched article content.
type Extract struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Author    string    `json:"author,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Fetcher downloads and extracts article text. A circuit breaker guards the
// outbound fetches so a struggling site does not tie up analysis requests.
type Fetcher struct {
	collector    *colly.Collector
	breaker      *gobreaker.CircuitBreaker
	logger       *logger.Logger
	maxBodyRunes int
	timeout      time.Duration

	mu         sync.Mutex
	userAgents []string
	uaIndex    int
}

func NewFetcher(cfg config.ArticleConfig, log *logger.Logger) *Fetcher {
	collector := colly.NewCollector()
	collector.SetRequestTimeout(cfg.Timeout)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "article-fetch",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("article fetch breaker state change",
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Fetcher{
		collector:    collector,
		breaker:      breaker,
		logger:       log,
		maxBodyRunes: cfg.MaxBodyRunes,
		timeout:      cfg.Timeout,
		userAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0",
		},
	}
}

// FetchText downloads the article at targetURL and returns its extracted
// text. The breaker rejects fast when the outbound path is unhealthy.
func (f *Fetcher) FetchText(ctx context.Context, targetURL string) (*Extract, error) {
	startTime := time.Now()

	parsed, err := url.Parse(targetURL)
	if err != nil {
		return nil, models.NewValidationError(models.CodeBadRequest, "invalid article URL").WithCause(err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, models.NewValidationError(models.CodeBadRequest, fmt.Sprintf("unsupported URL scheme %q", parsed.Scheme))
	}

	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.fetch(ctx, targetURL)
	})

	duration := time.Since(startTime)
	if err != nil {
		f.logger.LogService("article", "fetch_text", duration, map[string]interface{}{
			"url": targetURL,
		}, err)
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, models.NewExternalError("ARTICLE_FETCH_UNAVAILABLE", "article fetching temporarily unavailable").WithCause(err)
		}
		return nil, err
	}

	extract := result.(*Extract)
	f.logger.LogService("article", "fetch_text", duration, map[string]interface{}{
		"url":        targetURL,
		"title":      extract.Title != "",
		"text_runes": len([]rune(extract.Text)),
	}, nil)

	return extract, nil
}

func (f *Fetcher) fetch(ctx context.Context, targetURL string) (*Extract, error) {
	extract := &Extract{
		URL:       targetURL,
		FetchedAt: time.Now(),
	}

	var fetchErr error
	c := f.collector.Clone()

	c.OnRequest(func(r *colly.Request) {
		f.mu.Lock()
		agent := f.userAgents[f.uaIndex]
		f.uaIndex = (f.uaIndex + 1) % len(f.userAgents)
		f.mu.Unlock()

		r.Headers.Set("User-Agent", agent)
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		extract.Title = extractTitle(e)
		extract.Author = extractAuthor(e)
		extract.Text = f.clampRunes(extractBody(e))
	})

	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = models.NewExternalError("ARTICLE_FETCH_FAILED", fmt.Sprintf("fetch failed with HTTP %d", status)).WithCause(err)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Visit(targetURL); err != nil && fetchErr == nil {
			fetchErr = models.WrapExternalError("ARTICLE_FETCH_FAILED", err)
		}
		c.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, models.NewTimeoutError("ARTICLE_FETCH_TIMEOUT", "article fetch timed out").WithCause(ctx.Err())
	}

	if fetchErr != nil {
		return nil, fetchErr
	}

	if strings.TrimSpace(extract.Text) == "" {
		return nil, models.NewExternalError("ARTICLE_EMPTY", "no article text could be extracted")
	}

	return extract, nil
}

func (f *Fetcher) clampRunes(s string) string {
	if f.maxBodyRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= f.maxBodyRunes {
		return s
	}
	return string(runes[:f.maxBodyRunes])
}

// HealthCheck reports whether the breaker currently admits requests.
func (f *Fetcher) HealthCheck() error {
	if state := f.breaker.State(); state == gobreaker.StateOpen {
		return fmt.Errorf("article fetch breaker is open")
	}
	return nil
}

var articleSelectors = []string{
	"article",
	"[itemprop='articleBody']",
	".article-body",
	".post-content",
	".entry-content",
	"main",
}

func extractBody(e *colly.HTMLElement) string {
	for _, sel := range articleSelectors {
		selection := e.DOM.Find(sel)
		if selection.Length() == 0 {
			continue
		}
		if text := collectParagraphs(selection); text != "" {
			return text
		}
	}

	// Last resort: every paragraph on the page.
	return collectParagraphs(e.DOM.Find("body"))
}

func collectParagraphs(selection *goquery.Selection) string {
	var paragraphs []string
	selection.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())
		if len(text) > 40 {
			paragraphs = append(paragraphs, text)
		}
	})
	return cleanText(strings.Join(paragraphs, "\n\n"))
}

func extractTitle(e *colly.HTMLElement) string {
	for _, sel := range []string{"article h1", "h1", "[itemprop='headline']"} {
		if title := strings.TrimSpace(e.ChildText(sel)); title != "" {
			return title
		}
	}
	return strings.TrimSpace(e.ChildText("title"))
}

func extractAuthor(e *colly.HTMLElement) string {
	for _, sel := range []string{"[rel='author']", "[itemprop='author']", ".byline", ".author"} {
		if author := strings.TrimSpace(e.ChildText(sel)); author != "" {
			return author
		}
	}
	return strings.TrimSpace(e.ChildAttr("meta[name='author']", "content"))
}

var collapseSpace = regexp.MustCompile(`[ \t]+`)

func cleanText(s string) string {
	return strings.TrimSpace(collapseSpace.ReplaceAllString(s, " "))
}
