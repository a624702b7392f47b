package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/pulsefeed/internal/database"
	"github.com/TobiSchelling/pulsefeed/internal/metrics"
)

const (
	minContentLength = 100
	maxBodyBytes     = 5 << 20
)

// Result holds the results of a content fetch run.
type Result struct {
	Fetched int
	Skipped int
	Failed  int
}

// ContentFetcher fetches full article text via HTTP + readability extraction.
type ContentFetcher struct {
	db      *database.DB
	client  *http.Client
	limiter *rate.Limiter
}

// NewContentFetcher creates a new content fetcher. A nil limiter means no throttling.
func NewContentFetcher(db *database.DB, timeout time.Duration, limiter *rate.Limiter) *ContentFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &ContentFetcher{
		db:      db,
		limiter: limiter,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// FetchMissingContent fetches content for up to limit articles that have none.
// After an HTTP error status, remaining articles from the same host are skipped.
func (f *ContentFetcher) FetchMissingContent(ctx context.Context, limit int) (*Result, error) {
	articles, err := f.db.GetArticlesNeedingFetch(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("getting articles needing fetch: %w", err)
	}

	result := &Result{}
	if len(articles) == 0 {
		log.Println("No articles need content fetching")
		return result, nil
	}

	failedDomains := make(map[string]struct{})

	for _, article := range articles {
		domain := ""
		if u, err := url.Parse(article.URL); err == nil {
			domain = strings.ToLower(u.Host)
		}

		if _, failed := failedDomains[domain]; failed {
			f.markAttempted(ctx, article.ID)
			result.Skipped++
			metrics.IncContentFetch("skipped")
			continue
		}

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return result, err
			}
		}

		content, err := f.fetchArticleContent(ctx, article.URL)
		var httpErr *httpError
		switch {
		case errors.As(err, &httpErr):
			f.markAttempted(ctx, article.ID)
			result.Failed++
			metrics.IncContentFetch("failed")
			if domain != "" {
				failedDomains[domain] = struct{}{}
			}
			log.Printf("HTTP %d for %s, skipping remaining from %s", httpErr.code, article.URL, domain)
		case err != nil || content == "":
			f.markAttempted(ctx, article.ID)
			result.Failed++
			metrics.IncContentFetch("failed")
			log.Printf("No extractable content from: %s", article.URL)
		default:
			if err := f.db.UpdateArticleContent(ctx, article.ID, content); err != nil {
				return result, fmt.Errorf("storing content for article %d: %w", article.ID, err)
			}
			result.Fetched++
			metrics.IncContentFetch("fetched")
			log.Printf("Fetched content for: %s", article.Title)
		}
	}

	log.Printf("Content fetch complete: %d fetched, %d failed, %d skipped", result.Fetched, result.Failed, result.Skipped)
	return result, nil
}

func (f *ContentFetcher) markAttempted(ctx context.Context, articleID int64) {
	if err := f.db.MarkArticleFetchAttempted(ctx, articleID); err != nil {
		log.Printf("Failed to mark article %d: %v", articleID, err)
	}
}

func (f *ContentFetcher) fetchArticleContent(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "pulsefeed/1.0 (news aggregator)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	parsedURL, _ := url.Parse(articleURL)
	article, err := readability.FromReader(io.LimitReader(resp.Body, maxBodyBytes), parsedURL)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > minContentLength {
		return text, nil
	}
	return "", nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
