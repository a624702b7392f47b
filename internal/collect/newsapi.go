package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const newsAPIBaseURL = "https://newsapi.org/v2/everything"

// NewsQuery is one NewsAPI search whose results are filed under Category.
type NewsQuery struct {
	Query    string
	Category string
}

// NewsAPIClient fetches articles from NewsAPI.
type NewsAPIClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewNewsAPIClient creates a NewsAPI client reading its key from apiKeyEnv.
func NewNewsAPIClient(apiKeyEnv string, client *http.Client) *NewsAPIClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &NewsAPIClient{
		apiKey:  os.Getenv(apiKeyEnv),
		baseURL: newsAPIBaseURL,
		client:  client,
	}
}

// IsConfigured returns whether the API key is available.
func (c *NewsAPIClient) IsConfigured() bool {
	return c.apiKey != ""
}

// Search returns entries matching q published after cutoff. The query text
// doubles as the topic of every result.
func (c *NewsAPIClient) Search(ctx context.Context, q NewsQuery, cutoff time.Time, pageSize int) ([]FeedEntry, error) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}

	params := url.Values{
		"q":        {q.Query},
		"from":     {cutoff.UTC().Format("2006-01-02")},
		"language": {"en"},
		"pageSize": {fmt.Sprintf("%d", pageSize)},
		"sortBy":   {"publishedAt"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi: HTTP %d", resp.StatusCode)
	}

	var result struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		Articles []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
			Content     string `json:"content"`
			Description string `json:"description"`
			Source      struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding newsapi response: %w", err)
	}
	if result.Status != "ok" {
		return nil, fmt.Errorf("newsapi status %q: %s", result.Status, result.Message)
	}

	var entries []FeedEntry
	for _, a := range result.Articles {
		if a.URL == "" || a.Title == "" || a.Title == "[Removed]" || a.URL == "https://removed.com" {
			continue
		}

		var published *time.Time
		if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			utc := t.UTC()
			published = &utc
		}
		if !isWithinWindow(published, cutoff) {
			continue
		}

		content := a.Content
		if content == "" {
			content = a.Description
		}

		source := "NewsAPI"
		if a.Source.Name != "" {
			source = a.Source.Name
		}

		entries = append(entries, FeedEntry{
			URL:         a.URL,
			Title:       strings.TrimSpace(a.Title),
			PublishedAt: published,
			Content:     strings.TrimSpace(content),
			Source:      source,
			Category:    q.Category,
			Topic:       q.Query,
		})
	}

	log.Printf("Fetched %d articles from NewsAPI for query: %s", len(entries), q.Query)
	return entries, nil
}
