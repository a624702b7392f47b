package collect

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/TobiSchelling/pulsefeed/internal/config"
	"github.com/TobiSchelling/pulsefeed/internal/database"
	"github.com/TobiSchelling/pulsefeed/internal/metrics"
)

// Result holds the results of a collection run.
type Result struct {
	TotalFound  int
	NewArticles int
	Duplicates  int
	Failed      int
	Sources     map[string]int
	Categories  map[string]int
}

// Collector orchestrates article collection from RSS feeds and NewsAPI.
type Collector struct {
	db          *database.DB
	feedParser  *FeedParser
	newsClient  *NewsAPIClient
	newsQueries []NewsQuery
	daysBack    int
	now         func() time.Time
}

// NewCollector creates a new article collector.
func NewCollector(cfg *config.Config, db *database.DB) *Collector {
	client := &http.Client{Timeout: cfg.FetchTimeout()}
	limiter := cfg.FetchLimiter()

	c := &Collector{
		db:       db,
		daysBack: cfg.Sources.DaysBack,
		now:      time.Now,
	}

	if len(cfg.Sources.Feeds) > 0 {
		feeds := make([]FeedConfig, len(cfg.Sources.Feeds))
		for i, f := range cfg.Sources.Feeds {
			feeds[i] = FeedConfig{URL: f.URL, Name: f.Name, Category: f.Category}
		}
		c.feedParser = NewFeedParser(feeds, cfg.Sources.MaxPerFeed, client, limiter)
	}

	apiCfg := cfg.Sources.NewsAPI
	if apiCfg.Enabled && len(apiCfg.Queries) > 0 {
		c.newsClient = NewNewsAPIClient(apiCfg.APIKeyEnv, client)
		for _, q := range apiCfg.Queries {
			c.newsQueries = append(c.newsQueries, NewsQuery{Query: q.Query, Category: q.Category})
		}
	}

	return c
}

// Collect collects articles from all configured sources.
func (c *Collector) Collect(ctx context.Context) *Result {
	r := &Result{Sources: make(map[string]int), Categories: make(map[string]int)}
	cutoff := c.now().AddDate(0, 0, -c.daysBack)

	if c.feedParser != nil {
		log.Println("Collecting from RSS feeds...")
		c.store(ctx, r, c.feedParser.ParseAll(ctx, cutoff))
	}

	if c.newsClient != nil && c.newsClient.IsConfigured() {
		log.Println("Collecting from NewsAPI...")
		for _, q := range c.newsQueries {
			entries, err := c.newsClient.Search(ctx, q, cutoff, 100)
			if err != nil {
				log.Printf("NewsAPI search %q failed: %v", q.Query, err)
				continue
			}
			c.store(ctx, r, entries)
		}
	}

	metrics.ArticlesCollected.Add(float64(r.NewArticles))
	log.Printf("Collection complete: %d found, %d new, %d duplicates", r.TotalFound, r.NewArticles, r.Duplicates)
	return r
}

func (c *Collector) store(ctx context.Context, r *Result, entries []FeedEntry) {
	r.TotalFound += len(entries)
	for _, e := range entries {
		if e.PublishedAt == nil {
			now := c.now().UTC()
			e.PublishedAt = &now
		}
		id, err := c.db.InsertArticle(ctx, database.NewArticle{
			URL:         e.URL,
			Title:       e.Title,
			Source:      e.Source,
			Category:    e.Category,
			Topic:       e.Topic,
			PublishedAt: e.PublishedAt,
			Content:     e.Content,
		})
		switch {
		case err != nil:
			log.Printf("Failed to store %s: %v", e.URL, err)
			r.Failed++
		case id > 0:
			r.NewArticles++
			r.Sources[e.Source]++
			r.Categories[e.Category]++
		default:
			r.Duplicates++
		}
	}
}
