package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/TobiSchelling/pulsefeed/internal/engagement"
	"github.com/TobiSchelling/pulsefeed/internal/feed"
	"github.com/TobiSchelling/pulsefeed/internal/trending"
)

var (
	ctx = context.Background()
	t0  = time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertArticle(t *testing.T, db *DB, url, category, topic string, published time.Time) int64 {
	t.Helper()
	id, err := db.InsertArticle(ctx, NewArticle{
		URL: url, Title: "Title " + topic, Category: category, Topic: topic, PublishedAt: &published,
	})
	if err != nil {
		t.Fatalf("insert article: %v", err)
	}
	return id
}

func interact(t *testing.T, db *DB, user string, articleID int64, kind engagement.Kind, at time.Time) {
	t.Helper()
	if _, err := db.InsertInteraction(ctx, user, articleID, kind, at); err != nil {
		t.Fatalf("insert interaction: %v", err)
	}
}

func TestInsertArticle(t *testing.T) {
	db := openTestDB(t)
	id, err := db.InsertArticle(ctx, NewArticle{
		URL: "https://example.com/test", Title: "Test Article", Source: "Test Source",
		Category: "Tech", Topic: "AI", Content: "Test content here",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero article ID")
	}

	a, err := db.GetArticleByID(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Category != "Tech" || a.Topic != "AI" || a.Source == nil || *a.Source != "Test Source" {
		t.Errorf("unexpected article: %+v", a)
	}
	if a.PublishedAt != nil {
		t.Errorf("expected nil published time, got %v", a.PublishedAt)
	}
}

func TestInsertDuplicateArticle(t *testing.T) {
	db := openTestDB(t)
	db.InsertArticle(ctx, NewArticle{URL: "https://example.com/dup", Title: "First"})
	id, err := db.InsertArticle(ctx, NewArticle{URL: "https://example.com/dup", Title: "Duplicate"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 0 {
		t.Error("expected 0 for duplicate article")
	}
}

func TestGetArticleByIDMissing(t *testing.T) {
	db := openTestDB(t)
	a, err := db.GetArticleByID(ctx, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != nil {
		t.Errorf("expected nil, got %+v", a)
	}
}

func TestArticlesNeedingFetch(t *testing.T) {
	db := openTestDB(t)
	db.InsertArticle(ctx, NewArticle{URL: "https://a.com", Title: "No content"})
	db.InsertArticle(ctx, NewArticle{URL: "https://b.com", Title: "Has content", Content: "Some text"})

	needing, err := db.GetArticlesNeedingFetch(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(needing) != 1 {
		t.Fatalf("expected 1 article needing fetch, got %d", len(needing))
	}
	if needing[0].Title != "No content" {
		t.Errorf("expected 'No content', got %q", needing[0].Title)
	}

	if err := db.MarkArticleFetchAttempted(ctx, needing[0].ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	needing, _ = db.GetArticlesNeedingFetch(ctx, 10)
	if len(needing) != 0 {
		t.Errorf("expected no articles after fetch attempt, got %d", len(needing))
	}
}

func TestUpdateArticleContent(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.InsertArticle(ctx, NewArticle{URL: "https://a.com", Title: "Test"})
	if err := db.UpdateArticleContent(ctx, id, "Fetched content"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	article, err := db.GetArticleByID(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if article.Content == nil || *article.Content != "Fetched content" {
		t.Error("expected content to be updated")
	}
	if !article.ContentFetched {
		t.Error("expected content_fetched to be true")
	}
}

func TestGetRecentArticles(t *testing.T) {
	db := openTestDB(t)
	insertArticle(t, db, "https://a.com", "Tech", "A", t0.Add(-2*time.Hour))
	insertArticle(t, db, "https://b.com", "Tech", "B", t0)
	insertArticle(t, db, "https://c.com", "Tech", "C", t0.Add(-time.Hour))

	articles, err := db.GetRecentArticles(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(articles) != 2 || articles[0].Topic != "B" || articles[1].Topic != "C" {
		t.Errorf("unexpected order: %+v", articles)
	}
	if !articles[0].PublishedAt.Equal(t0) {
		t.Errorf("expected published time round-trip, got %v", articles[0].PublishedAt)
	}
}

func TestFetchInteractionSamples(t *testing.T) {
	db := openTestDB(t)
	ai := insertArticle(t, db, "https://a.com", "Tech", "AI", t0)
	golf := insertArticle(t, db, "https://b.com", "Sports", "Golf", t0)

	interact(t, db, "u1", ai, engagement.Like, t0.Add(-time.Hour))
	interact(t, db, "u2", ai, engagement.View, t0)
	interact(t, db, "u1", golf, engagement.Comment, t0.Add(-30*time.Minute))
	interact(t, db, "u1", ai, engagement.View, t0.Add(-48*time.Hour))

	samples, err := db.FetchInteractionSamples(ctx, t0.Add(-24*time.Hour), t0, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples in window, got %d", len(samples))
	}
	last := samples[len(samples)-1]
	if last.Topic != "AI" || last.Category != "Tech" || last.Kind != engagement.View || !last.Timestamp.Equal(t0) {
		t.Errorf("unexpected last sample: %+v", last)
	}

	samples, _ = db.FetchInteractionSamples(ctx, t0.Add(-24*time.Hour), t0, "Sports")
	if len(samples) != 1 || samples[0].Topic != "Golf" {
		t.Errorf("expected one Sports sample, got %+v", samples)
	}
}

func TestFetchUserSamples(t *testing.T) {
	db := openTestDB(t)
	ai := insertArticle(t, db, "https://a.com", "Tech", "AI", t0)
	interact(t, db, "u1", ai, engagement.Like, t0)
	interact(t, db, "u2", ai, engagement.Like, t0)
	interact(t, db, "u1", ai, engagement.View, t0.Add(-10*24*time.Hour))

	samples, err := db.FetchUserSamples(ctx, "u1", t0.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 1 || samples[0].Kind != engagement.Like {
		t.Errorf("expected one recent like, got %+v", samples)
	}
}

func TestFetchFeedCandidates(t *testing.T) {
	db := openTestDB(t)
	a := insertArticle(t, db, "https://a.com", "Tech", "AI", t0)
	b := insertArticle(t, db, "https://b.com", "Sports", "Golf", t0.Add(-time.Hour))
	insertArticle(t, db, "https://old.com", "Tech", "Old", t0.Add(-30*24*time.Hour))

	interact(t, db, "u1", a, engagement.Like, t0)
	interact(t, db, "u2", a, engagement.Like, t0)
	interact(t, db, "u1", a, engagement.View, t0)
	interact(t, db, "u1", a, engagement.Comment, t0)
	interact(t, db, "u1", b, engagement.View, t0)

	candidates, err := db.FetchFeedCandidates(ctx, t0.Add(-7*24*time.Hour), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	got := candidates[0]
	if got.ArticleID != a || got.LikesCount != 2 || got.ViewsCount != 1 {
		t.Errorf("unexpected counts: %+v", got)
	}
	if candidates[1].ArticleID != b || candidates[1].LikesCount != 0 || candidates[1].ViewsCount != 1 {
		t.Errorf("unexpected second candidate: %+v", candidates[1])
	}
}

func TestGetRelatedArticles(t *testing.T) {
	db := openTestDB(t)
	tagged := insertArticle(t, db, "https://a.com", "Tech", "Rust", t0)
	db.InsertArticle(ctx, NewArticle{URL: "https://b.com", Title: "Why rust matters", Category: "Tech", PublishedAt: &t0})
	db.InsertArticle(ctx, NewArticle{URL: "https://c.com", Title: "Rust belt politics", Category: "Politics", PublishedAt: &t0})
	db.InsertArticle(ctx, NewArticle{URL: "https://d.com", Title: "Go 2", Category: "Tech", PublishedAt: &t0})
	interact(t, db, "u1", tagged, engagement.Like, t0)

	related, err := db.GetRelatedArticles(ctx, "rust", "Tech", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(related) != 2 {
		t.Fatalf("expected 2 related Tech articles, got %+v", related)
	}
	if related[0].ArticleID != tagged {
		t.Errorf("expected engaged article first, got %+v", related[0])
	}

	related, _ = db.GetRelatedArticles(ctx, "rust", "", 10)
	if len(related) != 3 {
		t.Errorf("expected 3 related articles across categories, got %d", len(related))
	}

	related, _ = db.GetRelatedArticles(ctx, "100%", "", 10)
	if len(related) != 0 {
		t.Errorf("expected LIKE wildcards to be escaped, got %+v", related)
	}
}

func TestTrendingTopicsUpsert(t *testing.T) {
	db := openTestDB(t)
	topics := []trending.TrendingTopic{
		{Topic: "AI", Category: "Tech", TrendScore: 155, TotalInteractions: 115, LastUpdated: t0},
		{Topic: "AI", Category: "Science", TrendScore: 20, TotalInteractions: 10, LastUpdated: t0},
		{Topic: "Golf", Category: "Sports", TrendScore: 40, TotalInteractions: 12, LastUpdated: t0},
	}
	if err := db.UpsertTrendingTopics(ctx, topics); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	later := t0.Add(time.Hour)
	if err := db.UpsertTrendingTopics(ctx, []trending.TrendingTopic{
		{Topic: "AI", Category: "Tech", TrendScore: 10, TotalInteractions: 6, LastUpdated: later},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := db.GetTrendingTopics(ctx, "", 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 topics, got %d", len(got))
	}
	if got[0].Topic != "Golf" || got[2].TrendScore != 10 || !got[2].LastUpdated.Equal(later) {
		t.Errorf("unexpected order or values: %+v", got)
	}

	got, _ = db.GetTrendingTopics(ctx, "Tech", 0, 10)
	if len(got) != 1 || got[0].Category != "Tech" {
		t.Errorf("expected one Tech topic, got %+v", got)
	}

	got, _ = db.GetTrendingTopics(ctx, "", 25, 10)
	if len(got) != 1 || got[0].Topic != "Golf" {
		t.Errorf("expected min score to filter, got %+v", got)
	}

	got, _ = db.GetTrendingTopics(ctx, "", 0, 2)
	if len(got) != 2 {
		t.Errorf("expected limit to cap rows, got %d", len(got))
	}
	got, _ = db.GetTrendingTopics(ctx, "", 0, 0)
	if len(got) != 3 {
		t.Errorf("expected no limit to return all rows, got %d", len(got))
	}
}

func TestDeleteTrendingTopicsOlderThan(t *testing.T) {
	db := openTestDB(t)
	db.UpsertTrendingTopics(ctx, []trending.TrendingTopic{
		{Topic: "old", Category: "Tech", TrendScore: 1, TotalInteractions: 5, LastUpdated: t0.Add(-72 * time.Hour)},
		{Topic: "edge", Category: "Tech", TrendScore: 1, TotalInteractions: 5, LastUpdated: t0.Add(-48 * time.Hour)},
		{Topic: "new", Category: "Tech", TrendScore: 1, TotalInteractions: 5, LastUpdated: t0},
	})

	n, err := db.DeleteTrendingTopicsOlderThan(ctx, t0.Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}
	got, _ := db.GetTrendingTopics(ctx, "", 0, 10)
	if len(got) != 2 {
		t.Errorf("expected 2 remaining, got %d", len(got))
	}
}

func TestDeleteTrendingTopicsNotUpdatedSince(t *testing.T) {
	db := openTestDB(t)
	db.UpsertTrendingTopics(ctx, []trending.TrendingTopic{
		{Topic: "dropped", Category: "Tech", TrendScore: 50, TotalInteractions: 20, LastUpdated: t0.Add(-time.Hour)},
		{Topic: "current", Category: "Tech", TrendScore: 10, TotalInteractions: 5, LastUpdated: t0},
		{Topic: "other", Category: "Sports", TrendScore: 40, TotalInteractions: 9, LastUpdated: t0.Add(-time.Hour)},
	})

	n, err := db.DeleteTrendingTopicsNotUpdatedSince(ctx, "Tech", t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted in Tech, got %d", n)
	}

	n, _ = db.DeleteTrendingTopicsNotUpdatedSince(ctx, "", t0)
	if n != 1 {
		t.Errorf("expected 1 deleted across categories, got %d", n)
	}
	got, _ := db.GetTrendingTopics(ctx, "", 0, 10)
	if len(got) != 1 || got[0].Topic != "current" {
		t.Errorf("expected only current to remain, got %+v", got)
	}
}

func TestFeedConfigurationRoundTrip(t *testing.T) {
	db := openTestDB(t)

	got, err := db.GetFeedConfiguration(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown user, got %+v", got)
	}

	cfg := feed.DefaultConfiguration("u1")
	cfg.PreferredCategories = []string{"Tech", "Science"}
	if err := db.SaveFeedConfiguration(ctx, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.FreshnessWeight = 0.9
	cfg.ExcludedCategories = []string{"Gossip"}
	cfg.PreferredCategories = nil
	if err := db.SaveFeedConfiguration(ctx, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err = db.GetFeedConfiguration(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.FreshnessWeight != 0.9 || got.MaxArticlesPerFeed != feed.DefaultMaxArticlesPerFeed {
		t.Errorf("unexpected configuration: %+v", got)
	}
	if len(got.PreferredCategories) != 0 || len(got.ExcludedCategories) != 1 || got.ExcludedCategories[0] != "Gossip" {
		t.Errorf("unexpected category lists: %+v", got)
	}
}

func TestRunReports(t *testing.T) {
	db := openTestDB(t)

	last, err := db.GetLastRun(ctx, "pipeline")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last != nil {
		t.Fatalf("expected no run, got %+v", last)
	}

	if err := db.StartRun(ctx, "run-1", "pipeline", t0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.FinishRun(ctx, "run-1", t0.Add(time.Minute), "3 articles", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db.StartRun(ctx, "run-2", "pipeline", t0.Add(time.Hour))
	db.FinishRun(ctx, "run-2", t0.Add(time.Hour+time.Minute), "", errors.New("feed down"))

	last, err = db.GetLastRun(ctx, "pipeline")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last.ID != "run-2" || last.Error == nil || *last.Error != "feed down" || last.FinishedAt == nil {
		t.Errorf("unexpected last run: %+v", last)
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	a := insertArticle(t, db, "https://a.com", "Tech", "AI", t0)
	insertArticle(t, db, "https://b.com", "Sports", "Golf", t0)
	db.UpdateArticleContent(ctx, a, "body")
	interact(t, db, "u1", a, engagement.Like, t0)
	db.SaveFeedConfiguration(ctx, feed.DefaultConfiguration("u1"))
	db.UpsertTrendingTopics(ctx, []trending.TrendingTopic{{Topic: "AI", Category: "Tech", LastUpdated: t0}})

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalArticles != 2 || stats.FetchedArticles != 1 || stats.Categories != 2 ||
		stats.Interactions != 1 || stats.TrendingTopics != 1 || stats.FeedConfigurations != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
