package service

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/TobiSchelling/pulsefeed/internal/database"
	"github.com/TobiSchelling/pulsefeed/internal/engagement"
	"github.com/TobiSchelling/pulsefeed/internal/feed"
	"github.com/TobiSchelling/pulsefeed/internal/trending"
)

var (
	ctx = context.Background()
	now = time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestService(db *database.DB) *Service {
	return New(db, Options{Now: func() time.Time { return now }, SerendipitySeed: 7})
}

func addArticle(t *testing.T, db *database.DB, url, category, topic string, published time.Time) int64 {
	t.Helper()
	id, err := db.InsertArticle(ctx, database.NewArticle{
		URL: url, Title: topic + " news", Category: category, Topic: topic, PublishedAt: &published,
	})
	if err != nil || id == 0 {
		t.Fatalf("insert article: id=%d err=%v", id, err)
	}
	return id
}

func addInteractions(t *testing.T, db *database.DB, articleID int64, kind engagement.Kind, n int, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := db.InsertInteraction(ctx, "reader", articleID, kind, at); err != nil {
			t.Fatalf("insert interaction: %v", err)
		}
	}
}

func TestRefreshTrending(t *testing.T) {
	db := openTestDB(t)
	ai := addArticle(t, db, "https://a.com", "Tech", "AI", now)
	golf := addArticle(t, db, "https://b.com", "Sports", "Golf", now)

	addInteractions(t, db, ai, engagement.Like, 6, now.Add(-time.Hour))
	addInteractions(t, db, ai, engagement.View, 50, now.Add(-30*time.Hour))
	addInteractions(t, db, golf, engagement.View, 3, now)

	db.UpsertTrendingTopics(ctx, []trending.TrendingTopic{
		{Topic: "Stale", Category: "Tech", TrendScore: 99, TotalInteractions: 9, LastUpdated: now.Add(-100 * time.Hour)},
	})

	svc := newTestService(db)
	result, err := svc.RefreshTrending(ctx, RefreshOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Samples != 9 {
		t.Errorf("expected 9 samples in window, got %d", result.Samples)
	}
	if len(result.Topics) != 1 || result.Topics[0].Topic != "AI" {
		t.Fatalf("expected only AI to trend, got %+v", result.Topics)
	}
	if math.Abs(result.Topics[0].TrendScore-16.2) > 1e-9 {
		t.Errorf("expected score 16.2, got %v", result.Topics[0].TrendScore)
	}
	if result.Pruned != 1 {
		t.Errorf("expected stale topic pruned, got %d", result.Pruned)
	}

	stored, err := svc.Trending(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stored) != 1 || stored[0].Topic != "AI" || !stored[0].LastUpdated.Equal(now) {
		t.Errorf("unexpected stored topics: %+v", stored)
	}
}

func TestRefreshTrendingRemovesDroppedTopics(t *testing.T) {
	db := openTestDB(t)
	ai := addArticle(t, db, "https://a.com", "Tech", "AI", now)
	golf := addArticle(t, db, "https://b.com", "Sports", "Golf", now)
	addInteractions(t, db, ai, engagement.Like, 10, now.Add(-23*time.Hour))

	clock := now
	svc := New(db, Options{Now: func() time.Time { return clock }})
	if _, err := svc.RefreshTrending(ctx, RefreshOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored, _ := svc.Trending(ctx, "", 0, 0); len(stored) != 1 || stored[0].Topic != "AI" {
		t.Fatalf("expected AI stored after first refresh, got %+v", stored)
	}

	// AI's engagement leaves the window while its row is still within retention.
	clock = now.Add(2 * time.Hour)
	addInteractions(t, db, golf, engagement.Like, 5, now.Add(time.Hour))
	result, err := svc.RefreshTrending(ctx, RefreshOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Pruned != 0 || result.Superseded != 1 {
		t.Errorf("expected AI superseded rather than pruned, got pruned=%d superseded=%d", result.Pruned, result.Superseded)
	}
	stored, _ := svc.Trending(ctx, "", 0, 0)
	if len(stored) != 1 || stored[0].Topic != "Golf" {
		t.Errorf("expected only Golf stored, got %+v", stored)
	}
}

func TestRefreshTrendingDryRun(t *testing.T) {
	db := openTestDB(t)
	ai := addArticle(t, db, "https://a.com", "Tech", "AI", now)
	addInteractions(t, db, ai, engagement.Like, 5, now)
	db.UpsertTrendingTopics(ctx, []trending.TrendingTopic{
		{Topic: "Stale", Category: "Tech", TrendScore: 99, TotalInteractions: 9, LastUpdated: now.Add(-25 * time.Hour)},
		{Topic: "Recent", Category: "Tech", TrendScore: 20, TotalInteractions: 9, LastUpdated: now.Add(-24 * time.Hour)},
	})

	svc := newTestService(db)
	result, err := svc.RefreshTrending(ctx, RefreshOptions{DryRun: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Topics) != 1 {
		t.Fatalf("expected 1 computed topic, got %d", len(result.Topics))
	}
	if result.Pruned != 1 || result.Superseded != 0 {
		t.Errorf("expected dry run to report 1 prunable topic, got pruned=%d superseded=%d", result.Pruned, result.Superseded)
	}
	stored, _ := svc.Trending(ctx, "", 0, 0)
	if len(stored) != 2 || stored[0].Topic != "Stale" {
		t.Errorf("expected stored topics untouched on dry run, got %+v", stored)
	}
}

func TestRefreshTrendingPerCategory(t *testing.T) {
	db := openTestDB(t)
	ai := addArticle(t, db, "https://a.com", "Tech", "AI", now)
	rust := addArticle(t, db, "https://b.com", "Tech", "Rust", now)
	golf := addArticle(t, db, "https://c.com", "Sports", "Golf", now)
	addInteractions(t, db, ai, engagement.Like, 10, now)
	addInteractions(t, db, rust, engagement.Like, 5, now)
	addInteractions(t, db, golf, engagement.Comment, 5, now)

	svc := New(db, Options{Now: func() time.Time { return now }, TopicsPerCategory: 1})
	result, err := svc.RefreshTrending(ctx, RefreshOptions{PerCategory: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Topics) != 2 {
		t.Fatalf("expected one topic per category, got %+v", result.Topics)
	}
	if result.Topics[0].Category != "Sports" || result.Topics[1].Topic != "AI" {
		t.Errorf("unexpected per-category order: %+v", result.Topics)
	}

	tech, _ := svc.Trending(ctx, "Tech", 0, 10)
	if len(tech) != 1 || tech[0].Topic != "AI" {
		t.Errorf("expected AI for Tech, got %+v", tech)
	}
}

func TestRefreshTrendingInvalidConfig(t *testing.T) {
	db := openTestDB(t)
	cfg := trending.DefaultScoringConfig()
	cfg.TimeDecayFactor = 2
	svc := New(db, Options{Scoring: cfg, Now: func() time.Time { return now }})
	if _, err := svc.RefreshTrending(ctx, RefreshOptions{}); !errors.Is(err, trending.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestTrendingRejectsNegativeMinScore(t *testing.T) {
	svc := newTestService(openTestDB(t))
	if _, err := svc.Trending(ctx, "", -1, 10); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestPrune(t *testing.T) {
	db := openTestDB(t)
	db.UpsertTrendingTopics(ctx, []trending.TrendingTopic{
		{Topic: "old", Category: "Tech", LastUpdated: now.Add(-10 * time.Hour)},
		{Topic: "new", Category: "Tech", LastUpdated: now.Add(-time.Hour)},
	})
	svc := newTestService(db)

	n, err := svc.Prune(ctx, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned, got %d", n)
	}
	if _, err := svc.Prune(ctx, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for zero max age, got %v", err)
	}
}

func TestRelatedArticles(t *testing.T) {
	db := openTestDB(t)
	addArticle(t, db, "https://a.com", "Tech", "AI", now)
	svc := newTestService(db)

	related, err := svc.RelatedArticles(ctx, "AI", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(related) != 1 {
		t.Errorf("expected 1 related article, got %d", len(related))
	}

	related, _ = svc.RelatedArticles(ctx, "Quantum", "", 5)
	if related == nil || len(related) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", related)
	}

	if _, err := svc.RelatedArticles(ctx, "", "", 5); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestFeedCreatesDefaultConfiguration(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(db)

	if _, err := svc.Feed(ctx, "u1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, err := db.GetFeedConfiguration(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored == nil || stored.PersonalizationWeight != feed.DefaultPersonalizationWeight {
		t.Errorf("expected default configuration stored, got %+v", stored)
	}
}

func TestFeedRanksAndExcludes(t *testing.T) {
	db := openTestDB(t)
	tech := addArticle(t, db, "https://a.com", "Tech", "AI", now.Add(-time.Hour))
	addArticle(t, db, "https://b.com", "Sports", "Golf", now.Add(-time.Hour))
	addArticle(t, db, "https://c.com", "Gossip", "Stars", now)
	addArticle(t, db, "https://old.com", "Tech", "Old", now.Add(-30*24*time.Hour))

	// the user only ever reads Tech
	addInteractions(t, db, tech, engagement.View, 3, now.Add(-time.Hour))

	svc := newTestService(db)
	cfg := feed.Configuration{UserID: "reader", PersonalizationWeight: 1, MaxArticlesPerFeed: 10, ExcludedCategories: []string{"Gossip"}}
	if err := svc.UpdateFeedConfiguration(ctx, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ranked, err := svc.Feed(ctx, "reader", []string{"Sports"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranked) != 1 || ranked[0].ArticleID != tech {
		t.Fatalf("expected only the Tech article, got %+v", ranked)
	}
	if ranked[0].Personalization != 1 {
		t.Errorf("expected full personalization, got %v", ranked[0].Personalization)
	}
}

func TestUpdateFeedConfigurationValidates(t *testing.T) {
	svc := newTestService(openTestDB(t))
	cfg := feed.DefaultConfiguration("u1")
	cfg.PopularityWeight = -1
	if err := svc.UpdateFeedConfiguration(ctx, cfg); !errors.Is(err, feed.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if err := svc.UpdateFeedConfiguration(ctx, feed.Configuration{MaxArticlesPerFeed: 1}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for missing user, got %v", err)
	}
}

func TestRecordInteraction(t *testing.T) {
	db := openTestDB(t)
	id := addArticle(t, db, "https://a.com", "Tech", "AI", now)
	svc := newTestService(db)

	if err := svc.RecordInteraction(ctx, "u1", id, "LIKE"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	samples, _ := db.FetchUserSamples(ctx, "u1", now.Add(-time.Hour))
	if len(samples) != 1 || samples[0].Kind != engagement.Like || !samples[0].Timestamp.Equal(now) {
		t.Errorf("unexpected samples: %+v", samples)
	}

	if err := svc.RecordInteraction(ctx, "u1", id, "share"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
	if err := svc.RecordInteraction(ctx, "u1", 999, "view"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := svc.RecordInteraction(ctx, "", id, "view"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}
