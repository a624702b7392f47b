package feed

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

var now = time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)

func candidate(id int64, category string, age time.Duration, likes, views int) Candidate {
	return Candidate{
		ArticleID:   id,
		Title:       fmt.Sprintf("Article %d", id),
		Category:    category,
		PublishedAt: now.Add(-age),
		LikesCount:  likes,
		ViewsCount:  views,
	}
}

func ids(scored []Scored) []int64 {
	out := make([]int64, len(scored))
	for i, s := range scored {
		out[i] = s.ArticleID
	}
	return out
}

func TestRankExcludesCategories(t *testing.T) {
	cfg := DefaultConfiguration("u1")
	cfg.ExcludedCategories = []string{"Gossip"}
	candidates := []Candidate{
		candidate(1, "Gossip", 0, 1000, 100000),
		candidate(2, "Tech", 72*time.Hour, 0, 0),
		candidate(3, "Sports", 0, 10, 10),
	}

	got, err := NewRanker(1).Rank(candidates, cfg, now, []string{"Sports"}, map[string]float64{"Gossip": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ArticleID != 2 {
		t.Errorf("expected only article 2, got %v", ids(got))
	}
}

func TestRankCap(t *testing.T) {
	cfg := DefaultConfiguration("u1")
	cfg.MaxArticlesPerFeed = 3
	var candidates []Candidate
	for i := int64(1); i <= 10; i++ {
		candidates = append(candidates, candidate(i, "Tech", time.Duration(i)*time.Hour, int(i), int(i*10)))
	}
	got, err := NewRanker(1).Rank(candidates, cfg, now, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 articles, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Composite > got[i-1].Composite {
			t.Errorf("not sorted by composite at %d", i)
		}
	}
}

func TestRankEmpty(t *testing.T) {
	got, err := NewRanker(1).Rank(nil, DefaultConfiguration("u1"), now, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty feed, got %d", len(got))
	}
}

func TestRankZeroWeightsUsesTieBreak(t *testing.T) {
	cfg := DefaultConfiguration("u1")
	cfg.PersonalizationWeight, cfg.FreshnessWeight, cfg.PopularityWeight, cfg.SerendipityWeight = 0, 0, 0, 0
	candidates := []Candidate{
		candidate(5, "Tech", 2*time.Hour, 100, 0),
		candidate(3, "Tech", time.Hour, 0, 0),
		candidate(1, "Tech", time.Hour, 0, 0),
	}
	got, err := NewRanker(1).Rank(candidates, cfg, now, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fmt.Sprint(ids(got)) != "[1 3 5]" {
		t.Errorf("expected tie-break order [1 3 5], got %v", ids(got))
	}
	for _, s := range got {
		if s.Composite != 0 {
			t.Errorf("expected zero composite, got %v", s.Composite)
		}
	}
}

func TestRankFreshnessOnly(t *testing.T) {
	cfg := Configuration{UserID: "u1", FreshnessWeight: 1, MaxArticlesPerFeed: 10}
	candidates := []Candidate{
		candidate(1, "Tech", 48*time.Hour, 0, 0),
		candidate(2, "Tech", 0, 0, 0),
		candidate(3, "Tech", 24*time.Hour, 0, 0),
	}
	got, err := NewRanker(1).Rank(candidates, cfg, now, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fmt.Sprint(ids(got)) != "[2 3 1]" {
		t.Errorf("expected newest first, got %v", ids(got))
	}
	if got[1].Freshness != 0.5 {
		t.Errorf("expected freshness 0.5 at one half-life, got %v", got[1].Freshness)
	}
}

func TestRankPopularityNormalized(t *testing.T) {
	cfg := Configuration{UserID: "u1", PopularityWeight: 1, MaxArticlesPerFeed: 10}
	candidates := []Candidate{
		candidate(1, "Tech", 0, 1, 1),
		candidate(2, "Tech", 0, 50, 400),
		candidate(3, "Tech", 0, 0, 0),
	}
	got, err := NewRanker(1).Rank(candidates, cfg, now, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].ArticleID != 2 || got[0].Popularity != 1 {
		t.Errorf("expected most popular first with score 1, got %+v", got[0])
	}
	if got[2].Popularity != 0 {
		t.Errorf("expected zero popularity for no engagement, got %v", got[2].Popularity)
	}
}

func TestRankPersonalization(t *testing.T) {
	cfg := Configuration{UserID: "u1", PersonalizationWeight: 1, MaxArticlesPerFeed: 10, PreferredCategories: []string{"Science"}}
	candidates := []Candidate{
		candidate(1, "Tech", 0, 0, 0),
		candidate(2, "Sports", 0, 0, 0),
		candidate(3, "Science", 0, 0, 0),
		candidate(4, "Unknown", 0, 0, 0),
	}
	interests := map[string]float64{"Tech": 0.8, "Sports": 0.3}
	got, err := NewRanker(1).Rank(candidates, cfg, now, nil, interests)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fmt.Sprint(ids(got)) != "[3 1 2 4]" {
		t.Errorf("expected [3 1 2 4], got %v", ids(got))
	}
	if got[3].Personalization != 0 {
		t.Errorf("expected unknown category to score 0, got %v", got[3].Personalization)
	}
}

func TestRankSerendipityDeterministic(t *testing.T) {
	cfg := Configuration{UserID: "u1", SerendipityWeight: 1, MaxArticlesPerFeed: 50}
	var candidates []Candidate
	for i := int64(1); i <= 20; i++ {
		candidates = append(candidates, candidate(i, "Tech", 0, 0, 0))
	}
	reversed := make([]Candidate, len(candidates))
	for i, c := range candidates {
		reversed[len(candidates)-1-i] = c
	}

	a, _ := NewRanker(42).Rank(candidates, cfg, now, nil, nil)
	b, _ := NewRanker(42).Rank(reversed, cfg, now, nil, nil)
	if fmt.Sprint(ids(a)) != fmt.Sprint(ids(b)) {
		t.Errorf("expected same order for same seed, got %v and %v", ids(a), ids(b))
	}
	for _, s := range a {
		if s.Serendipity < 0 || s.Serendipity >= 1 {
			t.Errorf("serendipity out of range: %v", s.Serendipity)
		}
	}
}

func TestRankWeightsNormalized(t *testing.T) {
	small := Configuration{UserID: "u1", FreshnessWeight: 0.3, PopularityWeight: 0.2, MaxArticlesPerFeed: 10}
	large := Configuration{UserID: "u1", FreshnessWeight: 3, PopularityWeight: 2, MaxArticlesPerFeed: 10}
	candidates := []Candidate{candidate(1, "Tech", 5*time.Hour, 3, 20), candidate(2, "Tech", 30*time.Hour, 40, 10)}

	a, _ := NewRanker(1).Rank(candidates, small, now, nil, nil)
	b, _ := NewRanker(1).Rank(candidates, large, now, nil, nil)
	for i := range a {
		diff := a[i].Composite - b[i].Composite
		if diff > 1e-12 || diff < -1e-12 {
			t.Errorf("expected scaled weights to give equal composites, got %v and %v", a[i].Composite, b[i].Composite)
		}
	}
}

func TestRankRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfiguration("u1")
	cfg.FreshnessWeight = -0.1
	if _, err := NewRanker(1).Rank(nil, cfg, now, nil, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	cfg = DefaultConfiguration("u1")
	cfg.MaxArticlesPerFeed = 0
	if _, err := NewRanker(1).Rank(nil, cfg, now, nil, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRankRejectsNonFiniteWeights(t *testing.T) {
	for name, w := range map[string]float64{"nan": math.NaN(), "+inf": math.Inf(1), "-inf": math.Inf(-1)} {
		cfg := DefaultConfiguration("u1")
		cfg.PopularityWeight = w
		if _, err := NewRanker(1).Rank(nil, cfg, now, nil, nil); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}
