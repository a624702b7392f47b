package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TobiSchelling/pulsefeed/internal/database"
	"github.com/TobiSchelling/pulsefeed/internal/engagement"
	"github.com/TobiSchelling/pulsefeed/internal/feed"
	"github.com/TobiSchelling/pulsefeed/internal/metrics"
	"github.com/TobiSchelling/pulsefeed/internal/trending"
)

var (
	// ErrUnknownKind is returned for an interaction kind other than like, comment, or view.
	ErrUnknownKind = errors.New("unknown interaction kind")
	// ErrNotFound is returned when a referenced article does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is returned for malformed request values.
	ErrInvalidArgument = errors.New("invalid argument")
)

// TrendingStore reads engagement and persists trending topics.
type TrendingStore interface {
	FetchInteractionSamples(ctx context.Context, start, end time.Time, category string) ([]engagement.Sample, error)
	UpsertTrendingTopics(ctx context.Context, topics []trending.TrendingTopic) error
	GetTrendingTopics(ctx context.Context, category string, minScore float64, limit int) ([]trending.TrendingTopic, error)
	DeleteTrendingTopicsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteTrendingTopicsNotUpdatedSince(ctx context.Context, category string, since time.Time) (int64, error)
	GetRelatedArticles(ctx context.Context, topic, category string, limit int) ([]feed.Candidate, error)
}

// FeedStore supplies feed candidates and per-user state.
type FeedStore interface {
	FetchUserSamples(ctx context.Context, userID string, since time.Time) ([]engagement.Sample, error)
	FetchFeedCandidates(ctx context.Context, since time.Time, limit int) ([]feed.Candidate, error)
	GetFeedConfiguration(ctx context.Context, userID string) (*feed.Configuration, error)
	SaveFeedConfiguration(ctx context.Context, cfg feed.Configuration) error
}

// InteractionStore records engagement events.
type InteractionStore interface {
	GetArticleByID(ctx context.Context, articleID int64) (*database.Article, error)
	InsertInteraction(ctx context.Context, userID string, articleID int64, kind engagement.Kind, at time.Time) (int64, error)
}

// Store is everything the service needs from persistence.
type Store interface {
	TrendingStore
	FeedStore
	InteractionStore
}

// Options tune the service. Zero values fall back to the package defaults.
type Options struct {
	Scoring           trending.ScoringConfig
	MinScore          float64
	TopicsPerCategory int
	RetentionHours    float64

	FreshnessHalfLife time.Duration
	CandidateWindow   time.Duration
	CandidateLimit    int
	InterestLookback  time.Duration
	SerendipitySeed   uint64

	// DefaultFeed builds the configuration stored for a user on first access.
	DefaultFeed func(userID string) feed.Configuration

	Now func() time.Time
}

const (
	DefaultTopicsPerCategory = 5
	DefaultCandidateLimit    = 500
	DefaultCandidateWindow   = 7 * 24 * time.Hour
	DefaultInterestLookback  = 30 * 24 * time.Hour
)

// Service ties the scoring core to the store.
type Service struct {
	store  Store
	opts   Options
	scorer *trending.Scorer
	ranker *feed.Ranker
}

// New creates a service over the given store.
func New(store Store, opts Options) *Service {
	if opts.Scoring == (trending.ScoringConfig{}) {
		opts.Scoring = trending.DefaultScoringConfig()
	}
	if opts.TopicsPerCategory <= 0 {
		opts.TopicsPerCategory = DefaultTopicsPerCategory
	}
	if opts.RetentionHours <= 0 {
		opts.RetentionHours = float64(opts.Scoring.TimeWindowHours)
	}
	if opts.FreshnessHalfLife <= 0 {
		opts.FreshnessHalfLife = feed.DefaultFreshnessHalfLife
	}
	if opts.CandidateWindow <= 0 {
		opts.CandidateWindow = DefaultCandidateWindow
	}
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = DefaultCandidateLimit
	}
	if opts.InterestLookback <= 0 {
		opts.InterestLookback = DefaultInterestLookback
	}
	if opts.DefaultFeed == nil {
		opts.DefaultFeed = feed.DefaultConfiguration
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	ranker := feed.NewRanker(opts.SerendipitySeed)
	ranker.FreshnessHalfLife = opts.FreshnessHalfLife

	return &Service{
		store:  store,
		opts:   opts,
		scorer: trending.NewScorerAt(opts.Now),
		ranker: ranker,
	}
}

// Scoring returns the scoring configuration in effect.
func (s *Service) Scoring() trending.ScoringConfig {
	return s.opts.Scoring
}

// RefreshOptions select what one refresh computes.
type RefreshOptions struct {
	// Category limits the refresh to one category. Empty means all.
	Category string
	// PerCategory ranks topics within each category instead of globally.
	PerCategory bool
	// DryRun computes topics without writing them. Pruned then reports what
	// retention would remove.
	DryRun bool
}

// RefreshResult summarizes one trending refresh.
type RefreshResult struct {
	WindowStart time.Time
	WindowEnd   time.Time
	Samples     int
	Aggregates  int
	Topics      []trending.TrendingTopic
	Pruned      int64
	// Superseded counts stored topics that fell out of this refresh's list.
	Superseded  int64
}

// RefreshTrending recomputes trending topics over the configured window and
// stores them. Rows older than the retention period are deleted, then any
// stored topic in the refreshed scope that this run did not score is
// removed, so readers never see a topic that has dropped off the list.
func (s *Service) RefreshTrending(ctx context.Context, opts RefreshOptions) (result *RefreshResult, err error) {
	start := time.Now()
	metrics.RefreshRuns.Inc()
	defer func() {
		metrics.ObserveRefreshDuration(start)
		if err != nil {
			metrics.RefreshErrors.Inc()
		}
	}()

	cfg := s.opts.Scoring
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := s.opts.Now()
	windowStart := now.Add(-time.Duration(cfg.TimeWindowHours) * time.Hour)

	samples, err := s.store.FetchInteractionSamples(ctx, windowStart, now, opts.Category)
	if err != nil {
		return nil, fmt.Errorf("fetching interaction samples: %w", err)
	}

	aggs := engagement.Aggregate(samples, windowStart, now)
	ages := engagement.AgeHours(aggs, windowStart, now)

	var topics []trending.TrendingTopic
	if opts.PerCategory {
		topics, err = s.scorer.ScoreByCategory(aggs, cfg, ages, s.opts.MinScore, s.opts.TopicsPerCategory)
	} else {
		topics, err = s.scorer.Score(aggs, cfg, ages, s.opts.MinScore)
	}
	if err != nil {
		return nil, err
	}

	result = &RefreshResult{
		WindowStart: windowStart,
		WindowEnd:   now,
		Samples:     len(samples),
		Aggregates:  len(aggs),
		Topics:      topics,
	}
	if opts.DryRun {
		stored, err := s.store.GetTrendingTopics(ctx, "", 0, 0)
		if err != nil {
			return nil, fmt.Errorf("reading trending topics: %w", err)
		}
		_, removed := trending.PruneOlderThan(stored, s.opts.RetentionHours, now)
		result.Pruned = int64(removed)
		return result, nil
	}

	if err := s.store.UpsertTrendingTopics(ctx, topics); err != nil {
		return nil, fmt.Errorf("storing trending topics: %w", err)
	}
	metrics.TrendingTopics.Set(float64(len(topics)))

	pruned, err := s.Prune(ctx, s.opts.RetentionHours)
	if err != nil {
		return nil, err
	}
	result.Pruned = pruned

	superseded, err := s.store.DeleteTrendingTopicsNotUpdatedSince(ctx, opts.Category, now)
	if err != nil {
		return nil, fmt.Errorf("removing superseded trending topics: %w", err)
	}
	result.Superseded = superseded
	return result, nil
}

// Prune deletes stored topics last updated more than maxAgeHours ago.
func (s *Service) Prune(ctx context.Context, maxAgeHours float64) (int64, error) {
	if maxAgeHours <= 0 {
		return 0, fmt.Errorf("%w: max age must be positive, got %g hours", ErrInvalidArgument, maxAgeHours)
	}
	cutoff := s.opts.Now().Add(-time.Duration(maxAgeHours * float64(time.Hour)))
	n, err := s.store.DeleteTrendingTopicsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning trending topics: %w", err)
	}
	return n, nil
}

// Trending returns up to count stored topics scoring at least minScore.
// count <= 0 means the configured MaxTrendingTopics.
func (s *Service) Trending(ctx context.Context, category string, minScore float64, count int) ([]trending.TrendingTopic, error) {
	if minScore < 0 {
		return nil, fmt.Errorf("%w: min score must be non-negative", ErrInvalidArgument)
	}
	if count <= 0 {
		count = s.opts.Scoring.MaxTrendingTopics
	}
	topics, err := s.store.GetTrendingTopics(ctx, category, minScore, count)
	if err != nil {
		return nil, fmt.Errorf("reading trending topics: %w", err)
	}
	if topics == nil {
		topics = []trending.TrendingTopic{}
	}
	return topics, nil
}

// RelatedArticles returns articles about a trending topic.
func (s *Service) RelatedArticles(ctx context.Context, topic, category string, limit int) ([]feed.Candidate, error) {
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = 10
	}
	articles, err := s.store.GetRelatedArticles(ctx, topic, category, limit)
	if err != nil {
		return nil, fmt.Errorf("reading related articles: %w", err)
	}
	if articles == nil {
		articles = []feed.Candidate{}
	}
	return articles, nil
}
