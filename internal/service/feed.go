package service

import (
	"context"
	"fmt"
	"time"

	"github.com/TobiSchelling/pulsefeed/internal/engagement"
	"github.com/TobiSchelling/pulsefeed/internal/feed"
	"github.com/TobiSchelling/pulsefeed/internal/metrics"
)

// FeedConfiguration returns a user's configuration, creating and storing the
// defaults on first access.
func (s *Service) FeedConfiguration(ctx context.Context, userID string) (feed.Configuration, error) {
	if userID == "" {
		return feed.Configuration{}, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	cfg, err := s.store.GetFeedConfiguration(ctx, userID)
	if err != nil {
		return feed.Configuration{}, fmt.Errorf("reading feed configuration: %w", err)
	}
	if cfg != nil {
		return *cfg, nil
	}

	def := s.opts.DefaultFeed(userID)
	def.UserID = userID
	if err := s.store.SaveFeedConfiguration(ctx, def); err != nil {
		return feed.Configuration{}, fmt.Errorf("storing default feed configuration: %w", err)
	}
	return def, nil
}

// UpdateFeedConfiguration validates and stores a user's configuration.
func (s *Service) UpdateFeedConfiguration(ctx context.Context, cfg feed.Configuration) error {
	if cfg.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.store.SaveFeedConfiguration(ctx, cfg); err != nil {
		return fmt.Errorf("storing feed configuration: %w", err)
	}
	return nil
}

// Feed ranks recent articles for a user. excludeCategories are dropped in
// addition to the user's configured exclusions.
func (s *Service) Feed(ctx context.Context, userID string, excludeCategories []string) ([]feed.Scored, error) {
	start := time.Now()
	defer metrics.ObserveFeedRankDuration(start)

	cfg, err := s.FeedConfiguration(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.opts.Now()
	history, err := s.store.FetchUserSamples(ctx, userID, now.Add(-s.opts.InterestLookback))
	if err != nil {
		return nil, fmt.Errorf("reading interaction history: %w", err)
	}

	candidates, err := s.store.FetchFeedCandidates(ctx, now.Add(-s.opts.CandidateWindow), s.opts.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("reading feed candidates: %w", err)
	}

	return s.ranker.Rank(candidates, cfg, now, excludeCategories, engagement.Interests(history))
}

// RecordInteraction stores one like, comment, or view.
func (s *Service) RecordInteraction(ctx context.Context, userID string, articleID int64, kind string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	k, err := engagement.ParseKind(kind)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	article, err := s.store.GetArticleByID(ctx, articleID)
	if err != nil {
		return fmt.Errorf("reading article %d: %w", articleID, err)
	}
	if article == nil {
		return fmt.Errorf("article %d: %w", articleID, ErrNotFound)
	}

	if _, err := s.store.InsertInteraction(ctx, userID, articleID, k, s.opts.Now()); err != nil {
		return fmt.Errorf("storing interaction: %w", err)
	}
	metrics.IncInteraction(string(k))
	return nil
}
