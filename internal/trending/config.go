package trending

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is returned when scoring parameters are out of range.
var ErrInvalidConfig = errors.New("invalid scoring config")

const (
	DefaultLikesWeight              = 3.0
	DefaultCommentsWeight           = 5.0
	DefaultViewsWeight              = 1.0
	DefaultTimeDecayFactor          = 0.9
	DefaultTimeWindowHours          = 24
	DefaultMaxTrendingTopics        = 20
	DefaultMinInteractionsThreshold = 5
)

// ScoringConfig holds the parameters of one trending computation.
type ScoringConfig struct {
	LikesWeight              float64 `yaml:"likes_weight"`
	CommentsWeight           float64 `yaml:"comments_weight"`
	ViewsWeight              float64 `yaml:"views_weight"`
	TimeDecayFactor          float64 `yaml:"time_decay_factor"`
	TimeWindowHours          int     `yaml:"time_window_hours"`
	MaxTrendingTopics        int     `yaml:"max_trending_topics"`
	MinInteractionsThreshold int     `yaml:"min_interactions_threshold"`
}

// DefaultScoringConfig returns the standard weights and limits.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		LikesWeight:              DefaultLikesWeight,
		CommentsWeight:           DefaultCommentsWeight,
		ViewsWeight:              DefaultViewsWeight,
		TimeDecayFactor:          DefaultTimeDecayFactor,
		TimeWindowHours:          DefaultTimeWindowHours,
		MaxTrendingTopics:        DefaultMaxTrendingTopics,
		MinInteractionsThreshold: DefaultMinInteractionsThreshold,
	}
}

// Validate checks that every parameter is in range.
func (c ScoringConfig) Validate() error {
	if !validWeight(c.LikesWeight) || !validWeight(c.CommentsWeight) || !validWeight(c.ViewsWeight) {
		return fmt.Errorf("%w: weights must be finite and non-negative (likes=%g comments=%g views=%g)",
			ErrInvalidConfig, c.LikesWeight, c.CommentsWeight, c.ViewsWeight)
	}
	if math.IsNaN(c.TimeDecayFactor) || c.TimeDecayFactor <= 0 || c.TimeDecayFactor > 1 {
		return fmt.Errorf("%w: time decay factor must be in (0,1], got %g", ErrInvalidConfig, c.TimeDecayFactor)
	}
	if c.TimeWindowHours <= 0 {
		return fmt.Errorf("%w: time window must be positive, got %d hours", ErrInvalidConfig, c.TimeWindowHours)
	}
	if c.MaxTrendingTopics <= 0 {
		return fmt.Errorf("%w: max trending topics must be positive, got %d", ErrInvalidConfig, c.MaxTrendingTopics)
	}
	if c.MinInteractionsThreshold < 0 {
		return fmt.Errorf("%w: min interactions threshold must be non-negative, got %d", ErrInvalidConfig, c.MinInteractionsThreshold)
	}
	return nil
}

func validWeight(w float64) bool {
	return !math.IsNaN(w) && !math.IsInf(w, 0) && w >= 0
}
