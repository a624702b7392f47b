package feed

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is returned when a feed configuration cannot be used for ranking.
var ErrInvalidConfig = errors.New("invalid feed configuration")

const (
	DefaultPersonalizationWeight = 0.4
	DefaultFreshnessWeight       = 0.3
	DefaultPopularityWeight      = 0.2
	DefaultSerendipityWeight     = 0.1
	DefaultMaxArticlesPerFeed    = 20
)

// Configuration is a user's feed ranking preferences.
type Configuration struct {
	UserID                string   `json:"userId"`
	PersonalizationWeight float64  `json:"personalizationWeight"`
	FreshnessWeight       float64  `json:"freshnessWeight"`
	PopularityWeight      float64  `json:"popularityWeight"`
	SerendipityWeight     float64  `json:"serendipityWeight"`
	MaxArticlesPerFeed    int      `json:"maxArticlesPerFeed"`
	PreferredCategories   []string `json:"preferredCategories"`
	ExcludedCategories    []string `json:"excludedCategories"`
}

// DefaultConfiguration returns the configuration a user gets on first access.
func DefaultConfiguration(userID string) Configuration {
	return Configuration{
		UserID:                userID,
		PersonalizationWeight: DefaultPersonalizationWeight,
		FreshnessWeight:       DefaultFreshnessWeight,
		PopularityWeight:      DefaultPopularityWeight,
		SerendipityWeight:     DefaultSerendipityWeight,
		MaxArticlesPerFeed:    DefaultMaxArticlesPerFeed,
	}
}

// Validate rejects negative or non-finite weights and a non-positive article cap.
// Weights need not sum to one; Rank normalizes them.
func (c Configuration) Validate() error {
	for _, w := range []float64{c.PersonalizationWeight, c.FreshnessWeight, c.PopularityWeight, c.SerendipityWeight} {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("%w: weights must be finite and non-negative", ErrInvalidConfig)
		}
	}
	if c.MaxArticlesPerFeed <= 0 {
		return fmt.Errorf("%w: max articles per feed must be positive, got %d", ErrInvalidConfig, c.MaxArticlesPerFeed)
	}
	return nil
}

type weights struct {
	personalization, freshness, popularity, serendipity float64
}

// normalized divides each weight by their sum. All-zero weights stay zero.
func (c Configuration) normalized() weights {
	sum := c.PersonalizationWeight + c.FreshnessWeight + c.PopularityWeight + c.SerendipityWeight
	if sum == 0 {
		return weights{}
	}
	return weights{
		personalization: c.PersonalizationWeight / sum,
		freshness:       c.FreshnessWeight / sum,
		popularity:      c.PopularityWeight / sum,
		serendipity:     c.SerendipityWeight / sum,
	}
}
