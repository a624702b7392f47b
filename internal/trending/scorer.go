package trending

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/TobiSchelling/pulsefeed/internal/engagement"
)

// TrendingTopic is a scored (topic, category) pair.
type TrendingTopic struct {
	Topic             string    `json:"topic"`
	Category          string    `json:"category"`
	TrendScore        float64   `json:"trendScore"`
	TotalInteractions int       `json:"totalInteractions"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

// Scorer turns engagement aggregates into a ranked trending list.
type Scorer struct {
	now func() time.Time
}

// NewScorer creates a scorer stamping results with the current UTC time.
func NewScorer() *Scorer {
	return &Scorer{now: func() time.Time { return time.Now().UTC() }}
}

// NewScorerAt creates a scorer with a fixed clock.
func NewScorerAt(now func() time.Time) *Scorer {
	return &Scorer{now: now}
}

// Score computes the global trending list. ageHours maps a topic to the age
// used for time decay; a missing entry means age zero.
func (s *Scorer) Score(aggregates []engagement.TopicAggregate, cfg ScoringConfig, ageHours map[string]float64, minScore float64) ([]TrendingTopic, error) {
	if err := checkInputs(cfg, minScore); err != nil {
		return nil, err
	}

	topics := s.scoreAll(aggregates, cfg, ageHours, minScore)
	sortTopics(topics)
	if len(topics) > cfg.MaxTrendingTopics {
		topics = topics[:cfg.MaxTrendingTopics]
	}
	return topics, nil
}

// ScoreByCategory ranks topics within each category and keeps the top
// topicsPerCategory of each. Categories are concatenated in alphabetical order.
func (s *Scorer) ScoreByCategory(aggregates []engagement.TopicAggregate, cfg ScoringConfig, ageHours map[string]float64, minScore float64, topicsPerCategory int) ([]TrendingTopic, error) {
	if err := checkInputs(cfg, minScore); err != nil {
		return nil, err
	}
	if topicsPerCategory <= 0 {
		return nil, fmt.Errorf("%w: topics per category must be positive, got %d", ErrInvalidConfig, topicsPerCategory)
	}

	partitions := make(map[string][]TrendingTopic)
	for _, t := range s.scoreAll(aggregates, cfg, ageHours, minScore) {
		partitions[t.Category] = append(partitions[t.Category], t)
	}

	categories := make([]string, 0, len(partitions))
	for cat := range partitions {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	out := make([]TrendingTopic, 0)
	for _, cat := range categories {
		part := partitions[cat]
		sortTopics(part)
		if len(part) > topicsPerCategory {
			part = part[:topicsPerCategory]
		}
		out = append(out, part...)
	}
	return out, nil
}

// PruneOlderThan drops topics whose LastUpdated is more than maxAgeHours
// before now. Retained topics keep their order. The database's
// DeleteTrendingTopicsOlderThan applies the same boundary to stored rows.
func PruneOlderThan(topics []TrendingTopic, maxAgeHours float64, now time.Time) ([]TrendingTopic, int) {
	cutoff := now.Add(-time.Duration(maxAgeHours * float64(time.Hour)))
	kept := make([]TrendingTopic, 0, len(topics))
	removed := 0
	for _, t := range topics {
		if t.LastUpdated.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	return kept, removed
}

// RawScore is the undecayed weighted engagement sum of an aggregate.
func RawScore(a engagement.TopicAggregate, cfg ScoringConfig) float64 {
	return float64(clamp(a.Likes))*cfg.LikesWeight +
		float64(clamp(a.Comments))*cfg.CommentsWeight +
		float64(clamp(a.Views))*cfg.ViewsWeight
}

// DecayFactor returns factor^ageHours, treating negative ages as zero.
func DecayFactor(factor, ageHours float64) float64 {
	if ageHours < 0 {
		ageHours = 0
	}
	return math.Pow(factor, ageHours)
}

func checkInputs(cfg ScoringConfig, minScore float64) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if minScore < 0 || math.IsNaN(minScore) {
		return fmt.Errorf("%w: min score must be non-negative, got %g", ErrInvalidConfig, minScore)
	}
	return nil
}

func (s *Scorer) scoreAll(aggregates []engagement.TopicAggregate, cfg ScoringConfig, ageHours map[string]float64, minScore float64) []TrendingTopic {
	stamp := s.now()
	topics := make([]TrendingTopic, 0, len(aggregates))
	for _, a := range aggregates {
		total := clamp(a.Likes) + clamp(a.Comments) + clamp(a.Views)
		if total < cfg.MinInteractionsThreshold {
			continue
		}
		score := RawScore(a, cfg) * DecayFactor(cfg.TimeDecayFactor, ageHours[a.Topic])
		if score < minScore {
			continue
		}
		topics = append(topics, TrendingTopic{
			Topic:             a.Topic,
			Category:          a.Category,
			TrendScore:        score,
			TotalInteractions: total,
			LastUpdated:       stamp,
		})
	}
	return topics
}

func sortTopics(topics []TrendingTopic) {
	sort.SliceStable(topics, func(i, j int) bool {
		a, b := topics[i], topics[j]
		if a.TrendScore != b.TrendScore {
			return a.TrendScore > b.TrendScore
		}
		if a.TotalInteractions != b.TotalInteractions {
			return a.TotalInteractions > b.TotalInteractions
		}
		if a.Topic != b.Topic {
			return a.Topic < b.Topic
		}
		return a.Category < b.Category
	})
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
