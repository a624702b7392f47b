package engagement

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind is the type of a single engagement event.
type Kind string

const (
	Like    Kind = "like"
	Comment Kind = "comment"
	View    Kind = "view"
)

// ParseKind converts user input into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Like, Comment, View:
		return k, nil
	}
	return "", fmt.Errorf("unknown interaction kind %q", s)
}

// Sample is one observed engagement event.
type Sample struct {
	SubjectID string
	Topic     string
	Category  string
	Kind      Kind
	Timestamp time.Time
}

// TopicAggregate holds per-(topic, category) counts within one analysis window.
type TopicAggregate struct {
	Topic           string
	Category        string
	Likes           int
	Comments        int
	Views           int
	LastInteraction time.Time
}

// TotalInteractions returns likes + comments + views.
func (a TopicAggregate) TotalInteractions() int {
	return a.Likes + a.Comments + a.Views
}

type groupKey struct {
	topic    string
	category string
}

// Aggregate counts samples inside [windowStart, windowEnd] per (topic, category).
// Both window bounds are inclusive. A sample without a topic is grouped by its subject ID.
func Aggregate(samples []Sample, windowStart, windowEnd time.Time) []TopicAggregate {
	groups := make(map[groupKey]*TopicAggregate)
	for _, s := range samples {
		if s.Timestamp.Before(windowStart) || s.Timestamp.After(windowEnd) {
			continue
		}
		if s.Kind != Like && s.Kind != Comment && s.Kind != View {
			continue
		}

		topic := s.Topic
		if topic == "" {
			topic = s.SubjectID
		}
		key := groupKey{topic: topic, category: s.Category}
		agg, ok := groups[key]
		if !ok {
			agg = &TopicAggregate{Topic: topic, Category: s.Category}
			groups[key] = agg
		}

		switch s.Kind {
		case Like:
			agg.Likes++
		case Comment:
			agg.Comments++
		case View:
			agg.Views++
		}
		if s.Timestamp.After(agg.LastInteraction) {
			agg.LastInteraction = s.Timestamp
		}
	}

	out := make([]TopicAggregate, 0, len(groups))
	for _, agg := range groups {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Topic < out[j].Topic
	})
	return out
}

// AgeHours returns the decay age in hours for each topic, measured from the
// topic's most recent interaction, or from windowStart when that is unknown.
// A topic that appears under several categories gets its smallest age.
func AgeHours(aggregates []TopicAggregate, windowStart, now time.Time) map[string]float64 {
	ages := make(map[string]float64, len(aggregates))
	for _, a := range aggregates {
		ref := a.LastInteraction
		if ref.IsZero() {
			ref = windowStart
		}
		age := now.Sub(ref).Hours()
		if age < 0 {
			age = 0
		}
		if prev, ok := ages[a.Topic]; ok && prev <= age {
			continue
		}
		ages[a.Topic] = age
	}
	return ages
}

// Interests derives a per-category interest score in [0,1] from one user's
// interaction history: each category's count divided by the largest count.
func Interests(samples []Sample) map[string]float64 {
	counts := make(map[string]int)
	maxCount := 0
	for _, s := range samples {
		if s.Category == "" {
			continue
		}
		counts[s.Category]++
		if counts[s.Category] > maxCount {
			maxCount = counts[s.Category]
		}
	}

	interests := make(map[string]float64, len(counts))
	for cat, n := range counts {
		interests[cat] = float64(n) / float64(maxCount)
	}
	return interests
}
