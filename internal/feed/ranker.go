package feed

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"time"
)

// DefaultFreshnessHalfLife is the age at which freshness drops to 0.5.
const DefaultFreshnessHalfLife = 24 * time.Hour

// Candidate is an article eligible for a user's feed.
type Candidate struct {
	ArticleID   int64     `json:"articleId"`
	Title       string    `json:"title"`
	URL         string    `json:"url,omitempty"`
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"publishTimestamp"`
	LikesCount  int       `json:"likesCount"`
	ViewsCount  int       `json:"viewsCount"`
}

// Scored is a ranked candidate with its component scores.
type Scored struct {
	Candidate
	Freshness       float64 `json:"freshness"`
	Popularity      float64 `json:"popularity"`
	Personalization float64 `json:"personalization"`
	Serendipity     float64 `json:"serendipity"`
	Composite       float64 `json:"compositeScore"`
}

// Serendipity returns an exploration score in [0,1) for an article.
type Serendipity func(articleID int64) float64

// SeededSerendipity returns a deterministic Serendipity: the same seed and
// article ID always give the same value, regardless of candidate order.
func SeededSerendipity(seed uint64) Serendipity {
	return func(articleID int64) float64 {
		h := fnv.New64a()
		h.Write([]byte(strconv.FormatInt(articleID, 10)))
		return rand.New(rand.NewPCG(seed, h.Sum64())).Float64()
	}
}

// Ranker orders feed candidates for a user.
type Ranker struct {
	FreshnessHalfLife time.Duration
	Serendipity       Serendipity
}

// NewRanker creates a ranker with the default half-life and a seeded serendipity term.
func NewRanker(seed uint64) *Ranker {
	return &Ranker{
		FreshnessHalfLife: DefaultFreshnessHalfLife,
		Serendipity:       SeededSerendipity(seed),
	}
}

// Rank scores candidates and returns at most cfg.MaxArticlesPerFeed of them,
// best first. Candidates in cfg.ExcludedCategories or excludeCategories never
// appear. interests maps a category to the user's interest in [0,1].
func (r *Ranker) Rank(candidates []Candidate, cfg Configuration, now time.Time, excludeCategories []string, interests map[string]float64) ([]Scored, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	excluded := toSet(cfg.ExcludedCategories, excludeCategories)
	preferred := toSet(cfg.PreferredCategories)

	eligible := make([]Candidate, 0, len(candidates))
	maxPop := 0.0
	for _, c := range candidates {
		if excluded[c.Category] {
			continue
		}
		eligible = append(eligible, c)
		if p := rawPopularity(c); p > maxPop {
			maxPop = p
		}
	}

	w := cfg.normalized()
	scored := make([]Scored, 0, len(eligible))
	for _, c := range eligible {
		s := Scored{
			Candidate:       c,
			Freshness:       r.freshness(now.Sub(c.PublishedAt)),
			Personalization: personalization(c.Category, interests, preferred),
			Serendipity:     r.serendipity(c.ArticleID),
		}
		if maxPop > 0 {
			s.Popularity = rawPopularity(c) / maxPop
		}
		s.Composite = w.personalization*s.Personalization +
			w.freshness*s.Freshness +
			w.popularity*s.Popularity +
			w.serendipity*s.Serendipity
		scored = append(scored, s)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Composite != b.Composite {
			return a.Composite > b.Composite
		}
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.ArticleID < b.ArticleID
	})

	if len(scored) > cfg.MaxArticlesPerFeed {
		scored = scored[:cfg.MaxArticlesPerFeed]
	}
	return scored, nil
}

// freshness halves every half-life. Future timestamps count as brand new.
func (r *Ranker) freshness(age time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	halfLife := r.FreshnessHalfLife
	if halfLife <= 0 {
		halfLife = DefaultFreshnessHalfLife
	}
	return math.Pow(0.5, age.Hours()/halfLife.Hours())
}

func (r *Ranker) serendipity(articleID int64) float64 {
	if r.Serendipity == nil {
		return 0
	}
	v := r.Serendipity(articleID)
	return math.Max(0, math.Min(1, v))
}

func rawPopularity(c Candidate) float64 {
	likes := math.Max(0, float64(c.LikesCount))
	views := math.Max(0, float64(c.ViewsCount))
	return math.Log1p(likes*2 + views)
}

func personalization(category string, interests map[string]float64, preferred map[string]bool) float64 {
	if preferred[category] {
		return 1
	}
	v := interests[category]
	return math.Max(0, math.Min(1, v))
}

func toSet(lists ...[]string) map[string]bool {
	set := make(map[string]bool)
	for _, l := range lists {
		for _, s := range l {
			set[s] = true
		}
	}
	return set
}
