package database

import "time"

// Article represents a collected article.
type Article struct {
	ID             int64
	URL            string
	Title          string
	Source         *string
	Category       string
	Topic          string
	PublishedAt    *time.Time
	Content        *string
	ContentFetched bool
	CollectedAt    *string
}

// NewArticle holds the fields needed to insert an article.
type NewArticle struct {
	URL         string
	Title       string
	Source      string
	Category    string
	Topic       string
	PublishedAt *time.Time
	Content     string
}

// Interaction is a stored like, comment, or view.
type Interaction struct {
	ID         int64
	UserID     string
	ArticleID  int64
	Kind       string
	OccurredAt time.Time
}

// RunReport holds metadata about a pipeline or refresh run.
type RunReport struct {
	ID         string
	Kind       string
	StartedAt  time.Time
	FinishedAt *time.Time
	Summary    string
	Error      *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalArticles      int
	FetchedArticles    int
	Categories         int
	Interactions       int
	TrendingTopics     int
	FeedConfigurations int
	Runs               int
}
