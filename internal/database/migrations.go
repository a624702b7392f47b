package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "articles, interactions, trending topics, feed configurations",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS articles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT UNIQUE NOT NULL,
    title TEXT NOT NULL,
    source TEXT,
    category TEXT NOT NULL DEFAULT '',
    topic TEXT NOT NULL DEFAULT '',
    published_at INTEGER,
    content TEXT,
    content_fetched INTEGER DEFAULT 0,
    collected_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS interactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    article_id INTEGER NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    kind TEXT NOT NULL CHECK(kind IN ('like', 'comment', 'view')),
    occurred_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trending_topics (
    topic TEXT NOT NULL,
    category TEXT NOT NULL,
    trend_score REAL NOT NULL,
    total_interactions INTEGER NOT NULL,
    last_updated INTEGER NOT NULL,
    PRIMARY KEY (topic, category)
);

CREATE TABLE IF NOT EXISTS feed_configurations (
    user_id TEXT PRIMARY KEY,
    personalization_weight REAL NOT NULL,
    freshness_weight REAL NOT NULL,
    popularity_weight REAL NOT NULL,
    serendipity_weight REAL NOT NULL,
    max_articles INTEGER NOT NULL,
    preferred_categories TEXT,
    excluded_categories TEXT,
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_articles_category ON articles(category);
CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at);
CREATE INDEX IF NOT EXISTS idx_interactions_time ON interactions(occurred_at);
CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions(user_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_interactions_article ON interactions(article_id);
CREATE INDEX IF NOT EXISTS idx_trending_score ON trending_topics(trend_score DESC);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "run reports",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS run_reports (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    finished_at INTEGER,
    summary TEXT,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_run_reports_started ON run_reports(started_at DESC);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
