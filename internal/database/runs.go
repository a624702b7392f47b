package database

import (
	"context"
	"database/sql"
	"time"
)

// StartRun records the start of a run.
func (db *DB) StartRun(ctx context.Context, id, kind string, startedAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO run_reports (id, kind, started_at) VALUES (?, ?, ?)`,
		id, kind, toMillis(startedAt),
	)
	return err
}

// FinishRun stores the outcome of a run. runErr may be nil.
func (db *DB) FinishRun(ctx context.Context, id string, finishedAt time.Time, summary string, runErr error) error {
	var errText *string
	if runErr != nil {
		s := runErr.Error()
		errText = &s
	}
	_, err := db.conn.ExecContext(ctx,
		`UPDATE run_reports SET finished_at = ?, summary = ?, error = ? WHERE id = ?`,
		toMillis(finishedAt), summary, errText, id,
	)
	return err
}

// GetLastRun returns the most recent run of a kind, or nil if none exists.
func (db *DB) GetLastRun(ctx context.Context, kind string) (*RunReport, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, kind, started_at, finished_at, COALESCE(summary, ''), error
		FROM run_reports WHERE kind = ? ORDER BY started_at DESC LIMIT 1`, kind,
	)

	var r RunReport
	var started int64
	var finished sql.NullInt64
	if err := row.Scan(&r.ID, &r.Kind, &started, &finished, &r.Summary, &r.Error); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	r.StartedAt = fromMillis(started)
	if finished.Valid {
		t := fromMillis(finished.Int64)
		r.FinishedAt = &t
	}
	return &r, nil
}

// GetStats returns aggregate statistics.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM articles", &s.TotalArticles},
		{"SELECT COUNT(*) FROM articles WHERE content IS NOT NULL AND content != ''", &s.FetchedArticles},
		{"SELECT COUNT(DISTINCT category) FROM articles WHERE category != ''", &s.Categories},
		{"SELECT COUNT(*) FROM interactions", &s.Interactions},
		{"SELECT COUNT(*) FROM trending_topics", &s.TrendingTopics},
		{"SELECT COUNT(*) FROM feed_configurations", &s.FeedConfigurations},
		{"SELECT COUNT(*) FROM run_reports", &s.Runs},
	}
	for _, q := range queries {
		if err := db.conn.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return s, nil
}
