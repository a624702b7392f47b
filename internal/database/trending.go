package database

import (
	"context"
	"time"

	"github.com/TobiSchelling/pulsefeed/internal/trending"
)

// UpsertTrendingTopics stores topics keyed by (topic, category), replacing
// previous scores for the same key.
func (db *DB) UpsertTrendingTopics(ctx context.Context, topics []trending.TrendingTopic) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trending_topics (topic, category, trend_score, total_interactions, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(topic, category) DO UPDATE SET
			trend_score = excluded.trend_score,
			total_interactions = excluded.total_interactions,
			last_updated = excluded.last_updated`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range topics {
		if _, err := stmt.ExecContext(ctx, t.Topic, t.Category, t.TrendScore, t.TotalInteractions, toMillis(t.LastUpdated)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetTrendingTopics returns stored topics ordered by score. An empty category
// means all categories and a non-positive limit returns every row.
func (db *DB) GetTrendingTopics(ctx context.Context, category string, minScore float64, limit int) ([]trending.TrendingTopic, error) {
	query := `SELECT topic, category, trend_score, total_interactions, last_updated
		FROM trending_topics WHERE trend_score >= ?`
	args := []any{minScore}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY trend_score DESC, total_interactions DESC, topic ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []trending.TrendingTopic
	for rows.Next() {
		var t trending.TrendingTopic
		var updated int64
		if err := rows.Scan(&t.Topic, &t.Category, &t.TrendScore, &t.TotalInteractions, &updated); err != nil {
			return nil, err
		}
		t.LastUpdated = fromMillis(updated)
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// DeleteTrendingTopicsOlderThan removes topics last updated before cutoff.
func (db *DB) DeleteTrendingTopicsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM trending_topics WHERE last_updated < ?`, toMillis(cutoff),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteTrendingTopicsNotUpdatedSince removes topics in category (all
// categories when empty) whose last update is before since.
func (db *DB) DeleteTrendingTopicsNotUpdatedSince(ctx context.Context, category string, since time.Time) (int64, error) {
	query := `DELETE FROM trending_topics WHERE last_updated < ?`
	args := []any{toMillis(since)}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
