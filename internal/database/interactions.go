package database

import (
	"context"
	"strconv"
	"time"

	"github.com/TobiSchelling/pulsefeed/internal/engagement"
)

// InsertInteraction records a like, comment, or view on an article.
func (db *DB) InsertInteraction(ctx context.Context, userID string, articleID int64, kind engagement.Kind, at time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO interactions (user_id, article_id, kind, occurred_at) VALUES (?, ?, ?, ?)`,
		userID, articleID, string(kind), toMillis(at),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// FetchInteractionSamples returns engagement samples in [start, end], joined
// with their article's topic and category. An empty category means all.
func (db *DB) FetchInteractionSamples(ctx context.Context, start, end time.Time, category string) ([]engagement.Sample, error) {
	query := `SELECT i.article_id, a.topic, a.category, i.kind, i.occurred_at
		FROM interactions i JOIN articles a ON a.id = i.article_id
		WHERE i.occurred_at >= ? AND i.occurred_at <= ?`
	args := []any{toMillis(start), toMillis(end)}
	if category != "" {
		query += " AND a.category = ?"
		args = append(args, category)
	}
	query += " ORDER BY i.occurred_at"
	return db.querySamples(ctx, query, args...)
}

// FetchUserSamples returns one user's interactions since the given time.
func (db *DB) FetchUserSamples(ctx context.Context, userID string, since time.Time) ([]engagement.Sample, error) {
	return db.querySamples(ctx,
		`SELECT i.article_id, a.topic, a.category, i.kind, i.occurred_at
		FROM interactions i JOIN articles a ON a.id = i.article_id
		WHERE i.user_id = ? AND i.occurred_at >= ?
		ORDER BY i.occurred_at`, userID, toMillis(since),
	)
}

func (db *DB) querySamples(ctx context.Context, query string, args ...any) ([]engagement.Sample, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []engagement.Sample
	for rows.Next() {
		var articleID, occurred int64
		var s engagement.Sample
		var kind string
		if err := rows.Scan(&articleID, &s.Topic, &s.Category, &kind, &occurred); err != nil {
			return nil, err
		}
		s.SubjectID = strconv.FormatInt(articleID, 10)
		s.Kind = engagement.Kind(kind)
		s.Timestamp = fromMillis(occurred)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
