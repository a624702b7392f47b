package database

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/TobiSchelling/pulsefeed/internal/feed"
)

// GetFeedConfiguration returns a user's stored feed configuration, or nil if
// the user has none yet.
func (db *DB) GetFeedConfiguration(ctx context.Context, userID string) (*feed.Configuration, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT user_id, personalization_weight, freshness_weight, popularity_weight,
			serendipity_weight, max_articles, preferred_categories, excluded_categories
		FROM feed_configurations WHERE user_id = ?`, userID,
	)

	var c feed.Configuration
	var preferred, excluded *string
	if err := row.Scan(&c.UserID, &c.PersonalizationWeight, &c.FreshnessWeight, &c.PopularityWeight,
		&c.SerendipityWeight, &c.MaxArticlesPerFeed, &preferred, &excluded); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.PreferredCategories = decodeList(preferred)
	c.ExcludedCategories = decodeList(excluded)
	return &c, nil
}

// SaveFeedConfiguration inserts or replaces a user's feed configuration.
func (db *DB) SaveFeedConfiguration(ctx context.Context, c feed.Configuration) error {
	preferred, err := encodeList(c.PreferredCategories)
	if err != nil {
		return err
	}
	excluded, err := encodeList(c.ExcludedCategories)
	if err != nil {
		return err
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO feed_configurations (user_id, personalization_weight, freshness_weight,
			popularity_weight, serendipity_weight, max_articles, preferred_categories, excluded_categories)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			personalization_weight = excluded.personalization_weight,
			freshness_weight = excluded.freshness_weight,
			popularity_weight = excluded.popularity_weight,
			serendipity_weight = excluded.serendipity_weight,
			max_articles = excluded.max_articles,
			preferred_categories = excluded.preferred_categories,
			excluded_categories = excluded.excluded_categories,
			updated_at = datetime('now')`,
		c.UserID, c.PersonalizationWeight, c.FreshnessWeight, c.PopularityWeight,
		c.SerendipityWeight, c.MaxArticlesPerFeed, preferred, excluded,
	)
	return err
}

func encodeList(items []string) (*string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func decodeList(s *string) []string {
	if s == nil {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(*s), &items); err != nil {
		return nil
	}
	return items
}
