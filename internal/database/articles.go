package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/TobiSchelling/pulsefeed/internal/feed"
)

const articleColumns = `id, url, title, source, category, topic, published_at, content, content_fetched, collected_at`

// InsertArticle inserts an article. Returns the ID on success, 0 if the URL already exists.
func (db *DB) InsertArticle(ctx context.Context, a NewArticle) (int64, error) {
	var source, content *string
	if a.Source != "" {
		source = &a.Source
	}
	if a.Content != "" {
		content = &a.Content
	}

	result, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO articles (url, title, source, category, topic, published_at, content)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.URL, a.Title, source, a.Category, a.Topic, nullMillis(a.PublishedAt), content,
	)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil || n == 0 {
		return 0, err
	}
	return result.LastInsertId()
}

// GetArticleByID returns a single article by ID.
func (db *DB) GetArticleByID(ctx context.Context, articleID int64) (*Article, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = ?`, articleID,
	)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetRecentArticles returns the most recently published articles.
func (db *DB) GetRecentArticles(ctx context.Context, limit int) ([]Article, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles
		ORDER BY COALESCE(published_at, 0) DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// GetArticlesNeedingFetch returns articles with empty content that haven't been fetched.
func (db *DB) GetArticlesNeedingFetch(ctx context.Context, limit int) ([]Article, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles
		WHERE (content IS NULL OR content = '') AND content_fetched = 0
		ORDER BY collected_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// UpdateArticleContent updates article content after fetching.
func (db *DB) UpdateArticleContent(ctx context.Context, articleID int64, content string) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE articles SET content = ?, content_fetched = 1 WHERE id = ?",
		content, articleID,
	)
	return err
}

// MarkArticleFetchAttempted marks that we tried to fetch content.
func (db *DB) MarkArticleFetchAttempted(ctx context.Context, articleID int64) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE articles SET content_fetched = 1 WHERE id = ?", articleID,
	)
	return err
}

// GetRelatedArticles returns articles tagged with a topic, or whose title
// mentions it, most engaged first.
func (db *DB) GetRelatedArticles(ctx context.Context, topic, category string, limit int) ([]feed.Candidate, error) {
	query := `SELECT a.id, a.title, a.url, a.category, a.published_at,
			COALESCE(SUM(CASE WHEN i.kind = 'like' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN i.kind = 'view' THEN 1 ELSE 0 END), 0)
		FROM articles a LEFT JOIN interactions i ON i.article_id = a.id
		WHERE (a.topic = ? COLLATE NOCASE OR a.title LIKE ? ESCAPE '\')`
	args := []any{topic, "%" + escapeLike(topic) + "%"}
	if category != "" {
		query += " AND a.category = ?"
		args = append(args, category)
	}
	query += ` GROUP BY a.id
		ORDER BY COUNT(i.id) DESC, COALESCE(a.published_at, 0) DESC, a.id ASC
		LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// FetchFeedCandidates returns articles published since the given time with
// their like and view counts.
func (db *DB) FetchFeedCandidates(ctx context.Context, since time.Time, limit int) ([]feed.Candidate, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT a.id, a.title, a.url, a.category, a.published_at,
			COALESCE(SUM(CASE WHEN i.kind = 'like' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN i.kind = 'view' THEN 1 ELSE 0 END), 0)
		FROM articles a LEFT JOIN interactions i ON i.article_id = a.id
		WHERE a.published_at >= ?
		GROUP BY a.id
		ORDER BY a.published_at DESC
		LIMIT ?`, toMillis(since), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows)
}

func scanCandidates(rows *sql.Rows) ([]feed.Candidate, error) {
	var out []feed.Candidate
	for rows.Next() {
		var c feed.Candidate
		var published sql.NullInt64
		if err := rows.Scan(&c.ArticleID, &c.Title, &c.URL, &c.Category, &published,
			&c.LikesCount, &c.ViewsCount); err != nil {
			return nil, err
		}
		if published.Valid {
			c.PublishedAt = fromMillis(published.Int64)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInto(s scanner) (*Article, error) {
	var a Article
	var fetched int
	var published sql.NullInt64
	if err := s.Scan(&a.ID, &a.URL, &a.Title, &a.Source, &a.Category, &a.Topic,
		&published, &a.Content, &fetched, &a.CollectedAt); err != nil {
		return nil, err
	}
	a.ContentFetched = fetched != 0
	if published.Valid {
		t := fromMillis(published.Int64)
		a.PublishedAt = &t
	}
	return &a, nil
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	var articles []Article
	for rows.Next() {
		a, err := scanInto(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

func scanArticle(row *sql.Row) (*Article, error) {
	return scanInto(row)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
