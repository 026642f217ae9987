// Package db is the PostgreSQL storage collaborator for the scoring
// engines. It satisfies the consumer interfaces declared next to each
// engine in the root package.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/gentimes/pulse/models"
)

// DB wraps the database connection and provides data access methods.
type DB struct {
	conn *sql.DB
	sb   sq.StatementBuilderType
}

// Config contains database configuration.
type Config struct {
	DSN string // PostgreSQL connection string
}

// New opens a connection, configures the pool and runs pending migrations.
func New(config Config) (*DB, error) {
	conn, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return Wrap(conn), nil
}

// Wrap builds a DB around an already-open connection. Used by New and
// by integration tests that manage the connection themselves.
func Wrap(conn *sql.DB) *DB {
	return &DB{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DB returns the underlying connection for pool-stats collection.
func (db *DB) DB() *sql.DB {
	return db.conn
}

var articleColumns = []string{
	"id", "title", "slug", "excerpt", "body",
	"seo_title", "seo_description", "focus_keyphrase", "tags",
	"published_at", "is_manually_featured",
	"view_count", "views_last_24h", "views_last_7d",
	"trending_score", "is_trending",
	"seo_score", "readability_score", "ai_readiness_score",
	"created_at", "updated_at",
}

// CreateArticle inserts an article and its ordered category links.
func (db *DB) CreateArticle(ctx context.Context, article *models.Article) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO articles (
			id, title, slug, excerpt, body,
			seo_title, seo_description, focus_keyphrase, tags,
			published_at, is_manually_featured,
			view_count, views_last_24h, views_last_7d,
			trending_score, is_trending,
			seo_score, readability_score, ai_readiness_score,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, NOW(), NOW())
	`
	_, err = tx.ExecContext(ctx, query,
		article.ID, article.Title, article.Slug, article.Excerpt, article.Body,
		article.SEOTitle, article.SEODescription, article.FocusKeyphrase, pq.StringArray(article.Tags),
		article.PublishedAt, article.IsManuallyFeatured,
		article.Metrics.ViewCount, article.Metrics.ViewsLast24h, article.Metrics.ViewsLast7d,
		article.Metrics.TrendingScore, article.Metrics.IsTrending,
		article.Metrics.SEOScore, article.Metrics.ReadabilityScore, article.Metrics.AIReadinessScore,
	)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}

	for position, category := range article.Categories {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO article_categories (article_id, category_id, position) VALUES ($1, $2, $3)",
			article.ID, category.ID, position,
		)
		if err != nil {
			return fmt.Errorf("link category %s: %w", category.ID, err)
		}
	}

	return tx.Commit()
}

// CreateCategory inserts a category.
func (db *DB) CreateCategory(ctx context.Context, category *models.Category) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO categories (id, name, slug) VALUES ($1, $2, $3)",
		category.ID, category.Name, category.Slug,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrConflict
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// GetArticle retrieves an article with its categories.
// Returns models.ErrNotFound when absent.
func (db *DB) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	query := db.sb.Select(articleColumns...).From("articles").Where(sq.Eq{"id": id})
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	article, err := scanArticle(db.conn.QueryRowContext(ctx, sqlStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query article: %w", err)
	}

	if err := db.loadCategories(ctx, article); err != nil {
		return nil, err
	}
	return article, nil
}

// PublishedArticles returns every article with a publish timestamp,
// newest first.
func (db *DB) PublishedArticles(ctx context.Context) ([]*models.Article, error) {
	return db.selectArticles(ctx, db.sb.Select(articleColumns...).From("articles").
		Where(sq.NotEq{"published_at": nil}).
		OrderBy("published_at DESC"))
}

// ArticlesPublishedSince returns articles published at or after since,
// newest first.
func (db *DB) ArticlesPublishedSince(ctx context.Context, since time.Time) ([]*models.Article, error) {
	return db.selectArticles(ctx, db.sb.Select(articleColumns...).From("articles").
		Where(sq.GtOrEq{"published_at": since}).
		OrderBy("published_at DESC"))
}

// TrendingArticles returns published articles flagged as trending,
// best score first.
func (db *DB) TrendingArticles(ctx context.Context, limit int) ([]*models.Article, error) {
	return db.selectArticles(ctx, db.sb.Select(articleColumns...).From("articles").
		Where(sq.NotEq{"published_at": nil}).
		Where(sq.Eq{"is_trending": true}).
		OrderBy("trending_score DESC").
		Limit(uint64(limit)))
}

// ArticlesByTrendingScore returns published articles ordered by score
// regardless of the trending flag.
func (db *DB) ArticlesByTrendingScore(ctx context.Context, limit int) ([]*models.Article, error) {
	return db.selectArticles(ctx, db.sb.Select(articleColumns...).From("articles").
		Where(sq.NotEq{"published_at": nil}).
		OrderBy("trending_score DESC").
		Limit(uint64(limit)))
}

// ArticlesBySEOScore returns published articles, worst seoScore first.
func (db *DB) ArticlesBySEOScore(ctx context.Context) ([]*models.Article, error) {
	return db.selectArticles(ctx, db.sb.Select(articleColumns...).From("articles").
		Where(sq.NotEq{"published_at": nil}).
		OrderBy("seo_score ASC"))
}

// ArticlesInCategories returns published articles sharing at least one
// of the given categories, excluding excludeID, newest first.
func (db *DB) ArticlesInCategories(ctx context.Context, categoryIDs []string, excludeID string, limit int) ([]*models.Article, error) {
	if len(categoryIDs) == 0 {
		return []*models.Article{}, nil
	}
	return db.selectArticles(ctx, db.sb.Select(articleColumns...).Distinct().From("articles").
		Join("article_categories ON article_categories.article_id = articles.id").
		Where(sq.Eq{"article_categories.category_id": categoryIDs}).
		Where(sq.NotEq{"id": excludeID}).
		Where(sq.NotEq{"published_at": nil}).
		OrderBy("published_at DESC").
		Limit(uint64(limit)))
}

func (db *DB) selectArticles(ctx context.Context, query sq.SelectBuilder) ([]*models.Article, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var articles []*models.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}

	for _, article := range articles {
		if err := db.loadCategories(ctx, article); err != nil {
			return nil, err
		}
	}
	return articles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*models.Article, error) {
	var (
		article     models.Article
		tags        pq.StringArray
		publishedAt sql.NullTime
	)

	err := row.Scan(
		&article.ID, &article.Title, &article.Slug, &article.Excerpt, &article.Body,
		&article.SEOTitle, &article.SEODescription, &article.FocusKeyphrase, &tags,
		&publishedAt, &article.IsManuallyFeatured,
		&article.Metrics.ViewCount, &article.Metrics.ViewsLast24h, &article.Metrics.ViewsLast7d,
		&article.Metrics.TrendingScore, &article.Metrics.IsTrending,
		&article.Metrics.SEOScore, &article.Metrics.ReadabilityScore, &article.Metrics.AIReadinessScore,
		&article.CreatedAt, &article.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	article.Tags = []string(tags)
	if publishedAt.Valid {
		t := publishedAt.Time
		article.PublishedAt = &t
	}
	return &article, nil
}

func (db *DB) loadCategories(ctx context.Context, article *models.Article) error {
	query := `
		SELECT c.id, c.name, c.slug
		FROM categories c
		JOIN article_categories ac ON ac.category_id = c.id
		WHERE ac.article_id = $1
		ORDER BY ac.position
	`
	rows, err := db.conn.QueryContext(ctx, query, article.ID)
	if err != nil {
		return fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	article.Categories = nil
	for rows.Next() {
		var category models.Category
		if err := rows.Scan(&category.ID, &category.Name, &category.Slug); err != nil {
			return fmt.Errorf("scan category: %w", err)
		}
		article.Categories = append(article.Categories, category)
	}
	return rows.Err()
}

// IncrementViewCount bumps the lifetime view counter by one.
func (db *DB) IncrementViewCount(ctx context.Context, articleID string) error {
	result, err := db.conn.ExecContext(ctx,
		"UPDATE articles SET view_count = view_count + 1, updated_at = NOW() WHERE id = $1",
		articleID,
	)
	if err != nil {
		return fmt.Errorf("increment view count: %w", err)
	}
	return requireRow(result)
}

// UpdateArticleMetrics writes the trending batch result for one article.
func (db *DB) UpdateArticleMetrics(ctx context.Context, id string, update models.MetricsUpdate) error {
	result, err := db.conn.ExecContext(ctx, `
		UPDATE articles
		SET views_last_24h = $1, views_last_7d = $2, trending_score = $3, is_trending = $4, updated_at = NOW()
		WHERE id = $5`,
		update.ViewsLast24h, update.ViewsLast7d, update.TrendingScore, update.IsTrending, id,
	)
	if err != nil {
		return fmt.Errorf("update metrics: %w", err)
	}
	return requireRow(result)
}

// SetTrending writes the trending flag directly (operator toggle).
func (db *DB) SetTrending(ctx context.Context, id string, trending bool) error {
	result, err := db.conn.ExecContext(ctx,
		"UPDATE articles SET is_trending = $1, updated_at = NOW() WHERE id = $2",
		trending, id,
	)
	if err != nil {
		return fmt.Errorf("set trending: %w", err)
	}
	return requireRow(result)
}

// UpdateArticleScores writes the three content-analysis scores.
func (db *DB) UpdateArticleScores(ctx context.Context, id string, seo, readability, aiReadiness int) error {
	result, err := db.conn.ExecContext(ctx, `
		UPDATE articles
		SET seo_score = $1, readability_score = $2, ai_readiness_score = $3, updated_at = NOW()
		WHERE id = $4`,
		seo, readability, aiReadiness, id,
	)
	if err != nil {
		return fmt.Errorf("update scores: %w", err)
	}
	return requireRow(result)
}

// CreateView inserts a page view event.
func (db *DB) CreateView(ctx context.Context, view *models.PageView) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO page_views (id, article_id, ts, referrer, device, session_hash)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		view.ID, view.ArticleID, view.Timestamp, string(view.Referrer), string(view.Device), view.SessionHash,
	)
	if err != nil {
		return fmt.Errorf("insert page view: %w", err)
	}
	return nil
}

// FindRecentView returns the latest view for (article, session) at or
// after since, or nil when the session has not viewed it in the window.
func (db *DB) FindRecentView(ctx context.Context, articleID, sessionHash string, since time.Time) (*models.PageView, error) {
	query := db.sb.Select("id", "article_id", "ts", "referrer", "device", "session_hash").
		From("page_views").
		Where(sq.Eq{"article_id": articleID, "session_hash": sessionHash}).
		Where(sq.GtOrEq{"ts": since}).
		OrderBy("ts DESC").
		Limit(1)
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var view models.PageView
	var referrer, device string
	err = db.conn.QueryRowContext(ctx, sqlStr, args...).
		Scan(&view.ID, &view.ArticleID, &view.Timestamp, &referrer, &device, &view.SessionHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query page view: %w", err)
	}

	view.Referrer = models.Referrer(referrer)
	view.Device = models.Device(device)
	return &view, nil
}

// CountViews counts views of an article with ts >= from, and < to when
// to is given.
func (db *DB) CountViews(ctx context.Context, articleID string, from time.Time, to *time.Time) (int, error) {
	query := db.sb.Select("COUNT(*)").From("page_views").
		Where(sq.Eq{"article_id": articleID}).
		Where(sq.GtOrEq{"ts": from})
	if to != nil {
		query = query.Where(sq.Lt{"ts": *to})
	}
	return db.countQuery(ctx, query)
}

// CountViewsSince counts all views with ts >= since.
func (db *DB) CountViewsSince(ctx context.Context, since time.Time) (int, error) {
	return db.countQuery(ctx, db.sb.Select("COUNT(*)").From("page_views").
		Where(sq.GtOrEq{"ts": since}))
}

// CountPublishedArticles counts articles with a publish timestamp.
func (db *DB) CountPublishedArticles(ctx context.Context) (int, error) {
	return db.countQuery(ctx, db.sb.Select("COUNT(*)").From("articles").
		Where(sq.NotEq{"published_at": nil}))
}

// CountActiveSubscribers counts subscribers with active status.
func (db *DB) CountActiveSubscribers(ctx context.Context) (int, error) {
	return db.countQuery(ctx, db.sb.Select("COUNT(*)").From("subscribers").
		Where(sq.Eq{"status": "active"}))
}

func (db *DB) countQuery(ctx context.Context, query sq.SelectBuilder) (int, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	var count int
	if err := db.conn.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count query: %w", err)
	}
	return count, nil
}

// CreateSubscriber inserts a subscriber. A duplicate email returns
// models.ErrConflict.
func (db *DB) CreateSubscriber(ctx context.Context, subscriber *models.Subscriber) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO subscribers (id, email, status, created_at) VALUES ($1, $2, $3, NOW())",
		subscriber.ID, subscriber.Email, subscriber.Status,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrConflict
		}
		return fmt.Errorf("insert subscriber: %w", err)
	}
	return nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
