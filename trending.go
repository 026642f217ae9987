package pulse

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/gentimes/pulse/models"
)

// TrendingThreshold is the score above which an article is
// auto-flagged as trending.
const TrendingThreshold = 5.0

// TrendingStore is the storage surface the trending scorer needs.
type TrendingStore interface {
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	PublishedArticles(ctx context.Context) ([]*models.Article, error)
	ArticlesPublishedSince(ctx context.Context, since time.Time) ([]*models.Article, error)
	CountViews(ctx context.Context, articleID string, from time.Time, to *time.Time) (int, error)
	UpdateArticleMetrics(ctx context.Context, id string, update models.MetricsUpdate) error
	SetTrending(ctx context.Context, id string, trending bool) error
	TrendingArticles(ctx context.Context, limit int) ([]*models.Article, error)
	ArticlesByTrendingScore(ctx context.Context, limit int) ([]*models.Article, error)
}

// Trending computes decaying popularity scores from windowed view
// counts and maintains the per-article trending flag.
type Trending struct {
	store  TrendingStore
	logger *slog.Logger
	now    func() time.Time
}

// NewTrending wires a trending scorer to its store.
func NewTrending(store TrendingStore, logger *slog.Logger) *Trending {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trending{store: store, logger: logger, now: time.Now}
}

// Score applies the trending formula and floors the result at zero,
// rounded to two decimals.
func Score(views24h, views48hBand int, ageInDays float64) float64 {
	score := float64(views24h)*2 + float64(views48hBand)*0.5 - ageInDays*0.1
	if score < 0 {
		score = 0
	}
	return math.Round(score*100) / 100
}

// CalculateAll recomputes trending metrics for every published
// article. The manual override is the article's current trending flag,
// re-read just before each write so an operator toggle during the run
// is never clobbered. One article's failure does not stop the batch.
func (t *Trending) CalculateAll(ctx context.Context) (int, error) {
	articles, err := t.store.PublishedArticles(ctx)
	if err != nil {
		return 0, fmt.Errorf("load published articles: %w", err)
	}
	return t.calculate(ctx, articles, func(a *models.Article) bool {
		return a.Metrics.IsTrending
	}), nil
}

// CalculateRecent is the scheduled variant: only articles published in
// the trailing 7 days, with the manual override read from the
// explicitly-featured flag.
func (t *Trending) CalculateRecent(ctx context.Context) (int, error) {
	articles, err := t.store.ArticlesPublishedSince(ctx, t.now().Add(-7*24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("load recent articles: %w", err)
	}
	return t.calculate(ctx, articles, func(a *models.Article) bool {
		return a.IsManuallyFeatured
	}), nil
}

func (t *Trending) calculate(ctx context.Context, articles []*models.Article, manual func(*models.Article) bool) int {
	now := t.now()
	cut24 := now.Add(-24 * time.Hour)
	cut48 := now.Add(-48 * time.Hour)
	cut7d := now.Add(-7 * 24 * time.Hour)

	updated := 0
	for _, article := range articles {
		if !article.Published() {
			continue
		}

		views24h, err := t.store.CountViews(ctx, article.ID, cut24, nil)
		if err != nil {
			t.logger.Error("trending: count 24h views failed", "article", article.ID, "error", err)
			continue
		}
		views48h, err := t.store.CountViews(ctx, article.ID, cut48, &cut24)
		if err != nil {
			t.logger.Error("trending: count 48h views failed", "article", article.ID, "error", err)
			continue
		}
		views7d, err := t.store.CountViews(ctx, article.ID, cut7d, nil)
		if err != nil {
			t.logger.Error("trending: count 7d views failed", "article", article.ID, "error", err)
			continue
		}

		ageInDays := now.Sub(*article.PublishedAt).Hours() / 24
		score := Score(views24h, views48h, ageInDays)

		// Re-read so a manual flag set mid-batch survives the write.
		current, err := t.store.GetArticle(ctx, article.ID)
		if err != nil {
			t.logger.Error("trending: reload article failed", "article", article.ID, "error", err)
			continue
		}

		update := models.MetricsUpdate{
			ViewsLast24h:  views24h,
			ViewsLast7d:   views7d,
			TrendingScore: score,
			IsTrending:    score > TrendingThreshold || manual(current),
		}
		if err := t.store.UpdateArticleMetrics(ctx, article.ID, update); err != nil {
			t.logger.Error("trending: update failed", "article", article.ID, "error", err)
			continue
		}
		updated++
	}

	return updated
}

// Toggle flips the trending flag for one article regardless of score
// and returns the new state. This is the only path that clears a
// manual flag.
func (t *Trending) Toggle(ctx context.Context, articleID string) (bool, error) {
	article, err := t.store.GetArticle(ctx, articleID)
	if err != nil {
		return false, err
	}

	next := !article.Metrics.IsTrending
	if err := t.store.SetTrending(ctx, articleID, next); err != nil {
		return false, fmt.Errorf("set trending: %w", err)
	}
	return next, nil
}

// List returns the flagged trending articles ordered by score, each
// annotated with the growth of the last 24h against the 7-day daily
// average.
func (t *Trending) List(ctx context.Context, limit int) ([]models.TrendingArticle, error) {
	articles, err := t.store.TrendingArticles(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load trending articles: %w", err)
	}
	return trendingEntries(articles), nil
}

// Top returns published articles ordered by trending score without
// requiring the trending flag, the shape the analytics dashboard uses.
func (t *Trending) Top(ctx context.Context, limit int) ([]models.TrendingArticle, error) {
	articles, err := t.store.ArticlesByTrendingScore(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load top articles: %w", err)
	}
	return trendingEntries(articles), nil
}

func trendingEntries(articles []*models.Article) []models.TrendingArticle {
	entries := make([]models.TrendingArticle, 0, len(articles))
	for _, article := range articles {
		entries = append(entries, models.TrendingArticle{
			ID:            article.ID,
			Title:         article.Title,
			Slug:          article.Slug,
			Excerpt:       article.Excerpt,
			Category:      categoryName(article),
			Views24h:      article.Metrics.ViewsLast24h,
			TrendingScore: article.Metrics.TrendingScore,
			GrowthPercent: GrowthPercent(article.Metrics.ViewsLast24h, article.Metrics.ViewsLast7d),
			PublishedAt:   article.PublishedAt,
		})
	}
	return entries
}

// GrowthPercent compares the last 24h of views against the 7-day daily
// average. Zero when there is no 7-day baseline.
func GrowthPercent(views24h, views7d int) int {
	avgDaily := float64(views7d) / 7
	if avgDaily == 0 {
		return 0
	}
	return int(math.Round((float64(views24h) - avgDaily) / avgDaily * 100))
}

func categoryName(article *models.Article) string {
	if primary, ok := article.PrimaryCategory(); ok {
		return primary.Name
	}
	return "Uncategorized"
}
