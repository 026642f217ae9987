package pulse

import (
	"context"
	"sort"
	"time"

	"github.com/gentimes/pulse/models"
)

// fakeStore is an in-memory stand-in for the db package, satisfying
// every engine's store interface.
type fakeStore struct {
	articles    map[string]*models.Article
	views       []*models.PageView
	subscribers []*models.Subscriber

	// optional failure injection
	metricsErr     map[string]error
	subscribersErr error

	// onGetArticle runs before each GetArticle, simulating concurrent
	// writes landing mid-batch.
	onGetArticle func(id string)

	// lastCandidateLimit records the pool size requested from
	// ArticlesInCategories.
	lastCandidateLimit int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		articles:   make(map[string]*models.Article),
		metricsErr: make(map[string]error),
	}
}

func (f *fakeStore) addArticle(a *models.Article) {
	f.articles[a.ID] = a
}

func (f *fakeStore) addView(articleID string, at time.Time) {
	f.views = append(f.views, &models.PageView{
		ID:        articleID + at.String(),
		ArticleID: articleID,
		Timestamp: at,
	})
}

func (f *fakeStore) GetArticle(_ context.Context, id string) (*models.Article, error) {
	if f.onGetArticle != nil {
		f.onGetArticle(id)
	}
	article, ok := f.articles[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return article, nil
}

func (f *fakeStore) FindRecentView(_ context.Context, articleID, sessionHash string, since time.Time) (*models.PageView, error) {
	for _, v := range f.views {
		if v.ArticleID == articleID && v.SessionHash == sessionHash && !v.Timestamp.Before(since) {
			return v, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateView(_ context.Context, view *models.PageView) error {
	f.views = append(f.views, view)
	return nil
}

func (f *fakeStore) IncrementViewCount(_ context.Context, articleID string) error {
	article, ok := f.articles[articleID]
	if !ok {
		return models.ErrNotFound
	}
	article.Metrics.ViewCount++
	return nil
}

func (f *fakeStore) CountViews(_ context.Context, articleID string, from time.Time, to *time.Time) (int, error) {
	count := 0
	for _, v := range f.views {
		if v.ArticleID != articleID || v.Timestamp.Before(from) {
			continue
		}
		if to != nil && !v.Timestamp.Before(*to) {
			continue
		}
		count++
	}
	return count, nil
}

func (f *fakeStore) CountViewsSince(_ context.Context, since time.Time) (int, error) {
	count := 0
	for _, v := range f.views {
		if !v.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CountPublishedArticles(_ context.Context) (int, error) {
	count := 0
	for _, a := range f.articles {
		if a.Published() {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CountActiveSubscribers(_ context.Context) (int, error) {
	if f.subscribersErr != nil {
		return 0, f.subscribersErr
	}
	count := 0
	for _, s := range f.subscribers {
		if s.Status == "active" {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) published() []*models.Article {
	var out []*models.Article
	for _, a := range f.articles {
		if a.Published() {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(*out[j].PublishedAt)
	})
	return out
}

func (f *fakeStore) PublishedArticles(_ context.Context) ([]*models.Article, error) {
	return f.published(), nil
}

func (f *fakeStore) ArticlesPublishedSince(_ context.Context, since time.Time) ([]*models.Article, error) {
	var out []*models.Article
	for _, a := range f.published() {
		if !a.PublishedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateArticleMetrics(_ context.Context, id string, update models.MetricsUpdate) error {
	if err := f.metricsErr[id]; err != nil {
		return err
	}
	article, ok := f.articles[id]
	if !ok {
		return models.ErrNotFound
	}
	article.Metrics.ViewsLast24h = update.ViewsLast24h
	article.Metrics.ViewsLast7d = update.ViewsLast7d
	article.Metrics.TrendingScore = update.TrendingScore
	article.Metrics.IsTrending = update.IsTrending
	return nil
}

func (f *fakeStore) SetTrending(_ context.Context, id string, trending bool) error {
	article, ok := f.articles[id]
	if !ok {
		return models.ErrNotFound
	}
	article.Metrics.IsTrending = trending
	return nil
}

func (f *fakeStore) TrendingArticles(_ context.Context, limit int) ([]*models.Article, error) {
	var out []*models.Article
	for _, a := range f.published() {
		if a.Metrics.IsTrending {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metrics.TrendingScore > out[j].Metrics.TrendingScore
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ArticlesByTrendingScore(_ context.Context, limit int) ([]*models.Article, error) {
	out := f.published()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metrics.TrendingScore > out[j].Metrics.TrendingScore
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ArticlesBySEOScore(_ context.Context) ([]*models.Article, error) {
	out := f.published()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metrics.SEOScore < out[j].Metrics.SEOScore
	})
	return out, nil
}

func (f *fakeStore) UpdateArticleScores(_ context.Context, id string, seo, readability, aiReadiness int) error {
	article, ok := f.articles[id]
	if !ok {
		return models.ErrNotFound
	}
	article.Metrics.SEOScore = seo
	article.Metrics.ReadabilityScore = readability
	article.Metrics.AIReadinessScore = aiReadiness
	return nil
}

func (f *fakeStore) ArticlesInCategories(_ context.Context, categoryIDs []string, excludeID string, limit int) ([]*models.Article, error) {
	f.lastCandidateLimit = limit

	wanted := make(map[string]bool, len(categoryIDs))
	for _, id := range categoryIDs {
		wanted[id] = true
	}

	var out []*models.Article
	for _, a := range f.published() {
		if a.ID == excludeID {
			continue
		}
		for _, c := range a.Categories {
			if wanted[c.ID] {
				out = append(out, a)
				break
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
