package pulse

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gentimes/pulse/models"
	"github.com/gentimes/pulse/slug"
)

// DefaultRelatedLimit is the related-articles count when the caller
// does not ask for one.
const DefaultRelatedLimit = 4

// recencyWindow is how recently a candidate must have been published
// to earn the recency bonus.
const recencyWindow = 7 * 24 * time.Hour

// RelatedStore is the storage surface the relatedness ranker needs.
type RelatedStore interface {
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	// ArticlesInCategories returns published articles sharing at least
	// one of the categories, excluding excludeID, newest first.
	ArticlesInCategories(ctx context.Context, categoryIDs []string, excludeID string, limit int) ([]*models.Article, error)
}

// Related ranks articles by taxonomy similarity to a source article.
type Related struct {
	store RelatedStore
	now   func() time.Time
}

// NewRelated wires a ranker to its store.
func NewRelated(store RelatedStore) *Related {
	return &Related{store: store, now: time.Now}
}

// Rank returns up to limit articles similar to articleID: +2 per
// shared category, +1 per case-insensitive tag match, +1 when the
// candidate was published within the last week. The candidate pool is
// fetched at twice the limit and re-ranked; ties keep the pool's
// publish-date-descending order.
func (r *Related) Rank(ctx context.Context, articleID string, limit int) ([]models.RelatedArticle, error) {
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}

	source, err := r.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}

	categoryIDs := make([]string, 0, len(source.Categories))
	for _, c := range source.Categories {
		categoryIDs = append(categoryIDs, c.ID)
	}
	if len(categoryIDs) == 0 {
		return []models.RelatedArticle{}, nil
	}

	candidates, err := r.store.ArticlesInCategories(ctx, categoryIDs, articleID, limit*2)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	type scored struct {
		article *models.Article
		score   int
	}

	now := r.now()
	pool := make([]scored, 0, len(candidates))
	for _, candidate := range candidates {
		pool = append(pool, scored{
			article: candidate,
			score:   similarity(source, candidate, now),
		})
	}

	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].score > pool[j].score
	})
	if len(pool) > limit {
		pool = pool[:limit]
	}

	results := make([]models.RelatedArticle, 0, len(pool))
	for _, entry := range pool {
		name, categorySlug := primaryCategory(entry.article)
		results = append(results, models.RelatedArticle{
			ID:              entry.article.ID,
			Title:           entry.article.Title,
			Slug:            entry.article.Slug,
			Excerpt:         entry.article.Excerpt,
			Category:        name,
			CategorySlug:    categorySlug,
			PublishedAt:     entry.article.PublishedAt,
			SimilarityScore: entry.score,
		})
	}
	return results, nil
}

func similarity(source, candidate *models.Article, now time.Time) int {
	score := 0

	candidateCategories := make(map[string]bool, len(candidate.Categories))
	for _, c := range candidate.Categories {
		candidateCategories[c.ID] = true
	}
	for _, c := range source.Categories {
		if candidateCategories[c.ID] {
			score += 2
		}
	}

	candidateTags := make(map[string]bool, len(candidate.Tags))
	for _, tag := range candidate.Tags {
		candidateTags[strings.ToLower(tag)] = true
	}
	for _, tag := range source.Tags {
		if candidateTags[strings.ToLower(tag)] {
			score++
		}
	}

	if candidate.PublishedAt != nil && now.Sub(*candidate.PublishedAt) < recencyWindow {
		score++
	}

	return score
}

func primaryCategory(article *models.Article) (name, categorySlug string) {
	primary, ok := article.PrimaryCategory()
	if !ok {
		return "Uncategorized", "uncategorized"
	}
	if primary.Slug != "" {
		return primary.Name, primary.Slug
	}
	return primary.Name, slug.GenerateWithFallback(primary.Name, "uncategorized")
}
