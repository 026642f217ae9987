// Package pulse implements the scoring engines behind the gentimes
// content platform: page-view aggregation, trending scores, on-page
// content analysis and related-article ranking. Each engine is
// stateless between invocations and talks to storage through a small
// consumer interface satisfied by the db package.
package pulse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gentimes/pulse/models"
)

// DedupWindow is how long a session's repeat views of the same
// article are treated as a single view.
const DedupWindow = time.Hour

// ViewStore is the storage surface the view aggregator needs.
type ViewStore interface {
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	FindRecentView(ctx context.Context, articleID, sessionHash string, since time.Time) (*models.PageView, error)
	CreateView(ctx context.Context, view *models.PageView) error
	IncrementViewCount(ctx context.Context, articleID string) error
	CountViews(ctx context.Context, articleID string, from time.Time, to *time.Time) (int, error)
	CountViewsSince(ctx context.Context, since time.Time) (int, error)
	CountPublishedArticles(ctx context.Context) (int, error)
	CountActiveSubscribers(ctx context.Context) (int, error)
}

// Tracker records deduplicated page views and answers analytics reads.
type Tracker struct {
	store ViewStore
	now   func() time.Time
}

// NewTracker wires a tracker to its store.
func NewTracker(store ViewStore) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// SessionFingerprint derives the anonymous session hash used for
// dedup: sha256 of ip, user agent and the UTC calendar day, truncated
// to 16 hex characters. Not reversible, rotates daily.
func SessionFingerprint(ip, userAgent string, at time.Time) string {
	day := at.UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(ip + "-" + userAgent + "-" + day))
	return hex.EncodeToString(sum[:])[:16]
}

// Track records a view of articleID. Returns false without side
// effects when the same session already viewed the article within
// DedupWindow. Errors from a missing article surface models.ErrNotFound.
func (t *Tracker) Track(ctx context.Context, articleID, ip, userAgent string, referrer models.Referrer, device models.Device) (bool, error) {
	if _, err := t.store.GetArticle(ctx, articleID); err != nil {
		return false, err
	}

	now := t.now()
	hash := SessionFingerprint(ip, userAgent, now)

	existing, err := t.store.FindRecentView(ctx, articleID, hash, now.Add(-DedupWindow))
	if err != nil {
		return false, fmt.Errorf("lookup recent view: %w", err)
	}
	if existing != nil {
		return false, nil
	}

	view := &models.PageView{
		ID:          uuid.New().String(),
		ArticleID:   articleID,
		Timestamp:   now,
		Referrer:    referrer,
		Device:      device,
		SessionHash: hash,
	}
	if err := t.store.CreateView(ctx, view); err != nil {
		return false, fmt.Errorf("create page view: %w", err)
	}
	if err := t.store.IncrementViewCount(ctx, articleID); err != nil {
		return false, fmt.Errorf("increment view count: %w", err)
	}

	return true, nil
}

// Overview returns sitewide view counts over the standard windows plus
// article and subscriber totals. A missing subscriber collection is
// reported as zero, never as an error.
func (t *Tracker) Overview(ctx context.Context) (*models.AnalyticsOverview, error) {
	now := t.now()

	views24h, err := t.store.CountViewsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("count views 24h: %w", err)
	}
	views7d, err := t.store.CountViewsSince(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("count views 7d: %w", err)
	}
	views30d, err := t.store.CountViewsSince(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("count views 30d: %w", err)
	}

	articles, err := t.store.CountPublishedArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("count articles: %w", err)
	}

	subscribers, err := t.store.CountActiveSubscribers(ctx)
	if err != nil {
		subscribers = 0
	}

	return &models.AnalyticsOverview{
		Views:            models.ViewWindows{Last24h: views24h, Last7d: views7d, Last30d: views30d},
		UniqueVisitors:   models.UniqueVisitors{Last24h: views24h},
		TotalArticles:    articles,
		TotalSubscribers: subscribers,
	}, nil
}

// ArticleStats returns the view counters and trending score for one article.
func (t *Tracker) ArticleStats(ctx context.Context, articleID string) (*models.ArticleStats, error) {
	article, err := t.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}

	now := t.now()
	views24h, err := t.store.CountViews(ctx, articleID, now.Add(-24*time.Hour), nil)
	if err != nil {
		return nil, fmt.Errorf("count views 24h: %w", err)
	}
	views7d, err := t.store.CountViews(ctx, articleID, now.Add(-7*24*time.Hour), nil)
	if err != nil {
		return nil, fmt.Errorf("count views 7d: %w", err)
	}

	return &models.ArticleStats{
		ArticleID:     articleID,
		TotalViews:    article.Metrics.ViewCount,
		Views24h:      views24h,
		Views7d:       views7d,
		TrendingScore: article.Metrics.TrendingScore,
	}, nil
}

var searchDomains = []string{
	"google.", "bing.", "yahoo.", "duckduckgo.", "baidu.", "yandex.",
}

var socialDomains = []string{
	"facebook.", "twitter.", "instagram.", "linkedin.",
	"tiktok.", "youtube.", "reddit.", "t.co",
}

// ClassifyReferrer maps a raw Referer header to a traffic source.
// siteHost marks same-site navigation as direct; localhost always
// counts as same-site.
func ClassifyReferrer(referrer, siteHost string) models.Referrer {
	if referrer == "" {
		return models.ReferrerDirect
	}

	ref := strings.ToLower(referrer)

	for _, domain := range searchDomains {
		if strings.Contains(ref, domain) {
			return models.ReferrerSearch
		}
	}
	for _, domain := range socialDomains {
		if strings.Contains(ref, domain) {
			return models.ReferrerSocial
		}
	}

	if strings.Contains(ref, "localhost") || (siteHost != "" && strings.Contains(ref, strings.ToLower(siteHost))) {
		return models.ReferrerDirect
	}

	return models.ReferrerReferral
}

var (
	mobileUA = regexp.MustCompile(`(?i)mobile|android|iphone|ipad|ipod|blackberry|windows phone`)
	tabletUA = regexp.MustCompile(`(?i)ipad|tablet`)
)

// ClassifyDevice maps a user-agent string to a device class. Tablet
// signatures win over the generic mobile match.
func ClassifyDevice(userAgent string) models.Device {
	if userAgent == "" {
		return models.DeviceDesktop
	}
	if mobileUA.MatchString(userAgent) {
		if tabletUA.MatchString(userAgent) {
			return models.DeviceTablet
		}
		return models.DeviceMobile
	}
	return models.DeviceDesktop
}
