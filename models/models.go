package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a create collides with an existing row.
var ErrConflict = errors.New("already exists")

// Referrer classifies where a page view came from.
type Referrer string

const (
	ReferrerDirect   Referrer = "direct"
	ReferrerSearch   Referrer = "search"
	ReferrerSocial   Referrer = "social"
	ReferrerReferral Referrer = "referral"
)

// Device classifies the client device of a page view.
type Device string

const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
	DeviceTablet  Device = "tablet"
)

// Article is a CMS article together with the metrics fields this
// service owns. Everything else on the entity (rendering fields,
// featured image, author) belongs to the CMS and is not modelled here.
type Article struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title"`
	Slug               string         `json:"slug"`
	Excerpt            string         `json:"excerpt"`
	Body               string         `json:"body"`
	SEOTitle           string         `json:"seoTitle,omitempty"`
	SEODescription     string         `json:"seoDescription,omitempty"`
	FocusKeyphrase     string         `json:"focusKeyphrase,omitempty"`
	Tags               []string       `json:"tags,omitempty"`
	Categories         []Category     `json:"categories,omitempty"`
	PublishedAt        *time.Time     `json:"publishedAt,omitempty"`
	IsManuallyFeatured bool           `json:"isManuallyFeatured"`
	Metrics            ArticleMetrics `json:"metrics"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// Published reports whether the article has a publish timestamp.
func (a *Article) Published() bool {
	return a.PublishedAt != nil
}

// PrimaryCategory returns the first category, the convention the
// frontend uses for the main section label.
func (a *Article) PrimaryCategory() (Category, bool) {
	if len(a.Categories) == 0 {
		return Category{}, false
	}
	return a.Categories[0], true
}

// ArticleMetrics holds the counters and scores mutated by the scoring
// engines. viewCount is touched only by the view-recording path; the
// window counters, trending fields and the three content scores are
// written by the trending scorer and the content analyzer.
type ArticleMetrics struct {
	ViewCount        int64   `json:"viewCount"`
	ViewsLast24h     int     `json:"viewsLast24h"`
	ViewsLast7d      int     `json:"viewsLast7d"`
	TrendingScore    float64 `json:"trendingScore"`
	IsTrending       bool    `json:"isTrending"`
	SEOScore         int     `json:"seoScore"`
	ReadabilityScore int     `json:"readabilityScore"`
	AIReadinessScore int     `json:"aiReadinessScore"`
}

// MetricsUpdate is the per-article write issued by a trending batch run.
type MetricsUpdate struct {
	ViewsLast24h  int
	ViewsLast7d   int
	TrendingScore float64
	IsTrending    bool
}

// Category is a taxonomy entry articles are filed under.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// PageView is a single deduplicated view event. Immutable once
// created; retention is handled outside this service.
type PageView struct {
	ID          string    `json:"id"`
	ArticleID   string    `json:"articleId"`
	Timestamp   time.Time `json:"timestamp"`
	Referrer    Referrer  `json:"referrer"`
	Device      Device    `json:"device"`
	SessionHash string    `json:"sessionHash"`
}

// Subscriber is a newsletter signup. Only the active count is
// consumed here; delivery lives elsewhere.
type Subscriber struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// CheckCategory groups the analyzer's diagnostic checks.
type CheckCategory string

const (
	CheckSEO         CheckCategory = "seo"
	CheckReadability CheckCategory = "readability"
	CheckAI          CheckCategory = "ai"
)

// CheckStatus is the severity of a single check.
type CheckStatus string

const (
	StatusGood    CheckStatus = "good"
	StatusWarning CheckStatus = "warning"
	StatusBad     CheckStatus = "bad"
)

// SEOCheck is one diagnostic produced by the content analyzer. Checks
// are recomputed on every analysis and never persisted; the IDs are
// stable so UIs and tests can key on them.
type SEOCheck struct {
	ID       string        `json:"id"`
	Category CheckCategory `json:"category"`
	Status   CheckStatus   `json:"status"`
	Message  string        `json:"message"`
}

// Analysis is the full output of one content analysis pass.
type Analysis struct {
	SEOScore         int        `json:"seoScore"`
	ReadabilityScore int        `json:"readabilityScore"`
	AIReadinessScore int        `json:"aiReadinessScore"`
	Checks           []SEOCheck `json:"checks"`
}

// SEOOverview aggregates stored seoScore values across published articles.
type SEOOverview struct {
	TotalArticles    int          `json:"totalArticles"`
	AverageSEOScore  int          `json:"averageSeoScore"`
	OptimizedPercent int          `json:"optimizedPercent"`
	Breakdown        SEOBreakdown `json:"breakdown"`
}

// SEOBreakdown buckets articles by stored seoScore.
type SEOBreakdown struct {
	Optimized        int `json:"optimized"`
	NeedsImprovement int `json:"needsImprovement"`
	Poor             int `json:"poor"`
}

// SEOArticle is one row of the articles-by-score listing.
type SEOArticle struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Slug             string     `json:"slug"`
	Category         string     `json:"category"`
	SEOScore         int        `json:"seoScore"`
	ReadabilityScore int        `json:"readabilityScore"`
	AIReadinessScore int        `json:"aiReadinessScore"`
	PublishedAt      *time.Time `json:"publishedAt,omitempty"`
}

// TrendingArticle is one entry of the ranked trending list.
type TrendingArticle struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Slug          string     `json:"slug"`
	Excerpt       string     `json:"excerpt"`
	Category      string     `json:"category"`
	Views24h      int        `json:"views24h"`
	TrendingScore float64    `json:"trendingScore"`
	GrowthPercent int        `json:"growthPercent"`
	PublishedAt   *time.Time `json:"publishedAt,omitempty"`
}

// RelatedArticle is one entry of the similar-articles ranking. The raw
// similarity score is included for transparency.
type RelatedArticle struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Slug            string     `json:"slug"`
	Excerpt         string     `json:"excerpt"`
	Category        string     `json:"category"`
	CategorySlug    string     `json:"categorySlug"`
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`
	SimilarityScore int        `json:"similarityScore"`
}

// ArticleStats is the per-article analytics snapshot.
type ArticleStats struct {
	ArticleID     string  `json:"articleId"`
	TotalViews    int64   `json:"totalViews"`
	Views24h      int     `json:"views24h"`
	Views7d       int     `json:"views7d"`
	TrendingScore float64 `json:"trendingScore"`
}

// AnalyticsOverview is the sitewide analytics snapshot.
type AnalyticsOverview struct {
	Views            ViewWindows    `json:"views"`
	UniqueVisitors   UniqueVisitors `json:"uniqueVisitors"`
	TotalArticles    int            `json:"totalArticles"`
	TotalSubscribers int            `json:"totalSubscribers"`
}

// ViewWindows holds view counts over the standard trailing windows.
type ViewWindows struct {
	Last24h int `json:"last24h"`
	Last7d  int `json:"last7d"`
	Last30d int `json:"last30d"`
}

// UniqueVisitors is a simplified unique-visitor estimate.
type UniqueVisitors struct {
	Last24h int `json:"last24h"`
}
