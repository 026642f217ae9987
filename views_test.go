package pulse

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/gentimes/pulse/models"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
}

func publishedArticle(id string, publishedAt time.Time) *models.Article {
	return &models.Article{
		ID:          id,
		Title:       "Article " + id,
		Slug:        "article-" + id,
		PublishedAt: &publishedAt,
	}
}

func TestSessionFingerprint(t *testing.T) {
	at := fixedNow()
	hash := SessionFingerprint("203.0.113.7", "Mozilla/5.0", at)

	if len(hash) != 16 {
		t.Fatalf("expected 16-char fingerprint, got %d chars: %q", len(hash), hash)
	}
	if !regexp.MustCompile(`^[0-9a-f]{16}$`).MatchString(hash) {
		t.Errorf("fingerprint is not lowercase hex: %q", hash)
	}

	// Deterministic within the same day.
	if again := SessionFingerprint("203.0.113.7", "Mozilla/5.0", at.Add(3*time.Hour)); again != hash {
		t.Errorf("fingerprint changed within the same day: %q vs %q", hash, again)
	}

	// Rotates across the UTC day boundary.
	if next := SessionFingerprint("203.0.113.7", "Mozilla/5.0", at.Add(24*time.Hour)); next == hash {
		t.Error("fingerprint did not rotate across days")
	}

	// Distinct visitors hash differently.
	if other := SessionFingerprint("203.0.113.8", "Mozilla/5.0", at); other == hash {
		t.Error("different IPs produced the same fingerprint")
	}
}

func TestTrackDeduplicatesWithinWindow(t *testing.T) {
	store := newFakeStore()
	store.addArticle(publishedArticle("a1", fixedNow().Add(-48*time.Hour)))

	tracker := NewTracker(store)
	tracker.now = fixedNow

	tracked, err := tracker.Track(context.Background(), "a1", "203.0.113.7", "Mozilla/5.0", models.ReferrerDirect, models.DeviceDesktop)
	if err != nil {
		t.Fatalf("first track failed: %v", err)
	}
	if !tracked {
		t.Fatal("first track should record a view")
	}
	if len(store.views) != 1 {
		t.Fatalf("expected 1 view, got %d", len(store.views))
	}
	if store.articles["a1"].Metrics.ViewCount != 1 {
		t.Errorf("expected view count 1, got %d", store.articles["a1"].Metrics.ViewCount)
	}

	// Same session within the window is a no-op.
	tracked, err = tracker.Track(context.Background(), "a1", "203.0.113.7", "Mozilla/5.0", models.ReferrerDirect, models.DeviceDesktop)
	if err != nil {
		t.Fatalf("second track failed: %v", err)
	}
	if tracked {
		t.Error("duplicate view within window should not be tracked")
	}
	if len(store.views) != 1 {
		t.Errorf("duplicate created a view event, have %d", len(store.views))
	}
	if store.articles["a1"].Metrics.ViewCount != 1 {
		t.Errorf("duplicate incremented view count to %d", store.articles["a1"].Metrics.ViewCount)
	}

	// A different visitor is a fresh view.
	tracked, err = tracker.Track(context.Background(), "a1", "198.51.100.2", "Mozilla/5.0", models.ReferrerSearch, models.DeviceMobile)
	if err != nil {
		t.Fatalf("third track failed: %v", err)
	}
	if !tracked {
		t.Error("different visitor should be tracked")
	}
	if store.articles["a1"].Metrics.ViewCount != 2 {
		t.Errorf("expected view count 2, got %d", store.articles["a1"].Metrics.ViewCount)
	}
}

func TestTrackUnknownArticle(t *testing.T) {
	tracker := NewTracker(newFakeStore())
	tracker.now = fixedNow

	_, err := tracker.Track(context.Background(), "missing", "203.0.113.7", "Mozilla/5.0", models.ReferrerDirect, models.DeviceDesktop)
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOverview(t *testing.T) {
	store := newFakeStore()
	store.addArticle(publishedArticle("a1", fixedNow().Add(-72*time.Hour)))
	store.addArticle(&models.Article{ID: "draft", Title: "Draft"})

	now := fixedNow()
	store.addView("a1", now.Add(-1*time.Hour))
	store.addView("a1", now.Add(-3*24*time.Hour))
	store.addView("a1", now.Add(-20*24*time.Hour))
	store.subscribers = []*models.Subscriber{
		{ID: "s1", Email: "a@example.org", Status: "active"},
		{ID: "s2", Email: "b@example.org", Status: "unsubscribed"},
	}

	tracker := NewTracker(store)
	tracker.now = fixedNow

	overview, err := tracker.Overview(context.Background())
	if err != nil {
		t.Fatalf("overview failed: %v", err)
	}

	if overview.Views.Last24h != 1 || overview.Views.Last7d != 2 || overview.Views.Last30d != 3 {
		t.Errorf("unexpected view windows: %+v", overview.Views)
	}
	if overview.TotalArticles != 1 {
		t.Errorf("expected 1 published article, got %d", overview.TotalArticles)
	}
	if overview.TotalSubscribers != 1 {
		t.Errorf("expected 1 active subscriber, got %d", overview.TotalSubscribers)
	}
}

func TestOverviewSubscriberErrorsReadAsZero(t *testing.T) {
	store := newFakeStore()
	store.subscribersErr = errors.New("relation does not exist")

	tracker := NewTracker(store)
	tracker.now = fixedNow

	overview, err := tracker.Overview(context.Background())
	if err != nil {
		t.Fatalf("overview should tolerate subscriber errors, got %v", err)
	}
	if overview.TotalSubscribers != 0 {
		t.Errorf("expected 0 subscribers, got %d", overview.TotalSubscribers)
	}
}

func TestArticleStats(t *testing.T) {
	store := newFakeStore()
	article := publishedArticle("a1", fixedNow().Add(-72*time.Hour))
	article.Metrics.ViewCount = 42
	article.Metrics.TrendingScore = 7.5
	store.addArticle(article)

	now := fixedNow()
	store.addView("a1", now.Add(-2*time.Hour))
	store.addView("a1", now.Add(-2*24*time.Hour))

	tracker := NewTracker(store)
	tracker.now = fixedNow

	stats, err := tracker.ArticleStats(context.Background(), "a1")
	if err != nil {
		t.Fatalf("article stats failed: %v", err)
	}
	if stats.TotalViews != 42 {
		t.Errorf("expected 42 total views, got %d", stats.TotalViews)
	}
	if stats.Views24h != 1 || stats.Views7d != 2 {
		t.Errorf("unexpected windows: 24h=%d 7d=%d", stats.Views24h, stats.Views7d)
	}
	if stats.TrendingScore != 7.5 {
		t.Errorf("expected trending score 7.5, got %v", stats.TrendingScore)
	}
}

func TestClassifyReferrer(t *testing.T) {
	tests := []struct {
		name     string
		referrer string
		siteHost string
		want     models.Referrer
	}{
		{"empty is direct", "", "gentimes.example", models.ReferrerDirect},
		{"google is search", "https://www.google.com/search?q=news", "gentimes.example", models.ReferrerSearch},
		{"duckduckgo is search", "https://duckduckgo.com/", "gentimes.example", models.ReferrerSearch},
		{"facebook is social", "https://www.facebook.com/", "gentimes.example", models.ReferrerSocial},
		{"shortened twitter is social", "https://t.co/abc", "gentimes.example", models.ReferrerSocial},
		{"same site is direct", "https://gentimes.example/front-page", "gentimes.example", models.ReferrerDirect},
		{"localhost is direct", "http://localhost:3000/preview", "gentimes.example", models.ReferrerDirect},
		{"anything else is referral", "https://news.partner.org/story", "gentimes.example", models.ReferrerReferral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyReferrer(tt.referrer, tt.siteHost); got != tt.want {
				t.Errorf("ClassifyReferrer(%q) = %q, want %q", tt.referrer, got, tt.want)
			}
		})
	}
}

func TestClassifyDevice(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      models.Device
	}{
		{"empty is desktop", "", models.DeviceDesktop},
		{"plain desktop", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)", models.DeviceDesktop},
		{"iphone is mobile", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148", models.DeviceMobile},
		{"android is mobile", "Mozilla/5.0 (Linux; Android 14; Pixel 8)", models.DeviceMobile},
		{"ipad is tablet", "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)", models.DeviceTablet},
		{"android tablet", "Mozilla/5.0 (Linux; Android 14; SM-X910 Tablet)", models.DeviceTablet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyDevice(tt.userAgent); got != tt.want {
				t.Errorf("ClassifyDevice(%q) = %q, want %q", tt.userAgent, got, tt.want)
			}
		})
	}
}
