// Package metrics defines the Prometheus instruments exported by the
// scoring service.
package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ViewsTracked counts page views recorded as new events.
	ViewsTracked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_views_tracked_total",
		Help: "Total page views recorded",
	})

	// ViewsDeduplicated counts views dropped by the session dedup window.
	ViewsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_views_deduplicated_total",
		Help: "Total page views dropped as duplicates within the dedup window",
	})

	// TrendingRuns counts trending recalculation batches by trigger.
	TrendingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_trending_runs_total",
		Help: "Total trending recalculation runs",
	}, []string{"trigger"})

	// TrendingArticlesUpdated counts articles written by trending batches.
	TrendingArticlesUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_trending_articles_updated_total",
		Help: "Total articles updated by trending recalculation",
	})

	// ContentAnalyses counts content analysis runs.
	ContentAnalyses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_content_analyses_total",
		Help: "Total content analysis runs",
	})

	// RelatedQueries counts related-article lookups.
	RelatedQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_related_queries_total",
		Help: "Total related-article lookups",
	})

	dbOpenConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_db_open_connections",
		Help: "Open database connections",
	})

	dbInUseConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_db_in_use_connections",
		Help: "Database connections currently in use",
	})

	dbIdleConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_db_idle_connections",
		Help: "Idle database connections",
	})

	dbWaitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_db_wait_count",
		Help: "Total connections waited for",
	})
)

// UpdateDBStats refreshes the connection-pool gauges. Called on a
// ticker from main.
func UpdateDBStats(conn *sql.DB) {
	stats := conn.Stats()
	dbOpenConns.Set(float64(stats.OpenConnections))
	dbInUseConns.Set(float64(stats.InUse))
	dbIdleConns.Set(float64(stats.Idle))
	dbWaitCount.Set(float64(stats.WaitCount))
}
