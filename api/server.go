// Package api exposes the scoring engines over an HTTP JSON API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gentimes/pulse"
	"github.com/gentimes/pulse/db"
	"github.com/gentimes/pulse/metrics"
	"github.com/gentimes/pulse/models"
)

// Store is the full storage surface the server needs. db.DB satisfies
// it; tests substitute a fake.
type Store interface {
	pulse.ViewStore
	pulse.TrendingStore
	pulse.AnalyzerStore
	pulse.RelatedStore
	CreateSubscriber(ctx context.Context, subscriber *models.Subscriber) error
}

// Server represents the API server
type Server struct {
	store    Store
	database *db.DB
	tracker  *pulse.Tracker
	trending *pulse.Trending
	analyzer *pulse.Analyzer
	related  *pulse.Related
	logger   *slog.Logger

	addr       string
	siteHost   string
	corsOrigin string
	server     *http.Server
	mux        *http.ServeMux
}

// Config contains server configuration
type Config struct {
	Addr       string
	DBConfig   db.Config
	SiteHost   string
	CORSOrigin string
	Logger     *slog.Logger
}

// NewServer creates a new API server backed by Postgres.
func NewServer(config Config) (*Server, error) {
	database, err := db.New(config.DBConfig)
	if err != nil {
		return nil, err
	}

	s := newServer(database, config)
	s.database = database
	return s, nil
}

// newServer wires engines around an arbitrary store. Split from
// NewServer so tests can inject a fake without a database.
func newServer(store Store, config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:      store,
		tracker:    pulse.NewTracker(store),
		trending:   pulse.NewTrending(store, logger),
		analyzer:   pulse.NewAnalyzer(store),
		related:    pulse.NewRelated(store),
		logger:     logger,
		addr:       config.Addr,
		siteHost:   config.SiteHost,
		corsOrigin: config.CORSOrigin,
		mux:        http.NewServeMux(),
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      otelhttp.NewHandler(s.middleware(s.mux), "pulse-api"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Trending exposes the trending engine for the scheduled recalculation.
func (s *Server) Trending() *pulse.Trending {
	return s.trending
}

// Database returns the underlying database, nil when the server was
// built around a fake store.
func (s *Server) Database() *db.DB {
	return s.database
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/analytics/track", s.handleTrack)
	s.mux.HandleFunc("/analytics/overview", s.handleAnalyticsOverview)
	s.mux.HandleFunc("/analytics/trending", s.handleAnalyticsTrending)
	s.mux.HandleFunc("/analytics/article/", s.handleArticleStats) // /analytics/article/{id}
	s.mux.HandleFunc("/trending/list", s.handleTrendingList)
	s.mux.HandleFunc("/trending/calculate", s.handleTrendingCalculate)
	s.mux.HandleFunc("/trending/toggle/", s.handleTrendingToggle) // /trending/toggle/{id}
	s.mux.HandleFunc("/seo/analyze/", s.handleSEOAnalyze)         // /seo/analyze/{id}
	s.mux.HandleFunc("/seo/overview", s.handleSEOOverview)
	s.mux.HandleFunc("/seo/articles", s.handleSEOArticles)
	s.mux.HandleFunc("/seo/update/", s.handleSEOUpdate) // /seo/update/{id}
	s.mux.HandleFunc("/related/", s.handleRelated)      // /related/{articleId}
	s.mux.HandleFunc("/subscribe", s.handleSubscribe)
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	if s.database != nil {
		return s.database.Close()
	}
	return nil
}

// middleware applies common middleware to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		// Skip health and metrics to reduce noise.
		start := time.Now()
		quiet := r.URL.Path == "/health" || r.URL.Path == "/metrics"

		next.ServeHTTP(w, r)

		if !quiet {
			s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		}
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := s.store.CountPublishedArticles(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get article count")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"articles": count,
		"time":     time.Now(),
	})
}

// TrackRequest is the body of a page-view tracking call. Referrer and
// device are optional; absent values are classified from the request
// headers.
type TrackRequest struct {
	ArticleID string `json:"articleId"`
	Referrer  string `json:"referrer"`
	Device    string `json:"device"`
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ArticleID == "" {
		respondError(w, http.StatusBadRequest, "articleId is required")
		return
	}

	userAgent := r.Header.Get("User-Agent")

	referrer := models.Referrer(req.Referrer)
	if referrer == "" {
		referrer = pulse.ClassifyReferrer(r.Header.Get("Referer"), s.siteHost)
	}
	device := models.Device(req.Device)
	if device == "" {
		device = pulse.ClassifyDevice(userAgent)
	}

	tracked, err := s.tracker.Track(r.Context(), req.ArticleID, clientIP(r), userAgent, referrer, device)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			respondError(w, http.StatusNotFound, "article not found")
			return
		}
		s.logger.Error("track failed", "article_id", req.ArticleID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to track view")
		return
	}

	message := "view tracked"
	if tracked {
		metrics.ViewsTracked.Inc()
	} else {
		metrics.ViewsDeduplicated.Inc()
		message = "view already tracked for this session"
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"tracked": tracked,
		"message": message,
	})
}

func (s *Server) handleAnalyticsOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	overview, err := s.tracker.Overview(r.Context())
	if err != nil {
		s.logger.Error("analytics overview failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to build overview")
		return
	}
	respondJSON(w, http.StatusOK, overview)
}

func (s *Server) handleAnalyticsTrending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit, err := parseLimit(r, 10)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	articles, err := s.trending.Top(r.Context(), limit)
	if err != nil {
		s.logger.Error("trending ranking failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to rank articles")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"articles": articles,
		"count":    len(articles),
	})
}

func (s *Server) handleArticleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/analytics/article/")
	if id == "" {
		respondError(w, http.StatusBadRequest, "article id is required")
		return
	}

	stats, err := s.tracker.ArticleStats(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			respondError(w, http.StatusNotFound, "article not found")
			return
		}
		s.logger.Error("article stats failed", "article_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load article stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTrendingList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit, err := parseLimit(r, 10)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	articles, err := s.trending.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("trending list failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list trending articles")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"articles": articles,
		"count":    len(articles),
	})
}

func (s *Server) handleTrendingCalculate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	updated, err := s.trending.CalculateAll(r.Context())
	if err != nil {
		s.logger.Error("trending calculation failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to calculate trending scores")
		return
	}

	metrics.TrendingRuns.WithLabelValues("manual").Inc()
	metrics.TrendingArticlesUpdated.Add(float64(updated))

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"updated": updated,
		"message": "Updated " + strconv.Itoa(updated) + " articles",
	})
}

func (s *Server) handleTrendingToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/trending/toggle/")
	if id == "" {
		respondError(w, http.StatusBadRequest, "article id is required")
		return
	}

	trending, err := s.trending.Toggle(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			respondError(w, http.StatusNotFound, "article not found")
			return
		}
		s.logger.Error("trending toggle failed", "article_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to toggle trending flag")
		return
	}

	message := "article removed from trending"
	if trending {
		message = "article marked as trending"
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"isTrending": trending,
		"message":    message,
	})
}

func (s *Server) handleSEOAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/seo/analyze/")
	if id == "" {
		respondError(w, http.StatusBadRequest, "article id is required")
		return
	}

	article, analysis, err := s.analyzer.AnalyzeArticle(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			respondError(w, http.StatusNotFound, "article not found")
			return
		}
		s.logger.Error("content analysis failed", "article_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to analyze article")
		return
	}

	metrics.ContentAnalyses.Inc()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"articleId": article.ID,
		"title":     article.Title,
		"slug":      article.Slug,
		"analysis":  analysis,
	})
}

func (s *Server) handleSEOOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	overview, err := s.analyzer.Overview(r.Context())
	if err != nil {
		s.logger.Error("seo overview failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to build overview")
		return
	}
	respondJSON(w, http.StatusOK, overview)
}

func (s *Server) handleSEOArticles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	articles, err := s.analyzer.ArticleList(r.Context())
	if err != nil {
		s.logger.Error("seo article list failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list articles")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"articles": articles,
		"count":    len(articles),
	})
}

func (s *Server) handleSEOUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/seo/update/")
	if id == "" {
		respondError(w, http.StatusBadRequest, "article id is required")
		return
	}

	analysis, err := s.analyzer.UpdateScores(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			respondError(w, http.StatusNotFound, "article not found")
			return
		}
		s.logger.Error("score update failed", "article_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to update scores")
		return
	}

	metrics.ContentAnalyses.Inc()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"analysis": analysis,
	})
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/related/")
	if id == "" {
		respondError(w, http.StatusBadRequest, "article id is required")
		return
	}

	limit, err := parseLimit(r, pulse.DefaultRelatedLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	articles, err := s.related.Rank(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			respondError(w, http.StatusNotFound, "article not found")
			return
		}
		s.logger.Error("related ranking failed", "article_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to rank related articles")
		return
	}

	metrics.RelatedQueries.Inc()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"articles": articles,
		"count":    len(articles),
	})
}

// SubscribeRequest is the body of a newsletter signup.
type SubscribeRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	addr, err := mail.ParseAddress(req.Email)
	if err != nil {
		respondError(w, http.StatusBadRequest, "valid email is required")
		return
	}

	subscriber := &models.Subscriber{
		ID:     uuid.New().String(),
		Email:  strings.ToLower(addr.Address),
		Status: "active",
	}
	if err := s.store.CreateSubscriber(r.Context(), subscriber); err != nil {
		if errors.Is(err, models.ErrConflict) {
			respondError(w, http.StatusConflict, "email is already subscribed")
			return
		}
		s.logger.Error("subscribe failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "subscribed",
	})
}

func parseLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	if limit > 100 {
		limit = 100
	}
	return limit, nil
}

// clientIP extracts the caller address, preferring the first
// X-Forwarded-For hop set by the edge proxy.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
