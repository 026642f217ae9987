package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/gentimes/pulse/api"
	"github.com/gentimes/pulse/config"
	"github.com/gentimes/pulse/db"
	"github.com/gentimes/pulse/metrics"
)

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("pulse service initializing", "version", "1.0.0")

	// Propagate incoming trace context through the request handlers.
	otel.SetTextMapPropagator(propagation.TraceContext{})

	cfg := config.Load()

	// Command-line flags (override config file and environment)
	addr := flag.String("addr", cfg.Server.Addr, "HTTP listen address")
	dsn := flag.String("dsn", cfg.Database.DSN, "PostgreSQL connection string")
	siteHost := flag.String("site-host", cfg.Site.Host, "Publication hostname, used for referrer classification")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	flag.Parse()

	corsOrigin := cfg.Server.CORSOrigin
	if *disableCORS {
		corsOrigin = ""
	}

	server, err := api.NewServer(api.Config{
		Addr:       *addr,
		DBConfig:   db.Config{DSN: *dsn},
		SiteHost:   *siteHost,
		CORSOrigin: corsOrigin,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Connection-pool metrics
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			metrics.UpdateDBStats(server.Database().DB())
		}
	}()
	logger.Info("database metrics initialized")

	// Hourly trending recalculation over recently published articles
	scheduler := cron.New(cron.WithLocation(cfg.Scheduler.Location()))
	_, err = scheduler.AddFunc(cfg.Scheduler.CronExpression, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		updated, err := server.Trending().CalculateRecent(ctx)
		if err != nil {
			logger.Error("scheduled trending run failed", "error", err)
			return
		}
		metrics.TrendingRuns.WithLabelValues("scheduled").Inc()
		metrics.TrendingArticlesUpdated.Add(float64(updated))
		logger.Info("scheduled trending run complete", "updated", updated)
	})
	if err != nil {
		logger.Error("invalid cron expression", "expression", cfg.Scheduler.CronExpression, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("trending scheduler started", "expression", cfg.Scheduler.CronExpression, "timezone", cfg.Scheduler.Timezone)

	// Start server in a goroutine
	go func() {
		logger.Info("pulse service starting", "addr", *addr, "site_host", *siteHost)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cronCtx := scheduler.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
