package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/user/webintel-service/internal/api"
	"github.com/user/webintel-service/internal/config"
	"github.com/user/webintel-service/internal/domain"
	"github.com/user/webintel-service/internal/executor"
	"github.com/user/webintel-service/internal/fetch"
	"github.com/user/webintel-service/internal/monitoring"
	"github.com/user/webintel-service/internal/scraper"
	"github.com/user/webintel-service/internal/service"
	"github.com/user/webintel-service/internal/storage"
	"github.com/user/webintel-service/internal/trigger"
)

func main() {
	// Initialize structured logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("could not load config", zap.Error(err))
	}

	// Initialize Storage Layer
	pgStore, err := storage.NewPostgresStore(cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	redisStore := storage.NewRedisStore(cfg.RedisAddr)

	metrics := monitoring.NewMetrics()

	// Shared fetch client: the rate limit spaces requests out so
	// simultaneously-due jobs do not hammer their targets.
	fetchOpts := fetch.Options{
		Delay:         time.Duration(cfg.FetchDelayMS) * time.Millisecond,
		Retries:       cfg.FetchRetries,
		Timeout:       time.Duration(cfg.FetchTimeoutSec) * time.Second,
		RatePerSecond: cfg.ScrapeRatePerSec,
	}
	client := fetch.NewClient(fetchOpts, logger)

	// Source scraper registry: one variant per intelligence domain,
	// keyed by the job type it serves.
	competitor := scraper.NewCompetitorScraper(client, logger)
	social := scraper.NewSocialMediaScraper(client, logger)
	market := scraper.NewMarketIntelligenceScraper(client, logger)

	registry := scraper.NewRegistry()
	registry.Register(domain.TypeCompetitorPricing, competitor)
	registry.Register(domain.TypeCompetitorProducts, competitor)
	registry.Register(domain.TypeSocialMetrics, social)
	registry.Register(domain.TypeMarketTrends, market)
	registry.Register(domain.TypeNewsSentiment, market)
	registry.Register(domain.TypeIndustryReports, market)

	exec := executor.NewExecutor(pgStore, redisStore, registry, metrics, logger, executor.Options{
		SkipUnchanged: cfg.SkipUnchanged,
		LockTTL:       time.Duration(cfg.LockTTLMinutes) * time.Minute,
	})
	svc := service.NewService(pgStore, exec, logger)

	// Initialize API Server
	server := api.NewServer(cfg, svc, pgStore, redisStore, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var trig *trigger.Trigger
	if cfg.TriggerEnabled {
		trig = trigger.New(pgStore, svc, logger)
		if err := trig.Start(ctx); err != nil {
			logger.Fatal("could not start trigger loop", zap.Error(err))
		}
	}

	// Graceful Shutdown
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not start server", zap.Error(err))
		}
	}()

	logger.Info("server started", zap.String("port", cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()
	if trig != nil {
		trig.Stop()
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
