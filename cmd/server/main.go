// Command server runs the inbound edge of the synchronizer: the
// Marketplace A webhook, the read-only query/health API, and the
// Marketplace B poller, per spec §6.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"invsync/internal/adapter"
	"invsync/internal/config"
	"invsync/internal/httpapi"
	"invsync/internal/ingestion/poller"
	"invsync/internal/ingestion/webhook"
	"invsync/internal/logger"
	"invsync/internal/observability"
	"invsync/internal/queue"
	"invsync/internal/repository"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := observability.InitTracer(ctx, "invsync-server", cfg.OTELEndpoint)
	if err != nil {
		log.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	store, err := repository.Open(cfg.PostgresDSN(), repository.DefaultPoolConfig())
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := repository.Migrate(store.DB()); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})
	defer rdb.Close()

	q := queue.NewRedisQueue(queue.NewGoRedisClient(rdb))
	dispatcher := queue.NewDispatcher(q, cfg.QueueRatePerSecond, cfg.QueueBurst)
	go dispatcher.RunJanitor(ctx, cfg.JanitorInterval)

	webhookHandler := webhook.New(cfg.MarketplaceASecret, adapter.MarketplaceA{}, dispatcher, log)

	cursor := poller.NewRedisCursorStore(rdb)
	poll := poller.New(cfg.MarketplaceBAPI, cfg.MarketplaceBAPIKey, adapter.MarketplaceB{}, cursor, dispatcher, log)
	go poll.Run(ctx, cfg.PollInterval)

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Error("failed to shutdown metrics", "error", err)
		}
	}()

	handlers := httpapi.NewHandlers(store, store, poll, dispatcher, log)
	router := httpapi.New(httpapi.Config{
		Webhook:     webhookHandler,
		Handlers:    handlers,
		MetricsPath: metricsHandler,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
}
