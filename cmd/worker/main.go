// Command worker runs the pull-loop that dequeues jobs, commits them to
// the repository under the per-product lock, and acks or retries them,
// per spec §4.F.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"invsync/internal/config"
	"invsync/internal/lock"
	"invsync/internal/logger"
	"invsync/internal/observability"
	"invsync/internal/queue"
	"invsync/internal/repository"
	"invsync/internal/worker"
)

const metricsAddr = ":6162"

func serveMetrics(handler http.Handler, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	log.Info("worker metrics listening", "addr", metricsAddr)
	if err := http.ListenAndServe(metricsAddr, mux); err != nil {
		log.Error("metrics server error", "error", err)
	}
}

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := observability.InitTracer(ctx, "invsync-worker", cfg.OTELEndpoint)
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

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})
	defer rdb.Close()

	q := queue.NewRedisQueue(queue.NewGoRedisClient(rdb))
	dispatcher := queue.NewDispatcher(q, cfg.QueueRatePerSecond, cfg.QueueBurst)
	locks := lock.New(lock.NewGoRedisClient(rdb), lock.Options{TTL: cfg.LockTTL})

	agent := worker.New(dispatcher, locks, store, worker.AgentConfig{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		MaxBackoff:   cfg.WorkerMaxBackoff,
		LockTTL:      cfg.LockTTL,
	}, log)

	log.Info("worker starting", "concurrency", cfg.WorkerConcurrency)
	go agent.Run(ctx)

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
	go serveMetrics(metricsHandler, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker")
	cancel()
	<-agent.Done()
}
