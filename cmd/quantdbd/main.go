// Command quantdbd is the composition root: it wires the store, upstream
// adapter, fetch coordinator, cache service facade and scheduler together
// and runs until told to stop. It exposes no HTTP API of its own; it
// exists to demonstrate the cache service wired end to end, the way a
// caller embedding this module into their own process would construct it.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"quantdb/internal/cacheservice"
	"quantdb/internal/calendar"
	"quantdb/internal/config"
	"quantdb/internal/fetch"
	"quantdb/internal/monitoring"
	"quantdb/internal/scheduler"
	"quantdb/internal/store"
	"quantdb/internal/upstream"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	db, err := config.ConnectPostgreSQL(cfg)
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	redisClient, err := config.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	assets := store.NewAssetRepo(db)
	dailyBars := store.NewDailyBarRepo(db)
	indexBars := store.NewIndexBarRepo(db)
	coverage := store.NewCoverageRepo(db)
	requestLogs := store.NewRequestLogRepo(db)
	financial := store.NewFinancialRepo(db)

	pgRealtime := store.NewRealtimeRepo(db)
	realtime := store.NewRedisRealtimeRepo(redisClient, pgRealtime, cfg.CacheTTLRealtimeOpen)

	cal, err := calendar.New()
	if err != nil {
		log.Fatalf("failed to load trading calendar: %v", err)
	}

	adapter := upstream.NewHTTPAdapter(cfg.UpstreamBaseURL, cfg.UpstreamTimeout, cfg.UpstreamMaxRetries, cfg.UpstreamRateLimitRPS, cfg.UpstreamBurst)
	coord := fetch.NewCoordinator(adapter, db, cfg.FetchWorkerPoolSize)
	emitter := monitoring.NewEmitter(requestLogs)

	ttl := cacheservice.TTLPolicy{
		AssetInfo:           cfg.CacheTTLAssetInfo,
		RealtimeOpen:        cfg.CacheTTLRealtimeOpen,
		RealtimeClosed:      cfg.CacheTTLRealtimeClosed,
		FinancialSummary:    cfg.CacheTTLFinancialSummary,
		FinancialIndicators: cfg.CacheTTLFinancialIndicators,
	}
	svc := cacheservice.New(cal, coord, adapter, emitter, db, assets, dailyBars, indexBars, realtime, coverage, financial, ttl, cfg.FetchWorkerPoolSize)

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched, err = scheduler.New(cal, svc, coverage, cfg.CacheTTLAssetInfo, cfg.CacheTTLFinancialSummary)
		if err != nil {
			log.Fatalf("failed to build scheduler: %v", err)
		}
		if err := sched.Start(); err != nil {
			log.Fatalf("failed to start scheduler: %v", err)
		}
	}

	log.Printf("quantdbd started (environment: %s)", cfg.Environment)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	_, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if sched != nil {
		if err := sched.Shutdown(); err != nil {
			log.Printf("error shutting down scheduler: %v", err)
		}
	}

	log.Println("quantdbd shutdown complete")
}
