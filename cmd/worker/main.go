package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/iklanku/adpilot/internal/config"
	"github.com/iklanku/adpilot/internal/engine"
	"github.com/iklanku/adpilot/internal/notify"
	"github.com/iklanku/adpilot/internal/pkg/distlock"
	"github.com/iklanku/adpilot/internal/pkg/logger"
	"github.com/iklanku/adpilot/internal/pkg/metrics"
	"github.com/iklanku/adpilot/internal/repository/postgres"
	"github.com/iklanku/adpilot/internal/shopee"
	"github.com/iklanku/adpilot/internal/worker"
)

func main() {
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logger.DEBUG)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if !cfg.Automation.Enabled {
		log.Printf("[worker] automation disabled in config, exiting")
		return
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	m := metrics.New()

	metricsRepo := postgres.NewMetricsRepo(db)
	storesRepo := postgres.NewStoresRepo(db)
	rulesRepo := postgres.NewRulesRepo(db, m)
	logsRepo := postgres.NewLogsRepo(db)
	usersRepo := postgres.NewUsersRepo(db)

	client := shopee.NewClient(cfg.Shopee.BaseURL, storesRepo, cfg.Shopee.RequestsPerSecond, m)
	budget := worker.NewRateBudget(redisClient, worker.StoreBudget{
		PerMinute: cfg.Shopee.BudgetPerMinute,
		PerDay:    cfg.Shopee.BudgetPerDay,
	})
	actions := worker.NewBudgetedActions(client, budget)

	var notifier engine.Notifier
	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		dispatcher, err := notify.NewTelegramDispatcher(cfg.Telegram.BotToken, usersRepo)
		if err != nil {
			log.Fatalf("init telegram: %v", err)
		}
		notifier = dispatcher
	}

	eng := engine.New(rulesRepo, metricsRepo, actions, logsRepo, storesRepo, notifier, m,
		engine.Config{Concurrency: cfg.Automation.Concurrency})

	interval := time.Duration(cfg.Automation.TickIntervalSeconds) * time.Second
	lock := distlock.NewLock(redisClient, db, "adpilot:automation-tick", interval)
	scheduler := worker.NewScheduler(eng, lock, interval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler.Run(ctx)
	log.Printf("[worker] stopped")
}
