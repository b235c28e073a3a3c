package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/iklanku/adpilot/internal/api"
	"github.com/iklanku/adpilot/internal/config"
	"github.com/iklanku/adpilot/internal/domain"
	"github.com/iklanku/adpilot/internal/limits"
	"github.com/iklanku/adpilot/internal/pkg/logger"
	"github.com/iklanku/adpilot/internal/pkg/metrics"
	"github.com/iklanku/adpilot/internal/repository/postgres"
	"github.com/iklanku/adpilot/internal/shopee"
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

	db, err := openDB(cfg.Database)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer db.Close()

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
	subRepo := postgres.NewSubscriptionRepo(db)
	logsRepo := postgres.NewLogsRepo(db)
	rulesRepo := postgres.NewRulesRepo(db, m)
	sessionsRepo := postgres.NewSessionsRepo(db)

	enforcer := limits.NewEnforcer(subRepo, planTable(cfg.Limits))
	client := shopee.NewClient(cfg.Shopee.BaseURL, storesRepo, cfg.Shopee.RequestsPerSecond, m)

	verifier := api.VerifierFunc(func(ctx context.Context, token string) (api.Identity, error) {
		userID, role, err := sessionsRepo.Verify(ctx, token)
		if err != nil {
			return api.Identity{}, err
		}
		return api.Identity{UserID: userID, Role: role}, nil
	})

	handlers := &api.Handlers{
		Sync:           api.NewSyncHandler(client, metricsRepo, storesRepo, enforcer, m),
		Logs:           api.NewLogsHandler(logsRepo, rulesRepo, storesRepo, metricsRepo),
		Health:         api.NewHealthChecker(db, redisClient),
		Verifier:       verifier,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.SetupRoutes(handlers),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("[server] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("[server] shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[server] shutdown: %v", err)
	}
}

func openDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// planTable converts the config plan map to the enforcer's fallback table.
// A config without plans yields the shipped defaults.
func planTable(cfg config.LimitsConfig) limits.PlanTable {
	if len(cfg.Plans) == 0 {
		return limits.DefaultPlanTable()
	}
	table := limits.PlanTable{Plans: make(map[string]domain.SubscriptionLimits, len(cfg.Plans))}
	for name, p := range cfg.Plans {
		table.Plans[name] = domain.SubscriptionLimits{
			MaxAccounts:        p.MaxAccounts,
			MaxAutomationRules: p.MaxAutomationRules,
			MaxCampaigns:       p.MaxCampaigns,
		}
	}
	table.Default = table.Plans[cfg.Default]
	if _, ok := table.Plans[cfg.Default]; !ok {
		table.Default = limits.DefaultPlanTable().Default
	}
	return table
}
