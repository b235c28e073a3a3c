// Package config loads application configuration from YAML with environment
// variable overrides for secrets and deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Shopee     ShopeeConfig     `yaml:"shopee"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Automation AutomationConfig `yaml:"automation"`
	Limits     LimitsConfig     `yaml:"limits"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis connection settings. Redis is optional; an empty
// address disables distributed locking and the cross-instance rate budget.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ShopeeConfig holds seller API settings.
type ShopeeConfig struct {
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BudgetPerMinute   int     `yaml:"budget_per_minute"`
	BudgetPerDay      int     `yaml:"budget_per_day"`
}

// TelegramConfig holds notification bot settings.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
}

// AutomationConfig holds rule engine settings.
type AutomationConfig struct {
	Enabled             bool `yaml:"enabled"`
	TickIntervalSeconds int  `yaml:"tick_interval_seconds"`
	Concurrency         int  `yaml:"concurrency"`
}

// PlanLimits is one subscription tier's capacity in the static fallback
// table. -1 means unlimited.
type PlanLimits struct {
	MaxAccounts        int `yaml:"max_accounts"`
	MaxAutomationRules int `yaml:"max_automation_rules"`
	MaxCampaigns       int `yaml:"max_campaigns"`
}

// LimitsConfig holds the static plan fallback table used when the dynamic
// plan store has no entry.
type LimitsConfig struct {
	Plans   map[string]PlanLimits `yaml:"plans"`
	Default string                `yaml:"default"`
}

// Load reads and validates a YAML config file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads .env (if present), then the YAML file, then applies
// environment variable overrides. Secrets should come from the environment,
// never the YAML file.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Telegram.BotToken = token
		cfg.Telegram.Enabled = true
	}
	if base := os.Getenv("SHOPEE_BASE_URL"); base != "" {
		cfg.Shopee.BaseURL = base
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVER_PORT %q", port)
		}
		cfg.Server.Port = p
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is required (or set DATABASE_URL)")
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Shopee.RequestsPerSecond == 0 {
		c.Shopee.RequestsPerSecond = 2
	}
	if c.Automation.TickIntervalSeconds == 0 {
		c.Automation.TickIntervalSeconds = 300
	}
	if c.Automation.Concurrency == 0 {
		c.Automation.Concurrency = 4
	}
	if c.Limits.Default == "" {
		c.Limits.Default = "free"
	}
	if c.Limits.Plans == nil {
		c.Limits.Plans = map[string]PlanLimits{
			"free":       {MaxAccounts: 1, MaxAutomationRules: 2, MaxCampaigns: 5},
			"starter":    {MaxAccounts: 2, MaxAutomationRules: 10, MaxCampaigns: 50},
			"pro":        {MaxAccounts: 5, MaxAutomationRules: 50, MaxCampaigns: 200},
			"enterprise": {MaxAccounts: -1, MaxAutomationRules: -1, MaxCampaigns: -1},
		}
	}
}
