package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"xstation/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Backend    BackendConfig    `yaml:"backend"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Timers     TimersConfig     `yaml:"timers"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Telegram   TelegramConfig   `yaml:"telegram"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// BackendConfig describes the X-Station REST backend the daemon talks to.
type BackendConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type ReconcilerConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	GracePeriod     time.Duration `yaml:"grace_period"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	RetryMaxDelay   time.Duration `yaml:"retry_max_delay"`
	EndTimeout      time.Duration `yaml:"end_timeout"`
}

const (
	TimersBackendMemory = "memory"
	TimersBackendRedis  = "redis"
	TimersBackendSQLite = "sqlite"
)

type TimersConfig struct {
	Backend    string `yaml:"backend"`
	StorageKey string `yaml:"storage_key"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// TelegramConfig enables staff notifications; empty token disables them.
type TelegramConfig struct {
	BotToken string  `yaml:"bot_token"`
	ChatIDs  []int64 `yaml:"chat_ids"`
	Debug    bool    `yaml:"debug"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend base_url is required")
	}
	if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend base_url is invalid: %q", c.Backend.BaseURL)
	}

	switch c.Timers.Backend {
	case TimersBackendMemory:
	case TimersBackendRedis:
		if c.Redis.Address == "" {
			return errors.New("timers.backend=redis requires redis.address")
		}
	case TimersBackendSQLite:
		if c.Database.Path == "" {
			return errors.New("timers.backend=sqlite requires database.path")
		}
	default:
		return fmt.Errorf("unknown timers backend %q", c.Timers.Backend)
	}

	if c.Reconciler.TickInterval > c.Reconciler.RefreshInterval {
		return errors.New("reconciler tick_interval must not exceed refresh_interval")
	}

	if c.Telegram.BotToken != "" && len(c.Telegram.ChatIDs) == 0 {
		return errors.New("telegram bot_token is set but chat_ids is empty")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "xstationd"
	}
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 10 * time.Second
	}
	if c.Backend.CacheTTL == 0 {
		c.Backend.CacheTTL = models.CatalogCacheTTL * time.Second
	}

	if c.Reconciler.RefreshInterval == 0 {
		c.Reconciler.RefreshInterval = models.DefaultRefreshInterval * time.Second
	}
	if c.Reconciler.TickInterval == 0 {
		c.Reconciler.TickInterval = time.Second
	}
	if c.Reconciler.GracePeriod == 0 {
		c.Reconciler.GracePeriod = models.DefaultGracePeriod * time.Second
	}
	if c.Reconciler.RetryDelay == 0 {
		c.Reconciler.RetryDelay = time.Second
	}
	if c.Reconciler.RetryMaxDelay == 0 {
		c.Reconciler.RetryMaxDelay = time.Minute
	}
	if c.Reconciler.EndTimeout == 0 {
		c.Reconciler.EndTimeout = c.Backend.Timeout
	}

	if c.Timers.Backend == "" {
		c.Timers.Backend = TimersBackendMemory
		if c.Database.Path != "" {
			c.Timers.Backend = TimersBackendSQLite
		}
	}
	if c.Timers.StorageKey == "" {
		c.Timers.StorageKey = models.ClientTimersKey
	}

	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}
