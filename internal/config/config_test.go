package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"xstation/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
backend:
  base_url: "http://localhost:5000/"
  api_key: "${XSTATION_TEST_KEY}"
reconciler:
  refresh_interval: 3s
database:
  path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	t.Setenv("XSTATION_TEST_KEY", "secret")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Backend.BaseURL != "http://localhost:5000" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.APIKey != "secret" {
		t.Errorf("expected api key from env, got %q", cfg.Backend.APIKey)
	}
	if cfg.Reconciler.RefreshInterval != 3*time.Second {
		t.Errorf("expected refresh interval 3s, got %s", cfg.Reconciler.RefreshInterval)
	}
	if cfg.Timers.Backend != TimersBackendSQLite {
		t.Errorf("expected sqlite timers backend when database path set, got %s", cfg.Timers.Backend)
	}
}

func TestLoadConfigWithEnvFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("backend:\n  base_url: \"${XSTATION_ENV_FILE_URL}\"\n"), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	if err := os.WriteFile(".env", []byte("XSTATION_ENV_FILE_URL=http://backend:5000\n"), 0o644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	defer os.Remove(".env")
	defer os.Unsetenv("XSTATION_ENV_FILE_URL")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Backend.BaseURL != "http://backend:5000" {
		t.Errorf("expected base url from .env, got %s", cfg.Backend.BaseURL)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		cfg := Config{Backend: BackendConfig{BaseURL: "http://localhost:5000"}}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing base url", mutate: func(c *Config) { c.Backend.BaseURL = "" }, wantErr: true},
		{name: "relative base url", mutate: func(c *Config) { c.Backend.BaseURL = "localhost" }, wantErr: true},
		{name: "redis without address", mutate: func(c *Config) { c.Timers.Backend = TimersBackendRedis }, wantErr: true},
		{
			name: "redis with address",
			mutate: func(c *Config) {
				c.Timers.Backend = TimersBackendRedis
				c.Redis.Address = "localhost:6379"
			},
		},
		{name: "sqlite without path", mutate: func(c *Config) { c.Timers.Backend = TimersBackendSQLite }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Timers.Backend = "etcd" }, wantErr: true},
		{
			name:    "tick slower than refresh",
			mutate:  func(c *Config) { c.Reconciler.TickInterval = 5 * time.Second },
			wantErr: true,
		},
		{name: "telegram without chats", mutate: func(c *Config) { c.Telegram.BotToken = "token" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Reconciler.RefreshInterval != models.DefaultRefreshInterval*time.Second {
		t.Errorf("expected default refresh interval, got %s", cfg.Reconciler.RefreshInterval)
	}
	if cfg.Reconciler.TickInterval != time.Second {
		t.Errorf("expected default tick interval 1s, got %s", cfg.Reconciler.TickInterval)
	}
	if cfg.Reconciler.GracePeriod != 2*time.Second {
		t.Errorf("expected default grace period 2s, got %s", cfg.Reconciler.GracePeriod)
	}
	if cfg.Timers.Backend != TimersBackendMemory {
		t.Errorf("expected memory timers backend, got %s", cfg.Timers.Backend)
	}
	if cfg.Timers.StorageKey != models.ClientTimersKey {
		t.Errorf("expected storage key %s, got %s", models.ClientTimersKey, cfg.Timers.StorageKey)
	}
	if cfg.API.HTTP.Port != 8080 {
		t.Errorf("expected default HTTP port 8080, got %d", cfg.API.HTTP.Port)
	}
	if cfg.Reconciler.EndTimeout != cfg.Backend.Timeout {
		t.Errorf("expected end timeout to follow backend timeout")
	}
}
