package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/porticodev/portico/internal/logger"
	"github.com/porticodev/portico/theme"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

const sampleConfig = `
server:
  host: 127.0.0.1
  port: 2333
gateway:
  api_key: gateway-secret
  enable_load_balance: true
  enable_transform: true
providers:
  - name: primary
    base_url: https://api.primary.example
    api_key: sk-primary
    order: 0
  - name: compat
    base_url: https://api.compat.example
    api_key: sk-compat
    model: gpt-4o-mini
    transformer: openai
    order: 5
balance:
  strategy: speedfirst
  health_check:
    enabled: true
    interval_ms: 15000
  failed_endpoint:
    ban_duration_seconds: 120
  speed_first:
    response_time_window_ms: 600000
    min_samples: 3
    speed_test_interval_seconds: 60
    speed_test_strategy: head
`

func TestLoadFullConfig(t *testing.T) {
	path := writeConfigFile(t, sampleConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.GetAddress() != "127.0.0.1:2333" {
		t.Errorf("unexpected address: %s", cfg.Server.GetAddress())
	}
	if cfg.Gateway.APIKey != "gateway-secret" {
		t.Errorf("unexpected gateway key: %q", cfg.Gateway.APIKey)
	}
	if !cfg.Gateway.EnableTransform {
		t.Error("expected transform enabled")
	}
	if cfg.Balance.Strategy != "speedfirst" {
		t.Errorf("unexpected strategy: %q", cfg.Balance.Strategy)
	}
	if cfg.Balance.HealthCheck.Interval() != 15*time.Second {
		t.Errorf("unexpected health interval: %v", cfg.Balance.HealthCheck.Interval())
	}
	if cfg.Balance.FailedEndpoint.BanDuration() != 2*time.Minute {
		t.Errorf("unexpected ban duration: %v", cfg.Balance.FailedEndpoint.BanDuration())
	}
	if cfg.Balance.SpeedFirst.MinSamples != 3 {
		t.Errorf("unexpected min samples: %d", cfg.Balance.SpeedFirst.MinSamples)
	}
	if cfg.Balance.SpeedFirst.SpeedTestStrategy != "head" {
		t.Errorf("unexpected speed test strategy: %q", cfg.Balance.SpeedFirst.SpeedTestStrategy)
	}

	descriptors := cfg.Descriptors()
	if len(descriptors) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(descriptors))
	}
	if descriptors[1].Transformer != "openai" || descriptors[1].Model != "gpt-4o-mini" {
		t.Errorf("transformer descriptor not mapped: %+v", descriptors[1])
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfigFile(t, "providers: []\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("expected default port %d, got %d", DefaultPort, cfg.Server.Port)
	}
	if cfg.Server.Host != DefaultHost {
		t.Errorf("expected default host %q, got %q", DefaultHost, cfg.Server.Host)
	}
	if cfg.Balance.Strategy != "fallback" {
		t.Errorf("expected default strategy fallback, got %q", cfg.Balance.Strategy)
	}
	if cfg.Balance.SpeedFirst.MinSamples != 2 {
		t.Errorf("expected default min samples 2, got %d", cfg.Balance.SpeedFirst.MinSamples)
	}
}

func TestLoadMissingForcedFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing forced config file")
	}
}

func TestDebugFlagForcesDebugLevel(t *testing.T) {
	path := writeConfigFile(t, "gateway:\n  debug: true\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 0 }},
		{"negative ban duration", func(c *Config) { c.Balance.FailedEndpoint.BanDurationSeconds = -1 }},
		{"negative min samples", func(c *Config) { c.Balance.SpeedFirst.MinSamples = -1 }},
		{"enabled checks without interval", func(c *Config) {
			c.Balance.HealthCheck.Enabled = true
			c.Balance.HealthCheck.IntervalMs = 0
		}},
		{"unnamed provider", func(c *Config) {
			c.Providers = []ProviderConfig{{BaseURL: "https://x"}}
		}},
		{"duplicate provider names", func(c *Config) {
			c.Providers = []ProviderConfig{{Name: "dup"}, {Name: "dup"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := writeConfigFile(t, "balance:\n  strategy: fallback\n")

	reloaded := make(chan *Config, 1)
	log := logger.NewStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), theme.Plain())

	w, err := NewWatcher(path, log, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("balance:\n  strategy: polling\n"), 0o644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Balance.Strategy != "polling" {
			t.Errorf("expected reloaded strategy polling, got %q", cfg.Balance.Strategy)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never fired")
	}
}

func TestWatcherKeepsSettingsOnBrokenFile(t *testing.T) {
	path := writeConfigFile(t, "balance:\n  strategy: fallback\n")

	reloaded := make(chan *Config, 1)
	log := logger.NewStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), theme.Plain())

	w, err := NewWatcher(path, log, func(cfg *Config) {
		reloaded <- cfg
	})
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("server:\n  port: -5\n"), 0o644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case <-reloaded:
		t.Error("invalid configuration must not reach the reload callback")
	case <-time.After(time.Second):
	}
}
