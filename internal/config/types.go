package config

import (
	"fmt"
	"time"

	"github.com/porticodev/portico/internal/core/domain"
)

// Config holds all configuration for the gateway.
type Config struct {
	Filename  string           `mapstructure:"-"`
	Server    ServerConfig     `mapstructure:"server"`
	Gateway   GatewayConfig    `mapstructure:"gateway"`
	Providers []ProviderConfig `mapstructure:"providers"`
	Balance   BalanceConfig    `mapstructure:"balance"`
	Logging   LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// GetAddress returns the server address in host:port format.
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GatewayConfig holds the mode flags and the gateway-issued inbound key.
type GatewayConfig struct {
	// APIKey is the single shared key the gateway issues to its local
	// client; unrelated to any upstream key. Empty disables the check.
	APIKey            string `mapstructure:"api_key"`
	EnableLoadBalance bool   `mapstructure:"enable_load_balance"`
	EnableTransform   bool   `mapstructure:"enable_transform"`
	Debug             bool   `mapstructure:"debug"`
	Verbose           bool   `mapstructure:"verbose"`
	// ProxyURL routes all upstream calls through an outbound HTTP(S) proxy.
	ProxyURL string `mapstructure:"proxy_url"`
}

// ProviderConfig describes one upstream AI-completion service.
type ProviderConfig struct {
	Name            string `mapstructure:"name"`
	BaseURL         string `mapstructure:"base_url"`
	APIKey          string `mapstructure:"api_key"`
	Model           string `mapstructure:"model"`
	Transformer     string `mapstructure:"transformer"`
	TransformerOnly bool   `mapstructure:"transformer_only"`
	Order           int    `mapstructure:"order"`
}

// BalanceConfig mirrors the external settings object: strategy plus the
// health-check, ban and speed-first knobs.
type BalanceConfig struct {
	Strategy       string               `mapstructure:"strategy"`
	HealthCheck    HealthCheckConfig    `mapstructure:"health_check"`
	FailedEndpoint FailedEndpointConfig `mapstructure:"failed_endpoint"`
	SpeedFirst     SpeedFirstConfig     `mapstructure:"speed_first"`
}

// HealthCheckConfig controls the periodic sweep.
type HealthCheckConfig struct {
	Enabled    bool  `mapstructure:"enabled"`
	IntervalMs int64 `mapstructure:"interval_ms"`
}

// Interval converts the millisecond setting to a duration.
func (h HealthCheckConfig) Interval() time.Duration {
	return time.Duration(h.IntervalMs) * time.Millisecond
}

// FailedEndpointConfig controls banning.
type FailedEndpointConfig struct {
	BanDurationSeconds int `mapstructure:"ban_duration_seconds"`
}

// BanDuration converts the seconds setting to a duration.
func (f FailedEndpointConfig) BanDuration() time.Duration {
	return time.Duration(f.BanDurationSeconds) * time.Second
}

// SpeedFirstConfig controls latency ranking and the synthetic speed tests.
type SpeedFirstConfig struct {
	ResponseTimeWindowMs     int64  `mapstructure:"response_time_window_ms"`
	MinSamples               int    `mapstructure:"min_samples"`
	SpeedTestIntervalSeconds int    `mapstructure:"speed_test_interval_seconds"`
	SpeedTestStrategy        string `mapstructure:"speed_test_strategy"`
}

// ResponseTimeWindow converts the millisecond setting to a duration.
func (s SpeedFirstConfig) ResponseTimeWindow() time.Duration {
	return time.Duration(s.ResponseTimeWindowMs) * time.Millisecond
}

// SpeedTestInterval converts the seconds setting to a duration.
func (s SpeedFirstConfig) SpeedTestInterval() time.Duration {
	return time.Duration(s.SpeedTestIntervalSeconds) * time.Second
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Dir        string `mapstructure:"dir"`
	Theme      string `mapstructure:"theme"`
	FileOutput bool   `mapstructure:"file_output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// Descriptors converts the provider list into the domain's construction
// input, preserving config order for the stable sort.
func (c *Config) Descriptors() []domain.UpstreamDescriptor {
	out := make([]domain.UpstreamDescriptor, 0, len(c.Providers))
	for _, p := range c.Providers {
		out = append(out, domain.UpstreamDescriptor{
			Name:            p.Name,
			BaseURL:         p.BaseURL,
			APIKey:          p.APIKey,
			Model:           p.Model,
			Transformer:     p.Transformer,
			TransformerOnly: p.TransformerOnly,
			Order:           p.Order,
		})
	}
	return out
}

// Validate rejects configurations the gateway cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d outside valid range", c.Server.Port)
	}
	if c.Balance.FailedEndpoint.BanDurationSeconds < 0 {
		return fmt.Errorf("balance.failed_endpoint.ban_duration_seconds must not be negative")
	}
	if c.Balance.SpeedFirst.MinSamples < 0 {
		return fmt.Errorf("balance.speed_first.min_samples must not be negative")
	}
	if c.Balance.HealthCheck.Enabled && c.Balance.HealthCheck.IntervalMs <= 0 {
		return fmt.Errorf("balance.health_check.interval_ms must be positive when health checks are enabled")
	}
	seen := make(map[string]struct{}, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("every provider needs a name")
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate provider name: %s", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}
