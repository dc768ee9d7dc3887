package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPort = 2333
	DefaultHost = "127.0.0.1"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Minute, // streamed completions run long
			ShutdownTimeout: 10 * time.Second,
		},
		Gateway: GatewayConfig{
			EnableLoadBalance: true,
			EnableTransform:   false,
		},
		Balance: BalanceConfig{
			Strategy: "fallback",
			HealthCheck: HealthCheckConfig{
				Enabled:    true,
				IntervalMs: 30_000,
			},
			FailedEndpoint: FailedEndpointConfig{
				BanDurationSeconds: 60,
			},
			SpeedFirst: SpeedFirstConfig{
				ResponseTimeWindowMs:     300_000,
				MinSamples:               2,
				SpeedTestIntervalSeconds: 300,
				SpeedTestStrategy:        "response_time",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "./logs",
			Theme:      "default",
			FileOutput: true,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}
}

// Load reads configuration from file and PORTICO_* environment variables.
// An empty path falls back to the conventional search locations.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.portico")
		}
	}

	v.SetEnvPrefix("PORTICO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// a missing config file is fine when no path was forced
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Filename = v.ConfigFileUsed()

	if cfg.Gateway.Debug {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
