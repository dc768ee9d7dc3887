package app

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/porticodev/portico/internal/adapter/balancer"
	"github.com/porticodev/portico/internal/config"
	"github.com/porticodev/portico/internal/core/domain"
	"github.com/porticodev/portico/internal/logger"
	"github.com/porticodev/portico/theme"
)

func testLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), theme.Plain())
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Providers = []config.ProviderConfig{
		{Name: "primary", BaseURL: "https://api.example.com", APIKey: "sk-test"},
	}
	return cfg
}

func TestNewFailsWithoutValidProviders(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers = nil

	_, err := New(cfg, testLogger())
	if !errors.Is(err, domain.ErrNoValidEndpoints) {
		t.Errorf("expected ErrNoValidEndpoints, got %v", err)
	}
}

func TestNewFailsOnUnknownStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.Balance.Strategy = "quantum"

	if _, err := New(cfg, testLogger()); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestNewFailsOnUnknownProbeStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.Balance.SpeedFirst.SpeedTestStrategy = "telepathy"

	if _, err := New(cfg, testLogger()); err == nil {
		t.Error("expected error for unknown probe strategy")
	}
}

func TestHealthEndpoint(t *testing.T) {
	application, err := New(testConfig(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	server := httptest.NewServer(application.routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	application, err := New(testConfig(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	server := httptest.NewServer(application.routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/status")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer resp.Body.Close()

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}

	if status.Strategy != "fallback" {
		t.Errorf("expected default strategy fallback, got %q", status.Strategy)
	}
	if status.Pool.Total != 1 {
		t.Errorf("expected 1 endpoint in pool, got %d", status.Pool.Total)
	}
	if len(status.Transformers) == 0 {
		t.Error("expected at least one registered transformer")
	}
}

func TestDispatcherMountedAtRoot(t *testing.T) {
	application, err := New(testConfig(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	server := httptest.NewServer(application.routes())
	defer server.Close()

	req, _ := http.NewRequest(http.MethodOptions, server.URL+"/v1/messages", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 preflight, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS headers from the dispatcher")
	}
}

func TestPreflightOnIntrospectionPaths(t *testing.T) {
	application, err := New(testConfig(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	server := httptest.NewServer(application.routes())
	defer server.Close()

	wantHeaders := map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "POST, OPTIONS, GET",
		"Access-Control-Allow-Headers": "Content-Type, Authorization, x-api-key",
		"Access-Control-Max-Age":       "86400",
	}

	for _, path := range []string{"/health", "/status", "/metrics", "/v1/messages", "/anything"} {
		req, _ := http.NewRequest(http.MethodOptions, server.URL+path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("preflight %s failed: %v", path, err)
		}

		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200 preflight, got %d", path, resp.StatusCode)
		}
		for header, want := range wantHeaders {
			if got := resp.Header.Get(header); got != want {
				t.Errorf("%s: expected %s %q, got %q", path, header, want, got)
			}
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if len(body) != 0 {
			t.Errorf("%s: expected empty preflight body, got %q", path, body)
		}
	}
}

func TestSupervisorCadenceFollowsSpeedTestInterval(t *testing.T) {
	factory := balancer.NewFactory(2)
	speedFirst, err := factory.Create(balancer.StrategySpeedFirst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fallback, err := factory.Create(balancer.StrategyFallback)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := testConfig()
	cfg.Balance.HealthCheck.Enabled = true
	cfg.Balance.HealthCheck.IntervalMs = 60_000
	cfg.Balance.SpeedFirst.SpeedTestIntervalSeconds = 30

	got := supervisorConfig(cfg, speedFirst)
	if got.Interval != 30*time.Second {
		t.Errorf("expected the faster speed-test cadence 30s, got %v", got.Interval)
	}
	if !got.ReprobeOnFailure {
		t.Error("expected reprobe on failure in speed-first mode")
	}

	// a slower speed test never stretches the health cadence
	cfg.Balance.SpeedFirst.SpeedTestIntervalSeconds = 120
	if got := supervisorConfig(cfg, speedFirst); got.Interval != time.Minute {
		t.Errorf("expected health cadence 1m to win, got %v", got.Interval)
	}

	// speed-first keeps sweeping even with health checks off
	cfg.Balance.HealthCheck.Enabled = false
	cfg.Balance.SpeedFirst.SpeedTestIntervalSeconds = 45
	got = supervisorConfig(cfg, speedFirst)
	if !got.Enabled {
		t.Error("expected sweeps enabled for speed-first without health checks")
	}
	if got.Interval != 45*time.Second {
		t.Errorf("expected speed-test cadence 45s, got %v", got.Interval)
	}

	// other strategies follow the health-check settings alone
	got = supervisorConfig(cfg, fallback)
	if got.Enabled {
		t.Error("expected sweeps disabled for fallback without health checks")
	}
	if got.ReprobeOnFailure {
		t.Error("expected no failure reprobe outside speed-first mode")
	}
}
