package probe

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/porticodev/portico/internal/core/domain"
)

func testEndpoint(t *testing.T, baseURL, transformerName string) *domain.Endpoint {
	t.Helper()
	pool, err := domain.BuildPool([]domain.UpstreamDescriptor{
		{Name: "test", BaseURL: baseURL, APIKey: "sk-test", Transformer: transformerName, Model: "test-model"},
	}, domain.BuildOptions{LoadBalance: true})
	if err != nil {
		t.Fatalf("failed to build pool: %v", err)
	}
	return pool.Endpoints()[0]
}

func TestResponseTimeProbeSuccess(t *testing.T) {
	var gotPath, gotAPIKey, gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("x-api-key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	prober, err := NewProber(StrategyResponseTime, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := prober.Probe(context.Background(), testEndpoint(t, server.URL, ""))

	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if result.LatencyMs <= 0 {
		t.Errorf("expected positive latency, got %f", result.LatencyMs)
	}
	if gotPath != "/v1/messages" {
		t.Errorf("expected native completion path, got %q", gotPath)
	}
	if gotAPIKey != "sk-test" {
		t.Errorf("expected x-api-key auth, got %q", gotAPIKey)
	}
	if gotAuth != "" {
		t.Errorf("expected no Authorization header on native probe, got %q", gotAuth)
	}
	if gotBody["max_tokens"] != float64(1) {
		t.Errorf("expected max_tokens 1, got %v", gotBody["max_tokens"])
	}
}

func TestResponseTimeProbeUsesTransformerPathAndAuth(t *testing.T) {
	var gotPath, gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	prober, _ := NewProber(StrategyResponseTime, Options{})
	result := prober.Probe(context.Background(), testEndpoint(t, server.URL, "openai"))

	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("expected chat-completions path for transformer endpoint, got %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("expected bearer auth on transformer probe, got %q", gotAuth)
	}
}

func TestResponseTimeProbeKeepsLatencyOnHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	prober, _ := NewProber(StrategyResponseTime, Options{})
	result := prober.Probe(context.Background(), testEndpoint(t, server.URL, ""))

	if result.Success {
		t.Fatal("expected failure on 401")
	}
	if math.IsInf(result.LatencyMs, 1) {
		t.Error("expected measured latency on HTTP-level rejection, got +Inf")
	}
	if result.Error == "" {
		t.Error("expected error description")
	}
}

func TestProbeNetworkFailureIsInfinite(t *testing.T) {
	// nothing listens here
	prober, _ := NewProber(StrategyResponseTime, Options{Timeout: time.Second})
	result := prober.Probe(context.Background(), testEndpoint(t, "http://127.0.0.1:1", ""))

	if result.Success {
		t.Fatal("expected failure")
	}
	if !math.IsInf(result.LatencyMs, 1) {
		t.Errorf("expected +Inf latency on network failure, got %f", result.LatencyMs)
	}
}

func TestHeadProbe(t *testing.T) {
	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	prober, _ := NewProber(StrategyHead, Options{})
	result := prober.Probe(context.Background(), testEndpoint(t, server.URL, ""))

	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if gotMethod != http.MethodHead {
		t.Errorf("expected HEAD, got %q", gotMethod)
	}
}

func TestPingProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	prober, _ := NewProber(StrategyPing, Options{})
	result := prober.Probe(context.Background(), testEndpoint(t, server.URL, ""))

	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
}

func TestPingProbeConnectionRefused(t *testing.T) {
	prober, _ := NewProber(StrategyPing, Options{Timeout: time.Second})
	result := prober.Probe(context.Background(), testEndpoint(t, "http://127.0.0.1:1", ""))

	if result.Success {
		t.Fatal("expected failure")
	}
}

func TestNewProberRejectsUnknownStrategy(t *testing.T) {
	if _, err := NewProber("telepathy", Options{}); err == nil {
		t.Error("expected error for unknown probe strategy")
	}
}

func TestRunAllProbesEveryEndpoint(t *testing.T) {
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()

	pool, err := domain.BuildPool([]domain.UpstreamDescriptor{
		{Name: "up", BaseURL: okServer.URL, APIKey: "sk-test"},
		{Name: "down", BaseURL: "http://127.0.0.1:1", APIKey: "sk-test"},
	}, domain.BuildOptions{LoadBalance: true})
	if err != nil {
		t.Fatalf("failed to build pool: %v", err)
	}

	prober, _ := NewProber(StrategyResponseTime, Options{Timeout: time.Second})
	results := RunAll(context.Background(), prober, pool.Endpoints())

	if len(results) != 2 {
		t.Fatalf("expected results for 2 endpoints, got %d", len(results))
	}
	if !results["up"].Success {
		t.Errorf("expected 'up' to succeed: %s", results["up"].Error)
	}
	if results["down"].Success {
		t.Error("expected 'down' to fail")
	}
}

func TestFastestPicksLowestLatency(t *testing.T) {
	results := map[string]domain.ProbeResult{
		"slow":   {LatencyMs: 300, Success: true},
		"fast":   {LatencyMs: 48, Success: true},
		"failed": {LatencyMs: math.Inf(1), Success: false, Error: "down"},
	}

	name, ok := Fastest(results)
	if !ok {
		t.Fatal("expected a fastest endpoint")
	}
	if name != "fast" {
		t.Errorf("expected 'fast', got %q", name)
	}
}

func TestFastestWithNoSuccesses(t *testing.T) {
	results := map[string]domain.ProbeResult{
		"a": {LatencyMs: math.Inf(1), Success: false},
	}
	if _, ok := Fastest(results); ok {
		t.Error("expected no fastest endpoint when all probes failed")
	}
}
