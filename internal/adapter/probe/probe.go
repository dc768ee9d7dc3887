// Package probe measures upstream latency. A prober knows nothing about
// pools or selection strategies; it turns one endpoint into one ProbeResult
// and recovers every failure into data.
package probe

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/porticodev/portico/internal/core/domain"
	"github.com/porticodev/portico/internal/core/ports"
)

const (
	StrategyResponseTime = "response_time"
	StrategyHead         = "head"
	StrategyPing         = "ping"

	// DefaultTimeout caps any single probe.
	DefaultTimeout = 8 * time.Second
)

// Options configure a prober. ProxyURL, when set, routes HTTP probes
// through the same outbound proxy the dispatcher uses; the ping strategy
// ignores it since it has no HTTP semantics.
type Options struct {
	Timeout  time.Duration
	ProxyURL string
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

func (o Options) httpClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 2,
		DisableCompression:  true,
	}
	if o.ProxyURL != "" {
		if proxyURL, err := url.Parse(o.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &http.Client{
		Timeout:   o.timeout(),
		Transport: transport,
	}
}

// NewProber builds the configured probe strategy.
func NewProber(strategy string, opts Options) (ports.Prober, error) {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "", StrategyResponseTime, "responsetime", "response-time":
		return newResponseTimeProber(opts), nil
	case StrategyHead, "head_request", "headrequest":
		return newHeadProber(opts), nil
	case StrategyPing, "tcp":
		return newPingProber(opts), nil
	default:
		return nil, fmt.Errorf("unknown probe strategy: %s", strategy)
	}
}

// RunAll probes every endpoint concurrently, one task per endpoint with no
// cap; pools are tens of entries, not thousands. Results are keyed by
// endpoint name and a panicked or failed task is recorded as a failure, not
// dropped.
func RunAll(ctx context.Context, prober ports.Prober, endpoints []*domain.Endpoint) map[string]domain.ProbeResult {
	results := make(map[string]domain.ProbeResult, len(endpoints))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, e := range endpoints {
		wg.Add(1)
		go func(e *domain.Endpoint) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					mu.Lock()
					results[e.Name] = domain.FailedProbe(fmt.Sprintf("probe panic: %v", rec))
					mu.Unlock()
				}
			}()

			result := prober.Probe(ctx, e)
			mu.Lock()
			results[e.Name] = result
			mu.Unlock()
		}(e)
	}
	wg.Wait()

	return results
}

// Fastest returns the endpoint name with the lowest latency among successful
// probes, or false when every probe failed.
func Fastest(results map[string]domain.ProbeResult) (string, bool) {
	best := ""
	bestLatency := math.Inf(1)
	for name, r := range results {
		if !r.Success {
			continue
		}
		if r.LatencyMs < bestLatency || (r.LatencyMs == bestLatency && (best == "" || name < best)) {
			best = name
			bestLatency = r.LatencyMs
		}
	}
	return best, best != ""
}

// completionPath is the path a synthetic completion probe hits: the
// transformer's chat-completions path when the endpoint routes through one,
// the native messages path otherwise.
func completionPath(e *domain.Endpoint) string {
	if e.Transformer != "" {
		return "/v1/chat/completions"
	}
	return "/v1/messages"
}

func millis(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
