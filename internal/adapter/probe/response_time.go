package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/porticodev/portico/internal/core/domain"
	"github.com/porticodev/portico/internal/util"
)

// probeMaxTokens keeps the synthetic completion as cheap as the upstream
// allows.
const probeMaxTokens = 1

// responseTimeProber issues a minimal real completion request and measures
// wall time from send to the first response byte. It is the most faithful
// probe: it exercises auth, routing and model loading, not just the socket.
type responseTimeProber struct {
	client *http.Client
	opts   Options
}

func newResponseTimeProber(opts Options) *responseTimeProber {
	return &responseTimeProber{
		client: opts.httpClient(),
		opts:   opts,
	}
}

func (p *responseTimeProber) Name() string {
	return StrategyResponseTime
}

func (p *responseTimeProber) Probe(ctx context.Context, endpoint *domain.Endpoint) domain.ProbeResult {
	probeCtx, cancel := context.WithTimeout(ctx, p.opts.timeout())
	defer cancel()

	body, err := json.Marshal(probeBody(endpoint))
	if err != nil {
		return domain.FailedProbe(err.Error())
	}

	target := util.ResolveURLPath(endpoint.BaseURL, completionPath(endpoint))
	req, err := http.NewRequestWithContext(probeCtx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return domain.FailedProbe(err.Error())
	}
	setProbeAuth(req, endpoint)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		perr := &domain.ProbeError{Err: err, Endpoint: endpoint.Name, Strategy: p.Name(), Latency: latency}
		return domain.FailedProbe(perr.Error())
	}
	defer resp.Body.Close()

	// Drain and discard; we only care about reachability and timing.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// An HTTP-level rejection still measured a round trip; keep the
		// latency but mark the probe failed.
		return domain.ProbeResult{LatencyMs: millis(latency), Success: false, Error: resp.Status}
	}
	return domain.ProbeResult{LatencyMs: millis(latency), Success: true}
}

func probeBody(endpoint *domain.Endpoint) map[string]any {
	model := endpoint.Model
	if model == "" {
		model = "default"
	}
	return map[string]any{
		"model":      model,
		"max_tokens": probeMaxTokens,
		"messages": []map[string]any{
			{"role": "user", "content": "ping"},
		},
	}
}

// setProbeAuth applies the auth-header shape the endpoint's wire format
// expects: bearer auth on transformer paths, x-api-key on the native path.
func setProbeAuth(req *http.Request, endpoint *domain.Endpoint) {
	if endpoint.Transformer != "" {
		req.Header.Set("Authorization", "Bearer "+endpoint.APIKey)
		return
	}
	req.Header.Set("x-api-key", endpoint.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")
}
