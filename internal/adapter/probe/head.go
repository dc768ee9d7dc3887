package probe

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/porticodev/portico/internal/core/domain"
	"github.com/porticodev/portico/internal/util"
)

// headProber issues a HEAD to the completion path with the endpoint's own
// auth. Cheaper than a real completion, but some upstreams reject HEAD
// outright; that surfaces as a probe failure, never a crash.
type headProber struct {
	client *http.Client
	opts   Options
}

func newHeadProber(opts Options) *headProber {
	return &headProber{
		client: opts.httpClient(),
		opts:   opts,
	}
}

func (p *headProber) Name() string {
	return StrategyHead
}

func (p *headProber) Probe(ctx context.Context, endpoint *domain.Endpoint) domain.ProbeResult {
	probeCtx, cancel := context.WithTimeout(ctx, p.opts.timeout())
	defer cancel()

	target := util.ResolveURLPath(endpoint.BaseURL, completionPath(endpoint))
	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, target, nil)
	if err != nil {
		return domain.FailedProbe(err.Error())
	}
	setProbeAuth(req, endpoint)

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		perr := &domain.ProbeError{Err: err, Endpoint: endpoint.Name, Strategy: p.Name(), Latency: latency}
		return domain.FailedProbe(perr.Error())
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ProbeResult{LatencyMs: millis(latency), Success: false, Error: resp.Status}
	}
	return domain.ProbeResult{LatencyMs: millis(latency), Success: true}
}
