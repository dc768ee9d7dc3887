package probe

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/porticodev/portico/internal/core/domain"
)

// pingProber opens a raw TCP connection to the upstream's host and measures
// connect time only. No HTTP semantics, no auth; it answers "is the wire
// up", nothing more.
type pingProber struct {
	opts Options
}

func newPingProber(opts Options) *pingProber {
	return &pingProber{opts: opts}
}

func (p *pingProber) Name() string {
	return StrategyPing
}

func (p *pingProber) Probe(ctx context.Context, endpoint *domain.Endpoint) domain.ProbeResult {
	addr, err := dialAddress(endpoint.BaseURL)
	if err != nil {
		return domain.FailedProbe(err.Error())
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.opts.timeout())
	defer cancel()

	dialer := &net.Dialer{}
	start := time.Now()
	conn, err := dialer.DialContext(probeCtx, "tcp", addr)
	latency := time.Since(start)
	if err != nil {
		perr := &domain.ProbeError{Err: err, Endpoint: endpoint.Name, Strategy: p.Name(), Latency: latency}
		return domain.FailedProbe(perr.Error())
	}
	_ = conn.Close()

	return domain.ProbeResult{LatencyMs: millis(latency), Success: true}
}

// dialAddress derives host:port from the base URL: an explicit port wins,
// otherwise 443 for https and 80 for http.
func dialAddress(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
