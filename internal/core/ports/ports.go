// Package ports defines the interfaces between the gateway core and its
// adapters. Adapters accept interfaces and return concrete types.
package ports

import (
	"context"

	"github.com/porticodev/portico/internal/core/domain"
)

// Selector picks the next endpoint to serve a request. Implementations hold
// whatever cursor state their strategy needs; none of it is per-client.
type Selector interface {
	// Select returns domain.ErrNoEligibleEndpoints when nothing is
	// routable. It never returns any other error.
	Select(ctx context.Context, pool *domain.Pool) (*domain.Endpoint, error)
	Name() string
}

// Prober executes one latency measurement against one endpoint. Failures
// come back as data; a Prober never panics or returns an error.
type Prober interface {
	Probe(ctx context.Context, endpoint *domain.Endpoint) domain.ProbeResult
	Name() string
}

// FailureReporter is the dispatcher's view of the health supervisor:
// request-time failures ban the endpoint, successful forwards feed the
// latency window that speed-first ranking reads.
type FailureReporter interface {
	ReportFailure(endpointName, reason string)
	RecordResponseTime(endpointName string, ms float64)
}
