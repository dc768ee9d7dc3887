package balancer

import (
	"context"

	"github.com/porticodev/portico/internal/core/domain"
)

// FallbackSelector always serves the first eligible endpoint in pool order.
// Failover is emergent: a ban on the front endpoint makes the next one
// first-eligible until the ban lapses.
type FallbackSelector struct{}

// NewFallbackSelector creates a sequential-failover selector.
func NewFallbackSelector() *FallbackSelector {
	return &FallbackSelector{}
}

func (s *FallbackSelector) Name() string {
	return StrategyFallback
}

func (s *FallbackSelector) Select(ctx context.Context, pool *domain.Pool) (*domain.Endpoint, error) {
	candidates := pool.Candidates()
	if len(candidates) == 0 {
		return nil, domain.ErrNoEligibleEndpoints
	}
	return candidates[0].Endpoint, nil
}
