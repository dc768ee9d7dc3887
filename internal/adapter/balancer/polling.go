package balancer

import (
	"context"
	"sync"

	"github.com/porticodev/portico/internal/core/domain"
)

// PollingSelector advances a single shared cursor through the eligible
// endpoints in pool order, wrapping at the end. The cursor lives for the
// life of the gateway; there is no per-client state.
type PollingSelector struct {
	mu      sync.Mutex
	counter int64
}

// NewPollingSelector creates a round-robin selector.
func NewPollingSelector() *PollingSelector {
	return &PollingSelector{}
}

func (s *PollingSelector) Name() string {
	return StrategyPolling
}

func (s *PollingSelector) Select(ctx context.Context, pool *domain.Pool) (*domain.Endpoint, error) {
	candidates := pool.Candidates()
	return s.pick(candidates)
}

// pick advances the cursor over the supplied candidates. Split out so the
// speed-first selector can degrade to the same sequence.
func (s *PollingSelector) pick(candidates []domain.Candidate) (*domain.Endpoint, error) {
	if len(candidates) == 0 {
		return nil, domain.ErrNoEligibleEndpoints
	}

	s.mu.Lock()
	index := s.counter % int64(len(candidates))
	s.counter++
	s.mu.Unlock()

	return candidates[index].Endpoint, nil
}
