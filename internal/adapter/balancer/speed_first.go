package balancer

import (
	"context"

	"github.com/porticodev/portico/internal/core/domain"
)

// DefaultMinSamples is the ranking threshold when the configuration does
// not supply one.
const DefaultMinSamples = 2

// SpeedFirstSelector serves the eligible endpoint with the lowest average
// response time. Endpoints whose latency window holds fewer than minSamples
// entries stay eligible but are excluded from ranking; when nothing is
// rankable yet the selector degrades to polling for that call rather than
// failing.
type SpeedFirstSelector struct {
	polling    *PollingSelector
	minSamples int
}

// NewSpeedFirstSelector creates a latency-ranked selector.
func NewSpeedFirstSelector(minSamples int) *SpeedFirstSelector {
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return &SpeedFirstSelector{
		polling:    NewPollingSelector(),
		minSamples: minSamples,
	}
}

func (s *SpeedFirstSelector) Name() string {
	return StrategySpeedFirst
}

func (s *SpeedFirstSelector) Select(ctx context.Context, pool *domain.Pool) (*domain.Endpoint, error) {
	candidates := pool.Candidates()
	if len(candidates) == 0 {
		return nil, domain.ErrNoEligibleEndpoints
	}

	var best *domain.Candidate
	for i := range candidates {
		c := &candidates[i]
		if c.Samples < s.minSamples {
			continue
		}
		// Strict less-than keeps ties on the earlier pool position.
		if best == nil || c.AvgMs < best.AvgMs {
			best = c
		}
	}

	if best == nil {
		// Not enough latency data yet; graceful degradation, not an error.
		return s.polling.pick(candidates)
	}
	return best.Endpoint, nil
}
