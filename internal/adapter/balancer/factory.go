package balancer

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/porticodev/portico/internal/core/ports"
)

const (
	StrategyFallback   = "fallback"
	StrategyPolling    = "polling"
	StrategySpeedFirst = "speedfirst"
)

// Factory builds selection strategies by configured name. Registration is
// open so a build can plug in an extra strategy without patching the lookup.
type Factory struct {
	creators   map[string]func() ports.Selector
	minSamples int
	mu         sync.RWMutex
}

// NewFactory registers the three built-in strategies. minSamples is the
// speed-first ranking threshold.
func NewFactory(minSamples int) *Factory {
	f := &Factory{
		creators:   make(map[string]func() ports.Selector),
		minSamples: minSamples,
	}

	f.Register(StrategyFallback, func() ports.Selector {
		return NewFallbackSelector()
	})
	f.Register(StrategyPolling, func() ports.Selector {
		return NewPollingSelector()
	})
	f.Register(StrategySpeedFirst, func() ports.Selector {
		return NewSpeedFirstSelector(minSamples)
	})

	return f
}

// Register adds or replaces a strategy creator.
func (f *Factory) Register(name string, creator func() ports.Selector) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[name] = creator
}

// Create instantiates the named strategy. Names are matched
// case-insensitively and "sequential" is accepted as an alias for fallback.
func (f *Factory) Create(name string) (ports.Selector, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "", "sequential":
		key = StrategyFallback
	case "round-robin", "round_robin":
		key = StrategyPolling
	case "speed-first", "speed_first":
		key = StrategySpeedFirst
	}

	f.mu.RLock()
	creator, exists := f.creators[key]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown selection strategy: %s (available: %v)", name, f.AvailableStrategies())
	}
	return creator(), nil
}

// AvailableStrategies returns the registered strategy names, sorted.
func (f *Factory) AvailableStrategies() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.creators))
	for name := range f.creators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
