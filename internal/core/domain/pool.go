package domain

import (
	"sort"
	"sync"
	"time"
)

// Pool is the ordered set of endpoints plus their live state. Membership is
// immutable after construction; every runtime mutation happens inside one
// lock-guarded method so concurrent selection, dispatch and health probing
// never observe a half-updated endpoint.
type Pool struct {
	mu        sync.Mutex
	endpoints []*Endpoint
	byName    map[string]*Endpoint

	// samples older than this are dropped from the latency window when a
	// new sample arrives; zero disables age-based pruning
	latencyMaxAge time.Duration
}

// BuildOptions carries the mode flags that influence descriptor filtering.
type BuildOptions struct {
	LoadBalance   bool
	Transform     bool
	LatencyMaxAge time.Duration
}

// BuildPool filters the descriptors to usable ones and assembles the pool.
// A descriptor survives when it carries native credentials (base URL and API
// key, plus a model when it routes through a transformer) or, with the
// transformation pipeline enabled, when it is transformer-eligible. The
// result is stable-sorted ascending by Order, absent treated as 0.
func BuildPool(descriptors []UpstreamDescriptor, opts BuildOptions) (*Pool, error) {
	var kept []UpstreamDescriptor
	for _, d := range descriptors {
		nativeOK := d.BaseURL != "" && d.APIKey != "" && (d.Transformer == "" || d.Model != "")
		if nativeOK || (opts.Transform && d.TransformerEligible()) {
			kept = append(kept, d)
		}
	}

	if len(kept) == 0 && opts.LoadBalance {
		return nil, ErrNoValidEndpoints
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Order < kept[j].Order
	})

	p := &Pool{
		endpoints:     make([]*Endpoint, 0, len(kept)),
		byName:        make(map[string]*Endpoint, len(kept)),
		latencyMaxAge: opts.LatencyMaxAge,
	}
	for _, d := range kept {
		if _, dup := p.byName[d.Name]; dup {
			continue
		}
		e := newEndpoint(d)
		p.endpoints = append(p.endpoints, e)
		p.byName[d.Name] = e
	}
	return p, nil
}

// Len returns the pool size.
func (p *Pool) Len() int {
	return len(p.endpoints)
}

// Endpoints returns the endpoints in pool order. The slice is a copy; the
// endpoints are shared.
func (p *Pool) Endpoints() []*Endpoint {
	out := make([]*Endpoint, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

// Candidate is a point-in-time view of an eligible endpoint that selection
// strategies rank without touching pool internals.
type Candidate struct {
	Endpoint *Endpoint
	AvgMs    float64
	Samples  int
}

// Candidates returns the currently eligible endpoints in pool order.
// Evaluating eligibility clears expired bans, so a banned endpoint whose
// deadline has passed returns to rotation on the very call that observes it.
func (p *Pool) Candidates() []Candidate {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	out := make([]Candidate, 0, len(p.endpoints))
	for _, e := range p.endpoints {
		if !e.eligibleLocked(now) {
			continue
		}
		out = append(out, Candidate{Endpoint: e, AvgMs: e.avgMs, Samples: len(e.samples)})
	}
	return out
}

// MarkUnhealthy bans the named endpoint for the given duration. Unknown
// names are ignored; the dispatcher can race a config reload harmlessly.
func (p *Pool) MarkUnhealthy(name, reason string, banFor time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.byName[name]; ok {
		e.banLocked(time.Now(), banFor, reason)
	}
}

// RecordResponseTime appends one observed latency for the named endpoint and
// recomputes its rolling average.
func (p *Pool) RecordResponseTime(name string, ms float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.byName[name]; ok {
		e.recordLatencyLocked(time.Now(), ms, p.latencyMaxAge)
	}
}

// EndpointSnapshot is the per-endpoint view exposed for observability.
type EndpointSnapshot struct {
	Name        string     `json:"name"`
	Healthy     bool       `json:"healthy"`
	BannedUntil *time.Time `json:"banned_until,omitempty"`
	BanReason   string     `json:"ban_reason,omitempty"`
	AvgMs       float64    `json:"avg_response_time_ms"`
	Samples     int        `json:"sample_count"`
	Transformer string     `json:"transformer,omitempty"`
}

// PoolStatus summarises pool health for the status API and CLI tooling.
type PoolStatus struct {
	Total     int                `json:"total"`
	Healthy   int                `json:"healthy"`
	Unhealthy int                `json:"unhealthy"`
	Endpoints []EndpointSnapshot `json:"endpoints"`
}

// Status returns a side-effect-free snapshot: expired bans are reported as
// they stand, not cleared, so observing the pool never changes it.
func (p *Pool) Status() PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	st := PoolStatus{
		Total:     len(p.endpoints),
		Endpoints: make([]EndpointSnapshot, 0, len(p.endpoints)),
	}
	for _, e := range p.endpoints {
		snap := EndpointSnapshot{
			Name:        e.Name,
			Healthy:     e.healthy,
			BanReason:   e.lastReason,
			AvgMs:       e.avgMs,
			Samples:     len(e.samples),
			Transformer: e.Transformer,
		}
		if !e.bannedUntil.IsZero() {
			until := e.bannedUntil
			snap.BannedUntil = &until
		}
		banned := !e.bannedUntil.IsZero() && now.Before(e.bannedUntil)
		if e.healthy && !banned {
			st.Healthy++
		} else {
			st.Unhealthy++
		}
		st.Endpoints = append(st.Endpoints, snap)
	}
	return st
}

// HasTransformerEligible reports whether any endpoint can be served through
// the transformation pipeline.
func (p *Pool) HasTransformerEligible() bool {
	for _, e := range p.endpoints {
		if e.TransformerEligible() {
			return true
		}
	}
	return false
}
