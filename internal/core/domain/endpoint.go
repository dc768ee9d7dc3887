package domain

import (
	"time"
)

// LatencyWindowSize bounds the per-endpoint response time history.
const LatencyWindowSize = 100

// Endpoint wraps an UpstreamDescriptor with its live runtime state. All
// runtime fields are guarded by the owning Pool's mutex; nothing outside the
// pool mutates them. Descriptor fields are immutable and safe to read from
// any goroutine.
type Endpoint struct {
	UpstreamDescriptor

	healthy     bool
	bannedUntil time.Time
	lastReason  string

	samples  []latencySample
	avgMs    float64
	lastSeen time.Time
}

type latencySample struct {
	at time.Time
	ms float64
}

func newEndpoint(d UpstreamDescriptor) *Endpoint {
	return &Endpoint{
		UpstreamDescriptor: d,
		healthy:            true,
		samples:            make([]latencySample, 0, LatencyWindowSize),
	}
}

// eligibleLocked evaluates selection eligibility at now, clearing an expired
// ban as a side effect. Caller holds the pool lock.
func (e *Endpoint) eligibleLocked(now time.Time) bool {
	if !e.bannedUntil.IsZero() {
		if now.Before(e.bannedUntil) {
			return false
		}
		// Ban elapsed; the endpoint re-enters rotation lazily, no
		// background clock needed.
		e.bannedUntil = time.Time{}
		e.healthy = true
		e.lastReason = ""
	}
	return e.healthy
}

// banLocked excludes the endpoint until the deadline. A non-positive
// duration is a no-op; bans are purely time based. Caller holds the pool
// lock.
func (e *Endpoint) banLocked(now time.Time, d time.Duration, reason string) {
	if d <= 0 {
		return
	}
	e.healthy = false
	e.bannedUntil = now.Add(d)
	e.lastReason = reason
}

// recordLatencyLocked appends one response time measurement, evicting the
// oldest entry once the window is full, and recomputes the mean over the
// retained window. maxAge > 0 additionally drops samples older than the
// configured response time window. Caller holds the pool lock.
func (e *Endpoint) recordLatencyLocked(now time.Time, ms float64, maxAge time.Duration) {
	if maxAge > 0 {
		cutoff := now.Add(-maxAge)
		kept := e.samples[:0]
		for _, s := range e.samples {
			if s.at.After(cutoff) {
				kept = append(kept, s)
			}
		}
		e.samples = kept
	}

	if len(e.samples) == LatencyWindowSize {
		copy(e.samples, e.samples[1:])
		e.samples = e.samples[:LatencyWindowSize-1]
	}
	e.samples = append(e.samples, latencySample{at: now, ms: ms})
	e.lastSeen = now

	var total float64
	for _, s := range e.samples {
		total += s.ms
	}
	e.avgMs = total / float64(len(e.samples))
}
