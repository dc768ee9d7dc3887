package domain

import (
	"math"
	"testing"
	"time"
)

func TestLatencyWindowBound(t *testing.T) {
	e := newEndpoint(UpstreamDescriptor{Name: "a"})
	now := time.Now()

	for i := 0; i < 150; i++ {
		e.recordLatencyLocked(now, float64(i), 0)
	}

	if len(e.samples) != LatencyWindowSize {
		t.Fatalf("expected %d retained samples, got %d", LatencyWindowSize, len(e.samples))
	}

	// samples 50..149 survive; their mean is 99.5
	var want float64
	for i := 50; i < 150; i++ {
		want += float64(i)
	}
	want /= float64(LatencyWindowSize)

	if math.Abs(e.avgMs-want) > 1e-9 {
		t.Errorf("expected average %f over retained window, got %f", want, e.avgMs)
	}
}

func TestLatencyWindowEvictsOldest(t *testing.T) {
	e := newEndpoint(UpstreamDescriptor{Name: "a"})
	now := time.Now()

	for i := 0; i < LatencyWindowSize; i++ {
		e.recordLatencyLocked(now, 10, 0)
	}
	e.recordLatencyLocked(now, 1000, 0)

	if len(e.samples) != LatencyWindowSize {
		t.Fatalf("expected window to stay at %d, got %d", LatencyWindowSize, len(e.samples))
	}
	if e.samples[LatencyWindowSize-1].ms != 1000 {
		t.Error("expected newest sample at the end of the window")
	}
	if e.samples[0].ms != 10 {
		t.Error("expected second-oldest sample to move to the front")
	}
}

func TestLatencyWindowAgePruning(t *testing.T) {
	e := newEndpoint(UpstreamDescriptor{Name: "a"})
	now := time.Now()

	e.recordLatencyLocked(now.Add(-time.Hour), 500, 0)
	e.recordLatencyLocked(now, 100, 30*time.Minute)

	if len(e.samples) != 1 {
		t.Fatalf("expected stale sample pruned, got %d samples", len(e.samples))
	}
	if e.avgMs != 100 {
		t.Errorf("expected average 100 after pruning, got %f", e.avgMs)
	}
}

func TestBanAndExpiry(t *testing.T) {
	e := newEndpoint(UpstreamDescriptor{Name: "a"})
	now := time.Now()

	e.banLocked(now, time.Minute, "timeout")

	if e.eligibleLocked(now) {
		t.Error("expected banned endpoint to be ineligible")
	}
	if !e.eligibleLocked(now.Add(2 * time.Minute)) {
		t.Error("expected endpoint eligible after ban elapsed")
	}
	if !e.healthy {
		t.Error("expected expiry observation to heal the endpoint")
	}
	if e.lastReason != "" {
		t.Errorf("expected ban reason cleared, got %q", e.lastReason)
	}
}

func TestDescriptorTransformerEligible(t *testing.T) {
	tests := []struct {
		name string
		d    UpstreamDescriptor
		want bool
	}{
		{"named transformer", UpstreamDescriptor{BaseURL: "https://x", Transformer: "openai"}, true},
		{"transformer only flag", UpstreamDescriptor{BaseURL: "https://x", TransformerOnly: true}, true},
		{"no base url", UpstreamDescriptor{Transformer: "openai"}, false},
		{"plain native", UpstreamDescriptor{BaseURL: "https://x", APIKey: "k"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.TransformerEligible(); got != tt.want {
				t.Errorf("TransformerEligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDescriptorDomain(t *testing.T) {
	d := UpstreamDescriptor{BaseURL: "https://api.example.com:8443/v1"}
	if got := d.Domain(); got != "api.example.com" {
		t.Errorf("Domain() = %q, want api.example.com", got)
	}
}
