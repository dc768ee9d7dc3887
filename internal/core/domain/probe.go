package domain

import "math"

// ProbeResult is the outcome of one latency measurement against one
// endpoint. Failures are recorded with infinite latency rather than
// propagated, so aggregation code can rank results without error handling.
type ProbeResult struct {
	LatencyMs float64 `json:"latency_ms"`
	Success   bool    `json:"success"`
	Error     string  `json:"error,omitempty"`
}

// FailedProbe builds the canonical failure result.
func FailedProbe(msg string) ProbeResult {
	return ProbeResult{LatencyMs: math.Inf(1), Success: false, Error: msg}
}
