package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoValidEndpoints is the fatal construction failure: load balancing was
// requested but no descriptor survived filtering. The process must not start.
var ErrNoValidEndpoints = errors.New("no valid endpoints: every provider is missing credentials and none is transformer-eligible")

// ErrNoEligibleEndpoints is the selection-exhaustion sentinel. It is data,
// not an exception: the dispatcher maps it to a 503 and the transport layer
// never sees it.
var ErrNoEligibleEndpoints = errors.New("no eligible endpoints available")

// ProbeError carries the context of a failed latency probe. Probe failures
// never propagate past the probe engine boundary; this type only feeds logs
// and the probe result's message.
type ProbeError struct {
	Err      error
	Endpoint string
	Strategy string
	Latency  time.Duration
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s probe failed for %s after %v: %v", e.Strategy, e.Endpoint, e.Latency, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// DispatchError pairs an upstream forwarding failure with the endpoint that
// produced it, so the supervisor can ban the right target.
type DispatchError struct {
	Err      error
	Endpoint string
	Target   string
	Timeout  bool
}

func (e *DispatchError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("dispatch to %s (%s) timed out: %v", e.Endpoint, e.Target, e.Err)
	}
	return fmt.Sprintf("dispatch to %s (%s) failed: %v", e.Endpoint, e.Target, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
