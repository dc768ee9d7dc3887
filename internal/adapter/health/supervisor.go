// Package health runs the gateway's availability state machine: a periodic
// probe sweep that bans failing endpoints, time-based ban expiry, and
// immediate bans on request-time failures.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/porticodev/portico/internal/adapter/probe"
	"github.com/porticodev/portico/internal/core/domain"
	"github.com/porticodev/portico/internal/core/ports"
	"github.com/porticodev/portico/internal/logger"
	"github.com/porticodev/portico/internal/metrics"
)

// SupervisorConfig carries the settings the supervisor reads. Strategy mode
// is reduced to the one bit that matters here: whether a request failure
// should trigger an out-of-band re-probe (speed-first only).
type SupervisorConfig struct {
	Enabled          bool
	Interval         time.Duration
	BanDuration      time.Duration
	ReprobeOnFailure bool
}

// Supervisor owns the only periodic health task in the gateway. The state
// machine per endpoint is Healthy -> Banned(until) -> (time passes) ->
// Healthy; a succeeding probe never lifts a ban early, expiry is purely
// time based to avoid flapping.
type Supervisor struct {
	pool   *domain.Pool
	prober ports.Prober
	log    *logger.StyledLogger

	cfgMu sync.RWMutex
	cfg   SupervisorConfig

	mu      sync.Mutex
	running bool
	kick    chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSupervisor wires the supervisor to its pool and probe strategy.
func NewSupervisor(pool *domain.Pool, prober ports.Prober, cfg SupervisorConfig, log *logger.StyledLogger) *Supervisor {
	return &Supervisor{
		pool:   pool,
		prober: prober,
		log:    log,
		cfg:    cfg,
	}
}

// UpdateConfig applies hot-reloaded settings. The new interval takes effect
// after the next tick.
func (s *Supervisor) UpdateConfig(cfg SupervisorConfig) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

func (s *Supervisor) config() SupervisorConfig {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// InitialSweep probes every endpoint once, blocking, so the first served
// request already has health data. Called before the listener accepts.
func (s *Supervisor) InitialSweep(ctx context.Context) {
	s.sweep(ctx)
}

// Start launches the periodic sweep loop when health checks are enabled.
// There is at most one loop per supervisor.
func (s *Supervisor) Start(ctx context.Context) {
	cfg := s.config()
	if !cfg.Enabled || cfg.Interval <= 0 {
		s.log.Info("periodic health checks disabled; ban expiry is the only recovery path")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.kick = make(chan struct{}, 1)
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop(ctx)

	s.log.Info("health supervisor started", "interval", cfg.Interval, "probe", s.prober.Name())
}

// Stop halts the periodic loop and waits for an in-flight sweep to finish.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

// loop serialises scheduled and kicked sweeps through one goroutine, so a
// periodic pass and an immediate re-probe can never run concurrently. A
// kick resets the timer: the next scheduled probe will not fire redundantly
// moments after an immediate one.
func (s *Supervisor) loop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.config().Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-timer.C:
			s.sweep(ctx)
			timer.Reset(s.config().Interval)
		case <-s.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			s.sweep(ctx)
			timer.Reset(s.config().Interval)
		}
	}
}

// ReportFailure bans the endpoint after a request-time failure and, in
// speed-first mode, triggers an immediate out-of-band re-probe of the pool.
func (s *Supervisor) ReportFailure(endpointName, reason string) {
	cfg := s.config()
	s.pool.MarkUnhealthy(endpointName, reason, cfg.BanDuration)
	metrics.SetEndpointHealthy(endpointName, false)
	s.log.InfoHealthStatus("Request failure", endpointName, false, "reason", reason, "banned_for", cfg.BanDuration)

	if cfg.ReprobeOnFailure {
		s.cancelAndRunNow()
	}
}

// RecordResponseTime feeds one observed latency into the endpoint's window.
// Called after every successful forwarded call, not just probes, so
// speed-first ranking follows real traffic.
func (s *Supervisor) RecordResponseTime(endpointName string, ms float64) {
	s.pool.RecordResponseTime(endpointName, ms)
}

// cancelAndRunNow asks the loop to probe immediately and reschedule. A
// no-op when the periodic loop is not running.
func (s *Supervisor) cancelAndRunNow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	select {
	case s.kick <- struct{}{}:
	default:
		// a re-probe is already queued
	}
}

// sweep probes every endpoint concurrently and applies the results: a
// failing probe bans, a succeeding probe records latency. A success against
// a currently banned endpoint does not unban it.
func (s *Supervisor) sweep(ctx context.Context) {
	endpoints := s.pool.Endpoints()
	if len(endpoints) == 0 {
		return
	}

	cfg := s.config()
	results := probe.RunAll(ctx, s.prober, endpoints)

	for _, e := range endpoints {
		result, ok := results[e.Name]
		if !ok {
			continue
		}
		metrics.ObserveProbe(e.Name, s.prober.Name(), result.LatencyMs/1000, result.Success)

		if result.Success {
			s.pool.RecordResponseTime(e.Name, result.LatencyMs)
			s.log.Debug("probe ok", "endpoint", e.Name, "latency_ms", result.LatencyMs)
			continue
		}

		s.pool.MarkUnhealthy(e.Name, result.Error, cfg.BanDuration)
		metrics.SetEndpointHealthy(e.Name, false)
		s.log.InfoHealthStatus("Probe failure", e.Name, false, "error", result.Error)
	}

	// publish rotation state after bans and lazy expiries settle
	for _, snap := range s.pool.Status().Endpoints {
		banned := snap.BannedUntil != nil && time.Now().Before(*snap.BannedUntil)
		metrics.SetEndpointHealthy(snap.Name, snap.Healthy && !banned)
	}
}
