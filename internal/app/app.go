// Package app wires the gateway together: pool, selector, prober,
// supervisor, transformer registry, dispatcher and the HTTP server, with
// one instance of each owned by the Application.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/porticodev/portico/internal/adapter/balancer"
	"github.com/porticodev/portico/internal/adapter/health"
	"github.com/porticodev/portico/internal/adapter/lock"
	"github.com/porticodev/portico/internal/adapter/probe"
	"github.com/porticodev/portico/internal/adapter/proxy"
	"github.com/porticodev/portico/internal/adapter/transformer"
	"github.com/porticodev/portico/internal/config"
	"github.com/porticodev/portico/internal/core/domain"
	"github.com/porticodev/portico/internal/core/ports"
	"github.com/porticodev/portico/internal/logger"
)

// Application owns the gateway's long-lived components. Construction can
// fail fast (empty pool, unknown strategy); Start and Stop manage the
// runtime pieces.
type Application struct {
	configMu sync.RWMutex
	config   *config.Config

	pool       *domain.Pool
	selector   ports.Selector
	supervisor *health.Supervisor
	registry   *transformer.Registry
	dispatcher *proxy.Dispatcher
	instance   *lock.Lock
	watcher    *config.Watcher
	server     *http.Server
	log        *logger.StyledLogger
	errCh      chan error
}

// New builds the full component graph from configuration. It fails when no
// provider yields a valid endpoint, when the strategy name is unknown or
// when the probe strategy is unknown.
func New(cfg *config.Config, log *logger.StyledLogger) (*Application, error) {
	pool, err := domain.BuildPool(cfg.Descriptors(), domain.BuildOptions{
		LoadBalance:   cfg.Gateway.EnableLoadBalance,
		Transform:     cfg.Gateway.EnableTransform,
		LatencyMaxAge: cfg.Balance.SpeedFirst.ResponseTimeWindow(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build endpoint pool: %w", err)
	}

	factory := balancer.NewFactory(cfg.Balance.SpeedFirst.MinSamples)
	selector, err := factory.Create(cfg.Balance.Strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to create selection strategy: %w", err)
	}

	prober, err := probe.NewProber(cfg.Balance.SpeedFirst.SpeedTestStrategy, probe.Options{
		ProxyURL: cfg.Gateway.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create prober: %w", err)
	}

	supervisor := health.NewSupervisor(pool, prober, supervisorConfig(cfg, selector), log)

	registry := transformer.NewRegistry(log)
	registry.Register(transformer.NewOpenAI())

	dispatcher, err := proxy.NewDispatcher(pool, selector, registry, supervisor, dispatcherConfig(cfg), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	app := &Application{
		config:     cfg,
		pool:       pool,
		selector:   selector,
		supervisor: supervisor,
		registry:   registry,
		dispatcher: dispatcher,
		instance:   lock.New(lock.DefaultPath(), cfg.Server.Port, log),
		log:        log,
		errCh:      make(chan error, 1),
	}

	app.server = &http.Server{
		Addr:         cfg.Server.GetAddress(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Handler:      app.routes(),
	}

	return app, nil
}

// Start acquires the instance lock, runs the blocking initial health sweep
// and only then begins accepting traffic, so the first served request
// already has health data.
func (a *Application) Start(ctx context.Context) error {
	holder, err := a.instance.Acquire(ctx)
	if err != nil {
		if errors.Is(err, lock.ErrAlreadyRunning) && holder != nil {
			return fmt.Errorf("%w (pid %d, port %d)", err, holder.PID, holder.Port)
		}
		return err
	}

	a.log.InfoWithCount("Probing endpoints before accepting traffic", a.pool.Len())
	a.supervisor.InitialSweep(ctx)
	a.supervisor.Start(ctx)

	listener, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		a.instance.Release()
		return fmt.Errorf("failed to bind %s: %w", a.server.Addr, err)
	}

	go func() {
		if serveErr := a.server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			a.errCh <- serveErr
		}
	}()

	go func() {
		select {
		case err := <-a.errCh:
			a.log.Error("Server error", "error", err)
		case <-ctx.Done():
		}
	}()

	if cfg := a.getConfig(); cfg.Filename != "" {
		watcher, werr := config.NewWatcher(cfg.Filename, a.log, a.applyConfig)
		if werr != nil {
			a.log.Warn("Config hot reload disabled", "error", werr)
		} else {
			a.watcher = watcher
		}
	}

	a.log.Info("Portico started", "bind", a.server.Addr, "strategy", a.selector.Name())
	return nil
}

// Stop shuts the gateway down in order: stop accepting connections, let
// in-flight requests drain, stop the supervisor, then release the lock.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.getConfig().Server.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	a.supervisor.Stop()

	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			a.log.Warn("Failed to close config watcher", "error", err)
		}
	}

	a.instance.Release()
	a.log.Info("Portico stopped")
	return shutdownErr
}

// applyConfig handles a hot reload. Settings that live behind UpdateConfig
// take effect immediately; provider list changes need a restart and are
// logged as such.
func (a *Application) applyConfig(cfg *config.Config) {
	a.setConfig(cfg)

	a.supervisor.UpdateConfig(supervisorConfig(cfg, a.selector))
	a.dispatcher.UpdateConfig(dispatcherConfig(cfg))

	if len(cfg.Descriptors()) != a.pool.Len() {
		a.log.Warn("Provider list changed on disk, restart to apply")
	}
	a.log.Info("Configuration reloaded", "file", cfg.Filename)
}

func (a *Application) getConfig() *config.Config {
	a.configMu.RLock()
	defer a.configMu.RUnlock()
	return a.config
}

func (a *Application) setConfig(cfg *config.Config) {
	a.configMu.Lock()
	a.config = cfg
	a.configMu.Unlock()
}

func supervisorConfig(cfg *config.Config, selector ports.Selector) health.SupervisorConfig {
	speedFirst := selector.Name() == balancer.StrategySpeedFirst
	enabled := cfg.Balance.HealthCheck.Enabled
	interval := cfg.Balance.HealthCheck.Interval()

	// speed-first ranks on measured latency, so sweeps also run at the
	// speed-test cadence to keep the windows fresh, even with plain health
	// checks switched off
	if speedFirst {
		if st := cfg.Balance.SpeedFirst.SpeedTestInterval(); st > 0 {
			if !enabled || st < interval {
				interval = st
			}
			enabled = true
		}
	}

	return health.SupervisorConfig{
		Enabled:          enabled,
		Interval:         interval,
		BanDuration:      cfg.Balance.FailedEndpoint.BanDuration(),
		ReprobeOnFailure: speedFirst,
	}
}

func dispatcherConfig(cfg *config.Config) proxy.Config {
	return proxy.Config{
		InboundKey:        cfg.Gateway.APIKey,
		EnableLoadBalance: cfg.Gateway.EnableLoadBalance,
		EnableTransform:   cfg.Gateway.EnableTransform,
		ProxyURL:          cfg.Gateway.ProxyURL,
	}
}
