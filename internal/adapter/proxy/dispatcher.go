// Package proxy implements the HTTP dispatcher: the request entry point
// that routes completion calls to a selected upstream, through the
// transformation pipeline when the endpoint needs one.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/porticodev/portico/internal/adapter/transformer"
	"github.com/porticodev/portico/internal/core/domain"
	"github.com/porticodev/portico/internal/core/ports"
	"github.com/porticodev/portico/internal/logger"
	"github.com/porticodev/portico/internal/metrics"
)

const (
	nativeMessagesPath  = "/v1/messages"
	chatCompletionsPath = "/v1/chat/completions"

	requestIDHeader = "X-Portico-Request-Id"

	DefaultResponseTimeout = 5 * time.Minute
	DefaultStreamBuffer    = 8 * 1024

	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 5
	defaultIdleConnTimeout     = 90 * time.Second
	defaultTLSHandshake        = 10 * time.Second
)

// Config carries the dispatcher's mode flags. InboundKey empty disables
// inbound auth; ResponseTimeout zero means DefaultResponseTimeout.
type Config struct {
	InboundKey        string
	EnableLoadBalance bool
	EnableTransform   bool
	ResponseTimeout   time.Duration
	ProxyURL          string
}

func (c *Config) responseTimeout() time.Duration {
	if c.ResponseTimeout <= 0 {
		return DefaultResponseTimeout
	}
	return c.ResponseTimeout
}

// Dispatcher is state-free per request: all shared state lives in the pool,
// the selector and the health reporter it was constructed with.
type Dispatcher struct {
	pool      *domain.Pool
	selector  ports.Selector
	registry  *transformer.Registry
	reporter  ports.FailureReporter
	transport *http.Transport
	log       *logger.StyledLogger

	cfgMu sync.RWMutex
	cfg   Config
}

// NewDispatcher wires the dispatcher to its collaborators. The outbound
// transport is shared across requests; cfg.ProxyURL routes every upstream
// call through the given HTTP(S) proxy when set.
func NewDispatcher(
	pool *domain.Pool,
	selector ports.Selector,
	registry *transformer.Registry,
	reporter ports.FailureReporter,
	cfg Config,
	log *logger.StyledLogger,
) (*Dispatcher, error) {
	transport := &http.Transport{
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		TLSHandshakeTimeout: defaultTLSHandshake,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid outbound proxy url %q: %w", cfg.ProxyURL, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &Dispatcher{
		pool:      pool,
		selector:  selector,
		registry:  registry,
		reporter:  reporter,
		transport: transport,
		cfg:       cfg,
		log:       log,
	}, nil
}

// UpdateConfig swaps the mode flags on a live dispatcher. The outbound
// transport is not rebuilt; proxy changes need a restart.
func (d *Dispatcher) UpdateConfig(cfg Config) {
	d.cfgMu.Lock()
	cfg.ProxyURL = d.cfg.ProxyURL
	d.cfg = cfg
	d.cfgMu.Unlock()
}

func (d *Dispatcher) config() Config {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rw := &responseWriter{ResponseWriter: w}
	requestID := uuid.NewString()
	rw.Header().Set(requestIDHeader, requestID)
	rlog := d.log.WithRequestID(requestID)

	defer func() {
		if rec := recover(); rec != nil {
			rlog.Error("dispatcher panic recovered",
				"panic", rec,
				"method", r.Method,
				"path", r.URL.Path)
			writeJSONError(rw, http.StatusInternalServerError, errTypeProxy, "internal server error")
		}
	}()

	if r.Method == http.MethodOptions {
		setCORSHeaders(rw.Header())
		rw.WriteHeader(http.StatusOK)
		return
	}

	cfg := d.config()
	if isCompletionPath(r.URL.Path) && (cfg.EnableLoadBalance || cfg.EnableTransform) {
		d.handleCompletion(rw, r, cfg, rlog)
		return
	}

	writeNotFound(rw)
}

func isCompletionPath(path string) bool {
	return path == nativeMessagesPath || path == chatCompletionsPath
}

func (d *Dispatcher) handleCompletion(rw *responseWriter, r *http.Request, cfg Config, rlog *logger.StyledLogger) {
	start := time.Now()

	if !d.authorised(r, cfg) {
		metrics.IncRequest("", "unauthorised")
		writeJSONError(rw, http.StatusUnauthorized, errTypeAuthentication, "invalid gateway API key")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		rlog.Warn("failed to read request body", "error", err)
		writeJSONError(rw, http.StatusBadRequest, errTypeProxy, "failed to read request body")
		return
	}
	_ = r.Body.Close()

	endpoint, err := d.selector.Select(r.Context(), d.pool)
	if err != nil {
		if errors.Is(err, domain.ErrNoEligibleEndpoints) {
			d.respondUnavailable(rw, cfg, rlog)
			return
		}
		rlog.Error("endpoint selection failed", "error", err)
		writeJSONError(rw, http.StatusServiceUnavailable, errTypeUnavailable, "no healthy endpoint")
		return
	}

	rlog.Debug("dispatching request",
		"endpoint", endpoint.Name,
		"path", r.URL.Path,
		"strategy", d.selector.Name())

	d.forward(rw, r, endpoint, cfg, body, start, rlog)
}

// respondUnavailable distinguishes the transformer-only empty pool from the
// everything-banned case so operators see why nothing was routable.
func (d *Dispatcher) respondUnavailable(rw *responseWriter, cfg Config, rlog *logger.StyledLogger) {
	metrics.IncRequest("", "unavailable")
	if cfg.EnableTransform && !cfg.EnableLoadBalance && !d.pool.HasTransformerEligible() {
		rlog.Warn("no transformer-enabled endpoints available")
		writeJSONError(rw, http.StatusServiceUnavailable, errTypeUnavailable, "No transformer-enabled endpoints available")
		return
	}
	rlog.Warn("no healthy endpoint available")
	writeJSONError(rw, http.StatusServiceUnavailable, errTypeUnavailable, "no healthy endpoint")
}

// authorised checks the gateway's own shared key. Upstream keys are a
// separate concern; this only gates the loopback surface.
func (d *Dispatcher) authorised(r *http.Request, cfg Config) bool {
	if cfg.InboundKey == "" {
		return true
	}
	if key := r.Header.Get("x-api-key"); key == cfg.InboundKey {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "Bearer ") == cfg.InboundKey && auth != ""
}

// withTimeout derives the outbound call context. Cancelling it destroys the
// in-flight request, which is how timeouts abort the upstream call.
func (d *Dispatcher) withTimeout(ctx context.Context, cfg Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, cfg.responseTimeout())
}
