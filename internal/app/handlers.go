package app

import (
	"encoding/json"
	"net/http"

	"github.com/porticodev/portico/internal/core/domain"
	"github.com/porticodev/portico/internal/metrics"
	"github.com/porticodev/portico/internal/version"
)

// StatusResponse is the introspection payload served on /status and
// consumed by the CLI status command.
type StatusResponse struct {
	Version      string            `json:"version"`
	Strategy     string            `json:"strategy"`
	Transformers []string          `json:"transformers"`
	Pool         domain.PoolStatus `json:"pool"`
}

func (a *Application) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/status", a.handleStatus)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", a.dispatcher)

	// preflight is answered uniformly on every path, the introspection
	// endpoints included; the mux would otherwise hand OPTIONS /health to
	// the health handler
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			a.dispatcher.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func (a *Application) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (a *Application) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Version:      version.Version,
		Strategy:     a.selector.Name(),
		Transformers: a.registry.Names(),
		Pool:         a.pool.Status(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.log.Warn("Failed to encode status response", "error", err)
	}
}
