// Package transformer rewrites requests between the gateway's native wire
// format and an upstream's native format. Transformers are pure per-call
// functions; the registry is built once at startup.
package transformer

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/porticodev/portico/internal/logger"
)

// Identity carries the endpoint fields a transformer needs to build the
// outbound call. The transformer, not the dispatcher, owns the upstream's
// auth-header shape.
type Identity struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
}

// TransformedRequest is the outbound call a transformer produced: the
// dispatcher uses URL, Headers and Body verbatim.
type TransformedRequest struct {
	Body    []byte
	URL     string
	Headers map[string]string
}

// Transformer converts a native-format request body into an upstream's
// format. Domain is the upstream hostname the transformer applies to;
// empty means it is the default for any endpoint that names it.
type Transformer interface {
	Name() string
	Domain() string
	TransformRequestIn(body []byte, id Identity) (*TransformedRequest, error)
}

// ResponseTransformer is the optional reverse capability: converting a
// non-streaming upstream response body back to the native shape. Streaming
// responses are relayed untouched.
type ResponseTransformer interface {
	TransformResponseOut(body []byte, id Identity) ([]byte, error)
}

// Registry holds the name → transformer map built at startup. Adding a new
// upstream format means registering a new implementation, not patching the
// lookup.
type Registry struct {
	transformers map[string]Transformer
	log          *logger.StyledLogger
	mu           sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.StyledLogger) *Registry {
	return &Registry{
		transformers: make(map[string]Transformer),
		log:          log,
	}
}

// Register adds a transformer under its symbolic name.
func (r *Registry) Register(t Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t == nil {
		r.log.Error("Attempted to register nil transformer, ignoring")
		return
	}
	name := t.Name()
	if name == "" {
		r.log.Error("Transformer has empty name, cannot register")
		return
	}
	if existing, exists := r.transformers[name]; exists {
		r.log.Warn("Overwriting existing transformer",
			"name", name,
			"old", fmt.Sprintf("%T", existing),
			"new", fmt.Sprintf("%T", t))
	}
	r.transformers[name] = t
	r.log.Debug("Registered transformer", "name", name, "domain", t.Domain())
}

// Get retrieves a transformer by symbolic name.
func (r *Registry) Get(name string) (Transformer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.transformers[name]
	if !exists {
		return nil, fmt.Errorf("transformer not found: %s (available: %v)", name, r.namesLocked())
	}
	return t, nil
}

// Match resolves the transformer for an endpoint: an exact upstream-domain
// match wins, then the endpoint's configured transformer name, then any
// registered default (empty domain). Returns nil when nothing applies.
func (r *Registry) Match(upstreamDomain, configuredName string) Transformer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	host := strings.ToLower(upstreamDomain)
	var fallback Transformer
	for _, t := range r.transformers {
		switch {
		case t.Domain() != "" && t.Domain() == host:
			return t
		case t.Domain() == "" && fallback == nil:
			fallback = t
		}
	}

	if configuredName != "" {
		if t, ok := r.transformers[configuredName]; ok {
			return t
		}
	}
	return fallback
}

// Names returns the registered transformer names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.transformers))
	for name := range r.transformers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
