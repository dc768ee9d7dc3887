package domain

import "net/url"

// UpstreamDescriptor is the immutable configuration of one upstream
// AI-completion provider. Runtime health state lives on the Endpoint that
// wraps it.
type UpstreamDescriptor struct {
	Name    string
	BaseURL string
	APIKey  string
	// Model overrides the request's model when routed through a transformer.
	Model string
	// Transformer names the registered transformer for this upstream; empty
	// means the native wire format.
	Transformer string
	// TransformerOnly marks an upstream that can only be reached through the
	// transformation pipeline.
	TransformerOnly bool
	// Order positions the endpoint in the pool; absent means 0. Lower sorts
	// earlier.
	Order int
}

// TransformerEligible reports whether the descriptor can be served through
// the transformation pipeline.
func (d UpstreamDescriptor) TransformerEligible() bool {
	return d.BaseURL != "" && (d.Transformer != "" || d.TransformerOnly)
}

// Domain returns the hostname of the descriptor's base URL, the key the
// transformer registry matches on. Empty when the URL does not parse.
func (d UpstreamDescriptor) Domain() string {
	u, err := url.Parse(d.BaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
