// Portico is a local gateway for AI-completion APIs.
//
// It sits on loopback in front of a pool of upstream providers and:
//   - Load balances completion requests across healthy endpoints
//   - Bans failing endpoints and returns them after a cool-off
//   - Ranks endpoints by measured latency when speed-first is enabled
//   - Rewrites requests for OpenAI-compatible upstreams
//
// Usage:
//
//	# Start the gateway with default configuration
//	portico serve
//
//	# Start with a custom configuration file
//	portico serve --config /path/to/config.yaml
//
//	# Query a running gateway
//	portico status
//
//	# Probe configured providers without starting the gateway
//	portico check
package main

func main() {
	Execute()
}
