package util

import "testing"

func TestResolveURLPath(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		path     string
		expected string
	}{
		{"simple join", "https://api.example.com", "/v1/messages", "https://api.example.com/v1/messages"},
		{"base with prefix kept", "https://api.example.com/proxy", "/v1/messages", "https://api.example.com/proxy/v1/messages"},
		{"trailing slash on base", "https://api.example.com/", "/v1/messages", "https://api.example.com/v1/messages"},
		{"absolute url passes through", "https://api.example.com", "https://other.example.com/v1", "https://other.example.com/v1"},
		{"empty base", "", "/v1/messages", "/v1/messages"},
		{"empty path", "https://api.example.com", "", "https://api.example.com"},
		{"port preserved", "http://127.0.0.1:2333", "/v1/messages", "http://127.0.0.1:2333/v1/messages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveURLPath(tt.baseURL, tt.path); got != tt.expected {
				t.Errorf("ResolveURLPath(%q, %q) = %q, want %q", tt.baseURL, tt.path, got, tt.expected)
			}
		})
	}
}
