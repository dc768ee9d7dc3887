package proxy

import (
	"fmt"
	"net/http"
)

// notFoundBody is the exact payload clients match on for routing misses.
const notFoundBody = `{"error":{"message":"No handler found for this request","type":"not_found"}}`

const (
	errTypeAuthentication = "authentication_error"
	errTypeUnavailable    = "service_unavailable"
	errTypeProxy          = "proxy_error"
	errTypeTransformer    = "transformer_forwarding_error"
)

// responseWriter wraps http.ResponseWriter and tracks whether headers went
// out, so a failure after streaming started never produces a second
// response on the same connection.
type responseWriter struct {
	http.ResponseWriter
	headersSent bool
	status      int
}

func (w *responseWriter) WriteHeader(status int) {
	if w.headersSent {
		return
	}
	w.headersSent = true
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.headersSent {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// setCORSHeaders writes the fixed preflight header set. The values are
// static; the gateway only ever serves loopback clients.
func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, x-api-key")
	h.Set("Access-Control-Max-Age", "86400")
}

func writeJSONError(w *responseWriter, status int, errType, message string) {
	if w.headersSent {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":%q}}`, message, errType)
}

func writeNotFound(w *responseWriter) {
	if w.headersSent {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(notFoundBody))
}
