package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/porticodev/portico/internal/adapter/transformer"
	"github.com/porticodev/portico/internal/core/domain"
	"github.com/porticodev/portico/internal/logger"
	"github.com/porticodev/portico/internal/metrics"
	"github.com/porticodev/portico/internal/util"
)

const nativeVersionHeader = "2023-06-01"

// hopHeaders are never copied between inbound and outbound requests.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func (d *Dispatcher) forward(rw *responseWriter, r *http.Request, endpoint *domain.Endpoint, cfg Config, body []byte, start time.Time, rlog *logger.StyledLogger) {
	var tf transformer.Transformer
	if cfg.EnableTransform || endpoint.Transformer != "" {
		tf = d.registry.Match(endpoint.Domain(), endpoint.Transformer)
		// the default transformer only serves endpoints marked for the
		// pipeline; an unmarked native endpoint keeps its native wire format
		if tf != nil && tf.Domain() == "" && !endpoint.TransformerEligible() {
			tf = nil
		}
	}

	ctx, cancel := d.withTimeout(r.Context(), cfg)
	defer cancel()

	var proxyReq *http.Request
	var err error
	if tf != nil {
		proxyReq, err = d.buildTransformedRequest(ctx, tf, endpoint, body)
		if err != nil {
			rlog.ErrorWithEndpoint("transformer failed", endpoint.Name, "transformer", tf.Name(), "error", err)
			metrics.IncRequest(endpoint.Name, "transformer_error")
			writeJSONError(rw, http.StatusInternalServerError, errTypeTransformer, err.Error())
			return
		}
	} else {
		proxyReq, err = d.buildNativeRequest(ctx, r, endpoint, body)
		if err != nil {
			rlog.ErrorWithEndpoint("failed to build upstream request", endpoint.Name, "error", err)
			metrics.IncRequest(endpoint.Name, "error")
			writeJSONError(rw, http.StatusBadGateway, errTypeProxy, err.Error())
			return
		}
	}

	resp, err := d.transport.RoundTrip(proxyReq)
	if err != nil {
		derr := &domain.DispatchError{
			Err:      err,
			Endpoint: endpoint.Name,
			Target:   proxyReq.URL.String(),
			Timeout:  errors.Is(err, context.DeadlineExceeded),
		}
		rlog.ErrorWithEndpoint("upstream call failed", endpoint.Name, "error", derr)
		d.reporter.ReportFailure(endpoint.Name, derr.Error())
		metrics.IncRequest(endpoint.Name, "upstream_error")
		writeJSONError(rw, http.StatusBadGateway, errTypeProxy, derr.Error())
		return
	}
	defer resp.Body.Close()

	backendMs := float64(time.Since(start).Milliseconds())

	// a native-surface client talking through a transformer gets the
	// response converted back, but only for buffered non-streaming calls
	var relayed bool
	if rt, ok := tf.(transformer.ResponseTransformer); ok && d.shouldTransformResponse(r, resp, body) {
		relayed = d.relayTransformed(rw, resp, rt, endpoint, rlog)
	} else {
		relayed = d.relay(rw, resp, endpoint, rlog)
	}
	if !relayed {
		metrics.IncRequest(endpoint.Name, "relay_error")
		return
	}

	d.reporter.RecordResponseTime(endpoint.Name, backendMs)
	metrics.IncRequest(endpoint.Name, "success")
	metrics.ObserveRequestDuration(endpoint.Name, time.Since(start).Seconds())

	rlog.Debug("request completed",
		"endpoint", endpoint.Name,
		"status", resp.StatusCode,
		"backend_ms", backendMs,
		"total_ms", time.Since(start).Milliseconds())
}

func (d *Dispatcher) buildNativeRequest(ctx context.Context, r *http.Request, endpoint *domain.Endpoint, body []byte) (*http.Request, error) {
	target := util.ResolveURLPath(endpoint.BaseURL, nativeMessagesPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	copyHeaders(req.Header, r.Header)
	req.Header.Set("x-api-key", endpoint.APIKey)
	req.Header.Del("Authorization")
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("anthropic-version") == "" {
		req.Header.Set("anthropic-version", nativeVersionHeader)
	}
	return req, nil
}

// buildTransformedRequest uses the transformer's URL, headers and body
// verbatim; the transformer owns the upstream's auth-header shape.
func (d *Dispatcher) buildTransformedRequest(ctx context.Context, tf transformer.Transformer, endpoint *domain.Endpoint, body []byte) (*http.Request, error) {
	tr, err := tf.TransformRequestIn(body, transformer.Identity{
		Name:    endpoint.Name,
		BaseURL: endpoint.BaseURL,
		APIKey:  endpoint.APIKey,
		Model:   endpoint.Model,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tr.URL, bytes.NewReader(tr.Body))
	if err != nil {
		return nil, err
	}
	for k, v := range tr.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (d *Dispatcher) shouldTransformResponse(r *http.Request, resp *http.Response, body []byte) bool {
	if r.URL.Path != nativeMessagesPath {
		return false
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}
	var probe struct {
		Stream bool `json:"stream"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return !probe.Stream
}

// relay pipes the upstream response through without buffering, flushing
// after every chunk so streamed tokens reach the client immediately.
func (d *Dispatcher) relay(rw *responseWriter, resp *http.Response, endpoint *domain.Endpoint, rlog *logger.StyledLogger) bool {
	copyHeaders(rw.Header(), resp.Header)
	rw.Header().Set("Access-Control-Allow-Origin", "*")
	rw.WriteHeader(resp.StatusCode)

	buf := make([]byte, DefaultStreamBuffer)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := rw.Write(buf[:n]); writeErr != nil {
				rlog.Debug("client disconnected mid-stream", "endpoint", endpoint.Name, "error", writeErr)
				return false
			}
			rw.Flush()
		}
		if readErr != nil {
			if readErr != io.EOF {
				rlog.WarnWithEndpoint("upstream stream ended early", endpoint.Name, "error", readErr)
				d.reporter.ReportFailure(endpoint.Name, "stream error: "+readErr.Error())
				return false
			}
			return true
		}
	}
}

// relayTransformed buffers the whole upstream response, converts it back to
// the native shape and sends the converted body. Falls back to the raw body
// when conversion fails so the client still sees what the upstream said.
func (d *Dispatcher) relayTransformed(rw *responseWriter, resp *http.Response, rt transformer.ResponseTransformer, endpoint *domain.Endpoint, rlog *logger.StyledLogger) bool {
	upstream, err := io.ReadAll(resp.Body)
	if err != nil {
		rlog.WarnWithEndpoint("failed to read upstream response", endpoint.Name, "error", err)
		d.reporter.ReportFailure(endpoint.Name, "response read error: "+err.Error())
		writeJSONError(rw, http.StatusBadGateway, errTypeProxy, "failed to read upstream response")
		return false
	}

	converted, err := rt.TransformResponseOut(upstream, transformer.Identity{
		Name:    endpoint.Name,
		BaseURL: endpoint.BaseURL,
		APIKey:  endpoint.APIKey,
		Model:   endpoint.Model,
	})
	if err != nil {
		rlog.Warn("response conversion failed, relaying raw body", "endpoint", endpoint.Name, "error", err)
		converted = upstream
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.Header().Set("Access-Control-Allow-Origin", "*")
	rw.WriteHeader(resp.StatusCode)
	_, _ = rw.Write(converted)
	return true
}

func copyHeaders(dst, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}
