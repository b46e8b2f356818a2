package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/angeloszaimis/gemini-proxy/internal/metrics"
	"github.com/angeloszaimis/gemini-proxy/internal/upstream"
)

// RequestIDHeader carries the correlation ID set by the router.
const RequestIDHeader = "X-Request-ID"

const (
	MsgAPIKeyNotConfigured = "API key not configured."
	MsgInternalError       = "Internal server error."
	MsgInvalidPayload      = "Invalid JSON payload."
	MsgPayloadTooLarge     = "Payload too large."
	upstreamErrorPrefix    = "Google API Error: "
)

// Generator is the outbound call the handler forwards to.
type Generator interface {
	HasCredential() bool
	Generate(ctx context.Context, payload []byte) (*upstream.Response, error)
}

// ErrorResponse is the body of every error the proxy returns.
type ErrorResponse struct {
	Error string `json:"error"`
}

type GenerateHandler struct {
	logger           *slog.Logger
	generator        Generator
	maxBodyBytes     int64
	metricsCollector *metrics.Collector
}

// ServeHTTP forwards the JSON body to the upstream and relays the answer.
// The outbound call is detached from the inbound request's cancellation and
// runs to completion even if the client goes away.
func (h *GenerateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With(slog.String("request_id", r.Header.Get(RequestIDHeader)))

	log.Debug("Received generate request",
		slog.String("from", extractClientIP(r)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("user_agent", r.UserAgent()))

	h.emitEvent(metrics.MetricEvent{Type: metrics.EventRequestReceived})

	if !h.generator.HasCredential() {
		log.Error("Upstream API key is not configured")
		h.reject(w, http.StatusInternalServerError, MsgAPIKeyNotConfigured)
		return
	}

	payload, err := h.readPayload(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn("Rejected oversized payload", slog.Int64("limit", tooLarge.Limit))
			h.reject(w, http.StatusRequestEntityTooLarge, MsgPayloadTooLarge)
			return
		}

		log.Warn("Rejected malformed payload", slog.Any("err", err))
		h.reject(w, http.StatusBadRequest, MsgInvalidPayload)
		return
	}

	start := time.Now()
	resp, err := h.generator.Generate(context.WithoutCancel(r.Context()), payload)
	duration := time.Since(start)

	var statusErr *upstream.StatusError
	switch {
	case errors.As(err, &statusErr):
		log.Error("Google API Error",
			slog.Int("status", statusErr.StatusCode),
			slog.String("body", statusErr.Body),
			slog.Duration("duration", duration))

		h.emitEvent(metrics.MetricEvent{
			Type:       metrics.EventUpstreamCompleted,
			Duration:   duration,
			StatusCode: statusErr.StatusCode,
		})
		writeError(w, statusErr.StatusCode, upstreamErrorPrefix+statusErr.Body)

	case err != nil:
		log.Error("Proxy server error", slog.Any("err", err), slog.Duration("duration", duration))

		h.emitEvent(metrics.MetricEvent{
			Type:     metrics.EventUpstreamFailed,
			Duration: duration,
		})
		writeError(w, http.StatusInternalServerError, MsgInternalError)

	default:
		log.Debug("Forwarded generate request",
			slog.String("request_size", humanize.Bytes(uint64(len(payload)))),
			slog.String("response_size", humanize.Bytes(uint64(len(resp.Body)))),
			slog.Duration("duration", duration))

		h.emitEvent(metrics.MetricEvent{
			Type:       metrics.EventUpstreamCompleted,
			Duration:   duration,
			StatusCode: resp.StatusCode,
		})
		writeJSON(w, http.StatusOK, resp.Body)
	}
}

// readPayload returns the raw body once it is known to be valid JSON.
func (h *GenerateHandler) readPayload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		return nil, err
	}

	if !json.Valid(body) {
		return nil, errors.New("request body is not valid JSON")
	}

	return body, nil
}

func (h *GenerateHandler) reject(w http.ResponseWriter, status int, msg string) {
	h.emitEvent(metrics.MetricEvent{
		Type:       metrics.EventRequestRejected,
		StatusCode: status,
	})
	writeError(w, status, msg)
}

func (h *GenerateHandler) emitEvent(event metrics.MetricEvent) {
	if h.metricsCollector == nil {
		return
	}

	h.metricsCollector.Emit(event)
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(ErrorResponse{Error: msg})
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func NewGenerateHandler(logger *slog.Logger, generator Generator, maxBodyBytes int64, collector *metrics.Collector) *GenerateHandler {
	return &GenerateHandler{
		logger:           logger,
		generator:        generator,
		maxBodyBytes:     maxBodyBytes,
		metricsCollector: collector,
	}
}
