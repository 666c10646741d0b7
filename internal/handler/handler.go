package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/mcp-gateway/internal/gateway"
	"github.com/angeloszaimis/mcp-gateway/pkg/logger"
)

const RequestIDHeader = "X-Request-Id"

const maxBodyBytes = 4 << 20

type ctxKey struct{}

type Handler struct {
	gateway *gateway.Gateway
	logger  *slog.Logger
}

func New(gw *gateway.Gateway, l *slog.Logger) *Handler {
	return &Handler{
		gateway: gw,
		logger:  logger.Component(l, "handler"),
	}
}

// Routes returns the gateway's HTTP routes wrapped in request logging.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /mcp", h.handleRPC)
	mux.HandleFunc("GET /servers", h.listServers)
	mux.HandleFunc("POST /servers", h.registerServer)
	mux.HandleFunc("DELETE /servers/{id}", h.unregisterServer)
	mux.HandleFunc("GET /health", h.health)
	mux.Handle("GET /metrics", h.gateway.Metrics.Handler())

	return h.withRequestLog(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *Handler) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		log := h.logger.With(slog.String("request_id", requestID))
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, log))

		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		log.Info("request handled",
			slog.String("from", extractClientIP(r)),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", wrapped.statusCode),
			slog.Duration("duration", time.Since(start)))
	})
}

// requestLogger returns the logger carrying the request id.
func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	if log, ok := r.Context().Value(ctxKey{}).(*slog.Logger); ok {
		return log
	}
	return h.logger
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}
