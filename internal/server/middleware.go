package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"taskboard/internal/metrics"
)

const requestIDHeader = "X-Request-Id"

// requestLogger logs one structured line per request and records it in m.
func requestLogger(logger *logrus.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, requestID)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			latency := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.ObserveRequest(r.Method, route, strconv.Itoa(status), latency)

			entry := logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"uri":        r.URL.Path,
				"route":      route,
				"status":     status,
				"latency":    latency,
				"user_agent": r.UserAgent(),
				"ip":         r.RemoteAddr,
				"request_id": requestID,
			})
			switch {
			case status >= 500:
				entry.Error("server error")
			case status >= 400:
				entry.Warn("client error")
			default:
				entry.Info("request processed")
			}
		})
	}
}
