package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/ovation/pkg/metrics"
)

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Microseconds()) / 1000
		code := strconv.Itoa(wrapped.statusCode)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, durationMs)

		if wrapped.statusCode >= http.StatusBadRequest {
			errorType := errorType(wrapped.statusCode)
			metrics.RecordErrorByEndpoint(endpoint, r.Method, errorType)
			metrics.RecordErrorByType(errorType, severity(wrapped.statusCode))
			metrics.RecordErrorLatency("http", errorType, durationMs)
		}
	}
}

func errorType(statusCode int) string {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return "server_error"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limit"
	case statusCode == http.StatusNotFound:
		return "not_found"
	case statusCode == http.StatusConflict:
		return "duplicate"
	case statusCode >= http.StatusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

func severity(statusCode int) string {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return "high"
	case statusCode >= http.StatusBadRequest:
		return "medium"
	default:
		return "low"
	}
}

// responseWriter captures the status code written by a handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
