// Package middleware provides reusable HTTP middleware: request IDs,
// Prometheus metrics, timeouts, CORS and per-client rate limiting.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cryptomite-go/cryptomite/pkg/metrics"
)

// Metrics returns middleware that records HTTP request count, latency, and
// in-flight gauge.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			duration := time.Since(start).Seconds()
			path := normalizePath(r.URL.Path)

			m.HTTPRequestsTotal.WithLabelValues(
				r.Method,
				path,
				strconv.Itoa(sw.status),
			).Inc()

			m.HTTPRequestDuration.WithLabelValues(
				r.Method,
				path,
			).Observe(duration)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

// templated lists path prefixes whose final segment is a user-supplied
// value, so metrics get one series per route rather than per term.
var templated = []struct{ prefix, label string }{
	{"/api/v1/docs/terms/", "{term}"},
	{"/api/v1/docs/titleterms/", "{term}"},
	{"/api/v1/docs/objects/", "{name}"},
	{"/api/v1/docs/documents/", "{name}"},
	{"/api/v1/params/", "{extractor}"},
	{"/api/v1/runs/", "{id}"},
}

func normalizePath(path string) string {
	for _, t := range templated {
		if rest, ok := strings.CutPrefix(path, t.prefix); ok && rest != "" {
			return t.prefix + t.label
		}
	}
	return path
}
