package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// statusFamilies are the service metrics summarised on the status page.
var statusFamilies = []string{
	"extractions_total",
	"extracted_bits_total",
	"pipeline_jobs_total",
	"pipeline_jobs_in_flight",
	"docindex_documents",
	"docindex_lookups_total",
	"cache_hits_total",
	"cache_misses_total",
	"http_rate_limited_total",
	"circuit_breaker_state",
}

// StartServer serves /metrics and a plain-text status page on port, using
// the default registry. The returned function shuts the server down.
func StartServer(port int) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      NewServeMux(prometheus.DefaultGatherer),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}

// NewServeMux routes /metrics to the scrape handler for g and / to the
// status page.
func NewServeMux(g prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /{$}", StatusHandler(g))
	return mux
}

// StatusHandler writes one line per labelled series of the service
// metrics. Histograms are shown as their sample count.
func StatusHandler(g prometheus.Gatherer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		families, err := g.Gather()
		if err != nil {
			http.Error(w, "gathering metrics: "+err.Error(), http.StatusInternalServerError)
			return
		}
		byName := make(map[string]*dto.MetricFamily, len(families))
		for _, f := range families {
			byName[f.GetName()] = f
		}

		var b strings.Builder
		b.WriteString("cryptomite status\n\n")
		for _, name := range statusFamilies {
			f, ok := byName[name]
			if !ok {
				continue
			}
			lines := make([]string, 0, len(f.GetMetric()))
			for _, m := range f.GetMetric() {
				lines = append(lines, fmt.Sprintf("%s%s %g", name, labelString(m), sampleValue(m)))
			}
			sort.Strings(lines)
			for _, l := range lines {
				b.WriteString(l)
				b.WriteByte('\n')
			}
		}
		b.WriteString("\nfull exposition: /metrics\n")

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, b.String())
	}
}

func labelString(m *dto.Metric) string {
	if len(m.GetLabel()) == 0 {
		return ""
	}
	parts := make([]string, 0, len(m.GetLabel()))
	for _, l := range m.GetLabel() {
		parts = append(parts, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.GetCounter().GetValue()
	case m.Gauge != nil:
		return m.GetGauge().GetValue()
	case m.Histogram != nil:
		return float64(m.GetHistogram().GetSampleCount())
	case m.Untyped != nil:
		return m.GetUntyped().GetValue()
	}
	return 0
}
