// Command bench load-tests a running server: it drives the extraction,
// parameter and documentation endpoints from concurrent workers for a fixed
// duration and prints throughput, latency percentiles and status codes.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cryptomite-go/cryptomite/internal/bits"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Scenarios   []Scenario
}

// Scenario is one request shape. Body is nil for GET requests.
type Scenario struct {
	Name   string
	Method string
	Path   string
	Body   []byte
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     map[string][]time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make(map[string][]time.Duration),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(scenario string, duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies[scenario] = append(s.latencies[scenario], duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the cryptomite server")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	inputBits := flag.Int("bits", 4096, "input length for extraction requests")
	only := flag.String("only", "", "comma-separated scenario names to run (default: all)")
	flag.Parse()

	scenarios, err := buildScenarios(*inputBits)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bench:", err)
		os.Exit(1)
	}
	scenarios = filterScenarios(scenarios, *only)
	if len(scenarios) == 0 {
		fmt.Fprintln(os.Stderr, "bench: no scenarios selected")
		os.Exit(2)
	}

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Scenarios:   scenarios,
	}

	fmt.Println("=== Cryptomite Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Scenarios:   %d\n", len(cfg.Scenarios))
	fmt.Println()

	stats, err := runLoadTest(context.Background(), cfg, &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "bench:", err)
		os.Exit(1)
	}
	if !printReport(os.Stdout, stats, cfg.Duration) {
		os.Exit(1)
	}
}

// buildScenarios prepares request bodies once so workers only measure the
// server.
func buildScenarios(n int) ([]Scenario, error) {
	if n < 16 {
		return nil, fmt.Errorf("-bits must be at least 16, got %d", n)
	}
	in1, err := bits.Random(n)
	if err != nil {
		return nil, err
	}
	seed, err := bits.Random(2 * n)
	if err != nil {
		return nil, err
	}
	dodisSeed, err := bits.Random(n)
	if err != nil {
		return nil, err
	}
	extract := func(name string, m int, input2 bits.Bits) []byte {
		return []byte(fmt.Sprintf(`{"extractor":%q,"n":%d,"m":%d,"input1":%q,"input2":%q}`,
			name, n, m, in1.String(), input2.String()))
	}
	params := fmt.Sprintf(`{"n1":%d,"k1":%d,"n2":%d,"k2":%d,"log2_error":-32}`, n, n*8/10, 2*n, 2*n*9/10)

	return []Scenario{
		{Name: "toeplitz", Method: http.MethodPost, Path: "/api/v1/extract", Body: extract("toeplitz", n/2, seed[:n+n/2-1])},
		{Name: "dodis", Method: http.MethodPost, Path: "/api/v1/extract", Body: extract("dodis", n/2, dodisSeed)},
		{Name: "vonneumann", Method: http.MethodPost, Path: "/api/v1/extract", Body: []byte(fmt.Sprintf(`{"extractor":"vonneumann","input1":%q}`, in1.String()))},
		{Name: "params", Method: http.MethodPost, Path: "/api/v1/params/toeplitz", Body: []byte(params)},
		{Name: "suggest", Method: http.MethodGet, Path: "/api/v1/suggest?n=" + url.QueryEscape(fmt.Sprint(n))},
		{Name: "term", Method: http.MethodGet, Path: "/api/v1/docs/terms/extractor"},
		{Name: "object", Method: http.MethodGet, Path: "/api/v1/docs/objects/cryptomite.Toeplitz"},
		{Name: "stats", Method: http.MethodGet, Path: "/api/v1/docs/stats"},
	}, nil
}

func filterScenarios(all []Scenario, only string) []Scenario {
	if only == "" {
		return all
	}
	want := make(map[string]bool)
	for _, name := range strings.Split(only, ",") {
		want[strings.TrimSpace(name)] = true
	}
	var out []Scenario
	for _, s := range all {
		if want[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

func runLoadTest(ctx context.Context, cfg Config, client *http.Client) (*Stats, error) {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		workerID := w
		g.Go(func() error {
			idx := workerID
			for ctx.Err() == nil {
				sc := cfg.Scenarios[idx%len(cfg.Scenarios)]
				idx++

				req, err := newRequest(ctx, cfg.BaseURL, sc)
				if err != nil {
					return err
				}
				start := time.Now()
				resp, err := client.Do(req)
				duration := time.Since(start)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					stats.RecordRequest(sc.Name, duration, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				stats.RecordRequest(sc.Name, duration, resp.StatusCode, nil)
			}
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	})

	err := g.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats, err
}

func newRequest(ctx context.Context, baseURL string, sc Scenario) (*http.Request, error) {
	var body io.Reader
	if sc.Body != nil {
		body = bytes.NewReader(sc.Body)
	}
	req, err := http.NewRequestWithContext(ctx, sc.Method, baseURL+sc.Path, body)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", sc.Name, err)
	}
	if sc.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// printReport writes the summary and reports whether any request completed.
func printReport(w io.Writer, stats *Stats, duration time.Duration) bool {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", success)
	fmt.Fprintf(w, "Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	names := make([]string, 0, len(stats.latencies))
	for name := range stats.latencies {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "%-12s %8s %10s %10s %10s %10s %10s\n", "scenario", "n", "p50", "p90", "p99", "max", "stddev")
	}
	for _, name := range names {
		latencies := append([]time.Duration(nil), stats.latencies[name]...)
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})
		fmt.Fprintf(w, "%-12s %8d %10s %10s %10s %10s %10s\n", name, len(latencies),
			percentile(latencies, 50), percentile(latencies, 90), percentile(latencies, 99),
			latencies[len(latencies)-1], stddev(latencies))
	}
	stats.latenciesMu.Unlock()

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the server running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func stddev(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg := float64(sum) / float64(len(latencies))
	var sumSquared float64
	for _, l := range latencies {
		diff := float64(l) - avg
		sumSquared += diff * diff
	}
	return time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
}
