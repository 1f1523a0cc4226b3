package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptomite-go/cryptomite/internal/api/cache"
	"github.com/cryptomite-go/cryptomite/internal/docindex"
	apperrors "github.com/cryptomite-go/cryptomite/pkg/errors"
	"github.com/cryptomite-go/cryptomite/pkg/health"
	"github.com/cryptomite-go/cryptomite/pkg/metrics"
	"github.com/cryptomite-go/cryptomite/pkg/middleware"
	"github.com/cryptomite-go/cryptomite/pkg/resilience"
)

type testServer struct {
	handler *Handler
	router  http.Handler
	metrics *metrics.Metrics
}

func loadIndex(t testing.TB) *docindex.Index {
	t.Helper()
	data, err := os.ReadFile("../docindex/testdata/searchindex.js")
	require.NoError(t, err)
	idx, err := docindex.Decode(data)
	require.NoError(t, err)
	return idx
}

func newTestServer(t *testing.T, idx *docindex.Index, opts RouterOptions) *testServer {
	t.Helper()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	pc := cache.New(cache.NewMemoryStore(64, time.Minute), time.Minute, m)
	h := New(idx, pc, func(context.Context) (*docindex.Index, error) { return loadIndex(t), nil },
		Config{MaxInputBits: 64}, m)
	opts.Metrics = m
	checker := health.NewChecker()
	return &testServer{handler: h, router: NewRouter(h, checker, opts), metrics: m}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestDocsEndpoints(t *testing.T) {
	s := newTestServer(t, loadIndex(t), RouterOptions{})

	rec, body := s.do(t, http.MethodGet, "/api/v1/docs/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 9.0, body["documents"])
	assert.Equal(t, 42.0, body["objects"])
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec, body = s.do(t, http.MethodGet, "/api/v1/docs/documents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 9.0, body["total"])

	rec, body = s.do(t, http.MethodGet, "/api/v1/docs/documents/examples/example", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "examples/example.ipynb", body["filename"])

	rec, body = s.do(t, http.MethodGet, "/api/v1/docs/documents/4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "glossary", body["name"])

	rec, body = s.do(t, http.MethodGet, "/api/v1/docs/terms/Toeplitz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3.0, body["total"])

	rec, body = s.do(t, http.MethodGet, "/api/v1/docs/titleterms/usag", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, body["total"])

	rec, body = s.do(t, http.MethodGet, "/api/v1/docs/terms/blockchain", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body["error"], "blockchain")
	assert.NotEmpty(t, body["request_id"])

	rec, body = s.do(t, http.MethodGet, "/api/v1/docs/objects/cryptomite.utils.is_prime", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cryptomite.utils.is_prime", body["anchor_id"])

	rec, body = s.do(t, http.MethodGet, "/api/v1/docs/objects?kind=py:class", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7.0, body["total"])

	rec, _ = s.do(t, http.MethodGet, "/api/v1/docs/objects", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.IndexLookupsTotal.WithLabelValues("term", "miss")))
	assert.Equal(t, 9.0, testutil.ToFloat64(s.metrics.IndexDocuments))
}

func TestDocsWithoutIndex(t *testing.T) {
	s := newTestServer(t, nil, RouterOptions{})
	rec, _ := s.do(t, http.MethodGet, "/api/v1/docs/stats", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, body := s.do(t, http.MethodPost, "/api/v1/docs/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 9.0, body["documents"])

	rec, _ = s.do(t, http.MethodGet, "/api/v1/docs/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExtract(t *testing.T) {
	s := newTestServer(t, nil, RouterOptions{})

	rec, body := s.do(t, http.MethodPost, "/api/v1/extract",
		`{"extractor":"Toeplitz","n":16,"m":5,"input1":"1011011010110010","input2":"10000011011010000101"}`)
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, "01000", body["output"])
	assert.Equal(t, "toeplitz", body["extractor"])

	rec, body = s.do(t, http.MethodPost, "/api/v1/extract",
		`{"extractor":"von neumann","input1":"01 10 11 00 10 01 1"}`)
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, "0110", body["output"])

	assert.Equal(t, 2, testutil.CollectAndCount(s.metrics.ExtractionsTotal))
}

func TestExtractPastDeadline(t *testing.T) {
	s := newTestServer(t, nil, RouterOptions{})
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract",
		strings.NewReader(`{"extractor":"toeplitz","n":16,"m":5,"input1":"1011011010110010","input2":"10000011011010000101"}`))
	rec := httptest.NewRecorder()
	s.handler.Extract(rec, req.WithContext(ctx))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.ExtractionsTotal.WithLabelValues("toeplitz", "error")))
}

func TestExtractErrors(t *testing.T) {
	s := newTestServer(t, nil, RouterOptions{})
	cases := []struct {
		name, body string
		status     int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"unknown field", `{"extractor":"dodis","seed":"01"}`, http.StatusBadRequest},
		{"no extractor", `{"input1":"01"}`, http.StatusBadRequest},
		{"bad bits", `{"extractor":"dodis","n":2,"m":1,"input1":"0x","input2":"01"}`, http.StatusBadRequest},
		{"wrong length", `{"extractor":"dodis","n":4,"m":2,"input1":"0101","input2":"01"}`, http.StatusBadRequest},
		{"bad params", `{"extractor":"dodis","n":4,"m":5,"input1":"0101","input2":"0101"}`, http.StatusBadRequest},
		{"unknown extractor", `{"extractor":"blum","input1":"01"}`, http.StatusNotFound},
		{"too many bits", `{"extractor":"vonneumann","input1":"` + strings.Repeat("01", 33) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := s.do(t, http.MethodPost, "/api/v1/extract", tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestParamsAreCached(t *testing.T) {
	s := newTestServer(t, nil, RouterOptions{})
	req := `{"n1":100,"k1":80,"n2":200,"k2":190,"log2_error":-10}`

	rec, body := s.do(t, http.MethodPost, "/api/v1/params/toeplitz", req)
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, false, body["cached"])
	assert.Equal(t, 50.0, body["params"].(map[string]any)["m"])

	_, body = s.do(t, http.MethodPost, "/api/v1/params/Toeplitz", req)
	assert.Equal(t, true, body["cached"])

	rec, body = s.do(t, http.MethodGet, "/api/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body["hits"])
	assert.Equal(t, 1.0, body["misses"])

	rec, _ = s.do(t, http.MethodPost, "/api/v1/cache/invalidate", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	_, body = s.do(t, http.MethodPost, "/api/v1/params/toeplitz", req)
	assert.Equal(t, false, body["cached"])

	rec, _ = s.do(t, http.MethodPost, "/api/v1/params/vonneumann", req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/api/v1/params/toeplitz", `{"n1":100,"k1":80,"n2":200,"k2":190,"log2_error":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParamsWithoutCache(t *testing.T) {
	h := New(nil, nil, nil, Config{}, nil)
	router := NewRouter(h, health.NewChecker(), RouterOptions{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/params/dodis",
		bytes.NewBufferString(`{"n1":110,"k1":100,"n2":120,"k2":100,"log2_error":-5}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"m":68`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/docs/reload", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSuggest(t *testing.T) {
	s := newTestServer(t, nil, RouterOptions{})

	_, body := s.do(t, http.MethodGet, "/api/v1/suggest?n=100&exchangeable=true", "")
	assert.Equal(t, "Von Neumann", body["suggestion"])
	assert.Equal(t, "vonneumann", body["extractor"])

	_, body = s.do(t, http.MethodGet, "/api/v1/suggest?n=5000000", "")
	assert.Equal(t, "Trevisan", body["suggestion"])

	_, body = s.do(t, http.MethodGet, "/api/v1/suggest?n=5000000&efficient=1", "")
	assert.Equal(t, "Circulant", body["suggestion"])

	rec, _ := s.do(t, http.MethodGet, "/api/v1/suggest?n=-3", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = s.do(t, http.MethodGet, "/api/v1/suggest?n=3&efficient=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitOnlyGuardsComputeRoutes(t *testing.T) {
	s := newTestServer(t, loadIndex(t), RouterOptions{Limiter: middleware.NewClientLimiter(0.001, 1, time.Minute)})
	body := `{"extractor":"vonneumann","input1":"01"}`

	rec, _ := s.do(t, http.MethodPost, "/api/v1/extract", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/api/v1/extract", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	rec, _ = s.do(t, http.MethodGet, "/api/v1/docs/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthRoutes(t *testing.T) {
	s := newTestServer(t, nil, RouterOptions{})
	rec, body := s.do(t, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", body["status"])
	rec, _ = s.do(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, apperrors.HTTPStatusCode(classify(context.DeadlineExceeded)))
	assert.Equal(t, http.StatusGatewayTimeout, apperrors.HTTPStatusCode(classify(
		&resilience.TimeoutError{Op: "extract trevisan", Limit: time.Second})))
	assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatusCode(classify(errors.New("disk on fire"))))
	assert.Equal(t, http.StatusNotFound, apperrors.HTTPStatusCode(classify(docindex.ErrNotFound)))
}
