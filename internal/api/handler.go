// Package api serves the HTTP JSON API: read-only lookups over the loaded
// documentation search index, extraction, parameter calculation and
// extractor suggestion.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cryptomite-go/cryptomite/internal/api/cache"
	"github.com/cryptomite-go/cryptomite/internal/bits"
	"github.com/cryptomite-go/cryptomite/internal/docindex"
	"github.com/cryptomite-go/cryptomite/internal/extractor"
	"github.com/cryptomite-go/cryptomite/internal/ledger"
	apperrors "github.com/cryptomite-go/cryptomite/pkg/errors"
	"github.com/cryptomite-go/cryptomite/pkg/logger"
	"github.com/cryptomite-go/cryptomite/pkg/metrics"
	"github.com/cryptomite-go/cryptomite/pkg/middleware"
	"github.com/cryptomite-go/cryptomite/pkg/resilience"
)

// Loader produces a fresh index for POST /api/v1/docs/reload.
type Loader func(ctx context.Context) (*docindex.Index, error)

// Config tunes the handler.
type Config struct {
	// MaxInputBits caps each extraction input. Zero means no cap.
	MaxInputBits int
	// RazDetailed is the default for parameter requests that do not set
	// "detailed".
	RazDetailed bool
	// ExtractTimeout bounds one extraction. Zero means no limit.
	ExtractTimeout time.Duration
}

// Handler implements the API endpoints.
type Handler struct {
	index   atomic.Pointer[docindex.Index]
	loader  Loader
	params  *cache.ParamCache
	runs    RunReader
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Handler. idx, params, loader and m may be nil; without an
// index the docs endpoints answer 503, without a cache parameters are
// computed on every request.
func New(idx *docindex.Index, params *cache.ParamCache, loader Loader, cfg Config, m *metrics.Metrics) *Handler {
	h := &Handler{
		loader:  loader,
		params:  params,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "api-handler"),
	}
	if idx != nil {
		h.SetIndex(idx)
	}
	return h
}

// SetIndex swaps the served index.
func (h *Handler) SetIndex(idx *docindex.Index) {
	h.index.Store(idx)
	if h.metrics != nil {
		h.metrics.IndexDocuments.Set(float64(idx.Len()))
	}
}

// Index returns the served index, or nil.
func (h *Handler) Index() *docindex.Index {
	return h.index.Load()
}

func (h *Handler) currentIndex() (*docindex.Index, error) {
	idx := h.index.Load()
	if idx == nil {
		return nil, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "no search index loaded")
	}
	return idx, nil
}

func (h *Handler) DocsStats(w http.ResponseWriter, r *http.Request) {
	idx, err := h.currentIndex()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, idx.Stats())
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	idx, err := h.currentIndex()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	docs := idx.Documents()
	h.writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "total": len(docs)})
}

// GetDocument accepts a numeric document ID or a docname.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	idx, err := h.currentIndex()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	key := r.PathValue("name")
	var doc docindex.Document
	if id, convErr := strconv.Atoi(key); convErr == nil {
		doc, err = idx.Document(id)
	} else {
		doc, err = idx.DocumentByName(key)
	}
	h.countLookup("document", err)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) Term(w http.ResponseWriter, r *http.Request) {
	h.termLookup(w, r, "term", (*docindex.Index).Term)
}

func (h *Handler) TitleTerm(w http.ResponseWriter, r *http.Request) {
	h.termLookup(w, r, "titleterm", (*docindex.Index).TitleTerm)
}

func (h *Handler) termLookup(w http.ResponseWriter, r *http.Request, kind string, lookup func(*docindex.Index, string) ([]docindex.TermHit, error)) {
	idx, err := h.currentIndex()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	term := r.PathValue("term")
	hits, err := lookup(idx, term)
	h.countLookup(kind, err)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"term": term, "documents": hits, "total": len(hits)})
}

func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	idx, err := h.currentIndex()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ref, err := idx.Object(r.PathValue("name"))
	h.countLookup("object", err)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ref)
}

// ListObjects requires ?kind=, e.g. "class" or "py:function".
func (h *Handler) ListObjects(w http.ResponseWriter, r *http.Request) {
	idx, err := h.currentIndex()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		h.fail(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'kind' is required"))
		return
	}
	objs := idx.ObjectsOfType(kind)
	if objs == nil {
		objs = []docindex.ObjectRef{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "objects": objs, "total": len(objs)})
}

func (h *Handler) ReloadIndex(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		h.fail(w, r, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "index reload is not configured"))
		return
	}
	idx, err := h.loader(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("index reload failed", "error", err)
		h.fail(w, r, fmt.Errorf("%w: %w", apperrors.ErrUnavailable, err))
		return
	}
	h.SetIndex(idx)
	logger.FromContext(r.Context()).Info("search index reloaded", "documents", idx.Len())
	h.writeJSON(w, http.StatusOK, idx.Stats())
}

// ExtractRequest is the body of POST /api/v1/extract. Inputs are bit
// strings; K and Error are only read by Trevisan (min-entropy and log2 of
// the error), Trinomial only by Raz.
type ExtractRequest struct {
	Extractor string  `json:"extractor"`
	N         int     `json:"n"`
	M         int     `json:"m"`
	K         float64 `json:"k,omitempty"`
	Error     float64 `json:"error,omitempty"`
	Trinomial int     `json:"trinomial,omitempty"`
	Input1    string  `json:"input1"`
	Input2    string  `json:"input2,omitempty"`
}

// ExtractResponse is returned by POST /api/v1/extract.
type ExtractResponse struct {
	Extractor  string  `json:"extractor"`
	Output     string  `json:"output"`
	OutputBits int     `json:"output_bits"`
	LatencyMS  float64 `json:"latency_ms"`
}

func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	var req ExtractRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Extractor == "" {
		h.fail(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "field 'extractor' is required"))
		return
	}
	in1, err := bits.Parse(req.Input1)
	if err != nil {
		h.fail(w, r, fmt.Errorf("input1: %w", err))
		return
	}
	in2, err := bits.Parse(req.Input2)
	if err != nil {
		h.fail(w, r, fmt.Errorf("input2: %w", err))
		return
	}
	if limit := h.cfg.MaxInputBits; limit > 0 && (len(in1) > limit || len(in2) > limit) {
		h.fail(w, r, apperrors.Newf(apperrors.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge,
			"inputs are limited to %d bits", limit))
		return
	}

	name := extractor.Normalize(req.Extractor)
	ext, err := extractor.New(name, extractor.Params{
		N1:        req.N,
		M:         req.M,
		K1:        req.K,
		Log2Error: req.Error,
		Trinomial: req.Trinomial,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	start := time.Now()
	out, err := resilience.Call(r.Context(), h.cfg.ExtractTimeout, "extract "+name,
		func(ctx context.Context) (bits.Bits, error) {
			return extractor.ExtractContext(ctx, ext, in1, in2)
		})
	elapsed := time.Since(start)
	h.observe(name, err, len(out), elapsed)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	log.Info("extraction completed",
		"extractor", name,
		"input_bits", len(in1)+len(in2),
		"output_bits", len(out),
		"latency_ms", elapsed.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, ExtractResponse{
		Extractor:  name,
		Output:     out.String(),
		OutputBits: len(out),
		LatencyMS:  float64(elapsed.Microseconds()) / 1000,
	})
}

// ParamsRequest is the body of POST /api/v1/params/{extractor}.
type ParamsRequest struct {
	extractor.Sources
	Detailed *bool `json:"detailed,omitempty"`
}

func (h *Handler) Params(w http.ResponseWriter, r *http.Request) {
	var req ParamsRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	creq := cache.Request{
		Extractor: r.PathValue("extractor"),
		Sources:   req.Sources,
		Detailed:  h.cfg.RazDetailed,
	}
	if req.Detailed != nil {
		creq.Detailed = *req.Detailed
	}

	var (
		p      extractor.Params
		cached bool
		err    error
	)
	if h.params != nil {
		p, cached, err = h.params.Calculate(r.Context(), creq)
	} else {
		p, err = extractor.Calculate(creq.Extractor, creq.Sources, creq.Detailed)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"params": p, "cached": cached})
}

// Suggest answers GET /api/v1/suggest?n=&exchangeable=&efficient=.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n, err := strconv.Atoi(q.Get("n"))
	if err != nil || n <= 0 {
		h.fail(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "n must be a positive integer"))
		return
	}
	flag := func(name string) (bool, error) {
		v := q.Get(name)
		if v == "" {
			return false, nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%s must be a boolean", name)
		}
		return b, nil
	}
	exchangeable, err := flag("exchangeable")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	efficient, err := flag("efficient")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	display := extractor.Suggest(n, exchangeable, efficient)
	h.writeJSON(w, http.StatusOK, map[string]string{
		"suggestion": display,
		"extractor":  extractor.Normalize(display),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.params == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.params.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.params == nil {
		h.fail(w, r, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	if err := h.params.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.fail(w, r, fmt.Errorf("%w: %w", apperrors.ErrUnavailable, err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) countLookup(kind string, err error) {
	if h.metrics == nil {
		return
	}
	result := "hit"
	if err != nil {
		result = "miss"
	}
	h.metrics.IndexLookupsTotal.WithLabelValues(kind, result).Inc()
}

func (h *Handler) observe(name string, err error, outBits int, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	h.metrics.ExtractionsTotal.WithLabelValues(name, status).Inc()
	h.metrics.ExtractionLatency.WithLabelValues(name).Observe(elapsed.Seconds())
	h.metrics.ExtractedBitsTotal.WithLabelValues(name).Add(float64(outBits))
}

// maxBodyBytes bounds request bodies: two bit strings of MaxInputBits plus
// slack for grouping whitespace and the other fields.
func (h *Handler) maxBodyBytes() int64 {
	if h.cfg.MaxInputBits <= 0 {
		return 64 << 20
	}
	return int64(h.cfg.MaxInputBits)*4 + 64<<10
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes())
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperrors.Newf(apperrors.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge,
				"request body exceeds %d bytes", tooBig.Limit)
		}
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid JSON body: %v", err)
	}
	return nil
}

// classify maps domain errors onto the API error sentinels.
func classify(err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, docindex.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		return apperrors.Wrap(apperrors.ErrNotFound, err)
	case errors.Is(err, extractor.ErrUnknownExtractor):
		return apperrors.Wrap(apperrors.ErrUnknownResource, err)
	case errors.Is(err, extractor.ErrInputLength),
		errors.Is(err, extractor.ErrInvalidParameters),
		errors.Is(err, bits.ErrInvalidBit):
		return apperrors.Wrap(apperrors.ErrInvalidInput, err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(apperrors.ErrTimeout, err)
	}
	return err
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	err = classify(err)
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	body := map[string]string{"error": msg}
	if id := middleware.GetRequestID(r.Context()); id != "" {
		body["request_id"] = id
	}
	h.writeJSON(w, status, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
