package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cryptomite-go/cryptomite/internal/ledger"
	apperrors "github.com/cryptomite-go/cryptomite/pkg/errors"
)

// RunReader is the read side of the extraction ledger.
type RunReader interface {
	Get(ctx context.Context, id string) (ledger.Run, error)
	List(ctx context.Context, opts ledger.ListOptions) ([]ledger.Run, error)
	Summarize(ctx context.Context) ([]ledger.Summary, error)
}

const (
	defaultRunLimit = 50
	maxRunLimit     = 1000
)

// SetRuns enables the /api/v1/runs endpoints.
func (h *Handler) SetRuns(runs RunReader) {
	h.runs = runs
}

func (h *Handler) runReader() (RunReader, error) {
	if h.runs == nil {
		return nil, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "extraction ledger is not configured")
	}
	return h.runs, nil
}

// ListRuns answers GET /api/v1/runs?extractor=&status=&limit=.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runReader()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	limit := defaultRunLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.fail(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxRunLimit)
	}
	list, err := runs.List(r.Context(), ledger.ListOptions{
		Extractor: q.Get("extractor"),
		Status:    q.Get("status"),
		Limit:     limit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []ledger.Run{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": list, "total": len(list)})
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runReader()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	run, err := runs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

func (h *Handler) RunSummary(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runReader()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sums, err := runs.Summarize(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if sums == nil {
		sums = []ledger.Summary{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"summary": sums})
}
