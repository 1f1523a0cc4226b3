package api

import (
	"net/http"
	"time"

	"github.com/cryptomite-go/cryptomite/pkg/health"
	"github.com/cryptomite-go/cryptomite/pkg/metrics"
	"github.com/cryptomite-go/cryptomite/pkg/middleware"
)

// RouterOptions selects the optional middleware. Nil fields are skipped.
type RouterOptions struct {
	Metrics *metrics.Metrics
	Limiter *middleware.ClientLimiter
	Timeout time.Duration
	CORS    *middleware.CORSConfig
}

// NewRouter builds the service HTTP handler.
//
// Route table:
//
//	GET    /api/v1/docs/stats               index summary
//	GET    /api/v1/docs/documents           every document
//	GET    /api/v1/docs/documents/{name}    one document by ID or docname
//	GET    /api/v1/docs/terms/{term}        documents containing a term
//	GET    /api/v1/docs/titleterms/{term}   documents whose title has a term
//	GET    /api/v1/docs/objects/{name}      one object by full name
//	GET    /api/v1/docs/objects?kind=       objects of a type
//	POST   /api/v1/docs/reload              reload the index from its source
//	POST   /api/v1/extract                  run an extractor (rate limited)
//	POST   /api/v1/params/{extractor}       parameter calculation (rate limited)
//	GET    /api/v1/suggest                  extractor suggestion
//	GET    /api/v1/runs                     recorded extraction runs
//	GET    /api/v1/runs/summary             runs per extractor and status
//	GET    /api/v1/runs/{id}                one recorded run
//	GET    /api/v1/cache/stats              parameter cache counters
//	POST   /api/v1/cache/invalidate         drop cached parameters
//	GET    /health/live, /health/ready      checks
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → Metrics → Timeout → RateLimit → mux
func NewRouter(h *Handler, checker *health.Checker, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("GET /api/v1/docs/stats", h.DocsStats)
	mux.HandleFunc("GET /api/v1/docs/documents", h.ListDocuments)
	mux.HandleFunc("GET /api/v1/docs/documents/{name...}", h.GetDocument)
	mux.HandleFunc("GET /api/v1/docs/terms/{term}", h.Term)
	mux.HandleFunc("GET /api/v1/docs/titleterms/{term}", h.TitleTerm)
	mux.HandleFunc("GET /api/v1/docs/objects/{name}", h.GetObject)
	mux.HandleFunc("GET /api/v1/docs/objects", h.ListObjects)
	mux.HandleFunc("POST /api/v1/docs/reload", h.ReloadIndex)

	mux.HandleFunc("POST /api/v1/extract", h.Extract)
	mux.HandleFunc("POST /api/v1/params/{extractor}", h.Params)
	mux.HandleFunc("GET /api/v1/suggest", h.Suggest)

	mux.HandleFunc("GET /api/v1/runs", h.ListRuns)
	mux.HandleFunc("GET /api/v1/runs/summary", h.RunSummary)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.GetRun)

	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	var chain http.Handler = mux
	if opts.Limiter != nil {
		chain = middleware.RateLimit(opts.Limiter, opts.Metrics, "/api/v1/extract", "/api/v1/params/")(chain)
	}
	if opts.Timeout > 0 {
		chain = middleware.Timeout(opts.Timeout)(chain)
	}
	if opts.Metrics != nil {
		chain = middleware.Metrics(opts.Metrics)(chain)
	}
	if opts.CORS != nil {
		chain = middleware.CORS(*opts.CORS)(chain)
	}
	chain = middleware.RequestID(chain)
	return chain
}
