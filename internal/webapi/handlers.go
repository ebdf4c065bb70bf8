// Package webapi implements the REST API for managing concept boards.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/conceptlab/conceptci/internal/chat"
	"github.com/conceptlab/conceptci/internal/concepts"
	"github.com/conceptlab/conceptci/internal/quotes"
	"github.com/conceptlab/conceptci/internal/statistics"
)

// Version is set at build time or defaults to dev.
var Version = "dev"

// ErrSearchDisabled is returned when no searcher is configured, typically
// because the provider API key is missing.
var ErrSearchDisabled = errors.New("concept search is not configured")

// ErrChartsDisabled is returned when no chart source is configured.
var ErrChartsDisabled = errors.New("price charts are not configured")

// StockSearcher finds constituents for a concept name.
type StockSearcher interface {
	Search(ctx context.Context, name string) ([]concepts.Stock, error)
}

// QuoteFetcher returns live quotes for a list of stocks.
type QuoteFetcher interface {
	Fetch(ctx context.Context, refs []quotes.Ref) ([]quotes.Quote, error)
}

// ChartFetcher returns intraday and daily price charts for one stock.
type ChartFetcher interface {
	Minute(ctx context.Context, r quotes.Ref) (quotes.MinuteChart, error)
	Daily(ctx context.Context, r quotes.Ref) (quotes.DailyChart, error)
}

// Options wires the handlers to their dependencies. Searcher and Charts
// may be nil.
type Options struct {
	Store    concepts.Store
	Searcher StockSearcher
	Quotes   QuoteFetcher
	Charts   ChartFetcher

	// Bootstrap settings for the board summary interval. A negative Seed
	// gives a fresh generator per request.
	Iterations int
	Confidence float64
	Seed       int64

	Logger *slog.Logger
}

// Handlers holds the HTTP handler methods for the web API.
type Handlers struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewHandlers creates a new Handlers with the given dependencies.
func NewHandlers(opts Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{opts: opts, logger: logger, now: time.Now}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   Version,
		Timestamp: h.now().UTC(),
	})
}

// HandleListConcepts returns all active concepts.
func (h *Handlers) HandleListConcepts(w http.ResponseWriter, _ *http.Request) {
	list, err := h.opts.Store.List()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, list, "")
}

// HandleGetConcept returns a single concept.
func (h *Handlers) HandleGetConcept(w http.ResponseWriter, r *http.Request) {
	c, err := h.opts.Store.Get(r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, c, "")
}

// HandleCreateConcept searches constituents for the posted name and stores
// a new concept.
func (h *Handlers) HandleCreateConcept(w http.ResponseWriter, r *http.Request) {
	name, err := decodeName(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if name == "" {
		h.fail(w, concepts.ErrEmptyName)
		return
	}

	stocks, err := h.search(r.Context(), name)
	if err != nil {
		h.fail(w, err)
		return
	}
	c, err := h.opts.Store.Create(name, stocks)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, c, fmt.Sprintf("created concept %q with %d stocks", c.Name, len(stocks)))
}

// HandleRefreshConcept re-runs the constituent search and replaces the
// concept's stocks. The stored name is used when the body has none.
func (h *Handlers) HandleRefreshConcept(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := h.opts.Store.Get(id)
	if err != nil {
		h.fail(w, err)
		return
	}

	name, err := decodeName(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if name == "" {
		name = existing.Name
	}

	stocks, err := h.search(r.Context(), name)
	if err != nil {
		h.fail(w, err)
		return
	}
	c, err := h.opts.Store.UpdateStocks(id, stocks)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, c, fmt.Sprintf("updated concept %q with %d stocks", name, len(stocks)))
}

// HandleDeleteConcept soft-deletes a concept.
func (h *Handlers) HandleDeleteConcept(w http.ResponseWriter, r *http.Request) {
	if err := h.opts.Store.Delete(r.PathValue("id")); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "concept deleted"})
}

// HandleConceptStocks returns live quotes for a concept's constituents and
// the board summary. When quotes cannot be fetched every stock is reported
// with an error status.
func (h *Handlers) HandleConceptStocks(w http.ResponseWriter, r *http.Request) {
	c, err := h.opts.Store.Get(r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}

	board := BoardQuotes{
		Concept:    c.Name,
		ConceptID:  c.ID,
		Quotes:     []quotes.Quote{},
		UpdateTime: h.now().UTC(),
	}
	if len(c.Stocks) == 0 {
		writeData(w, board, "")
		return
	}

	refs := make([]quotes.Ref, len(c.Stocks))
	for i, s := range c.Stocks {
		refs[i] = quotes.Ref{Code: s.Code, Name: s.Name, Market: s.Market}
	}
	qs, err := h.opts.Quotes.Fetch(r.Context(), refs)
	if err != nil {
		h.logger.Warn("quote fetch failed", "concept", c.ID, "error", err)
		qs = quotes.Placeholders(refs)
	}

	summary, err := quotes.Summarize(qs, quotes.SummaryOptions{
		Iterations:      h.opts.Iterations,
		ConfidenceLevel: h.opts.Confidence,
		Rand:            statistics.NewRand(h.opts.Seed),
	})
	if err != nil {
		h.fail(w, err)
		return
	}

	board.Quotes = qs
	board.Summary = summary
	board.AvgChangePercent = summary.AvgChangePercent
	writeData(w, board, "")
}

// HandleMinuteChart returns today's minute prices for the stock in the path.
func (h *Handlers) HandleMinuteChart(w http.ResponseWriter, r *http.Request) {
	ref, err := h.chartRef(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	chart, err := h.opts.Charts.Minute(r.Context(), ref)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, chart, "")
}

// HandleDailyChart returns recent daily bars for the stock in the path.
func (h *Handlers) HandleDailyChart(w http.ResponseWriter, r *http.Request) {
	ref, err := h.chartRef(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	chart, err := h.opts.Charts.Daily(r.Context(), ref)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, chart, "")
}

func (h *Handlers) chartRef(r *http.Request) (quotes.Ref, error) {
	if h.opts.Charts == nil {
		return quotes.Ref{}, ErrChartsDisabled
	}
	return quotes.ParseRef(r.PathValue("code"))
}

// RegisterRoutes registers all web API routes on the given mux. Mutating
// routes are wrapped with auth.
func RegisterRoutes(mux *http.ServeMux, h *Handlers, auth func(http.Handler) http.Handler) {
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}
	mux.HandleFunc("GET /api/health", h.HandleHealth)
	mux.HandleFunc("GET /api/concepts", h.HandleListConcepts)
	mux.HandleFunc("GET /api/concepts/{id}", h.HandleGetConcept)
	mux.HandleFunc("GET /api/concepts/{id}/stocks", h.HandleConceptStocks)
	mux.HandleFunc("GET /api/charts/minute/{code}", h.HandleMinuteChart)
	mux.HandleFunc("GET /api/charts/daily/{code}", h.HandleDailyChart)
	mux.Handle("POST /api/concepts", auth(http.HandlerFunc(h.HandleCreateConcept)))
	mux.Handle("PUT /api/concepts/{id}", auth(http.HandlerFunc(h.HandleRefreshConcept)))
	mux.Handle("DELETE /api/concepts/{id}", auth(http.HandlerFunc(h.HandleDeleteConcept)))
}

// CORSMiddleware wraps a handler with CORS headers.
// If allowedOrigins is empty, no CORS header is set (same-origin only).
// Otherwise, the request Origin is checked against the allowed list.
func CORSMiddleware(next http.Handler, allowedOrigins ...string) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if len(allowedOrigins) > 0 && origin != "" && (allowed[origin] || allowed["*"]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) search(ctx context.Context, name string) ([]concepts.Stock, error) {
	if h.opts.Searcher == nil {
		return nil, ErrSearchDisabled
	}
	return h.opts.Searcher.Search(ctx, name)
}

type badRequestError struct{ err error }

func (e badRequestError) Error() string { return "invalid request body: " + e.err.Error() }
func (e badRequestError) Unwrap() error { return e.err }

func decodeName(w http.ResponseWriter, r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}
	var req ConceptRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req)
	if errors.Is(err, io.EOF) {
		return "", nil
	}
	if err != nil {
		return "", badRequestError{err}
	}
	return strings.TrimSpace(req.Name), nil
}

// fail maps err to a status code and writes the error envelope.
func (h *Handlers) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var badReq badRequestError
	var statusErr *chat.StatusError
	switch {
	case errors.As(err, &badReq), errors.Is(err, concepts.ErrEmptyName), errors.Is(err, quotes.ErrInvalidSymbol):
		return http.StatusBadRequest
	case errors.Is(err, concepts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, concepts.ErrNoStocks):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrSearchDisabled), errors.Is(err, ErrChartsDisabled):
		return http.StatusServiceUnavailable
	case errors.As(err, &statusErr), errors.Is(err, quotes.ErrNoChartData):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeData(w http.ResponseWriter, data any, msg string) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, Response{Success: false, Error: msg})
}
