package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conceptlab/conceptci/internal/chat"
	"github.com/conceptlab/conceptci/internal/concepts"
	"github.com/conceptlab/conceptci/internal/quotes"
)

type fakeSearcher struct {
	stocks []concepts.Stock
	err    error
	names  []string
}

func (f *fakeSearcher) Search(_ context.Context, name string) ([]concepts.Stock, error) {
	f.names = append(f.names, name)
	return f.stocks, f.err
}

type fakeQuotes struct {
	quotes []quotes.Quote
	err    error
	refs   []quotes.Ref
}

func (f *fakeQuotes) Fetch(_ context.Context, refs []quotes.Ref) ([]quotes.Quote, error) {
	f.refs = refs
	return f.quotes, f.err
}

type fakeCharts struct {
	minute quotes.MinuteChart
	daily  quotes.DailyChart
	err    error
	refs   []quotes.Ref
}

func (f *fakeCharts) Minute(_ context.Context, r quotes.Ref) (quotes.MinuteChart, error) {
	f.refs = append(f.refs, r)
	return f.minute, f.err
}

func (f *fakeCharts) Daily(_ context.Context, r quotes.Ref) (quotes.DailyChart, error) {
	f.refs = append(f.refs, r)
	return f.daily, f.err
}

var testStocks = []concepts.Stock{
	{Code: "300136", Name: "信维通信", Market: "SZ"},
	{Code: "600118", Name: "中国卫星", Market: "SH"},
}

type testAPI struct {
	store    *concepts.FileStore
	searcher *fakeSearcher
	quotes   *fakeQuotes
	charts   *fakeCharts
	mux      *http.ServeMux
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	api := &testAPI{
		store:    concepts.NewFileStore(filepath.Join(t.TempDir(), "concepts.json")),
		searcher: &fakeSearcher{stocks: testStocks},
		quotes:   &fakeQuotes{},
		charts:   &fakeCharts{},
		mux:      http.NewServeMux(),
	}
	h := NewHandlers(Options{
		Store:      api.store,
		Searcher:   api.searcher,
		Quotes:     api.quotes,
		Charts:     api.charts,
		Iterations: 200,
		Seed:       1,
	})
	RegisterRoutes(api.mux, h, nil)
	return api
}

func (a *testAPI) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

// decodeData re-decodes the envelope's data field into v.
func decodeData(t *testing.T, resp Response, v any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatal(err)
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	api.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %q", resp.Status)
	}
	if resp.Version == "" {
		t.Error("expected a version")
	}
}

func TestCreateAndGetConcept(t *testing.T) {
	api := newTestAPI(t)

	rec, resp := api.do(t, http.MethodPost, "/api/concepts", `{"name":" 卫星互联网 "}`)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("create: got %d %+v", rec.Code, resp)
	}
	if !strings.Contains(resp.Message, "2 stocks") {
		t.Errorf("unexpected message %q", resp.Message)
	}
	if len(api.searcher.names) != 1 || api.searcher.names[0] != "卫星互联网" {
		t.Errorf("searcher called with %v", api.searcher.names)
	}

	var created concepts.Concept
	decodeData(t, resp, &created)
	if created.Name != "卫星互联网" || len(created.Stocks) != 2 {
		t.Fatalf("unexpected concept %+v", created)
	}

	rec, resp = api.do(t, http.MethodGet, "/api/concepts/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	var got concepts.Concept
	decodeData(t, resp, &got)
	if got.ID != created.ID {
		t.Errorf("expected id %q, got %q", created.ID, got.ID)
	}

	_, resp = api.do(t, http.MethodGet, "/api/concepts", "")
	var list []concepts.Concept
	decodeData(t, resp, &list)
	if len(list) != 1 {
		t.Errorf("expected 1 concept, got %d", len(list))
	}
}

func TestCreateConcept_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		searchErr  error
		noSearcher bool
		wantStatus int
	}{
		{name: "empty name", body: `{"name":"  "}`, wantStatus: http.StatusBadRequest},
		{name: "missing body", body: "", wantStatus: http.StatusBadRequest},
		{name: "malformed body", body: `{"name":`, wantStatus: http.StatusBadRequest},
		{name: "no stocks found", body: `{"name":"光伏"}`, searchErr: concepts.ErrNoStocks, wantStatus: http.StatusUnprocessableEntity},
		{name: "provider error", body: `{"name":"光伏"}`, searchErr: &chat.StatusError{StatusCode: 429}, wantStatus: http.StatusBadGateway},
		{name: "other error", body: `{"name":"光伏"}`, searchErr: errors.New("boom"), wantStatus: http.StatusInternalServerError},
		{name: "search disabled", body: `{"name":"光伏"}`, noSearcher: true, wantStatus: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := concepts.NewFileStore(filepath.Join(t.TempDir(), "concepts.json"))
			opts := Options{Store: store, Quotes: &fakeQuotes{}}
			if !tt.noSearcher {
				opts.Searcher = &fakeSearcher{stocks: testStocks, err: tt.searchErr}
			}
			mux := http.NewServeMux()
			RegisterRoutes(mux, NewHandlers(opts), nil)
			api := &testAPI{store: store, mux: mux}

			rec, resp := api.do(t, http.MethodPost, "/api/concepts", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d (%s)", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if resp.Success || resp.Error == "" {
				t.Errorf("expected failure envelope, got %+v", resp)
			}

			list, err := store.List()
			if err != nil {
				t.Fatal(err)
			}
			if len(list) != 0 {
				t.Errorf("expected nothing stored, got %d concepts", len(list))
			}
		})
	}
}

func TestGetConcept_NotFound(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/api/concepts/concept_1", "/api/concepts/concept_1/stocks"} {
		rec, resp := api.do(t, http.MethodGet, path, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
		if resp.Error != concepts.ErrNotFound.Error() {
			t.Errorf("%s: unexpected error %q", path, resp.Error)
		}
	}
}

func TestRefreshConcept(t *testing.T) {
	api := newTestAPI(t)
	c, err := api.store.Create("卫星互联网", testStocks)
	if err != nil {
		t.Fatal(err)
	}

	api.searcher.stocks = testStocks[:1]
	rec, resp := api.do(t, http.MethodPut, "/api/concepts/"+c.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if api.searcher.names[0] != "卫星互联网" {
		t.Errorf("expected stored name to be searched, got %q", api.searcher.names[0])
	}

	var updated concepts.Concept
	decodeData(t, resp, &updated)
	if len(updated.Stocks) != 1 || updated.UpdatedAt == nil {
		t.Errorf("unexpected concept %+v", updated)
	}

	_, _ = api.do(t, http.MethodPut, "/api/concepts/"+c.ID, `{"name":"商业航天"}`)
	if api.searcher.names[1] != "商业航天" {
		t.Errorf("expected body name to be searched, got %q", api.searcher.names[1])
	}

	rec, _ = api.do(t, http.MethodPut, "/api/concepts/concept_missing", `{"name":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if len(api.searcher.names) != 2 {
		t.Error("search should not run for unknown concepts")
	}
}

func TestDeleteConcept(t *testing.T) {
	api := newTestAPI(t)
	c, err := api.store.Create("卫星互联网", testStocks)
	if err != nil {
		t.Fatal(err)
	}

	rec, resp := api.do(t, http.MethodDelete, "/api/concepts/"+c.ID, "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("expected success, got %d %+v", rec.Code, resp)
	}

	deleted, err := api.store.ListDeleted()
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 1 {
		t.Errorf("expected soft delete, got %d deleted", len(deleted))
	}

	rec, _ = api.do(t, http.MethodDelete, "/api/concepts/"+c.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestConceptStocks(t *testing.T) {
	api := newTestAPI(t)
	c, err := api.store.Create("卫星互联网", testStocks)
	if err != nil {
		t.Fatal(err)
	}
	api.quotes.quotes = []quotes.Quote{
		{Code: "300136", Price: 30, ChangePercent: 2.5, Status: quotes.StatusNormal},
		{Code: "600118", Price: 40, ChangePercent: -0.5, Status: quotes.StatusNormal},
	}

	rec, resp := api.do(t, http.MethodGet, "/api/concepts/"+c.ID+"/stocks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var board BoardQuotes
	decodeData(t, resp, &board)
	if board.ConceptID != c.ID || board.Concept != "卫星互联网" {
		t.Errorf("unexpected board header %+v", board)
	}
	if len(board.Quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(board.Quotes))
	}
	if board.AvgChangePercent != 1 {
		t.Errorf("expected avg 1, got %v", board.AvgChangePercent)
	}
	if board.Summary.Up != 1 || board.Summary.Down != 1 || board.Summary.CI == nil {
		t.Errorf("unexpected summary %+v", board.Summary)
	}
	if len(api.quotes.refs) != 2 || api.quotes.refs[1].Market != "SH" {
		t.Errorf("unexpected refs %+v", api.quotes.refs)
	}
}

func TestConceptStocks_FetchFailureUsesPlaceholders(t *testing.T) {
	api := newTestAPI(t)
	c, err := api.store.Create("卫星互联网", testStocks)
	if err != nil {
		t.Fatal(err)
	}
	api.quotes.err = errors.New("upstream down")

	rec, resp := api.do(t, http.MethodGet, "/api/concepts/"+c.ID+"/stocks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var board BoardQuotes
	decodeData(t, resp, &board)
	if board.Summary.Errors != 2 || board.Summary.CI != nil {
		t.Errorf("unexpected summary %+v", board.Summary)
	}
	for _, q := range board.Quotes {
		if q.Status != quotes.StatusError {
			t.Errorf("expected error status for %s, got %s", q.Code, q.Status)
		}
	}
}

func TestConceptStocks_EmptyConcept(t *testing.T) {
	api := newTestAPI(t)
	c, err := api.store.Create("空概念", nil)
	if err != nil {
		t.Fatal(err)
	}

	_, resp := api.do(t, http.MethodGet, "/api/concepts/"+c.ID+"/stocks", "")
	var board BoardQuotes
	decodeData(t, resp, &board)
	if board.Quotes == nil || len(board.Quotes) != 0 {
		t.Errorf("expected empty quote list, got %v", board.Quotes)
	}
	if api.quotes.refs != nil {
		t.Error("quotes should not be fetched for an empty concept")
	}
}

func TestMinuteChart(t *testing.T) {
	api := newTestAPI(t)
	api.charts.minute = quotes.MinuteChart{
		Code:      "600519",
		Times:     []string{"09:30", "09:31"},
		Prices:    []float64{1690, 1695.5},
		PrevClose: 1680,
	}

	rec, resp := api.do(t, http.MethodGet, "/api/charts/minute/sh600519", "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("expected success, got %d %+v", rec.Code, resp)
	}
	var chart quotes.MinuteChart
	decodeData(t, resp, &chart)
	if len(chart.Times) != 2 || chart.Prices[1] != 1695.5 || chart.PrevClose != 1680 {
		t.Errorf("unexpected chart %+v", chart)
	}
	if len(api.charts.refs) != 1 || api.charts.refs[0] != (quotes.Ref{Code: "600519", Market: "SH"}) {
		t.Errorf("unexpected refs %+v", api.charts.refs)
	}
}

func TestDailyChart(t *testing.T) {
	api := newTestAPI(t)
	api.charts.daily = quotes.DailyChart{
		Code:    "000001",
		Dates:   []string{"2025-03-03"},
		Candles: []quotes.Candle{{Open: 10.65, Close: 10.85, Low: 10.55, High: 10.9, Volume: 2345600}},
	}

	rec, resp := api.do(t, http.MethodGet, "/api/charts/daily/000001", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected data %T", resp.Data)
	}
	kline, ok := data["klineData"].([]any)
	if !ok || len(kline) != 1 {
		t.Fatalf("unexpected klineData %v", data["klineData"])
	}
	bar := kline[0].([]any)
	if len(bar) != 5 || bar[1] != 10.85 || bar[4] != float64(2345600) {
		t.Errorf("expected [open, close, low, high, volume], got %v", bar)
	}
	if api.charts.refs[0].Market != "" {
		t.Errorf("market should be inferred later, got %q", api.charts.refs[0].Market)
	}
}

func TestCharts_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		err        error
		noCharts   bool
		wantStatus int
	}{
		{name: "bad code", path: "/api/charts/minute/60051x", wantStatus: http.StatusBadRequest},
		{name: "source without data", path: "/api/charts/daily/600519", err: fmt.Errorf("daily chart: %w", quotes.ErrNoChartData), wantStatus: http.StatusBadGateway},
		{name: "network failure", path: "/api/charts/minute/600519", err: errors.New("connection refused"), wantStatus: http.StatusInternalServerError},
		{name: "not configured", path: "/api/charts/daily/600519", noCharts: true, wantStatus: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{Store: concepts.NewFileStore(filepath.Join(t.TempDir(), "c.json"))}
			if !tt.noCharts {
				opts.Charts = &fakeCharts{err: tt.err}
			}
			api := &testAPI{mux: http.NewServeMux()}
			RegisterRoutes(api.mux, NewHandlers(opts), nil)

			rec, resp := api.do(t, http.MethodGet, tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d (%s)", tt.wantStatus, rec.Code, resp.Error)
			}
			if resp.Success || resp.Error == "" {
				t.Errorf("expected error envelope, got %+v", resp)
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("no origins configured means no CORS header", func(t *testing.T) {
		handler := CORSMiddleware(inner)
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://evil.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Error("expected no CORS header when no origins configured")
		}
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("allowed origin gets CORS header", func(t *testing.T) {
		handler := CORSMiddleware(inner, "http://localhost:5173")
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
			t.Error("expected CORS header for allowed origin")
		}
		if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "DELETE") {
			t.Error("expected mutating methods to be allowed")
		}
	})

	t.Run("wildcard allows any origin", func(t *testing.T) {
		handler := CORSMiddleware(inner, "*")
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://anywhere.test")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Header().Get("Access-Control-Allow-Origin") != "http://anywhere.test" {
			t.Error("expected CORS header for wildcard")
		}
	})

	t.Run("disallowed origin gets no CORS header", func(t *testing.T) {
		handler := CORSMiddleware(inner, "http://localhost:5173")
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://evil.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Error("expected no CORS header for disallowed origin")
		}
	})

	t.Run("OPTIONS preflight", func(t *testing.T) {
		handler := CORSMiddleware(inner, "http://localhost:5173")
		req := httptest.NewRequest(http.MethodOptions, "/api/concepts", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204 for OPTIONS, got %d", rec.Code)
		}
	})
}
