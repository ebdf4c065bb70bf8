package webapi

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conceptlab/conceptci/internal/concepts"
)

func TestBasicAuth(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := BasicAuth("admin", "secret", nil)(inner)

	tests := []struct {
		name       string
		user, pass string
		setAuth    bool
		wantStatus int
	}{
		{name: "no credentials", wantStatus: http.StatusUnauthorized},
		{name: "wrong password", user: "admin", pass: "nope", setAuth: true, wantStatus: http.StatusUnauthorized},
		{name: "wrong user", user: "root", pass: "secret", setAuth: true, wantStatus: http.StatusUnauthorized},
		{name: "valid", user: "admin", pass: "secret", setAuth: true, wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/concepts", nil)
			if tt.setAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				want := `Basic realm="Stock Concept Management"`
				if got := rec.Header().Get("WWW-Authenticate"); got != want {
					t.Errorf("expected challenge %q, got %q", want, got)
				}
				if !strings.Contains(rec.Body.String(), `"success":false`) {
					t.Errorf("expected error envelope, got %s", rec.Body.String())
				}
			}
		})
	}
}

func TestBasicAuth_DisabledWithoutCredentials(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, creds := range [][2]string{{"", ""}, {"admin", ""}, {"", "secret"}} {
		handler := BasicAuth(creds[0], creds[1], nil)(inner)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/concepts/x", nil))
		if rec.Code != http.StatusTeapot {
			t.Errorf("creds %v: expected pass-through, got %d", creds, rec.Code)
		}
	}
}

func TestRegisterRoutes_AuthOnlyOnMutations(t *testing.T) {
	store := concepts.NewFileStore(filepath.Join(t.TempDir(), "concepts.json"))
	mux := http.NewServeMux()
	RegisterRoutes(mux, NewHandlers(Options{Store: store, Searcher: &fakeSearcher{stocks: testStocks}}), BasicAuth("admin", "secret", nil))

	for _, tc := range []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/api/concepts", http.StatusOK},
		{http.MethodPost, "/api/concepts", http.StatusUnauthorized},
		{http.MethodPut, "/api/concepts/x", http.StatusUnauthorized},
		{http.MethodDelete, "/api/concepts/x", http.StatusUnauthorized},
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, strings.NewReader(`{"name":"光伏"}`)))
		if rec.Code != tc.want {
			t.Errorf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, rec.Code)
		}
	}
}
