package webapi

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// Realm is sent in the WWW-Authenticate challenge.
const Realm = "Stock Concept Management"

// BasicAuth returns middleware that requires the given credentials. When
// either is empty, authentication is disabled and a warning is logged.
func BasicAuth(username, password string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if username == "" || password == "" {
		logger.Warn("AUTH_USERNAME or AUTH_PASSWORD not set, authentication disabled")
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok {
				challenge(w, "authentication required")
				return
			}
			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
			if !userOK || !passOK {
				challenge(w, "invalid username or password")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func challenge(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+Realm+`"`)
	writeError(w, http.StatusUnauthorized, msg)
}
