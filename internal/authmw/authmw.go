// Package authmw provides HTTP middleware for shared-secret authentication
// of trigger endpoints.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const unauthorizedBody = `{"error":"Unauthorized"}`

// SharedSecret returns middleware that admits a request when it presents
// secret either as "Authorization: Bearer <secret>" or as the "secret" query
// parameter. Either one matching is enough. Values are trimmed and compared
// in constant time. An empty secret rejects every request.
func SharedSecret(secret string) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(secret))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 {
				unauthorized(w)
				return
			}
			bearer, query := presented(r)
			// both are always compared
			okBearer := matches(bearer, expected)
			okQuery := matches(query, expected)
			if !okBearer && !okQuery {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// presented returns the trimmed bearer token and query secret. Either may be
// empty.
func presented(r *http.Request) (bearer, query string) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		bearer = strings.TrimSpace(auth[len("Bearer "):])
	}
	return bearer, strings.TrimSpace(r.URL.Query().Get("secret"))
}

func matches(got string, expected []byte) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), expected) == 1
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(unauthorizedBody))
}
