package httpx

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdminOnly guards operator endpoints with a static bearer token. An empty
// token disables them.
func AdminOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Message: "admin API disabled"})
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "admin token required"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
