package shield

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BearerAuth admits requests whose "Authorization: Bearer <token>" matches
// the bcrypt hash. An empty hash admits everything.
func BearerAuth(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if hash == "" {
			return next
		}
		h := []byte(hash)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" || bcrypt.CompareHashAndPassword(h, []byte(token)) != nil {
				GetLogger(r.Context()).Warn("auth: rejected", "has_header", r.Header.Get("Authorization") != "")
				w.Header().Set("WWW-Authenticate", `Bearer realm="sosrelay"`)
				WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HashToken returns the bcrypt hash to configure for token.
func HashToken(token string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
