package api

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
)

// AdminAuth guards the routes that create and delete matches. With an empty
// token every request is let through.
type AdminAuth struct {
	token      string
	trustProxy bool
}

// NewAdminAuth creates the guard.
func NewAdminAuth(token string, trustProxy bool) *AdminAuth {
	if token == "" {
		log.Println("⚠️ No admin token configured, match management is open")
	}
	return &AdminAuth{token: token, trustProxy: trustProxy}
}

// Enabled reports whether a token is required.
func (a *AdminAuth) Enabled() bool { return a != nil && a.token != "" }

// Middleware requires "Authorization: Bearer <token>".
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := bearerToken(r)
		if !ok || !tokensEqual(token, a.token) {
			log.Printf("🔒 Unauthorized %s %s from %s", r.Method, r.URL.Path, GetClientIP(r, a.trustProxy))
			RecordRejected("auth")
			w.Header().Set("WWW-Authenticate", `Bearer realm="volley-duel"`)
			writeError(w, "Admin authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// tokensEqual compares secrets in constant time.
func tokensEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
