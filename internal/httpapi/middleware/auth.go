package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type Keys struct {
	Public []string
	Admin  []string
}

type Role int

const (
	RoleNone Role = iota
	RolePublic
	RoleAdmin
)

type roleKey struct{}

// RoleFrom returns the role the request authenticated with. Requests that
// passed through an open (no keys configured) guard report RoleNone.
func RoleFrom(ctx context.Context) Role {
	r, _ := ctx.Value(roleKey{}).(Role)
	return r
}

func readAuth(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func inSet(given string, set []string) bool {
	if given == "" {
		return false
	}
	found := false
	for _, k := range set {
		// compare against every key so timing does not depend on position
		if subtle.ConstantTimeCompare([]byte(k), []byte(given)) == 1 {
			found = true
		}
	}
	return found
}

func (k Keys) roleOf(given string) Role {
	switch {
	case inSet(given, k.Admin):
		return RoleAdmin
	case inSet(given, k.Public):
		return RolePublic
	default:
		return RoleNone
	}
}

func deny(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// guard admits requests whose key maps to at least min. With no keys
// configured for the relevant sets it admits everything (local dev).
// A missing key is 401, a known key without enough rights is 403.
func guard(keys Keys, min Role, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := readAuth(r)
			role := keys.roleOf(given)
			switch {
			case role >= min:
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey{}, role)))
			case given == "" || (role == RoleNone && min == RolePublic):
				deny(w, http.StatusUnauthorized, "unauthorized")
			default:
				deny(w, http.StatusForbidden, "forbidden")
			}
		})
	}
}

// RequireAny allows requests that present either a public or admin key.
func RequireAny(keys Keys) func(http.Handler) http.Handler {
	return guard(keys, RolePublic, len(keys.Public) > 0 || len(keys.Admin) > 0)
}

// RequireAdmin only permits requests that present an admin key.
func RequireAdmin(keys Keys) func(http.Handler) http.Handler {
	return guard(keys, RoleAdmin, len(keys.Admin) > 0)
}
