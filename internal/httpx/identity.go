package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-pos-checkout/internal/auth"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// Identity trusts the gateway in front of the service to have authenticated the
// caller and to forward who they are in two headers.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, rawRole := r.Header.Get(HeaderUserID), r.Header.Get(HeaderUserRole)
		if id == "" || rawRole == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing identity headers", Code: "UNAUTHENTICATED"})
			return
		}
		role, err := auth.ParseRole(rawRole)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		ctx := auth.WithPrincipal(r.Context(), auth.Principal{ID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// principal is only called behind Identity.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}
