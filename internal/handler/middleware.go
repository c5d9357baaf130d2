package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ThanhSi1008/tilevania-sub000/internal/auth"
	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

// authenticate resolves the bearer token to a caller and rejects the
// request when there is none
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, err)
			return
		}
		caller, err := h.deps.Tokens.Verify(token)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, domain.ErrInvalidToken)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), caller)))
	})
}

// requireOwner rejects requests whose userID path parameter is not the caller
func (h *Handler) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := auth.CallerFrom(r.Context())
		if !ok {
			h.writeError(w, http.StatusUnauthorized, domain.ErrMissingToken)
			return
		}
		if chi.URLParam(r, "userID") != caller.UserID {
			h.writeError(w, http.StatusForbidden, domain.ErrNotOwner)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminKeyHeader carries the operator key on admin routes
const AdminKeyHeader = "X-Admin-Key"

// requireAdmin admits only requests carrying the configured operator key.
// Without a configured key every admin route is refused.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(AdminKeyHeader)
		if h.deps.AdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.deps.AdminKey)) != 1 {
			h.writeError(w, http.StatusForbidden, domain.ErrAdminOnly)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callerID returns the authenticated user id
func callerID(r *http.Request) string {
	caller, _ := auth.CallerFrom(r.Context())
	return caller.UserID
}
