package api

import (
	"context"
	"errors"
	"net/http"

	"zlot-parking/internal/auth"
	"zlot-parking/internal/models"
)

type adminProfileKey struct{}

// authError writes the response for a failed authentication.
func (h *Handler) authError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		writeMessage(w, http.StatusUnauthorized, "Missing Authorization bearer token.")
	case errors.Is(err, auth.ErrInvalidToken):
		writeMessage(w, http.StatusUnauthorized, "Invalid or expired session token.")
	case errors.Is(err, auth.ErrNotAdmin):
		writeMessage(w, http.StatusForbidden, "Admin access required.")
	default:
		h.log(r.Context()).Error("admin role lookup failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Unable to validate admin profile role.")
	}
}

// requireUser runs next with the caller's principal in the request context.
func (h *Handler) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := h.Auth.Authenticate(r)
		if err != nil {
			h.authError(w, r, err)
			return
		}
		next(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	}
}

// requireAdmin is requireUser plus the admin role check. The profile row
// that granted access, if any, is kept for /admin/me.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, profile, err := h.Auth.AuthenticateAdmin(r)
		if err != nil {
			h.authError(w, r, err)
			return
		}
		ctx := auth.WithPrincipal(r.Context(), p)
		if profile != nil {
			ctx = context.WithValue(ctx, adminProfileKey{}, profile)
		}
		next(w, r.WithContext(ctx))
	}
}

func principal(r *http.Request) *auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

func adminProfile(r *http.Request) *models.Profile {
	p, _ := r.Context().Value(adminProfileKey{}).(*models.Profile)
	return p
}
