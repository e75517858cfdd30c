package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"booking-intake/backend/internal/intake"
)

const bearerPrefix = "bearer "

type sessionKey struct{}

// requireFormToken validates the bearer token, checks that its form id matches the path and
// loads the session into the request context.
func (h *Handler) requireFormToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r)
		if token == "" {
			h.writeError(w, r, errUnauthorized)
			return
		}
		formID, err := h.tokens.Validate(token)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if formID != chi.URLParam(r, "formID") {
			h.writeError(w, r, errUnauthorized)
			return
		}
		s, err := h.forms.Get(formID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, s)))
	})
}

func sessionFrom(r *http.Request) *intake.Session {
	s, _ := r.Context().Value(sessionKey{}).(*intake.Session)
	return s
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
