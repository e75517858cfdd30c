// Package handler exposes form sessions over a JSON HTTP API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"booking-intake/backend/internal/booking/domain"
	"booking-intake/backend/internal/intake"
)

const maxBodyBytes = 64 << 10

// Tokens issues and validates form tokens. *security.TokenProvider satisfies it.
type Tokens interface {
	Issue(formID string) (string, time.Time, error)
	Validate(token string) (string, error)
}

// Forms is the form-session registry. *intake.Manager satisfies it.
type Forms interface {
	Create(ctx context.Context) (*intake.Session, error)
	Get(id string) (*intake.Session, error)
	Delete(ctx context.Context, id string) error
}

// Handler serves the intake API.
type Handler struct {
	forms  Forms
	tokens Tokens
	steps  []domain.Step
	logger *zap.Logger
}

// New returns a Handler. steps is the layout reported by the catalog.
func New(forms Forms, tokens Tokens, steps []domain.Step, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{forms: forms, tokens: tokens, steps: steps, logger: logger}
}

// Routes returns the API router, to be mounted under /v1.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/catalog", h.catalog)
	r.Post("/forms", h.createForm)
	r.Route("/forms/{formID}", func(r chi.Router) {
		r.Use(h.requireFormToken)
		r.Get("/", h.getForm)
		r.Delete("/", h.deleteForm)
		r.Patch("/fields", h.patchFields)
		r.Post("/next", h.next)
		r.Post("/previous", h.previous)
		r.Post("/otp", h.requestOTP)
		r.Post("/otp/verify", h.verifyOTP)
		r.Delete("/otp", h.resetOTP)
		r.Post("/submit", h.submit)
	})
	return r
}

type createFormResponse struct {
	FormID    string      `json:"form_id"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	State     intake.View `json:"state"`
}

type otpRequest struct {
	Phone string `json:"phone"`
}

type otpResponse struct {
	Sent             bool        `json:"sent"`
	ExpiresInSeconds int         `json:"expires_in_seconds"`
	State            intake.View `json:"state"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

type verifyResponse struct {
	Verified bool        `json:"verified"`
	State    intake.View `json:"state"`
}

type submitResponse struct {
	Reference string      `json:"reference"`
	State     intake.View `json:"state"`
}

func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, domain.Catalog(h.steps))
}

func (h *Handler) createForm(w http.ResponseWriter, r *http.Request) {
	s, err := h.forms.Create(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	token, exp, err := h.tokens.Issue(s.ID())
	if err != nil {
		_ = h.forms.Delete(r.Context(), s.ID())
		h.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, createFormResponse{FormID: s.ID(), Token: token, ExpiresAt: exp, State: s.View()})
}

func (h *Handler) getForm(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, sessionFrom(r).View())
}

func (h *Handler) deleteForm(w http.ResponseWriter, r *http.Request) {
	if err := h.forms.Delete(r.Context(), sessionFrom(r).ID()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) patchFields(w http.ResponseWriter, r *http.Request) {
	var patch domain.FieldsPatch
	if !h.decode(w, r, &patch) {
		return
	}
	s := sessionFrom(r)
	if _, err := s.ApplyFields(patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, s.View())
}

func (h *Handler) next(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	if _, err := s.Advance(); err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, s.View())
}

func (h *Handler) previous(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	if _, err := s.Retreat(); err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, s.View())
}

func (h *Handler) requestOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	s := sessionFrom(r)
	sent, err := s.RequestOTP(r.Context(), req.Phone)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view := s.View()
	resp := otpResponse{Sent: sent, State: view}
	if !view.OTP.ExpiresAt.IsZero() && !view.OTP.IssuedAt.IsZero() {
		resp.ExpiresInSeconds = int(view.OTP.ExpiresAt.Sub(view.OTP.IssuedAt).Seconds())
	}
	render.JSON(w, r, resp)
}

func (h *Handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	s := sessionFrom(r)
	ok, err := s.VerifyOTP(r.Context(), req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		writeMismatch(w, r)
		return
	}
	render.JSON(w, r, verifyResponse{Verified: true, State: s.View()})
}

func (h *Handler) resetOTP(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	if err := s.ResetOTP(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, s.View())
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	b, err := s.Submit(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, submitResponse{Reference: b.Reference, State: s.View()})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := render.DecodeJSON(r.Body, v); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "invalid_body", Message: "request body must be JSON"})
		return false
	}
	return true
}
