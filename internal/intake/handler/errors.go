package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"booking-intake/backend/internal/booking/domain"
	"booking-intake/backend/internal/booking/form"
	"booking-intake/backend/internal/intake"
	"booking-intake/backend/internal/otp"
	"booking-intake/backend/internal/policy/engine"
	"booking-intake/backend/internal/security"
	"booking-intake/backend/internal/wizard"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string             `json:"error"`
	Message string             `json:"message"`
	Fields  domain.FieldErrors `json:"fields,omitempty"`
	Reasons []string           `json:"reasons,omitempty"`
}

var errUnauthorized = errors.New("missing or invalid authorization")

// classify maps err to a status code and error code. Validation and policy checks come first
// because both arrive wrapped in wizard.ErrNotReady.
func classify(err error) (int, string) {
	var denied *engine.DeniedError
	switch {
	case errors.As(err, new(*form.ValidationError)):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.As(err, &denied):
		return http.StatusForbidden, "policy_denied"
	case errors.Is(err, wizard.ErrNotReady):
		return http.StatusConflict, "not_ready"
	case errors.Is(err, wizard.ErrFinalized):
		return http.StatusConflict, "finalized"
	case errors.Is(err, wizard.ErrSubmitInProgress), errors.Is(err, otp.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, wizard.ErrCreateFailed):
		return http.StatusBadGateway, "submit_failed"
	case errors.Is(err, otp.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, otp.ErrAlreadyVerified):
		return http.StatusConflict, "already_verified"
	case errors.Is(err, otp.ErrSessionReset):
		return http.StatusConflict, "session_reset"
	case errors.Is(err, otp.ErrDispatch):
		return http.StatusBadGateway, "dispatch_failed"
	case errors.Is(err, intake.ErrPhoneLocked):
		return http.StatusConflict, "phone_locked"
	case errors.Is(err, intake.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, security.ErrInvalidToken), errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, name := classify(err)
	body := ErrorResponse{Error: name, Message: err.Error()}
	if ve, ok := form.AsValidationError(err); ok {
		body.Fields = ve.Fields
		body.Message = "Please correct the highlighted fields"
	}
	var denied *engine.DeniedError
	if errors.As(err, &denied) {
		body.Reasons = denied.Reasons
	}
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		body.Message = "internal error"
	}
	if code == http.StatusBadGateway {
		h.logger.Warn("upstream failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	render.Status(r, code)
	render.JSON(w, r, body)
}

func writeMismatch(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusUnprocessableEntity)
	render.JSON(w, r, ErrorResponse{Error: "verification_mismatch", Message: "Invalid OTP"})
}
