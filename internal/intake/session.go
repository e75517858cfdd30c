// Package intake binds one field form, one wizard controller and one OTP session per mounted
// booking form and manages their lifetime.
package intake

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"booking-intake/backend/internal/booking/domain"
	"booking-intake/backend/internal/booking/form"
	"booking-intake/backend/internal/otp"
	"booking-intake/backend/internal/telemetry"
	"booking-intake/backend/internal/wizard"
)

var (
	// ErrNotFound is returned for unknown or swept form ids.
	ErrNotFound = errors.New("intake: form not found")
	// ErrPhoneLocked is returned when the phone number changes while a code is outstanding or verified.
	ErrPhoneLocked = errors.New("intake: phone number cannot change while a code is outstanding")
)

// View is the client-facing snapshot of a form session.
type View struct {
	FormID string             `json:"form_id"`
	Fields domain.Fields      `json:"fields"`
	Errors domain.FieldErrors `json:"errors"`
	Wizard wizard.State       `json:"wizard"`
	OTP    otp.Session        `json:"otp"`
}

// Session is one mounted booking form.
type Session struct {
	id        string
	form      *form.Form
	otp       *otp.Service
	wizard    *wizard.Controller
	now       func() time.Time
	createdAt time.Time
	events    telemetry.EventEmitter
	logger    *zap.Logger

	// fieldsMu orders phone changes against OTP requests.
	fieldsMu sync.Mutex

	seenMu   sync.Mutex
	lastSeen time.Time
}

// ID returns the form id.
func (s *Session) ID() string { return s.id }

func (s *Session) touch() {
	s.seenMu.Lock()
	s.lastSeen = s.now()
	s.seenMu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	return s.lastSeen
}

// ApplyFields merges patch into the form. A phone change is rejected unless the OTP session is idle.
func (s *Session) ApplyFields(patch domain.FieldsPatch) (domain.Fields, error) {
	s.touch()
	s.fieldsMu.Lock()
	defer s.fieldsMu.Unlock()
	if err := s.wizard.Busy(); err != nil {
		return s.form.Values(), err
	}
	if patch.Phone != nil && strings.TrimSpace(*patch.Phone) != s.form.Values().Phone && s.otp.Status() != otp.StatusIdle {
		return s.form.Values(), ErrPhoneLocked
	}
	return s.form.Apply(patch), nil
}

// RequestOTP sends a code to phone, or to the form's phone field when phone is empty.
// A differing phone is written to the form first, which requires an idle OTP session.
func (s *Session) RequestOTP(ctx context.Context, phone string) (bool, error) {
	s.touch()
	phone = strings.TrimSpace(phone)
	s.fieldsMu.Lock()
	current := s.form.Values().Phone
	if phone == "" {
		phone = current
	}
	if phone != current {
		if s.otp.Status() != otp.StatusIdle {
			s.fieldsMu.Unlock()
			return false, ErrPhoneLocked
		}
		s.form.Apply(domain.FieldsPatch{Phone: &phone})
	}
	s.fieldsMu.Unlock()
	return s.otp.Request(ctx, phone)
}

// VerifyOTP checks the entered code.
func (s *Session) VerifyOTP(ctx context.Context, code string) (bool, error) {
	s.touch()
	return s.otp.Verify(ctx, code)
}

// ResetOTP discards the OTP session so the phone can be edited again. It is refused while the
// booking is being submitted and after it was.
func (s *Session) ResetOTP(ctx context.Context) error {
	s.touch()
	if err := s.wizard.Busy(); err != nil {
		return err
	}
	s.otp.Reset(ctx)
	return nil
}

// Advance moves the wizard forward.
func (s *Session) Advance() (int, error) {
	s.touch()
	return s.wizard.Advance()
}

// Retreat moves the wizard back.
func (s *Session) Retreat() (int, error) {
	s.touch()
	return s.wizard.Retreat()
}

// Submit hands the booking off.
func (s *Session) Submit(ctx context.Context) (*domain.Booking, error) {
	s.touch()
	b, err := s.wizard.Submit(ctx)
	if err != nil {
		return nil, err
	}
	telemetry.EmitAsync(s.events, s.logger, &telemetry.Event{
		Type:   telemetry.EventBookingSubmitted,
		FormID: s.id,
		Source: "wizard",
		Attributes: map[string]string{
			"reference": b.Reference,
			"service":   string(b.Fields.Service),
			"doctor":    string(b.Fields.Doctor),
		},
		CreatedAt: b.CreatedAt,
	})
	return b, nil
}

// View returns the current snapshot.
func (s *Session) View() View {
	s.touch()
	return View{
		FormID: s.id,
		Fields: s.form.Values(),
		Errors: s.form.Errors(),
		Wizard: s.wizard.State(),
		OTP:    s.otp.Snapshot(),
	}
}
