// Package otp implements phone ownership proof with single-use, time-boxed codes.
//
// A Service owns exactly one session. Mutations are serialized by a mutex; the two
// suspending calls (dispatch and the verify check) run without the lock and apply their
// result only if the session identity captured at launch is still current.
package otp

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/statekit"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"booking-intake/backend/internal/telemetry"
)

const (
	// DefaultExpiryMinutes is the validity window when Options.ExpiryMinutes is zero.
	DefaultExpiryMinutes = 5
	// DefaultVerifyDelay is the latency of the verification check.
	DefaultVerifyDelay = time.Second

	codeKeySuffix   = "formOTP"
	expiryKeySuffix = "otpExpiry"

	// storeGrace keeps persisted keys a little past the window so expiry is decided by the stored timestamp.
	storeGrace = time.Minute
)

// Options configures a Service. Zero values select the defaults.
type Options struct {
	// Scope namespaces the persisted keys; one scope per form session.
	Scope         string
	ExpiryMinutes int
	// VerifyDelay is how long Verify suspends before resolving. Negative means no delay.
	VerifyDelay time.Duration
	// Provider labels dispatch metrics.
	Provider string
	Now      func() time.Time
	Recorder Recorder
	Events   telemetry.EventEmitter
}

// Session is a read-only snapshot. The code itself is never exposed.
type Session struct {
	ID         string    `json:"id,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Status     Status    `json:"status"`
	Sent       bool      `json:"sent"`
	Requesting bool      `json:"requesting"`
	IssuedAt   time.Time `json:"issued_at,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	VerifiedAt time.Time `json:"verified_at,omitempty"`
	Attempts   int       `json:"attempts"`
}

// Service is the OTP verification service for one form session.
type Service struct {
	store      Store
	dispatcher Dispatcher
	opts       Options
	window     time.Duration
	logger     *zap.Logger

	mu          sync.Mutex
	machine     *statekit.Interpreter[machineContext]
	id          string
	phone       string
	enteredCode string
	sent        bool
	requesting  bool
	issuedAt    time.Time
	expiresAt   time.Time
	verifiedAt  time.Time
	attempts    int
}

// NewService returns an idle Service. store and dispatcher are required.
func NewService(store Store, dispatcher Dispatcher, opts Options, logger *zap.Logger) (*Service, error) {
	if store == nil || dispatcher == nil {
		return nil, errors.New("otp: store and dispatcher are required")
	}
	if opts.ExpiryMinutes < 0 {
		return nil, errors.New("otp: expiry minutes must be positive")
	}
	if opts.ExpiryMinutes == 0 {
		opts.ExpiryMinutes = DefaultExpiryMinutes
	}
	if opts.VerifyDelay == 0 {
		opts.VerifyDelay = DefaultVerifyDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m, err := newMachine()
	if err != nil {
		return nil, err
	}
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		opts:       opts,
		window:     time.Duration(opts.ExpiryMinutes) * time.Minute,
		logger:     logger,
		machine:    m,
	}, nil
}

// Window returns the validity window of a code.
func (s *Service) Window() time.Duration { return s.window }

func (s *Service) codeKey() string   { return s.opts.Scope + ":" + codeKeySuffix }
func (s *Service) expiryKey() string { return s.opts.Scope + ":" + expiryKeySuffix }

// status must be called with mu held.
func (s *Service) status() Status {
	return Status(s.machine.State().Value)
}

func (s *Service) send(event statekit.EventType) {
	s.machine.Send(statekit.Event{Type: event})
}

// Request generates a fresh code for phone and dispatches it. The previous code, if any, is
// invalidated before dispatch. It returns (true, nil) once the provider accepted the message;
// on rejection the session is back to idle and a *DispatchError is returned.
func (s *Service) Request(ctx context.Context, phone string) (bool, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return false, ErrInvalidPhone
	}

	s.mu.Lock()
	if s.requesting || s.status() == StatusVerifying {
		s.mu.Unlock()
		return false, ErrBusy
	}
	if s.status() == StatusVerified {
		s.mu.Unlock()
		return false, ErrAlreadyVerified
	}
	code, err := GenerateCode()
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	if err := s.store.Delete(ctx, s.codeKey(), s.expiryKey()); err != nil {
		s.mu.Unlock()
		return false, err
	}
	tag := uuid.NewString()
	s.id = tag
	s.phone = phone
	s.enteredCode = ""
	s.sent = false
	s.requesting = true
	s.send(eventRequest)
	issuedAt := s.opts.Now()
	s.mu.Unlock()

	start := time.Now()
	dispatchErr := s.dispatcher.SendOTP(ctx, phone, code, s.window)
	s.opts.Recorder.ObserveDispatch(s.opts.Provider, time.Since(start))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != tag {
		s.opts.Recorder.OTPRequested("discarded")
		return false, ErrSessionReset
	}
	s.requesting = false
	if dispatchErr != nil {
		s.send(eventDispatchFailed)
		s.id = ""
		s.phone = ""
		s.opts.Recorder.OTPRequested("dispatch_failed")
		s.logger.Warn("otp dispatch failed", zap.String("scope", s.opts.Scope), zap.Error(dispatchErr))
		return false, &DispatchError{Err: dispatchErr}
	}

	expiresAt := issuedAt.Add(s.window)
	if err := s.persist(ctx, code, expiresAt); err != nil {
		s.send(eventDispatchFailed)
		s.id = ""
		s.phone = ""
		s.opts.Recorder.OTPRequested("store_failed")
		return false, err
	}
	s.sent = true
	s.issuedAt = issuedAt
	s.expiresAt = expiresAt
	s.attempts = 0
	s.opts.Recorder.OTPRequested("sent")
	s.emit(telemetry.EventOTPRequested, map[string]string{"expires_at": expiresAt.UTC().Format(time.RFC3339)})
	return true, nil
}

func (s *Service) persist(ctx context.Context, code string, expiresAt time.Time) error {
	ttl := s.window + storeGrace
	if err := s.store.Set(ctx, s.codeKey(), code, ttl); err != nil {
		return err
	}
	if err := s.store.Set(ctx, s.expiryKey(), strconv.FormatInt(expiresAt.UnixMilli(), 10), ttl); err != nil {
		_ = s.store.Delete(ctx, s.codeKey())
		return err
	}
	return nil
}

// Verify checks entered against the live code after the configured delay.
// A wrong or expired code returns (false, nil) and leaves the session pending so the user can retry.
// With no outstanding code it returns (false, nil) without a state change.
func (s *Service) Verify(ctx context.Context, entered string) (bool, error) {
	entered = strings.TrimSpace(entered)
	if !wellFormed(entered) {
		return false, ErrInvalidCode
	}

	s.mu.Lock()
	switch st := s.status(); {
	case st == StatusVerifying:
		s.mu.Unlock()
		return false, ErrBusy
	case st == StatusIdle || st == StatusVerified:
		s.mu.Unlock()
		s.opts.Recorder.OTPVerified("no_session")
		return false, nil
	case s.requesting || !s.sent:
		s.mu.Unlock()
		return false, ErrBusy
	}
	tag := s.id
	s.enteredCode = entered
	s.send(eventVerify)
	s.mu.Unlock()

	if err := s.wait(ctx); err != nil {
		s.mu.Lock()
		if s.id == tag && s.status() == StatusVerifying {
			s.send(eventAbort)
		}
		s.mu.Unlock()
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != tag {
		s.opts.Recorder.OTPVerified("discarded")
		return false, ErrSessionReset
	}
	ok, err := s.check(ctx, entered)
	if err != nil {
		s.send(eventAbort)
		return false, err
	}
	if !ok {
		s.attempts++
		s.send(eventMismatch)
		s.send(eventRetry)
		s.opts.Recorder.OTPVerified("mismatch")
		s.emit(telemetry.EventOTPVerifyFailed, map[string]string{"attempts": strconv.Itoa(s.attempts)})
		return false, nil
	}
	if err := s.store.Delete(ctx, s.codeKey(), s.expiryKey()); err != nil {
		s.send(eventAbort)
		return false, err
	}
	s.attempts++
	s.enteredCode = ""
	s.verifiedAt = s.opts.Now()
	s.send(eventMatch)
	s.opts.Recorder.OTPVerified("verified")
	s.emit(telemetry.EventOTPVerified, map[string]string{"attempts": strconv.Itoa(s.attempts)})
	return true, nil
}

func (s *Service) wait(ctx context.Context) error {
	if s.opts.VerifyDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.opts.VerifyDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// check compares against the persisted pair. A missing key is a mismatch.
func (s *Service) check(ctx context.Context, entered string) (bool, error) {
	code, ok, err := s.store.Get(ctx, s.codeKey())
	if err != nil || !ok {
		return false, err
	}
	raw, ok, err := s.store.Get(ctx, s.expiryKey())
	if err != nil || !ok {
		return false, err
	}
	expMs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, nil
	}
	match := codesEqual(entered, code)
	return match && s.opts.Now().UnixMilli() < expMs, nil
}

// Reset discards the session and returns to idle. It is idempotent; in-flight calls from
// the discarded session resolve with ErrSessionReset.
func (s *Service) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasActive := s.status() != StatusIdle || s.id != ""
	if s.status() != StatusIdle {
		s.send(eventReset)
	}
	s.id = ""
	s.phone = ""
	s.enteredCode = ""
	s.sent = false
	s.requesting = false
	s.issuedAt = time.Time{}
	s.expiresAt = time.Time{}
	s.verifiedAt = time.Time{}
	s.attempts = 0
	if err := s.store.Delete(ctx, s.codeKey(), s.expiryKey()); err != nil {
		s.logger.Warn("otp reset: delete persisted code", zap.String("scope", s.opts.Scope), zap.Error(err))
	}
	if wasActive {
		s.emit(telemetry.EventOTPReset, nil)
	}
}

// Snapshot returns the current session state.
func (s *Service) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Session{
		ID:         s.id,
		Phone:      s.phone,
		Status:     s.status(),
		Sent:       s.sent,
		Requesting: s.requesting,
		IssuedAt:   s.issuedAt,
		ExpiresAt:  s.expiresAt,
		VerifiedAt: s.verifiedAt,
		Attempts:   s.attempts,
	}
}

// Status returns the current status.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status()
}

// VerifiedPhone returns the proven phone number, or "" unless the session is verified.
func (s *Service) VerifiedPhone() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status() != StatusVerified {
		return ""
	}
	return s.phone
}

// emit must be called with mu held.
func (s *Service) emit(eventType string, attrs map[string]string) {
	if s.opts.Events == nil {
		return
	}
	telemetry.EmitAsync(s.opts.Events, s.logger, &telemetry.Event{
		Type:       eventType,
		FormID:     s.opts.Scope,
		Source:     "otp",
		Attributes: attrs,
		CreatedAt:  s.opts.Now().UTC(),
	})
}
