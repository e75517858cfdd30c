// Package wizard implements the step-gated controller that drives a booking form from the
// first step to submission.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"booking-intake/backend/internal/booking/domain"
	"booking-intake/backend/internal/booking/form"
	"booking-intake/backend/internal/otp"
)

var (
	// ErrNotReady is returned by Submit when a precondition does not hold. No state changes.
	ErrNotReady = errors.New("wizard: not ready to submit")
	// ErrFinalized is returned by every action after a successful submission.
	ErrFinalized = errors.New("wizard: form already submitted")
	// ErrSubmitInProgress is returned while the create-booking call is outstanding.
	ErrSubmitInProgress = errors.New("wizard: submission in progress")
	// ErrCreateFailed wraps a create-booking failure; Submit may be retried.
	ErrCreateFailed = errors.New("wizard: create booking failed")

	errNotFinalStep  = errors.New("not on the final step")
	errNotVerified   = errors.New("phone number is not verified")
	errPhoneMismatch = errors.New("verified phone number does not match the phone field")
)

// SubmitState is the terminal sub-state of the wizard.
type SubmitState string

const (
	SubmitNone       SubmitState = ""
	SubmitSubmitting SubmitState = "submitting"
	SubmitSubmitted  SubmitState = "submitted"
	SubmitFailed     SubmitState = "submit_failed"
)

// DefaultSteps is the three-step booking layout.
func DefaultSteps() []domain.Step {
	return []domain.Step{
		{ID: 1, Name: "Branch Details", Required: []domain.FieldKey{domain.FieldService, domain.FieldDoctor}},
		{ID: 2, Name: "Admin Details", Required: []domain.FieldKey{domain.FieldDate, domain.FieldTime}},
		{ID: 3, Name: "Account Setup", Required: []domain.FieldKey{}},
	}
}

// Fields is the validation collaborator. *form.Form satisfies it.
type Fields interface {
	Trigger(keys ...domain.FieldKey) bool
	Errors() domain.FieldErrors
	Values() domain.Fields
}

// Verification is the read-only view of the OTP session. *otp.Service satisfies it.
type Verification interface {
	Status() otp.Status
	VerifiedPhone() string
	Snapshot() otp.Session
}

// Creator is the create-booking collaborator.
type Creator interface {
	Create(ctx context.Context, b domain.Booking) error
}

// SubmissionInput is what a Policy sees.
type SubmissionInput struct {
	FormID      string
	CurrentStep int
	TotalSteps  int
	OTPStatus   otp.Status
	Fields      domain.Fields
}

// Policy may deny a submission that passed the built-in gate. A non-nil error denies.
type Policy func(ctx context.Context, in SubmissionInput) error

// Recorder receives metric observations.
type Recorder interface {
	WizardAction(action, result string)
	Submission(result string)
}

type nopRecorder struct{}

func (nopRecorder) WizardAction(string, string) {}
func (nopRecorder) Submission(string)           {}

// Options configures a Controller.
type Options struct {
	FormID   string
	Steps    []domain.Step
	Policy   Policy
	Recorder Recorder
	Now      func() time.Time
	Logger   *zap.Logger
}

// State is a snapshot of the controller.
type State struct {
	Current   int           `json:"current"`
	Total     int           `json:"total"`
	Steps     []domain.Step `json:"steps"`
	Submit    SubmitState   `json:"submit"`
	CanSubmit bool          `json:"can_submit"`
	Reference string        `json:"reference,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// Controller owns the current step and the submit sub-state of one form.
type Controller struct {
	fields   Fields
	verifier Verification
	creator  Creator
	opts     Options

	mu        sync.Mutex
	current   int
	submit    SubmitState
	reference string
	lastErr   string
}

// New returns a Controller on step 1.
func New(fields Fields, verifier Verification, creator Creator, opts Options) (*Controller, error) {
	if fields == nil || verifier == nil || creator == nil {
		return nil, errors.New("wizard: fields, verifier and creator are required")
	}
	if len(opts.Steps) == 0 {
		opts.Steps = DefaultSteps()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Controller{fields: fields, verifier: verifier, creator: creator, opts: opts, current: 1}, nil
}

func (c *Controller) total() int { return len(c.opts.Steps) }

// busy must be called with mu held.
func (c *Controller) busy() error {
	switch c.submit {
	case SubmitSubmitted:
		return ErrFinalized
	case SubmitSubmitting:
		return ErrSubmitInProgress
	}
	return nil
}

// Advance validates the required fields of the current step and moves forward, clamped at the
// last step. On validation failure the step is unchanged and a *form.ValidationError is returned.
func (c *Controller) Advance() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.busy(); err != nil {
		return c.current, err
	}
	keys := c.opts.Steps[c.current-1].Required
	if !c.fields.Trigger(keys...) {
		c.opts.Recorder.WizardAction("advance", "invalid")
		return c.current, &form.ValidationError{Fields: pick(c.fields.Errors(), keys)}
	}
	if c.current < c.total() {
		c.current++
	}
	c.opts.Recorder.WizardAction("advance", "ok")
	return c.current, nil
}

// Retreat moves back one step, clamped at 1. Nothing is validated.
func (c *Controller) Retreat() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.busy(); err != nil {
		return c.current, err
	}
	if c.current > 1 {
		c.current--
	}
	c.opts.Recorder.WizardAction("retreat", "ok")
	return c.current, nil
}

// Submit hands the validated booking to the creator. Preconditions, in order: not already
// submitting or submitted; on the last step; OTP verified for the phone in the form; every
// field valid; the policy allows. A failed precondition returns an error wrapping ErrNotReady.
// A creator failure leaves the wizard in SubmitFailed, from which Submit may be retried.
func (c *Controller) Submit(ctx context.Context) (*domain.Booking, error) {
	c.mu.Lock()
	if err := c.busy(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if err := c.ready(ctx); err != nil {
		c.mu.Unlock()
		c.opts.Recorder.Submission("not_ready")
		return nil, err
	}
	session := c.verifier.Snapshot()
	now := c.opts.Now()
	b := domain.Booking{
		Reference:       domain.NewReference(now),
		FormID:          c.opts.FormID,
		Fields:          c.fields.Values(),
		PhoneVerifiedAt: session.VerifiedAt,
		CreatedAt:       now.UTC(),
	}
	c.submit = SubmitSubmitting
	c.lastErr = ""
	c.mu.Unlock()

	err := c.creator.Create(ctx, b)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.submit = SubmitFailed
		c.lastErr = err.Error()
		c.opts.Recorder.Submission("failed")
		c.opts.Logger.Warn("create booking failed", zap.String("form_id", c.opts.FormID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}
	c.submit = SubmitSubmitted
	c.reference = b.Reference
	c.opts.Recorder.Submission("submitted")
	c.opts.Logger.Info("booking submitted", zap.String("form_id", c.opts.FormID), zap.String("reference", b.Reference))
	return &b, nil
}

// ready must be called with mu held.
func (c *Controller) ready(ctx context.Context) error {
	if c.current != c.total() {
		return fmt.Errorf("%w: %w", ErrNotReady, errNotFinalStep)
	}
	if c.verifier.Status() != otp.StatusVerified {
		return fmt.Errorf("%w: %w", ErrNotReady, errNotVerified)
	}
	values := c.fields.Values()
	if c.verifier.VerifiedPhone() != values.Phone {
		return fmt.Errorf("%w: %w", ErrNotReady, errPhoneMismatch)
	}
	if !c.fields.Trigger(domain.AllFieldKeys...) {
		return fmt.Errorf("%w: %w", ErrNotReady, &form.ValidationError{Fields: c.fields.Errors()})
	}
	if c.opts.Policy != nil {
		in := SubmissionInput{
			FormID:      c.opts.FormID,
			CurrentStep: c.current,
			TotalSteps:  c.total(),
			OTPStatus:   c.verifier.Status(),
			Fields:      values,
		}
		if err := c.opts.Policy(ctx, in); err != nil {
			return fmt.Errorf("%w: %w", ErrNotReady, err)
		}
	}
	return nil
}

// State returns a snapshot. CanSubmit reflects the cheap gates only; field validity is
// checked when Submit runs.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	steps := make([]domain.Step, len(c.opts.Steps))
	copy(steps, c.opts.Steps)
	canSubmit := c.current == c.total() && c.busy() == nil && c.verifier.Status() == otp.StatusVerified
	return State{
		Current:   c.current,
		Total:     c.total(),
		Steps:     steps,
		Submit:    c.submit,
		CanSubmit: canSubmit,
		Reference: c.reference,
		LastError: c.lastErr,
	}
}

// Busy returns ErrSubmitInProgress while the booking is being handed off and ErrFinalized
// once it was. Otherwise it returns nil.
func (c *Controller) Busy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy()
}

// Submitted reports whether the booking was handed off.
func (c *Controller) Submitted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submit == SubmitSubmitted
}

func pick(all domain.FieldErrors, keys []domain.FieldKey) domain.FieldErrors {
	out := domain.FieldErrors{}
	for _, k := range keys {
		if msg, ok := all[k]; ok {
			out[k] = msg
		}
	}
	return out
}
