package otp

import "errors"

var (
	// ErrInvalidInput is the parent of all input rejections; no state is touched.
	ErrInvalidInput = errors.New("otp: invalid input")
	// ErrInvalidPhone is returned by Request for an empty phone number.
	ErrInvalidPhone = wrapInput("phone number is required")
	// ErrInvalidCode is returned by Verify when the entered code is not exactly 6 digits.
	ErrInvalidCode = wrapInput("code must be 6 digits")

	// ErrBusy is returned when a request or verification is already outstanding.
	ErrBusy = errors.New("otp: operation already in progress")
	// ErrAlreadyVerified is returned by Request once the session is verified.
	ErrAlreadyVerified = errors.New("otp: phone number already verified")
	// ErrSessionReset is returned when the session was reset while the call was suspended; the result is discarded.
	ErrSessionReset = errors.New("otp: session was reset")
	// ErrDispatch matches every *DispatchError.
	ErrDispatch = errors.New("otp: dispatch failed")
)

type inputError struct{ msg string }

func wrapInput(msg string) error { return &inputError{msg: msg} }

func (e *inputError) Error() string { return "otp: " + e.msg }

func (e *inputError) Unwrap() error { return ErrInvalidInput }

// DispatchError reports that the messaging collaborator did not accept the code.
type DispatchError struct {
	Err error
}

func (e *DispatchError) Error() string {
	return "otp: dispatch failed: " + e.Err.Error()
}

func (e *DispatchError) Unwrap() []error {
	return []error{ErrDispatch, e.Err}
}
