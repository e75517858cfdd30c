package otp

import (
	"context"
	"time"
)

// Store is the session-scoped key-value capability holding the live code and its expiry.
// Get reports ok=false for a missing or expired key.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Dispatcher delivers a code to a phone. A nil error means the provider accepted the message.
type Dispatcher interface {
	SendOTP(ctx context.Context, phone, code string, validFor time.Duration) error
}

// Recorder receives metric observations. Results are short labels such as "sent" or "mismatch".
type Recorder interface {
	OTPRequested(result string)
	OTPVerified(result string)
	ObserveDispatch(provider string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) OTPRequested(string)                    {}
func (nopRecorder) OTPVerified(string)                     {}
func (nopRecorder) ObserveDispatch(string, time.Duration) {}
