package telemetry

import (
	"context"
	"time"
)

// Event types emitted by the intake flow.
const (
	EventOTPRequested     = "otp_requested"
	EventOTPVerified      = "otp_verified"
	EventOTPVerifyFailed  = "otp_verify_failed"
	EventOTPReset         = "otp_reset"
	EventBookingSubmitted = "booking_submitted"
	EventGRPCRequest      = "grpc_request"
)

// Event is a single best-effort telemetry record. Attributes never carry codes.
type Event struct {
	Type       string            `json:"eventType"`
	FormID     string            `json:"formId,omitempty"`
	Source     string            `json:"source,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// EventEmitter emits telemetry events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
