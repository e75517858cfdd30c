package engine

import (
	"context"
	"strings"

	"booking-intake/backend/internal/booking/domain"
)

// Input is what a submission policy is evaluated against.
type Input struct {
	FormID      string
	CurrentStep int
	TotalSteps  int
	OTPStatus   string
	Fields      domain.Fields
}

// Decision is the policy outcome.
type Decision struct {
	Allowed bool
	Reasons []string
}

// Evaluator decides whether a booking may be submitted.
type Evaluator interface {
	EvaluateSubmission(ctx context.Context, in Input) (Decision, error)
}

// DeniedError is returned by Gate when the policy denies.
type DeniedError struct {
	Reasons []string
}

func (e *DeniedError) Error() string {
	if len(e.Reasons) == 0 {
		return "policy: submission denied"
	}
	return "policy: submission denied: " + strings.Join(e.Reasons, "; ")
}
