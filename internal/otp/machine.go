package otp

import (
	"github.com/felixgeelhaar/statekit"
)

// Status is the externally visible state of a session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPending   Status = "pending"
	StatusVerifying Status = "verifying"
	StatusVerified  Status = "verified"
	StatusFailed    Status = "failed"
)

// Machine events.
const (
	eventRequest        = "REQUEST"
	eventDispatchFailed = "DISPATCH_FAILED"
	eventVerify         = "VERIFY"
	eventAbort          = "ABORT"
	eventMatch          = "MATCH"
	eventMismatch       = "MISMATCH"
	eventRetry          = "RETRY"
	eventReset          = "RESET"
)

type machineContext struct{}

// newMachine builds and starts the session state machine. Failed is transient: the service
// sends RETRY right after MISMATCH so the user can re-enter the code.
func newMachine() (*statekit.Interpreter[machineContext], error) {
	machine, err := statekit.NewMachine[machineContext]("otp-session").
		WithInitial("idle").
		State("idle").
		On(eventRequest).Target("pending").Done().
		State("pending").
		On(eventRequest).Target("pending").
		On(eventDispatchFailed).Target("idle").
		On(eventVerify).Target("verifying").
		On(eventReset).Target("idle").Done().
		State("verifying").
		On(eventMatch).Target("verified").
		On(eventMismatch).Target("failed").
		On(eventAbort).Target("pending").
		On(eventReset).Target("idle").Done().
		State("verified").
		On(eventReset).Target("idle").Done().
		State("failed").
		On(eventRetry).Target("pending").
		On(eventRequest).Target("pending").
		On(eventReset).Target("idle").Done().
		Build()
	if err != nil {
		return nil, err
	}
	interp := statekit.NewInterpreter(machine)
	interp.Start()
	return interp, nil
}
