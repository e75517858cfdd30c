package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"
)

const (
	policyQuery      = "data.booking.intake"
	defaultModuleKey = "booking_intake_default.rego"
)

// defaultRegoPolicy mirrors the hard gate in the wizard. Operator modules in the same package
// can only add deny reasons, so they can never open a path the wizard keeps closed.
const defaultRegoPolicy = `package booking.intake

default allow := false

deny contains "not on the final step" if {
	input.step.current != input.step.total
}

deny contains "phone number is not verified" if {
	input.otp.status != "verified"
}

allow if {
	count(deny) == 0
}
`

// OPAEvaluator evaluates the submission policy with an embedded OPA engine.
type OPAEvaluator struct {
	query  rego.PreparedEvalQuery
	logger *zap.Logger
}

// NewOPAEvaluator compiles the default policy together with extra modules (file name to source).
func NewOPAEvaluator(ctx context.Context, extra map[string]string, logger *zap.Logger) (*OPAEvaluator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	q, err := prepare(ctx, extra)
	if err != nil {
		return nil, err
	}
	return &OPAEvaluator{query: q, logger: logger}, nil
}

func prepare(ctx context.Context, extra map[string]string) (rego.PreparedEvalQuery, error) {
	opts := []func(*rego.Rego){
		rego.Query(policyQuery),
		rego.Module(defaultModuleKey, defaultRegoPolicy),
	}
	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, rego.Module(name, extra[name]))
	}
	q, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("compile policies: %w", err)
	}
	return q, nil
}

// LoadModules reads a .rego file, or every .rego file in a directory. An empty path yields no modules.
func LoadModules(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	files := []string{path}
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.rego"))
		if err != nil {
			return nil, err
		}
	}
	out := make(map[string]string, len(files))
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		out[filepath.Base(f)] = string(b)
	}
	return out, nil
}

func buildInput(in Input) map[string]interface{} {
	return map[string]interface{}{
		"form_id": in.FormID,
		"step": map[string]interface{}{
			"current": in.CurrentStep,
			"total":   in.TotalSteps,
		},
		"otp": map[string]interface{}{
			"status": in.OTPStatus,
		},
		"fields": map[string]interface{}{
			"service": string(in.Fields.Service),
			"doctor":  string(in.Fields.Doctor),
			"date":    in.Fields.Date,
			"time":    in.Fields.Time,
		},
	}
}

// EvaluateSubmission runs the policy for in.
func (e *OPAEvaluator) EvaluateSubmission(ctx context.Context, in Input) (Decision, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(in)))
	if err != nil {
		return Decision{}, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{}, errors.New("policy query returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("policy result has type %T", rs[0].Expressions[0].Value)
	}
	var d Decision
	d.Allowed, _ = doc["allow"].(bool)
	if reasons, ok := doc["deny"].([]interface{}); ok {
		for _, r := range reasons {
			if s, ok := r.(string); ok {
				d.Reasons = append(d.Reasons, s)
			}
		}
	}
	sort.Strings(d.Reasons)
	return d, nil
}

// Gate returns nil when the submission is allowed and a *DeniedError otherwise. Evaluation
// failures are logged and allow, since the wizard has already enforced its own gate.
func (e *OPAEvaluator) Gate(ctx context.Context, in Input) error {
	d, err := e.EvaluateSubmission(ctx, in)
	if err != nil {
		e.logger.Warn("policy: evaluation failed, using built-in gate", zap.String("form_id", in.FormID), zap.Error(err))
		return nil
	}
	if !d.Allowed {
		e.logger.Info("policy: submission denied", zap.String("form_id", in.FormID), zap.String("reasons", strings.Join(d.Reasons, "; ")))
		return &DeniedError{Reasons: d.Reasons}
	}
	return nil
}

// HealthCheck verifies that the default policy compiles and evaluates.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	q, err := prepare(ctx, nil)
	if err != nil {
		return err
	}
	rs, err := q.Eval(ctx, rego.EvalInput(buildInput(Input{CurrentStep: 1, TotalSteps: 3, OTPStatus: "idle"})))
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return errors.New("policy query returned no result")
	}
	return nil
}
