package form

import (
	"sync"

	"booking-intake/backend/internal/booking/domain"
)

// Form holds the current field values and the latest per-field error state.
type Form struct {
	mu        sync.RWMutex
	values    domain.Fields
	errors    domain.FieldErrors
	validator *Validator
}

// New returns a Form with the given initial values.
func New(v *Validator, initial domain.Fields) *Form {
	return &Form{values: initial, errors: domain.FieldErrors{}, validator: v}
}

// Trigger validates only keys, replacing their error entries, and reports whether all of them passed.
func (f *Form) Trigger(keys ...domain.FieldKey) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	errs := f.validator.Validate(f.values, keys...)
	for _, k := range keys {
		delete(f.errors, k)
	}
	for k, msg := range errs {
		f.errors[k] = msg
	}
	return errs.Empty()
}

// Values returns a copy of the current values.
func (f *Form) Values() domain.Fields {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values
}

// Errors returns a copy of the current error state.
func (f *Form) Errors() domain.FieldErrors {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(domain.FieldErrors, len(f.errors))
	for k, v := range f.errors {
		out[k] = v
	}
	return out
}

// Apply merges the patch into the values. Errors for touched fields are cleared.
func (f *Form) Apply(p domain.FieldsPatch) domain.Fields {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = f.values.Merge(p)
	for _, k := range touched(p) {
		delete(f.errors, k)
	}
	return f.values
}

func touched(p domain.FieldsPatch) []domain.FieldKey {
	var out []domain.FieldKey
	add := func(set bool, k domain.FieldKey) {
		if set {
			out = append(out, k)
		}
	}
	add(p.Service != nil, domain.FieldService)
	add(p.Doctor != nil, domain.FieldDoctor)
	add(p.Date != nil, domain.FieldDate)
	add(p.Time != nil, domain.FieldTime)
	add(p.Name != nil, domain.FieldName)
	add(p.Phone != nil, domain.FieldPhone)
	add(p.Email != nil, domain.FieldEmail)
	add(p.Problem != nil, domain.FieldProblem)
	return out
}
