// Package form implements the field-validation collaborator used by the wizard and the submit path.
package form

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"booking-intake/backend/internal/booking/domain"
)

// ValidationError is returned when one or more fields fail their constraints.
type ValidationError struct {
	Fields domain.FieldErrors
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return fmt.Sprintf("validation failed: %s", strings.Join(keys, ", "))
}

// AsValidationError unwraps err into a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// structFields maps field keys to Go struct field names for StructPartial.
var structFields = map[domain.FieldKey]string{
	domain.FieldService: "Service",
	domain.FieldDoctor:  "Doctor",
	domain.FieldDate:    "Date",
	domain.FieldTime:    "Time",
	domain.FieldName:    "Name",
	domain.FieldPhone:   "Phone",
	domain.FieldEmail:   "Email",
	domain.FieldProblem: "Problem",
}

var fieldKeys = func() map[string]domain.FieldKey {
	m := make(map[string]domain.FieldKey, len(structFields))
	for k, v := range structFields {
		m[v] = k
	}
	return m
}()

// Validator checks Fields against the booking schema.
type Validator struct {
	v   *validator.Validate
	cal *ClinicCalendar
}

// NewValidator returns a Validator using cal for date checks. cal must not be nil.
func NewValidator(cal *ClinicCalendar) *Validator {
	v := validator.New()
	_ = v.RegisterValidation("service", func(fl validator.FieldLevel) bool {
		return domain.IsValidService(fl.Field().String())
	})
	_ = v.RegisterValidation("doctor", func(fl validator.FieldLevel) bool {
		return domain.IsValidDoctor(fl.Field().String())
	})
	_ = v.RegisterValidation("timeslot", func(fl validator.FieldLevel) bool {
		return domain.IsValidTimeSlot(fl.Field().String())
	})
	_ = v.RegisterValidation("clinic_open", func(fl validator.FieldLevel) bool {
		return cal.IsOpen(fl.Field().String())
	})
	return &Validator{v: v, cal: cal}
}

// Validate checks only the given keys and returns their errors. Unknown keys are ignored.
// With no keys nothing is checked.
func (val *Validator) Validate(f domain.Fields, keys ...domain.FieldKey) domain.FieldErrors {
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if n, ok := structFields[k]; ok {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return domain.FieldErrors{}
	}
	out := domain.FieldErrors{}
	err := val.v.StructPartial(f, names...)
	if err == nil {
		return out
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		for _, k := range keys {
			out[k] = "Invalid value"
		}
		return out
	}
	for _, fe := range verrs {
		key, ok := fieldKeys[fe.StructField()]
		if !ok {
			continue
		}
		if _, seen := out[key]; seen {
			continue
		}
		out[key] = message(key, fe.Tag())
	}
	return out
}

func message(key domain.FieldKey, tag string) string {
	switch tag {
	case "required":
		switch key {
		case domain.FieldName:
			return "Name is required"
		case domain.FieldPhone:
			return "Phone number is required"
		case domain.FieldEmail:
			return "Email is required"
		}
		return fmt.Sprintf("%s is required", label(key))
	case "email":
		return "Invalid email address"
	case "e164":
		return "Invalid phone number"
	case "datetime":
		return "Invalid date"
	case "clinic_open":
		return "The clinic is closed on the selected date"
	case "timeslot":
		return "Select one of the available time slots"
	case "service":
		return "Select a service"
	case "doctor":
		return "Select a doctor"
	case "max":
		return fmt.Sprintf("%s is too long", label(key))
	}
	return fmt.Sprintf("Invalid %s", key)
}

func label(key domain.FieldKey) string {
	s := string(key)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
