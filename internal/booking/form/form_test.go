package form

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-intake/backend/internal/booking/domain"
)

var monday = time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC)

func testValidator() *Validator {
	cal := NewClinicCalendar(time.UTC, []time.Weekday{time.Sunday}, func() time.Time { return monday })
	return NewValidator(cal)
}

func validFields() domain.Fields {
	f := domain.DefaultFields(monday)
	f.Date = "2026-10-20"
	f.Name = "Asha Rao"
	f.Phone = "+919999999999"
	f.Email = "asha@example.com"
	return f
}

func TestValidate_AllValid(t *testing.T) {
	errs := testValidator().Validate(validFields(), domain.AllFieldKeys...)
	assert.True(t, errs.Empty(), "unexpected errors: %v", errs)
}

func TestValidate_OnlyRequestedKeys(t *testing.T) {
	f := validFields()
	f.Name = ""
	f.Email = "not-an-email"

	errs := testValidator().Validate(f, domain.FieldService, domain.FieldDoctor)
	assert.True(t, errs.Empty())

	errs = testValidator().Validate(f, domain.FieldName, domain.FieldEmail)
	assert.Equal(t, "Name is required", errs[domain.FieldName])
	assert.Equal(t, "Invalid email address", errs[domain.FieldEmail])
}

func TestValidate_NoKeys(t *testing.T) {
	errs := testValidator().Validate(domain.Fields{})
	assert.True(t, errs.Empty())
}

func TestValidate_Enums(t *testing.T) {
	f := validFields()
	f.Service = "DENTAL"
	f.Doctor = "Dr. Nobody"
	f.Time = "9:00 am"
	errs := testValidator().Validate(f, domain.FieldService, domain.FieldDoctor, domain.FieldTime)
	assert.Len(t, errs, 3)
	assert.Contains(t, errs, domain.FieldService)
	assert.Contains(t, errs, domain.FieldDoctor)
	assert.Contains(t, errs, domain.FieldTime)
}

func TestValidate_Dates(t *testing.T) {
	tests := []struct {
		name string
		date string
		ok   bool
	}{
		{"today", "2026-10-19", true},
		{"tomorrow", "2026-10-20", true},
		{"saturday open", "2026-10-24", true},
		{"yesterday", "2026-10-18", false},
		{"sunday closed", "2026-10-25", false},
		{"republic day", "2027-01-26", false},
		{"gandhi jayanti", "2027-10-02", false},
		{"malformed", "20/10/2026", false},
		{"empty", "", false},
	}
	v := testValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFields()
			f.Date = tt.date
			errs := v.Validate(f, domain.FieldDate)
			assert.Equal(t, tt.ok, errs.Empty(), "errs = %v", errs)
		})
	}
}

func TestValidate_Phone(t *testing.T) {
	v := testValidator()
	f := validFields()
	f.Phone = "9999999999"
	assert.Equal(t, "Invalid phone number", v.Validate(f, domain.FieldPhone)[domain.FieldPhone])
	f.Phone = ""
	assert.Equal(t, "Phone number is required", v.Validate(f, domain.FieldPhone)[domain.FieldPhone])
}

func TestValidate_ProblemOptional(t *testing.T) {
	f := validFields()
	f.Problem = ""
	assert.True(t, testValidator().Validate(f, domain.FieldProblem).Empty())
}

func TestForm_TriggerReplacesErrorsForKeys(t *testing.T) {
	f := New(testValidator(), domain.Fields{})
	ok := f.Trigger(domain.FieldService, domain.FieldDoctor)
	require.False(t, ok)
	assert.Len(t, f.Errors(), 2)

	f.Apply(domain.FieldsPatch{Service: strPtr(string(domain.ServiceOnline))})
	assert.NotContains(t, f.Errors(), domain.FieldService)
	assert.Contains(t, f.Errors(), domain.FieldDoctor)

	f.Apply(domain.FieldsPatch{Doctor: strPtr(string(domain.DoctorAny))})
	require.True(t, f.Trigger(domain.FieldService, domain.FieldDoctor))
	assert.Empty(t, f.Errors())
}

func TestForm_ApplyTrims(t *testing.T) {
	f := New(testValidator(), domain.DefaultFields(monday))
	got := f.Apply(domain.FieldsPatch{Name: strPtr("  Asha  "), Phone: strPtr(" +919999999999 ")})
	assert.Equal(t, "Asha", got.Name)
	assert.Equal(t, "+919999999999", f.Values().Phone)
	assert.Equal(t, domain.ServicePhysical, got.Service)
}

func TestParseWeekdays(t *testing.T) {
	got := ParseWeekdays("Sunday, saturday,nope")
	assert.Equal(t, []time.Weekday{time.Sunday, time.Saturday}, got)
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Fields: domain.FieldErrors{domain.FieldTime: "x", domain.FieldDate: "y"}}
	assert.Equal(t, "validation failed: date, time", err.Error())
	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Len(t, ve.Fields, 2)
}

func strPtr(s string) *string { return &s }
