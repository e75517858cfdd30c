// Package domain holds the booking form field surface consumed by the wizard and the submission path.
package domain

import (
	"strings"
	"time"
)

// FieldKey names one form field. Values match the JSON keys used by the front end.
type FieldKey string

const (
	FieldService FieldKey = "service"
	FieldDoctor  FieldKey = "doctor"
	FieldDate    FieldKey = "date"
	FieldTime    FieldKey = "time"
	FieldName    FieldKey = "name"
	FieldPhone   FieldKey = "phone"
	FieldEmail   FieldKey = "email"
	FieldProblem FieldKey = "problem"
)

// AllFieldKeys lists every field in display order. Used for full-schema validation at submit.
var AllFieldKeys = []FieldKey{
	FieldService, FieldDoctor, FieldDate, FieldTime,
	FieldName, FieldPhone, FieldEmail, FieldProblem,
}

// DateLayout is the wire format of the date field.
const DateLayout = "2006-01-02"

// Service is the consultation type.
type Service string

const (
	ServicePhysical  Service = "PHYSICAL CONSULTATION"
	ServiceOnline    Service = "ONLINE CONSULTATION"
	ServiceSecondary Service = "SECONDARY"
)

// Doctor is the requested practitioner.
type Doctor string

const (
	DoctorChakraborty Doctor = "Dr. Arijit Chakraborty"
	DoctorAny         Doctor = "ANY"
)

// Services lists the accepted service values in display order.
var Services = []Service{ServicePhysical, ServiceOnline, ServiceSecondary}

// Doctors lists the accepted doctor values in display order.
var Doctors = []Doctor{DoctorChakraborty, DoctorAny}

// TimeSlots are the bookable evening slots, 15 minutes apart.
var TimeSlots = []string{
	"5:00 pm", "5:15 pm", "5:30 pm", "5:45 pm",
	"6:00 pm", "6:15 pm", "6:30 pm", "6:45 pm",
	"7:00 pm", "7:15 pm", "7:30 pm", "7:45 pm",
}

// IsValidService reports whether s is one of Services.
func IsValidService(s string) bool {
	for _, v := range Services {
		if string(v) == s {
			return true
		}
	}
	return false
}

// IsValidDoctor reports whether d is one of Doctors.
func IsValidDoctor(d string) bool {
	for _, v := range Doctors {
		if string(v) == d {
			return true
		}
	}
	return false
}

// IsValidTimeSlot reports whether t is one of TimeSlots.
func IsValidTimeSlot(t string) bool {
	for _, v := range TimeSlots {
		if v == t {
			return true
		}
	}
	return false
}

// Fields holds the booking form values. Validation tags are interpreted by the form package.
type Fields struct {
	Service Service `json:"service" validate:"required,service"`
	Doctor  Doctor  `json:"doctor" validate:"required,doctor"`
	Date    string  `json:"date" validate:"required,datetime=2006-01-02,clinic_open"`
	Time    string  `json:"time" validate:"required,timeslot"`
	Name    string  `json:"name" validate:"required,max=200"`
	Phone   string  `json:"phone" validate:"required,e164"`
	Email   string  `json:"email" validate:"required,email"`
	Problem string  `json:"problem" validate:"omitempty,max=2000"`
}

// DefaultFields returns the values a freshly mounted form starts with.
func DefaultFields(now time.Time) Fields {
	return Fields{
		Service: ServicePhysical,
		Doctor:  DoctorChakraborty,
		Date:    now.Format(DateLayout),
		Time:    TimeSlots[0],
	}
}

// FieldsPatch is a partial update; nil members are left unchanged.
type FieldsPatch struct {
	Service *string `json:"service,omitempty"`
	Doctor  *string `json:"doctor,omitempty"`
	Date    *string `json:"date,omitempty"`
	Time    *string `json:"time,omitempty"`
	Name    *string `json:"name,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Email   *string `json:"email,omitempty"`
	Problem *string `json:"problem,omitempty"`
}

// Merge returns a copy of f with the non-nil members of p applied. Strings are trimmed.
func (f Fields) Merge(p FieldsPatch) Fields {
	out := f
	if p.Service != nil {
		out.Service = Service(strings.TrimSpace(*p.Service))
	}
	if p.Doctor != nil {
		out.Doctor = Doctor(strings.TrimSpace(*p.Doctor))
	}
	if p.Date != nil {
		out.Date = strings.TrimSpace(*p.Date)
	}
	if p.Time != nil {
		out.Time = strings.TrimSpace(*p.Time)
	}
	if p.Name != nil {
		out.Name = strings.TrimSpace(*p.Name)
	}
	if p.Phone != nil {
		out.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.Email != nil {
		out.Email = strings.TrimSpace(*p.Email)
	}
	if p.Problem != nil {
		out.Problem = strings.TrimSpace(*p.Problem)
	}
	return out
}

// FieldErrors maps a field to a user-facing message.
type FieldErrors map[FieldKey]string

// Empty reports whether there are no errors.
func (e FieldErrors) Empty() bool {
	return len(e) == 0
}
