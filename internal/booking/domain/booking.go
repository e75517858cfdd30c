package domain

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Booking is the validated request handed to the create-booking collaborator.
type Booking struct {
	Reference       string    `json:"reference"`
	FormID          string    `json:"form_id"`
	Fields          Fields    `json:"fields"`
	PhoneVerifiedAt time.Time `json:"phone_verified_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewReference returns a sortable booking reference for t.
func NewReference(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// Step describes one wizard step for rendering.
type Step struct {
	ID       int        `json:"id"`
	Name     string     `json:"name"`
	Required []FieldKey `json:"required"`
}

// CatalogView lists the selectable values of the form.
type CatalogView struct {
	Services  []Service `json:"services"`
	Doctors   []Doctor  `json:"doctors"`
	TimeSlots []string  `json:"time_slots"`
	Steps     []Step    `json:"steps"`
}

// Catalog returns the selectable values together with the given step layout.
func Catalog(steps []Step) CatalogView {
	return CatalogView{
		Services:  append([]Service(nil), Services...),
		Doctors:   append([]Doctor(nil), Doctors...),
		TimeSlots: append([]string(nil), TimeSlots...),
		Steps:     steps,
	}
}
