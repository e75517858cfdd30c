// Package publisher implements the create-booking collaborators.
package publisher

import (
	"time"

	"booking-intake/backend/internal/booking/domain"
)

// EventTypeBookingSubmitted tags every published booking.
const EventTypeBookingSubmitted = "booking_submitted"

// BookingEvent is the wire form of a submitted booking.
type BookingEvent struct {
	EventType       string    `json:"eventType"`
	Reference       string    `json:"reference"`
	FormID          string    `json:"formId"`
	Service         string    `json:"service"`
	Doctor          string    `json:"doctor"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	Email           string    `json:"email"`
	Problem         string    `json:"problem,omitempty"`
	PhoneVerifiedAt time.Time `json:"phoneVerifiedAt"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NewBookingEvent flattens b.
func NewBookingEvent(b domain.Booking) BookingEvent {
	return BookingEvent{
		EventType:       EventTypeBookingSubmitted,
		Reference:       b.Reference,
		FormID:          b.FormID,
		Service:         string(b.Fields.Service),
		Doctor:          string(b.Fields.Doctor),
		Date:            b.Fields.Date,
		Time:            b.Fields.Time,
		Name:            b.Fields.Name,
		Phone:           b.Fields.Phone,
		Email:           b.Fields.Email,
		Problem:         b.Fields.Problem,
		PhoneVerifiedAt: b.PhoneVerifiedAt.UTC(),
		CreatedAt:       b.CreatedAt.UTC(),
	}
}
