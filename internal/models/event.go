package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Event is a scheduled event owned by an organizer.
// MaxSeats 0 means unlimited; RegistrationFee 0 means free.
type Event struct {
	ID              uuid.UUID `json:"id"`
	OrganizerID     uuid.UUID `json:"organizer_id"`
	Name            string    `json:"name"`
	EventDate       string    `json:"event_date"` // YYYY-MM-DD
	StartTime       string    `json:"start_time"` // HH:MM
	EndTime         string    `json:"end_time"`   // HH:MM
	Venue           string    `json:"venue"`
	Description     string    `json:"description"`
	MaxSeats        int       `json:"max_seats"`
	SeatsTaken      int       `json:"seats_taken"`
	ThumbnailRef    string    `json:"-"`
	ThumbnailURL    string    `json:"thumbnail_url,omitempty"`
	RegistrationFee float64   `json:"registration_fee"`
	CreatedAt       time.Time `json:"created_at"`
}

// IsFree reports whether the event needs no payment.
func (e *Event) IsFree() bool {
	return e.FeeMinorUnits() == 0
}

// FeeMinorUnits returns round(fee × 100), the amount charged in minor currency units.
func (e *Event) FeeMinorUnits() int64 {
	return int64(math.Round(e.RegistrationFee * 100))
}

// HasCapacity reports whether taken seats leave room for one more registration.
func (e *Event) HasCapacity(taken int) bool {
	return e.MaxSeats == 0 || taken < e.MaxSeats
}
