package models

import (
	"time"

	"github.com/google/uuid"
)

// FreePaymentMarker is stored as payment_id for registrations to zero-fee events.
const FreePaymentMarker = "FREE_EVENT"

// Registration is a student's seat at an event.
// Lifecycle: created -> verified (gate scan) -> certificate issued. No step is reversible.
type Registration struct {
	ID                  uuid.UUID  `json:"id"`
	EventID             uuid.UUID  `json:"event_id"`
	UserID              uuid.UUID  `json:"user_id"`
	StudentName         string     `json:"student_name"`
	RegisterNo          string     `json:"register_no"`
	Department          string     `json:"department"`
	RegCode             string     `json:"reg_code"`
	PaymentID           string     `json:"payment_id,omitempty"`
	Verified            bool       `json:"verified"`
	VerifiedAt          *time.Time `json:"verified_at,omitempty"`
	CertificateIssuedAt *time.Time `json:"certificate_issued_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// StudentRegistration is a registration joined with its event, as listed to the student.
type StudentRegistration struct {
	RegCode             string     `json:"reg_code"`
	EventID             uuid.UUID  `json:"event_id"`
	EventName           string     `json:"event_name"`
	EventDate           string     `json:"event_date"`
	Venue               string     `json:"venue"`
	Verified            bool       `json:"verified"`
	VerifiedAt          *time.Time `json:"verified_at,omitempty"`
	CertificateIssuedAt *time.Time `json:"certificate_issued_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}
