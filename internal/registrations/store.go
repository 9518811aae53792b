package registrations

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/eventorizon/backend/internal/models"
)

// CommitResult is the outcome of the guarded registration insert.
type CommitResult int

const (
	CommitOK CommitResult = iota
	CommitAlreadyRegistered
	CommitEventFull
	CommitEventNotFound
	CommitPaymentReused
)

func (r CommitResult) String() string {
	switch r {
	case CommitOK:
		return "ok"
	case CommitAlreadyRegistered:
		return "already_registered"
	case CommitEventFull:
		return "event_full"
	case CommitEventNotFound:
		return "event_not_found"
	case CommitPaymentReused:
		return "payment_reused"
	default:
		return "unknown"
	}
}

// VerifyResult is the outcome of a gate scan.
type VerifyResult int

const (
	VerifyOK VerifyResult = iota
	VerifyAlreadyVerified
	VerifyNotFound
)

func (r VerifyResult) String() string {
	switch r {
	case VerifyOK:
		return "verified"
	case VerifyAlreadyVerified:
		return "already_verified"
	default:
		return "invalid"
	}
}

// IssueResult is the outcome of a certificate request.
type IssueResult int

const (
	IssueOK IssueResult = iota
	IssueNotFound
	IssueNotVerified
	IssueAlreadyIssued
)

// CertificateSubject is a registration joined with what the certificate prints about it.
type CertificateSubject struct {
	Registration models.Registration
	UserEmail    string
	EventName    string
	EventDate    string
	Venue        string
}

// RenderFunc renders the certificate document. It runs while the registration row is locked;
// an error aborts issuance and leaves certificate_issued_at unset.
type RenderFunc func(CertificateSubject) ([]byte, error)

// Store is the registration ledger.
type Store interface {
	// GetEvent returns pgx.ErrNoRows when the event does not exist.
	GetEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error)
	// FindByEventAndUser returns nil, nil when the user holds no registration for the event.
	FindByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error)
	CountForEvent(ctx context.Context, eventID uuid.UUID) (int, error)

	// Commit runs the seat and duplicate guard and inserts reg as one atomic step.
	// On CommitOK reg.ID and reg.CreatedAt are set.
	Commit(ctx context.Context, reg *models.Registration) (CommitResult, error)

	// GetByCode returns nil, nil for an unknown code.
	GetByCode(ctx context.Context, code string) (*models.Registration, error)
	// MarkVerified flips verified exactly once. For VerifyAlreadyVerified the stored row is returned unchanged.
	MarkVerified(ctx context.Context, code string, at time.Time) (VerifyResult, *models.Registration, error)
	// IssueCertificate checks and sets certificate_issued_at under a row lock, rendering in between.
	IssueCertificate(ctx context.Context, code string, at time.Time, render RenderFunc) (IssueResult, []byte, *CertificateSubject, error)

	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.StudentRegistration, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error)
}
