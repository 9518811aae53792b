package registrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventorizon/backend/internal/models"
)

const (
	uniqueViolation         = "23505"
	paymentUniqueConstraint = "event_registrations_payment_key"
)

// Repository is the PostgreSQL registration ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const registrationColumns = `r.id, r.event_id, r.user_id, r.student_name, r.register_no, r.department, r.reg_code,
	COALESCE(r.payment_id, ''), r.verified, r.verified_at, r.certificate_issued_at, r.created_at`

func scanRegistration(row pgx.Row, reg *models.Registration, extra ...any) error {
	dest := []any{&reg.ID, &reg.EventID, &reg.UserID, &reg.StudentName, &reg.RegisterNo, &reg.Department, &reg.RegCode,
		&reg.PaymentID, &reg.Verified, &reg.VerifiedAt, &reg.CertificateIssuedAt, &reg.CreatedAt}
	return row.Scan(append(dest, extra...)...)
}

// GetEvent returns the event registrations are taken for.
func (r *Repository) GetEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	const q = `SELECT id, organizer_id, name, to_char(event_date, 'YYYY-MM-DD'), start_time, end_time, venue, description,
		max_seats, COALESCE(thumbnail_ref, ''), registration_fee::float8, created_at
		FROM events WHERE id = $1`
	var e models.Event
	err := r.pool.QueryRow(ctx, q, eventID).Scan(&e.ID, &e.OrganizerID, &e.Name, &e.EventDate, &e.StartTime, &e.EndTime,
		&e.Venue, &e.Description, &e.MaxSeats, &e.ThumbnailRef, &e.RegistrationFee, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// FindByEventAndUser returns the user's registration for the event, or nil.
func (r *Repository) FindByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error) {
	q := `SELECT ` + registrationColumns + ` FROM event_registrations r WHERE r.event_id = $1 AND r.user_id = $2`
	var reg models.Registration
	if err := scanRegistration(r.pool.QueryRow(ctx, q, eventID, userID), &reg); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &reg, nil
}

// CountForEvent returns the number of seats taken.
func (r *Repository) CountForEvent(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM event_registrations WHERE event_id = $1`, eventID).Scan(&n)
	return n, err
}

// Commit inserts reg inside one transaction:
//  1. lock the event row (concurrent commits for one event queue here)
//  2. duplicate check for (event, user)
//  3. payment reuse check
//  4. seat count against max_seats
//  5. insert
//
// The unique constraints on (event_id, user_id) and payment_id back up steps 2 and 3.
func (r *Repository) Commit(ctx context.Context, reg *models.Registration) (CommitResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return CommitOK, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var maxSeats int
	err = tx.QueryRow(ctx, `SELECT max_seats FROM events WHERE id = $1 FOR UPDATE`, reg.EventID).Scan(&maxSeats)
	if errors.Is(err, pgx.ErrNoRows) {
		return CommitEventNotFound, nil
	}
	if err != nil {
		return CommitOK, fmt.Errorf("lock event: %w", err)
	}

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM event_registrations WHERE event_id = $1 AND user_id = $2)`,
		reg.EventID, reg.UserID).Scan(&exists)
	if err != nil {
		return CommitOK, fmt.Errorf("duplicate check: %w", err)
	}
	if exists {
		return CommitAlreadyRegistered, nil
	}

	if reg.PaymentID != "" && reg.PaymentID != models.FreePaymentMarker {
		err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM event_registrations WHERE payment_id = $1)`, reg.PaymentID).Scan(&exists)
		if err != nil {
			return CommitOK, fmt.Errorf("payment check: %w", err)
		}
		if exists {
			return CommitPaymentReused, nil
		}
	}

	if maxSeats > 0 {
		var taken int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM event_registrations WHERE event_id = $1`, reg.EventID).Scan(&taken); err != nil {
			return CommitOK, fmt.Errorf("seat count: %w", err)
		}
		if taken >= maxSeats {
			return CommitEventFull, nil
		}
	}

	const insert = `INSERT INTO event_registrations (event_id, user_id, student_name, register_no, department, reg_code, payment_id)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		RETURNING id, created_at`
	err = tx.QueryRow(ctx, insert, reg.EventID, reg.UserID, reg.StudentName, reg.RegisterNo, reg.Department, reg.RegCode, reg.PaymentID).
		Scan(&reg.ID, &reg.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == paymentUniqueConstraint {
				return CommitPaymentReused, nil
			}
			return CommitAlreadyRegistered, nil
		}
		return CommitOK, fmt.Errorf("insert registration: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return CommitOK, fmt.Errorf("commit: %w", err)
	}
	return CommitOK, nil
}

// GetByCode returns the registration with the code, or nil.
func (r *Repository) GetByCode(ctx context.Context, code string) (*models.Registration, error) {
	q := `SELECT ` + registrationColumns + ` FROM event_registrations r WHERE r.reg_code = $1`
	var reg models.Registration
	if err := scanRegistration(r.pool.QueryRow(ctx, q, code), &reg); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &reg, nil
}

// MarkVerified sets verified and verified_at with a single conditional update.
func (r *Repository) MarkVerified(ctx context.Context, code string, at time.Time) (VerifyResult, *models.Registration, error) {
	q := `UPDATE event_registrations r SET verified = TRUE, verified_at = $2
		WHERE r.reg_code = $1 AND r.verified = FALSE
		RETURNING ` + registrationColumns
	var reg models.Registration
	err := scanRegistration(r.pool.QueryRow(ctx, q, code, at), &reg)
	if err == nil {
		return VerifyOK, &reg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return VerifyNotFound, nil, fmt.Errorf("mark verified: %w", err)
	}
	existing, err := r.GetByCode(ctx, code)
	if err != nil {
		return VerifyNotFound, nil, err
	}
	if existing == nil {
		return VerifyNotFound, nil, nil
	}
	return VerifyAlreadyVerified, existing, nil
}

// IssueCertificate locks the registration, checks it is verified and not yet issued,
// renders the document, and records issuance in the same transaction.
func (r *Repository) IssueCertificate(ctx context.Context, code string, at time.Time, render RenderFunc) (IssueResult, []byte, *CertificateSubject, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return IssueNotFound, nil, nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	q := `SELECT ` + registrationColumns + `, u.email, e.name, to_char(e.event_date, 'YYYY-MM-DD'), e.venue
		FROM event_registrations r
		JOIN events e ON e.id = r.event_id
		JOIN users u ON u.id = r.user_id
		WHERE r.reg_code = $1
		FOR UPDATE OF r`
	var subj CertificateSubject
	err = scanRegistration(tx.QueryRow(ctx, q, code), &subj.Registration, &subj.UserEmail, &subj.EventName, &subj.EventDate, &subj.Venue)
	if errors.Is(err, pgx.ErrNoRows) {
		return IssueNotFound, nil, nil, nil
	}
	if err != nil {
		return IssueNotFound, nil, nil, fmt.Errorf("lock registration: %w", err)
	}
	if !subj.Registration.Verified {
		return IssueNotVerified, nil, &subj, nil
	}
	if subj.Registration.CertificateIssuedAt != nil {
		return IssueAlreadyIssued, nil, &subj, nil
	}

	subj.Registration.CertificateIssuedAt = &at
	doc, err := render(subj)
	if err != nil {
		return IssueOK, nil, &subj, err
	}
	if _, err := tx.Exec(ctx, `UPDATE event_registrations SET certificate_issued_at = $2 WHERE id = $1`, subj.Registration.ID, at); err != nil {
		return IssueOK, nil, &subj, fmt.Errorf("record issuance: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return IssueOK, nil, &subj, fmt.Errorf("commit: %w", err)
	}
	return IssueOK, doc, &subj, nil
}

// ListByUser returns the student's registrations, newest event first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.StudentRegistration, error) {
	const q = `SELECT r.reg_code, e.id, e.name, to_char(e.event_date, 'YYYY-MM-DD'), e.venue,
		r.verified, r.verified_at, r.certificate_issued_at, r.created_at
		FROM event_registrations r JOIN events e ON e.id = r.event_id
		WHERE r.user_id = $1
		ORDER BY e.event_date DESC, r.created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.StudentRegistration{}
	for rows.Next() {
		var s models.StudentRegistration
		if err := rows.Scan(&s.RegCode, &s.EventID, &s.EventName, &s.EventDate, &s.Venue,
			&s.Verified, &s.VerifiedAt, &s.CertificateIssuedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// ListByEvent returns all registrations for an event in sign-up order.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error) {
	q := `SELECT ` + registrationColumns + ` FROM event_registrations r WHERE r.event_id = $1 ORDER BY r.created_at`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Registration{}
	for rows.Next() {
		var reg models.Registration
		if err := scanRegistration(rows, &reg); err != nil {
			return nil, err
		}
		list = append(list, reg)
	}
	return list, rows.Err()
}
