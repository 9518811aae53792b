package events

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventorizon/backend/internal/models"
)

// Store is the event persistence used by the handler and ownership middleware.
type Store interface {
	Create(ctx context.Context, e *models.Event) error
	// GetByID returns pgx.ErrNoRows when the event does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	// List returns all events, or only those owned by organizerID when it is non-nil.
	List(ctx context.Context, organizerID *uuid.UUID) ([]models.Event, error)
	// Delete removes the event and its registrations and returns the thumbnail key it held.
	Delete(ctx context.Context, id uuid.UUID) (string, error)
}

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const eventColumns = `e.id, e.organizer_id, e.name, to_char(e.event_date, 'YYYY-MM-DD'), e.start_time, e.end_time, e.venue,
	e.description, e.max_seats, COALESCE(e.thumbnail_ref, ''), e.registration_fee::float8, e.created_at,
	(SELECT COUNT(*) FROM event_registrations r WHERE r.event_id = e.id)`

func scanEvent(row pgx.Row, e *models.Event) error {
	return row.Scan(&e.ID, &e.OrganizerID, &e.Name, &e.EventDate, &e.StartTime, &e.EndTime, &e.Venue,
		&e.Description, &e.MaxSeats, &e.ThumbnailRef, &e.RegistrationFee, &e.CreatedAt, &e.SeatsTaken)
}

// Create inserts a new event.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (organizer_id, name, event_date, start_time, end_time, venue, description, max_seats, thumbnail_ref, registration_fee)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, e.OrganizerID, e.Name, e.EventDate, e.StartTime, e.EndTime, e.Venue, e.Description,
		e.MaxSeats, e.ThumbnailRef, e.RegistrationFee).Scan(&e.ID, &e.CreatedAt)
}

// GetByID returns an event by ID with its taken seat count.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var e models.Event
	if err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = $1`, id), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns events ordered by date, optionally filtered by organizer.
func (r *Repository) List(ctx context.Context, organizerID *uuid.UUID) ([]models.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events e`
	var args []interface{}
	if organizerID != nil {
		q += ` WHERE e.organizer_id = $1`
		args = append(args, *organizerID)
	}
	rows, err := r.pool.Query(ctx, q+` ORDER BY e.event_date, e.start_time`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Event{}
	for rows.Next() {
		var e models.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Delete removes an event by ID. Registrations cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (string, error) {
	var ref string
	err := r.pool.QueryRow(ctx, `DELETE FROM events WHERE id = $1 RETURNING COALESCE(thumbnail_ref, '')`, id).Scan(&ref)
	return ref, err
}
