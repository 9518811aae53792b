package analytics

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventorizon/backend/internal/models"
)

// Repository aggregates registration state per event.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an analytics repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const summarySelect = `SELECT e.id, e.name, to_char(e.event_date, 'YYYY-MM-DD'), e.max_seats,
	COUNT(r.id),
	COUNT(r.id) FILTER (WHERE r.verified),
	COUNT(r.id) FILTER (WHERE r.certificate_issued_at IS NOT NULL),
	COUNT(r.id) FILTER (WHERE r.payment_id IS NOT NULL AND r.payment_id <> $1),
	ROUND(e.registration_fee * 100)::bigint
	FROM events e
	LEFT JOIN event_registrations r ON r.event_id = e.id`

func scanSummary(row interface{ Scan(...any) error }, s *EventSummary) error {
	var paid int
	var feeMinor int64
	if err := row.Scan(&s.EventID, &s.EventName, &s.EventDate, &s.Capacity, &s.Registrations, &s.Attended,
		&s.Certificates, &paid, &feeMinor); err != nil {
		return err
	}
	s.finish(paid, feeMinor)
	return nil
}

// Summary returns the counts for one event. pgx.ErrNoRows when it does not exist.
func (r *Repository) Summary(ctx context.Context, eventID uuid.UUID) (*EventSummary, error) {
	q := summarySelect + ` WHERE e.id = $2 GROUP BY e.id`
	var s EventSummary
	if err := scanSummary(r.pool.QueryRow(ctx, q, models.FreePaymentMarker, eventID), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// AllEvents returns the counts for every event, soonest first.
func (r *Repository) AllEvents(ctx context.Context) ([]EventSummary, error) {
	q := summarySelect + ` GROUP BY e.id ORDER BY e.event_date, e.start_time`
	rows, err := r.pool.Query(ctx, q, models.FreePaymentMarker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []EventSummary{}
	for rows.Next() {
		var s EventSummary
		if err := scanSummary(rows, &s); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
