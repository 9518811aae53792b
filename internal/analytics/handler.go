package analytics

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/eventorizon/backend/pkg/response"
)

// EventSummary is the per-event attendance report.
type EventSummary struct {
	EventID        uuid.UUID `json:"event_id"`
	EventName      string    `json:"event_name"`
	EventDate      string    `json:"event_date"`
	Capacity       int       `json:"capacity"` // 0 = unlimited
	Registrations  int       `json:"registrations"`
	Attended       int       `json:"attended"`
	NoShow         int       `json:"no_show"`
	Certificates   int       `json:"certificates"`
	SeatsLeft      *int      `json:"seats_left,omitempty"`
	AttendanceRate *float64  `json:"attendance_rate,omitempty"`
	RevenueMinor   int64     `json:"revenue_minor"`
}

// finish derives the computed fields. Revenue is paid registrations × fee in minor units.
func (s *EventSummary) finish(paid int, feeMinor int64) {
	s.NoShow = s.Registrations - s.Attended
	if s.NoShow < 0 {
		s.NoShow = 0
	}
	if s.Capacity > 0 {
		left := s.Capacity - s.Registrations
		if left < 0 {
			left = 0
		}
		s.SeatsLeft = &left
	}
	if s.Registrations > 0 {
		rate := float64(s.Attended) / float64(s.Registrations)
		s.AttendanceRate = &rate
	}
	s.RevenueMinor = int64(paid) * feeMinor
}

// Source provides the aggregates.
type Source interface {
	Summary(ctx context.Context, eventID uuid.UUID) (*EventSummary, error)
	AllEvents(ctx context.Context) ([]EventSummary, error)
}

// Handler serves organizer and admin reports.
type Handler struct {
	src    Source
	logger *zap.Logger
}

// NewHandler creates an analytics handler.
func NewHandler(src Source, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{src: src, logger: logger}
}

// EventStats handles GET /organizer/events/:id/stats. Ownership is enforced by route middleware.
func (h *Handler) EventStats(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	s, err := h.src.Summary(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("event stats failed", zap.String("event_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to load event stats")
		return
	}
	response.OK(c, s)
}

// AdminEvents handles GET /admin/events. Revenue is omitted from the admin overview.
func (h *Handler) AdminEvents(c *gin.Context) {
	list, err := h.src.AllEvents(c.Request.Context())
	if err != nil {
		h.logger.Error("admin events failed", zap.Error(err))
		response.Internal(c, "failed to load events")
		return
	}
	type row struct {
		EventSummary
		RevenueMinor int64 `json:"revenue_minor,omitempty"`
	}
	out := make([]row, 0, len(list))
	for _, s := range list {
		out = append(out, row{EventSummary: s})
	}
	response.OK(c, out)
}
