package events

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/eventorizon/backend/internal/middleware"
	"github.com/eventorizon/backend/internal/models"
	"github.com/eventorizon/backend/pkg/response"
)

// ContextEvent is the context key for the event loaded by RequireEventOwner.
const ContextEvent = "event"

// RequireEventOwner allows the request only when the caller owns the event in :id. Call after JWT.
func RequireEventOwner(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid event id")
			c.Abort()
			return
		}
		user, ok := middleware.CurrentUser(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		e, err := store.GetByID(c.Request.Context(), eventID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				response.NotFound(c, "event not found")
			} else {
				response.Internal(c, "failed to load event")
			}
			c.Abort()
			return
		}
		if e.OrganizerID != user.UserID {
			response.Forbidden(c, "not the organizer of this event")
			c.Abort()
			return
		}
		c.Set(ContextEvent, e)
		c.Next()
	}
}

// OwnedEvent returns the event loaded by RequireEventOwner.
func OwnedEvent(c *gin.Context) (*models.Event, bool) {
	v, ok := c.Get(ContextEvent)
	if !ok {
		return nil, false
	}
	e, ok := v.(*models.Event)
	return e, ok
}
