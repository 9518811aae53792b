package events

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/eventorizon/backend/internal/middleware"
	"github.com/eventorizon/backend/internal/models"
	"github.com/eventorizon/backend/pkg/response"
	"github.com/eventorizon/backend/pkg/storage"
	"github.com/eventorizon/backend/pkg/validation"
)

// CreateRequest is the multipart form for POST /events. The optional image goes in "thumbnail".
type CreateRequest struct {
	Name            string  `form:"name" binding:"required,notblank,max=200"`
	EventDate       string  `form:"event_date" binding:"required,isodate"`
	StartTime       string  `form:"start_time" binding:"required,clock"`
	EndTime         string  `form:"end_time" binding:"required,clock"`
	Venue           string  `form:"venue" binding:"required,notblank,max=200"`
	Description     string  `form:"description" binding:"max=5000"`
	MaxSeats        int     `form:"max_seats" binding:"min=0,max=100000"`
	RegistrationFee float64 `form:"registration_fee" binding:"min=0,max=10000000"`
}

// Handler handles event catalog endpoints.
type Handler struct {
	store         Store
	objects       storage.ObjectStore
	cache         *Cache
	maxThumbBytes int64
	logger        *zap.Logger
}

// NewHandler creates an events handler. cache may be nil.
func NewHandler(store Store, objects storage.ObjectStore, cache *Cache, maxThumbBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, objects: objects, cache: cache, maxThumbBytes: maxThumbBytes, logger: logger}
}

func (h *Handler) decorate(list []models.Event) {
	for i := range list {
		if list[i].ThumbnailRef != "" {
			list[i].ThumbnailURL = h.objects.URL(list[i].ThumbnailRef)
		}
	}
}

// List handles GET /events.
func (h *Handler) List(c *gin.Context) {
	if list, ok := h.cache.Get(c.Request.Context()); ok {
		c.Header("X-Cache", "HIT")
		response.OK(c, list)
		return
	}
	list, err := h.store.List(c.Request.Context(), nil)
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		response.Internal(c, "failed to list events")
		return
	}
	h.decorate(list)
	h.cache.Set(c.Request.Context(), list)
	response.OK(c, list)
}

// ListMine handles GET /organizer/events.
func (h *Handler) ListMine(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	list, err := h.store.List(c.Request.Context(), &user.UserID)
	if err != nil {
		h.logger.Error("list organizer events failed", zap.Error(err))
		response.Internal(c, "failed to list events")
		return
	}
	h.decorate(list)
	response.OK(c, list)
}

// GetByID handles GET /events/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "event not found")
			return
		}
		response.Internal(c, "failed to load event")
		return
	}
	one := []models.Event{*e}
	h.decorate(one)
	response.OK(c, one[0])
}

// Create handles POST /events (organizer only).
func (h *Handler) Create(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	var req CreateRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, validation.Message(err))
		return
	}
	start, _ := time.Parse(validation.ClockLayout, req.StartTime)
	end, _ := time.Parse(validation.ClockLayout, req.EndTime)
	if !end.After(start) {
		response.BadRequest(c, "end_time must be after start_time")
		return
	}

	e := &models.Event{
		OrganizerID:     user.UserID,
		Name:            strings.TrimSpace(req.Name),
		EventDate:       req.EventDate,
		StartTime:       start.Format(validation.ClockLayout),
		EndTime:         end.Format(validation.ClockLayout),
		Venue:           strings.TrimSpace(req.Venue),
		Description:     strings.TrimSpace(req.Description),
		MaxSeats:        req.MaxSeats,
		RegistrationFee: req.RegistrationFee,
	}

	ref, ok := h.saveThumbnail(c)
	if !ok {
		return
	}
	e.ThumbnailRef = ref

	if err := h.store.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		if ref != "" {
			_ = h.objects.Delete(c.Request.Context(), ref)
		}
		response.Internal(c, "failed to create event")
		return
	}
	h.invalidate(c)
	h.logger.Info("event created", zap.String("event_id", e.ID.String()), zap.String("organizer_id", user.UserID.String()))
	if e.ThumbnailRef != "" {
		e.ThumbnailURL = h.objects.URL(e.ThumbnailRef)
	}
	response.Created(c, e)
}

// saveThumbnail stores the optional "thumbnail" upload. ok is false when a response was written.
func (h *Handler) saveThumbnail(c *gin.Context) (string, bool) {
	file, err := c.FormFile("thumbnail")
	if errors.Is(err, http.ErrMissingFile) {
		return "", true
	}
	if err != nil {
		response.BadRequest(c, "invalid thumbnail upload")
		return "", false
	}
	if file.Size > h.maxThumbBytes {
		response.BadRequest(c, fmt.Sprintf("thumbnail must be at most %d bytes", h.maxThumbBytes))
		return "", false
	}
	contentType := storage.ThumbnailContentType(file.Header.Get("Content-Type"), file.Filename)
	if contentType == "" {
		response.BadRequest(c, "thumbnail must be a jpeg, png, webp or gif image")
		return "", false
	}
	src, err := file.Open()
	if err != nil {
		response.BadRequest(c, "invalid thumbnail upload")
		return "", false
	}
	defer src.Close()

	key := storage.ThumbnailKey(contentType)
	if err := h.objects.Put(c.Request.Context(), key, contentType, src, file.Size); err != nil {
		h.logger.Error("store thumbnail failed", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to store thumbnail")
		return "", false
	}
	return key, true
}

// Delete handles DELETE /events/:id. Ownership is checked by RequireEventOwner.
func (h *Handler) Delete(c *gin.Context) {
	e, ok := OwnedEvent(c)
	if !ok {
		response.Forbidden(c, "not the organizer of this event")
		return
	}
	ref, err := h.store.Delete(c.Request.Context(), e.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "event not found")
			return
		}
		h.logger.Error("delete event failed", zap.String("event_id", e.ID.String()), zap.Error(err))
		response.Internal(c, "failed to delete event")
		return
	}
	if ref != "" {
		if err := h.objects.Delete(c.Request.Context(), ref); err != nil {
			h.logger.Warn("delete thumbnail failed", zap.String("key", ref), zap.Error(err))
		}
	}
	h.invalidate(c)
	h.logger.Info("event deleted", zap.String("event_id", e.ID.String()))
	response.NoContent(c)
}

func (h *Handler) invalidate(c *gin.Context) {
	if err := h.cache.Invalidate(c.Request.Context()); err != nil {
		h.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}
