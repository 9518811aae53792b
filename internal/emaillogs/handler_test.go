package emaillogs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventorizon/backend/internal/models"
)

type fakeLister struct {
	logs []*models.EmailLog
	err  error
}

func (f fakeLister) ListByEvent(_ context.Context, eventID uuid.UUID) ([]*models.EmailLog, error) {
	var out []*models.EmailLog
	for _, l := range f.logs {
		if l.EventID != nil && *l.EventID == eventID {
			out = append(out, l)
		}
	}
	return out, f.err
}

func TestListByEvent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	eventID := uuid.New()
	lister := fakeLister{logs: []*models.EmailLog{
		{ID: uuid.New(), EventID: &eventID, EmailType: models.EmailTypeRegistrationConfirmation, Status: models.EmailLogStatusSent},
	}}
	r := gin.New()
	r.GET("/events/:id/emails", NewHandler(lister).ListByEvent)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/"+eventID.String()+"/emails", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []models.EmailLog `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, models.EmailLogStatusSent, body.Data[0].Status)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/bad/emails", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r = gin.New()
	r.GET("/events/:id/emails", NewHandler(fakeLister{err: errors.New("db down")}).ListByEvent)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/"+eventID.String()+"/emails", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}
