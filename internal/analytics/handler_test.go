package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	summaries map[uuid.UUID]EventSummary
}

func (f fakeSource) Summary(_ context.Context, id uuid.UUID) (*EventSummary, error) {
	s, ok := f.summaries[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &s, nil
}

func (f fakeSource) AllEvents(_ context.Context) ([]EventSummary, error) {
	out := []EventSummary{}
	for _, s := range f.summaries {
		out = append(out, s)
	}
	return out, nil
}

func TestFinish(t *testing.T) {
	s := EventSummary{Capacity: 10, Registrations: 4, Attended: 3}
	s.finish(2, 25000)
	assert.Equal(t, 1, s.NoShow)
	require.NotNil(t, s.SeatsLeft)
	assert.Equal(t, 6, *s.SeatsLeft)
	assert.InDelta(t, 0.75, *s.AttendanceRate, 1e-9)
	assert.EqualValues(t, 50000, s.RevenueMinor)

	unlimited := EventSummary{}
	unlimited.finish(0, 0)
	assert.Nil(t, unlimited.SeatsLeft)
	assert.Nil(t, unlimited.AttendanceRate)
}

func TestHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	id := uuid.New()
	s := EventSummary{EventID: id, EventName: "Expo", Registrations: 2, Attended: 1}
	s.finish(2, 10000)
	h := NewHandler(fakeSource{summaries: map[uuid.UUID]EventSummary{id: s}}, nil)

	r := gin.New()
	r.GET("/organizer/events/:id/stats", h.EventStats)
	r.GET("/admin/events", h.AdminEvents)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/organizer/events/"+id.String()+"/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var one struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &one))
	assert.EqualValues(t, 20000, one.Data["revenue_minor"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/organizer/events/"+uuid.NewString()+"/stats", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/events", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var all struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	require.Len(t, all.Data, 1)
	assert.Equal(t, "Expo", all.Data[0]["event_name"])
	_, hasRevenue := all.Data[0]["revenue_minor"]
	assert.False(t, hasRevenue)
}
