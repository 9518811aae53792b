package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ownerID = uuid.New()

func authenticate(token string) (Viewer, error) {
	if token != "good" {
		return Viewer{}, errors.New("bad token")
	}
	return Viewer{UserID: ownerID, Role: "organizer"}, nil
}

func authorizeOwner(eventID uuid.UUID) Authorize {
	return func(_ context.Context, id uuid.UUID, v Viewer) (int, bool) {
		if id != eventID {
			return http.StatusNotFound, false
		}
		if v.UserID != ownerID {
			return http.StatusForbidden, false
		}
		return 0, true
	}
}

func serve(t *testing.T, hub *Hub, eventID uuid.UUID) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/ws", ServeWs(hub, NewUpgrader([]string{"*"}), authenticate, authorizeOwner(eventID), nil))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?" + query
	return websocket.DefaultDialer.Dial(url, nil)
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestLocalBroadcast(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	eventID := uuid.New()
	srv := serve(t, hub, eventID)

	conn, _, err := dial(t, srv, "event_id="+eventID.String()+"&token=good")
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ViewerCount(eventID) == 1 }, time.Second, 5*time.Millisecond)

	hub.PublishToEvent(eventID, "checkin", map[string]string{"student_name": "Asha"})
	msg := readMessage(t, conn)
	assert.Equal(t, "checkin", msg.Event)
	var data map[string]string
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "Asha", data["student_name"])

	hub.PublishToEvent(uuid.New(), "checkin", map[string]string{"student_name": "other"})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ViewerCount(eventID) == 0 }, time.Second, 5*time.Millisecond)
}

func TestServeWsRejects(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	eventID := uuid.New()
	srv := serve(t, hub, eventID)

	cases := map[string]int{
		"token=good":                                   http.StatusBadRequest,
		"event_id=nope&token=good":                     http.StatusBadRequest,
		"event_id=" + eventID.String() + "&token=bad":  http.StatusUnauthorized,
		"event_id=" + uuid.NewString() + "&token=good": http.StatusNotFound,
	}
	for query, status := range cases {
		_, resp, err := dial(t, srv, query)
		require.Error(t, err, query)
		require.NotNil(t, resp, query)
		assert.Equal(t, status, resp.StatusCode, query)
	}
}

func TestCrossInstanceBroadcast(t *testing.T) {
	mr := miniredis.RunT(t)
	rdbA := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rdbB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdbA.Close(); _ = rdbB.Close() })

	psA, psB := NewRedisPubSub(rdbA, nil), NewRedisPubSub(rdbB, nil)
	hubA := NewHub(nil, psA, psA)
	hubB := NewHub(nil, psB, psB)
	eventID := uuid.New()
	srv := serve(t, hubA, eventID)

	conn, _, err := dial(t, srv, "event_id="+eventID.String()+"&token=good")
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hubA.ViewerCount(eventID) == 1 }, time.Second, 5*time.Millisecond)

	hubB.PublishToEvent(eventID, "checkin", map[string]string{"register_no": "21CS001"})
	msg := readMessage(t, conn)
	assert.Equal(t, "checkin", msg.Event)
	assert.JSONEq(t, `{"register_no":"21CS001"}`, string(msg.Data))
}

func TestUpgraderOrigins(t *testing.T) {
	up := NewUpgrader([]string{"http://app.test/"})
	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	req.Header.Set("Origin", "http://app.test")
	assert.True(t, up.CheckOrigin(req))
	req.Header.Set("Origin", "http://evil.test")
	assert.False(t, up.CheckOrigin(req))
	req.Header.Del("Origin")
	assert.True(t, up.CheckOrigin(req))
}
