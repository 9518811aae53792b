package registrations

import (
	"bytes"
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

	"github.com/eventorizon/backend/internal/middleware"
	"github.com/eventorizon/backend/pkg/response"
	"github.com/eventorizon/backend/pkg/validation"
)

func setupRouter(t *testing.T, h *harness, userID uuid.UUID) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, validation.Register())
	hd := NewHandler(h.svc, nil)
	r := gin.New()
	authed := r.Group("/api", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Set(middleware.ContextUserRole, "student")
		c.Set(middleware.ContextUserEmail, "s@college.test")
		c.Next()
	})
	authed.POST("/events/:id/create-payment-order", hd.CreatePaymentOrder)
	authed.POST("/events/:id/verify-payment-and-register", hd.VerifyPaymentAndRegister)
	authed.GET("/student/registrations", hd.ListMine)
	r.GET("/api/verify/:code", hd.VerifyAttendance)
	r.GET("/api/certificate/:code", hd.Certificate)
	return r
}

func do(r http.Handler, method, path string, body interface{}, accept string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) (response.Body, map[string]interface{}) {
	t.Helper()
	var body response.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data, _ := body.Data.(map[string]interface{})
	return body, data
}

func registerBody(signature string) gin.H {
	return gin.H{"signature": signature, "studentName": "Asha", "registerNo": "21CS001", "department": "CSE"}
}

func TestHandlerFreeRegistrationFlow(t *testing.T) {
	h := newHarness()
	ev := h.store.addEvent(0, 10)
	r := setupRouter(t, h, uuid.New())

	w := do(r, http.MethodPost, "/api/events/"+ev.ID.String()+"/verify-payment-and-register", registerBody("FREE"), "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body, data := decode(t, w)
	assert.True(t, body.Success)
	assert.Contains(t, data["qrImage"], "data:image/png;base64,")
	code, _ := data["regCode"].(string)
	require.NotEmpty(t, code)

	w = do(r, http.MethodPost, "/api/events/"+ev.ID.String()+"/verify-payment-and-register", registerBody("FREE"), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body, _ = decode(t, w)
	assert.Equal(t, "Already registered", body.Error)

	w = do(r, http.MethodGet, "/api/verify/"+code, nil, "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	_, data = decode(t, w)
	assert.Equal(t, "verified", data["status"])

	w = do(r, http.MethodGet, "/api/verify/"+code, nil, "text/html")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Already verified")

	w = do(r, http.MethodGet, "/api/certificate/"+code, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "21CS001")

	w = do(r, http.MethodGet, "/api/certificate/"+code, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodGet, "/api/student/registrations", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body, _ = decode(t, w)
	list, _ := body.Data.([]interface{})
	assert.Len(t, list, 1)
}

func TestHandlerVerifyUnknownCode(t *testing.T) {
	h := newHarness()
	r := setupRouter(t, h, uuid.New())

	w := do(r, http.MethodGet, "/api/verify/nope", nil, "application/json")
	assert.Equal(t, http.StatusNotFound, w.Code)
	body, _ := decode(t, w)
	assert.Equal(t, "Invalid code", body.Error)

	w = do(r, http.MethodGet, "/api/verify/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid code")

	w = do(r, http.MethodGet, "/api/certificate/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	for _, raw := range []string{"%00", "abc%00", "%ff%fe"} {
		w = do(r, http.MethodGet, "/api/verify/"+raw, nil, "application/json")
		assert.Equal(t, http.StatusNotFound, w.Code, raw)
		body, _ = decode(t, w)
		assert.Equal(t, "Invalid code", body.Error)

		w = do(r, http.MethodGet, "/api/certificate/"+raw, nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code, raw)
	}
}

func TestHandlerVerifyPaymentErrors(t *testing.T) {
	h := newHarness()
	paid := h.store.addEvent(250, 0)
	full := h.store.addEvent(0, 1)
	_, err := h.svc.VerifyPaymentAndRegister(context.Background(), full.ID, student("x"), freeProof())
	require.NoError(t, err)
	r := setupRouter(t, h, uuid.New())

	body := registerBody(h.verifier.Sign("order_1", "pay_1"))
	body["orderId"], body["paymentId"], body["amount"] = "order_1", "pay_1", 24999
	w := do(r, http.MethodPost, "/api/events/"+paid.ID.String()+"/verify-payment-and-register", body, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	b, _ := decode(t, w)
	assert.Equal(t, "Payment amount mismatch", b.Error)

	body["signature"] = "forged"
	w = do(r, http.MethodPost, "/api/events/"+paid.ID.String()+"/verify-payment-and-register", body, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	b, _ = decode(t, w)
	assert.Equal(t, "Invalid payment signature", b.Error)

	w = do(r, http.MethodPost, "/api/events/"+full.ID.String()+"/verify-payment-and-register", registerBody("FREE"), "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	missing := registerBody("FREE")
	delete(missing, "registerNo")
	w = do(r, http.MethodPost, "/api/events/"+full.ID.String()+"/verify-payment-and-register", missing, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/events/not-a-uuid/verify-payment-and-register", registerBody("FREE"), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/events/"+uuid.NewString()+"/verify-payment-and-register", registerBody("FREE"), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerPassGenerationFailure(t *testing.T) {
	h := newHarness()
	ev := h.store.addEvent(0, 0)
	h.passes.err = errors.New("boom")
	r := setupRouter(t, h, uuid.New())

	w := do(r, http.MethodPost, "/api/events/"+ev.ID.String()+"/verify-payment-and-register", registerBody("FREE"), "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	body, data := decode(t, w)
	assert.False(t, body.Success)
	assert.Equal(t, "registered, but pass generation failed", body.Error)
	assert.NotEmpty(t, data["regCode"])
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestHandlerCreatePaymentOrder(t *testing.T) {
	h := newHarness()
	ev := h.store.addEvent(120.5, 0)
	r := setupRouter(t, h, uuid.New())

	w := do(r, http.MethodPost, "/api/events/"+ev.ID.String()+"/create-payment-order", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	_, data := decode(t, w)
	assert.EqualValues(t, 12050, data["amount"])
	assert.Equal(t, "INR", data["currency"])
	assert.NotEmpty(t, data["orderId"])

	h.gateway.err = errors.New("dial tcp: secret-host")
	w = do(r, http.MethodPost, "/api/events/"+ev.ID.String()+"/create-payment-order", nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret-host")
}
