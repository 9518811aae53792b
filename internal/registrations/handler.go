package registrations

import (
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventorizon/backend/internal/middleware"
	"github.com/eventorizon/backend/pkg/response"
	"github.com/eventorizon/backend/pkg/validation"
)

// VerifyRequest is the body for POST /events/:id/verify-payment-and-register.
// Amount is in minor currency units; free registrations send signature "FREE".
type VerifyRequest struct {
	PaymentID   string `json:"paymentId" binding:"max=128"`
	OrderID     string `json:"orderId" binding:"max=128"`
	Signature   string `json:"signature" binding:"required,max=256"`
	StudentName string `json:"studentName" binding:"required,notblank,max=120"`
	RegisterNo  string `json:"registerNo" binding:"required,notblank,max=64"`
	Department  string `json:"department" binding:"required,notblank,max=120"`
	Amount      *int64 `json:"amount"`
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func eventIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return uuid.Nil, false
	}
	return id, true
}

// CreatePaymentOrder handles POST /events/:id/create-payment-order.
func (h *Handler) CreatePaymentOrder(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	order, err := h.svc.CreatePaymentOrder(c.Request.Context(), eventID, user.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, order)
}

// VerifyPaymentAndRegister handles POST /events/:id/verify-payment-and-register.
func (h *Handler) VerifyPaymentAndRegister(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, validation.Message(err))
		return
	}

	pass, err := h.svc.VerifyPaymentAndRegister(c.Request.Context(), eventID, Registrant{
		UserID:      user.UserID,
		Email:       user.Email,
		StudentName: req.StudentName,
		RegisterNo:  req.RegisterNo,
		Department:  req.Department,
	}, PaymentProof{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		Amount:    req.Amount,
	})
	if errors.Is(err, ErrPassGeneration) {
		// committed; the client recovers the pass from /student/registrations/:code/pass
		c.JSON(http.StatusAccepted, response.Body{
			Success: false,
			Data:    gin.H{"regCode": pass.RegCode},
			Error:   ErrPassGeneration.Error(),
		})
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	if pass.Replayed {
		response.OK(c, pass)
		return
	}
	response.Created(c, pass)
}

// VerifyAttendance handles GET /verify/:code. Browsers scanning the pass get an HTML page;
// API clients asking for JSON get the status.
func (h *Handler) VerifyAttendance(c *gin.Context) {
	result, reg, err := h.svc.VerifyAttendance(c.Request.Context(), c.Param("code"))
	wantJSON := c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON

	if err != nil {
		if wantJSON {
			response.Error(c, err)
			return
		}
		status := http.StatusInternalServerError
		if result == VerifyNotFound {
			status = http.StatusNotFound
		}
		writeVerifyPage(c, status, "Invalid code", "This entry pass is not valid.")
		return
	}

	if wantJSON {
		response.OK(c, gin.H{
			"status":       result.String(),
			"student_name": reg.StudentName,
			"register_no":  reg.RegisterNo,
			"department":   reg.Department,
			"verified_at":  reg.VerifiedAt,
		})
		return
	}
	title := "Verified"
	if result == VerifyAlreadyVerified {
		title = "Already verified"
	}
	detail := fmt.Sprintf("%s (%s, %s)", reg.StudentName, reg.RegisterNo, reg.Department)
	if reg.VerifiedAt != nil {
		detail += " checked in at " + reg.VerifiedAt.Format("15:04 MST, 02 Jan 2006")
	}
	writeVerifyPage(c, http.StatusOK, title, detail)
}

func writeVerifyPage(c *gin.Context, status int, title, detail string) {
	page := fmt.Sprintf(`<!doctype html><html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width,initial-scale=1">`+
		`<title>%[1]s</title></head><body style="font-family:sans-serif;text-align:center;padding:3em">`+
		`<h1>%[1]s</h1><p>%[2]s</p></body></html>`, html.EscapeString(title), html.EscapeString(detail))
	c.Data(status, "text/html; charset=utf-8", []byte(page))
}

// Certificate handles GET /certificate/:code.
func (h *Handler) Certificate(c *gin.Context) {
	doc, subj, err := h.svc.IssueCertificate(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := "certificate-" + subj.Registration.RegisterNo + ".pdf"
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", doc)
}

// ListMine handles GET /student/registrations.
func (h *Handler) ListMine(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	list, err := h.svc.ListForStudent(c.Request.Context(), user.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Pass handles GET /student/registrations/:code/pass.
func (h *Handler) Pass(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	pass, err := h.svc.RegeneratePass(c.Request.Context(), c.Param("code"), user.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, pass)
}

// ListForEvent handles GET /organizer/events/:id/registrations. Ownership is checked by middleware.
func (h *Handler) ListForEvent(c *gin.Context) {
	eventID, ok := eventIDParam(c)
	if !ok {
		return
	}
	list, err := h.svc.ListForEvent(c.Request.Context(), eventID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}
