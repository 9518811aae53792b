package registrations

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/eventorizon/backend/internal/metrics"
	"github.com/eventorizon/backend/internal/models"
	"github.com/eventorizon/backend/internal/passes"
	"github.com/eventorizon/backend/internal/payments"
	"github.com/eventorizon/backend/pkg/apperror"
	"github.com/eventorizon/backend/pkg/queue"
)

// ErrPassGeneration means the registration is committed but its entry pass could not be rendered.
// The student can fetch the pass again later; the registration is never rolled back for this.
var ErrPassGeneration = errors.New("registered, but pass generation failed")

// Client-facing messages.
const (
	msgEventNotFound     = "Event not found"
	msgFreeEvent         = "Free event: no payment required"
	msgAlreadyRegistered = "Already registered"
	msgEventFull         = "Event full"
	msgInvalidSignature  = "Invalid payment signature"
	msgAmountMismatch    = "Payment amount mismatch"
	msgPaymentReused     = "Payment already used"
	msgOrderFailed       = "Cannot create payment order"
	msgInvalidCode       = "Invalid code"
	msgNotVerified       = "Attendance not verified"
	msgAlreadyIssued     = "Certificate already issued"
)

// PassRenderer turns a registration code into an embeddable entry pass image.
type PassRenderer interface {
	Render(code string) (string, error)
}

// CertificateRenderer renders the certificate document.
type CertificateRenderer interface {
	Render(cert passes.Certificate) ([]byte, error)
}

// Notifier queues notification emails.
type Notifier interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Broadcaster pushes live events to dashboards watching an event.
type Broadcaster interface {
	PublishToEvent(eventID uuid.UUID, event string, payload interface{})
}

// CatalogInvalidator drops cached catalog data after seat counts change.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Deps are the collaborators of Service. Notifier, Checkins and Catalog are optional.
type Deps struct {
	Store        Store
	Gateway      payments.Gateway
	Verifier     *payments.Verifier
	Passes       PassRenderer
	Certificates CertificateRenderer
	Notifier     Notifier
	Checkins     Broadcaster
	Catalog      CatalogInvalidator
	Logger       *zap.Logger
}

// Service runs the registration workflow: payment order, verified commit, gate scan, certificate.
type Service struct {
	Deps
	now func() time.Time
}

// NewService creates the registration workflow.
func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{Deps: d, now: time.Now}
}

// Registrant is the authenticated student and the details printed on their pass and certificate.
type Registrant struct {
	UserID      uuid.UUID
	Email       string
	StudentName string
	RegisterNo  string
	Department  string
}

// PaymentProof is what the client reports after checkout.
// Amount is the claimed charge in minor units; nil means not supplied.
type PaymentProof struct {
	OrderID   string
	PaymentID string
	Signature string
	Amount    *int64
}

// Pass is a committed registration and its entry pass.
type Pass struct {
	RegCode  string `json:"regCode"`
	QRImage  string `json:"qrImage,omitempty"`
	Replayed bool   `json:"replayed,omitempty"`
}

// CheckinEvent is broadcast to gate dashboards after a successful scan.
type CheckinEvent struct {
	EventID     uuid.UUID `json:"event_id"`
	StudentName string    `json:"student_name"`
	RegisterNo  string    `json:"register_no"`
	Department  string    `json:"department"`
	VerifiedAt  time.Time `json:"verified_at"`
}

func (s *Service) loadEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	ev, err := s.Store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound(msgEventNotFound)
		}
		return nil, apperror.Internal("failed to load event", err)
	}
	return ev, nil
}

// CreatePaymentOrder creates a gateway order for the event fee. Nothing is persisted,
// so a failed or timed-out call can be retried from scratch.
func (s *Service) CreatePaymentOrder(ctx context.Context, eventID, userID uuid.UUID) (*payments.Order, error) {
	ev, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.IsFree() {
		return nil, apperror.Validation(msgFreeEvent)
	}
	existing, err := s.Store.FindByEventAndUser(ctx, eventID, userID)
	if err != nil {
		return nil, apperror.Internal("failed to check registration", err)
	}
	if existing != nil {
		return nil, apperror.Conflict(msgAlreadyRegistered, 0)
	}
	if ev.MaxSeats > 0 {
		taken, err := s.Store.CountForEvent(ctx, eventID)
		if err != nil {
			return nil, apperror.Internal("failed to count seats", err)
		}
		if !ev.HasCapacity(taken) {
			return nil, apperror.Conflict(msgEventFull, http.StatusForbidden)
		}
	}

	order, err := s.Gateway.CreateOrder(ctx, payments.OrderRequest{
		Amount:  ev.FeeMinorUnits(),
		Receipt: s.receipt(eventID, userID),
		Notes: map[string]string{
			"event_id": eventID.String(),
			"user_id":  userID.String(),
		},
	})
	if err != nil {
		s.Logger.Error("create payment order failed",
			zap.String("event_id", eventID.String()), zap.String("user_id", userID.String()), zap.Error(err))
		return nil, apperror.Downstream(msgOrderFailed, err)
	}
	s.Logger.Info("payment order created",
		zap.String("event_id", eventID.String()), zap.String("user_id", userID.String()),
		zap.String("order_id", order.ID), zap.Int64("amount", order.Amount))
	return order, nil
}

// receipt is the gateway's merchant reference; at most 40 characters.
func (s *Service) receipt(eventID, userID uuid.UUID) string {
	return "evt_" + eventID.String()[:8] + "_" + userID.String()[:8] + "_" + fmt.Sprint(s.now().Unix())
}

// wellFormedCode reports whether code can be a registration code. Codes are always UUIDs;
// anything else is treated as unknown without reaching the store.
func wellFormedCode(code string) bool {
	_, err := uuid.Parse(code)
	return err == nil
}

// VerifyPaymentAndRegister validates the payment proof and, only if it holds, commits the registration
// and returns its entry pass.
//
// A paid retry carrying the payment id already recorded for this user's registration returns the
// existing pass instead of failing, so a client that lost the first response can recover it.
// ErrPassGeneration is returned together with a Pass carrying only RegCode when rendering fails after commit.
func (s *Service) VerifyPaymentAndRegister(ctx context.Context, eventID uuid.UUID, who Registrant, proof PaymentProof) (*Pass, error) {
	ev, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	paymentID, err := s.checkProof(ev, who.UserID, proof)
	if err != nil {
		return nil, err
	}

	if paymentID != models.FreePaymentMarker {
		if pass, err := s.replay(ctx, eventID, who.UserID, paymentID); pass != nil || err != nil {
			return pass, err
		}
	}

	reg := &models.Registration{
		EventID:     eventID,
		UserID:      who.UserID,
		StudentName: strings.TrimSpace(who.StudentName),
		RegisterNo:  strings.TrimSpace(who.RegisterNo),
		Department:  strings.TrimSpace(who.Department),
		RegCode:     uuid.NewString(),
		PaymentID:   paymentID,
	}
	result, err := s.Store.Commit(ctx, reg)
	if err != nil {
		metrics.Registrations.WithLabelValues("error").Inc()
		s.Logger.Error("commit registration failed", zap.String("event_id", eventID.String()), zap.Error(err))
		return nil, apperror.Internal("failed to register", err)
	}
	metrics.Registrations.WithLabelValues(result.String()).Inc()

	switch result {
	case CommitOK:
	case CommitEventNotFound:
		return nil, apperror.NotFound(msgEventNotFound)
	case CommitAlreadyRegistered:
		if paymentID != models.FreePaymentMarker {
			// a concurrent retry of the same payment may have committed first
			if pass, err := s.replay(ctx, eventID, who.UserID, paymentID); pass != nil || err != nil {
				return pass, err
			}
			s.warnPaidNotRegistered(ev, who.UserID, proof, result)
		}
		return nil, apperror.Conflict(msgAlreadyRegistered, 0)
	case CommitEventFull:
		if paymentID != models.FreePaymentMarker {
			s.warnPaidNotRegistered(ev, who.UserID, proof, result)
		}
		return nil, apperror.Conflict(msgEventFull, http.StatusForbidden)
	case CommitPaymentReused:
		s.integrityFailure(ev, who.UserID, proof, "payment_reused")
		return nil, apperror.Integrity(msgPaymentReused)
	}

	s.Logger.Info("registration committed",
		zap.String("event_id", eventID.String()), zap.String("user_id", who.UserID.String()),
		zap.String("registration_id", reg.ID.String()), zap.Bool("paid", paymentID != models.FreePaymentMarker))
	s.afterCommit(ctx, ev, reg, who)

	qr, err := s.Passes.Render(reg.RegCode)
	if err != nil {
		s.Logger.Error("render entry pass failed", zap.String("registration_id", reg.ID.String()), zap.Error(err))
		return &Pass{RegCode: reg.RegCode}, ErrPassGeneration
	}
	return &Pass{RegCode: reg.RegCode, QRImage: qr}, nil
}

// checkProof validates the proof against the event and returns the payment id to record.
func (s *Service) checkProof(ev *models.Event, userID uuid.UUID, proof PaymentProof) (string, error) {
	want := ev.FeeMinorUnits()
	if proof.Signature == payments.FreeSignature {
		if !ev.IsFree() {
			s.integrityFailure(ev, userID, proof, "free_signature_on_paid_event")
			return "", apperror.Integrity(msgInvalidSignature)
		}
		if proof.Amount != nil && *proof.Amount != 0 {
			s.integrityFailure(ev, userID, proof, "amount_mismatch")
			return "", apperror.Integrity(msgAmountMismatch)
		}
		return models.FreePaymentMarker, nil
	}
	if ev.IsFree() {
		return "", apperror.Validation(msgFreeEvent)
	}
	if !s.Verifier.Verify(proof.OrderID, proof.PaymentID, proof.Signature) {
		s.integrityFailure(ev, userID, proof, "signature_mismatch")
		return "", apperror.Integrity(msgInvalidSignature)
	}
	if proof.Amount == nil || *proof.Amount != want {
		s.integrityFailure(ev, userID, proof, "amount_mismatch")
		return "", apperror.Integrity(msgAmountMismatch)
	}
	return proof.PaymentID, nil
}

// replay returns the existing pass when the user's registration was made with paymentID.
// It returns nil, nil when there is no registration to replay.
func (s *Service) replay(ctx context.Context, eventID, userID uuid.UUID, paymentID string) (*Pass, error) {
	existing, err := s.Store.FindByEventAndUser(ctx, eventID, userID)
	if err != nil {
		return nil, apperror.Internal("failed to check registration", err)
	}
	if existing == nil {
		return nil, nil
	}
	if existing.PaymentID != paymentID {
		return nil, apperror.Conflict(msgAlreadyRegistered, 0)
	}
	metrics.Registrations.WithLabelValues("replayed").Inc()
	s.Logger.Info("registration replayed", zap.String("registration_id", existing.ID.String()))
	qr, err := s.Passes.Render(existing.RegCode)
	if err != nil {
		s.Logger.Error("render entry pass failed", zap.String("registration_id", existing.ID.String()), zap.Error(err))
		return &Pass{RegCode: existing.RegCode, Replayed: true}, ErrPassGeneration
	}
	return &Pass{RegCode: existing.RegCode, QRImage: qr, Replayed: true}, nil
}

func (s *Service) integrityFailure(ev *models.Event, userID uuid.UUID, proof PaymentProof, reason string) {
	metrics.PaymentIntegrityFailures.WithLabelValues(reason).Inc()
	s.Logger.Warn("payment integrity check failed: possible tampering",
		zap.String("event_id", ev.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("order_id", proof.OrderID),
		zap.String("payment_id", proof.PaymentID),
		zap.String("reason", reason),
	)
}

// warnPaidNotRegistered flags a captured payment that did not produce a registration.
// These are not refunded automatically.
func (s *Service) warnPaidNotRegistered(ev *models.Event, userID uuid.UUID, proof PaymentProof, result CommitResult) {
	s.Logger.Warn("payment captured but registration refused",
		zap.String("event_id", ev.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("order_id", proof.OrderID),
		zap.String("payment_id", proof.PaymentID),
		zap.String("result", result.String()),
	)
}

// afterCommit runs best-effort side effects of a new registration.
func (s *Service) afterCommit(ctx context.Context, ev *models.Event, reg *models.Registration, who Registrant) {
	if s.Catalog != nil {
		if err := s.Catalog.Invalidate(ctx); err != nil {
			s.Logger.Warn("catalog cache invalidation failed", zap.Error(err))
		}
	}
	if s.Notifier == nil || who.Email == "" {
		return
	}
	body := fmt.Sprintf("Hi %s,\n\nYou are registered for %s on %s, %s to %s at %s.\n"+
		"Registration code: %s\n\nShow your entry pass QR code at the gate.\n",
		reg.StudentName, ev.Name, ev.EventDate, ev.StartTime, ev.EndTime, ev.Venue, reg.RegCode)
	err := s.Notifier.EnqueueEmail(ctx, queue.EmailPayload{
		EmailType:      models.EmailTypeRegistrationConfirmation,
		EventID:        ev.ID,
		RegistrationID: reg.ID,
		RecipientEmail: who.Email,
		RecipientName:  reg.StudentName,
		Subject:        "Registration confirmed: " + ev.Name,
		Body:           body,
	})
	if err != nil {
		s.Logger.Warn("enqueue confirmation email failed", zap.String("registration_id", reg.ID.String()), zap.Error(err))
	}
}

// RegeneratePass renders the entry pass again for a registration the user owns.
func (s *Service) RegeneratePass(ctx context.Context, code string, userID uuid.UUID) (*Pass, error) {
	if !wellFormedCode(code) {
		return nil, apperror.NotFound("Registration not found")
	}
	reg, err := s.Store.GetByCode(ctx, code)
	if err != nil {
		return nil, apperror.Internal("failed to load registration", err)
	}
	if reg == nil || reg.UserID != userID {
		return nil, apperror.NotFound("Registration not found")
	}
	qr, err := s.Passes.Render(reg.RegCode)
	if err != nil {
		return nil, apperror.Downstream("Cannot generate pass", err)
	}
	return &Pass{RegCode: reg.RegCode, QRImage: qr}, nil
}

// VerifyAttendance marks the registration with code as attended. A repeated scan reports
// VerifyAlreadyVerified and leaves verified_at unchanged. Unknown and malformed codes are
// both reported as NotFound.
func (s *Service) VerifyAttendance(ctx context.Context, code string) (VerifyResult, *models.Registration, error) {
	code = strings.TrimSpace(code)
	if !wellFormedCode(code) {
		metrics.AttendanceScans.WithLabelValues(VerifyNotFound.String()).Inc()
		return VerifyNotFound, nil, apperror.NotFound(msgInvalidCode)
	}
	result, reg, err := s.Store.MarkVerified(ctx, code, s.now().UTC())
	if err != nil {
		s.Logger.Error("verify attendance failed", zap.Error(err))
		return VerifyNotFound, nil, apperror.Internal("failed to verify", err)
	}
	metrics.AttendanceScans.WithLabelValues(result.String()).Inc()
	switch result {
	case VerifyNotFound:
		return result, nil, apperror.NotFound(msgInvalidCode)
	case VerifyOK:
		s.Logger.Info("attendance verified", zap.String("registration_id", reg.ID.String()), zap.String("event_id", reg.EventID.String()))
		if s.Checkins != nil {
			s.Checkins.PublishToEvent(reg.EventID, "checkin", CheckinEvent{
				EventID:     reg.EventID,
				StudentName: reg.StudentName,
				RegisterNo:  reg.RegisterNo,
				Department:  reg.Department,
				VerifiedAt:  *reg.VerifiedAt,
			})
		}
	}
	return result, reg, nil
}

// IssueCertificate renders the one-time certificate for a verified registration.
func (s *Service) IssueCertificate(ctx context.Context, code string) ([]byte, *CertificateSubject, error) {
	code = strings.TrimSpace(code)
	if !wellFormedCode(code) {
		return nil, nil, apperror.NotFound("Unknown registration code")
	}
	render := func(subj CertificateSubject) ([]byte, error) {
		return s.Certificates.Render(passes.Certificate{
			ParticipantName: subj.Registration.StudentName,
			RegisterNo:      subj.Registration.RegisterNo,
			Department:      subj.Registration.Department,
			EventName:       subj.EventName,
			EventDate:       subj.EventDate,
			Venue:           subj.Venue,
			Code:            subj.Registration.RegCode,
			IssuedAt:        *subj.Registration.CertificateIssuedAt,
		})
	}
	result, doc, subj, err := s.Store.IssueCertificate(ctx, code, s.now().UTC(), render)
	if err != nil {
		s.Logger.Error("issue certificate failed", zap.Error(err))
		return nil, nil, apperror.Downstream("Cannot generate certificate", err)
	}
	switch result {
	case IssueNotFound:
		return nil, nil, apperror.NotFound("Unknown registration code")
	case IssueNotVerified:
		return nil, nil, apperror.Conflict(msgNotVerified, http.StatusForbidden)
	case IssueAlreadyIssued:
		return nil, nil, apperror.Conflict(msgAlreadyIssued, http.StatusForbidden)
	}

	metrics.CertificatesIssued.Inc()
	s.Logger.Info("certificate issued", zap.String("registration_id", subj.Registration.ID.String()))
	if s.Notifier != nil && subj.UserEmail != "" {
		err := s.Notifier.EnqueueEmail(ctx, queue.EmailPayload{
			EmailType:      models.EmailTypeCertificateIssued,
			EventID:        subj.Registration.EventID,
			RegistrationID: subj.Registration.ID,
			RecipientEmail: subj.UserEmail,
			RecipientName:  subj.Registration.StudentName,
			Subject:        "Your certificate for " + subj.EventName,
			Body: fmt.Sprintf("Hi %s,\n\nThank you for attending %s. Your certificate has been issued.\n",
				subj.Registration.StudentName, subj.EventName),
		})
		if err != nil {
			s.Logger.Warn("enqueue certificate email failed", zap.Error(err))
		}
	}
	return doc, subj, nil
}

// ListForStudent returns the caller's registrations.
func (s *Service) ListForStudent(ctx context.Context, userID uuid.UUID) ([]models.StudentRegistration, error) {
	list, err := s.Store.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperror.Internal("failed to list registrations", err)
	}
	return list, nil
}

// ListForEvent returns an event's registrations for its organizer.
func (s *Service) ListForEvent(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error) {
	list, err := s.Store.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, apperror.Internal("failed to list registrations", err)
	}
	return list, nil
}
