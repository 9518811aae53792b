// Package payments bridges the Razorpay gateway: order creation and payment signature checks.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"go.uber.org/zap"
)

// ErrGatewayNotConfigured is returned when no gateway keys are set.
var ErrGatewayNotConfigured = errors.New("payment gateway not configured")

// Order is a gateway order awaiting payment.
type Order struct {
	ID       string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId,omitempty"`
}

// OrderRequest describes the order to create. Amount is in minor currency units.
type OrderRequest struct {
	Amount  int64
	Receipt string
	Notes   map[string]string
}

// Gateway creates payment orders.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
}

// orderCreator is the subset of the razorpay SDK used here.
type orderCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Razorpay implements Gateway with the razorpay-go SDK.
type Razorpay struct {
	orders   orderCreator
	keyID    string
	currency string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewRazorpay creates a gateway client. Empty keys yield a gateway that always fails.
func NewRazorpay(keyID, keySecret, currency string, timeout time.Duration, logger *zap.Logger) *Razorpay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	r := &Razorpay{keyID: keyID, currency: currency, timeout: timeout, logger: logger}
	if keyID != "" && keySecret != "" {
		r.orders = razorpay.NewClient(keyID, keySecret).Order
	} else {
		logger.Warn("razorpay keys not set; paid registrations are disabled")
	}
	return r
}

// CreateOrder creates a gateway order. The SDK call has no context support, so it runs
// in its own goroutine and the caller stops waiting at the configured timeout.
func (r *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if r.orders == nil {
		return nil, ErrGatewayNotConfigured
	}
	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": r.currency,
		"receipt":  req.Receipt,
		"notes":    notes,
	}

	type result struct {
		body map[string]interface{}
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := r.orders.Create(data, nil)
		done <- result{body: body, err: err}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("create order: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("create order: %w", res.err)
		}
		return r.parseOrder(res.body)
	}
}

func (r *Razorpay) parseOrder(body map[string]interface{}) (*Order, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return nil, errors.New("create order: response has no id")
	}
	order := &Order{ID: id, Currency: r.currency, KeyID: r.keyID}
	switch amt := body["amount"].(type) {
	case float64:
		order.Amount = int64(amt)
	case int64:
		order.Amount = amt
	case int:
		order.Amount = int64(amt)
	}
	if cur, ok := body["currency"].(string); ok && cur != "" {
		order.Currency = cur
	}
	return order, nil
}
