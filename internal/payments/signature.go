package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// FreeSignature is the reserved signature a client sends to register for a zero-fee event.
const FreeSignature = "FREE"

// Verifier checks gateway payment signatures.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the gateway's shared key secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign returns the lowercase hex HMAC-SHA256 of "orderID|paymentID".
func (v *Verifier) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the exact signature for the order and payment.
// It fails closed when no secret is configured or any identifier is empty.
func (v *Verifier) Verify(orderID, paymentID, signature string) bool {
	if len(v.secret) == 0 || orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(v.Sign(orderID, paymentID)), []byte(signature))
}
