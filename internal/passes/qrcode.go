// Package passes renders the credentials handed to participants: the entry pass QR code
// and the attendance certificate.
package passes

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const dataURLPrefix = "data:image/png;base64,"

// QRRenderer encodes verification links for registration codes as PNG data URLs.
type QRRenderer struct {
	baseURL string
	size    int
}

// NewQRRenderer creates a renderer for links of the form {baseURL}/api/verify/{code}.
func NewQRRenderer(baseURL string, size int) *QRRenderer {
	if size <= 0 {
		size = 256
	}
	return &QRRenderer{baseURL: strings.TrimRight(baseURL, "/"), size: size}
}

// VerifyURL returns the gate verification link for a registration code.
func (r *QRRenderer) VerifyURL(code string) string {
	return r.baseURL + "/api/verify/" + url.PathEscape(code)
}

// Render returns the entry pass for code as a data:image/png;base64 URL.
func (r *QRRenderer) Render(code string) (string, error) {
	if code == "" {
		return "", errors.New("empty registration code")
	}
	png, err := qrcode.Encode(r.VerifyURL(code), qrcode.Medium, r.size)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}
