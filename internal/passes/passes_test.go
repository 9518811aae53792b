package passes

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRRender(t *testing.T) {
	r := NewQRRenderer("https://events.example.edu/", 200)
	assert.Equal(t, "https://events.example.edu/api/verify/abc-123", r.VerifyURL("abc-123"))

	out, err := r.Render("abc-123")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(out, "data:image/png;base64,"))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
}

func TestQRRenderEmptyCode(t *testing.T) {
	_, err := NewQRRenderer("http://localhost:5001", 0).Render("")
	assert.Error(t, err)
}

func TestCertificateRender(t *testing.T) {
	r := NewCertificateRenderer("Department of Computer Science")
	pdf, err := r.Render(Certificate{
		ParticipantName: "Anjali Nair",
		RegisterNo:      "21CS042",
		Department:      "CSE",
		EventName:       "National Symposium on Distributed Systems",
		EventDate:       "2025-03-14",
		Venue:           "Main Auditorium",
		Code:            "7f1c9a52-2d7e-4c6b-9d0e-1b2f3a4c5d6e",
		IssuedAt:        time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
	assert.Greater(t, len(pdf), 500)
}

func TestFormatEventDate(t *testing.T) {
	assert.Equal(t, "14 March 2025", formatEventDate("2025-03-14"))
	assert.Equal(t, "soon", formatEventDate("soon"))
}
