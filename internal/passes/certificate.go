package passes

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
)

// Certificate is the content printed on an attendance certificate.
type Certificate struct {
	ParticipantName string
	RegisterNo      string
	Department      string
	EventName       string
	EventDate       string // YYYY-MM-DD
	Venue           string
	Code            string
	IssuedAt        time.Time
}

// CertificateRenderer renders certificates as single-page landscape A4 PDFs.
type CertificateRenderer struct {
	issuer string
}

// NewCertificateRenderer creates a renderer signing certificates as issuer.
func NewCertificateRenderer(issuer string) *CertificateRenderer {
	return &CertificateRenderer{issuer: issuer}
}

// Render returns the PDF bytes.
func (r *CertificateRenderer) Render(cert Certificate) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Certificate of Participation", true)
	pdf.SetAuthor(r.issuer, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	w, h := pdf.GetPageSize()
	pdf.SetDrawColor(32, 64, 128)
	pdf.SetLineWidth(2)
	pdf.Rect(10, 10, w-20, h-20, "D")
	pdf.SetLineWidth(0.5)
	pdf.Rect(14, 14, w-28, h-28, "D")

	pdf.SetTextColor(32, 64, 128)
	pdf.SetFont("Helvetica", "B", 30)
	pdf.SetXY(0, 38)
	pdf.CellFormat(w, 14, "Certificate of Participation", "", 1, "C", false, 0, "")

	pdf.SetTextColor(60, 60, 60)
	pdf.SetFont("Helvetica", "", 14)
	pdf.SetXY(0, 66)
	pdf.CellFormat(w, 8, "This is to certify that", "", 1, "C", false, 0, "")

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Times", "BI", 28)
	pdf.SetXY(0, 80)
	pdf.CellFormat(w, 14, tr(cert.ParticipantName), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	pdf.SetTextColor(60, 60, 60)
	details := cert.RegisterNo
	if cert.Department != "" {
		details += ", " + cert.Department
	}
	pdf.SetXY(0, 96)
	pdf.CellFormat(w, 7, tr(details), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 14)
	pdf.SetXY(0, 112)
	pdf.CellFormat(w, 8, "has attended", "", 1, "C", false, 0, "")

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetXY(20, 124)
	pdf.MultiCell(w-40, 10, tr(cert.EventName), "", "C", false)

	pdf.SetFont("Helvetica", "", 13)
	pdf.SetTextColor(60, 60, 60)
	held := "held on " + formatEventDate(cert.EventDate)
	if cert.Venue != "" {
		held += " at " + cert.Venue
	}
	pdf.SetX(20)
	pdf.MultiCell(w-40, 8, tr(held), "", "C", false)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetXY(24, h-36)
	pdf.CellFormat(120, 6, tr("Issued by "+r.issuer), "", 0, "L", false, 0, "")
	pdf.SetXY(w-144, h-36)
	pdf.CellFormat(120, 6, "Issued on "+cert.IssuedAt.Format("2 January 2006"), "", 0, "R", false, 0, "")
	pdf.SetXY(24, h-28)
	pdf.SetFont("Courier", "", 8)
	pdf.CellFormat(w-48, 5, "Certificate ID: "+cert.Code, "", 0, "L", false, 0, "")

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write certificate: %w", err)
	}
	return buf.Bytes(), nil
}

func formatEventDate(s string) string {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return s
	}
	return t.Format("2 January 2006")
}
