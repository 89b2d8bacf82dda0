// Package receipt renders booking receipts as PDF documents carrying a
// signed QR payload that front desks can verify offline.
package receipt

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/iliyamo/slot-reservation/internal/model"
)

// Receipt is everything printed on one booking receipt.
type Receipt struct {
	Transaction model.Transaction
	Email       string
	Lines       []model.ReceiptLine
	FundedBy    string
	IssuedAt    time.Time
}

// Signer produces and checks the QR payload
// "transactionID|userID|reservationIDs|issuedAt|signature".
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer { return &Signer{secret: []byte(secret)} }

func (s *Signer) sign(data string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Payload returns the signed QR content for r.
func (s *Signer) Payload(r Receipt) string {
	ids := make([]string, len(r.Lines))
	for i, l := range r.Lines {
		ids[i] = fmt.Sprint(l.ReservationID)
	}
	data := fmt.Sprintf("%d|%d|%s|%d", r.Transaction.ID, r.Transaction.UserID, strings.Join(ids, ","), r.IssuedAt.Unix())
	return data + "|" + s.sign(data)
}

// Verify reports whether payload was produced by this signer.
func (s *Signer) Verify(payload string) bool {
	i := strings.LastIndex(payload, "|")
	if i < 0 {
		return false
	}
	return hmac.Equal([]byte(payload[i+1:]), []byte(s.sign(payload[:i])))
}

// Render builds the PDF.
func Render(r Receipt, s *Signer) ([]byte, error) {
	qrPNG, err := qrcode.Encode(s.Payload(r), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Booking receipt #%d", r.Transaction.ID), false)
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "Booking receipt")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 8, fmt.Sprintf("Transaction: #%d", r.Transaction.ID))
	pdf.Ln(7)
	if r.Email != "" {
		pdf.Cell(0, 8, "Customer: "+r.Email)
		pdf.Ln(7)
	}
	pdf.Cell(0, 8, "Settled: "+r.Transaction.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	pdf.Ln(7)
	pdf.Cell(0, 8, "Paid with: "+r.FundedBy)
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(30, 8, "Date", "B", 0, "", false, 0, "")
	pdf.CellFormat(30, 8, "Time", "B", 0, "", false, 0, "")
	pdf.CellFormat(80, 8, "Service", "B", 0, "", false, 0, "")
	pdf.CellFormat(25, 8, "Price", "B", 1, "R", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	var total int64
	for _, l := range r.Lines {
		total += l.PriceCents
		pdf.CellFormat(30, 8, l.Date.Format("2006-01-02"), "", 0, "", false, 0, "")
		pdf.CellFormat(30, 8, l.Window.String(), "", 0, "", false, 0, "")
		pdf.CellFormat(80, 8, l.ServiceTitle, "", 0, "", false, 0, "")
		pdf.CellFormat(25, 8, model.FormatCents(l.PriceCents), "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(140, 8, "Total", "T", 0, "", false, 0, "")
	pdf.CellFormat(25, 8, model.FormatCents(total), "T", 1, "R", false, 0, "")

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 150, 20, 40, 40, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
