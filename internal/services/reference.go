package services

import (
	"crypto/rand"
	"encoding/json"
	"time"

	"ticketline/internal/models"
)

const (
	referencePrefix   = "TKT-"
	referenceLength   = 8
	referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateReferenceNumber draws a TKT-XXXXXXXX candidate from an
// unpredictable random source. Bytes outside the largest multiple of
// the alphabet size are rejected so every character is equally likely.
// Uniqueness is enforced by the database constraint; callers retry on
// a duplicate-key insert.
func GenerateReferenceNumber() (string, error) {
	// 252 for the 36-character alphabet.
	limit := byte(len(referenceAlphabet) * (256 / len(referenceAlphabet)))

	code := make([]byte, 0, referenceLength)
	buf := make([]byte, referenceLength)
	for len(code) < referenceLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			code = append(code, referenceAlphabet[int(b)%len(referenceAlphabet)])
			if len(code) == referenceLength {
				break
			}
		}
	}
	return referencePrefix + string(code), nil
}

// QRPayload is the snapshot of ticket, event and buyer facts encoded
// into the ticket's QR code and scanned at venue entry.
type QRPayload struct {
	TicketID        string `json:"ticket_id"`
	ReferenceNumber string `json:"reference_number"`
	EventID         string `json:"event_id"`
	EventTitle      string `json:"event_title"`
	EventDate       string `json:"event_date"`
	EventTime       string `json:"event_time"`
	UserID          string `json:"user_id"`
	Quantity        int    `json:"quantity"`
	TotalPrice      string `json:"total_price"`
	PurchaseDate    string `json:"purchase_date"`
	Status          string `json:"status"`
	Verified        bool   `json:"verified"`
}

// BuildQRPayload serializes the current ticket and event facts. It is a
// pure snapshot: regenerating after a field change reflects the latest
// values. The event may be nil when it has been removed.
func BuildQRPayload(ticket *models.Ticket, event *models.Event) (string, error) {
	payload := QRPayload{
		TicketID:        ticket.ID.String(),
		ReferenceNumber: ticket.ReferenceNumber,
		UserID:          ticket.UserID.String(),
		Quantity:        ticket.Quantity,
		TotalPrice:      ticket.TotalPrice().String(),
		Status:          ticket.Status,
		Verified:        false,
	}
	if !ticket.PurchaseDate.IsZero() {
		payload.PurchaseDate = ticket.PurchaseDate.Format(time.RFC3339)
	}
	if event != nil {
		payload.EventID = event.ID.String()
		payload.EventTitle = event.Title
		payload.EventDate = event.FormattedDate()
		payload.EventTime = event.FormattedTime()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
