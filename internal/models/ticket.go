package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	TicketPending   = "pending"
	TicketConfirmed = "confirmed"
	TicketCancelled = "cancelled"
)

const (
	PaymentCreditCard   = "credit_card"
	PaymentDebitCard    = "debit_card"
	PaymentPaypal       = "paypal"
	PaymentBankTransfer = "bank_transfer"
)

type Ticket struct {
	ID    uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Title string    `gorm:"not null;default:'Standard Ticket'" json:"title"`
	// EventID is nullable so tickets survive removal of their event.
	EventID         *uuid.UUID      `gorm:"type:uuid;index:idx_tickets_event_status" json:"event_id"`
	Event           *Event          `gorm:"foreignKey:EventID" json:"event,omitempty"`
	UserID          uuid.UUID       `gorm:"type:uuid;not null;index:idx_tickets_user_status" json:"user_id"`
	User            *User           `gorm:"foreignKey:UserID" json:"-"`
	Price           decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Quantity        int             `gorm:"not null;default:1" json:"quantity"`
	Status          string          `gorm:"not null;default:'pending';index:idx_tickets_user_status;index:idx_tickets_event_status" json:"status"`
	ReferenceNumber string          `gorm:"size:20;not null;uniqueIndex" json:"reference_number"`
	QRPayload       string          `gorm:"type:text" json:"qr_payload"`
	PaymentMethod   string          `gorm:"size:50;default:'credit_card'" json:"payment_method"`
	PaymentLastFour string          `gorm:"size:4" json:"payment_last_four"`
	PurchaseDate    time.Time       `gorm:"not null" json:"purchase_date"`
	CancelledDate   *time.Time      `json:"cancelled_date"`
	RefundAmount    decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"refund_amount"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (ticket *Ticket) BeforeCreate(tx *gorm.DB) (err error) {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	return
}

// TotalPrice is the unit price snapshot times quantity.
func (ticket *Ticket) TotalPrice() decimal.Decimal {
	return ticket.Price.Mul(decimal.NewFromInt(int64(ticket.Quantity)))
}
