package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"ticketline/internal/models"
)

const (
	// MinQuantity and MaxQuantity bound a single purchase.
	MinQuantity = 1
	MaxQuantity = 10

	// CancellationWindow is how long before the event start a
	// confirmed ticket may still be cancelled.
	CancellationWindow = 24 * time.Hour

	maxReferenceAttempts = 5
)

// ReservationService mediates every seat-count mutation. All writes to
// Event.available_seats go through Purchase and Cancel, each a single
// database transaction, so concurrent requests can never oversell an
// event or double-restore seats.
type ReservationService struct {
	db *gorm.DB
	// generateRef produces reference candidates; tests swap it in to
	// exercise the collision retry.
	generateRef func() (string, error)
}

func NewReservationService(db *gorm.DB) *ReservationService {
	return &ReservationService{db: db, generateRef: GenerateReferenceNumber}
}

type PurchaseInput struct {
	EventID         uuid.UUID
	UserID          uuid.UUID
	Quantity        int
	PaymentMethod   string
	PaymentLastFour string
}

// Purchase atomically claims seats on the event and creates a confirmed
// ticket with a unique reference number and QR payload. Either both the
// seat decrement and the ticket insert are committed, or neither is.
func (s *ReservationService) Purchase(ctx context.Context, input PurchaseInput) (*models.Ticket, error) {
	if input.Quantity < MinQuantity || input.Quantity > MaxQuantity {
		return nil, ErrQuantityOutOfRange
	}

	var ticket *models.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event models.Event
		if err := tx.First(&event, "id = ?", input.EventID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return err
		}
		if !event.IsActive {
			return ErrEventInactive
		}

		// Conditional decrement. The seat and active guards are
		// evaluated by the database under the row lock of the UPDATE
		// itself, so two concurrent purchases cannot both pass with
		// combined quantity exceeding availability, and a purchase
		// racing a deactivation cannot claim seats.
		claim := tx.Model(&models.Event{}).
			Where("id = ? AND is_active = ? AND available_seats >= ?", event.ID, true, input.Quantity).
			UpdateColumn("available_seats", gorm.Expr("available_seats - ?", input.Quantity))
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			// Re-read to tell a concurrent deactivation apart from a
			// genuine seat shortage.
			if err := tx.First(&event, "id = ?", event.ID).Error; err != nil {
				return err
			}
			if !event.IsActive {
				return ErrEventInactive
			}
			return ErrInsufficientInventory
		}
		event.AvailableSeats -= input.Quantity

		method := input.PaymentMethod
		if method == "" {
			method = models.PaymentCreditCard
		}

		t := &models.Ticket{
			ID:              uuid.New(),
			Title:           fmt.Sprintf("%s Ticket", event.Title),
			EventID:         &event.ID,
			UserID:          input.UserID,
			Price:           event.Price,
			Quantity:        input.Quantity,
			Status:          models.TicketConfirmed,
			PaymentMethod:   method,
			PaymentLastFour: input.PaymentLastFour,
			PurchaseDate:    time.Now(),
		}

		if err := s.insertWithUniqueReference(tx, t, &event); err != nil {
			return err
		}

		ticket = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// insertWithUniqueReference generates a reference candidate and attempts
// the insert, retrying on a uniqueness collision. Each attempt runs in a
// savepoint so a duplicate-key failure does not poison the enclosing
// transaction.
func (s *ReservationService) insertWithUniqueReference(tx *gorm.DB, ticket *models.Ticket, event *models.Event) error {
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		ref, err := s.generateRef()
		if err != nil {
			return err
		}
		ticket.ReferenceNumber = ref

		payload, err := BuildQRPayload(ticket, event)
		if err != nil {
			return err
		}
		ticket.QRPayload = payload

		err = tx.Transaction(func(inner *gorm.DB) error {
			return inner.Create(ticket).Error
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
	}
	return fmt.Errorf("could not generate a unique reference number after %d attempts", maxReferenceAttempts)
}

type CancelInput struct {
	TicketID uuid.UUID
	UserID   uuid.UUID
	// IsAdmin allows cancelling tickets owned by other users and
	// honoring a refund override.
	IsAdmin        bool
	RefundOverride *decimal.Decimal
}

type CancelResult struct {
	Ticket       *models.Ticket
	RefundAmount decimal.Decimal
}

// Cancel atomically restores the ticket's seats to the event and flips
// the ticket to cancelled. Cancellation is allowed only while the event
// starts more than CancellationWindow from now.
func (s *ReservationService) Cancel(ctx context.Context, input CancelInput) (*CancelResult, error) {
	var result *CancelResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ticket models.Ticket
		if err := tx.First(&ticket, "id = ?", input.TicketID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTicketNotFound
			}
			return err
		}
		if ticket.UserID != input.UserID && !input.IsAdmin {
			return ErrNotTicketOwner
		}
		switch ticket.Status {
		case models.TicketCancelled:
			return ErrAlreadyCancelled
		case models.TicketConfirmed:
		default:
			return ErrInvalidTicketState
		}
		// Without an event row there is no start time to check the
		// window against, and no inventory to restore.
		if ticket.EventID == nil {
			return ErrInvalidTicketState
		}

		var event models.Event
		if err := tx.First(&event, "id = ?", *ticket.EventID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidTicketState
			}
			return err
		}
		if time.Until(event.StartsAt()) <= CancellationWindow {
			return ErrCancellationWindowClosed
		}

		refund := ticket.TotalPrice()
		if input.RefundOverride != nil && input.IsAdmin {
			refund = *input.RefundOverride
		}

		// Guarded status flip, mirroring the purchase-side seat claim:
		// only one transaction can move the ticket out of confirmed,
		// so the seat restoration below runs exactly once per ticket.
		now := time.Now()
		flip := tx.Model(&models.Ticket{}).
			Where("id = ? AND status = ?", ticket.ID, models.TicketConfirmed).
			Updates(map[string]interface{}{
				"status":         models.TicketCancelled,
				"cancelled_date": now,
				"refund_amount":  refund,
			})
		if flip.Error != nil {
			return flip.Error
		}
		if flip.RowsAffected == 0 {
			return ErrAlreadyCancelled
		}

		restore := tx.Model(&models.Event{}).
			Where("id = ?", event.ID).
			UpdateColumn("available_seats", gorm.Expr("available_seats + ?", ticket.Quantity))
		if restore.Error != nil {
			return restore.Error
		}

		ticket.Status = models.TicketCancelled
		ticket.CancelledDate = &now
		ticket.RefundAmount = refund
		result = &CancelResult{Ticket: &ticket, RefundAmount: refund}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type TicketStats struct {
	TotalTickets    int64           `json:"total_tickets"`
	UpcomingTickets int64           `json:"upcoming_tickets"`
	TotalSpent      decimal.Decimal `json:"total_spent"`
}

// Stats aggregates the caller's tickets from current rows at call time:
// total count, confirmed tickets for future events, and the sum of
// price times quantity over confirmed tickets.
func (s *ReservationService) Stats(ctx context.Context, userID uuid.UUID) (*TicketStats, error) {
	stats := &TicketStats{TotalSpent: decimal.Zero}

	if err := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("user_id = ?", userID).
		Count(&stats.TotalTickets).Error; err != nil {
		return nil, err
	}

	confirmed, err := s.confirmedTickets(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range confirmed {
		ticket := &confirmed[i]
		stats.TotalSpent = stats.TotalSpent.Add(ticket.TotalPrice())
		if ticket.Event != nil && ticket.Event.IsUpcoming() {
			stats.UpcomingTickets++
		}
	}
	return stats, nil
}

// Upcoming lists the caller's confirmed tickets whose event has not
// happened yet, most recent purchase first.
func (s *ReservationService) Upcoming(ctx context.Context, userID uuid.UUID) ([]models.Ticket, error) {
	confirmed, err := s.confirmedTickets(ctx, userID)
	if err != nil {
		return nil, err
	}
	upcoming := make([]models.Ticket, 0, len(confirmed))
	for _, ticket := range confirmed {
		if ticket.Event != nil && ticket.Event.IsUpcoming() {
			upcoming = append(upcoming, ticket)
		}
	}
	return upcoming, nil
}

// ListTickets returns all of the user's tickets, most recent first.
func (s *ReservationService) ListTickets(ctx context.Context, userID uuid.UUID) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.db.WithContext(ctx).
		Preload("Event").
		Where("user_id = ?", userID).
		Order("purchase_date DESC").
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// GetTicket returns a single ticket. Non-admin callers may only read
// their own tickets.
func (s *ReservationService) GetTicket(ctx context.Context, ticketID, userID uuid.UUID, isAdmin bool) (*models.Ticket, error) {
	var ticket models.Ticket
	err := s.db.WithContext(ctx).
		Preload("Event").
		First(&ticket, "id = ?", ticketID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	if ticket.UserID != userID && !isAdmin {
		return nil, ErrNotTicketOwner
	}
	return &ticket, nil
}

func (s *ReservationService) confirmedTickets(ctx context.Context, userID uuid.UUID) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.db.WithContext(ctx).
		Preload("Event").
		Where("user_id = ? AND status = ?", userID, models.TicketConfirmed).
		Order("purchase_date DESC").
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}
