package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"gorm.io/gorm"

	"ticketline/internal/helpers"
	"ticketline/internal/models"
	"ticketline/internal/services"
	"ticketline/monitoring"
)

type PurchaseRequest struct {
	EventID         uuid.UUID `json:"event_id" binding:"required"`
	Quantity        int       `json:"quantity" binding:"required"`
	PaymentMethod   string    `json:"payment_method"`
	PaymentLastFour string    `json:"payment_last_four"`
}

type ticketResponse struct {
	models.Ticket
	TotalPrice decimal.Decimal `json:"total_price"`
}

func newTicketResponse(ticket models.Ticket) ticketResponse {
	return ticketResponse{Ticket: ticket, TotalPrice: ticket.TotalPrice()}
}

func PurchaseTicket(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	userID, svc, ok := reservationContext(c)
	if !ok {
		return
	}

	started := time.Now()
	ticket, err := svc.Purchase(c.Request.Context(), services.PurchaseInput{
		EventID:         req.EventID,
		UserID:          userID,
		Quantity:        req.Quantity,
		PaymentMethod:   req.PaymentMethod,
		PaymentLastFour: req.PaymentLastFour,
	})
	monitoring.ObservePurchase(err, time.Since(started))
	if err != nil {
		respondReservationError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newTicketResponse(*ticket))
}

type CancelRequest struct {
	RefundAmount *decimal.Decimal `json:"refund_amount"`
}

func CancelTicket(c *gin.Context) {
	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid ticket ID.")
		return
	}

	// Body is optional; only admins may carry a refund override.
	var req CancelRequest
	_ = c.ShouldBindJSON(&req)

	userID, svc, ok := reservationContext(c)
	if !ok {
		return
	}

	role, _ := c.Get("role")
	result, err := svc.Cancel(c.Request.Context(), services.CancelInput{
		TicketID:       ticketID,
		UserID:         userID,
		IsAdmin:        role == models.RoleAdmin,
		RefundOverride: req.RefundAmount,
	})
	monitoring.ObserveCancellation(err)
	if err != nil {
		respondReservationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Ticket cancelled successfully.",
		"refund_amount": result.RefundAmount,
	})
}

func ListTickets(c *gin.Context) {
	userID, svc, ok := reservationContext(c)
	if !ok {
		return
	}

	tickets, err := svc.ListTickets(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving tickets.")
		return
	}

	c.JSON(http.StatusOK, ticketResponses(tickets))
}

func GetTicket(c *gin.Context) {
	ticket, ok := loadTicket(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newTicketResponse(*ticket))
}

func UpcomingTickets(c *gin.Context) {
	userID, svc, ok := reservationContext(c)
	if !ok {
		return
	}

	tickets, err := svc.Upcoming(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving tickets.")
		return
	}

	c.JSON(http.StatusOK, ticketResponses(tickets))
}

func TicketStats(c *gin.Context) {
	userID, svc, ok := reservationContext(c)
	if !ok {
		return
	}

	stats, err := svc.Stats(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error computing ticket stats.")
		return
	}

	c.JSON(http.StatusOK, stats)
}

// TicketQR renders the ticket's stored QR payload as a PNG.
func TicketQR(c *gin.Context) {
	ticket, ok := loadTicket(c)
	if !ok {
		return
	}

	payload := ticket.QRPayload
	if payload == "" {
		regenerated, err := services.BuildQRPayload(ticket, ticket.Event)
		if err != nil {
			helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to build QR payload.")
			return
		}
		payload = regenerated
	}

	qrImage, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate QR code.")
		return
	}

	c.Data(http.StatusOK, "image/png", qrImage)
}

func loadTicket(c *gin.Context) (*models.Ticket, bool) {
	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid ticket ID.")
		return nil, false
	}

	userID, svc, ok := reservationContext(c)
	if !ok {
		return nil, false
	}

	role, _ := c.Get("role")
	ticket, err := svc.GetTicket(c.Request.Context(), ticketID, userID, role == models.RoleAdmin)
	if err != nil {
		respondReservationError(c, err)
		return nil, false
	}
	return ticket, true
}

func reservationContext(c *gin.Context) (uuid.UUID, *services.ReservationService, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return uuid.Nil, nil, false
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return uuid.Nil, nil, false
	}

	return userID.(uuid.UUID), services.NewReservationService(db.(*gorm.DB)), true
}

func ticketResponses(tickets []models.Ticket) []ticketResponse {
	responses := make([]ticketResponse, 0, len(tickets))
	for _, ticket := range tickets {
		responses = append(responses, newTicketResponse(ticket))
	}
	return responses
}

func respondReservationError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "Something went wrong. Please try again."

	switch {
	case errors.Is(err, services.ErrEventNotFound),
		errors.Is(err, services.ErrTicketNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, services.ErrNotTicketOwner):
		status = http.StatusForbidden
		message = err.Error()
	case errors.Is(err, services.ErrQuantityOutOfRange),
		errors.Is(err, services.ErrEventInactive),
		errors.Is(err, services.ErrInsufficientInventory),
		errors.Is(err, services.ErrAlreadyCancelled),
		errors.Is(err, services.ErrInvalidTicketState),
		errors.Is(err, services.ErrCancellationWindowClosed):
		status = http.StatusBadRequest
		message = err.Error()
	}

	helpers.RespondWithError(c, status, message)
}
