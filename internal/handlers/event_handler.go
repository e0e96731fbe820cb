package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"ticketline/internal/helpers"
	"ticketline/internal/models"
)

type EventRequest struct {
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Location    string          `json:"location" binding:"required"`
	Venue       string          `json:"venue"`
	Date        string          `json:"date" binding:"required"`
	Time        string          `json:"time"`
	Price       decimal.Decimal `json:"price"`
	TotalSeats  int             `json:"total_seats" binding:"required,min=1"`
	IsFeatured  bool            `json:"is_featured"`
}

type eventResponse struct {
	models.Event
	SeatsLeft     int    `json:"seats_left"`
	FormattedDate string `json:"formatted_date"`
	FormattedTime string `json:"formatted_time"`
	IsSoldOut     bool   `json:"is_sold_out"`
	IsUpcoming    bool   `json:"is_upcoming"`
}

func newEventResponse(event models.Event) eventResponse {
	return eventResponse{
		Event:         event,
		SeatsLeft:     event.AvailableSeats,
		FormattedDate: event.FormattedDate(),
		FormattedTime: event.FormattedTime(),
		IsSoldOut:     event.IsSoldOut(),
		IsUpcoming:    event.IsUpcoming(),
	}
}

func CreateEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	category := req.Category
	if category == "" {
		category = models.CategoryMusic
	}
	if !models.ValidCategory(category) {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid event category.")
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD.")
		return
	}

	startTime := req.Time
	if startTime == "" {
		startTime = "18:00"
	}
	if _, err := time.Parse("15:04", startTime); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid time format. Use HH:MM.")
		return
	}

	if req.Price.IsNegative() {
		helpers.RespondWithError(c, http.StatusBadRequest, "Price cannot be negative.")
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}
	organizerID := userID.(uuid.UUID)

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	event := models.Event{
		Title:       req.Title,
		Description: req.Description,
		Category:    category,
		Location:    req.Location,
		Venue:       req.Venue,
		Date:        date,
		Time:        startTime,
		Price:       req.Price,
		TotalSeats:  req.TotalSeats,
		// New events start fully available.
		AvailableSeats: req.TotalSeats,
		IsActive:       true,
		IsFeatured:     req.IsFeatured,
		OrganizerID:    &organizerID,
	}

	if err := gormDB.Create(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create event.")
		return
	}

	c.JSON(http.StatusCreated, newEventResponse(event))
}

func ListEvents(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	query := gormDB.Model(&models.Event{}).Where("is_active = ?", true)

	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if c.Query("featured") == "true" {
		query = query.Where("is_featured = ?", true)
	}
	if q := c.Query("q"); q != "" {
		pattern := "%" + q + "%"
		query = query.Where("title LIKE ? OR location LIKE ?", pattern, pattern)
	}

	var events []models.Event
	if err := query.Order("date, title").Find(&events).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving events.")
		return
	}

	responses := make([]eventResponse, 0, len(events))
	for _, event := range events {
		if c.Query("upcoming") == "true" && !event.IsUpcoming() {
			continue
		}
		responses = append(responses, newEventResponse(event))
	}

	c.JSON(http.StatusOK, responses)
}

func GetEvent(c *gin.Context) {
	eventID := c.Param("id")

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Where("id = ?", eventID).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving event.")
		return
	}

	c.JSON(http.StatusOK, newEventResponse(event))
}

type UpdateEventRequest struct {
	Title       string           `json:"title"`
	Description *string          `json:"description"`
	Category    string           `json:"category"`
	Location    string           `json:"location"`
	Venue       *string          `json:"venue"`
	Date        string           `json:"date"`
	Time        string           `json:"time"`
	Price       *decimal.Decimal `json:"price"`
	TotalSeats  *int             `json:"total_seats"`
	IsActive    *bool            `json:"is_active"`
	IsFeatured  *bool            `json:"is_featured"`
}

// UpdateEvent edits event metadata. The available seat counter is owned
// by the reservation service and is never written here; editing
// total_seats after sales deliberately leaves available_seats alone.
func UpdateEvent(c *gin.Context) {
	event, gormDB, ok := loadOwnedEvent(c)
	if !ok {
		return
	}

	var req UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	if req.Title != "" {
		event.Title = req.Title
	}
	if req.Description != nil {
		event.Description = *req.Description
	}
	if req.Category != "" {
		if !models.ValidCategory(req.Category) {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid event category.")
			return
		}
		event.Category = req.Category
	}
	if req.Location != "" {
		event.Location = req.Location
	}
	if req.Venue != nil {
		event.Venue = *req.Venue
	}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD.")
			return
		}
		event.Date = date
	}
	if req.Time != "" {
		if _, err := time.Parse("15:04", req.Time); err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid time format. Use HH:MM.")
			return
		}
		event.Time = req.Time
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			helpers.RespondWithError(c, http.StatusBadRequest, "Price cannot be negative.")
			return
		}
		event.Price = *req.Price
	}
	if req.TotalSeats != nil {
		if *req.TotalSeats < 1 {
			helpers.RespondWithError(c, http.StatusBadRequest, "Total seats must be at least 1.")
			return
		}
		event.TotalSeats = *req.TotalSeats
	}
	if req.IsActive != nil {
		event.IsActive = *req.IsActive
	}
	if req.IsFeatured != nil {
		event.IsFeatured = *req.IsFeatured
	}

	if err := gormDB.Save(event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to update event.")
		return
	}

	c.JSON(http.StatusOK, newEventResponse(*event))
}

// DeleteEvent soft-disables the event rather than removing the row, so
// existing tickets keep their event reference.
func DeleteEvent(c *gin.Context) {
	event, gormDB, ok := loadOwnedEvent(c)
	if !ok {
		return
	}

	if err := gormDB.Model(event).Update("is_active", false).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to deactivate event.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Event deactivated successfully."})
}

func loadOwnedEvent(c *gin.Context) (*models.Event, *gorm.DB, bool) {
	eventID := c.Param("id")

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return nil, nil, false
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return nil, nil, false
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Where("id = ?", eventID).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
			return nil, nil, false
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving event.")
		return nil, nil, false
	}

	role, _ := c.Get("role")
	isAdmin := role == models.RoleAdmin
	isOwner := event.OrganizerID != nil && *event.OrganizerID == userID.(uuid.UUID)
	if !isOwner && !isAdmin {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to modify this event.")
		return nil, nil, false
	}

	return &event, gormDB, true
}
