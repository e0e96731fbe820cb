package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	CategoryMusic      = "music"
	CategorySports     = "sports"
	CategoryConference = "conference"
	CategoryArt        = "art"
	CategoryFood       = "food"
	CategoryTech       = "tech"
	CategoryOther      = "other"
)

var eventCategories = map[string]bool{
	CategoryMusic:      true,
	CategorySports:     true,
	CategoryConference: true,
	CategoryArt:        true,
	CategoryFood:       true,
	CategoryTech:       true,
	CategoryOther:      true,
}

func ValidCategory(category string) bool {
	return eventCategories[category]
}

type Event struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Title       string    `gorm:"not null" json:"title"`
	Description string    `json:"description"`
	Category    string    `gorm:"not null;default:'music'" json:"category"`
	Location    string    `gorm:"not null" json:"location"`
	Venue       string    `json:"venue"`
	// Date holds the calendar day of the event; Time is the local
	// start time in "15:04" form. They are combined by StartsAt.
	Date           time.Time       `gorm:"type:date;not null" json:"date"`
	Time           string          `gorm:"not null;default:'18:00'" json:"time"`
	Price          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	TotalSeats     int             `gorm:"not null" json:"total_seats"`
	AvailableSeats int             `gorm:"not null" json:"available_seats"`
	IsActive       bool            `gorm:"not null;default:true" json:"is_active"`
	IsFeatured     bool            `gorm:"not null;default:false" json:"is_featured"`
	OrganizerID    *uuid.UUID      `gorm:"type:uuid" json:"organizer_id"`
	Organizer      *User           `gorm:"foreignKey:OrganizerID" json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (event *Event) BeforeCreate(tx *gorm.DB) (err error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return
}

// StartsAt combines the event's date and start time in server-local time.
// An unparsable time falls back to midnight.
func (event *Event) StartsAt() time.Time {
	clock, err := time.Parse("15:04", event.Time)
	if err != nil {
		clock = time.Time{}
	}
	return time.Date(
		event.Date.Year(), event.Date.Month(), event.Date.Day(),
		clock.Hour(), clock.Minute(), 0, 0, time.Local,
	)
}

func (event *Event) IsSoldOut() bool {
	return event.AvailableSeats == 0
}

func (event *Event) IsUpcoming() bool {
	today := time.Now()
	startOfToday := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.Local)
	return !event.StartsAt().Before(startOfToday)
}

func (event *Event) FormattedDate() string {
	if event.Date.IsZero() {
		return ""
	}
	return event.Date.Format("02.01.2006")
}

func (event *Event) FormattedTime() string {
	return event.Time
}
