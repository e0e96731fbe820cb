package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ticketline/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps every goroutine on the same in-memory
	// database and serializes transactions the way row locks would.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Role{}, &models.User{}, &models.Event{}, &models.Ticket{}))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "hashed",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestEvent(t *testing.T, db *gorm.DB, seats int, price string, startsIn time.Duration) *models.Event {
	t.Helper()

	start := time.Now().Add(startsIn)
	event := &models.Event{
		Title:          "Test Event",
		Category:       models.CategoryMusic,
		Location:       "Main Hall",
		Date:           time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.Local),
		Time:           start.Format("15:04"),
		Price:          decimal.RequireFromString(price),
		TotalSeats:     seats,
		AvailableSeats: seats,
		IsActive:       true,
	}
	require.NoError(t, db.Create(event).Error)
	return event
}

func eventSeats(t *testing.T, db *gorm.DB, id uuid.UUID) int {
	t.Helper()

	var event models.Event
	require.NoError(t, db.First(&event, "id = ?", id).Error)
	return event.AvailableSeats
}

func TestPurchaseAndCancelScenario(t *testing.T) {
	db := newTestDB(t)
	svc := NewReservationService(db)
	ctx := context.Background()

	userA := createTestUser(t, db, "alice")
	userB := createTestUser(t, db, "bob")
	event := createTestEvent(t, db, 10, "20.00", 72*time.Hour)

	// Purchase 3 seats.
	ticket, err := svc.Purchase(ctx, PurchaseInput{
		EventID:  event.ID,
		UserID:   userA.ID,
		Quantity: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, eventSeats(t, db, event.ID))
	assert.Equal(t, models.TicketConfirmed, ticket.Status)
	assert.True(t, ticket.TotalPrice().Equal(decimal.RequireFromString("60.00")),
		"total price was %s", ticket.TotalPrice())
	assert.Regexp(t, `^TKT-[A-Z0-9]{8}$`, ticket.ReferenceNumber)
	assert.NotEmpty(t, ticket.QRPayload)
	assert.False(t, ticket.PurchaseDate.IsZero())

	// Only 7 seats left, so 8 must fail and leave inventory alone.
	_, err = svc.Purchase(ctx, PurchaseInput{
		EventID:  event.ID,
		UserID:   userB.ID,
		Quantity: 8,
	})
	assert.ErrorIs(t, err, ErrInsufficientInventory)
	assert.Equal(t, 7, eventSeats(t, db, event.ID))

	// Cancelling more than 24h out restores all seats.
	result, err := svc.Cancel(ctx, CancelInput{TicketID: ticket.ID, UserID: userA.ID})
	require.NoError(t, err)
	assert.Equal(t, 10, eventSeats(t, db, event.ID))
	assert.True(t, result.RefundAmount.Equal(decimal.RequireFromString("60.00")),
		"refund was %s", result.RefundAmount)
	assert.Equal(t, models.TicketCancelled, result.Ticket.Status)
	assert.NotNil(t, result.Ticket.CancelledDate)

	// Price * quantity still holds after cancellation.
	var stored models.Ticket
	require.NoError(t, db.First(&stored, "id = ?", ticket.ID).Error)
	assert.True(t, stored.TotalPrice().Equal(decimal.RequireFromString("60.00")))

	// A second cancel fails and does not restore seats again.
	_, err = svc.Cancel(ctx, CancelInput{TicketID: ticket.ID, UserID: userA.ID})
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
	assert.Equal(t, 10, eventSeats(t, db, event.ID))
}

func TestPurchaseQuantityBounds(t *testing.T) {
	db := newTestDB(t)
	svc := NewReservationService(db)
	ctx := context.Background()

	user := createTestUser(t, db, "alice")
	event := createTestEvent(t, db, 100, "10.00", 72*time.Hour)

	for _, quantity := range []int{0, -1, 11} {
		_, err := svc.Purchase(ctx, PurchaseInput{
			EventID:  event.ID,
			UserID:   user.ID,
			Quantity: quantity,
		})
		assert.ErrorIs(t, err, ErrQuantityOutOfRange, "quantity %d", quantity)
	}
	assert.Equal(t, 100, eventSeats(t, db, event.ID))

	_, err := svc.Purchase(ctx, PurchaseInput{EventID: event.ID, UserID: user.ID, Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, 90, eventSeats(t, db, event.ID))
}

func TestPurchaseInactiveEvent(t *testing.T) {
	db := newTestDB(t)
	svc := NewReservationService(db)
	ctx := context.Background()

	user := createTestUser(t, db, "alice")
	event := createTestEvent(t, db, 10, "10.00", 72*time.Hour)
	require.NoError(t, db.Model(event).Update("is_active", false).Error)

	_, err := svc.Purchase(ctx, PurchaseInput{EventID: event.ID, UserID: user.ID, Quantity: 1})
	assert.ErrorIs(t, err, ErrEventInactive)
	assert.Equal(t, 10, eventSeats(t, db, event.ID))
}

func TestPurchaseUnknownEvent(t *testing.T) {
	db := newTestDB(t)
	svc := NewReservationService(db)

	user := createTestUser(t, db, "alice")

	_, err := svc.Purchase(context.Background(), PurchaseInput{
		EventID:  uuid.New(),
		UserID:   user.ID,
		Quantity: 1,
	})
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestPurchasePriceSnapshot(t *testing.T) {
	db := newTestDB(t)
	svc := NewReservationService(db)
	ctx := context.Background()

	user := createTestUser(t, db, "alice")
	event := createTestEvent(t, db, 10, "20.00", 72*time.Hour)

	ticket, err := svc.Purchase(ctx, PurchaseInput{EventID: event.ID, UserID: user.ID, Quantity: 2})
	require.NoError(t, err)

	// Raising the event price later must not touch sold tickets.
	require.NoError(t, db.Model(event).Update("price", decimal.RequireFromString("35.00")).Error)

	var stored models.Ticket
	require.NoError(t, db.First(&stored, "id = ?", ticket.ID).Error)
	assert.True(t, stored.Price.Equal(decimal.RequireFromString("20.00")))
	assert.True(t, stored.TotalPrice().Equal(decimal.RequireFromString("40.00")))
}

func TestCancelWindowClosed(t *testing.T) {
	db := newTestDB(t)
	svc := NewReservationService(db)
	ctx := context.Background()

	user := createTestUser(t, db, "alice")
	event := createTestEvent(t, db, 10, "20.00", 23*time.Hour)

	ticket, err := svc.Purchase(ctx, PurchaseInput{EventID: event.ID, UserID: user.ID, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 8, eventSeats(t, db, event.ID))

	_, err = svc.Cancel(ctx, CancelInput{TicketID: ticket.ID, UserID: user.ID})
	assert.ErrorIs(t, err, ErrCancellationWindowClosed)

	// Failed cancel leaves both the seats and the ticket untouched.
	assert.Equal(t, 8, eventSeats(t, db, event.ID))
	var stored models.Ticket
	require.NoError(t, db.First(&stored, "id = ?", ticket.ID).Error)
	assert.Equal(t, models.TicketConfirmed, stored.Status)
}

func TestCancelPendingTicket(t *testing.T) {
	db := newTestDB(t)
	svc := NewReservationService(db)

	user := createTestUser(t, db, "alice")
	event := createTestEvent(t, db, 10, "20.00", 72*time.Hour)

	ticket := &models.Ticket{
		EventID:         &event.ID,
		UserID:          user.ID,
		Price:           event.Price,
		Quantity:        1,
		Status:          models.TicketPending,
		ReferenceNumber: "TKT-PENDING1",
		PurchaseDate:    time.Now(),
	}
	require.NoError(t, db.Create(ticket).Error)

	_, err := svc.Cancel(context.Background(), CancelInput{TicketID: ticket.ID, UserID: user.ID})
	assert.ErrorIs(t, err, ErrInvalidTicketState)
}

func TestCancelOwnershipAndOverride(t *testing.T) {
	db := newTestDB(t)
	svc := NewReservationService(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "alice")
	other := createTestUser(t, db, "bob")
	event := createTestEvent(t, db, 10, "20.00", 72*time.Hour)

	ticket, err := svc.Purchase(ctx, PurchaseInput{EventID: event.ID, UserID: owner.ID, Quantity: 2})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, CancelInput{TicketID: ticket.ID, UserID: other.ID})
	assert.ErrorIs(t, err, ErrNotTicketOwner)

	// An admin may cancel someone else's ticket with a refund override.
	override := decimal.RequireFromString("15.00")
	result, err := svc.Cancel(ctx, CancelInput{
		TicketID:       ticket.ID,
		UserID:         other.ID,
		IsAdmin:        true,
		RefundOverride: &override,
	})
	require.NoError(t, err)
	assert.True(t, result.RefundAmount.Equal(override))
	assert.Equal(t, 10, eventSeats(t, db, event.ID))
}

func TestCancelRefundOverrideIgnoredForNonAdmin(t *testing.T) {
	db := newTestDB(t)
	svc := NewReservationService(db)
	ctx := context.Background()

	user := createTestUser(t, db, "alice")
	event := createTestEvent(t, db, 10, "20.00", 72*time.Hour)

	ticket, err := svc.Purchase(ctx, PurchaseInput{EventID: event.ID, UserID: user.ID, Quantity: 3})
	require.NoError(t, err)

	override := decimal.RequireFromString("999.00")
	result, err := svc.Cancel(ctx, CancelInput{
		TicketID:       ticket.ID,
		UserID:         user.ID,
		RefundOverride: &override,
	})
	require.NoError(t, err)
	assert.True(t, result.RefundAmount.Equal(decimal.RequireFromString("60.00")),
		"refund was %s", result.RefundAmount)
}

func TestCancelUnknownTicket(t *testing.T) {
	db := newTestDB(t)
	svc := NewReservationService(db)

	user := createTestUser(t, db, "alice")

	_, err := svc.Cancel(context.Background(), CancelInput{TicketID: uuid.New(), UserID: user.ID})
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestStatsAndUpcoming(t *testing.T) {
	db := newTestDB(t)
	svc := NewReservationService(db)
	ctx := context.Background()

	user := createTestUser(t, db, "alice")
	futureEvent := createTestEvent(t, db, 50, "20.00", 72*time.Hour)
	nearEvent := createTestEvent(t, db, 50, "10.00", 48*time.Hour)

	kept, err := svc.Purchase(ctx, PurchaseInput{EventID: futureEvent.ID, UserID: user.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = svc.Purchase(ctx, PurchaseInput{EventID: nearEvent.ID, UserID: user.ID, Quantity: 1})
	require.NoError(t, err)

	cancelled, err := svc.Purchase(ctx, PurchaseInput{EventID: futureEvent.ID, UserID: user.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, CancelInput{TicketID: cancelled.ID, UserID: user.ID})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalTickets)
	assert.Equal(t, int64(2), stats.UpcomingTickets)
	// 2 * 20.00 + 1 * 10.00 over confirmed tickets only.
	assert.True(t, stats.TotalSpent.Equal(decimal.RequireFromString("50.00")),
		"total spent was %s", stats.TotalSpent)

	upcoming, err := svc.Upcoming(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	ids := make(map[uuid.UUID]bool, len(upcoming))
	for _, ticket := range upcoming {
		assert.Equal(t, models.TicketConfirmed, ticket.Status)
		ids[ticket.ID] = true
	}
	assert.True(t, ids[kept.ID])
	assert.False(t, ids[cancelled.ID])
}

func TestReferenceNumbersUniqueAcrossTickets(t *testing.T) {
	db := newTestDB(t)
	svc := NewReservationService(db)
	ctx := context.Background()

	user := createTestUser(t, db, "alice")
	event := createTestEvent(t, db, 200, "5.00", 72*time.Hour)

	for i := 0; i < 50; i++ {
		_, err := svc.Purchase(ctx, PurchaseInput{EventID: event.ID, UserID: user.ID, Quantity: 1})
		require.NoError(t, err)
	}

	var total, distinct int64
	require.NoError(t, db.Model(&models.Ticket{}).Count(&total).Error)
	require.NoError(t, db.Model(&models.Ticket{}).Distinct("reference_number").Count(&distinct).Error)
	assert.Equal(t, total, distinct)
}

func TestPurchaseRetriesOnReferenceCollision(t *testing.T) {
	db := newTestDB(t)
	svc := NewReservationService(db)
	ctx := context.Background()

	user := createTestUser(t, db, "alice")
	event := createTestEvent(t, db, 10, "20.00", 72*time.Hour)

	existing, err := svc.Purchase(ctx, PurchaseInput{EventID: event.ID, UserID: user.ID, Quantity: 1})
	require.NoError(t, err)

	// First candidate collides with the existing ticket's reference;
	// the unique-insert retry must draw a fresh one and succeed.
	calls := 0
	svc.generateRef = func() (string, error) {
		calls++
		if calls == 1 {
			return existing.ReferenceNumber, nil
		}
		return GenerateReferenceNumber()
	}

	ticket, err := svc.Purchase(ctx, PurchaseInput{EventID: event.ID, UserID: user.ID, Quantity: 1})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls, 2)
	assert.NotEqual(t, existing.ReferenceNumber, ticket.ReferenceNumber)
	assert.Regexp(t, `^TKT-[A-Z0-9]{8}$`, ticket.ReferenceNumber)
	assert.Equal(t, 8, eventSeats(t, db, event.ID))

	var distinct int64
	require.NoError(t, db.Model(&models.Ticket{}).Distinct("reference_number").Count(&distinct).Error)
	assert.Equal(t, int64(2), distinct)
}

func TestPurchaseExhaustsReferenceAttempts(t *testing.T) {
	db := newTestDB(t)
	svc := NewReservationService(db)
	ctx := context.Background()

	user := createTestUser(t, db, "alice")
	event := createTestEvent(t, db, 10, "20.00", 72*time.Hour)

	existing, err := svc.Purchase(ctx, PurchaseInput{EventID: event.ID, UserID: user.ID, Quantity: 1})
	require.NoError(t, err)

	// Every candidate collides, so the purchase must fail and roll
	// the seat decrement back.
	svc.generateRef = func() (string, error) {
		return existing.ReferenceNumber, nil
	}

	_, err = svc.Purchase(ctx, PurchaseInput{EventID: event.ID, UserID: user.ID, Quantity: 1})
	require.Error(t, err)
	assert.Equal(t, 9, eventSeats(t, db, event.ID))
}

func TestConcurrentCancelRestoresSeatsOnce(t *testing.T) {
	db := newTestDB(t)
	svc := NewReservationService(db)
	ctx := context.Background()

	user := createTestUser(t, db, "alice")
	event := createTestEvent(t, db, 10, "20.00", 72*time.Hour)

	ticket, err := svc.Purchase(ctx, PurchaseInput{EventID: event.ID, UserID: user.ID, Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, 7, eventSeats(t, db, event.ID))

	const workers = 2
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Cancel(context.Background(), CancelInput{TicketID: ticket.ID, UserID: user.ID})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyCancelled)
		}
	}
	assert.Equal(t, 1, successes)

	// Seats restored exactly once.
	assert.Equal(t, 10, eventSeats(t, db, event.ID))
	var stored models.Ticket
	require.NoError(t, db.First(&stored, "id = ?", ticket.ID).Error)
	assert.Equal(t, models.TicketCancelled, stored.Status)
}

func TestConcurrentPurchasesNeverOversell(t *testing.T) {
	db := newTestDB(t)
	svc := NewReservationService(db)

	event := createTestEvent(t, db, 10, "20.00", 72*time.Hour)

	const workers = 8
	const quantity = 3

	users := make([]*models.User, workers)
	for i := range users {
		users[i] = createTestUser(t, db, "user"+string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Purchase(context.Background(), PurchaseInput{
				EventID:  event.ID,
				UserID:   users[i].ID,
				Quantity: quantity,
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientInventory)
		}
	}

	// Capacity 10 at quantity 3: exactly 3 purchases fit.
	assert.Equal(t, 3, successes)

	seats := eventSeats(t, db, event.ID)
	assert.Equal(t, 10-successes*quantity, seats)
	assert.GreaterOrEqual(t, seats, 0)
	assert.LessOrEqual(t, seats, 10)
}
