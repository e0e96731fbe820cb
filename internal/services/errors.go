// Package services holds the reservation workflow: transactional seat
// accounting for purchases and cancellations, reference number and QR
// payload generation, and per-user ticket reporting. Sentinel errors
// let handlers distinguish business-rule failures from persistence
// failures; handlers translate them into HTTP status codes.
package services

import "errors"

// ErrEventNotFound is returned when the requested event does not exist.
var ErrEventNotFound = errors.New("event not found")

// ErrEventInactive is returned when purchasing against a disabled event.
var ErrEventInactive = errors.New("event is not active")

// ErrQuantityOutOfRange is returned when the requested quantity is
// outside the allowed per-purchase range.
var ErrQuantityOutOfRange = errors.New("quantity out of range")

// ErrInsufficientInventory is returned when fewer seats remain than
// the purchase requests.
var ErrInsufficientInventory = errors.New("not enough seats available")

// ErrTicketNotFound is returned when the requested ticket does not exist.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrNotTicketOwner is returned when a caller without override
// authority operates on someone else's ticket.
var ErrNotTicketOwner = errors.New("ticket belongs to another user")

// ErrAlreadyCancelled is returned when cancelling a ticket that is
// already cancelled.
var ErrAlreadyCancelled = errors.New("ticket already cancelled")

// ErrInvalidTicketState is returned when cancelling a ticket that is
// not in the confirmed state.
var ErrInvalidTicketState = errors.New("ticket is not in a cancellable state")

// ErrCancellationWindowClosed is returned when the event starts in
// 24 hours or less.
var ErrCancellationWindowClosed = errors.New("cannot cancel ticket less than 24 hours before event")
