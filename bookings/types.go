package bookings

import (
	"time"

	"courierdesk/store"
)

// Booking statuses
const (
	StatusPending    = "pending"
	StatusConfirmed  = "confirmed"
	StatusOutsourced = "outsourced"
	StatusDeclined   = "declined"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// validTransitions defines which status transitions are allowed.
var validTransitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusOutsourced, StatusDeclined, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// IsValidTransition checks if a status transition is allowed.
func IsValidTransition(from, to string) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no transition leaves the status.
func IsTerminal(status string) bool {
	_, ok := validTransitions[status]
	return !ok
}

// IsKnownStatus reports whether s is one of the booking statuses.
func IsKnownStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusOutsourced, StatusDeclined, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanModify reports whether the customer is still invited to change the
// booking. It is advisory; nothing rejects a write because of it.
func CanModify(b *store.Booking, now time.Time) bool {
	if b.Status != StatusPending && b.Status != StatusConfirmed {
		return false
	}
	return now.Before(b.ModifiableUntil)
}
