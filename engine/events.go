package engine

import (
	"courierdesk/pricing"
	"courierdesk/store"
)

const (
	EventBookingCreated EventType = iota + 1
	EventBookingStatusChanged
	EventBookingUpdated
	EventBookingDeleted
	EventRatesChanged
	EventMessagingConnected
	EventMessagingDisconnected
)

var eventNames = map[EventType]string{
	EventBookingCreated:        "booking-created",
	EventBookingStatusChanged:  "booking-status-changed",
	EventBookingUpdated:        "booking-updated",
	EventBookingDeleted:        "booking-deleted",
	EventRatesChanged:          "rates-changed",
	EventMessagingConnected:    "messaging-connected",
	EventMessagingDisconnected: "messaging-disconnected",
}

// String is the name used for SSE event fields and logs.
func (t EventType) String() string {
	if n, ok := eventNames[t]; ok {
		return n
	}
	return "unknown"
}

// --- Event payloads ---

// BookingEvent carries a snapshot of the booking after the write.
type BookingEvent struct {
	Booking   store.Booking
	OldStatus string
	Detail    string
	Fields    []string
	Actor     string
}

type RatesChangedEvent struct {
	Old   pricing.RateConfig
	New   pricing.RateConfig
	Actor string
}

type ConnectionEvent struct {
	Detail string
}
