package protocol

// Booking event types published on the events topic.
const (
	TypeBookingCreated       = "booking.created"
	TypeBookingStatusChanged = "booking.status_changed"
	TypeBookingUpdated       = "booking.updated"
	TypeBookingDeleted       = "booking.deleted"
	TypeRatesChanged         = "pricing.rates_changed"
)

// Roles for Address.Role.
const (
	RoleDesk       = "desk"
	RoleSubscriber = "subscriber"
)

// Protocol version.
const Version = 1
