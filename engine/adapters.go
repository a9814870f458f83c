package engine

import "courierdesk/store"

// bookingEmitter bridges the bookings package's emitter interface to the EventBus.
type bookingEmitter struct {
	bus *EventBus
}

func (e *bookingEmitter) EmitBookingCreated(b *store.Booking, actor string) {
	e.bus.Emit(Event{Type: EventBookingCreated, Payload: BookingEvent{
		Booking: *b,
		Actor:   actor,
	}})
}

func (e *bookingEmitter) EmitBookingStatusChanged(b *store.Booking, oldStatus, detail, actor string) {
	e.bus.Emit(Event{Type: EventBookingStatusChanged, Payload: BookingEvent{
		Booking:   *b,
		OldStatus: oldStatus,
		Detail:    detail,
		Actor:     actor,
	}})
}

func (e *bookingEmitter) EmitBookingUpdated(b *store.Booking, fields []string, actor string) {
	e.bus.Emit(Event{Type: EventBookingUpdated, Payload: BookingEvent{
		Booking: *b,
		Fields:  append([]string(nil), fields...),
		Actor:   actor,
	}})
}

func (e *bookingEmitter) EmitBookingDeleted(b *store.Booking, actor string) {
	e.bus.Emit(Event{Type: EventBookingDeleted, Payload: BookingEvent{
		Booking: *b,
		Actor:   actor,
	}})
}
