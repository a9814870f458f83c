package bookings

import "courierdesk/store"

// EventEmitter is the interface the bookings package uses to emit events.
// Every call happens after the write it describes has been committed.
type EventEmitter interface {
	EmitBookingCreated(b *store.Booking, actor string)
	EmitBookingStatusChanged(b *store.Booking, oldStatus, detail, actor string)
	EmitBookingUpdated(b *store.Booking, fields []string, actor string)
	EmitBookingDeleted(b *store.Booking, actor string)
}

type nopEmitter struct{}

func (nopEmitter) EmitBookingCreated(*store.Booking, string)                      {}
func (nopEmitter) EmitBookingStatusChanged(*store.Booking, string, string, string) {}
func (nopEmitter) EmitBookingUpdated(*store.Booking, []string, string)            {}
func (nopEmitter) EmitBookingDeleted(*store.Booking, string)                      {}
