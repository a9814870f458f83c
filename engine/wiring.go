package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"courierdesk/export"
	"courierdesk/protocol"
	"courierdesk/store"
)

const mirrorTopic = "mirror"

func (e *Engine) wireEventHandlers() {
	bookingTypes := []EventType{EventBookingCreated, EventBookingStatusChanged, EventBookingUpdated, EventBookingDeleted}

	// Audit every booking write
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(BookingEvent)
		b := &ev.Booking
		var action, oldValue, newValue string
		switch evt.Type {
		case EventBookingCreated:
			action, newValue = "created", fmt.Sprintf("%s %s -> %s £%.2f", b.VehicleType, b.Collection.Postcode, b.Delivery.Postcode, b.TotalPrice)
		case EventBookingStatusChanged:
			action, oldValue, newValue = "status", ev.OldStatus, b.Status
			if ev.Detail != "" {
				newValue += ": " + ev.Detail
			}
		case EventBookingUpdated:
			action, newValue = "updated", strings.Join(ev.Fields, ",")
		case EventBookingDeleted:
			action, oldValue = "deleted", b.Status
		}
		if err := e.db.AppendAudit("booking", b.ID, action, oldValue, newValue, ev.Actor); err != nil {
			e.log.Error("engine: audit booking", zap.String("id", b.ID), zap.Error(err))
		}
	}, bookingTypes...)

	// Spreadsheet mirror
	mirrorTypes := []EventType{EventBookingCreated}
	if e.cfg.Mirror.OnUpdate {
		mirrorTypes = append(mirrorTypes, EventBookingStatusChanged, EventBookingUpdated)
	}
	e.Events.SubscribeTypes(func(evt Event) {
		if !e.mirror.Enabled() {
			return
		}
		ev := evt.Payload.(BookingEvent)
		data, err := json.Marshal(export.FromBooking(&ev.Booking))
		if err != nil {
			e.log.Error("engine: encode mirror record", zap.String("id", ev.Booking.ID), zap.Error(err))
			return
		}
		if err := e.db.EnqueueOutbox(mirrorTopic, data, store.OutboxMirror, e.cfg.Messaging.NodeID); err != nil {
			e.log.Error("engine: queue mirror record", zap.String("id", ev.Booking.ID), zap.Error(err))
		}
	}, mirrorTypes...)

	// Broker events
	e.Events.SubscribeTypes(func(evt Event) {
		if e.msgClient == nil {
			return
		}
		ev := evt.Payload.(BookingEvent)
		b := &ev.Booking
		var msgType string
		var payload any
		switch evt.Type {
		case EventBookingCreated:
			msgType = protocol.TypeBookingCreated
			payload = &protocol.BookingCreated{
				BookingID:    b.ID,
				UserID:       b.UserID,
				Status:       b.Status,
				VehicleType:  b.VehicleType,
				Urgent:       b.Urgent,
				FromPostcode: b.Collection.Postcode,
				ToPostcode:   b.Delivery.Postcode,
				CollectAt:    b.CollectionAt,
				TotalPrice:   b.TotalPrice,
			}
		case EventBookingStatusChanged:
			msgType = protocol.TypeBookingStatusChanged
			payload = &protocol.BookingStatusChanged{
				BookingID: b.ID,
				OldStatus: ev.OldStatus,
				NewStatus: b.Status,
				Detail:    ev.Detail,
				Actor:     ev.Actor,
			}
		case EventBookingUpdated:
			msgType = protocol.TypeBookingUpdated
			payload = &protocol.BookingUpdated{BookingID: b.ID, Fields: ev.Fields, Actor: ev.Actor}
		case EventBookingDeleted:
			msgType = protocol.TypeBookingDeleted
			payload = &protocol.BookingDeleted{BookingID: b.ID, Actor: ev.Actor}
		}
		e.enqueueEvent(msgType, b.ID, payload)
	}, bookingTypes...)

	// Rate changes: audit and broadcast
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(RatesChangedEvent)
		oldJSON, _ := json.Marshal(ev.Old)
		newJSON, _ := json.Marshal(ev.New)
		if err := e.db.AppendAudit("pricing", store.SettingRateConfig, "updated", string(oldJSON), string(newJSON), ev.Actor); err != nil {
			e.log.Error("engine: audit rates", zap.Error(err))
		}
		if e.msgClient == nil {
			return
		}
		r := ev.New
		e.enqueueEvent(protocol.TypeRatesChanged, "", &protocol.RatesChanged{
			BaseRateVan:       r.BaseRateVan,
			BaseRateBike:      r.BaseRateBike,
			LondonMultiplier:  r.LondonMultiplier,
			UrgentMultiplier:  r.UrgentMultiplier,
			VATRate:           r.VATRate,
			BikeDistanceLimit: r.BikeDistanceLimit,
			BikeMinimumCharge: r.BikeMinimumCharge,
			Actor:             ev.Actor,
		})
	}, EventRatesChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ConnectionEvent)
		e.log.Info("engine: " + ev.Detail)
	}, EventMessagingConnected, EventMessagingDisconnected)
}

func (e *Engine) enqueueEvent(msgType, key string, payload any) {
	mc := e.cfg.Messaging
	src := protocol.Address{Role: protocol.RoleDesk, Node: mc.NodeID}
	dst := protocol.Address{Role: protocol.RoleSubscriber}
	env, err := protocol.NewEnvelope(msgType, src, dst, key, payload)
	if err != nil {
		e.log.Error("engine: build envelope", zap.String("type", msgType), zap.Error(err))
		return
	}
	data, err := env.Encode()
	if err != nil {
		e.log.Error("engine: encode envelope", zap.String("type", msgType), zap.Error(err))
		return
	}
	if err := e.db.EnqueueOutbox(mc.EventsTopic, data, store.OutboxEvent, mc.NodeID); err != nil {
		e.log.Error("engine: queue event", zap.String("type", msgType), zap.Error(err))
	}
}
