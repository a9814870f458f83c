package www

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"courierdesk/access"
	"courierdesk/engine"
)

type SSEEvent struct {
	Event string
	Data  string
	// Owner is the user id of the booking the event is about, "" for
	// events every signed-in client may see.
	Owner string
}

// EventHub fans engine events out to connected browsers. Each client only
// receives events about bookings it is allowed to view.
type EventHub struct {
	mu        sync.RWMutex
	clients   map[chan SSEEvent]access.Caller
	broadcast chan SSEEvent
	stopChan  chan struct{}
	stopOnce  sync.Once
	log       *zap.Logger
}

func NewEventHub(log *zap.Logger) *EventHub {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventHub{
		clients:   make(map[chan SSEEvent]access.Caller),
		broadcast: make(chan SSEEvent, 256),
		stopChan:  make(chan struct{}),
		log:       log,
	}
}

func (h *EventHub) Start() {
	go h.run()
}

func (h *EventHub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

func canSee(c access.Caller, evt SSEEvent) bool {
	if evt.Owner == "" {
		return true
	}
	return access.Authorize(c, access.ActionViewBooking, evt.Owner) == access.Allow
}

func (h *EventHub) run() {
	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case evt := <-h.broadcast:
			h.mu.RLock()
			for ch, caller := range h.clients {
				if !canSee(caller, evt) {
					continue
				}
				select {
				case ch <- evt:
				default:
					// slow client, drop
				}
			}
			h.mu.RUnlock()
		case <-keepalive.C:
			h.mu.RLock()
			for ch := range h.clients {
				select {
				case ch <- SSEEvent{Event: "keepalive", Data: "ping"}:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *EventHub) Broadcast(evt SSEEvent) {
	select {
	case h.broadcast <- evt:
	default:
		h.log.Debug("sse: broadcast buffer full, dropping", zap.String("event", evt.Event))
	}
}

func (h *EventHub) AddClient(c access.Caller) chan SSEEvent {
	ch := make(chan SSEEvent, 64)
	h.mu.Lock()
	h.clients[ch] = c
	h.mu.Unlock()
	return ch
}

func (h *EventHub) RemoveClient(ch chan SSEEvent) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type bookingUpdate struct {
	Type      string   `json:"type"`
	BookingID string   `json:"booking_id"`
	Status    string   `json:"status"`
	OldStatus string   `json:"old_status,omitempty"`
	Fields    []string `json:"fields,omitempty"`
	Total     float64  `json:"total_price"`
}

func (h *EventHub) broadcastJSON(event, owner string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("sse: encode", zap.String("event", event), zap.Error(err))
		return
	}
	h.Broadcast(SSEEvent{Event: event, Data: string(data), Owner: owner})
}

// SetupEngineListeners wires engine events to SSE broadcasts.
func (h *EventHub) SetupEngineListeners(eng *engine.Engine) {
	kinds := map[engine.EventType]string{
		engine.EventBookingCreated:       "created",
		engine.EventBookingStatusChanged: "status_changed",
		engine.EventBookingUpdated:       "updated",
		engine.EventBookingDeleted:       "deleted",
	}
	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.BookingEvent)
		h.broadcastJSON("booking-update", ev.Booking.UserID, bookingUpdate{
			Type:      kinds[evt.Type],
			BookingID: ev.Booking.ID,
			Status:    ev.Booking.Status,
			OldStatus: ev.OldStatus,
			Fields:    ev.Fields,
			Total:     ev.Booking.TotalPrice,
		})
	}, engine.EventBookingCreated, engine.EventBookingStatusChanged, engine.EventBookingUpdated, engine.EventBookingDeleted)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		h.Broadcast(SSEEvent{Event: "pricing-update", Data: `{"type":"rates_changed"}`})
	}, engine.EventRatesChanged)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		h.Broadcast(SSEEvent{Event: "system-status", Data: `{"messaging":"connected"}`})
	}, engine.EventMessagingConnected)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		h.Broadcast(SSEEvent{Event: "system-status", Data: `{"messaging":"disconnected"}`})
	}, engine.EventMessagingDisconnected)
}

// SSEHandler serves the SSE endpoint for the signed-in caller.
func (h *EventHub) SSEHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch := h.AddClient(callerFrom(r))
	defer h.RemoveClient(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data); err != nil {
				h.log.Debug("sse: write error", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}
