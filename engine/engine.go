package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"courierdesk/bookings"
	"courierdesk/config"
	"courierdesk/messaging"
	"courierdesk/mirror"
	"courierdesk/pricestate"
	"courierdesk/pricing"
	"courierdesk/store"
)

// Resolver turns two addresses into a driving distance in meters. ok is
// false when the distance could not be determined.
type Resolver interface {
	Resolve(ctx context.Context, origin, destination store.Address) (meters float64, ok bool)
}

type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	Distance   Resolver
	Rates      *pricestate.Manager
	// MsgClient is nil when messaging is disabled.
	MsgClient *messaging.Client
	Mirror    *mirror.Client
	Logger    *zap.Logger
}

type Engine struct {
	cfg          *config.Config
	configPath   string
	db           *store.DB
	distance     Resolver
	rates        *pricestate.Manager
	msgClient    *messaging.Client
	mirror       *mirror.Client
	bookings     *bookings.Manager
	drainer      *messaging.OutboxDrainer
	Events       *EventBus
	log          *zap.Logger
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	msgConnected bool
}

func New(c Config) *Engine {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mc := c.Mirror
	if mc == nil {
		mc = mirror.NewClient("", 0)
	}
	e := &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		distance:   c.Distance,
		rates:      c.Rates,
		msgClient:  c.MsgClient,
		mirror:     mc,
		Events:     NewEventBus(logger),
		log:        logger,
		stopChan:   make(chan struct{}),
	}
	e.bookings = bookings.NewManager(c.DB, e, &bookingEmitter{bus: e.Events},
		c.AppConfig.Booking.ModifyWindow, logger.Named("bookings"))
	return e
}

func (e *Engine) Start() {
	e.wireEventHandlers()

	e.rates.OnChange(func(old, updated pricing.RateConfig, actor string) {
		e.Events.Emit(Event{Type: EventRatesChanged, Payload: RatesChangedEvent{Old: old, New: updated, Actor: actor}})
	})

	var pub messaging.Publisher
	if e.msgClient != nil {
		pub = e.msgClient
	}
	var mir messaging.Mirror
	if e.mirror.Enabled() {
		mir = e.mirror
	}
	if pub != nil || mir != nil {
		mc := e.cfg.Messaging
		e.drainer = messaging.NewOutboxDrainer(e.db, pub, mir, messaging.DrainerConfig{
			Interval:    mc.OutboxDrainInterval,
			MaxRetries:  mc.OutboxMaxRetries,
			SendTimeout: e.cfg.Mirror.Timeout,
		}, e.log.Named("outbox"))
		e.drainer.Start()
	}

	if e.msgClient != nil {
		e.checkConnectionStatus()
		e.wg.Add(1)
		go e.connectionHealthLoop()
	}

	e.log.Info("engine: started",
		zap.Bool("mirror", e.mirror.Enabled()), zap.Bool("messaging", e.msgClient != nil))
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()
	if e.drainer != nil {
		e.drainer.Stop()
	}
	e.log.Info("engine: stopped")
}

// Accessors
func (e *Engine) DB() *store.DB                     { return e.db }
func (e *Engine) AppConfig() *config.Config         { return e.cfg }
func (e *Engine) ConfigPath() string                { return e.configPath }
func (e *Engine) Bookings() *bookings.Manager       { return e.bookings }
func (e *Engine) Rates() *pricestate.Manager        { return e.rates }
func (e *Engine) MsgClient() *messaging.Client      { return e.msgClient }
func (e *Engine) Drainer() *messaging.OutboxDrainer { return e.drainer }

// Quote prices a job with the current rates. A failed distance lookup falls
// back to the estimated distance; quoting never fails.
func (e *Engine) Quote(ctx context.Context, origin, destination store.Address, vehicle pricing.Vehicle, urgent bool) pricing.Quote {
	var meters float64
	var known bool
	if e.distance != nil {
		meters, known = e.distance.Resolve(ctx, origin, destination)
	}
	return pricing.Compute(pricing.Request{
		DistanceMeters:      meters,
		DistanceKnown:       known,
		Vehicle:             vehicle,
		Urgent:              urgent,
		OriginPostcode:      origin.Postcode,
		DestinationPostcode: destination.Postcode,
	}, e.rates.Get(ctx))
}

func (e *Engine) checkConnectionStatus() {
	if e.msgClient.IsConnected() {
		if !e.msgConnected {
			e.msgConnected = true
			e.Events.Emit(Event{Type: EventMessagingConnected, Payload: ConnectionEvent{Detail: "messaging connected"}})
		}
	} else if e.msgConnected {
		e.msgConnected = false
		e.Events.Emit(Event{Type: EventMessagingDisconnected, Payload: ConnectionEvent{Detail: "messaging disconnected"}})
	}
}

func (e *Engine) connectionHealthLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.checkConnectionStatus()
		}
	}
}
