package messaging

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"courierdesk/protocol"
	"courierdesk/store"
)

// Publisher delivers event rows to the broker.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	IsConnected() bool
}

// Mirror delivers mirror rows to the spreadsheet endpoint.
type Mirror interface {
	Post(ctx context.Context, payload []byte) error
}

// DrainerConfig tunes the OutboxDrainer.
type DrainerConfig struct {
	Interval   time.Duration
	MaxRetries int
	BatchSize  int
	// SendTimeout bounds each delivery attempt.
	SendTimeout time.Duration
}

// OutboxDrainer periodically sends pending outbox messages. Either sink may
// be nil; rows for a missing sink stay queued.
type OutboxDrainer struct {
	db        *store.DB
	publisher Publisher
	mirror    Mirror
	cfg       DrainerConfig
	log       *zap.Logger
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewOutboxDrainer creates a new outbox drainer.
func NewOutboxDrainer(db *store.DB, publisher Publisher, mirror Mirror, cfg DrainerConfig, log *zap.Logger) *OutboxDrainer {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 20
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OutboxDrainer{
		db:        db,
		publisher: publisher,
		mirror:    mirror,
		cfg:       cfg,
		log:       log,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the outbox drain loop.
func (d *OutboxDrainer) Start() {
	d.wg.Add(1)
	go d.drainLoop()
}

// Stop stops the outbox drain loop.
func (d *OutboxDrainer) Stop() {
	select {
	case <-d.stopChan:
	default:
		close(d.stopChan)
	}
	d.wg.Wait()
}

func (d *OutboxDrainer) drainLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.Drain()
		}
	}
}

// Drain sends one batch and returns how many rows were delivered.
func (d *OutboxDrainer) Drain() int {
	msgs, err := d.db.ListPendingOutbox(d.cfg.BatchSize, d.cfg.MaxRetries)
	if err != nil {
		d.log.Error("outbox: list pending", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range msgs {
		var err error
		switch msg.MsgType {
		case store.OutboxMirror:
			if d.mirror == nil {
				continue
			}
			err = d.send(func(ctx context.Context) error { return d.mirror.Post(ctx, msg.Payload) })
		case store.OutboxEvent:
			if d.publisher == nil || !d.publisher.IsConnected() {
				continue
			}
			env, derr := protocol.Decode(msg.Payload)
			if derr != nil {
				d.log.Error("outbox: undecodable event, dropping", zap.Int64("id", msg.ID), zap.Error(derr))
				d.db.AckOutbox(msg.ID)
				continue
			}
			if protocol.IsExpired(env) {
				d.log.Info("outbox: event expired, dropping", zap.Int64("id", msg.ID), zap.String("type", env.Type))
				d.db.AckOutbox(msg.ID)
				continue
			}
			err = d.send(func(ctx context.Context) error {
				return d.publisher.Publish(ctx, msg.Topic, env.Key, msg.Payload)
			})
		default:
			d.log.Warn("outbox: unknown message type", zap.Int64("id", msg.ID), zap.String("type", msg.MsgType))
			continue
		}

		if err != nil {
			d.log.Warn("outbox: delivery failed", zap.Int64("id", msg.ID), zap.String("type", msg.MsgType),
				zap.Int("retries", msg.Retries+1), zap.Error(err))
			if ferr := d.db.FailOutbox(msg.ID, err.Error()); ferr != nil {
				d.log.Error("outbox: record failure", zap.Int64("id", msg.ID), zap.Error(ferr))
			}
			if msg.Retries+1 >= d.cfg.MaxRetries {
				d.log.Error("outbox: giving up", zap.Int64("id", msg.ID), zap.String("type", msg.MsgType))
			}
			continue
		}
		if err := d.db.AckOutbox(msg.ID); err != nil {
			d.log.Error("outbox: ack", zap.Int64("id", msg.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

func (d *OutboxDrainer) send(fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()
	return fn(ctx)
}
