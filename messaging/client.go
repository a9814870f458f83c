package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"courierdesk/config"
)

var ErrNotConnected = errors.New("messaging: not connected")

// backend is one broker transport.
type backend interface {
	publish(ctx context.Context, topic, key string, payload []byte) error
	connected() bool
	close()
}

// Client publishes booking events to MQTT or Kafka, chosen by config.
type Client struct {
	mu  sync.RWMutex
	cfg *config.MessagingConfig
	be  backend
	log *zap.Logger
}

func NewClient(cfg *config.MessagingConfig, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{cfg: cfg, log: log}
}

// Connect opens the configured transport. An MQTT broker that is not up yet
// is retried in the background and does not fail Connect.
func (c *Client) Connect() error {
	var (
		be  backend
		err error
	)
	switch c.cfg.Backend {
	case "mqtt":
		be, err = dialMQTT(c.cfg.MQTT, c.log)
	case "kafka":
		be, err = newKafkaBackend(c.cfg.Kafka)
	default:
		err = fmt.Errorf("unknown messaging backend %q", c.cfg.Backend)
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	old := c.be
	c.be = be
	c.mu.Unlock()
	if old != nil {
		old.close()
	}
	return nil
}

// Publish sends one message. key picks the Kafka partition so events for one
// booking stay ordered; MQTT ignores it.
func (c *Client) Publish(ctx context.Context, topic, key string, payload []byte) error {
	c.mu.RLock()
	be := c.be
	c.mu.RUnlock()
	if be == nil || !be.connected() {
		return ErrNotConnected
	}
	return be.publish(ctx, topic, key, payload)
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.be != nil && c.be.connected()
}

func (c *Client) Close() {
	c.mu.Lock()
	be := c.be
	c.be = nil
	c.mu.Unlock()
	if be != nil {
		be.close()
	}
}

// --- MQTT ---

type mqttBackend struct {
	conn mqtt.Client
}

func dialMQTT(cfg config.MQTTConfig, log *zap.Logger) (*mqttBackend, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("messaging: mqtt connection lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info("messaging: mqtt connected", zap.String("broker", broker))
		})

	conn := mqtt.NewClient(opts)
	token := conn.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Warn("messaging: mqtt broker not reachable yet", zap.String("broker", broker))
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return &mqttBackend{conn: conn}, nil
}

func (m *mqttBackend) publish(ctx context.Context, topic, _ string, payload []byte) error {
	token := m.conn.Publish(topic, 1, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mqttBackend) connected() bool { return m.conn.IsConnected() }

func (m *mqttBackend) close() { m.conn.Disconnect(1000) }

// --- Kafka ---

type kafkaBackend struct {
	w *kafkago.Writer
}

// newKafkaBackend builds a writer. kafka-go dials lazily, so brokers are
// first contacted on the first publish.
func newKafkaBackend(cfg config.KafkaConfig) (*kafkaBackend, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	return &kafkaBackend{w: &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}, nil
}

func (k *kafkaBackend) publish(ctx context.Context, topic, key string, payload []byte) error {
	return k.w.WriteMessages(ctx, kafkago.Message{Topic: topic, Key: []byte(key), Value: payload})
}

func (k *kafkaBackend) connected() bool { return true }

func (k *kafkaBackend) close() { k.w.Close() }
