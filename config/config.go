package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	mu sync.RWMutex `yaml:"-"`

	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Maps      MapsConfig      `yaml:"maps"`
	Web       WebConfig       `yaml:"web"`
	Messaging MessagingConfig `yaml:"messaging"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Booking   BookingConfig   `yaml:"booking"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Admin     AdminConfig     `yaml:"admin"`
	Log       LogConfig       `yaml:"log"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MapsConfig points at a Google Directions compatible route API.
type MapsConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Region   string        `yaml:"region"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
	// SecureCookies marks the session cookie HTTPS-only.
	SecureCookies bool `yaml:"secure_cookies"`
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	// Enable only behind a reverse proxy that overwrites those headers.
	TrustProxy bool `yaml:"trust_proxy"`
	// Quote endpoint limiter, per client IP.
	QuoteRatePerMinute int `yaml:"quote_rate_per_minute"`
	QuoteBurst         int `yaml:"quote_burst"`
}

type MessagingConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Backend             string        `yaml:"backend"` // "kafka" or "mqtt"
	Kafka               KafkaConfig   `yaml:"kafka"`
	MQTT                MQTTConfig    `yaml:"mqtt"`
	EventsTopic         string        `yaml:"events_topic"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
	OutboxMaxRetries    int           `yaml:"outbox_max_retries"`
	NodeID              string        `yaml:"node_id"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// MirrorConfig configures the spreadsheet mirror. An empty URL disables it.
type MirrorConfig struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	OnUpdate bool          `yaml:"on_update"`
}

type BookingConfig struct {
	ModifyWindow time.Duration `yaml:"modify_window"`
}

// PricingConfig seeds the rate table until an admin saves one.
type PricingConfig struct {
	BaseRateVan       float64 `yaml:"base_rate_van"`
	BaseRateBike      float64 `yaml:"base_rate_bike"`
	LondonMultiplier  float64 `yaml:"london_multiplier"`
	UrgentMultiplier  float64 `yaml:"urgent_multiplier"`
	VATRate           float64 `yaml:"vat_rate"`
	BikeDistanceLimit float64 `yaml:"bike_distance_limit"`
	BikeMinimumCharge float64 `yaml:"bike_minimum_charge"`
}

type AdminConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultSessionSecret is the placeholder shipped in Defaults. It is never
// used to sign cookies.
const DefaultSessionSecret = "change-me-in-production"

func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "courierdesk.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "courierdesk",
				User:     "courierdesk",
				Password: "",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			Password: "",
			DB:       0,
		},
		Maps: MapsConfig{
			BaseURL:  "https://maps.googleapis.com",
			Region:   "uk",
			Timeout:  10 * time.Second,
			CacheTTL: 24 * time.Hour,
		},
		Web: WebConfig{
			Host:               "0.0.0.0",
			Port:               8085,
			SessionSecret:      DefaultSessionSecret,
			QuoteRatePerMinute: 30,
			QuoteBurst:         10,
		},
		Messaging: MessagingConfig{
			Enabled: false,
			Backend: "kafka",
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "courierdesk",
			},
			MQTT: MQTTConfig{
				Broker:   "localhost",
				Port:     1883,
				ClientID: "courierdesk",
			},
			EventsTopic:         "courierdesk.bookings",
			OutboxDrainInterval: 5 * time.Second,
			OutboxMaxRetries:    20,
			NodeID:              "desk",
		},
		Mirror: MirrorConfig{
			Timeout: 10 * time.Second,
		},
		Booking: BookingConfig{
			ModifyWindow: 30 * time.Minute,
		},
		Pricing: PricingConfig{
			BaseRateVan:       3.20,
			BaseRateBike:      2.80,
			LondonMultiplier:  1.20,
			UrgentMultiplier:  1.50,
			VATRate:           0.20,
			BikeDistanceLimit: 30,
			BikeMinimumCharge: 6.50,
		},
		Admin: AdminConfig{
			Email:    "admin@courierdesk.local",
			Password: "admin",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Lock()   { c.mu.Lock() }
func (c *Config) Unlock() { c.mu.Unlock() }
